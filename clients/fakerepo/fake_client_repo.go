package fakeclientrepo

import (
	"context"
	"sort"
	"sync"

	"github.com/jrsteele09/go-sso-idp/clients"
	"github.com/jrsteele09/go-sso-idp/internal/errors"
)

var _ clients.Repo = (*FakeClientRepo)(nil)

type FakeClientRepo struct {
	clients map[string]*clients.Client
	lock    sync.RWMutex
}

func NewFakeClientRepo() *FakeClientRepo {
	return &FakeClientRepo{
		clients: make(map[string]*clients.Client),
	}
}

func (r *FakeClientRepo) Create(_ context.Context, client *clients.Client) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if _, ok := r.clients[client.ClientID]; ok {
		return errors.ErrAlreadyExists
	}
	r.clients[client.ClientID] = client.Clone()
	return nil
}

func (r *FakeClientRepo) Update(_ context.Context, client *clients.Client) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if _, ok := r.clients[client.ClientID]; !ok {
		return errors.NotFoundf("client %s", client.ClientID)
	}
	r.clients[client.ClientID] = client.Clone()
	return nil
}

func (r *FakeClientRepo) Delete(_ context.Context, clientID string) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if _, ok := r.clients[clientID]; !ok {
		return errors.NotFoundf("client %s", clientID)
	}
	delete(r.clients, clientID)
	return nil
}

func (r *FakeClientRepo) Get(_ context.Context, clientID string) (*clients.Client, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	client, ok := r.clients[clientID]
	if !ok {
		return nil, errors.NotFoundf("client %s", clientID)
	}
	return client.Clone(), nil
}

func (r *FakeClientRepo) List(_ context.Context, filter clients.ListFilter) ([]*clients.Client, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	list := make([]*clients.Client, 0, len(r.clients))
	for _, c := range r.clients {
		if filter.Matches(c) {
			list = append(list, c.Clone())
		}
	}

	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].ClientID < list[j].ClientID
		}
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
	return list, nil
}
