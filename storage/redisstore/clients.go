package redisstore

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/jrsteele09/go-sso-idp/clients"
	"github.com/jrsteele09/go-sso-idp/internal/errors"
	pkgerrors "github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

var _ clients.Repo = (*Store)(nil)

// storedClient persists the secret hash that clients.Client hides from JSON.
type storedClient struct {
	clients.Client
	SecretHash string `json:"secret_hash"`
}

func toStoredClient(c *clients.Client) storedClient {
	return storedClient{Client: *c, SecretHash: c.SecretHash}
}

func (sc storedClient) client() *clients.Client {
	c := sc.Client
	c.SecretHash = sc.SecretHash
	return &c
}

func (s *Store) clientIndexKey() string {
	return s.keyPrefix + keyClientIndex
}

func (s *Store) Get(ctx context.Context, clientID string) (*clients.Client, error) {
	var sc storedClient
	if err := s.getJSON(ctx, s.key(keyClient, clientID), &sc); err != nil {
		return nil, err
	}
	return sc.client(), nil
}

func (s *Store) Create(ctx context.Context, client *clients.Client) error {
	if err := s.createJSON(ctx, s.key(keyClient, client.ClientID), toStoredClient(client), 0); err != nil {
		return err
	}
	if err := s.client.SAdd(ctx, s.clientIndexKey(), client.ClientID).Err(); err != nil {
		_ = s.client.Del(ctx, s.key(keyClient, client.ClientID)).Err()
		return pkgerrors.Wrap(err, "[Store.Create] failed to index client")
	}
	return nil
}

func (s *Store) Update(ctx context.Context, client *clients.Client) error {
	data, err := json.Marshal(toStoredClient(client))
	if err != nil {
		return pkgerrors.Wrap(err, "[Store.Update] failed to encode client")
	}
	return s.updateJSON(ctx, s.key(keyClient, client.ClientID), func([]byte) ([]byte, error) {
		return data, nil
	})
}

func (s *Store) Delete(ctx context.Context, clientID string) error {
	n, err := s.client.Del(ctx, s.key(keyClient, clientID)).Result()
	if err != nil {
		return pkgerrors.Wrap(err, "[Store.Delete] failed to delete client")
	}
	if n == 0 {
		return errors.NotFoundf("client %s", clientID)
	}
	return s.client.SRem(ctx, s.clientIndexKey(), clientID).Err()
}

func (s *Store) List(ctx context.Context, filter clients.ListFilter) ([]*clients.Client, error) {
	ids, err := s.client.SMembers(ctx, s.clientIndexKey()).Result()
	if err != nil {
		return nil, pkgerrors.Wrap(err, "[Store.List] failed to read client index")
	}
	list := make([]*clients.Client, 0, len(ids))
	if len(ids) == 0 {
		return list, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.key(keyClient, id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, pkgerrors.Wrap(err, "[Store.List] failed to load clients")
	}
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var sc storedClient
		if err := json.Unmarshal([]byte(raw), &sc); err != nil {
			return nil, pkgerrors.Wrap(err, "[Store.List] failed to decode client")
		}
		if c := sc.client(); filter.Matches(c) {
			list = append(list, c)
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
