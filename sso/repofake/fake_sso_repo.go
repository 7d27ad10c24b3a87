package ssorepofake

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jrsteele09/go-sso-idp/internal/errors"
	"github.com/jrsteele09/go-sso-idp/sso"
)

var _ sso.Repo = (*FakeSSORepo)(nil)

type FakeSSORepo struct {
	sessions map[string]sso.Session // by token
	byID     map[string]string      // session id -> token
	apps     map[string]sso.ConnectedApp
	activity map[string][]sso.Activity
	lock     sync.RWMutex
}

func NewFakeSSORepo() *FakeSSORepo {
	return &FakeSSORepo{
		sessions: make(map[string]sso.Session),
		byID:     make(map[string]string),
		apps:     make(map[string]sso.ConnectedApp),
		activity: make(map[string][]sso.Activity),
	}
}

func appKey(sessionID, clientID string) string {
	return sessionID + "|" + clientID
}

func (r *FakeSSORepo) CreateSession(_ context.Context, session *sso.Session) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if _, ok := r.sessions[session.Token]; ok {
		return errors.ErrAlreadyExists
	}
	r.sessions[session.Token] = *session
	r.byID[session.ID] = session.Token
	return nil
}

func (r *FakeSSORepo) GetSession(_ context.Context, token string) (*sso.Session, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	s, ok := r.sessions[token]
	if !ok {
		return nil, errors.NotFoundf("session")
	}
	return &s, nil
}

func (r *FakeSSORepo) GetSessionByID(_ context.Context, id string) (*sso.Session, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	s, ok := r.sessions[r.byID[id]]
	if !ok {
		return nil, errors.NotFoundf("session %s", id)
	}
	return &s, nil
}

func (r *FakeSSORepo) TouchSession(_ context.Context, token string, at time.Time) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	s, ok := r.sessions[token]
	if !ok {
		return errors.NotFoundf("session")
	}
	s.LastActivityAt = at
	r.sessions[token] = s
	return nil
}

func (r *FakeSSORepo) RevokeSession(_ context.Context, token string, at time.Time) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	s, ok := r.sessions[token]
	if !ok {
		return errors.NotFoundf("session")
	}
	if at.Before(s.ExpiresAt) {
		s.ExpiresAt = at
	}
	r.sessions[token] = s
	return nil
}

func (r *FakeSSORepo) ListActiveSessions(_ context.Context, userID string, now time.Time) ([]*sso.Session, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	var out []*sso.Session
	for _, s := range r.sessions {
		if s.UserID == userID && now.Before(s.ExpiresAt) {
			s := s
			out = append(out, &s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastActivityAt.After(out[j].LastActivityAt)
	})
	return out, nil
}

func (r *FakeSSORepo) DeleteExpiredSessions(_ context.Context, now time.Time) (int, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	n := 0
	for token, s := range r.sessions {
		if now.Before(s.ExpiresAt) {
			continue
		}
		delete(r.sessions, token)
		delete(r.byID, s.ID)
		delete(r.activity, s.ID)
		for key, app := range r.apps {
			if app.SessionID == s.ID {
				delete(r.apps, key)
			}
		}
		n++
	}
	return n, nil
}

func (r *FakeSSORepo) UpsertConnectedApp(_ context.Context, app *sso.ConnectedApp) (*sso.ConnectedApp, bool, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	key := appKey(app.SessionID, app.ClientID)
	existing, ok := r.apps[key]
	if !ok {
		r.apps[key] = *app
		stored := *app
		return &stored, true, nil
	}
	if app.AppSessionToken != "" {
		existing.AppSessionToken = app.AppSessionToken
	}
	if app.LogoutURL != "" {
		existing.LogoutURL = app.LogoutURL
	}
	existing.LastSeenAt = app.LastSeenAt
	r.apps[key] = existing
	return &existing, false, nil
}

func (r *FakeSSORepo) ListConnectedApps(_ context.Context, sessionID string) ([]*sso.ConnectedApp, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	var out []*sso.ConnectedApp
	for _, app := range r.apps {
		if app.SessionID == sessionID {
			app := app
			out = append(out, &app)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastSeenAt.After(out[j].LastSeenAt)
	})
	return out, nil
}

func (r *FakeSSORepo) DeleteConnectedApp(_ context.Context, sessionID, clientID string) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	key := appKey(sessionID, clientID)
	if _, ok := r.apps[key]; !ok {
		return errors.NotFoundf("connected app %s", clientID)
	}
	delete(r.apps, key)
	return nil
}

func (r *FakeSSORepo) AppendActivity(_ context.Context, activity *sso.Activity) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.activity[activity.SessionID] = append(r.activity[activity.SessionID], *activity)
	return nil
}

func (r *FakeSSORepo) ListActivity(_ context.Context, sessionID string, limit int) ([]*sso.Activity, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	entries := r.activity[sessionID]
	out := make([]*sso.Activity, 0, len(entries))
	for i := len(entries) - 1; i >= 0 && len(out) < limit; i-- {
		a := entries[i]
		out = append(out, &a)
	}
	return out, nil
}

func (r *FakeSSORepo) CountActivity(_ context.Context, sessionID string) (int, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return len(r.activity[sessionID]), nil
}
