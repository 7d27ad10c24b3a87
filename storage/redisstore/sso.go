package redisstore

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/jrsteele09/go-sso-idp/internal/errors"
	"github.com/jrsteele09/go-sso-idp/sso"
	pkgerrors "github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

var _ sso.Repo = (*Store)(nil)

func (s *Store) CreateSession(ctx context.Context, session *sso.Session) error {
	ttl := ttlFor(session.ExpiresAt)
	if err := s.createJSON(ctx, s.key(keySession, session.Token), session, ttl); err != nil {
		return err
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(keySessionID, session.ID), session.Token, ttl)
		pipe.SAdd(ctx, s.key(keyUserSessions, session.UserID), session.Token)
		return nil
	})
	if err != nil {
		_ = s.client.Del(ctx, s.key(keySession, session.Token)).Err()
		return pkgerrors.Wrap(err, "[Store.CreateSession] failed to index session")
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, token string) (*sso.Session, error) {
	var session sso.Session
	if err := s.getJSON(ctx, s.key(keySession, token), &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *Store) GetSessionByID(ctx context.Context, id string) (*sso.Session, error) {
	token, err := s.client.Get(ctx, s.key(keySessionID, id)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, errors.NotFoundf("session %s", id)
		}
		return nil, pkgerrors.Wrap(err, "[Store.GetSessionByID] failed to resolve session id")
	}
	return s.GetSession(ctx, token)
}

func (s *Store) updateSession(ctx context.Context, token string, mutate func(session *sso.Session)) error {
	return s.updateJSON(ctx, s.key(keySession, token), func(data []byte) ([]byte, error) {
		var session sso.Session
		if err := json.Unmarshal(data, &session); err != nil {
			return nil, err
		}
		mutate(&session)
		return json.Marshal(session)
	})
}

func (s *Store) TouchSession(ctx context.Context, token string, at time.Time) error {
	return s.updateSession(ctx, token, func(session *sso.Session) {
		session.LastActivityAt = at
	})
}

// RevokeSession only ever moves ExpiresAt earlier.
func (s *Store) RevokeSession(ctx context.Context, token string, at time.Time) error {
	return s.updateSession(ctx, token, func(session *sso.Session) {
		if at.Before(session.ExpiresAt) {
			session.ExpiresAt = at
		}
	})
}

func (s *Store) ListActiveSessions(ctx context.Context, userID string, now time.Time) ([]*sso.Session, error) {
	tokens, err := s.client.SMembers(ctx, s.key(keyUserSessions, userID)).Result()
	if err != nil {
		return nil, pkgerrors.Wrap(err, "[Store.ListActiveSessions] failed to read user sessions")
	}
	if len(tokens) == 0 {
		return nil, nil
	}

	keys := make([]string, len(tokens))
	for i, token := range tokens {
		keys[i] = s.key(keySession, token)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, pkgerrors.Wrap(err, "[Store.ListActiveSessions] failed to load sessions")
	}

	var out []*sso.Session
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var session sso.Session
		if err := json.Unmarshal([]byte(raw), &session); err != nil {
			return nil, pkgerrors.Wrap(err, "[Store.ListActiveSessions] failed to decode session")
		}
		if session.UserID == userID && now.Before(session.ExpiresAt) {
			out = append(out, &session)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastActivityAt.After(out[j].LastActivityAt)
	})
	return out, nil
}

// DeleteExpiredSessions removes expired sessions together with their indexes,
// connected apps and activity.
func (s *Store) DeleteExpiredSessions(ctx context.Context, now time.Time) (int, error) {
	deleted := 0
	err := s.scanKeys(ctx, s.pattern(keySession), func(key string) error {
		var session sso.Session
		if err := s.getJSON(ctx, key, &session); err != nil {
			if errors.Is(err, errors.ErrNotFound) {
				return nil
			}
			return err
		}
		if now.Before(session.ExpiresAt) {
			return nil
		}
		_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx,
				key,
				s.key(keySessionID, session.ID),
				s.key(keyApps, session.ID),
				s.key(keyActivity, session.ID),
			)
			pipe.SRem(ctx, s.key(keyUserSessions, session.UserID), session.Token)
			return nil
		})
		if err != nil {
			return pkgerrors.Wrapf(err, "[Store.DeleteExpiredSessions] failed to delete session %s", session.ID)
		}
		deleted++
		return nil
	})
	return deleted, err
}

func (s *Store) UpsertConnectedApp(ctx context.Context, app *sso.ConnectedApp) (*sso.ConnectedApp, bool, error) {
	key := s.key(keyApps, app.SessionID)
	var stored sso.ConnectedApp
	var created bool

	txf := func(tx *redis.Tx) error {
		stored = *app
		created = true
		raw, err := tx.HGet(ctx, key, app.ClientID).Bytes()
		switch {
		case err == nil:
			var existing sso.ConnectedApp
			if err := json.Unmarshal(raw, &existing); err != nil {
				return err
			}
			if app.AppSessionToken != "" {
				existing.AppSessionToken = app.AppSessionToken
			}
			if app.LogoutURL != "" {
				existing.LogoutURL = app.LogoutURL
			}
			existing.LastSeenAt = app.LastSeenAt
			stored = existing
			created = false
		case !errors.Is(err, redis.Nil):
			return err
		}

		data, err := json.Marshal(stored)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, app.ClientID, data)
			return nil
		})
		return err
	}

	for range maxTxRetry {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, false, pkgerrors.Wrap(err, "[Store.UpsertConnectedApp] failed to upsert")
		}
		return &stored, created, nil
	}
	return nil, false, pkgerrors.Errorf("[Store.UpsertConnectedApp] %s: too much contention", key)
}

func (s *Store) ListConnectedApps(ctx context.Context, sessionID string) ([]*sso.ConnectedApp, error) {
	values, err := s.client.HVals(ctx, s.key(keyApps, sessionID)).Result()
	if err != nil {
		return nil, pkgerrors.Wrap(err, "[Store.ListConnectedApps] failed to read apps")
	}
	var out []*sso.ConnectedApp
	for _, raw := range values {
		var app sso.ConnectedApp
		if err := json.Unmarshal([]byte(raw), &app); err != nil {
			return nil, pkgerrors.Wrap(err, "[Store.ListConnectedApps] failed to decode app")
		}
		out = append(out, &app)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastSeenAt.After(out[j].LastSeenAt)
	})
	return out, nil
}

func (s *Store) DeleteConnectedApp(ctx context.Context, sessionID, clientID string) error {
	n, err := s.client.HDel(ctx, s.key(keyApps, sessionID), clientID).Result()
	if err != nil {
		return pkgerrors.Wrap(err, "[Store.DeleteConnectedApp] failed to delete app")
	}
	if n == 0 {
		return errors.NotFoundf("connected app %s", clientID)
	}
	return nil
}

func (s *Store) AppendActivity(ctx context.Context, activity *sso.Activity) error {
	data, err := json.Marshal(activity)
	if err != nil {
		return pkgerrors.Wrap(err, "[Store.AppendActivity] failed to encode activity")
	}
	return s.client.LPush(ctx, s.key(keyActivity, activity.SessionID), data).Err()
}

// ListActivity reads the head of the list, which LPUSH keeps newest first.
func (s *Store) ListActivity(ctx context.Context, sessionID string, limit int) ([]*sso.Activity, error) {
	if limit <= 0 {
		return []*sso.Activity{}, nil
	}
	values, err := s.client.LRange(ctx, s.key(keyActivity, sessionID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, pkgerrors.Wrap(err, "[Store.ListActivity] failed to read activity")
	}
	out := make([]*sso.Activity, 0, len(values))
	for _, raw := range values {
		var a sso.Activity
		if err := json.Unmarshal([]byte(raw), &a); err != nil {
			return nil, pkgerrors.Wrap(err, "[Store.ListActivity] failed to decode activity")
		}
		out = append(out, &a)
	}
	return out, nil
}

func (s *Store) CountActivity(ctx context.Context, sessionID string) (int, error) {
	n, err := s.client.LLen(ctx, s.key(keyActivity, sessionID)).Result()
	if err != nil {
		return 0, pkgerrors.Wrap(err, "[Store.CountActivity] failed to count activity")
	}
	return int(n), nil
}
