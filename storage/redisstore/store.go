// Package redisstore is the durable backend for clients, grants and SSO sessions.
//
// Records are JSON strings keyed under a configurable prefix. Codes, tokens and sessions
// keep their logical expiry in the record and are removed by the sweep. Their keys also
// carry a redis TTL of the record's expiry plus Retention.
package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jrsteele09/go-sso-idp/internal/errors"
	pkgerrors "github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultDialTimeout  = 5 * time.Second
	DefaultReadTimeout  = 3 * time.Second
	DefaultWriteTimeout = 3 * time.Second

	// Retention is how long an expired record stays readable before redis drops it.
	Retention = 24 * time.Hour

	scanCount  = 100
	maxTxRetry = 10
)

const (
	keyClient       = "client"
	keyClientIndex  = "clients"
	keyCode         = "code"
	keyAccess       = "access"
	keyRefresh      = "refresh"
	keyConsent      = "consent"
	keySession      = "session"
	keySessionID    = "session_id"
	keyUserSessions = "user_sessions"
	keyApps         = "apps"
	keyActivity     = "activity"
)

type Config struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// Store implements clients.Repo, grants.Repo and sso.Repo on one redis client.
type Store struct {
	client    redis.UniversalClient
	keyPrefix string
}

// Open connects to redis and checks the connection.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  DefaultDialTimeout,
		ReadTimeout:  DefaultReadTimeout,
		WriteTimeout: DefaultWriteTimeout,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, pkgerrors.Wrapf(err, "[redisstore.Open] failed to connect to %s", cfg.Addr)
	}
	return New(client, cfg.KeyPrefix), nil
}

// New wraps an existing client. Tests pass a miniredis backed client here.
func New(client redis.UniversalClient, keyPrefix string) *Store {
	return &Store{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) key(kind string, id string) string {
	return fmt.Sprintf("%s%s:%s", s.keyPrefix, kind, id)
}

func (s *Store) pattern(kind string) string {
	return s.key(kind, "*")
}

// ttlFor is the redis TTL for a record that logically expires at expiresAt.
func ttlFor(expiresAt time.Time) time.Duration {
	ttl := time.Until(expiresAt) + Retention
	if ttl < time.Second {
		return time.Second
	}
	return ttl
}

// getJSON loads key into v, returning ErrNotFound when the key is missing.
func (s *Store) getJSON(ctx context.Context, key string, v any) error {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return errors.NotFoundf("%s", key)
		}
		return pkgerrors.Wrapf(err, "[Store.getJSON] failed to get %s", key)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return pkgerrors.Wrapf(err, "[Store.getJSON] failed to decode %s", key)
	}
	return nil
}

// createJSON stores v at key unless the key already exists.
func (s *Store) createJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return pkgerrors.Wrapf(err, "[Store.createJSON] failed to encode %s", key)
	}
	ok, err := s.client.SetNX(ctx, key, data, ttl).Result()
	if err != nil {
		return pkgerrors.Wrapf(err, "[Store.createJSON] failed to set %s", key)
	}
	if !ok {
		return errors.ErrAlreadyExists
	}
	return nil
}

// updateJSON is a WATCH/MULTI read-modify-write of the record at key. mutate receives
// the current record bytes and returns the replacement. Errors returned by mutate abort
// the transaction unchanged. The key's TTL is kept.
func (s *Store) updateJSON(ctx context.Context, key string, mutate func(data []byte) ([]byte, error)) error {
	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return errors.NotFoundf("%s", key)
			}
			return err
		}
		next, err := mutate(data)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.SetArgs(ctx, key, next, redis.SetArgs{KeepTTL: true})
			return nil
		})
		return err
	}

	for range maxTxRetry {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return pkgerrors.Errorf("[Store.updateJSON] %s: too much contention", key)
}

// scanKeys calls fn for every key matching pattern.
func (s *Store) scanKeys(ctx context.Context, pattern string, fn func(key string) error) error {
	iter := s.client.Scan(ctx, 0, pattern, scanCount).Iterator()
	for iter.Next(ctx) {
		if err := fn(iter.Val()); err != nil {
			return err
		}
	}
	if err := iter.Err(); err != nil {
		return pkgerrors.Wrapf(err, "[Store.scanKeys] failed to scan %s", pattern)
	}
	return nil
}
