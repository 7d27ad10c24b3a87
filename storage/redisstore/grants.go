package redisstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jrsteele09/go-sso-idp/grants"
	"github.com/jrsteele09/go-sso-idp/internal/errors"
	pkgerrors "github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

var _ grants.Repo = (*Store)(nil)

func consentID(userID, clientID, tenantID string) string {
	return userID + "|" + clientID + "|" + tenantID
}

func (s *Store) CreateCode(ctx context.Context, code *grants.AuthorizationCode) error {
	return s.createJSON(ctx, s.key(keyCode, code.Code), code, ttlFor(code.ExpiresAt))
}

func (s *Store) GetCode(ctx context.Context, code string) (*grants.AuthorizationCode, error) {
	var c grants.AuthorizationCode
	if err := s.getJSON(ctx, s.key(keyCode, code), &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// DeleteCode uses GETDEL so that only one caller observes the code.
func (s *Store) DeleteCode(ctx context.Context, code string) error {
	err := s.client.GetDel(ctx, s.key(keyCode, code)).Err()
	if errors.Is(err, redis.Nil) {
		return errors.NotFoundf("code")
	}
	return err
}

func (s *Store) CreateAccessToken(ctx context.Context, token *grants.AccessToken) error {
	return s.createJSON(ctx, s.key(keyAccess, token.Token), token, ttlFor(token.ExpiresAt))
}

func (s *Store) GetAccessToken(ctx context.Context, token string) (*grants.AccessToken, error) {
	var t grants.AccessToken
	if err := s.getJSON(ctx, s.key(keyAccess, token), &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Store) RevokeAccessToken(ctx context.Context, token string, at time.Time) error {
	return s.updateJSON(ctx, s.key(keyAccess, token), func(data []byte) ([]byte, error) {
		var t grants.AccessToken
		if err := json.Unmarshal(data, &t); err != nil {
			return nil, err
		}
		if t.RevokedAt != nil {
			return nil, errors.NotFoundf("access token")
		}
		t.RevokedAt = &at
		return json.Marshal(t)
	})
}

func (s *Store) CreateRefreshToken(ctx context.Context, token *grants.RefreshToken) error {
	return s.createJSON(ctx, s.key(keyRefresh, token.Token), token, ttlFor(token.ExpiresAt))
}

func (s *Store) GetRefreshToken(ctx context.Context, token string) (*grants.RefreshToken, error) {
	var t grants.RefreshToken
	if err := s.getJSON(ctx, s.key(keyRefresh, token), &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// RevokeRefreshToken is a WATCH/MULTI compare-and-set, so concurrent rotations of the
// same token see exactly one success.
func (s *Store) RevokeRefreshToken(ctx context.Context, token string, at time.Time) error {
	return s.updateJSON(ctx, s.key(keyRefresh, token), func(data []byte) ([]byte, error) {
		var t grants.RefreshToken
		if err := json.Unmarshal(data, &t); err != nil {
			return nil, err
		}
		if t.RevokedAt != nil {
			return nil, errors.NotFoundf("refresh token")
		}
		t.RevokedAt = &at
		return json.Marshal(t)
	})
}

func (s *Store) GetConsent(ctx context.Context, userID, clientID, tenantID string) (*grants.Consent, error) {
	var c grants.Consent
	if err := s.getJSON(ctx, s.key(keyConsent, consentID(userID, clientID, tenantID)), &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) UpsertConsent(ctx context.Context, consent *grants.Consent) error {
	data, err := json.Marshal(consent)
	if err != nil {
		return pkgerrors.Wrap(err, "[Store.UpsertConsent] failed to encode consent")
	}
	key := s.key(keyConsent, consentID(consent.UserID, consent.ClientID, consent.TenantID))
	return s.client.Set(ctx, key, data, 0).Err()
}

// DeleteExpired scans codes and both token kinds and removes records expired at now.
func (s *Store) DeleteExpired(ctx context.Context, now time.Time) (grants.SweepResult, error) {
	var res grants.SweepResult
	var err error

	if res.Codes, err = s.deleteExpired(ctx, keyCode, now, func(data []byte) (time.Time, error) {
		var c grants.AuthorizationCode
		err := json.Unmarshal(data, &c)
		return c.ExpiresAt, err
	}); err != nil {
		return res, err
	}
	if res.AccessTokens, err = s.deleteExpired(ctx, keyAccess, now, func(data []byte) (time.Time, error) {
		var t grants.AccessToken
		err := json.Unmarshal(data, &t)
		return t.ExpiresAt, err
	}); err != nil {
		return res, err
	}
	if res.RefreshTokens, err = s.deleteExpired(ctx, keyRefresh, now, func(data []byte) (time.Time, error) {
		var t grants.RefreshToken
		err := json.Unmarshal(data, &t)
		return t.ExpiresAt, err
	}); err != nil {
		return res, err
	}
	return res, nil
}

func (s *Store) deleteExpired(ctx context.Context, kind string, now time.Time, expiry func([]byte) (time.Time, error)) (int, error) {
	deleted := 0
	err := s.scanKeys(ctx, s.pattern(kind), func(key string) error {
		data, err := s.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return pkgerrors.Wrapf(err, "[Store.deleteExpired] failed to get %s", key)
		}
		expiresAt, err := expiry(data)
		if err != nil {
			return pkgerrors.Wrapf(err, "[Store.deleteExpired] failed to decode %s", key)
		}
		if now.Before(expiresAt) {
			return nil
		}
		n, err := s.client.Del(ctx, key).Result()
		if err != nil {
			return pkgerrors.Wrapf(err, "[Store.deleteExpired] failed to delete %s", key)
		}
		deleted += int(n)
		return nil
	})
	return deleted, err
}
