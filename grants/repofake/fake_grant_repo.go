package grantrepofake

import (
	"context"
	"sync"
	"time"

	"github.com/jrsteele09/go-sso-idp/grants"
	"github.com/jrsteele09/go-sso-idp/internal/errors"
)

var _ grants.Repo = (*FakeGrantRepo)(nil)

// FakeGrantRepo is an in-memory grants.Repo. A single mutex makes delete-if-exists and
// compare-and-set revocation atomic.
type FakeGrantRepo struct {
	codes    map[string]grants.AuthorizationCode
	access   map[string]grants.AccessToken
	refresh  map[string]grants.RefreshToken
	consents map[string]grants.Consent
	lock     sync.RWMutex
}

func NewFakeGrantRepo() *FakeGrantRepo {
	return &FakeGrantRepo{
		codes:    make(map[string]grants.AuthorizationCode),
		access:   make(map[string]grants.AccessToken),
		refresh:  make(map[string]grants.RefreshToken),
		consents: make(map[string]grants.Consent),
	}
}

func consentKey(userID, clientID, tenantID string) string {
	return userID + "|" + clientID + "|" + tenantID
}

func (r *FakeGrantRepo) CreateCode(_ context.Context, code *grants.AuthorizationCode) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if _, ok := r.codes[code.Code]; ok {
		return errors.ErrAlreadyExists
	}
	r.codes[code.Code] = *code
	return nil
}

func (r *FakeGrantRepo) GetCode(_ context.Context, code string) (*grants.AuthorizationCode, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	c, ok := r.codes[code]
	if !ok {
		return nil, errors.NotFoundf("code")
	}
	return &c, nil
}

func (r *FakeGrantRepo) DeleteCode(_ context.Context, code string) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if _, ok := r.codes[code]; !ok {
		return errors.NotFoundf("code")
	}
	delete(r.codes, code)
	return nil
}

// SetCodeExpiry rewrites a stored code's expiry.
func (r *FakeGrantRepo) SetCodeExpiry(code string, expiresAt time.Time) {
	r.lock.Lock()
	defer r.lock.Unlock()
	if c, ok := r.codes[code]; ok {
		c.ExpiresAt = expiresAt
		r.codes[code] = c
	}
}

func (r *FakeGrantRepo) CreateAccessToken(_ context.Context, token *grants.AccessToken) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if _, ok := r.access[token.Token]; ok {
		return errors.ErrAlreadyExists
	}
	r.access[token.Token] = *token
	return nil
}

func (r *FakeGrantRepo) GetAccessToken(_ context.Context, token string) (*grants.AccessToken, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	t, ok := r.access[token]
	if !ok {
		return nil, errors.NotFoundf("access token")
	}
	return &t, nil
}

func (r *FakeGrantRepo) RevokeAccessToken(_ context.Context, token string, at time.Time) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	t, ok := r.access[token]
	if !ok || t.RevokedAt != nil {
		return errors.NotFoundf("access token")
	}
	t.RevokedAt = &at
	r.access[token] = t
	return nil
}

func (r *FakeGrantRepo) CreateRefreshToken(_ context.Context, token *grants.RefreshToken) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if _, ok := r.refresh[token.Token]; ok {
		return errors.ErrAlreadyExists
	}
	r.refresh[token.Token] = *token
	return nil
}

func (r *FakeGrantRepo) GetRefreshToken(_ context.Context, token string) (*grants.RefreshToken, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	t, ok := r.refresh[token]
	if !ok {
		return nil, errors.NotFoundf("refresh token")
	}
	return &t, nil
}

func (r *FakeGrantRepo) RevokeRefreshToken(_ context.Context, token string, at time.Time) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	t, ok := r.refresh[token]
	if !ok || t.RevokedAt != nil {
		return errors.NotFoundf("refresh token")
	}
	t.RevokedAt = &at
	r.refresh[token] = t
	return nil
}

func (r *FakeGrantRepo) GetConsent(_ context.Context, userID, clientID, tenantID string) (*grants.Consent, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	c, ok := r.consents[consentKey(userID, clientID, tenantID)]
	if !ok {
		return nil, errors.NotFoundf("consent")
	}
	c.Scopes = append([]string(nil), c.Scopes...)
	return &c, nil
}

func (r *FakeGrantRepo) UpsertConsent(_ context.Context, consent *grants.Consent) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	c := *consent
	c.Scopes = append([]string(nil), consent.Scopes...)
	r.consents[consentKey(c.UserID, c.ClientID, c.TenantID)] = c
	return nil
}

func (r *FakeGrantRepo) DeleteExpired(_ context.Context, now time.Time) (grants.SweepResult, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	var res grants.SweepResult
	for k, c := range r.codes {
		if c.Expired(now) {
			delete(r.codes, k)
			res.Codes++
		}
	}
	for k, t := range r.access {
		if !now.Before(t.ExpiresAt) {
			delete(r.access, k)
			res.AccessTokens++
		}
	}
	for k, t := range r.refresh {
		if t.Expired(now) {
			delete(r.refresh, k)
			res.RefreshTokens++
		}
	}
	return res, nil
}
