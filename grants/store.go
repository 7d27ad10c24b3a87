package grants

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-sso-idp/internal/errors"
	"github.com/jrsteele09/go-sso-idp/internal/utils"
	"github.com/jrsteele09/go-sso-idp/oauth2"
	"github.com/jrsteele09/go-sso-idp/token"
	pkgerrors "github.com/pkg/errors"
)

var (
	ErrCodeNotFound    = stderrors.New("authorization code not found")
	ErrTokenNotFound   = stderrors.New("token not found")
	ErrTokenInactive   = stderrors.New("token is not active")
	ErrConsentNotFound = stderrors.New("consent not found")
)

// DefaultCodeTTL is the lifetime of an authorization code.
const DefaultCodeTTL = 10 * time.Minute

// CodeRequest carries everything bound to an authorization code.
type CodeRequest struct {
	UserID              string
	ClientID            string
	TenantID            string
	RedirectURI         string
	Scope               string
	CodeChallenge       string
	CodeChallengeMethod oauth2.CodeMethodType
}

// IssuedTokens is a freshly minted token pair. SignedAccessToken is what the client receives.
type IssuedTokens struct {
	AccessToken       *AccessToken
	SignedAccessToken string
	RefreshToken      *RefreshToken
}

// Store manages authorization codes, token pairs and consents.
type Store struct {
	repo    Repo
	codec   *token.Codec
	revoked token.RevokedTokenCache
	codeTTL time.Duration
	nowFunc func() time.Time
}

type StoreOption func(*Store)

func WithNowFunc(now func() time.Time) StoreOption {
	return func(s *Store) {
		s.nowFunc = now
	}
}

// WithCodeTTL caps at DefaultCodeTTL.
func WithCodeTTL(ttl time.Duration) StoreOption {
	return func(s *Store) {
		if ttl > 0 && ttl <= DefaultCodeTTL {
			s.codeTTL = ttl
		}
	}
}

func WithRevokedTokenCache(cache token.RevokedTokenCache) StoreOption {
	return func(s *Store) {
		s.revoked = cache
	}
}

func NewStore(repo Repo, codec *token.Codec, options ...StoreOption) *Store {
	s := &Store{
		repo:    repo,
		codec:   codec,
		codeTTL: DefaultCodeTTL,
		nowFunc: time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	if s.revoked == nil {
		s.revoked = token.NewRevokedTokenCache(10000)
	}
	return s
}

func (s *Store) Now() time.Time {
	return s.nowFunc()
}

func (s *Store) IssueCode(ctx context.Context, req CodeRequest) (*AuthorizationCode, error) {
	code, err := token.GenerateOpaqueToken(token.AuthorizationCodeBytes)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "[Store.IssueCode] failed to generate code")
	}
	now := s.nowFunc()
	ac := &AuthorizationCode{
		Code:                code,
		UserID:              req.UserID,
		ClientID:            req.ClientID,
		TenantID:            req.TenantID,
		RedirectURI:         req.RedirectURI,
		Scope:               req.Scope,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: req.CodeChallengeMethod,
		ExpiresAt:           now.Add(s.codeTTL),
		CreatedAt:           now,
	}
	if err := s.repo.CreateCode(ctx, ac); err != nil {
		return nil, pkgerrors.Wrap(err, "[Store.IssueCode] failed to store code")
	}
	return ac, nil
}

func (s *Store) GetCode(ctx context.Context, code string) (*AuthorizationCode, error) {
	if code == "" {
		return nil, ErrCodeNotFound
	}
	ac, err := s.repo.GetCode(ctx, code)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return nil, ErrCodeNotFound
		}
		return nil, pkgerrors.Wrap(err, "[Store.GetCode] failed to get code")
	}
	return ac, nil
}

// ConsumeCode deletes the code. Only the first caller for a given code succeeds.
func (s *Store) ConsumeCode(ctx context.Context, code string) error {
	if err := s.repo.DeleteCode(ctx, code); err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return ErrCodeNotFound
		}
		return pkgerrors.Wrap(err, "[Store.ConsumeCode] failed to delete code")
	}
	return nil
}

// IssueTokens mints an opaque access handle, its signed JWT and a refresh token.
func (s *Store) IssueTokens(ctx context.Context, grant Grant, accessTTL, refreshTTL time.Duration) (*IssuedTokens, error) {
	accessHandle, err := token.GenerateOpaqueToken(token.AccessTokenBytes)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "[Store.IssueTokens] failed to generate access token")
	}
	refreshValue, err := token.GenerateOpaqueToken(token.RefreshTokenBytes)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "[Store.IssueTokens] failed to generate refresh token")
	}

	signed, err := s.codec.SignAccessToken(token.AccessClaims{
		Subject:  grant.UserID,
		ClientID: grant.ClientID,
		TenantID: grant.TenantID,
		Scope:    grant.Scope,
		ID:       accessHandle,
	}, accessTTL)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "[Store.IssueTokens] failed to sign access token")
	}

	now := s.nowFunc()
	access := &AccessToken{
		ID:        uuid.New().String(),
		Token:     accessHandle,
		UserID:    grant.UserID,
		ClientID:  grant.ClientID,
		TenantID:  grant.TenantID,
		Scope:     grant.Scope,
		ExpiresAt: now.Add(accessTTL),
		CreatedAt: now,
	}
	if err := s.repo.CreateAccessToken(ctx, access); err != nil {
		return nil, pkgerrors.Wrap(err, "[Store.IssueTokens] failed to store access token")
	}

	refresh := &RefreshToken{
		ID:            uuid.New().String(),
		Token:         refreshValue,
		AccessTokenID: access.ID,
		UserID:        grant.UserID,
		ClientID:      grant.ClientID,
		TenantID:      grant.TenantID,
		Scope:         grant.Scope,
		ExpiresAt:     now.Add(refreshTTL),
		CreatedAt:     now,
	}
	if err := s.repo.CreateRefreshToken(ctx, refresh); err != nil {
		return nil, pkgerrors.Wrap(err, "[Store.IssueTokens] failed to store refresh token")
	}

	return &IssuedTokens{AccessToken: access, SignedAccessToken: signed, RefreshToken: refresh}, nil
}

func (s *Store) GetAccessToken(ctx context.Context, handle string) (*AccessToken, error) {
	if handle == "" {
		return nil, ErrTokenNotFound
	}
	at, err := s.repo.GetAccessToken(ctx, handle)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return nil, ErrTokenNotFound
		}
		return nil, pkgerrors.Wrap(err, "[Store.GetAccessToken] failed to get access token")
	}
	return at, nil
}

// ActiveAccessToken returns the record behind handle if it is neither revoked nor expired.
func (s *Store) ActiveAccessToken(ctx context.Context, handle string) (*AccessToken, error) {
	if s.revoked.IsRevoked(handle) {
		return nil, ErrTokenInactive
	}
	at, err := s.GetAccessToken(ctx, handle)
	if err != nil {
		return nil, err
	}
	if !at.Active(s.nowFunc()) {
		return nil, ErrTokenInactive
	}
	return at, nil
}

func (s *Store) RevokeAccessToken(ctx context.Context, handle string) error {
	at, err := s.GetAccessToken(ctx, handle)
	if err != nil {
		return err
	}
	if err := s.repo.RevokeAccessToken(ctx, handle, s.nowFunc()); err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return ErrTokenNotFound
		}
		return pkgerrors.Wrap(err, "[Store.RevokeAccessToken] failed to revoke access token")
	}
	s.revoked.Add(handle, at.ExpiresAt)
	return nil
}

func (s *Store) GetRefreshToken(ctx context.Context, value string) (*RefreshToken, error) {
	if value == "" {
		return nil, ErrTokenNotFound
	}
	rt, err := s.repo.GetRefreshToken(ctx, value)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return nil, ErrTokenNotFound
		}
		return nil, pkgerrors.Wrap(err, "[Store.GetRefreshToken] failed to get refresh token")
	}
	return rt, nil
}

// RevokeRefreshToken succeeds for exactly one caller per token.
func (s *Store) RevokeRefreshToken(ctx context.Context, value string) error {
	if err := s.repo.RevokeRefreshToken(ctx, value, s.nowFunc()); err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return ErrTokenNotFound
		}
		return pkgerrors.Wrap(err, "[Store.RevokeRefreshToken] failed to revoke refresh token")
	}
	return nil
}

func (s *Store) GetConsent(ctx context.Context, userID, clientID, tenantID string) (*Consent, error) {
	c, err := s.repo.GetConsent(ctx, userID, clientID, tenantID)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return nil, ErrConsentNotFound
		}
		return nil, pkgerrors.Wrap(err, "[Store.GetConsent] failed to get consent")
	}
	return c, nil
}

// ConsentCovers reports whether a stored, unexpired consent includes every requested scope.
func (s *Store) ConsentCovers(ctx context.Context, userID, clientID, tenantID string, requested []string) (bool, error) {
	c, err := s.GetConsent(ctx, userID, clientID, tenantID)
	if err == ErrConsentNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return c.Covers(requested, s.nowFunc()), nil
}

// GrantConsent upserts the consent for (user, client, tenant). Scopes from a still valid
// earlier consent are kept alongside the newly granted ones.
func (s *Store) GrantConsent(ctx context.Context, userID, clientID, tenantID string, scopes []string) (*Consent, error) {
	now := s.nowFunc()
	consent := &Consent{
		ID:        uuid.New().String(),
		UserID:    userID,
		ClientID:  clientID,
		TenantID:  tenantID,
		Scopes:    scopes,
		GrantedAt: now,
	}

	existing, err := s.GetConsent(ctx, userID, clientID, tenantID)
	switch {
	case err == nil:
		consent.ID = existing.ID
		if !existing.Expired(now) {
			consent.Scopes = mergeScopes(existing.Scopes, scopes)
		}
	case err != ErrConsentNotFound:
		return nil, err
	}

	if err := s.repo.UpsertConsent(ctx, consent); err != nil {
		return nil, pkgerrors.Wrap(err, "[Store.GrantConsent] failed to store consent")
	}
	return consent, nil
}

// Sweep removes expired codes and tokens.
func (s *Store) Sweep(ctx context.Context) (SweepResult, error) {
	s.revoked.Cleanup()
	res, err := s.repo.DeleteExpired(ctx, s.nowFunc())
	if err != nil {
		return res, pkgerrors.Wrap(err, "[Store.Sweep] failed to delete expired grants")
	}
	return res, nil
}

func mergeScopes(a, b []string) []string {
	merged := append([]string(nil), a...)
	for _, s := range b {
		if !utils.Contains(merged, s) {
			merged = append(merged, s)
		}
	}
	return merged
}
