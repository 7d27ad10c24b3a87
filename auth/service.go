package auth

import (
	"context"
	"errors"
	"time"

	"github.com/jrsteele09/go-sso-idp/clients"
	"github.com/jrsteele09/go-sso-idp/grants"
	"github.com/jrsteele09/go-sso-idp/sso"
	"github.com/jrsteele09/go-sso-idp/tenants"
	"github.com/jrsteele09/go-sso-idp/token"
	"github.com/jrsteele09/go-sso-idp/users"
	"github.com/rs/zerolog/log"
)

const (
	defaultLoginURL   = "/login"
	defaultConsentURL = "/oauth/consent"
)

// Deps holds the collaborators of the AuthorizationService.
type Deps struct {
	Clients  *clients.Registry // Registered OAuth applications
	Grants   *grants.Store     // Codes, token pairs and consents
	Sessions *sso.Store        // SSO sessions and connected apps
	Users    users.Repo        // User directory
	Tenants  tenants.Repo      // Tenant directory
	Codec    *token.Codec      // Signs ID tokens and verifies bearer tokens
}

// AuthorizationService implements the authorization, token, introspection,
// revocation and userinfo endpoints.
type AuthorizationService struct {
	clients    *clients.Registry
	grants     *grants.Store
	sessions   *sso.Store
	users      users.Repo
	tenants    tenants.Repo
	codec      *token.Codec
	loginURL   string
	consentURL string
}

// AuthorizationServiceOption defines a function type to modify the AuthorizationService instance.
type AuthorizationServiceOption func(*AuthorizationService)

// WithLoginURL sets where unauthenticated users are sent by Authorize.
func WithLoginURL(loginURL string) AuthorizationServiceOption {
	return func(as *AuthorizationService) {
		if loginURL != "" {
			as.loginURL = loginURL
		}
	}
}

// WithConsentURL sets the consent screen Authorize hands off to.
func WithConsentURL(consentURL string) AuthorizationServiceOption {
	return func(as *AuthorizationService) {
		if consentURL != "" {
			as.consentURL = consentURL
		}
	}
}

func NewAuthorizationService(deps Deps, options ...AuthorizationServiceOption) (*AuthorizationService, error) {
	if deps.Clients == nil {
		return nil, errors.New("[NewAuthorizationService] Clients registry is required")
	}
	if deps.Grants == nil {
		return nil, errors.New("[NewAuthorizationService] Grants store is required")
	}
	if deps.Sessions == nil {
		return nil, errors.New("[NewAuthorizationService] Sessions store is required")
	}
	if deps.Users == nil {
		return nil, errors.New("[NewAuthorizationService] Users repo is required")
	}
	if deps.Tenants == nil {
		return nil, errors.New("[NewAuthorizationService] Tenants repo is required")
	}
	if deps.Codec == nil {
		return nil, errors.New("[NewAuthorizationService] Codec is required")
	}

	as := &AuthorizationService{
		clients:    deps.Clients,
		grants:     deps.Grants,
		sessions:   deps.Sessions,
		users:      deps.Users,
		tenants:    deps.Tenants,
		codec:      deps.Codec,
		loginURL:   defaultLoginURL,
		consentURL: defaultConsentURL,
	}
	for _, opt := range options {
		opt(as)
	}
	return as, nil
}

// SweepResult counts what an on-demand cleanup removed.
type SweepResult struct {
	grants.SweepResult
	Sessions int `json:"sessions"`
}

// Sweep deletes expired codes, tokens and SSO sessions. It is never scheduled internally.
func (as *AuthorizationService) Sweep(ctx context.Context) (SweepResult, error) {
	start := time.Now()
	res := SweepResult{}
	g, err := as.grants.Sweep(ctx)
	res.SweepResult = g
	if err != nil {
		return res, err
	}
	n, err := as.sessions.Sweep(ctx)
	res.Sessions = n
	if err != nil {
		return res, err
	}
	log.Info().
		Int("codes", g.Codes).
		Int("access_tokens", g.AccessTokens).
		Int("refresh_tokens", g.RefreshTokens).
		Int("sessions", n).
		Dur("took", time.Since(start)).
		Msg("expired grants swept")
	return res, nil
}
