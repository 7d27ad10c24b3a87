// Package rp is a relying party for this identity provider: it signs users in with the
// authorization code flow and PKCE, verifies their ID tokens and keeps their tokens fresh.
// It needs the provider's HS256 signing key, which can mint tokens for any client, so it
// is only for first-party apps run by the same operator as the provider.
package rp

import (
	"context"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
	"golang.org/x/oauth2"
)

// Config describes the registered client.
type Config struct {
	Issuer       string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
	// SigningKey is the HS256 secret ID tokens are signed with.
	SigningKey string
	// HTTPClient is used for discovery, token and userinfo calls. Defaults to http.DefaultClient.
	HTTPClient *http.Client
}

// Identity is the signed-in user as described by the ID token.
type Identity struct {
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
	TenantID      string `json:"tenant_id"`
	TenantName    string `json:"tenant_name"`
	Role          string `json:"role"`
}

// Session is the result of a completed sign in.
type Session struct {
	Token    *oauth2.Token
	IDToken  *oidc.IDToken
	Identity Identity
	// SSOToken is the identity provider session the sign in belongs to, when known.
	SSOToken string
}

// AuthRequest is a pending sign in. State and Verifier must be kept until the callback.
type AuthRequest struct {
	URL      string
	State    string
	Verifier string
}

type Client struct {
	oauth      *oauth2.Config
	provider   *oidc.Provider
	verifier   *oidc.IDTokenVerifier
	httpClient *http.Client
}

// New discovers the provider's endpoints and builds the client.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Issuer == "" {
		return nil, pkgerrors.New("[rp.New] issuer is required")
	}
	if cfg.ClientID == "" {
		return nil, pkgerrors.New("[rp.New] client ID is required")
	}
	if cfg.SigningKey == "" {
		return nil, pkgerrors.New("[rp.New] signing key is required")
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = []string{oidc.ScopeOpenID, "profile", "email"}
	}

	provider, err := oidc.NewProvider(oidc.ClientContext(ctx, cfg.HTTPClient), strings.TrimSuffix(cfg.Issuer, "/"))
	if err != nil {
		return nil, pkgerrors.Wrap(err, "[rp.New] discovery failed")
	}

	endpoint := provider.Endpoint()
	endpoint.AuthStyle = oauth2.AuthStyleInHeader

	return &Client{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     endpoint,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
		},
		provider: provider,
		verifier: oidc.NewVerifier(strings.TrimSuffix(cfg.Issuer, "/"), NewHMACKeySet(cfg.SigningKey), &oidc.Config{
			ClientID:             cfg.ClientID,
			SupportedSigningAlgs: []string{"HS256"},
		}),
		httpClient: cfg.HTTPClient,
	}, nil
}

// AuthCodeURL starts a sign in with a fresh state and an S256 PKCE challenge.
func (c *Client) AuthCodeURL() *AuthRequest {
	state := uuid.NewString()
	verifier := oauth2.GenerateVerifier()
	return &AuthRequest{
		URL:      c.oauth.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier)),
		State:    state,
		Verifier: verifier,
	}
}

// Exchange redeems the authorization code and verifies the ID token that comes with it.
// A non-empty ssoToken ties the sign in to the provider's session so that logging out of
// the provider reaches this app.
func (c *Client) Exchange(ctx context.Context, code, verifier, ssoToken string) (*Session, error) {
	opts := []oauth2.AuthCodeOption{oauth2.VerifierOption(verifier)}
	if ssoToken != "" {
		opts = append(opts, oauth2.SetAuthURLParam("session_token", ssoToken))
	}

	token, err := c.oauth.Exchange(c.context(ctx), code, opts...)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "[Client.Exchange] token exchange failed")
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, pkgerrors.New("[Client.Exchange] no id_token in token response")
	}
	idToken, err := c.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "[Client.Exchange] id token verification failed")
	}

	var identity Identity
	if err := idToken.Claims(&identity); err != nil {
		return nil, pkgerrors.Wrap(err, "[Client.Exchange] failed to read claims")
	}

	return &Session{
		Token:    token,
		IDToken:  idToken,
		Identity: identity,
		SSOToken: ssoToken,
	}, nil
}

// Refresh trades the refresh token for a new pair. The provider rotates refresh tokens,
// so the old one is spent once this returns.
func (c *Client) Refresh(ctx context.Context, token *oauth2.Token) (*oauth2.Token, error) {
	if token == nil || token.RefreshToken == "" {
		return nil, pkgerrors.New("[Client.Refresh] no refresh token")
	}
	// Only the refresh token is carried over so the source always calls the token endpoint.
	fresh, err := c.oauth.TokenSource(c.context(ctx), &oauth2.Token{RefreshToken: token.RefreshToken}).Token()
	if err != nil {
		return nil, pkgerrors.Wrap(err, "[Client.Refresh] refresh failed")
	}
	return fresh, nil
}

// UserInfo fetches the user's claims with the access token.
func (c *Client) UserInfo(ctx context.Context, token *oauth2.Token) (*oidc.UserInfo, error) {
	info, err := c.provider.UserInfo(oidc.ClientContext(ctx, c.httpClient), oauth2.StaticTokenSource(token))
	if err != nil {
		return nil, pkgerrors.Wrap(err, "[Client.UserInfo]")
	}
	return info, nil
}

func (c *Client) context(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}
