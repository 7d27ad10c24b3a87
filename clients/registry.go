package clients

import (
	"context"
	"strings"
	"time"

	"github.com/jrsteele09/go-sso-idp/internal/errors"
	"github.com/jrsteele09/go-sso-idp/oauth2"
	"github.com/jrsteele09/go-sso-idp/token"
	pkgerrors "github.com/pkg/errors"
)

const clientIDPrefix = "client_"

// NewClient describes a client to register. ClientID and ClientSecret are generated when empty.
type NewClient struct {
	ClientID          string
	ClientSecret      string
	Name              string
	Description       string
	LogoURL           string
	HomepageURL       string
	LogoutURL         string
	RedirectURIs      []string
	AllowedScopes     []string
	AllowedGrantTypes []oauth2.GrantType
	AccessTokenTTL    time.Duration
	RefreshTokenTTL   time.Duration
	IsFirstParty      bool
}

// ClientUpdate is a partial update. Nil fields are left unchanged.
type ClientUpdate struct {
	Name              *string
	Description       *string
	LogoURL           *string
	HomepageURL       *string
	LogoutURL         *string
	RedirectURIs      *[]string
	AllowedScopes     *[]string
	AllowedGrantTypes *[]oauth2.GrantType
	AccessTokenTTL    *time.Duration
	RefreshTokenTTL   *time.Duration
	IsActive          *bool
	IsFirstParty      *bool
}

// Registry manages registered clients on top of a Repo.
type Registry struct {
	repo    Repo
	nowFunc func() time.Time
}

type RegistryOption func(*Registry)

func WithNowFunc(now func() time.Time) RegistryOption {
	return func(r *Registry) {
		r.nowFunc = now
	}
}

func NewRegistry(repo Repo, options ...RegistryOption) *Registry {
	r := &Registry{repo: repo, nowFunc: time.Now}
	for _, opt := range options {
		opt(r)
	}
	return r
}

// Get returns an active client without its secret hash.
func (r *Registry) Get(ctx context.Context, clientID string) (*Client, error) {
	client, err := r.active(ctx, clientID)
	if err != nil {
		return nil, err
	}
	return redact(client), nil
}

// Lookup returns a client regardless of IsActive, for administration.
func (r *Registry) Lookup(ctx context.Context, clientID string) (*Client, error) {
	client, err := r.repo.Get(ctx, clientID)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return nil, ErrClientNotFound
		}
		return nil, pkgerrors.Wrap(err, "[Registry.Lookup] failed to get client")
	}
	return redact(client), nil
}

// Authenticate verifies a client_id/client_secret pair against the stored hash.
// Unknown, inactive and wrong-secret clients are indistinguishable to the caller.
func (r *Registry) Authenticate(ctx context.Context, clientID, secret string) (*Client, error) {
	if clientID == "" || secret == "" {
		return nil, ErrInvalidClientCredentials
	}
	client, err := r.active(ctx, clientID)
	if err != nil {
		if err == ErrClientNotFound {
			return nil, ErrInvalidClientCredentials
		}
		return nil, err
	}
	if !token.VerifySecret(secret, client.SecretHash) {
		return nil, ErrInvalidClientCredentials
	}
	return redact(client), nil
}

// Create registers a client and returns it with the plain secret. The secret is not recoverable afterwards.
func (r *Registry) Create(ctx context.Context, nc NewClient) (*Client, string, error) {
	if err := validateNewClient(nc); err != nil {
		return nil, "", err
	}

	clientID := nc.ClientID
	if clientID == "" {
		id, err := token.GenerateOpaqueToken(token.ClientIDBytes)
		if err != nil {
			return nil, "", pkgerrors.Wrap(err, "[Registry.Create] failed to generate client id")
		}
		clientID = clientIDPrefix + id
	}
	secret := nc.ClientSecret
	if secret == "" {
		s, err := token.GenerateOpaqueToken(token.ClientSecretBytes)
		if err != nil {
			return nil, "", pkgerrors.Wrap(err, "[Registry.Create] failed to generate client secret")
		}
		secret = s
	}

	grants := nc.AllowedGrantTypes
	if len(grants) == 0 {
		grants = []oauth2.GrantType{oauth2.AuthorizationCodeGrant, oauth2.RefreshTokenGrant}
	}
	accessTTL := nc.AccessTokenTTL
	if accessTTL <= 0 {
		accessTTL = DefaultAccessTokenTTL
	}
	refreshTTL := nc.RefreshTokenTTL
	if refreshTTL <= 0 {
		refreshTTL = DefaultRefreshTokenTTL
	}

	now := r.nowFunc()
	client := &Client{
		ClientID:          clientID,
		SecretHash:        token.HashSecret(secret),
		Name:              strings.TrimSpace(nc.Name),
		Description:       nc.Description,
		LogoURL:           nc.LogoURL,
		HomepageURL:       nc.HomepageURL,
		LogoutURL:         nc.LogoutURL,
		RedirectURIs:      nc.RedirectURIs,
		AllowedScopes:     nc.AllowedScopes,
		AllowedGrantTypes: grants,
		AccessTokenTTL:    accessTTL,
		RefreshTokenTTL:   refreshTTL,
		IsActive:          true,
		IsFirstParty:      nc.IsFirstParty,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := r.repo.Create(ctx, client); err != nil {
		return nil, "", pkgerrors.Wrap(err, "[Registry.Create] failed to store client")
	}
	return redact(client), secret, nil
}

func (r *Registry) Update(ctx context.Context, clientID string, u ClientUpdate) (*Client, error) {
	client, err := r.repo.Get(ctx, clientID)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return nil, ErrClientNotFound
		}
		return nil, pkgerrors.Wrap(err, "[Registry.Update] failed to get client")
	}

	applyUpdate(client, u)
	if client.Name == "" || len(client.RedirectURIs) == 0 || len(client.AllowedScopes) == 0 {
		return nil, pkgerrors.Wrap(ErrInvalidClient, "name, redirect_uris and allowed_scopes are required")
	}
	for _, g := range client.AllowedGrantTypes {
		if !g.Supported() {
			return nil, pkgerrors.Wrapf(ErrInvalidClient, "unsupported grant type %q", g)
		}
	}
	client.UpdatedAt = r.nowFunc()

	if err := r.repo.Update(ctx, client); err != nil {
		return nil, pkgerrors.Wrap(err, "[Registry.Update] failed to store client")
	}
	return redact(client), nil
}

// RotateSecret replaces the client secret and returns the new plain value.
func (r *Registry) RotateSecret(ctx context.Context, clientID string) (string, error) {
	client, err := r.repo.Get(ctx, clientID)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return "", ErrClientNotFound
		}
		return "", pkgerrors.Wrap(err, "[Registry.RotateSecret] failed to get client")
	}
	secret, err := token.GenerateOpaqueToken(token.ClientSecretBytes)
	if err != nil {
		return "", pkgerrors.Wrap(err, "[Registry.RotateSecret] failed to generate secret")
	}
	client.SecretHash = token.HashSecret(secret)
	client.UpdatedAt = r.nowFunc()
	if err := r.repo.Update(ctx, client); err != nil {
		return "", pkgerrors.Wrap(err, "[Registry.RotateSecret] failed to store client")
	}
	return secret, nil
}

func (r *Registry) Delete(ctx context.Context, clientID string) error {
	if err := r.repo.Delete(ctx, clientID); err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return ErrClientNotFound
		}
		return pkgerrors.Wrap(err, "[Registry.Delete] failed to delete client")
	}
	return nil
}

func (r *Registry) List(ctx context.Context, filter ListFilter) ([]*Client, error) {
	list, err := r.repo.List(ctx, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "[Registry.List] failed to list clients")
	}
	result := make([]*Client, 0, len(list))
	for _, c := range list {
		result = append(result, redact(c))
	}
	return result, nil
}

func (r *Registry) active(ctx context.Context, clientID string) (*Client, error) {
	if clientID == "" {
		return nil, ErrClientNotFound
	}
	client, err := r.repo.Get(ctx, clientID)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return nil, ErrClientNotFound
		}
		return nil, pkgerrors.Wrap(err, "[Registry] failed to get client")
	}
	if !client.IsActive {
		return nil, ErrClientNotFound
	}
	return client, nil
}

func redact(c *Client) *Client {
	cp := c.Clone()
	cp.SecretHash = ""
	return cp
}

func validateNewClient(nc NewClient) error {
	if strings.TrimSpace(nc.Name) == "" || len(nc.RedirectURIs) == 0 || len(nc.AllowedScopes) == 0 {
		return pkgerrors.Wrap(ErrInvalidClient, "name, redirect_uris and allowed_scopes are required")
	}
	for _, g := range nc.AllowedGrantTypes {
		if !g.Supported() {
			return pkgerrors.Wrapf(ErrInvalidClient, "unsupported grant type %q", g)
		}
	}
	return nil
}

func applyUpdate(c *Client, u ClientUpdate) {
	if u.Name != nil {
		c.Name = strings.TrimSpace(*u.Name)
	}
	if u.Description != nil {
		c.Description = *u.Description
	}
	if u.LogoURL != nil {
		c.LogoURL = *u.LogoURL
	}
	if u.HomepageURL != nil {
		c.HomepageURL = *u.HomepageURL
	}
	if u.LogoutURL != nil {
		c.LogoutURL = *u.LogoutURL
	}
	if u.RedirectURIs != nil {
		c.RedirectURIs = *u.RedirectURIs
	}
	if u.AllowedScopes != nil {
		c.AllowedScopes = *u.AllowedScopes
	}
	if u.AllowedGrantTypes != nil {
		c.AllowedGrantTypes = *u.AllowedGrantTypes
	}
	if u.AccessTokenTTL != nil && *u.AccessTokenTTL > 0 {
		c.AccessTokenTTL = *u.AccessTokenTTL
	}
	if u.RefreshTokenTTL != nil && *u.RefreshTokenTTL > 0 {
		c.RefreshTokenTTL = *u.RefreshTokenTTL
	}
	if u.IsActive != nil {
		c.IsActive = *u.IsActive
	}
	if u.IsFirstParty != nil {
		c.IsFirstParty = *u.IsFirstParty
	}
}
