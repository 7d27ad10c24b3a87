package server

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/jrsteele09/go-sso-idp/clients"
	"github.com/jrsteele09/go-sso-idp/internal/config"
	"github.com/jrsteele09/go-sso-idp/internal/errors"
	"github.com/jrsteele09/go-sso-idp/oauth2"
	"github.com/jrsteele09/go-sso-idp/tenants"
	"github.com/jrsteele09/go-sso-idp/users"
	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// BootstrapRepos are the stores seeded on startup.
type BootstrapRepos struct {
	Users   users.Repo
	Tenants tenants.Repo
	Clients *clients.Registry
}

// BootstrapResult reports what a bootstrap run created. Secrets are only set when they were generated.
type BootstrapResult struct {
	TenantCreated     bool
	UserCreated       bool
	GeneratedPassword string
	ClientCreated     bool
	ClientSecret      string
}

// BootstrapSystem seeds a tenant, an optional first user and an optional first client.
// Existing records are left untouched so it is safe to run on every start.
func BootstrapSystem(ctx context.Context, cfg config.BootstrapConfig, repos BootstrapRepos) (BootstrapResult, error) {
	var res BootstrapResult

	tenantID := cfg.GetBootstrapTenantID()
	created, err := bootstrapTenant(ctx, repos.Tenants, tenantID, cfg.GetBootstrapTenantName())
	if err != nil {
		return res, err
	}
	res.TenantCreated = created

	if email := cfg.GetBootstrapUserEmail(); email != "" {
		res.UserCreated, res.GeneratedPassword, err = bootstrapUser(ctx, repos.Users, tenantID, email, cfg.GetBootstrapUserPassword())
		if err != nil {
			return res, err
		}
	}

	if clientID := cfg.GetBootstrapClientID(); clientID != "" {
		res.ClientCreated, res.ClientSecret, err = bootstrapClient(ctx, repos.Clients, clientID, cfg.GetBootstrapClientSecret(), cfg.GetBootstrapClientRedirectURIs())
		if err != nil {
			return res, err
		}
	}

	if res.GeneratedPassword != "" {
		log.Warn().Str("email", cfg.GetBootstrapUserEmail()).Str("password", res.GeneratedPassword).
			Msg("generated bootstrap password, save it now as it will not be displayed again")
	}
	if res.ClientCreated && cfg.GetBootstrapClientSecret() == "" {
		log.Warn().Str("client_id", cfg.GetBootstrapClientID()).Str("client_secret", res.ClientSecret).
			Msg("generated bootstrap client secret, save it now as it will not be displayed again")
	}
	return res, nil
}

func bootstrapTenant(ctx context.Context, repo tenants.Repo, tenantID, name string) (bool, error) {
	if _, err := repo.Get(ctx, tenantID); err == nil {
		log.Debug().Str("tenant_id", tenantID).Msg("bootstrap tenant already exists")
		return false, nil
	} else if !errors.Is(err, errors.ErrNotFound) {
		return false, pkgerrors.Wrap(err, "[BootstrapSystem] failed to get tenant")
	}

	tenant := &tenants.Tenant{ID: tenantID, Name: name, IsActive: true}
	if err := repo.Upsert(ctx, tenant); err != nil {
		return false, pkgerrors.Wrap(err, "[BootstrapSystem] failed to create tenant")
	}
	log.Info().Str("tenant_id", tenantID).Msg("created bootstrap tenant")
	return true, nil
}

func bootstrapUser(ctx context.Context, repo users.Repo, tenantID, email, password string) (created bool, generated string, err error) {
	if _, err := repo.GetByEmail(ctx, email); err == nil {
		log.Debug().Str("email", email).Msg("bootstrap user already exists")
		return false, "", nil
	} else if !errors.Is(err, errors.ErrNotFound) {
		return false, "", pkgerrors.Wrap(err, "[BootstrapSystem] failed to get user")
	}

	if password == "" {
		b := make([]byte, 16)
		if _, err := rand.Read(b); err != nil {
			return false, "", pkgerrors.Wrap(err, "[BootstrapSystem] failed to generate password")
		}
		password = base64.RawURLEncoding.EncodeToString(b)
		generated = password
	}
	hash, err := users.HashPassword(password)
	if err != nil {
		return false, "", pkgerrors.Wrap(err, "[BootstrapSystem] failed to hash password")
	}

	now := time.Now()
	user := &users.User{
		Email:         email,
		EmailVerified: true,
		PasswordHash:  hash,
		UpdatedAt:     now,
		Tenants: []users.TenantMembership{{
			TenantID: tenantID,
			Role:     &users.Role{ID: "admin", Name: "Administrator", Permissions: []string{"*"}},
			IsActive: true,
			JoinedAt: now,
		}},
	}
	if err := repo.Upsert(ctx, user); err != nil {
		return false, "", pkgerrors.Wrap(err, "[BootstrapSystem] failed to create user")
	}
	log.Info().Str("email", email).Str("tenant_id", tenantID).Msg("created bootstrap user")
	return true, generated, nil
}

func bootstrapClient(ctx context.Context, registry *clients.Registry, clientID, secret string, redirectURIs []string) (bool, string, error) {
	if _, err := registry.Lookup(ctx, clientID); err == nil {
		log.Debug().Str("client_id", clientID).Msg("bootstrap client already exists")
		return false, "", nil
	} else if !errors.Is(err, clients.ErrClientNotFound) {
		return false, "", pkgerrors.Wrap(err, "[BootstrapSystem] failed to get client")
	}

	client, plain, err := registry.Create(ctx, clients.NewClient{
		ClientID:      clientID,
		ClientSecret:  secret,
		Name:          clientID,
		RedirectURIs:  redirectURIs,
		AllowedScopes: []string{oauth2.ScopeOpenID, oauth2.ScopeProfile, oauth2.ScopeEmail},
		IsFirstParty:  true,
	})
	if err != nil {
		return false, "", pkgerrors.Wrap(err, "[BootstrapSystem] failed to create client")
	}
	log.Info().Str("client_id", client.ClientID).Strs("redirect_uris", client.RedirectURIs).Msg("created bootstrap client")
	return true, plain, nil
}
