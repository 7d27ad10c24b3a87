package server_test

import (
	"context"
	"testing"

	"github.com/jrsteele09/go-sso-idp/clients"
	fakeclientrepo "github.com/jrsteele09/go-sso-idp/clients/fakerepo"
	"github.com/jrsteele09/go-sso-idp/internal/config"
	"github.com/jrsteele09/go-sso-idp/server"
	tenantrepofakes "github.com/jrsteele09/go-sso-idp/tenants/repofakes"
	fakeuserrepo "github.com/jrsteele09/go-sso-idp/users/repofake"
	"github.com/stretchr/testify/require"
)

// TestBootstrapSystem tests seeding from the environment and that a second run changes nothing
func TestBootstrapSystem(t *testing.T) {
	t.Setenv("BOOTSTRAP_TENANT_ID", "acme")
	t.Setenv("BOOTSTRAP_TENANT_NAME", "Acme")
	t.Setenv("BOOTSTRAP_USER_EMAIL", "owner@acme.test")
	t.Setenv("BOOTSTRAP_USER_PASSWORD", "")
	t.Setenv("BOOTSTRAP_CLIENT_ID", "client_portal")
	t.Setenv("BOOTSTRAP_CLIENT_SECRET", "portal-secret")
	t.Setenv("BOOTSTRAP_CLIENT_REDIRECT_URIS", "https://portal.test/cb, https://portal.test/alt")

	ctx := context.Background()
	userRepo := fakeuserrepo.NewFakeUserRepo()
	tenantRepo := tenantrepofakes.NewFakeTenantRepo()
	registry := clients.NewRegistry(fakeclientrepo.NewFakeClientRepo())
	repos := server.BootstrapRepos{Users: userRepo, Tenants: tenantRepo, Clients: registry}

	res, err := server.BootstrapSystem(ctx, config.New(), repos)
	require.NoError(t, err)
	require.True(t, res.TenantCreated)
	require.True(t, res.UserCreated)
	require.NotEmpty(t, res.GeneratedPassword)
	require.True(t, res.ClientCreated)
	require.Equal(t, "portal-secret", res.ClientSecret)

	tenant, err := tenantRepo.Get(ctx, "acme")
	require.NoError(t, err)
	require.Equal(t, "Acme", tenant.Name)

	user, err := userRepo.GetByEmail(ctx, "owner@acme.test")
	require.NoError(t, err)
	require.True(t, user.Authenticate(res.GeneratedPassword))
	require.NotNil(t, user.ActiveMembership("acme"))

	client, err := registry.Authenticate(ctx, "client_portal", "portal-secret")
	require.NoError(t, err)
	require.Equal(t, []string{"https://portal.test/cb", "https://portal.test/alt"}, client.RedirectURIs)

	again, err := server.BootstrapSystem(ctx, config.New(), repos)
	require.NoError(t, err)
	require.Equal(t, server.BootstrapResult{}, again)
}
