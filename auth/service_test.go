package auth_test

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/jrsteele09/go-sso-idp/auth"
	"github.com/jrsteele09/go-sso-idp/clients"
	fakeclientrepo "github.com/jrsteele09/go-sso-idp/clients/fakerepo"
	"github.com/jrsteele09/go-sso-idp/grants"
	grantrepofake "github.com/jrsteele09/go-sso-idp/grants/repofake"
	"github.com/jrsteele09/go-sso-idp/oauth2"
	"github.com/jrsteele09/go-sso-idp/sso"
	ssorepofake "github.com/jrsteele09/go-sso-idp/sso/repofake"
	"github.com/jrsteele09/go-sso-idp/tenants"
	tenantrepofakes "github.com/jrsteele09/go-sso-idp/tenants/repofakes"
	"github.com/jrsteele09/go-sso-idp/token"
	"github.com/jrsteele09/go-sso-idp/users"
	fakeuserrepo "github.com/jrsteele09/go-sso-idp/users/repofake"
	"github.com/stretchr/testify/require"
)

const (
	signingKey       = "auth-test-signing-key"
	issuer           = "https://id.test"
	testClientID     = "client_app"
	testClientSecret = "app-secret"
	otherClientID    = "client_other"
	otherSecret      = "other-secret"
	testRedirectURI  = "https://app.test/cb"
	testTenantID     = "tenant-1"
	otherTenantID    = "tenant-2"
	testUserEmail    = "jane@example.com"
	testUserPassword = "Passw0rdOK"
	testState        = "xyz-state"
	testVerifier     = "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	testChallenge    = "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"
)

type testFixture struct {
	now      time.Time
	registry *clients.Registry
	grants   *grants.Store
	sessions *sso.Store
	codec    *token.Codec
	users    *fakeuserrepo.FakeUserRepo
	service  *auth.AuthorizationService
	user     *users.User
	session  *sso.Session
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	ctx := context.Background()
	f := &testFixture{now: time.Now().Truncate(time.Second)}
	nowFunc := func() time.Time { return f.now }

	f.codec = token.NewCodec(token.Config{SigningKey: signingKey, Issuer: issuer}, token.WithNowFunc(nowFunc))
	f.registry = clients.NewRegistry(fakeclientrepo.NewFakeClientRepo(), clients.WithNowFunc(nowFunc))
	f.grants = grants.NewStore(grantrepofake.NewFakeGrantRepo(), f.codec, grants.WithNowFunc(nowFunc))
	f.sessions = sso.NewStore(ssorepofake.NewFakeSSORepo(), sso.WithNowFunc(nowFunc))
	f.users = fakeuserrepo.NewFakeUserRepo()
	tenantRepo := tenantrepofakes.NewFakeTenantRepo()

	require.NoError(t, tenantRepo.Upsert(ctx, &tenants.Tenant{ID: testTenantID, Name: "Acme", IsActive: true}))
	require.NoError(t, tenantRepo.Upsert(ctx, &tenants.Tenant{ID: otherTenantID, Name: "Globex", IsActive: true}))

	_, _, err := f.registry.Create(ctx, clients.NewClient{
		ClientID:      testClientID,
		ClientSecret:  testClientSecret,
		Name:          "Test App",
		RedirectURIs:  []string{testRedirectURI},
		AllowedScopes: []string{"openid", "profile", "email", "phone"},
		LogoutURL:     "https://app.test/logout",
	})
	require.NoError(t, err)
	_, _, err = f.registry.Create(ctx, clients.NewClient{
		ClientID:      otherClientID,
		ClientSecret:  otherSecret,
		Name:          "Other App",
		RedirectURIs:  []string{"https://other.test/cb"},
		AllowedScopes: []string{"openid"},
	})
	require.NoError(t, err)

	hash, err := users.HashPassword(testUserPassword)
	require.NoError(t, err)
	f.user = &users.User{
		ID:            "user-1",
		Email:         testUserEmail,
		EmailVerified: true,
		PasswordHash:  hash,
		FullName:      "Jane Doe",
		AvatarURL:     "https://cdn.test/jane.png",
		Phone:         "+15550100",
		UpdatedAt:     f.now.Add(-time.Hour),
		Tenants: []users.TenantMembership{
			{TenantID: testTenantID, IsActive: true, Role: &users.Role{ID: "r1", Name: "admin", Permissions: []string{"users:read", "users:write"}}},
			{TenantID: otherTenantID, IsActive: false},
		},
	}
	require.NoError(t, f.users.Upsert(ctx, f.user))

	f.service, err = auth.NewAuthorizationService(auth.Deps{
		Clients:  f.registry,
		Grants:   f.grants,
		Sessions: f.sessions,
		Users:    f.users,
		Tenants:  tenantRepo,
		Codec:    f.codec,
	}, auth.WithLoginURL("https://id.test/login"), auth.WithConsentURL("https://id.test/consent"))
	require.NoError(t, err)

	f.session, err = f.sessions.Create(ctx, sso.CreateRequest{UserID: f.user.ID, TenantID: testTenantID})
	require.NoError(t, err)
	return f
}

func authRequest(scope string) oauth2.AuthorizationRequest {
	return oauth2.AuthorizationRequest{
		ResponseType: oauth2.CodeResponseType,
		ClientID:     testClientID,
		RedirectURI:  testRedirectURI,
		Scope:        scope,
		State:        testState,
	}
}

// approve runs the consent approval and returns the code from the redirect.
func (f *testFixture) approve(t *testing.T, req oauth2.AuthorizationRequest) string {
	t.Helper()
	res, err := f.service.Approve(context.Background(), req, f.session.Token)
	require.NoError(t, err)
	require.Equal(t, auth.ActionRedirect, res.Action)
	u, err := url.Parse(res.Location)
	require.NoError(t, err)
	require.Equal(t, testState, u.Query().Get("state"))
	code := u.Query().Get("code")
	require.NotEmpty(t, code)
	return code
}

func (f *testFixture) exchange(code string) (*oauth2.TokenResponse, error) {
	return f.service.Token(context.Background(), oauth2.TokenRequest{
		GrantType:    oauth2.AuthorizationCodeGrant,
		ClientID:     testClientID,
		ClientSecret: testClientSecret,
		Code:         code,
		RedirectURI:  testRedirectURI,
		SessionToken: f.session.Token,
	})
}

func (f *testFixture) tokens(t *testing.T, scope string) *oauth2.TokenResponse {
	t.Helper()
	resp, err := f.exchange(f.approve(t, authRequest(scope)))
	require.NoError(t, err)
	return resp
}

func requireOAuthError(t *testing.T, err error, code oauth2.ErrorCode, status int) {
	t.Helper()
	require.Error(t, err)
	oerr, ok := err.(*oauth2.Error)
	require.True(t, ok, "expected *oauth2.Error, got %T", err)
	require.Equal(t, code, oerr.Code)
	require.Equal(t, status, oerr.Status)
}

// TestNewAuthorizationService tests that every dependency is required
func TestNewAuthorizationService(t *testing.T) {
	f := setupTestFixture(t)
	full := auth.Deps{
		Clients:  f.registry,
		Grants:   f.grants,
		Sessions: f.sessions,
		Users:    f.users,
		Tenants:  tenantrepofakes.NewFakeTenantRepo(),
		Codec:    f.codec,
	}

	tests := []struct {
		name   string
		modify func(d *auth.Deps)
	}{
		{name: "clients", modify: func(d *auth.Deps) { d.Clients = nil }},
		{name: "grants", modify: func(d *auth.Deps) { d.Grants = nil }},
		{name: "sessions", modify: func(d *auth.Deps) { d.Sessions = nil }},
		{name: "users", modify: func(d *auth.Deps) { d.Users = nil }},
		{name: "tenants", modify: func(d *auth.Deps) { d.Tenants = nil }},
		{name: "codec", modify: func(d *auth.Deps) { d.Codec = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := full
			tt.modify(&deps)
			_, err := auth.NewAuthorizationService(deps)
			require.Error(t, err)
		})
	}

	_, err := auth.NewAuthorizationService(full)
	require.NoError(t, err)
}

// TestLogin tests password login and tenant selection
func TestLogin(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	session, err := f.service.Login(ctx, auth.LoginRequest{Email: "JANE@example.com", Password: testUserPassword, RememberMe: true})
	require.NoError(t, err)
	require.Equal(t, f.user.ID, session.UserID)
	require.Equal(t, testTenantID, session.TenantID)
	require.True(t, session.RememberMe)

	_, err = f.service.Login(ctx, auth.LoginRequest{Email: testUserEmail, Password: "wrong"})
	require.ErrorIs(t, err, auth.ErrInvalidCredentials)

	_, err = f.service.Login(ctx, auth.LoginRequest{Email: "nobody@example.com", Password: testUserPassword})
	require.ErrorIs(t, err, auth.ErrInvalidCredentials)

	_, err = f.service.Login(ctx, auth.LoginRequest{Email: testUserEmail, Password: testUserPassword, TenantID: otherTenantID})
	require.ErrorIs(t, err, auth.ErrNoTenantMembership)
}
