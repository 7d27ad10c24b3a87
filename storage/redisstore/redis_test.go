package redisstore_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jrsteele09/go-sso-idp/clients"
	"github.com/jrsteele09/go-sso-idp/grants"
	"github.com/jrsteele09/go-sso-idp/internal/errors"
	"github.com/jrsteele09/go-sso-idp/internal/utils"
	"github.com/jrsteele09/go-sso-idp/sso"
	"github.com/jrsteele09/go-sso-idp/storage/redisstore"
	"github.com/jrsteele09/go-sso-idp/token"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

const keyPrefix = "test:"

type testFixture struct {
	mr       *miniredis.Miniredis
	store    *redisstore.Store
	registry *clients.Registry
	grants   *grants.Store
	sessions *sso.Store
	now      time.Time
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := &testFixture{
		mr:    mr,
		store: redisstore.New(client, keyPrefix),
		now:   time.Now().Truncate(time.Second),
	}
	nowFunc := func() time.Time { return f.now }
	codec := token.NewCodec(token.Config{SigningKey: "redis-test-key", Issuer: "https://id.test"}, token.WithNowFunc(nowFunc))
	f.registry = clients.NewRegistry(f.store, clients.WithNowFunc(nowFunc))
	f.grants = grants.NewStore(f.store, codec, grants.WithNowFunc(nowFunc))
	f.sessions = sso.NewStore(f.store, sso.WithNowFunc(nowFunc))
	return f
}

// TestOpen tests connecting through a config and failing fast on a dead address
func TestOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	store, err := redisstore.Open(context.Background(), redisstore.Config{Addr: mr.Addr(), KeyPrefix: keyPrefix})
	require.NoError(t, err)
	require.NoError(t, store.Ping(context.Background()))
	require.NoError(t, store.Close())

	addr := mr.Addr()
	mr.Close()
	_, err = redisstore.Open(context.Background(), redisstore.Config{Addr: addr})
	require.Error(t, err)
}

// TestClients tests the client registry on top of redis, including the persisted secret hash
func TestClients(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	created, secret, err := f.registry.Create(ctx, clients.NewClient{
		Name:          "Redis App",
		RedirectURIs:  []string{"https://app.test/cb"},
		AllowedScopes: []string{"openid"},
	})
	require.NoError(t, err)
	require.True(t, f.mr.Exists(keyPrefix+"client:"+created.ClientID))

	authed, err := f.registry.Authenticate(ctx, created.ClientID, secret)
	require.NoError(t, err)
	require.Equal(t, "Redis App", authed.Name)

	_, err = f.registry.Authenticate(ctx, created.ClientID, "wrong")
	require.ErrorIs(t, err, clients.ErrInvalidClientCredentials)

	err = f.store.Create(ctx, &clients.Client{ClientID: created.ClientID})
	require.ErrorIs(t, err, errors.ErrAlreadyExists)

	_, err = f.registry.Update(ctx, created.ClientID, clients.ClientUpdate{IsActive: utils.Ptr(false)})
	require.NoError(t, err)
	_, err = f.registry.Get(ctx, created.ClientID)
	require.ErrorIs(t, err, clients.ErrClientNotFound)

	_, _, err = f.registry.Create(ctx, clients.NewClient{
		Name:          "Second",
		RedirectURIs:  []string{"https://second.test/cb"},
		AllowedScopes: []string{"openid"},
	})
	require.NoError(t, err)

	all, err := f.store.List(ctx, clients.ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	active, err := f.store.List(ctx, clients.ListFilter{IsActive: utils.Ptr(true)})
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, "Second", active[0].Name)

	require.NoError(t, f.store.Delete(ctx, created.ClientID))
	require.ErrorIs(t, f.store.Delete(ctx, created.ClientID), errors.ErrNotFound)
	require.ErrorIs(t, f.store.Update(ctx, &clients.Client{ClientID: created.ClientID}), errors.ErrNotFound)
}

// TestGrants_CodeConsumedOnce tests that GETDEL lets exactly one concurrent consumer win
func TestGrants_CodeConsumedOnce(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	code, err := f.grants.IssueCode(ctx, grants.CodeRequest{UserID: "user-1", ClientID: "client-1", TenantID: "tenant-1", RedirectURI: "https://app.test/cb", Scope: "openid"})
	require.NoError(t, err)

	got, err := f.grants.GetCode(ctx, code.Code)
	require.NoError(t, err)
	require.Equal(t, "https://app.test/cb", got.RedirectURI)

	var wins int32
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if f.grants.ConsumeCode(ctx, code.Code) == nil {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, int32(1), wins)

	_, err = f.grants.GetCode(ctx, code.Code)
	require.ErrorIs(t, err, grants.ErrCodeNotFound)
}

// TestGrants_Revocation tests compare-and-set revocation of both token kinds
func TestGrants_Revocation(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	issued, err := f.grants.IssueTokens(ctx, grants.Grant{UserID: "user-1", ClientID: "client-1", TenantID: "tenant-1", Scope: "openid"}, time.Hour, 24*time.Hour)
	require.NoError(t, err)

	var wins int32
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if f.grants.RevokeRefreshToken(ctx, issued.RefreshToken.Token) == nil {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, int32(1), wins)

	rt, err := f.grants.GetRefreshToken(ctx, issued.RefreshToken.Token)
	require.NoError(t, err)
	require.NotNil(t, rt.RevokedAt)

	_, err = f.grants.ActiveAccessToken(ctx, issued.AccessToken.Token)
	require.NoError(t, err)
	require.NoError(t, f.grants.RevokeAccessToken(ctx, issued.AccessToken.Token))
	require.ErrorIs(t, f.grants.RevokeAccessToken(ctx, issued.AccessToken.Token), grants.ErrTokenNotFound)
	_, err = f.grants.ActiveAccessToken(ctx, issued.AccessToken.Token)
	require.ErrorIs(t, err, grants.ErrTokenInactive)
}

// TestGrants_ConsentAndSweep tests consent merging and the expiry sweep
func TestGrants_ConsentAndSweep(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	_, err := f.grants.GrantConsent(ctx, "user-1", "client-1", "tenant-1", []string{"openid"})
	require.NoError(t, err)
	_, err = f.grants.GrantConsent(ctx, "user-1", "client-1", "tenant-1", []string{"email"})
	require.NoError(t, err)
	covered, err := f.grants.ConsentCovers(ctx, "user-1", "client-1", "tenant-1", []string{"openid", "email"})
	require.NoError(t, err)
	require.True(t, covered)

	_, err = f.grants.IssueCode(ctx, grants.CodeRequest{UserID: "user-1", ClientID: "client-1", RedirectURI: "https://app.test/cb", Scope: "openid"})
	require.NoError(t, err)
	_, err = f.grants.IssueTokens(ctx, grants.Grant{UserID: "user-1", ClientID: "client-1", Scope: "openid"}, time.Hour, 24*time.Hour)
	require.NoError(t, err)

	res, err := f.grants.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, grants.SweepResult{}, res)

	f.now = f.now.Add(2 * time.Hour)
	res, err = f.grants.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, grants.SweepResult{Codes: 1, AccessTokens: 1}, res)

	f.now = f.now.Add(24 * time.Hour)
	res, err = f.grants.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, grants.SweepResult{RefreshTokens: 1}, res)

	covered, err = f.grants.ConsentCovers(ctx, "user-1", "client-1", "tenant-1", []string{"openid"})
	require.NoError(t, err)
	require.True(t, covered)
}

// TestSessions tests session lifecycle, connected apps and activity on redis
func TestSessions(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	session, err := f.sessions.Create(ctx, sso.CreateRequest{UserID: "user-1", TenantID: "tenant-1", UserAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) Chrome/120.0.0.0 Safari/537.36"})
	require.NoError(t, err)
	other, err := f.sessions.Create(ctx, sso.CreateRequest{UserID: "user-1", TenantID: "tenant-1"})
	require.NoError(t, err)

	byID, err := f.sessions.GetByID(ctx, session.ID)
	require.NoError(t, err)
	require.Equal(t, session.Token, byID.Token)
	require.Equal(t, "Chrome on macOS", byID.DeviceName)

	f.now = f.now.Add(time.Minute)
	require.NoError(t, f.sessions.Touch(ctx, session.Token))
	active, err := f.sessions.ListActive(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, active, 2)
	require.Equal(t, session.ID, active[0].ID)

	app, err := f.sessions.ConnectApp(ctx, session.ID, "client-1", "app-token", "https://app.test/logout")
	require.NoError(t, err)
	require.Equal(t, "https://app.test/logout", app.LogoutURL)
	f.now = f.now.Add(time.Minute)
	app, err = f.sessions.ConnectApp(ctx, session.ID, "client-1", "", "")
	require.NoError(t, err)
	require.Equal(t, "app-token", app.AppSessionToken)
	require.Equal(t, "https://app.test/logout", app.LogoutURL)
	require.True(t, f.now.Equal(app.LastSeenAt))

	apps, err := f.sessions.ConnectedApps(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, apps, 1)

	entries, err := f.sessions.Activity(ctx, session.ID, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, sso.ActivityAppConnect, entries[0].Type)
	require.Equal(t, sso.ActivityLogin, entries[1].Type)

	require.NoError(t, f.sessions.DisconnectApp(ctx, session.ID, "client-1"))
	require.NoError(t, f.sessions.DisconnectApp(ctx, session.ID, "client-1"))
	count, err := f.sessions.ActivityCount(ctx, session.ID)
	require.NoError(t, err)
	require.Equal(t, 3, count)

	require.NoError(t, f.sessions.Revoke(ctx, other.Token))
	_, err = f.sessions.Active(ctx, other.Token)
	require.ErrorIs(t, err, sso.ErrSessionExpired)

	n, err := f.sessions.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.False(t, f.mr.Exists(keyPrefix+"session:"+other.Token))
	require.False(t, f.mr.Exists(keyPrefix+"session_id:"+other.ID))
	_, err = f.sessions.Get(ctx, other.Token)
	require.ErrorIs(t, err, sso.ErrSessionNotFound)

	_, err = f.sessions.Get(ctx, session.Token)
	require.NoError(t, err)
}
