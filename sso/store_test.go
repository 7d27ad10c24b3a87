package sso_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/jrsteele09/go-sso-idp/sso"
	ssorepofake "github.com/jrsteele09/go-sso-idp/sso/repofake"
	"github.com/stretchr/testify/require"
)

const chromeMac = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.6099.109 Safari/537.36"

type testFixture struct {
	repo  *ssorepofake.FakeSSORepo
	store *sso.Store
	now   time.Time
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	f := &testFixture{
		repo: ssorepofake.NewFakeSSORepo(),
		now:  time.Now().Truncate(time.Second),
	}
	f.store = sso.NewStore(f.repo, sso.WithNowFunc(func() time.Time { return f.now }))
	return f
}

func (f *testFixture) createSession(t *testing.T, userID string, rememberMe bool) *sso.Session {
	t.Helper()
	session, err := f.store.Create(context.Background(), sso.CreateRequest{
		UserID:     userID,
		TenantID:   "tenant-1",
		IPAddress:  "203.0.113.7",
		UserAgent:  chromeMac,
		RememberMe: rememberMe,
	})
	require.NoError(t, err)
	return session
}

// TestStore_Create tests token format, TTL selection, device detection and the login activity
func TestStore_Create(t *testing.T) {
	tests := []struct {
		name       string
		rememberMe bool
		ttl        time.Duration
	}{
		{name: "default ttl", rememberMe: false, ttl: 24 * time.Hour},
		{name: "remember me ttl", rememberMe: true, ttl: 30 * 24 * time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupTestFixture(t)
			ctx := context.Background()
			session := f.createSession(t, "user-1", tt.rememberMe)

			require.True(t, strings.HasPrefix(session.Token, sso.TokenPrefix))
			require.Len(t, session.Token, 52)
			require.True(t, sso.IsValidToken(session.Token))
			require.Equal(t, f.now.Add(tt.ttl), session.ExpiresAt)
			require.Equal(t, sso.DeviceDesktop, session.DeviceType)
			require.Equal(t, "Chrome on macOS", session.DeviceName)

			entries, err := f.store.Activity(ctx, session.ID, 0)
			require.NoError(t, err)
			require.Len(t, entries, 1)
			require.Equal(t, sso.ActivityLogin, entries[0].Type)
			require.Equal(t, tt.rememberMe, entries[0].Metadata["remember_me"])
		})
	}
}

// TestStore_Create_RequiresUser tests that a session cannot be created without a user
func TestStore_Create_RequiresUser(t *testing.T) {
	f := setupTestFixture(t)
	_, err := f.store.Create(context.Background(), sso.CreateRequest{TenantID: "tenant-1"})
	require.Error(t, err)
}

// TestStore_Lookup tests the format pre-filter and expiry handling of Get and Active
func TestStore_Lookup(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	session := f.createSession(t, "user-1", false)

	_, err := f.store.Get(ctx, "not-a-session-token")
	require.ErrorIs(t, err, sso.ErrSessionNotFound)

	other, err := sso.GenerateToken()
	require.NoError(t, err)
	_, err = f.store.Get(ctx, other)
	require.ErrorIs(t, err, sso.ErrSessionNotFound)

	got, err := f.store.Active(ctx, session.Token)
	require.NoError(t, err)
	require.Equal(t, session.ID, got.ID)

	byID, err := f.store.GetByID(ctx, session.ID)
	require.NoError(t, err)
	require.Equal(t, session.Token, byID.Token)

	f.now = f.now.Add(25 * time.Hour)
	_, err = f.store.Active(ctx, session.Token)
	require.ErrorIs(t, err, sso.ErrSessionExpired)

	expired, err := f.store.Get(ctx, session.Token)
	require.NoError(t, err)
	require.Equal(t, session.ID, expired.ID)
}

// TestStore_TouchAndRevoke tests that touch bumps activity and revoke soft-expires the session
func TestStore_TouchAndRevoke(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	session := f.createSession(t, "user-1", false)

	f.now = f.now.Add(time.Minute)
	require.NoError(t, f.store.Touch(ctx, session.Token))
	got, err := f.store.Get(ctx, session.Token)
	require.NoError(t, err)
	require.Equal(t, f.now, got.LastActivityAt)

	require.NoError(t, f.store.Revoke(ctx, session.Token))
	got, err = f.store.Get(ctx, session.Token)
	require.NoError(t, err)
	require.Equal(t, f.now, got.ExpiresAt)

	_, err = f.store.Active(ctx, session.Token)
	require.ErrorIs(t, err, sso.ErrSessionExpired)

	require.NoError(t, f.store.Revoke(ctx, session.Token))
	require.ErrorIs(t, f.store.Touch(ctx, "sso_missing"), sso.ErrSessionNotFound)
}

// TestStore_RevokeAll tests bulk revocation and the per-session forced_logout entries
func TestStore_RevokeAll(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	first := f.createSession(t, "user-1", false)
	f.now = f.now.Add(time.Second)
	second := f.createSession(t, "user-1", true)
	other := f.createSession(t, "user-2", false)

	active, err := f.store.ListActive(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, active, 2)
	require.Equal(t, second.ID, active[0].ID)
	require.Equal(t, first.ID, active[1].ID)

	n, err := f.store.RevokeAll(ctx, "user-1", "")
	require.NoError(t, err)
	require.Equal(t, 2, n)

	active, err = f.store.ListActive(ctx, "user-1")
	require.NoError(t, err)
	require.Empty(t, active)

	for _, s := range []*sso.Session{first, second} {
		entries, err := f.store.Activity(ctx, s.ID, 0)
		require.NoError(t, err)
		require.Equal(t, sso.ActivityForcedLogout, entries[0].Type)
		require.Equal(t, "all_sessions_revoked", entries[0].Metadata["reason"])
	}

	_, err = f.store.Active(ctx, other.Token)
	require.NoError(t, err)
}

// TestStore_RevokeAllExcept tests that the kept session survives a bulk revocation
func TestStore_RevokeAllExcept(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	current := f.createSession(t, "user-1", false)
	stale := f.createSession(t, "user-1", false)

	n, err := f.store.RevokeAllExcept(ctx, "user-1", current.Token, "signed_out_elsewhere")
	require.NoError(t, err)
	require.Equal(t, 1, n)

	_, err = f.store.Active(ctx, current.Token)
	require.NoError(t, err)
	_, err = f.store.Active(ctx, stale.Token)
	require.ErrorIs(t, err, sso.ErrSessionExpired)

	entries, err := f.store.Activity(ctx, stale.ID, 1)
	require.NoError(t, err)
	require.Equal(t, "signed_out_elsewhere", entries[0].Metadata["reason"])
}

// TestStore_ConnectApp tests the connected app upsert and its activity entries
func TestStore_ConnectApp(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	session := f.createSession(t, "user-1", false)

	app, err := f.store.ConnectApp(ctx, session.ID, "client_a", "app-session", "https://a.test/logout")
	require.NoError(t, err)
	require.Equal(t, f.now, app.ConnectedAt)

	f.now = f.now.Add(time.Minute)
	app, err = f.store.ConnectApp(ctx, session.ID, "client_a", "", "")
	require.NoError(t, err)
	require.Equal(t, "app-session", app.AppSessionToken)
	require.Equal(t, "https://a.test/logout", app.LogoutURL)
	require.Equal(t, f.now, app.LastSeenAt)
	require.Equal(t, f.now.Add(-time.Minute), app.ConnectedAt)

	apps, err := f.store.ConnectedApps(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, apps, 1)

	count, err := f.store.ActivityCount(ctx, session.ID)
	require.NoError(t, err)
	require.Equal(t, 2, count) // login + one app_connect

	require.NoError(t, f.store.DisconnectApp(ctx, session.ID, "client_a"))
	apps, err = f.store.ConnectedApps(ctx, session.ID)
	require.NoError(t, err)
	require.Empty(t, apps)

	entries, err := f.store.Activity(ctx, session.ID, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, sso.ActivityAppDisconnect, entries[0].Type)
	require.Equal(t, "client_a", entries[0].ClientID)

	require.NoError(t, f.store.DisconnectApp(ctx, session.ID, "client_a"))
}

// TestStore_Sweep tests that only expired sessions are removed
func TestStore_Sweep(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	short := f.createSession(t, "user-1", false)
	long := f.createSession(t, "user-1", true)

	f.now = f.now.Add(48 * time.Hour)
	n, err := f.store.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	_, err = f.store.Get(ctx, short.Token)
	require.ErrorIs(t, err, sso.ErrSessionNotFound)
	_, err = f.store.Active(ctx, long.Token)
	require.NoError(t, err)
}
