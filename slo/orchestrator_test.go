package slo_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/go-sso-idp/clients"
	fakeclientrepo "github.com/jrsteele09/go-sso-idp/clients/fakerepo"
	"github.com/jrsteele09/go-sso-idp/slo"
	"github.com/jrsteele09/go-sso-idp/sso"
	ssorepofake "github.com/jrsteele09/go-sso-idp/sso/repofake"
	"github.com/stretchr/testify/require"
)

type testFixture struct {
	sessions *sso.Store
	registry *clients.Registry
	orch     *slo.Orchestrator
	received chan slo.Notification
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	f := &testFixture{
		sessions: sso.NewStore(ssorepofake.NewFakeSSORepo()),
		registry: clients.NewRegistry(fakeclientrepo.NewFakeClientRepo()),
		received: make(chan slo.Notification, 10),
	}
	orch, err := slo.NewOrchestrator(f.sessions, f.registry, slo.NewHTTPNotifier(nil, time.Second))
	require.NoError(t, err)
	f.orch = orch
	return f
}

// receiver returns a logout endpoint that records notifications and answers with status.
func (f *testFixture) receiver(t *testing.T, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var n slo.Notification
		if err := json.NewDecoder(r.Body).Decode(&n); err == nil {
			f.received <- n
		}
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func (f *testFixture) login(t *testing.T) *sso.Session {
	t.Helper()
	session, err := f.sessions.Create(context.Background(), sso.CreateRequest{UserID: "user-1", TenantID: "tenant-1"})
	require.NoError(t, err)
	return session
}

// TestNewOrchestrator tests constructor validation
func TestNewOrchestrator(t *testing.T) {
	_, err := slo.NewOrchestrator(nil, nil, slo.NewHTTPNotifier(nil, 0))
	require.Error(t, err)
	_, err = slo.NewOrchestrator(sso.NewStore(ssorepofake.NewFakeSSORepo()), nil, nil)
	require.Error(t, err)
}

// TestOrchestrator_PartialFailure tests that one unreachable app does not block delivery to another
func TestOrchestrator_PartialFailure(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	session := f.login(t)

	ok := f.receiver(t, http.StatusOK)
	unreachable := httptest.NewServer(http.NotFoundHandler())
	unreachableURL := unreachable.URL + "/logout"
	unreachable.Close()

	_, err := f.sessions.ConnectApp(ctx, session.ID, "client_ok", "", ok.URL+"/logout")
	require.NoError(t, err)
	_, err = f.sessions.ConnectApp(ctx, session.ID, "client_down", "", unreachableURL)
	require.NoError(t, err)

	result, err := f.orch.Logout(ctx, session.Token, slo.Options{NotifyApps: true})
	require.NoError(t, err)
	require.Equal(t, []string{"client_ok"}, result.Success)
	require.Len(t, result.Failed, 1)
	require.Equal(t, "client_down", result.Failed[0].ClientID)
	require.NotEmpty(t, result.Failed[0].Error)

	n := <-f.received
	require.Equal(t, slo.LogoutEvent, n.Event)
	require.Equal(t, session.Token, n.SessionToken)
	_, err = time.Parse(time.RFC3339, n.Timestamp)
	require.NoError(t, err)

	_, err = f.sessions.Active(ctx, session.Token)
	require.ErrorIs(t, err, sso.ErrSessionExpired)

	entries, err := f.sessions.Activity(ctx, session.ID, 1)
	require.NoError(t, err)
	require.Equal(t, sso.ActivityLogout, entries[0].Type)
	require.Equal(t, 2, entries[0].Metadata["apps_to_notify"])
}

// TestOrchestrator_NonSuccessStatus tests that a non-2xx answer is reported as a failure
func TestOrchestrator_NonSuccessStatus(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	session := f.login(t)

	failing := f.receiver(t, http.StatusBadGateway)
	_, err := f.sessions.ConnectApp(ctx, session.ID, "client_a", "", failing.URL)
	require.NoError(t, err)

	result, err := f.orch.Logout(ctx, session.Token, slo.Options{NotifyApps: true})
	require.NoError(t, err)
	require.Empty(t, result.Success)
	require.Equal(t, []slo.Failure{{ClientID: "client_a", Error: "HTTP 502"}}, result.Failed)
}

// TestOrchestrator_ClientLogoutURLFallback tests delivery to the registered client URL
func TestOrchestrator_ClientLogoutURLFallback(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	session := f.login(t)

	rp := f.receiver(t, http.StatusNoContent)
	client, _, err := f.registry.Create(ctx, clients.NewClient{
		Name:          "Fallback App",
		RedirectURIs:  []string{rp.URL + "/cb"},
		AllowedScopes: []string{"openid"},
	})
	require.NoError(t, err)
	_, err = f.sessions.ConnectApp(ctx, session.ID, client.ClientID, "", "")
	require.NoError(t, err)

	result, err := f.orch.Logout(ctx, session.Token, slo.Options{NotifyApps: true})
	require.NoError(t, err)
	require.Equal(t, []string{client.ClientID}, result.Success)
	require.Empty(t, result.Failed)
}

// TestOrchestrator_Idempotent tests that repeated and unknown logouts return an empty result
func TestOrchestrator_Idempotent(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	session := f.login(t)

	first, err := f.orch.Logout(ctx, session.Token, slo.Options{NotifyApps: true})
	require.NoError(t, err)
	require.NotNil(t, first.Success)
	require.NotNil(t, first.Failed)

	tokens := []string{session.Token, "sso_unknown", ""}
	for _, tok := range tokens {
		result, err := f.orch.Logout(ctx, tok, slo.Options{NotifyApps: true})
		require.NoError(t, err)
		require.Empty(t, result.Success)
		require.Empty(t, result.Failed)

		body, err := json.Marshal(result)
		require.NoError(t, err)
		require.JSONEq(t, `{"success":[],"failed":[]}`, string(body))
	}
}

// TestOrchestrator_WithoutNotification tests that NotifyApps=false revokes without delivering
func TestOrchestrator_WithoutNotification(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	session := f.login(t)

	var mu sync.Mutex
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
	}))
	t.Cleanup(srv.Close)
	_, err := f.sessions.ConnectApp(ctx, session.ID, "client_a", "", srv.URL)
	require.NoError(t, err)

	result, err := f.orch.Logout(ctx, session.Token, slo.Options{NotifyApps: false})
	require.NoError(t, err)
	require.Empty(t, result.Success)

	mu.Lock()
	require.Zero(t, calls)
	mu.Unlock()
	_, err = f.sessions.Active(ctx, session.Token)
	require.ErrorIs(t, err, sso.ErrSessionExpired)
}

// TestOrchestrator_LogsBeforeNotifying tests that the logout is in the activity log before any app hears about it
func TestOrchestrator_LogsBeforeNotifying(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	session := f.login(t)

	seen := make(chan sso.ActivityType, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		entries, err := f.sessions.Activity(r.Context(), session.ID, 1)
		if err == nil && len(entries) > 0 {
			seen <- entries[0].Type
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	_, err := f.sessions.ConnectApp(ctx, session.ID, "client_a", "", srv.URL)
	require.NoError(t, err)

	result, err := f.orch.Logout(ctx, session.Token, slo.Options{NotifyApps: true})
	require.NoError(t, err)
	require.Equal(t, []string{"client_a"}, result.Success)
	require.Equal(t, sso.ActivityLogout, <-seen)
}
