package server_test

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/jrsteele09/go-sso-idp/server"
	"github.com/stretchr/testify/require"
)

type adminClient struct {
	ClientID        string   `json:"client_id"`
	ClientSecret    string   `json:"client_secret"`
	Name            string   `json:"name"`
	RedirectURIs    []string `json:"redirect_uris"`
	AllowedScopes   []string `json:"allowed_scopes"`
	AccessTokenTTL  int64    `json:"access_token_ttl"`
	RefreshTokenTTL int64    `json:"refresh_token_ttl"`
	IsActive        bool     `json:"is_active"`
	IsFirstParty    bool     `json:"is_first_party"`
}

func (f *testFixture) admin(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var payload string
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		payload = string(b)
	}
	req, err := http.NewRequest(method, f.url(path), strings.NewReader(payload))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+adminKey)
	return f.do(t, req)
}

// TestAdmin_RequiresKey tests that the admin API rejects missing and wrong keys
func TestAdmin_RequiresKey(t *testing.T) {
	tests := []struct {
		name          string
		authorization string
		wantStatus    int
	}{
		{name: "no key", wantStatus: http.StatusUnauthorized},
		{name: "wrong key", authorization: "Bearer nope", wantStatus: http.StatusUnauthorized},
		{name: "basic auth", authorization: "Basic " + adminKey, wantStatus: http.StatusUnauthorized},
		{name: "right key", authorization: "Bearer " + adminKey, wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupTestFixture(t)
			req, err := http.NewRequest(http.MethodGet, f.url(server.RouteAdminClients), nil)
			require.NoError(t, err)
			if tt.authorization != "" {
				req.Header.Set("Authorization", tt.authorization)
			}
			resp := f.do(t, req)
			require.Equal(t, tt.wantStatus, resp.StatusCode)
		})
	}
}

// TestAdmin_Disabled tests that the admin API is off without a configured key
func TestAdmin_Disabled(t *testing.T) {
	f := setupTestFixture(t)
	t.Setenv("ADMIN_API_KEY", "")

	resp := f.admin(t, http.MethodGet, server.RouteAdminClients, nil)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

// TestAdmin_ClientLifecycle tests create, read, update, rotate and delete of a client
func TestAdmin_ClientLifecycle(t *testing.T) {
	f := setupTestFixture(t)

	resp := f.admin(t, http.MethodPost, server.RouteAdminClients, map[string]any{
		"name":             "Billing",
		"redirect_uris":    []string{"https://billing.test/cb"},
		"allowed_scopes":   []string{"openid", "email"},
		"access_token_ttl": 900,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[adminClient](t, resp)
	require.True(t, strings.HasPrefix(created.ClientID, "client_"))
	require.NotEmpty(t, created.ClientSecret)
	require.Equal(t, int64(900), created.AccessTokenTTL)
	require.Equal(t, int64(30*24*60*60), created.RefreshTokenTTL)
	require.True(t, created.IsActive)

	path := "/admin/clients/" + created.ClientID
	got := decode[adminClient](t, f.admin(t, http.MethodGet, path, nil))
	require.Equal(t, "Billing", got.Name)
	require.Empty(t, got.ClientSecret)

	resp = f.admin(t, http.MethodPatch, path, map[string]any{"name": "Billing v2", "is_active": false})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	updated := decode[adminClient](t, resp)
	require.Equal(t, "Billing v2", updated.Name)
	require.False(t, updated.IsActive)
	require.Equal(t, []string{"https://billing.test/cb"}, updated.RedirectURIs)

	resp = f.admin(t, http.MethodPost, path+"/rotate-secret", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	rotated := decode[map[string]string](t, resp)
	require.NotEmpty(t, rotated["client_secret"])
	require.NotEqual(t, created.ClientSecret, rotated["client_secret"])

	resp = f.admin(t, http.MethodDelete, path, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = f.admin(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// TestAdmin_ClientErrors tests validation, conflict and not found mapping
func TestAdmin_ClientErrors(t *testing.T) {
	f := setupTestFixture(t)

	resp := f.admin(t, http.MethodPost, server.RouteAdminClients, map[string]any{"name": "No URIs"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.admin(t, http.MethodPost, server.RouteAdminClients, map[string]any{
		"client_id":      testClientID,
		"name":           "Duplicate",
		"redirect_uris":  []string{"https://dup.test/cb"},
		"allowed_scopes": []string{"openid"},
	})
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = f.admin(t, http.MethodPatch, "/admin/clients/"+testClientID, map[string]any{"client_id": "client_other"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.admin(t, http.MethodPatch, "/admin/clients/"+testClientID, map[string]any{"redirect_uris": []string{}})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	for _, method := range []string{http.MethodGet, http.MethodDelete} {
		resp = f.admin(t, method, "/admin/clients/client_missing", nil)
		require.Equal(t, http.StatusNotFound, resp.StatusCode)
	}
	resp = f.admin(t, http.MethodPost, "/admin/clients/client_missing/rotate-secret", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// TestAdmin_ListClients tests the list filters
func TestAdmin_ListClients(t *testing.T) {
	f := setupTestFixture(t)
	resp := f.admin(t, http.MethodPost, server.RouteAdminClients, map[string]any{
		"name":           "Internal",
		"redirect_uris":  []string{"https://internal.test/cb"},
		"allowed_scopes": []string{"openid"},
		"is_first_party": true,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	tests := []struct {
		name  string
		query string
		want  int
	}{
		{name: "all", query: "", want: 2},
		{name: "first party", query: "?is_first_party=true", want: 1},
		{name: "third party and active", query: "?is_first_party=false&is_active=true", want: 1},
		{name: "inactive", query: "?is_active=false", want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := f.admin(t, http.MethodGet, server.RouteAdminClients+tt.query, nil)
			require.Equal(t, http.StatusOK, resp.StatusCode)
			list := decode[struct {
				Clients []adminClient `json:"clients"`
			}](t, resp)
			require.Len(t, list.Clients, tt.want)
		})
	}

	resp = f.admin(t, http.MethodGet, server.RouteAdminClients+"?is_active=maybe", nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// TestAdmin_Sweep tests the on-demand cleanup of expired records
func TestAdmin_Sweep(t *testing.T) {
	f := setupTestFixture(t)
	resp := f.admin(t, http.MethodPost, server.RouteAdminSweep, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	res := decode[map[string]int](t, resp)
	for _, key := range []string{"codes", "access_tokens", "refresh_tokens", "sessions"} {
		require.Contains(t, res, key)
		require.Zero(t, res[key])
	}
}
