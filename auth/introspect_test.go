package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/jrsteele09/go-sso-idp/oauth2"
	"github.com/stretchr/testify/require"
)

func (f *testFixture) introspect(t *testing.T, tok string) *oauth2.IntrospectionResponse {
	t.Helper()
	resp, err := f.service.Introspect(context.Background(), oauth2.IntrospectRequest{
		ClientCredentials: oauth2.ClientCredentials{ClientID: testClientID, ClientSecret: testClientSecret},
		Token:             tok,
	})
	require.NoError(t, err)
	return resp
}

func (f *testFixture) revoke(t *testing.T, clientID, secret, tok string, hint oauth2.TokenTypeHint) {
	t.Helper()
	err := f.service.Revoke(context.Background(), oauth2.RevokeRequest{
		ClientCredentials: oauth2.ClientCredentials{ClientID: clientID, ClientSecret: secret},
		Token:             tok,
		TokenTypeHint:     hint,
	})
	require.NoError(t, err)
}

func requireInactive(t *testing.T, resp *oauth2.IntrospectionResponse) {
	t.Helper()
	body, err := json.Marshal(resp)
	require.NoError(t, err)
	require.JSONEq(t, `{"active":false}`, string(body))
}

// TestIntrospect tests the active claim set and the inactive response for every failure
func TestIntrospect(t *testing.T) {
	f := setupTestFixture(t)
	tokens := f.tokens(t, "openid profile")

	resp := f.introspect(t, tokens.AccessToken)
	require.True(t, resp.Active)
	require.Equal(t, "openid profile", resp.Scope)
	require.Equal(t, testClientID, resp.ClientID)
	require.Equal(t, f.user.ID, resp.Subject)
	require.Equal(t, testTenantID, resp.TenantID)
	require.Equal(t, issuer, resp.Issuer)
	require.Equal(t, f.now.Add(time.Hour).Unix(), resp.ExpiresAt)
	require.Equal(t, f.now.Unix(), resp.IssuedAt)
	require.Equal(t, oauth2.BearerTokenType, resp.TokenType)

	requireInactive(t, f.introspect(t, "garbage"))
	requireInactive(t, f.introspect(t, tokens.RefreshToken))
	requireInactive(t, f.introspect(t, tokens.AccessToken+"x"))
}

// TestIntrospect_RevokedAndExpired tests that revoked and expired tokens are reported as inactive only
func TestIntrospect_RevokedAndExpired(t *testing.T) {
	f := setupTestFixture(t)
	revoked := f.tokens(t, "openid")
	expiring := f.tokens(t, "openid")

	f.revoke(t, testClientID, testClientSecret, revoked.AccessToken, "")
	requireInactive(t, f.introspect(t, revoked.AccessToken))
	require.True(t, f.introspect(t, expiring.AccessToken).Active)

	f.now = f.now.Add(time.Hour + time.Second)
	requireInactive(t, f.introspect(t, expiring.AccessToken))
}

// TestIntrospect_ClientAuth tests that introspection requires client authentication and a token
func TestIntrospect_ClientAuth(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	_, err := f.service.Introspect(ctx, oauth2.IntrospectRequest{
		ClientCredentials: oauth2.ClientCredentials{ClientID: testClientID, ClientSecret: "wrong"},
		Token:             "anything",
	})
	requireOAuthError(t, err, oauth2.InvalidClient, http.StatusUnauthorized)

	_, err = f.service.Introspect(ctx, oauth2.IntrospectRequest{
		ClientCredentials: oauth2.ClientCredentials{ClientID: testClientID, ClientSecret: testClientSecret},
	})
	requireOAuthError(t, err, oauth2.InvalidRequest, http.StatusBadRequest)
}

// TestRevoke tests revocation of both token types, unknown tokens and tokens of other clients
func TestRevoke(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	f.revoke(t, testClientID, testClientSecret, "does-not-exist", "")
	f.revoke(t, testClientID, testClientSecret, "does-not-exist", oauth2.RefreshTokenHint)
	f.revoke(t, testClientID, testClientSecret, "", "")

	tokens := f.tokens(t, "openid")
	f.revoke(t, otherClientID, otherSecret, tokens.AccessToken, "")
	f.revoke(t, otherClientID, otherSecret, tokens.RefreshToken, oauth2.RefreshTokenHint)
	require.True(t, f.introspect(t, tokens.AccessToken).Active)
	rt, err := f.grants.GetRefreshToken(ctx, tokens.RefreshToken)
	require.NoError(t, err)
	require.Nil(t, rt.RevokedAt)

	f.revoke(t, testClientID, testClientSecret, tokens.RefreshToken, "")
	rt, err = f.grants.GetRefreshToken(ctx, tokens.RefreshToken)
	require.NoError(t, err)
	require.NotNil(t, rt.RevokedAt)
	require.True(t, f.introspect(t, tokens.AccessToken).Active)

	f.revoke(t, testClientID, testClientSecret, tokens.AccessToken, oauth2.RefreshTokenHint)
	requireInactive(t, f.introspect(t, tokens.AccessToken))

	f.revoke(t, testClientID, testClientSecret, tokens.AccessToken, "")

	err = f.service.Revoke(ctx, oauth2.RevokeRequest{
		ClientCredentials: oauth2.ClientCredentials{ClientID: testClientID, ClientSecret: "wrong"},
		Token:             tokens.AccessToken,
	})
	requireOAuthError(t, err, oauth2.InvalidClient, http.StatusUnauthorized)
}

// TestUserInfo tests scope gated claims and bearer failures
func TestUserInfo(t *testing.T) {
	tests := []struct {
		name  string
		scope string
		check func(t *testing.T, f *testFixture, info *oauth2.UserInfoResponse)
	}{
		{
			name:  "openid only",
			scope: "openid",
			check: func(t *testing.T, f *testFixture, info *oauth2.UserInfoResponse) {
				require.Empty(t, info.Name)
				require.Empty(t, info.Picture)
				require.Zero(t, info.UpdatedAt)
				require.Empty(t, info.PhoneNumber)
			},
		},
		{
			name:  "profile",
			scope: "openid profile",
			check: func(t *testing.T, f *testFixture, info *oauth2.UserInfoResponse) {
				require.Equal(t, "Jane Doe", info.Name)
				require.Equal(t, "https://cdn.test/jane.png", info.Picture)
				require.Equal(t, f.user.UpdatedAt.Unix(), info.UpdatedAt)
				require.Empty(t, info.PhoneNumber)
			},
		},
		{
			name:  "phone",
			scope: "openid phone",
			check: func(t *testing.T, f *testFixture, info *oauth2.UserInfoResponse) {
				require.Empty(t, info.Name)
				require.Equal(t, "+15550100", info.PhoneNumber)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupTestFixture(t)
			tokens := f.tokens(t, tt.scope)
			info, err := f.service.UserInfo(context.Background(), tokens.AccessToken)
			require.NoError(t, err)
			require.Equal(t, f.user.ID, info.Subject)
			require.Equal(t, testUserEmail, info.Email)
			require.True(t, info.EmailVerified)
			require.Equal(t, testTenantID, info.TenantID)
			require.Equal(t, "Acme", info.TenantName)
			require.Equal(t, "admin", info.Role)
			require.Equal(t, []string{"users:read", "users:write"}, info.Permissions)
			tt.check(t, f, info)
		})
	}
}

// TestUserInfo_Errors tests missing, invalid and revoked bearer tokens
func TestUserInfo_Errors(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	_, err := f.service.UserInfo(ctx, "")
	requireOAuthError(t, err, oauth2.InvalidRequest, http.StatusUnauthorized)

	_, err = f.service.UserInfo(ctx, "not-a-jwt")
	requireOAuthError(t, err, oauth2.InvalidToken, http.StatusUnauthorized)

	tokens := f.tokens(t, "openid")
	f.revoke(t, testClientID, testClientSecret, tokens.AccessToken, "")
	_, err = f.service.UserInfo(ctx, tokens.AccessToken)
	requireOAuthError(t, err, oauth2.InvalidToken, http.StatusUnauthorized)
}

// TestSweep tests that the on-demand sweep removes expired grants and sessions
func TestSweep(t *testing.T) {
	f := setupTestFixture(t)
	f.tokens(t, "openid")
	f.approve(t, authRequest("openid"))

	f.now = f.now.Add(31 * 24 * time.Hour)
	res, err := f.service.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, res.Codes)
	require.Equal(t, 1, res.AccessTokens)
	require.Equal(t, 1, res.RefreshTokens)
	require.Equal(t, 1, res.Sessions)
}
