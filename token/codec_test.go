package token_test

import (
	"strings"
	"testing"
	"time"

	"github.com/jrsteele09/go-sso-idp/token"
	"github.com/stretchr/testify/require"
)

const (
	testSigningKey = "test-signing-key"
	testIssuer     = "https://id.example.test"
)

func newTestCodec(now func() time.Time) *token.Codec {
	return token.NewCodec(token.Config{SigningKey: testSigningKey, Issuer: testIssuer}, token.WithNowFunc(now))
}

// TestCodec_SignAndVerifyAccessToken tests the access token claim round trip
func TestCodec_SignAndVerifyAccessToken(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	codec := newTestCodec(func() time.Time { return now })

	signed, err := codec.SignAccessToken(token.AccessClaims{
		Subject:  "user-1",
		ClientID: "client-1",
		TenantID: "tenant-1",
		Scope:    "openid profile",
		ID:       "handle-1",
	}, time.Hour)
	require.NoError(t, err)

	claims, err := codec.VerifySignedToken(signed)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.Subject)
	require.Equal(t, "client-1", claims.ClientID)
	require.Equal(t, "tenant-1", claims.TenantID)
	require.Equal(t, "openid profile", claims.Scope)
	require.Equal(t, "handle-1", claims.ID)
	require.Equal(t, testIssuer, claims.Issuer)
	require.Equal(t, now.Unix(), claims.IssuedAt.Unix())
	require.Equal(t, now.Add(time.Hour).Unix(), claims.ExpiresAt.Unix())
}

// TestCodec_IDTokenAudience tests that the ID token audience is the client
func TestCodec_IDTokenAudience(t *testing.T) {
	codec := newTestCodec(time.Now)

	signed, err := codec.SignIDToken(token.IDClaims{
		Subject:       "user-1",
		Audience:      "client-1",
		Email:         "jane@example.com",
		EmailVerified: true,
		TenantID:      "tenant-1",
		TenantName:    "Tenant One",
	}, time.Hour)
	require.NoError(t, err)

	claims, err := codec.VerifySignedToken(signed)
	require.NoError(t, err)
	require.Equal(t, []string{"client-1"}, claims.Audience)
	require.Equal(t, "jane@example.com", claims.Raw["email"])
	require.Equal(t, true, claims.Raw["email_verified"])
	require.Equal(t, "Tenant One", claims.Raw["tenant_name"])
	require.NotContains(t, claims.Raw, "name")
	require.NotContains(t, claims.Raw, "role")
}

// TestCodec_MissingKey tests that signing without a key fails with ErrSigning
func TestCodec_MissingKey(t *testing.T) {
	codec := token.NewCodec(token.Config{Issuer: testIssuer})

	_, err := codec.SignAccessToken(token.AccessClaims{Subject: "user-1"}, time.Hour)
	require.ErrorIs(t, err, token.ErrSigning)

	_, err = codec.SignIDToken(token.IDClaims{Subject: "user-1"}, time.Hour)
	require.ErrorIs(t, err, token.ErrSigning)
}

// TestCodec_VerifyFailures tests that every verification failure collapses to ErrInvalidToken
func TestCodec_VerifyFailures(t *testing.T) {
	now := time.Now()
	codec := newTestCodec(func() time.Time { return now })
	valid, err := codec.SignAccessToken(token.AccessClaims{Subject: "user-1"}, time.Minute)
	require.NoError(t, err)

	expired, err := newTestCodec(func() time.Time { return now.Add(-2 * time.Hour) }).
		SignAccessToken(token.AccessClaims{Subject: "user-1"}, time.Hour)
	require.NoError(t, err)

	otherKey, err := token.NewCodec(token.Config{SigningKey: "another-key", Issuer: testIssuer}).
		SignAccessToken(token.AccessClaims{Subject: "user-1"}, time.Hour)
	require.NoError(t, err)

	otherIssuer, err := token.NewCodec(token.Config{SigningKey: testSigningKey, Issuer: "https://evil.test"}).
		SignAccessToken(token.AccessClaims{Subject: "user-1"}, time.Hour)
	require.NoError(t, err)

	parts := strings.Split(valid, ".")
	tampered := parts[0] + "." + parts[1] + "x." + parts[2]

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"malformed", "not-a-jwt"},
		{"expired", expired},
		{"wrong key", otherKey},
		{"wrong issuer", otherIssuer},
		{"tampered payload", tampered},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := codec.VerifySignedToken(tt.token)
			require.ErrorIs(t, err, token.ErrInvalidToken)
		})
	}
}

// TestGenerateOpaqueToken tests length and alphabet of opaque tokens
func TestGenerateOpaqueToken(t *testing.T) {
	code, err := token.GenerateOpaqueToken(token.AuthorizationCodeBytes)
	require.NoError(t, err)
	require.Len(t, code, 32)

	access, err := token.GenerateOpaqueToken(token.AccessTokenBytes)
	require.NoError(t, err)
	require.Len(t, access, 48)
	require.Regexp(t, `^[A-Za-z0-9_-]+$`, access)

	other, err := token.GenerateOpaqueToken(token.AccessTokenBytes)
	require.NoError(t, err)
	require.NotEqual(t, access, other)

	_, err = token.GenerateOpaqueToken(0)
	require.Error(t, err)
}

// TestSecretHashing tests hashing and verification of client secrets
func TestSecretHashing(t *testing.T) {
	hash := token.HashSecret("s3cret")
	require.Len(t, hash, 64)
	require.NotEqual(t, "s3cret", hash)
	require.True(t, token.VerifySecret("s3cret", hash))
	require.False(t, token.VerifySecret("s3cret!", hash))
	require.False(t, token.VerifySecret("s3cret", ""))
}

// TestWeakSigningKey tests the minimum secret length check
func TestWeakSigningKey(t *testing.T) {
	require.True(t, token.WeakSigningKey(testSigningKey))
	require.True(t, token.WeakSigningKey(strings.Repeat("k", token.MinSigningKeyBytes-1)))
	require.False(t, token.WeakSigningKey(strings.Repeat("k", token.MinSigningKeyBytes)))
}
