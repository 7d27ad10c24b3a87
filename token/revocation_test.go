package token_test

import (
	"testing"
	"time"

	"github.com/jrsteele09/go-sso-idp/token"
	"github.com/stretchr/testify/require"
)

// TestRevokedTokenCache tests that revoked handles are remembered until expiry
func TestRevokedTokenCache(t *testing.T) {
	cache := token.NewRevokedTokenCache(100)

	cache.Add("live", time.Now().Add(time.Hour))
	cache.Add("already-expired", time.Now().Add(-time.Minute))

	require.True(t, cache.IsRevoked("live"))
	require.False(t, cache.IsRevoked("already-expired"))
	require.False(t, cache.IsRevoked("unknown"))

	cache.Add("short", time.Now().Add(20*time.Millisecond))
	require.Eventually(t, func() bool { return !cache.IsRevoked("short") }, time.Second, 10*time.Millisecond)

	cache.Cleanup()
	require.Equal(t, 1, cache.Len())
}
