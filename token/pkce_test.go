package token_test

import (
	"testing"

	"github.com/jrsteele09/go-sso-idp/oauth2"
	"github.com/jrsteele09/go-sso-idp/token"
	"github.com/stretchr/testify/require"
)

const (
	testCodeChallenge = "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"
	testCodeVerifier  = "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
)

// TestVerifyPKCEChallenge tests the RFC 7636 appendix B vector and the plain method
func TestVerifyPKCEChallenge(t *testing.T) {
	tests := []struct {
		name      string
		verifier  string
		challenge string
		method    oauth2.CodeMethodType
		want      bool
	}{
		{"S256 rfc vector", testCodeVerifier, testCodeChallenge, oauth2.CodeMethodTypeS256, true},
		{"empty method defaults to S256", testCodeVerifier, testCodeChallenge, "", true},
		{"S256 wrong verifier", testCodeVerifier + "a", testCodeChallenge, oauth2.CodeMethodTypeS256, false},
		{"plain match", "plain-verifier", "plain-verifier", oauth2.CodeMethodTypePlain, true},
		{"plain mismatch", "plain-verifier", "plain-verifier2", oauth2.CodeMethodTypePlain, false},
		{"plain does not hash", testCodeVerifier, testCodeChallenge, oauth2.CodeMethodTypePlain, false},
		{"unknown method", testCodeVerifier, testCodeChallenge, "S512", false},
		{"missing verifier", "", testCodeChallenge, oauth2.CodeMethodTypeS256, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, token.VerifyPKCEChallenge(tt.verifier, tt.challenge, tt.method))
		})
	}
}

// TestVerifyPKCEChallenge_SingleByteMutation tests that mutating any byte of the verifier fails S256
func TestVerifyPKCEChallenge_SingleByteMutation(t *testing.T) {
	verifier, err := token.GenerateOpaqueToken(48)
	require.NoError(t, err)
	challenge := token.S256Challenge(verifier)
	require.NotContains(t, challenge, "=")
	require.True(t, token.VerifyPKCEChallenge(verifier, challenge, oauth2.CodeMethodTypeS256))

	for i := 0; i < len(verifier); i++ {
		mutated := []byte(verifier)
		mutated[i] ^= 0x01
		require.False(t, token.VerifyPKCEChallenge(string(mutated), challenge, oauth2.CodeMethodTypeS256), "mutation at %d", i)
	}
}
