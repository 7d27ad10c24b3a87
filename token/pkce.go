package token

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"

	"github.com/jrsteele09/go-sso-idp/oauth2"
)

// VerifyPKCEChallenge checks a code_verifier against the stored challenge.
// An empty method is treated as S256.
func VerifyPKCEChallenge(verifier, challenge string, method oauth2.CodeMethodType) bool {
	if verifier == "" || challenge == "" {
		return false
	}
	switch method {
	case oauth2.CodeMethodTypePlain:
		return subtle.ConstantTimeCompare([]byte(verifier), []byte(challenge)) == 1
	case oauth2.CodeMethodTypeS256, "":
		return subtle.ConstantTimeCompare([]byte(S256Challenge(verifier)), []byte(challenge)) == 1
	default:
		return false
	}
}

// S256Challenge computes BASE64URL(SHA256(verifier)) without padding.
func S256Challenge(verifier string) string {
	hash := sha256.Sum256([]byte(verifier))
	return base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(hash[:])
}
