package token

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// Byte lengths of the opaque tokens. Encoded lengths are 4/3 of these.
const (
	AuthorizationCodeBytes = 24 // 32 chars
	AccessTokenBytes       = 36 // 48 chars
	RefreshTokenBytes      = 36 // 48 chars
	ClientIDBytes          = 18 // 24 chars
	ClientSecretBytes      = 36 // 48 chars
)

// GenerateOpaqueToken returns byteLength cryptographically random bytes encoded
// as unpadded base64url, so the alphabet is [A-Za-z0-9_-].
func GenerateOpaqueToken(byteLength int) (string, error) {
	if byteLength <= 0 {
		return "", fmt.Errorf("invalid token length %d", byteLength)
	}
	b := make([]byte, byteLength)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
