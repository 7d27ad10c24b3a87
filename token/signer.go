package token

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// MinSigningKeyBytes is the shortest HS256 secret accepted without a startup warning.
const MinSigningKeyBytes = 32

var hs256Methods = []string{jwt.SigningMethodHS256.Alg()}

// hs256Key is the shared secret every token is signed and verified with.
type hs256Key []byte

func (k hs256Key) sign(claims jwt.MapClaims) (string, error) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(k))
	if err != nil {
		return "", errors.Wrap(err, "failed to sign token with HMAC")
	}
	return signed, nil
}

// keyfunc refuses anything but HMAC before handing out the secret.
func (k hs256Key) keyfunc(t *jwt.Token) (any, error) {
	if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, errors.Errorf("unexpected signing method: %v", t.Header["alg"])
	}
	return []byte(k), nil
}

// WeakSigningKey reports whether the secret is too short to resist brute forcing.
func WeakSigningKey(secret string) bool {
	return len(secret) < MinSigningKeyBytes
}
