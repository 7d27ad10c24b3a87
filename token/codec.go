package token

import (
	stderrors "errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var (
	// ErrSigning is returned when a token cannot be signed, including when no signing key is configured.
	ErrSigning = stderrors.New("token signing failed")

	// ErrInvalidToken covers every verification failure: bad signature, wrong issuer,
	// expiry and malformed input are indistinguishable.
	ErrInvalidToken = stderrors.New("invalid token")
)

// Config is the process wide signing configuration, injected at startup.
type Config struct {
	SigningKey string
	Issuer     string
}

// AccessClaims are the caller supplied claims of an access token.
// ID becomes the jti and links the JWT to its opaque server side handle.
type AccessClaims struct {
	Subject  string
	ClientID string
	TenantID string
	Scope    string
	ID       string
}

// IDClaims are the OIDC identity claims of an ID token.
type IDClaims struct {
	Subject       string
	Audience      string
	Email         string
	EmailVerified bool
	Name          string
	Picture       string
	TenantID      string
	TenantName    string
	Role          string
}

// Claims is the verified content of a signed token.
type Claims struct {
	Subject   string
	ClientID  string
	TenantID  string
	Scope     string
	Issuer    string
	ID        string
	Audience  []string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Raw       jwt.MapClaims
}

// Codec signs and verifies the bearer tokens handed to clients.
type Codec struct {
	key     hs256Key
	issuer  string
	nowFunc func() time.Time
}

type CodecOption func(*Codec)

func WithNowFunc(now func() time.Time) CodecOption {
	return func(c *Codec) {
		c.nowFunc = now
	}
}

func NewCodec(cfg Config, options ...CodecOption) *Codec {
	c := &Codec{
		issuer: cfg.Issuer,
	}
	if cfg.SigningKey != "" {
		c.key = hs256Key(cfg.SigningKey)
	}

	for _, opt := range options {
		opt(c)
	}

	if c.nowFunc == nil {
		c.nowFunc = time.Now
	}
	return c
}

func (c *Codec) Issuer() string {
	return c.issuer
}

func (c *Codec) SignAccessToken(ac AccessClaims, ttl time.Duration) (string, error) {
	now := c.nowFunc()
	jti := ac.ID
	if jti == "" {
		jti = uuid.New().String()
	}
	claims := jwt.MapClaims{
		"iss":       c.issuer,
		"sub":       ac.Subject,
		"client_id": ac.ClientID,
		"tenant_id": ac.TenantID,
		"scope":     ac.Scope,
		"iat":       now.Unix(),
		"exp":       now.Add(ttl).Unix(),
		"jti":       jti,
	}
	return c.sign(claims)
}

func (c *Codec) SignIDToken(ic IDClaims, ttl time.Duration) (string, error) {
	now := c.nowFunc()
	claims := jwt.MapClaims{
		"iss":            c.issuer,
		"sub":            ic.Subject,
		"aud":            ic.Audience,
		"email":          ic.Email,
		"email_verified": ic.EmailVerified,
		"tenant_id":      ic.TenantID,
		"tenant_name":    ic.TenantName,
		"iat":            now.Unix(),
		"exp":            now.Add(ttl).Unix(),
	}
	if ic.Name != "" {
		claims["name"] = ic.Name
	}
	if ic.Picture != "" {
		claims["picture"] = ic.Picture
	}
	if ic.Role != "" {
		claims["role"] = ic.Role
	}
	return c.sign(claims)
}

func (c *Codec) sign(claims jwt.MapClaims) (string, error) {
	if len(c.key) == 0 {
		return "", errors.Wrap(ErrSigning, "no signing key configured")
	}
	signed, err := c.key.sign(claims)
	if err != nil {
		return "", errors.Wrapf(ErrSigning, "%v", err)
	}
	return signed, nil
}

// VerifySignedToken validates signature, issuer and expiry.
func (c *Codec) VerifySignedToken(raw string) (*Claims, error) {
	if len(c.key) == 0 || raw == "" {
		return nil, ErrInvalidToken
	}

	parsed, err := jwt.Parse(raw, c.key.keyfunc,
		jwt.WithValidMethods(hs256Methods),
		jwt.WithIssuer(c.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.nowFunc),
	)
	if err != nil || !parsed.Valid {
		return nil, errors.Wrapf(ErrInvalidToken, "%v", err)
	}

	mc, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}
	return claimsFromMap(mc), nil
}

func claimsFromMap(mc jwt.MapClaims) *Claims {
	str := func(k string) string {
		s, _ := mc[k].(string)
		return s
	}
	claims := &Claims{
		Subject:  str("sub"),
		ClientID: str("client_id"),
		TenantID: str("tenant_id"),
		Scope:    str("scope"),
		Issuer:   str("iss"),
		ID:       str("jti"),
		Raw:      mc,
	}
	if aud, err := mc.GetAudience(); err == nil {
		claims.Audience = aud
	}
	if iat, err := mc.GetIssuedAt(); err == nil && iat != nil {
		claims.IssuedAt = iat.Time
	}
	if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
		claims.ExpiresAt = exp.Time
	}
	return claims
}
