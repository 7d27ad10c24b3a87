package grants

import (
	"time"

	"github.com/jrsteele09/go-sso-idp/internal/utils"
	"github.com/jrsteele09/go-sso-idp/oauth2"
)

// AuthorizationCode is a one-time code issued by the authorization endpoint.
type AuthorizationCode struct {
	Code                string                `json:"code"`
	UserID              string                `json:"user_id"`
	ClientID            string                `json:"client_id"`
	TenantID            string                `json:"tenant_id"`
	RedirectURI         string                `json:"redirect_uri"`
	Scope               string                `json:"scope"`
	CodeChallenge       string                `json:"code_challenge,omitempty"`
	CodeChallengeMethod oauth2.CodeMethodType `json:"code_challenge_method,omitempty"`
	ExpiresAt           time.Time             `json:"expires_at"`
	CreatedAt           time.Time             `json:"created_at"`
}

func (c *AuthorizationCode) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// AccessToken is the server side record of an issued access token. Token is the opaque
// revocation handle and is also the jti of the signed JWT handed to the client.
type AccessToken struct {
	ID        string     `json:"id"`
	Token     string     `json:"token"`
	UserID    string     `json:"user_id"`
	ClientID  string     `json:"client_id"`
	TenantID  string     `json:"tenant_id"`
	Scope     string     `json:"scope"`
	ExpiresAt time.Time  `json:"expires_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// Active reports revoked_at is null and now < expires_at.
func (t *AccessToken) Active(now time.Time) bool {
	return t.RevokedAt == nil && now.Before(t.ExpiresAt)
}

// RefreshToken is minted alongside exactly one access token. The grant fields are
// copied from it so a refresh never needs the access token row.
type RefreshToken struct {
	ID            string     `json:"id"`
	Token         string     `json:"token"`
	AccessTokenID string     `json:"access_token_id"`
	UserID        string     `json:"user_id"`
	ClientID      string     `json:"client_id"`
	TenantID      string     `json:"tenant_id"`
	Scope         string     `json:"scope"`
	ExpiresAt     time.Time  `json:"expires_at"`
	RevokedAt     *time.Time `json:"revoked_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

func (t *RefreshToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// Consent records the scopes a user granted a client within a tenant.
type Consent struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	ClientID  string     `json:"client_id"`
	TenantID  string     `json:"tenant_id"`
	Scopes    []string   `json:"scopes"`
	GrantedAt time.Time  `json:"granted_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

func (c *Consent) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && !now.Before(*c.ExpiresAt)
}

// Covers reports whether every requested scope was previously granted and the consent is still valid.
func (c *Consent) Covers(requested []string, now time.Time) bool {
	if c == nil || c.Expired(now) {
		return false
	}
	return utils.ContainsAll(c.Scopes, requested)
}

// Grant identifies who a token pair is issued to.
type Grant struct {
	UserID   string
	ClientID string
	TenantID string
	Scope    string
}

// SweepResult counts the records removed by a sweep.
type SweepResult struct {
	Codes         int `json:"codes"`
	AccessTokens  int `json:"access_tokens"`
	RefreshTokens int `json:"refresh_tokens"`
}
