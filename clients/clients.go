package clients

import (
	"errors"
	"time"

	"github.com/jrsteele09/go-sso-idp/internal/utils"
	"github.com/jrsteele09/go-sso-idp/oauth2"
)

var (
	ErrClientNotFound           = errors.New("client not found")
	ErrInvalidClientCredentials = errors.New("invalid client credentials")
	ErrInvalidClient            = errors.New("invalid client registration")
	ErrInvalidScope             = errors.New("invalid scope")
)

const (
	DefaultAccessTokenTTL  = time.Hour
	DefaultRefreshTokenTTL = 30 * 24 * time.Hour
)

// Client is a registered OAuth application. ClientID never changes once created and
// SecretHash never leaves the registry.
type Client struct {
	ClientID          string             `json:"client_id"`
	SecretHash        string             `json:"-"`
	Name              string             `json:"name"`
	Description       string             `json:"description,omitempty"`
	LogoURL           string             `json:"logo_url,omitempty"`
	HomepageURL       string             `json:"homepage_url,omitempty"`
	RedirectURIs      []string           `json:"redirect_uris"`
	AllowedScopes     []string           `json:"allowed_scopes"`
	AllowedGrantTypes []oauth2.GrantType `json:"allowed_grant_types"`
	AccessTokenTTL    time.Duration      `json:"access_token_ttl"`
	RefreshTokenTTL   time.Duration      `json:"refresh_token_ttl"`
	// LogoutURL receives single-logout notifications. The first redirect URI is used when empty.
	LogoutURL    string    `json:"logout_url,omitempty"`
	IsActive     bool      `json:"is_active"`
	IsFirstParty bool      `json:"is_first_party"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (c *Client) HasScope(scope string) bool {
	return utils.Contains(c.AllowedScopes, scope)
}

// ValidateScopes checks every space delimited requested scope is allowed for the client.
func (c *Client) ValidateScopes(requestedScopes string) error {
	if !utils.ContainsAll(c.AllowedScopes, utils.SplitScope(requestedScopes)) {
		return ErrInvalidScope
	}
	return nil
}

// HasRedirectURI is an exact string match against the registered URIs.
func (c *Client) HasRedirectURI(uri string) bool {
	return uri != "" && utils.Contains(c.RedirectURIs, uri)
}

func (c *Client) AllowsGrant(grant oauth2.GrantType) bool {
	for _, g := range c.AllowedGrantTypes {
		if g == grant {
			return true
		}
	}
	return false
}

// SingleLogoutURL is where single-logout notifications for this client are delivered.
func (c *Client) SingleLogoutURL() string {
	if c.LogoutURL != "" {
		return c.LogoutURL
	}
	if len(c.RedirectURIs) > 0 {
		return c.RedirectURIs[0]
	}
	return ""
}

// Clone returns a deep copy so stored records are never aliased by callers.
func (c *Client) Clone() *Client {
	if c == nil {
		return nil
	}
	cp := *c
	cp.RedirectURIs = append([]string(nil), c.RedirectURIs...)
	cp.AllowedScopes = append([]string(nil), c.AllowedScopes...)
	cp.AllowedGrantTypes = append([]oauth2.GrantType(nil), c.AllowedGrantTypes...)
	return &cp
}
