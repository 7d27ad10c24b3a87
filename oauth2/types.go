package oauth2

// ResponseType represents the OAuth 2.0 response type.
// Determines what is returned from the authorization endpoint.
type ResponseType string

const (
	// CodeResponseType indicates the authorization code flow.
	// Returns an authorization code that must be exchanged for tokens at the token endpoint.
	// Example: /authorize?response_type=code&client_id=...
	CodeResponseType ResponseType = "code"
)

// CodeMethodType represents the PKCE (Proof Key for Code Exchange) challenge method.
type CodeMethodType string

const (
	// CodeMethodTypeS256 indicates SHA-256 hashing is used for the code challenge.
	// Client sends: code_challenge = BASE64URL(SHA256(code_verifier))
	// Server validates: BASE64URL(SHA256(provided code_verifier)) == stored code_challenge
	CodeMethodTypeS256 CodeMethodType = "S256"

	// CodeMethodTypePlain means no hashing, the code_verifier is compared verbatim.
	CodeMethodTypePlain CodeMethodType = "plain"
)

// Valid reports whether m is a supported PKCE method. The empty method is treated as S256.
func (m CodeMethodType) Valid() bool {
	return m == "" || m == CodeMethodTypeS256 || m == CodeMethodTypePlain
}

// GrantType represents the OAuth 2.0 grant type used at the token endpoint.
type GrantType string

const (
	// AuthorizationCodeGrant exchanges an authorization code for tokens.
	// Token request includes: code, client_id, client_secret, redirect_uri, code_verifier (if PKCE)
	// Returns: access_token, refresh_token and an id_token when "openid" was granted
	AuthorizationCodeGrant GrantType = "authorization_code"

	// RefreshTokenGrant exchanges a refresh token for a new access and refresh token pair.
	// The presented refresh token is revoked (rotation).
	RefreshTokenGrant GrantType = "refresh_token"
)

// SupportedGrantTypes lists the grants the token endpoint dispatches on.
var SupportedGrantTypes = []GrantType{AuthorizationCodeGrant, RefreshTokenGrant}

func (g GrantType) Supported() bool {
	for _, s := range SupportedGrantTypes {
		if g == s {
			return true
		}
	}
	return false
}

// TokenTypeHint is the optional hint sent to the revocation and introspection endpoints (RFC 7009).
type TokenTypeHint string

const (
	AccessTokenHint  TokenTypeHint = "access_token"
	RefreshTokenHint TokenTypeHint = "refresh_token"
)

// BearerTokenType is the token_type of every access token this server issues.
const BearerTokenType = "Bearer"

// Scopes recognised by the userinfo endpoint.
const (
	ScopeOpenID  = "openid"
	ScopeProfile = "profile"
	ScopeEmail   = "email"
	ScopePhone   = "phone"
)
