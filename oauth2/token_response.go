package oauth2

// TokenResponse represents the response from an OAuth2 token request.
// This is the standard OAuth2 token endpoint response format as defined in RFC 6749.
type TokenResponse struct {
	// AccessToken is the signed JWT used to access protected resources.
	// Usage: Include in Authorization header: "Bearer <access_token>"
	AccessToken string `json:"access_token"`

	// TokenType is always "Bearer".
	TokenType string `json:"token_type"`

	// ExpiresIn is the lifetime in seconds of the access token.
	ExpiresIn int `json:"expires_in"`

	// RefreshToken is an opaque token used to obtain new access tokens.
	// Rotates on each use: the presented token is revoked when a new pair is issued.
	RefreshToken string `json:"refresh_token,omitempty"`

	// Scope is the space-separated list of granted scopes.
	Scope string `json:"scope"`

	// IDToken is the OpenID Connect ID token.
	// Only present: When "openid" scope was granted
	IDToken string `json:"id_token,omitempty"`
}

// IntrospectionResponse is the RFC 7662 response. An inactive token only ever serialises {"active":false}.
type IntrospectionResponse struct {
	Active    bool   `json:"active"`
	Scope     string `json:"scope,omitempty"`
	ClientID  string `json:"client_id,omitempty"`
	Subject   string `json:"sub,omitempty"`
	TenantID  string `json:"tenant_id,omitempty"`
	Issuer    string `json:"iss,omitempty"`
	ExpiresAt int64  `json:"exp,omitempty"`
	IssuedAt  int64  `json:"iat,omitempty"`
	TokenType string `json:"token_type,omitempty"`
}

// InactiveToken is the only response given for tokens that fail introspection for any reason.
func InactiveToken() *IntrospectionResponse {
	return &IntrospectionResponse{Active: false}
}
