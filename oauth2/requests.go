package oauth2

import "net/url"

// AuthorizationRequest holds the parameters of a request to the authorization endpoint.
// These arrive as query parameters on GET and as form values on the consent submission POST.
type AuthorizationRequest struct {
	// ResponseType must be "code".
	ResponseType ResponseType

	// ClientID identifies the application requesting authorization.
	ClientID string

	// RedirectURI is where the authorization response will be sent.
	// Security: Must exactly match a pre-registered URI to prevent open redirects
	RedirectURI string

	// Scope is the space-separated list of requested scopes.
	// Example: "openid profile"
	Scope string

	// State is opaque to the server and echoed back on every redirect.
	State string

	// CodeChallenge is the PKCE challenge derived from the client's code_verifier.
	CodeChallenge string

	// CodeChallengeMethod is "S256" or "plain".
	CodeChallengeMethod CodeMethodType

	// TenantID optionally selects the tenant the user is signing in to.
	// When empty the user's first active tenant membership is used.
	TenantID string
}

// AuthorizationRequestFromValues reads an AuthorizationRequest from query or form values.
func AuthorizationRequestFromValues(v url.Values) AuthorizationRequest {
	return AuthorizationRequest{
		ResponseType:        ResponseType(v.Get("response_type")),
		ClientID:            v.Get("client_id"),
		RedirectURI:         v.Get("redirect_uri"),
		Scope:               v.Get("scope"),
		State:               v.Get("state"),
		CodeChallenge:       v.Get("code_challenge"),
		CodeChallengeMethod: CodeMethodType(v.Get("code_challenge_method")),
		TenantID:            v.Get("tenant_id"),
	}
}

// Values is the inverse of AuthorizationRequestFromValues. Empty parameters are omitted.
func (r AuthorizationRequest) Values() url.Values {
	v := url.Values{}
	set := func(k, val string) {
		if val != "" {
			v.Set(k, val)
		}
	}
	set("response_type", string(r.ResponseType))
	set("client_id", r.ClientID)
	set("redirect_uri", r.RedirectURI)
	set("scope", r.Scope)
	set("state", r.State)
	set("code_challenge", r.CodeChallenge)
	set("code_challenge_method", string(r.CodeChallengeMethod))
	set("tenant_id", r.TenantID)
	return v
}

// TokenRequest holds the body of a token endpoint request.
type TokenRequest struct {
	GrantType    GrantType `json:"grant_type"`
	ClientID     string    `json:"client_id"`
	ClientSecret string    `json:"client_secret"`

	// authorization_code
	Code         string `json:"code,omitempty"`
	RedirectURI  string `json:"redirect_uri,omitempty"`
	CodeVerifier string `json:"code_verifier,omitempty"`

	// refresh_token
	RefreshToken string `json:"refresh_token,omitempty"`

	// SessionToken is the SSO session the exchange belongs to. It may also be supplied by cookie.
	SessionToken string `json:"session_token,omitempty"`
}

// ClientCredentials are the client_id/client_secret pair presented to the token,
// introspection and revocation endpoints.
type ClientCredentials struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

// IntrospectRequest is an RFC 7662 introspection request.
type IntrospectRequest struct {
	ClientCredentials
	Token         string        `json:"token"`
	TokenTypeHint TokenTypeHint `json:"token_type_hint,omitempty"`
}

// RevokeRequest is an RFC 7009 revocation request.
type RevokeRequest struct {
	ClientCredentials
	Token         string        `json:"token"`
	TokenTypeHint TokenTypeHint `json:"token_type_hint,omitempty"`
}
