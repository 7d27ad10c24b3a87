package server

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	// OAuth2 / OIDC Routes
	RouteWellKnownOpenIDConfig = "/.well-known/openid-configuration"
	RouteWellKnownJWKS         = "/.well-known/jwks.json"
	RouteOAuth2Authorize       = "/authorize"
	RouteOAuth2Token           = "/token"
	RouteOAuth2Introspect      = "/introspect"
	RouteOAuth2Revoke          = "/revoke"
	RouteUserInfo              = "/userinfo"

	// Consent details for the consent screen
	RouteConsent = "/oauth/consent"

	// SSO Routes
	RouteAuthSession    = "/auth/session"
	RouteAuthSessionApp = "/auth/session/apps/{clientID}"
	RouteAuthSessions   = "/auth/sessions"
	RouteAuthLogout     = "/auth/logout"

	// Admin Routes
	RouteAdminClients            = "/admin/clients"
	RouteAdminClient             = "/admin/clients/{clientID}"
	RouteAdminClientRotateSecret = "/admin/clients/{clientID}/rotate-secret"
	RouteAdminSweep              = "/admin/sweep"

	// Operational Routes
	RouteMetrics = "/metrics"
	RouteHealth  = "/health"
)
