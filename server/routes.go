package server

import "net/http"

func (s *Server) initRoutes() {
	// OAuth2 / OIDC API routes
	s.RegisterRouteHandler("GET "+RouteWellKnownOpenIDConfig, ChainMiddleware(s.WellKnownOpenIDConfig(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteWellKnownJWKS, ChainMiddleware(s.JWKS(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteOAuth2Authorize, ChainMiddleware(s.Authorize(), s.BrowserMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteOAuth2Authorize, ChainMiddleware(s.AuthorizeDecision(), s.BrowserMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteConsent, ChainMiddleware(s.Consent(), s.BrowserMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteOAuth2Token, ChainMiddleware(s.Token(), s.APIMiddleware()...))

	// Protected OAuth2 endpoints (require valid access token or client credentials)
	s.RegisterRouteHandler("GET "+RouteUserInfo, ChainMiddleware(s.UserInfo(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteUserInfo, ChainMiddleware(s.UserInfo(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteOAuth2Introspect, ChainMiddleware(s.Introspect(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteOAuth2Revoke, ChainMiddleware(s.Revoke(), s.APIMiddleware()...))

	// SSO session routes
	s.RegisterRouteHandler("POST "+RouteAuthSession, ChainMiddleware(s.CreateSession(), s.BrowserMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteAuthSession, ChainMiddleware(s.GetSession(), s.BrowserMiddleware()...))
	s.RegisterRouteHandler("DELETE "+RouteAuthSession, ChainMiddleware(s.DeleteSession(), s.BrowserMiddleware()...))
	s.RegisterRouteHandler("DELETE "+RouteAuthSessionApp, ChainMiddleware(s.DisconnectApp(), s.BrowserMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteAuthSessions, ChainMiddleware(s.ListSessions(), s.BrowserMiddleware()...))
	s.RegisterRouteHandler("DELETE "+RouteAuthSessions, ChainMiddleware(s.RevokeOtherSessions(), s.BrowserMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteAuthLogout, ChainMiddleware(s.Logout(), s.BrowserMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteAuthLogout, ChainMiddleware(s.LogoutRedirect(), s.BrowserMiddleware()...))

	// Admin routes (require the admin API key)
	s.RegisterRouteHandler("GET "+RouteAdminClients, ChainMiddleware(s.AdminListClients(), s.AdminMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteAdminClients, ChainMiddleware(s.AdminCreateClient(), s.AdminMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteAdminClient, ChainMiddleware(s.AdminGetClient(), s.AdminMiddleware()...))
	s.RegisterRouteHandler("PATCH "+RouteAdminClient, ChainMiddleware(s.AdminUpdateClient(), s.AdminMiddleware()...))
	s.RegisterRouteHandler("DELETE "+RouteAdminClient, ChainMiddleware(s.AdminDeleteClient(), s.AdminMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteAdminClientRotateSecret, ChainMiddleware(s.AdminRotateClientSecret(), s.AdminMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteAdminSweep, ChainMiddleware(s.AdminSweep(), s.AdminMiddleware()...))

	// Operational routes
	s.RegisterRouteHandler("GET "+RouteMetrics, s.metrics.Handler())
	s.RegisterRouteHandler("GET "+RouteHealth, ChainMiddleware(s.Health(), s.RecoverMiddleware))

	// Preflight requests for the cross-origin API endpoints
	s.RegisterRouteHandler("OPTIONS /", ChainMiddleware(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}, s.CorsMiddleware))
}
