package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/jrsteele09/go-sso-idp/auth"
	"github.com/jrsteele09/go-sso-idp/oauth2"
	"github.com/rs/zerolog/log"
)

// WellKnownOpenIDConfig serves the OIDC discovery document
func (s *Server) WellKnownOpenIDConfig() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		issuer := s.config.GetIssuer()
		baseURL := s.config.GetBaseURL()

		resp := map[string]any{
			"issuer":                 issuer,
			"authorization_endpoint": baseURL + RouteOAuth2Authorize,
			"token_endpoint":         baseURL + RouteOAuth2Token,
			"userinfo_endpoint":      baseURL + RouteUserInfo,
			"jwks_uri":               baseURL + RouteWellKnownJWKS,
			"revocation_endpoint":    baseURL + RouteOAuth2Revoke,
			"introspection_endpoint": baseURL + RouteOAuth2Introspect,
			"end_session_endpoint":   baseURL + RouteAuthLogout,

			"response_types_supported": []string{string(oauth2.CodeResponseType)},
			"subject_types_supported":  []string{"public"},

			"id_token_signing_alg_values_supported": []string{"HS256"},

			"scopes_supported": []string{
				oauth2.ScopeOpenID,
				oauth2.ScopeProfile,
				oauth2.ScopeEmail,
				oauth2.ScopePhone,
			},

			"token_endpoint_auth_methods_supported": []string{
				"client_secret_post",
				"client_secret_basic",
			},

			"grant_types_supported": oauth2.SupportedGrantTypes,

			"code_challenge_methods_supported": []string{string(oauth2.CodeMethodTypeS256), string(oauth2.CodeMethodTypePlain)},

			"claims_supported": []string{
				"sub",
				"email",
				"email_verified",
				"name",
				"picture",
				"phone_number",
				"tenant_id",
				"tenant_name",
				"role",
			},
		}

		w.Header().Set("Cache-Control", "public, max-age=3600") // Cache for 1 hour
		writeJSON(w, http.StatusOK, resp)
	}
}

// JWKS publishes no keys: tokens are HS256 signed and cannot be verified with a public key.
func (s *Server) JWKS() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600") // Cache for 1 hour
		writeJSON(w, http.StatusOK, map[string]any{"keys": []any{}})
	}
}

// Authorize begins the authorization flow
func (s *Server) Authorize() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := oauth2.AuthorizationRequestFromValues(r.URL.Query())
		returnURL := s.config.GetBaseURL() + r.URL.RequestURI()

		res, err := s.auth.Authorize(r.Context(), req, s.sessionToken(r), returnURL)
		s.writeAuthorizeResult(w, r, "authorize", res, err)
	}
}

// AuthorizeDecision receives the consent screen's submission. The original authorization
// parameters come back as form fields together with action=approve or action=deny.
func (s *Server) AuthorizeDecision() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		if err := r.ParseForm(); err != nil {
			s.writeOAuthError(w, "authorize", oauth2.NewInvalidRequest("failed to parse form data"))
			return
		}
		req := oauth2.AuthorizationRequestFromValues(r.Form)

		var (
			res *auth.AuthorizeResult
			err error
		)
		switch r.FormValue("action") {
		case "approve":
			res, err = s.auth.Approve(r.Context(), req, s.sessionToken(r))
		case "deny":
			res, err = s.auth.Deny(r.Context(), req)
		default:
			s.writeOAuthError(w, "authorize", oauth2.NewInvalidRequest("action must be approve or deny"))
			return
		}
		s.writeAuthorizeResult(w, r, "authorize", res, err)
	}
}

// Consent describes a pending authorization request to the consent screen.
func (s *Server) Consent() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := oauth2.AuthorizationRequestFromValues(r.URL.Query())
		details, err := s.auth.ConsentDetails(r.Context(), req, s.sessionToken(r))
		if err != nil {
			s.writeAuthorizeResult(w, r, "consent", nil, err)
			return
		}
		writeJSON(w, http.StatusOK, details)
	}
}

func (s *Server) writeAuthorizeResult(w http.ResponseWriter, r *http.Request, endpoint string, res *auth.AuthorizeResult, err error) {
	if err != nil {
		var aerr *auth.AuthorizeError
		if !errors.As(err, &aerr) {
			log.Error().Err(err).Str("endpoint", endpoint).Msg("authorization failed")
			s.writeOAuthError(w, endpoint, oauth2.NewServerError("authorization failed"))
			return
		}
		s.metrics.OAuthErrorsTotal.WithLabelValues(endpoint, string(aerr.Err.Code)).Inc()
		if aerr.Delivery.Kind == auth.DeliverRedirect {
			http.Redirect(w, r, aerr.Location(), http.StatusFound)
			return
		}
		oerr := aerr.Err
		if aerr.Delivery.Status != 0 {
			oerr = oerr.WithStatus(aerr.Delivery.Status)
		}
		writeJSON(w, oerr.Status, oerr)
		return
	}
	http.Redirect(w, r, res.Location, http.StatusFound)
}

// Token exchanges an authorization code or a refresh token for a token pair
func (s *Server) Token() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := s.decodeTokenRequest(w, r)
		if err != nil {
			s.writeOAuthError(w, "token", oauth2.NewInvalidRequest("failed to parse request body"))
			return
		}

		resp, err := s.auth.Token(r.Context(), req)
		if err != nil {
			var oerr *oauth2.Error
			if !errors.As(err, &oerr) {
				log.Error().Err(err).Msg("token request failed")
				oerr = oauth2.NewServerError("token request failed")
			}
			if oerr.Code == oauth2.InvalidClient {
				if _, _, ok := r.BasicAuth(); ok {
					w.Header().Set("WWW-Authenticate", `Basic realm="OAuth"`)
				}
			}
			s.writeOAuthError(w, "token", oerr)
			return
		}

		s.metrics.TokensIssuedTotal.WithLabelValues(string(req.GrantType)).Inc()
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Pragma", "no-cache")
		writeJSON(w, http.StatusOK, resp)
	}
}

// decodeTokenRequest accepts a JSON body or a form body with client_secret_post or
// client_secret_basic credentials. The SSO session falls back to the cookie.
func (s *Server) decodeTokenRequest(w http.ResponseWriter, r *http.Request) (oauth2.TokenRequest, error) {
	var req oauth2.TokenRequest
	form, err := decodeBody(w, r, &req)
	if err != nil {
		return req, err
	}
	if form != nil {
		req = oauth2.TokenRequest{
			GrantType:    oauth2.GrantType(form.Get("grant_type")),
			ClientID:     form.Get("client_id"),
			ClientSecret: form.Get("client_secret"),
			Code:         form.Get("code"),
			RedirectURI:  form.Get("redirect_uri"),
			CodeVerifier: form.Get("code_verifier"),
			RefreshToken: form.Get("refresh_token"),
			SessionToken: form.Get("session_token"),
		}
	}
	if id, secret, ok := basicClientCredentials(r); ok && req.ClientID == "" {
		req.ClientID, req.ClientSecret = id, secret
	}
	if req.SessionToken == "" {
		req.SessionToken = s.sessionToken(r)
	}
	return req, nil
}

// tokenRequestBody is the shared shape of introspection and revocation requests.
type tokenRequestBody struct {
	oauth2.ClientCredentials
	Token         string               `json:"token"`
	TokenTypeHint oauth2.TokenTypeHint `json:"token_type_hint"`
}

func decodeTokenRequestBody(w http.ResponseWriter, r *http.Request) (tokenRequestBody, error) {
	var body tokenRequestBody
	form, err := decodeBody(w, r, &body)
	if err != nil && !errors.Is(err, io.EOF) {
		return body, err
	}
	if form != nil {
		body = tokenRequestBody{
			ClientCredentials: oauth2.ClientCredentials{
				ClientID:     form.Get("client_id"),
				ClientSecret: form.Get("client_secret"),
			},
			Token:         form.Get("token"),
			TokenTypeHint: oauth2.TokenTypeHint(form.Get("token_type_hint")),
		}
	}
	if id, secret, ok := basicClientCredentials(r); ok && body.ClientID == "" {
		body.ClientID, body.ClientSecret = id, secret
	}
	return body, nil
}

// Introspect implements RFC 7662
func (s *Server) Introspect() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := decodeTokenRequestBody(w, r)
		if err != nil {
			s.writeOAuthError(w, "introspect", oauth2.NewInvalidRequest("failed to parse request body"))
			return
		}

		resp, err := s.auth.Introspect(r.Context(), oauth2.IntrospectRequest{
			ClientCredentials: body.ClientCredentials,
			Token:             body.Token,
			TokenTypeHint:     body.TokenTypeHint,
		})
		if err != nil {
			var oerr *oauth2.Error
			if errors.As(err, &oerr) {
				s.writeOAuthError(w, "introspect", oerr)
				return
			}
			log.Warn().Err(err).Msg("introspection failed")
			resp = oauth2.InactiveToken()
		}

		w.Header().Set("Cache-Control", "no-store")
		writeJSON(w, http.StatusOK, resp)
	}
}

// Revoke implements RFC 7009. Apart from client authentication it answers 200 with an empty body.
func (s *Server) Revoke() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := decodeTokenRequestBody(w, r)
		if err != nil {
			log.Warn().Err(err).Msg("revocation request could not be parsed")
			w.WriteHeader(http.StatusOK)
			return
		}

		err = s.auth.Revoke(r.Context(), oauth2.RevokeRequest{
			ClientCredentials: body.ClientCredentials,
			Token:             body.Token,
			TokenTypeHint:     body.TokenTypeHint,
		})
		if err != nil {
			var oerr *oauth2.Error
			if errors.As(err, &oerr) && oerr.Code == oauth2.InvalidClient {
				s.writeOAuthError(w, "revoke", oerr)
				return
			}
			log.Warn().Err(err).Msg("revocation failed")
		}
		w.WriteHeader(http.StatusOK)
	}
}

// UserInfo returns the claims of the user behind the bearer token
func (s *Server) UserInfo() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bearer := bearerToken(r)
		if bearer == "" && r.Method == http.MethodPost {
			// RFC 6750 form-encoded body parameter
			r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
			if err := r.ParseForm(); err == nil {
				bearer = r.PostForm.Get("access_token")
			}
		}

		info, err := s.auth.UserInfo(r.Context(), bearer)
		if err != nil {
			var oerr *oauth2.Error
			if !errors.As(err, &oerr) {
				log.Error().Err(err).Msg("userinfo failed")
				oerr = oauth2.NewServerError("userinfo failed")
			}
			if oerr.Status == http.StatusUnauthorized {
				w.Header().Set("WWW-Authenticate", wwwAuthenticate(oerr))
			}
			s.writeOAuthError(w, "userinfo", oerr)
			return
		}

		w.Header().Set("Cache-Control", "no-store")
		writeJSON(w, http.StatusOK, info)
	}
}

func wwwAuthenticate(oerr *oauth2.Error) string {
	if oerr.Code == oauth2.InvalidToken {
		return `Bearer realm="OAuth", error="invalid_token"`
	}
	return `Bearer realm="OAuth"`
}

// writeOAuthError writes an OAuth2 error response with the error's status
func (s *Server) writeOAuthError(w http.ResponseWriter, endpoint string, oerr *oauth2.Error) {
	s.metrics.OAuthErrorsTotal.WithLabelValues(endpoint, string(oerr.Code)).Inc()
	status := oerr.Status
	if status == 0 {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, oerr)
}
