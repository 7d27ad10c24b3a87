package auth

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/jrsteele09/go-sso-idp/clients"
	"github.com/jrsteele09/go-sso-idp/grants"
	"github.com/jrsteele09/go-sso-idp/internal/utils"
	"github.com/jrsteele09/go-sso-idp/oauth2"
	"github.com/jrsteele09/go-sso-idp/sso"
	"github.com/jrsteele09/go-sso-idp/users"
	"github.com/rs/zerolog/log"
)

// DeliveryKind says how an authorization error reaches the user agent.
type DeliveryKind int

const (
	DeliverJSON DeliveryKind = iota
	DeliverRedirect
)

// ErrorDelivery is decided once: errors are JSON until the redirect_uri is known to be
// registered for the client, and redirects to that URI afterwards.
type ErrorDelivery struct {
	Kind        DeliveryKind
	Status      int
	RedirectURI string
}

func JSON(status int) ErrorDelivery {
	return ErrorDelivery{Kind: DeliverJSON, Status: status}
}

func Redirect(redirectURI string) ErrorDelivery {
	return ErrorDelivery{Kind: DeliverRedirect, RedirectURI: redirectURI}
}

// AuthorizeError is an OAuth error together with the channel it must be delivered on.
type AuthorizeError struct {
	Err      *oauth2.Error
	Delivery ErrorDelivery
}

func (e *AuthorizeError) Error() string {
	return e.Err.Error()
}

// Location is the error redirect for DeliverRedirect errors.
func (e *AuthorizeError) Location() string {
	if e.Delivery.Kind != DeliverRedirect {
		return ""
	}
	v := url.Values{}
	v.Set("error", string(e.Err.Code))
	if e.Err.Description != "" {
		v.Set("error_description", e.Err.Description)
	}
	if e.Err.State != "" {
		v.Set("state", e.Err.State)
	}
	return appendQuery(e.Delivery.RedirectURI, v)
}

// AuthorizeAction is what the caller of Authorize should do next.
type AuthorizeAction string

const (
	// ActionLogin sends the user to the login page. Location carries the return URL.
	ActionLogin AuthorizeAction = "login"
	// ActionConsent sends the user to the consent screen with the original parameters.
	ActionConsent AuthorizeAction = "consent"
	// ActionRedirect returns to the client with a code.
	ActionRedirect AuthorizeAction = "redirect"
)

type AuthorizeResult struct {
	Action   AuthorizeAction
	Location string
}

// ConsentDetails is what a consent screen shows for a validated request.
type ConsentDetails struct {
	Client   *clients.Client             `json:"client"`
	Scopes   []string                    `json:"scopes"`
	TenantID string                      `json:"tenant_id"`
	Request  oauth2.AuthorizationRequest `json:"-"`
	Params   map[string]string           `json:"params"`
}

// authContext is a request that passed client validation and, once resolved, user and tenant resolution.
type authContext struct {
	req      oauth2.AuthorizationRequest
	client   *clients.Client
	scopes   []string
	session  *sso.Session
	user     *users.User
	tenantID string
}

func (ac *authContext) redirectError(err *oauth2.Error) *AuthorizeError {
	return &AuthorizeError{Err: err.WithState(ac.req.State), Delivery: Redirect(ac.req.RedirectURI)}
}

// Authorize runs the authorization endpoint. returnURL is where the login page should send
// the user back to; when empty it is rebuilt from the request.
func (as *AuthorizationService) Authorize(ctx context.Context, req oauth2.AuthorizationRequest, sessionToken, returnURL string) (*AuthorizeResult, error) {
	ac, aerr := as.validateClientRequest(ctx, req)
	if aerr != nil {
		return nil, aerr
	}

	if returnURL == "" {
		returnURL = "/authorize?" + req.Values().Encode()
	}
	login, aerr := as.resolveUser(ctx, ac, sessionToken, returnURL)
	if aerr != nil {
		return nil, aerr
	}
	if login != nil {
		return login, nil
	}

	covered, err := as.grants.ConsentCovers(ctx, ac.user.ID, ac.client.ClientID, ac.tenantID, ac.scopes)
	if err != nil {
		log.Error().Err(err).Str("client_id", ac.client.ClientID).Msg("consent lookup failed")
		return nil, ac.redirectError(oauth2.NewServerError("failed to look up consent"))
	}
	if covered {
		return as.issueCode(ctx, ac)
	}

	return &AuthorizeResult{
		Action:   ActionConsent,
		Location: appendQuery(as.consentURL, req.Values()),
	}, nil
}

// ConsentDetails validates a request exactly as Approve would and describes it for the consent screen.
func (as *AuthorizationService) ConsentDetails(ctx context.Context, req oauth2.AuthorizationRequest, sessionToken string) (*ConsentDetails, error) {
	ac, aerr := as.validateClientRequest(ctx, req)
	if aerr != nil {
		return nil, aerr
	}
	login, aerr := as.resolveUser(ctx, ac, sessionToken, "/authorize?"+req.Values().Encode())
	if aerr != nil {
		return nil, aerr
	}
	if login != nil {
		return nil, &AuthorizeError{Err: oauth2.NewAccessDenied("login required"), Delivery: JSON(http.StatusUnauthorized)}
	}
	values := req.Values()
	params := make(map[string]string, len(values))
	for k := range values {
		params[k] = values.Get(k)
	}
	return &ConsentDetails{
		Client:   ac.client,
		Scopes:   ac.scopes,
		TenantID: ac.tenantID,
		Request:  req,
		Params:   params,
	}, nil
}

// Approve is the consent screen's approval. It re-validates the request, records the consent
// and redirects to the client with a fresh code.
func (as *AuthorizationService) Approve(ctx context.Context, req oauth2.AuthorizationRequest, sessionToken string) (*AuthorizeResult, error) {
	ac, aerr := as.validateClientRequest(ctx, req)
	if aerr != nil {
		return nil, aerr
	}
	login, aerr := as.resolveUser(ctx, ac, sessionToken, "/authorize?"+req.Values().Encode())
	if aerr != nil {
		return nil, aerr
	}
	if login != nil {
		return login, nil
	}

	if _, err := as.grants.GrantConsent(ctx, ac.user.ID, ac.client.ClientID, ac.tenantID, ac.scopes); err != nil {
		log.Error().Err(err).Str("client_id", ac.client.ClientID).Msg("failed to store consent")
		return nil, ac.redirectError(oauth2.NewServerError("failed to store consent"))
	}
	return as.issueCode(ctx, ac)
}

// Deny is the consent screen's refusal. The request is validated up to the point where the
// redirect_uri can be trusted and then answered with access_denied.
func (as *AuthorizationService) Deny(ctx context.Context, req oauth2.AuthorizationRequest) (*AuthorizeResult, error) {
	ac, aerr := as.validateClientRequest(ctx, req)
	if aerr != nil {
		return nil, aerr
	}
	denied := ac.redirectError(oauth2.NewAccessDenied("the user denied the request"))
	return &AuthorizeResult{Action: ActionRedirect, Location: denied.Location()}, nil
}

func (as *AuthorizationService) issueCode(ctx context.Context, ac *authContext) (*AuthorizeResult, error) {
	code, err := as.grants.IssueCode(ctx, grants.CodeRequest{
		UserID:              ac.user.ID,
		ClientID:            ac.client.ClientID,
		TenantID:            ac.tenantID,
		RedirectURI:         ac.req.RedirectURI,
		Scope:               utils.JoinScope(ac.scopes),
		CodeChallenge:       ac.req.CodeChallenge,
		CodeChallengeMethod: ac.req.CodeChallengeMethod,
	})
	if err != nil {
		log.Error().Err(err).Str("client_id", ac.client.ClientID).Msg("failed to issue authorization code")
		return nil, ac.redirectError(oauth2.NewServerError("failed to issue authorization code"))
	}

	v := url.Values{}
	v.Set("code", code.Code)
	if ac.req.State != "" {
		v.Set("state", ac.req.State)
	}
	return &AuthorizeResult{Action: ActionRedirect, Location: appendQuery(ac.req.RedirectURI, v)}, nil
}

// validateClientRequest checks the request parameters, the client, the redirect_uri and the scopes.
func (as *AuthorizationService) validateClientRequest(ctx context.Context, req oauth2.AuthorizationRequest) (*authContext, *AuthorizeError) {
	var missing []string
	if req.ClientID == "" {
		missing = append(missing, "client_id")
	}
	if req.RedirectURI == "" {
		missing = append(missing, "redirect_uri")
	}
	if len(utils.SplitScope(req.Scope)) == 0 {
		missing = append(missing, "scope")
	}
	if len(missing) > 0 {
		return nil, as.preValidationError(ctx, req, oauth2.NewInvalidRequest("missing required parameters: "+strings.Join(missing, ", ")))
	}
	if req.ResponseType != oauth2.CodeResponseType {
		return nil, as.preValidationError(ctx, req, oauth2.NewInvalidRequest("response_type must be code"))
	}

	client, err := as.clients.Get(ctx, req.ClientID)
	if err != nil {
		if errors.Is(err, clients.ErrClientNotFound) {
			return nil, as.preValidationError(ctx, req, oauth2.NewInvalidClient("unknown or inactive client"))
		}
		log.Error().Err(err).Str("client_id", req.ClientID).Msg("client lookup failed")
		return nil, &AuthorizeError{Err: oauth2.NewServerError("failed to look up client").WithState(req.State), Delivery: JSON(http.StatusInternalServerError)}
	}

	if !client.HasRedirectURI(req.RedirectURI) {
		return nil, &AuthorizeError{Err: oauth2.NewInvalidRequest("redirect_uri is not registered for this client").WithState(req.State), Delivery: JSON(http.StatusBadRequest)}
	}

	ac := &authContext{req: req, client: client, scopes: utils.SplitScope(req.Scope)}

	if req.CodeChallengeMethod != "" && (!req.CodeChallengeMethod.Valid() || req.CodeChallenge == "") {
		return nil, ac.redirectError(oauth2.NewInvalidRequest("invalid code_challenge_method"))
	}
	if err := client.ValidateScopes(req.Scope); err != nil {
		return nil, ac.redirectError(oauth2.NewInvalidScope("requested scope is not allowed for this client"))
	}
	return ac, nil
}

// preValidationError delivers by redirect only when the redirect_uri is registered for the
// named client, active or not. Anything else is JSON.
func (as *AuthorizationService) preValidationError(ctx context.Context, req oauth2.AuthorizationRequest, oerr *oauth2.Error) *AuthorizeError {
	oerr = oerr.WithState(req.State)
	if req.ClientID != "" && req.RedirectURI != "" {
		if client, err := as.clients.Lookup(ctx, req.ClientID); err == nil && client.HasRedirectURI(req.RedirectURI) {
			return &AuthorizeError{Err: oerr, Delivery: Redirect(req.RedirectURI)}
		}
	}
	return &AuthorizeError{Err: oerr, Delivery: JSON(oerr.Status)}
}

// resolveUser requires an active SSO session and picks the tenant. A non-nil result means
// the user must log in first.
func (as *AuthorizationService) resolveUser(ctx context.Context, ac *authContext, sessionToken, returnURL string) (*AuthorizeResult, *AuthorizeError) {
	loginResult := &AuthorizeResult{
		Action:   ActionLogin,
		Location: appendQuery(as.loginURL, url.Values{"redirect": {returnURL}}),
	}

	session, err := as.sessions.Active(ctx, sessionToken)
	if err != nil {
		if errors.Is(err, sso.ErrSessionNotFound) || errors.Is(err, sso.ErrSessionExpired) {
			return loginResult, nil
		}
		log.Error().Err(err).Msg("session lookup failed")
		return nil, ac.redirectError(oauth2.NewServerError("failed to look up session"))
	}
	if err := as.sessions.Touch(ctx, session.Token); err != nil {
		log.Warn().Err(err).Str("session_id", session.ID).Msg("failed to touch session")
	}

	user, err := as.users.Get(ctx, session.UserID)
	if err != nil || user.Blocked {
		log.Warn().Err(err).Str("user_id", session.UserID).Msg("session user is unavailable")
		return loginResult, nil
	}

	tenantID := ac.req.TenantID
	if tenantID != "" {
		if user.ActiveMembership(tenantID) == nil {
			return nil, ac.redirectError(oauth2.NewInvalidRequest("user is not an active member of the requested tenant"))
		}
	} else {
		tenantID = user.DefaultTenantID()
		if tenantID == "" {
			return nil, ac.redirectError(oauth2.NewInvalidRequest("user has no active tenant membership"))
		}
	}

	ac.session = session
	ac.user = user
	ac.tenantID = tenantID
	return nil, nil
}

// appendQuery adds v to base, keeping any query base already has.
func appendQuery(base string, v url.Values) string {
	u, err := url.Parse(base)
	if err != nil {
		sep := "?"
		if strings.Contains(base, "?") {
			sep = "&"
		}
		return base + sep + v.Encode()
	}
	q := u.Query()
	for k, vals := range v {
		for _, val := range vals {
			q.Add(k, val)
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}
