package auth

import (
	"context"
	"errors"

	"github.com/jrsteele09/go-sso-idp/clients"
	"github.com/jrsteele09/go-sso-idp/grants"
	"github.com/jrsteele09/go-sso-idp/internal/utils"
	"github.com/jrsteele09/go-sso-idp/oauth2"
	"github.com/jrsteele09/go-sso-idp/sso"
	"github.com/jrsteele09/go-sso-idp/token"
	"github.com/rs/zerolog/log"
)

// nonCritical is the outcome of a side effect that must never fail the request it rides on.
// Callers log it and move on.
type nonCritical struct {
	op  string
	err error
}

func (n nonCritical) log(clientID string) {
	if n.err == nil {
		return
	}
	log.Warn().Err(n.err).Str("op", n.op).Str("client_id", clientID).Msg("non-critical operation failed")
}

// Token runs the token endpoint. Errors are always *oauth2.Error.
func (as *AuthorizationService) Token(ctx context.Context, req oauth2.TokenRequest) (*oauth2.TokenResponse, error) {
	if req.GrantType == "" {
		return nil, oauth2.NewInvalidRequest("grant_type is required")
	}

	client, oerr := as.authenticateClient(ctx, req.ClientID, req.ClientSecret)
	if oerr != nil {
		return nil, oerr
	}

	if !req.GrantType.Supported() {
		return nil, oauth2.NewUnsupportedGrantType("grant_type " + string(req.GrantType) + " is not supported")
	}
	if !client.AllowsGrant(req.GrantType) {
		return nil, oauth2.NewUnauthorizedClient("client is not allowed to use grant_type " + string(req.GrantType))
	}

	switch req.GrantType {
	case oauth2.AuthorizationCodeGrant:
		return as.exchangeCode(ctx, client, req)
	case oauth2.RefreshTokenGrant:
		return as.refresh(ctx, client, req)
	}
	return nil, oauth2.NewUnsupportedGrantType("")
}

func (as *AuthorizationService) authenticateClient(ctx context.Context, clientID, secret string) (*clients.Client, *oauth2.Error) {
	if clientID == "" || secret == "" {
		return nil, oauth2.NewInvalidClient("client authentication is required")
	}
	client, err := as.clients.Authenticate(ctx, clientID, secret)
	if err != nil {
		if errors.Is(err, clients.ErrInvalidClientCredentials) {
			return nil, oauth2.NewInvalidClient("invalid client credentials")
		}
		log.Error().Err(err).Str("client_id", clientID).Msg("client authentication failed")
		return nil, oauth2.NewServerError("client authentication failed")
	}
	return client, nil
}

func (as *AuthorizationService) exchangeCode(ctx context.Context, client *clients.Client, req oauth2.TokenRequest) (*oauth2.TokenResponse, error) {
	if req.Code == "" || req.RedirectURI == "" {
		return nil, oauth2.NewInvalidRequest("code and redirect_uri are required")
	}

	code, err := as.grants.GetCode(ctx, req.Code)
	if err != nil {
		if errors.Is(err, grants.ErrCodeNotFound) {
			return nil, oauth2.NewInvalidGrant("invalid authorization code")
		}
		log.Error().Err(err).Msg("code lookup failed")
		return nil, oauth2.NewServerError("failed to look up authorization code")
	}
	if code.ClientID != client.ClientID {
		return nil, oauth2.NewInvalidGrant("invalid authorization code")
	}
	if code.RedirectURI != req.RedirectURI {
		return nil, oauth2.NewInvalidGrant("redirect_uri does not match the authorization request")
	}
	if code.Expired(as.grants.Now()) {
		if err := as.grants.ConsumeCode(ctx, code.Code); err != nil && !errors.Is(err, grants.ErrCodeNotFound) {
			log.Warn().Err(err).Msg("failed to delete expired authorization code")
		}
		return nil, oauth2.NewInvalidGrant("invalid authorization code")
	}
	if code.CodeChallenge != "" {
		if req.CodeVerifier == "" {
			return nil, oauth2.NewInvalidGrant("code_verifier is required")
		}
		if !token.VerifyPKCEChallenge(req.CodeVerifier, code.CodeChallenge, code.CodeChallengeMethod) {
			return nil, oauth2.NewInvalidGrant("invalid code_verifier")
		}
	}

	// Claim the code before minting anything. Of two concurrent exchanges only one gets here.
	if err := as.grants.ConsumeCode(ctx, code.Code); err != nil {
		if errors.Is(err, grants.ErrCodeNotFound) {
			return nil, oauth2.NewInvalidGrant("invalid authorization code")
		}
		log.Error().Err(err).Msg("failed to consume authorization code")
		return nil, oauth2.NewServerError("failed to consume authorization code")
	}

	resp, oerr := as.mintTokens(ctx, client, grants.Grant{
		UserID:   code.UserID,
		ClientID: client.ClientID,
		TenantID: code.TenantID,
		Scope:    code.Scope,
	})
	if oerr != nil {
		return nil, oerr
	}

	if req.SessionToken != "" {
		as.connectApp(ctx, req.SessionToken, client).log(client.ClientID)
	}
	return resp, nil
}

func (as *AuthorizationService) refresh(ctx context.Context, client *clients.Client, req oauth2.TokenRequest) (*oauth2.TokenResponse, error) {
	if req.RefreshToken == "" {
		return nil, oauth2.NewInvalidRequest("refresh_token is required")
	}

	rt, err := as.grants.GetRefreshToken(ctx, req.RefreshToken)
	if err != nil {
		if errors.Is(err, grants.ErrTokenNotFound) {
			return nil, oauth2.NewInvalidGrant("invalid refresh token")
		}
		log.Error().Err(err).Msg("refresh token lookup failed")
		return nil, oauth2.NewServerError("failed to look up refresh token")
	}
	if rt.RevokedAt != nil || rt.ClientID != client.ClientID {
		return nil, oauth2.NewInvalidGrant("invalid refresh token")
	}
	if rt.Expired(as.grants.Now()) {
		if err := as.grants.RevokeRefreshToken(ctx, rt.Token); err != nil && !errors.Is(err, grants.ErrTokenNotFound) {
			log.Warn().Err(err).Msg("failed to revoke expired refresh token")
		}
		return nil, oauth2.NewInvalidGrant("refresh token expired")
	}

	// Rotation: the compare-and-set revoke lets exactly one caller continue with this token.
	if err := as.grants.RevokeRefreshToken(ctx, rt.Token); err != nil {
		if errors.Is(err, grants.ErrTokenNotFound) {
			return nil, oauth2.NewInvalidGrant("invalid refresh token")
		}
		log.Error().Err(err).Msg("failed to rotate refresh token")
		return nil, oauth2.NewServerError("failed to rotate refresh token")
	}

	resp, oerr := as.mintTokens(ctx, client, grants.Grant{
		UserID:   rt.UserID,
		ClientID: rt.ClientID,
		TenantID: rt.TenantID,
		Scope:    rt.Scope,
	})
	if oerr != nil {
		return nil, oerr
	}

	if req.SessionToken != "" {
		as.logTokenRefresh(ctx, req.SessionToken, client).log(client.ClientID)
	}
	return resp, nil
}

func (as *AuthorizationService) mintTokens(ctx context.Context, client *clients.Client, grant grants.Grant) (*oauth2.TokenResponse, *oauth2.Error) {
	issued, err := as.grants.IssueTokens(ctx, grant, client.AccessTokenTTL, client.RefreshTokenTTL)
	if err != nil {
		log.Error().Err(err).Str("client_id", client.ClientID).Msg("failed to issue tokens")
		return nil, oauth2.NewServerError("failed to issue tokens")
	}

	resp := &oauth2.TokenResponse{
		AccessToken:  issued.SignedAccessToken,
		TokenType:    oauth2.BearerTokenType,
		ExpiresIn:    int(client.AccessTokenTTL.Seconds()),
		RefreshToken: issued.RefreshToken.Token,
		Scope:        grant.Scope,
	}

	if utils.Contains(utils.SplitScope(grant.Scope), oauth2.ScopeOpenID) {
		idToken, err := as.signIDToken(ctx, client, grant)
		if err != nil {
			log.Error().Err(err).Str("client_id", client.ClientID).Msg("failed to sign id token")
			return nil, oauth2.NewServerError("failed to sign id token")
		}
		resp.IDToken = idToken
	}
	return resp, nil
}

func (as *AuthorizationService) signIDToken(ctx context.Context, client *clients.Client, grant grants.Grant) (string, error) {
	user, err := as.users.Get(ctx, grant.UserID)
	if err != nil {
		return "", err
	}
	claims := token.IDClaims{
		Subject:       user.ID,
		Audience:      client.ClientID,
		Email:         user.Email,
		EmailVerified: user.EmailVerified,
		Name:          user.FullName,
		Picture:       user.AvatarURL,
		TenantID:      grant.TenantID,
	}
	if tenant, err := as.tenants.Get(ctx, grant.TenantID); err == nil {
		claims.TenantName = tenant.Name
	}
	if m := user.ActiveMembership(grant.TenantID); m != nil && m.Role != nil {
		claims.Role = m.Role.Name
	}
	return as.codec.SignIDToken(claims, client.AccessTokenTTL)
}

// connectApp registers the client on the SSO session the exchange happened under.
func (as *AuthorizationService) connectApp(ctx context.Context, sessionToken string, client *clients.Client) nonCritical {
	session, err := as.sessions.Active(ctx, sessionToken)
	if err != nil {
		if errors.Is(err, sso.ErrSessionNotFound) || errors.Is(err, sso.ErrSessionExpired) {
			return nonCritical{}
		}
		return nonCritical{op: "connect_app", err: err}
	}
	_, err = as.sessions.ConnectApp(ctx, session.ID, client.ClientID, "", client.SingleLogoutURL())
	return nonCritical{op: "connect_app", err: err}
}

func (as *AuthorizationService) logTokenRefresh(ctx context.Context, sessionToken string, client *clients.Client) nonCritical {
	session, err := as.sessions.Active(ctx, sessionToken)
	if err != nil {
		return nonCritical{}
	}
	err = as.sessions.LogActivity(ctx, &sso.Activity{
		SessionID: session.ID,
		Type:      sso.ActivityTokenRefresh,
		ClientID:  client.ClientID,
	})
	return nonCritical{op: "log_token_refresh", err: err}
}
