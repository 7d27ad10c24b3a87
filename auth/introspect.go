package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/jrsteele09/go-sso-idp/grants"
	"github.com/jrsteele09/go-sso-idp/internal/utils"
	"github.com/jrsteele09/go-sso-idp/oauth2"
	"github.com/rs/zerolog/log"
)

// Introspect implements RFC 7662. Any token problem yields {active:false} and nothing else;
// only client authentication and a missing token are reported as errors.
func (as *AuthorizationService) Introspect(ctx context.Context, req oauth2.IntrospectRequest) (*oauth2.IntrospectionResponse, error) {
	if _, oerr := as.authenticateClient(ctx, req.ClientID, req.ClientSecret); oerr != nil {
		return nil, oerr
	}
	if req.Token == "" {
		return nil, oauth2.NewInvalidRequest("token is required")
	}

	claims, err := as.codec.VerifySignedToken(req.Token)
	if err != nil {
		return oauth2.InactiveToken(), nil
	}
	if _, err := as.grants.ActiveAccessToken(ctx, claims.ID); err != nil {
		if !errors.Is(err, grants.ErrTokenInactive) && !errors.Is(err, grants.ErrTokenNotFound) {
			log.Warn().Err(err).Msg("introspection lookup failed")
		}
		return oauth2.InactiveToken(), nil
	}

	return &oauth2.IntrospectionResponse{
		Active:    true,
		Scope:     claims.Scope,
		ClientID:  claims.ClientID,
		Subject:   claims.Subject,
		TenantID:  claims.TenantID,
		Issuer:    claims.Issuer,
		ExpiresAt: claims.ExpiresAt.Unix(),
		IssuedAt:  claims.IssuedAt.Unix(),
		TokenType: oauth2.BearerTokenType,
	}, nil
}

// Revoke implements RFC 7009. Apart from client authentication it never reports an error,
// whether or not the token existed.
func (as *AuthorizationService) Revoke(ctx context.Context, req oauth2.RevokeRequest) error {
	client, oerr := as.authenticateClient(ctx, req.ClientID, req.ClientSecret)
	if oerr != nil {
		return oerr
	}
	if req.Token == "" {
		return nil
	}

	handle := req.Token
	if claims, err := as.codec.VerifySignedToken(req.Token); err == nil && claims.ID != "" {
		handle = claims.ID
	}

	revokers := []func() (bool, error){
		func() (bool, error) { return as.revokeAccess(ctx, client.ClientID, handle) },
		func() (bool, error) { return as.revokeRefresh(ctx, client.ClientID, req.Token) },
	}
	if req.TokenTypeHint == oauth2.RefreshTokenHint {
		revokers[0], revokers[1] = revokers[1], revokers[0]
	}
	for _, revoke := range revokers {
		done, err := revoke()
		if err != nil {
			log.Warn().Err(err).Str("client_id", client.ClientID).Msg("token revocation failed")
		}
		if done {
			return nil
		}
	}
	return nil
}

// revokeAccess reports true once the token is known to be an access token of this client.
func (as *AuthorizationService) revokeAccess(ctx context.Context, clientID, handle string) (bool, error) {
	at, err := as.grants.GetAccessToken(ctx, handle)
	if err != nil {
		if errors.Is(err, grants.ErrTokenNotFound) {
			return false, nil
		}
		return false, err
	}
	if at.ClientID != clientID {
		return true, nil
	}
	if err := as.grants.RevokeAccessToken(ctx, handle); err != nil && !errors.Is(err, grants.ErrTokenNotFound) {
		return true, err
	}
	return true, nil
}

func (as *AuthorizationService) revokeRefresh(ctx context.Context, clientID, value string) (bool, error) {
	rt, err := as.grants.GetRefreshToken(ctx, value)
	if err != nil {
		if errors.Is(err, grants.ErrTokenNotFound) {
			return false, nil
		}
		return false, err
	}
	if rt.ClientID != clientID {
		return true, nil
	}
	if err := as.grants.RevokeRefreshToken(ctx, value); err != nil && !errors.Is(err, grants.ErrTokenNotFound) {
		return true, err
	}
	return true, nil
}

// UserInfo returns the claims of the user behind an active access token.
func (as *AuthorizationService) UserInfo(ctx context.Context, bearer string) (*oauth2.UserInfoResponse, error) {
	if bearer == "" {
		return nil, oauth2.NewError(oauth2.InvalidRequest, "missing or invalid Authorization header").WithStatus(http.StatusUnauthorized)
	}
	claims, err := as.codec.VerifySignedToken(bearer)
	if err != nil {
		return nil, oauth2.NewInvalidToken("invalid or expired access token")
	}
	if _, err := as.grants.ActiveAccessToken(ctx, claims.ID); err != nil {
		return nil, oauth2.NewInvalidToken("invalid or expired access token")
	}

	user, err := as.users.Get(ctx, claims.Subject)
	if err != nil {
		log.Warn().Err(err).Str("user_id", claims.Subject).Msg("userinfo user lookup failed")
		return nil, oauth2.NewInvalidToken("invalid or expired access token")
	}

	resp := &oauth2.UserInfoResponse{
		Subject:       user.ID,
		Email:         user.Email,
		EmailVerified: user.EmailVerified,
		TenantID:      claims.TenantID,
		Permissions:   []string{},
	}

	scopes := utils.SplitScope(claims.Scope)
	if utils.Contains(scopes, oauth2.ScopeProfile) {
		resp.Name = user.FullName
		resp.Picture = user.AvatarURL
		if !user.UpdatedAt.IsZero() {
			resp.UpdatedAt = user.UpdatedAt.Unix()
		}
	}
	if utils.Contains(scopes, oauth2.ScopePhone) {
		resp.PhoneNumber = user.Phone
	}

	if tenant, err := as.tenants.Get(ctx, claims.TenantID); err == nil {
		resp.TenantName = tenant.Name
	}
	if m := user.ActiveMembership(claims.TenantID); m != nil && m.Role != nil {
		resp.Role = m.Role.Name
		if m.Role.Permissions != nil {
			resp.Permissions = m.Role.Permissions
		}
	}
	return resp, nil
}
