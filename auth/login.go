package auth

import (
	"context"
	"errors"
	"strings"

	internalerrors "github.com/jrsteele09/go-sso-idp/internal/errors"
	"github.com/jrsteele09/go-sso-idp/sso"
	pkgerrors "github.com/pkg/errors"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrNoTenantMembership = errors.New("user has no active membership in the tenant")
)

type LoginRequest struct {
	Email      string
	Password   string
	TenantID   string
	IPAddress  string
	UserAgent  string
	RememberMe bool
}

// Login checks the user's password and opens an SSO session for them.
func (as *AuthorizationService) Login(ctx context.Context, req LoginRequest) (*sso.Session, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		return nil, ErrInvalidCredentials
	}
	user, err := as.users.GetByEmail(ctx, email)
	if err != nil {
		if internalerrors.Is(err, internalerrors.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, pkgerrors.Wrap(err, "[AuthorizationService.Login] failed to get user")
	}
	if !user.Authenticate(req.Password) {
		return nil, ErrInvalidCredentials
	}

	tenantID := req.TenantID
	if tenantID == "" {
		tenantID = user.DefaultTenantID()
	}
	if tenantID == "" || user.ActiveMembership(tenantID) == nil {
		return nil, ErrNoTenantMembership
	}

	session, err := as.sessions.Create(ctx, sso.CreateRequest{
		UserID:     user.ID,
		TenantID:   tenantID,
		IPAddress:  req.IPAddress,
		UserAgent:  req.UserAgent,
		RememberMe: req.RememberMe,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(err, "[AuthorizationService.Login] failed to create session")
	}
	return session, nil
}
