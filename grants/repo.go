package grants

import (
	"context"
	"time"
)

// Repo is the data-access interface for codes, tokens and consents.
// Lookups return internal/errors.ErrNotFound for unknown keys.
type Repo interface {
	CreateCode(ctx context.Context, code *AuthorizationCode) error
	GetCode(ctx context.Context, code string) (*AuthorizationCode, error)
	// DeleteCode is an atomic delete-if-exists: of two concurrent calls exactly one succeeds
	// and the other gets ErrNotFound.
	DeleteCode(ctx context.Context, code string) error

	CreateAccessToken(ctx context.Context, token *AccessToken) error
	GetAccessToken(ctx context.Context, token string) (*AccessToken, error)
	// RevokeAccessToken sets RevokedAt. ErrNotFound when missing or already revoked.
	RevokeAccessToken(ctx context.Context, token string, at time.Time) error

	CreateRefreshToken(ctx context.Context, token *RefreshToken) error
	GetRefreshToken(ctx context.Context, token string) (*RefreshToken, error)
	// RevokeRefreshToken is an atomic compare-and-set on RevokedAt. ErrNotFound when missing or already revoked.
	RevokeRefreshToken(ctx context.Context, token string, at time.Time) error

	GetConsent(ctx context.Context, userID, clientID, tenantID string) (*Consent, error)
	UpsertConsent(ctx context.Context, consent *Consent) error

	DeleteExpired(ctx context.Context, now time.Time) (SweepResult, error)
}
