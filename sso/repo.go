package sso

import (
	"context"
	"time"
)

// Repo is the storage contract for sessions, connected apps and activity.
// Lookups return an error wrapping errors.ErrNotFound when nothing matches.
type Repo interface {
	CreateSession(ctx context.Context, session *Session) error
	GetSession(ctx context.Context, token string) (*Session, error)
	GetSessionByID(ctx context.Context, id string) (*Session, error)
	TouchSession(ctx context.Context, token string, at time.Time) error
	RevokeSession(ctx context.Context, token string, at time.Time) error
	// ListActiveSessions returns sessions with ExpiresAt after now, most recently active first.
	ListActiveSessions(ctx context.Context, userID string, now time.Time) ([]*Session, error)
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int, error)

	// UpsertConnectedApp creates or refreshes the (SessionID, ClientID) pair. Empty
	// AppSessionToken or LogoutURL values keep what is stored. created reports a new row.
	UpsertConnectedApp(ctx context.Context, app *ConnectedApp) (stored *ConnectedApp, created bool, err error)
	ListConnectedApps(ctx context.Context, sessionID string) ([]*ConnectedApp, error)
	DeleteConnectedApp(ctx context.Context, sessionID, clientID string) error

	AppendActivity(ctx context.Context, activity *Activity) error
	// ListActivity returns at most limit entries, newest first.
	ListActivity(ctx context.Context, sessionID string, limit int) ([]*Activity, error)
	CountActivity(ctx context.Context, sessionID string) (int, error)
}
