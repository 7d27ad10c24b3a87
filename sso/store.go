package sso

import (
	"context"
	stderrors "errors"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-sso-idp/internal/errors"
	"github.com/jrsteele09/go-sso-idp/token"
	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var (
	ErrSessionNotFound = stderrors.New("sso session not found")
	ErrSessionExpired  = stderrors.New("sso session expired")
)

const (
	TokenPrefix = "sso_"
	// tokenBytes encodes to 48 characters.
	tokenBytes = 36

	DefaultSessionTTL    = 24 * time.Hour
	DefaultRememberMeTTL = 30 * 24 * time.Hour
	DefaultActivityLimit = 50
)

var tokenFormat = regexp.MustCompile(`^sso_[A-Za-z0-9_-]{48}$`)

// IsValidToken is a format check only. It never touches the store.
func IsValidToken(sessionToken string) bool {
	return tokenFormat.MatchString(sessionToken)
}

func GenerateToken() (string, error) {
	t, err := token.GenerateOpaqueToken(tokenBytes)
	if err != nil {
		return "", err
	}
	return TokenPrefix + t, nil
}

type CreateRequest struct {
	UserID     string
	TenantID   string
	IPAddress  string
	UserAgent  string
	RememberMe bool
}

// Store manages SSO sessions, the apps connected to them and their activity trail.
type Store struct {
	repo          Repo
	sessionTTL    time.Duration
	rememberMeTTL time.Duration
	nowFunc       func() time.Time
}

type StoreOption func(*Store)

func WithNowFunc(now func() time.Time) StoreOption {
	return func(s *Store) {
		s.nowFunc = now
	}
}

func WithSessionTTL(ttl, rememberMeTTL time.Duration) StoreOption {
	return func(s *Store) {
		if ttl > 0 {
			s.sessionTTL = ttl
		}
		if rememberMeTTL > 0 {
			s.rememberMeTTL = rememberMeTTL
		}
	}
}

func NewStore(repo Repo, options ...StoreOption) *Store {
	s := &Store{
		repo:          repo,
		sessionTTL:    DefaultSessionTTL,
		rememberMeTTL: DefaultRememberMeTTL,
		nowFunc:       time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

func (s *Store) Now() time.Time {
	return s.nowFunc()
}

// TTL returns the lifetime a session created with rememberMe gets.
func (s *Store) TTL(rememberMe bool) time.Duration {
	if rememberMe {
		return s.rememberMeTTL
	}
	return s.sessionTTL
}

func (s *Store) Create(ctx context.Context, req CreateRequest) (*Session, error) {
	if req.UserID == "" {
		return nil, pkgerrors.Wrap(errors.ErrInvalidInput, "[Store.Create] user id is required")
	}
	sessionToken, err := GenerateToken()
	if err != nil {
		return nil, pkgerrors.Wrap(err, "[Store.Create] failed to generate session token")
	}

	device := ParseUserAgent(req.UserAgent)
	now := s.nowFunc()
	session := &Session{
		ID:             uuid.New().String(),
		Token:          sessionToken,
		UserID:         req.UserID,
		TenantID:       req.TenantID,
		IPAddress:      req.IPAddress,
		UserAgent:      req.UserAgent,
		DeviceType:     device.Type,
		DeviceName:     device.Name,
		RememberMe:     req.RememberMe,
		ExpiresAt:      now.Add(s.TTL(req.RememberMe)),
		LastActivityAt: now,
		CreatedAt:      now,
	}
	if err := s.repo.CreateSession(ctx, session); err != nil {
		return nil, pkgerrors.Wrap(err, "[Store.Create] failed to store session")
	}

	s.logActivity(ctx, &Activity{
		SessionID: session.ID,
		Type:      ActivityLogin,
		IPAddress: req.IPAddress,
		UserAgent: req.UserAgent,
		Metadata:  map[string]any{"device": device, "remember_me": req.RememberMe},
	})
	return session, nil
}

// Get returns the session for a token whether or not it has expired.
func (s *Store) Get(ctx context.Context, sessionToken string) (*Session, error) {
	if !IsValidToken(sessionToken) {
		return nil, ErrSessionNotFound
	}
	session, err := s.repo.GetSession(ctx, sessionToken)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, pkgerrors.Wrap(err, "[Store.Get] failed to get session")
	}
	return session, nil
}

func (s *Store) Active(ctx context.Context, sessionToken string) (*Session, error) {
	session, err := s.Get(ctx, sessionToken)
	if err != nil {
		return nil, err
	}
	if session.Expired(s.nowFunc()) {
		return nil, ErrSessionExpired
	}
	return session, nil
}

func (s *Store) GetByID(ctx context.Context, id string) (*Session, error) {
	session, err := s.repo.GetSessionByID(ctx, id)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, pkgerrors.Wrap(err, "[Store.GetByID] failed to get session")
	}
	return session, nil
}

func (s *Store) Touch(ctx context.Context, sessionToken string) error {
	if err := s.repo.TouchSession(ctx, sessionToken, s.nowFunc()); err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return ErrSessionNotFound
		}
		return pkgerrors.Wrap(err, "[Store.Touch] failed to touch session")
	}
	return nil
}

// Revoke soft-expires the session by moving ExpiresAt to now.
func (s *Store) Revoke(ctx context.Context, sessionToken string) error {
	if err := s.repo.RevokeSession(ctx, sessionToken, s.nowFunc()); err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return ErrSessionNotFound
		}
		return pkgerrors.Wrap(err, "[Store.Revoke] failed to revoke session")
	}
	return nil
}

// RevokeAll revokes every active session of the user and returns how many were revoked.
func (s *Store) RevokeAll(ctx context.Context, userID, reason string) (int, error) {
	return s.RevokeAllExcept(ctx, userID, "", reason)
}

// RevokeAllExcept is RevokeAll sparing the session with token keepToken.
func (s *Store) RevokeAllExcept(ctx context.Context, userID, keepToken, reason string) (int, error) {
	sessions, err := s.ListActive(ctx, userID)
	if err != nil {
		return 0, err
	}
	if reason == "" {
		reason = "all_sessions_revoked"
	}
	revoked := 0
	for _, session := range sessions {
		if keepToken != "" && session.Token == keepToken {
			continue
		}
		if err := s.Revoke(ctx, session.Token); err != nil {
			return revoked, pkgerrors.Wrapf(err, "[Store.RevokeAllExcept] failed to revoke session %s", session.ID)
		}
		revoked++
		s.logActivity(ctx, &Activity{
			SessionID: session.ID,
			Type:      ActivityForcedLogout,
			Metadata:  map[string]any{"reason": reason},
		})
	}
	return revoked, nil
}

func (s *Store) ListActive(ctx context.Context, userID string) ([]*Session, error) {
	sessions, err := s.repo.ListActiveSessions(ctx, userID, s.nowFunc())
	if err != nil {
		return nil, pkgerrors.Wrap(err, "[Store.ListActive] failed to list sessions")
	}
	return sessions, nil
}

// ConnectApp registers clientID against the session or refreshes its LastSeenAt.
func (s *Store) ConnectApp(ctx context.Context, sessionID, clientID, appSessionToken, logoutURL string) (*ConnectedApp, error) {
	now := s.nowFunc()
	app, created, err := s.repo.UpsertConnectedApp(ctx, &ConnectedApp{
		ID:              uuid.New().String(),
		SessionID:       sessionID,
		ClientID:        clientID,
		AppSessionToken: appSessionToken,
		LogoutURL:       logoutURL,
		ConnectedAt:     now,
		LastSeenAt:      now,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(err, "[Store.ConnectApp] failed to store connected app")
	}
	if created {
		s.logActivity(ctx, &Activity{
			SessionID: sessionID,
			Type:      ActivityAppConnect,
			ClientID:  clientID,
			Metadata:  map[string]any{"logout_url": app.LogoutURL},
		})
	}
	return app, nil
}

func (s *Store) DisconnectApp(ctx context.Context, sessionID, clientID string) error {
	if err := s.repo.DeleteConnectedApp(ctx, sessionID, clientID); err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return nil
		}
		return pkgerrors.Wrap(err, "[Store.DisconnectApp] failed to delete connected app")
	}
	s.logActivity(ctx, &Activity{SessionID: sessionID, Type: ActivityAppDisconnect, ClientID: clientID})
	return nil
}

func (s *Store) ConnectedApps(ctx context.Context, sessionID string) ([]*ConnectedApp, error) {
	apps, err := s.repo.ListConnectedApps(ctx, sessionID)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "[Store.ConnectedApps] failed to list connected apps")
	}
	return apps, nil
}

// LogActivity appends an entry to the session's trail. ID and CreatedAt are filled in when empty.
func (s *Store) LogActivity(ctx context.Context, activity *Activity) error {
	if activity.ID == "" {
		activity.ID = uuid.New().String()
	}
	if activity.CreatedAt.IsZero() {
		activity.CreatedAt = s.nowFunc()
	}
	if err := s.repo.AppendActivity(ctx, activity); err != nil {
		return pkgerrors.Wrap(err, "[Store.LogActivity] failed to append activity")
	}
	return nil
}

// logActivity is for audit entries that must not fail the surrounding operation.
func (s *Store) logActivity(ctx context.Context, activity *Activity) {
	if err := s.LogActivity(ctx, activity); err != nil {
		log.Warn().Err(err).Str("session_id", activity.SessionID).Str("activity", string(activity.Type)).Msg("failed to log session activity")
	}
}

// Activity lists the newest entries first. A non-positive limit means DefaultActivityLimit.
func (s *Store) Activity(ctx context.Context, sessionID string, limit int) ([]*Activity, error) {
	if limit <= 0 {
		limit = DefaultActivityLimit
	}
	entries, err := s.repo.ListActivity(ctx, sessionID, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "[Store.Activity] failed to list activity")
	}
	return entries, nil
}

func (s *Store) ActivityCount(ctx context.Context, sessionID string) (int, error) {
	n, err := s.repo.CountActivity(ctx, sessionID)
	if err != nil {
		return 0, pkgerrors.Wrap(err, "[Store.ActivityCount] failed to count activity")
	}
	return n, nil
}

// Sweep hard-deletes sessions whose expiry has passed.
func (s *Store) Sweep(ctx context.Context) (int, error) {
	n, err := s.repo.DeleteExpiredSessions(ctx, s.nowFunc())
	if err != nil {
		return n, pkgerrors.Wrap(err, "[Store.Sweep] failed to delete expired sessions")
	}
	return n, nil
}
