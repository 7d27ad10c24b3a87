package sso

import (
	"time"
)

// DeviceType is the coarse class of the device a session was created from.
type DeviceType string

const (
	DeviceDesktop DeviceType = "desktop"
	DeviceMobile  DeviceType = "mobile"
	DeviceTablet  DeviceType = "tablet"
	DeviceUnknown DeviceType = "unknown"
)

// ActivityType names an entry in a session's audit trail.
type ActivityType string

const (
	ActivityLogin              ActivityType = "login"
	ActivityLogout             ActivityType = "logout"
	ActivityAppConnect         ActivityType = "app_connect"
	ActivityAppDisconnect      ActivityType = "app_disconnect"
	ActivityTokenRefresh       ActivityType = "token_refresh"
	ActivitySessionExpired     ActivityType = "session_expired"
	ActivityForcedLogout       ActivityType = "forced_logout"
	ActivityPasswordChanged    ActivityType = "password_changed"
	ActivitySuspiciousActivity ActivityType = "suspicious_activity"
)

// Session is a browser login shared by every application the user signs in to.
// A revoked session has ExpiresAt set to the revocation time.
type Session struct {
	ID             string     `json:"id"`
	Token          string     `json:"session_token"`
	UserID         string     `json:"user_id"`
	TenantID       string     `json:"tenant_id"`
	IPAddress      string     `json:"ip_address,omitempty"`
	UserAgent      string     `json:"user_agent,omitempty"`
	DeviceType     DeviceType `json:"device_type"`
	DeviceName     string     `json:"device_name,omitempty"`
	RememberMe     bool       `json:"remember_me"`
	ExpiresAt      time.Time  `json:"expires_at"`
	LastActivityAt time.Time  `json:"last_activity_at"`
	CreatedAt      time.Time  `json:"created_at"`
}

func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// ConnectedApp records that a client completed a token exchange under a session.
type ConnectedApp struct {
	ID              string    `json:"id"`
	SessionID       string    `json:"sso_session_id"`
	ClientID        string    `json:"client_id"`
	AppSessionToken string    `json:"app_session_token,omitempty"`
	LogoutURL       string    `json:"logout_url,omitempty"`
	ConnectedAt     time.Time `json:"connected_at"`
	LastSeenAt      time.Time `json:"last_seen_at"`
}

type Activity struct {
	ID        string         `json:"id"`
	SessionID string         `json:"sso_session_id"`
	Type      ActivityType   `json:"activity_type"`
	ClientID  string         `json:"client_id,omitempty"`
	IPAddress string         `json:"ip_address,omitempty"`
	UserAgent string         `json:"user_agent,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
