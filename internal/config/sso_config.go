package config

import "time"

type SSO struct{}

var _ SSOConfig = SSO{}

func (SSO) GetSessionTTL() time.Duration {
	return GetEnvDuration("SSO_SESSION_TTL", 24*time.Hour)
}

func (SSO) GetRememberMeTTL() time.Duration {
	return GetEnvDuration("SSO_REMEMBER_ME_TTL", 30*24*time.Hour)
}

func (SSO) GetSessionCookieName() string {
	return GetEnv("SSO_COOKIE_NAME", "sso_session_token")
}

func (SSO) GetLogoutNotifyTimeout() time.Duration {
	return GetEnvDuration("SLO_NOTIFY_TIMEOUT", 5*time.Second)
}
