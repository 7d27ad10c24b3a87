package config

import "time"

type OAuth struct{}

var _ OAuthConfig = OAuth{}

// GetSigningKey returns the symmetric key used for HS256 token signing.
// An empty key makes every signing operation fail.
func (OAuth) GetSigningKey() string {
	return GetEnv("JWT_SECRET", "")
}

func (OAuth) GetIssuer() string {
	return GetEnv("ISSUER", EnvVars{}.GetBaseURL())
}

func (OAuth) GetAuthCodeTimeout() time.Duration {
	return GetEnvDuration("AUTH_CODE_TTL", 10*time.Minute)
}

func (OAuth) GetLoginURL() string {
	return GetEnv("LOGIN_URL", "/login")
}

func (OAuth) GetConsentURL() string {
	return GetEnv("CONSENT_URL", "/oauth/consent")
}
