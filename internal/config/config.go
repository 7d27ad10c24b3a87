package config

import "time"

type Config interface {
	EnvConfig
	CorsConfig
	OAuthConfig
	SSOConfig
	SecurityConfig
	StorageConfig
	BootstrapConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	GetBaseURL() string
	GetLogLevel() string
	IsProduction() bool
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

type OAuthConfig interface {
	GetSigningKey() string
	GetIssuer() string
	GetAuthCodeTimeout() time.Duration
	GetLoginURL() string
	GetConsentURL() string
}

type SSOConfig interface {
	GetSessionTTL() time.Duration
	GetRememberMeTTL() time.Duration
	GetSessionCookieName() string
	GetLogoutNotifyTimeout() time.Duration
}

type mainConfig struct {
	EnvVars
	Cors
	OAuth
	SSO
	Security
	Storage
	Bootstrap
}

func New() Config {
	return mainConfig{}
}
