package config

type SecurityConfig interface {
	GetSecureCookies() bool
	GetAdminAPIKey() string
}

type Security struct{}

var _ SecurityConfig = Security{}

// GetSecureCookies defaults to true in production.
func (Security) GetSecureCookies() bool {
	return GetEnvBool("SECURE_COOKIES", EnvVars{}.IsProduction())
}

// GetAdminAPIKey returns the bearer key guarding the admin API. Empty disables the admin API.
func (Security) GetAdminAPIKey() string {
	return GetEnv("ADMIN_API_KEY", "")
}
