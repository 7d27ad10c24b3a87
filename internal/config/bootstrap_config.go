package config

import "strings"

// BootstrapConfig describes the tenant, user and client seeded on startup.
type BootstrapConfig interface {
	GetBootstrapTenantID() string
	GetBootstrapTenantName() string
	GetBootstrapUserEmail() string
	GetBootstrapUserPassword() string
	GetBootstrapClientID() string
	GetBootstrapClientSecret() string
	GetBootstrapClientRedirectURIs() []string
}

type Bootstrap struct{}

var _ BootstrapConfig = Bootstrap{}

func (Bootstrap) GetBootstrapTenantID() string {
	return GetEnv("BOOTSTRAP_TENANT_ID", "default")
}

func (Bootstrap) GetBootstrapTenantName() string {
	return GetEnv("BOOTSTRAP_TENANT_NAME", "Default Tenant")
}

func (Bootstrap) GetBootstrapUserEmail() string {
	return GetEnv("BOOTSTRAP_USER_EMAIL", "")
}

func (Bootstrap) GetBootstrapUserPassword() string {
	return GetEnv("BOOTSTRAP_USER_PASSWORD", "")
}

func (Bootstrap) GetBootstrapClientID() string {
	return GetEnv("BOOTSTRAP_CLIENT_ID", "")
}

func (Bootstrap) GetBootstrapClientSecret() string {
	return GetEnv("BOOTSTRAP_CLIENT_SECRET", "")
}

func (Bootstrap) GetBootstrapClientRedirectURIs() []string {
	var uris []string
	for _, u := range strings.Split(GetEnv("BOOTSTRAP_CLIENT_REDIRECT_URIS", ""), ",") {
		if u = strings.TrimSpace(u); u != "" {
			uris = append(uris, u)
		}
	}
	return uris
}
