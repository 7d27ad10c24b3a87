package tenants

import "context"

// Tenant is an organization users sign in to. Tokens carry its id and name.
type Tenant struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Domain   string `json:"domain,omitempty"`
	IsActive bool   `json:"is_active"`
}

type Repo interface {
	Upsert(ctx context.Context, tenant *Tenant) error
	Get(ctx context.Context, tenantID string) (*Tenant, error)
}
