package tenantrepofakes

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-sso-idp/internal/errors"
	"github.com/jrsteele09/go-sso-idp/tenants"
)

var _ tenants.Repo = (*FakeTenantRepo)(nil)

type FakeTenantRepo struct {
	tenants map[string]tenants.Tenant
	lock    sync.RWMutex
}

func NewFakeTenantRepo() *FakeTenantRepo {
	return &FakeTenantRepo{
		tenants: make(map[string]tenants.Tenant),
	}
}

func (tr *FakeTenantRepo) Upsert(_ context.Context, tenant *tenants.Tenant) error {
	tr.lock.Lock()
	defer tr.lock.Unlock()
	if tenant.ID == "" {
		tenant.ID = uuid.New().String()
	}
	tr.tenants[tenant.ID] = *tenant
	return nil
}

func (tr *FakeTenantRepo) Get(_ context.Context, tenantID string) (*tenants.Tenant, error) {
	tr.lock.RLock()
	defer tr.lock.RUnlock()
	t, ok := tr.tenants[tenantID]
	if !ok {
		return nil, errors.NotFoundf("tenant %s", tenantID)
	}
	return &t, nil
}
