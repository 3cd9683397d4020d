package store

import (
	"context"
	"errors"

	"wagateway/internal/model"
)

// Records is the durable storage for instance records, keyed by tenant.
type Records interface {
	GetRecord(ctx context.Context, tenantID string) (model.InstanceRecord, error)
	PutRecord(ctx context.Context, rec model.InstanceRecord) error
}

// Tenants is the account-management view the gateway reads and writes back to.
type Tenants interface {
	FindTenant(ctx context.Context, tenantID string) (model.Tenant, error)
	UpdateTenantSession(ctx context.Context, tenantID string, s model.TenantSession) error
}

// Store is what the gateway process wires: both contracts plus lifecycle.
type Store interface {
	Records
	Tenants
	Ping(ctx context.Context) error
	Close() error
}

var ErrNotFound = errors.New("not found")
