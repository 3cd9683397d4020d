package store

import (
	"context"
	"sync"

	"wagateway/internal/model"
)

// Memory is an in-memory store used when no database is configured.
type Memory struct {
	mu      sync.Mutex
	records map[string]model.InstanceRecord // tenant -> record
	tenants map[string]model.Tenant         // tenant -> account
}

func NewMemory() *Memory {
	return &Memory{
		records: map[string]model.InstanceRecord{},
		tenants: map[string]model.Tenant{},
	}
}

func (m *Memory) GetRecord(ctx context.Context, tenantID string) (model.InstanceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[tenantID]
	if !ok {
		return model.InstanceRecord{}, ErrNotFound
	}
	return r, nil
}

func (m *Memory) PutRecord(ctx context.Context, rec model.InstanceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.TenantID] = rec
	return nil
}

func (m *Memory) FindTenant(ctx context.Context, tenantID string) (model.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tenants[tenantID]
	if !ok {
		return model.Tenant{}, ErrNotFound
	}
	return t, nil
}

func (m *Memory) UpdateTenantSession(ctx context.Context, tenantID string, s model.TenantSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tenants[tenantID]
	if !ok {
		return ErrNotFound
	}
	if s.SessionName != nil {
		t.SessionName = *s.SessionName
	}
	if s.SessionToken != nil {
		t.SessionToken = *s.SessionToken
	}
	m.tenants[tenantID] = t
	return nil
}

// PutTenant seeds or replaces an account.
func (m *Memory) PutTenant(ctx context.Context, t model.Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tenants[t.ID] = t
	return nil
}

func (m *Memory) Ping(ctx context.Context) error { return nil }

func (m *Memory) Close() error { return nil }
