package notify

import (
	"context"
	"sync"
)

// Channel is a push destination owned by one tenant.
type Channel interface {
	ID() string
	Deliver(ctx context.Context, evt Event) error
}

// Registry maps each tenant to at most one push channel. The last
// registration wins.
type Registry struct {
	mu       sync.Mutex
	byTenant map[string]Channel
	byID     map[string]string // channel id -> tenant
}

func NewRegistry() *Registry {
	return &Registry{byTenant: map[string]Channel{}, byID: map[string]string{}}
}

// Register binds ch to tenantID and returns the channel it replaced, if any.
func (r *Registry) Register(tenantID string, ch Channel) Channel {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.byTenant[tenantID]
	if prev != nil {
		delete(r.byID, prev.ID())
	}
	if oldTenant, ok := r.byID[ch.ID()]; ok && oldTenant != tenantID {
		delete(r.byTenant, oldTenant)
	}
	r.byTenant[tenantID] = ch
	r.byID[ch.ID()] = tenantID
	return prev
}

// Unregister removes ch wherever it is bound. A channel that was already
// replaced leaves the newer registration alone.
func (r *Registry) Unregister(ch Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tenantID, ok := r.byID[ch.ID()]
	if !ok {
		return
	}
	delete(r.byID, ch.ID())
	if cur := r.byTenant[tenantID]; cur != nil && cur.ID() == ch.ID() {
		delete(r.byTenant, tenantID)
	}
}

// Lookup returns tenantID's channel.
func (r *Registry) Lookup(tenantID string) (Channel, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.byTenant[tenantID]
	return ch, ok
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byTenant)
}
