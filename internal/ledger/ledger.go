// Package ledger is the authoritative per-tenant instance record, with the
// per-tenant exclusion scope every read-modify-write runs in.
package ledger

import (
	"context"
	"errors"
	"sync"
	"time"

	"wagateway/internal/clock"
	"wagateway/internal/model"
	"wagateway/internal/store"
)

// Ledger wraps store.Records with locking and UpdatedAt stamping.
type Ledger struct {
	records  store.Records
	clock    clock.Clock
	provider string

	mu    sync.Mutex
	locks map[string]*tenantLock
}

type tenantLock struct {
	sem  chan struct{}
	refs int
}

func New(records store.Records, clk clock.Clock, provider string) *Ledger {
	if clk == nil {
		clk = clock.Real()
	}
	return &Ledger{records: records, clock: clk, provider: provider, locks: map[string]*tenantLock{}}
}

// Now is the ledger's clock reading, used to stamp observations.
func (l *Ledger) Now() time.Time { return l.clock.Now() }

// Lock enters tenantID's exclusion scope. It returns ctx.Err() if ctx ends
// while waiting. Unrelated tenants never wait on each other.
func (l *Ledger) Lock(ctx context.Context, tenantID string) (unlock func(), err error) {
	l.mu.Lock()
	tl, ok := l.locks[tenantID]
	if !ok {
		tl = &tenantLock{sem: make(chan struct{}, 1)}
		l.locks[tenantID] = tl
	}
	tl.refs++
	l.mu.Unlock()

	select {
	case tl.sem <- struct{}{}:
	case <-ctx.Done():
		l.release(tenantID, tl)
		return nil, ctx.Err()
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			<-tl.sem
			l.release(tenantID, tl)
		})
	}, nil
}

func (l *Ledger) release(tenantID string, tl *tenantLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	tl.refs--
	if tl.refs == 0 {
		delete(l.locks, tenantID)
	}
}

// Get returns tenantID's record, or a fresh unlinked one that is not yet stored.
func (l *Ledger) Get(ctx context.Context, tenantID string) (model.InstanceRecord, error) {
	rec, err := l.records.GetRecord(ctx, tenantID)
	if errors.Is(err, store.ErrNotFound) {
		return model.NewInstanceRecord(tenantID, l.provider, l.clock.Now()), nil
	}
	return rec, err
}

// Put stores rec with an UpdatedAt strictly later than the stored one.
// Callers hold the tenant lock.
func (l *Ledger) Put(ctx context.Context, rec model.InstanceRecord) (model.InstanceRecord, error) {
	prev := rec.UpdatedAt
	if cur, err := l.records.GetRecord(ctx, rec.TenantID); err == nil && cur.UpdatedAt.After(prev) {
		prev = cur.UpdatedAt
	} else if err != nil && !errors.Is(err, store.ErrNotFound) {
		return rec, err
	}
	now := l.clock.Now()
	if !now.After(prev) {
		now = prev.Add(time.Nanosecond)
	}
	if rec.Provider == "" {
		rec.Provider = l.provider
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	if err := l.records.PutRecord(ctx, rec); err != nil {
		return rec, err
	}
	return rec, nil
}

// Mutate runs fn on the current record inside the tenant's scope and stores
// the result when fn reports a write.
func (l *Ledger) Mutate(ctx context.Context, tenantID string, fn func(*model.InstanceRecord) (bool, error)) (model.InstanceRecord, error) {
	unlock, err := l.Lock(ctx, tenantID)
	if err != nil {
		return model.InstanceRecord{}, err
	}
	defer unlock()
	rec, err := l.Get(ctx, tenantID)
	if err != nil {
		return rec, err
	}
	write, err := fn(&rec)
	if err != nil || !write {
		return rec, err
	}
	return l.Put(ctx, rec)
}
