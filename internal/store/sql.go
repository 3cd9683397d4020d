package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"wagateway/internal/model"
)

// dialect covers the few places Postgres and SQLite disagree.
type dialect struct {
	name string
	// bind rewrites $N placeholders when the driver wants something else.
	bind   func(string) string
	schema []string
}

// sqlStore implements Store over database/sql. Timestamps are kept as
// unix nanoseconds so UpdatedAt ordering survives the round trip.
type sqlStore struct {
	db *sql.DB
	d  dialect
}

var baseSchema = []string{
	`CREATE TABLE IF NOT EXISTS instance_records (
    tenant_id TEXT PRIMARY KEY,
    provider TEXT NOT NULL,
    session_name TEXT NOT NULL DEFAULT '',
    session_token TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL,
    device_name TEXT NOT NULL DEFAULT '',
    phone_number TEXT NOT NULL DEFAULT '',
    connected_at_ns BIGINT,
    created_at_ns BIGINT NOT NULL,
    updated_at_ns BIGINT NOT NULL,
    last_observed_ns BIGINT NOT NULL DEFAULT 0,
    last_source TEXT NOT NULL DEFAULT ''
)`,
	`CREATE TABLE IF NOT EXISTS tenants (
    id TEXT PRIMARY KEY,
    username TEXT NOT NULL,
    session_name TEXT NOT NULL DEFAULT '',
    session_token TEXT NOT NULL DEFAULT ''
)`,
}

func (s *sqlStore) q(query string) string {
	if s.d.bind == nil {
		return query
	}
	return s.d.bind(query)
}

// Migrate creates the tables if they are missing.
func (s *sqlStore) Migrate(ctx context.Context) error {
	for _, stmt := range s.d.schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s migrate: %w", s.d.name, err)
		}
	}
	return nil
}

func (s *sqlStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *sqlStore) Close() error { return s.db.Close() }

func (s *sqlStore) GetRecord(ctx context.Context, tenantID string) (model.InstanceRecord, error) {
	var r model.InstanceRecord
	var status, source string
	var connected sql.NullInt64
	var created, updated, observed int64
	row := s.db.QueryRowContext(ctx, s.q(`SELECT tenant_id, provider, session_name, session_token, status, device_name, phone_number, connected_at_ns, created_at_ns, updated_at_ns, last_observed_ns, last_source FROM instance_records WHERE tenant_id=$1`), tenantID)
	err := row.Scan(&r.TenantID, &r.Provider, &r.SessionName, &r.SessionToken, &status, &r.DeviceName, &r.PhoneNumber, &connected, &created, &updated, &observed, &source)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return r, ErrNotFound
		}
		return r, err
	}
	r.Status = model.Status(status)
	r.LastSource = model.Source(source)
	r.CreatedAt = fromNanos(created)
	r.UpdatedAt = fromNanos(updated)
	if observed != 0 {
		r.LastObservedAt = fromNanos(observed)
	}
	if connected.Valid {
		t := fromNanos(connected.Int64)
		r.ConnectedAt = &t
	}
	return r, nil
}

func (s *sqlStore) PutRecord(ctx context.Context, r model.InstanceRecord) error {
	var connected any
	if r.ConnectedAt != nil {
		connected = r.ConnectedAt.UnixNano()
	}
	var observed int64
	if !r.LastObservedAt.IsZero() {
		observed = r.LastObservedAt.UnixNano()
	}
	_, err := s.db.ExecContext(ctx, s.q(`INSERT INTO instance_records (tenant_id, provider, session_name, session_token, status, device_name, phone_number, connected_at_ns, created_at_ns, updated_at_ns, last_observed_ns, last_source)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
ON CONFLICT (tenant_id) DO UPDATE SET provider=excluded.provider, session_name=excluded.session_name, session_token=excluded.session_token, status=excluded.status, device_name=excluded.device_name, phone_number=excluded.phone_number, connected_at_ns=excluded.connected_at_ns, updated_at_ns=excluded.updated_at_ns, last_observed_ns=excluded.last_observed_ns, last_source=excluded.last_source`),
		r.TenantID, r.Provider, r.SessionName, r.SessionToken, string(r.Status), r.DeviceName, r.PhoneNumber, connected, r.CreatedAt.UnixNano(), r.UpdatedAt.UnixNano(), observed, string(r.LastSource))
	return err
}

func (s *sqlStore) FindTenant(ctx context.Context, tenantID string) (model.Tenant, error) {
	var t model.Tenant
	row := s.db.QueryRowContext(ctx, s.q(`SELECT id, username, session_name, session_token FROM tenants WHERE id=$1`), tenantID)
	if err := row.Scan(&t.ID, &t.Username, &t.SessionName, &t.SessionToken); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return t, ErrNotFound
		}
		return t, err
	}
	return t, nil
}

func (s *sqlStore) UpdateTenantSession(ctx context.Context, tenantID string, ts model.TenantSession) error {
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE tenants SET session_name=COALESCE($2, session_name), session_token=COALESCE($3, session_token) WHERE id=$1`),
		tenantID, nullable(ts.SessionName), nullable(ts.SessionToken))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// PutTenant seeds or replaces an account.
func (s *sqlStore) PutTenant(ctx context.Context, t model.Tenant) error {
	_, err := s.db.ExecContext(ctx, s.q(`INSERT INTO tenants (id, username, session_name, session_token) VALUES ($1,$2,$3,$4)
ON CONFLICT (id) DO UPDATE SET username=excluded.username, session_name=excluded.session_name, session_token=excluded.session_token`),
		t.ID, t.Username, t.SessionName, t.SessionToken)
	return err
}

func nullable(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func fromNanos(ns int64) time.Time { return time.Unix(0, ns).UTC() }

// questionBind turns $N into ?N, which SQLite reads as the same positional parameter.
func questionBind(q string) string { return strings.ReplaceAll(q, "$", "?") }
