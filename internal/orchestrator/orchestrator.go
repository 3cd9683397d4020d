// Package orchestrator drives a tenant's vendor session: it resolves
// credentials, calls the adapter, folds the answers into the ledger through
// the state machine and hands every status change to the notifier.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"wagateway/internal/clock"
	"wagateway/internal/integrations"
	"wagateway/internal/ledger"
	"wagateway/internal/lifecycle"
	"wagateway/internal/model"
	"wagateway/internal/notify"
	"wagateway/internal/store"
)

var (
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNoSession is returned for operations that need a linked session.
	ErrNoSession = fmt.Errorf("%w: no session linked", integrations.ErrNotFound)
)

// Observer receives orchestration counters.
type Observer interface {
	ObserveTransition(from, to model.Status)
	ObserveInbound(outcome string)
	ObserveMessage(kind, outcome string)
}

type nopObserver struct{}

func (nopObserver) ObserveTransition(from, to model.Status) {}
func (nopObserver) ObserveInbound(outcome string)           {}
func (nopObserver) ObserveMessage(kind, outcome string)     {}

type Options struct {
	Adapter  integrations.Adapter
	Ledger   *ledger.Ledger
	Tenants  store.Tenants
	Notifier *notify.Notifier
	Clock    clock.Clock
	Logger   *slog.Logger
	Observer Observer

	// ManualMode stops EnsureSession from creating sessions.
	ManualMode bool
	// PublicURL is the externally reachable base of this gateway.
	PublicURL     string
	WebhookSecret string
}

type Orchestrator struct {
	adapter   integrations.Adapter
	ledger    *ledger.Ledger
	tenants   store.Tenants
	notifier  *notify.Notifier
	clock     clock.Clock
	log       *slog.Logger
	obs       Observer
	manual    bool
	publicURL string
	secret    string
}

func New(opts Options) (*Orchestrator, error) {
	if opts.Adapter == nil {
		return nil, errors.New("orchestrator: adapter required")
	}
	if opts.Ledger == nil || opts.Tenants == nil {
		return nil, errors.New("orchestrator: ledger and tenants required")
	}
	o := &Orchestrator{
		adapter:   opts.Adapter,
		ledger:    opts.Ledger,
		tenants:   opts.Tenants,
		notifier:  opts.Notifier,
		clock:     opts.Clock,
		log:       opts.Logger,
		obs:       opts.Observer,
		manual:    opts.ManualMode,
		publicURL: strings.TrimRight(opts.PublicURL, "/"),
		secret:    opts.WebhookSecret,
	}
	if o.clock == nil {
		o.clock = clock.Real()
	}
	if o.log == nil {
		o.log = slog.Default()
	}
	if o.obs == nil {
		o.obs = nopObserver{}
	}
	if o.notifier == nil {
		o.notifier = notify.NewNotifier(nil, nil, o.clock, o.log, nil)
	}
	return o, nil
}

func (o *Orchestrator) Adapter() integrations.Adapter { return o.adapter }

func (o *Orchestrator) Notifier() *notify.Notifier { return o.notifier }

// Record returns the stored record for tenantID without calling the vendor.
func (o *Orchestrator) Record(ctx context.Context, tenantID string) (model.InstanceRecord, error) {
	return o.ledger.Get(ctx, tenantID)
}

// scope is one pass through a tenant's exclusion scope. Status changes made
// inside it are dispatched after the lock is released.
type scope struct {
	o       *Orchestrator
	rec     model.InstanceRecord
	tenant  model.Tenant
	known   bool
	changes []lifecycle.Outcome
}

func (o *Orchestrator) locked(ctx context.Context, tenantID string, fn func(s *scope) error) error {
	unlock, err := o.ledger.Lock(ctx, tenantID)
	if err != nil {
		return err
	}
	s := &scope{o: o}
	err = s.load(ctx, tenantID)
	if err == nil {
		err = fn(s)
	}
	unlock()
	for _, out := range s.changes {
		o.dispatch(ctx, out)
	}
	return err
}

// load reads the record and adopts a session the tenant directory already knows.
func (s *scope) load(ctx context.Context, tenantID string) error {
	rec, err := s.o.ledger.Get(ctx, tenantID)
	if err != nil {
		return err
	}
	s.rec = rec
	t, err := s.o.tenants.FindTenant(ctx, tenantID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		s.tenant = model.Tenant{ID: tenantID}
		return nil
	case err != nil:
		return err
	}
	s.tenant, s.known = t, true
	if s.rec.HasSession() || t.SessionName == "" {
		return nil
	}
	s.rec.SessionName = t.SessionName
	if s.rec.SessionToken == "" {
		s.rec.SessionToken = t.SessionToken
	}
	return s.transition(ctx, model.StatusCreated)
}

func (s *scope) save(ctx context.Context) error {
	saved, err := s.o.ledger.Put(ctx, s.rec)
	if err != nil {
		return err
	}
	s.rec = saved
	return nil
}

// transition moves the record along an explicit edge and stores it.
func (s *scope) transition(ctx context.Context, to model.Status) error {
	out, err := lifecycle.Transition(s.rec, to)
	if err != nil || !out.Write {
		return err
	}
	s.rec = out.Record
	if err := s.save(ctx); err != nil {
		return err
	}
	out.Record = s.rec
	s.changes = append(s.changes, out)
	return nil
}

// transitionAt is transition for a change the gateway itself initiated at
// observed. The stamp makes checks started before it stale.
func (s *scope) transitionAt(ctx context.Context, to model.Status, observed time.Time) error {
	if observed.After(s.rec.LastObservedAt) {
		s.rec.LastObservedAt = observed
	}
	s.rec.LastSource = model.SourceAPI
	out, err := lifecycle.Transition(s.rec, to)
	if err != nil {
		return err
	}
	s.rec = out.Record
	if err := s.save(ctx); err != nil {
		return err
	}
	if out.Changed {
		out.Record = s.rec
		s.changes = append(s.changes, out)
	}
	return nil
}

// apply folds an observation into the record and stores it.
func (s *scope) apply(ctx context.Context, ev model.ConnectionEvent) (lifecycle.Outcome, error) {
	out, err := lifecycle.Apply(s.rec, ev, s.o.clock.Now())
	if err != nil || !out.Write {
		return out, err
	}
	s.rec = out.Record
	if err := s.save(ctx); err != nil {
		return out, err
	}
	out.Record = s.rec
	if out.Changed {
		s.changes = append(s.changes, out)
	}
	return out, nil
}

// writeBack copies session fields to the tenant directory. A tenant the
// directory does not know is skipped.
func (s *scope) writeBack(ctx context.Context, fields model.TenantSession) {
	if !s.known {
		return
	}
	if err := s.o.tenants.UpdateTenantSession(ctx, s.rec.TenantID, fields); err != nil {
		s.o.log.Warn("tenant session write-back failed", "tenant", s.rec.TenantID, "err", err)
	}
}

func (o *Orchestrator) dispatch(ctx context.Context, out lifecycle.Outcome) {
	rec := out.Record
	data := map[string]any{
		"tenantId":    rec.TenantID,
		"sessionName": rec.SessionName,
		"status":      rec.Status,
		"previous":    out.From,
	}
	if rec.DeviceName != "" {
		data["deviceName"] = rec.DeviceName
	}
	if rec.PhoneNumber != "" {
		data["phoneNumber"] = rec.PhoneNumber
	}
	typ := notify.TypeStatus
	if out.To == model.StatusConnected {
		typ = notify.TypeConnected
		if rec.ConnectedAt != nil {
			data["connectedAt"] = rec.ConnectedAt.UTC()
		}
	}
	o.notifier.Notify(ctx, rec.TenantID, typ, data)
	o.obs.ObserveTransition(out.From, out.To)
	o.log.Info("instance status changed", "tenant", rec.TenantID, "session", rec.SessionName, "from", out.From, "to", out.To, "source", rec.LastSource)
}

func (o *Orchestrator) provider() string { return o.adapter.Name() }
