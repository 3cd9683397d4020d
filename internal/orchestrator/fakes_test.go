package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"wagateway/internal/clock"
	"wagateway/internal/integrations"
	"wagateway/internal/ledger"
	"wagateway/internal/model"
	"wagateway/internal/notify"
	"wagateway/internal/store"
)

// fakeVendor implements every capability from scripted answers.
type fakeVendor struct {
	mu    sync.Mutex
	calls map[string]int
	auths map[string]integrations.CallAuth

	createResp  integrations.Payload
	createDelay time.Duration
	tokens      map[string]string
	connectResp integrations.Payload
	statuses    []integrations.Payload
	statusErr   error
	// statusGate, when set, holds GetSessionStatus until it is closed;
	// statusEntered is signalled once the call is waiting.
	statusGate    chan struct{}
	statusEntered chan struct{}
	qrs         []integrations.Payload
	qrForced    []bool
}

func newFakeVendor() *fakeVendor {
	return &fakeVendor{
		calls:      map[string]int{},
		auths:      map[string]integrations.CallAuth{},
		createResp: integrations.Payload{"status": "created"},
		tokens:     map[string]string{},
	}
}

func (f *fakeVendor) Name() string { return "fake" }

func (f *fakeVendor) record(op string, auth integrations.CallAuth) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
	f.auths[op] = auth
}

func (f *fakeVendor) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeVendor) auth(op string) integrations.CallAuth {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.auths[op]
}

// next pops the head of q; the last answer repeats.
func next(q *[]integrations.Payload) integrations.Payload {
	if len(*q) == 0 {
		return integrations.Payload{}
	}
	p := (*q)[0]
	if len(*q) > 1 {
		*q = (*q)[1:]
	}
	return p
}

func (f *fakeVendor) SendText(ctx context.Context, auth integrations.CallAuth, msg model.TextMessage) (integrations.Payload, error) {
	f.record("send_text", auth)
	return integrations.Payload{"id": "m1"}, nil
}

func (f *fakeVendor) SendCarousel(ctx context.Context, auth integrations.CallAuth, msg model.CarouselMessage) (integrations.Payload, error) {
	f.record("send_carousel", auth)
	return integrations.Payload{"id": "m2"}, nil
}

func (f *fakeVendor) ConfigureWebhook(ctx context.Context, auth integrations.CallAuth, url string) (integrations.Payload, error) {
	f.record("configure_webhook", auth)
	return integrations.Payload{"webhookUrl": url}, nil
}

func (f *fakeVendor) CreateSession(ctx context.Context, session string, auth integrations.CallAuth) (integrations.Payload, error) {
	f.record("create", auth)
	if f.createDelay > 0 {
		time.Sleep(f.createDelay)
	}
	return f.createResp, nil
}

func (f *fakeVendor) ConnectSession(ctx context.Context, session string, auth integrations.CallAuth, phone string) (integrations.Payload, error) {
	f.record("connect", auth)
	return f.connectResp, nil
}

func (f *fakeVendor) DisconnectSession(ctx context.Context, session string, auth integrations.CallAuth) (integrations.Payload, error) {
	f.record("disconnect", auth)
	return integrations.Payload{"ok": true}, nil
}

func (f *fakeVendor) GetSessionStatus(ctx context.Context, session string, auth integrations.CallAuth) (integrations.Payload, error) {
	f.record("status", auth)
	if f.statusGate != nil {
		f.statusEntered <- struct{}{}
		<-f.statusGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	return next(&f.statuses), nil
}

func (f *fakeVendor) setStatuses(ps ...integrations.Payload) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = ps
}

func (f *fakeVendor) GetQRCode(ctx context.Context, session string, auth integrations.CallAuth, force bool) (integrations.Payload, error) {
	f.record("qr", auth)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.qrForced = append(f.qrForced, force)
	return next(&f.qrs), nil
}

func (f *fakeVendor) ResolveSessionToken(ctx context.Context, session string) (string, error) {
	f.record("resolve", integrations.CallAuth{})
	f.mu.Lock()
	defer f.mu.Unlock()
	if tok, ok := f.tokens[session]; ok {
		return tok, nil
	}
	return "", integrations.ErrNotFound
}

// textOnly has a single capability.
type textOnly struct{ sent int }

func (textOnly) Name() string { return "textonly" }

func (t *textOnly) SendText(ctx context.Context, auth integrations.CallAuth, msg model.TextMessage) (integrations.Payload, error) {
	t.sent++
	return integrations.Payload{}, nil
}

// pushRecorder is a push channel that keeps what it was given.
type pushRecorder struct {
	mu     sync.Mutex
	events []notify.Event
}

func (p *pushRecorder) ID() string { return "recorder" }

func (p *pushRecorder) Deliver(ctx context.Context, evt notify.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return nil
}

func (p *pushRecorder) ofType(typ string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.Type == typ {
			n++
		}
	}
	return n
}

type harness struct {
	orch  *Orchestrator
	mem   *store.Memory
	clock *clock.FakeClock
	push  *pushRecorder
}

func newHarness(t *testing.T, a integrations.Adapter, mutate ...func(*Options)) *harness {
	t.Helper()
	clk := clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	mem := store.NewMemory()
	require.NoError(t, mem.PutTenant(context.Background(), model.Tenant{ID: "42", Username: "João Silva"}))
	push := &pushRecorder{}
	n := notify.NewNotifier(nil, nil, clk, nil, nil)
	n.Registry().Register("42", push)
	opts := Options{
		Adapter:  a,
		Ledger:   ledger.New(mem, clk, a.Name()),
		Tenants:  mem,
		Notifier: n,
		Clock:    clk,
	}
	for _, m := range mutate {
		m(&opts)
	}
	o, err := New(opts)
	require.NoError(t, err)
	return &harness{orch: o, mem: mem, clock: clk, push: push}
}

// seed stores a linked record for tenant 42.
func (h *harness) seed(t *testing.T, status model.Status, session, token string) {
	t.Helper()
	ctx := context.Background()
	rec := model.NewInstanceRecord("42", "fake", h.clock.Now())
	rec.SessionName = session
	rec.SessionToken = token
	rec.Status = status
	require.NoError(t, h.mem.PutRecord(ctx, rec))
	require.NoError(t, h.mem.PutTenant(ctx, model.Tenant{ID: "42", Username: "João Silva", SessionName: session, SessionToken: token}))
}

func (h *harness) record(t *testing.T) model.InstanceRecord {
	t.Helper()
	rec, err := h.mem.GetRecord(context.Background(), "42")
	require.NoError(t, err)
	return rec
}
