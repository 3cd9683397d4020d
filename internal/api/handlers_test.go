package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wagateway/internal/auth"
	"wagateway/internal/clock"
	"wagateway/internal/integrations"
	"wagateway/internal/integrations/uazapi"
	"wagateway/internal/ledger"
	"wagateway/internal/model"
	"wagateway/internal/notify"
	"wagateway/internal/orchestrator"
	"wagateway/internal/store"
	"wagateway/internal/webhooks"
)

// vendor answers from a route table keyed by "METHOD /path" and records
// the session token of every request.
type vendor struct {
	mu     sync.Mutex
	routes map[string]any
	tokens map[string]string
}

func (v *vendor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key := r.Method + " " + r.URL.Path
	v.mu.Lock()
	v.tokens[key] = r.Header.Get("token")
	body, ok := v.routes[key]
	v.mu.Unlock()
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

func (v *vendor) set(key string, body any) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.routes[key] = body
}

func (v *vendor) token(key string) string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.tokens[key]
}

type recorder struct {
	mu     sync.Mutex
	events []notify.Event
}

func (p *recorder) ID() string { return "recorder" }

func (p *recorder) Deliver(ctx context.Context, evt notify.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return nil
}

func (p *recorder) count(typ string) int {
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

type fixture struct {
	srv    *Server
	h      http.Handler
	vendor *vendor
	mem    *store.Memory
}

func newTestServer(t *testing.T) *fixture {
	t.Helper()
	v := &vendor{
		routes: map[string]any{
			"POST /instance/init": map[string]any{"token": "tok-42", "instance": map[string]any{"name": "wa-joao-silva-42"}},
			"GET /instance/status": map[string]any{
				"instance": map[string]any{"status": "disconnected"},
				"status":   map[string]any{"connected": false},
			},
			"POST /instance/connect": map[string]any{"instance": map[string]any{"qrcode": "data:image/png;base64,QUJD", "status": "connecting"}},
			"POST /send/text":        map[string]any{"id": "msg-1"},
			"POST /session/logout":   map[string]any{"ok": true},
		},
		tokens: map[string]string{},
	}
	vs := httptest.NewServer(v)
	t.Cleanup(vs.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := uazapi.New(uazapi.Options{
		BaseURL:        vs.URL,
		Keys:           integrations.Keyring{Admin: "adm", DisableGlobalFallback: true},
		AttemptTimeout: time.Second,
		Deadline:       5 * time.Second,
		Logger:         logger,
	})
	require.NoError(t, err)

	mem := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, mem.PutTenant(ctx, model.Tenant{ID: "42", Username: "João Silva"}))
	require.NoError(t, mem.PutTenant(ctx, model.Tenant{ID: "7", Username: "Ana"}))

	clk := clock.Real()
	n := notify.NewNotifier(nil, nil, clk, logger, nil)
	orch, err := orchestrator.New(orchestrator.Options{
		Adapter:   a,
		Ledger:    ledger.New(mem, clk, a.Name()),
		Tenants:   mem,
		Notifier:  n,
		Clock:     clk,
		Logger:    logger,
		PublicURL: "https://gw.example.com",
	})
	require.NoError(t, err)
	s, err := NewServer(Options{
		Orchestrator: orch,
		Verifier:     auth.NewVerifier(auth.Options{Mode: "dev"}),
		Store:        mem,
		Worker:       webhooks.NewWorker(clk, 2, logger),
		Logger:       logger,
	})
	require.NoError(t, err)
	return &fixture{srv: s, h: s.Routes(), vendor: v, mem: mem}
}

func (f *fixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	f.h.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &m), rr.Body.String())
	return m
}

func TestHealthReady(t *testing.T) {
	f := newTestServer(t)
	rr := f.do(t, http.MethodGet, "/healthz", "", nil)
	if rr.Code != 200 {
		t.Fatalf("health: got %d", rr.Code)
	}
	rr = f.do(t, http.MethodGet, "/readyz", "", nil)
	if rr.Code != 200 {
		t.Fatalf("ready: got %d", rr.Code)
	}
	rr = f.do(t, http.MethodGet, "/metrics", "", nil)
	if rr.Code != 200 {
		t.Fatalf("metrics: got %d", rr.Code)
	}
}

type failingPinger struct{}

func (failingPinger) Ping(ctx context.Context) error { return errors.New("down") }

func TestReadyReportsFailingDependency(t *testing.T) {
	f := newTestServer(t)
	f.srv.ready["redis"] = failingPinger{}
	rr := f.do(t, http.MethodGet, "/readyz", "", nil)
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	checks := decodeBody(t, rr)["checks"].(map[string]any)
	assert.Equal(t, "down", checks["redis"])
	assert.Equal(t, "ok", checks["store"])
}

func TestRequiresBearer(t *testing.T) {
	f := newTestServer(t)
	rr := f.do(t, http.MethodPost, "/v1/instance/ensure", "", nil)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
	assert.Equal(t, "Unauthorized", decodeBody(t, rr)["title"])
}

func TestEnsureConnectSendDisconnect(t *testing.T) {
	f := newTestServer(t)

	rr := f.do(t, http.MethodPost, "/v1/instance/ensure", "42", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	res := decodeBody(t, rr)
	assert.Equal(t, "wa-joao-silva-42", res["sessionName"])
	assert.Equal(t, true, res["tokenSaved"])
	assert.Equal(t, "created", res["status"])

	ts, err := f.mem.FindTenant(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, "tok-42", ts.SessionToken)

	rr = f.do(t, http.MethodPost, "/v1/instance/connect", "42", map[string]string{"phone": "+55 (11) 9999"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	qr := decodeBody(t, rr)
	assert.Equal(t, "dataurl", qr["format"])
	assert.Equal(t, true, qr["qrAvailable"])
	assert.Equal(t, "awaiting_qr", qr["status"])
	assert.Equal(t, "tok-42", f.vendor.token("POST /instance/connect"))

	rr = f.do(t, http.MethodPost, "/v1/messages/text", "42", map[string]string{"phone": "5511999", "message": "oi"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "tok-42", f.vendor.token("POST /send/text"))

	rr = f.do(t, http.MethodPost, "/v1/instance/disconnect", "42", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "disconnected", decodeBody(t, rr)["status"])
}

func TestErrorMapping(t *testing.T) {
	f := newTestServer(t)

	// tenant 7 has no session: status is 404, send is a credentials problem.
	rr := f.do(t, http.MethodGet, "/v1/instance/status", "7", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = f.do(t, http.MethodPost, "/v1/messages/text", "7", map[string]string{"phone": "5511999", "message": "oi"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Credentials missing", decodeBody(t, rr)["title"])

	rr = f.do(t, http.MethodPost, "/v1/messages/text", "42", map[string]string{"phone": "", "message": "oi"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = f.do(t, http.MethodPost, "/v1/instance/ensure", "999", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = f.do(t, http.MethodPost, "/v1/instance/bind", "42", map[string]string{"token": "x"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("x: %w", integrations.ErrVendorUnreachable), http.StatusBadGateway},
		{&integrations.RejectedError{Status: 422}, 422},
		{&integrations.RejectedError{Status: 302}, http.StatusBadGateway},
		{orchestrator.ErrNoSession, http.StatusNotFound},
		{fmt.Errorf("x: %w", integrations.ErrUnsupported), http.StatusNotImplemented},
		{fmt.Errorf("%w: nope", integrations.ErrCredentialsMissing), http.StatusBadRequest},
		{integrations.ErrSessionMismatch, http.StatusConflict},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		got, _ := classify(c.err)
		assert.Equal(t, c.want, got, c.err.Error())
	}
}

func TestStatusDegradesWhenVendorFails(t *testing.T) {
	f := newTestServer(t)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/v1/instance/ensure", "42", nil).Code)
	f.vendor.mu.Lock()
	delete(f.vendor.routes, "GET /instance/status")
	f.vendor.mu.Unlock()

	rr := f.do(t, http.MethodGet, "/v1/instance/status", "42", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	res := decodeBody(t, rr)
	assert.Equal(t, true, res["stale"])
	assert.Equal(t, "created", res["status"])
}

// A mismatched callback is dropped; the matching one connects the tenant
// once and a replay does not notify again.
func TestInboundWebhookMismatchAndReplay(t *testing.T) {
	f := newTestServer(t)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/v1/instance/ensure", "42", nil).Code)
	push := &recorder{}
	f.srv.Orch.Notifier().Registry().Register("42", push)

	post := func(body string) map[string]any {
		req := httptest.NewRequest(http.MethodPost, "/webhook/uazapi/42", strings.NewReader(body))
		rr := httptest.NewRecorder()
		f.h.ServeHTTP(rr, req)
		require.Equal(t, http.StatusOK, rr.Code)
		return decodeBody(t, rr)
	}

	ack := post(`{"instance":"wa-someone-else-1","status":"connected"}`)
	assert.Equal(t, "session_mismatch", ack["reason"])
	assert.Equal(t, 0, push.count(notify.TypeConnected))

	ack = post(`{"instance":"wa-joao-silva-42","status":"connected","phone":"+55 11 9999"}`)
	assert.Equal(t, true, ack["accepted"])
	assert.Equal(t, "connected", ack["status"])

	post(`{"instance":"wa-joao-silva-42","status":"connected"}`)
	assert.Equal(t, 1, push.count(notify.TypeConnected))

	rec, err := f.srv.Orch.Record(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, model.StatusConnected, rec.Status)
	assert.Equal(t, "55119999", rec.PhoneNumber)

	ack = post(`not json`)
	assert.Equal(t, "invalid_payload", ack["reason"])
	ack = post(`{"status":"connected"}`)
	assert.Equal(t, true, ack["ok"])
	req := httptest.NewRequest(http.MethodPost, "/webhook/other/42", strings.NewReader(`{"status":"connected"}`))
	rr := httptest.NewRecorder()
	f.h.ServeHTTP(rr, req)
	assert.Equal(t, "unknown_provider", decodeBody(t, rr)["reason"])
}

func TestCapabilitiesAndAdminWebhook(t *testing.T) {
	f := newTestServer(t)
	rr := f.do(t, http.MethodGet, "/v1/capabilities", "42", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "uazapi", decodeBody(t, rr)["provider"])

	rr = f.do(t, http.MethodPost, "/v1/admin/webhook", "42", nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = f.do(t, http.MethodPost, "/v1/admin/webhook?tenantId=7", "1:admin", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "https://gw.example.com/webhook/uazapi/7", decodeBody(t, rr)["webhookUrl"])
}

func TestCallbackRegistration(t *testing.T) {
	f := newTestServer(t)
	rr := f.do(t, http.MethodPost, "/v1/callbacks", "42", map[string]string{"url": "ftp://x"})
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = f.do(t, http.MethodPost, "/v1/callbacks", "42", map[string]string{"url": "https://tenant.example.com/hook", "secret": "s"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	res := decodeBody(t, rr)
	assert.True(t, strings.HasPrefix(res["channelId"].(string), "callback-"))
	assert.Equal(t, true, res["signed"])

	f.srv.Orch.Notifier().Notify(context.Background(), "42", notify.TypeStatus, map[string]any{"status": "created"})
	assert.Equal(t, 1, f.srv.Worker.Pending())

	rr = f.do(t, http.MethodDelete, "/v1/callbacks", "42", nil)
	require.Equal(t, http.StatusNoContent, rr.Code)
	rr = f.do(t, http.MethodDelete, "/v1/callbacks", "42", nil)
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestPushWebsocketRegister(t *testing.T) {
	f := newTestServer(t)
	srv := httptest.NewServer(f.h)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/ws?access_token=42"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "register"}))
	var msg wsMessage
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, "registered", msg.Type)
	assert.Equal(t, "42", msg.TenantID)

	f.srv.Orch.Notifier().Notify(context.Background(), "42", notify.TypeConnected, map[string]any{"status": "connected"})
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, "event", msg.Type)
	require.NotNil(t, msg.Event)
	assert.Equal(t, notify.TypeConnected, msg.Event.Type)

	_ = conn.Close()
	require.Eventually(t, func() bool { return f.srv.Orch.Notifier().Registry().Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestPushDeliverDoesNotWaitOnSlowSocket(t *testing.T) {
	ch := newWSChannel(nil)
	evt := notify.Event{Type: notify.TypeStatus, TenantID: "42"}
	for i := 0; i < wsQueueSize; i++ {
		require.NoError(t, ch.Deliver(context.Background(), evt))
	}
	start := time.Now()
	err := ch.Deliver(context.Background(), evt)
	require.ErrorIs(t, err, errPushBacklog)
	assert.Less(t, time.Since(start), time.Second)
	assert.Len(t, ch.out, wsQueueSize)
}

func TestEventsStream(t *testing.T) {
	f := newTestServer(t)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/v1/instance/ensure", "42", nil).Code)
	f.vendor.set("GET /instance/status", map[string]any{"status": map[string]any{"connected": true, "loggedIn": true}})

	srv := httptest.NewServer(f.h)
	defer srv.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v1/instance/events?interval=1000", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer 42")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	var names []string
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		line := sc.Text()
		if name, ok := strings.CutPrefix(line, "event: "); ok {
			names = append(names, name)
			if name == "connected" {
				break
			}
		}
	}
	assert.Equal(t, []string{"status", "connected"}, names)
}

func TestEventsStreamWithoutSession(t *testing.T) {
	f := newTestServer(t)
	rr := f.do(t, http.MethodGet, "/v1/instance/events", "7", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
