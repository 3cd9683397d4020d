package webhooks

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"wagateway/internal/clock"
	"wagateway/internal/notify"
)

type resultLog struct {
	mu      sync.Mutex
	results []Result
}

func (r *resultLog) add(res Result) {
	r.mu.Lock()
	r.results = append(r.results, res)
	r.mu.Unlock()
}

func TestWorkerProcessOnce_SuccessAndSignature(t *testing.T) {
	var gotSig, gotType string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("X-Signature")
		gotType = r.Header.Get("X-Event-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(200)
	}))
	defer srv.Close()

	log := &resultLog{}
	w := NewWorker(clock.Fake(time.Unix(0, 0)), 3, nil)
	w.HTTP = srv.Client()
	w.OnResult = log.add

	ch := NewCallbackChannel(srv.URL, "secret", w)
	if err := ch.Deliver(context.Background(), notify.Event{ID: "evt1", Type: notify.TypeConnected, TenantID: "t1"}); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	w.processOnce(context.Background())

	if gotType != notify.TypeConnected {
		t.Fatalf("missing type header: %q", gotType)
	}
	if !VerifyHMAC("secret", gotBody, gotSig) {
		t.Fatalf("signature does not verify: %q", gotSig)
	}
	if len(log.results) != 1 || !log.results[0].Success || !log.results[0].Final {
		t.Fatalf("expected one final success, got: %+v", log.results)
	}
	if w.Pending() != 0 {
		t.Fatalf("queue not drained")
	}
}

func TestWorkerRetriesWithBackoffThenDrops(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(500)
	}))
	defer srv.Close()

	clk := clock.Fake(time.Unix(0, 0))
	log := &resultLog{}
	w := NewWorker(clk, 2, nil)
	w.HTTP = srv.Client()
	w.OnResult = log.add
	w.Enqueue(Delivery{URL: srv.URL, Payload: []byte(`{}`)})

	w.processOnce(context.Background())
	if calls != 1 || w.Pending() != 1 {
		t.Fatalf("want 1 call and a retry queued, got calls=%d pending=%d", calls, w.Pending())
	}
	// Not yet due.
	w.processOnce(context.Background())
	if calls != 1 {
		t.Fatalf("retried before backoff elapsed")
	}
	clk.Advance(nextBackoff(0))
	w.processOnce(context.Background())
	if calls != 2 || w.Pending() != 0 {
		t.Fatalf("want drop after max attempts, calls=%d pending=%d", calls, w.Pending())
	}
	last := log.results[len(log.results)-1]
	if last.Success || !last.Final || last.Code != 500 {
		t.Fatalf("unexpected final result %+v", last)
	}
}

func TestNextBackoffCapped(t *testing.T) {
	if nextBackoff(-1) != time.Second {
		t.Fatalf("negative attempts")
	}
	if nextBackoff(50) != 1024*time.Second {
		t.Fatalf("cap at 2^10 seconds, got %s", nextBackoff(50))
	}
}
