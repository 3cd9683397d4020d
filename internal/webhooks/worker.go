package webhooks

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"wagateway/internal/clock"
)

// Delivery is one queued callback POST.
type Delivery struct {
	ID            string
	TenantID      string
	EventType     string
	URL           string
	Secret        string
	Payload       []byte
	Attempts      int
	NextAttemptAt time.Time
}

// Result is reported after every attempt.
type Result struct {
	Delivery  Delivery
	Success   bool
	Final     bool
	Code      int
	LatencyMs int
	LastError string
}

// Worker sends queued deliveries on a ticker, retrying with exponential
// backoff until MaxAttempts.
type Worker struct {
	HTTP        *http.Client
	Clock       clock.Clock
	MaxAttempts int
	Interval    time.Duration
	Log         *slog.Logger
	// OnResult, when set, sees every attempt.
	OnResult func(Result)

	mu    sync.Mutex
	queue []*Delivery
}

func NewWorker(clk clock.Clock, maxAttempts int, logger *slog.Logger) *Worker {
	if clk == nil {
		clk = clock.Real()
	}
	if maxAttempts <= 0 {
		maxAttempts = 10
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		HTTP:        &http.Client{Timeout: 5 * time.Second},
		Clock:       clk,
		MaxAttempts: maxAttempts,
		Interval:    time.Second,
		Log:         logger,
	}
}

// Enqueue schedules d for immediate delivery.
func (w *Worker) Enqueue(d Delivery) string {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	d.NextAttemptAt = w.Clock.Now()
	w.mu.Lock()
	w.queue = append(w.queue, &d)
	w.mu.Unlock()
	return d.ID
}

// Pending returns the number of queued deliveries.
func (w *Worker) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.queue)
}

// Run processes the queue until ctx ends.
func (w *Worker) Run(ctx context.Context) {
	ticker := w.Clock.NewTicker(w.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.processOnce(ctx)
		}
	}
}

func (w *Worker) due() []*Delivery {
	now := w.Clock.Now()
	w.mu.Lock()
	defer w.mu.Unlock()
	var due []*Delivery
	rest := w.queue[:0]
	for _, d := range w.queue {
		if !d.NextAttemptAt.After(now) {
			due = append(due, d)
			continue
		}
		rest = append(rest, d)
	}
	w.queue = rest
	return due
}

func (w *Worker) processOnce(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	for _, d := range w.due() {
		res := w.send(ctx, d)
		d.Attempts++
		if !res.Success && d.Attempts < w.MaxAttempts {
			d.NextAttemptAt = w.Clock.Now().Add(nextBackoff(d.Attempts - 1))
			w.mu.Lock()
			w.queue = append(w.queue, d)
			w.mu.Unlock()
		} else {
			res.Final = true
		}
		res.Delivery = *d
		if !res.Success && res.Final {
			w.Log.Warn("callback dropped", "tenant", d.TenantID, "url", d.URL, "attempts", d.Attempts, "code", res.Code, "err", res.LastError)
		}
		if w.OnResult != nil {
			w.OnResult(res)
		}
	}
}

func (w *Worker) send(ctx context.Context, d *Delivery) Result {
	var res Result
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.URL, bytes.NewReader(d.Payload))
	if err != nil {
		res.LastError = err.Error()
		return res
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-Type", d.EventType)
	if d.Secret != "" {
		req.Header.Set("X-Signature", SignHMAC(d.Secret, d.Payload))
	}
	start := time.Now()
	resp, err := w.HTTP.Do(req)
	res.LatencyMs = int(time.Since(start).Milliseconds())
	if err != nil {
		res.LastError = err.Error()
		return res
	}
	res.Code = resp.StatusCode
	_ = resp.Body.Close()
	res.Success = res.Code >= 200 && res.Code < 300
	return res
}

func nextBackoff(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts > 10 {
		attempts = 10
	}
	base := time.Second * time.Duration(1<<attempts)
	if base > time.Hour {
		base = time.Hour
	}
	return base
}
