package probe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"wagateway/internal/integrations"
)

var errNotAccepted = errors.New("response not accepted")

// Attempt records one probe try.
type Attempt struct {
	Method   string        `json:"method"`
	URL      string        `json:"url"`
	Key      string        `json:"key,omitempty"`
	Status   int           `json:"status,omitempty"`
	Outcome  string        `json:"outcome"`
	Err      string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// ExhaustedError is returned when no candidate succeeded.
type ExhaustedError struct {
	Op       string
	Attempts []Attempt
	LastURL  string
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s: all %d candidates failed (last url %s): %v", e.Op, len(e.Attempts), e.LastURL, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

// Request is what the resolver sends to every candidate.
type Request struct {
	Session string
	Auth    integrations.CallAuth
	// Extra fields go into every body or query, e.g. action=logout.
	Extra map[string]string
	// Accept, when set, must approve a 2xx payload for it to count.
	Accept func(integrations.Payload) bool
}

// Observer is told about every attempt.
type Observer interface {
	ObserveProbe(op, outcome string, d time.Duration)
}

// Result is the winning answer.
type Result struct {
	Payload   integrations.Payload
	Candidate Candidate
	Attempts  []Attempt
}

// Resolver walks candidates in order and stops at the first accepted answer.
type Resolver struct {
	Client *Client
	// AttemptTimeout bounds each candidate. Zero means no per-attempt bound.
	AttemptTimeout time.Duration
	// Deadline bounds the whole operation. Zero means no bound.
	Deadline time.Duration
	Logger   *slog.Logger
	Observer Observer
}

func (r *Resolver) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.Default()
	}
	return r.Logger
}

// Resolve tries cands for op. It never retries a candidate.
func (r *Resolver) Resolve(ctx context.Context, op string, cands []Candidate, req Request) (Result, error) {
	if r.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Deadline)
		defer cancel()
	}
	var attempts []Attempt
	var last error
	var lastURL string
	for _, c := range cands {
		if err := ctx.Err(); err != nil {
			last = fmt.Errorf("%w: %v", integrations.ErrVendorUnreachable, err)
			break
		}
		call := r.build(c, req)
		lastURL = r.Client.URL(call)
		start := time.Now()
		payload, status, err := r.try(ctx, call, req.Accept)
		a := Attempt{
			Method:   c.Method,
			URL:      lastURL,
			Key:      strings.Join(c.Keys, ","),
			Status:   status,
			Outcome:  Outcome(err),
			Duration: time.Since(start),
		}
		if err != nil {
			a.Err = err.Error()
		}
		attempts = append(attempts, a)
		if r.Observer != nil {
			r.Observer.ObserveProbe(op, a.Outcome, a.Duration)
		}
		if err == nil {
			r.logger().Debug("probe matched", "op", op, "method", c.Method, "url", lastURL, "attempts", len(attempts))
			return Result{Payload: payload, Candidate: c, Attempts: attempts}, nil
		}
		r.logger().Debug("probe attempt failed", "op", op, "method", c.Method, "url", lastURL, "outcome", a.Outcome, "status", status)
		last = err
	}
	if last == nil {
		last = integrations.ErrNotFound
	}
	return Result{Attempts: attempts}, &ExhaustedError{Op: op, Attempts: attempts, LastURL: lastURL, Last: last}
}

func (r *Resolver) try(ctx context.Context, call Call, accept func(integrations.Payload) bool) (integrations.Payload, int, error) {
	if r.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.AttemptTimeout)
		defer cancel()
	}
	payload, status, err := r.Client.Do(ctx, call)
	if err != nil {
		return nil, status, err
	}
	if accept != nil && !accept(payload) {
		return nil, status, errNotAccepted
	}
	return payload, status, nil
}

// build substitutes the session into the path and places it under the
// candidate keys: JSON body for POST/PUT/PATCH, query otherwise.
func (r *Resolver) build(c Candidate, req Request) Call {
	path := ExpandPath(c.Path, req.Session)
	call := Call{Method: c.Method, Path: path, Auth: req.Auth, Admin: c.Admin}
	switch c.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		body := map[string]any{}
		for k, v := range req.Extra {
			body[k] = extraValue(v)
		}
		if req.Session != "" {
			for _, k := range c.Keys {
				body[k] = req.Session
			}
		}
		call.Body = body
	default:
		q := url.Values{}
		for k, v := range req.Extra {
			q.Set(k, v)
		}
		if req.Session != "" {
			for _, k := range c.Keys {
				q.Set(k, req.Session)
			}
		}
		call.Query = q
	}
	return call
}

// ExpandPath replaces :name and {name} with the escaped session name.
func ExpandPath(path, session string) string {
	esc := url.PathEscape(strings.TrimSpace(session))
	path = strings.ReplaceAll(path, ":name", esc)
	return strings.ReplaceAll(path, "{name}", esc)
}

// JSON bodies carry booleans as booleans.
func extraValue(v string) any {
	switch v {
	case "true":
		return true
	case "false":
		return false
	}
	return v
}
