package probe

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wagateway/internal/integrations"
)

type hit struct {
	Method string
	Path   string
	Query  string
	Body   map[string]any
	Token  string
}

type vendor struct {
	mu   sync.Mutex
	hits []hit
	// answer decides the status and body for a hit.
	answer func(h hit) (int, any)
}

func (v *vendor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h := hit{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery, Token: r.Header.Get("Authorization")}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&h.Body)
	}
	v.mu.Lock()
	v.hits = append(v.hits, h)
	v.mu.Unlock()
	status, body := v.answer(h)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (v *vendor) trace() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]string, 0, len(v.hits))
	for _, h := range v.hits {
		out = append(out, h.Method+" "+h.Path)
	}
	return out
}

func newResolver(url string) *Resolver {
	return &Resolver{
		Client:         &Client{BaseURL: url, Keys: integrations.Keyring{Admin: "adm", Global: "glob"}},
		AttemptTimeout: time.Second,
		Deadline:       5 * time.Second,
	}
}

func TestExpandOrder(t *testing.T) {
	cands := Expand(
		Endpoint{Path: "/a", Methods: []string{"post", "GET"}, Keys: []string{"name", "instance"}},
		Endpoint{Path: "/admin/b", Methods: []string{"GET"}, Keys: []string{"name", "instance"}, KeyMode: AllKeys},
	)
	require.Len(t, cands, 5)
	assert.Equal(t, Candidate{Method: "POST", Path: "/a", Keys: []string{"name"}}, cands[0])
	assert.Equal(t, Candidate{Method: "POST", Path: "/a", Keys: []string{"instance"}}, cands[1])
	assert.Equal(t, "GET", cands[2].Method)
	assert.Equal(t, []string{"name", "instance"}, cands[4].Keys)
	assert.True(t, cands[4].Admin)
}

func TestResolveStopsAtFirstSuccess(t *testing.T) {
	v := &vendor{answer: func(h hit) (int, any) {
		if h.Path == "/second" && h.Method == http.MethodGet {
			return 200, map[string]any{"ok": true}
		}
		return 404, map[string]any{"error": "nope"}
	}}
	srv := httptest.NewServer(v)
	defer srv.Close()

	cands := Expand(
		Endpoint{Path: "/first", Methods: []string{"POST"}, Keys: []string{"name", "instance"}},
		Endpoint{Path: "/second", Methods: []string{"POST", "GET"}, Keys: []string{"name"}},
		Endpoint{Path: "/third", Methods: []string{"POST"}},
	)
	res, err := newResolver(srv.URL).Resolve(context.Background(), "create", cands, Request{Session: "wa-ana-1"})
	require.NoError(t, err)
	assert.Equal(t, true, res.Payload["ok"])
	assert.Equal(t, []string{"POST /first", "POST /first", "POST /second", "GET /second"}, v.trace())
	assert.Len(t, res.Attempts, 4)
	assert.Equal(t, "/second", res.Candidate.Path)
}

func TestResolveDeterministic(t *testing.T) {
	answer := func(h hit) (int, any) {
		if h.Method == http.MethodDelete {
			return 200, map[string]any{}
		}
		return 500, map[string]any{}
	}
	cands := Expand(Paths([]string{"POST", "GET", "DELETE"}, []string{"instance", "name"}, EachKey, "/x/:name", "/y")...)

	var traces [][]string
	for i := 0; i < 3; i++ {
		v := &vendor{answer: answer}
		srv := httptest.NewServer(v)
		_, err := newResolver(srv.URL).Resolve(context.Background(), "disconnect", cands, Request{Session: "s 1"})
		srv.Close()
		require.NoError(t, err)
		traces = append(traces, v.trace())
	}
	assert.Equal(t, traces[0], traces[1])
	assert.Equal(t, traces[1], traces[2])
	assert.Equal(t, "DELETE /x/s 1", traces[0][len(traces[0])-1])
}

func TestResolveExhausted(t *testing.T) {
	v := &vendor{answer: func(h hit) (int, any) { return 403, map[string]any{"message": "denied"} }}
	srv := httptest.NewServer(v)
	defer srv.Close()

	cands := Expand(Endpoint{Path: "/a", Methods: []string{"GET"}}, Endpoint{Path: "/b", Methods: []string{"GET"}})
	_, err := newResolver(srv.URL).Resolve(context.Background(), "qr", cands, Request{})
	var ex *ExhaustedError
	require.True(t, errors.As(err, &ex))
	assert.Len(t, ex.Attempts, 2)
	assert.Equal(t, srv.URL+"/b", ex.LastURL)
	re, ok := integrations.IsRejected(err)
	require.True(t, ok)
	assert.Equal(t, 403, re.Status)
}

func TestResolveAcceptPredicate(t *testing.T) {
	v := &vendor{answer: func(h hit) (int, any) {
		if h.Path == "/empty" {
			return 200, map[string]any{}
		}
		return 200, map[string]any{"qrcode": "AAA"}
	}}
	srv := httptest.NewServer(v)
	defer srv.Close()

	cands := Expand(Endpoint{Path: "/empty", Methods: []string{"GET"}}, Endpoint{Path: "/qr", Methods: []string{"GET"}})
	res, err := newResolver(srv.URL).Resolve(context.Background(), "qr", cands, Request{
		Accept: func(p integrations.Payload) bool { return !integrations.ExtractQRCode(p).Empty() },
	})
	require.NoError(t, err)
	assert.Equal(t, "AAA", res.Payload["qrcode"])
	assert.Equal(t, "not_accepted", res.Attempts[0].Outcome)
}

func TestResolveSendsKeysAndExtras(t *testing.T) {
	v := &vendor{answer: func(h hit) (int, any) {
		if h.Method == http.MethodGet {
			return 200, map[string]any{}
		}
		return 405, map[string]any{}
	}}
	srv := httptest.NewServer(v)
	defer srv.Close()

	cands := Expand(Endpoint{Path: "/admin/logout", Methods: []string{"POST", "GET"}, Keys: []string{"instance"}})
	_, err := newResolver(srv.URL).Resolve(context.Background(), "disconnect", cands, Request{
		Session: "wa-ana-1",
		Extra:   map[string]string{"action": "logout"},
	})
	require.NoError(t, err)
	require.Len(t, v.hits, 2)
	assert.Equal(t, map[string]any{"instance": "wa-ana-1", "action": "logout"}, v.hits[0].Body)
	assert.Equal(t, "action=logout&instance=wa-ana-1", v.hits[1].Query)
	assert.Equal(t, "Bearer adm", v.hits[1].Token)
}

func TestResolveNoCredentialsSkipsWithoutCalling(t *testing.T) {
	v := &vendor{answer: func(h hit) (int, any) { return 200, map[string]any{} }}
	srv := httptest.NewServer(v)
	defer srv.Close()

	r := newResolver(srv.URL)
	r.Client.Keys = integrations.Keyring{Global: "glob", DisableGlobalFallback: true}
	_, err := r.Resolve(context.Background(), "qr", Expand(Endpoint{Path: "/qr", Methods: []string{"GET"}}), Request{})
	require.ErrorIs(t, err, integrations.ErrCredentialsMissing)
	assert.Empty(t, v.trace())
}

func TestResolveDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	r := newResolver(srv.URL)
	r.AttemptTimeout = 50 * time.Millisecond
	r.Deadline = 120 * time.Millisecond
	cands := Expand(Paths([]string{"GET"}, nil, EachKey, "/a", "/b", "/c", "/d", "/e")...)
	_, err := r.Resolve(context.Background(), "status", cands, Request{})
	require.ErrorIs(t, err, integrations.ErrVendorUnreachable)
	var ex *ExhaustedError
	require.True(t, errors.As(err, &ex))
	assert.Less(t, len(ex.Attempts), 5)
}

func TestExpandPath(t *testing.T) {
	assert.Equal(t, "/instance/wa%2F1/logout", ExpandPath("/instance/:name/logout", "wa/1"))
	assert.Equal(t, "/s/abc", ExpandPath("/s/{name}", "abc"))
}
