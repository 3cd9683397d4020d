package probe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/time/rate"

	"wagateway/internal/integrations"
)

// Client sends authenticated JSON requests to one vendor base URL.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Keys    integrations.Keyring
	// Limiter bounds the outbound request rate. Nil means unlimited.
	Limiter *rate.Limiter
	// AuthHeaders sets vendor auth headers for the chosen bearer.
	AuthHeaders func(h http.Header, bearer string, admin bool)
}

// Call describes a single vendor request.
type Call struct {
	Method string
	Path   string
	Query  url.Values
	Body   any
	Auth   integrations.CallAuth
	Admin  bool
}

// URL returns the absolute URL for call.
func (c *Client) URL(call Call) string {
	u := strings.TrimRight(c.BaseURL, "/") + call.Path
	if len(call.Query) > 0 {
		sep := "?"
		if strings.Contains(u, "?") {
			sep = "&"
		}
		u += sep + call.Query.Encode()
	}
	return u
}

// Do performs call and decodes the JSON answer. Non-object bodies are
// wrapped under "data" so list answers can be scanned like objects.
func (c *Client) Do(ctx context.Context, call Call) (integrations.Payload, int, error) {
	bearer, err := c.Keys.Bearer(call.Auth, call.Admin)
	if err != nil {
		return nil, 0, err
	}
	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return nil, 0, fmt.Errorf("%w: %v", integrations.ErrVendorUnreachable, err)
		}
	}
	var body io.Reader
	if call.Body != nil {
		b, err := json.Marshal(call.Body)
		if err != nil {
			return nil, 0, err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, call.Method, c.URL(call), body)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Accept", "application/json")
	if call.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.AuthHeaders != nil {
		c.AuthHeaders(req.Header, bearer, call.Admin)
	} else {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	hc := c.HTTP
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", integrations.ErrVendorUnreachable, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("%w: read body: %v", integrations.ErrVendorUnreachable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, resp.StatusCode, &integrations.RejectedError{Status: resp.StatusCode, Body: string(raw)}
	}
	return decode(raw), resp.StatusCode, nil
}

func decode(raw []byte) integrations.Payload {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return integrations.Payload{}
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return integrations.Payload{"body": string(raw)}
	}
	if m, ok := v.(map[string]any); ok {
		return integrations.Payload(m)
	}
	return integrations.Payload{"data": v}
}

// Outcome classifies an attempt result for logs and metrics.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, integrations.ErrCredentialsMissing):
		return "no_credentials"
	case errors.Is(err, integrations.ErrVendorUnreachable):
		return "unreachable"
	case errors.Is(err, errNotAccepted):
		return "not_accepted"
	}
	if _, ok := integrations.IsRejected(err); ok {
		return "rejected"
	}
	return "error"
}
