// Package auth verifies operator bearer tokens and maps them to a tenant.
package auth

import (
	"context"
	"crypto"
	"crypto/hmac"
	"crypto/rsa"
	"crypto/sha256"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ErrInvalidToken marks every rejected credential.
var ErrInvalidToken = errors.New("invalid token")

const (
	ModeDev  = "dev"
	ModeHMAC = "hmac"
	ModeJWKS = "jwks"
)

// Principal is the caller behind a token.
type Principal struct {
	Tenant string
	Role   string
}

// IsAdmin reports whether the principal has the admin role.
func (p Principal) IsAdmin() bool { return p.Role == "admin" }

type Options struct {
	// Mode is dev (token is "tenant[:role]", unverified), hmac (HS256) or
	// jwks (RS256 against keys published at JWKSURL). Empty means dev.
	Mode        string
	HMACSecret  string
	JWKSURL     string
	TenantClaim string
	RoleClaim   string
	KeyTTL      time.Duration
	HTTP        *http.Client
	Now         func() time.Time
}

// Verifier turns bearer tokens into principals.
type Verifier struct {
	mode        string
	secret      []byte
	tenantClaim string
	roleClaim   string
	now         func() time.Time
	keys        *keySet
}

func NewVerifier(opts Options) *Verifier {
	mode := strings.ToLower(strings.TrimSpace(opts.Mode))
	if mode == "" {
		mode = ModeDev
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	client := opts.HTTP
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	ttl := opts.KeyTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Verifier{
		mode:        mode,
		secret:      []byte(opts.HMACSecret),
		tenantClaim: or(opts.TenantClaim, "tenant"),
		roleClaim:   or(opts.RoleClaim, "role"),
		now:         now,
		keys:        &keySet{url: opts.JWKSURL, http: client, ttl: ttl, now: now},
	}
}

func or(v, d string) string {
	if v != "" {
		return v
	}
	return d
}

func (v *Verifier) Mode() string { return v.mode }

// FromRequest verifies the Authorization bearer token of r.
func (v *Verifier) FromRequest(r *http.Request) (Principal, error) {
	scheme, tok, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(tok) == "" {
		return Principal{}, fmt.Errorf("%w: missing bearer token", ErrInvalidToken)
	}
	return v.VerifyContext(r.Context(), strings.TrimSpace(tok))
}

func (v *Verifier) Verify(raw string) (Principal, error) {
	return v.VerifyContext(context.Background(), raw)
}

// VerifyContext checks raw according to the configured mode. ctx bounds a
// key set fetch in jwks mode.
func (v *Verifier) VerifyContext(ctx context.Context, raw string) (Principal, error) {
	if v.mode == ModeDev {
		tenant, role, _ := strings.Cut(raw, ":")
		if tenant == "" {
			return Principal{}, fmt.Errorf("%w: dev token must be tenant[:role]", ErrInvalidToken)
		}
		return principalOf(tenant, role), nil
	}
	t, err := parseToken(raw)
	if err != nil {
		return Principal{}, err
	}
	if err := v.checkSignature(ctx, t); err != nil {
		return Principal{}, err
	}
	if t.expired(v.now()) {
		return Principal{}, fmt.Errorf("%w: token expired", ErrInvalidToken)
	}
	tenant := t.claim(v.tenantClaim)
	if tenant == "" {
		return Principal{}, fmt.Errorf("%w: missing %s claim", ErrInvalidToken, v.tenantClaim)
	}
	return principalOf(tenant, t.claim(v.roleClaim)), nil
}

func (v *Verifier) checkSignature(ctx context.Context, t token) error {
	switch v.mode {
	case ModeHMAC:
		if t.alg != "HS256" {
			return fmt.Errorf("%w: alg %q not allowed", ErrInvalidToken, t.alg)
		}
		mac := hmac.New(sha256.New, v.secret)
		mac.Write(t.signed)
		if !hmac.Equal(mac.Sum(nil), t.sig) {
			return fmt.Errorf("%w: bad signature", ErrInvalidToken)
		}
		return nil
	case ModeJWKS:
		if t.alg != "RS256" {
			return fmt.Errorf("%w: alg %q not allowed", ErrInvalidToken, t.alg)
		}
		pub, err := v.keys.key(ctx, t.kid)
		if err != nil {
			return err
		}
		sum := sha256.Sum256(t.signed)
		if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, sum[:], t.sig); err != nil {
			return fmt.Errorf("%w: bad signature", ErrInvalidToken)
		}
		return nil
	}
	return fmt.Errorf("unsupported auth mode %q", v.mode)
}

func principalOf(tenant, role string) Principal {
	role = strings.ToLower(strings.TrimSpace(role))
	if role == "" {
		role = "user"
	}
	return Principal{Tenant: tenant, Role: role}
}
