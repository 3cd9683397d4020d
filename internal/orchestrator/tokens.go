package orchestrator

import (
	"context"
	"fmt"

	"wagateway/internal/integrations"
	"wagateway/internal/model"
)

// token returns the session credential for the scope's record. A cached
// token is returned without a vendor call. Otherwise the adapter's admin
// lookup runs and a hit is persisted to the ledger and the tenant directory.
func (s *scope) token(ctx context.Context) (string, error) {
	if s.rec.HasToken() {
		return s.rec.SessionToken, nil
	}
	if !s.rec.HasSession() {
		return "", fmt.Errorf("%w: no session linked", integrations.ErrCredentialsMissing)
	}
	resolver, ok := s.o.adapter.(integrations.SessionTokenResolver)
	if !ok {
		return "", fmt.Errorf("%w: %s cannot look up session tokens", integrations.ErrCredentialsMissing, s.o.provider())
	}
	tok, err := resolver.ResolveSessionToken(ctx, s.rec.SessionName)
	if err != nil {
		s.o.log.Info("session token not resolved", "tenant", s.rec.TenantID, "session", s.rec.SessionName, "err", err)
		return "", fmt.Errorf("%w: session %s: %v", integrations.ErrCredentialsMissing, s.rec.SessionName, err)
	}
	s.rec.SessionToken = tok
	if err := s.save(ctx); err != nil {
		return "", err
	}
	s.writeBack(ctx, model.TenantSession{SessionToken: &tok})
	s.o.log.Info("session token resolved", "tenant", s.rec.TenantID, "session", s.rec.SessionName, "token", integrations.Mask(tok))
	return tok, nil
}

// auth is the credential set for a tenant-scoped vendor call. A missing
// session token is left to the keyring, which may fall back to the global token.
func (s *scope) auth(ctx context.Context) integrations.CallAuth {
	tok, _ := s.token(ctx)
	return integrations.CallAuth{Session: tok}
}

// sessionScoped reports whether the adapter authenticates per session.
// Adapters with fixed credentials send without a session token.
func (o *Orchestrator) sessionScoped() bool {
	return integrations.Supports(o.adapter, integrations.CapResolveSessionToken) ||
		integrations.Supports(o.adapter, integrations.CapCreateSession)
}
