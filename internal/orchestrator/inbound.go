package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"wagateway/internal/integrations"
	"wagateway/internal/model"
	"wagateway/internal/webhooks"
)

// Ack is the answer to a vendor callback. Vendors always get one, never an
// error, so they do not retry.
type Ack struct {
	OK       bool         `json:"ok"`
	Accepted bool         `json:"accepted,omitempty"`
	Ignored  bool         `json:"ignored,omitempty"`
	Reason   string       `json:"reason,omitempty"`
	Status   model.Status `json:"status,omitempty"`
}

func ignored(reason string) Ack { return Ack{OK: true, Ignored: true, Reason: reason} }

// HandleInboundEvent verifies, normalises and applies a vendor callback.
func (o *Orchestrator) HandleInboundEvent(ctx context.Context, provider, tenantID string, header http.Header, body []byte) Ack {
	ack := o.handleInbound(ctx, provider, tenantID, header, body)
	outcome := "accepted"
	if ack.Ignored {
		outcome = ack.Reason
	}
	o.obs.ObserveInbound(outcome)
	return ack
}

func (o *Orchestrator) handleInbound(ctx context.Context, provider, tenantID string, header http.Header, body []byte) Ack {
	log := o.log.With("tenant", tenantID, "provider", provider)
	if !strings.EqualFold(provider, o.provider()) {
		return ignored("unknown_provider")
	}
	if strings.TrimSpace(tenantID) == "" {
		return ignored("missing_tenant")
	}
	if !webhooks.VerifyInbound(o.secret, header, body) {
		log.Warn("webhook signature rejected")
		return ignored("invalid_signature")
	}
	var payload integrations.Payload
	if err := json.Unmarshal(body, &payload); err != nil || payload == nil {
		return ignored("invalid_payload")
	}
	var ev model.ConnectionEvent
	if n, ok := o.adapter.(integrations.EventNormalizer); ok {
		ev = n.NormalizeEvent(payload)
	} else {
		ev = integrations.NormalizeEvent(payload)
	}
	if ev.RawStatus == "" {
		return ignored("missing_status")
	}
	ev.TenantID = tenantID
	ev.Source = model.SourceWebhook
	ev.ObservedAt = o.clock.Now()

	var ack Ack
	err := o.locked(ctx, tenantID, func(s *scope) error {
		out, err := s.apply(ctx, ev)
		if err != nil {
			return err
		}
		if !out.Write {
			ack = ignored(out.Reason)
			return nil
		}
		ack = Ack{OK: true, Accepted: true, Status: s.rec.Status, Reason: out.Reason}
		return nil
	})
	switch {
	case errors.Is(err, integrations.ErrSessionMismatch):
		log.Warn("webhook session mismatch", "err", err)
		return ignored("session_mismatch")
	case err != nil:
		log.Error("webhook not applied", "err", err)
		return ignored("internal_error")
	}
	log.Info("webhook applied", "status", ev.RawStatus, "accepted", ack.Accepted, "reason", ack.Reason)
	return ack
}
