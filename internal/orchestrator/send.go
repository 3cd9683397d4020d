package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"wagateway/internal/integrations"
	"wagateway/internal/model"
)

// SendResult is the vendor's answer to an outbound message.
type SendResult struct {
	TenantID string               `json:"tenantId"`
	Provider string               `json:"provider"`
	Raw      integrations.Payload `json:"raw,omitempty"`
}

// SendText relays a text message through the tenant's session.
func (o *Orchestrator) SendText(ctx context.Context, tenantID string, msg model.TextMessage) (SendResult, error) {
	sender, ok := o.adapter.(integrations.TextSender)
	if !ok {
		return SendResult{}, fmt.Errorf("send text: %w", integrations.ErrUnsupported)
	}
	msg.Phone = model.DigitsOnly(msg.Phone)
	if msg.Phone == "" || strings.TrimSpace(msg.Text) == "" {
		return SendResult{}, fmt.Errorf("%w: phone and message are required", ErrInvalidArgument)
	}
	return o.send(ctx, tenantID, "text", func(auth integrations.CallAuth) (integrations.Payload, error) {
		return sender.SendText(ctx, auth, msg)
	})
}

// SendCarousel relays a card carousel through the tenant's session.
func (o *Orchestrator) SendCarousel(ctx context.Context, tenantID string, msg model.CarouselMessage) (SendResult, error) {
	sender, ok := o.adapter.(integrations.CarouselSender)
	if !ok {
		return SendResult{}, fmt.Errorf("send carousel: %w", integrations.ErrUnsupported)
	}
	msg.Phone = model.DigitsOnly(msg.Phone)
	if msg.Phone == "" || len(msg.Cards) == 0 {
		return SendResult{}, fmt.Errorf("%w: phone and at least one card are required", ErrInvalidArgument)
	}
	if msg.DelaySeconds < 0 {
		msg.DelaySeconds = 0
	}
	return o.send(ctx, tenantID, "carousel", func(auth integrations.CallAuth) (integrations.Payload, error) {
		return sender.SendCarousel(ctx, auth, msg)
	})
}

// send resolves the session token inside the tenant's scope and calls the
// vendor after leaving it. Session-scoped adapters never fall back to the
// global token here: no token means ErrCredentialsMissing.
func (o *Orchestrator) send(ctx context.Context, tenantID, kind string, call func(integrations.CallAuth) (integrations.Payload, error)) (SendResult, error) {
	var auth integrations.CallAuth
	if o.sessionScoped() {
		err := o.locked(ctx, tenantID, func(s *scope) error {
			tok, err := s.token(ctx)
			if err != nil {
				return err
			}
			auth.Session = tok
			return nil
		})
		if err != nil {
			o.obs.ObserveMessage(kind, "no_credentials")
			return SendResult{}, err
		}
	}
	p, err := call(auth)
	if err != nil {
		o.obs.ObserveMessage(kind, sendOutcome(err))
		o.log.Warn("message not sent", "tenant", tenantID, "kind", kind, "err", err)
		return SendResult{}, err
	}
	o.obs.ObserveMessage(kind, "sent")
	o.log.Info("message sent", "tenant", tenantID, "kind", kind)
	return SendResult{TenantID: tenantID, Provider: o.provider(), Raw: p}, nil
}

func sendOutcome(err error) string {
	switch {
	case errors.Is(err, integrations.ErrCredentialsMissing):
		return "no_credentials"
	case errors.Is(err, integrations.ErrVendorUnreachable):
		return "unreachable"
	}
	if _, ok := integrations.IsRejected(err); ok {
		return "rejected"
	}
	return "error"
}

// WebhookURL is where the vendor must post events for tenantID.
func (o *Orchestrator) WebhookURL(tenantID string) string {
	return o.publicURL + "/webhook/" + o.provider() + "/" + tenantID
}

// ConfigureWebhook points the vendor's callbacks for tenantID at this gateway.
func (o *Orchestrator) ConfigureWebhook(ctx context.Context, tenantID string) (integrations.Payload, error) {
	cfg, ok := o.adapter.(integrations.WebhookConfigurer)
	if !ok {
		return nil, fmt.Errorf("configure webhook: %w", integrations.ErrUnsupported)
	}
	if o.publicURL == "" {
		return nil, fmt.Errorf("%w: public base url not configured", ErrInvalidArgument)
	}
	var auth integrations.CallAuth
	err := o.locked(ctx, tenantID, func(s *scope) error {
		if s.rec.HasSession() {
			auth = s.auth(ctx)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	url := o.WebhookURL(tenantID)
	p, err := cfg.ConfigureWebhook(ctx, auth, url)
	if err != nil {
		return nil, err
	}
	o.log.Info("webhook configured", "tenant", tenantID, "url", url)
	return p, nil
}
