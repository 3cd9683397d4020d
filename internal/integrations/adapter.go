// Package integrations defines the vendor adapter contract: one small
// interface per capability, the error taxonomy adapters return, the
// credential precedence and the field rules used to read vendor payloads.
package integrations

import (
	"context"

	"wagateway/internal/model"
)

// Payload is a decoded vendor JSON response.
type Payload map[string]any

// Adapter is the minimum every vendor integration implements. Capabilities
// are discovered with type assertions; see Supports.
type Adapter interface {
	Name() string
}

// CallAuth carries the credentials known for one call. Keyring decides
// which one is actually sent.
type CallAuth struct {
	Override string
	Session  string
}

type TextSender interface {
	SendText(ctx context.Context, auth CallAuth, msg model.TextMessage) (Payload, error)
}

type CarouselSender interface {
	SendCarousel(ctx context.Context, auth CallAuth, msg model.CarouselMessage) (Payload, error)
}

// WebhookConfigurer points the vendor's event callbacks at url.
type WebhookConfigurer interface {
	ConfigureWebhook(ctx context.Context, auth CallAuth, url string) (Payload, error)
}

type SessionCreator interface {
	CreateSession(ctx context.Context, session string, auth CallAuth) (Payload, error)
}

type SessionConnector interface {
	ConnectSession(ctx context.Context, session string, auth CallAuth, phone string) (Payload, error)
}

type SessionDisconnector interface {
	DisconnectSession(ctx context.Context, session string, auth CallAuth) (Payload, error)
}

type StatusGetter interface {
	GetSessionStatus(ctx context.Context, session string, auth CallAuth) (Payload, error)
}

// QRCodeGetter fetches pairing material. force asks the vendor to issue a fresh code.
type QRCodeGetter interface {
	GetQRCode(ctx context.Context, session string, auth CallAuth, force bool) (Payload, error)
}

// SessionTokenResolver looks up the session-scoped credential using
// administrative access. It returns ErrNotFound when no listing knows the session.
type SessionTokenResolver interface {
	ResolveSessionToken(ctx context.Context, session string) (string, error)
}

// EventNormalizer maps an inbound vendor callback body to a ConnectionEvent.
// Adapters without it fall back to NormalizeEvent.
type EventNormalizer interface {
	NormalizeEvent(body Payload) model.ConnectionEvent
}
