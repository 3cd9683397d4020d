package notify

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"wagateway/internal/clock"
)

// Observer counts notifications by route and outcome.
type Observer interface {
	ObserveNotification(route, outcome string)
}

// Notifier publishes to the stream broker and the tenant's push channel.
type Notifier struct {
	broker   Broker
	registry *Registry
	clock    clock.Clock
	log      *slog.Logger
	observer Observer
}

func NewNotifier(b Broker, r *Registry, clk clock.Clock, logger *slog.Logger, obs Observer) *Notifier {
	if b == nil {
		b = NewMemoryBroker()
	}
	if r == nil {
		r = NewRegistry()
	}
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{broker: b, registry: r, clock: clk, log: logger, observer: obs}
}

func (n *Notifier) Broker() Broker { return n.broker }

func (n *Notifier) Registry() *Registry { return n.registry }

// Notify sends evt to every listener of tenantID. Delivery is best effort:
// failures are logged and counted, never returned.
func (n *Notifier) Notify(ctx context.Context, tenantID, typ string, data map[string]any) Event {
	evt := Event{ID: uuid.NewString(), Type: typ, TenantID: tenantID, At: n.clock.Now().UTC(), Data: data}
	n.broker.Publish(tenantID, evt)
	n.observe("stream", "published")

	ch, ok := n.registry.Lookup(tenantID)
	if !ok {
		return evt
	}
	if err := ch.Deliver(ctx, evt); err != nil {
		n.log.Warn("push delivery failed", "tenant", tenantID, "channel", ch.ID(), "type", typ, "err", err)
		n.observe("push", "failed")
		return evt
	}
	n.observe("push", "delivered")
	return evt
}

func (n *Notifier) observe(route, outcome string) {
	if n.observer != nil {
		n.observer.ObserveNotification(route, outcome)
	}
}
