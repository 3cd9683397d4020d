package webhooks

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"wagateway/internal/notify"
)

// CallbackChannel is a push channel that POSTs signed events to a tenant URL.
type CallbackChannel struct {
	id     string
	URL    string
	Secret string
	worker *Worker
}

func NewCallbackChannel(url, secret string, w *Worker) *CallbackChannel {
	return &CallbackChannel{id: "callback-" + uuid.NewString(), URL: url, Secret: secret, worker: w}
}

func (c *CallbackChannel) ID() string { return c.id }

// Deliver queues the event; the worker owns retries.
func (c *CallbackChannel) Deliver(ctx context.Context, evt notify.Event) error {
	body, err := json.Marshal(map[string]any{
		"id":       evt.ID,
		"type":     evt.Type,
		"tenantId": evt.TenantID,
		"ts":       evt.At.UTC().Format(time.RFC3339),
		"data":     evt.Data,
	})
	if err != nil {
		return err
	}
	c.worker.Enqueue(Delivery{TenantID: evt.TenantID, EventType: evt.Type, URL: c.URL, Secret: c.Secret, Payload: body})
	return nil
}
