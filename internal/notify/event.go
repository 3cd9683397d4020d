// Package notify fans instance changes out to live listeners: stream
// subscribers through a Broker and one push channel per tenant through
// the Registry.
package notify

import "time"

// Event types.
const (
	TypeConnected = "instance_connected"
	TypeStatus    = "instance_status"
)

// Event is one notification for a tenant.
type Event struct {
	ID       string         `json:"id"`
	Type     string         `json:"type"`
	TenantID string         `json:"tenantId"`
	At       time.Time      `json:"at"`
	Data     map[string]any `json:"data,omitempty"`
}
