package model

import "time"

// Status is the connection state of a tenant's vendor session.
type Status string

const (
	StatusUnlinked     Status = "unlinked"
	StatusCreated      Status = "created"
	StatusAwaitingQR   Status = "awaiting_qr"
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
)

// Valid reports whether s is one of the known states.
func (s Status) Valid() bool {
	switch s {
	case StatusUnlinked, StatusCreated, StatusAwaitingQR, StatusConnected, StatusDisconnected:
		return true
	}
	return false
}

// InstanceRecord is the ledger row for one tenant. There is at most one per tenant.
type InstanceRecord struct {
	TenantID     string     `json:"tenantId"`
	Provider     string     `json:"provider"`
	SessionName  string     `json:"sessionName,omitempty"`
	SessionToken string     `json:"-"`
	Status       Status     `json:"status"`
	DeviceName   string     `json:"deviceName,omitempty"`
	PhoneNumber  string     `json:"phoneNumber,omitempty"`
	ConnectedAt  *time.Time `json:"connectedAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`

	// LastObservedAt is the initiation time of the newest applied observation.
	// Events initiated earlier are stale.
	LastObservedAt time.Time `json:"lastObservedAt,omitempty"`
	LastSource     Source    `json:"lastSource,omitempty"`
}

// HasSession reports whether a vendor session name has been linked.
func (r InstanceRecord) HasSession() bool { return r.SessionName != "" }

// HasToken reports whether a session-scoped credential is cached.
func (r InstanceRecord) HasToken() bool { return r.SessionToken != "" }

// NewInstanceRecord returns the lazily created record for a tenant.
func NewInstanceRecord(tenantID, provider string, now time.Time) InstanceRecord {
	return InstanceRecord{
		TenantID:  tenantID,
		Provider:  provider,
		Status:    StatusUnlinked,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Source identifies where a ConnectionEvent came from.
type Source string

const (
	SourcePoll    Source = "poll"
	SourceWebhook Source = "webhook"
	SourceStream  Source = "stream"
	SourceAPI     Source = "api"
)

// Reported is the vendor-agnostic reading of a vendor status.
type Reported string

const (
	ReportedConnected    Reported = "connected"
	ReportedDisconnected Reported = "disconnected"
	ReportedPending      Reported = "pending"
	ReportedUnknown      Reported = "unknown"
)

// ConnectionEvent is a normalised status observation. It is always folded into
// an InstanceRecord and never stored on its own.
type ConnectionEvent struct {
	TenantID    string
	Reported    Reported
	RawStatus   string
	SessionHint string
	DeviceName  string
	PhoneNumber string
	ConnectedAt *time.Time
	ObservedAt  time.Time
	Source      Source
}

// Tenant is the account-management view of a tenant.
type Tenant struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	SessionName  string `json:"sessionName,omitempty"`
	SessionToken string `json:"-"`
}

// TenantSession holds the session fields written back to account management.
// Nil fields are left untouched.
type TenantSession struct {
	SessionName  *string
	SessionToken *string
}
