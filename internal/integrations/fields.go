package integrations

import (
	"strings"
	"time"

	"wagateway/internal/model"
)

// Path is a dotted key path into a Payload, e.g. "raw.instance.token".
type Path string

// Lookup walks p through nested objects.
func (p Payload) Lookup(path Path) (any, bool) {
	var cur any = map[string]any(p)
	for _, key := range strings.Split(string(path), ".") {
		m, ok := asMap(cur)
		if !ok {
			return nil, false
		}
		cur, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// FirstString returns the first non-blank string found along paths.
func (p Payload) FirstString(paths ...Path) string {
	for _, path := range paths {
		if v, ok := p.Lookup(path); ok {
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				return s
			}
		}
	}
	return ""
}

// FirstBool returns the first boolean found along paths.
func (p Payload) FirstBool(paths ...Path) (value, found bool) {
	for _, path := range paths {
		if v, ok := p.Lookup(path); ok {
			if b, ok := v.(bool); ok {
				return b, true
			}
		}
	}
	return false, false
}

// AnyTrue reports whether any path holds boolean true.
func (p Payload) AnyTrue(paths ...Path) bool {
	for _, path := range paths {
		if v, ok := p.Lookup(path); ok {
			if b, ok := v.(bool); ok && b {
				return true
			}
		}
	}
	return false
}

// Object returns the nested object at path, or nil.
func (p Payload) Object(path Path) Payload {
	v, ok := p.Lookup(path)
	if !ok {
		return nil
	}
	m, _ := asMap(v)
	return m
}

func asMap(v any) (Payload, bool) {
	switch m := v.(type) {
	case Payload:
		return m, true
	case map[string]any:
		return Payload(m), true
	}
	return nil, false
}

// Extraction rules, tried in order.
var (
	TokenPaths = []Path{
		"token", "instance.token", "data.token", "raw.token", "raw.data.token", "raw.instance.token",
		"session_token", "bearer_token", "api_token", "accessToken", "access_token",
	}
	DeviceNamePaths = []Path{
		"device_name", "instance.device_name", "raw.device_name", "raw.instance.device_name",
		"status.device_name", "phone_device.name", "instance.device.name", "raw.instance.device.name",
		"deviceName",
	}
	PhonePaths = []Path{
		"phone", "instance.phone", "status.phone", "raw.phone", "raw.instance.phone", "raw.data.phone",
		"instance.me.id", "raw.instance.me.id", "wid", "instance.wid", "raw.instance.wid",
	}
	QRCodePaths = []Path{
		"qrCode", "qrcode", "qr", "base64",
		"info.qrCode", "info.qrcode", "info.qr", "info.base64",
		"status.qrCode", "status.qrcode", "status.qr", "status.base64",
		"status.qr_image", "status.qr_image_base64",
		"instance.qrcode",
	}
	QRURLPaths       = []Path{"url", "info.url", "status.url", "status.qr_url"}
	PairCodePaths    = []Path{"instance.paircode", "status.paircode", "paircode"}
	ConnectedPaths   = []Path{"status.connected", "connected", "info.connected"}
	LoggedInPaths    = []Path{"status.loggedIn", "loggedIn"}
	StatePaths       = []Path{"status.state", "state", "status.connection_status", "connection_status", "status.checked_instance.connection_status", "info.connection_status", "instance.status"}
	ConnectedAtPaths = []Path{"status.connected_at", "connected_at"}

	// Session listings: arrays to scan, the name keys to match and the token keys to read.
	ListArrayPaths = []Path{"instances", "sessions", "list", "data", "result"}
	ListNamePaths  = []Path{"name", "instance", "session", "sessionId", "instanceName"}
	ListTokenPaths = []Path{"token", "instance_token", "session_token", "bearer_token", "api_token", "accessToken", "access_token"}

	// Inbound callback rules.
	EventTypePaths     = []Path{"type", "event.type", "event_type"}
	EventStatusPaths   = []Path{"status", "state", "data.status", "event.status"}
	EventInstancePaths = []Path{"instance_id", "instance", "data.instance", "data.instance_id", "instanceId"}
	EventDevicePaths   = []Path{"deviceName", "device_name", "data.deviceName", "data.device_name"}
	EventPhonePaths    = []Path{"phone", "phoneNumber", "data.phone", "data.phoneNumber"}
	EventAtPaths       = []Path{"connected_at", "at", "timestamp"}
)

// ExtractToken returns the session token carried by a vendor response.
func ExtractToken(p Payload) string { return strings.TrimSpace(p.FirstString(TokenPaths...)) }

func ExtractDeviceName(p Payload) string { return p.FirstString(DeviceNamePaths...) }

// ExtractPhone returns the phone number reduced to digits.
func ExtractPhone(p Payload) string { return model.DigitsOnly(p.FirstString(PhonePaths...)) }

// QRCode is the pairing material found in a payload. At most one of Image and URL is set.
type QRCode struct {
	Image string `json:"qr,omitempty"`
	URL   string `json:"url,omitempty"`
}

func (q QRCode) Empty() bool { return q.Image == "" && q.URL == "" }

// Format is "dataurl", "base64" or "url".
func (q QRCode) Format() string {
	switch {
	case q.Image != "" && strings.HasPrefix(q.Image, "data:image"):
		return "dataurl"
	case q.Image != "":
		return "base64"
	case q.URL != "":
		return "url"
	}
	return ""
}

func ExtractQRCode(p Payload) QRCode {
	if img := p.FirstString(QRCodePaths...); img != "" {
		return QRCode{Image: img}
	}
	return QRCode{URL: p.FirstString(QRURLPaths...)}
}

// StatusInfo is the normalised reading of a status or QR response.
type StatusInfo struct {
	Connected   bool       `json:"connected"`
	LoggedIn    bool       `json:"loggedIn"`
	State       string     `json:"state,omitempty"`
	PairCode    string     `json:"paircode,omitempty"`
	QRCode      string     `json:"qrcode,omitempty"`
	DeviceName  string     `json:"deviceName,omitempty"`
	PhoneNumber string     `json:"phoneNumber,omitempty"`
	ConnectedAt *time.Time `json:"connectedAt,omitempty"`

	// explicit is set when the vendor sent a connected boolean.
	explicit bool
}

// ReadStatus normalises a status payload.
func ReadStatus(p Payload) StatusInfo {
	connected, explicit := p.FirstBool(ConnectedPaths...)
	state := strings.ToLower(p.FirstString(StatePaths...))
	info := StatusInfo{
		Connected:   connected || state == "connected" || state == "ready",
		LoggedIn:    p.AnyTrue(LoggedInPaths...),
		State:       state,
		PairCode:    p.FirstString(PairCodePaths...),
		QRCode:      p.FirstString(QRCodePaths...),
		DeviceName:  ExtractDeviceName(p),
		PhoneNumber: ExtractPhone(p),
		ConnectedAt: parseTime(p.FirstString(ConnectedAtPaths...)),
		explicit:    explicit,
	}
	return info
}

// Reported maps the reading onto the vendor-agnostic status.
func (s StatusInfo) Reported() model.Reported {
	switch {
	case s.Connected:
		return model.ReportedConnected
	case s.QRCode != "" || s.PairCode != "":
		return model.ReportedPending
	}
	if r := ReportedFromText(s.State); r != model.ReportedUnknown {
		return r
	}
	if s.explicit {
		return model.ReportedDisconnected
	}
	return model.ReportedUnknown
}

// Event turns the reading into a ConnectionEvent for tenantID.
func (s StatusInfo) Event(tenantID string, source model.Source, observedAt time.Time) model.ConnectionEvent {
	return model.ConnectionEvent{
		TenantID:    tenantID,
		Reported:    s.Reported(),
		RawStatus:   s.State,
		DeviceName:  s.DeviceName,
		PhoneNumber: s.PhoneNumber,
		ConnectedAt: s.ConnectedAt,
		ObservedAt:  observedAt,
		Source:      source,
	}
}

// ReportedFromText maps free-form vendor status words.
func ReportedFromText(raw string) model.Reported {
	s := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case s == "":
		return model.ReportedUnknown
	case s == "connected" || s == "ready" || s == "open" || s == "online":
		return model.ReportedConnected
	case strings.Contains(s, "disconnect") || s == "close" || s == "closed" || s == "logout" || s == "offline":
		return model.ReportedDisconnected
	case s == "connecting" || s == "pending" || strings.Contains(s, "qr") || s == "pairing":
		return model.ReportedPending
	}
	return model.ReportedUnknown
}

// NormalizeEvent reads a vendor callback body with the shared inbound rules.
// ObservedAt and TenantID are left for the caller.
func NormalizeEvent(body Payload) model.ConnectionEvent {
	raw := body.FirstString(EventStatusPaths...)
	return model.ConnectionEvent{
		Reported:    ReportedFromText(raw),
		RawStatus:   strings.ToLower(raw),
		SessionHint: body.FirstString(EventInstancePaths...),
		DeviceName:  body.FirstString(EventDevicePaths...),
		PhoneNumber: model.DigitsOnly(body.FirstString(EventPhonePaths...)),
		ConnectedAt: parseTime(body.FirstString(EventAtPaths...)),
		Source:      model.SourceWebhook,
	}
}

func parseTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

// EventType returns the lower-cased callback type, if the vendor sent one.
func EventType(body Payload) string {
	return strings.ToLower(body.FirstString(EventTypePaths...))
}

// FindSessionToken scans the listing arrays in p for an item whose name
// matches session (case-insensitive) and returns its token.
func FindSessionToken(p Payload, session string) string {
	target := strings.ToLower(strings.TrimSpace(session))
	if target == "" {
		return ""
	}
	for _, ap := range ListArrayPaths {
		v, ok := p.Lookup(ap)
		if !ok {
			continue
		}
		items, ok := v.([]any)
		if !ok {
			continue
		}
		for _, it := range items {
			item, ok := asMap(it)
			if !ok || !matchesName(item, target) {
				continue
			}
			if tok := strings.TrimSpace(item.FirstString(ListTokenPaths...)); tok != "" {
				return tok
			}
		}
	}
	return ""
}

// ItemToken reads a token from a single-session detail answer.
func ItemToken(p Payload) string {
	if tok := strings.TrimSpace(p.FirstString(ListTokenPaths...)); tok != "" {
		return tok
	}
	if inner := p.Object("data"); inner != nil {
		return strings.TrimSpace(inner.FirstString(ListTokenPaths...))
	}
	return ""
}

func matchesName(item Payload, target string) bool {
	for _, np := range ListNamePaths {
		if v, ok := item.Lookup(np); ok {
			if s, ok := v.(string); ok && strings.ToLower(s) == target {
				return true
			}
		}
	}
	return false
}
