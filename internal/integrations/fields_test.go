package integrations

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wagateway/internal/model"
)

func payload(t *testing.T, s string) Payload {
	t.Helper()
	var p Payload
	require.NoError(t, json.Unmarshal([]byte(s), &p))
	return p
}

func TestExtractTokenOrder(t *testing.T) {
	p := payload(t, `{"raw":{"instance":{"token":"deep"}},"instance":{"token":"  "},"access_token":"late"}`)
	assert.Equal(t, "deep", ExtractToken(p))
	assert.Equal(t, "", ExtractToken(Payload{}))
}

func TestExtractPhoneDigits(t *testing.T) {
	p := payload(t, `{"instance":{"me":{"id":"55 (11) 99999-0000@s.whatsapp.net"}}}`)
	assert.Equal(t, "5511999990000", ExtractPhone(p))
}

func TestExtractDeviceName(t *testing.T) {
	p := payload(t, `{"phone_device":{"name":"Pixel"},"deviceName":"other"}`)
	assert.Equal(t, "Pixel", ExtractDeviceName(p))
}

func TestExtractQRCode(t *testing.T) {
	qr := ExtractQRCode(payload(t, `{"status":{"qr_image":"data:image/png;base64,AAA"}}`))
	assert.Equal(t, "dataurl", qr.Format())

	qr = ExtractQRCode(payload(t, `{"info":{"base64":"AAA"}}`))
	assert.Equal(t, "base64", qr.Format())

	qr = ExtractQRCode(payload(t, `{"status":{"qr_url":"https://x/qr"}}`))
	assert.Equal(t, QRCode{URL: "https://x/qr"}, qr)

	assert.True(t, ExtractQRCode(Payload{}).Empty())
}

func TestReadStatus(t *testing.T) {
	cases := []struct {
		body string
		want model.Reported
	}{
		{`{"status":{"connected":true}}`, model.ReportedConnected},
		{`{"instance":{"status":"connected"}}`, model.ReportedConnected},
		{`{"status":{"state":"ready"}}`, model.ReportedConnected},
		{`{"instance":{"qrcode":"AAA","status":"connecting"}}`, model.ReportedPending},
		{`{"connected":false}`, model.ReportedDisconnected},
		{`{"status":{"connection_status":"disconnected"}}`, model.ReportedDisconnected},
		{`{"message":"?"}`, model.ReportedUnknown},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ReadStatus(payload(t, tc.body)).Reported(), tc.body)
	}
}

func TestNormalizeEvent(t *testing.T) {
	ev := NormalizeEvent(payload(t, `{"event":{"type":"connection"},"data":{"status":"READY","instance_id":"wa-ana-1","device_name":"iPhone","phone":"+55 11 9"},"at":"2025-01-02T03:04:05Z"}`))
	assert.Equal(t, model.ReportedConnected, ev.Reported)
	assert.Equal(t, "ready", ev.RawStatus)
	assert.Equal(t, "wa-ana-1", ev.SessionHint)
	assert.Equal(t, "iPhone", ev.DeviceName)
	assert.Equal(t, "55119", ev.PhoneNumber)
	require.NotNil(t, ev.ConnectedAt)
	assert.Equal(t, 2025, ev.ConnectedAt.Year())
	assert.Equal(t, model.SourceWebhook, ev.Source)

	empty := NormalizeEvent(Payload{"type": "message"})
	assert.Equal(t, model.ReportedUnknown, empty.Reported)
	assert.Equal(t, "message", EventType(Payload{"type": "MESSAGE"}))
}

type sendOnly struct{}

func (sendOnly) Name() string { return "send-only" }
func (sendOnly) SendText(ctx context.Context, auth CallAuth, msg model.TextMessage) (Payload, error) {
	return nil, nil
}

func TestCapabilities(t *testing.T) {
	a := sendOnly{}
	assert.True(t, Supports(a, CapSendText))
	assert.False(t, Supports(a, CapCreateSession))
	assert.Equal(t, []Capability{CapSendText}, Capabilities(a))
}

func TestFindSessionToken(t *testing.T) {
	p := payload(t, `{"instances":[{"name":"other","token":"x"},{"instanceName":"WA-Ana-1","instance_token":" tok "}]}`)
	assert.Equal(t, "tok", FindSessionToken(p, "wa-ana-1"))
	assert.Equal(t, "", FindSessionToken(p, "missing"))

	root := Payload{"data": []any{map[string]any{"session": "s", "accessToken": "a"}}}
	assert.Equal(t, "a", FindSessionToken(root, "s"))
}

func TestItemToken(t *testing.T) {
	assert.Equal(t, "t1", ItemToken(payload(t, `{"token":"t1"}`)))
	assert.Equal(t, "t2", ItemToken(payload(t, `{"data":{"api_token":"t2"}}`)))
	assert.Equal(t, "", ItemToken(Payload{}))
}
