package integrations

import "sort"

type Capability string

const (
	CapSendText            Capability = "send_text"
	CapSendCarousel        Capability = "send_carousel"
	CapConfigureWebhook    Capability = "configure_webhook"
	CapCreateSession       Capability = "create_session"
	CapConnectSession      Capability = "connect_session"
	CapDisconnectSession   Capability = "disconnect_session"
	CapGetSessionStatus    Capability = "get_session_status"
	CapGetQRCode           Capability = "get_qr_code"
	CapResolveSessionToken Capability = "resolve_session_token"
)

var allCapabilities = []Capability{
	CapSendText, CapSendCarousel, CapConfigureWebhook, CapCreateSession, CapConnectSession,
	CapDisconnectSession, CapGetSessionStatus, CapGetQRCode, CapResolveSessionToken,
}

// Supports reports whether a implements capability c.
func Supports(a Adapter, c Capability) bool {
	var ok bool
	switch c {
	case CapSendText:
		_, ok = a.(TextSender)
	case CapSendCarousel:
		_, ok = a.(CarouselSender)
	case CapConfigureWebhook:
		_, ok = a.(WebhookConfigurer)
	case CapCreateSession:
		_, ok = a.(SessionCreator)
	case CapConnectSession:
		_, ok = a.(SessionConnector)
	case CapDisconnectSession:
		_, ok = a.(SessionDisconnector)
	case CapGetSessionStatus:
		_, ok = a.(StatusGetter)
	case CapGetQRCode:
		_, ok = a.(QRCodeGetter)
	case CapResolveSessionToken:
		_, ok = a.(SessionTokenResolver)
	}
	return ok
}

// Capabilities lists what a implements, sorted by name.
func Capabilities(a Adapter) []Capability {
	out := []Capability{}
	for _, c := range allCapabilities {
		if Supports(a, c) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
