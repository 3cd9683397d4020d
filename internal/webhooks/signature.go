package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
)

// VerifyHMAC checks an HMAC-SHA256 signature over the raw body using the shared secret.
func VerifyHMAC(secret string, body []byte, provided string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := mac.Sum(nil)
	b, err := hex.DecodeString(strings.TrimPrefix(provided, "sha256="))
	if err != nil {
		return false
	}
	return hmac.Equal(expected, b)
}

// SignHMAC returns lowercase hex of HMAC-SHA256 for use in headers
func SignHMAC(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return fmt.Sprintf("%x", mac.Sum(nil))
}

// VerifyInbound authenticates a vendor callback. With no secret configured
// every request passes. Otherwise x-webhook-token or X-Signature must equal
// the secret, or X-Signature must be the hex HMAC of the body.
func VerifyInbound(secret string, h http.Header, body []byte) bool {
	if secret == "" {
		return true
	}
	for _, name := range []string{"X-Webhook-Token", "X-Signature"} {
		v := strings.TrimSpace(h.Get(name))
		if v != "" && subtle.ConstantTimeCompare([]byte(v), []byte(secret)) == 1 {
			return true
		}
	}
	if sig := strings.TrimSpace(h.Get("X-Signature")); sig != "" {
		return VerifyHMAC(secret, body, sig)
	}
	return false
}
