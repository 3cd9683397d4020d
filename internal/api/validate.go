package api

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"wagateway/internal/orchestrator"
)

func validateCallbackURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid url: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("url host is required")
	}
	return nil
}

// parseInterval reads the stream interval in milliseconds. Missing or
// invalid values use the default; the result is always clamped.
func parseInterval(raw string) time.Duration {
	ms, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || ms <= 0 {
		return orchestrator.DefaultWatchInterval
	}
	return orchestrator.ClampInterval(time.Duration(ms) * time.Millisecond)
}
