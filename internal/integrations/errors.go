package integrations

import (
	"errors"
	"fmt"
)

var (
	ErrCredentialsMissing = errors.New("credentials missing")
	ErrVendorUnreachable  = errors.New("vendor unreachable")
	ErrNotFound           = errors.New("not found")
	ErrUnsupported        = errors.New("unsupported operation")
	ErrSessionMismatch    = errors.New("session mismatch")
)

// RejectedError is a vendor answer outside 2xx.
type RejectedError struct {
	Status int
	Body   string
}

func (e *RejectedError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("vendor rejected: status %d", e.Status)
	}
	return fmt.Sprintf("vendor rejected: status %d: %s", e.Status, truncate(e.Body, 256))
}

// IsRejected returns the RejectedError in err's chain, if any.
func IsRejected(err error) (*RejectedError, bool) {
	var re *RejectedError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
