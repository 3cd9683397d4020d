// Package lifecycle holds the connection state machine. It is pure: callers
// persist the returned record and notify when Changed is set.
package lifecycle

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"wagateway/internal/integrations"
	"wagateway/internal/model"
)

var ErrInvalidTransition = errors.New("invalid transition")

// edges lists the allowed explicit transitions.
var edges = map[model.Status][]model.Status{
	model.StatusUnlinked:     {model.StatusCreated},
	model.StatusCreated:      {model.StatusAwaitingQR, model.StatusConnected, model.StatusDisconnected},
	model.StatusAwaitingQR:   {model.StatusConnected, model.StatusDisconnected},
	model.StatusConnected:    {model.StatusDisconnected},
	model.StatusDisconnected: {model.StatusAwaitingQR, model.StatusConnected},
}

// CanTransition reports whether from -> to is an allowed edge.
func CanTransition(from, to model.Status) bool {
	for _, s := range edges[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Outcome is the result of folding a change into a record.
type Outcome struct {
	Record model.InstanceRecord
	From   model.Status
	To     model.Status
	// Changed is set when the status moved; that change must be notified once.
	Changed bool
	// Write is set when Record differs from the input and must be stored.
	Write bool
	// Reason explains why nothing was written.
	Reason string
}

// Transition moves rec to status to. Moving to the current status is a no-op.
func Transition(rec model.InstanceRecord, to model.Status) (Outcome, error) {
	out := Outcome{Record: rec, From: rec.Status, To: rec.Status}
	if rec.Status == to {
		out.Reason = "unchanged"
		return out, nil
	}
	if !CanTransition(rec.Status, to) {
		return out, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, rec.Status, to)
	}
	out.Record.Status = to
	if to == model.StatusDisconnected {
		out.Record.ConnectedAt = nil
	}
	out.To = to
	out.Changed = true
	out.Write = true
	return out, nil
}

// Apply folds an observed event into rec.
//
// Unlinked records never accept events. A session hint naming another
// session fails with ErrSessionMismatch; names are case sensitive. Events
// initiated before the last applied observation are dropped. Otherwise the
// event refreshes metadata, and moves the status along the reported edge
// when one exists.
func Apply(rec model.InstanceRecord, ev model.ConnectionEvent, now time.Time) (Outcome, error) {
	out := Outcome{Record: rec, From: rec.Status, To: rec.Status}
	if rec.Status == model.StatusUnlinked || !rec.HasSession() {
		out.Reason = "unlinked"
		return out, nil
	}
	if ev.SessionHint != "" && strings.TrimSpace(ev.SessionHint) != rec.SessionName {
		out.Reason = "session_mismatch"
		return out, fmt.Errorf("%w: event for %q, record has %q", integrations.ErrSessionMismatch, ev.SessionHint, rec.SessionName)
	}
	observed := ev.ObservedAt
	if observed.IsZero() {
		observed = now
	}
	if observed.Before(rec.LastObservedAt) {
		out.Reason = "stale"
		return out, nil
	}

	r := rec
	r.LastObservedAt = observed
	r.LastSource = ev.Source
	if ev.DeviceName != "" {
		r.DeviceName = ev.DeviceName
	}
	if ev.PhoneNumber != "" {
		r.PhoneNumber = model.DigitsOnly(ev.PhoneNumber)
	}

	switch target(rec.Status, ev.Reported) {
	case model.StatusConnected:
		r.Status = model.StatusConnected
		at := observed
		if ev.ConnectedAt != nil {
			at = *ev.ConnectedAt
		}
		r.ConnectedAt = &at
	case model.StatusDisconnected:
		r.Status = model.StatusDisconnected
		r.ConnectedAt = nil
	case model.StatusAwaitingQR:
		r.Status = model.StatusAwaitingQR
	default:
		if rec.Status == model.StatusConnected && ev.ConnectedAt != nil && r.ConnectedAt == nil {
			at := *ev.ConnectedAt
			r.ConnectedAt = &at
		}
	}

	out.Record = r
	out.To = r.Status
	out.Changed = r.Status != rec.Status
	out.Write = true
	if !out.Changed {
		out.Reason = "no_transition"
	}
	return out, nil
}

// target returns the status an event moves from to, or "" to stay.
func target(from model.Status, reported model.Reported) model.Status {
	switch reported {
	case model.ReportedConnected:
		switch from {
		case model.StatusCreated, model.StatusAwaitingQR, model.StatusDisconnected:
			return model.StatusConnected
		}
	case model.ReportedDisconnected:
		if from == model.StatusConnected {
			return model.StatusDisconnected
		}
	case model.ReportedPending:
		switch from {
		case model.StatusCreated, model.StatusDisconnected:
			return model.StatusAwaitingQR
		}
	}
	return ""
}
