package orchestrator

import (
	"context"
	"fmt"
	"time"

	"wagateway/internal/integrations"
	"wagateway/internal/model"
	"wagateway/internal/notify"
)

const (
	DefaultWatchInterval = 3 * time.Second
	MinWatchInterval     = time.Second
	MaxWatchInterval     = 15 * time.Second
)

// ClampInterval applies the watch interval bounds; zero selects the default.
func ClampInterval(d time.Duration) time.Duration {
	switch {
	case d <= 0:
		return DefaultWatchInterval
	case d < MinWatchInterval:
		return MinWatchInterval
	case d > MaxWatchInterval:
		return MaxWatchInterval
	}
	return d
}

// WatchEvent is one message on a tenant's status stream.
type WatchEvent struct {
	Name string
	Data map[string]any
}

// Watch polls the vendor every interval and emits a "status" event per poll,
// plus one "connected" event each time the session becomes connected.
// Transitions published by other sources, such as webhooks, are picked up
// between polls. Watch returns when ctx ends or emit fails; its ticker is
// stopped either way.
func (o *Orchestrator) Watch(ctx context.Context, tenantID string, interval time.Duration, emit func(WatchEvent) error) error {
	if !integrations.Supports(o.adapter, integrations.CapGetSessionStatus) {
		return fmt.Errorf("watch: %w", integrations.ErrUnsupported)
	}
	if _, _, err := o.snapshot(ctx, tenantID); err != nil {
		return err
	}
	interval = ClampInterval(interval)

	events := o.notifier.Broker().Subscribe(tenantID)
	defer o.notifier.Broker().Unsubscribe(tenantID, events)

	w := &watcher{o: o, tenantID: tenantID, emit: emit}
	if err := w.poll(ctx); err != nil {
		return nil
	}
	ticker := o.clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := w.poll(ctx); err != nil {
				return nil
			}
		case evt, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if err := w.observe(evt); err != nil {
				return nil
			}
		}
	}
}

type watcher struct {
	o         *Orchestrator
	tenantID  string
	emit      func(WatchEvent) error
	connected bool
}

func (w *watcher) poll(ctx context.Context) error {
	res, err := w.o.poll(ctx, w.tenantID, model.SourceStream)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil || res.Stale {
		msg := res.Error
		if err != nil {
			msg = err.Error()
		}
		return w.emit(WatchEvent{Name: "error", Data: map[string]any{"message": msg, "sessionName": res.SessionName}})
	}
	info := res.Info
	if err := w.emit(WatchEvent{Name: "status", Data: map[string]any{
		"connected":   info.Connected,
		"loggedIn":    info.LoggedIn,
		"paircode":    info.PairCode,
		"qrcode":      info.QRCode,
		"state":       info.State,
		"status":      res.Status,
		"sessionName": res.SessionName,
	}}); err != nil {
		return err
	}
	return w.setConnected(info.Connected, info.State, res.SessionName)
}

// observe reacts to a transition published on the tenant's stream. Only
// polls clear the connected flag, so a late event cannot re-arm it.
func (w *watcher) observe(evt notify.Event) error {
	if evt.Type != notify.TypeConnected {
		return nil
	}
	session, _ := evt.Data["sessionName"].(string)
	return w.setConnected(true, string(model.StatusConnected), session)
}

func (w *watcher) setConnected(connected bool, state, session string) error {
	if !connected {
		w.connected = false
		return nil
	}
	if w.connected {
		return nil
	}
	w.connected = true
	return w.emit(WatchEvent{Name: "connected", Data: map[string]any{
		"connected":   true,
		"state":       state,
		"sessionName": session,
		"at":          w.o.clock.Now().UTC().Format(time.RFC3339),
	}})
}
