package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"wagateway/internal/model"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestObserverFeedsCollectors(t *testing.T) {
	RegisterDefault()
	var o Observer

	before := counterValue(t, Transitions.WithLabelValues("awaiting_qr", "connected"))
	o.ObserveTransition(model.StatusAwaitingQR, model.StatusConnected)
	if got := counterValue(t, Transitions.WithLabelValues("awaiting_qr", "connected")); got != before+1 {
		t.Fatalf("transition counter: got %v want %v", got, before+1)
	}

	o.ObserveProbe("create", "ok", 20*time.Millisecond)
	if counterValue(t, ProbeAttempts.WithLabelValues("create", "ok")) < 1 {
		t.Fatalf("probe attempt not counted")
	}

	o.ObserveCallback("instance_connected", 0, 5)
	if counterValue(t, CallbackDeliveries.WithLabelValues("instance_connected", "error")) < 1 {
		t.Fatalf("callback error not counted")
	}

	families, err := Registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(families) == 0 {
		t.Fatalf("registry is empty")
	}
}
