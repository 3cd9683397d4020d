package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"wagateway/internal/model"
)

var (
	// Registry is the dedicated Prometheus registry for the gateway
	Registry = prometheus.NewRegistry()
	// HTTPRequests counts requests by method, route, and status
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// ProbeAttempts counts vendor candidate attempts by operation and outcome
	ProbeAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "vendor_probe_attempts_total", Help: "Vendor endpoint candidate attempts."},
		[]string{"op", "outcome"},
	)
	ProbeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "vendor_probe_duration_seconds", Help: "Vendor candidate attempt duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"op"},
	)

	// Transitions counts instance status changes
	Transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "instance_transitions_total", Help: "Instance status transitions."},
		[]string{"from", "to"},
	)
	Notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "notifications_total", Help: "Realtime notifications by route and outcome."},
		[]string{"route", "outcome"},
	)
	InboundEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "inbound_webhook_events_total", Help: "Vendor callbacks by outcome."},
		[]string{"outcome"},
	)
	Messages = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "messages_total", Help: "Outbound messages by kind and outcome."},
		[]string{"kind", "outcome"},
	)

	// CallbackDeliveries counts tenant callback outcomes by event type and status
	CallbackDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "callback_deliveries_total", Help: "Tenant callback deliveries by event type and status."},
		[]string{"event_type", "status"},
	)
	// CallbackLatency tracks callback delivery latencies in milliseconds
	CallbackLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "callback_delivery_latency_ms", Help: "Tenant callback delivery latency in ms.", Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000}},
		[]string{"event_type", "status"},
	)
)

// RegisterDefault registers collectors to the default registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests, HTTPDuration)
		Registry.MustRegister(ProbeAttempts, ProbeDuration)
		Registry.MustRegister(Transitions, Notifications, InboundEvents, Messages)
		Registry.MustRegister(CallbackDeliveries, CallbackLatency)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once

// Observer feeds the collectors from the components that count things.
type Observer struct{}

func (Observer) ObserveProbe(op, outcome string, d time.Duration) {
	ProbeAttempts.WithLabelValues(op, outcome).Inc()
	ProbeDuration.WithLabelValues(op).Observe(d.Seconds())
}

func (Observer) ObserveNotification(route, outcome string) {
	Notifications.WithLabelValues(route, outcome).Inc()
}

func (Observer) ObserveTransition(from, to model.Status) {
	Transitions.WithLabelValues(string(from), string(to)).Inc()
}

func (Observer) ObserveInbound(outcome string) {
	InboundEvents.WithLabelValues(outcome).Inc()
}

func (Observer) ObserveMessage(kind, outcome string) {
	Messages.WithLabelValues(kind, outcome).Inc()
}

// ObserveCallback records one tenant callback attempt. code 0 means the
// request never got an answer.
func (Observer) ObserveCallback(eventType string, code, latencyMs int) {
	status := "error"
	if code > 0 {
		status = strconv.Itoa(code)
	}
	CallbackDeliveries.WithLabelValues(eventType, status).Inc()
	CallbackLatency.WithLabelValues(eventType, status).Observe(float64(latencyMs))
}
