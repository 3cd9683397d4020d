package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"wagateway/internal/auth"
	"wagateway/internal/metrics"
	"wagateway/internal/orchestrator"
	"wagateway/internal/store"
	"wagateway/internal/webhooks"
)

// Pinger is a dependency checked by /readyz.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Options struct {
	Orchestrator *orchestrator.Orchestrator
	Verifier     *auth.Verifier
	Store        store.Store
	// Worker delivers tenant callbacks. Nil disables /v1/callbacks.
	Worker *webhooks.Worker
	// CallbackSecret signs callbacks registered without their own secret.
	CallbackSecret string
	// Ready lists extra dependencies checked by /readyz, keyed by name.
	Ready  map[string]Pinger
	Logger *slog.Logger
	// Debug is the sanitized configuration shown on /debug/vars.
	Debug map[string]any
}

type Server struct {
	Orch   *orchestrator.Orchestrator
	Auth   *auth.Verifier
	Store  store.Store
	Worker *webhooks.Worker
	ready  map[string]Pinger
	log    *slog.Logger
	debug  map[string]any

	callbackSecret string
}

func NewServer(opts Options) (*Server, error) {
	if opts.Orchestrator == nil {
		return nil, errors.New("api: orchestrator required")
	}
	if opts.Verifier == nil {
		opts.Verifier = auth.NewVerifier(auth.Options{})
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	ready := map[string]Pinger{}
	if opts.Store != nil {
		ready["store"] = opts.Store
	}
	for k, p := range opts.Ready {
		ready[k] = p
	}
	return &Server{
		Orch:   opts.Orchestrator,
		Auth:   opts.Verifier,
		Store:  opts.Store,
		Worker: opts.Worker,
		ready:  ready,
		log:    opts.Logger,
		debug:  opts.Debug,

		callbackSecret: opts.CallbackSecret,
	}, nil
}

// Routes builds the HTTP surface of the gateway.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.HealthHandler)
	r.Get("/readyz", s.ReadyHandler)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	r.Get("/debug/vars", s.DebugJSON)
	r.Get("/openapi.yaml", s.OpenAPIHandler)
	r.Get("/docs", s.DocsHandler)

	// Vendor callbacks authenticate with the shared webhook secret, not a bearer token.
	r.Post("/webhook/{provider}/{tenantID}", s.InboundWebhookHandler)

	r.Route("/v1", func(v1 chi.Router) {
		v1.Use(s.requirePrincipal)
		v1.Get("/capabilities", s.CapabilitiesHandler)

		v1.Route("/instance", func(in chi.Router) {
			in.Post("/ensure", s.EnsureHandler)
			in.Post("/bind", s.BindHandler)
			in.Post("/connect", s.ConnectHandler)
			in.Post("/disconnect", s.DisconnectHandler)
			in.Get("/status", s.StatusHandler)
			in.Get("/qr", s.QRHandler)
			in.Get("/events", s.EventsHandler)
		})
		v1.Post("/messages/text", s.SendTextHandler)
		v1.Post("/messages/carousel", s.SendCarouselHandler)
		v1.Get("/ws", s.PushWSHandler)
		v1.Post("/callbacks", s.RegisterCallbackHandler)
		v1.Delete("/callbacks", s.UnregisterCallbackHandler)

		v1.Group(func(admin chi.Router) {
			admin.Use(requireAdmin)
			admin.Post("/admin/webhook", s.ConfigureWebhookHandler)
		})
	})
	return r
}

// logMiddleware writes one access log line per request and feeds the HTTP collectors.
func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		dur := time.Since(start)
		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		metrics.HTTPDuration.WithLabelValues(r.Method, route, strconv.Itoa(status)).Observe(dur.Seconds())
		s.log.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"duration", dur,
			"remote", r.RemoteAddr,
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
