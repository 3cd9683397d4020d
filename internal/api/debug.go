package api

import (
	"context"
	"net/http"
	"time"

	"wagateway/internal/buildinfo"
)

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ReadyHandler pings the store and every other registered dependency.
func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	checks := map[string]string{}
	ok := true
	for name, p := range s.ready {
		if err := p.Ping(ctx); err != nil {
			checks[name] = err.Error()
			ok = false
			continue
		}
		checks[name] = "ok"
	}
	status := http.StatusOK
	if !ok {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{"ready": ok, "checks": checks})
}

func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
	info := map[string]any{
		"build":        buildinfo.Info(),
		"time":         time.Now().UTC().Format(time.RFC3339),
		"provider":     s.Orch.Adapter().Name(),
		"pushChannels": s.Orch.Notifier().Registry().Len(),
		"config":       s.debug,
	}
	if s.Worker != nil {
		info["pendingCallbacks"] = s.Worker.Pending()
	}
	writeJSON(w, http.StatusOK, info)
}
