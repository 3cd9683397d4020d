package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"wagateway/internal/orchestrator"
)

// EventsHandler handles GET /v1/instance/events?interval=<ms>, a
// server-sent stream of status snapshots and connected notices.
func (s *Server) EventsHandler(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeProblem(w, http.StatusInternalServerError, "Streaming unsupported", "", r.URL.Path)
		return
	}
	tenant := tenantID(r)
	interval := parseInterval(r.URL.Query().Get("interval"))

	// Headers go out with the first event so setup errors can still be problems.
	started := false
	emit := func(evt orchestrator.WatchEvent) error {
		if !started {
			w.Header().Set("Content-Type", "text/event-stream")
			w.Header().Set("Cache-Control", "no-cache")
			w.Header().Set("Connection", "keep-alive")
			w.WriteHeader(http.StatusOK)
			started = true
		}
		b, err := json.Marshal(evt.Data)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Name, b); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}
	s.log.Debug("event stream opened", "tenant", tenant, "interval", interval)
	if err := s.Orch.Watch(r.Context(), tenant, interval, emit); err != nil && !started {
		writeError(w, r, err)
		return
	}
	s.log.Debug("event stream closed", "tenant", tenant)
}
