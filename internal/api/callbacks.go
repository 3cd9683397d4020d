package api

import (
	"net/http"
	"strings"

	"wagateway/internal/webhooks"
)

// RegisterCallbackHandler handles POST /v1/callbacks. The URL becomes the
// tenant's push channel, replacing any websocket or earlier callback.
func (s *Server) RegisterCallbackHandler(w http.ResponseWriter, r *http.Request) {
	if s.Worker == nil {
		writeProblem(w, http.StatusNotImplemented, "Callbacks disabled", "", r.URL.Path)
		return
	}
	var req struct {
		URL    string `json:"url"`
		Secret string `json:"secret"`
	}
	if err := decode(w, r, &req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if err := validateCallbackURL(req.URL); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid callback", err.Error(), r.URL.Path)
		return
	}
	secret := req.Secret
	if secret == "" {
		secret = s.callbackSecret
	}
	tenant := tenantID(r)
	ch := webhooks.NewCallbackChannel(strings.TrimSpace(req.URL), secret, s.Worker)
	if prev := s.Orch.Notifier().Registry().Register(tenant, ch); prev != nil {
		s.log.Info("push channel replaced", "tenant", tenant, "previous", prev.ID())
	}
	s.log.Info("callback registered", "tenant", tenant, "channel", ch.ID(), "url", ch.URL)
	writeJSON(w, http.StatusCreated, map[string]any{
		"channelId": ch.ID(),
		"tenantId":  tenant,
		"url":       ch.URL,
		"signed":    secret != "",
	})
}

// UnregisterCallbackHandler handles DELETE /v1/callbacks.
func (s *Server) UnregisterCallbackHandler(w http.ResponseWriter, r *http.Request) {
	registry := s.Orch.Notifier().Registry()
	ch, ok := registry.Lookup(tenantID(r))
	if !ok {
		writeProblem(w, http.StatusNotFound, "No push channel", "", r.URL.Path)
		return
	}
	if _, isCallback := ch.(*webhooks.CallbackChannel); !isCallback {
		writeProblem(w, http.StatusConflict, "Push channel is not a callback", ch.ID(), r.URL.Path)
		return
	}
	registry.Unregister(ch)
	w.WriteHeader(http.StatusNoContent)
}
