package api

import (
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"wagateway/internal/integrations"
	"wagateway/internal/model"
	"wagateway/internal/orchestrator"
)

// EnsureHandler handles POST /v1/instance/ensure
func (s *Server) EnsureHandler(w http.ResponseWriter, r *http.Request) {
	res, err := s.Orch.EnsureSession(r.Context(), tenantID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// BindHandler handles POST /v1/instance/bind
func (s *Server) BindHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionName string `json:"sessionName"`
		Token       string `json:"token"`
	}
	if err := decode(w, r, &req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	res, err := s.Orch.BindSession(r.Context(), tenantID(r), req.SessionName, req.Token)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ConnectHandler handles POST /v1/instance/connect
func (s *Server) ConnectHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Phone string `json:"phone"`
	}
	if err := decode(w, r, &req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	res, err := s.Orch.Connect(r.Context(), tenantID(r), req.Phone)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// DisconnectHandler handles POST /v1/instance/disconnect
func (s *Server) DisconnectHandler(w http.ResponseWriter, r *http.Request) {
	res, err := s.Orch.Disconnect(r.Context(), tenantID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// StatusHandler handles GET /v1/instance/status
func (s *Server) StatusHandler(w http.ResponseWriter, r *http.Request) {
	res, err := s.Orch.GetStatus(r.Context(), tenantID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// QRHandler handles GET /v1/instance/qr?force=true
func (s *Server) QRHandler(w http.ResponseWriter, r *http.Request) {
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))
	res, err := s.Orch.GetQRCode(r.Context(), tenantID(r), force)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// SendTextHandler handles POST /v1/messages/text
func (s *Server) SendTextHandler(w http.ResponseWriter, r *http.Request) {
	var msg model.TextMessage
	if err := decode(w, r, &msg); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	res, err := s.Orch.SendText(r.Context(), tenantID(r), msg)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// SendCarouselHandler handles POST /v1/messages/carousel
func (s *Server) SendCarouselHandler(w http.ResponseWriter, r *http.Request) {
	var msg model.CarouselMessage
	if err := decode(w, r, &msg); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	res, err := s.Orch.SendCarousel(r.Context(), tenantID(r), msg)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// CapabilitiesHandler handles GET /v1/capabilities
func (s *Server) CapabilitiesHandler(w http.ResponseWriter, r *http.Request) {
	a := s.Orch.Adapter()
	writeJSON(w, http.StatusOK, map[string]any{
		"provider":     a.Name(),
		"capabilities": integrations.Capabilities(a),
	})
}

// ConfigureWebhookHandler handles POST /v1/admin/webhook?tenantId=
func (s *Server) ConfigureWebhookHandler(w http.ResponseWriter, r *http.Request) {
	tenant := tenantID(r)
	p, err := s.Orch.ConfigureWebhook(r.Context(), tenant)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tenantId":   tenant,
		"webhookUrl": s.Orch.WebhookURL(tenant),
		"provider":   p,
	})
}

// InboundWebhookHandler handles POST /webhook/{provider}/{tenantID}. The
// vendor always gets a 200 so it does not retry events the gateway ignored.
func (s *Server) InboundWebhookHandler(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		writeJSON(w, http.StatusOK, orchestrator.Ack{OK: true, Ignored: true, Reason: "invalid_payload"})
		return
	}
	ack := s.Orch.HandleInboundEvent(r.Context(), chi.URLParam(r, "provider"), chi.URLParam(r, "tenantID"), r.Header, body)
	writeJSON(w, http.StatusOK, ack)
}
