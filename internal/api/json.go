package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"wagateway/internal/integrations"
	"wagateway/internal/orchestrator"
)

// Problem represents an RFC7807 problem details response body.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, status int, title, detail, instance string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Problem{
		Type:     "about:blank",
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: instance,
	})
}

// writeError maps gateway errors onto problem responses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, title := classify(err)
	writeProblem(w, status, title, err.Error(), r.URL.Path)
}

func classify(err error) (int, string) {
	if re, ok := integrations.IsRejected(err); ok {
		if re.Status >= 400 && re.Status <= 599 {
			return re.Status, "Vendor rejected the request"
		}
		return http.StatusBadGateway, "Vendor rejected the request"
	}
	switch {
	case errors.Is(err, orchestrator.ErrInvalidArgument):
		return http.StatusBadRequest, "Invalid request"
	case errors.Is(err, integrations.ErrCredentialsMissing):
		return http.StatusBadRequest, "Credentials missing"
	case errors.Is(err, integrations.ErrVendorUnreachable):
		return http.StatusBadGateway, "Vendor unreachable"
	case errors.Is(err, integrations.ErrSessionMismatch):
		return http.StatusConflict, "Session mismatch"
	case errors.Is(err, integrations.ErrNotFound):
		return http.StatusNotFound, "Not found"
	case errors.Is(err, integrations.ErrUnsupported):
		return http.StatusNotImplemented, "Not supported by provider"
	}
	return http.StatusInternalServerError, "Internal error"
}

// decode reads a JSON body. An empty body leaves v untouched.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
