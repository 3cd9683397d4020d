package api

import (
	"context"
	"net/http"
	"strings"

	"wagateway/internal/auth"
)

type ctxKeyPrincipal struct{}

// requirePrincipal verifies the bearer token and stores the principal on the context.
func (s *Server) requirePrincipal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Browsers cannot set headers on websocket upgrades.
		if r.Header.Get("Authorization") == "" {
			if tok := r.URL.Query().Get("access_token"); tok != "" {
				r.Header.Set("Authorization", "Bearer "+tok)
			}
		}
		pr, err := s.Auth.FromRequest(r)
		if err != nil {
			writeProblem(w, http.StatusUnauthorized, "Unauthorized", err.Error(), r.URL.Path)
			return
		}
		ctx := context.WithValue(r.Context(), ctxKeyPrincipal{}, pr)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !principal(r).IsAdmin() {
			writeProblem(w, http.StatusForbidden, "Forbidden", "admin required", r.URL.Path)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func principal(r *http.Request) auth.Principal {
	pr, _ := r.Context().Value(ctxKeyPrincipal{}).(auth.Principal)
	return pr
}

// tenantID is the tenant a request acts on. Admins may name another tenant
// with the tenantId query parameter.
func tenantID(r *http.Request) string {
	pr := principal(r)
	if pr.IsAdmin() {
		if t := strings.TrimSpace(r.URL.Query().Get("tenantId")); t != "" {
			return t
		}
	}
	return pr.Tenant
}
