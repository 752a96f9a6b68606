package server

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
)

const adminPrefix = "/v1/admin/"

// authMiddleware returns middleware that validates Bearer token authentication
// for paths under /v1/admin/. All other paths pass through. When AdminToken is
// empty the middleware is a no-op and the admin routes are not registered.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	if s.config.AdminToken == "" {
		return next
	}

	tokenBytes := []byte(s.config.AdminToken)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, adminPrefix) {
			next.ServeHTTP(w, r)
			return
		}

		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			unauthorizedResponse(w)
			return
		}

		provided := []byte(strings.TrimPrefix(auth, "Bearer "))
		if subtle.ConstantTimeCompare(provided, tokenBytes) != 1 {
			unauthorizedResponse(w)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func unauthorizedResponse(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized", "kind": "unauthorized"}) //nolint:errcheck
}
