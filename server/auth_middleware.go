package server

import (
	"context"
	"crypto/subtle"
	"net/http"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// ContextKeyAdmin marks a request that presented the admin API key
	ContextKeyAdmin ContextKey = "admin"
)

// RequireAdminKey guards the admin API with a static bearer key.
// The admin API is switched off when no key is configured.
func (s *Server) RequireAdminKey(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := s.config.GetAdminAPIKey()
		if key == "" {
			writeJSONError(w, http.StatusServiceUnavailable, "Admin API is disabled")
			return
		}

		presented := bearerToken(r)
		if presented == "" || subtle.ConstantTimeCompare([]byte(presented), []byte(key)) != 1 {
			w.Header().Set("WWW-Authenticate", `Bearer realm="admin"`)
			writeJSONError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		ctx := context.WithValue(r.Context(), ContextKeyAdmin, true)
		next(w, r.WithContext(ctx))
	}
}
