package middleware

import (
	"crypto/subtle"
	"net/http"
)

// APIKeyHeader is the shared-secret header checked on mail routes.
const APIKeyHeader = "X-API-Key"

// RequireAPIKey returns middleware that rejects requests whose
// X-API-Key header doesn't match the configured key. The comparison is
// constant-time. Responds 403 with a JSON detail body on mismatch.
func RequireAPIKey(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			provided := r.Header.Get(APIKeyHeader)
			if provided == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(key)) != 1 {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				w.Write([]byte(`{"detail":"Could not validate credentials"}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
