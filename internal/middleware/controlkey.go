package middleware

import (
	"log/slog"
	"net/http"

	"golang.org/x/crypto/bcrypt"
)

// HeaderControlKey carries the operator key for control endpoints.
const HeaderControlKey = "X-Control-Key"

// ControlKey returns middleware that admits a request only when its
// X-Control-Key header matches the bcrypt hash. An empty hash disables the
// check.
func ControlKey(hash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if hash == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(HeaderControlKey)
			if key == "" {
				http.Error(w, `{"error":"control key required"}`, http.StatusUnauthorized)
				return
			}
			if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)); err != nil {
				slog.WarnContext(r.Context(), "control key rejected", "path", r.URL.Path, "remote", realIP(r))
				http.Error(w, `{"error":"invalid control key"}`, http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
