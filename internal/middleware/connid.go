package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/satorinet/neuronfeed/internal/logger"
)

// ConnID tags long-lived stream requests with a fresh connection id so every
// log line of one stream can be correlated.
func ConnID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := logger.WithConnID(r.Context(), uuid.NewString())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
