package middleware

import (
	"log/slog"
	"net/http"

	"classhub-gateway/internal/observability"
	"classhub-gateway/internal/security"
)

// RequireInternalKey admits only callers presenting one of keys in header.
// With no keys configured every request is refused.
func RequireInternalKey(header string, keys *security.KeySet) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !keys.Contains(r.Header.Get(header)) {
				observability.FromContext(r.Context()).Warn("internal endpoint refused",
					slog.String("path", r.URL.Path),
					slog.String("remote_addr", r.RemoteAddr))
				writeJSONError(w, http.StatusUnauthorized, "Internal API key required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
