package middleware

import (
	"log/slog"
	"net/http"
	"path"
	"strings"

	"classhub-gateway/internal/observability"
)

// IsCanonicalPath reports whether the request path is already in the form
// path.Clean produces (a trailing slash is kept) and its raw form carries no
// encoded dot, slash or backslash. Prefix checks such as the CSRF exemption
// list are only meaningful on canonical paths.
func IsCanonicalPath(r *http.Request) bool {
	p := r.URL.Path
	if p == "*" && r.Method == http.MethodOptions {
		return true
	}
	if !strings.HasPrefix(p, "/") || strings.Contains(p, `\`) {
		return false
	}

	cleaned := path.Clean(p)
	if strings.HasSuffix(p, "/") && cleaned != "/" {
		cleaned += "/"
	}
	if cleaned != p {
		return false
	}

	raw := strings.ToLower(r.URL.RawPath)
	return !strings.Contains(raw, "%2e") &&
		!strings.Contains(raw, "%2f") &&
		!strings.Contains(raw, "%5c")
}

// CanonicalPath rejects requests whose path contains dot segments, repeated
// slashes or encoded separators with 400, so neither routing, the CSRF
// exemption list nor the upstream sees an ambiguous path.
func CanonicalPath(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !IsCanonicalPath(r) {
			observability.FromContext(r.Context()).Warn("non-canonical request path refused",
				slog.String("method", r.Method),
				slog.String("path", r.URL.EscapedPath()),
				slog.String("remote_addr", r.RemoteAddr))
			writeJSONError(w, http.StatusBadRequest, "Invalid request path")
			return
		}
		next.ServeHTTP(w, r)
	})
}
