// Package proxy forwards requests the gateway does not own to the upstream
// web application.
package proxy

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"classhub-gateway/internal/middleware"
	"classhub-gateway/internal/observability"
)

// Identity headers set for the upstream. Client supplied values are always
// removed first.
const (
	HeaderUserID    = "X-ClassHub-User-ID"
	HeaderUserRole  = "X-ClassHub-User-Role"
	HeaderRequestID = "X-Request-ID"
)

// Upstream is a reverse proxy to a single upstream base URL.
type Upstream struct {
	target *url.URL
	proxy  *httputil.ReverseProxy
}

// Options tunes the upstream transport.
type Options struct {
	// StripHeaders are removed from every forwarded request, e.g. the
	// internal API key header.
	StripHeaders []string
	Timeout      time.Duration
}

// New builds a proxy to rawURL. Requests keep their path and query, appended
// to the target's path.
func New(rawURL string, opts Options) (*Upstream, error) {
	target, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse upstream url: %w", err)
	}
	if target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("upstream url must be absolute: %q", rawURL)
	}

	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	base := http.DefaultTransport.(*http.Transport).Clone()
	base.ResponseHeaderTimeout = opts.Timeout

	u := &Upstream{target: target}
	u.proxy = &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.SetXForwarded()

			h := pr.Out.Header
			h.Del(HeaderUserID)
			h.Del(HeaderUserRole)
			for _, name := range opts.StripHeaders {
				h.Del(name)
			}

			if session, ok := middleware.GetSession(pr.In.Context()); ok {
				h.Set(HeaderUserID, session.UserID)
				h.Set(HeaderUserRole, session.Role)
			}
			if id := observability.RequestID(pr.In.Context()); id != "" {
				h.Set(HeaderRequestID, id)
			}
		},
		Transport: otelhttp.NewTransport(base,
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return "upstream " + r.Method
			})),
		ErrorHandler: errorHandler,
	}

	return u, nil
}

// Target returns the upstream base URL.
func (u *Upstream) Target() *url.URL {
	return u.target
}

// ServeHTTP forwards r. Paths that could be resolved differently by the
// upstream than by the gateway are refused.
func (u *Upstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !middleware.IsCanonicalPath(r) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "Invalid request path"})
		return
	}
	u.proxy.ServeHTTP(w, r)
}

func errorHandler(w http.ResponseWriter, r *http.Request, err error) {
	observability.FromContext(r.Context()).Error("upstream request failed",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadGateway)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": "Upstream unavailable"})
}
