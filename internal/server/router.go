// Package server assembles the gateway's HTTP handler.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"classhub-gateway/internal/config"
	"classhub-gateway/internal/domain"
	"classhub-gateway/internal/handler"
	"classhub-gateway/internal/middleware"
	"classhub-gateway/internal/security"
	"classhub-gateway/internal/service"
)

// Dependencies are the collaborators the router wires together.
type Dependencies struct {
	Config      *config.Config
	AuthService *service.AuthService
	Sessions    domain.SessionRepository
	Tokens      middleware.TokenService
	Audit       middleware.FailureRecorder
	Events      handler.FailureCounter
	Webhooks    handler.WebhookPublisher
	DB          handler.DBChecker
	Broker      handler.BrokerChecker
	// Upstream receives everything the gateway does not serve itself. When
	// nil the built-in landing page is used.
	Upstream http.Handler
}

// Default rate limits per client IP.
const (
	authRate  = 5
	authBurst = 10
	apiRate   = 20
	apiBurst  = 50
)

// NewRouter builds the gateway handler. The rate limiters it creates stop
// when ctx is done.
//
// Every request passes through LoadSession and then the CSRF gate, so
// proxied and gateway-owned routes share a single policy.
func NewRouter(ctx context.Context, d Dependencies) (http.Handler, error) {
	cfg := d.Config
	internalKeys := security.NewKeySet(cfg.InternalAPIKeys)

	cookies := handler.CookieSettings{
		CSRFCookieName: cfg.CSRF.CookieName,
		CSRFHeaderName: cfg.CSRF.HeaderName,
		Secure:         cfg.SecureCookies(),
		BindSession:    cfg.CSRF.BindSession,
	}

	authHandler := handler.NewAuthHandler(d.AuthService, d.Tokens, cookies)
	csrfHandler := handler.NewCSRFHandler(d.Tokens, cookies)
	webhookHandler := handler.NewWebhookHandler(d.Webhooks)
	securityHandler := handler.NewSecurityHandler(d.Events)
	pageHandler := handler.NewPageHandler(cfg.CSRF.HeaderName)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CanonicalPath)
	r.Use(middleware.CORS(middleware.ParseOrigins(cfg.AllowedOrigins), cfg.CSRF.HeaderName, cfg.InternalKeyHeader))
	r.Use(middleware.Metrics())
	r.Use(middleware.LoadSession(d.Sessions))
	r.Use(middleware.CSRF(d.Tokens, middleware.CSRFOptions{
		CookieName:        cfg.CSRF.CookieName,
		HeaderName:        cfg.CSRF.HeaderName,
		ExemptPaths:       cfg.CSRF.ExemptPaths,
		InternalKeyHeader: cfg.InternalKeyHeader,
		InternalKeys:      internalKeys,
		BindSession:       cfg.CSRF.BindSession,
		SecureCookie:      cfg.SecureCookies(),
	}, d.Audit))

	r.Get("/health", handler.Health)
	r.Get("/health/ready", handler.Ready(d.DB, d.Broker))
	r.Handle("/metrics", promhttp.Handler())

	var validator func(http.Handler) http.Handler
	if cfg.OpenAPIValidation {
		v, err := middleware.OpenAPIValidator(middleware.DefaultOpenAPIValidatorConfig(cfg.OpenAPISpecPath))
		if err != nil {
			return nil, fmt.Errorf("openapi validator: %w", err)
		}
		validator = v
	}

	limits := cfg.RateLimit
	authLimiter := middleware.NewRateLimiter(ctx, float64(orDefault(limits.AuthPerSecond, authRate)), orDefault(limits.AuthBurst, authBurst))
	apiLimiter := middleware.NewRateLimiter(ctx, float64(orDefault(limits.APIPerSecond, apiRate)), orDefault(limits.APIBurst, apiBurst))

	r.Route("/api", func(r chi.Router) {
		if validator != nil {
			r.Use(validator)
		}

		r.Get("/health", handler.Health)
		r.Get("/health/ready", handler.Ready(d.DB, d.Broker))

		r.Group(func(r chi.Router) {
			r.Use(authLimiter.Middleware())
			r.Post("/auth/register", authHandler.Register)
			r.Post("/auth/login", authHandler.Login)
			r.Get("/csrf/token", csrfHandler.Token)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireSession)
			r.Use(apiLimiter.Middleware())
			r.Get("/auth/me", authHandler.Me)
			r.Post("/auth/logout", authHandler.Logout)
		})

		r.Group(func(r chi.Router) {
			r.Use(apiLimiter.Middleware())
			r.Post("/webhooks/{provider}", webhookHandler.Receive)
		})

		r.Route("/internal", func(r chi.Router) {
			r.Use(middleware.RequireInternalKey(cfg.InternalKeyHeader, internalKeys))
			r.Get("/security/csrf-failures", securityHandler.CSRFFailures)
		})
	})

	// Paths the gateway does not route, including unknown /api paths, go
	// to the upstream application.
	if d.Upstream != nil {
		r.NotFound(d.Upstream.ServeHTTP)
	} else {
		r.Get("/", pageHandler.Landing)
		r.Get("/dashboard", pageHandler.Landing)
		r.NotFound(notFound)
	}

	return r, nil
}

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func notFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": "Not Found"})
}
