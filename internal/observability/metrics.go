package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// CSRF metrics
	CSRFDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "csrf_decisions_total",
			Help: "CSRF gate decisions by outcome (safe_method, exempt_path, internal_key, validated, rejected)",
		},
		[]string{"outcome"},
	)

	CSRFValidationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "csrf_validation_failures_total",
			Help: "CSRF validation failures by reason",
		},
		[]string{"reason"},
	)

	CSRFTokensIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "csrf_tokens_issued_total",
			Help: "CSRF tokens minted by source (navigation, bootstrap, login)",
		},
		[]string{"source"},
	)

	// Audit pipeline metrics
	AuditEventsPublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "audit_events_published_total",
			Help: "Security audit events published to the broker",
		},
	)

	AuditEventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_events_dropped_total",
			Help: "Security audit events dropped before reaching the broker",
		},
		[]string{"cause"},
	)

	// Database metrics
	DBConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_open",
			Help: "Number of open database connections",
		},
	)

	DBConnectionsInUse = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_in_use",
			Help: "Number of database connections currently in use",
		},
	)
)
