package handler

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"classhub-gateway/internal/observability"
)

// DBChecker is the part of *sql.DB the readiness check needs.
type DBChecker interface {
	PingContext(ctx context.Context) error
	Stats() sql.DBStats
}

// BrokerChecker reports whether the broker connection is gone.
// *messaging.RabbitMQ implements it.
type BrokerChecker interface {
	IsClosed() bool
}

// Health returns basic health check
func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HealthCheckResult represents the result of a health check
type HealthCheckResult struct {
	Status    string         `json:"status"`
	LatencyMs int64          `json:"latency_ms,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// ReadyResponse is the body of the readiness check.
type ReadyResponse struct {
	Status    string                       `json:"status"`
	Timestamp string                       `json:"timestamp"`
	Checks    map[string]HealthCheckResult `json:"checks"`
}

// Ready checks the database and the broker in parallel. Both must be up for
// a 200.
func Ready(db DBChecker, broker BrokerChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		var dbCheck, brokerCheck HealthCheckResult

		// The checks report failures in their results, so Wait never errors.
		var g errgroup.Group
		g.Go(func() error {
			dbCheck = checkDatabase(ctx, db)
			return nil
		})
		g.Go(func() error {
			brokerCheck = checkBroker(broker)
			return nil
		})
		_ = g.Wait()

		response := ReadyResponse{
			Status:    "ready",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Checks: map[string]HealthCheckResult{
				"database": dbCheck,
				"rabbitmq": brokerCheck,
			},
		}

		status := http.StatusOK
		if dbCheck.Status != "up" || brokerCheck.Status != "up" {
			response.Status = "not_ready"
			status = http.StatusServiceUnavailable
		}

		writeJSON(w, status, response)
	}
}

// checkDatabase pings the pool and refreshes the connection gauges.
func checkDatabase(ctx context.Context, db DBChecker) HealthCheckResult {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	stats := db.Stats()
	observability.DBConnectionsOpen.Set(float64(stats.OpenConnections))
	observability.DBConnectionsInUse.Set(float64(stats.InUse))

	if err != nil {
		return HealthCheckResult{
			Status:    "down",
			LatencyMs: latency.Milliseconds(),
			Error:     err.Error(),
		}
	}

	return HealthCheckResult{
		Status:    "up",
		LatencyMs: latency.Milliseconds(),
		Metadata: map[string]any{
			"connections_open":   stats.OpenConnections,
			"connections_in_use": stats.InUse,
			"connections_idle":   stats.Idle,
			"max_open":           stats.MaxOpenConnections,
		},
	}
}

func checkBroker(broker BrokerChecker) HealthCheckResult {
	if broker == nil || broker.IsClosed() {
		return HealthCheckResult{
			Status: "down",
			Error:  "connection closed",
		}
	}
	return HealthCheckResult{Status: "up"}
}
