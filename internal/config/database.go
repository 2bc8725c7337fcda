package config

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/XSAM/otelsql"
	_ "github.com/lib/pq"
	"go.opentelemetry.io/otel/attribute"
)

// PoolSettings sizes the database connection pool.
type PoolSettings struct {
	MaxOpen     int
	MaxIdle     int
	MaxLifetime time.Duration
}

// DefaultPool is the pool used by the gateway and the audit worker.
var DefaultPool = PoolSettings{MaxOpen: 25, MaxIdle: 5, MaxLifetime: 5 * time.Minute}

// NewPostgresConnection opens an instrumented PostgreSQL pool and verifies it
// with a ping bounded by ctx.
func NewPostgresConnection(ctx context.Context, dbURL string, pool PoolSettings) (*sql.DB, error) {
	db, err := otelsql.Open("postgres", dbURL,
		otelsql.WithAttributes(attribute.String("db.system.name", "postgresql")))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(pool.MaxOpen)
	db.SetMaxIdleConns(pool.MaxIdle)
	db.SetConnMaxLifetime(pool.MaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return db, nil
}
