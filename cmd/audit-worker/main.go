package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"classhub-gateway/internal/config"
	"classhub-gateway/internal/messaging"
	"classhub-gateway/internal/observability"
	"classhub-gateway/internal/repository/postgres"
)

func main() {
	cfg := config.LoadAuditWorker()
	observability.InitLogger(cfg.LogLevel, cfg.LogFormat)

	slog.Info("starting audit worker",
		slog.Int("batch_size", cfg.BatchSize),
		slog.Duration("flush_interval", cfg.FlushInterval),
		slog.Duration("retention", cfg.Retention))

	connCtx, connCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer connCancel()

	db, err := config.NewPostgresConnection(connCtx, cfg.DatabaseURL, config.DefaultPool)
	if err != nil {
		slog.Error("failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer db.Close()

	if err := postgres.Migrate(connCtx, db); err != nil {
		slog.Error("failed to apply migrations", slog.String("error", err.Error()))
		os.Exit(1)
	}

	rmqCtx, rmqCancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer rmqCancel()

	rmq, err := messaging.NewRabbitMQWithRetry(rmqCtx, cfg.RabbitMQURL)
	if err != nil {
		slog.Error("failed to connect to rabbitmq", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer rmq.Close()

	deliveries, err := rmq.ConsumeAudit(cfg.BatchSize * 2)
	if err != nil {
		slog.Error("failed to start audit consumer", slog.String("error", err.Error()))
		os.Exit(1)
	}

	eventRepo := postgres.NewSecurityEventRepository(db)
	consumer := messaging.NewAuditConsumer(deliveries, eventRepo, cfg.BatchSize, cfg.FlushInterval)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go startRetention(ctx, eventRepo, cfg.Retention)

	// Run returns early only if the broker closes the delivery channel.
	consumer.Run(ctx)

	if ctx.Err() == nil {
		slog.Error("audit deliveries closed by broker")
		os.Exit(1)
	}
	slog.Info("audit worker stopped gracefully")
}

// startRetention deletes stored events older than retention once a day,
// starting immediately.
func startRetention(ctx context.Context, repo *postgres.SecurityEventRepository, retention time.Duration) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		cleanupCtx, cancel := context.WithTimeout(ctx, time.Minute)
		count, err := repo.DeleteOlderThan(cleanupCtx, time.Now().Add(-retention))
		cancel()
		if err != nil {
			slog.Error("security event retention failed", slog.String("error", err.Error()))
		} else {
			slog.Info("security event retention completed", slog.Int64("events_deleted", count))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
