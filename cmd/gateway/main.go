package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"classhub-gateway/internal/config"
	"classhub-gateway/internal/messaging"
	"classhub-gateway/internal/observability"
	"classhub-gateway/internal/proxy"
	"classhub-gateway/internal/repository/postgres"
	"classhub-gateway/internal/security"
	"classhub-gateway/internal/server"
	"classhub-gateway/internal/service"
)

func main() {
	cfg := config.Load()
	observability.InitLogger(cfg.LogLevel, cfg.LogFormat)

	slog.Info("starting gateway", slog.String("environment", cfg.Environment))

	tokens, err := security.NewTokenManager(cfg.CSRF.Secret, cfg.CSRF.MaxAge)
	if err != nil {
		slog.Error("failed to initialize CSRF tokens", slog.String("error", err.Error()))
		os.Exit(1)
	}

	connCtx, connCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer connCancel()

	db, err := config.NewPostgresConnection(connCtx, cfg.DatabaseURL, config.DefaultPool)
	if err != nil {
		slog.Error("failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("connected to postgresql")

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

	userRepo := postgres.NewUserRepository(db)
	sessionRepo, err := postgres.NewSessionRepository(db)
	if err != nil {
		slog.Error("failed to prepare session queries", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer sessionRepo.Close()
	eventRepo := postgres.NewSecurityEventRepository(db)

	authService := service.NewAuthService(userRepo, sessionRepo)
	auditService := service.NewAuditService(rmq, 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	auditDone := make(chan struct{})
	go func() {
		defer close(auditDone)
		auditService.Run(ctx)
	}()

	go startSessionCleanup(ctx, authService)
	slog.Info("session cleanup task started")

	deps := server.Dependencies{
		Config:      cfg,
		AuthService: authService,
		Sessions:    sessionRepo,
		Tokens:      tokens,
		Audit:       auditService,
		Events:      eventRepo,
		Webhooks:    rmq,
		DB:          db,
		Broker:      rmq,
	}

	if cfg.UpstreamURL != "" {
		upstream, err := proxy.New(cfg.UpstreamURL, proxy.Options{
			StripHeaders: []string{cfg.InternalKeyHeader},
		})
		if err != nil {
			slog.Error("invalid upstream", slog.String("error", err.Error()))
			os.Exit(1)
		}
		deps.Upstream = upstream
		slog.Info("forwarding to upstream", slog.String("upstream", upstream.Target().String()))
	}

	router, err := server.NewRouter(ctx, deps)
	if err != nil {
		slog.Error("failed to build router", slog.String("error", err.Error()))
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("gateway listening", slog.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("shutting down gateway")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", slog.String("error", err.Error()))
	}

	// Stopping the audit service flushes queued events before the broker
	// connection closes.
	cancel()
	select {
	case <-auditDone:
	case <-shutdownCtx.Done():
		slog.Warn("audit events still pending at exit", slog.Int("pending", auditService.Pending()))
	}

	slog.Info("gateway stopped gracefully")
}

// startSessionCleanup runs a background task to delete expired sessions
func startSessionCleanup(ctx context.Context, auth *service.AuthService) {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("stopping session cleanup task")
			return
		case <-ticker.C:
			cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			count, err := auth.CleanupExpiredSessions(cleanupCtx)
			if err != nil {
				slog.Error("session cleanup failed", slog.String("error", err.Error()))
			} else {
				slog.Info("session cleanup completed", slog.Int64("sessions_deleted", count))
			}
			cancel()
		}
	}
}
