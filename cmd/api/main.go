package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/naitive/backend/internal/auth"
	"github.com/naitive/backend/internal/config"
	"github.com/naitive/backend/internal/db"
	"github.com/naitive/backend/internal/dedupe"
	"github.com/naitive/backend/internal/domain/syncreq"
	"github.com/naitive/backend/internal/http/handlers"
	"github.com/naitive/backend/internal/notify"
	"github.com/naitive/backend/internal/observability"
	postgresrepo "github.com/naitive/backend/internal/repository/postgres"
	"github.com/naitive/backend/internal/server"
	"github.com/naitive/backend/internal/ws"
)

func main() {
	cfg := config.Load()
	logger := observability.NewLogger(cfg.Env, cfg.LogLevel)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.NewPostgresPool(ctx, cfg)
	if err != nil {
		logger.Error("failed to connect postgres", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	var (
		guard dedupe.Guard = dedupe.NopGuard{}
		cache handlers.Pinger
	)
	if cfg.RedisURL != "" {
		client, err := dedupe.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Error("failed to connect redis", "err", err)
			os.Exit(1)
		}
		defer client.Close()
		redisGuard := dedupe.NewRedisGuard(client, cfg.WebhookDedupeTTL)
		guard, cache = redisGuard, redisGuard
	} else {
		logger.Warn("REDIS_URL not set, webhook replay guard disabled")
	}
	if cfg.FlexWebhookSecret == "" {
		logger.Warn("FLEX_WEBHOOK_SECRET not set, flex webhook will reject every call")
	}

	hub := ws.NewHub()
	lenderRepo := postgresrepo.NewLenderRepository(pool)
	requestRepo := postgresrepo.NewSyncRequestRepository(pool)

	resolution := syncreq.NewResolutionService(
		postgresrepo.NewResolutionStore(pool),
		requestRepo,
		postgresrepo.NewActivityRepository(pool),
		hub,
		logger,
	)
	deps := syncreq.IngestionDeps{
		Lenders:  lenderRepo,
		Requests: requestRepo,
		Admins:   postgresrepo.NewAdminDirectory(pool),
		Notifier: notify.NewOutboxDispatcher(postgresrepo.NewOutboxRepository(pool), logger),
		Feed:     hub,
		Logger:   logger,
	}
	if cfg.SyncAutoApproveUpdates {
		deps.AutoApprover = resolution
	}
	ingestion := syncreq.NewIngestionService(deps)

	jwtManager := auth.NewJWTManager(cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTSigningKey)
	r := server.NewRouter(cfg, logger, server.Dependencies{
		Pinger:             pool,
		Cache:              cache,
		JWTManager:         jwtManager,
		FlexWebhookHandler: handlers.NewFlexWebhookHandler(ingestion, guard, logger),
		SyncRequestHandler: handlers.NewSyncRequestHandler(resolution, logger),
		WSHandler:          ws.NewHandler(hub),
	})
	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	notifier := ws.NewNotifier(server.NewPendingCounter(resolution), hub, cfg.WorkerPollInterval, logger)
	go func() {
		if err := notifier.Run(sigCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("pending count notifier stopped", "err", err)
		}
	}()

	go func() {
		logger.Info("api server starting", "addr", cfg.Addr(), "auto_approve_updates", cfg.SyncAutoApproveUpdates)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "err", err)
			os.Exit(1)
		}
	}()

	<-sigCtx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = httpServer.Shutdown(shutdownCtx)
	logger.Info("api server stopped")
}
