package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/brigade-ops/brigade/internal/app"
	"github.com/brigade-ops/brigade/internal/costing"
	"github.com/brigade-ops/brigade/internal/ledger"
	"github.com/brigade-ops/brigade/internal/locations"
	"github.com/brigade-ops/brigade/internal/observability"
	"github.com/brigade-ops/brigade/internal/platform/cache"
	"github.com/brigade-ops/brigade/internal/platform/db"
	"github.com/brigade-ops/brigade/internal/reconcile"
	"github.com/brigade-ops/brigade/internal/shared"
	"github.com/brigade-ops/brigade/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, low-stock cache disabled", slog.Any("error", err))
		redisClient = nil
	}
	defer func() {
		if redisClient == nil {
			return
		}
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)

	var lowStockCache *ledger.Cache
	if redisClient != nil {
		lowStockCache = ledger.NewCache(redisClient, cfg.LowStockCacheTTL)
	}

	ledgerRepo := ledger.NewRepository(pool)
	ledgerService := ledger.NewService(ledgerRepo, auditLogger, lowStockCache, metrics, ledger.ServiceConfig{})
	ledgerHandler := ledger.NewHandler(logger, ledgerService)

	locationsRepo := locations.NewRepository(pool)
	locationsService := locations.NewService(locationsRepo)
	locationsHandler := locations.NewHandler(logger, locationsService)

	costingRepo := costing.NewRepository(pool)
	costingService := costing.NewService(costingRepo)
	costingHandler := costing.NewHandler(costingService)

	reconcileService := reconcile.NewService(logger, ledgerService, costingService, idempotencyStore, auditLogger)
	reconcileHandler := reconcile.NewHandler(logger, reconcileService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		LedgerHandler:    ledgerHandler,
		LocationsHandler: locationsHandler,
		CostingHandler:   costingHandler,
		ReconcileHandler: reconcileHandler,
		JobHandler:       jobHandler,
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
