package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/stockyard-retail/stockyard/internal/app"
	jobmetrics "github.com/stockyard-retail/stockyard/internal/jobs"
	"github.com/stockyard-retail/stockyard/internal/ledger"
	"github.com/stockyard-retail/stockyard/internal/observability"
	"github.com/stockyard-retail/stockyard/internal/platform/cache"
	"github.com/stockyard-retail/stockyard/internal/platform/db"
	"github.com/stockyard-retail/stockyard/internal/reservation"
	"github.com/stockyard-retail/stockyard/internal/shared"
	"github.com/stockyard-retail/stockyard/internal/stock"
	"github.com/stockyard-retail/stockyard/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
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
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, availability cache disabled", slog.Any("error", err))
	}
	defer func() {
		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}
	}()

	metrics := observability.NewMetrics()
	jobMetrics := jobmetrics.NewMetrics(metrics.Registerer())

	ledgerRepo := ledger.NewRepository(pool)
	ledgerService := ledger.NewService(ledgerRepo).WithMetrics(metrics)

	var availabilityCache *stock.Cache
	if redisClient != nil {
		availabilityCache = stock.NewCache(redisClient, cfg.AvailabilityCacheTTL, logger)
	}
	stockRepo := stock.NewRepository(pool)
	stockStore := stock.NewStore(stockRepo, ledgerService, availabilityCache, nil, logger).WithMetrics(metrics)

	reservationRepo := reservation.NewRepository(pool)
	reservationManager := reservation.NewManager(reservationRepo, stockStore, cfg.ReservationTTL, logger).WithMetrics(metrics)

	idempotencyStore := shared.NewIdempotencyStore(pool)

	sweepTask, err := jobs.NewReservationSweepTask(time.Now().UTC())
	if err != nil {
		logger.Error("build sweep task", slog.Any("error", err))
		os.Exit(1)
	}
	reconcileTask, err := jobs.NewStockReconcileTask("")
	if err != nil {
		logger.Error("build reconcile task", slog.Any("error", err))
		os.Exit(1)
	}
	cleanupTask, err := jobs.NewIdempotencyCleanupTask(24 * time.Hour)
	if err != nil {
		logger.Error("build cleanup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskReservationSweep, Handler: jobs.NewReservationSweepHandler(reservationManager, jobMetrics, logger)},
			{Type: jobs.TaskStockReconcile, Handler: jobs.NewStockReconcileHandler(stockStore, jobMetrics, logger)},
			{Type: jobs.TaskIdempotencyCleanup, Handler: jobs.NewIdempotencyCleanupHandler(idempotencyStore, jobMetrics, logger)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: fmt.Sprintf("@every %s", cfg.SweepInterval), Task: sweepTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "45 3 * * *", Task: reconcileTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "15 4 * * *", Task: cleanupTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("build worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("starting worker", slog.String("redis", cfg.RedisAddr))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
