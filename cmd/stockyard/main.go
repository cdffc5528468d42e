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

	"github.com/stockyard-retail/stockyard/internal/app"
	"github.com/stockyard-retail/stockyard/internal/catalog"
	"github.com/stockyard-retail/stockyard/internal/fulfillment"
	"github.com/stockyard-retail/stockyard/internal/ledger"
	"github.com/stockyard-retail/stockyard/internal/observability"
	"github.com/stockyard-retail/stockyard/internal/platform/cache"
	"github.com/stockyard-retail/stockyard/internal/platform/db"
	"github.com/stockyard-retail/stockyard/internal/procurement"
	"github.com/stockyard-retail/stockyard/internal/reservation"
	"github.com/stockyard-retail/stockyard/internal/shared"
	"github.com/stockyard-retail/stockyard/internal/stock"
	"github.com/stockyard-retail/stockyard/jobs"
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

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

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
	auditLogger := shared.NewAuditLogger(dbpool)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)

	ledgerRepo := ledger.NewRepository(dbpool)
	ledgerService := ledger.NewService(ledgerRepo).WithMetrics(metrics)

	var availabilityCache *stock.Cache
	if redisClient != nil {
		availabilityCache = stock.NewCache(redisClient, cfg.AvailabilityCacheTTL, logger)
	}
	stockRepo := stock.NewRepository(dbpool)
	stockStore := stock.NewStore(stockRepo, ledgerService, availabilityCache, nil, logger).WithMetrics(metrics)

	reservationRepo := reservation.NewRepository(dbpool)
	reservationManager := reservation.NewManager(reservationRepo, stockStore, cfg.ReservationTTL, logger).WithMetrics(metrics)

	fulfillmentRepo := fulfillment.NewRepository(dbpool)
	fulfillmentService := fulfillment.NewService(fulfillmentRepo, reservationManager, stockStore, auditLogger,
		fulfillment.ServiceConfig{ReservationTTL: cfg.ReservationTTL}, logger)

	procurementService := procurement.NewService(fulfillmentService, stockStore, auditLogger, logger)

	catalogRepo := catalog.NewRepository(dbpool)
	catalogService := catalog.NewService(catalogRepo, ledgerService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		LedgerHandler:      ledger.NewHandler(logger, ledgerService),
		StockHandler:       stock.NewHandler(logger, stockStore),
		ReservationHandler: reservation.NewHandler(logger, reservationManager),
		FulfillmentHandler: fulfillment.NewHandler(logger, fulfillmentService).WithIdempotency(idempotencyStore),
		ProcurementHandler: procurement.NewHandler(logger, procurementService).WithIdempotency(idempotencyStore),
		CatalogHandler:     catalog.NewHandler(logger, catalogService),
		JobsHandler:        jobs.NewHandler(inspector, logger),
		Pool:               dbpool,
		Metrics:            metrics,
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
