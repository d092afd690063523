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

	"github.com/voltgrid-erp/voltgrid/internal/app"
	"github.com/voltgrid-erp/voltgrid/internal/collection"
	"github.com/voltgrid-erp/voltgrid/internal/debts"
	"github.com/voltgrid-erp/voltgrid/internal/paymentplans"
	"github.com/voltgrid-erp/voltgrid/internal/penalties"
	"github.com/voltgrid-erp/voltgrid/internal/platform/cache"
	"github.com/voltgrid-erp/voltgrid/internal/platform/db"
	"github.com/voltgrid-erp/voltgrid/internal/shared"
	"github.com/voltgrid-erp/voltgrid/jobs"
)

func main() {
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
		logger.Warn("redis unavailable, summaries uncached", slog.Any("error", err))
		redisClient = nil
	}
	defer func() {
		if redisClient != nil {
			_ = redisClient.Close()
		}
	}()

	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = jobClient.Close() }()

	audit := shared.NewAuditLogger(pool)

	debtService := debts.NewService(debts.NewRepository(pool), audit, jobs.NewReminderQueue(jobClient))
	planService := paymentplans.NewService(paymentplans.NewRepository(pool), audit)
	penaltyService := penalties.NewService(penalties.NewRepository(pool), audit)

	summaryCache := collection.NewCache(redisClient, cfg.SummaryCacheTTL)
	collectionService := collection.NewService(debtService, penaltyService, planService, summaryCache, audit)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		DebtHandler:       debts.NewHandler(logger, debtService),
		PlanHandler:       paymentplans.NewHandler(logger, planService),
		PenaltyHandler:    penalties.NewHandler(logger, penaltyService),
		CollectionHandler: collection.NewHandler(logger, collectionService),
		JobHandler:        jobs.NewHandler(asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr}), logger),
		Pool:              pool,
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
