package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/voltgrid-erp/voltgrid/internal/app"
	"github.com/voltgrid-erp/voltgrid/internal/debts"
	"github.com/voltgrid-erp/voltgrid/internal/paymentplans"
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

	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = jobClient.Close() }()

	audit := shared.NewAuditLogger(pool)
	debtService := debts.NewService(debts.NewRepository(pool), audit, jobs.NewReminderQueue(jobClient))
	planService := paymentplans.NewService(paymentplans.NewRepository(pool), audit)

	scanTask, err := jobs.NewOverdueScanTask(jobs.OverdueScanPayload{})
	if err != nil {
		logger.Error("build overdue scan task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskOverdueScan, Handler: jobs.NewOverdueScanHandler(logger, debtService, planService)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.OverdueScanSpec, Task: scanTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
