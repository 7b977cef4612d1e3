package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/opsrelay/opsrelay/internal/app"
	"github.com/opsrelay/opsrelay/internal/audit"
	"github.com/opsrelay/opsrelay/internal/groups"
	"github.com/opsrelay/opsrelay/internal/observability"
	"github.com/opsrelay/opsrelay/internal/platform/db"
	"github.com/opsrelay/opsrelay/internal/users"
	"github.com/opsrelay/opsrelay/jobs"
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

	metrics := observability.NewMetrics()

	auditSink := audit.NewPGSink(pool)
	auditor := audit.NewEmitter(auditSink, logger)

	userRepo := users.NewRepository(pool)
	groupRepo := groups.NewRepository(pool)
	synchronizer := groups.NewSynchronizer(groupRepo, userRepo, logger)
	groupService := groups.NewService(groupRepo, synchronizer, auditor, logger)

	reconcileTask, err := jobs.NewReconcileTask(jobs.ReconcilePayload{Reason: "scheduled"})
	if err != nil {
		logger.Error("build reconcile task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskReconcileMemberships, Handler: jobs.NewReconcileHandler(groupService, metrics, logger)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.ReconcileSchedule, Task: reconcileTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
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
