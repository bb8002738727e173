package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/fieldsync/internal/app"
	jobmetrics "github.com/odyssey-erp/fieldsync/internal/jobs"
	"github.com/odyssey-erp/fieldsync/internal/notify"
	"github.com/odyssey-erp/fieldsync/internal/pipeline"
	"github.com/odyssey-erp/fieldsync/internal/platform/cache"
	"github.com/odyssey-erp/fieldsync/internal/platform/db"
	"github.com/odyssey-erp/fieldsync/jobs"
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
	slog.SetDefault(logger)

	var pool *pgxpool.Pool
	if cfg.StoreBackend == app.StorePostgres {
		pool, err = db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
		if err != nil {
			logger.Error("connect database", slog.Any("error", err))
			os.Exit(1)
		}
		defer pool.Close()
	}

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	queue := jobs.NewClient(redisOpts)
	defer func() {
		if err := queue.Close(); err != nil {
			logger.Warn("queue close", slog.Any("error", err))
		}
	}()

	services, err := app.BuildServices(ctx, app.Deps{
		Config:   cfg,
		Logger:   logger,
		Pool:     pool,
		Redis:    redisClient,
		Notifier: notify.QueueSink{Queue: queue, Logger: logger},
		Metrics:  jobmetrics.NewMetrics(nil),
	})
	if err != nil {
		logger.Error("build services", slog.Any("error", err))
		os.Exit(1)
	}

	mailer := &notify.Mailer{
		Addr:    fmt.Sprintf("%s:%d", cfg.SMTPHost, cfg.SMTPPort),
		From:    cfg.SMTPFrom,
		To:      cfg.SMTPTo,
		Secrets: services.Secrets,
	}
	syncJobs := map[string]*jobs.SyncJob{
		pipeline.NameMaterials: {Name: pipeline.NameMaterials, Run: jobs.OrderPipeline(services.Materials.Run), Logger: logger},
		pipeline.NameLabour:    {Name: pipeline.NameLabour, Run: jobs.OrderPipeline(services.Labour.Run), Logger: logger},
		pipeline.NameDrift:     {Name: pipeline.NameDrift, Run: services.Drift.Run, Logger: logger},
		pipeline.NameCatalog:   {Name: pipeline.NameCatalog, Run: services.Catalog.Run, Logger: logger},
	}
	cleanup := &jobs.ClaimsCleanupJob{Claims: services.Cleaners, Retention: cfg.ClaimRetention, Logger: logger}
	notifyJob := &jobs.NotifyJob{Mailer: mailer, Logger: logger}

	handlers := []jobs.TaskHandler{
		{Type: jobs.TaskNotify, Handler: notifyJob.Handle},
		{Type: jobs.TaskClaimsCleanup, Handler: cleanup.Handle},
	}
	for name, job := range syncJobs {
		handlers = append(handlers, jobs.TaskHandler{Type: jobs.SyncTasks[name], Handler: job.Handle})
	}

	cron, err := cronRegistrations(cfg)
	if err != nil {
		logger.Error("build cron", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   redisOpts,
		Logger:      logger,
		Concurrency: len(handlers),
		Handlers:    handlers,
		Cron:        cron,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}

func cronRegistrations(cfg *app.Config) ([]jobs.CronRegistration, error) {
	specs := map[string]string{
		pipeline.NameMaterials: cfg.MaterialsCron,
		pipeline.NameLabour:    cfg.LabourCron,
		pipeline.NameDrift:     cfg.DriftCron,
		pipeline.NameCatalog:   cfg.CatalogCron,
	}
	var out []jobs.CronRegistration
	for name, spec := range specs {
		if spec == "" || spec == "off" {
			continue
		}
		task, err := jobs.NewSyncTask(name)
		if err != nil {
			return nil, err
		}
		out = append(out, jobs.CronRegistration{Spec: spec, Task: task, Options: jobs.SyncOptions()})
	}
	if cfg.StoreBackend == app.StorePostgres {
		out = append(out, jobs.CronRegistration{
			Spec:    "45 3 * * *",
			Task:    asynq.NewTask(jobs.TaskClaimsCleanup, nil),
			Options: []asynq.Option{asynq.MaxRetry(1)},
		})
	}
	return out, nil
}
