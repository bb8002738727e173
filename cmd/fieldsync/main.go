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

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/fieldsync/cmd/fieldsync/cli"
	"github.com/odyssey-erp/fieldsync/internal/app"
	jobmetrics "github.com/odyssey-erp/fieldsync/internal/jobs"
	"github.com/odyssey-erp/fieldsync/internal/notify"
	"github.com/odyssey-erp/fieldsync/internal/observability"
	"github.com/odyssey-erp/fieldsync/internal/platform/cache"
	"github.com/odyssey-erp/fieldsync/internal/platform/db"
	"github.com/odyssey-erp/fieldsync/internal/webhook"
	"github.com/odyssey-erp/fieldsync/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping startup")
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

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	queue := jobs.NewClient(redisOpts)
	defer func() {
		if err := queue.Close(); err != nil {
			logger.Warn("queue close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer inspector.Close()

	if args := os.Args[1:]; len(args) > 0 && args[0] != "serve" {
		os.Exit(cli.NewJobsCLI(queue, inspector).Command(ctx, cli.Options{Args: args}))
	}

	if err := serve(ctx, cfg, logger, queue, inspector); err != nil {
		logger.Error("server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func serve(ctx context.Context, cfg *app.Config, logger *slog.Logger, queue *jobs.Client, inspector *asynq.Inspector) error {
	var pool *pgxpool.Pool
	if cfg.StoreBackend == app.StorePostgres {
		var err error
		pool, err = db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	services, err := app.BuildServices(ctx, app.Deps{
		Config:   cfg,
		Logger:   logger,
		Pool:     pool,
		Redis:    redisClient,
		Notifier: notify.QueueSink{Queue: queue, Logger: logger},
		Metrics:  jobmetrics.NewMetrics(metrics.Registerer()),
	})
	if err != nil {
		return err
	}

	router := app.NewRouter(app.RouterParams{
		Logger: logger,
		Config: cfg,
		Webhooks: webhook.NewHandler(webhook.Config{
			Materials: services.Materials,
			Labour:    services.Labour,
			Drift:     services.Drift,
			Catalog:   services.Catalog,
			TokenHash: cfg.WebhookTokenHash,
			Logger:    logger,
		}),
		JobHandler: jobs.NewHandler(inspector, logger),
		Metrics:    metrics,
	})

	srv := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", slog.String("addr", cfg.AppAddr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
