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

	"github.com/odyssey-erp/odyssey-admin/cmd/odyssey/cli"
	"github.com/odyssey-erp/odyssey-admin/internal/app"
	"github.com/odyssey-erp/odyssey-admin/internal/auth"
	"github.com/odyssey-erp/odyssey-admin/internal/observability"
	"github.com/odyssey-erp/odyssey-admin/internal/platform/db"
	"github.com/odyssey-erp/odyssey-admin/internal/rbac"
	"github.com/odyssey-erp/odyssey-admin/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: 4, ConnectTimeout: 10 * time.Second})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	metrics := observability.NewMetrics()

	rbacRepo := rbac.NewRepository(pool)
	checkJob := jobs.NewCatalogCheckJob(jobs.CatalogCheckFunc(func(ctx context.Context) (int, error) {
		report, err := cli.CheckCatalog(ctx, rbacRepo)
		return report.Menus + report.Actions, err
	}), logger, metrics.Jobs())
	sweepJob := jobs.NewSweepJob(map[string]jobs.Sweeper{
		"refresh_tokens": auth.NewPGRefreshStore(pool),
	}, logger, metrics.Jobs())

	available := map[string]asynq.HandlerFunc{
		jobs.TaskCatalogCheck: checkJob.Handle,
		jobs.TaskRefreshSweep: sweepJob.Handle,
	}
	var handlers []jobs.TaskHandler
	registered := make(map[string]bool)
	for _, taskType := range cfg.WorkerTasks() {
		handlers = append(handlers, jobs.TaskHandler{Type: taskType, Handler: available[taskType]})
		registered[taskType] = true
	}

	cron, err := jobs.DefaultCron()
	if err != nil {
		logger.Error("build cron", slog.Any("error", err))
		os.Exit(1)
	}
	active := cron[:0]
	for _, entry := range cron {
		if registered[entry.Task.Type()] {
			active = append(active, entry)
		}
	}

	if cfg.WorkerMetricsAddr != "" {
		metricsServer := &http.Server{
			Addr:              cfg.WorkerMetricsAddr,
			Handler:           metrics.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("serving worker metrics", slog.String("addr", cfg.WorkerMetricsAddr))
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("worker metrics server", slog.Any("error", err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsServer.Shutdown(shutdownCtx)
		}()
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers:    handlers,
		Cron:        active,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("starting worker", slog.Int("handlers", len(handlers)), slog.Int("cron", len(active)))
	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
