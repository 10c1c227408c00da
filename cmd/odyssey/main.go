package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-admin/internal/app"
	"github.com/odyssey-erp/odyssey-admin/internal/auth"
	"github.com/odyssey-erp/odyssey-admin/internal/datascope"
	"github.com/odyssey-erp/odyssey-admin/internal/observability"
	"github.com/odyssey-erp/odyssey-admin/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-admin/internal/platform/db"
	"github.com/odyssey-erp/odyssey-admin/internal/ratelimit"
	"github.com/odyssey-erp/odyssey-admin/internal/rbac"
	"github.com/odyssey-erp/odyssey-admin/jobs"
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

	dbpool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{ConnectTimeout: 10 * time.Second})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	var redisClient *redis.Client
	if cfg.TokenStore == app.StoreRedis || cfg.RateStore == app.StoreRedis {
		redisClient, err = cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		if err != nil {
			logger.Error("connect redis", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	metrics := observability.NewMetrics()

	rbacRepo := rbac.NewRepository(dbpool)
	rbacService := rbac.NewService(rbacRepo, rbacRepo)
	policies := rbac.NewPolicyResolver()
	policies.OnCreate(func(*rbac.Policy) {
		metrics.SetPolicies(policies.Len())
	})
	evaluator, err := rbac.NewEvaluator(cfg.SuperAdminRole, policies, rbacService)
	if err != nil {
		logger.Error("init evaluator", slog.Any("error", err))
		os.Exit(1)
	}
	rbacMiddleware := rbac.Middleware{Evaluator: evaluator, Logger: logger, Recorder: metrics}

	pgDepartments := datascope.NewRepository(dbpool)
	var departments datascope.DepartmentRepository = pgDepartments
	var subtreeCache *datascope.SubtreeCache
	if redisClient != nil {
		// snapshot first, Redis subtree cache for departments it has not seen
		subtreeCache = datascope.NewSubtreeCache(redisClient, pgDepartments, cfg.SubtreeCacheTTL)
		snapshot := datascope.NewSnapshot(pgDepartments, subtreeCache, logger)
		if err := snapshot.Reload(ctx); err != nil {
			logger.Warn("load department snapshot", slog.Any("error", err))
		}
		go func() {
			if err := snapshot.Watch(ctx, redisClient); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("department snapshot watch", slog.Any("error", err))
			}
		}()
		departments = snapshot
	}
	scopeResolver := datascope.NewResolver(departments)

	refreshStore, err := newRefreshStore(cfg, dbpool, redisClient)
	if err != nil {
		logger.Error("init refresh store", slog.Any("error", err))
		os.Exit(1)
	}
	tokens, err := auth.NewTokenService(auth.TokenConfig{
		Secret:     []byte(cfg.JWTSecret),
		Issuer:     cfg.JWTIssuer,
		Audience:   cfg.JWTAudience,
		AccessTTL:  cfg.AccessTokenTTL,
		RefreshTTL: cfg.RefreshTokenTTL,
	}, refreshStore, rbacService)
	if err != nil {
		logger.Error("init token service", slog.Any("error", err))
		os.Exit(1)
	}
	authService := auth.NewService(auth.NewRepository(dbpool), rbacService, tokens)
	authHandler := auth.NewHandler(logger, authService, metrics)

	windowStore := newWindowStore(cfg, redisClient)
	rateLimits := ratelimit.Middleware{
		Limiter:  ratelimit.NewLimiter(windowStore),
		Logger:   logger,
		Recorder: metrics,
	}

	permissionsHandler := rbac.NewPermissionsHandler(logger, rbacService, scopeResolver, rbacMiddleware)
	var dataScopeHandler *datascope.Handler
	if subtreeCache != nil {
		dataScopeHandler = datascope.NewHandler(logger, subtreeCache)
	}

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	warmupJob := jobs.NewPolicyWarmupJob(jobs.PolicyWarmupFunc(func(ctx context.Context) (int, error) {
		return rbacService.WarmPolicies(ctx, policies)
	}), logger, metrics.Jobs())
	// failures are logged by the job; policies are then created on first use
	_, _ = warmupJob.Run(ctx, "boot")
	jobHandler := jobs.NewHandler(jobs.HandlerConfig{
		Inspector: inspector,
		Enqueuer:  jobClient,
		Served:    cfg.WorkerTasks(),
		Warmup:    warmupJob,
		Logger:    logger,
	})

	if cfg.UsesMemoryStores() {
		targets := map[string]jobs.Sweeper{}
		if cfg.TokenStore == app.StoreMemory {
			targets["refresh_tokens"] = refreshStore
		}
		if cfg.RateStore == app.StoreMemory {
			targets["rate_windows"] = windowStore
		}
		go jobs.RunSweeper(ctx, cfg.SweepInterval, jobs.NewSweepJob(targets, logger, metrics.Jobs()))
	}

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		AuthHandler:        authHandler,
		PermissionsHandler: permissionsHandler,
		DataScopeHandler:   dataScopeHandler,
		JobHandler:         jobHandler,
		RBACMiddleware:     rbacMiddleware,
		RateLimits:         rateLimits,
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server",
			slog.String("addr", cfg.AppAddr),
			slog.String("token_store", cfg.TokenStore),
			slog.String("rate_store", cfg.RateStore))
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

func newRefreshStore(cfg *app.Config, pool *pgxpool.Pool, client *redis.Client) (auth.RefreshStore, error) {
	switch cfg.TokenStore {
	case app.StoreMemory:
		return auth.NewMemoryRefreshStore(), nil
	case app.StoreRedis:
		return auth.NewRedisRefreshStore(client), nil
	case app.StorePostgres:
		return auth.NewPGRefreshStore(pool), nil
	default:
		return nil, fmt.Errorf("unknown token store %q", cfg.TokenStore)
	}
}

func newWindowStore(cfg *app.Config, client *redis.Client) ratelimit.Store {
	if cfg.RateStore == app.StoreRedis {
		return ratelimit.NewRedisStore(client)
	}
	return ratelimit.NewMemoryStore()
}
