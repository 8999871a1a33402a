// Package app is the composition root: manual DI, no Wire/Dig.
package app

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"firewatch.io/firewatch/internal/activity"
	"firewatch.io/firewatch/internal/api/handlers"
	"firewatch.io/firewatch/internal/cache"
	"firewatch.io/firewatch/internal/config"
	"firewatch.io/firewatch/internal/domain"
	"firewatch.io/firewatch/internal/notification"
	"firewatch.io/firewatch/internal/orchestration"
	"firewatch.io/firewatch/internal/pkg/clock"
	"firewatch.io/firewatch/internal/pkg/logger"
	"firewatch.io/firewatch/internal/pkg/worker"
)

// Application holds composed application dependencies.
type Application struct {
	Config *config.Config
	Router *gin.Engine
	Engine *orchestration.Engine
	Pools  *worker.Pools

	pool *pgxpool.Pool // nil when running on the in-memory store
}

// Bootstrap initializes all dependencies.
func Bootstrap(ctx context.Context, cfg *config.Config) (*Application, error) {
	clk := clock.NewReal()

	pools, err := worker.NewPools(ctx, worker.PoolConfig{
		GeneralPoolSize:  cfg.Worker.GeneralPoolSize,
		ActivityPoolSize: cfg.Worker.ActivityPoolSize,
	})
	if err != nil {
		return nil, fmt.Errorf("init worker pools: %w", err)
	}

	var store orchestration.HistoryStore
	var pool *pgxpool.Pool
	if cfg.Database.Enabled() {
		pool, err = newPGXPool(ctx, cfg.Database)
		if err != nil {
			pools.Shutdown()
			return nil, fmt.Errorf("init postgres pool: %w", err)
		}
		store, err = orchestration.NewPostgresStore(ctx, pool)
		if err != nil {
			pool.Close()
			pools.Shutdown()
			return nil, fmt.Errorf("init postgres history store: %w", err)
		}
		logger.Info("history store: postgres")
	} else {
		store = orchestration.NewMemoryStore()
		logger.Info("history store: in-memory")
	}

	availability := cache.New(
		cache.NewStaticFetcher(cfg.Availability.Units),
		clk,
		cfg.Cache.Cache(cfg.Orchestration.TimeUnit),
	)
	failureLogs := activity.NewMemoryFailureLogStore()

	registry, err := activity.NewRegistry(
		activity.NewRiskAnalyzer(cfg.Risk.Exposure),
		activity.NewResourceAllocator(availability),
		activity.NewEscalator(notification.NewLogSender()),
		activity.NewFailureLogger(failureLogs),
	)
	if err != nil {
		if pool != nil {
			pool.Close()
		}
		pools.Shutdown()
		return nil, fmt.Errorf("init activity registry: %w", err)
	}

	dispatcher := domain.NewCompletionDispatcher()
	dispatcher.Register(domain.StatusCompleted, logCompletion)
	dispatcher.Register(domain.StatusFailed, logCompletion)

	engine := orchestration.New(
		store,
		activity.NewInvoker(registry, pools.Activity, clk),
		pools,
		dispatcher,
		clk,
		cfg.Orchestration.Engine(),
	)

	var readyCheck func(ctx context.Context) error
	if pool != nil {
		readyCheck = pool.Ping
	}
	server := handlers.NewServer(handlers.ServerDeps{
		Engine:       engine,
		Availability: availability,
		FailureLogs:  failureLogs,
		Pools:        pools,
		ReadyCheck:   readyCheck,
	})

	return &Application{
		Config: cfg,
		Router: newRouter(cfg, server),
		Engine: engine,
		Pools:  pools,
		pool:   pool,
	}, nil
}

func newPGXPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create database pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

func logCompletion(ctx context.Context, event *domain.CompletionEvent) error {
	logger.Info("instance completion dispatched",
		zap.String("instance_id", event.InstanceID),
		zap.String("status", string(event.Status)),
	)
	return nil
}
