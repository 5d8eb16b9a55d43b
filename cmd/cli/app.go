package cli

import (
	"context"
	"time"

	"github.com/turtacn/trustkit/internal/config"
	"github.com/turtacn/trustkit/internal/infrastructure/persistence/redis"
	"github.com/turtacn/trustkit/internal/monitoring"
	"github.com/turtacn/trustkit/pkg/cache"
	"github.com/turtacn/trustkit/pkg/constants"
	"github.com/turtacn/trustkit/pkg/logger"
	"github.com/turtacn/trustkit/pkg/token"
)

// app holds the components a command needs. Build it with newApp and release it
// with close.
type app struct {
	cfg     *config.Config
	log     logger.Logger
	metrics *monitoring.Metrics
	tracing *monitoring.Tracing
	redis   *redis.Connection
}

func newApp(opts *rootOptions) (*app, error) {
	a, _, err := newAppWithLoader(opts)
	return a, err
}

func newAppWithLoader(opts *rootOptions) (*app, *config.Loader, error) {
	loader := config.NewLoader(opts.configFile, nil)
	if opts.sign != "" {
		loader.Set("token.sign", opts.sign)
	}
	if opts.backend != "" {
		loader.Set("cache.backend", opts.backend)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, nil, err
	}

	log := logger.NewLoggerWithFormat(constants.LogLevel(cfg.Log.Level), cfg.Log.Format)
	tracing, err := monitoring.NewTracing(cfg.Tracing, nil, log)
	if err != nil {
		return nil, nil, err
	}

	return &app{
		cfg:     cfg,
		log:     log,
		metrics: monitoring.NewMetrics(cfg.Metrics.Namespace, nil),
		tracing: tracing,
	}, loader, nil
}

func (a *app) tokenService() (*token.Service, error) {
	return token.NewService(a.cfg.Token.Options(),
		token.WithLogger(a.log),
		token.WithRecorder(a.metrics),
	)
}

func (a *app) accessor(ctx context.Context) (*cache.Accessor, error) {
	var store cache.Store
	switch a.cfg.Cache.Backend {
	case config.CacheBackendMemory:
		store = cache.NewMemoryStore(time.Minute)
	default:
		a.redis = redis.NewConnection(a.cfg.Redis, a.log)
		if err := a.redis.Connect(ctx); err != nil {
			return nil, err
		}
		store = cache.NewRedisStore(a.redis.Client(), a.cfg.Cache.KeyPrefix)
	}

	return cache.NewAccessor(store,
		cache.WithTTL(a.cfg.Cache.TTL),
		cache.WithLockShards(a.cfg.Cache.LockShards),
		cache.WithLogger(a.log),
		cache.WithRecorder(a.metrics),
	)
}

func (a *app) close(ctx context.Context) {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if err := a.tracing.Shutdown(ctx); err != nil {
		a.log.Warn(ctx, "Tracing shutdown failed", logger.Err(err))
	}
}
