package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/heycarlitos/llm-proxy/config"
	"github.com/heycarlitos/llm-proxy/internal/observability"
	"github.com/heycarlitos/llm-proxy/repositories"
	"github.com/heycarlitos/llm-proxy/repositories/memory"
	"github.com/heycarlitos/llm-proxy/repositories/postgres"
	"github.com/heycarlitos/llm-proxy/repositories/redis"
	"github.com/heycarlitos/llm-proxy/services/providers"
	"github.com/heycarlitos/llm-proxy/services/providers/anthropic"
	"github.com/heycarlitos/llm-proxy/services/providers/openrouter"
	"github.com/heycarlitos/llm-proxy/services/proxy"
	"github.com/heycarlitos/llm-proxy/services/ratelimit"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

// Dependencies holds everything the HTTP layer needs.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *observability.Metrics

	// Rate limiting
	Store       repositories.RateLimitStore
	RateLimiter *ratelimit.RateLimitService

	// Upstream
	Proxy *proxy.ProxyService
}

// NewDependencies creates and wires up all application dependencies
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config:  cfg,
		Logger:  logger,
		Metrics: observability.NewMetrics(),
	}

	if err := deps.initStore(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize rate limit store: %w", err)
	}

	deps.RateLimiter = ratelimit.NewRateLimitService(
		deps.Store,
		cfg.RateLimit.Capacity,
		cfg.RateLimit.Window,
		deps.Metrics,
		logger,
	)

	deps.initProxy(cfg)

	logger.Info("all dependencies initialized successfully",
		zap.String("rate_limit_backend", cfg.RateLimit.Backend),
		zap.String("provider", deps.Proxy.Provider()))
	return deps, nil
}

// initStore opens the rate limit store selected by RATE_LIMIT_BACKEND
func (d *Dependencies) initStore(ctx context.Context, cfg *config.Config) error {
	switch cfg.RateLimit.Backend {
	case config.BackendPostgres:
		db, err := postgres.NewDB(cfg.Database, d.Logger)
		if err != nil {
			return err
		}
		if err := db.InitSchema(ctx); err != nil {
			_ = db.Close()
			return err
		}
		d.Metrics.Registry().MustRegister(collectors.NewDBStatsCollector(db.DB, "ratelimit"))
		d.Store = postgres.NewRateLimitRepository(db, d.Logger)

	case config.BackendRedis:
		store := redis.NewRateLimitStore(redis.NewClient(cfg.Redis), cfg.Redis.KeyPrefix, cfg.RateLimit.Window, d.Logger)
		if err := store.Ping(ctx); err != nil {
			_ = store.Close()
			return err
		}
		d.Logger.Info("redis connection established", zap.String("addr", cfg.Redis.Addr))
		d.Store = store

	default:
		d.Store = memory.NewRateLimitStore()
	}

	return nil
}

// initProxy selects the provider adapter and builds the upstream client
func (d *Dependencies) initProxy(cfg *config.Config) {
	adapter := SelectAdapter(cfg, d.Logger)
	if adapter == nil {
		if cfg.IsProduction() {
			d.Logger.Warn("no provider API key configured in production; /proxy will answer 500")
		} else {
			d.Logger.Warn("no LLM provider configured")
		}
	}

	client := &http.Client{Timeout: cfg.Providers.UpstreamTimeout}
	d.Proxy = proxy.NewProxyService(adapter, client, d.Metrics, d.Logger)
}

// SelectAdapter returns the adapter for the provider chosen at startup,
// or nil when no key is configured. Anthropic wins when both keys are set.
func SelectAdapter(cfg *config.Config, logger *zap.Logger) providers.Adapter {
	switch cfg.Providers.Selected() {
	case config.ProviderAnthropic:
		logger.Info("registered Anthropic provider")
		return anthropic.NewAdapter(cfg.Providers.Anthropic)
	case config.ProviderOpenRouter:
		logger.Info("registered OpenRouter provider")
		return openrouter.NewAdapter(cfg.Providers.OpenRouter, logger)
	default:
		return nil
	}
}

// StartBackground launches the expired-entry sweeper. It stops when ctx is cancelled.
func (d *Dependencies) StartBackground(ctx context.Context) {
	if d.RateLimiter == nil {
		return
	}
	go d.RateLimiter.StartCleanupWorker(ctx, d.Config.RateLimit.SweepInterval)
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.Store != nil {
		if err := d.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close rate limit store: %w", err))
		} else {
			d.Logger.Info("rate limit store closed")
		}
		d.Store = nil
	}

	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}

	return nil
}
