package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/cashcore/bioverify/internal/accounts"
	"github.com/cashcore/bioverify/internal/bio"
	"github.com/cashcore/bioverify/internal/metrics"
	"github.com/cashcore/bioverify/internal/verify"
	"github.com/cashcore/bioverify/internal/webhooks"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// app holds the wired components shared by the commands.
type app struct {
	pool     *pgxpool.Pool
	store    *accounts.PostgresStore // nil without database.url
	redis    *redis.Client
	engine   *verify.Engine
	notifier *webhooks.Notifier
}

// newApp connects the configured backends and wires the engine. With
// needStore set, a missing database.url is an error instead of degrading to
// store-less operation.
func newApp(ctx context.Context, needStore bool) (*app, error) {
	a := &app{}

	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		a.pool = pool
		a.store = accounts.NewPostgresStore(pool)
		logger.Info("connected to postgres")
	} else if needStore {
		return nil, fmt.Errorf("%w: set database.url or DATABASE_URL", accounts.ErrStoreDisabled)
	} else {
		logger.Warn("database.url not set; results will not be persisted")
	}

	var channels bio.ChannelCache
	rc, err := bio.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		logger.Warn("redis unavailable; caching youtube channels in memory", zap.Error(err))
	} else if rc != nil {
		a.redis = rc
		channels = bio.NewRedisChannelCache(rc, cfg.ChannelCacheTTL, logger)
	}
	if channels == nil {
		mem := bio.NewMemoryChannelCache(cfg.ChannelCacheTTL)
		mem.StartEviction(ctx, cfg.ChannelEvictInterval, logger)
		channels = mem
	}

	if cfg.Fetch.YouTubeAPIKey == "" {
		logger.Info("youtube.api_key not set; youtube bios will be scraped")
	}
	registry := bio.New(cfg.Fetch, channels, logger)

	// A nil *PostgresStore must not reach the engine as a non-nil interface.
	var store verify.AccountStore
	if a.store != nil {
		store = a.store
	}
	a.engine = verify.NewEngine(registry, store, logger)
	a.engine.SetMetrics(metrics.Recorder{})
	a.engine.SetStrictCodes(cfg.StrictCodes)

	a.notifier = webhooks.NewNotifier(cfg.Webhooks, logger)
	a.notifier.SetMetricsRecorder(metrics.RecordWebhookDelivery)
	if a.notifier.Enabled() {
		a.engine.SetStatusChangeHook(a.notifier.NotifyStatusChange)
	}
	return a, nil
}

// close waits for pending webhook deliveries and releases connections.
func (a *app) close() {
	a.notifier.Wait()
	if a.redis != nil {
		if err := a.redis.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
			logger.Warn("close redis", zap.Error(err))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
