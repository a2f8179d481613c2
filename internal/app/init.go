package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/omnidata/nexus/internal/breaker"
	"github.com/omnidata/nexus/internal/cache"
	"github.com/omnidata/nexus/internal/health"
	"github.com/omnidata/nexus/internal/httpx"
	"github.com/omnidata/nexus/internal/loader"
	"github.com/omnidata/nexus/internal/logger"
	"github.com/omnidata/nexus/internal/metrics"
	"github.com/omnidata/nexus/internal/providers"
	fmpprov "github.com/omnidata/nexus/internal/providers/fmp"
	fredprov "github.com/omnidata/nexus/internal/providers/fred"
	polygonprov "github.com/omnidata/nexus/internal/providers/polygon"
	"github.com/omnidata/nexus/internal/qos"
	"github.com/omnidata/nexus/internal/retry"
	"github.com/omnidata/nexus/internal/server"
)

// initInfra establishes optional external connections.
// Redis is only required when CACHE_BACKEND=redis; ClickHouse only when a
// DSN is configured.
func (a *App) initInfra(ctx context.Context) error {
	if a.cfg.Cache.Backend == "redis" {
		a.log.Info("connecting to redis", slog.String("url", redactURL(a.cfg.Redis.URL)))

		rdb, err := connectRedis(ctx, a.cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		a.rdb = rdb
		a.log.Info("redis connected")
	}

	if a.cfg.ClickHouseDSN != "" {
		a.log.Info("connecting to clickhouse", slog.String("dsn", redactURL(a.cfg.ClickHouseDSN)))

		sink, err := logger.NewClickHouseSink(ctx, a.cfg.ClickHouseDSN)
		if err != nil {
			return fmt.Errorf("clickhouse: %w", err)
		}
		a.chSink = sink
		a.log.Info("clickhouse connected")
	}

	return nil
}

// initProviders builds the provider adapters from non-empty API keys. In
// READ_ONLY mode an empty set is fine — the cache alone is served.
func (a *App) initProviders(_ context.Context) error {
	client := httpx.New(
		httpx.WithTimeout(time.Duration(a.cfg.RequestTimeoutSeconds) * time.Second),
	)

	if a.cfg.FMPKey != "" {
		a.provs = append(a.provs, fmpprov.New(a.cfg.FMPKey, client))
	}
	if a.cfg.PolygonKey != "" {
		a.provs = append(a.provs, polygonprov.New(a.cfg.PolygonKey, client))
	}
	if a.cfg.FREDKey != "" {
		a.provs = append(a.provs, fredprov.New(a.cfg.FREDKey, client))
	}

	if len(a.provs) == 0 && a.cfg.OperatingMode == "LIVE" {
		return fmt.Errorf("no provider API keys configured")
	}

	names := make([]string, 0, len(a.provs))
	for _, p := range a.provs {
		names = append(names, p.Name())
	}
	a.log.Info("providers loaded", slog.Any("providers", names))

	return nil
}

// initServices creates the cache backend, the Prometheus metrics registry
// and the async fetch-audit logger.
func (a *App) initServices(ctx context.Context) error {
	switch a.cfg.Cache.Backend {
	case "fs":
		a.log.Info("cache backend: filesystem", slog.String("dir", a.cfg.Cache.Dir))
	case "redis":
		a.log.Info("cache backend: redis")
	case "memory":
		a.memCache = cache.NewMemoryStore(ctx, a.cfg.Cache.TTLDays)
		a.log.Info("cache backend: memory (in-process)")
	case "none":
		a.log.Info("cache backend: disabled")
	default:
		return fmt.Errorf("unknown cache backend: %s", a.cfg.Cache.Backend)
	}

	a.prom = metrics.New()
	a.prom.SetBuildInfo(a.version)

	var opts []logger.Option
	if a.chSink != nil {
		opts = append(opts, logger.WithSink(a.chSink))
	}
	audit, err := logger.New(ctx, a.log, opts...)
	if err != nil {
		return fmt.Errorf("audit logger: %w", err)
	}
	a.audit = audit

	return nil
}

// initLoader wires the orchestrator with all configured subsystems.
func (a *App) initLoader(_ context.Context) error {
	// ── Determine cache implementation ────────────────────────────────────────
	var store cache.Store
	switch a.cfg.Cache.Backend {
	case "fs":
		fs, err := cache.NewFSStore(a.cfg.Cache.Dir, cache.FSOptions{
			TTLDays: a.cfg.Cache.TTLDays,
			Logger:  a.log,
		})
		if err != nil {
			return fmt.Errorf("filesystem cache: %w", err)
		}
		store = fs
	case "redis":
		store = cache.NewRedisStoreFromClient(a.rdb, a.cfg.Cache.TTLDays)
	case "memory":
		store = a.memCache
	case "none":
		// nil store — the loader handles nil gracefully (no caching)
	}

	// ── Cache exclusions ──────────────────────────────────────────────────────
	var excl *cache.ExclusionList
	if len(a.cfg.Cache.ExcludeExact) > 0 || len(a.cfg.Cache.ExcludePatterns) > 0 {
		el, err := cache.NewExclusionList(a.cfg.Cache.ExcludeExact, a.cfg.Cache.ExcludePatterns)
		if err != nil {
			return fmt.Errorf("cache exclusions: %w", err)
		}
		excl = el
		a.log.Info("cache exclusions loaded", slog.Int("rules", el.Len()))
	}

	mode, err := loader.ParseMode(a.cfg.OperatingMode)
	if err != nil {
		return err
	}

	limits := map[string]int{
		"fmp":     a.cfg.Concurrency.FMP,
		"polygon": a.cfg.Concurrency.Polygon,
		"fred":    a.cfg.Concurrency.FRED,
	}

	a.ldr = loader.New(
		a.provs,
		qos.New(limits),
		breaker.NewManager(breaker.Config{
			ErrorThreshold:  a.cfg.CircuitBreakerThreshold,
			RecoveryTimeout: time.Duration(a.cfg.CircuitBreakerTimeoutSeconds) * time.Second,
		}),
		retry.New(retry.Config{MaxRetries: a.cfg.MaxRetries}),
		health.NewMonitor(),
		loader.Options{
			Cache:      store,
			Exclusions: excl,
			Metrics:    a.prom,
			Audit:      a.audit,
			Logger:     a.log,
			Mode:       mode,
		},
	)

	return nil
}

// initServer builds the HTTP facade.
func (a *App) initServer(_ context.Context) error {
	a.srv = server.New(a.ldr, server.Options{
		CORSOrigins: a.cfg.CORSOrigins,
		Metrics:     a.prom,
		Logger:      a.log,
	})
	return nil
}

// compile-time check that all adapters satisfy the Provider interface.
var (
	_ providers.Provider = (*fmpprov.Provider)(nil)
	_ providers.Provider = (*polygonprov.Provider)(nil)
	_ providers.Provider = (*fredprov.Provider)(nil)
)
