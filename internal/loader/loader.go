// Package loader orchestrates data fetches: cache lookup, operating-mode
// gate, circuit breaker, concurrency slot, retried upstream call, then cache
// write-back and health/stats bookkeeping. Providers stay dumb; every
// resilience decision lives here.
package loader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/omnidata/nexus/internal/breaker"
	"github.com/omnidata/nexus/internal/cache"
	"github.com/omnidata/nexus/internal/health"
	"github.com/omnidata/nexus/internal/httpx"
	"github.com/omnidata/nexus/internal/logger"
	"github.com/omnidata/nexus/internal/metrics"
	"github.com/omnidata/nexus/internal/providers"
	"github.com/omnidata/nexus/internal/qos"
	"github.com/omnidata/nexus/internal/retry"
)

// Mode is the loader operating mode.
type Mode string

const (
	ModeLive     Mode = "LIVE"      // cache first, then live API calls
	ModeReadOnly Mode = "READ_ONLY" // cache only, live calls refused
)

// ParseMode validates a mode string (case-insensitive).
func ParseMode(s string) (Mode, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case string(ModeLive), "":
		return ModeLive, nil
	case string(ModeReadOnly):
		return ModeReadOnly, nil
	default:
		return "", fmt.Errorf("invalid operating mode %q (want LIVE or READ_ONLY)", s)
	}
}

// ReadOnlyError is returned when a live fetch is refused in READ_ONLY mode.
type ReadOnlyError struct {
	Provider string
	Endpoint string
}

func (e *ReadOnlyError) Error() string {
	return fmt.Sprintf("Read-only mode: live fetch disabled for %s/%s", e.Provider, e.Endpoint)
}

// HTTPStatus maps the refusal for the HTTP facade.
func (e *ReadOnlyError) HTTPStatus() int { return 503 }

// Stats counts loader-level outcomes.
type Stats struct {
	TotalRequests            int64   `json:"total_requests"`
	CacheHits                int64   `json:"cache_hits"`
	CacheMisses              int64   `json:"cache_misses"`
	APICalls                 int64   `json:"api_calls"`
	APISuccesses             int64   `json:"api_successes"`
	APIFailures              int64   `json:"api_failures"`
	CircuitBreakerRejections int64   `json:"circuit_breaker_rejections"`
	CacheHitRate             float64 `json:"cache_hit_rate"`
}

// Request identifies one fetch for FetchMany.
type Request struct {
	Provider string            `json:"provider"`
	Endpoint string            `json:"endpoint"`
	Params   map[string]string `json:"params,omitempty"`
}

// HealthReport is the composite health view served by the facade.
type HealthReport struct {
	Timestamp       int64                    `json:"timestamp"`
	OperatingMode   Mode                     `json:"operating_mode"`
	OverallStatus   health.Status            `json:"overall_status"`
	Providers       map[string]health.Report `json:"providers"`
	CircuitBreakers map[string]breaker.Stats `json:"circuit_breakers"`
	QoS             map[string]qos.Stats     `json:"qos"`
	LoaderStats     Stats                    `json:"loader_stats"`
}

// Options carries the loader's optional collaborators. Nil fields are safe:
// a nil cache disables caching, nil metrics and audit disable those hooks.
type Options struct {
	Cache      cache.Store
	Exclusions *cache.ExclusionList
	Metrics    *metrics.Registry
	Audit      *logger.Logger
	Logger     *slog.Logger
	Mode       Mode
}

// Loader is the fetch orchestrator. Safe for concurrent use.
type Loader struct {
	providers map[string]providers.Provider
	order     []string

	store      cache.Store
	exclusions *cache.ExclusionList
	gate       *qos.Router
	breakers   *breaker.Manager
	driver     *retry.Driver
	monitor    *health.Monitor
	metrics    *metrics.Registry
	audit      *logger.Logger
	log        *slog.Logger

	mu    sync.Mutex
	mode  Mode
	stats Stats
}

func New(provs []providers.Provider, gate *qos.Router, breakers *breaker.Manager,
	driver *retry.Driver, monitor *health.Monitor, opts Options) *Loader {

	l := &Loader{
		providers:  make(map[string]providers.Provider, len(provs)),
		store:      opts.Cache,
		exclusions: opts.Exclusions,
		gate:       gate,
		breakers:   breakers,
		driver:     driver,
		monitor:    monitor,
		metrics:    opts.Metrics,
		audit:      opts.Audit,
		log:        opts.Logger,
		mode:       opts.Mode,
	}
	if l.log == nil {
		l.log = slog.Default()
	}
	if l.mode == "" {
		l.mode = ModeLive
	}
	for _, p := range provs {
		if _, dup := l.providers[p.Name()]; !dup {
			l.order = append(l.order, p.Name())
		}
		l.providers[p.Name()] = p
	}
	return l
}

// Mode returns the current operating mode.
func (l *Loader) Mode() Mode {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.mode
}

// SetMode switches the operating mode at runtime.
func (l *Loader) SetMode(m Mode) {
	l.mu.Lock()
	l.mode = m
	l.mu.Unlock()
	l.log.Info("operating mode changed", slog.String("mode", string(m)))
}

// Providers lists registered provider names in registration order.
func (l *Loader) Providers() []string {
	out := make([]string, len(l.order))
	copy(out, l.order)
	return out
}

// SupportedEndpoints maps each provider to its endpoint names.
func (l *Loader) SupportedEndpoints() map[string][]string {
	out := make(map[string][]string, len(l.providers))
	for name, p := range l.providers {
		out[name] = p.Endpoints()
	}
	return out
}

// Fetch runs one orchestrated fetch. Control-flow refusals come back as
// typed errors callers can branch on: *ReadOnlyError when the mode forbids a
// live call, *breaker.OpenError when the breaker rejects, and the context's
// own error on cancellation. Every other failure is reported inside the
// Result so the common path is a branch on Success.
func (l *Loader) Fetch(ctx context.Context, provider, endpoint string, params map[string]string) (providers.Result, error) {
	l.mu.Lock()
	l.stats.TotalRequests++
	l.mu.Unlock()

	p, ok := l.providers[provider]
	if !ok {
		return l.failure(provider, endpoint, fmt.Sprintf("Unknown provider: %s", provider), "unknown_provider", 0, 1), nil
	}

	cacheable := l.store != nil && !l.exclusions.Matches(endpoint)
	key := p.CacheKey(endpoint, params)

	if cacheable {
		if data, hit := l.store.Get(ctx, provider, key); hit {
			l.mu.Lock()
			l.stats.CacheHits++
			l.mu.Unlock()
			if l.metrics != nil {
				l.metrics.CacheGetHit()
				l.metrics.RecordFetch(provider, endpoint, "cache_hit", 0, true)
			}
			l.logAudit(provider, endpoint, "cache_hit", "", 0, 0, true)
			return providers.Result{
				Success:   true,
				Data:      data,
				Provider:  provider,
				Endpoint:  endpoint,
				FromCache: true,
			}, nil
		}
		l.mu.Lock()
		l.stats.CacheMisses++
		l.mu.Unlock()
		if l.metrics != nil {
			l.metrics.CacheGetMiss()
		}
	} else if l.metrics != nil {
		l.metrics.CacheGetBypass()
	}

	if l.Mode() == ModeReadOnly {
		l.logAudit(provider, endpoint, "read_only", "", 0, 0, false)
		if l.metrics != nil {
			l.metrics.RecordFetch(provider, endpoint, "read_only", 0, false)
		}
		return providers.Result{}, &ReadOnlyError{Provider: provider, Endpoint: endpoint}
	}

	b := l.breakers.For(provider)
	if !b.Allow() {
		state := b.State()
		l.mu.Lock()
		l.stats.CircuitBreakerRejections++
		l.mu.Unlock()
		if l.metrics != nil {
			l.metrics.RecordCircuitBreakerRejection(provider, state.String())
			l.metrics.SetCircuitBreaker(provider, int64(state))
			l.metrics.RecordFetch(provider, endpoint, "rejected", 0, false)
		}
		l.logAudit(provider, endpoint, "rejected", "circuit_open", 0, 0, false)
		return providers.Result{}, &breaker.OpenError{Provider: provider, State: state}
	}

	release, err := l.gate.Acquire(ctx, provider)
	if err != nil {
		// Only a cancelled or expired context can fail the gate wait.
		return providers.Result{}, err
	}
	defer release()

	l.mu.Lock()
	l.stats.APICalls++
	l.mu.Unlock()

	start := time.Now()
	data, err := l.driver.Execute(ctx, func(ctx context.Context) (any, error) {
		return p.Fetch(ctx, endpoint, params)
	})
	latencyMs := float64(time.Since(start)) / float64(time.Millisecond)

	if err != nil {
		// A cancelled call never fully happened from the breaker's or the
		// health monitor's perspective; the slot is released by the defer.
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return providers.Result{}, err
		}
		return l.recordFailure(provider, endpoint, err, latencyMs, b), nil
	}

	b.RecordSuccess()
	l.monitor.RecordSuccess(provider, latencyMs)
	l.mu.Lock()
	l.stats.APISuccesses++
	l.mu.Unlock()
	if l.metrics != nil {
		l.metrics.RecordFetch(provider, endpoint, "success", int64(latencyMs), false)
		l.metrics.SetCircuitBreaker(provider, int64(b.State()))
	}

	if cacheable {
		if serr := l.store.Set(ctx, provider, key, data); serr != nil {
			if l.metrics != nil {
				l.metrics.CacheSetError()
			}
			l.log.Warn("cache write failed",
				slog.String("provider", provider),
				slog.String("endpoint", endpoint),
				slog.String("error", serr.Error()))
		} else if l.metrics != nil {
			l.metrics.CacheSetOK()
		}
	}

	l.logAudit(provider, endpoint, "success", "", latencyMs, 1, false)
	return providers.Result{
		Success:   true,
		Data:      data,
		Provider:  provider,
		Endpoint:  endpoint,
		LatencyMs: latencyMs,
	}, nil
}

// recordFailure books a failed upstream call into the breaker, monitor,
// stats and metrics, and shapes the failure message.
func (l *Loader) recordFailure(provider, endpoint string, err error, latencyMs float64, b *breaker.Breaker) providers.Result {
	b.RecordFailure()

	cause := err
	attempts := 1
	msg := ""
	var exhausted *retry.ExhaustedError
	switch {
	case errors.As(err, &exhausted):
		cause = exhausted.LastErr
		attempts = exhausted.Attempts
		msg = fmt.Sprintf("All retries exhausted: %v", exhausted.LastErr)
	case httpx.ErrorType(err) != "unexpected":
		msg = err.Error()
	default:
		var sc retry.StatusCoder
		if errors.As(err, &sc) {
			// Validation errors carry their own message.
			msg = err.Error()
		} else {
			msg = fmt.Sprintf("Unexpected error: %v", err)
		}
	}

	errType := httpx.ErrorType(cause)
	l.monitor.RecordFailure(provider, latencyMs, errType)
	l.mu.Lock()
	l.stats.APIFailures++
	l.mu.Unlock()
	if l.metrics != nil {
		l.metrics.RecordFetch(provider, endpoint, "failure", int64(latencyMs), false)
		l.metrics.RecordError(provider, errType)
		l.metrics.SetCircuitBreaker(provider, int64(b.State()))
	}

	l.logAudit(provider, endpoint, "failure", errType, latencyMs, attempts, false)
	l.log.Warn("fetch failed",
		slog.String("provider", provider),
		slog.String("endpoint", endpoint),
		slog.String("error_type", errType),
		slog.String("error", msg))

	return providers.Result{
		Success:   false,
		Provider:  provider,
		Endpoint:  endpoint,
		LatencyMs: latencyMs,
		Error:     msg,
	}
}

// failure shapes a terminal failure that never reached the upstream.
func (l *Loader) failure(provider, endpoint, msg, errType string, latencyMs float64, attempts int) providers.Result {
	l.logAudit(provider, endpoint, "failure", errType, latencyMs, attempts, false)
	if l.metrics != nil {
		l.metrics.RecordFetch(provider, endpoint, "failure", int64(latencyMs), false)
	}
	return providers.Result{
		Success:   false,
		Provider:  provider,
		Endpoint:  endpoint,
		LatencyMs: latencyMs,
		Error:     msg,
	}
}

func (l *Loader) logAudit(provider, endpoint, outcome, errType string, latencyMs float64, attempts int, fromCache bool) {
	if l.audit == nil {
		return
	}
	if attempts < 0 || attempts > 255 {
		attempts = 255
	}
	l.audit.Log(logger.FetchLog{
		ID:        uuid.New(),
		Provider:  provider,
		Endpoint:  endpoint,
		Outcome:   outcome,
		ErrorType: errType,
		LatencyMs: uint32(latencyMs),
		Attempts:  uint8(attempts),
		FromCache: fromCache,
		CreatedAt: time.Now().UTC(),
	})
}

// FetchMany runs the requests concurrently and returns results in request
// order. Individual failures — including mode refusals and breaker
// rejections — land in their Result so partial successes survive; the only
// error case is a cancelled context.
func (l *Loader) FetchMany(ctx context.Context, reqs []Request) ([]providers.Result, error) {
	results := make([]providers.Result, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	for i, req := range reqs {
		i, req := i, req
		g.Go(func() error {
			res, err := l.Fetch(gctx, req.Provider, req.Endpoint, req.Params)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				res = providers.Result{
					Success:  false,
					Provider: req.Provider,
					Endpoint: req.Endpoint,
					Error:    err.Error(),
				}
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Stats returns a snapshot with the derived cache hit rate, measured against
// all requests so bypassed lookups still dilute the rate.
func (l *Loader) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := l.stats
	if s.TotalRequests > 0 {
		s.CacheHitRate = float64(s.CacheHits) / float64(s.TotalRequests)
	}
	return s
}

// Health assembles the composite health report.
func (l *Loader) Health() HealthReport {
	report := HealthReport{
		Timestamp:       time.Now().Unix(),
		OperatingMode:   l.Mode(),
		OverallStatus:   l.monitor.Overall(),
		Providers:       l.monitor.ReportAll(),
		CircuitBreakers: l.breakers.StatsSnapshot(),
		QoS:             l.gate.StatsSnapshot(),
		LoaderStats:     l.Stats(),
	}
	if l.metrics != nil {
		for p, r := range report.Providers {
			l.metrics.SetProviderHealth(p, int64(statusCode(r.Status)))
		}
		for p, s := range report.QoS {
			l.metrics.SetQoS(p, int64(s.Active), int64(s.Queued))
		}
	}
	return report
}

func statusCode(s health.Status) int {
	switch s {
	case health.StatusHealthy:
		return 0
	case health.StatusUnknown:
		return 1
	case health.StatusDegraded:
		return 2
	default:
		return 3
	}
}

// ResetCircuitBreaker resets one provider's breaker, or all when provider is
// empty.
func (l *Loader) ResetCircuitBreaker(provider string) {
	if provider == "" {
		l.breakers.ResetAll()
		l.log.Info("all circuit breakers reset")
		return
	}
	l.breakers.Reset(provider)
	l.log.Info("circuit breaker reset", slog.String("provider", provider))
}

// ResetHealth resets one provider's health state, or all when provider is
// empty.
func (l *Loader) ResetHealth(provider string) {
	if provider == "" {
		l.monitor.ResetAll()
		return
	}
	l.monitor.Reset(provider)
}

// CacheStats reports per-provider cache population; nil without a cache.
func (l *Loader) CacheStats(ctx context.Context) (map[string]cache.Stats, error) {
	if l.store == nil {
		return nil, nil
	}
	return l.store.Stats(ctx)
}

// ClearCache removes every cached entry for a provider.
func (l *Loader) ClearCache(ctx context.Context, provider string) (int, error) {
	if l.store == nil {
		return 0, nil
	}
	return l.store.ClearProvider(ctx, provider)
}

// RetryStats exposes the retry driver's counters.
func (l *Loader) RetryStats() retry.Stats {
	return l.driver.StatsSnapshot()
}
