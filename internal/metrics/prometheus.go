// Package metrics provides a Prometheus metrics registry for the service.
//
// All metrics are scoped to a private registry (not the global default) so
// they don't interfere with host-level metrics when embedded in other
// applications. The /metrics HTTP handler is exposed via Handler().
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

// Registry holds all exported metrics.
type Registry struct {
	reg *prometheus.Registry

	// nexus_inflight_requests
	inFlight prometheus.Gauge

	// nexus_http_requests_total{route,status}
	httpRequestsTotal *prometheus.CounterVec

	// nexus_http_request_duration_seconds{route}
	httpDuration *prometheus.HistogramVec

	// nexus_fetches_total{provider,endpoint,outcome}
	fetchesTotal *prometheus.CounterVec

	// nexus_fetch_latency_ms_total{provider} — sum of latency in ms (derive avg externally)
	latencyTotal *prometheus.CounterVec

	// nexus_fetch_duration_seconds{provider,cache}
	fetchDuration *prometheus.HistogramVec

	// cache_hits_total / cache_misses_total
	cacheHits   prometheus.Counter
	cacheMisses prometheus.Counter

	// nexus_cache_operations_total{op,result}
	cacheOps *prometheus.CounterVec

	// provider_errors_total{provider,error_type}
	providerErrors *prometheus.CounterVec

	// nexus_retry_attempts_total{provider,outcome}
	retryAttempts *prometheus.CounterVec

	// circuit_breaker_state{provider} — 0=closed, 1=open, 2=half-open
	circuitBreakerState *prometheus.GaugeVec

	// nexus_circuit_breaker_transitions_total{provider,to_state}
	cbTransitions *prometheus.CounterVec

	// nexus_circuit_breaker_rejections_total{provider,state}
	cbRejections *prometheus.CounterVec

	// nexus_qos_active{provider} / nexus_qos_queued{provider}
	qosActive *prometheus.GaugeVec
	qosQueued *prometheus.GaugeVec

	// nexus_provider_health{provider} — 0=healthy, 1=unknown, 2=degraded, 3=unhealthy
	providerHealth *prometheus.GaugeVec

	// nexus_build_info{version}
	buildInfo *prometheus.GaugeVec

	cbMu        sync.Mutex
	lastCBState map[string]float64

	metricsHandler fasthttp.RequestHandler
}

func New() *Registry {
	reg := prometheus.NewRegistry()

	// Baseline runtime metrics even with a private registry.
	reg.MustRegister(prometheus.NewGoCollector())
	reg.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	r := &Registry{
		reg:         reg,
		lastCBState: make(map[string]float64),

		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nexus_inflight_requests",
			Help: "Current number of in-flight HTTP requests",
		}),

		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nexus_http_requests_total",
				Help: "Total number of HTTP requests handled",
			},
			[]string{"route", "status"},
		),

		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nexus_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds (end-to-end, includes cache + upstream)",
				Buckets: []float64{0.001, 0.002, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
			},
			[]string{"route"},
		),

		fetchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nexus_fetches_total",
				Help: "Total data fetches by provider, endpoint and outcome",
			},
			[]string{"provider", "endpoint", "outcome"},
		),

		latencyTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nexus_fetch_latency_ms_total",
				Help: "Sum of fetch latency in ms (compute avg externally)",
			},
			[]string{"provider"},
		),

		fetchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nexus_fetch_duration_seconds",
				Help:    "End-to-end fetch duration in seconds",
				Buckets: []float64{0.001, 0.002, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
			},
			[]string{"provider", "cache"},
		),

		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total cache hits",
		}),

		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total cache misses",
		}),

		cacheOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nexus_cache_operations_total",
				Help: "Cache operations by type and result",
			},
			[]string{"op", "result"},
		),

		providerErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "provider_errors_total",
				Help: "Total provider errors by type",
			},
			[]string{"provider", "error_type"},
		),

		retryAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nexus_retry_attempts_total",
				Help: "Upstream attempts by outcome (first tries and retries alike)",
			},
			[]string{"provider", "outcome"},
		),

		circuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed,1=open,2=half-open)",
			},
			[]string{"provider"},
		),

		cbTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nexus_circuit_breaker_transitions_total",
				Help: "Circuit breaker transitions to a new state",
			},
			[]string{"provider", "to_state"},
		),

		cbRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nexus_circuit_breaker_rejections_total",
				Help: "Requests rejected due to circuit breaker state",
			},
			[]string{"provider", "state"},
		),

		qosActive: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "nexus_qos_active",
				Help: "Requests currently holding a concurrency slot",
			},
			[]string{"provider"},
		),

		qosQueued: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "nexus_qos_queued",
				Help: "Requests waiting for a concurrency slot",
			},
			[]string{"provider"},
		),

		providerHealth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "nexus_provider_health",
				Help: "Provider health (0=healthy,1=unknown,2=degraded,3=unhealthy)",
			},
			[]string{"provider"},
		),

		buildInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "nexus_build_info",
				Help: "Build information",
			},
			[]string{"version"},
		),
	}

	reg.MustRegister(
		r.inFlight,
		r.httpRequestsTotal,
		r.httpDuration,
		r.fetchesTotal,
		r.latencyTotal,
		r.fetchDuration,
		r.cacheHits,
		r.cacheMisses,
		r.cacheOps,
		r.providerErrors,
		r.retryAttempts,
		r.circuitBreakerState,
		r.cbTransitions,
		r.cbRejections,
		r.qosActive,
		r.qosQueued,
		r.providerHealth,
		r.buildInfo,
	)

	h := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	r.metricsHandler = fasthttpadaptor.NewFastHTTPHandler(h)

	return r
}

func (r *Registry) IncInFlight() { r.inFlight.Inc() }
func (r *Registry) DecInFlight() { r.inFlight.Dec() }

// ObserveHTTP records end-to-end HTTP metrics for one handled request.
func (r *Registry) ObserveHTTP(route string, statusCode int, dur time.Duration) {
	status := strconv.Itoa(statusCode)
	r.httpRequestsTotal.WithLabelValues(route, status).Inc()
	r.httpDuration.WithLabelValues(route).Observe(dur.Seconds())
}

// RecordFetch records one completed fetch and its latency.
func (r *Registry) RecordFetch(provider, endpoint, outcome string, latencyMs int64, fromCache bool) {
	r.fetchesTotal.WithLabelValues(provider, endpoint, outcome).Inc()
	r.latencyTotal.WithLabelValues(provider).Add(float64(latencyMs))
	cache := "miss"
	if fromCache {
		cache = "hit"
	}
	r.fetchDuration.WithLabelValues(provider, cache).Observe(float64(latencyMs) / 1000)
}

func (r *Registry) RecordRetryAttempt(provider, outcome string) {
	r.retryAttempts.WithLabelValues(provider, outcome).Inc()
}

func (r *Registry) CacheGetHit() {
	r.cacheHits.Inc()
	r.cacheOps.WithLabelValues("get", "hit").Inc()
}

func (r *Registry) CacheGetMiss() {
	r.cacheMisses.Inc()
	r.cacheOps.WithLabelValues("get", "miss").Inc()
}

func (r *Registry) CacheGetBypass() {
	r.cacheOps.WithLabelValues("get", "bypass").Inc()
}

func (r *Registry) CacheSetOK() {
	r.cacheOps.WithLabelValues("set", "ok").Inc()
}

func (r *Registry) CacheSetError() {
	r.cacheOps.WithLabelValues("set", "error").Inc()
}

func (r *Registry) RecordError(provider, errType string) {
	r.providerErrors.WithLabelValues(provider, errType).Inc()
}

// SetCircuitBreaker sets the circuit breaker state gauge and increments a
// transition counter when the state changes.
func (r *Registry) SetCircuitBreaker(provider string, state int64) {
	r.circuitBreakerState.WithLabelValues(provider).Set(float64(state))

	r.cbMu.Lock()
	prev, ok := r.lastCBState[provider]
	if !ok || prev != float64(state) {
		r.lastCBState[provider] = float64(state)
		toState := strconv.FormatInt(state, 10)
		r.cbTransitions.WithLabelValues(provider, toState).Inc()
	}
	r.cbMu.Unlock()
}

func (r *Registry) RecordCircuitBreakerRejection(provider, state string) {
	r.cbRejections.WithLabelValues(provider, state).Inc()
}

func (r *Registry) SetQoS(provider string, active, queued int64) {
	r.qosActive.WithLabelValues(provider).Set(float64(active))
	r.qosQueued.WithLabelValues(provider).Set(float64(queued))
}

func (r *Registry) SetProviderHealth(provider string, status int64) {
	r.providerHealth.WithLabelValues(provider).Set(float64(status))
}

func (r *Registry) SetBuildInfo(version string) {
	// Gauge is used so the time series always exists.
	r.buildInfo.WithLabelValues(version).Set(1)
}

func (r *Registry) Handler() fasthttp.RequestHandler {
	return r.metricsHandler
}

func (r *Registry) PromRegistry() *prometheus.Registry { return r.reg }
