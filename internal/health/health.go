// Package health tracks per-provider request outcomes and derives a status
// from the rolling error rate. Status thresholds are deliberately aligned
// with the circuit breaker's: a provider goes unhealthy at the same error
// rate that trips its breaker.
package health

import (
	"sync"
	"time"
)

// Status of a single provider.
type Status string

const (
	StatusUnknown   Status = "unknown" // too few requests to judge
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"  // rolling error rate ≥ 0.10
	StatusUnhealthy Status = "unhealthy" // rolling error rate ≥ 0.20
)

const (
	windowSize           = 100
	minRequestsForStatus = 10
	degradedThreshold    = 0.10
	unhealthyThreshold   = 0.20
)

// Report is the exported view of one provider's health.
type Report struct {
	Status           Status  `json:"status"`
	TotalRequests    int64   `json:"total_requests"`
	TotalSuccesses   int64   `json:"total_successes"`
	TotalFailures    int64   `json:"total_failures"`
	RateLimited      int64   `json:"rate_limited"`
	Timeouts         int64   `json:"timeouts"`
	RollingErrorRate float64 `json:"rolling_error_rate"`
	AvgLatencyMs     float64 `json:"avg_latency_ms"`
	LastSuccess      int64   `json:"last_success,omitempty"`
	LastFailure      int64   `json:"last_failure,omitempty"`
}

type providerState struct {
	window []bool // true = failure

	requests    int64
	successes   int64
	failures    int64
	rateLimited int64
	timeouts    int64

	latencySum   float64
	latencyCount int64

	lastSuccess time.Time
	lastFailure time.Time
}

func (p *providerState) push(failure bool) {
	if len(p.window) == windowSize {
		copy(p.window, p.window[1:])
		p.window = p.window[:len(p.window)-1]
	}
	p.window = append(p.window, failure)
}

func (p *providerState) rollingErrorRate() float64 {
	if len(p.window) == 0 {
		return 0
	}
	failures := 0
	for _, f := range p.window {
		if f {
			failures++
		}
	}
	return float64(failures) / float64(len(p.window))
}

func (p *providerState) status() Status {
	if p.requests < minRequestsForStatus {
		return StatusUnknown
	}
	rate := p.rollingErrorRate()
	switch {
	case rate >= unhealthyThreshold:
		return StatusUnhealthy
	case rate >= degradedThreshold:
		return StatusDegraded
	default:
		return StatusHealthy
	}
}

// Monitor aggregates outcomes per provider. Safe for concurrent use.
type Monitor struct {
	mu        sync.Mutex
	providers map[string]*providerState
}

func NewMonitor() *Monitor {
	return &Monitor{providers: make(map[string]*providerState)}
}

func (m *Monitor) stateFor(provider string) *providerState {
	p, ok := m.providers[provider]
	if !ok {
		p = &providerState{}
		m.providers[provider] = p
	}
	return p
}

// RecordSuccess records one successful request.
func (m *Monitor) RecordSuccess(provider string, latencyMs float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.stateFor(provider)
	p.requests++
	p.successes++
	p.latencySum += latencyMs
	p.latencyCount++
	p.lastSuccess = time.Now()
	p.push(false)
}

// RecordFailure records one failed request. errType uses the httpx labels;
// "rate_limit" and "timeout" maintain their dedicated counters.
func (m *Monitor) RecordFailure(provider string, latencyMs float64, errType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.stateFor(provider)
	p.requests++
	p.failures++
	if latencyMs > 0 {
		p.latencySum += latencyMs
		p.latencyCount++
	}
	switch errType {
	case "rate_limit":
		p.rateLimited++
	case "timeout":
		p.timeouts++
	}
	p.lastFailure = time.Now()
	p.push(true)
}

// StatusFor returns one provider's current status.
func (m *Monitor) StatusFor(provider string) Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.providers[provider]
	if !ok {
		return StatusUnknown
	}
	return p.status()
}

// Overall rolls the per-provider statuses up: any unhealthy provider makes
// the whole service unhealthy, then any degraded one degrades it. Providers
// without enough traffic to judge are ignored unless every provider is
// unknown (or none exist), in which case the overall status is unknown.
func (m *Monitor) Overall() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.providers) == 0 {
		return StatusUnknown
	}
	worst := StatusHealthy
	allUnknown := true
	for _, p := range m.providers {
		switch p.status() {
		case StatusUnhealthy:
			allUnknown = false
			worst = StatusUnhealthy
		case StatusDegraded:
			allUnknown = false
			if worst != StatusUnhealthy {
				worst = StatusDegraded
			}
		case StatusHealthy:
			allUnknown = false
		}
	}
	if allUnknown {
		return StatusUnknown
	}
	return worst
}

// ReportAll returns a report per provider.
func (m *Monitor) ReportAll() map[string]Report {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]Report, len(m.providers))
	for name, p := range m.providers {
		r := Report{
			Status:           p.status(),
			TotalRequests:    p.requests,
			TotalSuccesses:   p.successes,
			TotalFailures:    p.failures,
			RateLimited:      p.rateLimited,
			Timeouts:         p.timeouts,
			RollingErrorRate: p.rollingErrorRate(),
		}
		if p.latencyCount > 0 {
			r.AvgLatencyMs = p.latencySum / float64(p.latencyCount)
		}
		if !p.lastSuccess.IsZero() {
			r.LastSuccess = p.lastSuccess.Unix()
		}
		if !p.lastFailure.IsZero() {
			r.LastFailure = p.lastFailure.Unix()
		}
		out[name] = r
	}
	return out
}

// Reset clears one provider's state; unknown providers are a no-op.
func (m *Monitor) Reset(provider string) {
	m.mu.Lock()
	delete(m.providers, provider)
	m.mu.Unlock()
}

// ResetAll clears every provider.
func (m *Monitor) ResetAll() {
	m.mu.Lock()
	m.providers = make(map[string]*providerState)
	m.mu.Unlock()
}
