// Package breaker implements a per-provider three-state circuit breaker.
//
// Decisions are made over a rolling window of the most recent outcomes
// rather than a fixed time bucket: the breaker opens when the window holds
// enough samples and the error rate crosses the threshold, moves to
// half-open lazily after the recovery timeout, and closes again after a run
// of successful probes.
package breaker

import (
	"fmt"
	"sync"
	"time"
)

// State is a circuit breaker state.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Config holds breaker tuning. Zero values fall back to defaults.
type Config struct {
	ErrorThreshold      float64       // open when window error rate ≥ this (default 0.20)
	RecoveryTimeout     time.Duration // open → half-open after this (default 60s)
	MinRequests         int           // window samples required before evaluating (default 10)
	HalfOpenMaxRequests int           // probe budget in half-open (default 3)
	WindowSize          int           // rolling window length (default 100)
}

func (c Config) withDefaults() Config {
	if c.ErrorThreshold <= 0 {
		c.ErrorThreshold = 0.20
	}
	if c.RecoveryTimeout <= 0 {
		c.RecoveryTimeout = 60 * time.Second
	}
	if c.MinRequests <= 0 {
		c.MinRequests = 10
	}
	if c.HalfOpenMaxRequests <= 0 {
		c.HalfOpenMaxRequests = 3
	}
	if c.WindowSize <= 0 {
		c.WindowSize = 100
	}
	return c
}

// OpenError is returned (by callers of Allow) when a request is rejected.
type OpenError struct {
	Provider string
	State    State
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("circuit breaker for %s is %s", e.Provider, e.State)
}

// Stats is a snapshot of one breaker.
type Stats struct {
	State          string  `json:"state"`
	TotalRequests  int64   `json:"total_requests"`
	TotalFailures  int64   `json:"total_failures"`
	WindowSize     int     `json:"window_size"`
	WindowFailures int     `json:"window_failures"`
	ErrorRate      float64 `json:"error_rate"`
	RejectedCount  int64   `json:"rejected_count"`
	OpenedAt       int64   `json:"opened_at,omitempty"`
}

// Breaker guards one provider.
type Breaker struct {
	mu   sync.Mutex
	cfg  Config
	name string

	state    State
	window   []bool // true = failure, bounded ring of cfg.WindowSize
	openedAt time.Time

	halfOpenAdmitted  int
	consecutiveProbes int

	totalRequests int64
	totalFailures int64
	rejected      int64
}

func newBreaker(name string, cfg Config) *Breaker {
	return &Breaker{name: name, cfg: cfg.withDefaults(), state: Closed}
}

// Execute runs fn under the breaker. A rejected call returns an *OpenError
// without invoking fn; otherwise fn's outcome is recorded.
func (b *Breaker) Execute(fn func() (any, error)) (any, error) {
	if !b.Allow() {
		return nil, &OpenError{Provider: b.name, State: b.State()}
	}
	result, err := fn()
	if err != nil {
		b.RecordFailure()
		return nil, err
	}
	b.RecordSuccess()
	return result, nil
}

// Allow reports whether a request may proceed, performing the lazy
// open → half-open transition when the recovery timeout has elapsed.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.transitionLocked(time.Now())

	switch b.state {
	case Closed:
		return true
	case HalfOpen:
		if b.halfOpenAdmitted < b.cfg.HalfOpenMaxRequests {
			b.halfOpenAdmitted++
			return true
		}
		b.rejected++
		return false
	default: // Open
		b.rejected++
		return false
	}
}

// transitionLocked applies the lazy open → half-open move.
func (b *Breaker) transitionLocked(now time.Time) {
	if b.state == Open && now.Sub(b.openedAt) >= b.cfg.RecoveryTimeout {
		b.state = HalfOpen
		b.halfOpenAdmitted = 0
		b.consecutiveProbes = 0
	}
}

// RecordSuccess records a successful request.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.totalRequests++
	b.push(false)

	if b.state == HalfOpen {
		b.consecutiveProbes++
		if b.consecutiveProbes >= b.cfg.HalfOpenMaxRequests {
			b.state = Closed
			b.window = b.window[:0]
			b.halfOpenAdmitted = 0
			b.consecutiveProbes = 0
		}
	}
}

// RecordFailure records a failed request and opens the breaker when the
// window error rate crosses the threshold (or immediately in half-open).
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.totalRequests++
	b.totalFailures++
	b.push(true)

	switch b.state {
	case HalfOpen:
		b.open(time.Now())
	case Closed:
		if len(b.window) >= b.cfg.MinRequests && b.errorRateLocked() >= b.cfg.ErrorThreshold {
			b.open(time.Now())
		}
	}
}

func (b *Breaker) open(now time.Time) {
	b.state = Open
	b.openedAt = now
	b.halfOpenAdmitted = 0
	b.consecutiveProbes = 0
}

func (b *Breaker) push(failure bool) {
	if len(b.window) == b.cfg.WindowSize {
		copy(b.window, b.window[1:])
		b.window = b.window[:len(b.window)-1]
	}
	b.window = append(b.window, failure)
}

func (b *Breaker) errorRateLocked() float64 {
	if len(b.window) == 0 {
		return 0
	}
	failures := 0
	for _, f := range b.window {
		if f {
			failures++
		}
	}
	return float64(failures) / float64(len(b.window))
}

// State returns the current state, applying the lazy transition first.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transitionLocked(time.Now())
	return b.state
}

// Reset returns the breaker to closed with an empty window.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = Closed
	b.window = b.window[:0]
	b.halfOpenAdmitted = 0
	b.consecutiveProbes = 0
}

// Stats returns a consistent snapshot.
func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transitionLocked(time.Now())

	failures := 0
	for _, f := range b.window {
		if f {
			failures++
		}
	}
	st := Stats{
		State:          b.state.String(),
		TotalRequests:  b.totalRequests,
		TotalFailures:  b.totalFailures,
		WindowSize:     len(b.window),
		WindowFailures: failures,
		ErrorRate:      b.errorRateLocked(),
		RejectedCount:  b.rejected,
	}
	if b.state != Closed {
		st.OpenedAt = b.openedAt.Unix()
	}
	return st
}

// Manager owns one breaker per provider, created lazily.
type Manager struct {
	mu       sync.RWMutex
	cfg      Config
	breakers map[string]*Breaker
}

func NewManager(cfg Config) *Manager {
	return &Manager{
		cfg:      cfg.withDefaults(),
		breakers: make(map[string]*Breaker),
	}
}

// For returns the breaker for provider, creating it on first use.
func (m *Manager) For(provider string) *Breaker {
	m.mu.RLock()
	b, ok := m.breakers[provider]
	m.mu.RUnlock()
	if ok {
		return b
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.breakers[provider]; ok {
		return b
	}
	b = newBreaker(provider, m.cfg)
	m.breakers[provider] = b
	return b
}

// Reset resets one provider's breaker; it is a no-op for unknown providers.
func (m *Manager) Reset(provider string) {
	m.mu.RLock()
	b, ok := m.breakers[provider]
	m.mu.RUnlock()
	if ok {
		b.Reset()
	}
}

// ResetAll resets every breaker.
func (m *Manager) ResetAll() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, b := range m.breakers {
		b.Reset()
	}
}

// StatsSnapshot returns stats for every breaker created so far.
func (m *Manager) StatsSnapshot() map[string]Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]Stats, len(m.breakers))
	for p, b := range m.breakers {
		out[p] = b.Stats()
	}
	return out
}
