// Package qos enforces per-provider concurrency limits.
//
// Free data-API tiers tolerate very different levels of parallelism, so each
// provider gets its own weighted semaphore. Acquire blocks until a slot is
// free or the context is cancelled.
package qos

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Default per-provider limits. Providers not listed here get DefaultLimit.
var DefaultLimits = map[string]int{
	"fmp":     3,
	"polygon": 10,
	"fred":    1,
}

const DefaultLimit = 5

// Stats is a snapshot of one provider's gate.
type Stats struct {
	Limit             int   `json:"limit"`
	TotalRequests     int64 `json:"total_requests"`
	Active            int   `json:"active"`
	Queued            int   `json:"queued"`
	MaxConcurrentSeen int   `json:"max_concurrent_seen"`
}

type gate struct {
	sem   *semaphore.Weighted
	limit int

	total   int64
	active  int
	queued  int
	maxSeen int
}

// Router hands out concurrency slots per provider. Gates are created lazily
// on first use with the configured (or default) limit.
type Router struct {
	mu     sync.Mutex
	gates  map[string]*gate
	limits map[string]int
}

// New builds a Router. limits overrides DefaultLimits per provider; pass nil
// to use the defaults as-is.
func New(limits map[string]int) *Router {
	merged := make(map[string]int, len(DefaultLimits)+len(limits))
	for p, l := range DefaultLimits {
		merged[p] = l
	}
	for p, l := range limits {
		if l > 0 {
			merged[p] = l
		}
	}
	return &Router{
		gates:  make(map[string]*gate),
		limits: merged,
	}
}

func (r *Router) gateFor(provider string) *gate {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.gates[provider]
	if !ok {
		limit, ok := r.limits[provider]
		if !ok {
			limit = DefaultLimit
		}
		g = &gate{sem: semaphore.NewWeighted(int64(limit)), limit: limit}
		r.gates[provider] = g
	}
	return g
}

// Acquire blocks until a slot for provider is available or ctx is done.
// The returned release function must be called exactly once; it is bound to
// the semaphore the slot was taken from, so a concurrent SetLimit cannot
// strand or double-free slots.
func (r *Router) Acquire(ctx context.Context, provider string) (release func(), err error) {
	g := r.gateFor(provider)

	r.mu.Lock()
	g.queued++
	sem := g.sem
	r.mu.Unlock()

	if err := sem.Acquire(ctx, 1); err != nil {
		r.mu.Lock()
		g.queued--
		r.mu.Unlock()
		return nil, err
	}

	r.mu.Lock()
	g.queued--
	g.total++
	g.active++
	if g.active > g.maxSeen {
		g.maxSeen = g.active
	}
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			g.active--
			r.mu.Unlock()
			sem.Release(1)
		})
	}, nil
}

// SetLimit replaces a provider's semaphore with one of the new size. Slots
// already held drain against the old semaphore; new acquisitions use the new
// one immediately.
func (r *Router) SetLimit(provider string, limit int) {
	if limit <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.limits[provider] = limit
	if g, ok := r.gates[provider]; ok {
		g.sem = semaphore.NewWeighted(int64(limit))
		g.limit = limit
	}
}

// AvailableSlots reports how many slots are currently free for a provider.
func (r *Router) AvailableSlots(provider string) int {
	g := r.gateFor(provider)
	r.mu.Lock()
	defer r.mu.Unlock()
	free := g.limit - g.active
	if free < 0 {
		free = 0
	}
	return free
}

// Limit returns the configured limit for a provider.
func (r *Router) Limit(provider string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.limits[provider]; ok {
		return l
	}
	return DefaultLimit
}

// StatsSnapshot returns per-provider gate stats for every gate touched so far.
func (r *Router) StatsSnapshot() map[string]Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]Stats, len(r.gates))
	for p, g := range r.gates {
		out[p] = Stats{
			Limit:             g.limit,
			TotalRequests:     g.total,
			Active:            g.active,
			Queued:            g.queued,
			MaxConcurrentSeen: g.maxSeen,
		}
	}
	return out
}
