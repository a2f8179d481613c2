package cache

import (
	"context"
	"sync"
	"time"
)

const cleanupInterval = 5 * time.Minute

// MemoryStore is an in-process Store. Entries expire lazily on read and a
// background janitor sweeps the map every five minutes. Not shared across
// replicas — intended for single-process deployments and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]map[string]Entry // provider -> key -> entry
	ttlDays int

	done      chan struct{}
	closeOnce sync.Once
}

// NewMemoryStore starts the janitor goroutine, which stops when ctx is
// cancelled or Close is called.
func NewMemoryStore(ctx context.Context, ttlDays int) *MemoryStore {
	if ttlDays <= 0 {
		ttlDays = 7
	}
	s := &MemoryStore{
		entries: make(map[string]map[string]Entry),
		ttlDays: ttlDays,
		done:    make(chan struct{}),
	}
	go s.janitor(ctx)
	return s
}

func (s *MemoryStore) janitor(ctx context.Context) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.ClearExpired(ctx, "")
		case <-ctx.Done():
			return
		case <-s.done:
			return
		}
	}
}

// Close stops the janitor. Safe to call multiple times.
func (s *MemoryStore) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

func (s *MemoryStore) Get(_ context.Context, provider, key string) (any, bool) {
	s.mu.RLock()
	e, ok := s.entries[provider][SanitizeKey(key)]
	s.mu.RUnlock()
	if !ok || e.Expired(time.Now()) {
		return nil, false
	}
	return e.Data, true
}

// GetStale returns the entry even when it has outlived its TTL.
func (s *MemoryStore) GetStale(_ context.Context, provider, key string) (any, bool) {
	s.mu.RLock()
	e, ok := s.entries[provider][SanitizeKey(key)]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return e.Data, true
}

func (s *MemoryStore) Set(ctx context.Context, provider, key string, data any) error {
	return s.SetTTL(ctx, provider, key, data, s.ttlDays)
}

// SetTTL stores data with a per-entry TTL; ttlDays <= 0 falls back to the
// store default.
func (s *MemoryStore) SetTTL(_ context.Context, provider, key string, data any, ttlDays int) error {
	if ttlDays <= 0 {
		ttlDays = s.ttlDays
	}
	k := SanitizeKey(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entries[provider] == nil {
		s.entries[provider] = make(map[string]Entry)
	}
	s.entries[provider][k] = Entry{
		Data:      data,
		Timestamp: time.Now().Unix(),
		TTLDays:   ttlDays,
		Provider:  provider,
		Key:       k,
	}
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, provider, key string) error {
	s.mu.Lock()
	delete(s.entries[provider], SanitizeKey(key))
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Exists(ctx context.Context, provider, key string) bool {
	_, ok := s.Get(ctx, provider, key)
	return ok
}

func (s *MemoryStore) ClearProvider(_ context.Context, provider string) (int, error) {
	s.mu.Lock()
	n := len(s.entries[provider])
	delete(s.entries, provider)
	s.mu.Unlock()
	return n, nil
}

// ClearExpired removes expired entries for one provider, or for all when
// provider is empty.
func (s *MemoryStore) ClearExpired(_ context.Context, provider string) (int, error) {
	now := time.Now()
	removed := 0
	s.mu.Lock()
	for p, keys := range s.entries {
		if provider != "" && p != provider {
			continue
		}
		for k, e := range keys {
			if e.Expired(now) {
				delete(keys, k)
				removed++
			}
		}
	}
	s.mu.Unlock()
	return removed, nil
}

func (s *MemoryStore) Stats(_ context.Context) (map[string]Stats, error) {
	now := time.Now()
	out := make(map[string]Stats)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for provider, keys := range s.entries {
		var st Stats
		for _, e := range keys {
			st.TotalEntries++
			if e.Expired(now) {
				st.ExpiredEntries++
			} else {
				st.ValidEntries++
			}
		}
		out[provider] = st
	}
	return out, nil
}
