package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix = "nexus:cache:"
	redisOpTimeout = 500 * time.Millisecond
)

// RedisStore is a Store backed by Redis, for deployments where several
// loader replicas share one cache. Entry JSON is stored under a per-provider
// key prefix with the TTL enforced by Redis itself. Every operation uses a
// short timeout and degrades gracefully when Redis is unavailable.
type RedisStore struct {
	rdb     *redis.Client
	ttlDays int
}

// NewRedisStoreFromClient wraps an already-connected client.
func NewRedisStoreFromClient(rdb *redis.Client, ttlDays int) *RedisStore {
	if ttlDays <= 0 {
		ttlDays = 7
	}
	return &RedisStore{rdb: rdb, ttlDays: ttlDays}
}

func (s *RedisStore) key(provider, key string) string {
	return redisKeyPrefix + provider + ":" + SanitizeKey(key)
}

func (s *RedisStore) Get(ctx context.Context, provider, key string) (any, bool) {
	opCtx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()

	raw, err := s.rdb.Get(opCtx, s.key(provider, key)).Bytes()
	if err != nil {
		return nil, false
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, false
	}
	if e.Expired(time.Now()) {
		return nil, false
	}
	return e.Data, true
}

// GetStale returns the entry even when it has outlived its TTL, as long as
// Redis still holds the key.
func (s *RedisStore) GetStale(ctx context.Context, provider, key string) (any, bool) {
	opCtx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()

	raw, err := s.rdb.Get(opCtx, s.key(provider, key)).Bytes()
	if err != nil {
		return nil, false
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, false
	}
	return e.Data, true
}

func (s *RedisStore) Set(ctx context.Context, provider, key string, data any) error {
	return s.SetTTL(ctx, provider, key, data, s.ttlDays)
}

// SetTTL stores data with a per-entry TTL; ttlDays <= 0 falls back to the
// store default.
func (s *RedisStore) SetTTL(ctx context.Context, provider, key string, data any, ttlDays int) error {
	if ttlDays <= 0 {
		ttlDays = s.ttlDays
	}
	e := Entry{
		Data:      data,
		Timestamp: time.Now().Unix(),
		TTLDays:   ttlDays,
		Provider:  provider,
		Key:       SanitizeKey(key),
	}
	raw, err := json.Marshal(&e)
	if err != nil {
		return nil
	}

	opCtx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()

	ttl := time.Duration(ttlDays) * 24 * time.Hour
	// Errors are swallowed — a dead Redis must not fail the fetch.
	s.rdb.Set(opCtx, s.key(provider, key), raw, ttl)
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, provider, key string) error {
	opCtx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()
	return s.rdb.Del(opCtx, s.key(provider, key)).Err()
}

func (s *RedisStore) Exists(ctx context.Context, provider, key string) bool {
	_, ok := s.Get(ctx, provider, key)
	return ok
}

func (s *RedisStore) ClearProvider(ctx context.Context, provider string) (int, error) {
	removed := 0
	iter := s.rdb.Scan(ctx, 0, redisKeyPrefix+provider+":*", 100).Iterator()
	for iter.Next(ctx) {
		if s.rdb.Del(ctx, iter.Val()).Err() == nil {
			removed++
		}
	}
	return removed, iter.Err()
}

// ClearExpired is a no-op for Redis — expiry is enforced server-side.
func (s *RedisStore) ClearExpired(context.Context, string) (int, error) {
	return 0, nil
}

func (s *RedisStore) Stats(ctx context.Context) (map[string]Stats, error) {
	out := make(map[string]Stats)
	now := time.Now()
	iter := s.rdb.Scan(ctx, 0, redisKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		raw, err := s.rdb.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			continue
		}
		var e Entry
		if err := json.Unmarshal(raw, &e); err != nil {
			continue
		}
		st := out[e.Provider]
		st.TotalEntries++
		st.TotalSizeBytes += int64(len(raw))
		if e.Expired(now) {
			st.ExpiredEntries++
		} else {
			st.ValidEntries++
		}
		out[e.Provider] = st
	}
	return out, iter.Err()
}
