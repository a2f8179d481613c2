// Package cache provides the response cache used by the loader.
//
// Three backends implement Store: a filesystem cache (the default, one JSON
// file per entry), an in-process memory cache, and a Redis cache for
// deployments that share a cache across replicas. All backends degrade
// gracefully: a failing Get is a miss and a failing Set is ignored, so cache
// trouble never fails a fetch.
package cache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"strings"
	"time"
)

// Entry is the stored form of a cached response. The field set is the
// on-disk contract of the filesystem backend and is reused verbatim by the
// other backends.
type Entry struct {
	Data      any    `json:"data"`
	Timestamp int64  `json:"timestamp"`
	TTLDays   int    `json:"ttl_days"`
	Provider  string `json:"provider"`
	Key       string `json:"key"`
}

// Expired reports whether the entry has outlived its TTL at the given time.
func (e *Entry) Expired(now time.Time) bool {
	return now.Unix() > e.Timestamp+int64(e.TTLDays)*86400
}

// Stats summarises one provider's cache population.
type Stats struct {
	TotalEntries   int   `json:"total_entries"`
	ExpiredEntries int   `json:"expired_entries"`
	ValidEntries   int   `json:"valid_entries"`
	TotalSizeBytes int64 `json:"total_size_bytes"`
}

// Store is the cache backend interface.
//
// Get returns (data, true) only for a present, unexpired entry; GetStale
// also serves entries past their TTL, for callers that prefer stale data
// over none. Set stores data under the backend's configured TTL and SetTTL
// under a per-entry override. ClearProvider removes every entry for a
// provider and returns the count; ClearExpired removes expired and
// unreadable entries, for one provider or (with an empty provider) all.
type Store interface {
	Get(ctx context.Context, provider, key string) (any, bool)
	GetStale(ctx context.Context, provider, key string) (any, bool)
	Set(ctx context.Context, provider, key string, data any) error
	SetTTL(ctx context.Context, provider, key string, data any, ttlDays int) error
	Delete(ctx context.Context, provider, key string) error
	Exists(ctx context.Context, provider, key string) bool
	ClearProvider(ctx context.Context, provider string) (int, error)
	ClearExpired(ctx context.Context, provider string) (int, error)
	Stats(ctx context.Context) (map[string]Stats, error)
}

const maxKeyLen = 200

// Unsafe characters are replaced with '_' so keys are valid filenames on
// every platform.
var keyReplacer = strings.NewReplacer(
	"/", "_", "\\", "_", ":", "_", "*", "_", "?", "_",
	`"`, "_", "<", "_", ">", "_", "|", "_", " ", "_",
)

// SanitizeKey makes a cache key filesystem-safe and bounds its length.
// Keys longer than 200 characters collapse to "<head>_<hash16>".
func SanitizeKey(key string) string {
	key = keyReplacer.Replace(key)
	if len(key) > maxKeyLen {
		sum := md5.Sum([]byte(key))
		key = key[:50] + "_" + hex.EncodeToString(sum[:])[:16]
	}
	return key
}
