package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FSStore is the filesystem cache backend. Each entry is one JSON file at
// <base>/<provider>_cache/<key>.json. Writes go to a temp file in the same
// directory followed by an atomic rename, so readers never observe a partial
// file. Unreadable or corrupt files are treated as misses.
type FSStore struct {
	base    string
	ttlDays int
	enabled bool
	log     *slog.Logger
}

// FSOptions configures an FSStore. Zero values fall back to defaults.
type FSOptions struct {
	TTLDays  int  // default 7
	Disabled bool // when set, every operation is a no-op
	Logger   *slog.Logger
}

// NewFSStore creates the base directory if needed and returns the store.
func NewFSStore(base string, opts FSOptions) (*FSStore, error) {
	if opts.TTLDays <= 0 {
		opts.TTLDays = 7
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if !opts.Disabled {
		if err := os.MkdirAll(base, 0o755); err != nil {
			return nil, err
		}
	}
	return &FSStore{
		base:    base,
		ttlDays: opts.TTLDays,
		enabled: !opts.Disabled,
		log:     opts.Logger,
	}, nil
}

func (s *FSStore) providerDir(provider string) string {
	return filepath.Join(s.base, provider+"_cache")
}

func (s *FSStore) entryPath(provider, key string) string {
	return filepath.Join(s.providerDir(provider), SanitizeKey(key)+".json")
}

// renameFile is swapped in tests to fail the final step of a write.
var renameFile = os.Rename

func (s *FSStore) read(provider, key string) (*Entry, bool) {
	if !s.enabled {
		return nil, false
	}
	raw, err := os.ReadFile(s.entryPath(provider, key))
	if err != nil {
		return nil, false
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		s.log.Warn("cache entry corrupt",
			slog.String("provider", provider),
			slog.String("key", SanitizeKey(key)),
		)
		return nil, false
	}
	return &e, true
}

func (s *FSStore) Get(_ context.Context, provider, key string) (any, bool) {
	e, ok := s.read(provider, key)
	if !ok || e.Expired(time.Now()) {
		return nil, false
	}
	return e.Data, true
}

// GetStale returns the entry even when it has outlived its TTL.
func (s *FSStore) GetStale(_ context.Context, provider, key string) (any, bool) {
	e, ok := s.read(provider, key)
	if !ok {
		return nil, false
	}
	return e.Data, true
}

func (s *FSStore) Set(ctx context.Context, provider, key string, data any) error {
	return s.SetTTL(ctx, provider, key, data, s.ttlDays)
}

// SetTTL stores data with a per-entry TTL; ttlDays <= 0 falls back to the
// store default.
func (s *FSStore) SetTTL(_ context.Context, provider, key string, data any, ttlDays int) error {
	if !s.enabled {
		return nil
	}
	if ttlDays <= 0 {
		ttlDays = s.ttlDays
	}
	dir := s.providerDir(provider)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		s.log.Warn("cache dir create failed", slog.String("error", err.Error()))
		return nil
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
		s.log.Warn("cache marshal failed", slog.String("error", err.Error()))
		return nil
	}

	// Temp file in the same directory so the rename stays on one filesystem.
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		s.log.Warn("cache temp create failed", slog.String("error", err.Error()))
		return nil
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		s.log.Warn("cache write failed", slog.String("error", err.Error()))
		return nil
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return nil
	}
	if err := renameFile(tmpName, s.entryPath(provider, key)); err != nil {
		os.Remove(tmpName)
		s.log.Warn("cache rename failed", slog.String("error", err.Error()))
	}
	return nil
}

func (s *FSStore) Delete(_ context.Context, provider, key string) error {
	if !s.enabled {
		return nil
	}
	err := os.Remove(s.entryPath(provider, key))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (s *FSStore) Exists(ctx context.Context, provider, key string) bool {
	_, ok := s.Get(ctx, provider, key)
	return ok
}

func (s *FSStore) ClearProvider(_ context.Context, provider string) (int, error) {
	if !s.enabled {
		return 0, nil
	}
	files, err := filepath.Glob(filepath.Join(s.providerDir(provider), "*.json"))
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, f := range files {
		if os.Remove(f) == nil {
			removed++
		}
	}
	return removed, nil
}

// ClearExpired removes expired entries for one provider, or for all when
// provider is empty. Files that fail to parse are removed too.
func (s *FSStore) ClearExpired(_ context.Context, provider string) (int, error) {
	if !s.enabled {
		return 0, nil
	}
	dirs := s.providerDirs()
	if provider != "" {
		dirs = []string{s.providerDir(provider)}
	}
	removed := 0
	now := time.Now()
	for _, dir := range dirs {
		files, err := filepath.Glob(filepath.Join(dir, "*.json"))
		if err != nil {
			continue
		}
		for _, f := range files {
			raw, err := os.ReadFile(f)
			if err != nil {
				continue
			}
			var e Entry
			if err := json.Unmarshal(raw, &e); err != nil || e.Expired(now) {
				if os.Remove(f) == nil {
					removed++
				}
			}
		}
	}
	return removed, nil
}

func (s *FSStore) Stats(_ context.Context) (map[string]Stats, error) {
	out := make(map[string]Stats)
	if !s.enabled {
		return out, nil
	}
	now := time.Now()
	for _, dir := range s.providerDirs() {
		provider := strings.TrimSuffix(filepath.Base(dir), "_cache")
		var st Stats
		files, err := filepath.Glob(filepath.Join(dir, "*.json"))
		if err != nil {
			continue
		}
		for _, f := range files {
			fi, err := os.Stat(f)
			if err != nil {
				continue
			}
			st.TotalEntries++
			st.TotalSizeBytes += fi.Size()

			raw, err := os.ReadFile(f)
			if err != nil {
				st.ExpiredEntries++
				continue
			}
			var e Entry
			if err := json.Unmarshal(raw, &e); err != nil || e.Expired(now) {
				st.ExpiredEntries++
				continue
			}
			st.ValidEntries++
		}
		out[provider] = st
	}
	return out, nil
}

func (s *FSStore) providerDirs() []string {
	entries, err := os.ReadDir(s.base)
	if err != nil {
		return nil
	}
	var dirs []string
	for _, e := range entries {
		if e.IsDir() && strings.HasSuffix(e.Name(), "_cache") {
			dirs = append(dirs, filepath.Join(s.base, e.Name()))
		}
	}
	return dirs
}
