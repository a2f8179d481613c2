// Package config loads and validates all runtime configuration for the
// service.
//
// Configuration is read from environment variables (preferred for containers)
// or from a config.yaml file in the working directory. Environment variables
// take precedence over the YAML file.
//
// At least one data-provider key is required to start in LIVE mode; READ_ONLY
// mode serves the cache alone and needs no keys at all.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// Config is the top-level configuration container.
type Config struct {
	// Port is the TCP port the HTTP server listens on. Default: 8080.
	Port int

	// LogLevel controls the minimum log level. One of: debug, info, warn, error.
	// Default: info.
	LogLevel string

	// LogFile enables rotated file logging when non-empty; stdout otherwise.
	LogFile string

	// OperatingMode is LIVE (cache then API) or READ_ONLY (cache only).
	// Default: LIVE.
	OperatingMode string

	// Provider API keys — at least one must be non-empty in LIVE mode.
	FMPKey     string
	PolygonKey string
	FREDKey    string

	// RequestTimeoutSeconds is the per-request HTTP timeout. Default: 30.
	RequestTimeoutSeconds int

	// MaxRetries is the retry budget after the first attempt. Default: 3.
	MaxRetries int

	// CircuitBreakerThreshold is the window error rate that opens a breaker,
	// in (0, 1]. Default: 0.2.
	CircuitBreakerThreshold float64

	// CircuitBreakerTimeoutSeconds is the open → half-open recovery timeout.
	// Default: 60.
	CircuitBreakerTimeoutSeconds int

	// Cache controls caching behaviour.
	Cache CacheConfig

	// Redis holds the connection URL for the Redis-backed cache.
	// Required only when Cache.Backend is "redis".
	Redis RedisConfig

	// Concurrency overrides the per-provider QoS limits; 0 keeps the default.
	Concurrency ConcurrencyConfig

	// ClickHouseDSN enables the fetch-audit analytics sink when non-empty.
	ClickHouseDSN string

	// CORSOrigins is the list of allowed CORS origins.
	// Use ["*"] to allow any origin (default). Set to specific origins in prod.
	CORSOrigins []string
}

// CacheConfig controls the response cache.
type CacheConfig struct {
	// Backend selects the cache backend:
	//   "fs"     — one JSON file per entry under Dir. The default.
	//   "memory" — in-process cache; not shared across replicas.
	//   "redis"  — Redis-backed cache (requires REDIS_URL).
	//   "none"   — cache disabled entirely.
	Backend string

	// Dir is the filesystem cache base directory. Default: "cache".
	Dir string

	// TTLDays is the entry time-to-live in days. Default: 7.
	TTLDays int

	// ExcludeExact lists endpoint names that must never be cached.
	ExcludeExact []string

	// ExcludePatterns lists Go regular expressions matched against endpoint
	// names; matching endpoints are not cached.
	ExcludePatterns []string
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	// URL is a redis:// or rediss:// URL. Example: redis://localhost:6379
	URL string
}

// ConcurrencyConfig holds per-provider concurrency limit overrides.
type ConcurrencyConfig struct {
	FMP     int
	Polygon int
	FRED    int
}

// Load reads configuration from environment variables and (optionally) from
// config.yaml in the current working directory.
func Load() (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	_ = v.ReadInConfig()

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// ── Defaults ──────────────────────────────────────────────────────────────
	v.SetDefault("PORT", 8080)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("OPERATING_MODE", "LIVE")
	v.SetDefault("REQUEST_TIMEOUT", 30)
	v.SetDefault("MAX_RETRIES", 3)
	v.SetDefault("CIRCUIT_BREAKER_THRESHOLD", 0.2)
	v.SetDefault("CIRCUIT_BREAKER_TIMEOUT", 60)
	v.SetDefault("CACHE_BACKEND", "fs")
	v.SetDefault("CACHE_DIR", "cache")
	v.SetDefault("CACHE_TTL_DAYS", 7)
	v.SetDefault("CORS_ORIGINS", []string{"*"})

	// ── Build config ──────────────────────────────────────────────────────────
	cfg := &Config{
		Port:     v.GetInt("PORT"),
		LogLevel: strings.ToLower(v.GetString("LOG_LEVEL")),
		LogFile:  v.GetString("LOG_FILE"),

		OperatingMode: strings.ToUpper(v.GetString("OPERATING_MODE")),

		FMPKey:     v.GetString("FMP_KEY"),
		PolygonKey: v.GetString("POLYGON_KEY"),
		FREDKey:    v.GetString("FRED_KEY"),

		RequestTimeoutSeconds:        v.GetInt("REQUEST_TIMEOUT"),
		MaxRetries:                   v.GetInt("MAX_RETRIES"),
		CircuitBreakerThreshold:      v.GetFloat64("CIRCUIT_BREAKER_THRESHOLD"),
		CircuitBreakerTimeoutSeconds: v.GetInt("CIRCUIT_BREAKER_TIMEOUT"),

		Cache: CacheConfig{
			Backend:         strings.ToLower(v.GetString("CACHE_BACKEND")),
			Dir:             v.GetString("CACHE_DIR"),
			TTLDays:         v.GetInt("CACHE_TTL_DAYS"),
			ExcludeExact:    v.GetStringSlice("CACHE_EXCLUDE_EXACT"),
			ExcludePatterns: v.GetStringSlice("CACHE_EXCLUDE_PATTERNS"),
		},

		Redis: RedisConfig{URL: v.GetString("REDIS_URL")},

		Concurrency: ConcurrencyConfig{
			FMP:     v.GetInt("FMP_CONCURRENCY"),
			Polygon: v.GetInt("POLYGON_CONCURRENCY"),
			FRED:    v.GetInt("FRED_CONCURRENCY"),
		},

		ClickHouseDSN: v.GetString("CLICKHOUSE_DSN"),

		CORSOrigins: v.GetStringSlice("CORS_ORIGINS"),
	}

	// ── Validation ────────────────────────────────────────────────────────────
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate checks all semantic constraints that cannot be expressed as defaults.
func (c *Config) validate() error {
	switch c.OperatingMode {
	case "LIVE", "READ_ONLY":
	default:
		return fmt.Errorf(
			"config: invalid OPERATING_MODE %q; must be LIVE or READ_ONLY",
			c.OperatingMode,
		)
	}

	// Keys gate live fetching only; a read-only deployment serves the cache.
	if c.OperatingMode == "LIVE" && !c.AtLeastOneProviderKey() {
		return fmt.Errorf(
			"config: at least one provider API key is required in LIVE mode " +
				"(FMP_KEY, POLYGON_KEY, or FRED_KEY). " +
				"Set OPERATING_MODE=READ_ONLY to serve the cache without keys.",
		)
	}

	switch c.Cache.Backend {
	case "fs", "memory", "redis", "none":
	default:
		return fmt.Errorf(
			"config: invalid CACHE_BACKEND %q; must be one of: fs, memory, redis, none",
			c.Cache.Backend,
		)
	}

	if c.Cache.Backend == "redis" && c.Redis.URL == "" {
		return fmt.Errorf(
			"config: REDIS_URL is required when CACHE_BACKEND=redis; " +
				"set CACHE_BACKEND=fs to use the filesystem cache",
		)
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf(
			"config: invalid LOG_LEVEL %q; must be one of: debug, info, warn, error",
			c.LogLevel,
		)
	}

	if c.Cache.TTLDays < 1 {
		return fmt.Errorf("config: CACHE_TTL_DAYS must be ≥ 1, got %d", c.Cache.TTLDays)
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("config: MAX_RETRIES must be ≥ 1, got %d", c.MaxRetries)
	}
	if c.RequestTimeoutSeconds < 1 {
		return fmt.Errorf("config: REQUEST_TIMEOUT must be ≥ 1, got %d", c.RequestTimeoutSeconds)
	}
	if c.CircuitBreakerThreshold <= 0 || c.CircuitBreakerThreshold > 1 {
		return fmt.Errorf(
			"config: CIRCUIT_BREAKER_THRESHOLD must be in (0, 1], got %g",
			c.CircuitBreakerThreshold,
		)
	}
	if c.CircuitBreakerTimeoutSeconds < 1 {
		return fmt.Errorf("config: CIRCUIT_BREAKER_TIMEOUT must be ≥ 1, got %d", c.CircuitBreakerTimeoutSeconds)
	}

	return nil
}

// AtLeastOneProviderKey returns true if at least one provider is configured.
func (c *Config) AtLeastOneProviderKey() bool {
	return c.FMPKey != "" || c.PolygonKey != "" || c.FREDKey != ""
}

// loadDotEnv populates process env vars from a .env file when present.
func loadDotEnv(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("config: %s is a directory, expected a file", path)
	}
	if err := gotenv.Load(path); err != nil {
		return fmt.Errorf("config: failed to load %s: %w", path, err)
	}
	return nil
}
