package config

import (
	"strings"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("FMP_KEY", "test-key")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 8080 {
		t.Errorf("Port = %d", cfg.Port)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %s", cfg.LogLevel)
	}
	if cfg.OperatingMode != "LIVE" {
		t.Errorf("OperatingMode = %s", cfg.OperatingMode)
	}
	if cfg.Cache.Backend != "fs" || cfg.Cache.TTLDays != 7 || cfg.Cache.Dir != "cache" {
		t.Errorf("Cache = %+v", cfg.Cache)
	}
	if cfg.MaxRetries != 3 || cfg.RequestTimeoutSeconds != 30 {
		t.Errorf("retries/timeout = %d/%d", cfg.MaxRetries, cfg.RequestTimeoutSeconds)
	}
	if cfg.CircuitBreakerThreshold != 0.2 || cfg.CircuitBreakerTimeoutSeconds != 60 {
		t.Errorf("breaker = %g/%d", cfg.CircuitBreakerThreshold, cfg.CircuitBreakerTimeoutSeconds)
	}
}

func TestLoadRequiresKeyInLiveMode(t *testing.T) {
	_, err := Load()
	if err == nil {
		t.Fatal("LIVE mode without keys must fail")
	}
	if !strings.Contains(err.Error(), "FMP_KEY") {
		t.Errorf("error should name the key env vars: %v", err)
	}
}

func TestLoadReadOnlyNeedsNoKeys(t *testing.T) {
	t.Setenv("OPERATING_MODE", "read_only")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.OperatingMode != "READ_ONLY" {
		t.Errorf("OperatingMode = %s", cfg.OperatingMode)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := []struct {
		name  string
		env   map[string]string
		match string
	}{
		{"bad mode", map[string]string{"OPERATING_MODE": "offline"}, "OPERATING_MODE"},
		{"bad backend", map[string]string{"CACHE_BACKEND": "mongo"}, "CACHE_BACKEND"},
		{"redis without url", map[string]string{"CACHE_BACKEND": "redis"}, "REDIS_URL"},
		{"bad log level", map[string]string{"LOG_LEVEL": "verbose"}, "LOG_LEVEL"},
		{"zero ttl", map[string]string{"CACHE_TTL_DAYS": "0"}, "CACHE_TTL_DAYS"},
		{"bad threshold", map[string]string{"CIRCUIT_BREAKER_THRESHOLD": "1.5"}, "CIRCUIT_BREAKER_THRESHOLD"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("FMP_KEY", "k")
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tc.match) {
				t.Errorf("error %v should mention %s", err, tc.match)
			}
		})
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("POLYGON_KEY", "pk")
	t.Setenv("PORT", "9090")
	t.Setenv("CACHE_BACKEND", "memory")
	t.Setenv("CLICKHOUSE_DSN", "clickhouse://localhost:9000/nexus")
	t.Setenv("FRED_CONCURRENCY", "2")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 9090 {
		t.Errorf("Port = %d", cfg.Port)
	}
	if cfg.Cache.Backend != "memory" {
		t.Errorf("Backend = %s", cfg.Cache.Backend)
	}
	if cfg.ClickHouseDSN == "" {
		t.Error("ClickHouseDSN not picked up")
	}
	if cfg.Concurrency.FRED != 2 {
		t.Errorf("FRED concurrency = %d", cfg.Concurrency.FRED)
	}
	if !cfg.AtLeastOneProviderKey() {
		t.Error("AtLeastOneProviderKey should be true")
	}
}
