// Package providers defines the data-provider adapter interface and the
// helpers shared by the fmp, polygon and fred adapters.
package providers

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// Provider adapts one upstream data API. Fetch performs a single upstream
// call (no caching, no retries — the loader owns those) and returns the
// normalized payload. CacheKey must be deterministic and must never include
// the provider credential.
type Provider interface {
	Name() string
	Endpoints() []string
	ValidateEndpoint(endpoint string) bool
	Fetch(ctx context.Context, endpoint string, params map[string]string) (any, error)
	CacheKey(endpoint string, params map[string]string) string
}

// Result is the standardized outcome of a loader fetch.
type Result struct {
	Success   bool    `json:"success"`
	Data      any     `json:"data"`
	Provider  string  `json:"provider"`
	Endpoint  string  `json:"endpoint"`
	FromCache bool    `json:"from_cache"`
	LatencyMs float64 `json:"latency_ms"`
	Error     string  `json:"error,omitempty"`
}

const maxKeyLen = 200

// BuildCacheKey joins sorted non-empty params as "k=v" with underscores
// under the endpoint prefix. exclude names the credential parameter, which
// never enters the key. Keys beyond 200 characters collapse to
// "<prefix>_<hash16>".
func BuildCacheKey(prefix, exclude string, params map[string]string) string {
	names := make([]string, 0, len(params))
	for k, v := range params {
		if k == exclude || v == "" {
			continue
		}
		names = append(names, k)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, k := range names {
		parts = append(parts, k+"="+params[k])
	}

	key := prefix
	if len(parts) > 0 {
		key = prefix + "_" + strings.Join(parts, "_")
	}

	if len(key) > maxKeyLen {
		sum := md5.Sum([]byte(key))
		key = prefix + "_" + hex.EncodeToString(sum[:])[:16]
	}
	return key
}

// SubstitutePath replaces {param} placeholders in a path template with the
// matching parameter values and reports which parameters were consumed.
func SubstitutePath(path string, params map[string]string) (string, map[string]bool) {
	used := make(map[string]bool)
	for k, v := range params {
		placeholder := "{" + k + "}"
		if strings.Contains(path, placeholder) {
			path = strings.ReplaceAll(path, placeholder, v)
			used[k] = true
		}
	}
	return path, used
}

// UnknownEndpointError is returned for endpoints a provider does not serve.
type UnknownEndpointError struct {
	Endpoint string
}

func (e *UnknownEndpointError) Error() string {
	return fmt.Sprintf("Unknown endpoint: %s", e.Endpoint)
}

// HTTPStatus marks the error non-retryable and maps it for the HTTP facade.
func (e *UnknownEndpointError) HTTPStatus() int { return 404 }

// MissingParamError is returned when a required parameter is absent.
type MissingParamError struct {
	Endpoint string
	Param    string
}

func (e *MissingParamError) Error() string {
	return fmt.Sprintf("Endpoint '%s' requires parameter: %s", e.Endpoint, e.Param)
}

// HTTPStatus marks the error non-retryable and maps it for the HTTP facade.
func (e *MissingParamError) HTTPStatus() int { return 400 }
