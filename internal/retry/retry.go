// Package retry drives upstream attempts with exponential backoff and
// jitter. Client errors that cannot succeed on a second try (400, 401, 403,
// 404) fail immediately; everything else is retried up to the configured
// budget.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"
)

// StatusCoder matches errors that carry an HTTP status code.
type StatusCoder interface {
	HTTPStatus() int
}

// Config holds retry tuning. Zero values fall back to defaults.
type Config struct {
	MaxRetries      int     // retries after the first attempt (default 3; negative disables retries)
	BaseDelay       float64 // seconds (default 1.0)
	MaxDelay        float64 // seconds (default 60.0)
	ExponentialBase float64 // backoff multiplier (default 2.0)
	JitterFactor    float64 // ±fraction of the delay (default 0.5)
	DisableJitter   bool    // deterministic backoff, no random spread

	// RetryIf, when set, is an allow-list: only errors it accepts are
	// considered for another attempt. The non-retryable status codes still
	// apply on top of it.
	RetryIf func(error) bool

	// NonRetryableStatus lists HTTP status codes that fail immediately.
	// nil means the default set {400, 401, 403, 404}.
	NonRetryableStatus []int
}

func (c Config) withDefaults() Config {
	switch {
	case c.MaxRetries == 0:
		c.MaxRetries = 3
	case c.MaxRetries < 0:
		c.MaxRetries = 0
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 1.0
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 60.0
	}
	if c.ExponentialBase <= 0 {
		c.ExponentialBase = 2.0
	}
	if c.JitterFactor <= 0 {
		c.JitterFactor = 0.5
	}
	if c.NonRetryableStatus == nil {
		c.NonRetryableStatus = []int{400, 401, 403, 404}
	}
	return c
}

// Stats accumulates across Execute calls.
type Stats struct {
	TotalAttempts      int64   `json:"total_attempts"`
	SuccessfulAttempts int64   `json:"successful_attempts"`
	FailedAttempts     int64   `json:"failed_attempts"`
	RetriesPerformed   int64   `json:"retries_performed"`
	TotalDelaySeconds  float64 `json:"total_delay_seconds"`
}

// ExhaustedError is returned when every attempt failed.
type ExhaustedError struct {
	Message  string
	LastErr  error
	Attempts int
}

func (e *ExhaustedError) Error() string { return e.Message }
func (e *ExhaustedError) Unwrap() error { return e.LastErr }

// Driver executes functions under the retry policy. Safe for concurrent use.
type Driver struct {
	cfg Config

	mu    sync.Mutex
	stats Stats
}

func New(cfg Config) *Driver {
	return &Driver{cfg: cfg.withDefaults()}
}

// Delay computes the backoff before retry number attempt (0-based):
// min(maxDelay, base * expBase^attempt), then ±jitterFactor with a 0.1s
// floor unless jitter is disabled.
func (d *Driver) Delay(attempt int) time.Duration {
	delay := d.cfg.BaseDelay * math.Pow(d.cfg.ExponentialBase, float64(attempt))
	delay = math.Min(delay, d.cfg.MaxDelay)

	if !d.cfg.DisableJitter {
		jitterRange := delay * d.cfg.JitterFactor
		delay += (rand.Float64()*2 - 1) * jitterRange
		delay = math.Max(0.1, delay)
	}

	return time.Duration(delay * float64(time.Second))
}

// Retryable reports whether an error is worth another attempt. Context
// cancellation, errors outside the RetryIf allow-list, and the configured
// non-retryable status codes are not.
func (d *Driver) Retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if d.cfg.RetryIf != nil && !d.cfg.RetryIf(err) {
		return false
	}
	var sc StatusCoder
	if errors.As(err, &sc) {
		code := sc.HTTPStatus()
		for _, nc := range d.cfg.NonRetryableStatus {
			if code == nc {
				return false
			}
		}
	}
	return true
}

// Execute runs fn until it succeeds, fails non-retryably, or the budget is
// spent. Backoff waits respect ctx. On exhaustion the returned error is an
// *ExhaustedError wrapping the last attempt's error.
func (d *Driver) Execute(ctx context.Context, fn func(ctx context.Context) (any, error)) (any, error) {
	var lastErr error

	for attempt := 0; attempt <= d.cfg.MaxRetries; attempt++ {
		d.mu.Lock()
		d.stats.TotalAttempts++
		d.mu.Unlock()

		result, err := fn(ctx)
		if err == nil {
			d.mu.Lock()
			d.stats.SuccessfulAttempts++
			d.mu.Unlock()
			return result, nil
		}
		lastErr = err

		if !d.Retryable(err) {
			d.mu.Lock()
			d.stats.FailedAttempts++
			d.mu.Unlock()
			return nil, err
		}

		if attempt < d.cfg.MaxRetries {
			delay := d.Delay(attempt)
			d.mu.Lock()
			d.stats.RetriesPerformed++
			d.stats.TotalDelaySeconds += delay.Seconds()
			d.mu.Unlock()

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				d.mu.Lock()
				d.stats.FailedAttempts++
				d.mu.Unlock()
				return nil, ctx.Err()
			}
		}
	}

	d.mu.Lock()
	d.stats.FailedAttempts++
	d.mu.Unlock()

	attempts := d.cfg.MaxRetries + 1
	return nil, &ExhaustedError{
		Message:  fmt.Sprintf("All %d attempts failed", attempts),
		LastErr:  lastErr,
		Attempts: attempts,
	}
}

// StatsSnapshot returns a copy of the accumulated stats.
func (d *Driver) StatsSnapshot() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// ResetStats zeroes the accumulated stats.
func (d *Driver) ResetStats() {
	d.mu.Lock()
	d.stats = Stats{}
	d.mu.Unlock()
}
