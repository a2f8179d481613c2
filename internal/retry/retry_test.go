package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/omnidata/nexus/internal/httpx"
)

// fastDriver keeps test backoff in the millisecond range.
func fastDriver() *Driver {
	return New(Config{BaseDelay: 0.001, MaxDelay: 0.005})
}

func TestExecuteSucceedsFirstTry(t *testing.T) {
	d := fastDriver()
	got, err := d.Execute(context.Background(), func(context.Context) (any, error) {
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ok" {
		t.Errorf("result = %v, want ok", got)
	}
	st := d.StatsSnapshot()
	if st.TotalAttempts != 1 || st.SuccessfulAttempts != 1 || st.RetriesPerformed != 0 {
		t.Errorf("unexpected stats: %+v", st)
	}
}

func TestExecuteRetriesThenSucceeds(t *testing.T) {
	d := fastDriver()
	calls := 0
	got, err := d.Execute(context.Background(), func(context.Context) (any, error) {
		calls++
		if calls < 3 {
			return nil, &httpx.ServerError{Message: "Server error: 500", StatusCode: 500}
		}
		return 42, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 42 {
		t.Errorf("result = %v, want 42", got)
	}
	if calls != 3 {
		t.Errorf("fn called %d times, want 3", calls)
	}
	if got := d.StatsSnapshot().RetriesPerformed; got != 2 {
		t.Errorf("retries_performed = %d, want 2", got)
	}
}

func TestExecuteExhausted(t *testing.T) {
	d := fastDriver()
	serverErr := &httpx.ServerError{Message: "Server error: 503", StatusCode: 503}
	calls := 0
	_, err := d.Execute(context.Background(), func(context.Context) (any, error) {
		calls++
		return nil, serverErr
	})

	var ex *ExhaustedError
	if !errors.As(err, &ex) {
		t.Fatalf("expected *ExhaustedError, got %T (%v)", err, err)
	}
	if calls != 4 {
		t.Errorf("fn called %d times, want 4 (1 + 3 retries)", calls)
	}
	if ex.Attempts != 4 {
		t.Errorf("Attempts = %d, want 4", ex.Attempts)
	}
	if !errors.Is(err, serverErr) {
		t.Error("exhausted error should wrap the last attempt's error")
	}
	if ex.Error() != "All 4 attempts failed" {
		t.Errorf("unexpected message: %q", ex.Error())
	}
}

func TestNonRetryableStatusFailsImmediately(t *testing.T) {
	for _, code := range []int{400, 401, 403, 404} {
		d := fastDriver()
		calls := 0
		_, err := d.Execute(context.Background(), func(context.Context) (any, error) {
			calls++
			return nil, &httpx.ClientError{Message: "Client error", StatusCode: code}
		})
		if calls != 1 {
			t.Errorf("status %d: fn called %d times, want 1", code, calls)
		}
		if _, ok := err.(*ExhaustedError); ok {
			t.Errorf("status %d: non-retryable failure must not be wrapped as exhaustion", code)
		}
	}
}

func TestRateLimitIsRetryable(t *testing.T) {
	d := fastDriver()
	calls := 0
	d.Execute(context.Background(), func(context.Context) (any, error) {
		calls++
		return nil, &httpx.RateLimitError{Message: "Rate limit exceeded", StatusCode: 429}
	})
	if calls != 4 {
		t.Errorf("429 should be retried: fn called %d times, want 4", calls)
	}
}

func TestDelaySchedule(t *testing.T) {
	d := New(Config{})
	// Jitter is ±50% with a 0.1s floor; check the envelope per attempt.
	cases := []struct {
		attempt  int
		min, max time.Duration
	}{
		{0, 500 * time.Millisecond, 1500 * time.Millisecond},
		{1, 1 * time.Second, 3 * time.Second},
		{2, 2 * time.Second, 6 * time.Second},
	}
	for _, tc := range cases {
		for i := 0; i < 50; i++ {
			got := d.Delay(tc.attempt)
			if got < tc.min || got > tc.max {
				t.Fatalf("attempt %d: delay %v outside [%v, %v]", tc.attempt, got, tc.min, tc.max)
			}
		}
	}
}

func TestDelayCapAndFloor(t *testing.T) {
	d := New(Config{})
	// Attempt 10 → raw 1024s, capped at 60s, jitter ±30s.
	for i := 0; i < 50; i++ {
		got := d.Delay(10)
		if got > 90*time.Second {
			t.Fatalf("delay %v exceeds cap envelope", got)
		}
		if got < 100*time.Millisecond {
			t.Fatalf("delay %v below 0.1s floor", got)
		}
	}

	tiny := New(Config{BaseDelay: 0.0001, MaxDelay: 0.0002})
	if got := tiny.Delay(0); got < 100*time.Millisecond {
		t.Errorf("floor not applied: %v", got)
	}
}

func TestDelayWithoutJitterIsDeterministic(t *testing.T) {
	d := New(Config{BaseDelay: 0.05, DisableJitter: true})
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 50 * time.Millisecond},
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
	}
	for _, tc := range cases {
		for i := 0; i < 10; i++ {
			if got := d.Delay(tc.attempt); got != tc.want {
				t.Fatalf("attempt %d: delay = %v, want %v", tc.attempt, got, tc.want)
			}
		}
	}
}

func TestNegativeMaxRetriesMeansSingleAttempt(t *testing.T) {
	d := New(Config{MaxRetries: -1, BaseDelay: 0.001})
	calls := 0
	_, err := d.Execute(context.Background(), func(context.Context) (any, error) {
		calls++
		return nil, &httpx.ServerError{Message: "Server error: 500", StatusCode: 500}
	})
	if calls != 1 {
		t.Errorf("fn called %d times, want exactly 1", calls)
	}
	var ex *ExhaustedError
	if !errors.As(err, &ex) || ex.Attempts != 1 {
		t.Errorf("err = %v, want exhaustion after 1 attempt", err)
	}
}

func TestRetryIfAllowList(t *testing.T) {
	d := New(Config{
		BaseDelay: 0.001,
		RetryIf: func(err error) bool {
			_, ok := err.(*httpx.RateLimitError)
			return ok
		},
	})

	calls := 0
	d.Execute(context.Background(), func(context.Context) (any, error) {
		calls++
		return nil, &httpx.ServerError{Message: "Server error: 500", StatusCode: 500}
	})
	if calls != 1 {
		t.Errorf("error outside the allow-list retried: %d calls, want 1", calls)
	}

	calls = 0
	d.Execute(context.Background(), func(context.Context) (any, error) {
		calls++
		return nil, &httpx.RateLimitError{Message: "Rate limit exceeded", StatusCode: 429}
	})
	if calls != 4 {
		t.Errorf("allow-listed error: %d calls, want 4", calls)
	}
}

func TestExecuteAbortsOnContextCancel(t *testing.T) {
	d := New(Config{BaseDelay: 10, MaxDelay: 10}) // long backoff
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := d.Execute(ctx, func(context.Context) (any, error) {
		return nil, &httpx.ServerError{Message: "Server error: 500", StatusCode: 500}
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("cancel should abort the backoff wait promptly")
	}
}
