package qos

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestDefaultLimits(t *testing.T) {
	r := New(nil)
	cases := map[string]int{
		"fmp":     3,
		"polygon": 10,
		"fred":    1,
		"unknown": 5,
	}
	for provider, want := range cases {
		if got := r.Limit(provider); got != want {
			t.Errorf("limit for %s = %d, want %d", provider, got, want)
		}
	}
}

func TestAcquireEnforcesLimit(t *testing.T) {
	r := New(nil)
	ctx := context.Background()

	var active, maxSeen int64
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := r.Acquire(ctx, "fmp")
			if err != nil {
				t.Errorf("Acquire: %v", err)
				return
			}
			cur := atomic.AddInt64(&active, 1)
			for {
				m := atomic.LoadInt64(&maxSeen)
				if cur <= m || atomic.CompareAndSwapInt64(&maxSeen, m, cur) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt64(&active, -1)
			release()
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt64(&maxSeen); got > 3 {
		t.Errorf("observed %d concurrent fmp requests, limit is 3", got)
	}

	stats := r.StatsSnapshot()["fmp"]
	if stats.TotalRequests != 20 {
		t.Errorf("total_requests = %d, want 20", stats.TotalRequests)
	}
	if stats.Active != 0 {
		t.Errorf("active = %d after drain, want 0", stats.Active)
	}
	if stats.MaxConcurrentSeen == 0 || stats.MaxConcurrentSeen > 3 {
		t.Errorf("max_concurrent_seen = %d, want 1..3", stats.MaxConcurrentSeen)
	}
}

func TestAcquireRespectsContext(t *testing.T) {
	r := New(nil)
	ctx := context.Background()

	// fred has a limit of 1; hold the only slot.
	release, err := r.Acquire(ctx, "fred")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer release()

	waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if _, err := r.Acquire(waitCtx, "fred"); err == nil {
		t.Fatal("second Acquire should fail when the slot is held and ctx expires")
	}

	stats := r.StatsSnapshot()["fred"]
	if stats.Queued != 0 {
		t.Errorf("queued = %d after cancelled wait, want 0", stats.Queued)
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	r := New(nil)
	release, err := r.Acquire(context.Background(), "fred")
	if err != nil {
		t.Fatal(err)
	}
	release()
	release() // second call must be a no-op

	if got := r.StatsSnapshot()["fred"].Active; got != 0 {
		t.Errorf("active = %d, want 0", got)
	}
	// The single slot must still be acquirable exactly once.
	rel2, err := r.Acquire(context.Background(), "fred")
	if err != nil {
		t.Fatal(err)
	}
	rel2()
}

func TestSetLimit(t *testing.T) {
	r := New(nil)
	ctx := context.Background()

	release, err := r.Acquire(ctx, "fred")
	if err != nil {
		t.Fatal(err)
	}

	r.SetLimit("fred", 2)

	// New semaphore has 2 slots even though one holder is still draining.
	rel1, err := r.Acquire(ctx, "fred")
	if err != nil {
		t.Fatalf("Acquire after SetLimit: %v", err)
	}
	rel2, err := r.Acquire(ctx, "fred")
	if err != nil {
		t.Fatalf("second Acquire after SetLimit: %v", err)
	}
	rel1()
	rel2()
	release()

	if got := r.Limit("fred"); got != 2 {
		t.Errorf("limit = %d, want 2", got)
	}
}

func TestAvailableSlots(t *testing.T) {
	r := New(nil)
	if got := r.AvailableSlots("fmp"); got != 3 {
		t.Errorf("idle fmp slots = %d, want 3", got)
	}

	release, err := r.Acquire(context.Background(), "fmp")
	if err != nil {
		t.Fatal(err)
	}
	if got := r.AvailableSlots("fmp"); got != 2 {
		t.Errorf("slots with one holder = %d, want 2", got)
	}
	release()
	if got := r.AvailableSlots("fmp"); got != 3 {
		t.Errorf("slots after release = %d, want 3", got)
	}
}

func TestConfiguredOverrides(t *testing.T) {
	r := New(map[string]int{"fmp": 8, "bogus": 0})
	if got := r.Limit("fmp"); got != 8 {
		t.Errorf("overridden fmp limit = %d, want 8", got)
	}
	if got := r.Limit("bogus"); got != 5 {
		t.Errorf("zero override must keep default, got %d", got)
	}
}
