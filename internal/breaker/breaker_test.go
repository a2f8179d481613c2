package breaker

import (
	"errors"
	"testing"
	"time"
)

func newTestBreaker() *Breaker {
	return newBreaker("fmp", Config{})
}

func TestStartsClosed(t *testing.T) {
	b := newTestBreaker()
	if b.State() != Closed {
		t.Errorf("new breaker should start closed, got %v", b.State())
	}
	if !b.Allow() {
		t.Error("closed breaker should allow requests")
	}
}

func TestStaysClosedBelowMinRequests(t *testing.T) {
	b := newTestBreaker()
	// 9 straight failures — 100% error rate, but below the 10-sample floor.
	for i := 0; i < 9; i++ {
		b.RecordFailure()
	}
	if b.State() != Closed {
		t.Errorf("breaker should stay closed under %d samples, got %v", b.cfg.MinRequests, b.State())
	}
}

func TestOpensAtThreshold(t *testing.T) {
	b := newTestBreaker()
	// 8 successes + 2 failures = 10 samples at exactly 20%.
	for i := 0; i < 8; i++ {
		b.RecordSuccess()
	}
	b.RecordFailure()
	b.RecordFailure()

	if b.State() != Open {
		t.Errorf("breaker should open at error rate >= 0.20, got %v", b.State())
	}
	if b.Allow() {
		t.Error("open breaker should reject requests")
	}
	if got := b.Stats().RejectedCount; got != 1 {
		t.Errorf("rejected count = %d, want 1", got)
	}
}

func TestStaysClosedBelowThreshold(t *testing.T) {
	b := newTestBreaker()
	// 1 failure in 10 = 10%, under the 20% threshold.
	for i := 0; i < 9; i++ {
		b.RecordSuccess()
	}
	b.RecordFailure()
	if b.State() != Closed {
		t.Errorf("breaker should stay closed at 10%% error rate, got %v", b.State())
	}
}

func openBreaker(t *testing.T, b *Breaker) {
	t.Helper()
	for i := 0; i < 10; i++ {
		b.RecordFailure()
	}
	if b.State() != Open {
		t.Fatalf("setup: breaker should be open, got %v", b.State())
	}
}

func TestLazyHalfOpenTransition(t *testing.T) {
	b := newTestBreaker()
	openBreaker(t, b)

	// Rewind the open timestamp past the recovery timeout.
	b.mu.Lock()
	b.openedAt = time.Now().Add(-61 * time.Second)
	b.mu.Unlock()

	if b.State() != HalfOpen {
		t.Errorf("breaker should be half-open after recovery timeout, got %v", b.State())
	}
}

func TestHalfOpenProbeBudget(t *testing.T) {
	b := newTestBreaker()
	openBreaker(t, b)
	b.mu.Lock()
	b.openedAt = time.Now().Add(-61 * time.Second)
	b.mu.Unlock()

	for i := 0; i < 3; i++ {
		if !b.Allow() {
			t.Fatalf("probe %d should be admitted in half-open", i+1)
		}
	}
	if b.Allow() {
		t.Error("fourth half-open request should be rejected")
	}
}

func TestHalfOpenFailureReopens(t *testing.T) {
	b := newTestBreaker()
	openBreaker(t, b)
	b.mu.Lock()
	b.openedAt = time.Now().Add(-61 * time.Second)
	b.mu.Unlock()

	if !b.Allow() {
		t.Fatal("probe should be admitted")
	}
	b.RecordFailure()

	if b.State() != Open {
		t.Errorf("half-open failure should reopen, got %v", b.State())
	}
	if b.Allow() {
		t.Error("reopened breaker should reject immediately")
	}
}

func TestHalfOpenSuccessesClose(t *testing.T) {
	b := newTestBreaker()
	openBreaker(t, b)
	b.mu.Lock()
	b.openedAt = time.Now().Add(-61 * time.Second)
	b.mu.Unlock()

	for i := 0; i < 3; i++ {
		if !b.Allow() {
			t.Fatalf("probe %d should be admitted", i+1)
		}
		b.RecordSuccess()
	}

	if b.State() != Closed {
		t.Errorf("breaker should close after 3 consecutive probe successes, got %v", b.State())
	}
	st := b.Stats()
	if st.WindowSize != 0 {
		t.Errorf("window should be cleared on close, got %d samples", st.WindowSize)
	}
}

func TestExecuteRecordsOutcomes(t *testing.T) {
	b := newTestBreaker()

	got, err := b.Execute(func() (any, error) { return "ok", nil })
	if err != nil || got != "ok" {
		t.Fatalf("Execute = %v, %v", got, err)
	}

	wantErr := errors.New("upstream down")
	if _, err := b.Execute(func() (any, error) { return nil, wantErr }); !errors.Is(err, wantErr) {
		t.Fatalf("Execute should return fn's error, got %v", err)
	}

	st := b.Stats()
	if st.TotalRequests != 2 || st.TotalFailures != 1 {
		t.Errorf("stats = %+v, want 2 requests / 1 failure", st)
	}
}

func TestExecuteRejectsWhenOpen(t *testing.T) {
	b := newTestBreaker()
	openBreaker(t, b)

	called := false
	_, err := b.Execute(func() (any, error) {
		called = true
		return nil, nil
	})
	var openErr *OpenError
	if !errors.As(err, &openErr) {
		t.Fatalf("expected *OpenError, got %T (%v)", err, err)
	}
	if openErr.Provider != "fmp" || openErr.State != Open {
		t.Errorf("OpenError = %+v", openErr)
	}
	if called {
		t.Error("fn must not run while the breaker is open")
	}
}

func TestWindowIsBounded(t *testing.T) {
	b := newBreaker("fmp", Config{WindowSize: 100, MinRequests: 10, ErrorThreshold: 0.99})
	for i := 0; i < 250; i++ {
		b.RecordSuccess()
	}
	if got := b.Stats().WindowSize; got != 100 {
		t.Errorf("window size = %d, want 100", got)
	}
}

func TestOldOutcomesSlideOut(t *testing.T) {
	b := newBreaker("fmp", Config{WindowSize: 10, MinRequests: 5})
	// Fill the window with failures, then push them all out with successes.
	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}
	for i := 0; i < 10; i++ {
		b.RecordSuccess()
	}
	if got := b.Stats().WindowFailures; got != 0 {
		t.Errorf("old failures should have slid out, window failures = %d", got)
	}
}

func TestReset(t *testing.T) {
	b := newTestBreaker()
	openBreaker(t, b)
	b.Reset()
	if b.State() != Closed {
		t.Errorf("reset breaker should be closed, got %v", b.State())
	}
	if !b.Allow() {
		t.Error("reset breaker should allow requests")
	}
}

func TestManagerPerProvider(t *testing.T) {
	m := NewManager(Config{})

	fmp := m.For("fmp")
	if m.For("fmp") != fmp {
		t.Error("For should return the same breaker instance per provider")
	}
	fred := m.For("fred")

	for i := 0; i < 10; i++ {
		fmp.RecordFailure()
	}
	if fmp.State() != Open {
		t.Errorf("fmp breaker should be open, got %v", fmp.State())
	}
	if fred.State() != Closed {
		t.Errorf("fred breaker must be unaffected, got %v", fred.State())
	}

	m.Reset("fmp")
	if fmp.State() != Closed {
		t.Error("manager Reset should close the breaker")
	}
	m.Reset("nonexistent") // must not panic

	stats := m.StatsSnapshot()
	if len(stats) != 2 {
		t.Errorf("expected 2 breakers in snapshot, got %d", len(stats))
	}
	if stats["fred"].State != "closed" {
		t.Errorf("fred state = %s, want closed", stats["fred"].State)
	}
}

func TestManagerResetAll(t *testing.T) {
	m := NewManager(Config{})
	for _, p := range []string{"fmp", "polygon"} {
		b := m.For(p)
		for i := 0; i < 10; i++ {
			b.RecordFailure()
		}
	}
	m.ResetAll()
	for _, p := range []string{"fmp", "polygon"} {
		if m.For(p).State() != Closed {
			t.Errorf("%s breaker should be closed after ResetAll", p)
		}
	}
}
