package loader

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/omnidata/nexus/internal/breaker"
	"github.com/omnidata/nexus/internal/cache"
	"github.com/omnidata/nexus/internal/health"
	"github.com/omnidata/nexus/internal/httpx"
	"github.com/omnidata/nexus/internal/providers"
	"github.com/omnidata/nexus/internal/qos"
	"github.com/omnidata/nexus/internal/retry"
)

// stubProvider lets tests script upstream behavior per call.
type stubProvider struct {
	name  string
	calls int64
	fetch func(call int64) (any, error)
}

func (s *stubProvider) Name() string                         { return s.name }
func (s *stubProvider) Endpoints() []string                  { return []string{"quote", "series"} }
func (s *stubProvider) ValidateEndpoint(endpoint string) bool { return endpoint == "quote" || endpoint == "series" }

func (s *stubProvider) Fetch(ctx context.Context, endpoint string, params map[string]string) (any, error) {
	n := atomic.AddInt64(&s.calls, 1)
	return s.fetch(n)
}

func (s *stubProvider) CacheKey(endpoint string, params map[string]string) string {
	return providers.BuildCacheKey(endpoint, "apikey", params)
}

func newTestLoader(t *testing.T, p providers.Provider, opts Options) *Loader {
	t.Helper()
	if opts.Cache == nil {
		store := cache.NewMemoryStore(context.Background(), 7)
		t.Cleanup(store.Close)
		opts.Cache = store
	}
	driver := retry.New(retry.Config{MaxRetries: 1, BaseDelay: 0.01})
	return New(
		[]providers.Provider{p},
		qos.New(nil),
		breaker.NewManager(breaker.Config{MinRequests: 4, WindowSize: 10}),
		driver,
		health.NewMonitor(),
		opts,
	)
}

func TestFetchMissThenCacheHit(t *testing.T) {
	p := &stubProvider{name: "fmp", fetch: func(int64) (any, error) {
		return map[string]any{"price": 123.45}, nil
	}}
	l := newTestLoader(t, p, Options{})

	first, err := l.Fetch(context.Background(), "fmp", "quote", map[string]string{"symbol": "AAPL"})
	if err != nil || !first.Success || first.FromCache {
		t.Fatalf("first fetch: %+v, %v", first, err)
	}

	second, err := l.Fetch(context.Background(), "fmp", "quote", map[string]string{"symbol": "AAPL"})
	if err != nil || !second.Success || !second.FromCache {
		t.Fatalf("second fetch should hit the cache: %+v, %v", second, err)
	}
	if second.LatencyMs != 0 {
		t.Errorf("cache hits report zero latency, got %v", second.LatencyMs)
	}
	if atomic.LoadInt64(&p.calls) != 1 {
		t.Errorf("upstream called %d times, want 1", p.calls)
	}

	s := l.Stats()
	if s.TotalRequests != 2 || s.CacheHits != 1 || s.CacheMisses != 1 || s.APICalls != 1 {
		t.Errorf("stats = %+v", s)
	}
	if s.CacheHitRate != 0.5 {
		t.Errorf("cache_hit_rate = %v, want 0.5", s.CacheHitRate)
	}

	// The hit rate counts all requests, not just cache lookups: a request
	// that never consulted the cache still dilutes it.
	l.Fetch(context.Background(), "bloomberg", "quote", nil)
	if s := l.Stats(); s.CacheHitRate != 1.0/3.0 {
		t.Errorf("cache_hit_rate = %v, want 1/3 (hits=%d total=%d)",
			s.CacheHitRate, s.CacheHits, s.TotalRequests)
	}
}

func TestFetchUnknownProvider(t *testing.T) {
	l := newTestLoader(t, &stubProvider{name: "fmp"}, Options{})
	res, err := l.Fetch(context.Background(), "bloomberg", "quote", nil)
	if err != nil {
		t.Fatalf("unknown provider is a failure response, not an error: %v", err)
	}
	if res.Success {
		t.Fatal("unknown provider must fail")
	}
	if res.Error != "Unknown provider: bloomberg" {
		t.Errorf("error = %q", res.Error)
	}
}

func TestFetchExcludedEndpointBypassesCache(t *testing.T) {
	p := &stubProvider{name: "fmp", fetch: func(int64) (any, error) {
		return "live", nil
	}}
	excl, err := cache.NewExclusionList([]string{"quote"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	l := newTestLoader(t, p, Options{Exclusions: excl})

	l.Fetch(context.Background(), "fmp", "quote", nil)
	res, err := l.Fetch(context.Background(), "fmp", "quote", nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.FromCache {
		t.Error("excluded endpoint must never be served from cache")
	}
	if atomic.LoadInt64(&p.calls) != 2 {
		t.Errorf("upstream called %d times, want 2", p.calls)
	}
	if s := l.Stats(); s.CacheHits != 0 || s.CacheMisses != 0 {
		t.Errorf("bypassed lookups must not count as hits or misses: %+v", s)
	}
}

func TestReadOnlyServesCacheButRefusesLive(t *testing.T) {
	p := &stubProvider{name: "fred", fetch: func(int64) (any, error) {
		return "obs", nil
	}}
	l := newTestLoader(t, p, Options{})

	// Warm the cache in live mode.
	if res, err := l.Fetch(context.Background(), "fred", "series", map[string]string{"series_id": "GDP"}); err != nil || !res.Success {
		t.Fatalf("warm fetch: %+v, %v", res, err)
	}

	l.SetMode(ModeReadOnly)

	hit, err := l.Fetch(context.Background(), "fred", "series", map[string]string{"series_id": "GDP"})
	if err != nil || !hit.Success || !hit.FromCache {
		t.Errorf("read-only mode must still serve cache hits: %+v, %v", hit, err)
	}

	// A miss surfaces as a typed refusal, not a failure response.
	_, err = l.Fetch(context.Background(), "fred", "series", map[string]string{"series_id": "UNRATE"})
	var roErr *ReadOnlyError
	if !errors.As(err, &roErr) {
		t.Fatalf("expected *ReadOnlyError, got %T (%v)", err, err)
	}
	if roErr.Provider != "fred" || roErr.Endpoint != "series" {
		t.Errorf("refusal identifies %s/%s, want fred/series", roErr.Provider, roErr.Endpoint)
	}
	if !strings.Contains(roErr.Error(), "Read-only mode") {
		t.Errorf("error = %q", roErr.Error())
	}
	if atomic.LoadInt64(&p.calls) != 1 {
		t.Errorf("upstream called %d times in read-only, want 1", p.calls)
	}
}

func TestRetriesExhaustedShapesError(t *testing.T) {
	p := &stubProvider{name: "polygon", fetch: func(int64) (any, error) {
		return nil, &httpx.ServerError{Message: "Server error: 503", StatusCode: 503}
	}}
	l := newTestLoader(t, p, Options{})

	res, err := l.Fetch(context.Background(), "polygon", "quote", nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Success {
		t.Fatal("expected failure")
	}
	if !strings.HasPrefix(res.Error, "All retries exhausted: ") {
		t.Errorf("error = %q", res.Error)
	}
	// MaxRetries 1 → two attempts.
	if atomic.LoadInt64(&p.calls) != 2 {
		t.Errorf("upstream called %d times, want 2", p.calls)
	}
	if s := l.Stats(); s.APIFailures != 1 || s.APISuccesses != 0 {
		t.Errorf("stats = %+v", s)
	}
}

func TestNonRetryableFailsFast(t *testing.T) {
	p := &stubProvider{name: "fmp", fetch: func(int64) (any, error) {
		return nil, &httpx.ClientError{Message: "Client error: 404", StatusCode: 404}
	}}
	l := newTestLoader(t, p, Options{})

	res, err := l.Fetch(context.Background(), "fmp", "quote", nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Success {
		t.Fatal("expected failure")
	}
	if res.Error != "Client error: 404" {
		t.Errorf("error = %q", res.Error)
	}
	if atomic.LoadInt64(&p.calls) != 1 {
		t.Errorf("404 must not be retried, upstream called %d times", p.calls)
	}
}

func TestCircuitBreakerRejections(t *testing.T) {
	p := &stubProvider{name: "fmp", fetch: func(int64) (any, error) {
		return nil, &httpx.ServerError{Message: "Server error: 500", StatusCode: 500}
	}}
	l := newTestLoader(t, p, Options{})

	// MinRequests 4, threshold 0.20: four failed fetches trip the breaker.
	for i := 0; i < 4; i++ {
		l.Fetch(context.Background(), "fmp", "quote", map[string]string{"n": string(rune('a' + i))})
	}

	// A rejection surfaces as a typed error carrying the breaker state.
	_, err := l.Fetch(context.Background(), "fmp", "quote", map[string]string{"n": "z"})
	var openErr *breaker.OpenError
	if !errors.As(err, &openErr) {
		t.Fatalf("expected *breaker.OpenError, got %T (%v)", err, err)
	}
	if openErr.Provider != "fmp" || openErr.State != breaker.Open {
		t.Errorf("OpenError = %+v", openErr)
	}
	if s := l.Stats(); s.CircuitBreakerRejections != 1 {
		t.Errorf("rejections = %d, want 1", s.CircuitBreakerRejections)
	}

	l.ResetCircuitBreaker("fmp")
	p.fetch = func(int64) (any, error) { return "ok", nil }
	if res, err := l.Fetch(context.Background(), "fmp", "quote", map[string]string{"n": "y"}); err != nil || !res.Success {
		t.Errorf("after reset the fetch should succeed: %+v, %v", res, err)
	}
}

func TestFetchManyPreservesOrder(t *testing.T) {
	p := &stubProvider{name: "fmp", fetch: func(int64) (any, error) {
		time.Sleep(5 * time.Millisecond)
		return "ok", nil
	}}
	l := newTestLoader(t, p, Options{})

	reqs := []Request{
		{Provider: "fmp", Endpoint: "quote", Params: map[string]string{"symbol": "AAPL"}},
		{Provider: "nope", Endpoint: "quote"},
		{Provider: "fmp", Endpoint: "quote", Params: map[string]string{"symbol": "MSFT"}},
	}
	results, err := l.FetchMany(context.Background(), reqs)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results", len(results))
	}
	if !results[0].Success || results[1].Success || !results[2].Success {
		t.Errorf("results = %+v", results)
	}
	if results[1].Error != "Unknown provider: nope" {
		t.Errorf("results[1].Error = %q", results[1].Error)
	}
}

func TestHealthReportShape(t *testing.T) {
	p := &stubProvider{name: "fmp", fetch: func(int64) (any, error) {
		return "ok", nil
	}}
	l := newTestLoader(t, p, Options{})
	l.Fetch(context.Background(), "fmp", "quote", nil)

	h := l.Health()
	if h.OperatingMode != ModeLive {
		t.Errorf("mode = %s", h.OperatingMode)
	}
	if h.Timestamp == 0 {
		t.Error("timestamp missing")
	}
	if _, ok := h.Providers["fmp"]; !ok {
		t.Error("providers report missing fmp")
	}
	if _, ok := h.CircuitBreakers["fmp"]; !ok {
		t.Error("breaker stats missing fmp")
	}
	if _, ok := h.QoS["fmp"]; !ok {
		t.Error("qos stats missing fmp")
	}
	// One provider with a single request: too few samples to judge.
	if h.OverallStatus != health.StatusUnknown {
		t.Errorf("overall = %s, want unknown", h.OverallStatus)
	}
	if h.LoaderStats.TotalRequests != 1 {
		t.Errorf("loader stats = %+v", h.LoaderStats)
	}
}

func TestParseMode(t *testing.T) {
	cases := []struct {
		in   string
		want Mode
		ok   bool
	}{
		{"LIVE", ModeLive, true},
		{"live", ModeLive, true},
		{"", ModeLive, true},
		{"READ_ONLY", ModeReadOnly, true},
		{" read_only ", ModeReadOnly, true},
		{"offline", "", false},
	}
	for _, tc := range cases {
		got, err := ParseMode(tc.in)
		if tc.ok && (err != nil || got != tc.want) {
			t.Errorf("ParseMode(%q) = %v, %v", tc.in, got, err)
		}
		if !tc.ok && err == nil {
			t.Errorf("ParseMode(%q) should fail", tc.in)
		}
	}
}

func TestCancelledFetchRecordsNoOutcome(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := &stubProvider{name: "fmp"}
	p.fetch = func(int64) (any, error) {
		cancel()
		return nil, ctx.Err()
	}

	store := cache.NewMemoryStore(context.Background(), 7)
	t.Cleanup(store.Close)
	breakers := breaker.NewManager(breaker.Config{MinRequests: 4, WindowSize: 10})
	monitor := health.NewMonitor()
	l := New(
		[]providers.Provider{p},
		qos.New(nil),
		breakers,
		retry.New(retry.Config{MaxRetries: 1, BaseDelay: 0.01}),
		monitor,
		Options{Cache: store},
	)

	_, err := l.Fetch(ctx, "fmp", "quote", nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	// The call never fully happened: no breaker, health or failure outcome.
	if st := breakers.For("fmp").Stats(); st.TotalRequests != 0 || st.TotalFailures != 0 {
		t.Errorf("breaker stats = %+v, want no recorded outcome", st)
	}
	if _, ok := monitor.ReportAll()["fmp"]; ok {
		t.Error("health monitor must not record a cancelled call")
	}
	if s := l.Stats(); s.APIFailures != 0 {
		t.Errorf("api_failures = %d, want 0", s.APIFailures)
	}

	// The slot was released on the way out.
	if got := l.gate.AvailableSlots("fmp"); got != 3 {
		t.Errorf("available fmp slots = %d, want all 3 free", got)
	}
}

func TestValidationErrorsPassThrough(t *testing.T) {
	p := &stubProvider{name: "fmp", fetch: func(int64) (any, error) {
		return nil, &providers.MissingParamError{Endpoint: "quote", Param: "symbol"}
	}}
	l := newTestLoader(t, p, Options{})

	res, err := l.Fetch(context.Background(), "fmp", "quote", nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Success {
		t.Fatal("expected failure")
	}
	if res.Error != "Endpoint 'quote' requires parameter: symbol" {
		t.Errorf("error = %q", res.Error)
	}
	if atomic.LoadInt64(&p.calls) != 1 {
		t.Errorf("validation errors must not be retried, got %d calls", p.calls)
	}
}
