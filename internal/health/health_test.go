package health

import "testing"

func TestUnknownUnderMinRequests(t *testing.T) {
	m := NewMonitor()
	for i := 0; i < 9; i++ {
		m.RecordFailure("fmp", 10, "server_error")
	}
	if got := m.StatusFor("fmp"); got != StatusUnknown {
		t.Errorf("status with 9 requests = %s, want unknown", got)
	}
	if got := m.StatusFor("never-seen"); got != StatusUnknown {
		t.Errorf("status for unseen provider = %s, want unknown", got)
	}
}

func TestStatusThresholds(t *testing.T) {
	cases := []struct {
		name      string
		successes int
		failures  int
		want      Status
	}{
		{"healthy at 5%", 19, 1, StatusHealthy},
		{"degraded at 10%", 18, 2, StatusDegraded},
		{"degraded at 15%", 17, 3, StatusDegraded},
		{"unhealthy at 20%", 16, 4, StatusUnhealthy},
		{"unhealthy at 50%", 10, 10, StatusUnhealthy},
	}
	for _, tc := range cases {
		m := NewMonitor()
		for i := 0; i < tc.successes; i++ {
			m.RecordSuccess("fmp", 5)
		}
		for i := 0; i < tc.failures; i++ {
			m.RecordFailure("fmp", 5, "server_error")
		}
		if got := m.StatusFor("fmp"); got != tc.want {
			t.Errorf("%s: status = %s, want %s", tc.name, got, tc.want)
		}
	}
}

func TestRollingWindowForgetsOldFailures(t *testing.T) {
	m := NewMonitor()
	// 30 failures, then 100 successes pushing them all out of the window.
	for i := 0; i < 30; i++ {
		m.RecordFailure("fred", 5, "server_error")
	}
	for i := 0; i < 100; i++ {
		m.RecordSuccess("fred", 5)
	}
	if got := m.StatusFor("fred"); got != StatusHealthy {
		t.Errorf("status = %s, want healthy once failures leave the window", got)
	}
	// Cumulative counters keep the full history.
	r := m.ReportAll()["fred"]
	if r.TotalRequests != 130 || r.TotalFailures != 30 {
		t.Errorf("cumulative counters = %d/%d, want 130/30", r.TotalRequests, r.TotalFailures)
	}
}

func TestErrorTypeCounters(t *testing.T) {
	m := NewMonitor()
	m.RecordFailure("polygon", 5, "rate_limit")
	m.RecordFailure("polygon", 5, "rate_limit")
	m.RecordFailure("polygon", 5, "timeout")
	m.RecordFailure("polygon", 5, "server_error")

	r := m.ReportAll()["polygon"]
	if r.RateLimited != 2 {
		t.Errorf("rate_limited = %d, want 2", r.RateLimited)
	}
	if r.Timeouts != 1 {
		t.Errorf("timeouts = %d, want 1", r.Timeouts)
	}
	if r.TotalFailures != 4 {
		t.Errorf("total_failures = %d, want 4", r.TotalFailures)
	}
}

func TestAvgLatency(t *testing.T) {
	m := NewMonitor()
	m.RecordSuccess("fmp", 10)
	m.RecordSuccess("fmp", 30)
	r := m.ReportAll()["fmp"]
	if r.AvgLatencyMs != 20 {
		t.Errorf("avg_latency_ms = %f, want 20", r.AvgLatencyMs)
	}
	if r.LastSuccess == 0 {
		t.Error("last_success should be set")
	}
}

func TestOverallIsWorst(t *testing.T) {
	m := NewMonitor()
	if got := m.Overall(); got != StatusUnknown {
		t.Errorf("overall with no providers = %s, want unknown", got)
	}

	for i := 0; i < 20; i++ {
		m.RecordSuccess("fmp", 5)
	}
	if got := m.Overall(); got != StatusHealthy {
		t.Errorf("overall = %s, want healthy", got)
	}

	// fred unknown (few requests) should not drag healthy down to unknown.
	m.RecordSuccess("fred", 5)
	if got := m.Overall(); got != StatusHealthy {
		t.Errorf("overall with one unknown provider = %s, want healthy", got)
	}

	for i := 0; i < 16; i++ {
		m.RecordSuccess("polygon", 5)
	}
	for i := 0; i < 4; i++ {
		m.RecordFailure("polygon", 5, "server_error")
	}
	if got := m.Overall(); got != StatusUnhealthy {
		t.Errorf("overall = %s, want unhealthy (worst wins)", got)
	}
}

func TestOverallAllUnknown(t *testing.T) {
	m := NewMonitor()
	m.RecordSuccess("fmp", 5)
	m.RecordSuccess("fred", 5)
	if got := m.Overall(); got != StatusUnknown {
		t.Errorf("overall with all-unknown providers = %s, want unknown", got)
	}
}

func TestReset(t *testing.T) {
	m := NewMonitor()
	for i := 0; i < 20; i++ {
		m.RecordFailure("fmp", 5, "server_error")
		m.RecordSuccess("fred", 5)
	}
	m.Reset("fmp")
	if got := m.StatusFor("fmp"); got != StatusUnknown {
		t.Errorf("status after reset = %s, want unknown", got)
	}
	if _, ok := m.ReportAll()["fred"]; !ok {
		t.Error("reset of fmp must not touch fred")
	}

	m.ResetAll()
	if len(m.ReportAll()) != 0 {
		t.Error("ResetAll should clear every provider")
	}
}
