package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

// NewMetrics registers against the default registry, so it can only run
// once per process; a single test exercises the helpers.
func TestMetrics(t *testing.T) {
	m := NewMetrics()

	m.CallStarted()
	m.CallStarted()
	if got := testutil.ToFloat64(m.ActiveSessions); got != 2 {
		t.Errorf("expected 2 active sessions, got %v", got)
	}

	m.CallEnded("goodbye", 3)
	if got := testutil.ToFloat64(m.ActiveSessions); got != 1 {
		t.Errorf("expected 1 active session after end, got %v", got)
	}
	if got := testutil.ToFloat64(m.CallsEnded.WithLabelValues("goodbye")); got != 1 {
		t.Errorf("expected 1 goodbye ending, got %v", got)
	}

	m.RecordDependency("classifier", "fallback", 150*time.Millisecond)
	if got := testutil.ToFloat64(m.DependencyRequestCounter.WithLabelValues("classifier", "fallback")); got != 1 {
		t.Errorf("expected 1 fallback classifier request, got %v", got)
	}

	m.SilenceStrikes.Inc()
	if got := testutil.ToFloat64(m.SilenceStrikes); got != 1 {
		t.Errorf("expected 1 silence strike, got %v", got)
	}
}
