package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects the service's Prometheus metrics: call lifecycle,
// per-turn dialog outcomes, outbound dependency health and HTTP serving.
// Exposed at /metrics via the default registry.
type Metrics struct {
	// CallsStarted counts new call sessions.
	CallsStarted prometheus.Counter

	// CallsEnded counts terminated calls by end reason
	// (goodbye|silence|backend-request|swept).
	CallsEnded *prometheus.CounterVec

	// TurnsProcessed counts dialog turns by outcome
	// (answered|silence|ended).
	TurnsProcessed *prometheus.CounterVec

	// SilenceStrikes counts empty listen windows.
	SilenceStrikes prometheus.Counter

	// TurnsPerCall measures completed question/answer exchanges per call.
	// Buckets: 1, 2, 3, 5, 8, 13, 21 exchanges.
	TurnsPerCall prometheus.Histogram

	// DependencyRequestDuration measures outbound request latency.
	// Labels: dependency (classifier|backend)
	// Buckets: 0.1s, 0.25s, 0.5s, 1s, 2s, 5s, 10s, 20s, 60s
	DependencyRequestDuration *prometheus.HistogramVec

	// DependencyRequestCounter counts outbound requests.
	// Labels: dependency, status (success|fallback)
	DependencyRequestCounter *prometheus.CounterVec

	// ActiveSessions tracks current live call sessions.
	ActiveSessions prometheus.Gauge

	// HTTPRequestDuration measures webhook handling latency.
	// Labels: method, path, status_code
	HTTPRequestDuration *prometheus.HistogramVec

	// HTTPRequestCounter counts HTTP requests.
	// Labels: method, path, status_code
	HTTPRequestCounter *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics with the default
// Prometheus registry. Call once at startup.
func NewMetrics() *Metrics {
	return &Metrics{
		CallsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "callbridge_calls_started_total",
			Help: "Total number of call sessions created",
		}),

		CallsEnded: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callbridge_calls_ended_total",
				Help: "Total number of calls terminated, by end reason",
			},
			[]string{"reason"},
		),

		TurnsProcessed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callbridge_turns_total",
				Help: "Total number of dialog turns processed, by outcome",
			},
			[]string{"outcome"},
		),

		SilenceStrikes: promauto.NewCounter(prometheus.CounterOpts{
			Name: "callbridge_silence_strikes_total",
			Help: "Total number of listen windows that closed without speech",
		}),

		TurnsPerCall: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "callbridge_turns_per_call",
			Help:    "Completed question/answer exchanges per ended call",
			Buckets: []float64{1, 2, 3, 5, 8, 13, 21},
		}),

		DependencyRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "callbridge_dependency_request_duration_seconds",
				Help:    "Duration of outbound dependency requests in seconds",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 60},
			},
			[]string{"dependency"},
		),

		DependencyRequestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callbridge_dependency_requests_total",
				Help: "Total outbound dependency requests by dependency and status",
			},
			[]string{"dependency", "status"},
		),

		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "callbridge_active_sessions",
			Help: "Current number of live call sessions",
		}),

		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "callbridge_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"method", "path", "status_code"},
		),

		HTTPRequestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callbridge_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),
	}
}

// SessionsEvicted records idle sessions removed by the janitor sweep.
func (m *Metrics) SessionsEvicted(n int) {
	if n <= 0 {
		return
	}
	m.CallsEnded.WithLabelValues("swept").Add(float64(n))
	m.ActiveSessions.Sub(float64(n))
}

// RecordDependency records one outbound dependency request. status is
// "success" when the upstream answered usably and "fallback" when the
// fail-open value was substituted.
func (m *Metrics) RecordDependency(dependency, status string, duration time.Duration) {
	m.DependencyRequestCounter.WithLabelValues(dependency, status).Inc()
	m.DependencyRequestDuration.WithLabelValues(dependency).Observe(duration.Seconds())
}

// CallStarted records a new call session.
func (m *Metrics) CallStarted() {
	m.CallsStarted.Inc()
	m.ActiveSessions.Inc()
}

// CallEnded records call termination with its reason and the number of
// completed exchanges.
func (m *Metrics) CallEnded(reason string, turns int) {
	m.CallsEnded.WithLabelValues(reason).Inc()
	m.ActiveSessions.Dec()
	m.TurnsPerCall.Observe(float64(turns))
}
