package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks recorded clock events, rejected requests and audit sink health.
type Metrics struct {
	EventsRecorded      *prometheus.CounterVec
	Rejections          *prometheus.CounterVec
	AuditWriteFailures  prometheus.Counter
	ClockRecordDuration prometheus.Histogram
}

// New registers every collector on reg. Pass prometheus.DefaultRegisterer in
// production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		EventsRecorded: f.NewCounterVec(prometheus.CounterOpts{
			Name: "workclock_clock_events_recorded_total",
			Help: "Clock events persisted, by type",
		}, []string{"type"}),
		Rejections: f.NewCounterVec(prometheus.CounterOpts{
			Name: "workclock_requests_rejected_total",
			Help: "Failed requests, by endpoint and error code",
		}, []string{"endpoint", "code"}),
		AuditWriteFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "workclock_audit_write_failures_total",
			Help: "Audit entries that could not be written and went to the fallback log",
		}),
		ClockRecordDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "workclock_clock_record_duration_seconds",
			Help:    "Duration of the clock-in/clock-out pipeline",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

// EventRecorded counts a persisted IN or OUT.
func (m *Metrics) EventRecorded(eventType string) {
	m.EventsRecorded.WithLabelValues(eventType).Inc()
}

// Rejected counts a failed request.
func (m *Metrics) Rejected(endpoint, code string) {
	m.Rejections.WithLabelValues(endpoint, code).Inc()
}

// AuditWriteFailed satisfies audit.FailureRecorder.
func (m *Metrics) AuditWriteFailed() {
	m.AuditWriteFailures.Inc()
}

// ObserveClockRecord records pipeline duration. Call with time.Now() at the start.
func (m *Metrics) ObserveClockRecord(start time.Time) {
	m.ClockRecordDuration.Observe(time.Since(start).Seconds())
}
