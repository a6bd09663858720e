package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics aggregates the daemon's prometheus instruments. A nil *Metrics is
// valid and records nothing, so wiring stays optional in tests.
type Metrics struct {
	sessionsStarted   prometheus.Counter
	sessionsCompleted prometheus.Counter
	sessionsTimedOut  prometheus.Counter
	sessionsFailed    prometheus.Counter

	fetchRetries        prometheus.Counter
	partialSaveFailures prometheus.Counter

	transcriptionLatency *prometheus.HistogramVec
	transcriptionErrors  *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		sessionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "mockview_sessions_started_total",
			Help: "Interview sessions created",
		}),
		sessionsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "mockview_sessions_completed_total",
			Help: "Interview sessions that reached the complete phase",
		}),
		sessionsTimedOut: factory.NewCounter(prometheus.CounterOpts{
			Name: "mockview_sessions_timed_out_total",
			Help: "Interview sessions ended by the countdown",
		}),
		sessionsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "mockview_sessions_failed_total",
			Help: "Interview sessions ended by unrecoverable errors",
		}),
		fetchRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "mockview_question_fetch_retries_total",
			Help: "Retried question list fetch attempts",
		}),
		partialSaveFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "mockview_partial_save_failures_total",
			Help: "Best-effort partial session saves that failed",
		}),
		transcriptionLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mockview_transcription_seconds",
			Help:    "Latency of transcription submissions",
			Buckets: prometheus.DefBuckets,
		}, []string{"mode"}),
		transcriptionErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mockview_transcription_errors_total",
			Help: "Failed transcription submissions",
		}, []string{"mode"}),
	}
}

func mode(final bool) string {
	if final {
		return "final"
	}
	return "draft"
}

func (m *Metrics) SessionStarted() {
	if m != nil {
		m.sessionsStarted.Inc()
	}
}

func (m *Metrics) SessionCompleted() {
	if m != nil {
		m.sessionsCompleted.Inc()
	}
}

func (m *Metrics) SessionTimedOut() {
	if m != nil {
		m.sessionsTimedOut.Inc()
	}
}

func (m *Metrics) SessionFailed() {
	if m != nil {
		m.sessionsFailed.Inc()
	}
}

func (m *Metrics) FetchRetried() {
	if m != nil {
		m.fetchRetries.Inc()
	}
}

func (m *Metrics) PartialSaveFailed() {
	if m != nil {
		m.partialSaveFailures.Inc()
	}
}

func (m *Metrics) TranscriptionObserved(final bool, d time.Duration, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.transcriptionErrors.WithLabelValues(mode(final)).Inc()
		return
	}
	m.transcriptionLatency.WithLabelValues(mode(final)).Observe(d.Seconds())
}
