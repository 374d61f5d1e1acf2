package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SupervisionMetrics tracks payment order polling and resolution.
type SupervisionMetrics struct {
	polls    *prometheus.CounterVec
	outcomes *prometheus.CounterVec
	active   prometheus.Gauge
	duration prometheus.Histogram
}

// NewSupervisionMetrics registers the supervisor metrics on reg. A nil
// registerer yields a no-op recorder.
func NewSupervisionMetrics(reg prometheus.Registerer) *SupervisionMetrics {
	if reg == nil {
		return &SupervisionMetrics{}
	}
	polls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "supervisor",
		Name:      "polls_total",
		Help:      "Gateway status lookups by result.",
	}, []string{"provider", "result"})
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "supervisor",
		Name:      "outcomes_total",
		Help:      "Supervision runs by final order status.",
	}, []string{"status"})
	active := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "supervisor",
		Name:      "active",
		Help:      "Orders currently under supervision.",
	})
	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "supervisor",
		Name:      "duration_seconds",
		Help:      "Wall-clock time from supervision start to its end.",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
	})
	reg.MustRegister(polls, outcomes, active, duration)
	return &SupervisionMetrics{
		polls:    polls,
		outcomes: outcomes,
		active:   active,
		duration: duration,
	}
}

// ObservePoll counts one status lookup.
func (m *SupervisionMetrics) ObservePoll(provider, result string) {
	if m == nil || m.polls == nil {
		return
	}
	m.polls.WithLabelValues(normalizeLabel(provider), normalizeLabel(result)).Inc()
}

// Started marks a supervision run as active.
func (m *SupervisionMetrics) Started() {
	if m == nil || m.active == nil {
		return
	}
	m.active.Inc()
}

// Finished records the end of a supervision run.
func (m *SupervisionMetrics) Finished(status string, elapsed time.Duration) {
	if m == nil || m.active == nil {
		return
	}
	m.active.Dec()
	m.outcomes.WithLabelValues(normalizeLabel(status)).Inc()
	m.duration.Observe(elapsed.Seconds())
}

// IntentMetrics counts intent creation and resume outcomes.
type IntentMetrics struct {
	created *prometheus.CounterVec
	resumed *prometheus.CounterVec
}

// NewIntentMetrics registers intent counters on reg.
func NewIntentMetrics(reg prometheus.Registerer) *IntentMetrics {
	if reg == nil {
		return &IntentMetrics{}
	}
	created := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "intents",
		Name:      "created_total",
		Help:      "Intents created by flow and login requirement.",
	}, []string{"cta_kind", "requires_login"})
	resumed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "intents",
		Name:      "resume_outcomes_total",
		Help:      "Resume attempts by outcome.",
	}, []string{"outcome"})
	reg.MustRegister(created, resumed)
	return &IntentMetrics{created: created, resumed: resumed}
}

// ObserveCreated counts a persisted intent.
func (m *IntentMetrics) ObserveCreated(kind string, requiresLogin bool) {
	if m == nil || m.created == nil {
		return
	}
	login := "false"
	if requiresLogin {
		login = "true"
	}
	m.created.WithLabelValues(normalizeLabel(kind), login).Inc()
}

// ObserveResume counts a resume outcome.
func (m *IntentMetrics) ObserveResume(outcome string) {
	if m == nil || m.resumed == nil {
		return
	}
	m.resumed.WithLabelValues(normalizeLabel(outcome)).Inc()
}
