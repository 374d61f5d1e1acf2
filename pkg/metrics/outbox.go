package metrics

import "github.com/prometheus/client_golang/prometheus"

// OutboxMetrics counts what the publisher did with each outbox row.
type OutboxMetrics struct {
	rows    *prometheus.CounterVec
	batches prometheus.Histogram
}

// NewOutboxMetrics registers the publisher metrics on reg. A nil registerer
// yields a no-op recorder.
func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	rows := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "outbox",
		Name:      "rows_total",
		Help:      "Outbox rows handled by event type and result.",
	}, []string{"event_type", "result"})
	batches := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "outbox",
		Name:      "batch_rows",
		Help:      "Rows claimed per non-empty publish batch.",
		Buckets:   []float64{1, 5, 10, 25, 50, 100},
	})
	reg.MustRegister(rows, batches)
	return &OutboxMetrics{rows: rows, batches: batches}
}

// ObserveRow counts one row. result is published, retry, non_retryable or
// max_attempts.
func (m *OutboxMetrics) ObserveRow(eventType, result string) {
	if m == nil || m.rows == nil {
		return
	}
	m.rows.WithLabelValues(normalizeLabel(eventType), normalizeLabel(result)).Inc()
}

// ObserveBatch records the size of a non-empty batch.
func (m *OutboxMetrics) ObserveBatch(rows int) {
	if m == nil || m.batches == nil {
		return
	}
	m.batches.Observe(float64(rows))
}
