package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OutboxMetrics records publisher batches and per-event results.
type OutboxMetrics struct {
	batchDuration prometheus.Histogram
	published     *prometheus.CounterVec
	failed        *prometheus.CounterVec
	deadLettered  *prometheus.CounterVec
}

// NewOutboxMetrics registers the outbox publisher metrics on the provided registerer.
func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	batchDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "outbox_batch_duration_seconds",
		Help:    "Duration of outbox publish batches in seconds.",
		Buckets: prometheus.DefBuckets,
	})
	published := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_events_published_total",
		Help: "Outbox events published to the bus.",
	}, []string{"event_type"})
	failed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_events_failed_total",
		Help: "Outbox publish attempts that failed and will be retried.",
	}, []string{"event_type"})
	deadLettered := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_events_dead_lettered_total",
		Help: "Outbox events moved to the dead letter table.",
	}, []string{"reason"})
	reg.MustRegister(batchDuration, published, failed, deadLettered)
	return &OutboxMetrics{
		batchDuration: batchDuration,
		published:     published,
		failed:        failed,
		deadLettered:  deadLettered,
	}
}

// ObserveBatch records the duration of one publish batch.
func (o *OutboxMetrics) ObserveBatch(duration time.Duration) {
	if o == nil || o.batchDuration == nil {
		return
	}
	o.batchDuration.Observe(duration.Seconds())
}

// IncPublished counts a published event.
func (o *OutboxMetrics) IncPublished(eventType string) {
	if o == nil || o.published == nil {
		return
	}
	o.published.WithLabelValues(normalizeLabel(eventType)).Inc()
}

// IncFailed counts a retryable publish failure.
func (o *OutboxMetrics) IncFailed(eventType string) {
	if o == nil || o.failed == nil {
		return
	}
	o.failed.WithLabelValues(normalizeLabel(eventType)).Inc()
}

// IncDeadLettered counts an event moved to the DLQ.
func (o *OutboxMetrics) IncDeadLettered(reason string) {
	if o == nil || o.deadLettered == nil {
		return
	}
	o.deadLettered.WithLabelValues(normalizeLabel(reason)).Inc()
}
