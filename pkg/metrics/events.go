package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// EventMetrics records outbox publishing and consumer activity.
type EventMetrics struct {
	published     *prometheus.CounterVec
	publishErrors *prometheus.CounterVec
	consumed      *prometheus.CounterVec
	duplicates    prometheus.Counter
	notifications *prometheus.CounterVec
	batchDuration prometheus.Histogram
}

// NewEventMetrics registers the eventing metrics on the provided registerer.
func NewEventMetrics(reg prometheus.Registerer) *EventMetrics {
	if reg == nil {
		return &EventMetrics{}
	}
	published := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_published_total",
		Help: "Outbox events published by event type.",
	}, []string{"event_type"})
	publishErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_publish_errors_total",
		Help: "Outbox publish failures by event type.",
	}, []string{"event_type"})
	consumed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "domain_events_consumed_total",
		Help: "Domain events handled by the worker, by event type.",
	}, []string{"event_type"})
	duplicates := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "domain_events_duplicate_total",
		Help: "Events skipped by the idempotency guard.",
	})
	notifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_created_total",
		Help: "Notifications written by type.",
	}, []string{"type"})
	batchDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "outbox_batch_duration_seconds",
		Help:    "Duration of outbox publish batches.",
		Buckets: prometheus.DefBuckets,
	})
	reg.MustRegister(published, publishErrors, consumed, duplicates, notifications, batchDuration)
	return &EventMetrics{
		published:     published,
		publishErrors: publishErrors,
		consumed:      consumed,
		duplicates:    duplicates,
		notifications: notifications,
		batchDuration: batchDuration,
	}
}

// IncPublished counts a delivered outbox row.
func (m *EventMetrics) IncPublished(eventType string) {
	if m == nil || m.published == nil {
		return
	}
	m.published.WithLabelValues(normalizeLabel(eventType)).Inc()
}

// IncPublishError counts a failed publish attempt.
func (m *EventMetrics) IncPublishError(eventType string) {
	if m == nil || m.publishErrors == nil {
		return
	}
	m.publishErrors.WithLabelValues(normalizeLabel(eventType)).Inc()
}

// IncConsumed counts a handled domain event.
func (m *EventMetrics) IncConsumed(eventType string) {
	if m == nil || m.consumed == nil {
		return
	}
	m.consumed.WithLabelValues(normalizeLabel(eventType)).Inc()
}

// IncDuplicate counts an idempotency skip.
func (m *EventMetrics) IncDuplicate() {
	if m == nil || m.duplicates == nil {
		return
	}
	m.duplicates.Inc()
}

// IncNotification counts a written notification.
func (m *EventMetrics) IncNotification(notificationType string) {
	if m == nil || m.notifications == nil {
		return
	}
	m.notifications.WithLabelValues(normalizeLabel(notificationType)).Inc()
}

// ObserveBatchDuration records how long a publish batch took.
func (m *EventMetrics) ObserveBatchDuration(d time.Duration) {
	if m == nil || m.batchDuration == nil {
		return
	}
	m.batchDuration.Observe(d.Seconds())
}
