// Package metrics exposes Prometheus instruments for push delivery.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DeliveryMetrics records the outcome of push fan-out. A nil receiver or a
// value built without a registerer is a no-op, so callers never branch on it.
type DeliveryMetrics struct {
	sent     *prometheus.CounterVec
	failed   *prometheus.CounterVec
	pruned   prometheus.Counter
	records  *prometheus.CounterVec
	duration *prometheus.HistogramVec
	skipped  *prometheus.CounterVec
}

// NewDeliveryMetrics registers the delivery metrics on the provided registerer.
func NewDeliveryMetrics(reg prometheus.Registerer) *DeliveryMetrics {
	if reg == nil {
		return &DeliveryMetrics{}
	}
	sent := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "notifier",
		Name:      "push_sent_total",
		Help:      "Push messages accepted by the provider.",
	}, []string{"category"})
	failed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "notifier",
		Name:      "push_failed_total",
		Help:      "Push messages rejected by the provider, by error class.",
	}, []string{"category", "class"})
	pruned := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "notifier",
		Name:      "tokens_pruned_total",
		Help:      "Device tokens removed after the provider reported them invalid.",
	})
	records := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "notifier",
		Name:      "records_written_total",
		Help:      "Notification records persisted to recipient inboxes.",
	}, []string{"category"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "notifier",
		Name:      "delivery_duration_seconds",
		Help:      "Wall time of one delivery invocation.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"category"})
	skipped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "notifier",
		Name:      "recipients_skipped_total",
		Help:      "Recipients skipped before sending, by reason.",
	}, []string{"category", "reason"})
	reg.MustRegister(sent, failed, pruned, records, duration, skipped)
	return &DeliveryMetrics{
		sent:     sent,
		failed:   failed,
		pruned:   pruned,
		records:  records,
		duration: duration,
		skipped:  skipped,
	}
}

// IncSent counts one accepted push.
func (m *DeliveryMetrics) IncSent(category string) {
	if m == nil || m.sent == nil {
		return
	}
	m.sent.WithLabelValues(normalizeLabel(category)).Inc()
}

// IncFailed counts one rejected push.
func (m *DeliveryMetrics) IncFailed(category, class string) {
	if m == nil || m.failed == nil {
		return
	}
	m.failed.WithLabelValues(normalizeLabel(category), normalizeLabel(class)).Inc()
}

// IncPruned counts one deleted device token.
func (m *DeliveryMetrics) IncPruned() {
	if m == nil || m.pruned == nil {
		return
	}
	m.pruned.Inc()
}

// IncRecord counts one persisted notification record.
func (m *DeliveryMetrics) IncRecord(category string) {
	if m == nil || m.records == nil {
		return
	}
	m.records.WithLabelValues(normalizeLabel(category)).Inc()
}

// IncSkipped counts a recipient dropped before any send.
func (m *DeliveryMetrics) IncSkipped(category, reason string) {
	if m == nil || m.skipped == nil {
		return
	}
	m.skipped.WithLabelValues(normalizeLabel(category), normalizeLabel(reason)).Inc()
}

// ObserveDuration records the duration of one delivery invocation.
func (m *DeliveryMetrics) ObserveDuration(category string, d time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.WithLabelValues(normalizeLabel(category)).Observe(d.Seconds())
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
