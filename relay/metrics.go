package relay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides Prometheus-compatible metrics for relay monitoring.
//
// Metrics exposed (all namespaced with "sqlrelay_"):
//
//  1. submissions_total (counter): statements submitted.
//     Labels: mode (standard/singleton), callback (true/false).
//
//  2. completions_total (counter): completion notifications resolved.
//     Labels: outcome (FINISHED/FAILED).
//
//  3. dropped_notifications_total (counter): notifications for statements
//     not minted by this integration, dropped as expected no-ops.
//
//  4. duplicate_deliveries_total (counter): outcome deliveries where the
//     workflow task had already been resolved (benign duplicates).
//
//  5. reaped_records_total (counter): expired correlation records deleted
//     by the background reaper.
//
//  6. request_latency_ms (histogram): request handling duration.
//     Labels: route.
//
// Thread-safe; Prometheus collectors handle their own synchronization.
// All recording methods are nil-safe so a relay without metrics pays no
// conditional cost at call sites.
type Metrics struct {
	submissions          *prometheus.CounterVec
	completions          *prometheus.CounterVec
	droppedNotifications prometheus.Counter
	duplicateDeliveries  prometheus.Counter
	reapedRecords        prometheus.Counter
	requestLatency       *prometheus.HistogramVec
}

// NewMetrics creates and registers all relay metrics with the provided
// Prometheus registry. Pass prometheus.DefaultRegisterer for the global
// registry, or a dedicated registry for isolation:
//
//	registry := prometheus.NewRegistry()
//	metrics := relay.NewMetrics(registry)
//	http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		submissions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sqlrelay",
			Name:      "submissions_total",
			Help:      "Statements submitted for asynchronous execution.",
		}, []string{"mode", "callback"}),
		completions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sqlrelay",
			Name:      "completions_total",
			Help:      "Completion notifications resolved to a workflow task.",
		}, []string{"outcome"}),
		droppedNotifications: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "sqlrelay",
			Name:      "dropped_notifications_total",
			Help:      "Notifications for untracked statements, dropped as no-ops.",
		}),
		duplicateDeliveries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "sqlrelay",
			Name:      "duplicate_deliveries_total",
			Help:      "Outcome deliveries to already-resolved workflow tasks.",
		}),
		reapedRecords: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "sqlrelay",
			Name:      "reaped_records_total",
			Help:      "Expired correlation records deleted by the reaper.",
		}),
		requestLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "sqlrelay",
			Name:      "request_latency_ms",
			Help:      "Request handling duration in milliseconds.",
			Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000},
		}, []string{"route"}),
	}
}

// RecordSubmission increments the submission counter.
func (m *Metrics) RecordSubmission(singleton, callback bool) {
	if m == nil {
		return
	}
	mode := "standard"
	if singleton {
		mode = "singleton"
	}
	cb := "false"
	if callback {
		cb = "true"
	}
	m.submissions.WithLabelValues(mode, cb).Inc()
}

// RecordCompletion increments the completion counter for an outcome.
func (m *Metrics) RecordCompletion(outcome string) {
	if m == nil {
		return
	}
	m.completions.WithLabelValues(outcome).Inc()
}

// RecordDroppedNotification counts an untracked-statement drop.
func (m *Metrics) RecordDroppedNotification() {
	if m == nil {
		return
	}
	m.droppedNotifications.Inc()
}

// RecordDuplicateDelivery counts a benign already-resolved delivery.
func (m *Metrics) RecordDuplicateDelivery() {
	if m == nil {
		return
	}
	m.duplicateDeliveries.Inc()
}

// RecordReapedRecords counts records deleted by the reaper.
func (m *Metrics) RecordReapedRecords(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.reapedRecords.Add(float64(n))
}

// ObserveRequestLatency records request handling duration for a route.
func (m *Metrics) ObserveRequestLatency(route string, ms float64) {
	if m == nil {
		return
	}
	m.requestLatency.WithLabelValues(route).Observe(ms)
}
