package relay

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.RecordSubmission(true, true)
	m.RecordCompletion("FINISHED")
	m.RecordDroppedNotification()
	m.RecordDuplicateDelivery()
	m.RecordReapedRecords(3)
	m.ObserveRequestLatency("execute_statement", 12)
}

func TestMetrics_Collects(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	m.RecordSubmission(false, true)
	m.RecordCompletion("FAILED")
	m.RecordDroppedNotification()
	m.RecordDuplicateDelivery()
	m.RecordReapedRecords(2)
	m.RecordReapedRecords(0)
	m.ObserveRequestLatency("describeStatement", 3)

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	got := map[string]bool{}
	for _, f := range families {
		got[f.GetName()] = true
	}
	for _, name := range []string{
		"sqlrelay_submissions_total",
		"sqlrelay_completions_total",
		"sqlrelay_dropped_notifications_total",
		"sqlrelay_duplicate_deliveries_total",
		"sqlrelay_reaped_records_total",
		"sqlrelay_request_latency_ms",
	} {
		if !got[name] {
			t.Errorf("metric family %s not registered", name)
		}
	}
}
