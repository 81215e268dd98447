package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

var states = []string{"disconnected", "connecting", "subscribed", "processing"}

func TestDeliveryCounters(t *testing.T) {
	m := New(prometheus.NewRegistry(), states)

	m.ObserveDelivery("create", "processed", 0.2)
	m.ObserveDelivery("create", "processed", 0.3)
	m.ObserveDelivery("update", "failed", 0.1)

	if got := testutil.ToFloat64(m.deliveries.WithLabelValues("create", "processed")); got != 2 {
		t.Errorf("create/processed = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.deliveries.WithLabelValues("update", "failed")); got != 1 {
		t.Errorf("update/failed = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(m.processing); got != 2 {
		t.Errorf("processing series = %d, want 2", got)
	}
}

func TestPublishAndAckCounters(t *testing.T) {
	m := New(prometheus.NewRegistry(), states)

	m.Published(true)
	m.Published(false)
	m.Published(false)
	m.AckFailed("nack")
	m.Reconnect()

	if got := testutil.ToFloat64(m.publishes.WithLabelValues("failure")); got != 2 {
		t.Errorf("publish failures = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.publishes.WithLabelValues("success")); got != 1 {
		t.Errorf("publish successes = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ackErrors.WithLabelValues("nack")); got != 1 {
		t.Errorf("nack errors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.reconnects); got != 1 {
		t.Errorf("reconnects = %v, want 1", got)
	}
}

func TestSetStateIsExclusive(t *testing.T) {
	m := New(prometheus.NewRegistry(), states)

	m.SetState("connecting")
	m.SetState("subscribed")

	for _, s := range states {
		want := 0.0
		if s == "subscribed" {
			want = 1
		}
		if got := testutil.ToFloat64(m.consumerState.WithLabelValues(s)); got != want {
			t.Errorf("state %s = %v, want %v", s, got, want)
		}
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveDelivery("create", "processed", 1)
	m.ObserveScoring(1)
	m.AckFailed("ack")
	m.Reconnect()
	m.Published(true)
	m.SetState("subscribed")
}
