// Package metrics holds the Prometheus collectors for the consumer loop and
// the result publisher.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "toxicity_score"

// Metrics is safe for concurrent use. A nil *Metrics records nothing.
type Metrics struct {
	deliveries    *prometheus.CounterVec
	ackErrors     *prometheus.CounterVec
	processing    *prometheus.HistogramVec
	scoring       prometheus.Histogram
	reconnects    prometheus.Counter
	publishes     *prometheus.CounterVec
	consumerState *prometheus.GaugeVec
	knownStates   []string
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer, states []string) *Metrics {
	m := &Metrics{
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Deliveries handled, by operation and outcome status",
		}, []string{"operation", "status"}),
		ackErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ack_errors_total",
			Help:      "Failed ack or nack calls",
		}, []string{"action"}),
		processing: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "processing_duration_seconds",
			Help:      "Time from delivery to ack decision",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 2.5, 5, 10, 15, 30, 60},
		}, []string{"operation"}),
		scoring: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scoring_duration_seconds",
			Help:      "Time spent in the scorer",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 15, 30},
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnects_total",
			Help:      "Broker reconnect attempts after a transport failure",
		}),
		publishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outcome_publishes_total",
			Help:      "Outcome events published, by result",
		}, []string{"result"}),
		consumerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "consumer_state",
			Help:      "1 for the current consumer loop state, 0 otherwise",
		}, []string{"state"}),
		knownStates: states,
	}

	reg.MustRegister(m.deliveries, m.ackErrors, m.processing, m.scoring, m.reconnects, m.publishes, m.consumerState)
	for _, s := range states {
		m.consumerState.WithLabelValues(s).Set(0)
	}
	return m
}

func (m *Metrics) ObserveDelivery(operation, status string, seconds float64) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(operation, status).Inc()
	m.processing.WithLabelValues(operation).Observe(seconds)
}

func (m *Metrics) ObserveScoring(seconds float64) {
	if m == nil {
		return
	}
	m.scoring.Observe(seconds)
}

// AckFailed counts an ack or nack that the broker did not accept.
func (m *Metrics) AckFailed(action string) {
	if m == nil {
		return
	}
	m.ackErrors.WithLabelValues(action).Inc()
}

func (m *Metrics) Reconnect() {
	if m == nil {
		return
	}
	m.reconnects.Inc()
}

// Published counts one outcome publish; ok false counts a swallowed failure.
func (m *Metrics) Published(ok bool) {
	if m == nil {
		return
	}
	result := "success"
	if !ok {
		result = "failure"
	}
	m.publishes.WithLabelValues(result).Inc()
}

// SetState marks state as current and clears the others.
func (m *Metrics) SetState(state string) {
	if m == nil {
		return
	}
	for _, s := range m.knownStates {
		if s != state {
			m.consumerState.WithLabelValues(s).Set(0)
		}
	}
	m.consumerState.WithLabelValues(state).Set(1)
}
