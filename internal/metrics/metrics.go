package metrics

import "github.com/prometheus/client_golang/prometheus"

// IntakeMetrics exposes counters/histograms for the call webhook.
type IntakeMetrics struct {
	outcomes *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

func NewIntakeMetrics(reg prometheus.Registerer) *IntakeMetrics {
	m := &IntakeMetrics{
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "callintake",
			Subsystem: "webhook",
			Name:      "outcomes_total",
			Help:      "Call webhook deliveries by outcome",
		}, []string{"outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "callintake",
			Subsystem: "webhook",
			Name:      "latency_seconds",
			Help:      "Latency of call webhook processing",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.outcomes, m.latency)
	return m
}

// ObserveOutcome records one processed delivery.
func (m *IntakeMetrics) ObserveOutcome(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(outcome).Inc()
	m.latency.WithLabelValues(outcome).Observe(seconds)
}
