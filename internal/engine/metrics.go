package engine

import (
	"time"

	"github.com/leapstack-labs/leapmeta/pkg/core"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the orchestrator's prometheus collectors.
type Metrics struct {
	attempts *prometheus.CounterVec
	steps    *prometheus.CounterVec
	seconds  *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them on reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leapmeta",
			Name:      "step_attempts_total",
			Help:      "Step attempts by dataset and outcome.",
		}, []string{"dataset", "status"}),
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leapmeta",
			Name:      "steps_total",
			Help:      "Terminal step outcomes.",
		}, []string{"status", "skip_kind"}),
		seconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "leapmeta",
			Name:      "step_duration_seconds",
			Help:      "Wall time of executed steps including retries.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"dataset"}),
	}
	if reg != nil {
		reg.MustRegister(m.attempts, m.steps, m.seconds)
	}
	return m
}

func (m *Metrics) attempt(dataset string, status core.StepStatus) {
	m.attempts.WithLabelValues(dataset, string(status)).Inc()
}

func (m *Metrics) step(status core.StepStatus, kind core.SkipKind) {
	m.steps.WithLabelValues(string(status), string(kind)).Inc()
}

func (m *Metrics) duration(dataset string, d time.Duration) {
	m.seconds.WithLabelValues(dataset).Observe(d.Seconds())
}
