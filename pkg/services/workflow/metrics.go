package workflow

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	outcomeApplied = "applied"
	outcomeEmpty   = "empty"
	outcomeInvalid = "invalid"
	outcomeFailed  = "failed"
)

// Metrics records apply-labels outcomes. A nil *Metrics is valid and records nothing.
type Metrics struct {
	submissions *prometheus.CounterVec
	duration    prometheus.Histogram
}

// NewMetrics creates the workflow collectors and registers them with reg when
// reg is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cleansing",
			Name:      "apply_labels_total",
			Help:      "Apply-labels submissions by outcome.",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "cleansing",
			Name:      "apply_labels_duration_seconds",
			Help:      "Time from apply to a terminal outcome.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg != nil {
		reg.MustRegister(m.submissions, m.duration)
	}
	return m
}

func (m *Metrics) observe(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(outcome).Inc()
	m.duration.Observe(d.Seconds())
}
