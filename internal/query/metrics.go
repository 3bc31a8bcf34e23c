package query

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts pass activity. A nil *Metrics records nothing.
type Metrics struct {
	rewrites *prometheus.CounterVec
	errors   *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics creates the pass metrics and registers them with reg. A nil
// reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		rewrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "qexpand",
			Name:      "pass_rewrites_total",
			Help:      "Number of pass runs that changed the tree.",
		}, []string{"pass"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "qexpand",
			Name:      "pass_errors_total",
			Help:      "Number of pass runs that failed.",
		}, []string{"pass"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "qexpand",
			Name:      "pass_duration_seconds",
			Help:      "Time spent in a single pass run.",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 10),
		}, []string{"pass"}),
	}
	if reg != nil {
		reg.MustRegister(m.rewrites, m.errors, m.duration)
	}
	return m
}

func (m *Metrics) observe(pass string, d time.Duration, changed bool, err error) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(pass).Observe(d.Seconds())
	switch {
	case err != nil:
		m.errors.WithLabelValues(pass).Inc()
	case changed:
		m.rewrites.WithLabelValues(pass).Inc()
	}
}
