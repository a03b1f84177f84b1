package percy

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the counters a controller maintains. They are registered on
// the registerer passed in Options; a nil registerer leaves them
// unregistered.
type Metrics struct {
	Transitions   *prometheus.CounterVec
	JobsSubmitted *prometheus.CounterVec
	JobFailures   *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "percy",
			Name:      "lifecycle_transitions_total",
			Help:      "Lifecycle state transitions of the Percy process.",
		}, []string{"from", "to"}),
		JobsSubmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "percy",
			Name:      "jobs_submitted_total",
			Help:      "Jobs queued for submission to the Percy process.",
		}, []string{"kind"}),
		JobFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "percy",
			Name:      "job_failures_total",
			Help:      "Jobs the Percy process rejected or that could not be delivered.",
		}, []string{"kind"}),
	}
}
