package geoclaw

import "github.com/prometheus/client_golang/prometheus"

const (
	resultSuccess  = "success"
	resultFailure  = "failure"
	resultCanceled = "canceled"
	resultNotFound = "not_found"
)

var (
	simulationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tsunami_geoclaw_invocations_total",
			Help: "Total number of simulation engine invocations by result.",
		},
		[]string{"result"},
	)

	simulationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tsunami_geoclaw_duration_seconds",
			Help:    "Wall time of simulation engine invocations in seconds.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 14),
		},
	)
)

func init() {
	prometheus.MustRegister(simulationsTotal)
	prometheus.MustRegister(simulationDuration)

	for _, r := range []string{resultSuccess, resultFailure, resultCanceled, resultNotFound} {
		simulationsTotal.WithLabelValues(r)
	}
}
