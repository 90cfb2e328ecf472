package topo

import "github.com/prometheus/client_golang/prometheus"

// Cache request outcomes.
const (
	resultHit   = "hit"
	resultMiss  = "miss"
	resultError = "error"
)

var (
	cacheRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tsunami_topo_cache_requests_total",
			Help: "Total number of topography cache lookups by outcome.",
		},
		[]string{"result"},
	)

	fetchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tsunami_topo_fetch_seconds",
			Help:    "Duration of upstream elevation fetches including the grid write, in seconds.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)
)

func init() {
	prometheus.MustRegister(cacheRequestsTotal)
	prometheus.MustRegister(fetchDuration)

	for _, r := range []string{resultHit, resultMiss, resultError} {
		cacheRequestsTotal.WithLabelValues(r)
	}
}
