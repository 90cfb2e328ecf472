package pipeline

import "github.com/prometheus/client_golang/prometheus"

// Stage labels.
const (
	stageAllocate  = "allocate"
	stageTopo      = "topo"
	stageDeform    = "deform"
	stageConfigure = "configure"
	stageSimulate  = "simulate"
	stageRender    = "render"
	stageIndex     = "index"
	stagePublish   = "publish"
)

var (
	stageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tsunami_pipeline_stage_duration_seconds",
			Help:    "Duration of each run pipeline stage in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
		},
		[]string{"stage"},
	)

	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tsunami_runs_total",
			Help: "Total number of finished runs by template and final state.",
		},
		[]string{"template", "state"},
	)

	runsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tsunami_runs_in_flight",
			Help: "Number of runs currently executing.",
		},
	)
)

func init() {
	prometheus.MustRegister(stageDuration)
	prometheus.MustRegister(runsTotal)
	prometheus.MustRegister(runsInFlight)

	for _, s := range []string{stageAllocate, stageTopo, stageDeform, stageConfigure, stageSimulate, stageRender, stageIndex, stagePublish} {
		stageDuration.WithLabelValues(s)
	}
}
