package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus collectors for the ingestion core. Queue and worker gauges are
// registered as GaugeFuncs at server wiring, where the engine exists.
var (
	JobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "paperbase",
		Name:      "jobs_total",
		Help:      "Terminal jobs by status.",
	}, []string{"status"})

	JobDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "paperbase",
		Name:      "job_duration_seconds",
		Help:      "Wall time from processing start to terminal state.",
		Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
	})

	StageRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "paperbase",
		Name:      "stage_runs_total",
		Help:      "Pipeline stage executions by outcome.",
	}, []string{"stage", "outcome"})

	ErrorsByKind = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "paperbase",
		Name:      "errors_total",
		Help:      "Classified errors by kind.",
	}, []string{"kind"})

	DuplicatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "paperbase",
		Name:      "duplicates_total",
		Help:      "Duplicate uploads resolved, by detection level.",
	}, []string{"level"})
)

// RegisterQueueGauges wires live queue metrics from the engine.
func RegisterQueueGauges(depth, active func() float64) {
	promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "paperbase",
		Name:      "queue_depth",
		Help:      "Jobs waiting in the priority queue.",
	}, depth)
	promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "paperbase",
		Name:      "active_jobs",
		Help:      "Jobs currently held by workers.",
	}, active)
}
