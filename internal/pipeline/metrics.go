package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "outreach_pipeline_runs_total",
		Help: "Research runs by result (ok or failure kind).",
	}, []string{"result"})

	runDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "outreach_pipeline_run_duration_seconds",
		Help:    "End-to-end research run latency.",
		Buckets: []float64{1, 5, 10, 20, 30, 60, 120, 300},
	})

	stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "outreach_pipeline_stage_duration_seconds",
		Help:    "Stage latency by stage and status.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	}, []string{"stage", "status"})

	transitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "outreach_pipeline_transitions_total",
		Help: "State machine transitions by target status.",
	}, []string{"to"})

	guardRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "outreach_pipeline_guard_rejections_total",
		Help: "Candidate sets emptied by the evidence-sufficiency guard.",
	}, []string{"checkpoint"})

	revalidations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "outreach_pipeline_revalidations_total",
		Help: "Revalidation outcomes: not_needed, replaced, kept.",
	}, []string{"outcome"})

	tokensTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "outreach_pipeline_tokens_total",
		Help: "Model tokens consumed by direction.",
	}, []string{"direction"})

	costTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "outreach_pipeline_cost_usd_total",
		Help: "Estimated model spend in USD.",
	})

	persistErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "outreach_pipeline_persist_errors_total",
		Help: "Swallowed persistence failures by operation.",
	}, []string{"op"})
)
