package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// turnsTotal counts finished turns by outcome
	turnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cogito_turns_total",
		Help: "Turns by outcome (ambiguous, success, failure, error)",
	}, []string{"outcome"})

	// stageDuration tracks per-stage latency
	stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cogito_stage_duration_seconds",
		Help:    "Pipeline stage duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
	}, []string{"stage"})

	// outputsTotal counts final outputs by grounding recommendation
	outputsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cogito_outputs_total",
		Help: "Final outputs by grounding recommendation",
	}, []string{"recommendation"})
)
