package grounding

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// recommendations counts checks by recommendation
	recommendations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cogito_grounding_recommendations_total",
		Help: "Grounding checks by recommendation",
	}, []string{"recommendation"})

	// failOpens counts checks that failed open
	failOpens = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cogito_grounding_fail_open_total",
		Help: "Grounding validations that failed open",
	})

	// validationDuration tracks gate latency
	validationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cogito_grounding_validation_duration_seconds",
		Help:    "Grounding validation duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
	})

	// claimsPerResponse tracks how many claims drafts carry
	claimsPerResponse = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cogito_grounding_claims_per_response",
		Help:    "Claims extracted per draft response",
		Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
	})
)
