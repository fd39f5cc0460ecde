// Package metrics holds the Prometheus collectors exported by docqa.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "docqa"

var (
	RerankFallbackTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rerank",
			Name:      "fallback_total",
			Help:      "Rerank calls answered with the combined-score fallback",
		},
		[]string{"reason"},
	)

	RerankDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rerank",
			Name:      "duration_seconds",
			Help:      "Rerank provider latency in seconds",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2, 5},
		},
	)

	RetrievalDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "duration_seconds",
			Help:      "Retrieval latency in seconds",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"mode"},
	)

	DocumentRetrievalFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "document_failures_total",
			Help:      "Per-document retrievals excluded from a multi-document answer",
		},
	)

	StreamOutcomeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "outcome_total",
			Help:      "Answer streams by terminal outcome",
		},
		[]string{"outcome"},
	)

	ConfidenceTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "answer",
			Name:      "confidence_total",
			Help:      "Answers by confidence level",
		},
		[]string{"level"},
	)

	EmbeddingCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "embedding",
			Name:      "cache_hits_total",
			Help:      "Embedding cache hits by tier",
		},
		[]string{"tier"},
	)

	JobRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "job",
			Name:      "runs_total",
			Help:      "Scheduled job runs by job and result",
		},
		[]string{"job", "result"},
	)
)
