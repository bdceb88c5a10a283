package replace

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	candidatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "iprec_replace_candidates_total",
		Help: "Template splice candidates evaluated by operation and outcome",
	}, []string{"operation", "outcome"})

	passDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "iprec_replace_pass_duration_seconds",
		Help:    "Duration of descend and ascend passes in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 16),
	}, []string{"operation"})

	decisionsExplored = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "iprec_replace_decisions_explored_total",
		Help: "Decision branches explored by search mode",
	}, []string{"mode"})

	failureCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "iprec_replace_failure_cache_hits_total",
		Help: "Template versions skipped because they already failed at a vertex",
	})

	mappingSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "iprec_replace_mapping_size",
		Help:    "Mapped design vertices at the end of a session",
		Buckets: prometheus.ExponentialBuckets(1, 2, 16),
	})
)
