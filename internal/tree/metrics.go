package tree

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	linearizeTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cmtree_linearize_total",
		Help: "Number of comment tree linearizations performed",
	})

	linearizeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cmtree_linearize_duration_seconds",
		Help:    "Time spent linearizing a comment tree",
		Buckets: prometheus.ExponentialBuckets(0.00005, 4, 8),
	})

	linearizeItems = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cmtree_linearize_items",
		Help:    "Number of visible items produced per linearization",
		Buckets: prometheus.ExponentialBuckets(1, 4, 8),
	})

	supersededTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cmtree_linearize_superseded_total",
		Help: "Linearization results dropped because a newer snapshot arrived",
	})
)
