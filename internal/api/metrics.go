package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	correctionsApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "review_corrections_applied_total",
		Help: "Corrections applied, by correction type",
	}, []string{"type"})

	correctionsUndone = promauto.NewCounter(prometheus.CounterOpts{
		Name: "review_corrections_undone_total",
		Help: "Corrections undone by their author",
	})

	votesCast = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "review_votes_cast_total",
		Help: "Votes cast, by item type",
	}, []string{"item_type"})

	commentsPosted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "review_comments_posted_total",
		Help: "Comments posted across all sessions",
	})

	feedLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "review_feed_assembly_seconds",
		Help:    "Time to assemble one feed page",
		Buckets: prometheus.DefBuckets,
	})
)
