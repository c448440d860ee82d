package search

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jobsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "soundscene_jobs_created_total",
		Help: "Search jobs accepted for processing.",
	})
	jobsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "soundscene_jobs_completed_total",
		Help: "Search jobs that reached done.",
	})
	jobsErrored = promauto.NewCounter(prometheus.CounterOpts{
		Name: "soundscene_jobs_errored_total",
		Help: "Search jobs that ended in error.",
	})
	jobsCanceled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "soundscene_jobs_canceled_total",
		Help: "Search jobs canceled before completion.",
	})
	refinementsRequested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "soundscene_refinements_requested_total",
		Help: "User refinement requests accepted.",
	})
	passesPerRun = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "soundscene_passes_per_run",
		Help:    "Translator passes used by one controller invocation.",
		Buckets: prometheus.LinearBuckets(1, 1, 6),
	})
)
