package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Fetch metrics
var (
	// PageFetches tracks thread page requests by outcome (success/failure)
	PageFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "threadmood_page_fetches_total",
			Help: "Total thread page fetches by outcome",
		},
		[]string{"outcome"},
	)

	// FetchRetries tracks retried page requests
	FetchRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "threadmood_fetch_retries_total",
			Help: "Total page fetch retries",
		},
	)

	// FetchDuration tracks page fetch latency in seconds, retries included
	FetchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "threadmood_fetch_duration_seconds",
			Help:    "Page fetch duration in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)
)

// Scoring metrics
var (
	// PostsScored tracks posts that were dated and scored
	PostsScored = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "threadmood_posts_scored_total",
			Help: "Total posts scored",
		},
	)

	// PostsSkipped tracks posts dropped because their date was unrecognized
	PostsSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "threadmood_posts_skipped_total",
			Help: "Total posts skipped due to an unrecognized date",
		},
	)

	// Runs tracks completed runs by status (succeeded/failed)
	Runs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "threadmood_runs_total",
			Help: "Total scrape runs by status",
		},
		[]string{"status"},
	)
)
