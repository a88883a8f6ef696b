package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ScrapeRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eventfed_scrape_runs_total",
		Help: "Total number of scrape runs, labelled by trigger and status.",
	}, []string{"trigger", "status"})

	ScrapeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "eventfed_scrape_duration_seconds",
		Help:    "Wall-clock duration of scrape runs in seconds.",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
	}, []string{"trigger"})

	ScrapeEvents = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "eventfed_scrape_events",
		Help: "Number of unique events returned by the most recent successful scrape.",
	})

	EventsStored = promauto.NewCounter(prometheus.CounterOpts{
		Name: "eventfed_events_stored_total",
		Help: "Total number of previously unseen events written to the store.",
	})

	InstagramRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eventfed_instagram_requests_total",
		Help: "Total number of Instagram Graph API requests, labelled by status.",
	}, []string{"status"})
)

// Run outcome labels.
const (
	StatusOK    = "ok"
	StatusError = "error"
)
