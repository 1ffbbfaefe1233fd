package search

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// searchRequests counts tool searches by provider and result.
	searchRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "outreach_search_requests_total",
		Help: "Search tool calls by provider and result",
	}, []string{"provider", "result"})

	// searchDuration tracks provider latency.
	searchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "outreach_search_duration_seconds",
		Help:    "Search provider latency in seconds",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
	}, []string{"provider"})

	// searchCache counts cache lookups by result.
	searchCache = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "outreach_search_cache_total",
		Help: "Search cache lookups by result",
	}, []string{"result"})
)
