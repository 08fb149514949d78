// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grimoire_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "grimoire_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	RatingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grimoire_ratings_total",
			Help: "Rating attempts by outcome.",
		},
		[]string{"outcome"},
	)

	ImageProcessingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "grimoire_image_processing_duration_seconds",
			Help:    "Time spent resizing and storing uploaded covers.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"status"},
	)

	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "grimoire_cache_hits_total",
			Help: "Leaderboard cache hits.",
		},
	)

	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "grimoire_cache_misses_total",
			Help: "Leaderboard cache misses.",
		},
	)

	RateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "grimoire_rate_limited_total",
			Help: "Requests rejected by the rate limiter.",
		},
	)
)

func RecordHTTPRequest(method, route, status string, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, route, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

func RecordRating(outcome string) {
	RatingsTotal.WithLabelValues(outcome).Inc()
}

func RecordImageProcessing(status string, duration time.Duration) {
	ImageProcessingDuration.WithLabelValues(status).Observe(duration.Seconds())
}

func RecordCacheHit() {
	CacheHits.Inc()
}

func RecordCacheMiss() {
	CacheMisses.Inc()
}

func RecordRateLimited() {
	RateLimited.Inc()
}
