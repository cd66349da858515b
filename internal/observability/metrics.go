package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	QuotesComputedTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "carpool", Name: "price_quotes_total", Help: "Total suggested price quotes computed"})
	FareSplitsTotal     = promauto.NewCounter(prometheus.CounterOpts{Namespace: "carpool", Name: "fare_splits_total", Help: "Total fare split previews computed"})
	RefundPreviewsTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "carpool", Name: "refund_previews_total", Help: "Total cancellation refund previews computed"})
	TripCacheHits       = promauto.NewCounter(prometheus.CounterOpts{Namespace: "carpool", Name: "trip_cache_hits_total", Help: "Trip estimate cache hits"})
	TripCacheMisses     = promauto.NewCounter(prometheus.CounterOpts{Namespace: "carpool", Name: "trip_cache_misses_total", Help: "Trip estimate cache misses"})

	TransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "carpool", Name: "transitions_total", Help: "State transitions applied"},
		[]string{"entity", "from", "to"},
	)
	TransitionConflicts = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "carpool", Name: "transition_conflicts_total", Help: "Transitions rejected because the entity state moved on"},
		[]string{"entity"},
	)
	AvailabilitySyncFailures = promauto.NewCounter(
		prometheus.CounterOpts{Namespace: "carpool", Name: "availability_sync_failures_total", Help: "Best-effort open/full availability syncs that did not apply"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "carpool", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "carpool",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
