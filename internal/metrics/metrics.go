package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collectors for the live tracking subsystem.
var (
	ReportsIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracking_reports_ingested_total",
		Help: "Number of accepted vehicle location reports.",
	})

	LiveQueries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracking_live_queries_total",
		Help: "Number of live snapshot queries served.",
	})

	BroadcastsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracking_broadcasts_total",
		Help: "Number of vehicle updates emitted to push rooms.",
	})

	GeometryCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracking_geometry_cache_hits_total",
		Help: "Geometry cache lookups served from the hot store.",
	})

	GeometryCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracking_geometry_cache_misses_total",
		Help: "Geometry cache lookups that loaded from durable storage.",
	})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tracking_http_requests_total",
		Help: "HTTP requests by method, path and status.",
	}, []string{"method", "path", "status"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tracking_http_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})
)
