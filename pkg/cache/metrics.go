package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks fresh cache hits by layer
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coin_api_cache_hits_total",
			Help: "Total number of fresh coin API cache hits",
		},
		[]string{"layer"}, // "redis", "memory"
	)

	// CacheStaleHits tracks expired entries returned for revalidation
	CacheStaleHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coin_api_cache_stale_hits_total",
			Help: "Total number of expired cache entries returned for revalidation",
		},
		[]string{"layer"},
	)

	// CacheMisses tracks cache misses
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "coin_api_cache_misses_total",
			Help: "Total number of coin API cache misses",
		},
	)

	// CacheWrittenBytes tracks bytes written to the cache by layer
	CacheWrittenBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coin_api_cache_written_bytes_total",
			Help: "Total bytes written to the coin API cache",
		},
		[]string{"layer"},
	)

	// ConditionalRequestsSent tracks requests sent with If-None-Match or If-Modified-Since
	ConditionalRequestsSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "coin_api_conditional_requests_total",
			Help: "Total number of conditional requests sent",
		},
	)

	// NotModifiedResponses tracks 304 Not Modified responses
	NotModifiedResponses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "coin_api_304_responses_total",
			Help: "Total number of 304 Not Modified responses",
		},
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coin_api_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete"
	)
)
