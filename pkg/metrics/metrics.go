// Package metrics documents the Prometheus metrics of the coin catalog and
// exposes them over HTTP.
// All metrics are defined in their respective packages (client, cache,
// ratelimit, catalog, favorites, aggregator) to avoid circular dependencies.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the coin catalog.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Handler serves the registered metrics in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Metrics Documentation
//
// Quota Metrics (pkg/ratelimit):
//   - coin_api_requests_remaining (Gauge): Requests left in the current quota window
//   - coin_api_rate_limit_blocks_total (Counter): Requests blocked locally because the quota is exhausted
//   - coin_api_rate_limit_throttles_total (Counter): Requests delayed because the quota is low
//
// Cache Metrics (pkg/cache):
//   - coin_api_cache_hits_total{layer} (Counter): Fresh hits by layer (redis, memory)
//   - coin_api_cache_stale_hits_total{layer} (Counter): Expired entries returned for revalidation
//   - coin_api_cache_misses_total (Counter): Cache misses
//   - coin_api_cache_written_bytes_total{layer} (Counter): Bytes written by layer
//   - coin_api_conditional_requests_total (Counter): Requests sent with If-None-Match
//   - coin_api_304_responses_total (Counter): 304 Not Modified responses
//   - coin_api_cache_errors_total{operation} (Counter): Cache operation errors
//
// Request Metrics (pkg/client):
//   - coin_api_requests_total{endpoint, status} (Counter): Requests by endpoint and HTTP status
//   - coin_api_request_duration_seconds{endpoint} (Histogram): Request duration by endpoint
//   - coin_api_errors_total{class} (Counter): Errors by class
//   - coin_api_retries_total{error_class} (Counter): Retry attempts
//   - coin_api_retry_backoff_seconds{error_class} (Histogram): Backoff duration
//   - coin_api_retry_exhausted_total{error_class} (Counter): Requests that exhausted their retries
//
// Catalog Metrics (pkg/catalog):
//   - coin_catalog_pages_loaded_total (Counter): Listing pages appended
//   - coin_catalog_page_errors_total (Counter): Failed page loads
//   - coin_catalog_items_loaded (Gauge): Coins currently held by the catalog
//
// Favorites Metrics (pkg/favorites, pkg/aggregator):
//   - coin_favorites_count (Gauge): Favorite coins
//   - coin_favorites_persist_errors_total (Counter): Failed favorites writes
//   - coin_favorites_events_dropped_total (Counter): Change events dropped on full subscriber buffers
//   - coin_aggregator_refreshes_total{result} (Counter): Refreshes by result (ok, superseded, error)
//   - coin_aggregator_fetch_failures_total (Counter): Favorite detail fetches left out of the views
//   - coin_aggregator_refresh_duration_seconds (Histogram): Refresh duration
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(coin_api_cache_hits_total[5m])) /
//   (sum(rate(coin_api_cache_hits_total[5m])) + sum(rate(coin_api_cache_misses_total[5m])))
//
//   # Quota Status
//   coin_api_requests_remaining < 50
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(coin_api_request_duration_seconds_bucket[5m]))
//
//   # Share of favorites that failed to load
//   rate(coin_aggregator_fetch_failures_total[15m]) / rate(coin_aggregator_refreshes_total[15m])
