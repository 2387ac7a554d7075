// Package cache provides HTTP response caching for the coin API client.
//
// Features:
//
// - Freshness from Cache-Control max-age or Expires, with a fallback TTL
// - ETag support for conditional requests (If-None-Match)
// - Last-Modified support (If-Modified-Since)
// - Expired entries are kept for a grace period so they can be revalidated
// - Redis and in-memory backends
// - Prometheus metrics for observability
//
// # Basic Usage
//
//	manager := cache.NewManager(cache.NewRedisBackend(redisClient))
//
//	key := cache.Key{
//		Endpoint:    "/v2/coins",
//		QueryParams: url.Values{"limit": []string{"20"}, "offset": []string{"0"}},
//	}
//
//	entry, err := manager.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// fetch from the API
//	}
//
// Without Redis, use cache.NewMemoryBackend().
//
// # Conditional Requests
//
//	if entry.Stale() && cache.ShouldMakeConditionalRequest(entry) {
//		cache.AddConditionalHeaders(req, entry)
//		// a 304 reply means the cached body is still valid
//	}
//
// # Metrics
//
//   - coin_api_cache_hits_total{layer} - Fresh cache hits
//   - coin_api_cache_stale_hits_total{layer} - Expired entries returned for revalidation
//   - coin_api_cache_misses_total - Cache misses
//   - coin_api_cache_written_bytes_total{layer} - Bytes written
//   - coin_api_conditional_requests_total - Conditional requests sent
//   - coin_api_304_responses_total - Conditional request successes
//   - coin_api_cache_errors_total{operation} - Cache operation errors
//
// The cache only holds short-lived HTTP responses. It is not an offline copy
// of the catalog.
package cache
