// Package client provides the coin API HTTP client with rate limiting,
// caching, and error handling.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/coin-catalog/pkg/cache"
	"github.com/Sternrassler/coin-catalog/pkg/coin"
	"github.com/Sternrassler/coin-catalog/pkg/ratelimit"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Request headers set on every call.
const (
	HeaderAccessToken = "x-access-token"
	HeaderRequestID   = "X-Request-ID"
)

// DefaultBaseURL is the public coin API.
const DefaultBaseURL = "https://api.coinranking.com/v2"

// maxErrorBody bounds how much of an error response is read for its message.
const maxErrorBody = 64 << 10

// Prometheus metrics for coin API client operations.
var (
	coinAPIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coin_api_requests_total",
		Help: "Total coin API requests by endpoint and status",
	}, []string{"endpoint", "status"})

	coinAPIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "coin_api_request_duration_seconds",
		Help:    "Coin API request duration in seconds by endpoint",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	coinAPIErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coin_api_errors_total",
		Help: "Total coin API errors by class",
	}, []string{"class"})
)

// Client is the coin API client.
type Client struct {
	httpClient  *http.Client
	baseURL     *url.URL
	rateLimiter *ratelimit.Tracker
	cache       *cache.Manager
	cacheTTL    time.Duration
	retry       RetryConfig
	config      Config
	logger      zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL of the API, including the version path.
	BaseURL string

	// APIKey is sent as the x-access-token header (REQUIRED).
	APIKey string

	// UserAgent header. Format: "AppName/Version (contact)"
	UserAgent string

	// Redis enables the shared response cache and rate limit state.
	// Optional: without it both live in process memory.
	Redis *redis.Client

	// Caching
	// Fallback TTL for responses without freshness headers. Without Redis a
	// value of 0 disables the response cache.
	MemoryCacheTTL time.Duration

	// Retry
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// Timeout per HTTP attempt.
	Timeout time.Duration

	// ThrottleDelay is the wait applied while the quota is low.
	ThrottleDelay time.Duration
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(apiKey string) Config {
	return Config{
		BaseURL:        DefaultBaseURL,
		APIKey:         apiKey,
		UserAgent:      "coin-catalog/1.0",
		MemoryCacheTTL: 60 * time.Second,
		MaxRetries:     2,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
		Timeout:        15 * time.Second,
		ThrottleDelay:  ratelimit.DefaultThrottleDelay,
	}
}

// New creates a new coin API client.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url must be absolute (got %q)", cfg.BaseURL)
	}
	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("max_retries must be >= 0 (got %d)", cfg.MaxRetries)
	}
	if cfg.InitialBackoff < 0 || cfg.MaxBackoff < 0 {
		return nil, fmt.Errorf("backoff durations must not be negative")
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "coin-catalog/1.0"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}

	logger := log.With().Str("component", "coin-client").Logger()

	var (
		stateStore   ratelimit.StateStore
		cacheManager *cache.Manager
	)
	cacheTTL := cfg.MemoryCacheTTL
	if cfg.Redis != nil {
		stateStore = ratelimit.NewRedisStore(cfg.Redis)
		cacheManager = cache.NewManager(cache.NewRedisBackend(cfg.Redis))
		if cacheTTL <= 0 {
			cacheTTL = cache.DefaultTTL
		}
	} else if cacheTTL > 0 {
		cacheManager = cache.NewManager(cache.NewMemoryBackend())
	}

	rateLimiter := ratelimit.NewTracker(stateStore, logger)
	rateLimiter.SetThrottleDelay(cfg.ThrottleDelay)

	retry := DefaultRetryConfig()
	retry.MaxAttempts = cfg.MaxRetries + 1
	retry.InitialBackoff = cfg.InitialBackoff
	if cfg.MaxBackoff > 0 {
		retry.MaxBackoff = cfg.MaxBackoff
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:     base,
		rateLimiter: rateLimiter,
		cache:       cacheManager,
		cacheTTL:    cacheTTL,
		retry:       retry,
		config:      cfg,
		logger:      logger,
	}, nil
}

// Do performs an HTTP request with rate limiting, caching, and error handling.
// Responses with status >= 400 are returned as *APIError; the caller owns the
// body of any returned response.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	endpoint := endpointLabel(req.URL.Path)

	startTime := time.Now()
	defer func() {
		coinAPIRequestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	// Step 1: Check Rate Limit
	allowed, err := c.rateLimiter.ShouldAllowRequest(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &APIError{Class: ErrorClassNetwork, Message: "cancelled while throttled", Err: err}
		}
		// A broken state store must not take the client down with it
		c.logger.Warn().Err(err).Msg("Rate limit check failed, allowing request")
	} else if !allowed {
		c.logger.Warn().
			Str("endpoint", endpoint).
			Msg("Request blocked by rate limiter")
		coinAPIRequestsTotal.WithLabelValues(endpoint, "rate_limited").Inc()
		coinAPIErrorsTotal.WithLabelValues(string(ErrorClassRateLimit)).Inc()
		return nil, &APIError{Class: ErrorClassRateLimit, Message: "blocked by local quota tracker"}
	}

	// Step 2: Check Cache
	cacheKey := cache.KeyFromURL(req.URL)
	var cachedEntry *cache.Entry
	if c.cache != nil && req.Method == http.MethodGet {
		cachedEntry, err = c.cache.Get(ctx, cacheKey)
		if err != nil && !errors.Is(err, cache.ErrCacheMiss) {
			c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("Cache get error")
		}
	}

	if cachedEntry != nil && !cachedEntry.Stale() {
		c.logger.Debug().
			Str("endpoint", endpoint).
			Dur("ttl", cachedEntry.TTL()).
			Dur("age", cachedEntry.Age()).
			Msg("Serving fresh cache entry")
		coinAPIRequestsTotal.WithLabelValues(endpoint, "cache_hit").Inc()
		return cache.EntryToResponse(cachedEntry, req), nil
	}

	// Step 3: Make Conditional Request if a stale entry can be revalidated
	if cache.ShouldMakeConditionalRequest(cachedEntry) {
		cache.AddConditionalHeaders(req, cachedEntry)
		cache.ConditionalRequestsSent.Inc()
		c.logger.Debug().
			Str("endpoint", endpoint).
			Str("etag", cachedEntry.ETag).
			Msg("Making conditional request")
	}

	// Step 4: Set headers
	requestID := uuid.NewString()
	req.Header.Set(HeaderAccessToken, c.config.APIKey)
	req.Header.Set(HeaderRequestID, requestID)
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	logger := c.logger.With().Str("request_id", requestID).Str("endpoint", endpoint).Logger()
	logger.Debug().Str("method", req.Method).Msg("Executing coin API request")

	// Step 5: Execute HTTP Request with Retry Logic
	var resp *http.Response
	retryErr := retryWithBackoff(ctx, c.retry, logger, func() (ErrorClass, error) {
		var reqErr error
		resp, reqErr = c.httpClient.Do(req)
		if reqErr != nil {
			logger.Error().Err(reqErr).Msg("HTTP request failed")
			coinAPIErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			coinAPIRequestsTotal.WithLabelValues(endpoint, "network_error").Inc()
			apiErr := &APIError{Class: ErrorClassNetwork, Err: reqErr}
			if ctx.Err() != nil {
				// no point in retrying a cancelled request
				return "", apiErr
			}
			return ErrorClassNetwork, apiErr
		}

		if err := c.rateLimiter.UpdateFromResponse(ctx, resp.StatusCode, resp.Header); err != nil {
			logger.Warn().Err(err).Msg("Failed to update rate limit from headers")
		}

		coinAPIRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

		if resp.StatusCode < 400 {
			return "", nil
		}

		apiErr := responseError(resp)
		resp = nil
		coinAPIErrorsTotal.WithLabelValues(string(apiErr.Class)).Inc()

		logger.Warn().
			Int("status", apiErr.StatusCode).
			Str("error_class", string(apiErr.Class)).
			Msg("Coin API request error")

		return apiErr.Class, apiErr
	})

	if retryErr != nil {
		return nil, retryErr
	}

	// Step 6: Handle 304 Not Modified
	if resp.StatusCode == http.StatusNotModified {
		resp.Body.Close()
		if cachedEntry == nil {
			coinAPIErrorsTotal.WithLabelValues(string(ErrorClassDecode)).Inc()
			return nil, &APIError{StatusCode: resp.StatusCode, Class: ErrorClassDecode, Message: "304 without cached entry"}
		}

		logger.Debug().Msg("304 Not Modified - using cache")
		cache.NotModifiedResponses.Inc()

		// Refresh freshness from the 304 headers
		refreshed := resp.Header.Clone()
		for k, v := range cachedEntry.Header {
			if refreshed.Get(k) == "" {
				refreshed[k] = v
			}
		}
		if err := c.cache.UpdateTTL(ctx, cacheKey, cache.ExpiresFromHeaders(refreshed, c.cacheTTL)); err != nil {
			logger.Warn().Err(err).Msg("Failed to update cache TTL")
		}

		return cache.EntryToResponse(cachedEntry, req), nil
	}

	// Step 7: Update Cache on success
	if c.cache != nil && resp.StatusCode == http.StatusOK && req.Method == http.MethodGet {
		entry, err := cache.ResponseToEntry(resp, c.cacheTTL)
		if err != nil {
			resp.Body.Close()
			coinAPIErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			return nil, &APIError{StatusCode: resp.StatusCode, Class: ErrorClassNetwork, Message: "reading response body", Err: err}
		}
		if entry.TTL() > 0 {
			if err := c.cache.Set(ctx, cacheKey, entry); err != nil {
				logger.Warn().Err(err).Msg("Failed to cache response")
			} else {
				logger.Debug().Dur("ttl", entry.TTL()).Msg("Cached response")
			}
		}
	}

	return resp, nil
}

// responseError reads and closes an error response.
func responseError(resp *http.Response) *APIError {
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	failure := coin.DecodeFailure(body)
	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Class:      classifyFailure(classifyStatus(resp.StatusCode), failure),
		Message:    resp.Status,
	}
	if failure != nil {
		apiErr.Err = failure
		if failure.Message != "" {
			apiErr.Message = failure.Message
		}
	}
	return apiErr
}

// Get performs a GET request for a path below the base URL.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (*http.Response, error) {
	u := c.baseURL.JoinPath(path)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	return c.Do(req)
}

// getBody performs a GET and returns the full response body.
func (c *Client) getBody(ctx context.Context, op, path string, query url.Values) ([]byte, int, error) {
	resp, err := c.Get(ctx, path, query)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Op == "" {
			apiErr.Op = op
		}
		return nil, 0, err
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		coinAPIErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		return nil, resp.StatusCode, &APIError{Op: op, StatusCode: resp.StatusCode, Class: ErrorClassNetwork, Message: "reading response body", Err: err}
	}
	return buf.Bytes(), resp.StatusCode, nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// Cache returns the cache manager, nil when caching is disabled.
func (c *Client) Cache() *cache.Manager {
	return c.cache
}

// RateLimiter returns the quota tracker.
func (c *Client) RateLimiter() *ratelimit.Tracker {
	return c.rateLimiter
}

// endpointLabel collapses coin ids so metric labels stay bounded,
// e.g. /v2/coin/Qwsogvtv82FCd/history -> /v2/coin/{uuid}/history.
func endpointLabel(path string) string {
	segs := strings.Split(strings.Trim(path, "/"), "/")
	for i := 0; i+1 < len(segs); i++ {
		if segs[i] == "coin" {
			segs[i+1] = "{uuid}"
		}
	}
	return "/" + strings.Join(segs, "/")
}
