package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Response headers read by the tracker.
const (
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderReset      = "X-RateLimit-Reset"
	HeaderRetryAfter = "Retry-After"
)

// DefaultThrottleDelay is how long a request waits in the warning state.
const DefaultThrottleDelay = 1 * time.Second

// Prometheus metrics for rate limit tracking.
var (
	coinAPIRequestsRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "coin_api_requests_remaining",
		Help: "Number of requests remaining in the current coin API quota window",
	})

	coinAPIRateLimitBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coin_api_rate_limit_blocks_total",
		Help: "Total number of requests blocked because the quota is exhausted",
	})

	coinAPIRateLimitThrottlesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coin_api_rate_limit_throttles_total",
		Help: "Total number of requests throttled because the quota is low",
	})
)

// Tracker monitors the coin API quota and gates requests.
type Tracker struct {
	store         StateStore
	logger        zerolog.Logger
	throttleDelay time.Duration
}

// NewTracker creates a new rate limit tracker. A nil store keeps state in
// memory.
func NewTracker(store StateStore, logger zerolog.Logger) *Tracker {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Tracker{
		store:         store,
		logger:        logger,
		throttleDelay: DefaultThrottleDelay,
	}
}

// SetThrottleDelay overrides the warning-state delay.
func (t *Tracker) SetThrottleDelay(d time.Duration) {
	t.throttleDelay = d
}

// GetState returns the current quota state, or a healthy default when
// the API has not reported any numbers yet.
func (t *Tracker) GetState(ctx context.Context) (*State, error) {
	state, err := t.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	if state == nil {
		t.logger.Debug().Msg("No rate limit state stored, assuming healthy")
		return defaultState(), nil
	}
	return state, nil
}

// UpdateFromResponse records the quota reported by a response. Responses
// without quota headers leave the state untouched, except 429 which always
// marks the quota exhausted until Retry-After (or the reset header) passes.
func (t *Tracker) UpdateFromResponse(ctx context.Context, statusCode int, headers http.Header) error {
	now := time.Now()
	state := &State{LastUpdate: now}

	remainStr := headers.Get(HeaderRemaining)
	switch {
	case remainStr != "":
		remain, err := strconv.Atoi(remainStr)
		if err != nil {
			return fmt.Errorf("parse %s header: %w", HeaderRemaining, err)
		}
		state.Remaining = remain
	case statusCode == http.StatusTooManyRequests:
		state.Remaining = 0
	default:
		return nil
	}

	resetSeconds, err := parseSeconds(headers.Get(HeaderReset))
	if err != nil {
		return fmt.Errorf("parse %s header: %w", HeaderReset, err)
	}
	if statusCode == http.StatusTooManyRequests {
		state.Remaining = 0
		if retryAfter, err := parseSeconds(headers.Get(HeaderRetryAfter)); err == nil && retryAfter > 0 {
			resetSeconds = retryAfter
		}
	}
	if resetSeconds <= 0 {
		resetSeconds = 60
	}
	state.ResetAt = now.Add(time.Duration(resetSeconds) * time.Second)
	state.UpdateHealth()

	if err := t.store.Save(ctx, state); err != nil {
		return err
	}

	coinAPIRequestsRemaining.Set(float64(state.Remaining))

	switch {
	case state.NeedsCriticalBlock():
		t.logger.Error().
			Int("requests_remaining", state.Remaining).
			Time("reset_at", state.ResetAt).
			Msg("Coin API quota CRITICAL - requests will be blocked")
	case state.NeedsThrottling():
		t.logger.Warn().
			Int("requests_remaining", state.Remaining).
			Time("reset_at", state.ResetAt).
			Msg("Coin API quota WARNING - requests will be throttled")
	default:
		t.logger.Debug().
			Int("requests_remaining", state.Remaining).
			Time("reset_at", state.ResetAt).
			Bool("is_healthy", state.IsHealthy).
			Msg("Coin API quota state updated")
	}

	return nil
}

// ShouldAllowRequest checks if a request may be sent now.
// Returns false while the quota is exhausted. In the warning state it waits
// for the throttle delay (or until ctx is done) and then allows the request.
func (t *Tracker) ShouldAllowRequest(ctx context.Context) (bool, error) {
	state, err := t.GetState(ctx)
	if err != nil {
		return false, fmt.Errorf("get rate limit state: %w", err)
	}

	if state.NeedsCriticalBlock() {
		t.logger.Error().
			Int("requests_remaining", state.Remaining).
			Dur("wait_duration", state.TimeUntilReset()).
			Msg("Coin API quota exhausted - blocking request")

		coinAPIRateLimitBlocksTotal.Inc()
		return false, nil
	}

	if state.NeedsThrottling() && t.throttleDelay > 0 {
		t.logger.Warn().
			Int("requests_remaining", state.Remaining).
			Msg("Coin API quota low - throttling request")

		coinAPIRateLimitThrottlesTotal.Inc()

		timer := time.NewTimer(t.throttleDelay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-timer.C:
		}
	}

	return true, nil
}

func parseSeconds(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}
