package client

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for retry operations.
var (
	coinAPIRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coin_api_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	coinAPIRetryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "coin_api_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"error_class"})

	coinAPIRetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coin_api_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})
)

// RetryConfig holds the configuration for retry logic.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including the initial request).
	MaxAttempts int

	// InitialBackoff is the initial backoff duration.
	InitialBackoff time.Duration

	// MaxBackoff is the maximum backoff duration.
	MaxBackoff time.Duration

	// BackoffMultiplier is the multiplier for exponential backoff.
	BackoffMultiplier float64
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    500 * time.Millisecond,
		MaxBackoff:        10 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// RetryConfigForErrorClass adjusts base for an error class. Network errors
// start with twice the base backoff, quota rejections with four times.
func RetryConfigForErrorClass(errorClass ErrorClass, base RetryConfig) RetryConfig {
	cfg := base
	if cfg.BackoffMultiplier < 1 {
		cfg.BackoffMultiplier = 2.0
	}
	switch errorClass {
	case ErrorClassNetwork:
		cfg.InitialBackoff *= 2
	case ErrorClassRateLimit:
		cfg.InitialBackoff *= 4
	}
	if cfg.MaxBackoff > 0 && cfg.InitialBackoff > cfg.MaxBackoff {
		cfg.InitialBackoff = cfg.MaxBackoff
	}
	return cfg
}

// attemptFunc performs one attempt and reports the class of its failure.
type attemptFunc func() (ErrorClass, error)

// retryWithBackoff executes fn with exponential backoff until it succeeds,
// fails with a non-retryable class, or runs out of attempts.
// It respects context cancellation and adds ±20% jitter.
func retryWithBackoff(ctx context.Context, base RetryConfig, logger zerolog.Logger, fn attemptFunc) error {
	maxAttempts := base.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var (
		lastErr   error
		lastClass ErrorClass
		backoff   time.Duration
	)

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		class, err := fn()
		if err == nil {
			if attempt > 1 {
				logger.Info().
					Str("error_class", string(lastClass)).
					Int("attempt", attempt).
					Msg("Request succeeded after retry")
			}
			return nil
		}

		if !shouldRetry(class) {
			return err
		}

		// First failure of this class picks the class-specific schedule
		if class != lastClass {
			backoff = RetryConfigForErrorClass(class, base).InitialBackoff
		}
		lastErr, lastClass = err, class

		if attempt >= maxAttempts {
			break
		}

		coinAPIRetriesTotal.WithLabelValues(string(class)).Inc()

		jitter := time.Duration(float64(backoff) * (0.8 + rand.Float64()*0.4))
		coinAPIRetryBackoffSeconds.WithLabelValues(string(class)).Observe(jitter.Seconds())

		logger.Warn().
			Err(err).
			Str("error_class", string(class)).
			Int("attempt", attempt).
			Dur("backoff", jitter).
			Msg("Retrying request after backoff")

		timer := time.NewTimer(jitter)
		select {
		case <-ctx.Done():
			timer.Stop()
			logger.Warn().
				Str("error_class", string(class)).
				Int("attempt", attempt).
				Msg("Context cancelled during retry backoff")
			return &APIError{Class: ErrorClassNetwork, Message: "cancelled during retry backoff", Err: ctx.Err()}
		case <-timer.C:
		}

		cfg := RetryConfigForErrorClass(class, base)
		backoff = time.Duration(float64(backoff) * cfg.BackoffMultiplier)
		if cfg.MaxBackoff > 0 && backoff > cfg.MaxBackoff {
			backoff = cfg.MaxBackoff
		}
	}

	coinAPIRetryExhaustedTotal.WithLabelValues(string(lastClass)).Inc()
	logger.Error().
		Err(lastErr).
		Str("error_class", string(lastClass)).
		Int("max_attempts", maxAttempts).
		Msg("Retry attempts exhausted")

	var apiErr *APIError
	if errors.As(lastErr, &apiErr) {
		exhausted := *apiErr
		exhausted.Err = joinErr(ErrRetryExhausted, apiErr.Err)
		return &exhausted
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, maxAttempts, lastErr)
}

func joinErr(a, b error) error {
	if b == nil {
		return a
	}
	return fmt.Errorf("%w: %w", a, b)
}
