package client

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// fastRetry keeps backoff small enough for unit tests.
func fastRetry() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    20 * time.Millisecond,
		MaxBackoff:        200 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}
}

func failing(class ErrorClass, err error, calls *int) attemptFunc {
	return func() (ErrorClass, error) {
		*calls++
		return class, err
	}
}

func TestDefaultRetryConfig(t *testing.T) {
	config := DefaultRetryConfig()

	if config.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", config.MaxAttempts)
	}
	if config.InitialBackoff != 500*time.Millisecond {
		t.Errorf("InitialBackoff = %v, want 500ms", config.InitialBackoff)
	}
	if config.MaxBackoff != 10*time.Second {
		t.Errorf("MaxBackoff = %v, want 10s", config.MaxBackoff)
	}
	if config.BackoffMultiplier != 2.0 {
		t.Errorf("BackoffMultiplier = %v, want 2.0", config.BackoffMultiplier)
	}
}

func TestRetryConfigForErrorClass(t *testing.T) {
	base := RetryConfig{MaxAttempts: 4, InitialBackoff: time.Second, MaxBackoff: 30 * time.Second}

	tests := []struct {
		name            string
		errorClass      ErrorClass
		expectedInitial time.Duration
	}{
		{name: "server error config", errorClass: ErrorClassServer, expectedInitial: 1 * time.Second},
		{name: "network error config", errorClass: ErrorClassNetwork, expectedInitial: 2 * time.Second},
		{name: "rate limit config", errorClass: ErrorClassRateLimit, expectedInitial: 4 * time.Second},
		{name: "unknown error class uses base", errorClass: "", expectedInitial: 1 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := RetryConfigForErrorClass(tt.errorClass, base)

			if config.InitialBackoff != tt.expectedInitial {
				t.Errorf("InitialBackoff = %v, want %v", config.InitialBackoff, tt.expectedInitial)
			}
			if config.MaxAttempts != base.MaxAttempts {
				t.Errorf("MaxAttempts = %d, want %d", config.MaxAttempts, base.MaxAttempts)
			}
			if config.BackoffMultiplier != 2.0 {
				t.Errorf("BackoffMultiplier = %v, want 2.0 default", config.BackoffMultiplier)
			}
		})
	}

	capped := RetryConfigForErrorClass(ErrorClassRateLimit, RetryConfig{InitialBackoff: time.Second, MaxBackoff: 2 * time.Second})
	if capped.InitialBackoff != 2*time.Second {
		t.Errorf("InitialBackoff = %v, want capped at 2s", capped.InitialBackoff)
	}
}

func TestRetryWithBackoff_Success(t *testing.T) {
	calls := 0
	err := retryWithBackoff(context.Background(), fastRetry(), zerolog.Nop(), failing("", nil, &calls))

	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected 1 call, got %d", calls)
	}
}

func TestRetryWithBackoff_SuccessAfterRetry(t *testing.T) {
	calls := 0
	fn := func() (ErrorClass, error) {
		calls++
		if calls < 3 {
			return ErrorClassServer, &APIError{Class: ErrorClassServer, StatusCode: 503}
		}
		return "", nil
	}

	start := time.Now()
	err := retryWithBackoff(context.Background(), fastRetry(), zerolog.Nop(), fn)
	duration := time.Since(start)

	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if calls != 3 {
		t.Errorf("Expected 3 calls, got %d", calls)
	}
	// 20ms + 40ms with at most -20% jitter each
	if duration < 48*time.Millisecond {
		t.Errorf("Expected some backoff delay, got %v", duration)
	}
}

func TestRetryWithBackoff_MaxAttemptsExhausted(t *testing.T) {
	calls := 0
	err := retryWithBackoff(context.Background(), fastRetry(), zerolog.Nop(),
		failing(ErrorClassServer, &APIError{Class: ErrorClassServer, StatusCode: 500}, &calls))

	if !errors.Is(err, ErrRetryExhausted) {
		t.Errorf("Expected ErrRetryExhausted, got %v", err)
	}
	if !errors.Is(err, ErrServer) {
		t.Errorf("Exhausted error should keep its class, got %v", err)
	}
	if calls != 3 {
		t.Errorf("Expected 3 calls (MaxAttempts), got %d", calls)
	}
}

func TestRetryWithBackoff_PlainErrorExhausted(t *testing.T) {
	calls := 0
	testErr := errors.New("persistent error")
	err := retryWithBackoff(context.Background(), fastRetry(), zerolog.Nop(), failing(ErrorClassNetwork, testErr, &calls))

	if !errors.Is(err, ErrRetryExhausted) || !errors.Is(err, testErr) {
		t.Errorf("Expected ErrRetryExhausted wrapping the cause, got %v", err)
	}
}

func TestRetryWithBackoff_ClientErrorNoRetry(t *testing.T) {
	calls := 0
	testErr := &APIError{Class: ErrorClassNotFound, StatusCode: 404}
	err := retryWithBackoff(context.Background(), fastRetry(), zerolog.Nop(), failing(ErrorClassNotFound, testErr, &calls))

	if calls != 1 {
		t.Errorf("Expected 1 call (no retry for client errors), got %d", calls)
	}
	if errors.Is(err, ErrRetryExhausted) {
		t.Error("Should not return ErrRetryExhausted for client errors (no retry attempted)")
	}
	if err != testErr {
		t.Errorf("Expected original error, got %v", err)
	}
}

func TestRetryWithBackoff_SingleAttempt(t *testing.T) {
	cfg := fastRetry()
	cfg.MaxAttempts = 0

	calls := 0
	err := retryWithBackoff(context.Background(), cfg, zerolog.Nop(),
		failing(ErrorClassServer, &APIError{Class: ErrorClassServer}, &calls))

	if calls != 1 {
		t.Errorf("Expected exactly 1 call, got %d", calls)
	}
	if !errors.Is(err, ErrRetryExhausted) {
		t.Errorf("Expected ErrRetryExhausted, got %v", err)
	}
}

func TestRetryWithBackoff_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := fastRetry()
	cfg.InitialBackoff = time.Second

	calls := 0
	fn := func() (ErrorClass, error) {
		calls++
		if calls == 1 {
			cancel()
		}
		return ErrorClassServer, &APIError{Class: ErrorClassServer}
	}

	start := time.Now()
	err := retryWithBackoff(ctx, cfg, zerolog.Nop(), fn)

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected 1 call before cancellation, got %d", calls)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Error("Backoff should stop as soon as the context is cancelled")
	}
}

func TestRetryWithBackoff_ExponentialBackoff(t *testing.T) {
	timestamps := []time.Time{}
	fn := func() (ErrorClass, error) {
		timestamps = append(timestamps, time.Now())
		return ErrorClassServer, errors.New("error")
	}

	cfg := fastRetry()
	cfg.InitialBackoff = 50 * time.Millisecond
	_ = retryWithBackoff(context.Background(), cfg, zerolog.Nop(), fn)

	if len(timestamps) != 3 {
		t.Fatalf("Expected 3 timestamps, got %d", len(timestamps))
	}

	firstDelay := timestamps[1].Sub(timestamps[0])
	secondDelay := timestamps[2].Sub(timestamps[1])

	// ±20% jitter on 50ms and 100ms
	if firstDelay < 40*time.Millisecond {
		t.Errorf("First retry delay %v shorter than expected", firstDelay)
	}
	if secondDelay < 80*time.Millisecond {
		t.Errorf("Second retry delay %v shorter than expected", secondDelay)
	}
}

func TestRetryWithBackoff_MaxBackoffCap(t *testing.T) {
	timestamps := []time.Time{}
	fn := func() (ErrorClass, error) {
		timestamps = append(timestamps, time.Now())
		return ErrorClassServer, errors.New("error")
	}

	cfg := RetryConfig{
		MaxAttempts:       4,
		InitialBackoff:    30 * time.Millisecond,
		MaxBackoff:        40 * time.Millisecond,
		BackoffMultiplier: 10.0,
	}
	_ = retryWithBackoff(context.Background(), cfg, zerolog.Nop(), fn)

	if len(timestamps) != 4 {
		t.Fatalf("Expected 4 timestamps, got %d", len(timestamps))
	}
	// cap 40ms + 20% jitter + scheduling slack
	if d := timestamps[3].Sub(timestamps[2]); d > 150*time.Millisecond {
		t.Errorf("Capped retry delay %v, want about 40ms", d)
	}
}
