// Package ratelimit tracks the coin API request quota and gates requests.
// It reads the X-RateLimit-Remaining and X-RateLimit-Reset headers, plus
// Retry-After on 429 responses, so the client backs off before the API
// starts rejecting every call.
package ratelimit

import (
	"time"
)

// Redis keys for rate limit state storage.
const (
	RedisKeyRemaining      = "coinapi:rate_limit:remaining"
	RedisKeyResetTimestamp = "coinapi:rate_limit:reset_timestamp"
	RedisKeyLastUpdate     = "coinapi:rate_limit:last_update"
)

// Thresholds for rate limit decisions.
const (
	// RemainingThresholdCritical blocks requests while fewer requests remain
	// in the current window.
	RemainingThresholdCritical = 2

	// RemainingThresholdWarning throttles requests while fewer requests remain.
	RemainingThresholdWarning = 10

	// RemainingThresholdHealthy indicates normal operation.
	RemainingThresholdHealthy = 50
)

// State is the current quota state of the coin API.
type State struct {
	// Remaining is the number of requests left in the current window.
	Remaining int `json:"remaining"`

	// ResetAt is when the quota window resets.
	ResetAt time.Time `json:"reset_at"`

	// LastUpdate is when this state was last refreshed from headers.
	LastUpdate time.Time `json:"last_update"`

	// IsHealthy is true when Remaining >= RemainingThresholdHealthy.
	IsHealthy bool `json:"is_healthy"`
}

// defaultState is assumed until the API has reported real numbers.
func defaultState() *State {
	now := time.Now()
	return &State{
		Remaining:  100,
		ResetAt:    now.Add(60 * time.Second),
		LastUpdate: now,
		IsHealthy:  true,
	}
}

// IsStale returns true if the state data is older than the given duration.
func (s *State) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}

// NeedsCriticalBlock returns true if requests should be blocked. A window
// that has already reset never blocks.
func (s *State) NeedsCriticalBlock() bool {
	return s.Remaining < RemainingThresholdCritical && s.TimeUntilReset() > 0
}

// NeedsThrottling returns true if requests should be slowed down.
func (s *State) NeedsThrottling() bool {
	return s.Remaining < RemainingThresholdWarning && s.TimeUntilReset() > 0 && !s.NeedsCriticalBlock()
}

// TimeUntilReset returns the duration until the quota resets.
// Returns 0 if the reset time has already passed.
func (s *State) TimeUntilReset() time.Duration {
	duration := time.Until(s.ResetAt)
	if duration < 0 {
		return 0
	}
	return duration
}

// UpdateHealth updates the IsHealthy field based on current Remaining.
func (s *State) UpdateHealth() {
	s.IsHealthy = s.Remaining >= RemainingThresholdHealthy
}
