// Package cache provides response caching for the coin API client with
// ETag support for conditional requests.
package cache

import (
	"net/http"
	"time"
)

// Entry is one cached 200 response of the coin API, stored as JSON.
type Entry struct {
	Body       []byte      `json:"body"`
	StatusCode int         `json:"status_code"`
	Header     http.Header `json:"header"`

	// Validators sent back as If-None-Match / If-Modified-Since.
	ETag         string    `json:"etag,omitempty"`
	LastModified time.Time `json:"last_modified,omitempty"`

	StoredAt time.Time `json:"stored_at"`
	Expires  time.Time `json:"expires"`
}

// Stale reports whether the entry must be revalidated before use.
func (e *Entry) Stale() bool {
	return !time.Now().Before(e.Expires)
}

// TTL returns the time until the entry goes stale, 0 once it has.
func (e *Entry) TTL() time.Duration {
	return max(time.Until(e.Expires), 0)
}

// Age is the time since the entry was stored or last revalidated.
func (e *Entry) Age() time.Duration {
	if e.StoredAt.IsZero() {
		return 0
	}
	return time.Since(e.StoredAt)
}

// CanRevalidate reports whether the entry carries a validator.
func (e *Entry) CanRevalidate() bool {
	return e.ETag != "" || !e.LastModified.IsZero()
}
