// Package testutil provides testing utilities for the coin API client.
package testutil

import (
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Sternrassler/coin-catalog/pkg/coin"
)

// APIPrefix is the version path the mock serves under.
const APIPrefix = "/v2"

// MockResponse defines the behavior for a mock endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockAPI is a configurable mock of the coin API. By default it serves a
// listing of generated coins, their details and a short price history.
type MockAPI struct {
	server *httptest.Server

	mu        sync.RWMutex
	handlers  map[string]func(w http.ResponseWriter, r *http.Request)
	coins     []coin.Summary
	failures  []MockResponse
	delay     time.Duration
	maxAge    int
	remaining int

	// Tracking
	requestCount      int
	conditionalCount  int
	pathCounts        map[string]int
	lastRequestHeader http.Header
}

// NewMockAPI creates a mock server with n generated coins.
func NewMockAPI(n int) *MockAPI {
	mock := &MockAPI{
		handlers:   make(map[string]func(w http.ResponseWriter, r *http.Request)),
		coins:      GenerateCoins(n),
		pathCounts: make(map[string]int),
		remaining:  1000,
	}

	mock.server = httptest.NewServer(http.HandlerFunc(mock.serve))
	return mock
}

// URL returns the mock server URL.
func (m *MockAPI) URL() string {
	return m.server.URL
}

// BaseURL returns the URL to configure as the client's base URL.
func (m *MockAPI) BaseURL() string {
	return m.server.URL + APIPrefix
}

// Close shuts down the mock server.
func (m *MockAPI) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockAPI) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount = 0
	m.conditionalCount = 0
	m.pathCounts = make(map[string]int)
	m.lastRequestHeader = nil
}

// SetHandler sets a custom handler for a path below APIPrefix, e.g. "/coins".
func (m *MockAPI) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a fixed response for a path below APIPrefix.
func (m *MockAPI) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		writeMockResponse(w, r, resp)
	})
}

// FailNext makes the next len(resps) requests, on any path, answer with the
// given responses before normal service resumes.
func (m *MockAPI) FailNext(resps ...MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, resps...)
}

// SetDelay delays every default response. The delay ends early when the
// client gives up on the request.
func (m *MockAPI) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// SetMaxAge sets the Cache-Control max-age of default responses. 0 sends
// no-cache.
func (m *MockAPI) SetMaxAge(seconds int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.maxAge = seconds
}

// SetRemaining sets the X-RateLimit-Remaining value of default responses.
func (m *MockAPI) SetRemaining(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.remaining = n
}

// Coins returns the generated listing.
func (m *MockAPI) Coins() []coin.Summary {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]coin.Summary(nil), m.coins...)
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockAPI) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requestCount
}

// GetConditionalCount returns the number of conditional requests.
func (m *MockAPI) GetConditionalCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.conditionalCount
}

// GetPathCount returns the number of requests for a path below APIPrefix.
func (m *MockAPI) GetPathCount(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pathCounts[path]
}

// LastRequestHeader returns the headers of the most recent request.
func (m *MockAPI) LastRequestHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastRequestHeader.Clone()
}

func (m *MockAPI) serve(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, APIPrefix)

	m.mu.Lock()
	m.requestCount++
	m.pathCounts[path]++
	m.lastRequestHeader = r.Header.Clone()
	if r.Header.Get("If-None-Match") != "" || r.Header.Get("If-Modified-Since") != "" {
		m.conditionalCount++
	}
	var failure *MockResponse
	if len(m.failures) > 0 {
		failure = &m.failures[0]
		m.failures = m.failures[1:]
	}
	handler, exists := m.handlers[path]
	delay := m.delay
	m.mu.Unlock()

	if failure != nil {
		writeMockResponse(w, r, *failure)
		return
	}
	if exists {
		handler(w, r)
		return
	}

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	m.defaultHandler(w, r, path)
}

// defaultHandler routes /coins, /coin/{uuid} and /coin/{uuid}/history.
func (m *MockAPI) defaultHandler(w http.ResponseWriter, r *http.Request, path string) {
	segs := strings.Split(strings.Trim(path, "/"), "/")

	var (
		data any
		err  error
	)
	switch {
	case len(segs) == 1 && segs[0] == "coins":
		data, err = m.listing(r)
	case len(segs) == 2 && segs[0] == "coin":
		data, err = m.detail(segs[1])
	case len(segs) == 3 && segs[0] == "coin" && segs[2] == "history":
		if _, err = m.detail(segs[1]); err == nil {
			data = map[string]any{"change": "1.5", "history": GenerateHistory(3)}
		}
	default:
		m.writeJSON(w, r, http.StatusNotFound, FailureBody("ROUTE_NOT_FOUND", "Route not found"))
		return
	}

	if err != nil {
		var mockErr *mockError
		if errors.As(err, &mockErr) {
			m.writeJSON(w, r, mockErr.status, FailureBody(mockErr.kind, mockErr.message))
			return
		}
		m.writeJSON(w, r, http.StatusInternalServerError, FailureBody("INTERNAL", err.Error()))
		return
	}

	m.writeJSON(w, r, http.StatusOK, SuccessBody(data))
}

func (m *MockAPI) listing(r *http.Request) (any, error) {
	q := r.URL.Query()
	limit, err := strconv.Atoi(q.Get("limit"))
	if err != nil || limit <= 0 {
		limit = 50
	}
	offset, err := strconv.Atoi(q.Get("offset"))
	if err != nil || offset < 0 {
		return nil, &mockError{status: http.StatusUnprocessableEntity, kind: "VALIDATION_ERROR", message: "invalid offset"}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	end := offset + limit
	if offset > len(m.coins) {
		offset = len(m.coins)
	}
	if end > len(m.coins) {
		end = len(m.coins)
	}

	return map[string]any{
		"stats": coin.Stats{Total: len(m.coins), TotalCoins: len(m.coins)},
		"coins": m.coins[offset:end],
	}, nil
}

func (m *MockAPI) detail(id string) (*coin.Detail, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, s := range m.coins {
		if s.UUID != id {
			continue
		}
		desc := s.Name + " is a generated test coin."
		return &coin.Detail{
			UUID:        s.UUID,
			Name:        s.Name,
			Symbol:      s.Symbol,
			Description: &desc,
			IconURL:     s.IconURL,
			Price:       s.Price,
			Change:      s.Change,
			MarketCap:   s.MarketCap,
			Volume24h:   s.Volume24h,
			Rank:        s.Rank,
			Sparkline:   s.Sparkline,
		}, nil
	}
	return nil, &mockError{status: http.StatusNotFound, kind: coin.FailureCoinNotFound, message: "Coin not found"}
}

func (m *MockAPI) writeJSON(w http.ResponseWriter, r *http.Request, status int, body []byte) {
	m.mu.RLock()
	maxAge, remaining := m.maxAge, m.remaining
	m.mu.RUnlock()

	etag := fmt.Sprintf(`"%x"`, hashBytes(body))

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	w.Header().Set("X-RateLimit-Reset", "60")
	if status == http.StatusOK {
		w.Header().Set("ETag", etag)
		if maxAge > 0 {
			w.Header().Set("Cache-Control", fmt.Sprintf("max-age=%d", maxAge))
		} else {
			w.Header().Set("Cache-Control", "no-cache")
		}
		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}

	w.WriteHeader(status)
	w.Write(body)
}

func writeMockResponse(w http.ResponseWriter, r *http.Request, resp MockResponse) {
	if resp.Delay > 0 {
		select {
		case <-time.After(resp.Delay):
		case <-r.Context().Done():
			return
		}
	}

	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}

	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
	}
}

type mockError struct {
	status  int
	kind    string
	message string
}

func (e *mockError) Error() string { return e.message }

func hashBytes(b []byte) uint64 {
	h := fnv.New64a()
	h.Write(b)
	return h.Sum64()
}

// GenerateCoins builds n coins with ids coin-001..coin-n and strictly
// decreasing prices.
func GenerateCoins(n int) []coin.Summary {
	coins := make([]coin.Summary, n)
	for i := range coins {
		rank := i + 1
		price := strconv.Itoa((n-i)*100) + ".5"
		change := fmt.Sprintf("%.2f", float64(i%7)-3)
		icon := fmt.Sprintf("https://cdn.example.com/coin-%03d.svg", rank)
		marketCap := strconv.Itoa((n - i) * 1000000)
		coins[i] = coin.Summary{
			UUID:      fmt.Sprintf("coin-%03d", rank),
			Symbol:    fmt.Sprintf("C%03d", rank),
			Name:      fmt.Sprintf("Coin %03d", rank),
			IconURL:   &icon,
			Price:     &price,
			Change:    &change,
			MarketCap: &marketCap,
			Rank:      &rank,
			Sparkline: []*string{&price, nil, &price},
		}
	}
	return coins
}

// GenerateHistory builds n hourly price points ending now; the middle point
// has no price.
func GenerateHistory(n int) []coin.HistoryPoint {
	now := time.Now().Unix()
	points := make([]coin.HistoryPoint, n)
	for i := range points {
		points[i].Timestamp = now - int64((n-1-i)*3600)
		if n > 2 && i == n/2 {
			continue
		}
		price := strconv.Itoa(100+i) + ".25"
		points[i].Price = &price
	}
	return points
}

// SuccessBody wraps data in the API's success envelope.
func SuccessBody(data any) []byte {
	body, err := json.Marshal(map[string]any{"status": coin.StatusSuccess, "data": data})
	if err != nil {
		panic(err)
	}
	return body
}

// FailureBody builds the API's failure envelope.
func FailureBody(kind, message string) []byte {
	body, _ := json.Marshal(coin.Failure{Status: "fail", Type: kind, Message: message})
	return body
}

// NewHealthyResponse creates a 200 OK response carrying data in the success
// envelope.
func NewHealthyResponse(data any) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       string(SuccessBody(data)),
		Headers: map[string]string{
			"X-RateLimit-Remaining": "1000",
			"X-RateLimit-Reset":     "60",
			"ETag":                  `"test-etag-123"`,
			"Cache-Control":         "max-age=300",
			"Content-Type":          "application/json; charset=utf-8",
		},
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse(retryAfter int) MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       string(FailureBody(coin.FailureRateLimited, "Rate limit exceeded")),
		Headers: map[string]string{
			"X-RateLimit-Remaining": "0",
			"Retry-After":           strconv.Itoa(retryAfter),
			"Content-Type":          "application/json; charset=utf-8",
		},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       string(FailureBody("INTERNAL", "Internal server error")),
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewUnauthorizedResponse creates a 401 response for a rejected access token.
func NewUnauthorizedResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusUnauthorized,
		Body:       string(FailureBody(coin.FailureUnauthorized, "Invalid API key")),
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}
