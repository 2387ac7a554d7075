package client

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/Sternrassler/coin-catalog/pkg/coin"
)

// Error taxonomy. Every error returned by the client matches exactly one of
// these with errors.Is.
var (
	// ErrNetwork is a transport-level failure (DNS, TLS, reset, timeout).
	ErrNetwork = errors.New("network error")

	// ErrDecode is a malformed or unexpected payload.
	ErrDecode = errors.New("decode error")

	// ErrAuth is a missing or rejected API access token.
	ErrAuth = errors.New("authorization error")

	// ErrNotFound is an unknown coin id.
	ErrNotFound = errors.New("not found")

	// ErrRateLimited is a quota rejection, by the API or by the local tracker.
	ErrRateLimited = errors.New("rate limited")

	// ErrServer is a 5xx response that survived all retries.
	ErrServer = errors.New("server error")

	// ErrRequest is any other rejected request (bad parameters, 4xx).
	ErrRequest = errors.New("request error")
)

// ErrRetryExhausted is wrapped into the last error once all attempts failed.
var ErrRetryExhausted = errors.New("retry attempts exhausted")

// ErrorClass represents a classification of API failures.
type ErrorClass string

const (
	ErrorClassNetwork   ErrorClass = "network"
	ErrorClassDecode    ErrorClass = "decode"
	ErrorClassAuth      ErrorClass = "auth"
	ErrorClassNotFound  ErrorClass = "not_found"
	ErrorClassRateLimit ErrorClass = "rate_limit"
	ErrorClassServer    ErrorClass = "server"
	ErrorClassClient    ErrorClass = "client"
)

// sentinel maps a class to its taxonomy error.
func (c ErrorClass) sentinel() error {
	switch c {
	case ErrorClassNetwork:
		return ErrNetwork
	case ErrorClassDecode:
		return ErrDecode
	case ErrorClassAuth:
		return ErrAuth
	case ErrorClassNotFound:
		return ErrNotFound
	case ErrorClassRateLimit:
		return ErrRateLimited
	case ErrorClassServer:
		return ErrServer
	default:
		return ErrRequest
	}
}

// APIError carries the context of a failed coin API call.
type APIError struct {
	// Op is the gateway operation, e.g. "list coins".
	Op string
	// StatusCode is 0 when no response was received.
	StatusCode int
	Class      ErrorClass
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	msg := fmt.Sprintf("coin api %s error", e.Class)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *APIError) Unwrap() error {
	return e.Err
}

// Is matches the taxonomy sentinel of the error's class.
func (e *APIError) Is(target error) bool {
	return target == e.Class.sentinel()
}

// ClassOf returns the class of err, or "" when err is not an APIError.
func ClassOf(err error) ErrorClass {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Class
	}
	return ""
}

// classifyStatus maps an HTTP status to an error class. 2xx and 304 return "".
func classifyStatus(status int) ErrorClass {
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return ErrorClassAuth
	case status == http.StatusNotFound:
		return ErrorClassNotFound
	case status == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case status >= 400 && status < 500:
		return ErrorClassClient
	case status >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

// classifyFailure refines a class with the failure type from the body.
func classifyFailure(class ErrorClass, failure *coin.Failure) ErrorClass {
	if failure == nil {
		return class
	}
	switch failure.Type {
	case coin.FailureCoinNotFound:
		return ErrorClassNotFound
	case coin.FailureUnauthorized:
		return ErrorClassAuth
	case coin.FailureRateLimited:
		return ErrorClassRateLimit
	}
	if class == "" {
		return ErrorClassClient
	}
	return class
}

// shouldRetry determines if an error should be retried based on its classification.
func shouldRetry(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassServer, ErrorClassNetwork, ErrorClassRateLimit:
		return true
	default:
		// other 4xx and decode errors do not get better by asking again
		return false
	}
}
