package adsb

import (
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// StatusError is returned when the upstream answers with a non-success
// HTTP status.
type StatusError struct {
	// StatusCode is the HTTP status returned by the upstream
	StatusCode int

	// Body is the start of the response body, for logs
	Body string

	// RetryAfter is parsed from the Retry-After header on 429/503 responses.
	// It is informational: the next refresh cycle is the only retry.
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("upstream returned status %d (retry after %v)", e.StatusCode, e.RetryAfter)
	}
	return fmt.Sprintf("upstream returned status %d", e.StatusCode)
}

// ParseError is returned when the payload is not valid JSON or lacks the
// expected top-level shape.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed aircraft payload: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("malformed aircraft payload: %s", e.Reason)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// parseRetryAfter extracts the Retry-After header value.
// Returns the duration to wait, or 0 if header is not present.
// Supports both delay-seconds (integer) and HTTP-date formats.
//
// Examples:
//
//	Retry-After: 30                            -> 30 seconds
//	Retry-After: Wed, 21 Oct 2015 07:28:00 GMT -> duration until that time
func parseRetryAfter(headers http.Header) time.Duration {
	retryAfter := headers.Get("Retry-After")
	if retryAfter == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(retryAfter); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}

	if retryTime, err := http.ParseTime(retryAfter); err == nil {
		if duration := time.Until(retryTime); duration > 0 {
			return duration
		}
	}

	return 0
}
