// Package apierr holds the transport-level error taxonomy shared by the chat
// backend clients (network, HTTP status, body parsing) and a classifier that
// tells the dispatch loops whether a failure is worth retrying.
package apierr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/api/googleapi"
)

// NetworkError is a transport-level failure: dial, TLS, timeout, reset.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string { return fmt.Sprintf("%s: network error: %v", e.Op, e.Err) }
func (e *NetworkError) Unwrap() error { return e.Err }

// StatusError is a non-2xx HTTP response.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: api error: status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: api error: status %d: %s", e.Op, e.StatusCode, e.Body)
}

// ParseError is a response body that could not be decoded.
type ParseError struct {
	Op  string
	Err error
}

func (e *ParseError) Error() string { return fmt.Sprintf("%s: failed to parse response: %v", e.Op, e.Err) }
func (e *ParseError) Unwrap() error { return e.Err }

// Class represents whether an error should be retried or not.
type Class int

const (
	// Retryable marks transient failures (network, 5xx, rate limiting).
	Retryable Class = iota
	// Fatal marks failures that will not go away by asking again (auth, not found, malformed).
	Fatal
	// Unknown is returned for nil errors.
	Unknown
)

// String returns a human-readable name for the class. It doubles as a metric label.
func (c Class) String() string {
	switch c {
	case Retryable:
		return "retryable"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Classify sorts an error into Retryable or Fatal. Typed errors are inspected
// first; anything else falls back to message patterns and is treated as
// retryable when nothing matches.
func Classify(err error) Class {
	if err == nil {
		return Unknown
	}
	if errors.Is(err, context.Canceled) {
		return Fatal
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Retryable
	}

	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return Retryable
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return classifyStatus(statusErr.StatusCode)
	}
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return classifyStatus(gErr.Code)
	}
	var parseErr *ParseError
	if errors.As(err, &parseErr) {
		return Fatal
	}

	lower := strings.ToLower(err.Error())
	for _, pattern := range []string{"unauthorized", "forbidden", "not found", "invalid token", "live chat ended", "livechatended"} {
		if strings.Contains(lower, pattern) {
			return Fatal
		}
	}
	return Retryable
}

func classifyStatus(code int) Class {
	switch {
	case code == http.StatusTooManyRequests, code >= 500:
		return Retryable
	case code == http.StatusUnauthorized, code == http.StatusForbidden, code == http.StatusNotFound, code == http.StatusBadRequest:
		return Fatal
	default:
		return Retryable
	}
}

// IsRetryable reports whether err should be retried.
func IsRetryable(err error) bool { return Classify(err) == Retryable }

// IsFatal reports whether err should not be retried.
func IsFatal(err error) bool { return Classify(err) == Fatal }
