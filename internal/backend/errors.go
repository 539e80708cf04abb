package backend

import (
	"context"
	"errors"
	"fmt"
)

// ErrInvalidPayload is returned when a payload is missing a required field.
var ErrInvalidPayload = errors.New("invalid relay payload")

// StatusError is a non-200 answer from the backend.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("backend returned HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("backend returned HTTP %d: %s", e.StatusCode, e.Body)
}

// TransportError wraps a failure to reach the backend or read its answer.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *TransportError) Unwrap() error { return e.Err }

// Timeout reports whether the failure was a deadline or client timeout.
func (e *TransportError) Timeout() bool {
	var te interface{ Timeout() bool }
	if errors.As(e.Err, &te) && te.Timeout() {
		return true
	}
	return errors.Is(e.Err, context.DeadlineExceeded)
}

// Kind classifies err for metrics: status, timeout, transport, invalid or unknown.
func Kind(err error) string {
	var se *StatusError
	var te *TransportError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &se):
		return "status"
	case errors.As(err, &te) && te.Timeout():
		return "timeout"
	case errors.As(err, &te):
		return "transport"
	case errors.Is(err, ErrInvalidPayload):
		return "invalid"
	default:
		return "unknown"
	}
}
