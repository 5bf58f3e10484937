package models

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// InvalidRangeError is returned when a date range is empty or inverted.
type InvalidRangeError struct {
	Start time.Time
	End   time.Time
	Days  int
}

func (e *InvalidRangeError) Error() string {
	if e.Start.IsZero() && e.End.IsZero() {
		return fmt.Sprintf("invalid range: %d days requested", e.Days)
	}
	return fmt.Sprintf("invalid range: start %s is after end %s",
		e.Start.Format(DateLayout), e.End.Format(DateLayout))
}

// InvalidArgumentError is returned for unknown metrics or dimensions, malformed
// property ids and other client-side validation failures.
type InvalidArgumentError struct {
	Field  string
	Value  string
	Reason string
}

func (e *InvalidArgumentError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

// AuthError is returned when credentials are missing or rejected upstream.
type AuthError struct {
	StatusCode int
	Message    string
}

func (e *AuthError) Error() string {
	if e.StatusCode == 0 {
		return "authentication failed: " + e.Message
	}
	return fmt.Sprintf("authentication failed (status %d): %s", e.StatusCode, e.Message)
}

// QuotaExceededError is returned when the daily budget cannot cover a request.
type QuotaExceededError struct {
	Reason            string
	RemainingRequests int
	RemainingTokens   int
	RequestedTokens   int
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded: %s (remaining: %d requests, %d tokens; requested %d tokens)",
		e.Reason, e.RemainingRequests, e.RemainingTokens, e.RequestedTokens)
}

// RateLimitError is an explicit rate-limit signal from upstream.
type RateLimitError struct {
	RetryAfter time.Duration
	Message    string
}

func (e *RateLimitError) Error() string {
	return "rate limited: " + e.Message
}

// TransientError wraps a network failure or upstream 5xx response.
type TransientError struct {
	StatusCode int
	Err        error
}

func (e *TransientError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("transient failure: %v", e.Err)
	}
	return fmt.Sprintf("transient failure (status %d): %v", e.StatusCode, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// RetriesExhaustedError carries the last retryable error once the retry budget is spent.
type RetriesExhaustedError struct {
	Attempts int
	Last     error
}

func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.Last)
}

func (e *RetriesExhaustedError) Unwrap() error {
	return e.Last
}

// MalformedResponseError flags a response whose shape does not match its headers.
type MalformedResponseError struct {
	Row    int
	Reason string
}

func (e *MalformedResponseError) Error() string {
	if e.Row < 0 {
		return "malformed response: " + e.Reason
	}
	return fmt.Sprintf("malformed response: row %d: %s", e.Row, e.Reason)
}

// Class tells the retry executor what to do with an error.
type Class int

const (
	// Fatal errors propagate immediately.
	Fatal Class = iota
	// Retryable errors are retried with backoff.
	Retryable
)

// String returns the class name.
func (c Class) String() string {
	if c == Retryable {
		return "retryable"
	}
	return "fatal"
}

// Classify maps an error to its retry class. Only rate-limit and transient
// errors are retryable; anything unrecognized is fatal.
func Classify(err error) Class {
	if err == nil {
		return Fatal
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Fatal
	}
	var exhausted *RetriesExhaustedError
	if errors.As(err, &exhausted) {
		return Fatal
	}
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return Retryable
	}
	var te *TransientError
	if errors.As(err, &te) {
		return Retryable
	}
	return Fatal
}
