package remote

import (
	"fmt"
	"time"
)

// ValidationError is a fatal, synchronous input problem (empty or oversized
// prompt, missing run id). It is never retried and never sent to the remote.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Msg
}

// AuthError is a 401 from the remote agent API. Non-retryable.
type AuthError struct {
	Endpoint string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("unauthorized (401) calling %s: check API token and organization id", e.Endpoint)
}

// NotFoundError is a 404 from the remote agent API. Non-retryable.
type NotFoundError struct {
	Endpoint string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("not found (404): %s", e.Endpoint)
}

// StatusError is any other non-retryable HTTP error status.
type StatusError struct {
	Endpoint string
	Status   int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("remote API error %d calling %s: %s", e.Status, e.Endpoint, e.Body)
}

// DecodeError is a malformed response body. Non-retryable: the call reached
// the remote and came back unparseable, so retrying would re-issue a
// possibly non-idempotent operation for a response we cannot interpret.
type DecodeError struct {
	Endpoint string
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("malformed response from %s: %v", e.Endpoint, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// TransientError wraps a network failure or 5xx after the retry budget is
// exhausted, carrying the attempt count.
type TransientError struct {
	Endpoint string
	Attempts int
	Err      error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("request to %s failed after %d attempts: %v", e.Endpoint, e.Attempts, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// TimeoutError reports that a run did not reach a terminal status within the
// polling bound.
type TimeoutError struct {
	RunID int64
	Bound time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("run %d did not complete within %s", e.RunID, e.Bound)
}

// ErrPollInFlight is returned when a second polling loop is started for a run
// that is already being polled.
type ErrPollInFlight struct {
	RunID int64
}

func (e *ErrPollInFlight) Error() string {
	return fmt.Sprintf("run %d is already being polled", e.RunID)
}
