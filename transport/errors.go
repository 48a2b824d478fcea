package transport

import (
	"errors"
	"fmt"
)

var (
	// ErrTokenExpired is returned when the backend rejects the bearer token
	// or no token is held. The caller decides whether to refresh.
	ErrTokenExpired = errors.New("transport: access token expired")

	// ErrRateLimited is returned on a 429 from the backend.
	ErrRateLimited = errors.New("transport: rate limited")

	// ErrChallengeUnresolved is returned when a request is still rejected by
	// the bot-detection gate after the single solve-and-retry.
	ErrChallengeUnresolved = errors.New("transport: challenge unresolved after retry")
)

// TransientError wraps network and server-side failures that were not
// retried. Op names the pipeline stage that failed.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transport: transient %s error: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// APIError is a well-formed backend response whose result code signals
// failure.
type APIError struct {
	StatusCode int
	ResultCode string
	Message    string
}

func (e *APIError) Error() string {
	if e.ResultCode != "" {
		return fmt.Sprintf("transport: api error %s: %s", e.ResultCode, e.Message)
	}
	return fmt.Sprintf("transport: api error: status %d", e.StatusCode)
}
