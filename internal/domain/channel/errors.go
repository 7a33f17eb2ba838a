package channel

import (
	"errors"
	"fmt"
)

// Adapter failure classes. Every adapter error wraps exactly one of
// these so callers can decide between retrying and giving up.
var (
	// ErrAuthFailed means credentials were rejected. Not retryable.
	ErrAuthFailed = errors.New("channel: authentication failed")

	// ErrRateLimited means the channel throttled the request. Retryable
	// after a delay.
	ErrRateLimited = errors.New("channel: rate limited")

	// ErrTransient covers timeouts, connection resets and 5xx responses.
	// Retryable.
	ErrTransient = errors.New("channel: transient failure")

	// ErrValidation means the channel rejected the request payload.
	// Not retryable.
	ErrValidation = errors.New("channel: request rejected")

	// ErrNotRegistered means no adapter exists for the requested code
	ErrNotRegistered = errors.New("channel: adapter not registered")
)

// IsRetryable reports whether the operation may succeed on a later attempt
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrTransient)
}

// APIError carries the raw channel response alongside its classification
type APIError struct {
	Channel    Code
	Operation  string
	StatusCode int
	RemoteCode string
	Message    string
	Class      error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s: status=%d code=%s: %s", e.Channel, e.Operation, e.StatusCode, e.RemoteCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Class
}
