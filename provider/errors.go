package provider

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownProvider     = errors.New("unknown provider")
	ErrUnavailable         = errors.New("model service unavailable")
	ErrRateLimited         = errors.New("rate limited")
	ErrInvalidRequest      = errors.New("invalid request")
	ErrTimeout             = errors.New("request timed out")
	ErrCredentialsNotFound = errors.New("no API key configured")
	ErrUnauthorized        = errors.New("unauthorized")

	// ErrToolLoopExceeded means the model still wanted tools after the
	// last allowed round.
	ErrToolLoopExceeded = errors.New("tool loop exceeded iteration limit")
)

// transient are the sentinels worth retrying when no *Error says otherwise.
var transient = []error{ErrRateLimited, ErrUnavailable, ErrTimeout}

// Error is a failed call to a provider. Op names the client method
// ("chat", "stream", "chat_with_tools", "new").
type Error struct {
	Provider  string
	Op        string
	Err       error
	Retryable bool
}

func NewError(provider, op string, err error, retryable bool) *Error {
	return &Error{Provider: provider, Op: op, Err: err, Retryable: retryable}
}

func (e *Error) Error() string {
	if e.Provider == "" {
		return e.Op + ": " + e.Err.Error()
	}
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsRetryable reports whether err is transient. A *Error in the chain
// decides; otherwise the rate limit, unavailable and timeout sentinels do.
func IsRetryable(err error) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	for _, s := range transient {
		if errors.Is(err, s) {
			return true
		}
	}
	return false
}

// IsAuthError reports a missing or rejected API key.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrCredentialsNotFound) || errors.Is(err, ErrUnauthorized)
}
