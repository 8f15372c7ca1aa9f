package upstream

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

var (
	// ErrUnauthorized matches a *StatusError carrying HTTP 401.
	ErrUnauthorized = errors.New("upstream unauthorized")
	// ErrRateLimitExceeded matches a *StatusError carrying HTTP 429.
	ErrRateLimitExceeded = errors.New("upstream rate limit exceeded")
)

// StatusError is a non-2xx answer from an upstream API.
type StatusError struct {
	Service    string
	StatusCode int
	RetryAfter time.Duration // parsed Retry-After header, zero when absent
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s responded with status %d", e.Service, e.StatusCode)
}

// Is lets errors.Is match the sentinel for the status code.
func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized
	case ErrRateLimitExceeded:
		return e.StatusCode == http.StatusTooManyRequests
	}
	return false
}

// AuthError reports that a token could not be obtained.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("upstream authentication failed: %v", e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// LogicError is a 2xx-shaped upstream answer that flags a failure in its body.
type LogicError struct {
	Service string
	Message string
}

func (e *LogicError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s reported an error", e.Service)
	}
	return fmt.Sprintf("%s reported an error: %s", e.Service, e.Message)
}
