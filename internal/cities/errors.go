package cities

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"polluted/internal/models"
	"polluted/internal/ratelimit"
	"polluted/internal/storage"
	"polluted/internal/upstream"
)

// ErrNoContent is returned when the pollution API had nothing to report.
var ErrNoContent = errors.New("no content")

// ServiceError represents errors from the cities service with HTTP context
type ServiceError struct {
	Code       string
	Message    string
	StatusCode int
	Err        error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// Error constructors for common service errors

func NewValidationError(err error) *ServiceError {
	return &ServiceError{
		Code:       models.ErrorCodeValidation,
		Message:    "invalid request",
		StatusCode: http.StatusBadRequest,
		Err:        err,
	}
}

func NewUnknownCountryError(code string) *ServiceError {
	return &ServiceError{
		Code:       models.ErrorCodeUnknownCountry,
		Message:    fmt.Sprintf("unknown country code '%s'", code),
		StatusCode: http.StatusBadRequest,
	}
}

func NewStoreUnavailableError(err error) *ServiceError {
	return &ServiceError{
		Code:       models.ErrorCodeStoreUnavailable,
		Message:    "cache store unavailable",
		StatusCode: http.StatusServiceUnavailable,
		Err:        err,
	}
}

func NewUpstreamRateLimitedError(service string, err error) *ServiceError {
	return &ServiceError{
		Code:       models.ErrorCodeUpstreamRateLimited,
		Message:    fmt.Sprintf("%s API rate limit exhausted", service),
		StatusCode: http.StatusServiceUnavailable,
		Err:        err,
	}
}

func NewUpstreamAuthError(service string, err error) *ServiceError {
	return &ServiceError{
		Code:       models.ErrorCodeUpstreamAuthFailed,
		Message:    fmt.Sprintf("%s API authentication failed", service),
		StatusCode: http.StatusBadGateway,
		Err:        err,
	}
}

func NewUpstreamError(service string, err error) *ServiceError {
	return &ServiceError{
		Code:       models.ErrorCodeUpstreamError,
		Message:    fmt.Sprintf("%s API request failed", service),
		StatusCode: http.StatusBadGateway,
		Err:        err,
	}
}

func NewTimeoutError(err error) *ServiceError {
	return &ServiceError{
		Code:       models.ErrorCodeInternalError,
		Message:    "request cancelled or timed out",
		StatusCode: http.StatusGatewayTimeout,
		Err:        err,
	}
}

// classify converts an error raised while talking to service into a
// *ServiceError. This is the only place internal errors become user-visible.
func classify(service string, err error) *ServiceError {
	var (
		se       *ServiceError
		storeErr *storage.Error
		authErr  *upstream.AuthError
		logicErr *upstream.LogicError
	)
	switch {
	case errors.As(err, &se):
		return se
	case errors.As(err, &storeErr):
		return NewStoreUnavailableError(err)
	case errors.As(err, &authErr), errors.Is(err, upstream.ErrUnauthorized):
		return NewUpstreamAuthError(service, err)
	case errors.Is(err, upstream.ErrRateLimitExceeded), errors.Is(err, ratelimit.ErrWaitBudgetExceeded):
		return NewUpstreamRateLimitedError(service, err)
	case errors.As(err, &logicErr):
		return &ServiceError{
			Code:       models.ErrorCodeUpstreamError,
			Message:    logicErr.Error(),
			StatusCode: http.StatusBadGateway,
			Err:        err,
		}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return NewTimeoutError(err)
	default:
		return NewUpstreamError(service, err)
	}
}
