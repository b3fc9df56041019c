// Package errors defines the sentinel errors shared across services and maps
// them onto HTTP status codes.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrLookupFailed       = errors.New("keyword lookup failed")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrPublishFailed      = errors.New("publish failed")
	ErrTimeout            = errors.New("operation timed out")
)

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// HTTPStatusCode picks the status for err. An AppError's own status wins;
// otherwise the wrapped sentinel decides.
func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrStorageUnavailable), errors.Is(err, ErrPublishFailed):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
