// Package apperror defines the error taxonomy shared by every layer.
//
// Services return *AppError values wrapping one of the sentinel errors below.
// The HTTP layer (handler.writeError) is the only place that turns them into
// status codes, so the services never import net/http.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrValidation        = errors.New("validation error")
	ErrConflict          = errors.New("conflict")
	ErrInvalidCredential = errors.New("invalid credential")
	ErrUpstream          = errors.New("upstream error")
	ErrUpstreamTimeout   = errors.New("upstream timeout")
	ErrUnavailable       = errors.New("unavailable")
)

type AppError struct {
	Err     error  // sentinel, matched with errors.Is
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
	Details string // Optional: raw provider detail for upstream failures
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

// InvalidCredential is returned for a wrong, expired or unknown login code.
// The three cases share one message so a caller cannot tell them apart.
func InvalidCredential(message string) *AppError {
	return &AppError{
		Err:     ErrInvalidCredential,
		Message: message,
	}
}

// Upstream wraps a failure of an external provider (LLM, SMS, storage).
// message is the summary shown to clients; cause ends up in Details.
func Upstream(message string, cause error) *AppError {
	e := &AppError{
		Err:     ErrUpstream,
		Message: message,
	}
	if cause != nil {
		e.Details = cause.Error()
	}
	return e
}

// UpstreamTimeout marks a provider call that ran out of time. Callers may retry.
func UpstreamTimeout(message string) *AppError {
	return &AppError{
		Err:     ErrUpstreamTimeout,
		Message: message,
		Details: "the upstream provider did not answer in time, please retry",
	}
}

// Unavailable reports an optional collaborator that is not configured.
func Unavailable(message string) *AppError {
	return &AppError{
		Err:     ErrUnavailable,
		Message: message,
	}
}
