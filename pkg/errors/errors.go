package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinels every AppError wraps, so errors.Is works across layers.
var (
	ErrNotFound       = errors.New("resource not found")
	ErrAlreadyExists  = errors.New("resource already exists")
	ErrInvalidInput   = errors.New("invalid input")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrInternal       = errors.New("internal error")
	ErrConflict       = errors.New("conflict")
	ErrServiceUnavail = errors.New("service unavailable")
)

// AppError carries a machine-readable code and a user-readable message. The
// HTTP status is derived from it when rendering.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// kind ties a sentinel to its status, default code and public message. An
// empty message means the error text itself is safe to show.
type kind struct {
	sentinel error
	status   int
	code     string
	message  string
}

var kinds = []kind{
	{ErrNotFound, http.StatusNotFound, "NOT_FOUND", "resource not found"},
	{ErrConflict, http.StatusConflict, "CONFLICT", "resource was modified concurrently"},
	{ErrAlreadyExists, http.StatusConflict, "ALREADY_EXISTS", "resource already exists"},
	{ErrInvalidInput, http.StatusBadRequest, "INVALID_INPUT", ""},
	{ErrUnauthorized, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required"},
	{ErrForbidden, http.StatusForbidden, "FORBIDDEN", "permission denied"},
	{ErrServiceUnavail, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "service temporarily unavailable"},
}

// New creates an AppError with an explicit code and status. Err should be one
// of the package sentinels (or wrap one) so HTTPStatus and errors.Is keep working.
func New(code string, status int, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Status: status, Err: err}
}

func NotFound(resource, id string) *AppError {
	return New("NOT_FOUND", http.StatusNotFound, fmt.Sprintf("%s with id %s not found", resource, id), ErrNotFound)
}

func AlreadyExists(resource, field, value string) *AppError {
	return New("ALREADY_EXISTS", http.StatusConflict,
		fmt.Sprintf("%s with %s %q already exists", resource, field, value), ErrAlreadyExists)
}

func InvalidInput(message string) *AppError {
	return New("INVALID_INPUT", http.StatusBadRequest, message, ErrInvalidInput)
}

// Validation creates a 400 error carrying a specific validation code. A nil
// err defaults to ErrInvalidInput.
func Validation(code, message string, err error) *AppError {
	if err == nil {
		err = ErrInvalidInput
	}
	return New(code, http.StatusBadRequest, message, err)
}

func Unauthorized(message string) *AppError {
	return New("UNAUTHORIZED", http.StatusUnauthorized, message, ErrUnauthorized)
}

func Forbidden(message string) *AppError {
	return New("FORBIDDEN", http.StatusForbidden, message, ErrForbidden)
}

func Conflict(message string) *AppError {
	return New("CONFLICT", http.StatusConflict, message, ErrConflict)
}

// Internal hides err behind a generic message.
func Internal(err error) *AppError {
	return New("INTERNAL_ERROR", http.StatusInternalServerError, "an internal error occurred", err)
}

// Classify returns err as an AppError. Plain errors are matched against the
// sentinels; anything unrecognised becomes Internal.
func Classify(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	for _, k := range kinds {
		if errors.Is(err, k.sentinel) {
			message := k.message
			if message == "" {
				message = err.Error()
			}
			return New(k.code, k.status, message, err)
		}
	}
	return Internal(err)
}

// HTTPStatus returns the HTTP status code for the given error.
func HTTPStatus(err error) int {
	return Classify(err).Status
}

// FromStatus builds an AppError for a response received from another
// service. Empty code and message fall back to the defaults for status.
func FromStatus(status int, code, message string) *AppError {
	sentinel, defaultCode := ErrInternal, "INTERNAL_ERROR"
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		sentinel, defaultCode = ErrInvalidInput, "INVALID_INPUT"
	case http.StatusTooManyRequests:
		sentinel, defaultCode = ErrServiceUnavail, "SERVICE_UNAVAILABLE"
	default:
		for _, k := range kinds {
			if k.status == status {
				sentinel, defaultCode = k.sentinel, k.code
				break
			}
		}
		if sentinel == ErrInternal && status < http.StatusInternalServerError {
			sentinel, defaultCode = ErrInvalidInput, "INVALID_INPUT"
		}
	}
	if code == "" {
		code = defaultCode
	}
	if message == "" {
		message = http.StatusText(status)
	}
	return New(code, status, message, sentinel)
}
