package apperror

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/medgraph/medgraph/pkg/surql"
)

// Error represents an application error with HTTP status and error code
type Error struct {
	HTTPStatus int
	Code       string
	Message    string
	Internal   error
	Details    map[string]any
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Internal != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Internal)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the internal error
func (e *Error) Unwrap() error {
	return e.Internal
}

// ToEchoError converts the app error to an echo.HTTPError
func (e *Error) ToEchoError() *echo.HTTPError {
	return echo.NewHTTPError(e.HTTPStatus, map[string]any{"error": e.Body()})
}

// Body returns the JSON error object: code, message and optional details.
func (e *Error) Body() map[string]any {
	body := map[string]any{
		"code":    e.Code,
		"message": e.Message,
	}
	if len(e.Details) > 0 {
		body["details"] = e.Details
	}
	return body
}

// WithInternal returns a copy of the error with an internal error attached
func (e *Error) WithInternal(err error) *Error {
	c := *e
	c.Internal = err
	return &c
}

// WithMessage returns a copy of the error with a custom message
func (e *Error) WithMessage(message string) *Error {
	c := *e
	c.Message = message
	return &c
}

// WithDetails returns a copy of the error with details attached
func (e *Error) WithDetails(details map[string]any) *Error {
	c := *e
	c.Details = details
	return &c
}

// New creates a new application error
func New(status int, code, message string) *Error {
	return &Error{
		HTTPStatus: status,
		Code:       code,
		Message:    message,
	}
}

// Common error definitions
var (
	ErrNotFound     = New(http.StatusNotFound, "not_found", "Resource not found")
	ErrTaskNotFound = New(http.StatusNotFound, "task_not_found", "Task not found")

	ErrBadRequest       = New(http.StatusBadRequest, "bad_request", "Invalid request")
	ErrValidation       = New(http.StatusUnprocessableEntity, "validation_error", "Validation failed")
	ErrInvalidReference = New(http.StatusBadRequest, "invalid_reference", "Invalid record reference")
	ErrInvalidPayload   = New(http.StatusBadRequest, "invalid_payload", "Invalid edge payload")

	ErrInternal    = New(http.StatusInternalServerError, "internal_error", "An internal error occurred")
	ErrStore       = New(http.StatusBadGateway, "store_error", "Graph store operation failed")
	ErrUnavailable = New(http.StatusServiceUnavailable, "service_unavailable", "Service unavailable")
	ErrTimeout     = New(http.StatusGatewayTimeout, "timeout", "Operation timed out")
)

// FromError maps any error to an application error. Query-language and store
// errors get their own codes; everything unknown becomes internal_error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}

	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}

	var refErr *surql.InvalidReferenceError
	if errors.As(err, &refErr) {
		return ErrInvalidReference.WithMessage(refErr.Error()).WithInternal(err).WithDetails(map[string]any{
			"field": refErr.Role,
			"value": refErr.Value,
		})
	}

	var payloadErr *surql.InvalidPayloadError
	if errors.As(err, &payloadErr) {
		return ErrInvalidPayload.WithMessage(payloadErr.Error()).WithInternal(err).WithDetails(map[string]any{
			"key": payloadErr.Key,
		})
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout.WithInternal(err)
	}

	var storeErr *surql.StoreError
	if errors.As(err, &storeErr) {
		return ErrStore.WithInternal(err)
	}

	return ErrInternal.WithInternal(err)
}

// ToHTTPError converts an error to an HTTP-friendly format
func ToHTTPError(err error) (int, map[string]any) {
	appErr := FromError(err)
	if appErr == nil {
		appErr = ErrInternal
	}
	return appErr.HTTPStatus, map[string]any{"error": appErr.Body()}
}

// NewBadRequest creates a bad request error with a custom message
func NewBadRequest(message string) *Error {
	return ErrBadRequest.WithMessage(message)
}

// NewNotFound creates a not found error for a resource type and ID
func NewNotFound(resourceType, id string) *Error {
	return ErrNotFound.WithMessage(fmt.Sprintf("%s '%s' not found", resourceType, id))
}

// NewInternal creates an internal error with a message and optional wrapped error
func NewInternal(message string, err error) *Error {
	return ErrInternal.WithMessage(message).WithInternal(err)
}
