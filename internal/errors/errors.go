// Package errors defines the error vocabulary of the status API. Handler
// failures travel as APIError values; everything leaves the daemon as an
// RFC 7807 problem response built by ErrorHandler.
package errors

import "net/http"

// APIError is a handler-originated failure carrying an HTTP status and a
// stable machine-readable code. ErrorHandler renders it as a problem
// response with the code preserved in the "error_code" extension, so
// clients can branch without parsing prose.
type APIError struct {
	StatusCode int         `json:"status_code"`
	ErrorCode  string      `json:"error_code"`
	Message    string      `json:"message"`
	Details    interface{} `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return e.Message
}

// New creates an APIError.
func New(statusCode int, errorCode, message string) *APIError {
	return &APIError{
		StatusCode: statusCode,
		ErrorCode:  errorCode,
		Message:    message,
	}
}

// NewWithDetails creates an APIError with structured details, typically
// the offending part of the request.
func NewWithDetails(statusCode int, errorCode, message string, details interface{}) *APIError {
	return &APIError{
		StatusCode: statusCode,
		ErrorCode:  errorCode,
		Message:    message,
		Details:    details,
	}
}

// ErrInvalidRequest rejects a request that could not be bound.
var ErrInvalidRequest = New(http.StatusBadRequest, "INVALID_REQUEST", "Invalid request format")

// ValidationError names a request field that failed validation.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ErrValidation builds the rejection for a single invalid request field.
func ErrValidation(field, message string) *APIError {
	return NewWithDetails(http.StatusBadRequest, "VALIDATION_FAILED", "Request validation failed", ValidationError{
		Field:   field,
		Message: message,
	})
}
