// Package apierr defines the client-facing error taxonomy shared by every
// endpoint. Each Error carries a machine-readable code, a human message, and
// the HTTP status it maps to.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a machine-readable error identifier returned in the response envelope
type Code string

const (
	CodeUnauthorized        Code = "UNAUTHORIZED"
	CodeForbidden           Code = "FORBIDDEN"
	CodeNotFound            Code = "NOT_FOUND"
	CodeValidation          Code = "VALIDATION_ERROR"
	CodeInsufficientBalance Code = "INSUFFICIENT_BALANCE"
	CodeRateLimited         Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal            Code = "INTERNAL_ERROR"
)

// Status returns the HTTP status code for an error code
func (c Code) Status() int {
	switch c {
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeValidation:
		return http.StatusBadRequest
	case CodeInsufficientBalance:
		return http.StatusPaymentRequired
	case CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Error is an error that can be rendered to a client.
// Cause is kept for logging and never serialized.
type Error struct {
	Code    Code              `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
	Cause   error             `json:"-"`
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Status returns the HTTP status for this error
func (e *Error) Status() int {
	return e.Code.Status()
}

// WithDetail returns a copy of the error with an additional detail entry
func (e *Error) WithDetail(key, value string) *Error {
	details := make(map[string]string, len(e.Details)+1)
	for k, v := range e.Details {
		details[k] = v
	}
	details[key] = value
	return &Error{Code: e.Code, Message: e.Message, Details: details, Cause: e.Cause}
}

// New creates an error with the given code and message
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Unauthorized creates a 401 error
func Unauthorized(message string) *Error {
	if message == "" {
		message = "Invalid or missing API key"
	}
	return New(CodeUnauthorized, message)
}

// Forbidden creates a 403 error
func Forbidden(message string) *Error {
	return New(CodeForbidden, message)
}

// NotFound creates a 404 error
func NotFound(message string) *Error {
	return New(CodeNotFound, message)
}

// Validation creates a 400 error
func Validation(message string) *Error {
	return New(CodeValidation, message)
}

// MissingFields creates a 400 error listing the absent required fields
func MissingFields(fields ...string) *Error {
	e := Validation("Missing required fields")
	e.Details = make(map[string]string, len(fields))
	for _, f := range fields {
		e.Details[f] = "required"
	}
	return e
}

// InsufficientBalance creates a 402 error
func InsufficientBalance(message string) *Error {
	if message == "" {
		message = "Insufficient balance"
	}
	return New(CodeInsufficientBalance, message)
}

// RateLimited creates a 429 error
func RateLimited(message string) *Error {
	if message == "" {
		message = "Rate limit exceeded"
	}
	return New(CodeRateLimited, message)
}

// Internal creates a 500 error. The cause is retained for logs only.
func Internal(cause error) *Error {
	return &Error{Code: CodeInternal, Message: "An internal error occurred", Cause: cause}
}

// From converts any error into an *Error, treating unknown errors as internal
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return Internal(err)
}
