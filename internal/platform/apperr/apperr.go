// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package apperr defines the centralized error handling framework for the BizMap client.

It provides a rich error type that bridges the gap between low-level transport
failures, backend error payloads, voice platform failures and the user-visible
copy shown by the client.

Architecture:

  - AppError: A struct containing a machine-readable Code, a taxonomy Kind and user-facing copy.
  - Classification: Backend responses are classified once, at the API boundary (see [Classify]).
  - Mapping: Explicit mapping from AppError to HTTP status codes for the local shell.

Every error that leaves the API client or the voice engine should be an [AppError]
so the session layer can decide state transitions by Kind instead of by string.
*/
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the error taxonomy used by the session and voice layers.
type Kind string

const (
	KindNetwork         Kind = "network"
	KindValidation      Kind = "validation"
	KindAuth            Kind = "auth"
	KindPermission      Kind = "permission"
	KindNotFound        Kind = "not_found"
	KindRateLimit       Kind = "rate_limit"
	KindServer          Kind = "server"
	KindVoiceCapability Kind = "voice_capability"
	KindVoiceRuntime    Kind = "voice_runtime"
	KindInternal        Kind = "internal"
)

// AppError is the canonical error type for the BizMap client.
//
// It carries a taxonomy kind, an HTTP status code, a machine-readable code,
// a user-facing message, and an optional slice of field-level errors.
//
// # Security
//
// The Cause field is for logging only and is never rendered to the user
// to avoid leaking transport details (e.g., dial errors with internal hosts).
type AppError struct {
	// Code is a machine-readable error identifier (e.g. "NETWORK_ERROR", "UNAUTHORIZED").
	Code string `json:"code"`
	// Kind is the taxonomy bucket the error belongs to.
	Kind Kind `json:"kind"`
	// Message is a human-readable description safe to show to the user.
	Message string `json:"error"`
	// HTTPStatus is the status received from the backend, or the one the local shell answers with.
	HTTPStatus int `json:"-"`
	// Cause is the underlying error, used for logging only.
	Cause error `json:"-"`
	// Details holds per-field errors so a form can display them next to the input.
	Details []FieldError `json:"details,omitempty"`
}

// FieldError represents a single field-level validation failure.
type FieldError struct {
	// Field is the JSON field name that failed validation.
	Field string `json:"field"`
	// Message is the human-readable description of the failure.
	Message string `json:"message"`
}

// Error implements the error interface. It returns the user-facing message.
func (e *AppError) Error() string { return e.Message }

// Unwrap allows [errors.Is] and [errors.As] to traverse the cause chain.
func (e *AppError) Unwrap() error { return e.Cause }

// # Transport Errors

// Network creates an [AppError] for a request that never produced a response.
//
// When unreachable is true the backend refused the connection, which in practice
// means the API server is not running; otherwise the user's connectivity is blamed.
func Network(cause error, unreachable bool) *AppError {
	msg := "Network error. Please check your internet connection."
	if unreachable {
		msg = "Backend service is not available. Please ensure the BizMap server is running."
	}
	return &AppError{
		Code:       "NETWORK_ERROR",
		Kind:       KindNetwork,
		Message:    msg,
		HTTPStatus: http.StatusBadGateway,
		Cause:      cause,
	}
}

// # Client Errors (4xx)

// NotFound creates a 404 [AppError] for a named resource.
//
// Example:
//
//	apperr.NotFound("Session") // Returns "Session not found"
func NotFound(resource string) *AppError {
	return &AppError{
		Code:       "NOT_FOUND",
		Kind:       KindNotFound,
		Message:    resource + " not found",
		HTTPStatus: http.StatusNotFound,
	}
}

// Unauthorized creates a 401 [AppError].
func Unauthorized(msg string) *AppError {
	return &AppError{
		Code:       "UNAUTHORIZED",
		Kind:       KindAuth,
		Message:    msg,
		HTTPStatus: http.StatusUnauthorized,
	}
}

// Forbidden creates a 403 [AppError].
func Forbidden(msg string) *AppError {
	return &AppError{
		Code:       "FORBIDDEN",
		Kind:       KindPermission,
		Message:    msg,
		HTTPStatus: http.StatusForbidden,
	}
}

// Conflict creates a 409 [AppError], used when an operation is already in progress.
func Conflict(msg string) *AppError {
	return &AppError{
		Code:       "CONFLICT",
		Kind:       KindValidation,
		Message:    msg,
		HTTPStatus: http.StatusConflict,
	}
}

// ValidationError creates a 400 [AppError] with optional per-field details.
func ValidationError(msg string, details ...FieldError) *AppError {
	return &AppError{
		Code:       "VALIDATION_ERROR",
		Kind:       KindValidation,
		Message:    msg,
		HTTPStatus: http.StatusBadRequest,
		Details:    details,
	}
}

// RateLimited creates a 429 [AppError].
func RateLimited(retryAfterSeconds int) *AppError {
	return &AppError{
		Code:       "RATE_LIMITED",
		Kind:       KindRateLimit,
		Message:    fmt.Sprintf("Too many requests. Try again in %ds.", retryAfterSeconds),
		HTTPStatus: http.StatusTooManyRequests,
	}
}

// # Server Errors (5xx)

// Server creates an [AppError] for a backend 5xx answer.
func Server(status int, msg string) *AppError {
	return &AppError{
		Code:       "SERVER_ERROR",
		Kind:       KindServer,
		Message:    msg,
		HTTPStatus: status,
	}
}

// Internal creates a 500 [AppError] wrapping an unexpected client-side error.
// The cause is stored for logging but is never shown to the user.
func Internal(cause error) *AppError {
	return &AppError{
		Code:       "INTERNAL_ERROR",
		Kind:       KindInternal,
		Message:    "An unexpected error occurred",
		HTTPStatus: http.StatusInternalServerError,
		Cause:      cause,
	}
}

// ServiceUnavailable creates a 503 [AppError], used by readiness probes.
func ServiceUnavailable(msg string) *AppError {
	return &AppError{
		Code:       "SERVICE_UNAVAILABLE",
		Kind:       KindServer,
		Message:    msg,
		HTTPStatus: http.StatusServiceUnavailable,
	}
}

// # Voice Errors

// VoiceCapability reports that the speech platform lacks recognition or synthesis.
func VoiceCapability(msg string) *AppError {
	return &AppError{
		Code:       "VOICE_UNSUPPORTED",
		Kind:       KindVoiceCapability,
		Message:    msg,
		HTTPStatus: http.StatusNotImplemented,
	}
}

// VoiceRuntime reports a recognition or synthesis failure mid-operation.
// code is the platform error code (e.g. "no-speech") and is kept as the cause.
func VoiceRuntime(code, msg string) *AppError {
	return &AppError{
		Code:       "VOICE_ERROR",
		Kind:       KindVoiceRuntime,
		Message:    msg,
		HTTPStatus: http.StatusInternalServerError,
		Cause:      errors.New(code),
	}
}

// # Helpers

// IsAppError reports whether err (or any error in its chain) is an [*AppError].
func IsAppError(err error) bool {
	var ae *AppError
	return errors.As(err, &ae)
}

// As extracts the [*AppError] from err's chain. It returns nil if not found.
func As(err error) *AppError {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae
	}
	return nil
}

// IsKind reports whether err carries an [*AppError] of the given kind.
func IsKind(err error, kind Kind) bool {
	ae := As(err)
	return ae != nil && ae.Kind == kind
}
