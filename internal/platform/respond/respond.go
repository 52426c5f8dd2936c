// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package respond provides HTTP response helpers used by all shell handlers.
//
// # Architecture
//
// Every response the local shell writes (Success or Error) follows one JSON
// envelope so the browser UI can parse session, assistant and voice answers
// with the same code path.
package respond

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/taibuivan/bizmap/internal/platform/apperr"
	"github.com/taibuivan/bizmap/internal/platform/ctxutil"
)

// SuccessEnvelope is the JSON envelope for successful responses.
type SuccessEnvelope struct {
	Data any `json:"data"`
}

// ErrorEnvelope is the JSON envelope for error responses.
type ErrorEnvelope struct {
	Error    string              `json:"error"`
	Code     string              `json:"code"`
	Kind     apperr.Kind         `json:"kind,omitempty"`
	Redirect string              `json:"redirect,omitempty"`
	Details  []apperr.FieldError `json:"details,omitempty"`
}

// JSON writes a JSON response with the given status code.
func JSON(writer http.ResponseWriter, statusCode int, payload any) {
	writer.Header().Set("Content-Type", "application/json; charset=utf-8")
	writer.WriteHeader(statusCode)
	_ = json.NewEncoder(writer).Encode(payload)
}

// OK writes a 200 OK response with data wrapped in the standard success envelope.
func OK(writer http.ResponseWriter, data any) {
	JSON(writer, http.StatusOK, SuccessEnvelope{Data: data})
}

// Accepted writes a 202 Accepted response for work that finishes in the background.
func Accepted(writer http.ResponseWriter, data any) {
	JSON(writer, http.StatusAccepted, SuccessEnvelope{Data: data})
}

// NoContent writes a 204 No Content response.
func NoContent(writer http.ResponseWriter) {
	writer.WriteHeader(http.StatusNoContent)
}

// Error converts any Go error into a standardized JSON error response.
func Error(writer http.ResponseWriter, request *http.Request, err error) {
	ErrorWithRedirect(writer, request, err, "")
}

// ErrorWithRedirect is [Error] plus the page the UI should move to.
func ErrorWithRedirect(writer http.ResponseWriter, request *http.Request, err error, redirect string) {
	logger := ctxutil.GetLogger(request.Context())

	appError := apperr.As(err)
	if appError == nil {
		// Unexpected internal error: log full details but hide them from the client.
		logger.ErrorContext(request.Context(), "unhandled_error_swallowed",
			slog.String("error", err.Error()),
			slog.String("request_id", ctxutil.GetRequestID(request.Context())),
		)
		appError = apperr.Internal(err)
	}

	status := statusFor(appError)
	if status >= 500 {
		logger.ErrorContext(request.Context(), "shell_server_error",
			slog.String("code", appError.Code),
			slog.Any("cause", appError.Cause),
		)
	}

	JSON(writer, status, ErrorEnvelope{
		Error:    appError.Message,
		Code:     appError.Code,
		Kind:     appError.Kind,
		Redirect: redirect,
		Details:  appError.Details,
	})
}

// statusFor picks the status the shell answers with.
func statusFor(appError *apperr.AppError) int {
	if appError.HTTPStatus < 400 {
		return http.StatusInternalServerError
	}
	return appError.HTTPStatus
}
