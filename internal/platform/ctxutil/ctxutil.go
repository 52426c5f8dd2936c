// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package ctxutil provides helpers for interacting with values stored in [context.Context].
package ctxutil

import (
	"context"
	"log/slog"

	"github.com/taibuivan/bizmap/internal/platform/ctxkey"
)

// # Request Tracing

// WithRequestID returns a new context with the provided request ID attached.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxkey.KeyRequestID, id)
}

// GetRequestID retrieves the request ID from the context.
// Returns an empty string if not found.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxkey.KeyRequestID).(string)
	return id
}

// # Structured Logging

// WithLogger returns a new context with the provided logger attached.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxkey.KeyLogger, logger)
}

// GetLogger retrieves the logger from the context.
// If no logger is found, it returns the global default logger.
func GetLogger(ctx context.Context) *slog.Logger {
	logger, ok := ctx.Value(ctxkey.KeyLogger).(*slog.Logger)
	if !ok {
		return slog.Default()
	}
	return logger
}

// # Session

// WithSessionStatus returns a new context carrying the status the route guard saw.
//
// Handlers render from this value instead of re-reading the session, so a page
// never disagrees with the decision that let the request through.
func WithSessionStatus(ctx context.Context, status string) context.Context {
	return context.WithValue(ctx, ctxkey.KeySessionStatus, status)
}

// GetSessionStatus retrieves the guarded session status from the context.
// Returns an empty string when the request did not pass through a guard.
func GetSessionStatus(ctx context.Context) string {
	status, _ := ctx.Value(ctxkey.KeySessionStatus).(string)
	return status
}
