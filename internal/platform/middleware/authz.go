// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package middleware

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/taibuivan/bizmap/internal/guard"
	"github.com/taibuivan/bizmap/internal/platform/constants"
	"github.com/taibuivan/bizmap/internal/platform/ctxutil"
	"github.com/taibuivan/bizmap/internal/session"
)

// pendingRetrySeconds is the Retry-After hint sent while the session initializes.
const pendingRetrySeconds = 1

// SessionSource supplies the session snapshot the guards decide on.
// [session.Manager] implements it.
type SessionSource interface {
	Snapshot() session.Snapshot
}

// Guard applies a route guard to page requests.
//
// # Flow
//  1. Take one snapshot of the session.
//  2. Pending: answer 202 with Retry-After; the page is asked for again later.
//  3. RedirectTo: answer 303 to the decided location.
//  4. Allow: inject the session state into the context and continue.
//
// # Parameters
//   - source: The SessionSource instance.
//   - route: The guard variant for the mounted pages.
//
// # Returns
//   - An [http.Handler] middleware.
func Guard(source SessionSource, route guard.Route) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			snapshot := source.Snapshot()

			decision := guard.Check(snapshot, route, guard.Request{
				Path: request.URL.Path,
				From: request.URL.Query().Get("from"),
			})

			switch decision.Outcome {

			// ── 1. Session Still Loading ──────────────────────────────────────
			case guard.Pending:
				writer.Header().Set("Retry-After", strconv.Itoa(pendingRetrySeconds))
				writeStatus(writer, http.StatusAccepted, string(session.StateInitializing))

			// ── 2. Redirect ───────────────────────────────────────────────────
			case guard.RedirectTo:
				ctxutil.GetLogger(request.Context()).Debug("guard_redirect",
					slog.String("from", request.URL.Path),
					slog.String("to", decision.Location),
				)
				http.Redirect(writer, request, decision.Location, http.StatusSeeOther)

			// ── 3. Allowed ────────────────────────────────────────────────────
			default:
				ctx := ctxutil.WithSessionStatus(request.Context(), string(snapshot.State))
				next.ServeHTTP(writer, request.WithContext(ctx))
			}
		})
	}
}

// writeStatus outputs a JSON body carrying only a status field.
func writeStatus(writer http.ResponseWriter, status int, value string) {
	writer.Header().Set("Content-Type", "application/json; charset=utf-8")
	writer.WriteHeader(status)
	_, _ = writer.Write([]byte(`{"` + constants.FieldStatus + `":"` + value + `"}`))
}

// RequireAuthenticated protects JSON endpoints. Unlike [Guard] it never
// redirects: a session still loading answers 503 with Retry-After and
// anything short of Authenticated answers 401.
func RequireAuthenticated(source SessionSource) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			snapshot := source.Snapshot()

			switch {
			case !snapshot.Ready || !snapshot.State.Settled():
				writer.Header().Set("Retry-After", strconv.Itoa(pendingRetrySeconds))
				writeError(writer, http.StatusServiceUnavailable, "SESSION_INITIALIZING", "Session is still loading")
			case snapshot.State != session.StateAuthenticated:
				writeError(writer, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
			default:
				ctx := ctxutil.WithSessionStatus(request.Context(), string(snapshot.State))
				next.ServeHTTP(writer, request.WithContext(ctx))
			}
		})
	}
}
