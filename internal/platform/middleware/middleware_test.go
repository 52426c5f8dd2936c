// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/bizmap/internal/account"
	"github.com/taibuivan/bizmap/internal/guard"
	"github.com/taibuivan/bizmap/internal/platform/ctxutil"
	"github.com/taibuivan/bizmap/internal/platform/middleware"
	"github.com/taibuivan/bizmap/internal/platform/sec"
	"github.com/taibuivan/bizmap/internal/session"
)

type fixedConfig struct {
	development bool
	origins     []string
}

func (c fixedConfig) IsDevelopment() bool      { return c.development }
func (c fixedConfig) AllowedOrigins() []string { return c.origins }

type fixedSession session.Snapshot

func (s fixedSession) Snapshot() session.Snapshot { return session.Snapshot(s) }

// echoStatus answers 200 with the session status the middleware injected.
var echoStatus = http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
	_, _ = writer.Write([]byte(ctxutil.GetSessionStatus(request.Context())))
})

/*
TestOriginPolicy checks listed origins and the development loopback allowance.
*/
func TestOriginPolicy(t *testing.T) {
	listed := []string{"https://app.bizmap.rw/"}

	tests := []struct {
		name        string
		development bool
		origin      string
		want        bool
	}{
		{"listed_in_production", false, "https://app.bizmap.rw", true},
		{"loopback_in_development", true, "http://localhost:3000", true},
		{"loopback_ip_in_development", true, "http://127.0.0.1:5173", true},
		{"loopback_in_production", false, "http://localhost:3000", false},
		{"foreign_in_development", true, "https://evil.example", false},
		{"garbage", true, "::not a url", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			allowed := middleware.OriginPolicy(fixedConfig{development: tt.development, origins: listed})
			assert.Equal(t, tt.want, allowed(tt.origin))
		})
	}
}

/*
TestCORS_Preflight answers OPTIONS without reaching the handler.
*/
func TestCORS_Preflight(t *testing.T) {
	handler := middleware.CORS(fixedConfig{development: true})(echoStatus)

	request := httptest.NewRequest(http.MethodOptions, "/api/session", nil)
	request.Header.Set("Origin", "http://localhost:3000")
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)

	assert.Equal(t, http.StatusNoContent, recorder.Code)
	assert.Equal(t, "http://localhost:3000", recorder.Header().Get("Access-Control-Allow-Origin"))
}

/*
TestRequireAuthenticated never redirects: 503 while loading, 401 otherwise.
*/
func TestRequireAuthenticated(t *testing.T) {
	user := &account.User{ID: "u1", Role: sec.RoleCustomer, EmailVerified: true}

	tests := []struct {
		name     string
		snapshot session.Snapshot
		status   int
	}{
		{"initializing", session.Snapshot{State: session.StateInitializing}, http.StatusServiceUnavailable},
		{"anonymous", session.Snapshot{State: session.StateAnonymous, Ready: true}, http.StatusUnauthorized},
		{"unverified", session.Snapshot{State: session.StateUnverified, Ready: true, User: user}, http.StatusUnauthorized},
		{"authenticated", session.Snapshot{State: session.StateAuthenticated, Ready: true, User: user}, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := middleware.RequireAuthenticated(fixedSession(tt.snapshot))(echoStatus)

			recorder := httptest.NewRecorder()
			handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/assistant", nil))

			assert.Equal(t, tt.status, recorder.Code)
			assert.Empty(t, recorder.Header().Get("Location"))
			if tt.status == http.StatusServiceUnavailable {
				assert.Equal(t, "1", recorder.Header().Get("Retry-After"))
			}
			if tt.status == http.StatusOK {
				assert.Equal(t, string(session.StateAuthenticated), recorder.Body.String())
			}
		})
	}
}

/*
TestGuard maps each decision to its HTTP answer.
*/
func TestGuard(t *testing.T) {
	route := guard.Route{Kind: guard.Protected}

	t.Run("pending", func(t *testing.T) {
		handler := middleware.Guard(fixedSession{State: session.StateInitializing}, route)(echoStatus)

		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/dashboard", nil))

		assert.Equal(t, http.StatusAccepted, recorder.Code)
		assert.JSONEq(t, `{"status":"initializing"}`, recorder.Body.String())
	})

	t.Run("redirect", func(t *testing.T) {
		handler := middleware.Guard(fixedSession{State: session.StateAnonymous, Ready: true}, route)(echoStatus)

		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/dashboard", nil))

		require.Equal(t, http.StatusSeeOther, recorder.Code)
		assert.Equal(t, "/login?from=%2Fdashboard", recorder.Header().Get("Location"))
	})

	t.Run("allow", func(t *testing.T) {
		snapshot := fixedSession{
			State: session.StateAuthenticated,
			Ready: true,
			User:  &account.User{ID: "u1", Role: sec.RoleCustomer, EmailVerified: true},
		}
		handler := middleware.Guard(snapshot, route)(echoStatus)

		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/dashboard", nil))

		assert.Equal(t, http.StatusOK, recorder.Code)
		assert.Equal(t, "authenticated", recorder.Body.String())
	})
}
