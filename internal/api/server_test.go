// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/bizmap/internal/account"
	"github.com/taibuivan/bizmap/internal/api"
	"github.com/taibuivan/bizmap/internal/apiclient"
	"github.com/taibuivan/bizmap/internal/assistant"
	"github.com/taibuivan/bizmap/internal/notify"
	"github.com/taibuivan/bizmap/internal/platform/apperr"
	"github.com/taibuivan/bizmap/internal/platform/config"
	"github.com/taibuivan/bizmap/internal/platform/sec"
	"github.com/taibuivan/bizmap/internal/session"
	"github.com/taibuivan/bizmap/internal/tokenstore"
	"github.com/taibuivan/bizmap/internal/voice"
)

// # Fakes

type fakeBackend struct {
	mu    sync.Mutex
	login func(account.Credentials) (*apiclient.AuthResponse, error)
}

var errBackendDown = apperr.Network(errors.New("connection refused"), true)

func (f *fakeBackend) Login(_ context.Context, c account.Credentials) (*apiclient.AuthResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.login == nil {
		return nil, errBackendDown
	}
	return f.login(c)
}

func (f *fakeBackend) Register(context.Context, account.RegisterData) (*apiclient.AuthResponse, error) {
	return nil, errBackendDown
}

func (f *fakeBackend) RefreshToken(context.Context, string) (*apiclient.RefreshResponse, error) {
	return nil, apperr.Unauthorized("Session expired. Please login again.")
}

func (f *fakeBackend) Profile(context.Context) (*account.User, error) { return nil, errBackendDown }
func (f *fakeBackend) Logout(context.Context) error                   { return nil }

func (f *fakeBackend) VerifyEmail(context.Context, string) (*apiclient.AuthResponse, error) {
	return nil, errBackendDown
}

func (f *fakeBackend) ResendEmailVerification(context.Context, string, string) (*apiclient.AuthResponse, error) {
	return nil, errBackendDown
}

func (f *fakeBackend) RequestPhoneVerification(context.Context, string) (*apiclient.AuthResponse, error) {
	return nil, errBackendDown
}

func (f *fakeBackend) VerifyPhone(context.Context, string, string) (*apiclient.AuthResponse, error) {
	return nil, errBackendDown
}

type offlineChat struct{}

func (offlineChat) Chat(context.Context, apiclient.ChatRequest) (*apiclient.ChatReply, error) {
	return nil, errBackendDown
}

type stubRecognizer struct{}

func (stubRecognizer) Available() bool { return true }
func (stubRecognizer) Start(context.Context, voice.RecognitionConfig, func(voice.RecognitionEvent)) error {
	return nil
}
func (stubRecognizer) Stop()  {}
func (stubRecognizer) Abort() {}

type mutedSynthesizer struct{}

func (mutedSynthesizer) Available() bool                             { return false }
func (mutedSynthesizer) Voices() []voice.Voice                       { return nil }
func (mutedSynthesizer) Speak(context.Context, voice.Utterance) error { return nil }
func (mutedSynthesizer) Cancel()                                     {}

// # Harness

type shell struct {
	backend *fakeBackend
	manager *session.Manager
	hub     *notify.Hub
	engine  *voice.Engine
	server  *httptest.Server
	client  *http.Client
}

func newShell(t *testing.T, checks ...api.HealthCheck) *shell {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	store := tokenstore.New(tokenstore.NewMemoryBackend())
	require.NoError(t, store.Init(ctx))

	s := &shell{backend: &fakeBackend{}, hub: notify.NewHub()}

	manager, err := session.New(store, s.backend, session.WithNotifier(s.hub), session.WithLogger(logger))
	require.NoError(t, err)
	t.Cleanup(manager.Close)
	s.manager = manager

	s.engine = voice.New(stubRecognizer{}, mutedSynthesizer{},
		voice.WithConfig(voice.DefaultConfig()),
		voice.WithNotifier(s.hub),
		voice.WithLogger(logger),
	)
	t.Cleanup(s.engine.Destroy)

	if len(checks) == 0 {
		checks = []api.HealthCheck{{Name: "token_store", Required: true, Check: store.Ping}}
	}
	liveness, readiness := api.NewHealthHandlers(checks, logger)

	cfg := &config.Config{ServerPort: "5173", Environment: "development"}
	server := api.NewServer(ctx, cfg, logger, api.Dependencies{
		Liveness:  liveness,
		Readiness: readiness,
		Session:   manager,
		Assistant: assistant.New(offlineChat{}, manager, assistant.WithLogger(logger)),
		Notices:   s.hub,
		Voice:     s.engine,
	})

	s.server = httptest.NewServer(server.Handler())
	t.Cleanup(s.server.Close)

	s.client = s.server.Client()
	s.client.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }
	return s
}

func (s *shell) do(t *testing.T, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	request, err := http.NewRequest(method, s.server.URL+path, reader)
	require.NoError(t, err)
	request.Header.Set("Content-Type", "application/json")

	response, err := s.client.Do(request)
	require.NoError(t, err)
	defer response.Body.Close()

	var decoded map[string]any
	_ = json.NewDecoder(response.Body).Decode(&decoded)
	return response, decoded
}

func accessToken(t *testing.T) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func (s *shell) acceptLogin(t *testing.T, role sec.UserRole) {
	t.Helper()
	token := accessToken(t)
	s.backend.login = func(account.Credentials) (*apiclient.AuthResponse, error) {
		return &apiclient.AuthResponse{
			Success:      true,
			AccessToken:  token,
			RefreshToken: "refresh-1",
			User: &account.User{
				ID:            "u1",
				Email:         "aline@example.rw",
				FirstName:     "Aline",
				Role:          role,
				EmailVerified: true,
			},
		}, nil
	}
}

/*
TestHealth reports liveness always and readiness from the required checks.
*/
func TestHealth(t *testing.T) {
	s := newShell(t,
		api.HealthCheck{Name: "token_store", Required: true, Check: func(context.Context) error { return nil }},
		api.HealthCheck{Name: "backend", Check: func(context.Context) error { return errors.New("down") }},
	)

	response, _ := s.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, response.StatusCode)

	response, body := s.do(t, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusOK, response.StatusCode, "an optional failure keeps the shell ready")
	assert.Equal(t, "ready", body["data"].(map[string]any)["status"])

	failing := newShell(t, api.HealthCheck{Name: "token_store", Required: true, Check: func(context.Context) error {
		return errors.New("closed")
	}})
	response, _ = failing.do(t, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, response.StatusCode)
}

/*
TestPages_WaitForInitialization makes zero redirects before the session settles
and exactly one afterwards.
*/
func TestPages_WaitForInitialization(t *testing.T) {
	s := newShell(t)

	response, body := s.do(t, http.MethodGet, "/dashboard", nil)
	assert.Equal(t, http.StatusAccepted, response.StatusCode)
	assert.Equal(t, "1", response.Header.Get("Retry-After"))
	assert.Empty(t, response.Header.Get("Location"))
	assert.Equal(t, string(session.StateInitializing), body["status"])

	require.Equal(t, session.StateAnonymous, s.manager.Init(context.Background()))

	response, _ = s.do(t, http.MethodGet, "/dashboard", nil)
	assert.Equal(t, http.StatusSeeOther, response.StatusCode)
	assert.Equal(t, "/login?from=%2Fdashboard", response.Header.Get("Location"))

	response, body = s.do(t, http.MethodGet, "/login", nil)
	assert.Equal(t, http.StatusOK, response.StatusCode)
	assert.Equal(t, "login", body["data"].(map[string]any)["view"])

	response, _ = s.do(t, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusOK, response.StatusCode)
}

/*
TestSession_Login signs in through the shell and returns to the remembered page.
*/
func TestSession_Login(t *testing.T) {
	s := newShell(t)
	s.manager.Init(context.Background())
	s.acceptLogin(t, sec.RoleCustomer)

	response, body := s.do(t, http.MethodPost, "/api/session/login", map[string]any{
		"email":    "aline@example.rw",
		"password": "secret-pass",
		"from":     "/assistant",
	})
	require.Equal(t, http.StatusOK, response.StatusCode)
	result := body["data"].(map[string]any)
	assert.Equal(t, string(session.StateAuthenticated), result["state"])
	assert.Equal(t, "/assistant", result["redirect"])

	response, body = s.do(t, http.MethodGet, "/dashboard", nil)
	require.Equal(t, http.StatusOK, response.StatusCode)
	assert.Equal(t, string(session.StateAuthenticated), body["data"].(map[string]any)["status"])

	// The public login page now sends the user to their landing page
	response, _ = s.do(t, http.MethodGet, "/login", nil)
	assert.Equal(t, http.StatusSeeOther, response.StatusCode)
	assert.Equal(t, "/dashboard", response.Header.Get("Location"))

	// A customer is not a business owner
	response, _ = s.do(t, http.MethodGet, "/business-dashboard", nil)
	assert.Equal(t, http.StatusSeeOther, response.StatusCode)
	assert.Equal(t, "/dashboard", response.Header.Get("Location"))

	response, body = s.do(t, http.MethodGet, "/api/session/permissions/create_business", nil)
	require.Equal(t, http.StatusOK, response.StatusCode)
	assert.Equal(t, false, body["data"].(map[string]any)["allowed"])

	response, body = s.do(t, http.MethodPost, "/api/session/logout", nil)
	require.Equal(t, http.StatusOK, response.StatusCode)
	assert.Equal(t, string(session.StateAnonymous), body["data"].(map[string]any)["state"])
}

/*
TestSession_LoginErrors renders validation details and backend failures.
*/
func TestSession_LoginErrors(t *testing.T) {
	s := newShell(t)
	s.manager.Init(context.Background())

	response, body := s.do(t, http.MethodPost, "/api/session/login", map[string]any{"password": ""})
	assert.Equal(t, http.StatusBadRequest, response.StatusCode)
	assert.Equal(t, "VALIDATION_ERROR", body["code"])
	assert.NotEmpty(t, body["details"])

	response, body = s.do(t, http.MethodPost, "/api/session/login", map[string]any{
		"email":    "aline@example.rw",
		"password": "secret-pass",
	})
	assert.Equal(t, http.StatusBadGateway, response.StatusCode)
	assert.Equal(t, string(apperr.KindNetwork), body["kind"])
	assert.Equal(t, session.StateAnonymous, s.manager.State())

	request, err := http.NewRequest(http.MethodPost, s.server.URL+"/api/session/login", strings.NewReader("{"))
	require.NoError(t, err)
	raw, err := s.client.Do(request)
	require.NoError(t, err)
	raw.Body.Close()
	assert.Equal(t, http.StatusBadRequest, raw.StatusCode)
}

/*
TestAssistant_RequiresAuthentication refuses the chat to anonymous users and
answers offline once signed in.
*/
func TestAssistant_RequiresAuthentication(t *testing.T) {
	s := newShell(t)

	response, _ := s.do(t, http.MethodPost, "/api/assistant/messages", map[string]any{"message": "hello"})
	assert.Equal(t, http.StatusServiceUnavailable, response.StatusCode, "session still loading")

	s.manager.Init(context.Background())
	response, _ = s.do(t, http.MethodPost, "/api/assistant/messages", map[string]any{"message": "hello"})
	assert.Equal(t, http.StatusUnauthorized, response.StatusCode)

	s.acceptLogin(t, sec.RoleCustomer)
	response, _ = s.do(t, http.MethodPost, "/api/session/login", map[string]any{"email": "aline@example.rw", "password": "secret-pass"})
	require.Equal(t, http.StatusOK, response.StatusCode)

	response, body := s.do(t, http.MethodPost, "/api/assistant/messages", map[string]any{
		"message":  "I am hungry, where can I eat?",
		"language": "en",
	})
	require.Equal(t, http.StatusOK, response.StatusCode)
	reply := body["data"].(map[string]any)
	assert.Equal(t, true, reply["degraded"])
	assert.Equal(t, "food", reply["intent"])
	assert.Contains(t, reply["content"], "Aline")

	response, body = s.do(t, http.MethodPost, "/api/assistant/messages", map[string]any{"message": "x", "language": "de"})
	assert.Equal(t, http.StatusBadRequest, response.StatusCode)
	assert.Equal(t, "VALIDATION_ERROR", body["code"])

	response, body = s.do(t, http.MethodGet, "/api/assistant", nil)
	require.Equal(t, http.StatusOK, response.StatusCode)
	assert.Len(t, body["data"].(map[string]any)["messages"], 3)
}

/*
TestVoice_Endpoints drives the engine and reports the missing synthesizer.
*/
func TestVoice_Endpoints(t *testing.T) {
	s := newShell(t)

	response, body := s.do(t, http.MethodGet, "/api/voice", nil)
	require.Equal(t, http.StatusOK, response.StatusCode)
	status := body["data"].(map[string]any)
	assert.Equal(t, true, status["recognition"])
	assert.Equal(t, false, status["synthesis"])
	assert.Equal(t, "rw", status["language"])

	response, _ = s.do(t, http.MethodPut, "/api/voice/language", map[string]any{"language": "xx"})
	assert.Equal(t, http.StatusBadRequest, response.StatusCode)

	response, body = s.do(t, http.MethodPut, "/api/voice/language", map[string]any{"language": "EN"})
	require.Equal(t, http.StatusOK, response.StatusCode)
	assert.Equal(t, "en", body["data"].(map[string]any)["language"])

	response, _ = s.do(t, http.MethodPost, "/api/voice/listen", nil)
	assert.Equal(t, http.StatusAccepted, response.StatusCode)
	response, _ = s.do(t, http.MethodPost, "/api/voice/listen", nil)
	assert.Equal(t, http.StatusConflict, response.StatusCode, "already listening")

	response, body = s.do(t, http.MethodPost, "/api/voice/stop", nil)
	require.Equal(t, http.StatusOK, response.StatusCode)
	assert.Equal(t, voice.Idle.String(), body["data"].(map[string]any)["state"])

	response, body = s.do(t, http.MethodPost, "/api/voice/speak", map[string]any{"text": "Muraho"})
	assert.Equal(t, http.StatusNotImplemented, response.StatusCode)
	assert.Equal(t, string(apperr.KindVoiceCapability), body["kind"])

	response, body = s.do(t, http.MethodGet, "/api/voice/languages", nil)
	require.Equal(t, http.StatusOK, response.StatusCode)
	assert.Len(t, body["data"], 3)
}

/*
TestEvents_Stream sends the session first, then notices and voice events.
*/
func TestEvents_Stream(t *testing.T) {
	s := newShell(t)
	s.manager.Init(context.Background())

	url := "ws" + strings.TrimPrefix(s.server.URL, "http") + "/ws/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	next := func() map[string]any {
		t.Helper()
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var frame map[string]any
		require.NoError(t, conn.ReadJSON(&frame))
		return frame
	}

	first := next()
	assert.Equal(t, "session", first["type"])
	assert.Equal(t, string(session.StateAnonymous), first["session"].(map[string]any)["state"])

	s.hub.Notify(notify.LevelInfo, "Hello", "")
	notice := next()
	assert.Equal(t, "notice", notice["type"])
	assert.Equal(t, "Hello", notice["notice"].(map[string]any)["title"])

	require.True(t, s.engine.StartListening())
	seen := map[string]bool{}
	for range 2 {
		seen[next()["type"].(string)] = true
	}
	assert.True(t, seen["voice"], "listening status is streamed")
	assert.True(t, seen["notice"], "listening notice is streamed")
}

/*
TestEvents_SessionChange pushes a session frame as soon as the user signs in.
*/
func TestEvents_SessionChange(t *testing.T) {
	s := newShell(t)
	ctx := context.Background()
	s.manager.Init(ctx)
	s.acceptLogin(t, sec.RoleCustomer)

	url := "ws" + strings.TrimPrefix(s.server.URL, "http") + "/ws/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var first map[string]any
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, conn.ReadJSON(&first))
	require.Equal(t, "session", first["type"])

	_, err = s.manager.Login(ctx, account.Credentials{Email: "aline@example.rw", Password: "secret-pass"}, "")
	require.NoError(t, err)

	// Well under a second: the frame follows the transition, not a timer
	deadline := time.Now().Add(300 * time.Millisecond)
	for {
		_ = conn.SetReadDeadline(deadline)
		var frame map[string]any
		require.NoError(t, conn.ReadJSON(&frame))
		if frame["type"] != "session" {
			continue
		}
		assert.Equal(t, string(session.StateAuthenticated), frame["session"].(map[string]any)["state"])
		return
	}
}
