// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package api wires together the local shell: the HTTP router, middleware
chain, guarded page routes, JSON endpoints and websocket streams, into a
runnable [http.Server].

Architecture:

  - This package is the topmost Presentation layer boundary.
  - It acts as the composition root for the HTTP transport (chi router).
  - Only this package and cmd/bizmap are allowed to import net/http server primitives.
*/
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/taibuivan/bizmap/internal/assistant"
	"github.com/taibuivan/bizmap/internal/notify"
	"github.com/taibuivan/bizmap/internal/platform/config"
	"github.com/taibuivan/bizmap/internal/platform/constants"
	"github.com/taibuivan/bizmap/internal/platform/middleware"
	"github.com/taibuivan/bizmap/internal/platform/respond"
	"github.com/taibuivan/bizmap/internal/session"
	"github.com/taibuivan/bizmap/internal/voice"
)

// # Server Definitions

// Server wraps the chi router and the [http.Server].
//
// It is constructed once by the serve command with all dependencies injected.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	log        *slog.Logger
}

// # Dependency Registry

// Dependencies groups everything the shell exposes.
//
// # Usage
//
// Voice and Bridge are nil when voice is disabled; the voice endpoints then
// answer with a capability error.
type Dependencies struct {
	// Liveness is the /health handler, always 200 while the process is alive.
	Liveness http.HandlerFunc

	// Readiness is the /ready handler, 200 when the token store and backend answer.
	Readiness http.HandlerFunc

	Session   *session.Manager
	Assistant *assistant.Assistant
	Notices   *notify.Hub
	Voice     *voice.Engine
	Bridge    *voice.Bridge
}

// # Server Initialization

// NewServer constructs the chi router with the full middleware chain and
// registers all route groups.
func NewServer(context context.Context, cfg *config.Config, log *slog.Logger, deps Dependencies) *Server {
	r := chi.NewRouter()

	// # Middleware Chain
	// Global middleware applied in order of execution.
	r.Use(middleware.RequestID())
	r.Use(middleware.StructuredLogger(log))
	r.Use(middleware.RateLimit(context))
	r.Use(middleware.PanicRecovery(log))
	r.Use(middleware.CORS(cfg))
	r.Use(chimw.CleanPath)

	// # Infrastructure Endpoints
	r.Get("/health", deps.Liveness)
	r.Get("/ready", deps.Readiness)

	// # Streams
	// Long-lived connections stay outside the request timeout.
	originAllowed := middleware.OriginPolicy(cfg)
	events := newEventStream(deps.Session, deps.Notices, deps.Voice, originAllowed)
	r.Get("/ws/events", events.serve)
	if deps.Bridge != nil {
		r.Get("/ws/voice", newBridgeHandler(deps.Bridge, originAllowed))
	}

	r.Group(func(timed chi.Router) {
		timed.Use(chimw.Timeout(constants.GlobalRequestTimeout))

		// # Pages
		mountPages(timed, deps.Session)

		// # Application API
		timed.Route("/api", func(api chi.Router) {
			api.Mount("/session", newSessionHandler(deps.Session).Routes())
			api.Mount("/voice", newVoiceHandler(deps.Voice).Routes())
			api.Group(func(authenticated chi.Router) {
				authenticated.Use(middleware.RequireAuthenticated(deps.Session))
				authenticated.Mount("/assistant", newAssistantHandler(deps.Assistant, deps.Session).Routes())
			})
			api.Get("/notices", func(writer http.ResponseWriter, _ *http.Request) {
				respond.OK(writer, deps.Notices.Recent())
			})
		})
	})

	return &Server{
		router: r,
		log:    log,
		httpServer: &http.Server{
			Addr:              "127.0.0.1:" + cfg.ServerPort,
			Handler:           r,
			ReadTimeout:       constants.DefaultReadTimeout,
			WriteTimeout:      constants.DefaultWriteTimeout,
			IdleTimeout:       constants.DefaultIdleTimeout,
			ReadHeaderTimeout: constants.DefaultReadHeaderTimeout,
		},
	}
}

// Handler returns the root handler, used by tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// # Server Lifecycle

// ListenAndServe starts the HTTP server.
//
// It blocks until the server is closed or an error occurs.
func (s *Server) ListenAndServe() error {
	s.log.Info("server starting", slog.String("addr", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server, waiting for in-flight requests.
func (s *Server) Shutdown(timeout time.Duration) error {
	context, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.httpServer.Shutdown(context)
}
