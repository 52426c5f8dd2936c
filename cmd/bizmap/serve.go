// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/taibuivan/bizmap/internal/api"
	"github.com/taibuivan/bizmap/internal/assistant"
	"github.com/taibuivan/bizmap/internal/platform/constants"
	"github.com/taibuivan/bizmap/internal/voice"
)

// startupTimeout catches a misconfigured backend quickly rather than hanging.
const startupTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the local shell",
	Long: `Run the local shell on 127.0.0.1.

The shell restores the stored session, keeps the access token fresh, serves
the guarded pages and the JSON API, and streams session, notice and voice
events on /ws/events. With voice enabled the page's speech capabilities are
attached on /ws/voice.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	log.Info("service_initializing",
		slog.String("environment", cfg.Environment),
		slog.String("port", cfg.ServerPort),
		slog.String("token_store", cfg.TokenStore),
	)

	// Lives until shutdown; background loops (refresher, rate limiter) stop with it
	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	startupCtx, startupCancel := context.WithTimeout(rootCtx, startupTimeout)
	defer startupCancel()

	// ── 1. Session core ────────────────────────────────────────────────────
	rt, err := openRuntime(startupCtx, cfg, log)
	must(log, err, "open session runtime")
	defer rt.close()

	state := rt.manager.Init(startupCtx)
	log.Info("session_restored", slog.String("state", string(state)))

	// ── 2. Voice ───────────────────────────────────────────────────────────
	var (
		bridge *voice.Bridge
		engine *voice.Engine
		chat   *assistant.Assistant
	)
	if cfg.VoiceEnabled {
		voiceConfig := voice.DefaultConfig()
		voiceConfig.Language, _ = voice.ParseLanguage(cfg.VoiceLanguage)

		bridge = voice.NewBridge(log)
		engine = voice.New(bridge, bridge.Synthesizer(),
			voice.WithConfig(voiceConfig),
			voice.WithNotifier(rt.hub),
			voice.WithLogger(log),
			voice.WithAutoSendDelay(cfg.VoiceAutoSendDelay),
			voice.WithSubmit(func(ctx context.Context, transcript string, lang voice.Language) {
				if _, err := chat.Send(ctx, transcript, assistant.SendOptions{Language: lang, Voice: true}); err != nil {
					log.Warn("voice_submit_failed", slog.Any("error", err))
				}
			}),
		)
		defer engine.Destroy()
	}

	// ── 3. Assistant ───────────────────────────────────────────────────────
	assistantOptions := []assistant.Option{assistant.WithLogger(log)}
	if engine != nil {
		assistantOptions = append(assistantOptions,
			assistant.WithSpeaker(engine),
			assistant.WithLanguage(engine.Language()),
		)
	}
	chat = assistant.New(rt.client, rt.manager, assistantOptions...)

	// ── 4. Health checks ───────────────────────────────────────────────────
	checks := []api.HealthCheck{
		{Name: "token_store", Required: true, Check: rt.store.Ping},
		{Name: "backend", Check: func(ctx context.Context) error {
			return pingBackend(ctx, rt.client.BaseURL())
		}},
	}
	if bridge != nil {
		checks = append(checks, api.HealthCheck{Name: "voice_page", Check: func(context.Context) error {
			if !bridge.Available() {
				return errors.New("no page attached on /ws/voice")
			}
			return nil
		}})
	}
	liveness, readiness := api.NewHealthHandlers(checks, log)

	// ── 5. HTTP Server ─────────────────────────────────────────────────────
	server := api.NewServer(rootCtx, cfg, log, api.Dependencies{
		Liveness:  liveness,
		Readiness: readiness,
		Session:   rt.manager,
		Assistant: chat,
		Notices:   rt.hub,
		Voice:     engine,
		Bridge:    bridge,
	})

	// ── 6. Graceful Shutdown ───────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(quit)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	var runErr error
	select {
	case sig := <-quit:
		log.Info("shutdown_signal_received", slog.String("signal", sig.String()))
	case runErr = <-serverErr:
		log.Error("server_startup_error", slog.Any("error", runErr))
	}

	log.Info("shutting_down_server", slog.Duration("timeout", constants.ShutdownTimeout))
	if err := server.Shutdown(constants.ShutdownTimeout); err != nil {
		log.Error("shutdown_error", slog.Any("error", err))
		runErr = errors.Join(runErr, err)
	}

	// Read-alouds still queued return once speech is silenced
	if engine != nil {
		engine.CancelSpeech()
	}
	chat.Wait()

	log.Info("server_stopped_cleanly")
	return runErr
}

// pingBackend reports whether the REST API answers at all. Any HTTP status
// counts as reachable.
func pingBackend(ctx context.Context, baseURL string) error {
	request, err := http.NewRequestWithContext(ctx, http.MethodHead, baseURL, nil)
	if err != nil {
		return err
	}
	response, err := http.DefaultClient.Do(request)
	if err != nil {
		return err
	}
	return response.Body.Close()
}

// must logs a structured fatal error and terminates the process if err is non-nil.
//
// It is intentionally limited to startup wiring. After startup, all errors
// must be returned and handled explicitly (never panic).
func must(log *slog.Logger, err error, context string) {
	if err != nil {
		log.Error("startup_failure",
			slog.String("context", context),
			slog.Any("error", err),
		)
		os.Exit(1)
	}
}
