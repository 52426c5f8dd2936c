// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/taibuivan/bizmap/internal/apiclient"
	"github.com/taibuivan/bizmap/internal/notify"
	"github.com/taibuivan/bizmap/internal/platform/config"
	redisstore "github.com/taibuivan/bizmap/internal/platform/redis"
	"github.com/taibuivan/bizmap/internal/platform/sec"
	"github.com/taibuivan/bizmap/internal/session"
	"github.com/taibuivan/bizmap/internal/tokenstore"
)

// runtime is the session core shared by every command.
type runtime struct {
	store   *tokenstore.Store
	client  *apiclient.Client
	hub     *notify.Hub
	manager *session.Manager
	log     *slog.Logger
}

/*
openRuntime wires the token store, the REST client and the session manager.

Description: The manager is constructed but not initialized; callers decide
whether to run [session.Manager.Init] (every command does, serve included).

Returns:
  - *runtime: Ready to initialize
  - error: Backend connection or configuration failures
*/
func openRuntime(ctx context.Context, cfg *config.Config, log *slog.Logger) (*runtime, error) {

	// ── 1. Token store backend ─────────────────────────────────────────────
	backend, err := openBackend(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	options := []tokenstore.Option{
		tokenstore.WithExpiryBuffer(cfg.ExpiryBuffer),
		tokenstore.WithLogger(log),
	}
	if cfg.TokenStoreSecret != "" {
		sealer, err := sec.NewSealer(cfg.TokenStoreSecret)
		if err != nil {
			_ = backend.Close()
			return nil, fmt.Errorf("token store sealer: %w", err)
		}
		options = append(options, tokenstore.WithSealer(sealer))
	}

	store := tokenstore.New(backend, options...)
	if err := store.Init(ctx); err != nil {
		_ = store.Dispose()
		return nil, fmt.Errorf("token store init: %w", err)
	}

	// ── 2. REST client ─────────────────────────────────────────────────────
	client := apiclient.New(cfg.APIBaseURL, store, cfg.HTTPTimeout, apiclient.WithLogger(log))

	// ── 3. Session ─────────────────────────────────────────────────────────
	hub := notify.NewHub()
	manager, err := session.New(store, client,
		session.WithNotifier(hub),
		session.WithLogger(log),
		session.WithRefreshInterval(cfg.RefreshCheckInterval),
		session.WithRefreshWindow(cfg.RefreshWindow),
	)
	if err != nil {
		_ = store.Dispose()
		return nil, err
	}

	return &runtime{store: store, client: client, hub: hub, manager: manager, log: log}, nil
}

func openBackend(ctx context.Context, cfg *config.Config, log *slog.Logger) (tokenstore.Backend, error) {
	switch cfg.TokenStore {
	case config.StoreMemory:
		log.Warn("token_store_volatile", slog.String("driver", cfg.TokenStore))
		return tokenstore.NewMemoryBackend(), nil

	case config.StoreRedis:
		client, err := redisstore.NewClient(ctx, cfg.RedisURL, log)
		if err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		return tokenstore.NewRedisBackend(client, cfg.TokenStorePrefix), nil

	default:
		backend, err := tokenstore.OpenSQLiteBackend(ctx, cfg.TokenStorePath)
		if err != nil {
			return nil, err
		}
		log.Debug("token_store_opened", slog.String("path", cfg.TokenStorePath))
		return backend, nil
	}
}

// close stops the refresher and releases the backend. The stored session stays.
func (rt *runtime) close() {
	rt.manager.Close()
	rt.hub.Close()
	if err := rt.store.Dispose(); err != nil {
		rt.log.Error("token_store_dispose_failed", slog.Any("error", err))
	}
}
