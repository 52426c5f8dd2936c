// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package session

import (
	"context"
	"log/slog"
)

/*
Init restores the persisted session. It runs once per manager.

Description: Reads the stored tokens and settles into exactly one steady
state. An expired access token is exchanged silently; a valid one is
confirmed against the backend profile, falling back to the cached user when
the backend cannot be reached. Any path that cannot establish a user clears
the store. Init never retries and always marks the manager ready.

Parameters:
  - ctx: context.Context

Returns:
  - State: The steady state reached
*/
func (manager *Manager) Init(ctx context.Context) State {
	manager.initOnce.Do(func() {
		manager.mu.Lock()
		manager.state = StateInitializing
		manager.mu.Unlock()

		state := manager.restore(ctx)

		manager.markReady()
		manager.logger.Info("session_initialized", slog.String("state", string(state)))
	})

	<-manager.ready
	return manager.State()
}

func (manager *Manager) restore(ctx context.Context) State {
	access, errAccess := manager.store.AccessToken(ctx)
	refresh, errRefresh := manager.store.RefreshToken(ctx)
	temporary, errTemporary := manager.store.TemporaryToken(ctx)
	if err := firstErr(errAccess, errRefresh, errTemporary); err != nil {
		manager.logger.Error("session_restore_read_failed", slog.Any("error", err))
		manager.settle(nil, StateAnonymous)
		return StateAnonymous
	}

	// Nothing persisted
	if access == "" && refresh == "" && temporary == "" {
		manager.settle(nil, StateAnonymous)
		return StateAnonymous
	}

	// Mid-verification: the cached stub is all there is to show
	if access == "" && temporary != "" {
		manager.settle(manager.cachedUser(ctx), StateUnverified)
		return StateUnverified
	}

	if access == "" || manager.store.IsExpired(access) {
		if err := manager.exchange(ctx); err != nil {
			manager.logger.Warn("session_restore_refresh_failed", slog.Any("error", err))
			manager.clearQuietly(ctx)
			return StateAnonymous
		}
	}

	user, err := manager.api.Profile(ctx)
	if err != nil {
		manager.logger.Warn("session_restore_profile_failed", slog.Any("error", err))
		user = manager.cachedUser(ctx)
		if user == nil {
			manager.clearQuietly(ctx)
			return StateAnonymous
		}
	}

	if err := manager.adopt(ctx, user); err != nil {
		manager.logger.Error("session_restore_adopt_failed", slog.Any("error", err))
		manager.clearQuietly(ctx)
		return StateAnonymous
	}
	return manager.State()
}

// clearQuietly resets without a user-facing notice, logging store failures.
func (manager *Manager) clearQuietly(ctx context.Context) {
	if err := manager.reset(ctx); err != nil {
		manager.logger.Error("session_clear_failed", slog.Any("error", err))
	}
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
