// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/taibuivan/bizmap/internal/platform/apperr"
	"github.com/taibuivan/bizmap/internal/tokenstore"
)

// refreshKey is the single-flight key shared by every refresh caller.
const refreshKey = "refresh"

// refreshTimeout bounds one shared exchange. It runs apart from any caller's context.
const refreshTimeout = 30 * time.Second

// errNoRefreshToken is returned when a refresh is attempted without credentials.
var errNoRefreshToken = apperr.Unauthorized("No refresh token available")

// # Refresh

/*
RefreshAuth exchanges the refresh token for a new access token.

Description: Concurrent callers share one in-flight exchange. The exchange is
detached from the caller that started it, so a caller that gives up returns
its own context error while the others still get the outcome. On success the
new tokens are stored and the profile is reloaded (a profile failure keeps the
cached user). On failure the session is logged out and the error is returned
so the caller can send the user to the login page.

Parameters:
  - ctx: context.Context

Returns:
  - error: AuthError when the session could not be renewed, or ctx.Err()
*/
func (manager *Manager) RefreshAuth(ctx context.Context) error {
	flight := manager.refreshGroup.DoChan(refreshKey, func() (any, error) {
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()

		if err := manager.exchange(flightCtx); err != nil {
			if flightCtx.Err() == nil {
				manager.logger.Warn("token_refresh_failed", slog.Any("error", err))
				_ = manager.expire(context.WithoutCancel(ctx))
			}
			return nil, err
		}

		manager.reloadProfile(flightCtx)
		return nil, nil
	})

	select {
	case <-ctx.Done():
		return ctx.Err()
	case result := <-flight:
		if result.Shared {
			manager.logger.Debug("token_refresh_joined")
		}
		return result.Err
	}
}

// exchange performs the refresh call and stores the result. It does not touch session state.
func (manager *Manager) exchange(ctx context.Context) error {
	refresh, err := manager.store.RefreshToken(ctx)
	if err != nil {
		return fmt.Errorf("session_read_refresh_failed: %w", err)
	}
	if refresh == "" {
		return errNoRefreshToken
	}

	response, err := manager.api.RefreshToken(ctx, refresh)
	if err != nil {
		return err
	}

	// Rotated refresh tokens replace the old one; otherwise it is kept
	if err := manager.store.SetTokens(ctx, tokenstore.Tokens{Access: response.Access, Refresh: response.Refresh}); err != nil {
		return fmt.Errorf("session_store_tokens_failed: %w", err)
	}

	manager.logger.Info("token_refreshed")
	return nil
}

// reloadProfile refreshes the user after a token exchange. Failures keep the cached user.
func (manager *Manager) reloadProfile(ctx context.Context) {
	user, err := manager.api.Profile(ctx)
	if err != nil {
		manager.logger.Warn("session_profile_reload_failed", slog.Any("error", err))
		return
	}
	if err := manager.adopt(ctx, user); err != nil {
		manager.logger.Error("session_profile_adopt_failed", slog.Any("error", err))
	}
}

/*
EnsureFresh makes sure the stored access token is usable before an authenticated call.

Description: An access token inside the expiry buffer is refreshed through the
shared single-flight path.

Parameters:
  - ctx: context.Context

Returns:
  - error: AuthError when no usable session exists, or ctx.Err() when the caller gave up
*/
func (manager *Manager) EnsureFresh(ctx context.Context) error {
	access, err := manager.store.AccessToken(ctx)
	if err != nil {
		return fmt.Errorf("session_read_token_failed: %w", err)
	}
	if access == "" {
		return apperr.Unauthorized("Please log in to continue.")
	}
	if !manager.store.IsExpired(access) {
		return nil
	}

	if err := manager.RefreshAuth(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return apperr.Unauthorized("Session expired. Please login again.")
	}
	return nil
}

// Resume is called when the client becomes active again. An expired access
// token is refreshed; failures are logged and never surfaced.
func (manager *Manager) Resume(ctx context.Context) {
	if !manager.Ready() {
		return
	}

	access, err := manager.store.AccessToken(ctx)
	if err != nil || access == "" || !manager.store.IsExpired(access) {
		return
	}

	if err := manager.RefreshAuth(ctx); err != nil {
		manager.logger.Warn("session_resume_refresh_failed", slog.Any("error", err))
	}
}

// # Proactive Refresher

// startRefresher binds the background refresher to userID. A refresher already
// running for the same user is kept; one running for another user is replaced.
func (manager *Manager) startRefresher(userID string) {
	manager.refresherMu.Lock()
	defer manager.refresherMu.Unlock()

	if manager.refresherCancel != nil && manager.refresherUser == userID {
		return
	}
	if manager.refresherCancel != nil {
		manager.refresherCancel()
	}

	ctx, cancel := context.WithCancel(context.Background())
	manager.refresherUser = userID
	manager.refresherCancel = cancel

	manager.refresherWG.Add(1)
	go func() {
		defer manager.refresherWG.Done()
		manager.runRefresher(ctx)
	}()
}

// stopRefresher cancels the background refresher. It does not wait, so it is
// safe to call from the refresher itself.
func (manager *Manager) stopRefresher() {
	manager.refresherMu.Lock()
	defer manager.refresherMu.Unlock()

	if manager.refresherCancel != nil {
		manager.refresherCancel()
		manager.refresherCancel = nil
		manager.refresherUser = ""
	}
}

func (manager *Manager) runRefresher(ctx context.Context) {
	ticker := time.NewTicker(manager.refreshInterval)
	defer ticker.Stop()

	for {
		manager.checkExpiry(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// checkExpiry refreshes when the access token is inside the refresh window but not yet expired.
func (manager *Manager) checkExpiry(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	access, err := manager.store.AccessToken(ctx)
	if err != nil || access == "" {
		return
	}

	remaining, ok := manager.store.Remaining(access)
	if !ok || remaining <= 0 || remaining >= manager.refreshWindow {
		return
	}

	manager.logger.Info("token_proactive_refresh", slog.Duration("remaining", remaining))
	if err := manager.RefreshAuth(ctx); err != nil && !errors.Is(err, context.Canceled) {
		manager.logger.Warn("token_proactive_refresh_failed", slog.Any("error", err))
	}
}
