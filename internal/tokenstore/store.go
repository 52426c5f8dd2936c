// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package tokenstore provides durable storage and expiry evaluation for session credentials.

The store owns one versioned key layout (see the Key* constants in the
constants package). The access token has a canonical key and a legacy alias:
every write goes to both, every read prefers the canonical key and falls back
to the alias. User, verification and pending-flow records live next to the
tokens so that [Store.ClearAll] can remove the whole session in one atomic
backend call.

Lifecycle:

	store := tokenstore.New(backend, tokenstore.WithSealer(sealer))
	if err := store.Init(ctx); err != nil { ... }
	defer store.Dispose()
*/
package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/taibuivan/bizmap/internal/platform/constants"
	"github.com/taibuivan/bizmap/internal/platform/sec"
)

var (
	// ErrDisposed is returned by every operation after [Store.Dispose].
	ErrDisposed = errors.New("tokenstore: store is disposed")

	// ErrUnknownKey is returned when a key is not part of the session layout.
	ErrUnknownKey = errors.New("tokenstore: key is not part of the session layout")
)

// sessionKeys is every key cleared by ClearAll.
var sessionKeys = []string{
	constants.KeyAccessToken,
	constants.KeyAuthToken,
	constants.KeyRefreshToken,
	constants.KeyTemporaryToken,
	constants.KeyUserData,
	constants.KeyVerificationStatus,
	constants.KeyPendingLogin,
	constants.KeyRegistrationData,
}

// recordKeys may be written with SaveRecord.
var recordKeys = map[string]bool{
	constants.KeyUserData:           true,
	constants.KeyVerificationStatus: true,
	constants.KeyPendingLogin:       true,
	constants.KeyRegistrationData:   true,
}

// SessionKeys returns a copy of the keys that make up a persisted session.
func SessionKeys() []string {
	return append([]string(nil), sessionKeys...)
}

// Tokens is a partial token update. Empty fields are left untouched.
type Tokens struct {
	Access    string
	Refresh   string
	Temporary string
}

// Store is the single owner of persisted session state.
//
// It is safe for concurrent use. Writes are last-writer-wins.
type Store struct {
	backend Backend
	sealer  *sec.Sealer
	buffer  time.Duration
	now     func() time.Time
	logger  *slog.Logger

	mu       sync.RWMutex
	disposed bool
}

// Option configures a [Store].
type Option func(*Store)

// WithSealer encrypts values at rest. A nil sealer stores plain text.
func WithSealer(sealer *sec.Sealer) Option {
	return func(s *Store) { s.sealer = sealer }
}

// WithExpiryBuffer overrides the safety window used by IsExpired.
func WithExpiryBuffer(buffer time.Duration) Option {
	return func(s *Store) { s.buffer = buffer }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// New constructs a store over backend. Call [Store.Init] before use.
func New(backend Backend, opts ...Option) *Store {
	store := &Store{
		backend: backend,
		buffer:  constants.ExpiryBuffer,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// # Lifecycle

/*
Init verifies the backend and brings the persisted layout up to date.

Description: An unknown schema version wipes the session, since its keys
cannot be interpreted. The legacy access-token alias is re-synchronised with
the canonical key in either direction.

Parameters:
  - context: context.Context

Returns:
  - error: Backend failures
*/
func (store *Store) Init(context context.Context) error {
	if err := store.check(); err != nil {
		return err
	}

	if err := store.backend.Ping(context); err != nil {
		return fmt.Errorf("tokenstore: backend unreachable: %w", err)
	}

	version, found, err := store.backend.Get(context, constants.KeySchemaVersion)
	if err != nil {
		return fmt.Errorf("tokenstore: read schema version: %w", err)
	}

	if found && version != constants.SchemaVersion {
		store.logger.Warn("token_store_schema_mismatch",
			slog.String("found", version),
			slog.String("expected", constants.SchemaVersion),
		)
		if err := store.backend.DeleteMany(context, sessionKeys...); err != nil {
			return fmt.Errorf("tokenstore: reset incompatible layout: %w", err)
		}
	}

	if !found || version != constants.SchemaVersion {
		if err := store.backend.SetMany(context, map[string]string{constants.KeySchemaVersion: constants.SchemaVersion}); err != nil {
			return fmt.Errorf("tokenstore: write schema version: %w", err)
		}
	}

	return store.syncAlias(context)
}

// syncAlias repairs a canonical/legacy pair left out of step by an older client.
func (store *Store) syncAlias(context context.Context) error {
	canonical, hasCanonical, err := store.backend.Get(context, constants.KeyAccessToken)
	if err != nil {
		return fmt.Errorf("tokenstore: read access token: %w", err)
	}
	legacy, hasLegacy, err := store.backend.Get(context, constants.KeyAuthToken)
	if err != nil {
		return fmt.Errorf("tokenstore: read legacy access token: %w", err)
	}

	switch {
	case hasCanonical && canonical != legacy:
		err = store.backend.SetMany(context, map[string]string{constants.KeyAuthToken: canonical})
	case !hasCanonical && hasLegacy:
		err = store.backend.SetMany(context, map[string]string{constants.KeyAccessToken: legacy})
	}
	if err != nil {
		return fmt.Errorf("tokenstore: sync access token alias: %w", err)
	}
	return nil
}

// Dispose closes the backend. The store is unusable afterwards.
func (store *Store) Dispose() error {
	store.mu.Lock()
	defer store.mu.Unlock()

	if store.disposed {
		return nil
	}
	store.disposed = true
	return store.backend.Close()
}

// Ping reports backend health, for readiness probes.
func (store *Store) Ping(context context.Context) error {
	if err := store.check(); err != nil {
		return err
	}
	return store.backend.Ping(context)
}

func (store *Store) check() error {
	store.mu.RLock()
	defer store.mu.RUnlock()
	if store.disposed {
		return ErrDisposed
	}
	return nil
}

// # Tokens

/*
SetTokens stores each non-empty token under its own key.

Description: Omitted tokens keep their current value. The access token is
written to the canonical key and the legacy alias in the same atomic write.

Parameters:
  - context: context.Context
  - tokens: Tokens

Returns:
  - error: Sealing or persistence failures
*/
func (store *Store) SetTokens(context context.Context, tokens Tokens) error {
	if err := store.check(); err != nil {
		return err
	}

	values := make(map[string]string, 4)
	add := func(key, token string) error {
		if token == "" {
			return nil
		}
		sealed, err := store.sealer.Seal(token)
		if err != nil {
			return err
		}
		values[key] = sealed
		return nil
	}

	if err := errors.Join(
		add(constants.KeyAccessToken, tokens.Access),
		add(constants.KeyAuthToken, tokens.Access),
		add(constants.KeyRefreshToken, tokens.Refresh),
		add(constants.KeyTemporaryToken, tokens.Temporary),
	); err != nil {
		return fmt.Errorf("tokenstore: seal tokens: %w", err)
	}

	if err := store.backend.SetMany(context, values); err != nil {
		return fmt.Errorf("tokenstore: set tokens: %w", err)
	}
	return nil
}

// AccessToken returns the access token, preferring the canonical key. Empty means absent.
func (store *Store) AccessToken(context context.Context) (string, error) {
	token, err := store.read(context, constants.KeyAccessToken)
	if err != nil || token != "" {
		return token, err
	}
	return store.read(context, constants.KeyAuthToken)
}

// RefreshToken returns the refresh token. Empty means absent.
func (store *Store) RefreshToken(context context.Context) (string, error) {
	return store.read(context, constants.KeyRefreshToken)
}

// TemporaryToken returns the verification-scoped token. Empty means absent.
func (store *Store) TemporaryToken(context context.Context) (string, error) {
	return store.read(context, constants.KeyTemporaryToken)
}

// read loads and unseals one value. Values that no longer unseal (for example
// after the secret was rotated) are reported as absent.
func (store *Store) read(context context.Context, key string) (string, error) {
	if err := store.check(); err != nil {
		return "", err
	}

	raw, found, err := store.backend.Get(context, key)
	if err != nil {
		return "", fmt.Errorf("tokenstore: get %s: %w", key, err)
	}
	if !found {
		return "", nil
	}

	value, err := store.sealer.Open(raw)
	if err != nil {
		store.logger.Warn("token_store_unseal_failed", slog.String("key", key))
		return "", nil
	}
	return value, nil
}

// # Expiry

// IsExpired reports whether token expires within the safety buffer.
// Tokens that cannot be decoded are expired.
func (store *Store) IsExpired(token string) bool {
	return sec.IsExpired(token, store.now(), store.buffer)
}

// Expiration returns the exp claim in epoch seconds.
func (store *Store) Expiration(token string) (int64, bool) {
	exp, err := sec.DecodeExpiry(token)
	if err != nil {
		return 0, false
	}
	return exp.Unix(), true
}

// Remaining returns how long token stays valid, ignoring the buffer.
// A negative duration means it already expired.
func (store *Store) Remaining(token string) (time.Duration, bool) {
	exp, err := sec.DecodeExpiry(token)
	if err != nil {
		return 0, false
	}
	return exp.Sub(store.now()), true
}

// # Records

// SaveRecord stores v as JSON under one of the record keys.
func (store *Store) SaveRecord(context context.Context, key string, v any) error {
	if err := store.check(); err != nil {
		return err
	}
	if !recordKeys[key] {
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("tokenstore: encode %s: %w", key, err)
	}

	sealed, err := store.sealer.Seal(string(data))
	if err != nil {
		return fmt.Errorf("tokenstore: seal %s: %w", key, err)
	}

	if err := store.backend.SetMany(context, map[string]string{key: sealed}); err != nil {
		return fmt.Errorf("tokenstore: save %s: %w", key, err)
	}
	return nil
}

// LoadRecord decodes the record under key into dst. It reports false when absent.
//
// A record that no longer decodes is treated as absent and removed.
func (store *Store) LoadRecord(context context.Context, key string, dst any) (bool, error) {
	if !recordKeys[key] {
		return false, fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}

	raw, err := store.read(context, key)
	if err != nil || raw == "" {
		return false, err
	}

	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		store.logger.Warn("token_store_record_corrupt", slog.String("key", key), slog.Any("error", err))
		_ = store.backend.DeleteMany(context, key)
		return false, nil
	}
	return true, nil
}

// Remove deletes the given session keys in one atomic write.
func (store *Store) Remove(context context.Context, keys ...string) error {
	if err := store.check(); err != nil {
		return err
	}

	for _, key := range keys {
		if !isSessionKey(key) {
			return fmt.Errorf("%w: %s", ErrUnknownKey, key)
		}
	}

	// The legacy alias follows the canonical key
	if slices.Contains(keys, constants.KeyAccessToken) {
		keys = append(slices.Clone(keys), constants.KeyAuthToken)
	}

	if err := store.backend.DeleteMany(context, keys...); err != nil {
		return fmt.Errorf("tokenstore: remove: %w", err)
	}
	return nil
}

// ClearAll removes every token and cached record in one atomic write.
func (store *Store) ClearAll(context context.Context) error {
	if err := store.check(); err != nil {
		return err
	}

	if err := store.backend.DeleteMany(context, sessionKeys...); err != nil {
		return fmt.Errorf("tokenstore: clear all: %w", err)
	}
	return nil
}

func isSessionKey(key string) bool {
	return slices.Contains(sessionKeys, key)
}
