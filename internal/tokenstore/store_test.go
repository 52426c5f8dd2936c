// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package tokenstore_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/bizmap/internal/platform/constants"
	"github.com/taibuivan/bizmap/internal/platform/sec"
	"github.com/taibuivan/bizmap/internal/tokenstore"
)

// backends returns a fresh instance of every backend, keyed by name.
func backends(t *testing.T) map[string]func(t *testing.T) tokenstore.Backend {
	t.Helper()
	return map[string]func(t *testing.T) tokenstore.Backend{
		"memory": func(t *testing.T) tokenstore.Backend {
			return tokenstore.NewMemoryBackend()
		},
		"redis": func(t *testing.T) tokenstore.Backend {
			mr, err := miniredis.Run()
			require.NoError(t, err)
			t.Cleanup(mr.Close)
			client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			return tokenstore.NewRedisBackend(client, "bizmap:test:")
		},
		"sqlite": func(t *testing.T) tokenstore.Backend {
			backend, err := tokenstore.OpenSQLiteBackend(context.Background(), filepath.Join(t.TempDir(), "session.db"))
			require.NoError(t, err)
			return backend
		},
	}
}

func newStore(t *testing.T, backend tokenstore.Backend, opts ...tokenstore.Option) *tokenstore.Store {
	t.Helper()
	store := tokenstore.New(backend, opts...)
	require.NoError(t, store.Init(context.Background()))
	t.Cleanup(func() { _ = store.Dispose() })
	return store
}

func tokenExpiringAt(t *testing.T, exp time.Time) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"exp": exp.Unix()}).SignedString([]byte("k"))
	require.NoError(t, err)
	return token
}

/*
TestStore_PartialSetTokens verifies omitted tokens keep their previous value.
*/
func TestStore_PartialSetTokens(t *testing.T) {
	for name, factory := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := newStore(t, factory(t))

			// 1. Store the access token only
			require.NoError(t, store.SetTokens(ctx, tokenstore.Tokens{Access: "x"}))
			access, err := store.AccessToken(ctx)
			require.NoError(t, err)
			assert.Equal(t, "x", access)

			// 2. A refresh-only update leaves the access token intact
			require.NoError(t, store.SetTokens(ctx, tokenstore.Tokens{Refresh: "y"}))
			access, err = store.AccessToken(ctx)
			require.NoError(t, err)
			assert.Equal(t, "x", access)

			refresh, err := store.RefreshToken(ctx)
			require.NoError(t, err)
			assert.Equal(t, "y", refresh)

			temporary, err := store.TemporaryToken(ctx)
			require.NoError(t, err)
			assert.Empty(t, temporary)
		})
	}
}

/*
TestStore_ClearAllIsTotal populates every key, clears, and checks nothing is left.
*/
func TestStore_ClearAllIsTotal(t *testing.T) {
	for name, factory := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			backend := factory(t)
			store := newStore(t, backend)

			require.NoError(t, store.SetTokens(ctx, tokenstore.Tokens{Access: "a", Refresh: "r", Temporary: "t"}))
			require.NoError(t, store.SaveRecord(ctx, constants.KeyUserData, map[string]any{"id": "u1"}))
			require.NoError(t, store.SaveRecord(ctx, constants.KeyVerificationStatus, map[string]bool{"email_verified": true}))
			require.NoError(t, store.SaveRecord(ctx, constants.KeyPendingLogin, map[string]string{"email": "a@b.com"}))
			require.NoError(t, store.SaveRecord(ctx, constants.KeyRegistrationData, map[string]string{"user_id": "u1"}))

			require.NoError(t, store.ClearAll(ctx))

			for _, key := range tokenstore.SessionKeys() {
				_, found, err := backend.Get(ctx, key)
				require.NoError(t, err)
				assert.False(t, found, "key %s should be cleared", key)
			}

			// The layout version survives a logout
			version, found, err := backend.Get(ctx, constants.KeySchemaVersion)
			require.NoError(t, err)
			assert.True(t, found)
			assert.Equal(t, constants.SchemaVersion, version)
		})
	}
}

/*
TestStore_LegacyAlias covers write-through and read-preferring-canonical.
*/
func TestStore_LegacyAlias(t *testing.T) {
	ctx := context.Background()

	t.Run("write_through", func(t *testing.T) {
		backend := tokenstore.NewMemoryBackend()
		store := newStore(t, backend)

		require.NoError(t, store.SetTokens(ctx, tokenstore.Tokens{Access: "a1"}))
		legacy, found, err := backend.Get(ctx, constants.KeyAuthToken)
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "a1", legacy)
	})

	t.Run("legacy_only_is_promoted", func(t *testing.T) {
		backend := tokenstore.NewMemoryBackend()
		require.NoError(t, backend.SetMany(ctx, map[string]string{constants.KeyAuthToken: "old"}))

		store := newStore(t, backend)
		canonical, found, err := backend.Get(ctx, constants.KeyAccessToken)
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "old", canonical)

		access, err := store.AccessToken(ctx)
		require.NoError(t, err)
		assert.Equal(t, "old", access)
	})

	t.Run("canonical_wins", func(t *testing.T) {
		backend := tokenstore.NewMemoryBackend()
		require.NoError(t, backend.SetMany(ctx, map[string]string{
			constants.KeySchemaVersion: constants.SchemaVersion,
			constants.KeyAccessToken:   "new",
			constants.KeyAuthToken:     "stale",
		}))

		store := tokenstore.New(backend)
		access, err := store.AccessToken(ctx)
		require.NoError(t, err)
		assert.Equal(t, "new", access)
	})

	t.Run("removing_access_removes_alias", func(t *testing.T) {
		backend := tokenstore.NewMemoryBackend()
		store := newStore(t, backend)

		require.NoError(t, store.SetTokens(ctx, tokenstore.Tokens{Access: "a", Temporary: "t"}))
		require.NoError(t, store.Remove(ctx, constants.KeyAccessToken))

		access, err := store.AccessToken(ctx)
		require.NoError(t, err)
		assert.Empty(t, access)
	})
}

/*
TestStore_Expiry checks the expiry buffer and fail-closed decoding through the store.
*/
func TestStore_Expiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newStore(t, tokenstore.NewMemoryBackend(), tokenstore.WithClock(func() time.Time { return now }))

	assert.True(t, store.IsExpired(tokenExpiringAt(t, now.Add(29*time.Second))))
	assert.False(t, store.IsExpired(tokenExpiringAt(t, now.Add(31*time.Second))))
	assert.True(t, store.IsExpired("malformed"))

	exp, ok := store.Expiration(tokenExpiringAt(t, now.Add(time.Hour)))
	assert.True(t, ok)
	assert.Equal(t, now.Add(time.Hour).Unix(), exp)

	_, ok = store.Expiration("malformed")
	assert.False(t, ok)

	remaining, ok := store.Remaining(tokenExpiringAt(t, now.Add(4*time.Minute)))
	assert.True(t, ok)
	assert.Equal(t, 4*time.Minute, remaining)
}

/*
TestStore_Records exercises record round trips and schema enforcement.
*/
func TestStore_Records(t *testing.T) {
	ctx := context.Background()
	backend := tokenstore.NewMemoryBackend()
	store := newStore(t, backend)

	type user struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	}

	require.NoError(t, store.SaveRecord(ctx, constants.KeyUserData, user{ID: "u1", Email: "a@b.com"}))

	var got user
	found, err := store.LoadRecord(ctx, constants.KeyUserData, &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, user{ID: "u1", Email: "a@b.com"}, got)

	// Tokens are not records
	err = store.SaveRecord(ctx, constants.KeyAccessToken, "x")
	assert.ErrorIs(t, err, tokenstore.ErrUnknownKey)

	// A corrupt record reads as absent and is dropped
	require.NoError(t, backend.SetMany(ctx, map[string]string{constants.KeyPendingLogin: "{not json"}))
	var pending map[string]string
	found, err = store.LoadRecord(ctx, constants.KeyPendingLogin, &pending)
	require.NoError(t, err)
	assert.False(t, found)
	_, stillThere, _ := backend.Get(ctx, constants.KeyPendingLogin)
	assert.False(t, stillThere)
}

/*
TestStore_Sealed verifies values are unreadable at rest when a secret is configured.
*/
func TestStore_Sealed(t *testing.T) {
	ctx := context.Background()
	sealer, err := sec.NewSealer("s3cret")
	require.NoError(t, err)

	backend := tokenstore.NewMemoryBackend()
	store := newStore(t, backend, tokenstore.WithSealer(sealer))

	require.NoError(t, store.SetTokens(ctx, tokenstore.Tokens{Access: "plain-access"}))

	raw, _, err := backend.Get(ctx, constants.KeyAccessToken)
	require.NoError(t, err)
	assert.NotEqual(t, "plain-access", raw)

	access, err := store.AccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "plain-access", access)
}

/*
TestStore_SchemaMismatch wipes a session written with an unknown layout.
*/
func TestStore_SchemaMismatch(t *testing.T) {
	ctx := context.Background()
	backend := tokenstore.NewMemoryBackend()
	require.NoError(t, backend.SetMany(ctx, map[string]string{
		constants.KeySchemaVersion: "0",
		constants.KeyAccessToken:   "from-the-past",
	}))

	store := newStore(t, backend)
	access, err := store.AccessToken(ctx)
	require.NoError(t, err)
	assert.Empty(t, access)
}

/*
TestStore_Dispose ensures every operation fails after disposal.
*/
func TestStore_Dispose(t *testing.T) {
	ctx := context.Background()
	store := tokenstore.New(tokenstore.NewMemoryBackend())
	require.NoError(t, store.Init(ctx))
	require.NoError(t, store.Dispose())
	require.NoError(t, store.Dispose())

	_, err := store.AccessToken(ctx)
	assert.ErrorIs(t, err, tokenstore.ErrDisposed)
	assert.ErrorIs(t, store.SetTokens(ctx, tokenstore.Tokens{Access: "x"}), tokenstore.ErrDisposed)
	assert.ErrorIs(t, store.ClearAll(ctx), tokenstore.ErrDisposed)
}
