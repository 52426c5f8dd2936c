// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package session implements the authentication state machine of the client.

The [Manager] is the single source of truth for "who is signed in and what may
they do". It reads and writes credentials exclusively through the token store,
talks to the backend through the [API] contract and publishes user-facing
notices for every user-initiated operation.

# States

	Uninitialized -> Initializing -> {Anonymous, Unverified, Authenticated}

Initializing is entered once by [Manager.Init] and left exactly once; the
ready flag flips at that moment and never flips back. Route guards must not
act before [Manager.Ready] reports true.

# Concurrency

All methods are safe for concurrent use. Token refreshes are single-flight:
concurrent callers share the one in-flight exchange instead of racing on the
same refresh token. A background refresher renews the access token shortly
before it expires; it is bound to the signed-in user and stops on logout or
when a different user signs in.
*/
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/taibuivan/bizmap/internal/account"
	"github.com/taibuivan/bizmap/internal/apiclient"
	"github.com/taibuivan/bizmap/internal/notify"
	"github.com/taibuivan/bizmap/internal/platform/constants"
	"github.com/taibuivan/bizmap/internal/platform/sec"
	"github.com/taibuivan/bizmap/internal/tokenstore"
)

// # States

// State is the coarse authentication state.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateInitializing  State = "initializing"
	StateAnonymous     State = "anonymous"
	StateUnverified    State = "unverified"
	StateAuthenticated State = "authenticated"
)

// Settled reports whether s is one of the three steady states.
func (s State) Settled() bool {
	switch s {
	case StateAnonymous, StateUnverified, StateAuthenticated:
		return true
	}
	return false
}

// Snapshot is a consistent, read-only view of the session.
type Snapshot struct {
	State State         `json:"state"`
	Ready bool          `json:"ready"`
	User  *account.User `json:"user,omitempty"`
}

// # Contracts

// API is the slice of the backend contract the session depends on.
// [apiclient.Client] implements it.
type API interface {
	Login(ctx context.Context, credentials account.Credentials) (*apiclient.AuthResponse, error)
	Register(ctx context.Context, data account.RegisterData) (*apiclient.AuthResponse, error)
	RefreshToken(ctx context.Context, refresh string) (*apiclient.RefreshResponse, error)
	Profile(ctx context.Context) (*account.User, error)
	Logout(ctx context.Context) error
	VerifyEmail(ctx context.Context, token string) (*apiclient.AuthResponse, error)
	ResendEmailVerification(ctx context.Context, email, userID string) (*apiclient.AuthResponse, error)
	RequestPhoneVerification(ctx context.Context, phone string) (*apiclient.AuthResponse, error)
	VerifyPhone(ctx context.Context, code, phone string) (*apiclient.AuthResponse, error)
}

// # Manager

// Manager owns the session state machine.
type Manager struct {
	store    *tokenstore.Store
	api      API
	notifier notify.Notifier
	perms    *sec.Permissions
	logger   *slog.Logger

	refreshInterval time.Duration
	refreshWindow   time.Duration

	mu    sync.RWMutex
	state State
	user  *account.User

	initOnce  sync.Once
	readyOnce sync.Once
	ready     chan struct{}

	changes *notify.Feed[Snapshot]

	refreshGroup singleflight.Group

	refresherMu     sync.Mutex
	refresherUser   string
	refresherCancel context.CancelFunc
	refresherWG     sync.WaitGroup
}

// Option configures a [Manager].
type Option func(*Manager)

// WithNotifier sets where user-facing notices go.
func WithNotifier(notifier notify.Notifier) Option {
	return func(m *Manager) { m.notifier = notifier }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithRefreshInterval sets the cadence of the proactive refresh check.
func WithRefreshInterval(interval time.Duration) Option {
	return func(m *Manager) { m.refreshInterval = interval }
}

// WithRefreshWindow sets the remaining lifetime under which a proactive refresh fires.
func WithRefreshWindow(window time.Duration) Option {
	return func(m *Manager) { m.refreshWindow = window }
}

// New constructs a manager in the Uninitialized state. Call [Manager.Init] next.
func New(store *tokenstore.Store, api API, opts ...Option) (*Manager, error) {
	perms, err := sec.NewPermissions()
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}

	manager := &Manager{
		store:           store,
		api:             api,
		notifier:        notify.Discard{},
		perms:           perms,
		logger:          slog.Default(),
		refreshInterval: constants.RefreshCheckInterval,
		refreshWindow:   constants.RefreshWindow,
		state:           StateUninitialized,
		ready:           make(chan struct{}),
		changes:         notify.NewFeed[Snapshot](),
	}
	for _, opt := range opts {
		opt(manager)
	}
	return manager, nil
}

// Close stops the background refresher and waits for it to exit, then ends
// every [Manager.Subscribe] stream. The persisted session is left untouched.
func (manager *Manager) Close() {
	manager.stopRefresher()
	manager.refresherWG.Wait()
	manager.changes.Close()
}

// Subscribe streams a snapshot after every state transition and once when
// initialization completes. A subscriber that falls behind by more than
// buffer snapshots misses the older ones; the channel closes on [Manager.Close].
func (manager *Manager) Subscribe(buffer int) (<-chan Snapshot, func()) {
	return manager.changes.Subscribe(buffer)
}

// # Readiness

// Ready reports whether initialization has completed.
func (manager *Manager) Ready() bool {
	select {
	case <-manager.ready:
		return true
	default:
		return false
	}
}

// WaitReady blocks until initialization completes or ctx ends.
func (manager *Manager) WaitReady(ctx context.Context) error {
	select {
	case <-manager.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (manager *Manager) markReady() {
	manager.readyOnce.Do(func() {
		close(manager.ready)
		manager.changes.Publish(manager.Snapshot())
	})
}

// # Capabilities

// Snapshot returns the current state and a copy of the user.
func (manager *Manager) Snapshot() Snapshot {
	manager.mu.RLock()
	defer manager.mu.RUnlock()

	snapshot := Snapshot{State: manager.state, Ready: manager.Ready()}
	if manager.user != nil {
		user := *manager.user
		snapshot.User = &user
	}
	return snapshot
}

// State returns the current state.
func (manager *Manager) State() State {
	manager.mu.RLock()
	defer manager.mu.RUnlock()
	return manager.state
}

// User returns a copy of the current user, or nil.
func (manager *Manager) User() *account.User {
	return manager.Snapshot().User
}

// IsAuthenticated reports a user with an access token and a verified email.
func (manager *Manager) IsAuthenticated() bool {
	return manager.State() == StateAuthenticated
}

// IsUnverified reports a known user who is not fully authenticated.
func (manager *Manager) IsUnverified() bool {
	return manager.State() == StateUnverified
}

// HasPermission reports whether the authenticated user's role grants perm.
// Unknown permissions and non-authenticated sessions always deny.
func (manager *Manager) HasPermission(perm string) bool {
	manager.mu.RLock()
	defer manager.mu.RUnlock()

	if manager.state != StateAuthenticated || manager.user == nil {
		return false
	}
	return manager.perms.Allowed(manager.user.Role, perm)
}

// # State Transitions

// deriveState applies the authentication rule: a user, an access token and a
// verified email make Authenticated; a user alone makes Unverified.
func deriveState(user *account.User, hasAccess bool) State {
	switch {
	case user == nil:
		return StateAnonymous
	case hasAccess && user.EmailVerified:
		return StateAuthenticated
	default:
		return StateUnverified
	}
}

// settle publishes a new user and state, then binds the refresher to it.
func (manager *Manager) settle(user *account.User, state State) {
	manager.mu.Lock()
	previous := manager.state
	manager.user = user
	manager.state = state
	manager.mu.Unlock()

	manager.changes.Publish(manager.Snapshot())

	if previous != state {
		manager.logger.Info("session_state_changed",
			slog.String("from", string(previous)),
			slog.String("to", string(state)),
		)
	}

	if user != nil && state != StateAnonymous {
		manager.startRefresher(user.ID)
	} else {
		manager.stopRefresher()
	}
}

// persistUser stores the user record and its derived verification status.
func (manager *Manager) persistUser(ctx context.Context, user *account.User) error {
	if err := manager.store.SaveRecord(ctx, constants.KeyUserData, user); err != nil {
		return err
	}
	return manager.store.SaveRecord(ctx, constants.KeyVerificationStatus, account.StatusOf(user))
}

// adopt persists user and re-derives the state from what the store now holds.
func (manager *Manager) adopt(ctx context.Context, user *account.User) error {
	if err := manager.persistUser(ctx, user); err != nil {
		return fmt.Errorf("session_persist_user_failed: %w", err)
	}

	access, err := manager.store.AccessToken(ctx)
	if err != nil {
		return fmt.Errorf("session_read_token_failed: %w", err)
	}

	manager.settle(user, deriveState(user, access != ""))
	return nil
}

// reset clears every persisted value and returns to Anonymous.
func (manager *Manager) reset(ctx context.Context) error {
	err := manager.store.ClearAll(ctx)
	manager.settle(nil, StateAnonymous)
	if err != nil {
		return fmt.Errorf("session_clear_failed: %w", err)
	}
	return nil
}

// cachedUser loads the persisted user record, or nil.
func (manager *Manager) cachedUser(ctx context.Context) *account.User {
	var user account.User
	found, err := manager.store.LoadRecord(ctx, constants.KeyUserData, &user)
	if err != nil {
		manager.logger.Warn("session_cached_user_unreadable", slog.Any("error", err))
		return nil
	}
	if !found {
		return nil
	}
	return &user
}
