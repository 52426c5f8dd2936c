// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package session_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/taibuivan/bizmap/internal/account"
	"github.com/taibuivan/bizmap/internal/apiclient"
	"github.com/taibuivan/bizmap/internal/notify"
	"github.com/taibuivan/bizmap/internal/platform/apperr"
	"github.com/taibuivan/bizmap/internal/platform/constants"
	"github.com/taibuivan/bizmap/internal/platform/sec"
	"github.com/taibuivan/bizmap/internal/session"
	"github.com/taibuivan/bizmap/internal/tokenstore"
)

// # Fixtures

type fakeAPI struct {
	login       func(account.Credentials) (*apiclient.AuthResponse, error)
	register    func(account.RegisterData) (*apiclient.AuthResponse, error)
	refresh     func(string) (*apiclient.RefreshResponse, error)
	profile     func() (*account.User, error)
	verifyEmail func(string) (*apiclient.AuthResponse, error)
	logoutErr   error

	refreshCalls atomic.Int32
	logoutCalls  atomic.Int32
}

var errNotStubbed = errors.New("not stubbed")

func (f *fakeAPI) Login(_ context.Context, c account.Credentials) (*apiclient.AuthResponse, error) {
	if f.login == nil {
		return nil, errNotStubbed
	}
	return f.login(c)
}

func (f *fakeAPI) Register(_ context.Context, d account.RegisterData) (*apiclient.AuthResponse, error) {
	if f.register == nil {
		return nil, errNotStubbed
	}
	return f.register(d)
}

func (f *fakeAPI) RefreshToken(_ context.Context, refresh string) (*apiclient.RefreshResponse, error) {
	f.refreshCalls.Add(1)
	if f.refresh == nil {
		return nil, apperr.Unauthorized("Session expired. Please login again.")
	}
	return f.refresh(refresh)
}

func (f *fakeAPI) Profile(context.Context) (*account.User, error) {
	if f.profile == nil {
		return nil, apperr.Network(errors.New("down"), true)
	}
	return f.profile()
}

func (f *fakeAPI) Logout(context.Context) error {
	f.logoutCalls.Add(1)
	return f.logoutErr
}

func (f *fakeAPI) VerifyEmail(_ context.Context, token string) (*apiclient.AuthResponse, error) {
	if f.verifyEmail == nil {
		return nil, errNotStubbed
	}
	return f.verifyEmail(token)
}

func (f *fakeAPI) ResendEmailVerification(context.Context, string, string) (*apiclient.AuthResponse, error) {
	return &apiclient.AuthResponse{Success: true}, nil
}

func (f *fakeAPI) RequestPhoneVerification(context.Context, string) (*apiclient.AuthResponse, error) {
	return &apiclient.AuthResponse{Success: true}, nil
}

func (f *fakeAPI) VerifyPhone(context.Context, string, string) (*apiclient.AuthResponse, error) {
	return &apiclient.AuthResponse{Success: true}, nil
}

func signedToken(t *testing.T, ttl time.Duration) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(ttl).Unix(),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func verifiedUser() *account.User {
	return &account.User{
		ID:            "u1",
		Email:         "aline@example.rw",
		FirstName:     "Aline",
		Role:          sec.RoleCustomer,
		EmailVerified: true,
	}
}

type harness struct {
	api     *fakeAPI
	store   *tokenstore.Store
	hub     *notify.Hub
	manager *session.Manager
}

func newHarness(t *testing.T, opts ...session.Option) *harness {
	t.Helper()

	store := tokenstore.New(tokenstore.NewMemoryBackend())
	require.NoError(t, store.Init(context.Background()))

	h := &harness{api: &fakeAPI{}, store: store, hub: notify.NewHub()}
	opts = append([]session.Option{session.WithNotifier(h.hub)}, opts...)

	manager, err := session.New(store, h.api, opts...)
	require.NoError(t, err)
	h.manager = manager
	t.Cleanup(manager.Close)
	return h
}

func (h *harness) lastNotice(t *testing.T) notify.Notice {
	t.Helper()
	recent := h.hub.Recent()
	require.NotEmpty(t, recent)
	return recent[len(recent)-1]
}

// # Initialization

/*
TestManager_Init covers every branch of session restoration.
*/
func TestManager_Init(t *testing.T) {
	tests := []struct {
		name    string
		seed    func(t *testing.T, h *harness)
		want    session.State
		refresh int32
		cleared bool
	}{
		{
			name: "nothing_persisted",
			seed: func(*testing.T, *harness) {},
			want: session.StateAnonymous,
		},
		{
			name: "temporary_token_only",
			seed: func(t *testing.T, h *harness) {
				ctx := context.Background()
				require.NoError(t, h.store.SetTokens(ctx, tokenstore.Tokens{Temporary: "tmp"}))
				require.NoError(t, h.store.SaveRecord(ctx, constants.KeyUserData, account.User{ID: "u1", Email: "a@b.rw"}))
			},
			want: session.StateUnverified,
		},
		{
			name: "valid_access_profile_ok",
			seed: func(t *testing.T, h *harness) {
				require.NoError(t, h.store.SetTokens(context.Background(), tokenstore.Tokens{Access: signedToken(t, time.Hour), Refresh: "r"}))
				h.api.profile = func() (*account.User, error) { return verifiedUser(), nil }
			},
			want: session.StateAuthenticated,
		},
		{
			name: "valid_access_unverified_profile",
			seed: func(t *testing.T, h *harness) {
				require.NoError(t, h.store.SetTokens(context.Background(), tokenstore.Tokens{Access: signedToken(t, time.Hour)}))
				h.api.profile = func() (*account.User, error) {
					u := verifiedUser()
					u.EmailVerified = false
					return u, nil
				}
			},
			want: session.StateUnverified,
		},
		{
			name: "valid_access_profile_down_uses_cache",
			seed: func(t *testing.T, h *harness) {
				ctx := context.Background()
				require.NoError(t, h.store.SetTokens(ctx, tokenstore.Tokens{Access: signedToken(t, time.Hour)}))
				require.NoError(t, h.store.SaveRecord(ctx, constants.KeyUserData, verifiedUser()))
			},
			want: session.StateAuthenticated,
		},
		{
			name: "valid_access_profile_down_no_cache",
			seed: func(t *testing.T, h *harness) {
				require.NoError(t, h.store.SetTokens(context.Background(), tokenstore.Tokens{Access: signedToken(t, time.Hour)}))
			},
			want:    session.StateAnonymous,
			cleared: true,
		},
		{
			name: "expired_access_refresh_fails",
			seed: func(t *testing.T, h *harness) {
				require.NoError(t, h.store.SetTokens(context.Background(), tokenstore.Tokens{Access: signedToken(t, -time.Minute), Refresh: "r"}))
			},
			want:    session.StateAnonymous,
			refresh: 1,
			cleared: true,
		},
		{
			name: "expired_access_refresh_ok",
			seed: func(t *testing.T, h *harness) {
				require.NoError(t, h.store.SetTokens(context.Background(), tokenstore.Tokens{Access: signedToken(t, -time.Minute), Refresh: "r"}))
				fresh := signedToken(t, time.Hour)
				h.api.refresh = func(string) (*apiclient.RefreshResponse, error) {
					return &apiclient.RefreshResponse{Access: fresh}, nil
				}
				h.api.profile = func() (*account.User, error) { return verifiedUser(), nil }
			},
			want:    session.StateAuthenticated,
			refresh: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			tt.seed(t, h)

			assert.False(t, h.manager.Ready())
			assert.Equal(t, tt.want, h.manager.Init(context.Background()))
			assert.True(t, h.manager.Ready())
			assert.Equal(t, tt.refresh, h.api.refreshCalls.Load())

			if tt.cleared {
				access, err := h.store.AccessToken(context.Background())
				require.NoError(t, err)
				assert.Empty(t, access)
			}
			if tt.want == session.StateAuthenticated {
				access, _ := h.store.AccessToken(context.Background())
				user := h.manager.User()
				require.NotNil(t, user)
				assert.True(t, user.EmailVerified)
				assert.NotEmpty(t, access)
			}
		})
	}
}

/*
TestManager_InitOnce runs restoration a single time even when called concurrently.
*/
func TestManager_InitOnce(t *testing.T) {
	h := newHarness(t)

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Equal(t, session.StateAnonymous, h.manager.Init(context.Background()))
		}()
	}
	wg.Wait()

	assert.Equal(t, session.StateAnonymous, h.manager.State())
}

// # Login

/*
TestManager_LoginSuccess stores tokens, settles Authenticated and greets the user.
*/
func TestManager_LoginSuccess(t *testing.T) {
	h := newHarness(t)
	h.manager.Init(context.Background())

	access := signedToken(t, time.Hour)
	h.api.login = func(c account.Credentials) (*apiclient.AuthResponse, error) {
		assert.Equal(t, "aline@example.rw", c.Email)
		return &apiclient.AuthResponse{Success: true, AccessToken: access, RefreshToken: "r1", User: verifiedUser()}, nil
	}

	result, err := h.manager.Login(context.Background(), account.Credentials{Email: " aline@example.rw ", Password: "pw"}, "/business/42")
	require.NoError(t, err)

	assert.Equal(t, session.StateAuthenticated, result.State)
	assert.Equal(t, "/business/42", result.Redirect)
	assert.True(t, h.manager.IsAuthenticated())

	stored, _ := h.store.AccessToken(context.Background())
	assert.Equal(t, access, stored)

	notice := h.lastNotice(t)
	assert.Equal(t, "Welcome back!", notice.Title)
	assert.Equal(t, "Good to see you again, Aline!", notice.Description)
}

/*
TestManager_LoginRequiresVerification settles Unverified with a stub and a pending record.
*/
func TestManager_LoginRequiresVerification(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.manager.Init(ctx)

	// A stale full session must not survive
	require.NoError(t, h.store.SetTokens(ctx, tokenstore.Tokens{Access: signedToken(t, time.Hour), Refresh: "old"}))

	h.api.login = func(account.Credentials) (*apiclient.AuthResponse, error) {
		return &apiclient.AuthResponse{
			RequiresVerification: true,
			TemporaryToken:       "tmp",
			UserID:               "u9",
			Email:                "new@example.rw",
			VerificationType:     "email",
			NextStep:             "verify_email",
		}, nil
	}

	result, err := h.manager.Login(ctx, account.Credentials{Email: "new@example.rw", Password: "pw"}, "")
	require.NoError(t, err)

	assert.True(t, result.RequiresVerification)
	assert.Equal(t, constants.RouteVerificationRequired, result.Redirect)
	assert.Equal(t, session.StateUnverified, h.manager.State())

	access, _ := h.store.AccessToken(ctx)
	refresh, _ := h.store.RefreshToken(ctx)
	temporary, _ := h.store.TemporaryToken(ctx)
	assert.Empty(t, access)
	assert.Empty(t, refresh)
	assert.Equal(t, "tmp", temporary)

	var pending account.PendingVerification
	found, err := h.store.LoadRecord(ctx, constants.KeyPendingLogin, &pending)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "u9", pending.UserID)
	assert.Equal(t, "verify_email", pending.NextStep)

	want := &account.User{ID: "u9", Email: "new@example.rw"}
	if diff := cmp.Diff(want, h.manager.User()); diff != "" {
		t.Errorf("user stub mismatch (-want +got):\n%s", diff)
	}
}

/*
TestManager_LoginFailureKeepsState leaves the session untouched on any error.
*/
func TestManager_LoginFailureKeepsState(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.manager.Init(ctx)

	h.api.login = func(account.Credentials) (*apiclient.AuthResponse, error) {
		return nil, apperr.Classify(apperr.OpLogin, 400, []byte(`{}`))
	}

	_, err := h.manager.Login(ctx, account.Credentials{Email: "a@b.rw", Password: "bad"}, "")
	require.Error(t, err)
	assert.Equal(t, "Invalid email or password", err.Error())
	assert.Equal(t, session.StateAnonymous, h.manager.State())
	assert.Empty(t, h.hub.Recent())

	_, err = h.manager.Login(ctx, account.Credentials{Password: "pw"}, "")
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

// # Refresh

/*
TestManager_RefreshSingleFlight proves concurrent refreshes share one network call.
*/
func TestManager_RefreshSingleFlight(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.store.SetTokens(ctx, tokenstore.Tokens{Access: signedToken(t, time.Hour), Refresh: "r"}))
	h.api.profile = func() (*account.User, error) { return verifiedUser(), nil }
	h.manager.Init(ctx)

	entered := make(chan struct{})
	release := make(chan struct{})
	fresh := signedToken(t, 2*time.Hour)
	h.api.refresh = func(string) (*apiclient.RefreshResponse, error) {
		close(entered)
		<-release
		return &apiclient.RefreshResponse{Access: fresh, Refresh: "r2"}, nil
	}

	var wg sync.WaitGroup
	errs := make(chan error, 5)

	wg.Add(1)
	go func() { defer wg.Done(); errs <- h.manager.RefreshAuth(ctx) }()
	<-entered

	for range 4 {
		wg.Add(1)
		go func() { defer wg.Done(); errs <- h.manager.RefreshAuth(ctx) }()
	}

	// Let the late callers join the in-flight exchange
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), h.api.refreshCalls.Load())

	refresh, _ := h.store.RefreshToken(ctx)
	assert.Equal(t, "r2", refresh)
}

/*
TestManager_RefreshFailureLogsOut clears the session and surfaces the error.
*/
func TestManager_RefreshFailureLogsOut(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.store.SetTokens(ctx, tokenstore.Tokens{Access: signedToken(t, time.Hour), Refresh: "r"}))
	h.api.profile = func() (*account.User, error) { return verifiedUser(), nil }
	require.Equal(t, session.StateAuthenticated, h.manager.Init(ctx))

	err := h.manager.RefreshAuth(ctx)
	assert.True(t, apperr.IsKind(err, apperr.KindAuth))
	assert.Equal(t, session.StateAnonymous, h.manager.State())
	assert.Equal(t, int32(1), h.api.logoutCalls.Load())

	access, _ := h.store.AccessToken(ctx)
	assert.Empty(t, access)

	notice := h.lastNotice(t)
	assert.Equal(t, notify.LevelError, notice.Level)
	assert.Equal(t, "Session expired", notice.Title)
}

/*
TestManager_RefreshOutlivesCaller keeps the shared exchange running when the
caller that started it gives up.
*/
func TestManager_RefreshOutlivesCaller(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.store.SetTokens(ctx, tokenstore.Tokens{Access: signedToken(t, time.Hour), Refresh: "r"}))
	h.api.profile = func() (*account.User, error) { return verifiedUser(), nil }
	require.Equal(t, session.StateAuthenticated, h.manager.Init(ctx))

	entered := make(chan struct{})
	release := make(chan struct{})
	fresh := signedToken(t, 2*time.Hour)
	h.api.refresh = func(string) (*apiclient.RefreshResponse, error) {
		close(entered)
		<-release
		return &apiclient.RefreshResponse{Access: fresh, Refresh: "r2"}, nil
	}

	callerCtx, cancel := context.WithCancel(ctx)
	first := make(chan error, 1)
	go func() { first <- h.manager.RefreshAuth(callerCtx) }()
	<-entered

	joined := make(chan error, 1)
	go func() { joined <- h.manager.RefreshAuth(ctx) }()

	// Let the second caller join before the first one leaves
	time.Sleep(50 * time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-first, context.Canceled)

	close(release)
	require.NoError(t, <-joined)

	assert.Equal(t, session.StateAuthenticated, h.manager.State())
	assert.Equal(t, int32(1), h.api.refreshCalls.Load())
	assert.Zero(t, h.api.logoutCalls.Load())

	access, _ := h.store.AccessToken(ctx)
	assert.Equal(t, fresh, access)
}

/*
TestManager_EnsureFreshCancelled returns the caller's context error instead of
an auth error, and the session survives.
*/
func TestManager_EnsureFreshCancelled(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.store.SetTokens(ctx, tokenstore.Tokens{Access: signedToken(t, time.Hour), Refresh: "r"}))
	h.api.profile = func() (*account.User, error) { return verifiedUser(), nil }
	require.Equal(t, session.StateAuthenticated, h.manager.Init(ctx))

	// Expired for the store, still present
	require.NoError(t, h.store.SetTokens(ctx, tokenstore.Tokens{Access: signedToken(t, 10*time.Second)}))

	entered := make(chan struct{})
	release := make(chan struct{})
	fresh := signedToken(t, 2*time.Hour)
	h.api.refresh = func(string) (*apiclient.RefreshResponse, error) {
		close(entered)
		<-release
		return &apiclient.RefreshResponse{Access: fresh}, nil
	}

	callerCtx, cancel := context.WithCancel(ctx)
	result := make(chan error, 1)
	go func() { result <- h.manager.EnsureFresh(callerCtx) }()
	<-entered
	cancel()

	err := <-result
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, apperr.IsKind(err, apperr.KindAuth))

	close(release)
	assert.Eventually(t, func() bool {
		access, _ := h.store.AccessToken(ctx)
		return access == fresh
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, session.StateAuthenticated, h.manager.State())
	assert.Zero(t, h.api.logoutCalls.Load())
}

/*
TestManager_ProactiveRefresh renews a token inside the window and stops on logout.
*/
func TestManager_ProactiveRefresh(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	store := tokenstore.New(tokenstore.NewMemoryBackend())
	ctx := context.Background()
	require.NoError(t, store.Init(ctx))
	require.NoError(t, store.SetTokens(ctx, tokenstore.Tokens{Access: signedToken(t, 2*time.Minute), Refresh: "r"}))

	api := &fakeAPI{profile: func() (*account.User, error) { return verifiedUser(), nil }}
	fresh := signedToken(t, time.Hour)
	api.refresh = func(string) (*apiclient.RefreshResponse, error) {
		return &apiclient.RefreshResponse{Access: fresh}, nil
	}

	manager, err := session.New(store, api, session.WithRefreshInterval(10*time.Millisecond))
	require.NoError(t, err)
	defer manager.Close()

	require.Equal(t, session.StateAuthenticated, manager.Init(ctx))

	assert.Eventually(t, func() bool {
		access, _ := store.AccessToken(ctx)
		return access == fresh
	}, time.Second, 10*time.Millisecond)

	// A fresh token is outside the window: no further refreshes
	calls := api.refreshCalls.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, calls, api.refreshCalls.Load())

	require.NoError(t, manager.Logout(ctx))
	manager.Close()
}

/*
TestManager_EnsureFresh refreshes only expired tokens and rejects missing sessions.
*/
func TestManager_EnsureFresh(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	err := h.manager.EnsureFresh(ctx)
	assert.True(t, apperr.IsKind(err, apperr.KindAuth))

	require.NoError(t, h.store.SetTokens(ctx, tokenstore.Tokens{Access: signedToken(t, time.Hour)}))
	require.NoError(t, h.manager.EnsureFresh(ctx))
	assert.Zero(t, h.api.refreshCalls.Load())

	require.NoError(t, h.store.SetTokens(ctx, tokenstore.Tokens{Access: signedToken(t, 10*time.Second), Refresh: "r"}))
	fresh := signedToken(t, time.Hour)
	h.api.refresh = func(string) (*apiclient.RefreshResponse, error) {
		return &apiclient.RefreshResponse{Access: fresh}, nil
	}
	require.NoError(t, h.manager.EnsureFresh(ctx))
	assert.Equal(t, int32(1), h.api.refreshCalls.Load())
}

// # Logout

/*
TestManager_LogoutIsTotal clears everything even when the backend call fails.
*/
func TestManager_LogoutIsTotal(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.store.SetTokens(ctx, tokenstore.Tokens{Access: signedToken(t, time.Hour), Refresh: "r", Temporary: "t"}))
	require.NoError(t, h.store.SaveRecord(ctx, constants.KeyPendingLogin, account.PendingVerification{Email: "a@b.rw"}))
	h.api.profile = func() (*account.User, error) { return verifiedUser(), nil }
	h.api.logoutErr = apperr.Network(errors.New("offline"), false)
	h.manager.Init(ctx)

	require.NoError(t, h.manager.Logout(ctx))

	assert.Equal(t, session.StateAnonymous, h.manager.State())
	assert.Nil(t, h.manager.User())
	for _, key := range []string{constants.KeyPendingLogin, constants.KeyUserData} {
		var v map[string]any
		found, err := h.store.LoadRecord(ctx, key, &v)
		require.NoError(t, err)
		assert.False(t, found, key)
	}
	assert.Equal(t, "Logged out successfully", h.lastNotice(t).Title)
}

// # Verification

/*
TestManager_VerifyEmailPromotes swaps the temporary token for full tokens.
*/
func TestManager_VerifyEmailPromotes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.store.SetTokens(ctx, tokenstore.Tokens{Temporary: "tmp"}))
	require.NoError(t, h.store.SaveRecord(ctx, constants.KeyUserData, account.User{ID: "u1", Email: "aline@example.rw"}))
	require.NoError(t, h.store.SaveRecord(ctx, constants.KeyRegistrationData, account.Registration{UserID: "u1"}))
	require.Equal(t, session.StateUnverified, h.manager.Init(ctx))

	access := signedToken(t, time.Hour)
	h.api.verifyEmail = func(token string) (*apiclient.AuthResponse, error) {
		assert.Equal(t, "link-token", token)
		return &apiclient.AuthResponse{Success: true, Access: access, Refresh: "r", User: verifiedUser()}, nil
	}

	result, err := h.manager.VerifyEmail(ctx, "link-token")
	require.NoError(t, err)
	assert.Equal(t, session.StateAuthenticated, result.State)
	assert.Equal(t, constants.RouteDashboard, result.Redirect)

	temporary, _ := h.store.TemporaryToken(ctx)
	assert.Empty(t, temporary)

	var registration account.Registration
	found, _ := h.store.LoadRecord(ctx, constants.KeyRegistrationData, &registration)
	assert.False(t, found)
	assert.Equal(t, "Email Verified!", h.lastNotice(t).Title)
}

/*
TestManager_RegisterWithoutTokens keeps a form-built stub and waits in Unverified.
*/
func TestManager_RegisterWithoutTokens(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.manager.Init(ctx)

	h.api.register = func(d account.RegisterData) (*apiclient.AuthResponse, error) {
		assert.Equal(t, "en", d.PreferredLanguage)
		return &apiclient.AuthResponse{Success: true, UserID: "u7", RequiresVerification: true}, nil
	}

	result, err := h.manager.Register(ctx, account.RegisterData{
		FirstName:       "Eric",
		LastName:        "Mugisha",
		Email:           "eric@example.rw",
		PhoneNumber:     "0788 123 456",
		Password:        "secret-pass",
		ConfirmPassword: "secret-pass",
	})
	require.NoError(t, err)
	assert.Equal(t, session.StateUnverified, result.State)

	user := h.manager.User()
	require.NotNil(t, user)
	assert.Equal(t, "u7", user.ID)
	assert.Equal(t, "0788123456", user.PhoneNumber)
	assert.Equal(t, sec.RoleCustomer, user.Role)
	assert.False(t, user.EmailVerified)

	var registration account.Registration
	found, _ := h.store.LoadRecord(ctx, constants.KeyRegistrationData, &registration)
	require.True(t, found)
	assert.Equal(t, "eric@example.rw", registration.Email)
	assert.Equal(t, "Registration Successful!", h.lastNotice(t).Title)
}

/*
TestManager_RegisterValidation rejects mismatched passwords before any call.
*/
func TestManager_RegisterValidation(t *testing.T) {
	h := newHarness(t)
	_, err := h.manager.Register(context.Background(), account.RegisterData{
		FirstName: "E", LastName: "M", Email: "e@example.rw",
		Password: "secret-pass", ConfirmPassword: "other-pass",
	})

	appErr := apperr.As(err)
	require.NotNil(t, appErr)
	require.Len(t, appErr.Details, 1)
	assert.Equal(t, account.FieldConfirmPassword, appErr.Details[0].Field)
}

// # Capabilities

/*
TestManager_HasPermission maps roles to the fixed permission set.
*/
func TestManager_HasPermission(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.manager.Init(ctx)
	require.NoError(t, h.store.SetTokens(ctx, tokenstore.Tokens{Access: signedToken(t, time.Hour)}))

	assert.False(t, h.manager.HasPermission(sec.PermCreateBusiness))

	owner := verifiedUser()
	owner.Role = sec.RoleBusinessOwner
	require.NoError(t, h.manager.UpdateUser(ctx, owner))

	assert.True(t, h.manager.HasPermission(sec.PermCreateBusiness))
	assert.True(t, h.manager.HasPermission(sec.PermManageBusinesses))
	assert.False(t, h.manager.HasPermission(sec.PermViewAdminPanel))
	assert.False(t, h.manager.HasPermission("delete_everything"))

	owner.EmailVerified = false
	require.NoError(t, h.manager.UpdateUser(ctx, owner))
	assert.False(t, h.manager.HasPermission(sec.PermCreateBusiness))
}

/*
TestManager_HandleAPIError logs out on 401 and passes other copy through.
*/
func TestManager_HandleAPIError(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	message, redirect := h.manager.HandleAPIError(ctx, apperr.Classify(apperr.OpGeneral, 404, nil))
	assert.NotEmpty(t, message)
	assert.Empty(t, redirect)
	assert.Zero(t, h.api.logoutCalls.Load())

	message, redirect = h.manager.HandleAPIError(ctx, apperr.Classify(apperr.OpGeneral, 401, nil))
	assert.Equal(t, "Session expired. Please login again.", message)
	assert.Equal(t, constants.RouteLogin, redirect)
	assert.Equal(t, int32(1), h.api.logoutCalls.Load())
	assert.Equal(t, "Session expired", h.lastNotice(t).Title)
}

/*
TestLoginRedirect resolves the post-login page.
*/
func TestLoginRedirect(t *testing.T) {
	owner := verifiedUser()
	owner.Role = sec.RoleBusinessOwner
	authenticated := &session.Result{State: session.StateAuthenticated, User: owner}

	tests := []struct {
		name     string
		from     string
		redirect string
		result   *session.Result
		want     string
	}{
		{"remembered_page", "/business/7", "/x", authenticated, "/business/7"},
		{"remembered_page_with_query", "/search?q=kigali", "", authenticated, "/search?q=kigali"},
		{"rejects_absolute_url", "https://evil.example/phish", "", authenticated, constants.RouteBusinessDashboard},
		{"rejects_scheme_relative", "//evil.example", "", authenticated, constants.RouteBusinessDashboard},
		{"rejects_backslash_host", "/\\evil.example", "", authenticated, constants.RouteBusinessDashboard},
		{"rejects_relative_path", "business/7", "/welcome", authenticated, "/welcome"},
		{"ignores_login_page", constants.RouteLogin, "", authenticated, constants.RouteBusinessDashboard},
		{"backend_suggestion", "", "/welcome", authenticated, "/welcome"},
		{"role_landing", "", "", authenticated, constants.RouteBusinessDashboard},
		{"unverified", "/business/7", "", &session.Result{State: session.StateUnverified}, constants.RouteVerificationRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, session.LoginRedirect(tt.from, tt.redirect, tt.result))
		})
	}
}

/*
TestManager_LoginKeepsSessionOnProfileFailure leaves the signed-in session
alone when the new login cannot load its profile.
*/
func TestManager_LoginKeepsSessionOnProfileFailure(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	previous := signedToken(t, time.Hour)
	require.NoError(t, h.store.SetTokens(ctx, tokenstore.Tokens{Access: previous, Refresh: "r-old"}))
	h.api.profile = func() (*account.User, error) { return verifiedUser(), nil }
	require.Equal(t, session.StateAuthenticated, h.manager.Init(ctx))

	h.api.login = func(account.Credentials) (*apiclient.AuthResponse, error) {
		return &apiclient.AuthResponse{Success: true, AccessToken: signedToken(t, 2*time.Hour), RefreshToken: "r-new"}, nil
	}
	h.api.profile = func() (*account.User, error) { return nil, apperr.Network(errors.New("down"), true) }

	_, err := h.manager.Login(ctx, account.Credentials{Email: "other@example.rw", Password: "secret-pass"}, "")
	require.Error(t, err)

	access, _ := h.store.AccessToken(ctx)
	refresh, _ := h.store.RefreshToken(ctx)
	assert.Equal(t, previous, access)
	assert.Equal(t, "r-old", refresh)
	assert.Equal(t, session.StateAuthenticated, h.manager.State())
	assert.Equal(t, "u1", h.manager.User().ID)
}

/*
TestManager_RegisterKeepsSessionOnProfileFailure does the same for a
registration that answers with tokens but no user.
*/
func TestManager_RegisterKeepsSessionOnProfileFailure(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	previous := signedToken(t, time.Hour)
	require.NoError(t, h.store.SetTokens(ctx, tokenstore.Tokens{Access: previous, Refresh: "r-old"}))
	h.api.profile = func() (*account.User, error) { return verifiedUser(), nil }
	require.Equal(t, session.StateAuthenticated, h.manager.Init(ctx))

	h.api.register = func(account.RegisterData) (*apiclient.AuthResponse, error) {
		return &apiclient.AuthResponse{Success: true, AccessToken: signedToken(t, 2*time.Hour), RefreshToken: "r-new"}, nil
	}
	h.api.profile = func() (*account.User, error) { return nil, apperr.Network(errors.New("down"), true) }

	_, err := h.manager.Register(ctx, account.RegisterData{
		FirstName:       "Eric",
		LastName:        "Mugisha",
		Email:           "eric@example.rw",
		Password:        "secret-pass",
		ConfirmPassword: "secret-pass",
	})
	require.Error(t, err)

	access, _ := h.store.AccessToken(ctx)
	refresh, _ := h.store.RefreshToken(ctx)
	assert.Equal(t, previous, access)
	assert.Equal(t, "r-old", refresh)
	assert.Equal(t, session.StateAuthenticated, h.manager.State())
}

// # Change Feed

/*
TestManager_Subscribe streams readiness and every transition, and ends on Close.
*/
func TestManager_Subscribe(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	changes, stop := h.manager.Subscribe(8)
	defer stop()

	next := func() session.Snapshot {
		t.Helper()
		select {
		case snapshot, open := <-changes:
			require.True(t, open)
			return snapshot
		case <-time.After(time.Second):
			require.FailNow(t, "no session change published")
			return session.Snapshot{}
		}
	}

	h.manager.Init(ctx)
	snapshot := next()
	for !snapshot.Ready {
		snapshot = next()
	}
	assert.Equal(t, session.StateAnonymous, snapshot.State)

	h.api.login = func(account.Credentials) (*apiclient.AuthResponse, error) {
		return &apiclient.AuthResponse{Success: true, AccessToken: signedToken(t, time.Hour), RefreshToken: "r", User: verifiedUser()}, nil
	}
	_, err := h.manager.Login(ctx, account.Credentials{Email: "aline@example.rw", Password: "secret-pass"}, "")
	require.NoError(t, err)

	snapshot = next()
	assert.Equal(t, session.StateAuthenticated, snapshot.State)
	require.NotNil(t, snapshot.User)
	assert.Equal(t, "u1", snapshot.User.ID)

	h.manager.Close()
	select {
	case _, open := <-changes:
		assert.False(t, open)
	case <-time.After(time.Second):
		t.Fatal("stream not closed")
	}
}
