// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/taibuivan/bizmap/internal/account"
	"github.com/taibuivan/bizmap/internal/apiclient"
	"github.com/taibuivan/bizmap/internal/notify"
	"github.com/taibuivan/bizmap/internal/platform/apperr"
	"github.com/taibuivan/bizmap/internal/platform/constants"
	"github.com/taibuivan/bizmap/internal/platform/sec"
	"github.com/taibuivan/bizmap/internal/platform/validate"
	"github.com/taibuivan/bizmap/internal/tokenstore"
)

// # Results

// Result describes where a sign-in flow left the session.
type Result struct {
	State                State         `json:"state"`
	User                 *account.User `json:"user,omitempty"`
	RequiresVerification bool          `json:"requires_verification"`
	Redirect             string        `json:"redirect"`
}

// # Login Flow

/*
Login signs the user in with an email or phone number and a password.

Description: A full success persists the tokens and the user and settles
into Authenticated or Unverified. A verification-required answer drops any
stale access token, keeps the temporary token and a pending-verification
record, and settles into Unverified with a minimal user stub. Any failure
leaves the session exactly as it was.

Parameters:
  - ctx: context.Context
  - credentials: account.Credentials
  - from: The page the user was sent away from, or empty

Returns:
  - *Result: Settled state and the page to show next
  - error: ValidationError, AuthError, NetworkError or ServerError
*/
func (manager *Manager) Login(ctx context.Context, credentials account.Credentials, from string) (*Result, error) {
	credentials.Email = strings.TrimSpace(credentials.Email)
	credentials.PhoneNumber = validate.NormalizePhone(credentials.PhoneNumber)

	v := &validate.Validator{}
	v.Custom(account.FieldLogin, credentials.Email == "" && credentials.PhoneNumber == "", "Enter your email or phone number").
		Required(account.FieldPassword, credentials.Password)
	if credentials.Email != "" {
		v.Email(account.FieldEmail, credentials.Email)
	} else if credentials.PhoneNumber != "" {
		v.Phone(account.FieldPhoneNumber, credentials.PhoneNumber)
	}
	if err := v.Err(); err != nil {
		return nil, err
	}

	response, err := manager.api.Login(ctx, credentials)
	if err != nil {
		manager.logger.Info("session_login_failed", slog.Any("error", err))
		return nil, err
	}

	if response.RequiresVerification {
		return manager.holdForVerification(ctx, response, credentials.Email)
	}

	access, refresh := response.Tokens()
	if access == "" {
		return nil, apperr.Unauthorized(firstNonEmpty(response.Message, "Login failed"))
	}

	user, err := manager.userFor(ctx, response, access)
	if err != nil {
		return nil, err
	}
	if err := manager.store.SetTokens(ctx, tokenstore.Tokens{Access: access, Refresh: refresh}); err != nil {
		return nil, fmt.Errorf("session_store_tokens_failed: %w", err)
	}

	if err := manager.store.Remove(ctx, constants.KeyPendingLogin, constants.KeyTemporaryToken); err != nil {
		return nil, fmt.Errorf("session_clear_pending_failed: %w", err)
	}
	if err := manager.adopt(ctx, user); err != nil {
		return nil, err
	}

	manager.logger.Info("session_login_succeeded", slog.String("user_id", user.ID))
	manager.notifier.Notify(notify.LevelSuccess, "Welcome back!",
		fmt.Sprintf("Good to see you again, %s!", user.DisplayName()))

	result := manager.result(false)
	result.Redirect = LoginRedirect(from, response.RedirectURL, result)
	return result, nil
}

// userFor returns the user an auth response signs in. A response without one
// is completed by a profile call made with the new access token, so the stored
// session is untouched until the new one is known to work.
func (manager *Manager) userFor(ctx context.Context, response *apiclient.AuthResponse, access string) (*account.User, error) {
	if response.User != nil {
		return response.User, nil
	}
	return manager.api.Profile(apiclient.WithBearer(ctx, access))
}

// holdForVerification stores what the verification pages need after a blocked login.
func (manager *Manager) holdForVerification(ctx context.Context, response *apiclient.AuthResponse, email string) (*Result, error) {
	email = firstNonEmpty(response.Email, email)

	// A previous full session must not survive into a verification-scoped one
	if err := manager.store.Remove(ctx, constants.KeyAccessToken, constants.KeyRefreshToken); err != nil {
		return nil, fmt.Errorf("session_clear_tokens_failed: %w", err)
	}
	if response.TemporaryToken != "" {
		if err := manager.store.SetTokens(ctx, tokenstore.Tokens{Temporary: response.TemporaryToken}); err != nil {
			return nil, fmt.Errorf("session_store_tokens_failed: %w", err)
		}
	}

	pending := account.PendingVerification{
		Email:            email,
		UserID:           response.UserID,
		VerificationType: response.VerificationType,
		NextStep:         response.NextStep,
		CreatedAt:        time.Now().UTC(),
	}
	if err := manager.store.SaveRecord(ctx, constants.KeyPendingLogin, pending); err != nil {
		return nil, fmt.Errorf("session_store_pending_failed: %w", err)
	}

	user := &account.User{ID: response.UserID, Email: email}
	if response.User != nil {
		stub := *response.User
		stub.ID = firstNonEmpty(stub.ID, user.ID)
		stub.Email = firstNonEmpty(stub.Email, user.Email)
		user = &stub
	}
	user.EmailVerified = false
	user.PhoneVerified = false

	if err := manager.persistUser(ctx, user); err != nil {
		return nil, fmt.Errorf("session_persist_user_failed: %w", err)
	}
	manager.settle(user, StateUnverified)

	manager.logger.Info("session_login_requires_verification",
		slog.String("user_id", user.ID),
		slog.String("verification_type", response.VerificationType),
	)

	result := manager.result(true)
	result.Redirect = constants.RouteVerificationRequired
	return result, nil
}

// # Registration Flow

/*
Register creates an account.

Description: The registration record is always kept so the verification pages
can resend emails. When the backend answers with tokens the user is signed in
immediately; otherwise a minimal user stub built from the form is stored and
the session waits in Unverified for the email link.

Parameters:
  - ctx: context.Context
  - data: account.RegisterData

Returns:
  - *Result: Settled state and the page to show next
  - error: ValidationError (including duplicate email or phone) or transport errors
*/
func (manager *Manager) Register(ctx context.Context, data account.RegisterData) (*Result, error) {
	data.Email = strings.TrimSpace(data.Email)
	data.PhoneNumber = validate.NormalizePhone(data.PhoneNumber)
	if data.PreferredLanguage == "" {
		data.PreferredLanguage = "en"
	}
	if data.Role == "" {
		data.Role = sec.RoleCustomer
	}

	v := &validate.Validator{}
	v.Required(account.FieldFirstName, data.FirstName).
		Required(account.FieldLastName, data.LastName).
		Required(account.FieldEmail, data.Email).
		Email(account.FieldEmail, data.Email).
		MinLen(account.FieldPassword, data.Password, 8).
		Matches(account.FieldConfirmPassword, data.ConfirmPassword, data.Password, "Passwords do not match").
		OneOf(account.FieldPreferredLanguage, data.PreferredLanguage, "rw", "en", "fr").
		OneOf(account.FieldUserType, string(data.Role), string(sec.RoleCustomer), string(sec.RoleBusinessOwner))
	if data.PhoneNumber != "" {
		v.Phone(account.FieldPhoneNumber, data.PhoneNumber)
	}
	if err := v.Err(); err != nil {
		return nil, err
	}

	response, err := manager.api.Register(ctx, data)
	if err != nil {
		manager.logger.Info("session_register_failed", slog.Any("error", err))
		return nil, err
	}
	if !response.Success {
		return nil, apperr.ValidationError(firstNonEmpty(response.Message, "Registration failed"))
	}

	registration := account.Registration{
		UserID:               response.UserID,
		Email:                firstNonEmpty(response.Email, data.Email),
		RequiresVerification: response.RequiresVerification,
	}
	if err := manager.store.SaveRecord(ctx, constants.KeyRegistrationData, registration); err != nil {
		return nil, fmt.Errorf("session_store_registration_failed: %w", err)
	}

	access, refresh := response.Tokens()
	if access != "" {
		user, err := manager.userFor(ctx, response, access)
		if err != nil {
			return nil, err
		}
		if err := manager.store.SetTokens(ctx, tokenstore.Tokens{Access: access, Refresh: refresh}); err != nil {
			return nil, fmt.Errorf("session_store_tokens_failed: %w", err)
		}
		if err := manager.adopt(ctx, user); err != nil {
			return nil, err
		}

		manager.notifier.Notify(notify.LevelSuccess, "Account Created!",
			fmt.Sprintf("Welcome to BizMap, %s!", user.DisplayName()))

		result := manager.result(false)
		result.Redirect = LoginRedirect("", response.RedirectURL, result)
		return result, nil
	}

	if response.TemporaryToken != "" {
		if err := manager.store.SetTokens(ctx, tokenstore.Tokens{Temporary: response.TemporaryToken}); err != nil {
			return nil, fmt.Errorf("session_store_tokens_failed: %w", err)
		}
	}

	user := &account.User{
		ID:                firstNonEmpty(response.UserID, "temp_"+uuid.NewString()),
		Email:             registration.Email,
		FirstName:         data.FirstName,
		LastName:          data.LastName,
		PhoneNumber:       data.PhoneNumber,
		Role:              data.Role,
		PreferredLanguage: data.PreferredLanguage,
		LocationProvince:  data.LocationProvince,
		LocationDistrict:  data.LocationDistrict,
		DateJoined:        time.Now().UTC().Format(time.RFC3339),
	}
	if err := manager.persistUser(ctx, user); err != nil {
		return nil, fmt.Errorf("session_persist_user_failed: %w", err)
	}
	manager.settle(user, StateUnverified)

	manager.notifier.Notify(notify.LevelSuccess, "Registration Successful!",
		"Please check your email to verify your account.")

	result := manager.result(true)
	result.Redirect = constants.RouteVerificationRequired
	return result, nil
}

// # Logout

/*
Logout ends the session.

Description: The backend is told on a best-effort basis; its failure is
logged and ignored. The store is then cleared and the state returns to
Anonymous unconditionally.

Parameters:
  - ctx: context.Context

Returns:
  - error: Only a local store failure; the in-memory session is reset regardless
*/
func (manager *Manager) Logout(ctx context.Context) error {
	err := manager.logout(ctx)
	manager.notifier.Notify(notify.LevelSuccess, "Logged out successfully", "Hope to see you again soon!")
	return err
}

// expire ends a session the backend no longer accepts. It is Logout with a
// notice that tells the user why they were signed out.
func (manager *Manager) expire(ctx context.Context) error {
	err := manager.logout(ctx)
	manager.notifier.Notify(notify.LevelError, "Session expired", "Please log in again.")
	return err
}

func (manager *Manager) logout(ctx context.Context) error {
	if err := manager.api.Logout(ctx); err != nil {
		manager.logger.Warn("session_logout_remote_failed", slog.Any("error", err))
	}

	err := manager.reset(ctx)
	manager.logger.Info("session_logged_out")
	return err
}

// # Redirects

// LoginRedirect picks the page to show after signing in: the remembered page
// unless it is the login page itself or points off-site, then the backend's
// suggestion, then the role landing page. Unverified sessions always go to the
// verification page.
func LoginRedirect(from, redirectURL string, result *Result) string {
	if result.State != StateAuthenticated {
		return constants.RouteVerificationRequired
	}
	if from != constants.RouteLogin && sec.IsLocalPath(from) {
		return from
	}
	if redirectURL != "" {
		return redirectURL
	}
	if result.User == nil {
		return constants.RouteDashboard
	}
	return result.User.Role.LandingRoute()
}

func (manager *Manager) result(requiresVerification bool) *Result {
	snapshot := manager.Snapshot()
	return &Result{
		State:                snapshot.State,
		User:                 snapshot.User,
		RequiresVerification: requiresVerification || snapshot.State == StateUnverified,
	}
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
