// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package session

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/taibuivan/bizmap/internal/account"
	"github.com/taibuivan/bizmap/internal/notify"
	"github.com/taibuivan/bizmap/internal/platform/apperr"
	"github.com/taibuivan/bizmap/internal/platform/constants"
	"github.com/taibuivan/bizmap/internal/platform/validate"
	"github.com/taibuivan/bizmap/internal/tokenstore"
)

// # Email Verification

/*
VerifyEmail redeems the token from a verification email.

Description: Full tokens returned by the backend replace the temporary one.
The pending-login and registration records are cleared either way, since the
email step they tracked is done.

Parameters:
  - ctx: context.Context
  - token: The token from the email link

Returns:
  - *Result: Settled state and the page to show next
  - error: ValidationError or transport errors
*/
func (manager *Manager) VerifyEmail(ctx context.Context, token string) (*Result, error) {
	if err := (&validate.Validator{}).Required(account.FieldToken, token).Err(); err != nil {
		return nil, err
	}

	response, err := manager.api.VerifyEmail(ctx, token)
	if err != nil {
		return nil, err
	}
	if !response.Success {
		return nil, apperr.ValidationError(firstNonEmpty(response.Message, "Email verification failed"))
	}

	access, refresh := response.Tokens()
	if access != "" && refresh != "" {
		if err := manager.store.SetTokens(ctx, tokenstore.Tokens{Access: access, Refresh: refresh}); err != nil {
			return nil, fmt.Errorf("session_store_tokens_failed: %w", err)
		}
	}

	user := response.User
	if user == nil {
		user = manager.User()
	}
	if user == nil {
		user = &account.User{}
	}
	user.EmailVerified = true

	err = manager.store.Remove(ctx, constants.KeyTemporaryToken, constants.KeyPendingLogin, constants.KeyRegistrationData)
	if err != nil {
		return nil, fmt.Errorf("session_clear_pending_failed: %w", err)
	}
	if err := manager.adopt(ctx, user); err != nil {
		return nil, err
	}

	manager.logger.Info("session_email_verified", slog.String("user_id", user.ID))
	manager.notifier.Notify(notify.LevelSuccess, "Email Verified!", "Your email has been verified successfully.")

	result := manager.result(false)
	result.Redirect = constants.RouteLogin
	if result.State == StateAuthenticated {
		result.Redirect = LoginRedirect("", response.RedirectURL, result)
	}
	return result, nil
}

/*
ResendEmailVerification asks the backend for a new verification email.

Description: An empty email falls back to the registration record, then the
pending login, then the current user.

Parameters:
  - ctx: context.Context
  - email: Target address, or empty

Returns:
  - error: ValidationError when no address is known, or transport errors
*/
func (manager *Manager) ResendEmailVerification(ctx context.Context, email string) error {
	email, userID := manager.verificationTarget(ctx, email)

	v := &validate.Validator{}
	v.Required(account.FieldEmail, email)
	if email != "" {
		v.Email(account.FieldEmail, email)
	}
	if err := v.Err(); err != nil {
		return err
	}

	if _, err := manager.api.ResendEmailVerification(ctx, email, userID); err != nil {
		return err
	}

	manager.notifier.Notify(notify.LevelSuccess, "Verification Email Sent!",
		"Please check your inbox for the verification link.")
	return nil
}

// verificationTarget resolves the address and user id a resend applies to.
func (manager *Manager) verificationTarget(ctx context.Context, email string) (string, string) {
	var registration account.Registration
	if found, _ := manager.store.LoadRecord(ctx, constants.KeyRegistrationData, &registration); found {
		return firstNonEmpty(email, registration.Email), registration.UserID
	}

	var pending account.PendingVerification
	if found, _ := manager.store.LoadRecord(ctx, constants.KeyPendingLogin, &pending); found {
		return firstNonEmpty(email, pending.Email), pending.UserID
	}

	if user := manager.User(); user != nil {
		return firstNonEmpty(email, user.Email), user.ID
	}
	return email, ""
}

// # Phone Verification

// RequestPhoneVerification sends an SMS code. An empty phone uses the user's number.
func (manager *Manager) RequestPhoneVerification(ctx context.Context, phone string) error {
	if phone == "" {
		if user := manager.User(); user != nil {
			phone = user.PhoneNumber
		}
	}
	phone = validate.NormalizePhone(phone)

	v := &validate.Validator{}
	if err := v.Required(account.FieldPhoneNumber, phone).Phone(account.FieldPhoneNumber, phone).Err(); err != nil {
		return err
	}

	if _, err := manager.api.RequestPhoneVerification(ctx, phone); err != nil {
		return err
	}

	manager.notifier.Notify(notify.LevelSuccess, "Verification Code Sent!",
		"Please check your phone for the verification code.")
	return nil
}

/*
VerifyPhone redeems an SMS code.

Description: The backend's user record wins when present; otherwise the
current user is marked phone-verified locally. Phone verification never
changes the session state on its own.

Parameters:
  - ctx: context.Context
  - code: The SMS code
  - phone: The number the code was sent to, or empty

Returns:
  - *account.User: The updated user
  - error: ValidationError or transport errors
*/
func (manager *Manager) VerifyPhone(ctx context.Context, code, phone string) (*account.User, error) {
	phone = validate.NormalizePhone(phone)
	if err := (&validate.Validator{}).Code(account.FieldCode, code).Err(); err != nil {
		return nil, err
	}

	response, err := manager.api.VerifyPhone(ctx, code, phone)
	if err != nil {
		return nil, err
	}
	if !response.Success {
		return nil, apperr.ValidationError(firstNonEmpty(response.Message, "Phone verification failed"))
	}

	user := response.User
	if user == nil {
		user = manager.User()
		if user == nil {
			return nil, apperr.Unauthorized("Please log in to continue.")
		}
		user.PhoneVerified = true
	}

	if err := manager.adopt(ctx, user); err != nil {
		return nil, err
	}

	manager.notifier.Notify(notify.LevelSuccess, "Phone Verified!", "Your phone number has been verified successfully.")
	return manager.User(), nil
}

// # User Record

// UpdateUser replaces the session user, e.g. after a profile edit, and
// re-derives the state without re-running initialization.
func (manager *Manager) UpdateUser(ctx context.Context, user *account.User) error {
	if user == nil {
		return apperr.ValidationError("User is required")
	}
	updated := *user
	return manager.adopt(ctx, &updated)
}

// RefreshUser reloads the profile from the backend. A failure is reported
// but never logs the user out: a stale cache is not an invalid session.
func (manager *Manager) RefreshUser(ctx context.Context) error {
	user, err := manager.api.Profile(ctx)
	if err != nil {
		manager.logger.Warn("session_refresh_user_failed", slog.Any("error", err))
		return err
	}
	return manager.adopt(ctx, user)
}

// # API Errors

/*
HandleAPIError turns an error from any non-session API call into display copy.

Description: A 401 means the session is no longer accepted; the user is
logged out and sent to the login page.

Parameters:
  - ctx: context.Context
  - err: The error returned by the API client

Returns:
  - string: The message to show
  - string: The page to redirect to, or empty
*/
func (manager *Manager) HandleAPIError(ctx context.Context, err error) (string, string) {
	appErr := apperr.As(err)
	if appErr == nil {
		manager.logger.Error("session_unexpected_api_error", slog.Any("error", err))
		return "An unexpected error occurred. Please try again.", ""
	}

	if appErr.HTTPStatus == http.StatusUnauthorized {
		_ = manager.expire(ctx)
		return appErr.Message, constants.RouteLogin
	}
	return appErr.Message, ""
}
