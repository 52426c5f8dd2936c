// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package apiclient

import (
	"context"
	"net/http"

	"github.com/taibuivan/bizmap/internal/account"
	"github.com/taibuivan/bizmap/internal/platform/apperr"
)

// # Endpoints

const (
	PathLogin              = "/api/auth/login/"
	PathRegister           = "/api/auth/register/"
	PathRefresh            = "/api/auth/token/refresh/"
	PathProfile            = "/api/auth/profile/"
	PathLogout             = "/api/auth/logout/"
	PathVerifyEmail        = "/api/auth/email/verify/"
	PathResendVerification = "/api/auth/email/resend-verification/"
	PathRequestPhoneCode   = "/api/auth/phone/request-verification/"
	PathVerifyPhone        = "/api/auth/phone/verify/"
)

// # Responses

// AuthResponse is the shared shape of login, register and verification answers.
//
// The backend names tokens either access_token/refresh_token or access/refresh
// depending on the endpoint; use [AuthResponse.Tokens] instead of the raw fields.
type AuthResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`

	AccessToken  string `json:"access_token,omitempty"`
	Access       string `json:"access,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Refresh      string `json:"refresh,omitempty"`

	User               *account.User               `json:"user,omitempty"`
	VerificationStatus *account.VerificationStatus `json:"verification_status,omitempty"`

	RequiresVerification bool   `json:"requires_verification,omitempty"`
	TemporaryToken       string `json:"temporary_token,omitempty"`
	UserID               string `json:"user_id,omitempty"`
	Email                string `json:"email,omitempty"`
	VerificationType     string `json:"verification_type,omitempty"`
	NextStep             string `json:"next_step,omitempty"`
	RedirectURL          string `json:"redirect_url,omitempty"`
}

// Tokens returns the access and refresh tokens under whichever names were used.
func (r *AuthResponse) Tokens() (access, refresh string) {
	access, refresh = r.AccessToken, r.RefreshToken
	if access == "" {
		access = r.Access
	}
	if refresh == "" {
		refresh = r.Refresh
	}
	return access, refresh
}

// RefreshResponse is the token refresh answer.
type RefreshResponse struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh,omitempty"`
}

// # Auth Operations

// Login submits credentials.
func (client *Client) Login(ctx context.Context, credentials account.Credentials) (*AuthResponse, error) {
	var out AuthResponse
	if err := client.do(ctx, apperr.OpLogin, http.MethodPost, PathLogin, credentials, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Register creates an account.
func (client *Client) Register(ctx context.Context, data account.RegisterData) (*AuthResponse, error) {
	var out AuthResponse
	if err := client.do(ctx, apperr.OpRegister, http.MethodPost, PathRegister, data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RefreshToken exchanges a refresh token for a new access token.
func (client *Client) RefreshToken(ctx context.Context, refresh string) (*RefreshResponse, error) {
	var out RefreshResponse
	body := map[string]string{"refresh": refresh}
	if err := client.do(ctx, apperr.OpRefresh, http.MethodPost, PathRefresh, body, &out); err != nil {
		return nil, err
	}
	if out.Access == "" {
		return nil, apperr.Unauthorized("Invalid token refresh response")
	}
	return &out, nil
}

// Profile fetches the authoritative user record.
func (client *Client) Profile(ctx context.Context) (*account.User, error) {
	var out account.User
	if err := client.do(ctx, apperr.OpProfile, http.MethodGet, PathProfile, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Logout tells the backend to revoke the session. Callers treat failure as non-fatal.
func (client *Client) Logout(ctx context.Context) error {
	return client.do(ctx, apperr.OpGeneral, http.MethodPost, PathLogout, nil, nil)
}

// VerifyEmail redeems an email verification token.
func (client *Client) VerifyEmail(ctx context.Context, token string) (*AuthResponse, error) {
	var out AuthResponse
	body := map[string]string{"token": token}
	if err := client.do(ctx, apperr.OpVerifyEmail, http.MethodPost, PathVerifyEmail, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ResendEmailVerification asks for a new verification email. Empty arguments are omitted.
func (client *Client) ResendEmailVerification(ctx context.Context, email, userID string) (*AuthResponse, error) {
	body := map[string]string{}
	if email != "" {
		body["email"] = email
	}
	if userID != "" {
		body["user_id"] = userID
	}

	var out AuthResponse
	if err := client.do(ctx, apperr.OpResendEmail, http.MethodPost, PathResendVerification, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RequestPhoneVerification sends an SMS code to phone.
func (client *Client) RequestPhoneVerification(ctx context.Context, phone string) (*AuthResponse, error) {
	var out AuthResponse
	body := map[string]string{"phone_number": phone}
	if err := client.do(ctx, apperr.OpRequestPhone, http.MethodPost, PathRequestPhoneCode, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyPhone redeems an SMS code. phone may be empty.
func (client *Client) VerifyPhone(ctx context.Context, code, phone string) (*AuthResponse, error) {
	body := map[string]string{"verification_code": code}
	if phone != "" {
		body["phone_number"] = phone
	}

	var out AuthResponse
	if err := client.do(ctx, apperr.OpVerifyPhone, http.MethodPost, PathVerifyPhone, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
