// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package account defines the identity records the client keeps about the signed-in user.

# Architecture

These are plain data entities shared by the API client, the session manager and
the local shell. They carry no behaviour beyond small derivations, and their JSON
form is both the backend wire format and the persisted format.
*/
package account

import (
	"time"

	"github.com/taibuivan/bizmap/internal/platform/sec"
)

// # Domain Entities

// User is the profile record returned by the backend.
type User struct {
	ID                string       `json:"id"`
	Email             string       `json:"email"`
	PhoneNumber       string       `json:"phone_number,omitempty"`
	FirstName         string       `json:"first_name"`
	LastName          string       `json:"last_name"`
	FullName          string       `json:"full_name,omitempty"`
	Role              sec.UserRole `json:"user_type"`
	PreferredLanguage string       `json:"preferred_language"`
	EmailVerified     bool         `json:"email_verified"`
	PhoneVerified     bool         `json:"phone_verified"`
	LocationProvince  string       `json:"location_province,omitempty"`
	LocationDistrict  string       `json:"location_district,omitempty"`
	DateJoined        string       `json:"date_joined,omitempty"`
}

// DisplayName returns the best available name for greetings.
func (u *User) DisplayName() string {
	switch {
	case u == nil:
		return "there"
	case u.FirstName != "":
		return u.FirstName
	case u.FullName != "":
		return u.FullName
	default:
		return "there"
	}
}

// VerificationStatus is the persisted summary of the user's verification flags.
//
// FullyVerified is informational: only EmailVerified gates capabilities.
type VerificationStatus struct {
	EmailVerified bool `json:"email_verified"`
	PhoneVerified bool `json:"phone_verified"`
	FullyVerified bool `json:"fully_verified"`
}

// StatusOf derives the verification record from a user. A nil user is unverified.
func StatusOf(u *User) VerificationStatus {
	if u == nil {
		return VerificationStatus{}
	}
	return VerificationStatus{
		EmailVerified: u.EmailVerified,
		PhoneVerified: u.PhoneVerified,
		FullyVerified: u.EmailVerified && u.PhoneVerified,
	}
}

// PendingVerification links a login blocked on verification to the flow that completes it.
type PendingVerification struct {
	Email            string    `json:"email"`
	UserID           string    `json:"user_id"`
	VerificationType string    `json:"verification_type,omitempty"`
	NextStep         string    `json:"next_step,omitempty"`
	CreatedAt        time.Time `json:"timestamp"`
}

// Registration is kept after sign-up so the verification pages can resend emails.
type Registration struct {
	UserID               string `json:"user_id"`
	Email                string `json:"email"`
	RequiresVerification bool   `json:"requires_verification"`
}

// # Requests

// Credentials identify the user by email or phone number.
type Credentials struct {
	Email       string `json:"email,omitempty"`
	PhoneNumber string `json:"phone_number,omitempty"`
	Password    string `json:"password"`
}

// RegisterData is the sign-up form.
type RegisterData struct {
	FirstName         string       `json:"first_name"`
	LastName          string       `json:"last_name"`
	Email             string       `json:"email"`
	PhoneNumber       string       `json:"phone_number,omitempty"`
	Password          string       `json:"password"`
	ConfirmPassword   string       `json:"confirm_password"`
	PreferredLanguage string       `json:"preferred_language"`
	LocationProvince  string       `json:"location_province,omitempty"`
	LocationDistrict  string       `json:"location_district,omitempty"`
	Role              sec.UserRole `json:"user_type"`
}

// # Field Identifiers

// Field names used in validation errors so forms can match them to inputs.
const (
	FieldEmail             = "email"
	FieldPhoneNumber       = "phone_number"
	FieldPassword          = "password"
	FieldConfirmPassword   = "confirm_password"
	FieldFirstName         = "first_name"
	FieldLastName          = "last_name"
	FieldPreferredLanguage = "preferred_language"
	FieldUserType          = "user_type"
	FieldToken             = "token"
	FieldCode              = "verification_code"
	FieldLogin             = "login"
)
