// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package constants provides centralized, immutable values for the entire client.

It defines default timeouts, refresh windows, persisted storage keys, and
route paths that are shared between the session, guard, and shell layers.

Categories:

  - Server Timing: Read/Write/Idle timeouts for the local shell server.
  - Session Timing: Expiry buffer and proactive refresh cadence.
  - Storage Keys: The persisted client-side schema.
  - Routes: Landing and verification paths used by the route guards.

Using this package ensures Magic Strings and Magic Numbers are eliminated
from the session logic.
*/
package constants

import "time"

// # Metadata

const (
	AppName    = "bizmap-client"
	AppVersion = "0.1.0-dev"
)

// # Server Timing

const (
	// DefaultReadTimeout is the maximum duration for reading the entire request.
	DefaultReadTimeout = 5 * time.Second

	// DefaultWriteTimeout is the maximum duration before timing out writes of the response.
	DefaultWriteTimeout = 30 * time.Second

	// DefaultIdleTimeout is the maximum amount of time to wait for the next request.
	DefaultIdleTimeout = 120 * time.Second

	// DefaultReadHeaderTimeout is the amount of time allowed to read request headers.
	DefaultReadHeaderTimeout = 2 * time.Second

	// GlobalRequestTimeout is the deadline for the entire request lifecycle.
	GlobalRequestTimeout = 30 * time.Second

	// ShutdownTimeout is how long we wait for in-flight requests to complete during shutdown.
	ShutdownTimeout = 10 * time.Second
)

// # Rate Limiting

const (
	// DefaultRateLimitRPS is the requests per second allowed per IP.
	DefaultRateLimitRPS = 50.0

	// DefaultRateLimitBurst is the maximum burst allowed for the rate limiter.
	DefaultRateLimitBurst = 100

	// RateLimitCleanupInterval is how often old IP entries are removed from memory.
	RateLimitCleanupInterval = 1 * time.Minute

	// RateLimitClientTTL is how long a client must be idle before its entry is deleted.
	RateLimitClientTTL = 3 * time.Minute
)

// # Session Timing

const (
	// ExpiryBuffer treats a token as expired when it expires within this window.
	ExpiryBuffer = 30 * time.Second

	// RefreshCheckInterval is the cadence of the proactive refresh check.
	RefreshCheckInterval = 60 * time.Second

	// RefreshWindow is the remaining lifetime under which a proactive refresh fires.
	RefreshWindow = 300 * time.Second

	// VoiceAutoSendDelay lets the UI show the recognized text before it is sent.
	VoiceAutoSendDelay = 800 * time.Millisecond
)

// # Storage Keys

// Persisted client-side schema. KeyAuthToken is the legacy alias of
// KeyAccessToken and is written through on every access token write.
const (
	KeyAccessToken        = "access_token"
	KeyAuthToken          = "auth_token"
	KeyRefreshToken       = "refresh_token"
	KeyTemporaryToken     = "temporary_token"
	KeyUserData           = "user_data"
	KeyVerificationStatus = "verification_status"
	KeyPendingLogin       = "pending_login"
	KeyRegistrationData   = "registration_data"
	KeySchemaVersion      = "schema_version"
)

// SchemaVersion is the version of the persisted key layout.
const SchemaVersion = "1"

// # Routes

const (
	RouteHome                 = "/"
	RouteLogin                = "/login"
	RouteRegister             = "/register"
	RouteDashboard            = "/dashboard"
	RouteBusinessDashboard    = "/business-dashboard"
	RouteAdminDashboard       = "/admin-dashboard"
	RouteVerificationRequired = "/verification-required"
	RouteVerifyEmail          = "/verify-email"
	RouteVerifyPhone          = "/verify-phone"
)

// # HTTP Headers

const (
	HeaderXRequestID    = "X-Request-ID"
	HeaderXRealIP       = "X-Real-IP"
	HeaderXForwardedFor = "X-Forwarded-For"
	HeaderOrigin        = "Origin"
	HeaderAuthorization = "Authorization"
)

// # JSON Field Identifiers

const (
	FieldData    = "data"
	FieldError   = "error"
	FieldCode    = "code"
	FieldDetails = "details"
	FieldMessage = "message"
	FieldStatus  = "status"
	FieldView    = "view"
	FieldChecks  = "checks"
)
