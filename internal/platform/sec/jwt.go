// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package sec provides the client's security primitives.
//
// # Architecture
//
// This package isolates security-sensitive code (claim decoding, permission
// enforcement, at-rest sealing) from the session logic. The client never holds
// the backend's signing keys, so tokens are decoded for their expiry only; the
// backend remains the authority on validity.
package sec

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoExpiry is returned when a token decodes but carries no exp claim.
var ErrNoExpiry = errors.New("sec: token has no exp claim")

// parser only splits and base64-decodes; signature verification is the backend's job.
var parser = jwt.NewParser()

// DecodeExpiry returns the exp claim of a JWT without verifying its signature.
func DecodeExpiry(token string) (time.Time, error) {
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return time.Time{}, fmt.Errorf("sec: failed to decode token: %w", err)
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, fmt.Errorf("sec: invalid exp claim: %w", err)
	}
	if exp == nil {
		return time.Time{}, ErrNoExpiry
	}

	return exp.Time, nil
}

// IsExpired reports whether token expires before now+buffer.
//
// It fails closed: a token that cannot be decoded is treated as expired.
func IsExpired(token string, now time.Time, buffer time.Duration) bool {
	exp, err := DecodeExpiry(token)
	if err != nil {
		return true
	}
	return exp.Before(now.Add(buffer))
}
