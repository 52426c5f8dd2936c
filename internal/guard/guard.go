// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package guard decides whether a page may be shown for the current session.

Every route variant is one call to [Check], which returns Allow, RedirectTo or
Pending. Pending is returned for every variant until the session manager is
ready, so no redirect is ever decided on partial state.

# Variants

  - Public: sign-in and sign-up pages; authenticated users are sent on.
  - Protected: requires a fully authenticated session.
  - Unverified: verification pages; any known user may enter.
  - Role: Protected plus a role allow-list.
*/
package guard

import (
	"net/url"
	"slices"
	"strings"

	"github.com/taibuivan/bizmap/internal/platform/constants"
	"github.com/taibuivan/bizmap/internal/platform/sec"
	"github.com/taibuivan/bizmap/internal/session"
)

// # Decisions

// Outcome is the kind of decision.
type Outcome int

const (
	Pending Outcome = iota
	Allow
	RedirectTo
)

func (o Outcome) String() string {
	switch o {
	case Allow:
		return "allow"
	case RedirectTo:
		return "redirect"
	default:
		return "pending"
	}
}

// Decision is the result of a guard check. Location is set for RedirectTo only.
type Decision struct {
	Outcome  Outcome
	Location string
}

func allow() Decision { return Decision{Outcome: Allow} }
func pending() Decision { return Decision{Outcome: Pending} }
func redirect(to string) Decision { return Decision{Outcome: RedirectTo, Location: to} }

// # Routes

// Kind selects the guard variant.
type Kind int

const (
	Public Kind = iota
	Protected
	Unverified
	Role
)

// Route describes a guarded page.
type Route struct {
	Kind Kind

	// Roles is the allow-list for [Role] routes.
	Roles []sec.UserRole
}

// Request is the page being asked for.
type Request struct {
	// Path is the requested page.
	Path string

	// From is the page a previous redirect remembered, if any.
	From string
}

// # Check

// Check decides what to do with request for the given session snapshot.
func Check(snapshot session.Snapshot, route Route, request Request) Decision {
	if !snapshot.Ready || !snapshot.State.Settled() {
		return pending()
	}

	switch route.Kind {
	case Public:
		return checkPublic(snapshot, request)
	case Protected:
		return checkProtected(snapshot, request)
	case Unverified:
		return checkUnverified(snapshot, request)
	case Role:
		return checkRole(snapshot, route, request)
	default:
		return redirect(constants.RouteHome)
	}
}

func checkPublic(snapshot session.Snapshot, request Request) Decision {
	if snapshot.State != session.StateAuthenticated {
		return allow()
	}
	from := request.From
	if from != constants.RouteLogin && from != request.Path && sec.IsLocalPath(from) {
		return redirect(from)
	}
	return redirect(landing(snapshot))
}

func checkProtected(snapshot session.Snapshot, request Request) Decision {
	if snapshot.State == session.StateAuthenticated {
		return allow()
	}
	return redirect(LoginLocation(request.Path))
}

func checkUnverified(snapshot session.Snapshot, request Request) Decision {
	switch snapshot.State {
	case session.StateAuthenticated:
		return allow()
	case session.StateUnverified:
		if IsVerificationPath(request.Path) {
			return allow()
		}
		return redirect(constants.RouteVerificationRequired)
	default:
		return redirect(LoginLocation(request.Path))
	}
}

func checkRole(snapshot session.Snapshot, route Route, request Request) Decision {
	switch snapshot.State {
	case session.StateAnonymous:
		return redirect(LoginLocation(request.Path))
	case session.StateUnverified:
		return redirect(constants.RouteVerificationRequired)
	}

	if snapshot.User == nil || !slices.Contains(route.Roles, snapshot.User.Role) {
		return redirect(landing(snapshot))
	}
	return allow()
}

// # Helpers

// LoginLocation is the login page remembering path for post-login return.
func LoginLocation(path string) string {
	if path == "" || path == constants.RouteLogin {
		return constants.RouteLogin
	}
	return constants.RouteLogin + "?from=" + url.QueryEscape(path)
}

// IsVerificationPath reports whether path belongs to the verification flow.
func IsVerificationPath(path string) bool {
	for _, prefix := range []string{
		constants.RouteVerificationRequired,
		constants.RouteVerifyEmail,
		constants.RouteVerifyPhone,
	} {
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return true
		}
	}
	return false
}

func landing(snapshot session.Snapshot) string {
	if snapshot.User == nil {
		return constants.RouteDashboard
	}
	return snapshot.User.Role.LandingRoute()
}
