// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/taibuivan/bizmap/internal/guard"
	"github.com/taibuivan/bizmap/internal/platform/constants"
	"github.com/taibuivan/bizmap/internal/platform/ctxutil"
	"github.com/taibuivan/bizmap/internal/platform/middleware"
	"github.com/taibuivan/bizmap/internal/platform/respond"
	"github.com/taibuivan/bizmap/internal/platform/sec"
	"github.com/taibuivan/bizmap/internal/session"
)

// RouteAssistant is the AI assistant page.
const RouteAssistant = "/assistant"

// page is what the UI needs to render a view.
type page struct {
	View   string            `json:"view"`
	Status string            `json:"status"`
	Path   string            `json:"path"`
	Snap   *session.Snapshot `json:"session,omitempty"`
}

/*
mountPages registers the guarded page routes.

Description: Each page answers with the view to render. The guard decides
first: a loading session answers 202, a refused page answers 303 to the
decided location.
*/
func mountPages(router chi.Router, manager *session.Manager) {
	render := func(writer http.ResponseWriter, request *http.Request) {
		snapshot := manager.Snapshot()
		respond.OK(writer, page{
			View:   viewName(request.URL.Path),
			Status: firstNonEmpty(ctxutil.GetSessionStatus(request.Context()), string(snapshot.State)),
			Path:   request.URL.Path,
			Snap:   &snapshot,
		})
	}

	// Home is browsable in every state
	router.Get(constants.RouteHome, render)

	router.Group(func(public chi.Router) {
		public.Use(middleware.Guard(manager, guard.Route{Kind: guard.Public}))
		public.Get(constants.RouteLogin, render)
		public.Get(constants.RouteRegister, render)
	})

	router.Group(func(unverified chi.Router) {
		unverified.Use(middleware.Guard(manager, guard.Route{Kind: guard.Unverified}))
		unverified.Get(constants.RouteVerificationRequired, render)
		unverified.Get(constants.RouteVerifyEmail, render)
		unverified.Get(constants.RouteVerifyPhone, render)
	})

	router.Group(func(protected chi.Router) {
		protected.Use(middleware.Guard(manager, guard.Route{Kind: guard.Protected}))
		protected.Get(constants.RouteDashboard, render)
		protected.Get(RouteAssistant, render)
	})

	router.With(middleware.Guard(manager, guard.Route{
		Kind:  guard.Role,
		Roles: []sec.UserRole{sec.RoleBusinessOwner},
	})).Get(constants.RouteBusinessDashboard, render)

	router.With(middleware.Guard(manager, guard.Route{
		Kind:  guard.Role,
		Roles: []sec.UserRole{sec.RoleAdmin},
	})).Get(constants.RouteAdminDashboard, render)
}

// viewName turns "/business-dashboard" into "business-dashboard" and "/" into "home".
func viewName(path string) string {
	if name := strings.Trim(path, "/"); name != "" {
		return name
	}
	return "home"
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
