// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/taibuivan/bizmap/internal/account"
	requestutil "github.com/taibuivan/bizmap/internal/platform/request"
	"github.com/taibuivan/bizmap/internal/platform/respond"
	"github.com/taibuivan/bizmap/internal/session"
)

// # Definitions & Constructors

// sessionHandler exposes the Session Manager to the UI.
//
// # Scope
//
// Sign-in, sign-up, sign-out and the verification flows. Every endpoint
// answers with the resulting session so the UI never guesses the state.
type sessionHandler struct {
	manager *session.Manager
}

func newSessionHandler(manager *session.Manager) *sessionHandler {
	return &sessionHandler{manager: manager}
}

// Routes returns a [chi.Router] configured with session routes.
//
// # Endpoints
//   - GET  /                     : Current session snapshot.
//   - POST /login                : Sign in with email or phone and password.
//   - POST /register             : Create an account.
//   - POST /logout               : Sign out (always succeeds locally).
//   - POST /verify-email         : Redeem an email verification token.
//   - POST /verify-email/resend  : Send the verification email again.
//   - POST /verify-phone/request : Send a phone verification code.
//   - POST /verify-phone         : Redeem a phone verification code.
//   - POST /refresh-user         : Reload the profile from the backend.
//   - POST /resume               : Refresh an expired token after the UI wakes up.
//   - GET  /permissions/{perm}   : Capability check.
func (handler *sessionHandler) Routes() chi.Router {
	router := chi.NewRouter()

	router.Get("/", handler.snapshot)
	router.Post("/login", handler.login)
	router.Post("/register", handler.register)
	router.Post("/logout", handler.logout)
	router.Post("/verify-email", handler.verifyEmail)
	router.Post("/verify-email/resend", handler.resendEmail)
	router.Post("/verify-phone/request", handler.requestPhone)
	router.Post("/verify-phone", handler.verifyPhone)
	router.Post("/refresh-user", handler.refreshUser)
	router.Post("/resume", handler.resume)
	router.Get("/permissions/{perm}", handler.permission)

	return router
}

// # Request Payloads

type loginRequest struct {
	account.Credentials
	From string `json:"from"`
}

type verifyEmailRequest struct {
	Token string `json:"token"`
}

type resendRequest struct {
	Email string `json:"email"`
}

type phoneRequest struct {
	PhoneNumber string `json:"phone_number"`
	Code        string `json:"verification_code"`
}

func (handler *sessionHandler) snapshot(writer http.ResponseWriter, request *http.Request) {
	respond.OK(writer, handler.manager.Snapshot())
}

/*
login signs the user in.

POST /api/session/login

Request:
  - Body: loginRequest (email or phone_number, password, optional from)

Response:
  - 200: session.Result: Settled state and the page to show next
  - 400: ValidationError: Missing or malformed credentials
  - 401: AuthError: Wrong credentials
  - 502: NetworkError: Backend unreachable
*/
func (handler *sessionHandler) login(writer http.ResponseWriter, request *http.Request) {
	var input loginRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	result, err := handler.manager.Login(request.Context(), input.Credentials, input.From)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.OK(writer, result)
}

/*
register creates an account.

POST /api/session/register

Response:
  - 200: session.Result: Unverified with redirect to verification, or Authenticated
  - 400: ValidationError: Field errors in details
*/
func (handler *sessionHandler) register(writer http.ResponseWriter, request *http.Request) {
	var input account.RegisterData
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	result, err := handler.manager.Register(request.Context(), input)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.OK(writer, result)
}

/*
logout signs the user out.

POST /api/session/logout

Description: Local state is always cleared, even when the backend call fails.
*/
func (handler *sessionHandler) logout(writer http.ResponseWriter, request *http.Request) {
	if err := handler.manager.Logout(request.Context()); err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.OK(writer, handler.manager.Snapshot())
}

func (handler *sessionHandler) verifyEmail(writer http.ResponseWriter, request *http.Request) {
	var input verifyEmailRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	result, err := handler.manager.VerifyEmail(request.Context(), input.Token)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.OK(writer, result)
}

func (handler *sessionHandler) resendEmail(writer http.ResponseWriter, request *http.Request) {
	var input resendRequest
	if err := requestutil.DecodeOptionalJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.manager.ResendEmailVerification(request.Context(), input.Email); err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.NoContent(writer)
}

func (handler *sessionHandler) requestPhone(writer http.ResponseWriter, request *http.Request) {
	var input phoneRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.manager.RequestPhoneVerification(request.Context(), input.PhoneNumber); err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.NoContent(writer)
}

func (handler *sessionHandler) verifyPhone(writer http.ResponseWriter, request *http.Request) {
	var input phoneRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if _, err := handler.manager.VerifyPhone(request.Context(), input.Code, input.PhoneNumber); err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.OK(writer, handler.manager.Snapshot())
}

/*
refreshUser reloads the profile.

POST /api/session/refresh-user

Description: Errors go through the general API error handler: a 401 ends
the session and the body names /login as the page to move to.
*/
func (handler *sessionHandler) refreshUser(writer http.ResponseWriter, request *http.Request) {
	if err := handler.manager.RefreshUser(request.Context()); err != nil {
		_, redirect := handler.manager.HandleAPIError(request.Context(), err)
		respond.ErrorWithRedirect(writer, request, err, redirect)
		return
	}
	respond.OK(writer, handler.manager.Snapshot())
}

// resume is the UI telling the shell it became visible again.
func (handler *sessionHandler) resume(writer http.ResponseWriter, request *http.Request) {
	handler.manager.Resume(request.Context())
	respond.OK(writer, handler.manager.Snapshot())
}

func (handler *sessionHandler) permission(writer http.ResponseWriter, request *http.Request) {
	perm := requestutil.Param(request, "perm")
	respond.OK(writer, map[string]any{
		"permission": perm,
		"allowed":    handler.manager.HasPermission(perm),
	})
}
