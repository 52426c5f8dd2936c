// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package apperr

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// Operation names select operation-specific copy in [Classify].
const (
	OpLogin        = "login"
	OpRegister     = "register"
	OpRefresh      = "refresh"
	OpProfile      = "profile"
	OpVerifyEmail  = "verify_email"
	OpResendEmail  = "resend_email_verification"
	OpRequestPhone = "request_phone_verification"
	OpVerifyPhone  = "verify_phone"
	OpChat         = "chat"

	// OpGeneral is used by the general-purpose API error handler.
	OpGeneral = "general"
)

// Classify converts a non-2xx backend answer into an [AppError].
//
// Message precedence follows the backend's payload conventions:
//
//  1. {"success": false, "message": ...} or its "errors" object, joined with ", ".
//  2. Known field shapes: duplicate email, duplicate phone number, password rules.
//  3. "detail" then "error".
//  4. Every remaining field, as "field: first message", joined with ", ".
//  5. Fixed status copy, which for 400 depends on op.
//
// Per-field messages are always copied into Details.
func Classify(op string, status int, body []byte) *AppError {
	ae := statusError(op, status)

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		// Plain text bodies from the API are readable; proxy error pages are not.
		text := strings.TrimSpace(string(body))
		if text != "" && status < http.StatusInternalServerError && !strings.HasPrefix(text, "<") {
			ae.Message = text
		}
		return ae
	}

	ae.Details = fieldErrors(payload)
	if msg := payloadMessage(payload); msg != "" {
		ae.Message = msg
	}
	return ae
}

// payloadMessage picks the display string out of a JSON error body. Empty means
// the status copy should be used.
func payloadMessage(p map[string]any) string {
	if success, ok := p["success"].(bool); ok && !success {
		if msg, _ := p["message"].(string); msg != "" {
			return msg
		}
		if errs, ok := p["errors"].(map[string]any); ok {
			if joined := joinMessages(errs, false); joined != "" {
				return joined
			}
		}
	}

	if first := firstString(p["email"]); strings.Contains(first, "already exists") {
		return "This email address is already registered."
	}
	if first := firstString(p["phone_number"]); strings.Contains(first, "already exists") {
		return "This phone number is already registered."
	}
	if first := firstString(p["password"]); first != "" {
		if _, isList := p["password"].([]any); isList {
			return "Password error: " + first
		}
	}

	if detail, _ := p["detail"].(string); detail != "" {
		return detail
	}
	if e, _ := p["error"].(string); e != "" {
		return e
	}

	return joinMessages(p, true)
}

// joinMessages flattens a field → messages object. With prefixed set, list
// values are rendered as "field: first" and plain strings as-is.
func joinMessages(fields map[string]any, prefixed bool) string {
	var out []string
	for _, name := range sortedKeys(fields) {
		switch v := fields[name].(type) {
		case string:
			if v != "" {
				out = append(out, v)
			}
		case []any:
			if prefixed {
				if first := firstString(v); first != "" {
					out = append(out, fmt.Sprintf("%s: %s", name, first))
				}
				continue
			}
			for _, item := range v {
				if s, ok := item.(string); ok && s != "" {
					out = append(out, s)
				}
			}
		}
	}
	return strings.Join(out, ", ")
}

// fieldErrors collects per-field messages from either the "errors" object
// or top-level list values.
func fieldErrors(p map[string]any) []FieldError {
	source, nested := p["errors"].(map[string]any)
	if !nested {
		source = p
	}

	var out []FieldError
	for _, name := range sortedKeys(source) {
		switch v := source[name].(type) {
		case []any:
			for _, item := range v {
				if s, ok := item.(string); ok && s != "" {
					out = append(out, FieldError{Field: name, Message: s})
				}
			}
		case string:
			// Top-level strings are envelope fields (detail, message), not field errors.
			if nested && v != "" {
				out = append(out, FieldError{Field: name, Message: v})
			}
		}
	}
	return out
}

// statusError returns the fixed copy for a status code.
func statusError(op string, status int) *AppError {
	if op == OpGeneral {
		return generalStatusError(status)
	}

	switch {
	case status == http.StatusBadRequest:
		if op == OpLogin {
			return ValidationError("Invalid email or password")
		}
		return ValidationError("Invalid data provided")
	case status == http.StatusUnauthorized:
		return Unauthorized("Authentication failed. Please login again.")
	case status == http.StatusForbidden:
		return Forbidden("You do not have permission to perform this action.")
	case status == http.StatusNotFound:
		ae := NotFound("Service")
		ae.Message = "Service not available. Please try again later."
		return ae
	case status == http.StatusTooManyRequests:
		ae := RateLimited(0)
		ae.Message = "Too many attempts. Please wait before trying again."
		return ae
	case status >= http.StatusInternalServerError:
		return Server(status, "Server error. Please try again later.")
	default:
		ae := ValidationError(fmt.Sprintf("%s failed. Please try again.", operationLabel(op)))
		ae.HTTPStatus = status
		return ae
	}
}

// generalStatusError is the copy used outside the auth flows.
func generalStatusError(status int) *AppError {
	switch {
	case status == http.StatusBadRequest:
		return ValidationError("Invalid request. Please check your data and try again.")
	case status == http.StatusUnauthorized:
		return Unauthorized("Session expired. Please login again.")
	case status == http.StatusForbidden:
		return Forbidden("You do not have permission to perform this action.")
	case status == http.StatusNotFound:
		ae := NotFound("Resource")
		ae.Message = "The requested resource was not found."
		return ae
	case status == http.StatusTooManyRequests:
		ae := RateLimited(0)
		ae.Message = "Too many requests. Please wait before trying again."
		return ae
	case status == http.StatusBadGateway:
		return Server(status, "Service temporarily unavailable. Please try again later.")
	case status == http.StatusServiceUnavailable:
		return Server(status, "Service maintenance in progress. Please try again later.")
	case status >= http.StatusInternalServerError:
		return Server(status, "Server error. Please try again later.")
	default:
		ae := ValidationError(fmt.Sprintf("HTTP %d: Request failed", status))
		ae.HTTPStatus = status
		return ae
	}
}

func operationLabel(op string) string {
	if op == "" {
		return "Request"
	}
	label := strings.ReplaceAll(op, "_", " ")
	return strings.ToUpper(label[:1]) + label[1:]
}

func firstString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []any:
		if len(t) > 0 {
			s, _ := t[0].(string)
			return s
		}
	}
	return ""
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
