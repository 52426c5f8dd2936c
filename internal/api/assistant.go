// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/taibuivan/bizmap/internal/assistant"
	"github.com/taibuivan/bizmap/internal/platform/apperr"
	requestutil "github.com/taibuivan/bizmap/internal/platform/request"
	"github.com/taibuivan/bizmap/internal/platform/respond"
	"github.com/taibuivan/bizmap/internal/session"
	"github.com/taibuivan/bizmap/internal/voice"
)

// assistantHandler exposes the chat. It is mounted behind RequireAuthenticated.
type assistantHandler struct {
	assistant *assistant.Assistant
	manager   *session.Manager
}

func newAssistantHandler(a *assistant.Assistant, manager *session.Manager) *assistantHandler {
	return &assistantHandler{assistant: a, manager: manager}
}

// Routes returns a [chi.Router] configured with assistant routes.
//
// # Endpoints
//   - GET  /             : Conversation history and quick suggestions.
//   - POST /messages     : Ask a question.
//   - POST /reset        : Start over, optionally in another language.
//   - PUT  /voice-output : Turn reading replies aloud on or off.
func (handler *assistantHandler) Routes() chi.Router {
	router := chi.NewRouter()

	router.Get("/", handler.history)
	router.Post("/messages", handler.send)
	router.Post("/reset", handler.reset)
	router.Put("/voice-output", handler.voiceOutput)

	return router
}

type sendRequest struct {
	Message  string `json:"message"`
	Language string `json:"language"`
	Voice    bool   `json:"voice_input"`
}

type resetRequest struct {
	Language string `json:"language"`
}

type voiceOutputRequest struct {
	Enabled bool `json:"enabled"`
}

type conversation struct {
	Language    voice.Language      `json:"language"`
	Messages    []assistant.Message `json:"messages"`
	Suggestions []string            `json:"suggestions"`
}

func (handler *assistantHandler) conversation() conversation {
	lang := handler.assistant.Language()
	return conversation{
		Language:    lang,
		Messages:    handler.assistant.History(),
		Suggestions: assistant.QuickSuggestions(lang),
	}
}

func (handler *assistantHandler) history(writer http.ResponseWriter, request *http.Request) {
	respond.OK(writer, handler.conversation())
}

/*
send asks the assistant one question.

POST /api/assistant/messages

Response:
  - 200: assistant.Message: The reply, flagged degraded when the AI endpoint was unreachable
  - 400: ValidationError: Empty message or unknown language
  - 401: AuthError: The session expired and could not be refreshed
*/
func (handler *assistantHandler) send(writer http.ResponseWriter, request *http.Request) {
	var input sendRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	lang, err := optionalLanguage(input.Language)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	reply, err := handler.assistant.Send(request.Context(), input.Message, assistant.SendOptions{
		Language: lang,
		Voice:    input.Voice,
	})
	if err != nil {
		_, redirect := handler.manager.HandleAPIError(request.Context(), err)
		respond.ErrorWithRedirect(writer, request, err, redirect)
		return
	}
	respond.OK(writer, reply)
}

func (handler *assistantHandler) reset(writer http.ResponseWriter, request *http.Request) {
	var input resetRequest
	if err := requestutil.DecodeOptionalJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	lang, err := optionalLanguage(input.Language)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	if lang == "" {
		lang = handler.assistant.Language()
	}

	handler.assistant.Reset(lang)
	respond.OK(writer, handler.conversation())
}

func (handler *assistantHandler) voiceOutput(writer http.ResponseWriter, request *http.Request) {
	var input voiceOutputRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}
	handler.assistant.SetVoiceOutput(input.Enabled)
	respond.NoContent(writer)
}

// optionalLanguage validates a language code; empty means "keep the current one".
func optionalLanguage(code string) (voice.Language, error) {
	if code == "" {
		return "", nil
	}
	lang, ok := voice.ParseLanguage(code)
	if !ok {
		return "", apperr.ValidationError("Unsupported language", apperr.FieldError{
			Field:   "language",
			Message: "Choose rw, en or fr",
		})
	}
	return lang, nil
}
