// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/taibuivan/bizmap/internal/platform/apperr"
	requestutil "github.com/taibuivan/bizmap/internal/platform/request"
	"github.com/taibuivan/bizmap/internal/platform/respond"
	"github.com/taibuivan/bizmap/internal/voice"
)

var errVoiceDisabled = apperr.VoiceCapability("Voice features are disabled")

// voiceHandler exposes the Voice Engine. Recognition results and errors are
// delivered on /ws/events; these endpoints only drive the engine.
type voiceHandler struct {
	engine *voice.Engine
}

func newVoiceHandler(engine *voice.Engine) *voiceHandler {
	return &voiceHandler{engine: engine}
}

// Routes returns a [chi.Router] configured with voice routes.
//
// # Endpoints
//   - GET  /          : Capabilities, state and language.
//   - GET  /languages : Supported languages.
//   - PUT  /language  : Switch the listening language.
//   - POST /listen    : Start listening.
//   - POST /stop      : Stop listening without a result.
//   - POST /speak     : Say a text and wait until it is spoken.
//   - POST /cancel    : Silence the current utterance.
func (handler *voiceHandler) Routes() chi.Router {
	router := chi.NewRouter()

	router.Get("/languages", handler.languages)

	router.Group(func(r chi.Router) {
		r.Use(handler.requireEngine)
		r.Get("/", handler.status)
		r.Put("/language", handler.setLanguage)
		r.Post("/listen", handler.listen)
		r.Post("/stop", handler.stop)
		r.Post("/speak", handler.speak)
		r.Post("/cancel", handler.cancel)
	})

	return router
}

func (handler *voiceHandler) requireEngine(next http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if handler.engine == nil {
			respond.Error(writer, request, errVoiceDisabled)
			return
		}
		next.ServeHTTP(writer, request)
	})
}

// # Payloads

type voiceStatus struct {
	Supported   bool           `json:"supported"`
	Recognition bool           `json:"recognition"`
	Synthesis   bool           `json:"synthesis"`
	State       string         `json:"state"`
	Language    voice.Language `json:"language"`
}

type languageRequest struct {
	Language string `json:"language"`
}

type speakRequest struct {
	Text     string         `json:"text"`
	Language string         `json:"language"`
	Gender   voice.Gender   `json:"gender"`
	Emotion  voice.Emotion  `json:"emotion"`
	Prosody  *voice.Prosody `json:"prosody"`
}

func (handler *voiceHandler) snapshot() voiceStatus {
	return voiceStatus{
		Supported:   handler.engine.IsSupported(),
		Recognition: handler.engine.RecognitionSupported(),
		Synthesis:   handler.engine.SynthesisSupported(),
		State:       handler.engine.State().String(),
		Language:    handler.engine.Language(),
	}
}

func (handler *voiceHandler) status(writer http.ResponseWriter, request *http.Request) {
	respond.OK(writer, handler.snapshot())
}

func (handler *voiceHandler) languages(writer http.ResponseWriter, request *http.Request) {
	respond.OK(writer, voice.SupportedLanguages())
}

func (handler *voiceHandler) setLanguage(writer http.ResponseWriter, request *http.Request) {
	var input languageRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	lang, _ := voice.ParseLanguage(input.Language)
	if err := handler.engine.SetLanguage(lang); err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.OK(writer, handler.snapshot())
}

/*
listen starts a recognition session.

POST /api/voice/listen

Response:
  - 202: voiceStatus: Listening; results arrive on /ws/events
  - 409: Conflict: Already listening, or the platform refused to start
*/
func (handler *voiceHandler) listen(writer http.ResponseWriter, request *http.Request) {
	if !handler.engine.StartListening() {
		if !handler.engine.RecognitionSupported() {
			respond.Error(writer, request, apperr.VoiceCapability("Speech recognition not supported"))
			return
		}
		respond.Error(writer, request, apperr.Conflict("Could not start listening"))
		return
	}
	respond.Accepted(writer, handler.snapshot())
}

func (handler *voiceHandler) stop(writer http.ResponseWriter, request *http.Request) {
	handler.engine.StopListening()
	respond.OK(writer, handler.snapshot())
}

/*
speak says a text.

POST /api/voice/speak

Description: Answers once the utterance has been spoken. A later speak
request cancels this one, which then answers 409.
*/
func (handler *voiceHandler) speak(writer http.ResponseWriter, request *http.Request) {
	var input speakRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	lang, err := optionalLanguage(input.Language)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	err = handler.engine.Speak(request.Context(), voice.SpeakOptions{
		Text:     input.Text,
		Language: lang,
		Gender:   input.Gender,
		Prosody:  input.Prosody,
		Emotion:  input.Emotion,
	})
	switch {
	case err == nil:
		respond.NoContent(writer)
	case apperr.IsAppError(err):
		respond.Error(writer, request, err)
	default:
		// Interrupted by a newer utterance or by shutdown
		respond.Error(writer, request, apperr.Conflict(err.Error()))
	}
}

func (handler *voiceHandler) cancel(writer http.ResponseWriter, request *http.Request) {
	handler.engine.CancelSpeech()
	respond.NoContent(writer)
}
