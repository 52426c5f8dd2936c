// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package assistant runs the chat with the BizMap AI assistant.

The backend AI endpoint is authoritative. When it cannot be reached the
assistant still answers: the message is classified with the voice intent
heuristic and a localized offline reply is returned, flagged as degraded.

Replies can be read aloud through the voice engine.
*/
package assistant

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/taibuivan/bizmap/internal/account"
	"github.com/taibuivan/bizmap/internal/apiclient"
	"github.com/taibuivan/bizmap/internal/platform/apperr"
	"github.com/taibuivan/bizmap/internal/voice"
)

// contextSize is how many recent messages are sent with each question.
const contextSize = 10

// speakTimeout bounds reading one reply aloud.
const speakTimeout = 2 * time.Minute

// # Roles

// Role is the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of the conversation.
type Message struct {
	ID          string                  `json:"id"`
	Role        Role                    `json:"role"`
	Content     string                  `json:"content"`
	At          time.Time               `json:"timestamp"`
	Language    voice.Language          `json:"language,omitempty"`
	Voice       bool                    `json:"voice_input,omitempty"`
	Intent      string                  `json:"intent,omitempty"`
	Confidence  float64                 `json:"confidence,omitempty"`
	Suggestions []string                `json:"suggestions,omitempty"`
	Businesses  []apiclient.BusinessHit `json:"suggested_businesses,omitempty"`
	Degraded    bool                    `json:"degraded,omitempty"`
}

// # Dependencies

// ChatAPI is the AI endpoint.
type ChatAPI interface {
	Chat(ctx context.Context, request apiclient.ChatRequest) (*apiclient.ChatReply, error)
}

// Session supplies credentials and the user being helped.
type Session interface {
	EnsureFresh(ctx context.Context) error
	User() *account.User
}

// Speaker reads replies aloud.
type Speaker interface {
	Speak(ctx context.Context, options voice.SpeakOptions) error
}

// # Assistant

// Assistant keeps one conversation.
type Assistant struct {
	api     ChatAPI
	session Session
	speaker Speaker
	logger  *slog.Logger
	prosody voice.Prosody

	mu             sync.Mutex
	language       voice.Language
	history        []Message
	conversationID string
	voiceOutput    bool
	generalCount   int

	wg sync.WaitGroup
}

// Option configures an [Assistant].
type Option func(*Assistant)

// WithSpeaker enables reading replies aloud.
func WithSpeaker(speaker Speaker) Option {
	return func(a *Assistant) {
		a.speaker = speaker
		a.voiceOutput = speaker != nil
	}
}

// WithLogger sets the assistant logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Assistant) { a.logger = logger }
}

// WithLanguage sets the starting language.
func WithLanguage(lang voice.Language) Option {
	return func(a *Assistant) { a.language = lang }
}

// New creates an assistant with a fresh conversation.
func New(api ChatAPI, session Session, opts ...Option) *Assistant {
	a := &Assistant{
		api:      api,
		session:  session,
		logger:   slog.Default(),
		language: voice.English,
		prosody:  voice.Prosody{Rate: 0.9, Pitch: 1.0, Volume: 0.8},
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With(slog.String("component", "assistant"))
	a.Reset(a.language)
	return a
}

// Reset starts a new conversation in lang with the welcome message.
func (a *Assistant) Reset(lang voice.Language) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.language = lang
	a.conversationID = ""
	a.generalCount = 0
	a.history = []Message{{
		ID:       uuid.NewString(),
		Role:     RoleAssistant,
		Content:  WelcomeMessage(lang),
		At:       time.Now(),
		Language: lang,
	}}
}

// History returns a copy of the conversation.
func (a *Assistant) History() []Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Message(nil), a.history...)
}

// Language returns the conversation language.
func (a *Assistant) Language() voice.Language {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.language
}

// SetVoiceOutput turns reading replies aloud on or off.
func (a *Assistant) SetVoiceOutput(enabled bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.voiceOutput = enabled && a.speaker != nil
}

// SendOptions qualifies one question.
type SendOptions struct {
	// Language overrides the conversation language for this message and keeps it.
	Language voice.Language

	// Voice marks a message that came from speech recognition.
	Voice bool
}

/*
Send asks the assistant one question.

Description: The access token is refreshed first if it has expired. The
question goes to the AI endpoint with the last ten messages as context. When
the endpoint fails for any reason other than authentication, an offline
reply is built from the message intent and flagged as degraded.

Parameters:
  - ctx: context.Context
  - text: the question
  - options: SendOptions

Returns:
  - *Message: the assistant reply
  - error: ValidationError for an empty question, AuthError when the session is gone
*/
func (a *Assistant) Send(ctx context.Context, text string, options SendOptions) (*Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperr.ValidationError("Message cannot be empty")
	}

	// ── 1. Credentials ────────────────────────────────────────────────
	if err := a.session.EnsureFresh(ctx); err != nil {
		return nil, err
	}

	// ── 2. Record The Question ────────────────────────────────────────
	a.mu.Lock()
	if options.Language != "" {
		a.language = options.Language
	}
	lang := a.language
	question := Message{
		ID:       uuid.NewString(),
		Role:     RoleUser,
		Content:  text,
		At:       time.Now(),
		Language: lang,
		Voice:    options.Voice,
	}
	a.history = append(a.history, question)
	chatContext := recent(a.history, contextSize)
	conversationID := a.conversationID
	a.mu.Unlock()

	// ── 3. Ask The Backend ────────────────────────────────────────────
	user := a.session.User()
	request := apiclient.ChatRequest{
		Message:             text,
		Language:            string(lang),
		ConversationID:      conversationID,
		ConversationContext: chatContext,
		IntentAnalysis:      true,
		VoiceInput:          options.Voice,
		ResponseType:        "conversational",
	}
	if user != nil {
		request.UserProfile = &apiclient.ChatProfile{
			Name:     user.FirstName,
			Province: user.LocationProvince,
			District: user.LocationDistrict,
		}
	}

	var reply Message
	answer, err := a.api.Chat(ctx, request)
	switch {
	case err == nil:
		reply = Message{
			Content:     answer.Text,
			Intent:      answer.Intent,
			Confidence:  answer.Confidence,
			Suggestions: answer.Suggestions,
			Businesses:  answer.Businesses,
		}
	case apperr.IsKind(err, apperr.KindAuth) || ctx.Err() != nil:
		return nil, err
	default:
		a.logger.Warn("assistant_chat_degraded", slog.Any("error", err))
		reply = a.offline(text, lang, user)
	}

	reply.ID = uuid.NewString()
	reply.Role = RoleAssistant
	reply.At = time.Now()
	reply.Language = lang

	// ── 4. Record The Answer ──────────────────────────────────────────
	a.mu.Lock()
	if err == nil && answer.ConversationID != "" {
		a.conversationID = answer.ConversationID
	}
	a.history = append(a.history, reply)
	speak := a.voiceOutput
	a.mu.Unlock()

	if speak {
		a.speakAsync(reply)
	}
	return &reply, nil
}

// offline builds the degraded-mode answer.
func (a *Assistant) offline(text string, lang voice.Language, user *account.User) Message {
	intent := voice.ExtractIntent(text, lang)

	name := ""
	if user != nil {
		name = user.FirstName
	}

	a.mu.Lock()
	variant := a.generalCount
	if intent.Name == voice.IntentGeneral {
		a.generalCount++
	}
	a.mu.Unlock()

	return Message{
		Content:     fallbackReply(lang, intent.Name, name, variant),
		Intent:      intent.Name,
		Confidence:  intent.Confidence,
		Suggestions: QuickSuggestions(lang),
		Degraded:    true,
	}
}

// Speak reads message aloud with a friendly voice and waits until it ends.
func (a *Assistant) Speak(ctx context.Context, message Message) error {
	if a.speaker == nil {
		return apperr.VoiceCapability("Speech synthesis not supported")
	}
	return a.speaker.Speak(ctx, voice.SpeakOptions{
		Text:     message.Content,
		Language: message.Language,
		Gender:   voice.Female,
		Prosody:  &a.prosody,
		Emotion:  voice.Friendly,
	})
}

func (a *Assistant) speakAsync(message Message) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), speakTimeout)
		defer cancel()

		err := a.Speak(ctx, message)
		switch {
		case err == nil:
		case errors.Is(err, voice.ErrInterrupted), errors.Is(err, voice.ErrDestroyed), ctx.Err() != nil:
			a.logger.Debug("assistant_speak_interrupted", slog.Any("error", err))
		default:
			a.logger.Warn("assistant_speak_failed", slog.Any("error", err))
		}
	}()
}

// Wait blocks until replies being read aloud have finished.
func (a *Assistant) Wait() {
	a.wg.Wait()
}

// recent converts the last n messages into request context.
func recent(history []Message, n int) []apiclient.ChatMessage {
	start := max(0, len(history)-n)
	out := make([]apiclient.ChatMessage, 0, len(history)-start)
	for _, m := range history[start:] {
		out = append(out, apiclient.ChatMessage{Role: string(m.Role), Content: m.Content})
	}
	return out
}
