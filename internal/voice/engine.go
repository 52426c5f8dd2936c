// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package voice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/taibuivan/bizmap/internal/notify"
	"github.com/taibuivan/bizmap/internal/platform/apperr"
)

// # Engine State

// State is the recognition state.
type State int

const (
	Idle State = iota
	Listening
)

func (s State) String() string {
	if s == Listening {
		return "listening"
	}
	return "idle"
}

// # Outgoing Events

// EventType tells what an [Event] carries.
type EventType string

const (
	EventStatus     EventType = "status"
	EventTranscript EventType = "transcript"
	EventLanguage   EventType = "language"
	EventSubmit     EventType = "submit"
	EventError      EventType = "error"
)

// Status values carried by [EventStatus].
const (
	StatusListening = "listening"
	StatusStopped   = "stopped"
	StatusError     = "error"
)

// Event is what the engine reports to the UI.
type Event struct {
	Type     EventType `json:"type"`
	Status   string    `json:"status,omitempty"`
	Language Language  `json:"language,omitempty"`
	Result   *Result   `json:"result,omitempty"`
	Code     string    `json:"code,omitempty"`
	Message  string    `json:"message,omitempty"`
}

// SubmitFunc receives a final transcript once the auto-send delay has passed.
type SubmitFunc func(ctx context.Context, transcript string, lang Language)

// DefaultAutoSendDelay leaves time for the confirmation to be read before the
// transcript is sent.
const DefaultAutoSendDelay = 800 * time.Millisecond

// incomingBuffer bounds recognizer callbacks waiting for the loop.
const incomingBuffer = 32

// ErrDestroyed is returned by operations on a destroyed engine.
var ErrDestroyed = errors.New("voice engine destroyed")

// ErrInterrupted is returned by Speak when a newer utterance replaced it.
var ErrInterrupted = errors.New("speech interrupted")

type envelope struct {
	session string
	event   RecognitionEvent
}

// # Engine

// Engine is the Voice Engine. Create one with [New] and release it with [Engine.Destroy].
type Engine struct {
	recognizer  Recognizer
	synthesizer Synthesizer
	notifier    notify.Notifier
	logger      *slog.Logger
	submit      SubmitFunc
	delay       time.Duration

	mu       sync.Mutex
	config   Config
	state    State
	session  string
	fallback Language

	speakMu     sync.Mutex
	speakCancel context.CancelFunc
	speakSeq    uint64

	events   *notify.Feed[Event]
	incoming chan envelope

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closed    atomic.Bool
	closeOnce sync.Once
}

// Option configures an [Engine].
type Option func(*Engine)

// WithConfig replaces [DefaultConfig].
func WithConfig(config Config) Option {
	return func(engine *Engine) { engine.config = config }
}

// WithNotifier sets where user-facing notices go.
func WithNotifier(notifier notify.Notifier) Option {
	return func(engine *Engine) { engine.notifier = notifier }
}

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(engine *Engine) { engine.logger = logger }
}

// WithSubmit sets the receiver of final transcripts.
func WithSubmit(submit SubmitFunc) Option {
	return func(engine *Engine) { engine.submit = submit }
}

// WithAutoSendDelay overrides [DefaultAutoSendDelay].
func WithAutoSendDelay(delay time.Duration) Option {
	return func(engine *Engine) { engine.delay = delay }
}

/*
New creates an engine over the given platform adapters and starts its event loop.

Parameters:
  - recognizer: Recognizer, may be nil when the platform has none
  - synthesizer: Synthesizer, may be nil when the platform has none
  - opts: Option list

Returns:
  - *Engine: a running engine
*/
func New(recognizer Recognizer, synthesizer Synthesizer, opts ...Option) *Engine {
	ctx, cancel := context.WithCancel(context.Background())

	engine := &Engine{
		recognizer:  recognizer,
		synthesizer: synthesizer,
		notifier:    notify.Discard{},
		logger:      slog.Default(),
		delay:       DefaultAutoSendDelay,
		config:      DefaultConfig(),
		fallback:    English,
		events:      notify.NewFeed[Event](),
		incoming:    make(chan envelope, incomingBuffer),
		ctx:         ctx,
		cancel:      cancel,
	}
	for _, opt := range opts {
		opt(engine)
	}

	if _, ok := lex.tags[engine.config.Language]; !ok {
		engine.config.Language = Kinyarwanda
	}
	if engine.config.Language != Kinyarwanda {
		engine.fallback = engine.config.Language
	}
	engine.logger = engine.logger.With(slog.String("component", "voice"))

	engine.wg.Add(1)
	go engine.processLoop()

	return engine
}

// # Capabilities

// RecognitionSupported reports whether the platform can listen.
func (engine *Engine) RecognitionSupported() bool {
	return engine.recognizer != nil && engine.recognizer.Available()
}

// SynthesisSupported reports whether the platform can speak.
func (engine *Engine) SynthesisSupported() bool {
	return engine.synthesizer != nil && engine.synthesizer.Available()
}

// IsSupported reports whether both recognition and synthesis are available.
func (engine *Engine) IsSupported() bool {
	return engine.RecognitionSupported() && engine.SynthesisSupported()
}

// SupportedLanguages lists the languages the engine handles.
func (engine *Engine) SupportedLanguages() []LanguageInfo {
	return SupportedLanguages()
}

// State returns the recognition state.
func (engine *Engine) State() State {
	engine.mu.Lock()
	defer engine.mu.Unlock()
	return engine.state
}

// Language returns the current language.
func (engine *Engine) Language() Language {
	engine.mu.Lock()
	defer engine.mu.Unlock()
	return engine.config.Language
}

// SetLanguage switches the listening and speaking language. It takes effect
// on the next listening session.
func (engine *Engine) SetLanguage(lang Language) error {
	if _, ok := lex.tags[lang]; !ok {
		return apperr.ValidationError(fmt.Sprintf("Unsupported language %q", lang))
	}

	engine.mu.Lock()
	engine.setLanguageLocked(lang)
	engine.mu.Unlock()

	engine.emit(Event{Type: EventLanguage, Language: lang})
	return nil
}

func (engine *Engine) setLanguageLocked(lang Language) {
	engine.config.Language = lang
	if lang != Kinyarwanda {
		engine.fallback = lang
	}
}

// Subscribe returns a channel of engine events and a function that ends the subscription.
func (engine *Engine) Subscribe(buffer int) (<-chan Event, func()) {
	return engine.events.Subscribe(buffer)
}

// # Recognition

/*
StartListening opens a listening session in the current language.

Description: Fails without side effects on the state when the platform has no
recognizer, when a session is already open, or when the recognizer refuses to
start. Every failure except the already-listening one is reported as an error
event and a notice.

Returns:
  - bool: true when listening started
*/
func (engine *Engine) StartListening() bool {
	if engine.closed.Load() {
		return false
	}

	if !engine.RecognitionSupported() {
		lang := engine.Language()
		engine.fail(apperr.VoiceCapability(lex.message(lang, "unsupported")))
		return false
	}

	engine.mu.Lock()
	if engine.state == Listening {
		engine.mu.Unlock()
		return false
	}
	id := uuid.NewString()
	engine.state = Listening
	engine.session = id
	config := engine.config
	engine.mu.Unlock()

	err := engine.recognizer.Start(engine.ctx, RecognitionConfig{
		Tag:             config.Language.Tag(),
		Continuous:      config.Continuous,
		InterimResults:  config.InterimResults,
		MaxAlternatives: config.MaxAlternatives,
	}, func(event RecognitionEvent) {
		engine.deliver(id, event)
	})
	if err != nil {
		engine.endSession(id)
		engine.logger.Warn("voice_start_failed", slog.Any("error", err))
		engine.fail(apperr.VoiceRuntime("start-failed", lex.message(config.Language, "start_failed")))
		return false
	}

	engine.logger.Debug("voice_listening", slog.String("session", id), slog.String("language", string(config.Language)))
	engine.emit(Event{Type: EventStatus, Status: StatusListening, Language: config.Language})
	engine.notifier.Notify(notify.LevelInfo, lex.message(config.Language, "listening"), "")
	return true
}

// StopListening ends the open session without emitting a result. It is a no-op when idle.
func (engine *Engine) StopListening() {
	engine.mu.Lock()
	if engine.state != Listening {
		engine.mu.Unlock()
		return
	}
	engine.state = Idle
	engine.session = ""
	engine.mu.Unlock()

	engine.recognizer.Stop()
	engine.emit(Event{Type: EventStatus, Status: StatusStopped})
}

// endSession returns to Idle if id is still the open session.
func (engine *Engine) endSession(id string) bool {
	engine.mu.Lock()
	defer engine.mu.Unlock()

	if engine.session != id || engine.state != Listening {
		return false
	}
	engine.state = Idle
	engine.session = ""
	return true
}

// deliver hands a recognizer callback to the loop.
func (engine *Engine) deliver(session string, event RecognitionEvent) {
	if engine.closed.Load() {
		return
	}
	select {
	case engine.incoming <- envelope{session: session, event: event}:
	case <-engine.ctx.Done():
	}
}

func (engine *Engine) processLoop() {
	defer engine.wg.Done()

	for {
		select {
		case <-engine.ctx.Done():
			return
		case env := <-engine.incoming:
			engine.handle(env)
		}
	}
}

func (engine *Engine) handle(env envelope) {
	engine.mu.Lock()
	current := engine.session == env.session && engine.state == Listening
	engine.mu.Unlock()

	// Callbacks from a stopped or replaced session are dropped
	if !current {
		return
	}

	switch env.event.Kind {
	case RecognitionResult:
		engine.handleResult(env.session, env.event.Result)
	case RecognitionError:
		if engine.endSession(env.session) {
			engine.fail(apperr.VoiceRuntime(env.event.Code, lex.errorMessage(engine.Language(), env.event.Code)))
		}
	case RecognitionEnd:
		if engine.endSession(env.session) {
			engine.emit(Event{Type: EventStatus, Status: StatusStopped})
		}
	}
}

func (engine *Engine) handleResult(session string, result Result) {
	if !result.Final {
		engine.emit(Event{Type: EventTranscript, Result: &result})
		return
	}

	if !engine.endSession(session) {
		return
	}
	engine.emit(Event{Type: EventTranscript, Result: &result})
	engine.emit(Event{Type: EventStatus, Status: StatusStopped})

	// ── 1. Language Auto-Detection ────────────────────────────────────
	lang := engine.detectLanguage(result.Transcript)

	// ── 2. Confirmation ───────────────────────────────────────────────
	percent := int(math.Round(result.Confidence * 100))
	engine.notifier.Notify(notify.LevelSuccess,
		fmt.Sprintf(lex.message(lang, "confirmed"), percent),
		result.Transcript,
	)

	// ── 3. Delayed Auto-Submit ────────────────────────────────────────
	transcript := strings.TrimSpace(result.Transcript)
	if transcript == "" {
		return
	}
	engine.scheduleSubmit(transcript, lang)
}

// detectLanguage switches to Kinyarwanda when the transcript has a marker
// word, and back to the last other language when it has none.
func (engine *Engine) detectLanguage(transcript string) Language {
	isKinyarwanda := DetectKinyarwanda(transcript)

	engine.mu.Lock()
	current := engine.config.Language
	target := current
	switch {
	case isKinyarwanda && current != Kinyarwanda:
		target = Kinyarwanda
	case !isKinyarwanda && current == Kinyarwanda:
		target = engine.fallback
	}
	engine.setLanguageLocked(target)
	engine.mu.Unlock()

	if target != current {
		engine.logger.Info("voice_language_detected", slog.String("from", string(current)), slog.String("to", string(target)))
		engine.emit(Event{Type: EventLanguage, Language: target})
		engine.notifier.Notify(notify.LevelInfo, lex.message(target, "detected"), "")
	}
	return target
}

func (engine *Engine) scheduleSubmit(transcript string, lang Language) {
	engine.wg.Add(1)
	go func() {
		defer engine.wg.Done()

		timer := time.NewTimer(engine.delay)
		defer timer.Stop()

		select {
		case <-engine.ctx.Done():
			return
		case <-timer.C:
		}

		engine.emit(Event{Type: EventSubmit, Language: lang, Result: &Result{Transcript: transcript, Final: true}})
		if engine.submit != nil {
			engine.submit(engine.ctx, transcript, lang)
		}
	}()
}

// # Synthesis

// SpeakOptions describes one utterance. Zero fields take the engine's configuration.
type SpeakOptions struct {
	Text     string
	Language Language
	Gender   Gender
	Prosody  *Prosody
	Emotion  Emotion
}

/*
Speak says text, cancelling whatever is being said.

Description: The text is formatted for speech, the best installed voice is
selected and the emotion is applied to the base prosody. Speak blocks until
the utterance ends.

Parameters:
  - ctx: context.Context; cancelling it stops the utterance
  - options: SpeakOptions

Returns:
  - error: VoiceCapability without synthesis, [ErrInterrupted] when replaced,
    VoiceRuntime on a platform failure
*/
func (engine *Engine) Speak(ctx context.Context, options SpeakOptions) error {
	if engine.closed.Load() {
		return ErrDestroyed
	}

	engine.mu.Lock()
	config := engine.config
	engine.mu.Unlock()

	lang := options.Language
	if lang == "" {
		lang = config.Language
	}
	if !engine.SynthesisSupported() {
		return apperr.VoiceCapability(lex.message(lang, "synthesis_unsupported"))
	}

	text := FormatForSpeech(options.Text, lang)
	if text == "" {
		return nil
	}

	gender := options.Gender
	if gender == "" {
		gender = config.Gender
	}
	base := config.Prosody
	if options.Prosody != nil {
		base = *options.Prosody
	}

	// ── 1. Replace Current Utterance ──────────────────────────────────
	speakCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(engine.ctx, cancel)
	defer stop()

	engine.speakMu.Lock()
	if engine.speakCancel != nil {
		engine.speakCancel()
	}
	engine.synthesizer.Cancel()
	engine.speakSeq++
	seq := engine.speakSeq
	engine.speakCancel = cancel
	engine.speakMu.Unlock()

	defer func() {
		engine.speakMu.Lock()
		if engine.speakSeq == seq {
			engine.speakCancel = nil
		}
		engine.speakMu.Unlock()
		cancel()
	}()

	// ── 2. Speak ──────────────────────────────────────────────────────
	tag := lang.Tag()
	utterance := Utterance{
		ID:      uuid.NewString(),
		Text:    text,
		Tag:     tag,
		Voice:   SelectVoice(engine.synthesizer.Voices(), tag, gender),
		Prosody: Tune(base, options.Emotion),
	}

	err := engine.synthesizer.Speak(speakCtx, utterance)
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	case speakCtx.Err() != nil:
		return ErrInterrupted
	default:
		engine.logger.Warn("voice_speak_failed", slog.Any("error", err))
		return apperr.VoiceRuntime("synthesis", "Speech synthesis error: "+err.Error())
	}
}

// CancelSpeech stops the current utterance, if any.
func (engine *Engine) CancelSpeech() {
	engine.speakMu.Lock()
	defer engine.speakMu.Unlock()

	if engine.speakCancel != nil {
		engine.speakCancel()
		engine.speakCancel = nil
	}
	if engine.synthesizer != nil {
		engine.synthesizer.Cancel()
	}
}

// # Lifecycle

// Destroy aborts recognition, cancels speech, stops the loop and pending
// auto-submits, and closes every subscription. It is safe to call twice.
func (engine *Engine) Destroy() {
	engine.closeOnce.Do(func() {
		engine.closed.Store(true)

		engine.mu.Lock()
		wasListening := engine.state == Listening
		engine.state = Idle
		engine.session = ""
		engine.mu.Unlock()

		if wasListening && engine.recognizer != nil {
			engine.recognizer.Abort()
		}
		engine.CancelSpeech()

		engine.cancel()
		engine.wg.Wait()
		engine.events.Close()

		engine.logger.Debug("voice_destroyed")
	})
}

// # Helpers

func (engine *Engine) emit(event Event) {
	engine.events.Publish(event)
}

// fail reports a voice error as an event and a notice, and returns the
// status to error.
func (engine *Engine) fail(err *apperr.AppError) {
	code := err.Code
	if err.Cause != nil {
		code = err.Cause.Error()
	}
	engine.logger.Info("voice_error", slog.String("code", code), slog.String("kind", string(err.Kind)))

	engine.emit(Event{Type: EventStatus, Status: StatusError})
	engine.emit(Event{Type: EventError, Code: code, Message: err.Message})
	engine.notifier.Notify(notify.LevelError, err.Message, "")
}
