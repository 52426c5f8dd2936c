// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package voice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// bridgeWriteTimeout bounds a single command write to the page.
const bridgeWriteTimeout = 5 * time.Second

// ErrBridgeDetached is returned when no page is attached to the bridge.
var ErrBridgeDetached = errors.New("voice bridge: no page attached")

// # Wire Messages

// pageMessage is what the page sends. Type selects which fields are set.
//
//	hello        recognition, synthesis, voices
//	result       transcript, confidence, alternatives, final
//	error        error (platform code, e.g. "no-speech")
//	end
//	spoken       id
//	speak_error  id, error
type pageMessage struct {
	Type         string   `json:"type"`
	Recognition  bool     `json:"recognition"`
	Synthesis    bool     `json:"synthesis"`
	Voices       []Voice  `json:"voices"`
	Transcript   string   `json:"transcript"`
	Confidence   float64  `json:"confidence"`
	Alternatives []string `json:"alternatives"`
	Final        bool     `json:"final"`
	Error        string   `json:"error"`
	ID           string   `json:"id"`
}

// command is what the bridge sends: listen, stop, abort, speak, cancel.
//
// A cancel without id silences the page. A cancel with id only stops that
// utterance; the page ignores it once another utterance has started.
type command struct {
	Type            string   `json:"type"`
	Lang            string   `json:"lang,omitempty"`
	Continuous      bool     `json:"continuous,omitempty"`
	InterimResults  bool     `json:"interim_results,omitempty"`
	MaxAlternatives int      `json:"max_alternatives,omitempty"`
	ID              string   `json:"id,omitempty"`
	Text            string   `json:"text,omitempty"`
	Voice           string   `json:"voice,omitempty"`
	Prosody         *Prosody `json:"prosody,omitempty"`
}

// # Bridge

/*
Bridge is a [Recognizer] and [Synthesizer] backed by a browser page.

The page runs the platform speech APIs and talks to the bridge over a
websocket: it announces its capabilities, relays recognition callbacks and
reports when an utterance has been spoken. One page is attached at a time;
a new page replaces the previous one.
*/
type Bridge struct {
	logger *slog.Logger

	mu          sync.Mutex
	conn        *websocket.Conn
	recognition bool
	synthesis   bool
	voices      []Voice
	emit        func(RecognitionEvent)
	pending     map[string]chan error

	writeMu sync.Mutex
}

// NewBridge creates a bridge with no page attached.
func NewBridge(logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		logger:  logger.With(slog.String("component", "voice_bridge")),
		pending: make(map[string]chan error),
	}
}

/*
Serve attaches conn and reads page messages until the page goes away or ctx ends.

Parameters:
  - ctx: context.Context
  - conn: *websocket.Conn, upgraded by the caller

Returns:
  - error: the read error, nil on a normal close
*/
func (bridge *Bridge) Serve(ctx context.Context, conn *websocket.Conn) error {
	bridge.attach(conn)
	defer bridge.detach(conn)

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		var message pageMessage
		if err := conn.ReadJSON(&message); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) || ctx.Err() != nil {
				return nil
			}
			var syntax *json.SyntaxError
			if errors.As(err, &syntax) {
				bridge.logger.Warn("voice_bridge_bad_message", slog.Any("error", err))
				continue
			}
			return fmt.Errorf("voice_bridge_read_failed: %w", err)
		}
		bridge.handle(message)
	}
}

func (bridge *Bridge) attach(conn *websocket.Conn) {
	bridge.mu.Lock()
	previous := bridge.conn
	bridge.conn = conn
	bridge.recognition, bridge.synthesis, bridge.voices = false, false, nil
	bridge.mu.Unlock()

	if previous != nil {
		bridge.logger.Info("voice_bridge_replaced")
		_ = previous.Close()
	}
}

// detach forgets conn if it is still the attached page. An open recognition
// session ends with a network error and pending utterances fail.
func (bridge *Bridge) detach(conn *websocket.Conn) {
	bridge.mu.Lock()
	if bridge.conn != conn {
		bridge.mu.Unlock()
		return
	}
	bridge.conn = nil
	bridge.recognition, bridge.synthesis, bridge.voices = false, false, nil
	emit := bridge.emit
	bridge.emit = nil
	pending := bridge.pending
	bridge.pending = make(map[string]chan error)
	bridge.mu.Unlock()

	_ = conn.Close()

	if emit != nil {
		emit(RecognitionEvent{Kind: RecognitionError, Code: "network"})
	}
	for _, ch := range pending {
		ch <- ErrBridgeDetached
	}
	bridge.logger.Info("voice_bridge_detached")
}

func (bridge *Bridge) handle(message pageMessage) {
	bridge.mu.Lock()
	emit := bridge.emit

	switch message.Type {
	case "hello":
		bridge.recognition = message.Recognition
		bridge.synthesis = message.Synthesis
		bridge.voices = message.Voices
		bridge.mu.Unlock()
		bridge.logger.Info("voice_bridge_attached",
			slog.Bool("recognition", message.Recognition),
			slog.Bool("synthesis", message.Synthesis),
			slog.Int("voices", len(message.Voices)),
		)
		return

	case "spoken", "speak_error":
		ch, ok := bridge.pending[message.ID]
		delete(bridge.pending, message.ID)
		bridge.mu.Unlock()
		if !ok {
			return
		}
		if message.Type == "spoken" {
			ch <- nil
		} else {
			ch <- errors.New(message.Error)
		}
		return
	}
	bridge.mu.Unlock()

	if emit == nil {
		return
	}

	switch message.Type {
	case "result":
		emit(RecognitionEvent{Kind: RecognitionResult, Result: Result{
			Transcript:   message.Transcript,
			Confidence:   message.Confidence,
			Alternatives: message.Alternatives,
			Final:        message.Final,
		}})
	case "error":
		emit(RecognitionEvent{Kind: RecognitionError, Code: message.Error})
	case "end":
		emit(RecognitionEvent{Kind: RecognitionEnd})
	default:
		bridge.logger.Debug("voice_bridge_unknown_message", slog.String("type", message.Type))
	}
}

func (bridge *Bridge) send(cmd command) error {
	bridge.mu.Lock()
	conn := bridge.conn
	bridge.mu.Unlock()

	if conn == nil {
		return ErrBridgeDetached
	}

	bridge.writeMu.Lock()
	defer bridge.writeMu.Unlock()

	_ = conn.SetWriteDeadline(time.Now().Add(bridgeWriteTimeout))
	if err := conn.WriteJSON(cmd); err != nil {
		return fmt.Errorf("voice_bridge_write_failed: %w", err)
	}
	return nil
}

// # Recognizer

// Available reports whether the attached page can recognize speech.
func (bridge *Bridge) Available() bool {
	bridge.mu.Lock()
	defer bridge.mu.Unlock()
	return bridge.conn != nil && bridge.recognition
}

// Start asks the page to listen and routes its callbacks to emit.
func (bridge *Bridge) Start(_ context.Context, config RecognitionConfig, emit func(RecognitionEvent)) error {
	bridge.mu.Lock()
	bridge.emit = emit
	bridge.mu.Unlock()

	return bridge.send(command{
		Type:            "listen",
		Lang:            config.Tag,
		Continuous:      config.Continuous,
		InterimResults:  config.InterimResults,
		MaxAlternatives: config.MaxAlternatives,
	})
}

// Stop asks the page to stop listening.
func (bridge *Bridge) Stop() {
	if err := bridge.send(command{Type: "stop"}); err != nil {
		bridge.logger.Debug("voice_bridge_stop_failed", slog.Any("error", err))
	}
}

// Abort asks the page to drop the listening session and forgets its callbacks.
func (bridge *Bridge) Abort() {
	bridge.mu.Lock()
	bridge.emit = nil
	bridge.mu.Unlock()

	if err := bridge.send(command{Type: "abort"}); err != nil {
		bridge.logger.Debug("voice_bridge_abort_failed", slog.Any("error", err))
	}
}

// # Synthesizer

// Synthesizer returns the synthesis side of the bridge.
func (bridge *Bridge) Synthesizer() Synthesizer {
	return bridgeSynthesizer{bridge}
}

type bridgeSynthesizer struct{ bridge *Bridge }

func (s bridgeSynthesizer) Available() bool {
	s.bridge.mu.Lock()
	defer s.bridge.mu.Unlock()
	return s.bridge.conn != nil && s.bridge.synthesis
}

func (s bridgeSynthesizer) Voices() []Voice {
	s.bridge.mu.Lock()
	defer s.bridge.mu.Unlock()
	return append([]Voice(nil), s.bridge.voices...)
}

// Speak sends the utterance and waits for the page to report its end.
func (s bridgeSynthesizer) Speak(ctx context.Context, utterance Utterance) error {
	bridge := s.bridge
	done := make(chan error, 1)

	bridge.mu.Lock()
	bridge.pending[utterance.ID] = done
	bridge.mu.Unlock()

	defer func() {
		bridge.mu.Lock()
		delete(bridge.pending, utterance.ID)
		bridge.mu.Unlock()
	}()

	prosody := utterance.Prosody
	cmd := command{
		Type:    "speak",
		ID:      utterance.ID,
		Text:    utterance.Text,
		Lang:    utterance.Tag,
		Prosody: &prosody,
	}
	if utterance.Voice != nil {
		cmd.Voice = utterance.Voice.Name
	}
	if err := bridge.send(cmd); err != nil {
		return err
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		// A newer utterance may already be playing; only this one is stopped
		_ = bridge.send(command{Type: "cancel", ID: utterance.ID})
		return ctx.Err()
	}
}

// Cancel asks the page to stop speaking.
func (s bridgeSynthesizer) Cancel() {
	if err := s.bridge.send(command{Type: "cancel"}); err != nil && !errors.Is(err, ErrBridgeDetached) {
		s.bridge.logger.Debug("voice_bridge_cancel_failed", slog.Any("error", err))
	}
}
