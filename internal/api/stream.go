// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/taibuivan/bizmap/internal/notify"
	"github.com/taibuivan/bizmap/internal/platform/ctxutil"
	"github.com/taibuivan/bizmap/internal/session"
	"github.com/taibuivan/bizmap/internal/voice"
)

// Stream timing. The browser answers pings with pongs automatically.
const (
	handshakeTimeout = 5 * time.Second
	writeWait        = 5 * time.Second
	pongWait         = 60 * time.Second
	pingPeriod       = pongWait * 9 / 10
	streamBuffer     = 32
)

// # Upgrading

func newUpgrader(originAllowed func(string) bool) *websocket.Upgrader {
	return &websocket.Upgrader{
		HandshakeTimeout: handshakeTimeout,
		CheckOrigin: func(request *http.Request) bool {
			origin := request.Header.Get("Origin")
			return origin == "" || originAllowed(origin)
		},
	}
}

// upgrade switches the request to a websocket and clears the deadlines the
// HTTP server left on the connection.
func upgrade(upgrader *websocket.Upgrader, writer http.ResponseWriter, request *http.Request) (*websocket.Conn, bool) {
	conn, err := upgrader.Upgrade(writer, request, nil)
	if err != nil {
		ctxutil.GetLogger(request.Context()).Warn("websocket_upgrade_failed", slog.Any("error", err))
		return nil, false
	}
	_ = conn.NetConn().SetDeadline(time.Time{})
	return conn, true
}

// # Voice Bridge

// newBridgeHandler attaches the page that provides speech recognition and synthesis.
func newBridgeHandler(bridge *voice.Bridge, originAllowed func(string) bool) http.HandlerFunc {
	upgrader := newUpgrader(originAllowed)
	return func(writer http.ResponseWriter, request *http.Request) {
		conn, ok := upgrade(upgrader, writer, request)
		if !ok {
			return
		}
		if err := bridge.Serve(request.Context(), conn); err != nil {
			ctxutil.GetLogger(request.Context()).Info("voice_bridge_closed", slog.Any("error", err))
		}
	}
}

// # Event Stream

// streamMessage is one frame of /ws/events.
type streamMessage struct {
	Type    string            `json:"type"`
	Session *session.Snapshot `json:"session,omitempty"`
	Notice  *notify.Notice    `json:"notice,omitempty"`
	Voice   *voice.Event      `json:"voice,omitempty"`
}

// eventStream pushes session changes, notices and voice events to the UI.
type eventStream struct {
	session  *session.Manager
	notices  *notify.Hub
	engine   *voice.Engine
	upgrader *websocket.Upgrader
}

func newEventStream(manager *session.Manager, notices *notify.Hub, engine *voice.Engine, originAllowed func(string) bool) *eventStream {
	return &eventStream{
		session:  manager,
		notices:  notices,
		engine:   engine,
		upgrader: newUpgrader(originAllowed),
	}
}

/*
serve handles GET /ws/events.

Description: The first frame is the current session snapshot. Afterwards a
frame is sent for every notice and voice event, and a new session frame
whenever the session state or user changes. The stream ends when the
browser goes away.
*/
func (stream *eventStream) serve(writer http.ResponseWriter, request *http.Request) {
	logger := ctxutil.GetLogger(request.Context())

	conn, ok := upgrade(stream.upgrader, writer, request)
	if !ok {
		return
	}
	defer conn.Close()

	// ── 1. Subscribe Before The First Frame ───────────────────────────
	changes, stopChanges := stream.session.Subscribe(streamBuffer)
	defer stopChanges()

	notices, stopNotices := stream.notices.Subscribe(streamBuffer)
	defer stopNotices()

	var voiceEvents <-chan voice.Event
	if stream.engine != nil {
		events, stopVoice := stream.engine.Subscribe(streamBuffer)
		defer stopVoice()
		voiceEvents = events
	}

	// ── 2. Reader: Pongs And Disconnects ──────────────────────────────
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	// ── 3. Writer ─────────────────────────────────────────────────────
	write := func(message streamMessage) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(message); err != nil {
			logger.Debug("event_stream_write_failed", slog.Any("error", err))
			return false
		}
		return true
	}

	last := stream.session.Snapshot()
	if !write(streamMessage{Type: "session", Session: &last}) {
		return
	}

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		var ok bool
		select {
		case <-gone:
			return
		case <-request.Context().Done():
			return

		case notice, open := <-notices:
			if !open {
				return
			}
			ok = write(streamMessage{Type: "notice", Notice: &notice})

		case event, open := <-voiceEvents:
			if !open {
				voiceEvents = nil
				continue
			}
			ok = write(streamMessage{Type: "voice", Voice: &event})

		case current, open := <-changes:
			if !open {
				return
			}
			if sameSnapshot(last, current) {
				continue
			}
			last = current
			ok = write(streamMessage{Type: "session", Session: &current})

		case <-ping.C:
			ok = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)) == nil
		}
		if !ok {
			return
		}
	}
}

// sameSnapshot compares what the UI renders from a snapshot. Profile reloads
// settle the same user again and are not worth a frame.
func sameSnapshot(a, b session.Snapshot) bool {
	if a.State != b.State || a.Ready != b.Ready {
		return false
	}
	if a.User == nil || b.User == nil {
		return a.User == b.User
	}
	return *a.User == *b.User
}
