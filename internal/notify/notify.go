// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package notify carries user-facing notices from the session and voice layers
to whatever renders them (the websocket stream, the CLI, tests).

Publishing never blocks: a subscriber that falls behind loses notices rather
than stalling a login or a recognition result.
*/
package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Level is the visual weight of a notice.
type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
	LevelInfo    Level = "info"
)

// Notice is one user-visible message.
type Notice struct {
	ID          string    `json:"id"`
	Level       Level     `json:"level"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	At          time.Time `json:"at"`
}

// Notifier is what producers depend on.
type Notifier interface {
	Notify(level Level, title, description string)
}

// recentSize is how many notices late subscribers can catch up on.
const recentSize = 20

// Hub fans notices out to subscribers and remembers the latest ones.
type Hub struct {
	feed *Feed[Notice]

	mu     sync.Mutex
	recent []Notice
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{feed: NewFeed[Notice]()}
}

// Notify publishes a notice to every subscriber.
func (hub *Hub) Notify(level Level, title, description string) {
	notice := Notice{
		ID:          uuid.NewString(),
		Level:       level,
		Title:       title,
		Description: description,
		At:          time.Now(),
	}

	hub.mu.Lock()
	hub.recent = append(hub.recent, notice)
	if len(hub.recent) > recentSize {
		hub.recent = hub.recent[len(hub.recent)-recentSize:]
	}
	hub.mu.Unlock()

	hub.feed.Publish(notice)
}

// Subscribe returns a channel of future notices and a function that ends the subscription.
func (hub *Hub) Subscribe(buffer int) (<-chan Notice, func()) {
	return hub.feed.Subscribe(buffer)
}

// Recent returns the latest notices, oldest first.
func (hub *Hub) Recent() []Notice {
	hub.mu.Lock()
	defer hub.mu.Unlock()
	return append([]Notice(nil), hub.recent...)
}

// Close ends every subscription.
func (hub *Hub) Close() {
	hub.feed.Close()
}

// Discard drops every notice.
type Discard struct{}

func (Discard) Notify(Level, string, string) {}
