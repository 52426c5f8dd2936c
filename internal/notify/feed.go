// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package notify

import "sync"

// Feed is a non-blocking fan-out of values of one type.
//
// Publish never waits for a subscriber; a full subscriber channel drops the value.
type Feed[T any] struct {
	mu     sync.RWMutex
	subs   map[int]chan T
	nextID int
	closed bool
}

// NewFeed creates an empty feed.
func NewFeed[T any]() *Feed[T] {
	return &Feed[T]{subs: make(map[int]chan T)}
}

// Publish sends value to every subscriber that has room for it.
func (feed *Feed[T]) Publish(value T) {
	feed.mu.RLock()
	defer feed.mu.RUnlock()

	if feed.closed {
		return
	}
	for _, ch := range feed.subs {
		select {
		case ch <- value:
		default:
		}
	}
}

// Subscribe returns a channel of future values and a function that ends the subscription.
// On a closed feed the returned channel is already closed.
func (feed *Feed[T]) Subscribe(buffer int) (<-chan T, func()) {
	feed.mu.Lock()
	defer feed.mu.Unlock()

	ch := make(chan T, buffer)
	if feed.closed {
		close(ch)
		return ch, func() {}
	}

	id := feed.nextID
	feed.nextID++
	feed.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			feed.mu.Lock()
			defer feed.mu.Unlock()
			if _, ok := feed.subs[id]; ok {
				delete(feed.subs, id)
				close(ch)
			}
		})
	}
}

// Close ends every subscription. Later publishes are dropped.
func (feed *Feed[T]) Close() {
	feed.mu.Lock()
	defer feed.mu.Unlock()

	if feed.closed {
		return
	}
	feed.closed = true
	for id, ch := range feed.subs {
		delete(feed.subs, id)
		close(ch)
	}
}
