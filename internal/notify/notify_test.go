// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package notify_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/bizmap/internal/notify"
)

/*
TestHub_FanOut delivers one notice to every subscriber.
*/
func TestHub_FanOut(t *testing.T) {
	hub := notify.NewHub()
	a, cancelA := hub.Subscribe(4)
	b, cancelB := hub.Subscribe(4)
	defer cancelA()
	defer cancelB()

	hub.Notify(notify.LevelSuccess, "Welcome back!", "Good to see you again, Aline!")

	for _, ch := range []<-chan notify.Notice{a, b} {
		n := <-ch
		assert.Equal(t, notify.LevelSuccess, n.Level)
		assert.Equal(t, "Welcome back!", n.Title)
		assert.NotEmpty(t, n.ID)
	}
}

/*
TestHub_SlowSubscriberDoesNotBlock drops notices for a full subscriber.
*/
func TestHub_SlowSubscriberDoesNotBlock(t *testing.T) {
	hub := notify.NewHub()
	ch, cancel := hub.Subscribe(1)
	defer cancel()

	hub.Notify(notify.LevelInfo, "one", "")
	hub.Notify(notify.LevelInfo, "two", "")

	assert.Equal(t, "one", (<-ch).Title)
	assert.Len(t, hub.Recent(), 2)
}

/*
TestHub_Unsubscribe closes the channel once and stops delivery.
*/
func TestHub_Unsubscribe(t *testing.T) {
	hub := notify.NewHub()
	ch, cancel := hub.Subscribe(1)

	cancel()
	cancel()

	_, open := <-ch
	assert.False(t, open)

	hub.Notify(notify.LevelInfo, "after", "")
	hub.Close()

	late, _ := hub.Subscribe(1)
	_, open = <-late
	require.False(t, open)
}
