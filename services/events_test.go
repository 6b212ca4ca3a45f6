package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventHub_PublishSubscribe(t *testing.T) {
	h := NewEventHub()
	ch, cancel := h.Subscribe()
	defer cancel()

	h.Publish(Event{Type: "user.created", Email: "alice@example.com"})

	select {
	case ev := <-ch:
		assert.Equal(t, "user.created", ev.Type)
		assert.Equal(t, "alice@example.com", ev.Email)
		assert.False(t, ev.At.IsZero(), "Publish must stamp the event time")
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}
}

func TestEventHub_Cancel(t *testing.T) {
	h := NewEventHub()
	ch, cancel := h.Subscribe()
	require.Equal(t, 1, h.SubscriberCount())

	cancel()
	assert.Equal(t, 0, h.SubscriberCount())

	// channel is closed after cancel
	_, open := <-ch
	assert.False(t, open)

	// double cancel is safe
	cancel()
}

func TestEventHub_DropsStalledSubscriber(t *testing.T) {
	h := NewEventHub()
	ch, cancel := h.Subscribe()
	defer cancel()

	// fill the buffer without draining, one more publish evicts
	for i := 0; i < 17; i++ {
		h.Publish(Event{Type: "login"})
	}
	assert.Equal(t, 0, h.SubscriberCount())

	// the stalled subscriber still sees the buffered events, then the close
	n := 0
	for range ch {
		n++
	}
	assert.Equal(t, 16, n)
}

func TestEventHub_MultipleSubscribers(t *testing.T) {
	h := NewEventHub()
	ch1, cancel1 := h.Subscribe()
	ch2, cancel2 := h.Subscribe()
	defer cancel1()
	defer cancel2()

	h.Publish(Event{Type: "user.deleted"})

	for _, ch := range []<-chan Event{ch1, ch2} {
		select {
		case ev := <-ch:
			assert.Equal(t, "user.deleted", ev.Type)
		case <-time.After(time.Second):
			t.Fatal("subscriber missed event")
		}
	}
}
