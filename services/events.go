package services

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"userdeck/common"
)

// Audit event stream. Superuser clients subscribe over a websocket and
// receive user lifecycle events as they happen.

type Event struct {
	Type  string    `json:"type"` // user.created | user.updated | user.deleted | login
	Email string    `json:"email,omitempty"`
	Actor string    `json:"actor,omitempty"`
	At    time.Time `json:"at"`
}

// EventHub fans events out to subscribers. Slow subscribers are dropped
// rather than blocking publishers.
type EventHub struct {
	mu   sync.Mutex
	subs map[chan Event]struct{}
}

func NewEventHub() *EventHub {
	return &EventHub{subs: make(map[chan Event]struct{})}
}

// Events is the process-wide hub.
var Events = NewEventHub()

// Subscribe registers a subscriber channel. Call the returned func to leave.
func (h *EventHub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 16)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch, func() {
		h.mu.Lock()
		if _, ok := h.subs[ch]; ok {
			delete(h.subs, ch)
			close(ch)
		}
		h.mu.Unlock()
	}
}

// Publish delivers an event to every subscriber that can keep up.
func (h *EventHub) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	h.mu.Lock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
			// subscriber is stalled, cut it loose
			delete(h.subs, ch)
			close(ch)
		}
	}
	h.mu.Unlock()
}

// SubscriberCount reports the current number of subscribers.
func (h *EventHub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// WSUpgrader allows same-origin plus the configured UI origin and dev hosts.
var WSUpgrader = websocket.Upgrader{
	ReadBufferSize:  4 * 1024,
	WriteBufferSize: 4 * 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := strings.TrimSpace(r.Header.Get("Origin"))
		ui := strings.TrimSpace(common.Env("USERDECK_UI_ORIGIN", ""))
		if origin == "" || origin == ui {
			return true
		}
		switch origin {
		case "http://localhost:5173", "http://127.0.0.1:5173":
			return true
		}
		return false
	},
}

// ServeEventsWS upgrades the connection and streams hub events until the
// client goes away.
func ServeEventsWS(w http.ResponseWriter, r *http.Request) {
	conn, err := WSUpgrader.Upgrade(w, r, nil)
	if err != nil {
		common.DebugLog("events: ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ch, cancel := Events.Subscribe()
	defer cancel()

	// Drain client frames so pings/closes are processed.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	for ev := range ch {
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(ev); err != nil {
			return
		}
	}
}
