package server

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Event is one mutation notification pushed to dashboard subscribers.
type Event struct {
	Type    string    `json:"type"`
	Payload any       `json:"payload,omitempty"`
	Time    time.Time `json:"ts"`
}

// EventHub fans mutation events out to WebSocket subscribers. Publishing
// never blocks: a subscriber that cannot keep up is dropped.
type EventHub struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu   sync.Mutex
	subs map[*subscriber]struct{}
}

type subscriber struct {
	conn *websocket.Conn
	send chan Event
}

// NewEventHub creates an idle hub; subscribers attach via ServeHTTP.
func NewEventHub(logger *slog.Logger) *EventHub {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventHub{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The dashboard runs on a different origin in development.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		subs: make(map[*subscriber]struct{}),
	}
}

// Publish broadcasts an event to all current subscribers.
func (h *EventHub) Publish(eventType string, payload any) {
	event := Event{Type: eventType, Payload: payload, Time: time.Now().UTC()}

	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		select {
		case sub.send <- event:
		default:
			// Slow consumer: close it rather than stall mutations.
			h.logger.Warn("dropping slow event subscriber")
			close(sub.send)
			delete(h.subs, sub)
		}
	}
}

// ServeHTTP upgrades the connection and streams events until the client
// goes away.
func (h *EventHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "err", err)
		return
	}

	sub := &subscriber{conn: conn, send: make(chan Event, 32)}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("event subscriber connected", "remote", conn.RemoteAddr())

	go h.writeLoop(sub)
	h.readLoop(sub)
}

func (h *EventHub) writeLoop(sub *subscriber) {
	for event := range sub.send {
		sub.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := sub.conn.WriteJSON(event); err != nil {
			break
		}
	}
	sub.conn.Close()
}

// readLoop drains client frames so pings are answered and a close frame
// tears the subscriber down.
func (h *EventHub) readLoop(sub *subscriber) {
	defer func() {
		h.mu.Lock()
		if _, ok := h.subs[sub]; ok {
			close(sub.send)
			delete(h.subs, sub)
		}
		h.mu.Unlock()
		sub.conn.Close()
	}()

	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Close disconnects all subscribers.
func (h *EventHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		close(sub.send)
		delete(h.subs, sub)
	}
}
