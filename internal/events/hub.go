// Package events pushes state changes to connected pages over websockets.
package events

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Type names an event.
type Type string

const (
	// ArtifactLoading carries the progress fragment of an artifact being
	// filled in for the first time or after an error.
	ArtifactLoading Type = "artifact.loading"
	// ArtifactUpdated carries the replacement content of one mount point.
	ArtifactUpdated Type = "artifact.updated"
	// ArtifactFailed reports a regeneration that left the artifact as it was.
	// Fragment, when set, restores a placeholder that showed progress.
	ArtifactFailed Type = "artifact.failed"
	// SessionUpdated asks pages showing the session to re-render it.
	SessionUpdated Type = "session.updated"
	SessionDeleted Type = "session.deleted"
	// Notice is a one-time user-visible message.
	Notice Type = "notice"
)

// Event is the JSON message sent to pages.
type Event struct {
	Type        Type   `json:"type"`
	SessionID   string `json:"session_id,omitempty"`
	ArtifactID  string `json:"artifact_id,omitempty"`
	Description string `json:"description,omitempty"`
	MountID     string `json:"mount_id,omitempty"`
	HTML        string `json:"html,omitempty"`
	Fragment    string `json:"fragment,omitempty"`
	BadgeMS     int64  `json:"badge_ms,omitempty"`
	Message     string `json:"message,omitempty"`
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 32
)

type subscriber struct {
	session string
	send    chan Event
}

// Hub fans events out to websocket clients and in-process subscribers.
type Hub struct {
	upgrader websocket.Upgrader

	mu     sync.Mutex
	subs   map[*subscriber]struct{}
	closed bool
}

func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 4096},
		subs:     make(map[*subscriber]struct{}),
	}
}

// Subscribe registers an in-process listener. An empty session receives
// every event. The returned func unsubscribes.
func (h *Hub) Subscribe(session string) (<-chan Event, func()) {
	sub := &subscriber{session: session, send: make(chan Event, sendBuffer)}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(sub.send)
		return sub.send, func() {}
	}
	h.subs[sub] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return sub.send, func() { once.Do(func() { h.remove(sub) }) }
}

func (h *Hub) remove(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[sub]; ok {
		delete(h.subs, sub)
		close(sub.send)
	}
}

// Publish delivers e to every matching subscriber without blocking. A
// subscriber whose buffer is full is dropped.
func (h *Hub) Publish(e Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		if sub.session != "" && e.SessionID != "" && sub.session != e.SessionID {
			continue
		}
		select {
		case sub.send <- e:
		default:
			slog.Warn("Dropping slow event subscriber", "session_id", sub.session)
			delete(h.subs, sub)
			close(sub.send)
		}
	}
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for sub := range h.subs {
		delete(h.subs, sub)
		close(sub.send)
	}
}

// ServeHTTP upgrades the request and streams events. The optional session
// query parameter limits the stream to one session.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("Websocket upgrade failed", "err", err)
		return
	}
	events, unsubscribe := h.Subscribe(r.URL.Query().Get("session"))
	slog.Debug("Event stream opened", "remote", r.RemoteAddr)

	go h.readPump(conn, unsubscribe)
	h.writePump(conn, events)
}

// readPump discards client messages and notices disconnects.
func (h *Hub) readPump(conn *websocket.Conn, unsubscribe func()) {
	defer unsubscribe()
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
}

func (h *Hub) writePump(conn *websocket.Conn, events <-chan Event) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()
	for {
		select {
		case e, ok := <-events:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			data, err := json.Marshal(e)
			if err != nil {
				slog.Error("Failed to encode event", "type", e.Type, "err", err)
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
