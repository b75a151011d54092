// Package ws provides a lightweight WebSocket pub/sub hub.
// The tracker publishes progress events through the hub and every connected
// client receives them in real time. Retained messages are replayed to
// clients that connect late, so `playctl watch` started mid-download still
// sees the progress so far.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// DefaultRetain is the number of retained messages replayed to new clients.
const DefaultRetain = 64

type message struct {
	data   []byte
	retain bool
}

// Hub manages WebSocket client connections and fans out broadcast messages
// to all of them. It is safe for concurrent use; register, unregister, and
// broadcast all go through channels.
type Hub struct {
	clients    map[*websocket.Conn]struct{}
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	broadcast  chan message
	upgrader   websocket.Upgrader

	retain   int
	retained [][]byte
	count    atomic.Int64
}

// NewHub allocates a hub with buffered channels.
// Call Run in a goroutine to start the event loop.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*websocket.Conn]struct{}),
		register:   make(chan *websocket.Conn, 16),
		unregister: make(chan *websocket.Conn, 16),
		broadcast:  make(chan message, 256),
		retain:     DefaultRetain,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	return int(h.count.Load())
}

// Run processes registrations, unregistrations, broadcasts, and keepalive
// pings in a single select loop. It closes all clients when ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	ping := time.NewTicker(20 * time.Second)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				_ = c.Close()
			}
			h.count.Store(0)
			return

		case c := <-h.register:
			ok := true
			for _, msg := range h.retained {
				if !h.write(c, websocket.TextMessage, msg, 3*time.Second) {
					ok = false
					break
				}
			}
			if ok {
				h.clients[c] = struct{}{}
			}

		case c := <-h.unregister:
			h.drop(c)

		case msg := <-h.broadcast:
			if msg.retain {
				h.keep(msg.data)
			}
			for c := range h.clients {
				if !h.write(c, websocket.TextMessage, msg.data, 3*time.Second) {
					h.drop(c)
				}
			}

		case <-ping.C:
			for c := range h.clients {
				if !h.write(c, websocket.PingMessage, nil, 2*time.Second) {
					h.drop(c)
				}
			}
		}
		h.count.Store(int64(len(h.clients)))
	}
}

func (h *Hub) keep(data []byte) {
	h.retained = append(h.retained, data)
	if len(h.retained) > h.retain {
		h.retained = h.retained[len(h.retained)-h.retain:]
	}
}

func (h *Hub) write(c *websocket.Conn, kind int, data []byte, timeout time.Duration) bool {
	_ = c.SetWriteDeadline(time.Now().Add(timeout))
	if err := c.WriteMessage(kind, data); err != nil {
		_ = c.Close()
		return false
	}
	return true
}

func (h *Hub) drop(c *websocket.Conn) {
	delete(h.clients, c)
	_ = c.Close()
}

// Handler returns an http.Handler that upgrades incoming requests to
// WebSocket connections and registers them with the hub.
func (h *Hub) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade has already written the error response.
			return
		}
		h.register <- conn

		go func() {
			defer func() { h.unregister <- conn }()
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			conn.SetPongHandler(func(string) error {
				_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
				return nil
			})

			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	})
}

// BroadcastJSON marshals v to JSON and queues it for delivery to all
// connected clients. If the broadcast channel is full the message is
// silently dropped to avoid blocking the caller.
func (h *Hub) BroadcastJSON(v any) {
	h.send(v, false)
}

// PublishJSON is BroadcastJSON for messages that are also retained and
// replayed to clients connecting later.
func (h *Hub) PublishJSON(v any) {
	h.send(v, true)
}

func (h *Hub) send(v any, retain bool) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	select {
	case h.broadcast <- message{data: b, retain: retain}:
	default:
	}
}
