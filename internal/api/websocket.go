package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/csvgate/csvgate/core/dataset"
	"github.com/csvgate/csvgate/internal/logging"
)

var (
	// GlobalHub is the shared WebSocket hub for broadcasting refresh events.
	GlobalHub *Hub

	// upgrader applies the same origin policy as the CORS middleware: an
	// empty allowlist admits every origin.
	upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return originAllowed(r.Header.Get("Origin"), ServerConfig.AllowedOrigins)
		},
	}
)

// originAllowed reports whether origin may open a websocket. A missing
// Origin header means a non-browser client and is always admitted.
// "*.example.com" admits any subdomain of example.com.
func originAllowed(origin string, allowed []string) bool {
	if len(allowed) == 0 || origin == "" {
		return true
	}
	for _, candidate := range allowed {
		if candidate == "*" || candidate == origin {
			return true
		}
		if strings.HasPrefix(candidate, "*.") && strings.HasSuffix(origin, candidate[1:]) {
			return true
		}
	}
	return false
}

// ProgressMessage is a refresh lifecycle event sent via WebSocket.
type ProgressMessage struct {
	Type      string                 `json:"type"`      // "progress", "complete", "error"
	Operation string                 `json:"operation"` // "refresh"
	Stage     string                 `json:"stage,omitempty"`
	Rows      int64                  `json:"rows,omitempty"`
	Message   string                 `json:"message,omitempty"`
	RefreshID string                 `json:"refresh_id,omitempty"`
	Timestamp string                 `json:"timestamp"` // ISO 8601 timestamp
	Data      map[string]interface{} `json:"data,omitempty"`
}

// Client represents a WebSocket client connection.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Hub maintains active WebSocket connections and broadcasts messages.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
}

// NewHub creates a new WebSocket hub.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run starts the hub's main loop to handle client registration and
// broadcasting.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			logging.WebSocketEvent("client_connected", len(h.clients))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			logging.WebSocketEvent("client_disconnected", len(h.clients))

		case message := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Client channel full, disconnect
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Broadcast sends a progress message to all connected clients.
func (h *Hub) Broadcast(msg ProgressMessage) {
	// Set timestamp if not already set
	if msg.Timestamp == "" {
		msg.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}

	data, err := json.Marshal(msg)
	if err != nil {
		logging.Error("failed to marshal progress message", "error", err)
		return
	}

	select {
	case h.broadcast <- data:
	default:
		logging.Warn("broadcast channel full, dropping message")
	}
}

// BroadcastProgress sends a refresh progress update to all connected
// clients.
func BroadcastProgress(refreshID, stage, message string) {
	if GlobalHub == nil {
		return
	}

	GlobalHub.Broadcast(ProgressMessage{
		Type:      "progress",
		Operation: "refresh",
		Stage:     stage,
		Message:   message,
		RefreshID: refreshID,
	})
}

// BroadcastComplete announces a finished refresh with its headline numbers.
func BroadcastComplete(refreshID string, meta dataset.Metadata, stats dataset.LoadStats) {
	if GlobalHub == nil {
		return
	}

	GlobalHub.Broadcast(ProgressMessage{
		Type:      "complete",
		Operation: "refresh",
		Stage:     "swapped",
		Rows:      meta.TotalRows,
		Message:   fmt.Sprintf("Loaded %d rows from %s", meta.TotalRows, meta.SourceName),
		RefreshID: refreshID,
		Data: map[string]interface{}{
			"fingerprint": meta.Fingerprint,
			"skipped":     stats.Skipped,
			"deduped":     stats.Deduped,
			"duration_ms": stats.Took.Milliseconds(),
		},
	})
}

// BroadcastError reports a failed refresh.
func BroadcastError(refreshID, message string) {
	if GlobalHub == nil {
		return
	}

	GlobalHub.Broadcast(ProgressMessage{
		Type:      "error",
		Operation: "refresh",
		Message:   message,
		RefreshID: refreshID,
	})
}

// hubEvents forwards refresh lifecycle transitions from the gateway to
// websocket clients.
type hubEvents struct{}

func (hubEvents) RefreshStarted(id, source string) {
	BroadcastProgress(id, "loading", "Reloading "+filepath.Base(source))
}

func (hubEvents) RefreshFinished(id string, meta dataset.Metadata, stats dataset.LoadStats) {
	BroadcastComplete(id, meta, stats)
}

func (hubEvents) RefreshFailed(id string, err error) {
	BroadcastError(id, err.Error())
}

// readPump reads messages from the WebSocket connection. Clients have
// nothing to say; reading only services pongs and surfaces disconnects.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, _, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Error("websocket unexpected close", "error", err)
			}
			break
		}
	}
}

// writePump writes messages to the WebSocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Flush any additional queued messages
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleWebSocket upgrades HTTP connections to WebSocket and registers
// clients with the hub.
func handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if GlobalHub == nil {
		respondError(w, http.StatusInternalServerError, "WebSocket hub not initialized")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Error("websocket upgrade failed", "error", err)
		return
	}

	client := &Client{
		hub:  GlobalHub,
		conn: conn,
		send: make(chan []byte, 256),
	}

	client.hub.register <- client

	// Start goroutines for reading and writing
	go client.writePump()
	go client.readPump()
}
