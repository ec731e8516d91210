package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"tourguide/pkg/narration"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
	wsSendBuffer = 16
)

// Message is a frame sent to WebSocket clients.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type wsClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// Hub streams engine state changes to connected WebSocket clients.
type Hub struct {
	snapshot func() narration.Snapshot
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]*wsClient
}

// NewHub creates a hub. snapshot is sent to each client on connect.
func NewHub(snapshot func() narration.Snapshot) *Hub {
	return &Hub{
		snapshot: snapshot,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The UI is served from the phone's own origin or a dev server.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[string]*wsClient),
	}
}

// Publish queues a status frame for every client. It never blocks: a client
// whose buffer is full misses the frame and catches up on the next one.
// It is suitable as a narration.Engine observer.
func (h *Hub) Publish(s narration.Snapshot) {
	h.broadcast(Message{Type: "status", Data: NewStatusResponse(s)})
}

func (h *Hub) broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Warn("WebSocket marshal error", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		select {
		case c.send <- data:
		default:
			slog.Debug("WebSocket client slow, frame dropped", "client", c.id)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades GET /api/ws.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Debug("WebSocket upgrade failed", "error", err)
		return
	}

	c := &wsClient{id: uuid.NewString(), conn: conn, send: make(chan []byte, wsSendBuffer)}

	// The initial frame is queued before the client becomes visible to
	// broadcast, so no published frame can overtake it.
	h.mu.Lock()
	if h.snapshot != nil {
		if data, err := json.Marshal(Message{Type: "status", Data: NewStatusResponse(h.snapshot())}); err == nil {
			c.send <- data
		}
	}
	h.clients[c.id] = c
	count := len(h.clients)
	h.mu.Unlock()
	slog.Info("WebSocket client connected", "client", c.id, "remote_addr", r.RemoteAddr, "clients", count)

	ctx, cancel := context.WithCancel(context.Background())
	go h.writePump(ctx, c)
	h.readPump(c)
	cancel()

	h.mu.Lock()
	delete(h.clients, c.id)
	count = len(h.clients)
	h.mu.Unlock()
	conn.Close()
	slog.Info("WebSocket client disconnected", "client", c.id, "clients", count)
}

// readPump consumes control frames until the client goes away.
func (h *Hub) readPump(c *wsClient) {
	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var cmd struct {
			Type string `json:"type"`
		}
		if json.Unmarshal(msg, &cmd) != nil {
			continue
		}
		if cmd.Type == "ping" {
			if data, err := json.Marshal(Message{Type: "pong", Data: time.Now().Unix()}); err == nil {
				select {
				case c.send <- data:
				default:
				}
			}
		}
	}
}

func (h *Hub) writePump(ctx context.Context, c *wsClient) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(wsWriteWait))
			return
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				slog.Debug("WebSocket write error", "client", c.id, "error", err)
				c.conn.Close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.conn.Close()
				return
			}
		}
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		c.conn.Close()
		delete(h.clients, id)
	}
}
