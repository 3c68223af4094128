package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/atmx/gts-market/internal/metrics"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 32
)

type client struct {
	conn   *websocket.Conn
	player uuid.UUID
	send   chan []byte
}

type envelope struct {
	to   uuid.UUID // uuid.Nil broadcasts
	data []byte
}

// Hub keeps one WebSocket connection per chat client and routes personal
// messages by player id. Broadcasts skip players for whom ignoring
// returns true.
type Hub struct {
	ignoring func(uuid.UUID) bool

	clients    map[*client]bool
	outbound   chan envelope
	register   chan *client
	unregister chan *client
	quit       chan struct{}
	mu         sync.RWMutex
}

// NewHub creates a hub. ignoring may be nil.
func NewHub(ignoring func(uuid.UUID) bool) *Hub {
	if ignoring == nil {
		ignoring = func(uuid.UUID) bool { return false }
	}
	return &Hub{
		ignoring:   ignoring,
		clients:    make(map[*client]bool),
		outbound:   make(chan envelope, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		quit:       make(chan struct{}),
	}
}

// Run is the hub's event loop. It returns when ctx is done, closing every
// connection.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.quit)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			metrics.WebSocketClients.Set(0)
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			n := len(h.clients)
			h.mu.Unlock()
			metrics.WebSocketClients.Set(float64(n))
			slog.Info("ws client connected", "player", c.player, "total", n)

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			metrics.WebSocketClients.Set(float64(n))

		case env := <-h.outbound:
			h.mu.Lock()
			for c := range h.clients {
				if env.to != uuid.Nil && c.player != env.to {
					continue
				}
				if env.to == uuid.Nil && h.ignoring(c.player) {
					continue
				}
				select {
				case c.send <- env.data:
				default:
					// Slow consumer; drop it rather than stall the market.
					delete(h.clients, c)
					close(c.send)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) Tell(player uuid.UUID, msg Message) {
	msg.Player = player.String()
	h.enqueue(player, msg)
}

func (h *Hub) Broadcast(msg Message) {
	h.enqueue(uuid.Nil, msg)
}

func (h *Hub) enqueue(to uuid.UUID, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case h.outbound <- envelope{to: to, data: data}:
	default:
		// Drop if buffer full to avoid blocking trade execution.
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// HandleWS upgrades GET /api/v1/ws?player=<uuid>. Without a player id the
// connection only receives broadcasts.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	var player uuid.UUID
	if raw := r.URL.Query().Get("player"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			http.Error(w, "invalid player id", http.StatusBadRequest)
			return
		}
		player = id
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("ws upgrade failed", "err", err)
		return
	}

	c := &client{conn: conn, player: player, send: make(chan []byte, sendBuffer)}
	select {
	case h.register <- c:
	case <-h.quit:
		conn.Close()
		return
	}

	go h.writePump(c)
	go h.readPump(c)
}

// readPump keeps the connection alive and detects disconnects.
func (h *Hub) readPump(c *client) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.quit:
		}
	}()
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump is the only writer on the connection.
func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
