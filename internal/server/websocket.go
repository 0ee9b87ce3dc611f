package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nupi-ai/shellboot/internal/constants"
	"github.com/nupi-ai/shellboot/internal/eventbus"
	"github.com/nupi-ai/shellboot/internal/plugins"
)

// Message types sent to WebSocket clients.
const (
	MessageHello    = "hello"
	MessageResolved = "plugins.resolved"
	MessageStatus   = "bootstrap.status"
	MessageState    = "state.changed"
)

// Message is the envelope written to WebSocket clients.
type Message struct {
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

type resolvedPayload struct {
	Scope      string            `json:"scope"`
	Pending    bool              `json:"pending"`
	Generation uint64            `json:"generation"`
	Plugins    []string          `json:"plugins"`
	Failed     map[string]string `json:"failed,omitempty"`
}

type stateChange struct {
	Action  string   `json:"action"`
	Changed []string `json:"changed"`
}

type helloPayload struct {
	ClientID string `json:"clientId"`
}

// Client is one WebSocket connection.
type Client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Hub fans broadcast messages out to all connected clients.
type Hub struct {
	logger     *log.Logger
	upgrader   websocket.Upgrader
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
}

// NewHub creates a hub accepting connections from origins approved by allow.
// Requests without an Origin header are accepted.
func NewHub(logger *log.Logger, allow func(string) bool) *Hub {
	if logger == nil {
		logger = log.Default()
	}
	h := &Hub{
		logger:     logger,
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			return allow != nil && allow(origin)
		},
	}
	return h
}

// Run handles client registration and broadcasting until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Printf("[Server] websocket client %s connected", client.id)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Printf("[Server] websocket client %s disconnected", client.id)

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					delete(h.clients, client)
					close(client.send)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Clients reports the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast queues a message for all clients. Messages are dropped when the
// hub is not running or its queue is full.
func (h *Hub) Broadcast(kind string, ts time.Time, data any) {
	payload, err := encodeMessage(kind, ts, data)
	if err != nil {
		h.logger.Printf("[Server] failed to encode %s message: %v", kind, err)
		return
	}
	select {
	case <-h.done:
	case h.broadcast <- payload:
	default:
		h.logger.Printf("[Server] broadcast queue full, dropping %s message", kind)
	}
}

// HandleWebSocket upgrades the connection and registers the client.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("[Server] websocket upgrade failed: %v", err)
		return
	}

	client := &Client{
		id:   uuid.NewString(),
		hub:  h,
		conn: conn,
		send: make(chan []byte, 256),
	}

	hello, err := encodeMessage(MessageHello, time.Now().UTC(), helloPayload{ClientID: client.id})
	if err == nil {
		client.send <- hello
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(constants.WebSocketPongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(constants.WebSocketPongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Printf("[Server] websocket error: %v", err)
			}
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(constants.WebSocketPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(constants.WebSocketWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(constants.WebSocketWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) forwardResolved(env eventbus.TypedEnvelope[plugins.Resolved]) {
	st := env.Payload.State
	s.hub.Broadcast(MessageResolved, env.Timestamp, resolvedPayload{
		Scope:      env.Payload.Scope,
		Pending:    st.Pending,
		Generation: st.Generation,
		Plugins:    st.Names(),
		Failed:     st.Failed,
	})
}

func encodeMessage(kind string, ts time.Time, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return json.Marshal(Message{Type: kind, Timestamp: ts, Data: raw})
}
