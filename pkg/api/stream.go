package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/harun/vigil/pkg/notification"
	"github.com/rs/zerolog"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = 30 * time.Second
	sendBuffer   = 64
)

// StreamMessage is one frame on the event stream
type StreamMessage struct {
	Type      string                 `json:"type"`
	Event     notification.EventType `json:"event,omitempty"`
	Seq       int64                  `json:"seq,omitempty"`
	Timestamp int64                  `json:"timestamp"`
	ClientID  string                 `json:"client_id,omitempty"`
	Data      *notification.Event    `json:"data,omitempty"`
}

// Client is a connected stream subscriber
type Client struct {
	ID          string
	IPAddress   string
	ConnectedAt time.Time

	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *Client) close() {
	c.once.Do(func() { close(c.send) })
}

// Hub fans manager events out to websocket clients. Each client has its
// own writer goroutine; a client that cannot keep up is disconnected
// rather than allowed to stall the publisher.
type Hub struct {
	upgrader websocket.Upgrader
	logger   zerolog.Logger
	seq      uint64

	mu      sync.RWMutex
	clients map[string]*Client
	closed  bool
}

// NewHub creates a hub accepting upgrades from the given origins
func NewHub(origins []string, logger zerolog.Logger) *Hub {
	allowed := make(map[string]bool, len(origins))
	wildcard := false
	for _, o := range origins {
		if o == "*" {
			wildcard = true
		}
		allowed[o] = true
	}

	return &Hub{
		logger:  logger.With().Str("subcomponent", "stream").Logger(),
		clients: make(map[string]*Client),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return wildcard || origin == "" || allowed[origin]
			},
		},
	}
}

// Count returns the number of connected clients
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and registers the client
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	closed := h.closed
	h.mu.RUnlock()
	if closed {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "server is shutting down", Code: "shutting_down"})
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("Failed to upgrade connection")
		return
	}

	client := &Client{
		ID:          uuid.New().String(),
		IPAddress:   r.RemoteAddr,
		ConnectedAt: time.Now(),
		conn:        conn,
		send:        make(chan []byte, sendBuffer),
	}

	hello, _ := json.Marshal(StreamMessage{Type: "hello", ClientID: client.ID, Timestamp: time.Now().UnixMilli()})
	client.send <- hello

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[client.ID] = client
	h.mu.Unlock()

	h.logger.Info().
		Str("clientId", client.ID).
		Str("ip", client.IPAddress).
		Msg("Stream client connected")

	go h.writePump(client)
	go h.readPump(client)
}

// Publish delivers ev to every connected client
func (h *Hub) Publish(ev notification.Event) {
	msg := StreamMessage{
		Type:      "event",
		Event:     ev.Type,
		Seq:       int64(atomic.AddUint64(&h.seq, 1)),
		Timestamp: ev.Timestamp.UnixMilli(),
		Data:      &ev,
	}

	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Str("event", string(ev.Type)).Msg("Failed to marshal event")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	delivered := 0
	for id, c := range h.clients {
		select {
		case c.send <- data:
			delivered++
		default:
			h.logger.Warn().Str("clientId", id).Str("event", string(ev.Type)).Msg("Stream client too slow, disconnecting")
			delete(h.clients, id)
			c.close()
		}
	}

	h.logger.Debug().
		Str("event", string(ev.Type)).
		Int64("seq", msg.Seq).
		Int("delivered", delivered).
		Msg("Event published")
}

// Close disconnects every client and refuses new ones
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for id, c := range h.clients {
		delete(h.clients, id)
		c.close()
	}
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c.ID]; ok {
		delete(h.clients, c.ID)
		c.close()
	}
	h.mu.Unlock()
}

func (h *Hub) writePump(c *Client) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.logger.Debug().Err(err).Str("clientId", c.ID).Msg("Stream write failed")
				h.remove(c)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.remove(c)
				return
			}
		}
	}
}

// readPump only watches for disconnects; the stream is one-way
func (h *Hub) readPump(c *Client) {
	defer func() {
		h.remove(c)
		h.logger.Info().Str("clientId", c.ID).Msg("Stream client disconnected")
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug().Err(err).Str("clientId", c.ID).Msg("Stream read error")
			}
			return
		}
	}
}
