package monitor

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/muurk/midealan/adapter"
	"github.com/muurk/midealan/internal/logging"
)

const (
	clientSendBuffer = 16
	writeWait        = 10 * time.Second
)

// Event is one status update broadcast to every connected dashboard
// client, JSON-encoded before it reaches the wire.
type Event struct {
	DeviceID uint64        `json:"device_id"`
	Name     string        `json:"name,omitempty"`
	Status   adapter.Status `json:"status"`
	Time     time.Time     `json:"time"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans Events out to every registered client. The zero value is not
// usable; construct one with NewHub and start its loop with Run.
type Hub struct {
	logger *zap.Logger

	register   chan *client
	unregister chan *client
	broadcast  chan Event

	mu      sync.Mutex
	clients map[*client]bool
}

// NewHub constructs a Hub. Pass the returned Hub's Run method to a
// goroutine before accepting any connections.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		logger:     logger,
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan Event, 64),
		clients:    make(map[*client]bool),
	}
}

// Run is the Hub's single broadcast loop. It blocks until ctx is
// cancelled, at which point every client connection is closed.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()

		case ev := <-h.broadcast:
			data, err := json.Marshal(ev)
			if err != nil {
				h.logger.Error("monitor: marshal event", zap.Error(err))
				continue
			}
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- data:
				default:
					// client too slow to drain; drop it rather than block the hub
					delete(h.clients, c)
					close(c.send)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Publish enqueues a status update for broadcast. It never blocks the
// caller for more than a full broadcast channel, which only happens
// under sustained overload.
func (h *Hub) Publish(deviceID uint64, name string, status adapter.Status) {
	h.broadcast <- Event{DeviceID: deviceID, Name: name, Status: status, Time: time.Now()}
}

// Observer returns a session.Observer-shaped callback (func(adapter.Status))
// bound to one device identity, suitable for session.Session.RegisterObserver.
func (h *Hub) Observer(deviceID uint64, name string) func(adapter.Status) {
	return func(status adapter.Status) {
		h.Publish(deviceID, name, status)
	}
}

func (h *Hub) addClient(conn *websocket.Conn) *client {
	c := &client{conn: conn, send: make(chan []byte, clientSendBuffer)}
	logging.LogConnection(conn.RemoteAddr().String(), "dashboard_connected")
	h.register <- c
	return c
}

func (h *Hub) removeClient(c *client) {
	logging.LogConnection(c.conn.RemoteAddr().String(), "dashboard_disconnected")
	h.unregister <- c
}

// writePump drains c.send to the underlying WebSocket connection until
// the channel is closed by the hub or a write fails.
func (h *Hub) writePump(c *client) {
	defer c.conn.Close()
	remoteAddr := c.conn.RemoteAddr().String()
	for data := range c.send {
		logging.LogWebSocketMessage(remoteAddr, "outbound", websocket.TextMessage, data)
		if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			return
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// readPump discards inbound messages (this protocol is publish-only to
// clients) but must run so gorilla/websocket services control frames
// (ping/pong, close) and detects a dropped connection promptly.
func (h *Hub) readPump(c *client) {
	defer h.removeClient(c)
	remoteAddr := c.conn.RemoteAddr().String()
	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		logging.LogWebSocketMessage(remoteAddr, "inbound", msgType, data)
	}
}
