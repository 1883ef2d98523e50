// Package ws pushes conversation events to WebSocket clients.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/xiaot623/gogo/roundtable/internal/domain"
	"github.com/xiaot623/gogo/roundtable/internal/metrics"
)

// ErrHubClosed is returned when registering with a stopped hub.
var ErrHubClosed = errors.New("hub is closed")

// ErrBufferFull is returned when a connection's send buffer is full.
var ErrBufferFull = errors.New("send buffer full")

const sendBuffer = 256

// Connection is a single WebSocket client.
type Connection struct {
	ID             string
	ConversationID string
	Conn           *websocket.Conn

	send    chan []byte
	writeMu sync.Mutex

	sendMu sync.Mutex
	closed bool
}

// trySend queues data without blocking. It fails once the hub has released the connection.
func (c *Connection) trySend(data []byte) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return ErrHubClosed
	}
	select {
	case c.send <- data:
		return nil
	default:
		return ErrBufferFull
	}
}

func (c *Connection) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// WriteMessage writes a message to the connection with proper locking.
func (c *Connection) WriteMessage(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.Conn.WriteMessage(messageType, data)
}

// Close closes the underlying socket.
func (c *Connection) Close() error {
	return c.Conn.Close()
}

// Hub fans conversation events out to the connections subscribed to them.
// It implements orchestrator.Publisher.
type Hub struct {
	connections   map[string]*Connection
	conversations map[string]map[string]bool

	register   chan *Connection
	unregister chan *Connection
	broadcast  chan domain.Event
	done       chan struct{}

	mu      sync.RWMutex
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewHub creates a hub. Call Run to start it.
func NewHub(m *metrics.Metrics, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		connections:   make(map[string]*Connection),
		conversations: make(map[string]map[string]bool),
		register:      make(chan *Connection),
		unregister:    make(chan *Connection),
		broadcast:     make(chan domain.Event, sendBuffer),
		done:          make(chan struct{}),
		metrics:       m,
		logger:        logger,
	}
}

// Run processes registrations and broadcasts until ctx is cancelled, then
// releases every connection.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	log := h.logger.Sugar()
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for id, conn := range h.connections {
				conn.closeSend()
				delete(h.connections, id)
				h.gauge(-1)
			}
			h.conversations = make(map[string]map[string]bool)
			h.mu.Unlock()
			return

		case conn := <-h.register:
			h.mu.Lock()
			h.connections[conn.ID] = conn
			if conn.ConversationID != "" {
				h.bind(conn, conn.ConversationID)
			}
			h.mu.Unlock()
			h.gauge(1)
			log.Debugw("connection registered", "connection_id", conn.ID, "conversation_id", conn.ConversationID)

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.connections[conn.ID]; ok {
				delete(h.connections, conn.ID)
				h.unbind(conn)
				conn.closeSend()
				h.gauge(-1)
			}
			h.mu.Unlock()
			log.Debugw("connection unregistered", "connection_id", conn.ID)

		case evt := <-h.broadcast:
			data, err := json.Marshal(evt)
			if err != nil {
				log.Warnw("failed to encode event", "type", evt.Type, "error", err)
				continue
			}
			h.mu.RLock()
			for connID := range h.conversations[evt.ConversationID] {
				conn, ok := h.connections[connID]
				if !ok {
					continue
				}
				if err := conn.trySend(data); errors.Is(err, ErrBufferFull) {
					log.Warnw("connection buffer full, closing", "connection_id", connID, "conversation_id", evt.ConversationID)
					go h.Unregister(conn)
				}
			}
			h.mu.RUnlock()
		}
	}
}

func (h *Hub) gauge(delta float64) {
	if h.metrics != nil {
		h.metrics.WSConnections.Add(delta)
	}
}

// NewConnection wraps a socket, optionally subscribed to a conversation.
func (h *Hub) NewConnection(ws *websocket.Conn, conversationID string) *Connection {
	return &Connection{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		Conn:           ws,
		send:           make(chan []byte, sendBuffer),
	}
}

// Register adds a connection to the hub.
func (h *Hub) Register(conn *Connection) error {
	select {
	case h.register <- conn:
		return nil
	case <-h.done:
		return ErrHubClosed
	}
}

// Unregister removes a connection and closes its send channel.
func (h *Hub) Unregister(conn *Connection) {
	select {
	case h.unregister <- conn:
	case <-h.done:
	}
}

// Subscribe moves a connection to another conversation.
func (h *Hub) Subscribe(conn *Connection, conversationID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unbind(conn)
	h.bind(conn, conversationID)
}

// bind and unbind require h.mu.
func (h *Hub) bind(conn *Connection, conversationID string) {
	conn.ConversationID = conversationID
	if h.conversations[conversationID] == nil {
		h.conversations[conversationID] = make(map[string]bool)
	}
	h.conversations[conversationID][conn.ID] = true
}

func (h *Hub) unbind(conn *Connection) {
	set := h.conversations[conn.ConversationID]
	if set == nil {
		return
	}
	delete(set, conn.ID)
	if len(set) == 0 {
		delete(h.conversations, conn.ConversationID)
	}
}

// Publish queues an event for the conversation's subscribers. Events are
// dropped when the hub is stopped or its queue is full.
func (h *Hub) Publish(evt domain.Event) {
	select {
	case h.broadcast <- evt:
	case <-h.done:
	default:
		h.logger.Sugar().Warnw("event queue full, dropping event", "type", evt.Type, "conversation_id", evt.ConversationID)
	}
}

// SendJSON queues v for a single connection.
func (h *Hub) SendJSON(conn *Connection, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return conn.trySend(data)
}

// ConnectionCount returns the number of registered connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// HasSubscribers reports whether any connection follows the conversation.
func (h *Hub) HasSubscribers(conversationID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conversations[conversationID]) > 0
}

func control(typ, conversationID string) ControlMessage {
	return ControlMessage{Type: typ, Ts: time.Now().UnixMilli(), ConversationID: conversationID}
}
