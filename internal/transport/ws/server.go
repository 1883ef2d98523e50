package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/xiaot623/gogo/roundtable/internal/domain"
)

// ConversationLookup checks that a conversation exists before subscribing.
type ConversationLookup interface {
	GetConversation(ctx context.Context, id string) (*domain.Conversation, error)
}

// Options configures keepalive and limits.
type Options struct {
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	PingInterval   time.Duration
	MaxMessageSize int64
}

func (o *Options) setDefaults() {
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = 60 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.PingInterval <= 0 || o.PingInterval >= o.ReadTimeout {
		o.PingInterval = o.ReadTimeout * 9 / 10
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = 64 * 1024
	}
}

// Server handles WebSocket connections.
type Server struct {
	hub      *Hub
	lookup   ConversationLookup
	opts     Options
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewServer creates a new WebSocket server.
func NewServer(h *Hub, lookup ConversationLookup, opts Options, logger *zap.Logger) *Server {
	opts.setDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		hub:    h,
		lookup: lookup,
		opts:   opts,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// HandleWebSocket upgrades GET /v1/ws?conversation_id=... and starts the pumps.
func (s *Server) HandleWebSocket(c echo.Context) error {
	conversationID := c.QueryParam("conversation_id")
	if conversationID != "" {
		if _, err := s.lookup.GetConversation(c.Request().Context(), conversationID); err != nil {
			return c.JSON(domain.HTTPStatus(err), map[string]string{"error": err.Error()})
		}
	}

	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.logger.Sugar().Warnw("failed to upgrade websocket", "error", err)
		return nil
	}

	conn := s.hub.NewConnection(ws, conversationID)
	if err := s.hub.Register(conn); err != nil {
		_ = ws.Close()
		return nil
	}
	ws.SetReadLimit(s.opts.MaxMessageSize)

	go s.writePump(conn)
	go s.readPump(conn)

	if conversationID != "" {
		_ = s.hub.SendJSON(conn, control(TypeSubscribed, conversationID))
	}
	return nil
}

func (s *Server) readPump(conn *Connection) {
	defer func() {
		s.hub.Unregister(conn)
		_ = conn.Close()
	}()

	_ = conn.Conn.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout))
	conn.Conn.SetPongHandler(func(string) error {
		return conn.Conn.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout))
	})

	for {
		_, message, err := conn.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.logger.Sugar().Warnw("websocket read failed", "connection_id", conn.ID, "error", err)
			}
			return
		}
		s.handleMessage(conn, message)
	}
}

func (s *Server) writePump(conn *Connection) {
	ticker := time.NewTicker(s.opts.PingInterval)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.send:
			_ = conn.Conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = conn.Conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) handleMessage(conn *Connection, data []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.sendError(conn, ErrorCodeInvalidMessage, "invalid JSON message")
		return
	}

	switch msg.Type {
	case TypeSubscribe:
		if msg.ConversationID == "" {
			s.sendError(conn, ErrorCodeInvalidMessage, "conversation_id is required")
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.WriteTimeout)
		_, err := s.lookup.GetConversation(ctx, msg.ConversationID)
		cancel()
		if err != nil {
			s.sendError(conn, ErrorCodeNotFound, err.Error())
			return
		}
		s.hub.Subscribe(conn, msg.ConversationID)
		_ = s.hub.SendJSON(conn, control(TypeSubscribed, msg.ConversationID))
	default:
		s.sendError(conn, ErrorCodeInvalidMessage, "unknown message type: "+msg.Type)
	}
}

func (s *Server) sendError(conn *Connection, code, message string) {
	m := control(TypeError, conn.ConversationID)
	m.Code = code
	m.Message = message
	_ = s.hub.SendJSON(conn, m)
}
