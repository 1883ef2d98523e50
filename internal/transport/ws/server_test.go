package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/xiaot623/gogo/roundtable/internal/domain"
	"github.com/xiaot623/gogo/roundtable/internal/metrics"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeLookup map[string]bool

func (f fakeLookup) GetConversation(_ context.Context, id string) (*domain.Conversation, error) {
	if !f[id] {
		return nil, domain.NewNotFoundError("conversation", id)
	}
	return &domain.Conversation{ID: id}, nil
}

type env struct {
	hub     *Hub
	metrics *metrics.Metrics
	url     string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	m := metrics.New()
	hub := NewHub(m, nil)
	ctx, cancel := context.WithCancel(context.Background())
	hubDone := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(hubDone)
	}()

	srv := NewServer(hub, fakeLookup{"conv_1": true, "conv_2": true}, Options{PingInterval: 50 * time.Millisecond}, nil)
	e := echo.New()
	e.GET("/v1/ws", srv.HandleWebSocket)
	ts := httptest.NewServer(e)

	t.Cleanup(func() {
		cancel()
		<-hubDone
		ts.Close()
	})
	return &env{hub: hub, metrics: m, url: "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/ws"}
}

func (e *env) dial(t *testing.T, query string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(e.url+query, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn, v interface{}) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(v))
}

func TestEventsReachOnlySubscribers(t *testing.T) {
	e := newEnv(t)
	conn := e.dial(t, "?conversation_id=conv_1")

	var ack ControlMessage
	readJSON(t, conn, &ack)
	assert.Equal(t, TypeSubscribed, ack.Type)
	assert.Equal(t, "conv_1", ack.ConversationID)
	assert.True(t, e.hub.HasSubscribers("conv_1"))
	assert.Equal(t, 1, e.hub.ConnectionCount())

	e.hub.Publish(domain.NewEvent(domain.EventTypeLoopState, "conv_2", domain.LoopStatePayload{State: domain.LoopStateRunning}))
	e.hub.Publish(domain.NewEvent(domain.EventTypeSpeakerChanged, "conv_1", domain.SpeakerPayload{ParticipantID: "gpt-4"}))

	var evt struct {
		Type           domain.EventType      `json:"type"`
		ConversationID string                `json:"conversation_id"`
		Data           domain.SpeakerPayload `json:"data"`
	}
	readJSON(t, conn, &evt)
	assert.Equal(t, domain.EventTypeSpeakerChanged, evt.Type)
	assert.Equal(t, "conv_1", evt.ConversationID)
	assert.Equal(t, "gpt-4", evt.Data.ParticipantID)
}

func TestSubscribeRebindsConnection(t *testing.T) {
	e := newEnv(t)
	conn := e.dial(t, "")

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: TypeSubscribe, ConversationID: "conv_2"}))
	var ack ControlMessage
	readJSON(t, conn, &ack)
	assert.Equal(t, TypeSubscribed, ack.Type)
	assert.Equal(t, "conv_2", ack.ConversationID)

	e.hub.Publish(domain.NewEvent(domain.EventTypeCanvasUpdated, "conv_2", map[string]int{"version": 2}))
	var evt domain.Event
	readJSON(t, conn, &evt)
	assert.Equal(t, domain.EventTypeCanvasUpdated, evt.Type)
}

func TestProtocolErrors(t *testing.T) {
	e := newEnv(t)
	conn := e.dial(t, "")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	var msg ControlMessage
	readJSON(t, conn, &msg)
	assert.Equal(t, TypeError, msg.Type)
	assert.Equal(t, ErrorCodeInvalidMessage, msg.Code)

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: TypeSubscribe, ConversationID: "conv_missing"}))
	readJSON(t, conn, &msg)
	assert.Equal(t, ErrorCodeNotFound, msg.Code)

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: "shout"}))
	readJSON(t, conn, &msg)
	assert.Equal(t, "unknown message type: shout", msg.Message)
}

func TestUnknownConversationIsRejectedBeforeUpgrade(t *testing.T) {
	e := newEnv(t)
	_, resp, err := websocket.DefaultDialer.Dial(e.url+"?conversation_id=conv_missing", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHubShutdownClosesConnections(t *testing.T) {
	m := metrics.New()
	hub := NewHub(m, nil)
	ctx, cancel := context.WithCancel(context.Background())
	hubDone := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(hubDone)
	}()

	srv := NewServer(hub, fakeLookup{"conv_1": true}, Options{}, nil)
	e := echo.New()
	e.GET("/v1/ws", srv.HandleWebSocket)
	ts := httptest.NewServer(e)
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/v1/ws?conversation_id=conv_1", nil)
	require.NoError(t, err)
	defer conn.Close()
	var ack ControlMessage
	readJSON(t, conn, &ack)

	cancel()
	<-hubDone
	assert.Equal(t, 0, hub.ConnectionCount())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNoStatusReceived), "got %v", err)

	assert.ErrorIs(t, hub.Register(hub.NewConnection(nil, "")), ErrHubClosed)
	hub.Publish(domain.NewEvent(domain.EventTypeLoopState, "conv_1", nil))
}
