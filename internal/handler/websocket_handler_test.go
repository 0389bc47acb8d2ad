package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"pino/internal/model"
	"pino/internal/protocol"
	"pino/internal/service"
)

type wsFixture struct {
	server  *httptest.Server
	handler *WebSocketHandler
	service *service.BoardService
	port    *protocol.TestablePort
}

func newWSFixture(t *testing.T, origins ...string) *wsFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	s, port := newTestBoard(t)
	bus := NewEventBus(nil)
	s.SetEventPublisher(bus)
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	h := NewWebSocketHandler(s, bus, origins, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go bus.Start(ctx)
	go h.Start(ctx)
	require.Eventually(t, func() bool {
		bus.mutex.RLock()
		defer bus.mutex.RUnlock()
		return len(bus.subscribers) == 1
	}, time.Second, 5*time.Millisecond)

	r := gin.New()
	h.RegisterRoutes(r.Group("/ws"))
	server := httptest.NewServer(r)
	t.Cleanup(server.Close)

	return &wsFixture{server: server, handler: h, service: s, port: port}
}

func (f *wsFixture) dial(t *testing.T, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg map[string]any
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

// readUntil skips messages until one of type msgType arrives
func readUntil(t *testing.T, conn *websocket.Conn, msgType string) map[string]any {
	t.Helper()
	for {
		msg := readMessage(t, conn)
		if msg["type"] == msgType {
			return msg
		}
	}
}

func TestWebSocket_EventClient(t *testing.T) {
	f := newWSFixture(t)
	conn := f.dial(t, "/ws/events")

	msg := readMessage(t, conn)
	assert.Equal(t, "initial_status", msg["type"])
	assert.Equal(t, "IDLE", msg["data"].(map[string]any)["state"])

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "ping", "request_id": "r1"}))
	msg = readMessage(t, conn)
	assert.Equal(t, "pong", msg["type"])
	assert.Equal(t, "r1", msg["request_id"])

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type": "subscribe",
		"data": map[string]any{"topic": string(model.EventBoardConnected)},
	}))
	assert.Equal(t, "subscribe_confirmed", readMessage(t, conn)["type"])

	f.handler.BroadcastBoardEvent(model.NewBoardEvent(model.EventOperationFailed, "/dev/ttyTEST0", nil))
	require.NoError(t, f.service.Start(context.Background()))

	msg = readUntil(t, conn, "board_event")
	assert.Equal(t, string(model.EventBoardConnected), msg["data"].(map[string]any)["event_type"])

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type": "board_command",
		"data": map[string]any{"command": "status"},
	}))
	msg = readUntil(t, conn, "command_response")
	assert.Equal(t, true, msg["data"].(map[string]any)["success"])

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "jump"}))
	msg = readUntil(t, conn, "error")
	assert.Contains(t, msg["data"].(map[string]any)["error"], "unknown message type")
}

func TestWebSocket_SerialClientStreamsLines(t *testing.T) {
	f := newWSFixture(t)
	require.NoError(t, f.service.Start(context.Background()))

	conn := f.dial(t, "/ws/serial")
	f.port.AddReadData([]byte("temp=21\n"))

	msg := readUntil(t, conn, "serial_line")
	assert.Equal(t, "temp=21\n", msg["data"].(map[string]any)["line"])

	// the board is busy streaming
	_, err := f.service.ReadLine(context.Background())
	require.ErrorIs(t, err, service.ErrStreamActive)

	conn.Close()
	assert.Eventually(t, func() bool {
		_, err := f.service.ReadLine(context.Background())
		return err == nil
	}, 2*time.Second, 20*time.Millisecond)
}

func TestWebSocket_RejectsOrigin(t *testing.T) {
	f := newWSFixture(t, "http://localhost:3000")
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws/events"

	header := http.Header{"Origin": []string{"http://example.com"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header.Set("Origin", "http://localhost:3000")
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	conn.Close()
}
