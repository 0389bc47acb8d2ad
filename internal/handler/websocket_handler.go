// internal/handler/websocket_handler.go
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"pino/internal/model"
	"pino/internal/service"
	"pino/internal/utils"
)

const (
	pongWait     = 60 * time.Second
	pingInterval = 54 * time.Second
	writeWait    = 10 * time.Second
)

// WebSocketHandler streams board events and serial lines to clients. The
// line stream of the board runs while at least one serial client is
// connected.
type WebSocketHandler struct {
	upgrader     websocket.Upgrader
	connections  *ConnectionManager
	boardService *service.BoardService
	eventBus     *EventBus
	logger       *utils.ServiceLogger

	// streamMutex orders serial client counting with stream start and stop
	streamMutex sync.Mutex
}

// NewWebSocketHandler creates a new WebSocket handler. Origins not in
// allowedOrigins are rejected; "*" allows any origin.
func NewWebSocketHandler(
	boardService *service.BoardService,
	eventBus *EventBus,
	allowedOrigins []string,
	logger *zap.Logger,
) *WebSocketHandler {
	return &WebSocketHandler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		connections:  NewConnectionManager(),
		boardService: boardService,
		eventBus:     eventBus,
		logger:       utils.NewServiceLogger(logger, "websocket-handler"),
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		return slices.Contains(allowed, "*") || slices.Contains(allowed, origin)
	}
}

// RegisterRoutes registers WebSocket routes
func (h *WebSocketHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/events", h.HandleEventConnection)
	router.GET("/serial", h.HandleSerialConnection)
}

// Start forwards bus events to the connected clients until ctx is done
func (h *WebSocketHandler) Start(ctx context.Context) {
	events, unsubscribe := h.eventBus.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			h.BroadcastBoardEvent(event)
		}
	}
}

// HandleEventConnection handles board event WebSocket connections
func (h *WebSocketHandler) HandleEventConnection(c *gin.Context) {
	client, ok := h.upgrade(c, ClientTypeEvents)
	if !ok {
		return
	}

	h.connections.Register(client)
	h.logger.Info("Event WebSocket client connected",
		zap.String("client_id", client.ID),
		zap.String("remote_addr", client.RemoteAddr),
	)

	h.sendMessage(client, &WebSocketMessage{
		Type:      "initial_status",
		Data:      h.boardService.Status(),
		Timestamp: time.Now(),
	})

	go h.handleClientRead(client)
	go h.handleClientWrite(client)
}

// HandleSerialConnection handles serial line WebSocket connections. The
// first client starts the line stream.
func (h *WebSocketHandler) HandleSerialConnection(c *gin.Context) {
	client, ok := h.upgrade(c, ClientTypeSerial)
	if !ok {
		return
	}

	h.streamMutex.Lock()
	n := h.connections.Register(client)
	var streamErr error
	if n == 1 {
		streamErr = h.boardService.StartLineStream(context.Background())
	}
	h.streamMutex.Unlock()

	h.logger.Info("Serial WebSocket client connected",
		zap.String("client_id", client.ID),
		zap.Int("serial_clients", n),
	)
	if streamErr != nil {
		h.logger.Warn("Failed to start serial line stream", zap.Error(streamErr))
		h.sendError(client, fmt.Sprintf("failed to start line stream: %v", streamErr))
	}

	go h.handleClientRead(client)
	go h.handleClientWrite(client)
}

func (h *WebSocketHandler) upgrade(c *gin.Context, clientType string) (*Client, bool) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket connection", zap.Error(err))
		return nil, false
	}

	return &Client{
		ID:          uuid.New().String(),
		Connection:  conn,
		Send:        make(chan []byte, 256),
		Type:        clientType,
		UserAgent:   c.Request.UserAgent(),
		RemoteAddr:  c.Request.RemoteAddr,
		ConnectedAt: time.Now(),
	}, true
}

// disconnect unregisters client and stops the line stream after the last
// serial client
func (h *WebSocketHandler) disconnect(client *Client) {
	h.streamMutex.Lock()
	defer h.streamMutex.Unlock()

	remaining, ok := h.connections.Unregister(client)
	if !ok {
		return
	}
	h.logger.Info("WebSocket client disconnected",
		zap.String("client_id", client.ID),
		zap.String("type", client.Type),
	)
	if client.Type == ClientTypeSerial && remaining == 0 {
		h.boardService.StopLineStream()
	}
}

// handleClientRead handles reading messages from WebSocket client
func (h *WebSocketHandler) handleClientRead(client *Client) {
	defer func() {
		h.disconnect(client)
		client.Connection.Close()
	}()

	client.Connection.SetReadDeadline(time.Now().Add(pongWait))
	client.Connection.SetPongHandler(func(string) error {
		client.Connection.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, messageBytes, err := client.Connection.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Error("WebSocket read error",
					zap.Error(err),
					zap.String("client_id", client.ID),
				)
			}
			return
		}

		var message WebSocketMessage
		if err := json.Unmarshal(messageBytes, &message); err != nil {
			h.sendError(client, "invalid message")
			continue
		}

		h.handleClientMessage(client, &message)
	}
}

// handleClientWrite handles writing messages to WebSocket client
func (h *WebSocketHandler) handleClientWrite(client *Client) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		client.Connection.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send:
			client.Connection.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				client.Connection.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := client.Connection.WriteMessage(websocket.TextMessage, message); err != nil {
				h.logger.Error("WebSocket write error",
					zap.Error(err),
					zap.String("client_id", client.ID),
				)
				return
			}

		case <-ticker.C:
			client.Connection.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Connection.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleClientMessage handles incoming client messages
func (h *WebSocketHandler) handleClientMessage(client *Client, message *WebSocketMessage) {
	switch message.Type {
	case "subscribe", "unsubscribe":
		topic, ok := stringField(message.Data, "topic")
		if !ok {
			h.sendError(client, "topic is required")
			return
		}
		if message.Type == "subscribe" {
			client.Subscribe(topic)
		} else {
			client.Unsubscribe(topic)
		}
		h.sendMessage(client, &WebSocketMessage{
			Type:      message.Type + "_confirmed",
			Data:      map[string]any{"topic": topic},
			Timestamp: time.Now(),
			RequestID: message.RequestID,
		})
	case "board_command":
		h.handleBoardCommand(client, message)
	case "ping":
		h.sendMessage(client, &WebSocketMessage{
			Type:      "pong",
			Timestamp: time.Now(),
			RequestID: message.RequestID,
		})
	default:
		h.sendError(client, fmt.Sprintf("unknown message type: %s", message.Type))
	}
}

// handleBoardCommand runs the small set of commands allowed over the socket
func (h *WebSocketHandler) handleBoardCommand(client *Client, message *WebSocketMessage) {
	command, ok := stringField(message.Data, "command")
	if !ok {
		h.sendError(client, "command is required")
		return
	}

	var (
		result any
		err    error
	)
	switch command {
	case "status":
		result = h.boardService.Status()
	case "cancel_read":
		result = h.boardService.CancelRead()
	case "pulse_off":
		ctx, cancel := context.WithTimeout(context.Background(), writeWait)
		result, err = h.boardService.PulseOff(ctx)
		cancel()
	default:
		h.sendError(client, fmt.Sprintf("unknown command: %s", command))
		return
	}

	data := map[string]any{
		"command": command,
		"success": err == nil,
		"result":  result,
	}
	if err != nil {
		data["error"] = err.Error()
	}
	h.sendMessage(client, &WebSocketMessage{
		Type:      "command_response",
		Data:      data,
		Timestamp: time.Now(),
		RequestID: message.RequestID,
	})
}

func stringField(data any, key string) (string, bool) {
	m, ok := data.(map[string]any)
	if !ok {
		return "", false
	}
	v, ok := m[key].(string)
	return v, ok && v != ""
}

// BroadcastBoardEvent sends serial lines to serial clients and every other
// event to the event clients subscribed to it
func (h *WebSocketHandler) BroadcastBoardEvent(event *model.BoardEvent) {
	if event.EventType == model.EventSerialLine {
		h.broadcastToClients(h.connections.Clients(ClientTypeSerial), &WebSocketMessage{
			Type:      "serial_line",
			Data:      event.Data,
			Timestamp: event.Timestamp,
		})
		return
	}

	var clients []*Client
	for _, client := range h.connections.Clients(ClientTypeEvents) {
		if client.Wants(string(event.EventType)) {
			clients = append(clients, client)
		}
	}
	h.broadcastToClients(clients, &WebSocketMessage{
		Type:      "board_event",
		Data:      event,
		Timestamp: event.Timestamp,
	})
}

// sendMessage sends a message to a client
func (h *WebSocketHandler) sendMessage(client *Client, message *WebSocketMessage) {
	messageBytes, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("Failed to marshal WebSocket message", zap.Error(err))
		return
	}

	if !h.connections.Send(client, messageBytes) {
		h.logger.Warn("Client send channel full, dropping message",
			zap.String("client_id", client.ID),
		)
	}
}

// sendError sends an error message to a client
func (h *WebSocketHandler) sendError(client *Client, errorMsg string) {
	h.sendMessage(client, &WebSocketMessage{
		Type:      "error",
		Data:      map[string]any{"error": errorMsg},
		Timestamp: time.Now(),
	})
}

// broadcastToClients broadcasts message to specified clients
func (h *WebSocketHandler) broadcastToClients(clients []*Client, message *WebSocketMessage) {
	if len(clients) == 0 {
		return
	}

	messageBytes, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("Failed to marshal broadcast message", zap.Error(err))
		return
	}

	for _, client := range clients {
		if !h.connections.Send(client, messageBytes) {
			h.logger.Warn("Client send channel full during broadcast",
				zap.String("client_id", client.ID),
			)
		}
	}
}

// GetConnectionStats returns connection statistics
func (h *WebSocketHandler) GetConnectionStats() *ConnectionStats {
	return h.connections.GetStats()
}
