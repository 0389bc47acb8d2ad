// internal/handler/health_handler.go
package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"pino/internal/model"
	"pino/internal/service"
	"pino/internal/utils"
)

// ServiceName is reported by the health endpoint
const ServiceName = "pino"

// HealthHandler handles health check requests
type HealthHandler struct {
	boardService *service.BoardService
	version      string
	startedAt    time.Time
	logger       *utils.ServiceLogger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(boardService *service.BoardService, version string, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		boardService: boardService,
		version:      version,
		startedAt:    time.Now(),
		logger:       utils.NewServiceLogger(logger, "health-handler"),
	}
}

// RegisterRoutes registers health check routes
func (h *HealthHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/health", h.HealthCheck)
	router.GET("/ready", h.ReadinessCheck)
	router.GET("/live", h.LivenessCheck)
}

// HealthCheck reports service health with the board link as its one check.
// A board in the ERROR state makes the service unhealthy.
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	status := h.boardService.Status()

	health := &HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Service:   ServiceName,
		Version:   h.version,
		Uptime:    time.Since(h.startedAt).String(),
		Checks:    make(map[string]CheckResult),
	}

	board := CheckResult{
		Status: "healthy",
		Data: map[string]any{
			"state":     status.State,
			"port":      status.Port,
			"baud_rate": status.BaudRate,
		},
	}
	switch status.State {
	case model.BoardStateConnected:
		board.Message = "Board connected"
	case model.BoardStateError:
		health.Status = "unhealthy"
		board.Status = "unhealthy"
		board.Message = status.LastError
	default:
		board.Message = "Board not connected"
	}
	health.Checks["board"] = board

	statusCode := http.StatusOK
	if health.Status == "unhealthy" {
		h.logger.Warn("Health check failed", zap.String("reason", status.LastError))
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, health)
}

// ReadinessCheck succeeds once the board is connected
func (h *HealthHandler) ReadinessCheck(c *gin.Context) {
	if !h.boardService.Connected() {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"reason": "board not connected",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "ready",
		"timestamp": time.Now(),
	})
}

// LivenessCheck succeeds while the process can respond
func (h *HealthHandler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "alive",
		"timestamp": time.Now(),
	})
}

// HealthResponse represents health check response
type HealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Service   string                 `json:"service"`
	Version   string                 `json:"version"`
	Uptime    string                 `json:"uptime"`
	Checks    map[string]CheckResult `json:"checks"`
}

// CheckResult represents individual check result
type CheckResult struct {
	Status  string         `json:"status"`
	Message string         `json:"message,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
}
