// internal/handler/board_handler.go
package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"pino/internal/board"
	"pino/internal/comport"
	"pino/internal/config"
	"pino/internal/model"
	"pino/internal/protocol"
	"pino/internal/service"
	"pino/internal/utils"
)

// defaultAnalogReadSize is the number of bytes an analog read returns when
// the request does not say
const defaultAnalogReadSize = 2

// BoardHandler exposes the board operations over HTTP
type BoardHandler struct {
	boardService *service.BoardService
	logger       *utils.ServiceLogger
}

// NewBoardHandler creates a new board handler
func NewBoardHandler(boardService *service.BoardService, logger *zap.Logger) *BoardHandler {
	return &BoardHandler{
		boardService: boardService,
		logger:       utils.NewServiceLogger(logger, "board-handler"),
	}
}

// RegisterRoutes registers board routes
func (h *BoardHandler) RegisterRoutes(router *gin.RouterGroup) {
	b := router.Group("/board")
	{
		b.GET("/status", h.GetStatus)
		b.POST("/start", h.Start)
		b.POST("/stop", h.Stop)

		b.POST("/pinmode", h.SetPinMode)
		b.POST("/pinmodes", h.ApplyPinModes)

		b.POST("/digital/write", h.DigitalWrite)
		b.POST("/digital/write-multiple", h.MultipleDigitalWrite)
		b.GET("/digital/read/:pin", h.DigitalRead)

		b.POST("/analog/write", h.AnalogWrite)
		b.POST("/analog/write-multiple", h.MultipleAnalogWrite)
		b.GET("/analog/read/:pin", h.AnalogRead)

		b.POST("/servo/rotate", h.ServoRotate)
		b.POST("/servo/rotate-multiple", h.MultipleServoRotate)

		b.GET("/line", h.ReadLine)
		b.POST("/line/cancel", h.CancelRead)

		b.GET("/pulse", h.GetPulseState)
		b.POST("/pulse/params", h.SetPulseParams)
		b.POST("/pulse/on", h.PulseOn)
		b.POST("/pulse/off", h.PulseOff)
	}
}

// GetStatus returns the board status snapshot
func (h *BoardHandler) GetStatus(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Board status retrieved", h.boardService.Status())
}

// Start deploys when configured and connects the board
func (h *BoardHandler) Start(c *gin.Context) {
	if err := h.boardService.Start(c.Request.Context()); err != nil {
		h.logger.Error("Failed to start board", zap.Error(err))
		utils.ErrorResponseWithData(c, statusForError(err), "Failed to start board", err, h.boardService.Status())
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Board connected", h.boardService.Status())
}

// Stop disconnects the board
func (h *BoardHandler) Stop(c *gin.Context) {
	h.boardService.Stop()
	utils.SuccessResponse(c, http.StatusOK, "Board disconnected", h.boardService.Status())
}

// SetPinMode sets the mode of one pin
func (h *BoardHandler) SetPinMode(c *gin.Context) {
	var req model.PinModeRequest
	if !bind(c, &req) {
		return
	}
	h.respond(c, "Pin mode set")(h.boardService.SetPinMode(c.Request.Context(), req.Pin, req.Mode))
}

// ApplyPinModes applies several pin modes in order
func (h *BoardHandler) ApplyPinModes(c *gin.Context) {
	var req model.PinModeBatchRequest
	if !bind(c, &req) {
		return
	}
	settings := make([]config.PinModeSetting, len(req.Settings))
	for i, s := range req.Settings {
		settings[i] = config.PinModeSetting{Pin: s.Pin, Mode: s.Mode}
	}
	h.respond(c, "Pin modes applied")(h.boardService.ApplyPinModes(c.Request.Context(), settings))
}

// DigitalWrite writes LOW or HIGH to a pin
func (h *BoardHandler) DigitalWrite(c *gin.Context) {
	var req model.DigitalWriteRequest
	if !bind(c, &req) {
		return
	}
	h.respond(c, "Digital write completed")(h.boardService.DigitalWrite(c.Request.Context(), req.Pin, req.State))
}

// MultipleDigitalWrite writes states to pins pairwise
func (h *BoardHandler) MultipleDigitalWrite(c *gin.Context) {
	var req model.MultipleDigitalWriteRequest
	if !bind(c, &req) {
		return
	}
	h.respond(c, "Digital writes completed")(h.boardService.MultipleDigitalWrite(c.Request.Context(), req.Pins, req.States))
}

// DigitalRead reads the level of a pin
func (h *BoardHandler) DigitalRead(c *gin.Context) {
	pin, ok := pinParam(c)
	if !ok {
		return
	}
	h.respond(c, "Digital read completed")(h.boardService.DigitalRead(c.Request.Context(), pin))
}

// AnalogWrite writes a PWM value to a pin
func (h *BoardHandler) AnalogWrite(c *gin.Context) {
	var req model.AnalogWriteRequest
	if !bind(c, &req) {
		return
	}
	h.respond(c, "Analog write completed")(h.boardService.AnalogWrite(c.Request.Context(), req.Pin, req.Value))
}

// MultipleAnalogWrite writes values to pins pairwise
func (h *BoardHandler) MultipleAnalogWrite(c *gin.Context) {
	var req model.MultipleAnalogWriteRequest
	if !bind(c, &req) {
		return
	}
	h.respond(c, "Analog writes completed")(h.boardService.MultipleAnalogWrite(c.Request.Context(), req.Pins, req.Values))
}

// AnalogRead reads raw bytes for a pin. The size query sets how many, up to
// protocol.MaxAnalogResponseLen.
func (h *BoardHandler) AnalogRead(c *gin.Context) {
	pin, ok := pinParam(c)
	if !ok {
		return
	}
	size := defaultAnalogReadSize
	if raw := c.Query("size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > protocol.MaxAnalogResponseLen {
			if err == nil {
				err = fmt.Errorf("size must be between 1 and %d", protocol.MaxAnalogResponseLen)
			}
			utils.ErrorResponse(c, http.StatusBadRequest, "Invalid size", err)
			return
		}
		size = n
	}
	h.respond(c, "Analog read completed")(h.boardService.AnalogRead(c.Request.Context(), pin, size))
}

// ServoRotate rotates a servo
func (h *BoardHandler) ServoRotate(c *gin.Context) {
	var req model.ServoRotateRequest
	if !bind(c, &req) {
		return
	}
	h.respond(c, "Servo rotated")(h.boardService.ServoRotate(c.Request.Context(), req.Pin, req.Angle))
}

// MultipleServoRotate rotates servos pairwise
func (h *BoardHandler) MultipleServoRotate(c *gin.Context) {
	var req model.MultipleServoRotateRequest
	if !bind(c, &req) {
		return
	}
	h.respond(c, "Servos rotated")(h.boardService.MultipleServoRotate(c.Request.Context(), req.Pins, req.Angles))
}

// ReadLine reads one line printed by the firmware
func (h *BoardHandler) ReadLine(c *gin.Context) {
	h.respond(c, "Line read")(h.boardService.ReadLine(c.Request.Context()))
}

// CancelRead aborts the read in flight
func (h *BoardHandler) CancelRead(c *gin.Context) {
	record := h.boardService.CancelRead()
	if record.Status == model.OperationStatusFailed {
		utils.ErrorResponseWithData(c, http.StatusConflict, "Read not cancelled", errors.New(record.ErrorMessage), record)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Read cancelled", record)
}

// GetPulseState reports the pulse history
func (h *BoardHandler) GetPulseState(c *gin.Context) {
	state, err := h.boardService.PulseState()
	if err != nil {
		utils.ErrorResponse(c, statusForError(err), "Pulse state unavailable", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Pulse state retrieved", state)
}

// SetPulseParams stores a pulse slot
func (h *BoardHandler) SetPulseParams(c *gin.Context) {
	var req model.PulseParamsRequest
	if !bind(c, &req) {
		return
	}
	h.respond(c, "Pulse parameters set")(h.boardService.SetPulseParams(c.Request.Context(), req.Index, req.Frequency, req.Duration))
}

// PulseOn starts pulsing a pin
func (h *BoardHandler) PulseOn(c *gin.Context) {
	var req model.PulseOnRequest
	if !bind(c, &req) {
		return
	}
	h.respond(c, "Pulse started")(h.boardService.PulseOn(c.Request.Context(), req.Pin, req.Index))
}

// PulseOff stops pulsing
func (h *BoardHandler) PulseOff(c *gin.Context) {
	h.respond(c, "Pulse stopped")(h.boardService.PulseOff(c.Request.Context()))
}

// respond writes the operation record, with an error status when err is set
func (h *BoardHandler) respond(c *gin.Context, message string) func(*model.OperationRecord, error) {
	return func(record *model.OperationRecord, err error) {
		if err != nil {
			h.logger.Warn("Board operation failed",
				zap.String("operation_type", string(record.OperationType)),
				zap.Error(err),
			)
			utils.ErrorResponseWithData(c, statusForError(err), "Board operation failed", err, record)
			return
		}
		utils.SuccessResponse(c, http.StatusOK, message, record)
	}
}

func bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

func pinParam(c *gin.Context) (int, bool) {
	pin, err := strconv.Atoi(c.Param("pin"))
	if err != nil || pin < 0 {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid pin", err)
		return 0, false
	}
	return pin, true
}

// statusForError maps board and link errors to HTTP status codes
func statusForError(err error) int {
	switch {
	case errors.Is(err, board.ErrUnsupportedMode),
		errors.Is(err, board.ErrUnsupportedState),
		errors.Is(err, board.ErrIndexOutOfRange),
		errors.Is(err, comport.ErrInvalidConfiguration):
		return http.StatusUnprocessableEntity
	case errors.Is(err, board.ErrNotConnected),
		errors.Is(err, service.ErrStreamActive),
		errors.Is(err, service.ErrPulseDisabled),
		errors.Is(err, protocol.ErrReadCancelled):
		return http.StatusConflict
	case errors.Is(err, protocol.ErrPortClosed), errors.Is(err, io.EOF):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout
	default:
		return http.StatusBadGateway
	}
}
