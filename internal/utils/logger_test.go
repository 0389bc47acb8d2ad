package utils

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"pino/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zapcore.Level{
		"debug": zapcore.DebugLevel,
		"":      zapcore.InfoLevel,
		"info":  zapcore.InfoLevel,
		"warn":  zapcore.WarnLevel,
		"error": zapcore.ErrorLevel,
	}
	for name, want := range tests {
		got, err := ParseLevel(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}

	_, err := ParseLevel("loud")
	require.Error(t, err)
}

func TestLoggerManager_JSONOutput(t *testing.T) {
	var out bytes.Buffer
	lm := &LoggerManager{
		config: &config.LoggingConfig{Level: "warn", Format: "json", Output: "stdout"},
		stdout: &out,
	}
	logger, err := lm.createLogger()
	require.NoError(t, err)

	logger.Info("dropped")
	logger.Warn("kept", zap.String("port", "/dev/ttyACM0"))
	require.NoError(t, logger.Sync())

	var entry map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &entry), out.String())
	assert.Equal(t, "kept", entry["message"])
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "/dev/ttyACM0", entry["port"])
	assert.Contains(t, entry, "timestamp")
}

func TestNewLogger_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "pino.log")
	logger, err := NewLogger(&config.LoggingConfig{Level: "info", Output: path, MaxSize: 1})
	require.NoError(t, err)

	logger.Info("to file")
	require.NoError(t, CloseLogger(logger))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "to file")
}

func TestNewLogger_InvalidLevel(t *testing.T) {
	_, err := NewLogger(&config.LoggingConfig{Level: "chatty", Output: "stderr"})
	require.ErrorContains(t, err, "invalid log level")
}

func TestBoardLogger_LogOperation(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	bl := NewBoardLogger(zap.New(core), "/dev/ttyACM0")

	bl.LogOperation("DIGITAL_WRITE", time.Millisecond, nil)
	bl.LogOperation("ANALOG_READ", time.Millisecond, errors.New("port closed"))

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, "/dev/ttyACM0", entries[0].ContextMap()["port"])
	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
	assert.Equal(t, false, entries[1].ContextMap()["success"])
	assert.Equal(t, "port closed", entries[1].ContextMap()["error"])
}

func TestServiceLogger_LogAPIRequest(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	sl := NewServiceLogger(zap.New(core), "api")

	sl.LogAPIRequest("GET", "/health", "127.0.0.1", "r1", http.StatusOK, time.Millisecond)
	sl.LogAPIRequest("POST", "/api/v1/board/pinmode", "127.0.0.1", "r2", http.StatusUnprocessableEntity, time.Millisecond)
	sl.LogAPIRequest("GET", "/api/v1/board/line", "127.0.0.1", "r3", http.StatusBadGateway, time.Millisecond)

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)
	assert.Equal(t, "api", entries[2].ContextMap()["service"])
}

func TestErrorResponse(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Set(RequestIDKey, "r1")

	ErrorResponseWithData(c, http.StatusBadGateway, "Board operation failed", errors.New("short write"), gin.H{"pin": 13})

	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.False(t, resp.Success)
	assert.Equal(t, "r1", resp.RequestID)
	assert.Equal(t, "BOARD_ERROR", resp.Error.Code)
	assert.Equal(t, "short write", resp.Error.Details)
	assert.Equal(t, map[string]any{"pin": float64(13)}, resp.Data)
}

func TestGetErrorCode(t *testing.T) {
	assert.Equal(t, "CONFLICT", getErrorCode(http.StatusConflict))
	assert.Equal(t, "TIMEOUT", getErrorCode(http.StatusGatewayTimeout))
	assert.Equal(t, "UNKNOWN_ERROR", getErrorCode(http.StatusTeapot))
}
