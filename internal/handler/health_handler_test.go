package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"pino/internal/discovery"
	"pino/internal/model"
	"pino/internal/service"
)

func get(t *testing.T, r http.Handler, path string) (int, map[string]any) {
	t.Helper()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return w.Code, body
}

func TestHealthHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	s, _ := newTestBoard(t)
	r := gin.New()
	NewHealthHandler(s, "1.2.3", zap.NewNop()).RegisterRoutes(&r.RouterGroup)

	code, body := get(t, r, "/health")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, ServiceName, body["service"])
	assert.Equal(t, "1.2.3", body["version"])
	check := body["checks"].(map[string]any)["board"].(map[string]any)
	assert.Equal(t, "Board not connected", check["message"])

	code, body = get(t, r, "/ready")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "not ready", body["status"])

	code, _ = get(t, r, "/live")
	assert.Equal(t, http.StatusOK, code)

	require.NoError(t, s.Start(context.Background()))

	code, body = get(t, r, "/ready")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ready", body["status"])

	_, body = get(t, r, "/health")
	check = body["checks"].(map[string]any)["board"].(map[string]any)
	assert.Equal(t, "Board connected", check["message"])
	assert.Equal(t, string(model.BoardStateConnected), check["data"].(map[string]any)["state"])
}

type fixedScanner struct {
	kind  string
	ports []*discovery.DiscoveredPort
}

func (s *fixedScanner) Scan(context.Context) ([]*discovery.DiscoveredPort, error) {
	return s.ports, nil
}
func (s *fixedScanner) GetScannerType() string { return s.kind }
func (s *fixedScanner) IsAvailable() bool      { return true }

func TestDiscoveryHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)

	sm := discovery.NewScannerManager(nil)
	sm.RegisterScanner(&fixedScanner{kind: "serial", ports: []*discovery.DiscoveredPort{
		{Name: "/dev/ttyACM0", ConnectionType: model.ConnectionTypeSerial, Vendor: "Arduino", Board: "Uno R3"},
	}})
	ds := service.NewDiscoveryServiceWithManager(sm, 0, nil)

	r := gin.New()
	NewDiscoveryHandler(ds, zap.NewNop()).RegisterRoutes(r.Group("/api/v1"))

	code, body := get(t, r, "/api/v1/ports")
	require.Equal(t, http.StatusOK, code)
	data := body["data"].(map[string]any)
	assert.EqualValues(t, 1, data["ports_found"])
	port := data["ports"].([]any)[0].(map[string]any)
	assert.Equal(t, "/dev/ttyACM0", port["name"])
	assert.Equal(t, "Uno R3", port["board"])

	code, _ = get(t, r, "/api/v1/ports?type=serial")
	assert.Equal(t, http.StatusOK, code)

	code, body = get(t, r, "/api/v1/ports?type=bluetooth")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "BAD_REQUEST", body["error"].(map[string]any)["code"])

	code, body = get(t, r, "/api/v1/ports/scanners")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, []any{"serial"}, body["data"].(map[string]any)["scanners"])
}
