package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
Comport:
  port: /dev/ttyACM0
  baudrate: 115200
  timeout: 1.0
  warmup: 2.0
  dotino: ./proto/proto.ino
  deploy_template: arduino-cli upload -p {port} {firmware}
PinMode:
  13: OUTPUT
  2: INPUT_PULLUP
  9: SERVO
  4: INPUT
Experimental:
  optuino: true
  pulse:
    - frequency: 5
      duration: 10
    - frequency: 20
      duration: 10
Metadata:
  author: lab
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pino.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "/dev/ttyACM0", cfg.Comport.Port)
	assert.Equal(t, 115200, cfg.Comport.BaudRate)
	assert.Equal(t, time.Second, cfg.Comport.TimeoutDuration())
	assert.Equal(t, 2*time.Second, cfg.Comport.WarmupDuration())
	assert.Equal(t, "./proto/proto.ino", cfg.Comport.DotIno)
	assert.Equal(t, "arduino-cli upload -p {port} {firmware}", cfg.Comport.DeployTemplate)

	require.Equal(t, []PinModeSetting{
		{Pin: 13, Mode: "OUTPUT"},
		{Pin: 2, Mode: "INPUT_PULLUP"},
		{Pin: 9, Mode: "SERVO"},
		{Pin: 4, Mode: "INPUT"},
	}, cfg.PinMode)

	assert.True(t, cfg.Experimental.Optuino)
	assert.Equal(t, []PulseSetting{{Frequency: 5, Duration: 10}, {Frequency: 20, Duration: 10}}, cfg.Experimental.Pulse)
	assert.Equal(t, "lab", cfg.Metadata["author"])
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "Comport:\n  port: COM3\n"))
	require.NoError(t, err)

	assert.Equal(t, 115200, cfg.Comport.BaudRate)
	assert.Equal(t, "proto/proto.ino", cfg.Comport.DotIno)
	assert.Zero(t, cfg.Comport.TimeoutDuration())
	assert.Zero(t, cfg.Comport.WarmupDuration())
	assert.Empty(t, cfg.PinMode)
	assert.Equal(t, "127.0.0.1:8090", cfg.GetServerAddr())
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("PINO_COMPORT_PORT", "/dev/ttyUSB1")
	t.Setenv("PINO_LOGGING_LEVEL", "debug")

	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyUSB1", cfg.Comport.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	_, err = Load(writeConfig(t, "logging:\n  level: loud\n"))
	require.ErrorContains(t, err, "logging.level")

	_, err = Load(writeConfig(t, "comport:\n  warmup: -1\n"))
	require.ErrorContains(t, err, "comport.warmup")
}

func TestParsePinModes(t *testing.T) {
	settings, err := ParsePinModes([]byte("pinmode:\n  3: OUTPUT\n  1: INPUT\n"))
	require.NoError(t, err)
	require.Equal(t, []PinModeSetting{{3, "OUTPUT"}, {1, "INPUT"}}, settings)

	settings, err = ParsePinModes([]byte("comport:\n  port: x\n"))
	require.NoError(t, err)
	require.Nil(t, settings)

	settings, err = ParsePinModes([]byte("PinMode:\n"))
	require.NoError(t, err)
	require.Nil(t, settings)

	_, err = ParsePinModes([]byte("PinMode:\n  led: OUTPUT\n"))
	require.ErrorContains(t, err, "not a pin number")

	_, err = ParsePinModes([]byte("PinMode: [1, 2]\n"))
	require.ErrorContains(t, err, "mapping")
}
