package deploy

import (
	"context"
	"errors"
	"os/exec"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArduinoCLI_Command(t *testing.T) {
	cli := NewArduinoCLI("", nil)

	argv, err := cli.Command("arduino", "/home/lab/my sketches/proto.ino", "/dev/ttyACM0")
	require.NoError(t, err)
	assert.Equal(t, []string{"arduino", "--upload", "/home/lab/my sketches/proto.ino", "--port", "/dev/ttyACM0"}, argv)
}

func TestArduinoCLI_CustomTemplate(t *testing.T) {
	cli := NewArduinoCLI(`arduino-cli compile --upload -p {port} --fqbn "arduino:avr:uno" {firmware}`, nil)

	argv, err := cli.Command("ignored", "proto", "COM3")
	require.NoError(t, err)
	assert.Equal(t, []string{"arduino-cli", "compile", "--upload", "-p", "COM3", "--fqbn", "arduino:avr:uno", "proto"}, argv)

	_, err = NewArduinoCLI(`arduino "unterminated`, nil).Command("a", "b", "c")
	require.Error(t, err)
}

func TestArduinoCLI_Deploy(t *testing.T) {
	var gotName string
	var gotArgs []string
	cli := NewArduinoCLI("", nil).WithRunner(func(ctx context.Context, name string, args ...string) ([]byte, error) {
		gotName, gotArgs = name, args
		return []byte("Sketch uses 924 bytes"), nil
	})

	output, err := cli.Deploy(context.Background(), "arduino", "proto/proto.ino", "/dev/ttyACM0")
	require.NoError(t, err)
	assert.Equal(t, "Sketch uses 924 bytes", string(output))
	assert.Equal(t, "arduino", gotName)
	assert.Equal(t, []string{"--upload", "proto/proto.ino", "--port", "/dev/ttyACM0"}, gotArgs)
}

func TestArduinoCLI_DeployFailureKeepsOutput(t *testing.T) {
	cli := NewArduinoCLI("", nil).WithRunner(func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return []byte("avrdude: ser_open(): can't open device"), errors.New("exit status 1")
	})

	output, err := cli.Deploy(context.Background(), "arduino", "proto/proto.ino", "/dev/ttyACM9")
	require.Error(t, err)
	assert.Contains(t, string(output), "can't open device")
}

func TestExecRunner_ExitStatus(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not found")
	}

	cli := NewArduinoCLI(`sh -c "echo {port}; exit 3"`, nil)
	output, err := cli.Deploy(context.Background(), "", "", "/dev/ttyACM0")
	require.ErrorContains(t, err, "exited with status 3")
	assert.Equal(t, "/dev/ttyACM0\n", string(output))
}

func TestDefaultBinary(t *testing.T) {
	if runtime.GOOS != "windows" {
		assert.Equal(t, "arduino", DefaultBinary())
	}
}
