// internal/deploy/deployer.go
package deploy

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/google/shlex"
	"go.uber.org/zap"
)

// DefaultTemplate is the arduino IDE command line for compile and upload
const DefaultTemplate = "{binary} --upload {firmware} --port {port}"

// DefaultBinary returns the arduino IDE command for the host OS
func DefaultBinary() string {
	if runtime.GOOS == "windows" {
		return filepath.Join(os.Getenv("ProgramFiles(x86)"), "Arduino", "arduino_debug.exe")
	}
	return "arduino"
}

// Runner executes a command and returns its combined output
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs the command with os/exec
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// ArduinoCLI compiles and uploads a sketch with an external tool
type ArduinoCLI struct {
	template string
	runner   Runner
	logger   *zap.Logger
}

// NewArduinoCLI creates a deployer. An empty template selects DefaultTemplate.
func NewArduinoCLI(template string, logger *zap.Logger) *ArduinoCLI {
	if template == "" {
		template = DefaultTemplate
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ArduinoCLI{
		template: template,
		runner:   ExecRunner,
		logger:   logger.With(zap.String("component", "deploy")),
	}
}

// WithRunner replaces the process runner
func (a *ArduinoCLI) WithRunner(runner Runner) *ArduinoCLI {
	a.runner = runner
	return a
}

// Command expands the template into argv. Placeholders are replaced after
// splitting, so paths containing spaces stay one argument.
func (a *ArduinoCLI) Command(binary, firmware, port string) ([]string, error) {
	fields, err := shlex.Split(a.template)
	if err != nil {
		return nil, fmt.Errorf("invalid deploy template %q: %w", a.template, err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty deploy template")
	}

	replacer := strings.NewReplacer(
		"{binary}", binary,
		"{firmware}", firmware,
		"{port}", port,
	)
	for i, f := range fields {
		fields[i] = replacer.Replace(f)
	}
	return fields, nil
}

// Deploy runs the tool synchronously and returns its output. A non-zero exit
// is returned as an error alongside the output.
func (a *ArduinoCLI) Deploy(ctx context.Context, binary, firmware, port string) ([]byte, error) {
	argv, err := a.Command(binary, firmware, port)
	if err != nil {
		return nil, err
	}

	startTime := time.Now()
	a.logger.Info("Deploying firmware",
		zap.String("firmware", firmware),
		zap.String("port", port),
		zap.Strings("command", argv),
	)

	output, err := a.runner(ctx, argv[0], argv[1:]...)
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			err = fmt.Errorf("%s exited with status %d", argv[0], exitErr.ExitCode())
		}
		a.logger.Error("Firmware deploy failed",
			zap.Error(err),
			zap.Duration("duration", time.Since(startTime)),
			zap.ByteString("output", output),
		)
		return output, err
	}

	a.logger.Info("Firmware deployed", zap.Duration("duration", time.Since(startTime)))
	return output, nil
}
