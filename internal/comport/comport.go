// internal/comport/comport.go
package comport

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"pino/internal/config"
	"pino/internal/deploy"
	serialscan "pino/internal/discovery/serial"
	"pino/internal/protocol"
)

const (
	// DefaultBaudRate is used until SetBaudRate is called
	DefaultBaudRate = 115200
	// DefaultFirmwarePath is the protocol sketch shipped with pino
	DefaultFirmwarePath = "proto/proto.ino"
)

var supportedBaudRates = []int{
	50, 75, 110, 134, 150, 200, 300, 600, 1200, 1800, 2400, 4800, 9600,
	19200, 38400, 57600, 115200, 230400, 460800, 500000, 576000, 921600,
	1000000, 1152000, 1500000, 2000000, 2500000, 3000000, 3500000, 4000000,
}

// SupportedBaudRates returns the rates SetBaudRate accepts, ascending
func SupportedBaudRates() []int {
	return slices.Clone(supportedBaudRates)
}

// ValidateBaudRate fails with ErrInvalidConfiguration for unsupported rates
func ValidateBaudRate(rate int) error {
	if _, found := slices.BinarySearch(supportedBaudRates, rate); !found {
		return fmt.Errorf("%w: baud rate %d is not supported", ErrInvalidConfiguration, rate)
	}
	return nil
}

// Deployer uploads firmware to the board on port
type Deployer interface {
	Deploy(ctx context.Context, binary, firmware, port string) ([]byte, error)
}

// PortLister returns the names of the ports present on the host
type PortLister func(ctx context.Context) ([]string, error)

// Comport holds the link settings of one board and, once connected, its
// open connection. Setters return the Comport so calls chain; a setter that
// rejects its value stores the error, which Err, Deploy and Connect report.
type Comport struct {
	deployBinary string
	port         string
	baudRate     int
	timeout      time.Duration
	firmwarePath string
	warmup       time.Duration
	err          error

	opener   protocol.Opener
	deployer Deployer
	lister   PortLister
	logger   *zap.Logger

	conn *protocol.SerialConnection
}

// New creates a Comport with default settings and no port
func New() *Comport {
	return &Comport{
		deployBinary: deploy.DefaultBinary(),
		baudRate:     DefaultBaudRate,
		firmwarePath: DefaultFirmwarePath,
		opener:       protocol.OpenPort,
		deployer:     deploy.NewArduinoCLI("", nil),
		lister:       serialscan.PortNames,
		logger:       zap.NewNop(),
	}
}

// Derive creates a Comport from the comport section of a config file
func Derive(settings config.ComportSettings) *Comport {
	return New().ApplySettings(settings)
}

// ApplySettings applies every field that is set in settings
func (c *Comport) ApplySettings(settings config.ComportSettings) *Comport {
	if settings.Arduino != "" {
		c.SetDeployBinary(settings.Arduino)
	}
	if settings.Port != "" {
		c.SetPort(settings.Port)
	}
	if settings.BaudRate != 0 {
		c.SetBaudRate(settings.BaudRate)
	}
	if d := settings.TimeoutDuration(); d > 0 {
		c.SetTimeout(d)
	}
	if settings.DotIno != "" {
		c.SetFirmwarePath(settings.DotIno)
	}
	if d := settings.WarmupDuration(); d > 0 {
		c.SetWarmup(d)
	}
	return c
}

// WithLogger sets the logger used for the link and its connection
func (c *Comport) WithLogger(logger *zap.Logger) *Comport {
	if logger != nil {
		c.logger = logger.With(zap.String("component", "comport"))
	}
	return c
}

// WithOpener replaces the transport opener
func (c *Comport) WithOpener(opener protocol.Opener) *Comport {
	c.opener = opener
	return c
}

// WithDeployer replaces the firmware deployer
func (c *Comport) WithDeployer(deployer Deployer) *Comport {
	c.deployer = deployer
	return c
}

// WithPortLister replaces the port enumeration
func (c *Comport) WithPortLister(lister PortLister) *Comport {
	c.lister = lister
	return c
}

// SetDeployBinary sets the path of the firmware upload tool
func (c *Comport) SetDeployBinary(path string) *Comport {
	c.deployBinary = path
	return c
}

// SetPort sets the port identifier, a device name or a socket:// address
func (c *Comport) SetPort(port string) *Comport {
	c.port = port
	return c
}

// SetBaudRate sets the baud rate. An unsupported rate is recorded as an
// error and the previous rate is kept.
func (c *Comport) SetBaudRate(rate int) *Comport {
	if err := ValidateBaudRate(rate); err != nil {
		c.record(err)
		return c
	}
	c.baudRate = rate
	return c
}

// SetTimeout sets the read timeout; zero or less means reads wait forever
func (c *Comport) SetTimeout(timeout time.Duration) *Comport {
	if timeout < 0 {
		timeout = 0
	}
	c.timeout = timeout
	return c
}

// SetFirmwarePath sets the sketch uploaded by Deploy
func (c *Comport) SetFirmwarePath(path string) *Comport {
	c.firmwarePath = path
	return c
}

// SetWarmup sets the delay Connect waits after opening the port
func (c *Comport) SetWarmup(d time.Duration) *Comport {
	if d < 0 {
		d = 0
	}
	c.warmup = d
	return c
}

// Err returns the first error recorded by a setter
func (c *Comport) Err() error {
	return c.err
}

func (c *Comport) record(err error) {
	c.logger.Warn("Comport setting rejected", zap.Error(err))
	if c.err == nil {
		c.err = err
	}
}

// Port returns the port identifier, empty when unset
func (c *Comport) Port() string { return c.port }

// BaudRate returns the configured baud rate
func (c *Comport) BaudRate() int { return c.baudRate }

// Timeout returns the read timeout, zero meaning none
func (c *Comport) Timeout() time.Duration { return c.timeout }

// FirmwarePath returns the sketch path
func (c *Comport) FirmwarePath() string { return c.firmwarePath }

// Warmup returns the post-open delay, zero meaning none
func (c *Comport) Warmup() time.Duration { return c.warmup }

// DeployBinary returns the upload tool path
func (c *Comport) DeployBinary() string { return c.deployBinary }

// Connection returns the open connection, nil when not connected
func (c *Comport) Connection() *protocol.SerialConnection {
	return c.conn
}

// Deploy compiles and uploads the firmware to the board and waits for the
// tool to finish
func (c *Comport) Deploy(ctx context.Context) error {
	if err := c.ready(); err != nil {
		return err
	}

	output, err := c.deployer.Deploy(ctx, c.deployBinary, c.firmwarePath, c.port)
	if err != nil {
		return &DeployError{
			Binary:   c.deployBinary,
			Firmware: c.firmwarePath,
			Port:     c.port,
			Output:   output,
			Err:      err,
		}
	}
	return nil
}

// Connect opens the port and then waits out the warmup so the board can
// finish resetting. Connecting an open Comport does nothing.
func (c *Comport) Connect(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}
	if err := c.ready(); err != nil {
		return err
	}

	port, err := c.opener(c.port, c.baudRate)
	if err != nil {
		c.logger.Error("Failed to open port", zap.String("port", c.port), zap.Error(err))
		return fmt.Errorf("%w: %s: %w", ErrConnectionFailure, c.port, err)
	}
	conn := protocol.NewSerialConnection(port, c.port, c.timeout, c.logger)

	if c.warmup > 0 {
		timer := time.NewTimer(c.warmup)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			conn.Close()
			return fmt.Errorf("warmup interrupted: %w", ctx.Err())
		}
	}

	c.conn = conn
	c.logger.Info("Comport connected",
		zap.String("port", c.port),
		zap.Int("baud_rate", c.baudRate),
		zap.Duration("timeout", c.timeout),
	)
	return nil
}

func (c *Comport) ready() error {
	if c.err != nil {
		return c.err
	}
	if c.port == "" {
		return fmt.Errorf("%w: port is not specified", ErrInvalidConfiguration)
	}
	return nil
}

// Disconnect closes the connection. Close errors are logged and dropped.
func (c *Comport) Disconnect() {
	if c.conn == nil {
		return
	}
	if err := c.conn.Close(); err != nil {
		c.logger.Warn("Error closing comport", zap.String("port", c.port), zap.Error(err))
	}
	c.conn = nil
}

// Close flushes both buffers and disconnects, if still connected
func (c *Comport) Close() error {
	if c.conn == nil {
		return nil
	}

	var errs []error
	if err := c.conn.Flush(); err != nil {
		errs = append(errs, err)
	}
	if err := c.conn.Close(); err != nil {
		errs = append(errs, err)
	}
	c.conn = nil
	return errors.Join(errs...)
}

// AvailablePorts returns the ports present on the host
func (c *Comport) AvailablePorts(ctx context.Context) ([]string, error) {
	return c.lister(ctx)
}
