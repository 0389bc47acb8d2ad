// internal/board/arduino.go
package board

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"pino/internal/comport"
	"pino/internal/config"
	"pino/internal/protocol"
)

// Connection is the transport a facade drives. *protocol.SerialConnection
// implements it.
type Connection interface {
	Write(ctx context.Context, data []byte) error
	Read(ctx context.Context, size int) ([]byte, error)
	ReadLine(ctx context.Context) ([]byte, error)
	CancelRead()
	Flush() error
	Close() error
}

// Arduino drives a board running the pino protocol firmware. Every write
// operation sends one frame and returns once the transport accepted it;
// reads write a request and then wait up to the link timeout.
//
// An Arduino is not safe for concurrent use except for CancelRead, which may
// be called while another goroutine is blocked in a read.
type Arduino struct {
	conn   Connection
	logger *zap.Logger
}

// New binds a facade to the connection of c
func New(c *comport.Comport, logger *zap.Logger) (*Arduino, error) {
	conn := c.Connection()
	if conn == nil {
		return nil, ErrNotConnected
	}
	return NewWithConnection(conn, logger), nil
}

// NewWithConnection binds a facade to an already open connection
func NewWithConnection(conn Connection, logger *zap.Logger) *Arduino {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Arduino{
		conn:   conn,
		logger: logger.With(zap.String("component", "board")),
	}
}

func (a *Arduino) send(ctx context.Context, op string, frame []byte) error {
	if err := a.conn.Write(ctx, frame); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// SetPinMode sets the mode of pin
func (a *Arduino) SetPinMode(ctx context.Context, pin int, mode protocol.PinMode) error {
	return a.send(ctx, "set pin mode", protocol.EncodePinMode(pin, mode))
}

// ApplyPinModeSettings sets pin modes from configuration, in order. Every
// name is checked before the first frame is sent, so an unknown mode leaves
// all pins untouched.
func (a *Arduino) ApplyPinModeSettings(ctx context.Context, settings []config.PinModeSetting) error {
	modes := make([]protocol.PinMode, len(settings))
	for i, s := range settings {
		mode, ok := protocol.ParsePinMode(s.Mode)
		if !ok {
			return fmt.Errorf("%w: %q cannot be used as pin mode (pin %d)", ErrUnsupportedMode, s.Mode, s.Pin)
		}
		modes[i] = mode
	}

	for i, s := range settings {
		if err := a.SetPinMode(ctx, s.Pin, modes[i]); err != nil {
			return err
		}
	}
	return nil
}

// DigitalWrite drives pin LOW or HIGH
func (a *Arduino) DigitalWrite(ctx context.Context, pin int, state protocol.PinState) error {
	if err := checkDigital(state); err != nil {
		return err
	}
	return a.send(ctx, "digital write", protocol.EncodeDigitalWrite(pin, state))
}

// MultipleDigitalWrite writes pins[i] to states[i], stopping at the shorter
// slice
func (a *Arduino) MultipleDigitalWrite(ctx context.Context, pins []int, states []protocol.PinState) error {
	n := min(len(pins), len(states))
	for _, state := range states[:n] {
		if err := checkDigital(state); err != nil {
			return err
		}
	}
	for i := 0; i < n; i++ {
		if err := a.DigitalWrite(ctx, pins[i], states[i]); err != nil {
			return err
		}
	}
	return nil
}

func checkDigital(state protocol.PinState) error {
	if state != protocol.Low && state != protocol.High {
		return fmt.Errorf("%w: %s", ErrUnsupportedState, state)
	}
	return nil
}

// DigitalRead requests the level of pin. ok is false when the board did not
// answer within the read timeout.
func (a *Arduino) DigitalRead(ctx context.Context, pin int) (state protocol.PinState, ok bool, err error) {
	if err := a.send(ctx, "digital read", protocol.EncodeDigitalRead(pin)); err != nil {
		return protocol.Low, false, err
	}

	data, err := a.conn.Read(ctx, protocol.DigitalResponseLen)
	if err != nil {
		return protocol.Low, false, fmt.Errorf("digital read: %w", err)
	}
	if len(data) == 0 {
		a.logger.Debug("Digital read timed out", zap.Int("pin", pin))
		return protocol.Low, false, nil
	}
	return protocol.DecodeDigitalResponse(data[0]), true, nil
}

// AnalogWrite writes a PWM value; values above 255 keep their low byte
func (a *Arduino) AnalogWrite(ctx context.Context, pin, value int) error {
	return a.send(ctx, "analog write", protocol.EncodeAnalogWrite(pin, value))
}

// MultipleAnalogWrite writes values[i] to pins[i], stopping at the shorter
// slice
func (a *Arduino) MultipleAnalogWrite(ctx context.Context, pins, values []int) error {
	for i := 0; i < min(len(pins), len(values)); i++ {
		if err := a.AnalogWrite(ctx, pins[i], values[i]); err != nil {
			return err
		}
	}
	return nil
}

// AnalogRead requests a conversion on pin and returns up to size raw bytes.
// Fewer bytes mean the read timed out; the byte layout is firmware defined.
func (a *Arduino) AnalogRead(ctx context.Context, pin, size int) ([]byte, error) {
	if err := a.send(ctx, "analog read", protocol.EncodeAnalogRead(pin)); err != nil {
		return nil, err
	}

	data, err := a.conn.Read(ctx, size)
	if err != nil {
		return data, fmt.Errorf("analog read: %w", err)
	}
	return data, nil
}

// ReadUntilEOL reads one line printed by the firmware, newline included. It
// returns a nil line and nil error when nothing arrived before the timeout,
// protocol.ErrReadCancelled after CancelRead and io.EOF once the link closed.
func (a *Arduino) ReadUntilEOL(ctx context.Context) ([]byte, error) {
	line, err := a.conn.ReadLine(ctx)
	if err != nil {
		return nil, err
	}
	if len(line) == 0 {
		return nil, nil
	}
	return line, nil
}

// CancelRead makes a read blocked in another goroutine return
func (a *Arduino) CancelRead() {
	a.conn.CancelRead()
}

// ServoRotate moves the servo on pin to angle
func (a *Arduino) ServoRotate(ctx context.Context, pin, angle int) error {
	return a.send(ctx, "servo rotate", protocol.EncodeServoRotate(pin, angle))
}

// MultipleServoRotate rotates pins[i] to angles[i], stopping at the shorter
// slice
func (a *Arduino) MultipleServoRotate(ctx context.Context, pins, angles []int) error {
	for i := 0; i < min(len(pins), len(angles)); i++ {
		if err := a.ServoRotate(ctx, pins[i], angles[i]); err != nil {
			return err
		}
	}
	return nil
}

// MulitipleServoRotate is the historical spelling of MultipleServoRotate.
//
// Deprecated: use MultipleServoRotate.
func (a *Arduino) MulitipleServoRotate(ctx context.Context, pins, angles []int) error {
	return a.MultipleServoRotate(ctx, pins, angles)
}

// Disconnect discards pending data in both directions and closes the link.
// Closing an already closed link is not an error.
func (a *Arduino) Disconnect() error {
	if err := a.conn.Flush(); err != nil {
		a.logger.Warn("Failed to flush before disconnect", zap.Error(err))
	}
	return a.conn.Close()
}
