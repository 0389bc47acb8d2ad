// internal/protocol/serial_connection.go
package protocol

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"
)

// DefaultPollInterval is the slice a blocking read waits on the port before
// it re-checks cancellation and the caller's context.
const DefaultPollInterval = 20 * time.Millisecond

// SerialConnection owns an open Port and adds what the board protocol needs
// on top of it: whole-frame writes, bounded reads, line reads and read
// cancellation from another goroutine.
type SerialConnection struct {
	port         Port
	target       string
	readTimeout  time.Duration
	pollInterval time.Duration
	logger       *zap.Logger

	mutex  sync.Mutex
	cancel chan struct{}
	closed bool
	stats  ProtocolStats
}

// NewSerialConnection wraps an already opened port. A zero readTimeout makes
// reads wait until data arrives, is cancelled, or the context ends.
func NewSerialConnection(port Port, target string, readTimeout time.Duration, logger *zap.Logger) *SerialConnection {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SerialConnection{
		port:         port,
		target:       target,
		readTimeout:  readTimeout,
		pollInterval: DefaultPollInterval,
		logger: logger.With(
			zap.String("protocol", "serial"),
			zap.String("port", target),
		),
		stats: ProtocolStats{
			IsConnected:  true,
			LastActivity: time.Now(),
		},
	}
}

// SetPollInterval changes how often a blocked read looks for cancellation
func (sc *SerialConnection) SetPollInterval(d time.Duration) {
	if d > 0 {
		sc.pollInterval = d
	}
}

// Target returns the port identifier this connection was opened on
func (sc *SerialConnection) Target() string {
	return sc.target
}

// ReadTimeout returns the per-read timeout, zero meaning none
func (sc *SerialConnection) ReadTimeout() time.Duration {
	return sc.readTimeout
}

// IsOpen returns whether the connection is open
func (sc *SerialConnection) IsOpen() bool {
	sc.mutex.Lock()
	defer sc.mutex.Unlock()
	return !sc.closed
}

// Stats returns a snapshot of the transport statistics
func (sc *SerialConnection) Stats() ProtocolStats {
	sc.mutex.Lock()
	defer sc.mutex.Unlock()
	return sc.stats
}

// Write hands a whole frame to the port
func (sc *SerialConnection) Write(ctx context.Context, data []byte) error {
	if !sc.IsOpen() {
		return ErrPortClosed
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	n, err := sc.port.Write(data)
	if err != nil {
		sc.countError()
		sc.logger.Error("Serial write failed", zap.Error(err))
		return fmt.Errorf("failed to write to serial port: %w", err)
	}

	if n != len(data) {
		sc.countError()
		return fmt.Errorf("incomplete write: wrote %d of %d bytes", n, len(data))
	}

	sc.mutex.Lock()
	sc.stats.BytesWritten += int64(n)
	sc.stats.FramesWritten++
	sc.stats.LastActivity = time.Now()
	sc.mutex.Unlock()

	sc.logger.Debug("Serial write completed", zap.Binary("frame", data))
	return nil
}

// Read reads up to size bytes. It returns fewer bytes, and a nil error, when
// the read timeout elapses first.
func (sc *SerialConnection) Read(ctx context.Context, size int) ([]byte, error) {
	if size <= 0 {
		return []byte{}, nil
	}
	return sc.read(ctx, size, false)
}

// ReadLine reads through the next '\n'. On timeout it returns what arrived so
// far, which may be nothing, with a nil error. It returns ErrReadCancelled
// when CancelRead interrupts it and io.EOF once the port is closed.
func (sc *SerialConnection) ReadLine(ctx context.Context) ([]byte, error) {
	return sc.read(ctx, 1, true)
}

// CancelRead aborts the read currently in flight. With no read in flight it
// does nothing.
func (sc *SerialConnection) CancelRead() {
	sc.mutex.Lock()
	defer sc.mutex.Unlock()

	if sc.cancel != nil {
		close(sc.cancel)
		sc.cancel = nil
	}
}

// Flush discards both the input and the output buffers
func (sc *SerialConnection) Flush() error {
	if !sc.IsOpen() {
		return nil
	}
	if err := sc.port.ResetInputBuffer(); err != nil {
		return fmt.Errorf("failed to reset input buffer: %w", err)
	}
	if err := sc.port.ResetOutputBuffer(); err != nil {
		return fmt.Errorf("failed to reset output buffer: %w", err)
	}
	return nil
}

// Close closes the port. Only the first call reaches the port; later calls
// return nil.
func (sc *SerialConnection) Close() error {
	sc.mutex.Lock()
	if sc.closed {
		sc.mutex.Unlock()
		return nil
	}
	sc.closed = true
	sc.stats.IsConnected = false
	if sc.cancel != nil {
		close(sc.cancel)
		sc.cancel = nil
	}
	sc.mutex.Unlock()

	if err := sc.port.Close(); err != nil {
		sc.logger.Error("Failed to close serial port", zap.Error(err))
		return fmt.Errorf("failed to close serial port: %w", err)
	}

	sc.logger.Info("Serial port closed")
	return nil
}

// readChunkSize bounds the bytes taken from the port per poll
const readChunkSize = 64

func (sc *SerialConnection) read(ctx context.Context, size int, untilEOL bool) ([]byte, error) {
	cancel, err := sc.beginRead()
	if err != nil {
		return nil, err
	}
	defer sc.endRead(cancel)

	var deadline time.Time
	if sc.readTimeout > 0 {
		deadline = time.Now().Add(sc.readTimeout)
	}

	buf := make([]byte, 0, min(size, readChunkSize))
	chunk := make([]byte, min(size, readChunkSize))
	for untilEOL || len(buf) < size {
		select {
		case <-cancel:
			if !sc.IsOpen() {
				return buf, io.EOF
			}
			return buf, ErrReadCancelled
		case <-ctx.Done():
			return buf, ctx.Err()
		default:
		}

		slice := sc.pollInterval
		if !deadline.IsZero() {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return buf, nil
			}
			if remaining < slice {
				slice = remaining
			}
		}
		if err := sc.port.SetReadTimeout(slice); err != nil {
			return buf, sc.readError(err)
		}

		want := min(size-len(buf), len(chunk))
		if untilEOL {
			want = 1
		}
		n, err := sc.port.Read(chunk[:want])
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			sc.countRead(n)
			if untilEOL && chunk[n-1] == '\n' {
				return buf, nil
			}
		}
		if err != nil {
			return buf, sc.readError(err)
		}
	}
	return buf, nil
}

func (sc *SerialConnection) beginRead() (chan struct{}, error) {
	sc.mutex.Lock()
	defer sc.mutex.Unlock()

	if sc.closed {
		return nil, io.EOF
	}
	sc.cancel = make(chan struct{})
	return sc.cancel, nil
}

func (sc *SerialConnection) endRead(cancel chan struct{}) {
	sc.mutex.Lock()
	defer sc.mutex.Unlock()

	if sc.cancel == cancel {
		sc.cancel = nil
	}
}

// readError maps a port failure. A port that was closed underneath the
// reader reports io.EOF.
func (sc *SerialConnection) readError(err error) error {
	if !sc.IsOpen() || errors.Is(err, io.EOF) {
		return io.EOF
	}
	var portErr *serial.PortError
	if errors.As(err, &portErr) && portErr.Code() == serial.PortClosed {
		return io.EOF
	}
	sc.countError()
	sc.logger.Error("Serial read failed", zap.Error(err))
	return fmt.Errorf("failed to read from serial port: %w", err)
}

func (sc *SerialConnection) countRead(n int) {
	sc.mutex.Lock()
	sc.stats.BytesRead += int64(n)
	sc.stats.LastActivity = time.Now()
	sc.mutex.Unlock()
}

func (sc *SerialConnection) countError() {
	sc.mutex.Lock()
	sc.stats.ErrorCount++
	sc.mutex.Unlock()
}
