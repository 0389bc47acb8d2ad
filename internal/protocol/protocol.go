// internal/protocol/protocol.go
package protocol

import (
	"errors"
	"io"
	"time"
)

var (
	// ErrReadCancelled is returned by a read that was aborted with CancelRead
	ErrReadCancelled = errors.New("read cancelled")
	// ErrPortClosed is returned by writes on a closed connection
	ErrPortClosed = errors.New("port closed")
)

// Port is the subset of a serial port the board connection needs.
// go.bug.st/serial.Port satisfies it.
type Port interface {
	io.ReadWriteCloser

	// ResetInputBuffer discards bytes received but not read
	ResetInputBuffer() error
	// ResetOutputBuffer discards bytes written but not transmitted
	ResetOutputBuffer() error
	// SetReadTimeout bounds a single Read. A timed out Read returns 0, nil.
	SetReadTimeout(t time.Duration) error
}

// Opener opens a port at the given target and baud rate
type Opener func(target string, baudRate int) (Port, error)

// ProtocolStats provides transport-level statistics
type ProtocolStats struct {
	BytesWritten  int64     `json:"bytes_written"`
	BytesRead     int64     `json:"bytes_read"`
	FramesWritten int64     `json:"frames_written"`
	ErrorCount    int64     `json:"error_count"`
	LastActivity  time.Time `json:"last_activity"`
	IsConnected   bool      `json:"is_connected"`
}
