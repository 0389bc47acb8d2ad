// internal/protocol/mock.go
package protocol

import (
	"bytes"
	"errors"
	"sync"
	"time"
)

// TestablePort implements Port with configurable behaviour for tests. Reads
// honour SetReadTimeout the way a serial port does: with no data they wait
// for the timeout and return 0, nil.
type TestablePort struct {
	mu sync.Mutex

	// ReadBuffer holds data to be returned by Read calls
	ReadBuffer *bytes.Buffer
	// WriteBuffer captures data written to the port
	WriteBuffer *bytes.Buffer
	// Writes records every Write call separately
	Writes [][]byte

	// ReadError is returned by the next Read call if set
	ReadError error
	// WriteError is returned by the next Write call if set
	WriteError error
	// CloseError is returned by Close if set
	CloseError error

	// Closed indicates whether Close was called
	Closed bool
	// CloseCalls counts Close calls
	CloseCalls int
	// InputResets and OutputResets count buffer resets
	InputResets  int
	OutputResets int

	// ReadTimeout is the current read timeout
	ReadTimeout time.Duration

	// Responder, when set, is called with every written frame and its result
	// is appended to the read buffer, emulating a firmware reply.
	Responder func(frame []byte) []byte
}

// NewTestablePort creates an empty TestablePort
func NewTestablePort() *TestablePort {
	return &TestablePort{
		ReadBuffer:  bytes.NewBuffer(nil),
		WriteBuffer: bytes.NewBuffer(nil),
	}
}

// Read reads from the read buffer, waiting up to ReadTimeout for data
func (t *TestablePort) Read(p []byte) (int, error) {
	var waitUntil time.Time
	for {
		t.mu.Lock()
		if t.Closed {
			t.mu.Unlock()
			return 0, errors.New("serial port closed")
		}
		if t.ReadError != nil {
			err := t.ReadError
			t.ReadError = nil
			t.mu.Unlock()
			return 0, err
		}
		if t.ReadBuffer.Len() > 0 {
			n, err := t.ReadBuffer.Read(p)
			t.mu.Unlock()
			return n, err
		}
		timeout := t.ReadTimeout
		t.mu.Unlock()

		if timeout > 0 {
			if waitUntil.IsZero() {
				waitUntil = time.Now().Add(timeout)
			} else if time.Now().After(waitUntil) {
				return 0, nil
			}
		}
		time.Sleep(time.Millisecond)
	}
}

// Write writes to the write buffer
func (t *TestablePort) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.Closed {
		return 0, errors.New("serial port closed")
	}
	if t.WriteError != nil {
		err := t.WriteError
		t.WriteError = nil
		return 0, err
	}

	frame := append([]byte(nil), p...)
	t.Writes = append(t.Writes, frame)
	if t.Responder != nil {
		t.ReadBuffer.Write(t.Responder(frame))
	}
	return t.WriteBuffer.Write(p)
}

// Close marks the port as closed
func (t *TestablePort) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.Closed = true
	t.CloseCalls++
	return t.CloseError
}

// SetReadTimeout implements Port
func (t *TestablePort) SetReadTimeout(timeout time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ReadTimeout = timeout
	return nil
}

// ResetInputBuffer drops unread data
func (t *TestablePort) ResetInputBuffer() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.InputResets++
	t.ReadBuffer.Reset()
	return nil
}

// ResetOutputBuffer implements Port
func (t *TestablePort) ResetOutputBuffer() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.OutputResets++
	return nil
}

// AddReadData adds data to be returned by subsequent Read calls
func (t *TestablePort) AddReadData(data []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ReadBuffer.Write(data)
}

// GetWrittenData returns all data written to the port
func (t *TestablePort) GetWrittenData() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()

	return append([]byte(nil), t.WriteBuffer.Bytes()...)
}

// GetWrites returns a copy of each written frame
func (t *TestablePort) GetWrites() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()

	writes := make([][]byte, len(t.Writes))
	copy(writes, t.Writes)
	return writes
}

// IsClosed reports whether Close was called
func (t *TestablePort) IsClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.Closed
}
