// internal/protocol/tcp_connection.go
package protocol

import (
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"
)

// DefaultDialTimeout bounds connecting to a network serial bridge
const DefaultDialTimeout = 10 * time.Second

// TCPPort exposes a raw TCP stream from a serial bridge (ser2net and
// similar) as a Port. Read timeouts follow serial semantics: a Read that
// times out returns 0, nil.
type TCPPort struct {
	conn        net.Conn
	mutex       sync.Mutex
	readTimeout time.Duration
}

// DialTCPPort connects to address (host:port)
func DialTCPPort(address string) (*TCPPort, error) {
	dialer := &net.Dialer{
		Timeout:   DefaultDialTimeout,
		KeepAlive: 30 * time.Second,
	}

	conn, err := dialer.Dial("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", address, err)
	}

	if tcpConn, ok := conn.(*net.TCPConn); ok {
		tcpConn.SetNoDelay(true)
	}

	return NewTCPPort(conn), nil
}

// NewTCPPort wraps an established stream
func NewTCPPort(conn net.Conn) *TCPPort {
	return &TCPPort{conn: conn}
}

// Read implements io.Reader
func (tp *TCPPort) Read(p []byte) (int, error) {
	tp.mutex.Lock()
	timeout := tp.readTimeout
	tp.mutex.Unlock()

	if timeout > 0 {
		tp.conn.SetReadDeadline(time.Now().Add(timeout))
	} else {
		tp.conn.SetReadDeadline(time.Time{})
	}

	n, err := tp.conn.Read(p)
	if err != nil && isTimeout(err) {
		return n, nil
	}
	return n, err
}

// Write implements io.Writer
func (tp *TCPPort) Write(p []byte) (int, error) {
	return tp.conn.Write(p)
}

// SetReadTimeout bounds each following Read. Zero or negative waits forever.
func (tp *TCPPort) SetReadTimeout(t time.Duration) error {
	tp.mutex.Lock()
	defer tp.mutex.Unlock()
	tp.readTimeout = t
	return nil
}

// ResetInputBuffer drops whatever the bridge has already delivered
func (tp *TCPPort) ResetInputBuffer() error {
	buf := make([]byte, 256)
	for {
		tp.conn.SetReadDeadline(time.Now().Add(time.Millisecond))
		n, err := tp.conn.Read(buf)
		if err != nil {
			tp.conn.SetReadDeadline(time.Time{})
			if isTimeout(err) {
				return nil
			}
			return err
		}
		if n == 0 {
			return nil
		}
	}
}

// ResetOutputBuffer is a no-op; TCP writes leave the host immediately
func (tp *TCPPort) ResetOutputBuffer() error {
	return nil
}

// Close implements io.Closer
func (tp *TCPPort) Close() error {
	return tp.conn.Close()
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
