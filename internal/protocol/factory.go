// internal/protocol/factory.go
package protocol

import (
	"fmt"
	"strings"

	"go.bug.st/serial"
)

// SocketScheme prefixes targets served by a network serial bridge
const SocketScheme = "socket://"

// OpenPort opens target at baudRate. Targets of the form socket://host:port
// are dialed over TCP, everything else is a local serial device.
func OpenPort(target string, baudRate int) (Port, error) {
	if strings.HasPrefix(target, SocketScheme) {
		return DialTCPPort(strings.TrimPrefix(target, SocketScheme))
	}
	return openSerialPort(target, baudRate)
}

func openSerialPort(target string, baudRate int) (Port, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(target, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", target, err)
	}
	return port, nil
}
