// internal/board/errors.go
package board

import "errors"

var (
	// ErrNotConnected is returned when a facade is bound to a closed comport
	ErrNotConnected = errors.New("comport is not connected")
	// ErrUnsupportedMode is returned for pin mode names outside the settable set
	ErrUnsupportedMode = errors.New("unsupported pin mode")
	// ErrUnsupportedState is returned when a digital write is given a pulse state
	ErrUnsupportedState = errors.New("unsupported pin state")
	// ErrIndexOutOfRange is returned for pulse slots outside [0, MaxPulseSettings)
	ErrIndexOutOfRange = errors.New("pulse setting index out of range")
)
