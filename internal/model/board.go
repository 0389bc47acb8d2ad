// internal/model/board.go
package model

import "time"

// ConnectionType represents how a port is reached
type ConnectionType string

const (
	ConnectionTypeSerial ConnectionType = "SERIAL"
	ConnectionTypeUSB    ConnectionType = "USB"
	ConnectionTypeTCP    ConnectionType = "TCP"
)

// BoardState represents the lifecycle state of the managed board
type BoardState string

const (
	BoardStateIdle       BoardState = "IDLE"
	BoardStateDeploying  BoardState = "DEPLOYING"
	BoardStateConnecting BoardState = "CONNECTING"
	BoardStateConnected  BoardState = "CONNECTED"
	BoardStateError      BoardState = "ERROR"
)

// BoardStatus is the snapshot reported by the status endpoint
type BoardStatus struct {
	State          BoardState       `json:"state"`
	Port           string           `json:"port"`
	BaudRate       int              `json:"baud_rate"`
	FirmwarePath   string           `json:"firmware_path"`
	Timeout        string           `json:"timeout,omitempty"`
	Warmup         string           `json:"warmup,omitempty"`
	PulseCapable   bool             `json:"pulse_capable"`
	Pulsing        bool             `json:"pulsing"`
	PulseSettings  []string         `json:"pulse_settings,omitempty"`
	ConnectedAt    *time.Time       `json:"connected_at,omitempty"`
	LastError      string           `json:"last_error,omitempty"`
	BytesWritten   int64            `json:"bytes_written"`
	BytesRead      int64            `json:"bytes_read"`
	FramesWritten  int64            `json:"frames_written"`
	TransportError int64            `json:"transport_errors"`
	Metadata       map[string]any   `json:"metadata,omitempty"`
	PinModes       []PinModeRequest `json:"pin_modes,omitempty"`
}

// PinModeRequest sets the mode of one pin by name
type PinModeRequest struct {
	Pin  int    `json:"pin" binding:"min=0"`
	Mode string `json:"mode" binding:"required"`
}

// PinModeBatchRequest applies several pin modes in order
type PinModeBatchRequest struct {
	Settings []PinModeRequest `json:"settings" binding:"required,min=1,dive"`
}

// DigitalWriteRequest writes LOW or HIGH to one pin
type DigitalWriteRequest struct {
	Pin   int    `json:"pin" binding:"min=0"`
	State string `json:"state" binding:"required"`
}

// MultipleDigitalWriteRequest pairs pins with states, extra entries are ignored
type MultipleDigitalWriteRequest struct {
	Pins   []int    `json:"pins" binding:"required"`
	States []string `json:"states" binding:"required"`
}

// AnalogWriteRequest writes a PWM value to one pin
type AnalogWriteRequest struct {
	Pin   int `json:"pin" binding:"min=0"`
	Value int `json:"value"`
}

// MultipleAnalogWriteRequest pairs pins with values
type MultipleAnalogWriteRequest struct {
	Pins   []int `json:"pins" binding:"required"`
	Values []int `json:"values" binding:"required"`
}

// ServoRotateRequest rotates a servo on one pin
type ServoRotateRequest struct {
	Pin   int `json:"pin" binding:"min=0"`
	Angle int `json:"angle"`
}

// MultipleServoRotateRequest pairs pins with angles
type MultipleServoRotateRequest struct {
	Pins   []int `json:"pins" binding:"required"`
	Angles []int `json:"angles" binding:"required"`
}

// PulseParamsRequest stores a frequency/duration pair in a pulse slot
type PulseParamsRequest struct {
	Index     int `json:"index" binding:"min=0"`
	Frequency int `json:"frequency"`
	Duration  int `json:"duration"`
}

// PulseOnRequest starts pulsing a pin with a stored slot
type PulseOnRequest struct {
	Pin   int `json:"pin" binding:"min=0"`
	Index int `json:"index" binding:"min=0"`
}

// DigitalReadResult is the decoded answer to a digital read
type DigitalReadResult struct {
	Pin      int    `json:"pin"`
	State    string `json:"state,omitempty"`
	High     bool   `json:"high"`
	TimedOut bool   `json:"timed_out"`
}

// AnalogReadResult holds the raw bytes returned by an analog read
type AnalogReadResult struct {
	Pin      int    `json:"pin"`
	Raw      []byte `json:"raw"`
	TimedOut bool   `json:"timed_out"`
}

// PulseState reports the pulse extension state
type PulseState struct {
	Pulsing   bool     `json:"pulsing"`
	Frequency []int    `json:"frequency"`
	Duration  []int    `json:"duration"`
	Settings  []string `json:"settings"`
}
