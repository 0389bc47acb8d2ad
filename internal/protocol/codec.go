// internal/protocol/codec.go
package protocol

import (
	"fmt"
)

// PinMode is the one-byte opcode that switches a pin into a mode
type PinMode byte

// Pin modes understood by the board firmware
const (
	ModeInput         PinMode = 0x00
	ModeInputPullup   PinMode = 0x01
	ModeOutput        PinMode = 0x02
	ModeServo         PinMode = 0x03
	ModeSSInput       PinMode = 0x04
	ModeSSInputPullup PinMode = 0x05
	ModePulse         PinMode = 0x06
)

// PinState is the one-byte opcode for digital output and pulse control
type PinState byte

// Pin states understood by the board firmware
const (
	Low      PinState = 0x10
	High     PinState = 0x11
	PulseOn  PinState = 0x14
	PulseOff PinState = 0x15
)

// Opcodes that have no PinMode/PinState counterpart
const (
	OpAnalogWrite byte = 0x12
	OpServoRotate byte = 0x13
	OpDigitalRead byte = 0x20
	OpAnalogRead  byte = 0x21
)

// Fixed frame lengths, opcode included
const (
	PinModeFrameLen      = 2
	DigitalWriteFrameLen = 2
	DigitalReadFrameLen  = 2
	AnalogWriteFrameLen  = 3
	AnalogReadFrameLen   = 2
	ServoFrameLen        = 3
	PulseParamsFrameLen  = 4
	PulseOnFrameLen      = 3
	PulseOffFrameLen     = 1

	// DigitalResponseLen is the size of the board's reply to a digital read
	DigitalResponseLen = 1

	// MaxAnalogResponseLen bounds the bytes requested by one analog read
	MaxAnalogResponseLen = 64
)

var pinModeNames = map[PinMode]string{
	ModeInput:         "INPUT",
	ModeInputPullup:   "INPUT_PULLUP",
	ModeOutput:        "OUTPUT",
	ModeServo:         "SERVO",
	ModeSSInput:       "SSINPUT",
	ModeSSInputPullup: "SSINPUT_PULLUP",
	ModePulse:         "PULSE",
}

// configurableModes are the modes a pin-mode setting may name. PULSE is
// entered through SetPulseParams only.
var configurableModes = map[string]PinMode{
	"INPUT":          ModeInput,
	"INPUT_PULLUP":   ModeInputPullup,
	"OUTPUT":         ModeOutput,
	"SERVO":          ModeServo,
	"SSINPUT":        ModeSSInput,
	"SSINPUT_PULLUP": ModeSSInputPullup,
}

// String returns the firmware name of the mode
func (m PinMode) String() string {
	if name, ok := pinModeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("PinMode(0x%02x)", byte(m))
}

// ParsePinMode resolves a configuration mode name by exact match
func ParsePinMode(name string) (PinMode, bool) {
	mode, ok := configurableModes[name]
	return mode, ok
}

// String returns the firmware name of the state
func (s PinState) String() string {
	switch s {
	case Low:
		return "LOW"
	case High:
		return "HIGH"
	case PulseOn:
		return "PULSE_ON"
	case PulseOff:
		return "PULSE_OFF"
	default:
		return fmt.Sprintf("PinState(0x%02x)", byte(s))
	}
}

// ParsePinState resolves LOW or HIGH
func ParsePinState(name string) (PinState, bool) {
	switch name {
	case "LOW", "low", "0":
		return Low, true
	case "HIGH", "high", "1":
		return High, true
	default:
		return 0, false
	}
}

// asByte encodes an integer field as exactly one byte. Values outside 0-255
// keep only their low byte, matching what the firmware has always received.
func asByte(v int) byte {
	return byte(v)
}

// EncodePinMode builds [mode, pin]
func EncodePinMode(pin int, mode PinMode) []byte {
	return []byte{byte(mode), asByte(pin)}
}

// EncodeDigitalWrite builds [state, pin]
func EncodeDigitalWrite(pin int, state PinState) []byte {
	return []byte{byte(state), asByte(pin)}
}

// EncodeDigitalRead builds [0x20, pin]
func EncodeDigitalRead(pin int) []byte {
	return []byte{OpDigitalRead, asByte(pin)}
}

// EncodeAnalogWrite builds [0x12, pin, value]
func EncodeAnalogWrite(pin, value int) []byte {
	return []byte{OpAnalogWrite, asByte(pin), asByte(value)}
}

// EncodeAnalogRead builds [0x21, pin]
func EncodeAnalogRead(pin int) []byte {
	return []byte{OpAnalogRead, asByte(pin)}
}

// EncodeServoRotate builds [0x13, pin, angle]
func EncodeServoRotate(pin, angle int) []byte {
	return []byte{OpServoRotate, asByte(pin), asByte(angle)}
}

// EncodePulseParams builds [0x06, idx, frequency, duration]
func EncodePulseParams(idx, frequency, duration int) []byte {
	return []byte{byte(ModePulse), asByte(idx), asByte(frequency), asByte(duration)}
}

// EncodePulseOn builds [0x14, pin, idx]
func EncodePulseOn(pin, idx int) []byte {
	return []byte{byte(PulseOn), asByte(pin), asByte(idx)}
}

// EncodePulseOff builds [0x15]
func EncodePulseOff() []byte {
	return []byte{byte(PulseOff)}
}

// DecodeDigitalResponse maps the reply byte of a digital read: 0x00 is LOW,
// anything else HIGH.
func DecodeDigitalResponse(b byte) PinState {
	if b == 0x00 {
		return Low
	}
	return High
}
