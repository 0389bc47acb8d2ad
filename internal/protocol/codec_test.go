package protocol

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodePinMode(t *testing.T) {
	modes := []PinMode{ModeInput, ModeInputPullup, ModeOutput, ModeServo, ModeSSInput, ModeSSInputPullup, ModePulse}
	for i, mode := range modes {
		require.Equal(t, byte(i), byte(mode), "modes are numbered in declaration order")
		for pin := 0; pin <= 255; pin++ {
			frame := EncodePinMode(pin, mode)
			require.Len(t, frame, PinModeFrameLen)
			require.Equal(t, []byte{byte(mode), byte(pin)}, frame)
		}
	}
}

func TestFrames(t *testing.T) {
	testCases := []struct {
		name   string
		frame  []byte
		expect []byte
		length int
	}{
		{"digital write high", EncodeDigitalWrite(13, High), []byte{0x11, 13}, DigitalWriteFrameLen},
		{"digital write low", EncodeDigitalWrite(13, Low), []byte{0x10, 13}, DigitalWriteFrameLen},
		{"digital read", EncodeDigitalRead(7), []byte{0x20, 7}, DigitalReadFrameLen},
		{"analog write", EncodeAnalogWrite(9, 200), []byte{0x12, 9, 200}, AnalogWriteFrameLen},
		{"analog read", EncodeAnalogRead(3), []byte{0x21, 3}, AnalogReadFrameLen},
		{"servo rotate", EncodeServoRotate(10, 90), []byte{0x13, 10, 90}, ServoFrameLen},
		{"pulse params", EncodePulseParams(2, 20, 10), []byte{0x06, 2, 20, 10}, PulseParamsFrameLen},
		{"pulse on", EncodePulseOn(13, 1), []byte{0x14, 13, 1}, PulseOnFrameLen},
		{"pulse off", EncodePulseOff(), []byte{0x15}, PulseOffFrameLen},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expect, tc.frame)
			require.Len(t, tc.frame, tc.length)
		})
	}
}

func TestEncodeTruncatesToLowByte(t *testing.T) {
	require.Equal(t, []byte{0x02, 0x00}, EncodePinMode(256, ModeOutput))
	require.Equal(t, []byte{0x12, 0x01, 0x2c}, EncodeAnalogWrite(257, 300))
	require.Equal(t, []byte{0x13, 0x05, 0xff}, EncodeServoRotate(5, -1))

	for pin := 0; pin < 600; pin += 37 {
		for v := 0; v < 600; v += 41 {
			require.Equal(t, []byte{0x12, byte(pin % 256), byte(v % 256)}, EncodeAnalogWrite(pin, v))
		}
	}
}

func TestDecodeDigitalResponse(t *testing.T) {
	require.Equal(t, Low, DecodeDigitalResponse(0x00))
	for b := 1; b <= 255; b++ {
		require.Equal(t, High, DecodeDigitalResponse(byte(b)))
	}
}

func TestParsePinMode(t *testing.T) {
	for _, name := range []string{"INPUT", "INPUT_PULLUP", "OUTPUT", "SERVO", "SSINPUT", "SSINPUT_PULLUP"} {
		mode, ok := ParsePinMode(name)
		require.True(t, ok, name)
		require.Equal(t, name, mode.String())
	}

	for _, name := range []string{"PULSE", "output", "BOGUS", ""} {
		_, ok := ParsePinMode(name)
		require.False(t, ok, name)
	}
}

func TestParsePinState(t *testing.T) {
	state, ok := ParsePinState("HIGH")
	require.True(t, ok)
	require.Equal(t, High, state)

	state, ok = ParsePinState("0")
	require.True(t, ok)
	require.Equal(t, Low, state)

	_, ok = ParsePinState("PULSE_ON")
	require.False(t, ok)
	require.Equal(t, "PULSE_OFF", PulseOff.String())
}
