// internal/board/optuino.go
package board

import (
	"context"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"pino/internal/comport"
	"pino/internal/protocol"
)

// MaxPulseSettings is the number of pulse slots the firmware stores
const MaxPulseSettings = 50

// Optuino is an Arduino running the firmware with the pulse extension. At
// most one pulse sequence runs at a time: PulseOn while pulsing and PulseOff
// while idle send nothing.
type Optuino struct {
	*Arduino

	frequency []int
	duration  []int
	pulsing   bool
}

// NewOptuino binds a pulse-capable facade to the connection of c
func NewOptuino(c *comport.Comport, logger *zap.Logger) (*Optuino, error) {
	a, err := New(c, logger)
	if err != nil {
		return nil, err
	}
	return &Optuino{Arduino: a}, nil
}

// NewOptuinoWithConnection binds a pulse-capable facade to an open connection
func NewOptuinoWithConnection(conn Connection, logger *zap.Logger) *Optuino {
	return &Optuino{Arduino: NewWithConnection(conn, logger)}
}

// SetPulseParams stores a frequency/duration pair in slot idx on the board
// and appends it to the local history
func (o *Optuino) SetPulseParams(ctx context.Context, idx, frequency, duration int) error {
	if idx < 0 || idx >= MaxPulseSettings {
		return fmt.Errorf("%w: %d, must be lower than %d", ErrIndexOutOfRange, idx, MaxPulseSettings)
	}

	if err := o.send(ctx, "set pulse params", protocol.EncodePulseParams(idx, frequency, duration)); err != nil {
		return err
	}
	o.frequency = append(o.frequency, frequency)
	o.duration = append(o.duration, duration)
	return nil
}

// PulseOn starts pulsing pin with slot idx. The firmware serves nothing else
// until PulseOff.
func (o *Optuino) PulseOn(ctx context.Context, pin, idx int) error {
	if o.pulsing {
		o.logger.Debug("Pulse already running, ignoring pulse on", zap.Int("pin", pin))
		return nil
	}
	if idx < 0 || idx >= MaxPulseSettings {
		return fmt.Errorf("%w: %d, must be lower than %d", ErrIndexOutOfRange, idx, MaxPulseSettings)
	}

	if err := o.send(ctx, "pulse on", protocol.EncodePulseOn(pin, idx)); err != nil {
		return err
	}
	o.pulsing = true
	return nil
}

// PulseOff stops the running pulse sequence
func (o *Optuino) PulseOff(ctx context.Context) error {
	if !o.pulsing {
		return nil
	}

	if err := o.send(ctx, "pulse off", protocol.EncodePulseOff()); err != nil {
		return err
	}
	o.pulsing = false
	return nil
}

// Pulsing reports whether a pulse sequence is running
func (o *Optuino) Pulsing() bool {
	return o.pulsing
}

// PulseFrequency returns the stored frequencies in the order they were set
func (o *Optuino) PulseFrequency() []int {
	return slices.Clone(o.frequency)
}

// PulseDuration returns the stored durations in the order they were set
func (o *Optuino) PulseDuration() []int {
	return slices.Clone(o.duration)
}

// PulseSettings describes the history, one line per stored pair
func (o *Optuino) PulseSettings() []string {
	settings := make([]string, len(o.frequency))
	for i := range o.frequency {
		settings[i] = fmt.Sprintf("%d: Frequency - %d  Duration - %d", i, o.frequency[i], o.duration[i])
	}
	return settings
}
