// internal/cli/examples.go
package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"pino/internal/board"
	"pino/internal/config"
	"pino/internal/protocol"
)

// LEDBuiltin is the on-board LED pin of most Arduino boards
const LEDBuiltin = 13

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Blink toggles pin on every board for cycles rounds, holding each level
// for interval. Neighbouring boards run in opposite phase. Every board ends
// LOW.
func Blink(ctx context.Context, boards []*board.Arduino, pin, cycles int, interval time.Duration) error {
	for _, b := range boards {
		if err := b.SetPinMode(ctx, pin, protocol.ModeOutput); err != nil {
			return err
		}
	}

	phase := func(i, step int) protocol.PinState {
		if (i+step)%2 == 0 {
			return protocol.High
		}
		return protocol.Low
	}

	for range cycles {
		for step := range 2 {
			for i, b := range boards {
				if err := b.DigitalWrite(ctx, pin, phase(i, step)); err != nil {
					return err
				}
			}
			if err := sleep(ctx, interval); err != nil {
				return err
			}
		}
	}

	for _, b := range boards {
		if err := b.DigitalWrite(ctx, pin, protocol.Low); err != nil {
			return err
		}
	}
	return nil
}

// Pulse stores settings in consecutive slots, prints them to out, then
// pulses pin with each slot for hold
func Pulse(ctx context.Context, o *board.Optuino, pin int, settings []config.PulseSetting, hold time.Duration, out io.Writer) error {
	if err := o.SetPinMode(ctx, pin, protocol.ModeOutput); err != nil {
		return err
	}
	for i, s := range settings {
		if err := o.SetPulseParams(ctx, i, s.Frequency, s.Duration); err != nil {
			return err
		}
	}
	for _, line := range o.PulseSettings() {
		fmt.Fprintln(out, line)
	}

	for i := range settings {
		if err := o.PulseOn(ctx, pin, i); err != nil {
			return err
		}
		waitErr := sleep(ctx, hold)
		if err := o.PulseOff(context.WithoutCancel(ctx)); err != nil {
			return err
		}
		if waitErr != nil {
			return waitErr
		}
	}
	return nil
}
