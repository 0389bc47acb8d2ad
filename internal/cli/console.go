// internal/cli/console.go
package cli

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"pino/internal/board"
	"pino/internal/comport"
	"pino/internal/protocol"
)

// ErrUsage is returned when a command gets the wrong arguments
var ErrUsage = errors.New("usage")

// Command is one console command
type Command struct {
	Name    string
	Aliases []string
	Help    string
	// Connected commands fail with board.ErrNotConnected before connect
	Connected bool
	Run       func(ctx context.Context, con *Console, args []string) (string, error)
}

// Console runs board commands against one Comport. It is not safe for
// concurrent use, except CancelRead.
type Console struct {
	comport *comport.Comport
	board   *board.Optuino
	logger  *zap.Logger
}

// NewConsole creates a console for c
func NewConsole(c *comport.Comport, logger *zap.Logger) *Console {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Console{comport: c, logger: logger}
}

// Connected reports whether the board is connected
func (con *Console) Connected() bool {
	return con.board != nil
}

// Prompt is the shell prompt for the current state
func (con *Console) Prompt() string {
	if con.board == nil {
		return "[none] > "
	}
	return con.comport.Port() + " > "
}

// Exec runs the command named name
func (con *Console) Exec(ctx context.Context, name string, args []string) (string, error) {
	cmd, ok := lookup(name)
	if !ok {
		return "", fmt.Errorf("unknown command %q", name)
	}
	if cmd.Connected && con.board == nil {
		return "", board.ErrNotConnected
	}
	out, err := cmd.Run(ctx, con, args)
	if errors.Is(err, ErrUsage) {
		return "", fmt.Errorf("%w: %s %s", ErrUsage, cmd.Name, cmd.Help)
	}
	return out, err
}

// Close disconnects the board if connected
func (con *Console) Close() error {
	if con.board == nil {
		return nil
	}
	if con.board.Pulsing() {
		if err := con.board.PulseOff(context.Background()); err != nil {
			con.logger.Warn("Failed to stop pulse", zap.Error(err))
		}
	}
	con.board = nil
	return con.comport.Close()
}

// CancelRead aborts a read in flight
func (con *Console) CancelRead() {
	if conn := con.comport.Connection(); conn != nil {
		conn.CancelRead()
	}
}

func lookup(name string) (*Command, bool) {
	for _, cmd := range Commands() {
		if cmd.Name == name {
			return cmd, true
		}
		for _, alias := range cmd.Aliases {
			if alias == name {
				return cmd, true
			}
		}
	}
	return nil, false
}

func ints(args []string, n int) ([]int, error) {
	if len(args) != n {
		return nil, ErrUsage
	}
	out := make([]int, n)
	for i, a := range args {
		v, err := strconv.Atoi(a)
		if err != nil {
			return nil, fmt.Errorf("%q is not a number: %w", a, ErrUsage)
		}
		out[i] = v
	}
	return out, nil
}

// Commands returns the console commands sorted by name
func Commands() []*Command {
	cmds := []*Command{
		{
			Name: "connect",
			Help: "[PORT]",
			Run: func(ctx context.Context, con *Console, args []string) (string, error) {
				if con.board != nil {
					return "already connected to " + con.comport.Port(), nil
				}
				if len(args) > 1 {
					return "", ErrUsage
				}
				if len(args) == 1 {
					con.comport.SetPort(args[0])
				}
				if err := con.comport.Connect(ctx); err != nil {
					return "", err
				}
				b, err := board.NewOptuino(con.comport, con.logger)
				if err != nil {
					return "", err
				}
				con.board = b
				return "connected to " + con.comport.Port(), nil
			},
		},
		{
			Name:      "disconnect",
			Connected: true,
			Run: func(ctx context.Context, con *Console, args []string) (string, error) {
				return "disconnected", con.Close()
			},
		},
		{
			Name:    "ports",
			Aliases: []string{"ls"},
			Run: func(ctx context.Context, con *Console, args []string) (string, error) {
				ports, err := con.comport.AvailablePorts(ctx)
				if err != nil {
					return "", err
				}
				if len(ports) == 0 {
					return "no ports found", nil
				}
				return strings.Join(ports, "\n"), nil
			},
		},
		{
			Name:      "mode",
			Help:      "PIN MODE",
			Connected: true,
			Run: func(ctx context.Context, con *Console, args []string) (string, error) {
				if len(args) != 2 {
					return "", ErrUsage
				}
				pin, err := ints(args[:1], 1)
				if err != nil {
					return "", err
				}
				mode, ok := protocol.ParsePinMode(strings.ToUpper(args[1]))
				if !ok {
					return "", fmt.Errorf("%w: %q", board.ErrUnsupportedMode, args[1])
				}
				return "OK", con.board.SetPinMode(ctx, pin[0], mode)
			},
		},
		{
			Name:      "write",
			Aliases:   []string{"dw"},
			Help:      "PIN LOW|HIGH",
			Connected: true,
			Run: func(ctx context.Context, con *Console, args []string) (string, error) {
				if len(args) != 2 {
					return "", ErrUsage
				}
				pin, err := ints(args[:1], 1)
				if err != nil {
					return "", err
				}
				state, ok := protocol.ParsePinState(args[1])
				if !ok {
					return "", fmt.Errorf("%w: %q", board.ErrUnsupportedState, args[1])
				}
				return "OK", con.board.DigitalWrite(ctx, pin[0], state)
			},
		},
		{
			Name:      "read",
			Aliases:   []string{"dr"},
			Help:      "PIN",
			Connected: true,
			Run: func(ctx context.Context, con *Console, args []string) (string, error) {
				pin, err := ints(args, 1)
				if err != nil {
					return "", err
				}
				state, ok, err := con.board.DigitalRead(ctx, pin[0])
				if err != nil {
					return "", err
				}
				if !ok {
					return "timeout", nil
				}
				return state.String(), nil
			},
		},
		{
			Name:      "awrite",
			Aliases:   []string{"aw"},
			Help:      "PIN VALUE",
			Connected: true,
			Run: func(ctx context.Context, con *Console, args []string) (string, error) {
				v, err := ints(args, 2)
				if err != nil {
					return "", err
				}
				return "OK", con.board.AnalogWrite(ctx, v[0], v[1])
			},
		},
		{
			Name:      "aread",
			Aliases:   []string{"ar"},
			Help:      "PIN [SIZE]",
			Connected: true,
			Run: func(ctx context.Context, con *Console, args []string) (string, error) {
				if len(args) == 1 {
					args = append(args, "2")
				}
				v, err := ints(args, 2)
				if err != nil {
					return "", err
				}
				if v[1] < 1 || v[1] > protocol.MaxAnalogResponseLen {
					return "", ErrUsage
				}
				data, err := con.board.AnalogRead(ctx, v[0], v[1])
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("% x", data), nil
			},
		},
		{
			Name:      "servo",
			Help:      "PIN ANGLE",
			Connected: true,
			Run: func(ctx context.Context, con *Console, args []string) (string, error) {
				v, err := ints(args, 2)
				if err != nil {
					return "", err
				}
				return "OK", con.board.ServoRotate(ctx, v[0], v[1])
			},
		},
		{
			Name:      "line",
			Connected: true,
			Run: func(ctx context.Context, con *Console, args []string) (string, error) {
				line, err := con.board.ReadUntilEOL(ctx)
				if err != nil {
					return "", err
				}
				if line == nil {
					return "timeout", nil
				}
				return strings.TrimRight(string(line), "\r\n"), nil
			},
		},
		{
			Name:      "pulse.set",
			Aliases:   []string{"ps"},
			Help:      "INDEX FREQUENCY DURATION",
			Connected: true,
			Run: func(ctx context.Context, con *Console, args []string) (string, error) {
				v, err := ints(args, 3)
				if err != nil {
					return "", err
				}
				return "OK", con.board.SetPulseParams(ctx, v[0], v[1], v[2])
			},
		},
		{
			Name:      "pulse.on",
			Help:      "PIN INDEX",
			Connected: true,
			Run: func(ctx context.Context, con *Console, args []string) (string, error) {
				v, err := ints(args, 2)
				if err != nil {
					return "", err
				}
				return "OK", con.board.PulseOn(ctx, v[0], v[1])
			},
		},
		{
			Name:      "pulse.off",
			Connected: true,
			Run: func(ctx context.Context, con *Console, args []string) (string, error) {
				return "OK", con.board.PulseOff(ctx)
			},
		},
		{
			Name:      "pulse.list",
			Aliases:   []string{"pl"},
			Connected: true,
			Run: func(ctx context.Context, con *Console, args []string) (string, error) {
				settings := con.board.PulseSettings()
				if len(settings) == 0 {
					return "no pulse settings", nil
				}
				return strings.Join(settings, "\n"), nil
			},
		},
		{
			Name: "status",
			Run: func(ctx context.Context, con *Console, args []string) (string, error) {
				var b strings.Builder
				fmt.Fprintf(&b, "port: %s\n", con.comport.Port())
				fmt.Fprintf(&b, "baud rate: %d\n", con.comport.BaudRate())
				fmt.Fprintf(&b, "firmware: %s\n", con.comport.FirmwarePath())
				fmt.Fprintf(&b, "connected: %t", con.board != nil)
				if con.board != nil {
					fmt.Fprintf(&b, "\npulsing: %t", con.board.Pulsing())
				}
				return b.String(), nil
			},
		},
	}

	sort.Slice(cmds, func(i, j int) bool { return cmds[i].Name < cmds[j].Name })
	return cmds
}
