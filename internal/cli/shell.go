// internal/cli/shell.go
package cli

import (
	"context"

	"github.com/abiosoft/ishell"
)

// Shell is the interactive console, backed by ishell
type Shell struct {
	Shell   *ishell.Shell
	Console *Console
}

// NewShell creates a shell with every console command registered
func NewShell(con *Console) *Shell {
	s := &Shell{Shell: ishell.New(), Console: con}
	s.Shell.SetPrompt(con.Prompt())

	for _, cmd := range Commands() {
		s.Shell.AddCmd(&ishell.Cmd{
			Name:    cmd.Name,
			Aliases: cmd.Aliases,
			Help:    cmd.Help,
			Func: func(c *ishell.Context) {
				s.exec(c, cmd.Name)
			},
		})
	}

	// Ctrl-C aborts a blocked read instead of leaving the shell
	s.Shell.Interrupt(func(c *ishell.Context, count int, input string) {
		if count >= 2 {
			c.Println("Interrupted")
			s.Shell.Close()
			return
		}
		con.CancelRead()
		c.Println("Input Ctrl-c once more to exit")
	})
	return s
}

func (s *Shell) exec(c *ishell.Context, name string) {
	out, err := s.Console.Exec(context.Background(), name, c.Args)
	if err != nil {
		c.Err(err)
		return
	}
	if out != "" {
		c.Println(out)
	}
	s.Shell.SetPrompt(s.Console.Prompt())
}

// Run processes args as one command when given, otherwise runs the
// interactive loop, and disconnects the board on return
func (s *Shell) Run(args ...string) error {
	defer s.Console.Close()

	if len(args) > 0 {
		return s.Shell.Process(args...)
	}
	s.Shell.Run()
	return nil
}
