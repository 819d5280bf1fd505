// Package console is the operator's front end: a full-screen TUI on a
// terminal, or a plain line reader when input is piped.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"

	"github.com/normanking/seifmios/internal/command"
	"github.com/normanking/seifmios/internal/logging"
	"github.com/normanking/seifmios/internal/session"
)

// Submitter runs one command and streams its output.
type Submitter interface {
	Submit(ctx context.Context, args []string) (<-chan string, error)
}

type Console struct {
	session Submitter
	mode    string
	in      io.Reader
	out     io.Writer
	log     *logging.Logger
}

// New returns a console on stdin/stdout. mode is "auto", "tui", "plain" or "off".
func New(s Submitter, mode string, log *logging.Logger) *Console {
	if log == nil {
		log = logging.Global()
	}
	return &Console{session: s, mode: mode, in: os.Stdin, out: os.Stdout, log: log.WithComponent("console")}
}

// Mode resolves "auto" against the terminal.
func (c *Console) Mode() string {
	if c.mode != "auto" {
		return c.mode
	}
	if f, ok := c.in.(*os.File); ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
		return "tui"
	}
	return "plain"
}

// Run serves the operator until ctx is done. End of input is not an error;
// the program keeps running without a console.
func (c *Console) Run(ctx context.Context) error {
	switch mode := c.Mode(); mode {
	case "off":
		<-ctx.Done()
		return nil
	case "plain":
		return c.runPlain(ctx)
	case "tui":
		return c.runTUI(ctx)
	default:
		return fmt.Errorf("unknown console mode %q", mode)
	}
}

func (c *Console) runPlain(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(c.in)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	// Colour only when out is a terminal that supports it.
	term := termenv.NewOutput(c.out)
	emit := func(s string) {
		if strings.HasPrefix(s, "Ignored:") || strings.HasPrefix(s, "Usage:") {
			s = term.String(s).Foreground(term.Color("3")).String()
		}
		fmt.Fprintln(c.out, s)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-readErr:
					if err != nil {
						c.log.Warn("Console input failed: %v", err)
					}
				default:
				}
				c.log.Debug("Console input closed")
				return nil
			}
			if err := c.execute(ctx, line, emit); err != nil {
				if errors.Is(err, session.ErrClosed) || ctx.Err() != nil {
					return nil
				}
				return err
			}
		}
	}
}

// execute tokenizes one line, submits it and hands each output line to emit.
func (c *Console) execute(ctx context.Context, line string, emit func(string)) error {
	args, err := command.Tokenize(line)
	if err != nil {
		emit("Ignored: " + err.Error())
		return nil
	}
	out, err := c.session.Submit(ctx, args)
	if err != nil {
		return err
	}
	for s := range out {
		emit(s)
	}
	return nil
}
