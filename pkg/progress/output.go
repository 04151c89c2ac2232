// Package progress renders mobyprogress updates for a terminal or a log.
package progress

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/mattn/go-isatty"
	"github.com/morikuni/aec"
	"github.com/pcj/mobyprogress"
	"github.com/rs/zerolog"
)

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// NewOutput returns an output that writes one line per update. On a
// terminal each update redraws the current line; elsewhere only messages
// and final updates are printed.
func NewOutput(out io.Writer, terminal bool) mobyprogress.Output {
	return &output{out: out, terminal: terminal}
}

type output struct {
	mu       sync.Mutex
	out      io.Writer
	terminal bool
}

// WriteProgress implements the mobyprogress.Output interface.
func (o *output) WriteProgress(prog mobyprogress.Progress) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	line := Format(prog)
	if !o.terminal {
		if prog.Message == "" && !prog.LastUpdate {
			return nil
		}
		_, err := fmt.Fprintln(o.out, line)
		return err
	}

	endl := ""
	if prog.LastUpdate || prog.Message != "" {
		endl = "\n"
	}
	_, err := fmt.Fprint(o.out, aec.EraseLine(aec.EraseModes.All), "\r", line, endl)
	return err
}

// NewLogOutput returns an output that logs intermediate updates at debug
// level and final updates at info level.
func NewLogOutput(logger zerolog.Logger) mobyprogress.Output {
	return &logOutput{logger: logger}
}

type logOutput struct {
	logger zerolog.Logger
}

// WriteProgress implements the mobyprogress.Output interface.
func (o *logOutput) WriteProgress(prog mobyprogress.Progress) error {
	event := o.logger.Debug()
	if prog.LastUpdate || prog.Message != "" {
		event = o.logger.Info()
	}
	if prog.Message != "" {
		event.Str("phase", prog.ID).Msg(prog.Message)
		return nil
	}
	event.
		Str("phase", prog.ID).
		Int64("current", prog.Current).
		Int64("total", prog.Total).
		Msg(prog.Action)
	return nil
}

// Format renders an update as "id: action current/total units".
func Format(prog mobyprogress.Progress) string {
	prefix := ""
	if prog.ID != "" {
		prefix = prog.ID + ": "
	}
	if prog.Message != "" {
		return prefix + prog.Message
	}
	s := prefix + prog.Action
	if prog.Total > 0 {
		s += fmt.Sprintf(" %d/%d", prog.Current, prog.Total)
		if prog.Units != "" {
			s += " " + prog.Units
		}
	}
	return s
}
