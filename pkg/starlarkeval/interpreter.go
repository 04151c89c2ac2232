package starlarkeval

import (
	"bytes"
	"fmt"
	"io"
	"sort"

	"go.starlark.net/starlark"
)

type Interpreter struct {
	// Global state
	globals starlark.StringDict
	// Thread context
	thread *starlark.Thread
	// reporter
	reporter Reporter
}

// Reporter receives the output of print() calls. It is implemented by
// (*testing.T).Logf.
type Reporter func(format string, args ...interface{})

func NewInterpreter(reporter Reporter) *Interpreter {
	interpreter := &Interpreter{
		reporter: reporter,
		globals:  starlark.StringDict{},
	}
	interpreter.thread = &starlark.Thread{
		Name: "config",
		Print: func(_ *starlark.Thread, msg string) {
			reporter("%s", msg)
		},
	}
	return interpreter
}

// GetGlobal returns the named global, or nil when it is not defined.
func (i *Interpreter) GetGlobal(name string) starlark.Value {
	return i.globals[name]
}

// Globals returns the names of the defined globals, sorted.
func (i *Interpreter) Globals() []string {
	names := make([]string, 0, len(i.globals))
	for name := range i.globals {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Exec evaluates a Starlark file. Globals it defines replace those of any
// previous Exec.
func (i *Interpreter) Exec(filename string, src io.Reader) error {
	data, err := io.ReadAll(src)
	if err != nil {
		return err
	}
	globals, err := starlark.ExecFile(i.thread, filename, bytes.NewReader(data), nil)
	if err != nil {
		if evalErr, ok := err.(*starlark.EvalError); ok {
			return fmt.Errorf("%s", evalErr.Backtrace())
		}
		return err
	}
	i.globals = globals
	return nil
}
