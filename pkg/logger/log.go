package logger

import (
	"io"

	"github.com/rs/zerolog"
)

// New returns a console logger for the command line tools. Timestamps are
// omitted so that output is stable across runs.
func New(out io.Writer, debug bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{
		Out:     out,
		NoColor: true,
		PartsExclude: []string{
			zerolog.TimestampFieldName,
		},
	}).Level(level)
}
