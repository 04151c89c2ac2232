package logger

import (
	"bytes"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	for name, tc := range map[string]struct {
		debug     bool
		wantDebug bool
	}{
		"info":  {},
		"debug": {debug: true, wantDebug: true},
	} {
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			log := New(&buf, tc.debug)
			log.Debug().Msg("detail")
			log.Info().Str("jar", "abi.jar").Msg("written")

			out := buf.String()
			if got := strings.Contains(out, "detail"); got != tc.wantDebug {
				t.Errorf("debug message shown: want %v, got %v\n%s", tc.wantDebug, got, out)
			}
			if !strings.Contains(out, "written") || !strings.Contains(out, "jar=abi.jar") {
				t.Errorf("missing info message:\n%s", out)
			}
		})
	}
}
