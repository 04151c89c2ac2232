package progress_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pcj/mobyprogress"

	"github.com/stackb/jvm-abi/pkg/progress"
	"github.com/stackb/jvm-abi/pkg/testutil"
)

func TestFormat(t *testing.T) {
	for name, tc := range map[string]struct {
		prog mobyprogress.Progress
		want string
	}{
		"counts": {
			prog: mobyprogress.Progress{ID: "index", Action: "classified", Current: 3, Total: 10, Units: "entries"},
			want: "index: classified 3/10 entries",
		},
		"message": {
			prog: mobyprogress.Progress{ID: "write", Message: "done"},
			want: "write: done",
		},
		"no total": {
			prog: mobyprogress.Progress{Action: "resolving", Current: 1},
			want: "resolving",
		},
	} {
		t.Run(name, func(t *testing.T) {
			if diff := cmp.Diff(tc.want, progress.Format(tc.prog)); diff != "" {
				t.Errorf("(-want +got):\n%s", diff)
			}
		})
	}
}

func TestOutputNonTerminal(t *testing.T) {
	var buf bytes.Buffer
	out := progress.NewOutput(&buf, false)
	out.WriteProgress(mobyprogress.Progress{ID: "write", Action: "wrote", Current: 1, Total: 2})
	out.WriteProgress(mobyprogress.Progress{ID: "write", Action: "wrote", Current: 2, Total: 2, LastUpdate: true})

	if diff := cmp.Diff("write: wrote 2/2\n", buf.String()); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestOutputTerminal(t *testing.T) {
	var buf bytes.Buffer
	out := progress.NewOutput(&buf, true)
	out.WriteProgress(mobyprogress.Progress{ID: "write", Action: "wrote", Current: 1, Total: 2})
	out.WriteProgress(mobyprogress.Progress{ID: "write", Action: "wrote", Current: 2, Total: 2, LastUpdate: true})

	got := buf.String()
	if strings.Count(got, "\r") != 2 || !strings.HasSuffix(got, "write: wrote 2/2\n") {
		t.Errorf("unexpected terminal output %q", got)
	}
}

func TestLogOutput(t *testing.T) {
	out := progress.NewLogOutput(testutil.NewTestLogger(t))
	if err := out.WriteProgress(mobyprogress.Progress{ID: "index", Action: "classified", Current: 1, Total: 1, LastUpdate: true}); err != nil {
		t.Fatal(err)
	}
}
