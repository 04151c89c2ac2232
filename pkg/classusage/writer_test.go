package classusage_test

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/stackb/jvm-abi/pkg/classusage"
	"github.com/stackb/jvm-abi/pkg/testutil"
)

func TestWriteFileScenario(t *testing.T) {
	root := testutil.MustMakeTmpDir(t)
	out := filepath.Join(root, "buck-out")

	recorder := classusage.NewRecorder()
	recorder.Record("Main.java", filepath.Join(out, "pkg/Foo.class"))
	recorder.Record("Main.java", filepath.Join(out, "pkg/Bar.class"))
	recorder.Record("Main.java", filepath.Join(out, "pkg/Foo.class"))

	err := classusage.NewFileWriter().WriteFile(recorder.Snapshot(), "gen/used-classes.json", root, "buck-out")
	require.NoError(t, err)

	got := testutil.MustReadTestFile(t, root, "gen/used-classes.json")
	want := `{
  "Main.java": [
    "pkg/Bar.class",
    "pkg/Foo.class"
  ]
}
`
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestRelativize(t *testing.T) {
	root := filepath.FromSlash("/work/repo")
	abs := func(p string) string { return filepath.Join(root, filepath.FromSlash(p)) }

	for name, tc := range map[string]struct {
		usages     map[string][]string
		outputRoot string
		want       map[string][]string
		wantErr    bool
	}{
		"under output root": {
			usages:     map[string][]string{"Main.java": {abs("buck-out/gen/pkg/Foo.class")}},
			outputRoot: "buck-out",
			want:       map[string][]string{"Main.java": {"gen/pkg/Foo.class"}},
		},
		"under root outside output root": {
			usages:     map[string][]string{"Main.java": {abs("third-party/dep.jar")}},
			outputRoot: "buck-out",
			want:       map[string][]string{"Main.java": {"../third-party/dep.jar"}},
		},
		"outside root is dropped": {
			usages: map[string][]string{
				"Main.java": {filepath.FromSlash("/usr/lib/jvm/rt.jar"), abs("buck-out/A.class")},
				"Util.java": {filepath.FromSlash("/usr/lib/jvm/rt.jar")},
			},
			outputRoot: "buck-out",
			want:       map[string][]string{"Main.java": {"A.class"}},
		},
		"relative class paths kept": {
			usages:     map[string][]string{"Main.java": {"gen/./pkg/Foo.class"}},
			outputRoot: "buck-out",
			want:       map[string][]string{"Main.java": {"gen/pkg/Foo.class"}},
		},
		"jar entries": {
			usages:     map[string][]string{"Main.java": {abs("buck-out/lib/dep.jar") + "!/com/foo/Bar.class"}},
			outputRoot: "buck-out",
			want:       map[string][]string{"Main.java": {"lib/dep.jar!/com/foo/Bar.class"}},
		},
		"absolute sources relative to root and merged": {
			usages: map[string][]string{
				abs("src/Main.java"): {"b.class"},
				"src/Main.java":      {"a.class", "b.class"},
			},
			outputRoot: "buck-out",
			want:       map[string][]string{"src/Main.java": {"a.class", "b.class"}},
		},
		"output root escapes root": {
			usages:     map[string][]string{"Main.java": {"a.class"}},
			outputRoot: "../elsewhere",
			wantErr:    true,
		},
	} {
		t.Run(name, func(t *testing.T) {
			got, err := classusage.NewFileWriter(classusage.WithLogger(testutil.NewTestLogger(t))).
				Relativize(classusage.NewMap(tc.usages), root, tc.outputRoot)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			if diff := cmp.Diff(tc.want, got.AsMap()); diff != "" {
				t.Errorf("(-want +got):\n%s", diff)
			}
		})
	}
}

func TestPortability(t *testing.T) {
	write := func(root string) string {
		usages := classusage.NewMap(map[string][]string{
			filepath.Join(root, "src/Main.java"): {filepath.Join(root, "out/pkg/Foo.class")},
		})
		require.NoError(t, classusage.NewFileWriter().WriteFile(usages, "usage.json", root, "out"))
		return testutil.MustReadTestFile(t, root, "usage.json")
	}
	a := write(testutil.MustMakeTmpDir(t))
	b := write(filepath.Join(testutil.MustMakeTmpDir(t), "nested", "checkout"))
	if a != b {
		t.Errorf("manifest depends on the root path:\n%s\n%s", a, b)
	}
}

func TestMinimality(t *testing.T) {
	recorder := classusage.NewRecorder()
	recorder.Record("Main.java", "pkg/Foo.class")
	usages := classusage.NewMap(map[string][]string{
		"Main.java": {"pkg/Foo.class"},
		"Util.java": nil,
	})
	for name, m := range map[string]classusage.Map{"map": usages, "recorder": recorder.Snapshot()} {
		t.Run(name, func(t *testing.T) {
			if diff := cmp.Diff([]string{"Main.java"}, m.Sources()); diff != "" {
				t.Errorf("(-want +got):\n%s", diff)
			}
		})
	}
}

func TestFormatsRoundTrip(t *testing.T) {
	root := testutil.MustMakeTmpDir(t)
	usages := classusage.NewMap(map[string][]string{
		"b/Main.java": {"pkg/Foo.class", "pkg/Bar.class"},
		"a/Util.java": {"lib/dep.jar!/x/Y.class"},
	})
	w := classusage.NewFileWriter()
	for _, name := range []string{"usage.json", "usage.pb"} {
		require.NoError(t, w.WriteFile(usages, name, root, "."))
	}

	fromJSON, err := classusage.ReadFile(filepath.Join(root, "usage.json"))
	require.NoError(t, err)
	fromProto, err := classusage.ReadFile(filepath.Join(root, "usage.pb"))
	require.NoError(t, err)
	if diff := cmp.Diff(usages.AsMap(), fromJSON.AsMap()); diff != "" {
		t.Errorf("json (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(fromJSON.AsMap(), fromProto.AsMap()); diff != "" {
		t.Errorf("pb (-want +got):\n%s", diff)
	}

	// identical input gives identical bytes
	first := testutil.MustReadTestFile(t, root, "usage.pb")
	require.NoError(t, w.WriteFile(usages, "usage.pb", root, "."))
	if first != testutil.MustReadTestFile(t, root, "usage.pb") {
		t.Error("binary manifest is not deterministic")
	}
}

func TestWriteFileFailure(t *testing.T) {
	root := testutil.MustMakeTmpDir(t)
	// a regular file where the manifest directory should be
	require.NoError(t, os.WriteFile(filepath.Join(root, "gen"), []byte("x"), 0o644))

	err := classusage.NewFileWriter().WriteFile(classusage.NewMap(nil), "gen/usage.json", root, "out")
	var mwf *classusage.ManifestWriteFailure
	if !errors.As(err, &mwf) {
		t.Fatalf("want ManifestWriteFailure, got %v", err)
	}

	err = classusage.NewFileWriter().WriteFile(classusage.NewMap(nil), "usage.json", "relative/root", "out")
	if !errors.As(err, &mwf) {
		t.Fatalf("want ManifestWriteFailure for relative root, got %v", err)
	}
	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	if len(entries) != 1 {
		t.Errorf("failed writes left files behind: %v", entries)
	}
}

func TestRecorderConcurrent(t *testing.T) {
	recorder := classusage.NewRecorder()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			recorder.Record("Main.java", "pkg/Foo.class")
			recorder.Record("Util.java", "pkg/Bar.class")
		}()
	}
	wg.Wait()
	want := map[string][]string{
		"Main.java": {"pkg/Foo.class"},
		"Util.java": {"pkg/Bar.class"},
	}
	if diff := cmp.Diff(want, recorder.Snapshot().AsMap()); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}
