package java_test

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/bazelbuild/bazel-gazelle/testtools"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/stackb/jvm-abi/pkg/java"
	"github.com/stackb/jvm-abi/pkg/java/javatest"
	"github.com/stackb/jvm-abi/pkg/library"
	"github.com/stackb/jvm-abi/pkg/testutil"
)

func TestSplitClassPath(t *testing.T) {
	sep := string(filepath.ListSeparator)
	for name, tc := range map[string]struct {
		in   string
		want []string
	}{
		"empty":          {in: "", want: nil},
		"single":         {in: "a.jar", want: []string{"a.jar"}},
		"empty segments": {in: strings.Join([]string{"a.jar", "", "classes", ""}, sep), want: []string{"a.jar", "classes"}},
	} {
		t.Run(name, func(t *testing.T) {
			if diff := cmp.Diff(tc.want, java.SplitClassPath(tc.in)); diff != "" {
				t.Errorf("(-want +got):\n%s", diff)
			}
		})
	}
}

func TestClassPathLookup(t *testing.T) {
	first := javatest.NewClass("dep/Base", "java/lang/Object").SourceFile("First.java").Bytes()
	second := javatest.NewClass("dep/Base", "java/lang/Object").SourceFile("Second.java").Bytes()

	dir1, _, _ := testutil.MustPrepareTestFiles(t, []testtools.FileSpec{
		{Path: "dep/Base.class", Content: string(first)},
	})
	jar := filepath.Join(testutil.MustMakeTmpDir(t), "dep.jar")
	testutil.MustWriteJar(t, jar, []testtools.FileSpec{
		{Path: "dep/Base.class", Content: string(second)},
		{Path: "dep/Other.class", Content: string(javatest.NewClass("dep/Other", "dep/Base").Bytes())},
		{Path: "dep/notes.txt", Content: "not a class"},
	})

	cp, err := java.OpenClassPath([]string{dir1, jar}, library.WithLogger(testutil.NewTestLogger(t)))
	require.NoError(t, err)
	defer cp.Close()
	require.Equal(t, 2, cp.Len())

	data, err := cp.ReadClass("dep/Base")
	require.NoError(t, err)
	require.Equal(t, first, data, "first entry wins")

	_, err = cp.ReadClass("dep/Missing")
	require.ErrorContains(t, err, "dep/Missing")

	data, err = cp.ReadClass("dep/Other")
	require.NoError(t, err, "later entries are searched")
	other, err := java.Parse(data)
	require.NoError(t, err)
	require.Equal(t, "dep/Base", other.SuperName())
}

func TestOpenClassPathError(t *testing.T) {
	_, err := java.OpenClassPath([]string{filepath.Join(testutil.MustMakeTmpDir(t), "missing.jar")})
	require.ErrorContains(t, err, "missing.jar")
}
