package stubjar_test

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bazelbuild/bazel-gazelle/testtools"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/stackb/jvm-abi/pkg/java"
	"github.com/stackb/jvm-abi/pkg/java/javatest"
	"github.com/stackb/jvm-abi/pkg/library"
	"github.com/stackb/jvm-abi/pkg/stubjar"
	"github.com/stackb/jvm-abi/pkg/stubjar/mocks"
	"github.com/stackb/jvm-abi/pkg/testutil"
)

const inlineOnly = "Lkotlin/internal/InlineOnly;"

func fooClass(body string) []byte {
	return javatest.NewClass("pkg/Foo", "java/lang/Object").
		Method(java.AccPublic, "<init>", "()V", javatest.Code(0x2A, 0xB1)).
		Method(java.AccPublic, "bar", "()Ljava/lang/String;", javatest.Annotated(inlineOnly), javatest.CodeReturningString("inlined")).
		Method(java.AccPublic, "baz", "()Ljava/lang/String;", javatest.CodeReturningString(body)).
		Method(java.AccPrivate, "helper", "()V", javatest.Code(0xB1)).
		SourceFile("Foo.java").
		Bytes()
}

// unreducibleClass parses and indexes, but its inline body holds an opcode
// the reducer does not know, so it fails only when written.
func unreducibleClass() []byte {
	return javatest.NewClass("pkg/Bad", "java/lang/Object").
		Method(java.AccPublic|java.AccStatic, "f", "()V", javatest.Annotated(inlineOnly), javatest.Code(0xCA, 0xB1)).
		Bytes()
}

func openLibrary(t *testing.T, files []testtools.FileSpec, options ...library.ReaderOption) library.Reader {
	t.Helper()
	dir, _, _ := testutil.MustPrepareTestFiles(t, files)
	t.Cleanup(func() { os.RemoveAll(dir) })
	reader, err := library.Open(dir, options...)
	require.NoError(t, err)
	t.Cleanup(func() { reader.Close() })
	return reader
}

// methodsWithCode lists "name:body" or "name:stub" for every method of a class file.
func methodsWithCode(t *testing.T, data string) []string {
	t.Helper()
	clazz, err := java.Parse([]byte(data))
	require.NoError(t, err)
	var got []string
	for _, m := range clazz.Methods {
		hasCode := clazz.FindAttribute(m.Attributes, java.AttrCode) != nil
		got = append(got, clazz.MemberName(m)+":"+map[bool]string{true: "body", false: "stub"}[hasCode])
	}
	return got
}

func TestAssembleFooScenario(t *testing.T) {
	reader := openLibrary(t, []testtools.FileSpec{
		{Path: "pkg/Foo.txt", Content: "hello"},
		{Path: "pkg/Foo.class", Content: string(fooClass("secret"))},
	})
	out := filepath.Join(testutil.MustMakeTmpDir(t), "out", "foo-abi.jar")
	w, err := stubjar.NewJarWriter(out)
	require.NoError(t, err)

	result, err := stubjar.NewAssembler().Assemble(context.Background(), reader, w)
	require.NoError(t, err)

	files := testutil.MustReadJar(t, out)
	var names []string
	for _, f := range files {
		names = append(names, f.Path)
	}
	if diff := cmp.Diff([]string{"pkg/Foo.class", "pkg/Foo.txt"}, names); diff != "" {
		t.Fatalf("entries (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"<init>:stub", "bar:body", "baz:stub"}, methodsWithCode(t, files[0].Content)); diff != "" {
		t.Errorf("methods (-want +got):\n%s", diff)
	}
	if files[1].Content != "hello" {
		t.Errorf("resource: want hello, got %q", files[1].Content)
	}
	if strings.Contains(files[0].Content, "Foo.java") {
		t.Error("SourceFile survived")
	}

	want := []stubjar.EntryReport{
		{Path: "pkg/Foo.class", Kind: "class", InlineFunctions: []string{"pkg.Foo.bar"}},
		{Path: "pkg/Foo.txt", Kind: "resource"},
	}
	if diff := cmp.Diff(want, result.Entries); diff != "" {
		t.Errorf("result (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"pkg/Foo"}, result.InlineProviders); diff != "" {
		t.Errorf("inline providers (-want +got):\n%s", diff)
	}
}

func TestAssembleDeterministic(t *testing.T) {
	files := []testtools.FileSpec{
		{Path: "z/Last.txt", Content: "last"},
		{Path: "META-INF/MANIFEST.MF", Content: "Manifest-Version: 1.0\n"},
		{Path: "pkg/Foo.class", Content: string(fooClass("secret"))},
		{Path: "pkg/Bar.class", Content: string(javatest.NewClass("pkg/Bar", "pkg/Foo").Bytes())},
		{Path: "a/First.txt", Content: "first"},
	}
	reversed := make([]testtools.FileSpec, len(files))
	for i, f := range files {
		reversed[len(files)-1-i] = f
	}
	tmp := testutil.MustMakeTmpDir(t)
	jarA := filepath.Join(tmp, "a.jar")
	jarB := filepath.Join(tmp, "b.jar")
	testutil.MustWriteJar(t, jarA, files)
	testutil.MustWriteJar(t, jarB, reversed)

	build := func(input string, workers int) []byte {
		reader, err := library.Open(input)
		require.NoError(t, err)
		defer reader.Close()
		out := filepath.Join(tmp, "out.jar")
		w, err := stubjar.NewJarWriter(out)
		require.NoError(t, err)
		_, err = stubjar.NewAssembler(stubjar.WithWorkers(workers)).Assemble(context.Background(), reader, w)
		require.NoError(t, err)
		data, err := os.ReadFile(out)
		require.NoError(t, err)
		return data
	}

	want := build(jarA, 1)
	for name, tc := range map[string]struct {
		input   string
		workers int
	}{
		"same input again":   {input: jarA, workers: 1},
		"parallel":           {input: jarA, workers: 4},
		"reordered input":    {input: jarB, workers: 1},
		"reordered parallel": {input: jarB, workers: 8},
	} {
		t.Run(name, func(t *testing.T) {
			if got := build(tc.input, tc.workers); string(got) != string(want) {
				t.Error("stub jar bytes differ")
			}
		})
	}

	digest, err := stubjar.Digest(strings.NewReader(string(want)))
	require.NoError(t, err)
	if len(digest) != 64 {
		t.Errorf("want 32 byte hex digest, got %q", digest)
	}
}

func TestAssembleIgnoresBodyChanges(t *testing.T) {
	render := func(body string) string {
		reader := openLibrary(t, []testtools.FileSpec{
			{Path: "pkg/Foo.class", Content: string(fooClass(body))},
		})
		w := stubjar.NewMemoryWriter()
		_, err := stubjar.NewAssembler().Assemble(context.Background(), reader, w)
		require.NoError(t, err)
		require.True(t, w.Committed())
		return string(w.Entries()[0].Data)
	}
	if render("one") != render("two") {
		t.Error("non-inline body change altered the stub")
	}
}

func TestAssembleInlinePropagation(t *testing.T) {
	class := func(b *javatest.ClassBuilder) string { return string(b.Bytes()) }
	inline := func(b *javatest.ClassBuilder, name string) *javatest.ClassBuilder {
		return b.Method(java.AccPublic|java.AccStatic, name, "()V", javatest.Annotated(inlineOnly), javatest.Code(0xB1))
	}
	iface := func(name string) *javatest.ClassBuilder {
		return javatest.NewClass(name, "java/lang/Object").Access(java.AccPublic | java.AccInterface | java.AccAbstract)
	}

	deps := openLibrary(t, []testtools.FileSpec{
		{Path: "dep/Base.class", Content: class(inline(javatest.NewClass("dep/Base", "java/lang/Object"), "h"))},
		{Path: "dep/Plain.class", Content: class(javatest.NewClass("dep/Plain", "java/lang/Object"))},
	})
	reader := openLibrary(t, []testtools.FileSpec{
		{Path: "pkg/A.class", Content: class(inline(javatest.NewClass("pkg/A", "java/lang/Object"), "f"))},
		{Path: "pkg/B.class", Content: class(javatest.NewClass("pkg/B", "pkg/A"))},
		{Path: "pkg/C.class", Content: class(javatest.NewClass("pkg/C", "pkg/B"))},
		{Path: "pkg/I.class", Content: class(inline(iface("pkg/I"), "g"))},
		{Path: "pkg/D.class", Content: class(javatest.NewClass("pkg/D", "java/lang/Object").Implements("pkg/I"))},
		{Path: "pkg/E.class", Content: class(javatest.NewClass("pkg/E", "dep/Base"))},
		{Path: "pkg/F.class", Content: class(javatest.NewClass("pkg/F", "dep/Plain"))},
		{Path: "pkg/X.class", Content: class(javatest.NewClass("pkg/X", "pkg/Y"))},
		{Path: "pkg/Y.class", Content: class(javatest.NewClass("pkg/Y", "pkg/X"))},
	})

	for name, tc := range map[string]struct {
		options        []stubjar.AssemblerOption
		wantExtends    []string
		wantUnresolved []string
	}{
		"library only": {
			wantExtends:    []string{"pkg/B.class", "pkg/C.class", "pkg/D.class"},
			wantUnresolved: []string{"dep/Base", "dep/Plain", "java/lang/Object"},
		},
		"with class path": {
			options:        []stubjar.AssemblerOption{stubjar.WithClassPath(java.NewClassPathFromReaders(deps))},
			wantExtends:    []string{"pkg/B.class", "pkg/C.class", "pkg/D.class", "pkg/E.class"},
			wantUnresolved: []string{"java/lang/Object"},
		},
		"parallel with class path": {
			options: []stubjar.AssemblerOption{
				stubjar.WithClassPath(java.NewClassPathFromReaders(deps)),
				stubjar.WithWorkers(4),
			},
			wantExtends:    []string{"pkg/B.class", "pkg/C.class", "pkg/D.class", "pkg/E.class"},
			wantUnresolved: []string{"java/lang/Object"},
		},
	} {
		t.Run(name, func(t *testing.T) {
			result, err := stubjar.NewAssembler(tc.options...).Assemble(context.Background(), reader, &stubjar.DryRunWriter{})
			require.NoError(t, err)
			var extends []string
			for _, e := range result.Entries {
				if e.ExtendsInlineFunctionScope {
					extends = append(extends, string(e.Path))
				}
			}
			if diff := cmp.Diff(tc.wantExtends, extends); diff != "" {
				t.Errorf("extends inline scope (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tc.wantUnresolved, result.Unresolved); diff != "" {
				t.Errorf("unresolved (-want +got):\n%s", diff)
			}
		})
	}
}

func TestAssembleFailures(t *testing.T) {
	for name, tc := range map[string]struct {
		files   []testtools.FileSpec
		check   func(t *testing.T, err error)
		workers int
	}{
		"corrupt class is a classify failure": {
			files: []testtools.FileSpec{
				{Path: "pkg/A.txt", Content: "ok"},
				{Path: "pkg/Bad.class", Content: "not a class file"},
			},
			check: func(t *testing.T, err error) {
				var cf *stubjar.ClassifyFailure
				require.ErrorAs(t, err, &cf)
				if cf.Path != "pkg/Bad.class" {
					t.Errorf("want path pkg/Bad.class, got %s", cf.Path)
				}
			},
		},
		"corrupt class with parallel workers": {
			files: []testtools.FileSpec{
				{Path: "pkg/Foo.class", Content: string(fooClass("x"))},
				{Path: "pkg/Bad.class", Content: "\xca\xfe\xba\xbe"},
			},
			workers: 4,
			check: func(t *testing.T, err error) {
				var cf *stubjar.ClassifyFailure
				require.ErrorAs(t, err, &cf)
			},
		},
		"reduction failure while writing": {
			files: []testtools.FileSpec{
				{Path: "pkg/A.txt", Content: "ok"},
				{Path: "pkg/Bad.class", Content: string(unreducibleClass())},
				{Path: "pkg/Foo.class", Content: string(fooClass("x"))},
			},
			check: func(t *testing.T, err error) {
				var cf *stubjar.ClassifyFailure
				require.ErrorAs(t, err, &cf)
				require.Equal(t, library.Path("pkg/Bad.class"), cf.Path)
				require.ErrorContains(t, err, "unknown opcode 0xca")
			},
		},
		"reduction failure while writing in parallel": {
			files: []testtools.FileSpec{
				{Path: "pkg/A.txt", Content: "ok"},
				{Path: "pkg/Bad.class", Content: string(unreducibleClass())},
				{Path: "pkg/Foo.class", Content: string(fooClass("x"))},
				{Path: "z/Last.txt", Content: "last"},
			},
			workers: 4,
			check: func(t *testing.T, err error) {
				var cf *stubjar.ClassifyFailure
				require.ErrorAs(t, err, &cf)
				require.Equal(t, library.Path("pkg/Bad.class"), cf.Path)
			},
		},
	} {
		t.Run(name, func(t *testing.T) {
			reader := openLibrary(t, tc.files)
			dir := testutil.MustMakeTmpDir(t)
			out := filepath.Join(dir, "abi.jar")
			w, err := stubjar.NewJarWriter(out)
			require.NoError(t, err)

			_, err = stubjar.NewAssembler(stubjar.WithWorkers(tc.workers)).Assemble(context.Background(), reader, w)
			require.Error(t, err)
			tc.check(t, err)

			left, err := os.ReadDir(dir)
			require.NoError(t, err)
			if len(left) != 0 {
				t.Errorf("aborted assembly left files behind: %v", left)
			}
		})
	}
}

func TestAssembleCancelled(t *testing.T) {
	reader := openLibrary(t, []testtools.FileSpec{
		{Path: "pkg/Foo.class", Content: string(fooClass("x"))},
	})
	dir := testutil.MustMakeTmpDir(t)
	w, err := stubjar.NewJarWriter(filepath.Join(dir, "abi.jar"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = stubjar.NewAssembler().Assemble(ctx, reader, w)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
	left, err := os.ReadDir(dir)
	require.NoError(t, err)
	if len(left) != 0 {
		t.Errorf("cancelled assembly left files behind: %v", left)
	}
}

func TestAssembleCancelledWhileWriting(t *testing.T) {
	reader := openLibrary(t, []testtools.FileSpec{
		{Path: "a.txt", Content: "a"},
		{Path: "b.txt", Content: "b"},
		{Path: "pkg/Foo.class", Content: string(fooClass("x"))},
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := mocks.NewStubJarWriter(t)
	w.On("WriteEntry", library.Path("a.txt"), mock.Anything).
		Run(func(mock.Arguments) { cancel() }).
		Return(nil)
	w.On("Abort").Return(nil)

	_, err := stubjar.NewAssembler(stubjar.WithWorkers(4)).Assemble(ctx, reader, w)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
	w.AssertNotCalled(t, "WriteEntry", library.Path("b.txt"), mock.Anything)
	w.AssertNotCalled(t, "Commit")
}

func TestAssembleWriteFailureAborts(t *testing.T) {
	reader := openLibrary(t, []testtools.FileSpec{
		{Path: "a.txt", Content: "a"},
		{Path: "b.txt", Content: "b"},
	})
	diskFull := errors.New("disk full")

	w := mocks.NewStubJarWriter(t)
	w.On("WriteEntry", library.Path("a.txt"), mock.Anything).Return(diskFull)
	w.On("Abort").Return(nil)

	_, err := stubjar.NewAssembler().Assemble(context.Background(), reader, w)
	if !errors.Is(err, diskFull) {
		t.Fatalf("want disk full, got %v", err)
	}
	w.AssertNotCalled(t, "WriteEntry", library.Path("b.txt"), mock.Anything)
	w.AssertNotCalled(t, "Commit")
}

func TestAssembleExcludes(t *testing.T) {
	reader := openLibrary(t, []testtools.FileSpec{
		{Path: "META-INF/MANIFEST.MF", Content: "Manifest-Version: 1.0\n"},
		{Path: "META-INF/SIGNER.SF", Content: "sig"},
		{Path: "META-INF/SIGNER.RSA", Content: "sig"},
		{Path: "pkg/Foo.class", Content: string(fooClass("x"))},
	}, library.WithExcludes("META-INF/*.SF", "META-INF/*.RSA", "META-INF/*.DSA"))

	c := mocks.NewEntryCapturer(t)
	_, err := stubjar.NewAssembler().Assemble(context.Background(), reader, c.Writer)
	require.NoError(t, err)

	want := []library.Path{"META-INF/MANIFEST.MF", "pkg/Foo.class"}
	if diff := cmp.Diff(want, c.Got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestDryRunNeverProduces(t *testing.T) {
	reader := openLibrary(t, []testtools.FileSpec{
		{Path: "a.txt", Content: "a"},
		{Path: "pkg/Foo.class", Content: string(fooClass("x"))},
	})
	w := &stubjar.DryRunWriter{}
	_, err := stubjar.NewAssembler(stubjar.WithWorkers(4)).Assemble(context.Background(), reader, w)
	require.NoError(t, err)
	if diff := cmp.Diff([]library.Path{"a.txt", "pkg/Foo.class"}, w.Paths); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
	if !w.Committed {
		t.Error("dry run was not committed")
	}

	produced := false
	err = w.WriteEntry("b.txt", stubjar.ProducerFunc(func() (io.ReadCloser, error) {
		produced = true
		return nil, nil
	}))
	require.NoError(t, err)
	if produced {
		t.Error("dry run invoked a producer")
	}
}
