package stubjar

import (
	"bytes"
	"io"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/stackb/jvm-abi/pkg/java"
	"github.com/stackb/jvm-abi/pkg/library"
)

// EntryKind is the variant tag of a StubEntry.
type EntryKind int

const (
	// ResourceEntry is a non-class member copied unchanged.
	ResourceEntry EntryKind = iota
	// ClassEntry is a class file reduced to its binary interface.
	ClassEntry
)

func (k EntryKind) String() string {
	switch k {
	case ResourceEntry:
		return "resource"
	case ClassEntry:
		return "class"
	}
	return "unknown"
}

// classCache holds class files parsed during indexing so that writing does
// not read and parse them a second time.
type classCache = lru.Cache[library.Path, *java.ClassFile]

// StubEntry is one member of the stub jar. It references the library it
// came from and fetches bytes only when written.
type StubEntry struct {
	kind   EntryKind
	path   library.Path
	reader library.Reader

	// class entries only
	header       *ClassHeader
	policy       java.ABIPolicy
	cache        *classCache
	extendsScope bool
}

// entryBehavior is the per-variant implementation of the StubEntry
// operations.
type entryBehavior struct {
	producer                   func(e *StubEntry) Producer
	inlineFunctions            func(e *StubEntry) []string
	extendsInlineFunctionScope func(e *StubEntry) bool
}

var behaviors = [...]entryBehavior{
	ResourceEntry: {
		producer:                   (*StubEntry).resourceProducer,
		inlineFunctions:            func(*StubEntry) []string { return nil },
		extendsInlineFunctionScope: func(*StubEntry) bool { return false },
	},
	ClassEntry: {
		producer:                   (*StubEntry).classProducer,
		inlineFunctions:            func(e *StubEntry) []string { return e.header.InlineFunctions },
		extendsInlineFunctionScope: func(e *StubEntry) bool { return e.extendsScope },
	},
}

// NewResourceEntry returns an entry that copies a member verbatim.
func NewResourceEntry(p library.Path, reader library.Reader) *StubEntry {
	return &StubEntry{kind: ResourceEntry, path: p, reader: reader}
}

// NewClassEntry returns an entry that writes the ABI of a class member. The
// header is the summary built while indexing.
func NewClassEntry(p library.Path, reader library.Reader, header *ClassHeader, policy java.ABIPolicy) *StubEntry {
	return &StubEntry{kind: ClassEntry, path: p, reader: reader, header: header, policy: policy}
}

// Kind returns the variant tag.
func (e *StubEntry) Kind() EntryKind {
	return e.kind
}

// Path returns the member path, which is also the stub jar entry name.
func (e *StubEntry) Path() library.Path {
	return e.path
}

// Header returns the class summary, or nil for a resource.
func (e *StubEntry) Header() *ClassHeader {
	return e.header
}

// Write sends exactly one entry at e.Path() to the writer.
func (e *StubEntry) Write(w StubJarWriter) error {
	return w.WriteEntry(e.path, behaviors[e.kind].producer(e))
}

// InlineFunctions returns the qualified names of the inline methods declared
// by this entry.
func (e *StubEntry) InlineFunctions() []string {
	return behaviors[e.kind].inlineFunctions(e)
}

// ExtendsInlineFunctionScope reports whether a supertype of this entry's
// class declares inline functions. It is meaningful once the entry has been
// bound to a complete index.
func (e *StubEntry) ExtendsInlineFunctionScope() bool {
	return behaviors[e.kind].extendsInlineFunctionScope(e)
}

// bind resolves the index-derived metadata of a class entry.
func (e *StubEntry) bind(index *InlineIndex) {
	if e.kind == ClassEntry {
		e.extendsScope = index.ExtendsInlineScope(e.header.Name)
	}
}

func (e *StubEntry) resourceProducer() Producer {
	return ProducerFunc(func() (io.ReadCloser, error) {
		rc, err := e.reader.OpenResourceFile(e.path)
		if err != nil {
			return nil, &ReadFailure{Path: e.path, Err: err}
		}
		return rc, nil
	})
}

func (e *StubEntry) classProducer() Producer {
	return ProducerFunc(func() (io.ReadCloser, error) {
		clazz, err := e.classFile()
		if err != nil {
			return nil, err
		}
		stub, err := clazz.ReduceToABI(e.policy)
		if err != nil {
			return nil, &ClassifyFailure{Path: e.path, Err: err}
		}
		return io.NopCloser(bytes.NewReader(stub.Bytes())), nil
	})
}

// classFile returns the parsed member, from the cache when possible.
func (e *StubEntry) classFile() (*java.ClassFile, error) {
	if e.cache != nil {
		if clazz, ok := e.cache.Get(e.path); ok {
			return clazz, nil
		}
	}
	return readClassFile(e.reader, e.path)
}

func readClassFile(reader library.Reader, p library.Path) (*java.ClassFile, error) {
	rc, err := reader.OpenClassFile(p)
	if err != nil {
		return nil, &ReadFailure{Path: p, Err: err}
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, &ReadFailure{Path: p, Err: err}
	}
	clazz, err := java.Parse(data)
	if err != nil {
		return nil, &ClassifyFailure{Path: p, Err: err}
	}
	return clazz, nil
}
