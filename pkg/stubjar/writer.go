package stubjar

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/stackb/jvm-abi/pkg/library"
)

// Producer supplies the bytes of one stub jar entry on demand.
type Producer interface {
	Produce() (io.ReadCloser, error)
}

// ProducerFunc adapts a function to the Producer interface.
type ProducerFunc func() (io.ReadCloser, error)

// Produce implements the Producer interface.
func (f ProducerFunc) Produce() (io.ReadCloser, error) {
	return f()
}

// BytesProducer returns a Producer for an in-memory entry.
func BytesProducer(data []byte) Producer {
	return ProducerFunc(func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	})
}

// StubJarWriter is the sink a stub jar is assembled into. Entries must be
// written in the order they should appear in the output. Nothing is visible
// to readers of the output until Commit succeeds; Abort discards everything.
type StubJarWriter interface {
	// WriteEntry adds one entry. The producer is invoked at most once.
	// Errors returned by the producer are passed through unchanged.
	WriteEntry(path library.Path, producer Producer) error
	// Commit finalizes the output.
	Commit() error
	// Abort discards the output. It is safe to call after Commit, in which
	// case it does nothing.
	Abort() error
}

// dryRunner is implemented by writers that never invoke producers.
type dryRunner interface {
	DryRun() bool
}

// readTracker records errors from the entry source so they can be told
// apart from errors writing the sink during a copy.
type readTracker struct {
	r   io.Reader
	err error
}

func (t *readTracker) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if err != nil && err != io.EOF {
		t.err = err
	}
	return n, err
}

// copyEntry copies the producer's bytes into w, classifying failures.
func copyEntry(w io.Writer, path library.Path, producer Producer) error {
	rc, err := producer.Produce()
	if err != nil {
		return err
	}
	defer rc.Close()
	src := &readTracker{r: rc}
	if _, err := io.Copy(w, src); err != nil {
		if src.err != nil {
			return &ReadFailure{Path: path, Err: src.err}
		}
		return &WriteFailure{Path: path, Err: err}
	}
	return nil
}

// MemoryEntry is one entry captured by a MemoryWriter.
type MemoryEntry struct {
	Path library.Path
	Data []byte
}

// MemoryWriter collects entries in memory, in write order.
type MemoryWriter struct {
	mu        sync.Mutex
	entries   []MemoryEntry
	seen      map[library.Path]bool
	committed bool
}

// NewMemoryWriter returns an empty MemoryWriter.
func NewMemoryWriter() *MemoryWriter {
	return &MemoryWriter{seen: make(map[library.Path]bool)}
}

// WriteEntry implements part of the StubJarWriter interface.
func (w *MemoryWriter) WriteEntry(path library.Path, producer Producer) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.committed {
		return &WriteFailure{Path: path, Err: fmt.Errorf("writer already committed")}
	}
	if w.seen[path] {
		return &WriteFailure{Path: path, Err: fmt.Errorf("duplicate entry")}
	}
	var buf bytes.Buffer
	if err := copyEntry(&buf, path, producer); err != nil {
		return err
	}
	w.seen[path] = true
	w.entries = append(w.entries, MemoryEntry{Path: path, Data: buf.Bytes()})
	return nil
}

// Commit implements part of the StubJarWriter interface.
func (w *MemoryWriter) Commit() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.committed = true
	return nil
}

// Abort implements part of the StubJarWriter interface.
func (w *MemoryWriter) Abort() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.committed {
		w.entries = nil
		w.seen = make(map[library.Path]bool)
	}
	return nil
}

// Entries returns the captured entries.
func (w *MemoryWriter) Entries() []MemoryEntry {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]MemoryEntry(nil), w.entries...)
}

// Committed reports whether Commit was called.
func (w *MemoryWriter) Committed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.committed
}

// DryRunWriter records the entry paths that would be written without ever
// invoking a producer.
type DryRunWriter struct {
	Paths     []library.Path
	Committed bool
}

// WriteEntry implements part of the StubJarWriter interface.
func (w *DryRunWriter) WriteEntry(path library.Path, producer Producer) error {
	w.Paths = append(w.Paths, path)
	return nil
}

// DryRun reports that producers are never invoked.
func (w *DryRunWriter) DryRun() bool {
	return true
}

// Commit implements part of the StubJarWriter interface.
func (w *DryRunWriter) Commit() error {
	w.Committed = true
	return nil
}

// Abort implements part of the StubJarWriter interface.
func (w *DryRunWriter) Abort() error {
	if !w.Committed {
		w.Paths = nil
	}
	return nil
}
