package stubjar

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zip"

	"github.com/stackb/jvm-abi/pkg/library"
)

// FixedEntryTime is stamped on every jar entry (1980-01-01 UTC, the zip
// epoch) so output does not depend on when it was built.
var FixedEntryTime = time.Unix(315532800, 0).UTC()

// JarWriter writes a stub jar to a temporary file next to the destination
// and renames it into place on Commit.
type JarWriter struct {
	filename string
	tmp      *os.File
	zw       *zip.Writer
	seen     map[library.Path]bool
	done     bool
}

// NewJarWriter prepares a jar that becomes visible at filename on Commit.
func NewJarWriter(filename string) (*JarWriter, error) {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &WriteFailure{Err: err}
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(filename)+".tmp-*")
	if err != nil {
		return nil, &WriteFailure{Err: err}
	}
	return &JarWriter{
		filename: filename,
		tmp:      tmp,
		zw:       zip.NewWriter(tmp),
		seen:     make(map[library.Path]bool),
	}, nil
}

// Filename returns the final output location.
func (w *JarWriter) Filename() string {
	return w.filename
}

// WriteEntry implements part of the StubJarWriter interface.
func (w *JarWriter) WriteEntry(path library.Path, producer Producer) error {
	if w.done {
		return &WriteFailure{Path: path, Err: fmt.Errorf("writer is closed")}
	}
	if w.seen[path] {
		return &WriteFailure{Path: path, Err: fmt.Errorf("duplicate entry")}
	}
	w.seen[path] = true

	h := &zip.FileHeader{Name: string(path), Method: zip.Deflate}
	h.SetMode(0o644)
	h.Modified = FixedEntryTime
	out, err := w.zw.CreateHeader(h)
	if err != nil {
		return &WriteFailure{Path: path, Err: err}
	}
	return copyEntry(out, path, producer)
}

// Commit implements part of the StubJarWriter interface.
func (w *JarWriter) Commit() error {
	if w.done {
		return &WriteFailure{Err: fmt.Errorf("writer is closed")}
	}
	w.done = true
	if err := w.zw.Close(); err != nil {
		return w.fail(err)
	}
	if err := w.tmp.Sync(); err != nil {
		return w.fail(err)
	}
	if err := w.tmp.Close(); err != nil {
		return w.fail(err)
	}
	if err := os.Chmod(w.tmp.Name(), 0o644); err != nil {
		return w.fail(err)
	}
	if err := os.Rename(w.tmp.Name(), w.filename); err != nil {
		return w.fail(err)
	}
	return nil
}

// Abort implements part of the StubJarWriter interface.
func (w *JarWriter) Abort() error {
	if w.done {
		return nil
	}
	w.done = true
	w.tmp.Close()
	if err := os.Remove(w.tmp.Name()); err != nil && !os.IsNotExist(err) {
		return &WriteFailure{Err: err}
	}
	return nil
}

func (w *JarWriter) fail(err error) error {
	w.tmp.Close()
	os.Remove(w.tmp.Name())
	return &WriteFailure{Err: err}
}
