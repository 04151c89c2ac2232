package library

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog"
)

// Reader gives access to the members of a compiled library. Implementations
// support concurrent Open* calls for different members.
type Reader interface {
	// ListPaths returns every member of the library, sorted.
	ListPaths() ([]Path, error)
	// OpenClassFile opens a class file member.
	OpenClassFile(p Path) (io.ReadCloser, error)
	// OpenResourceFile opens any member as raw bytes.
	OpenResourceFile(p Path) (io.ReadCloser, error)
	// String describes the library location.
	String() string
	// Close releases the underlying storage.
	Close() error
}

// ReaderOption configures a Reader.
type ReaderOption func(*readerOptions) *readerOptions

type readerOptions struct {
	excludes []string
	logger   zerolog.Logger
}

// WithExcludes hides members matching any of the given doublestar patterns
// (e.g. "META-INF/*.SF") from ListPaths.
func WithExcludes(patterns ...string) ReaderOption {
	return func(o *readerOptions) *readerOptions {
		o.excludes = append(o.excludes, patterns...)
		return o
	}
}

// WithLogger sets the logger used to report skipped members.
func WithLogger(logger zerolog.Logger) ReaderOption {
	return func(o *readerOptions) *readerOptions {
		o.logger = logger
		return o
	}
}

func newReaderOptions(options []ReaderOption) (*readerOptions, error) {
	o := &readerOptions{logger: zerolog.Nop()}
	for _, opt := range options {
		o = opt(o)
	}
	for _, pattern := range o.excludes {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid exclude pattern %q", pattern)
		}
	}
	return o, nil
}

func (o *readerOptions) excluded(p Path) bool {
	for _, pattern := range o.excludes {
		if ok, _ := doublestar.Match(pattern, string(p)); ok {
			return true
		}
	}
	return false
}

// Open returns a Reader for a directory or a jar file.
func Open(filename string, options ...ReaderOption) (Reader, error) {
	info, err := os.Stat(filename)
	if err != nil {
		return nil, fmt.Errorf("open library %q: %w", filename, err)
	}
	if info.IsDir() {
		return NewDirectoryReader(filename, options...)
	}
	if strings.HasSuffix(filename, JarFileSuffix) || strings.HasSuffix(filename, ".zip") {
		return NewJarReader(filename, options...)
	}
	return nil, fmt.Errorf("open library %q: not a directory or jar file", filename)
}

func requireClass(p Path) error {
	if !p.IsClass() {
		return fmt.Errorf("%s: not a class file", p)
	}
	return nil
}
