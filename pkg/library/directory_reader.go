package library

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// DirectoryReader reads a library laid out as a directory tree.
type DirectoryReader struct {
	directory string
	options   *readerOptions
}

// NewDirectoryReader returns a Reader rooted at directory.
func NewDirectoryReader(directory string, options ...ReaderOption) (*DirectoryReader, error) {
	o, err := newReaderOptions(options)
	if err != nil {
		return nil, err
	}
	return &DirectoryReader{directory: directory, options: o}, nil
}

func (r *DirectoryReader) String() string {
	return r.directory
}

// ListPaths implements part of the Reader interface.
func (r *DirectoryReader) ListPaths() ([]Path, error) {
	var paths []Path
	err := filepath.WalkDir(r.directory, func(filename string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(r.directory, filename)
		if err != nil {
			return err
		}
		p, err := NewPath(filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		if r.options.excluded(p) {
			r.options.logger.Debug().Str("path", p.String()).Msg("excluded library member")
			return nil
		}
		paths = append(paths, p)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", r.directory, err)
	}
	SortPaths(paths)
	return paths, nil
}

// OpenClassFile implements part of the Reader interface.
func (r *DirectoryReader) OpenClassFile(p Path) (io.ReadCloser, error) {
	if err := requireClass(p); err != nil {
		return nil, err
	}
	return r.OpenResourceFile(p)
}

// OpenResourceFile implements part of the Reader interface.
func (r *DirectoryReader) OpenResourceFile(p Path) (io.ReadCloser, error) {
	return os.Open(filepath.Join(r.directory, filepath.FromSlash(string(p))))
}

// Close implements part of the Reader interface.
func (r *DirectoryReader) Close() error {
	return nil
}
