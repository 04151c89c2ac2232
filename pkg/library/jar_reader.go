package library

import (
	"fmt"
	"io"
	"io/fs"
	"strings"

	"github.com/klauspost/compress/zip"
)

// JarReader reads a library packaged as a jar (or any zip) file.
type JarReader struct {
	jarFile string
	zip     *zip.ReadCloser
	files   map[Path]*zip.File
	paths   []Path
}

// NewJarReader opens jarFile and indexes its members.  Directory entries are
// ignored; when a member name occurs more than once the first one wins.
func NewJarReader(jarFile string, options ...ReaderOption) (*JarReader, error) {
	o, err := newReaderOptions(options)
	if err != nil {
		return nil, err
	}
	zr, err := zip.OpenReader(jarFile)
	if err != nil {
		return nil, fmt.Errorf("open jar %s: %w", jarFile, err)
	}
	r := &JarReader{
		jarFile: jarFile,
		zip:     zr,
		files:   make(map[Path]*zip.File),
	}
	for _, f := range zr.File {
		if strings.HasSuffix(f.Name, "/") {
			continue
		}
		p, err := NewPath(f.Name)
		if err != nil {
			zr.Close()
			return nil, fmt.Errorf("jar %s: %w", jarFile, err)
		}
		if _, ok := r.files[p]; ok {
			o.logger.Warn().Str("jar", jarFile).Str("path", p.String()).Msg("duplicate jar entry ignored")
			continue
		}
		if o.excluded(p) {
			o.logger.Debug().Str("path", p.String()).Msg("excluded library member")
			continue
		}
		r.files[p] = f
		r.paths = append(r.paths, p)
	}
	SortPaths(r.paths)
	return r, nil
}

func (r *JarReader) String() string {
	return r.jarFile
}

// ListPaths implements part of the Reader interface.
func (r *JarReader) ListPaths() ([]Path, error) {
	return append([]Path(nil), r.paths...), nil
}

// OpenClassFile implements part of the Reader interface.
func (r *JarReader) OpenClassFile(p Path) (io.ReadCloser, error) {
	if err := requireClass(p); err != nil {
		return nil, err
	}
	return r.OpenResourceFile(p)
}

// OpenResourceFile implements part of the Reader interface.
func (r *JarReader) OpenResourceFile(p Path) (io.ReadCloser, error) {
	f, ok := r.files[p]
	if !ok {
		return nil, fmt.Errorf("%s!/%s: %w", r.jarFile, p, fs.ErrNotExist)
	}
	return f.Open()
}

// Close implements part of the Reader interface.
func (r *JarReader) Close() error {
	return r.zip.Close()
}
