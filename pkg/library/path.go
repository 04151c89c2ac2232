// Package library provides read access to compiled JVM output: a directory
// of class files and resources, or a jar.
package library

import (
	"fmt"
	"path"
	"sort"
	"strings"
)

const (
	ClassFileSuffix = ".class"
	JarFileSuffix   = ".jar"
)

// Path is a relative, forward-slash separated path naming one member of a
// library. Its ordering is plain byte-wise string ordering so that output
// derived from it does not depend on the host platform.
type Path string

// NewPath normalizes p into a Path. Backslashes become forward slashes,
// leading "/" and "./" are removed and "." segments are cleaned. A path that
// escapes the library root is an error.
func NewPath(p string) (Path, error) {
	s := strings.ReplaceAll(p, "\\", "/")
	s = strings.TrimLeft(s, "/")
	if s == "" {
		return "", fmt.Errorf("empty library path %q", p)
	}
	s = path.Clean(s)
	if s == "." || s == ".." || strings.HasPrefix(s, "../") {
		return "", fmt.Errorf("library path %q escapes the library root", p)
	}
	return Path(s), nil
}

// MustPath is NewPath for constant inputs; it panics on error.
func MustPath(p string) Path {
	lp, err := NewPath(p)
	if err != nil {
		panic(err)
	}
	return lp
}

func (p Path) String() string {
	return string(p)
}

// IsClass reports whether the path names a class file.
func (p Path) IsClass() bool {
	return strings.HasSuffix(string(p), ClassFileSuffix)
}

// ClassName returns the internal class name implied by a class file path
// ("com/foo/Bar.class" -> "com/foo/Bar").
func (p Path) ClassName() string {
	return strings.TrimSuffix(string(p), ClassFileSuffix)
}

// SortPaths sorts paths in place in lexicographic order.
func SortPaths(paths []Path) {
	sort.Slice(paths, func(i, j int) bool { return paths[i] < paths[j] })
}
