package java

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/stackb/jvm-abi/pkg/library"
)

// ClassPath is an ordered list of libraries used to look up classes that
// are referenced by, but not part of, the library being processed.
type ClassPath struct {
	entries []library.Reader
}

// SplitClassPath splits a list-separator joined class path string. Empty
// segments are ignored.
func SplitClassPath(classPathStr string) []string {
	var entries []string
	for _, str := range strings.Split(classPathStr, string(filepath.ListSeparator)) {
		if str != "" {
			entries = append(entries, str)
		}
	}
	return entries
}

// OpenClassPath opens each named directory or jar as a class path entry.
func OpenClassPath(entries []string, options ...library.ReaderOption) (*ClassPath, error) {
	classPath := &ClassPath{}
	for _, entry := range entries {
		reader, err := library.Open(entry, options...)
		if err != nil {
			classPath.Close()
			return nil, fmt.Errorf("class path entry %q: %w", entry, err)
		}
		classPath.entries = append(classPath.entries, reader)
	}
	return classPath, nil
}

// NewClassPathFromReaders wraps already opened readers.
func NewClassPathFromReaders(readers ...library.Reader) *ClassPath {
	return &ClassPath{entries: readers}
}

func (cp *ClassPath) String() string {
	entries := make([]string, len(cp.entries))
	for i, entry := range cp.entries {
		entries[i] = entry.String()
	}
	return strings.Join(entries, string(filepath.ListSeparator))
}

// Len returns the number of class path entries.
func (cp *ClassPath) Len() int {
	return len(cp.entries)
}

// ReadClass returns the bytes of the first class named internalName found on
// the class path.
func (cp *ClassPath) ReadClass(internalName string) ([]byte, error) {
	p, err := library.NewPath(internalName + library.ClassFileSuffix)
	if err != nil {
		return nil, err
	}
	for _, entry := range cp.entries {
		rc, err := entry.OpenClassFile(p)
		if err != nil {
			continue
		}
		bytecode, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("read %s from %s: %w", p, entry, err)
		}
		return bytecode, nil
	}
	return nil, fmt.Errorf("class %s cannot be read from classpath: %s", internalName, cp.String())
}

// Close closes every entry.
func (cp *ClassPath) Close() error {
	var errs []error
	for _, entry := range cp.entries {
		if err := entry.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
