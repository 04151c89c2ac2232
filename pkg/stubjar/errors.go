package stubjar

import (
	"fmt"

	"github.com/stackb/jvm-abi/pkg/library"
)

// ReadFailure reports a library member that could not be read.
type ReadFailure struct {
	Path library.Path
	Err  error
}

func (e *ReadFailure) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("read library: %v", e.Err)
	}
	return fmt.Sprintf("read %s: %v", e.Path, e.Err)
}

func (e *ReadFailure) Unwrap() error { return e.Err }

// ClassifyFailure reports a .class member whose bytes are not a valid class
// file.
type ClassifyFailure struct {
	Path library.Path
	Err  error
}

func (e *ClassifyFailure) Error() string {
	return fmt.Sprintf("parse class %s: %v", e.Path, e.Err)
}

func (e *ClassifyFailure) Unwrap() error { return e.Err }

// WriteFailure reports an error from the stub jar sink.
type WriteFailure struct {
	Path library.Path
	Err  error
}

func (e *WriteFailure) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("write stub jar: %v", e.Err)
	}
	return fmt.Sprintf("write stub jar entry %s: %v", e.Path, e.Err)
}

func (e *WriteFailure) Unwrap() error { return e.Err }
