package classusage

import "fmt"

// ManifestWriteFailure reports a manifest that could not be written. The
// compilation that produced the usages must be treated as failed.
type ManifestWriteFailure struct {
	Path string
	Err  error
}

func (e *ManifestWriteFailure) Error() string {
	return fmt.Sprintf("write class usage manifest %s: %v", e.Path, e.Err)
}

func (e *ManifestWriteFailure) Unwrap() error { return e.Err }
