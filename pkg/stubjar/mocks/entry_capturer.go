package mocks

import (
	"testing"

	mock "github.com/stretchr/testify/mock"

	library "github.com/stackb/jvm-abi/pkg/library"
)

// EntryCapturer records the paths handed to a mock StubJarWriter.
type EntryCapturer struct {
	Writer *StubJarWriter
	Got    []library.Path
}

func (c *EntryCapturer) capture(p library.Path) bool {
	c.Got = append(c.Got, p)
	return true
}

// NewEntryCapturer returns a mock writer that accepts every entry without
// producing it, and expects exactly one Commit.
func NewEntryCapturer(t *testing.T) *EntryCapturer {
	c := &EntryCapturer{
		Writer: NewStubJarWriter(t),
	}

	c.Writer.
		On("WriteEntry", mock.MatchedBy(c.capture), mock.Anything).
		Return(nil)
	c.Writer.
		On("Commit").
		Once().
		Return(nil)

	return c
}
