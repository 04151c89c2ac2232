package classusage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// ClassUsageFileWriter persists the class usage of one compilation.
type ClassUsageFileWriter interface {
	// WriteFile writes usages to rootPath/relativePath. Class file paths
	// are recorded relative to rootPath/configuredOutputRoot and source
	// paths relative to rootPath.
	WriteFile(usages Map, relativePath, rootPath, configuredOutputRoot string) error
}

// FileWriter is the default ClassUsageFileWriter. The manifest is written
// atomically; a failure never leaves a partial file behind.
type FileWriter struct {
	logger zerolog.Logger
}

// FileWriterOption configures a FileWriter.
type FileWriterOption func(*FileWriter) *FileWriter

// WithLogger sets the logger used to report dropped paths.
func WithLogger(logger zerolog.Logger) FileWriterOption {
	return func(w *FileWriter) *FileWriter {
		w.logger = logger
		return w
	}
}

// NewFileWriter returns a FileWriter with the given options applied.
func NewFileWriter(options ...FileWriterOption) *FileWriter {
	w := &FileWriter{logger: zerolog.Nop()}
	for _, opt := range options {
		w = opt(w)
	}
	return w
}

// WriteFile implements the ClassUsageFileWriter interface.
func (w *FileWriter) WriteFile(usages Map, relativePath, rootPath, configuredOutputRoot string) error {
	filename := filepath.Join(rootPath, relativePath)
	if filepath.IsAbs(relativePath) {
		return &ManifestWriteFailure{Path: relativePath, Err: fmt.Errorf("manifest path must be relative")}
	}
	manifest, err := w.Relativize(usages, rootPath, configuredOutputRoot)
	if err != nil {
		return &ManifestWriteFailure{Path: filename, Err: err}
	}
	data, err := Marshal(filename, manifest)
	if err != nil {
		return &ManifestWriteFailure{Path: filename, Err: err}
	}
	if err := writeFileAtomic(filename, data); err != nil {
		return &ManifestWriteFailure{Path: filename, Err: err}
	}
	w.logger.Debug().
		Str("manifest", filename).
		Int("sources", manifest.Len()).
		Msg("class usage written")
	return nil
}

// Relativize rewrites usages into the portable form stored in a manifest.
// Class files outside rootPath are dropped with a warning, as are sources
// left with no class files.
func (w *FileWriter) Relativize(usages Map, rootPath, configuredOutputRoot string) (Map, error) {
	r, err := newRelativizer(rootPath, configuredOutputRoot)
	if err != nil {
		return Map{}, err
	}
	out := Map{usages: make(map[string][]string, usages.Len())}
	for _, source := range usages.Sources() {
		var classFiles []string
		for _, classFile := range usages.ClassFiles(source) {
			rel, ok := r.classFile(classFile)
			if !ok {
				w.logger.Warn().
					Str("source", source).
					Str("class", classFile).
					Msg("class file outside the root path is not recorded")
				continue
			}
			classFiles = append(classFiles, rel)
		}
		out.add(r.source(source), classFiles...)
	}
	return out, nil
}

// writeFileAtomic replaces filename with data through a synced temporary
// file in the same directory.
func writeFileAtomic(filename string, data []byte) (err error) {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(filename)+".tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()
	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), filename)
}
