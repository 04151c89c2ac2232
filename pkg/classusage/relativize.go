package classusage

import (
	"fmt"
	"path/filepath"
	"strings"
)

// jarEntrySeparator separates a jar path from an entry inside it, as in
// "lib/dep.jar!/com/foo/Bar.class".
const jarEntrySeparator = "!/"

// relativizer rewrites recorded paths so a manifest does not depend on where
// the workspace lives.
type relativizer struct {
	root       string
	outputRoot string
}

func newRelativizer(rootPath, configuredOutputRoot string) (*relativizer, error) {
	if !filepath.IsAbs(rootPath) {
		return nil, fmt.Errorf("root path %q is not absolute", rootPath)
	}
	root := filepath.Clean(rootPath)
	outputRoot := configuredOutputRoot
	if !filepath.IsAbs(outputRoot) {
		outputRoot = filepath.Join(root, outputRoot)
	}
	outputRoot = filepath.Clean(outputRoot)
	if !within(root, outputRoot) {
		return nil, fmt.Errorf("output root %q is not under %q", configuredOutputRoot, rootPath)
	}
	return &relativizer{root: root, outputRoot: outputRoot}, nil
}

// classFile returns the path of a class file relative to the output root.
// It reports false for absolute paths outside the root path.
func (r *relativizer) classFile(p string) (string, bool) {
	if jar, entry, ok := strings.Cut(p, jarEntrySeparator); ok {
		rel, ok := r.file(jar)
		if !ok {
			return "", false
		}
		return rel + jarEntrySeparator + entry, true
	}
	return r.file(p)
}

func (r *relativizer) file(p string) (string, bool) {
	if !filepath.IsAbs(p) {
		return filepath.ToSlash(filepath.Clean(p)), true
	}
	p = filepath.Clean(p)
	if !within(r.root, p) {
		return "", false
	}
	rel, err := filepath.Rel(r.outputRoot, p)
	if err != nil {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// source returns a source key relative to the root path when it is under it.
func (r *relativizer) source(p string) string {
	if filepath.IsAbs(p) {
		p = filepath.Clean(p)
		if within(r.root, p) {
			if rel, err := filepath.Rel(r.root, p); err == nil {
				return filepath.ToSlash(rel)
			}
		}
		return filepath.ToSlash(p)
	}
	return filepath.ToSlash(filepath.Clean(p))
}

func within(base, p string) bool {
	return p == base || strings.HasPrefix(p, strings.TrimSuffix(base, string(filepath.Separator))+string(filepath.Separator))
}
