// Package config holds the settings shared by the command line tools.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"github.com/bmatcuk/doublestar/v4"
	"go.starlark.net/starlark"
	"gopkg.in/yaml.v3"

	"github.com/stackb/jvm-abi/pkg/java"
	"github.com/stackb/jvm-abi/pkg/procutil"
	"github.com/stackb/jvm-abi/pkg/starlarkeval"
)

// DefaultExcludes hide jar signature files, which do not survive stub
// generation. The manifest itself is kept.
var DefaultExcludes = []string{
	"META-INF/*.SF",
	"META-INF/*.RSA",
	"META-INF/*.DSA",
}

// Config is the tool configuration.
type Config struct {
	// Workers bounds the members processed concurrently.
	Workers int `yaml:"workers"`
	// Excludes are doublestar patterns of library members left out of the
	// stub jar.
	Excludes []string `yaml:"excludes"`
	// InlineAnnotations are the annotation descriptors that mark inline
	// methods.
	InlineAnnotations []string `yaml:"inline_annotations"`
	// ClassPath lists dependency directories and jars consulted to resolve
	// supertypes.
	ClassPath []string `yaml:"classpath"`
	// Debug enables debug logging.
	Debug bool `yaml:"debug"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Workers:           runtime.NumCPU(),
		Excludes:          append([]string(nil), DefaultExcludes...),
		InlineAnnotations: append([]string(nil), java.DefaultInlineAnnotations...),
	}
}

// LoadFile reads a configuration file over the defaults. Files ending in
// .yaml or .yml are YAML; .star and .bzl files are Starlark whose top-level
// globals name the settings.
func LoadFile(filename string) (*Config, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	defer f.Close()

	c := Default()
	switch filepath.Ext(filename) {
	case ".yaml", ".yml":
		err = c.loadYAML(f)
	case ".star", ".bzl":
		err = c.loadStarlark(filename, f)
	default:
		err = fmt.Errorf("unknown file type (want .yaml, .yml, .star or .bzl)")
	}
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", filename, err)
	}
	return c, nil
}

func (c *Config) loadYAML(in io.Reader) error {
	dec := yaml.NewDecoder(in)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// starlarkFields are the recognized globals, in output order.
var starlarkFields = []string{"workers", "excludes", "inline_annotations", "classpath", "debug"}

func (c *Config) loadStarlark(filename string, in io.Reader) error {
	interpreter := starlarkeval.NewInterpreter(func(format string, args ...interface{}) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})
	if err := interpreter.Exec(filename, in); err != nil {
		return err
	}
	known := make(map[string]bool)
	for _, name := range starlarkFields {
		known[name] = true
	}
	for _, name := range interpreter.Globals() {
		if !known[name] && !isPrivate(name) {
			return fmt.Errorf("unknown setting %q", name)
		}
	}

	var err error
	if v := interpreter.GetGlobal("workers"); v != nil {
		if c.Workers, err = starlarkeval.ToInt("workers", v); err != nil {
			return err
		}
	}
	if v := interpreter.GetGlobal("excludes"); v != nil {
		if c.Excludes, err = starlarkeval.ToStringList("excludes", v); err != nil {
			return err
		}
	}
	if v := interpreter.GetGlobal("inline_annotations"); v != nil {
		if c.InlineAnnotations, err = starlarkeval.ToStringList("inline_annotations", v); err != nil {
			return err
		}
	}
	if v := interpreter.GetGlobal("classpath"); v != nil {
		if c.ClassPath, err = starlarkeval.ToStringList("classpath", v); err != nil {
			return err
		}
	}
	if v := interpreter.GetGlobal("debug"); v != nil {
		if c.Debug, err = starlarkeval.ToBool("debug", v); err != nil {
			return err
		}
	}
	return nil
}

// isPrivate reports whether a Starlark global is a helper ("_name").
func isPrivate(name string) bool {
	return len(name) > 0 && name[0] == '_'
}

// ApplyEnv overrides settings from JVM_ABI_WORKERS and JVM_ABI_DEBUG.
func (c *Config) ApplyEnv() {
	c.Workers = procutil.LookupIntEnv(procutil.JVM_ABI_WORKERS, c.Workers)
	c.Debug = procutil.LookupBoolEnv(procutil.JVM_ABI_DEBUG, c.Debug)
}

// Validate checks the settings.
func (c *Config) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	for _, pattern := range c.Excludes {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("invalid exclude pattern %q", pattern)
		}
	}
	if len(c.InlineAnnotations) == 0 {
		return fmt.Errorf("at least one inline annotation is required")
	}
	for _, desc := range c.InlineAnnotations {
		if len(desc) < 3 || desc[0] != 'L' || desc[len(desc)-1] != ';' {
			return fmt.Errorf("inline annotation %q is not a class descriptor (want Lpkg/Name;)", desc)
		}
	}
	return nil
}

// Starlark renders the configuration as a Starlark file that LoadFile
// accepts.
func (c *Config) Starlark() ([]byte, error) {
	return starlarkeval.FormatGlobals(starlarkFields, starlark.StringDict{
		"workers":            starlark.MakeInt(c.Workers),
		"excludes":           stringList(c.Excludes),
		"inline_annotations": stringList(c.InlineAnnotations),
		"classpath":          stringList(c.ClassPath),
		"debug":              starlark.Bool(c.Debug),
	})
}

func stringList(values []string) *starlark.List {
	elems := make([]starlark.Value, len(values))
	for i, v := range values {
		elems[i] = starlark.String(v)
	}
	return starlark.NewList(elems)
}
