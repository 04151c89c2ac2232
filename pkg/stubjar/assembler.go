package stubjar

import (
	"context"
	"errors"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pcj/mobyprogress"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/stackb/jvm-abi/pkg/java"
	"github.com/stackb/jvm-abi/pkg/library"
)

// DefaultCacheSize is the number of parsed class files kept between the
// index and write phases.
const DefaultCacheSize = 1024

// Assembler builds a stub jar from a library in two phases: every class is
// indexed first, then entries are written in path order.
type Assembler struct {
	logger    zerolog.Logger
	workers   int
	cacheSize int
	policy    java.ABIPolicy
	classPath *java.ClassPath
	progress  mobyprogress.Output
	mu        sync.Mutex // guards progress
}

// AssemblerOption configures an Assembler.
type AssemblerOption func(*Assembler) *Assembler

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) AssemblerOption {
	return func(a *Assembler) *Assembler {
		a.logger = logger
		return a
	}
}

// WithWorkers sets how many members are processed concurrently. Values
// below 1 are treated as 1.
func WithWorkers(n int) AssemblerOption {
	return func(a *Assembler) *Assembler {
		if n < 1 {
			n = 1
		}
		a.workers = n
		return a
	}
}

// WithInlineAnnotations sets the annotation descriptors that mark inline
// methods.
func WithInlineAnnotations(descriptors ...string) AssemblerOption {
	return func(a *Assembler) *Assembler {
		a.policy = java.NewABIPolicy(descriptors...)
		return a
	}
}

// WithClassPath sets the dependency class path used to resolve supertypes
// that are not part of the library. Classes on it are indexed, not written.
func WithClassPath(cp *java.ClassPath) AssemblerOption {
	return func(a *Assembler) *Assembler {
		a.classPath = cp
		return a
	}
}

// WithProgress publishes phase progress to the given output.
func WithProgress(output mobyprogress.Output) AssemblerOption {
	return func(a *Assembler) *Assembler {
		a.progress = output
		return a
	}
}

// WithCacheSize bounds the parsed class cache.
func WithCacheSize(n int) AssemblerOption {
	return func(a *Assembler) *Assembler {
		if n > 0 {
			a.cacheSize = n
		}
		return a
	}
}

// NewAssembler returns an Assembler with the given options applied.
func NewAssembler(options ...AssemblerOption) *Assembler {
	a := &Assembler{
		logger:    zerolog.Nop(),
		workers:   1,
		cacheSize: DefaultCacheSize,
		policy:    java.NewABIPolicy(),
	}
	for _, opt := range options {
		a = opt(a)
	}
	return a
}

// EntryReport describes one written entry.
type EntryReport struct {
	Path                       library.Path `json:"path"`
	Kind                       string       `json:"kind"`
	InlineFunctions            []string     `json:"inlineFunctions,omitempty"`
	ExtendsInlineFunctionScope bool         `json:"extendsInlineFunctionScope,omitempty"`
}

// Result summarizes an assembly.
type Result struct {
	Entries []EntryReport `json:"entries"`
	// InlineProviders are the indexed classes that declare inline functions.
	InlineProviders []string `json:"inlineProviders,omitempty"`
	// Unresolved are supertypes found neither in the library nor on the
	// class path.
	Unresolved []string `json:"unresolved,omitempty"`
}

// Assemble writes the stub jar of the library to w and commits it. On any
// failure w is aborted and the error is returned; nothing is committed.
func (a *Assembler) Assemble(ctx context.Context, reader library.Reader, w StubJarWriter) (*Result, error) {
	result, err := a.assemble(ctx, reader, w)
	if err == nil {
		if err = w.Commit(); err != nil {
			var wf *WriteFailure
			if !errors.As(err, &wf) {
				err = &WriteFailure{Err: err}
			}
		}
	}
	if err != nil {
		if abortErr := w.Abort(); abortErr != nil {
			a.logger.Warn().Err(abortErr).Msg("abort stub jar")
		}
		return nil, err
	}
	return result, nil
}

func (a *Assembler) assemble(ctx context.Context, reader library.Reader, w StubJarWriter) (*Result, error) {
	paths, err := reader.ListPaths()
	if err != nil {
		return nil, &ReadFailure{Err: err}
	}
	paths = uniquePaths(paths)

	cache, err := lru.New[library.Path, *java.ClassFile](a.cacheSize)
	if err != nil {
		return nil, err
	}
	index := NewInlineIndex()

	entries, err := a.index(ctx, reader, paths, index, cache)
	if err != nil {
		return nil, err
	}
	unresolved, err := a.resolveClassPath(ctx, index)
	if err != nil {
		return nil, err
	}
	a.logger.Debug().
		Int("entries", len(entries)).
		Int("classes", index.Len()).
		Strs("unresolved", unresolved).
		Msg("index complete")

	result := &Result{
		Entries:         make([]EntryReport, len(entries)),
		InlineProviders: index.InlineProviders(),
		Unresolved:      unresolved,
	}
	for i, e := range entries {
		e.bind(index)
		result.Entries[i] = EntryReport{
			Path:                       e.Path(),
			Kind:                       e.Kind().String(),
			InlineFunctions:            e.InlineFunctions(),
			ExtendsInlineFunctionScope: e.ExtendsInlineFunctionScope(),
		}
	}

	if err := a.write(ctx, entries, w); err != nil {
		return nil, err
	}
	return result, nil
}

// index classifies every path and indexes the class headers. It returns the
// entries in path order once all members are indexed.
func (a *Assembler) index(ctx context.Context, reader library.Reader, paths []library.Path, index *InlineIndex, cache *classCache) ([]*StubEntry, error) {
	entries := make([]*StubEntry, len(paths))
	var done int

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)
	for i, p := range paths {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			entry, err := a.classify(reader, p, cache)
			if err != nil {
				return err
			}
			if entry.header != nil {
				index.Put(entry.header)
			}
			entries[i] = entry

			a.mu.Lock()
			done++
			a.writeProgress("index", "indexing", done, len(paths))
			a.mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// classify builds the entry variant for a path. Class members are parsed
// here; a member that does not parse is a ClassifyFailure.
func (a *Assembler) classify(reader library.Reader, p library.Path, cache *classCache) (*StubEntry, error) {
	if !p.IsClass() {
		return NewResourceEntry(p, reader), nil
	}
	clazz, err := readClassFile(reader, p)
	if err != nil {
		return nil, err
	}
	header, err := NewClassHeader(p, clazz, a.policy)
	if err != nil {
		return nil, &ClassifyFailure{Path: p, Err: err}
	}
	if header.Name != p.ClassName() {
		a.logger.Debug().Str("path", p.String()).Str("class", header.Name).Msg("class name does not match path")
	}
	cache.Add(p, clazz)
	entry := NewClassEntry(p, reader, header, a.policy)
	entry.cache = cache
	return entry, nil
}

// resolveClassPath indexes the class path classes needed to complete the
// supertype chains of the library. It returns the names that could not be
// found.
func (a *Assembler) resolveClassPath(ctx context.Context, index *InlineIndex) ([]string, error) {
	tried := make(map[string]bool)
	var unresolved []string
	for {
		var pending []string
		for _, name := range index.Missing() {
			if !tried[name] {
				pending = append(pending, name)
			}
		}
		if len(pending) == 0 {
			return unresolved, nil
		}
		for _, name := range pending {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			tried[name] = true
			if a.classPath == nil {
				unresolved = append(unresolved, name)
				continue
			}
			header, err := a.readClassPathHeader(name)
			if err != nil {
				a.logger.Debug().Err(err).Str("class", name).Msg("supertype not resolved")
				unresolved = append(unresolved, name)
				continue
			}
			index.Put(header)
		}
	}
}

func (a *Assembler) readClassPathHeader(name string) (*ClassHeader, error) {
	data, err := a.classPath.ReadClass(name)
	if err != nil {
		return nil, err
	}
	clazz, err := java.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s from class path: %w", name, err)
	}
	p, err := library.NewPath(name + library.ClassFileSuffix)
	if err != nil {
		return nil, err
	}
	header, err := NewClassHeader(p, clazz, a.policy)
	if err != nil {
		return nil, err
	}
	header.External = true
	return header, nil
}

// write emits the entries in order.
func (a *Assembler) write(ctx context.Context, entries []*StubEntry, w StubJarWriter) error {
	if d, ok := w.(dryRunner); ok && d.DryRun() || a.workers == 1 {
		return a.writeSequential(ctx, entries, w)
	}
	return a.writeOrdered(ctx, entries, w)
}

func (a *Assembler) writeSequential(ctx context.Context, entries []*StubEntry, w StubJarWriter) error {
	for i, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.Write(w); err != nil {
			return err
		}
		a.writeProgress("write", "writing", i+1, len(entries))
	}
	return nil
}

type rendered struct {
	data []byte
	err  error
}

// writeOrdered renders entries concurrently, at most 2*workers ahead of the
// writer, and hands them to w strictly in order.
func (a *Assembler) writeOrdered(ctx context.Context, entries []*StubEntry, w StubJarWriter) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	slots := make([]chan rendered, len(entries))
	for i := range slots {
		slots[i] = make(chan rendered, 1)
	}
	window := make(chan struct{}, 2*a.workers)

	var g errgroup.Group
	g.Go(func() error {
		for i, e := range entries {
			select {
			case window <- struct{}{}:
			case <-ctx.Done():
				return nil
			}
			g.Go(func() error {
				data, err := render(e)
				slots[i] <- rendered{data: data, err: err}
				return nil
			})
		}
		return nil
	})

	err := func() error {
		for i, e := range entries {
			if err := ctx.Err(); err != nil {
				return err
			}
			var r rendered
			select {
			case r = <-slots[i]:
			case <-ctx.Done():
				return ctx.Err()
			}
			<-window
			if r.err != nil {
				return r.err
			}
			if err := w.WriteEntry(e.Path(), BytesProducer(r.data)); err != nil {
				return err
			}
			a.writeProgress("write", "writing", i+1, len(entries))
		}
		return nil
	}()
	cancel()
	g.Wait()
	return err
}

// render captures the bytes an entry would write.
func render(e *StubEntry) ([]byte, error) {
	mw := NewMemoryWriter()
	if err := e.Write(mw); err != nil {
		return nil, err
	}
	return mw.Entries()[0].Data, nil
}

func (a *Assembler) writeProgress(id, action string, current, total int) {
	if a.progress == nil {
		return
	}
	a.progress.WriteProgress(mobyprogress.Progress{
		ID:         id,
		Action:     action,
		Current:    int64(current),
		Total:      int64(total),
		Units:      "entries",
		LastUpdate: current == total,
	})
}

// uniquePaths returns the paths sorted with duplicates removed.
func uniquePaths(paths []library.Path) []library.Path {
	sorted := append([]library.Path(nil), paths...)
	library.SortPaths(sorted)
	out := make([]library.Path, 0, len(sorted))
	for _, p := range sorted {
		if len(out) > 0 && out[len(out)-1] == p {
			continue
		}
		out = append(out, p)
	}
	return out
}
