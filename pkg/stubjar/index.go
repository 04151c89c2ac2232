package stubjar

import (
	"sort"
	"sync"

	"github.com/dghubble/trie"

	"github.com/stackb/jvm-abi/pkg/java"
	"github.com/stackb/jvm-abi/pkg/library"
)

// ClassHeader is the part of a class file the inline index needs.
type ClassHeader struct {
	// Name is the internal name, e.g. "pkg/Outer$Inner".
	Name string
	// Super is the internal name of the superclass, empty for
	// java/lang/Object and module-info.
	Super string
	// Interfaces are the internal names of the directly implemented
	// interfaces.
	Interfaces []string
	// InlineFunctions are the qualified names of inline methods, in
	// declaration order.
	InlineFunctions []string
	// Path is the member the header was read from.
	Path library.Path
	// External is true for classes found on the dependency class path.
	External bool
}

// NewClassHeader summarizes a parsed class file.
func NewClassHeader(p library.Path, clazz *java.ClassFile, policy java.ABIPolicy) (*ClassHeader, error) {
	inline, err := clazz.InlineFunctions(policy)
	if err != nil {
		return nil, err
	}
	return &ClassHeader{
		Name:            clazz.Name(),
		Super:           clazz.SuperName(),
		Interfaces:      clazz.InterfaceNames(),
		InlineFunctions: inline,
		Path:            p,
	}, nil
}

// Supertypes returns the superclass followed by the interfaces.
func (h *ClassHeader) Supertypes() []string {
	var names []string
	if h.Super != "" {
		names = append(names, h.Super)
	}
	return append(names, h.Interfaces...)
}

// preferred reports whether h should replace other when both declare the same
// class name. Library classes win over class path classes, then the member
// whose path matches the class name, then the smaller path.
func (h *ClassHeader) preferred(other *ClassHeader) bool {
	if h.External != other.External {
		return !h.External
	}
	hm := h.Path.ClassName() == h.Name
	om := other.Path.ClassName() == other.Name
	if hm != om {
		return hm
	}
	return h.Path < other.Path
}

// InlineIndex maps internal class names to their headers. It is safe for
// concurrent Put during indexing; lookups happen once indexing is complete.
type InlineIndex struct {
	mu      sync.RWMutex
	classes *trie.PathTrie
	size    int
}

// NewInlineIndex returns an empty index.
func NewInlineIndex() *InlineIndex {
	return &InlineIndex{classes: trie.NewPathTrie()}
}

// Put records a header. When two headers share a name the choice does not
// depend on insertion order.
func (x *InlineIndex) Put(h *ClassHeader) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if existing, ok := x.classes.Get(h.Name).(*ClassHeader); ok {
		if !h.preferred(existing) {
			return
		}
	} else {
		x.size++
	}
	x.classes.Put(h.Name, h)
}

// Get returns the header for the given internal name.
func (x *InlineIndex) Get(name string) (*ClassHeader, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	h, ok := x.classes.Get(name).(*ClassHeader)
	return h, ok
}

// Len returns the number of indexed classes.
func (x *InlineIndex) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.size
}

// ExtendsInlineScope reports whether any transitive supertype of the named
// class declares inline functions. Unknown supertypes are treated as having
// none. Cycles in malformed hierarchies terminate.
func (x *InlineIndex) ExtendsInlineScope(name string) bool {
	h, ok := x.Get(name)
	if !ok {
		return false
	}
	seen := map[string]bool{name: true}
	queue := h.Supertypes()
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		if seen[next] {
			continue
		}
		seen[next] = true
		super, ok := x.Get(next)
		if !ok {
			continue
		}
		if len(super.InlineFunctions) > 0 {
			return true
		}
		queue = append(queue, super.Supertypes()...)
	}
	return false
}

// Missing returns the supertypes referenced by indexed classes that are not
// themselves indexed, sorted.
func (x *InlineIndex) Missing() []string {
	x.mu.RLock()
	defer x.mu.RUnlock()
	missing := make(map[string]bool)
	x.classes.Walk(func(key string, value interface{}) error {
		for _, name := range value.(*ClassHeader).Supertypes() {
			if _, ok := x.classes.Get(name).(*ClassHeader); !ok {
				missing[name] = true
			}
		}
		return nil
	})
	names := make([]string, 0, len(missing))
	for name := range missing {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// InlineProviders returns the names of indexed classes that declare inline
// functions, sorted.
func (x *InlineIndex) InlineProviders() []string {
	x.mu.RLock()
	defer x.mu.RUnlock()
	var names []string
	x.classes.Walk(func(key string, value interface{}) error {
		if len(value.(*ClassHeader).InlineFunctions) > 0 {
			names = append(names, key)
		}
		return nil
	})
	sort.Strings(names)
	return names
}
