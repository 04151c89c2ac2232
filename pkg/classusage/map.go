// Package classusage records which class files each compiled source read and
// persists those observations as a build manifest.
package classusage

import (
	"encoding/json"
	"sort"
	"sync"
)

// Map is an immutable snapshot of class usage: source file to the set of
// class files it read. Sources with no usages are absent; every set is
// sorted and free of duplicates.
type Map struct {
	usages map[string][]string
}

// NewMap builds a snapshot, dropping empty sets and duplicate entries.
func NewMap(usages map[string][]string) Map {
	m := Map{usages: make(map[string][]string, len(usages))}
	for source, classFiles := range usages {
		m.add(source, classFiles...)
	}
	return m
}

func (m Map) add(source string, classFiles ...string) {
	if len(classFiles) == 0 {
		return
	}
	m.usages[source] = sortedUnique(append(m.usages[source], classFiles...))
}

// Sources returns the source files with at least one usage, sorted.
func (m Map) Sources() []string {
	sources := make([]string, 0, len(m.usages))
	for source := range m.usages {
		sources = append(sources, source)
	}
	sort.Strings(sources)
	return sources
}

// ClassFiles returns the sorted class files read by a source.
func (m Map) ClassFiles(source string) []string {
	return append([]string(nil), m.usages[source]...)
}

// Len returns the number of sources.
func (m Map) Len() int {
	return len(m.usages)
}

// AsMap returns a copy of the snapshot as a plain map.
func (m Map) AsMap() map[string][]string {
	out := make(map[string][]string, len(m.usages))
	for source, classFiles := range m.usages {
		out[source] = append([]string(nil), classFiles...)
	}
	return out
}

// MarshalJSON encodes the snapshot as {"source": ["class", ...]} with keys
// in sorted order.
func (m Map) MarshalJSON() ([]byte, error) {
	if m.usages == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m.usages)
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *Map) UnmarshalJSON(data []byte) error {
	var usages map[string][]string
	if err := json.Unmarshal(data, &usages); err != nil {
		return err
	}
	*m = NewMap(usages)
	return nil
}

func sortedUnique(values []string) []string {
	sort.Strings(values)
	out := values[:0]
	for _, v := range values {
		if len(out) > 0 && out[len(out)-1] == v {
			continue
		}
		out = append(out, v)
	}
	return out
}

// Recorder accumulates usages reported during a compilation. It is safe for
// concurrent use.
type Recorder struct {
	mu     sync.Mutex
	usages map[string]map[string]struct{}
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{usages: make(map[string]map[string]struct{})}
}

// Record notes that compiling source read classFile.
func (r *Recorder) Record(source, classFile string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.usages[source]
	if !ok {
		set = make(map[string]struct{})
		r.usages[source] = set
	}
	set[classFile] = struct{}{}
}

// Snapshot returns the usages recorded so far.
func (r *Recorder) Snapshot() Map {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := Map{usages: make(map[string][]string, len(r.usages))}
	for source, set := range r.usages {
		classFiles := make([]string, 0, len(set))
		for classFile := range set {
			classFiles = append(classFiles, classFile)
		}
		m.add(source, classFiles...)
	}
	return m
}
