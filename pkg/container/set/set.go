// Package set implements an ordered sequence of (name, value) string
// fields, the container underneath request/response headers, parsed
// configuration sections, and the trie's per-level child lists.
//
// Duplicate names are permitted; iteration and index-based access reflect
// insertion order except where an in-place Update replaces a value. A Set
// has no inherent lifetime tag of its own — static-vs-dynamic is a
// property of who holds the pointer, left to the caller, matching the
// original design's "lifetime bound to creator" note.
package set

import "strings"

// Field is one (name, value) pair in a Set.
type Field struct {
	Name  string
	Value string
}

// Set is an ordered, append-friendly list of Fields, optionally tagged with
// a name (e.g. a header set's Set-level name, or a config section path).
type Set struct {
	Name   string
	fields []Field
}

// New creates an empty, optionally named Set.
func New(name string) *Set {
	return &Set{Name: name}
}

// NewSize creates an empty Set with capacity reserved for n fields.
func NewSize(name string, n int) *Set {
	return &Set{Name: name, fields: make([]Field, 0, n)}
}

// Recreate resets s in place, optionally adopting the capacity of another
// Set (from), discarding s's current fields. Passing a nil from just
// clears s.
func (s *Set) Recreate(from *Set) {
	if from != nil {
		s.fields = make([]Field, 0, cap(from.fields))
		return
	}
	s.fields = s.fields[:0]
}

// Len returns the number of fields, including duplicate names.
func (s *Set) Len() int { return len(s.fields) }

// At returns the field at index i. i must be in [0, Len()).
func (s *Set) At(i int) Field { return s.fields[i] }

// Fields returns every field in insertion order. The returned slice aliases
// the Set's storage and must not be mutated.
func (s *Set) Fields() []Field { return s.fields }

// Put appends (k, v) unconditionally and returns its index.
func (s *Set) Put(k, v string) int {
	s.fields = append(s.fields, Field{Name: k, Value: v})
	return len(s.fields) - 1
}

// Get returns the value of the first field named k (case-sensitive), and
// whether one was found.
func (s *Set) Get(k string) (string, bool) {
	i := s.Find(k)
	if i < 0 {
		return "", false
	}
	return s.fields[i].Value, true
}

// IGet returns the value of the first field named k (case-insensitive),
// and whether one was found.
func (s *Set) IGet(k string) (string, bool) {
	i := s.IFind(k)
	if i < 0 {
		return "", false
	}
	return s.fields[i].Value, true
}

// Find returns the index of the first field named k (case-sensitive), or
// -1.
func (s *Set) Find(k string) int {
	for i, f := range s.fields {
		if f.Name == k {
			return i
		}
	}
	return -1
}

// IFind returns the index of the first field named k (case-insensitive),
// or -1.
func (s *Set) IFind(k string) int {
	for i, f := range s.fields {
		if strings.EqualFold(f.Name, k) {
			return i
		}
	}
	return -1
}

// Update replaces the value of the first field named k (case-sensitive) and
// returns its index; if absent, it Puts a new field instead.
func (s *Set) Update(k, v string) int {
	if i := s.Find(k); i >= 0 {
		s.fields[i].Value = v
		return i
	}
	return s.Put(k, v)
}

// IUpdate replaces the value of the first field named k (case-insensitive)
// and returns its index; if absent, it Puts a new field instead.
func (s *Set) IUpdate(k, v string) int {
	if i := s.IFind(k); i >= 0 {
		s.fields[i].Value = v
		return i
	}
	return s.Put(k, v)
}

// Delete removes the field at index i.
func (s *Set) Delete(i int) {
	s.fields = append(s.fields[:i], s.fields[i+1:]...)
}

// DeleteKey removes the first field named k (case-sensitive). Reports
// whether a field was removed.
func (s *Set) DeleteKey(k string) bool {
	i := s.Find(k)
	if i < 0 {
		return false
	}
	s.Delete(i)
	return true
}

// IDeleteKey removes the first field named k (case-insensitive). Reports
// whether a field was removed.
func (s *Set) IDeleteKey(k string) bool {
	i := s.IFind(k)
	if i < 0 {
		return false
	}
	s.Delete(i)
	return true
}

// Merge copies every field from low into high whose name (case-insensitive)
// is absent from high, leaving high's existing fields untouched.
func Merge(high, low *Set) {
	for _, f := range low.fields {
		if _, ok := high.IGet(f.Name); !ok {
			high.Put(f.Name, f.Value)
		}
	}
}

// Split groups s's fields into runs whose names share a sep-prefixed
// grouping key — e.g. splitting "ns/server/s1/x", "ns/server/s1/y",
// "ns/server/s2/z" by "/" groups the first two under "ns/server/s1".
// Fields without sep in their name are placed in a group keyed by the
// field's own name.
func (s *Set) Split(sep string) map[string]*Set {
	groups := make(map[string]*Set)
	for _, f := range s.fields {
		key := f.Name
		if i := strings.LastIndex(f.Name, sep); i >= 0 {
			key = f.Name[:i]
		}
		g, ok := groups[key]
		if !ok {
			g = New(key)
			groups[key] = g
		}
		g.Put(f.Name, f.Value)
	}
	return groups
}

// Format renders the Set as a sequence of "lead key sep value\n" lines,
// optionally preceded by a "lead name\n" header line when withName is true
// and the Set carries a name.
func (s *Set) Format(withName bool, lead, sep string) string {
	var b strings.Builder
	if withName && s.Name != "" {
		b.WriteString(lead)
		b.WriteString(s.Name)
		b.WriteByte('\n')
	}
	for _, f := range s.fields {
		b.WriteString(lead)
		b.WriteString(f.Name)
		b.WriteString(sep)
		b.WriteString(f.Value)
		b.WriteByte('\n')
	}
	return b.String()
}
