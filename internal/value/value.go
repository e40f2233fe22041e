// Package value defines the dynamically shaped data that syncx tracks.
//
// A value is either a leaf (nil, bool, integer, float or string) or one of
// four container kinds: Map, List, Set and Record. Containers are always
// handled through pointers so the same container can sit at several
// locations of a tree at once.
package value

import (
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrNotTrackable is returned for values that are neither a container
	// nor a hashable leaf.
	ErrNotTrackable = errors.New("value is not trackable")
	// ErrUnknownField is returned when a record is asked for a field its
	// schema does not declare.
	ErrUnknownField = errors.New("unknown record field")
)

// Kind is the closed set of shapes a value can take.
type Kind int

const (
	// KindLeaf is an opaque immutable value.
	KindLeaf Kind = iota
	// KindList is an ordered sequence.
	KindList
	// KindMap is a string-keyed mapping.
	KindMap
	// KindSet is an unordered collection of unique leaves.
	KindSet
	// KindRecord is a value with a declared set of named fields.
	KindRecord
)

// String returns a human-readable name for the kind.
func (k Kind) String() string {
	switch k {
	case KindLeaf:
		return "leaf"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	case KindSet:
		return "set"
	case KindRecord:
		return "record"
	default:
		return "unknown"
	}
}

// KindOf classifies v. It does not convert plain Go containers; use From
// for that.
func KindOf(v any) (Kind, error) {
	switch v.(type) {
	case *List:
		return KindList, nil
	case *Map:
		return KindMap, nil
	case *Set:
		return KindSet, nil
	case *Record:
		return KindRecord, nil
	}
	if IsLeaf(v) {
		return KindLeaf, nil
	}
	return KindLeaf, fmt.Errorf("%w: %T", ErrNotTrackable, v)
}

// IsContainer reports whether v is one of the container kinds.
func IsContainer(v any) bool {
	switch v.(type) {
	case *List, *Map, *Set, *Record:
		return true
	}
	return false
}

// IsLeaf reports whether v is a hashable primitive.
func IsLeaf(v any) bool {
	switch v.(type) {
	case nil, bool, string,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return true
	}
	return false
}

// -----------------------------------------------------------------------------
// Map
// -----------------------------------------------------------------------------

// Map is a string-keyed mapping.
type Map struct {
	entries map[string]any
}

// NewMap returns an empty map.
func NewMap() *Map {
	return &Map{entries: make(map[string]any)}
}

// Get returns the value stored under key.
func (m *Map) Get(key string) (any, bool) {
	v, ok := m.entries[key]
	return v, ok
}

// Set stores v under key.
func (m *Map) Set(key string, v any) {
	m.entries[key] = v
}

// Delete removes key and reports whether it was present.
func (m *Map) Delete(key string) bool {
	if _, ok := m.entries[key]; !ok {
		return false
	}
	delete(m.entries, key)
	return true
}

// Len returns the number of entries.
func (m *Map) Len() int {
	return len(m.entries)
}

// Keys returns the keys in sorted order.
func (m *Map) Keys() []string {
	keys := make([]string, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clear removes all entries.
func (m *Map) Clear() {
	m.entries = make(map[string]any)
}

// -----------------------------------------------------------------------------
// List
// -----------------------------------------------------------------------------

// List is an ordered sequence.
type List struct {
	items []any
}

// NewList returns a list holding items.
func NewList(items ...any) *List {
	return &List{items: append([]any(nil), items...)}
}

// Len returns the number of items.
func (l *List) Len() int {
	return len(l.items)
}

// Get returns the item at index i. Negative indexes count from the end.
func (l *List) Get(i int) (any, bool) {
	i, ok := l.normalize(i)
	if !ok {
		return nil, false
	}
	return l.items[i], true
}

// Set replaces the item at index i.
func (l *List) Set(i int, v any) bool {
	i, ok := l.normalize(i)
	if !ok {
		return false
	}
	l.items[i] = v
	return true
}

// Insert places v before index i. Indexes past either end are clamped.
func (l *List) Insert(i int, v any) {
	if i < 0 {
		i += len(l.items)
		if i < 0 {
			i = 0
		}
	}
	if i > len(l.items) {
		i = len(l.items)
	}
	l.items = append(l.items, nil)
	copy(l.items[i+1:], l.items[i:])
	l.items[i] = v
}

// Append adds v to the end.
func (l *List) Append(v any) {
	l.items = append(l.items, v)
}

// Delete removes the item at index i and returns it.
func (l *List) Delete(i int) (any, bool) {
	i, ok := l.normalize(i)
	if !ok {
		return nil, false
	}
	v := l.items[i]
	l.items = append(l.items[:i], l.items[i+1:]...)
	return v, true
}

// Items returns the underlying items. The slice must not be modified.
func (l *List) Items() []any {
	return l.items
}

// Clear removes all items.
func (l *List) Clear() {
	l.items = nil
}

// Reverse reverses the items in place.
func (l *List) Reverse() {
	for i, j := 0, len(l.items)-1; i < j; i, j = i+1, j-1 {
		l.items[i], l.items[j] = l.items[j], l.items[i]
	}
}

func (l *List) normalize(i int) (int, bool) {
	if i < 0 {
		i += len(l.items)
	}
	if i < 0 || i >= len(l.items) {
		return 0, false
	}
	return i, true
}

// -----------------------------------------------------------------------------
// Set
// -----------------------------------------------------------------------------

// Set is an unordered collection of unique leaves.
type Set struct {
	members map[any]struct{}
}

// NewSet returns a set holding members. Members must be leaves.
func NewSet(members ...any) *Set {
	s := &Set{members: make(map[any]struct{}, len(members))}
	for _, m := range members {
		s.members[m] = struct{}{}
	}
	return s
}

// Has reports whether v is a member.
func (s *Set) Has(v any) bool {
	_, ok := s.members[v]
	return ok
}

// Add inserts v.
func (s *Set) Add(v any) {
	s.members[v] = struct{}{}
}

// Discard removes v and reports whether it was present.
func (s *Set) Discard(v any) bool {
	if _, ok := s.members[v]; !ok {
		return false
	}
	delete(s.members, v)
	return true
}

// Len returns the number of members.
func (s *Set) Len() int {
	return len(s.members)
}

// Members returns the members in a stable order.
func (s *Set) Members() []any {
	out := make([]any, 0, len(s.members))
	for m := range s.members {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return lessLeaf(out[i], out[j]) })
	return out
}

// Clear removes all members.
func (s *Set) Clear() {
	s.members = make(map[any]struct{})
}

// lessLeaf orders leaves first by type rank, then by value.
func lessLeaf(a, b any) bool {
	ra, rb := leafRank(a), leafRank(b)
	if ra != rb {
		return ra < rb
	}
	switch ra {
	case 1:
		return !a.(bool) && b.(bool)
	case 2:
		fa, _ := toFloat(a)
		fb, _ := toFloat(b)
		return fa < fb
	case 3:
		return a.(string) < b.(string)
	}
	return fmt.Sprint(a) < fmt.Sprint(b)
}

func leafRank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case string:
		return 3
	}
	if _, ok := toFloat(v); ok {
		return 2
	}
	return 4
}
