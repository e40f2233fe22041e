package delta

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

type keyKind uint8

const (
	keyNone keyKind = iota
	keyName
	keyIndex
)

// Key addresses one child of a container: a map key or record field by
// name, or a list element by index. The zero Key addresses nothing and is
// used by set operations.
type Key struct {
	kind  keyKind
	name  string
	index int
}

// Name returns a key addressing a map entry or record field.
func Name(s string) Key { return Key{kind: keyName, name: s} }

// Index returns a key addressing a list element.
func Index(i int) Key { return Key{kind: keyIndex, index: i} }

// IsZero reports whether k addresses nothing.
func (k Key) IsZero() bool { return k.kind == keyNone }

// IsIndex reports whether k is a list index.
func (k Key) IsIndex() bool { return k.kind == keyIndex }

// Name returns the key's name. It is empty for index keys.
func (k Key) Name() string { return k.name }

// Index returns the key's index. It is zero for name keys.
func (k Key) Index() int { return k.index }

func (k Key) String() string {
	switch k.kind {
	case keyName:
		return k.name
	case keyIndex:
		return strconv.Itoa(k.index)
	}
	return ""
}

// MarshalJSON encodes names as strings and indexes as numbers.
func (k Key) MarshalJSON() ([]byte, error) {
	switch k.kind {
	case keyName:
		return json.Marshal(k.name)
	case keyIndex:
		return json.Marshal(k.index)
	}
	return []byte("null"), nil
}

// UnmarshalJSON reverses MarshalJSON.
func (k *Key) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch x := raw.(type) {
	case nil:
		*k = Key{}
	case string:
		*k = Name(x)
	case float64:
		*k = Index(int(x))
	default:
		return fmt.Errorf("invalid path key %s", data)
	}
	return nil
}

// Path is the sequence of keys from the root to a location.
type Path []Key

// Child returns a new path extending p with k. p is never modified.
func (p Path) Child(k Key) Path {
	out := make(Path, len(p)+1)
	copy(out, p)
	out[len(p)] = k
	return out
}

// Equal reports whether p and o address the same location.
func (p Path) Equal(o Path) bool {
	if len(p) != len(o) {
		return false
	}
	for i := range p {
		if p[i] != o[i] {
			return false
		}
	}
	return true
}

// HasPrefix reports whether prefix addresses p or one of its ancestors.
func (p Path) HasPrefix(prefix Path) bool {
	return len(prefix) <= len(p) && p[:len(prefix)].Equal(prefix)
}

// Overlaps reports whether one of p and o contains the other.
func (p Path) Overlaps(o Path) bool {
	return p.HasPrefix(o) || o.HasPrefix(p)
}

// String renders the path with "." separators, "" for the root.
func (p Path) String() string {
	parts := make([]string, len(p))
	for i, k := range p {
		parts[i] = k.String()
	}
	return strings.Join(parts, ".")
}
