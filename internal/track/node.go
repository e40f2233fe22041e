package track

import (
	"fmt"
	"sync"

	"github.com/bolasblack/syncx/internal/delta"
	"github.com/bolasblack/syncx/internal/value"
)

// Node is a handle on one container of a tracked tree, as reached through
// a particular path. The same container reached through two paths gives
// two nodes that share one arena slot. When a mutation finds the container
// moved, the node's path follows it.
//
// Reads do not take the manager lock. Reads that may run while another
// goroutine mutates the tree belong inside Manager.View.
type Node struct {
	m    *Manager
	ref  ref
	kind value.Kind

	mu   sync.RWMutex
	path delta.Path
}

// Manager returns the node's manager.
func (n *Node) Manager() *Manager { return n.m }

// Kind returns the kind of the node's container.
func (n *Node) Kind() value.Kind { return n.kind }

// Path returns the node's path from the root.
func (n *Node) Path() delta.Path {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return append(delta.Path{}, n.path...)
}

func (n *Node) setPath(p delta.Path) {
	n.mu.Lock()
	n.path = p
	n.mu.Unlock()
}

// Value returns the underlying container. It must not be modified
// directly.
func (n *Node) Value() any {
	c, _ := n.container()
	return c
}

func (n *Node) String() string {
	return fmt.Sprintf("%s(%s)", n.kind, displayPath(n.Path()))
}

func displayPath(p delta.Path) string {
	if len(p) == 0 {
		return "<root>"
	}
	return p.String()
}

func (n *Node) container() (any, error) {
	c, ok := n.m.arena.get(n.ref)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDetached, displayPath(n.Path()))
	}
	return c, nil
}

// wrap returns v as seen from n under key k: containers become nodes,
// leaves are returned as is.
func (n *Node) wrap(v any, k delta.Key) any {
	if !value.IsContainer(v) {
		return v
	}
	return n.child(v, k)
}

func (n *Node) child(v any, k delta.Key) *Node {
	p := n.Path().Child(k)
	kind, _ := value.KindOf(v)
	return &Node{m: n.m, ref: n.m.arena.ensure(v, p), path: p, kind: kind}
}

// Len returns the number of entries, elements, members or set fields.
func (n *Node) Len() int {
	switch c := n.Value().(type) {
	case *value.Map:
		return c.Len()
	case *value.List:
		return c.Len()
	case *value.Set:
		return c.Len()
	case *value.Record:
		return c.Len()
	}
	return 0
}

// Get returns the map entry or record field named key. Containers are
// returned as *Node.
func (n *Node) Get(key string) (any, bool) {
	switch c := n.Value().(type) {
	case *value.Map:
		v, ok := c.Get(key)
		if !ok {
			return nil, false
		}
		return n.wrap(v, delta.Name(key)), true
	case *value.Record:
		return n.Field(key)
	}
	return nil, false
}

// Field returns a record field. Private fields are returned as stored.
func (n *Node) Field(name string) (any, bool) {
	c, ok := n.Value().(*value.Record)
	if !ok {
		return nil, false
	}
	v, ok := c.Get(name)
	if !ok {
		return nil, false
	}
	if value.IsPrivateField(name) {
		return v, true
	}
	return n.wrap(v, delta.Name(name)), true
}

// Index returns the list element at i. Negative indexes count from the
// end. Containers are returned as *Node.
func (n *Node) Index(i int) (any, bool) {
	c, ok := n.Value().(*value.List)
	if !ok {
		return nil, false
	}
	v, ok := c.Get(i)
	if !ok {
		return nil, false
	}
	if i < 0 {
		i += c.Len()
	}
	return n.wrap(v, delta.Index(i)), true
}

// Keys returns the map keys, or the set fields of a record.
func (n *Node) Keys() []string {
	switch c := n.Value().(type) {
	case *value.Map:
		return c.Keys()
	case *value.Record:
		return c.Fields()
	}
	return nil
}

// Has reports whether a set holds v or a map holds key v.
func (n *Node) Has(v any) bool {
	switch c := n.Value().(type) {
	case *value.Set:
		m, err := value.From(v)
		return err == nil && c.Has(m)
	case *value.Map:
		k, ok := v.(string)
		if !ok {
			return false
		}
		_, found := c.Get(k)
		return found
	}
	return false
}

// Members returns the members of a set in a stable order.
func (n *Node) Members() []any {
	if c, ok := n.Value().(*value.Set); ok {
		return c.Members()
	}
	return nil
}

// Child returns the node of the container stored under k.
func (n *Node) Child(k delta.Key) (*Node, error) {
	var v any
	var ok bool
	if k.IsIndex() {
		v, ok = n.Index(k.Index())
	} else {
		v, ok = n.Get(k.Name())
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, displayPath(n.Path().Child(k)))
	}
	child, isNode := v.(*Node)
	if !isNode {
		return nil, fmt.Errorf("%w: %s holds a leaf", ErrWrongKind, displayPath(n.Path().Child(k)))
	}
	return child, nil
}

// Lookup follows p from n and returns the node found there.
func (n *Node) Lookup(p delta.Path) (*Node, error) {
	cur := n
	for _, k := range p {
		next, err := cur.Child(k)
		if err != nil {
			return nil, err
		}
		cur = next
	}
	return cur, nil
}
