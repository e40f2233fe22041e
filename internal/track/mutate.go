package track

import (
	"context"
	"fmt"

	"github.com/bolasblack/syncx/internal/value"
)

// mutate routes a mutation of a container of kind want through the
// manager.
func (n *Node) mutate(ctx context.Context, op string, args []any, fn func(c any) (any, error), want ...value.Kind) (any, error) {
	for _, k := range want {
		if n.kind == k {
			return n.m.executeChange(ctx, n, op, args, fn)
		}
	}
	return nil, fmt.Errorf("%w: %s on %s", ErrWrongKind, op, n.kind)
}

// adopt converts an argument into the value model. Nodes contribute their
// container so the result aliases it.
func (n *Node) adopt(v any) (any, error) {
	if other, ok := v.(*Node); ok {
		return other.container()
	}
	return value.From(v)
}

func (n *Node) adoptAll(vs []any) ([]any, error) {
	out := make([]any, len(vs))
	for i, v := range vs {
		a, err := n.adopt(v)
		if err != nil {
			return nil, err
		}
		out[i] = a
	}
	return out, nil
}

func (n *Node) member(v any) (any, error) {
	m, err := n.adopt(v)
	if err != nil {
		return nil, err
	}
	if !value.IsLeaf(m) {
		return nil, fmt.Errorf("%w: set member %T", ErrNotTrackable, v)
	}
	return m, nil
}

// Clear empties a map, list or set.
func (n *Node) Clear(ctx context.Context) error {
	_, err := n.mutate(ctx, "clear", nil, func(c any) (any, error) {
		switch x := c.(type) {
		case *value.Map:
			x.Clear()
		case *value.List:
			x.Clear()
		case *value.Set:
			x.Clear()
		}
		return nil, nil
	}, value.KindMap, value.KindList, value.KindSet)
	return err
}

// -----------------------------------------------------------------------------
// Map
// -----------------------------------------------------------------------------

// Set stores v under key.
func (n *Node) Set(ctx context.Context, key string, v any) error {
	a, err := n.adopt(v)
	if err != nil {
		return err
	}
	_, err = n.mutate(ctx, "set", []any{key, v}, func(c any) (any, error) {
		c.(*value.Map).Set(key, a)
		return nil, nil
	}, value.KindMap)
	return err
}

// Delete removes key.
func (n *Node) Delete(ctx context.Context, key string) error {
	_, err := n.mutate(ctx, "delete", []any{key}, func(c any) (any, error) {
		if !c.(*value.Map).Delete(key) {
			return nil, fmt.Errorf("%w: %q", ErrKeyNotFound, key)
		}
		return nil, nil
	}, value.KindMap)
	return err
}

// Update stores every entry of entries.
func (n *Node) Update(ctx context.Context, entries map[string]any) error {
	adopted := make(map[string]any, len(entries))
	for k, v := range entries {
		a, err := n.adopt(v)
		if err != nil {
			return err
		}
		adopted[k] = a
	}
	_, err := n.mutate(ctx, "update", []any{entries}, func(c any) (any, error) {
		m := c.(*value.Map)
		for k, v := range adopted {
			m.Set(k, v)
		}
		return nil, nil
	}, value.KindMap)
	return err
}

// PopKey removes key and returns its value as plain Go values.
func (n *Node) PopKey(ctx context.Context, key string) (any, error) {
	return n.mutate(ctx, "pop", []any{key}, func(c any) (any, error) {
		m := c.(*value.Map)
		v, ok := m.Get(key)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrKeyNotFound, key)
		}
		m.Delete(key)
		return value.Plain(v), nil
	}, value.KindMap)
}

// PopItem removes the entry with the greatest key and returns it.
func (n *Node) PopItem(ctx context.Context) (string, any, error) {
	var key string
	v, err := n.mutate(ctx, "popitem", nil, func(c any) (any, error) {
		m := c.(*value.Map)
		keys := m.Keys()
		if len(keys) == 0 {
			return nil, ErrEmpty
		}
		key = keys[len(keys)-1]
		v, _ := m.Get(key)
		m.Delete(key)
		return value.Plain(v), nil
	}, value.KindMap)
	return key, v, err
}

// SetDefault stores v under key unless key is present, and returns the
// value stored under key afterwards.
func (n *Node) SetDefault(ctx context.Context, key string, v any) (any, error) {
	a, err := n.adopt(v)
	if err != nil {
		return nil, err
	}
	_, err = n.mutate(ctx, "setdefault", []any{key, v}, func(c any) (any, error) {
		m := c.(*value.Map)
		if _, ok := m.Get(key); !ok {
			m.Set(key, a)
		}
		return nil, nil
	}, value.KindMap)
	if err != nil {
		return nil, err
	}
	got, _ := n.Get(key)
	return got, nil
}

// -----------------------------------------------------------------------------
// List
// -----------------------------------------------------------------------------

// SetIndex replaces the element at i.
func (n *Node) SetIndex(ctx context.Context, i int, v any) error {
	a, err := n.adopt(v)
	if err != nil {
		return err
	}
	_, err = n.mutate(ctx, "setindex", []any{i, v}, func(c any) (any, error) {
		if !c.(*value.List).Set(i, a) {
			return nil, fmt.Errorf("%w: %d", ErrIndexOutOfRange, i)
		}
		return nil, nil
	}, value.KindList)
	return err
}

// DeleteIndex removes the element at i.
func (n *Node) DeleteIndex(ctx context.Context, i int) error {
	_, err := n.mutate(ctx, "deleteindex", []any{i}, func(c any) (any, error) {
		if _, ok := c.(*value.List).Delete(i); !ok {
			return nil, fmt.Errorf("%w: %d", ErrIndexOutOfRange, i)
		}
		return nil, nil
	}, value.KindList)
	return err
}

// Insert places v before index i.
func (n *Node) Insert(ctx context.Context, i int, v any) error {
	a, err := n.adopt(v)
	if err != nil {
		return err
	}
	_, err = n.mutate(ctx, "insert", []any{i, v}, func(c any) (any, error) {
		c.(*value.List).Insert(i, a)
		return nil, nil
	}, value.KindList)
	return err
}

// Append adds v to the end.
func (n *Node) Append(ctx context.Context, v any) error {
	a, err := n.adopt(v)
	if err != nil {
		return err
	}
	_, err = n.mutate(ctx, "append", []any{v}, func(c any) (any, error) {
		c.(*value.List).Append(a)
		return nil, nil
	}, value.KindList)
	return err
}

// Extend appends every element of vs.
func (n *Node) Extend(ctx context.Context, vs ...any) error {
	adopted, err := n.adoptAll(vs)
	if err != nil {
		return err
	}
	_, err = n.mutate(ctx, "extend", vs, func(c any) (any, error) {
		l := c.(*value.List)
		for _, a := range adopted {
			l.Append(a)
		}
		return nil, nil
	}, value.KindList)
	return err
}

// PopIndex removes the element at i and returns it as plain Go values. Use
// -1 for the last element.
func (n *Node) PopIndex(ctx context.Context, i int) (any, error) {
	return n.mutate(ctx, "pop", []any{i}, func(c any) (any, error) {
		l := c.(*value.List)
		if l.Len() == 0 {
			return nil, ErrEmpty
		}
		v, ok := l.Delete(i)
		if !ok {
			return nil, fmt.Errorf("%w: %d", ErrIndexOutOfRange, i)
		}
		return value.Plain(v), nil
	}, value.KindList)
}

// RemoveValue removes the first element equal to v.
func (n *Node) RemoveValue(ctx context.Context, v any) error {
	a, err := n.adopt(v)
	if err != nil {
		return err
	}
	_, err = n.mutate(ctx, "remove", []any{v}, func(c any) (any, error) {
		l := c.(*value.List)
		for i, item := range l.Items() {
			if value.Equal(item, a) {
				l.Delete(i)
				return nil, nil
			}
		}
		return nil, fmt.Errorf("%w: %v", ErrMemberNotFound, v)
	}, value.KindList)
	return err
}

// Reverse reverses the list in place.
func (n *Node) Reverse(ctx context.Context) error {
	_, err := n.mutate(ctx, "reverse", nil, func(c any) (any, error) {
		c.(*value.List).Reverse()
		return nil, nil
	}, value.KindList)
	return err
}

// -----------------------------------------------------------------------------
// Set
// -----------------------------------------------------------------------------

// Add inserts v into the set.
func (n *Node) Add(ctx context.Context, v any) error {
	m, err := n.member(v)
	if err != nil {
		return err
	}
	_, err = n.mutate(ctx, "add", []any{v}, func(c any) (any, error) {
		c.(*value.Set).Add(m)
		return nil, nil
	}, value.KindSet)
	return err
}

// Discard removes v from the set if present.
func (n *Node) Discard(ctx context.Context, v any) error {
	m, err := n.member(v)
	if err != nil {
		return err
	}
	_, err = n.mutate(ctx, "discard", []any{v}, func(c any) (any, error) {
		c.(*value.Set).Discard(m)
		return nil, nil
	}, value.KindSet)
	return err
}

// RemoveMember removes v from the set, failing if it is absent.
func (n *Node) RemoveMember(ctx context.Context, v any) error {
	m, err := n.member(v)
	if err != nil {
		return err
	}
	_, err = n.mutate(ctx, "remove", []any{v}, func(c any) (any, error) {
		if !c.(*value.Set).Discard(m) {
			return nil, fmt.Errorf("%w: %v", ErrMemberNotFound, v)
		}
		return nil, nil
	}, value.KindSet)
	return err
}

// PopMember removes and returns the first member in the set's order.
func (n *Node) PopMember(ctx context.Context) (any, error) {
	return n.mutate(ctx, "pop", nil, func(c any) (any, error) {
		s := c.(*value.Set)
		members := s.Members()
		if len(members) == 0 {
			return nil, ErrEmpty
		}
		s.Discard(members[0])
		return members[0], nil
	}, value.KindSet)
}

// Union adds every member of vs.
func (n *Node) Union(ctx context.Context, vs ...any) error {
	return n.setOp(ctx, "union", vs, func(s *value.Set, other *value.Set) {
		for _, m := range other.Members() {
			s.Add(m)
		}
	})
}

// Intersect keeps only the members also in vs.
func (n *Node) Intersect(ctx context.Context, vs ...any) error {
	return n.setOp(ctx, "intersect", vs, func(s *value.Set, other *value.Set) {
		for _, m := range s.Members() {
			if !other.Has(m) {
				s.Discard(m)
			}
		}
	})
}

// Subtract removes every member of vs.
func (n *Node) Subtract(ctx context.Context, vs ...any) error {
	return n.setOp(ctx, "subtract", vs, func(s *value.Set, other *value.Set) {
		for _, m := range other.Members() {
			s.Discard(m)
		}
	})
}

// SymmetricDifference keeps the members in exactly one of the set and vs.
func (n *Node) SymmetricDifference(ctx context.Context, vs ...any) error {
	return n.setOp(ctx, "symmetric_difference", vs, func(s *value.Set, other *value.Set) {
		for _, m := range other.Members() {
			if !s.Discard(m) {
				s.Add(m)
			}
		}
	})
}

func (n *Node) setOp(ctx context.Context, op string, vs []any, fn func(s, other *value.Set)) error {
	other := value.NewSet()
	for _, v := range vs {
		m, err := n.member(v)
		if err != nil {
			return err
		}
		other.Add(m)
	}
	_, err := n.mutate(ctx, op, vs, func(c any) (any, error) {
		fn(c.(*value.Set), other)
		return nil, nil
	}, value.KindSet)
	return err
}

// -----------------------------------------------------------------------------
// Record
// -----------------------------------------------------------------------------

// SetField assigns a record field. Private fields are stored without
// tracking.
func (n *Node) SetField(ctx context.Context, name string, v any) error {
	if value.IsPrivateField(name) {
		rec, ok := n.Value().(*value.Record)
		if !ok {
			return fmt.Errorf("%w: setfield on %s", ErrWrongKind, n.kind)
		}
		return rec.Set(name, v)
	}
	a, err := n.adopt(v)
	if err != nil {
		return err
	}
	_, err = n.mutate(ctx, "setfield", []any{name, v}, func(c any) (any, error) {
		return nil, c.(*value.Record).Set(name, a)
	}, value.KindRecord)
	return err
}

// DeleteField unsets a record field.
func (n *Node) DeleteField(ctx context.Context, name string) error {
	if value.IsPrivateField(name) {
		rec, ok := n.Value().(*value.Record)
		if !ok {
			return fmt.Errorf("%w: deletefield on %s", ErrWrongKind, n.kind)
		}
		rec.Delete(name)
		return nil
	}
	_, err := n.mutate(ctx, "deletefield", []any{name}, func(c any) (any, error) {
		if !c.(*value.Record).Delete(name) {
			return nil, fmt.Errorf("%w: %q", ErrKeyNotFound, name)
		}
		return nil, nil
	}, value.KindRecord)
	return err
}
