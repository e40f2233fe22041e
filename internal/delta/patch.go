package delta

import (
	"fmt"

	"github.com/bolasblack/syncx/internal/value"
)

// Patch applies d to v in place and returns the resulting value. The
// result differs from v only when an op replaces the root itself. Values
// taken from d are copied, so d can be applied again.
//
// On error v may be partially modified.
func Patch(d Delta, v any) (any, error) {
	root := v
	for i, op := range d {
		var err error
		root, err = apply(op, root)
		if err != nil {
			return root, fmt.Errorf("%w: op %d (%s): %w", ErrPatch, i, op.Kind, err)
		}
	}
	return root, nil
}

// Revert applies the inverse of d to v.
func Revert(d Delta, v any) (any, error) {
	return Patch(Invert(d), v)
}

func apply(op Op, root any) (any, error) {
	switch op.Kind {
	case Change:
		if len(op.Path) == 0 {
			return value.Clone(op.New), nil
		}
		parent, err := Resolve(root, op.Path[:len(op.Path)-1])
		if err != nil {
			return root, err
		}
		return root, replace(parent, op.Path[len(op.Path)-1], value.Clone(op.New))
	case Add:
		container, err := Resolve(root, op.Path)
		if err != nil {
			return root, err
		}
		return root, insert(container, op.Key, value.Clone(op.New))
	case Remove:
		container, err := Resolve(root, op.Path)
		if err != nil {
			return root, err
		}
		return root, remove(container, op.Key, op.Old)
	}
	return root, fmt.Errorf("unknown op kind %d", op.Kind)
}

// Resolve walks p from root and returns the value found there.
func Resolve(root any, p Path) (any, error) {
	cur := root
	for i, k := range p {
		next, ok := child(cur, k)
		if !ok {
			return nil, fmt.Errorf("path %q not found at %q", p.String(), p[:i+1].String())
		}
		cur = next
	}
	return cur, nil
}

func child(v any, k Key) (any, bool) {
	switch x := v.(type) {
	case *value.Map:
		if k.IsIndex() || k.IsZero() {
			return nil, false
		}
		return x.Get(k.Name())
	case *value.List:
		if !k.IsIndex() {
			return nil, false
		}
		return x.Get(k.Index())
	case *value.Record:
		if k.IsIndex() || k.IsZero() {
			return nil, false
		}
		return x.Get(k.Name())
	}
	return nil, false
}

func replace(container any, k Key, v any) error {
	switch x := container.(type) {
	case *value.Map:
		if _, ok := x.Get(k.Name()); !ok || k.IsIndex() {
			return fmt.Errorf("no entry %q to change", k)
		}
		x.Set(k.Name(), v)
		return nil
	case *value.List:
		if !k.IsIndex() || !x.Set(k.Index(), v) {
			return fmt.Errorf("no element %q to change", k)
		}
		return nil
	case *value.Record:
		if k.IsIndex() {
			return fmt.Errorf("no field %q to change", k)
		}
		return x.Set(k.Name(), v)
	}
	return fmt.Errorf("cannot change %q in %T", k, container)
}

func insert(container any, k Key, v any) error {
	switch x := container.(type) {
	case *value.Map:
		if k.IsIndex() || k.IsZero() {
			return fmt.Errorf("invalid map key %q", k)
		}
		x.Set(k.Name(), v)
		return nil
	case *value.List:
		if !k.IsIndex() || k.Index() < 0 || k.Index() > x.Len() {
			return fmt.Errorf("index %q out of range", k)
		}
		x.Insert(k.Index(), v)
		return nil
	case *value.Set:
		if !value.IsLeaf(v) {
			return fmt.Errorf("set member %T is not a leaf", v)
		}
		x.Add(v)
		return nil
	case *value.Record:
		if k.IsIndex() || k.IsZero() {
			return fmt.Errorf("invalid record field %q", k)
		}
		return x.Set(k.Name(), v)
	}
	return fmt.Errorf("cannot add %q to %T", k, container)
}

func remove(container any, k Key, old any) error {
	switch x := container.(type) {
	case *value.Map:
		if k.IsIndex() || !x.Delete(k.Name()) {
			return fmt.Errorf("no entry %q to remove", k)
		}
		return nil
	case *value.List:
		if !k.IsIndex() {
			return fmt.Errorf("invalid list index %q", k)
		}
		if _, ok := x.Delete(k.Index()); !ok {
			return fmt.Errorf("index %q out of range", k)
		}
		return nil
	case *value.Set:
		if !x.Discard(old) {
			return fmt.Errorf("set member %v not present", old)
		}
		return nil
	case *value.Record:
		if k.IsIndex() || !x.Delete(k.Name()) {
			return fmt.Errorf("no field %q to remove", k)
		}
		return nil
	}
	return fmt.Errorf("cannot remove %q from %T", k, container)
}
