package delta

import (
	"github.com/bolasblack/syncx/internal/value"
)

// Diff returns the delta transforming a into b. Every op path is prefixed
// with at, so the result can be applied to a larger tree that holds a at
// that location. Values recorded in the delta are copies.
//
// Cyclic values are not supported.
func Diff(a, b any, at Path) Delta {
	var d Delta
	diffInto(&d, a, b, clonePath(at))
	return d
}

func diffInto(d *Delta, a, b any, at Path) {
	switch x := a.(type) {
	case *value.Map:
		if y, ok := b.(*value.Map); ok {
			diffMaps(d, x, y, at)
			return
		}
	case *value.List:
		if y, ok := b.(*value.List); ok {
			diffLists(d, x, y, at)
			return
		}
	case *value.Set:
		if y, ok := b.(*value.Set); ok {
			diffSets(d, x, y, at)
			return
		}
	case *value.Record:
		if y, ok := b.(*value.Record); ok && sameSchema(x.Schema(), y.Schema()) {
			diffRecords(d, x, y, at)
			return
		}
	default:
		if !value.IsContainer(b) && value.LeafEqual(a, b) {
			return
		}
	}
	*d = append(*d, Op{Kind: Change, Path: at, Old: value.Clone(a), New: value.Clone(b)})
}

func diffMaps(d *Delta, a, b *value.Map, at Path) {
	var added, removed []string
	for _, k := range a.Keys() {
		av, _ := a.Get(k)
		bv, ok := b.Get(k)
		if !ok {
			removed = append(removed, k)
			continue
		}
		diffInto(d, av, bv, at.Child(Name(k)))
	}
	for _, k := range b.Keys() {
		if _, ok := a.Get(k); !ok {
			added = append(added, k)
		}
	}
	for _, k := range added {
		v, _ := b.Get(k)
		*d = append(*d, Op{Kind: Add, Path: at, Key: Name(k), New: value.Clone(v)})
	}
	for _, k := range removed {
		v, _ := a.Get(k)
		*d = append(*d, Op{Kind: Remove, Path: at, Key: Name(k), Old: value.Clone(v)})
	}
}

// diffLists compares position by position. Surplus elements are added in
// ascending order or removed in descending order, so ops stay valid when
// applied sequentially.
func diffLists(d *Delta, a, b *value.List, at Path) {
	ai, bi := a.Items(), b.Items()
	common := min(len(ai), len(bi))
	for i := 0; i < common; i++ {
		diffInto(d, ai[i], bi[i], at.Child(Index(i)))
	}
	for i := common; i < len(bi); i++ {
		*d = append(*d, Op{Kind: Add, Path: at, Key: Index(i), New: value.Clone(bi[i])})
	}
	for i := len(ai) - 1; i >= common; i-- {
		*d = append(*d, Op{Kind: Remove, Path: at, Key: Index(i), Old: value.Clone(ai[i])})
	}
}

func diffSets(d *Delta, a, b *value.Set, at Path) {
	for _, m := range a.Members() {
		if !b.Has(m) {
			*d = append(*d, Op{Kind: Remove, Path: at, Old: m})
		}
	}
	for _, m := range b.Members() {
		if !a.Has(m) {
			*d = append(*d, Op{Kind: Add, Path: at, New: m})
		}
	}
}

func diffRecords(d *Delta, a, b *value.Record, at Path) {
	for _, f := range b.Schema().Fields() {
		av, aok := a.Get(f)
		bv, bok := b.Get(f)
		switch {
		case aok && bok:
			diffInto(d, av, bv, at.Child(Name(f)))
		case bok:
			*d = append(*d, Op{Kind: Add, Path: at, Key: Name(f), New: value.Clone(bv)})
		case aok:
			*d = append(*d, Op{Kind: Remove, Path: at, Key: Name(f), Old: value.Clone(av)})
		}
	}
}

func sameSchema(a, b *value.Schema) bool {
	if a == b {
		return true
	}
	if a.Name != b.Name {
		return false
	}
	af, bf := a.Fields(), b.Fields()
	if len(af) != len(bf) {
		return false
	}
	for i := range af {
		if af[i] != bf[i] {
			return false
		}
	}
	return true
}

func clonePath(p Path) Path {
	if p == nil {
		return Path{}
	}
	return append(Path{}, p...)
}
