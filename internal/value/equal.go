package value

// Equal reports whether a and b are structurally equal. Numbers compare by
// value regardless of their Go type.
func Equal(a, b any) bool {
	return equalWith(a, b, make(map[[2]any]bool))
}

func equalWith(a, b any, seen map[[2]any]bool) bool {
	if IsContainer(a) && IsContainer(b) {
		pair := [2]any{a, b}
		if seen[pair] {
			return true
		}
		seen[pair] = true
	}

	switch x := a.(type) {
	case *Map:
		y, ok := b.(*Map)
		if !ok || len(x.entries) != len(y.entries) {
			return false
		}
		for k, v := range x.entries {
			w, ok := y.entries[k]
			if !ok || !equalWith(v, w, seen) {
				return false
			}
		}
		return true
	case *List:
		y, ok := b.(*List)
		if !ok || len(x.items) != len(y.items) {
			return false
		}
		for i := range x.items {
			if !equalWith(x.items[i], y.items[i], seen) {
				return false
			}
		}
		return true
	case *Set:
		y, ok := b.(*Set)
		if !ok || len(x.members) != len(y.members) {
			return false
		}
	members:
		for m := range x.members {
			if _, ok := y.members[m]; ok {
				continue
			}
			for n := range y.members {
				if LeafEqual(m, n) {
					continue members
				}
			}
			return false
		}
		return true
	case *Record:
		y, ok := b.(*Record)
		if !ok || x.schema.Name != y.schema.Name || len(x.values) != len(y.values) {
			return false
		}
		for k, v := range x.values {
			w, ok := y.values[k]
			if !ok || !equalWith(v, w, seen) {
				return false
			}
		}
		return true
	}
	if IsContainer(b) {
		return false
	}
	return LeafEqual(a, b)
}

// LeafEqual compares two leaves.
func LeafEqual(a, b any) bool {
	if a == b {
		return true
	}
	ia, aInt := toInt(a)
	ib, bInt := toInt(b)
	if aInt && bInt {
		return ia == ib
	}
	fa, aNum := toFloat(a)
	fb, bNum := toFloat(b)
	if aNum && bNum {
		return fa == fb
	}
	return false
}

func toInt(v any) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int8:
		return int64(x), true
	case int16:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case uint:
		return int64(x), true
	case uint8:
		return int64(x), true
	case uint16:
		return int64(x), true
	case uint32:
		return int64(x), true
	case uint64:
		return int64(x), true
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	if i, ok := toInt(v); ok {
		return float64(i), true
	}
	switch x := v.(type) {
	case float32:
		return float64(x), true
	case float64:
		return x, true
	}
	return 0, false
}
