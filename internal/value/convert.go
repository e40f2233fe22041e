package value

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
)

type ptrKey struct {
	t   reflect.Type
	p   uintptr
	len int
}

// From converts a plain Go value into the value model. Containers that are
// already part of the model are returned unchanged so aliasing survives.
// Plain maps, slices and struct pointers that appear more than once in v
// become a single shared container.
func From(v any) (any, error) {
	c := &converter{seen: make(map[ptrKey]any)}
	return c.convert(reflect.ValueOf(v))
}

type converter struct {
	seen map[ptrKey]any
}

func (c *converter) convert(rv reflect.Value) (any, error) {
	if !rv.IsValid() {
		return nil, nil
	}
	if rv.CanInterface() {
		switch x := rv.Interface().(type) {
		case *Map, *List, *Set, *Record:
			return x, nil
		case json.Number:
			return numberLeaf(x)
		}
	}

	switch rv.Kind() {
	case reflect.Interface:
		if rv.IsNil() {
			return nil, nil
		}
		return c.convert(rv.Elem())
	case reflect.Bool:
		return rv.Bool(), nil
	case reflect.String:
		return rv.String(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return int(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		if u > math.MaxInt {
			return u, nil
		}
		return int(u), nil
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	case reflect.Pointer:
		if rv.IsNil() {
			return nil, nil
		}
		if rv.Elem().Kind() != reflect.Struct {
			return c.convert(rv.Elem())
		}
		key := ptrKey{t: rv.Type(), p: rv.Pointer()}
		if done, ok := c.seen[key]; ok {
			return done, nil
		}
		return c.record(rv.Elem(), key)
	case reflect.Struct:
		return c.record(rv, ptrKey{})
	case reflect.Map:
		return c.mapping(rv)
	case reflect.Slice:
		if rv.IsNil() {
			return NewList(), nil
		}
		key := ptrKey{t: rv.Type(), p: rv.Pointer(), len: rv.Len()}
		if done, ok := c.seen[key]; ok {
			return done, nil
		}
		l := NewList()
		c.seen[key] = l
		return l, c.fill(l, rv)
	case reflect.Array:
		l := NewList()
		return l, c.fill(l, rv)
	}
	return nil, fmt.Errorf("%w: %s", ErrNotTrackable, rv.Type())
}

func (c *converter) fill(l *List, rv reflect.Value) error {
	for i := 0; i < rv.Len(); i++ {
		item, err := c.convert(rv.Index(i))
		if err != nil {
			return err
		}
		l.Append(item)
	}
	return nil
}

func (c *converter) mapping(rv reflect.Value) (any, error) {
	t := rv.Type()
	key := ptrKey{t: t, p: rv.Pointer()}
	if done, ok := c.seen[key]; ok && !rv.IsNil() {
		return done, nil
	}

	if t.Elem().Kind() == reflect.Struct && t.Elem().NumField() == 0 {
		s := NewSet()
		c.seen[key] = s
		iter := rv.MapRange()
		for iter.Next() {
			m, err := c.convert(iter.Key())
			if err != nil {
				return nil, err
			}
			if !IsLeaf(m) {
				return nil, fmt.Errorf("%w: set member %T", ErrNotTrackable, m)
			}
			s.Add(m)
		}
		return s, nil
	}

	if t.Key().Kind() != reflect.String {
		return nil, fmt.Errorf("%w: map key %s", ErrNotTrackable, t.Key())
	}
	m := NewMap()
	c.seen[key] = m
	iter := rv.MapRange()
	for iter.Next() {
		v, err := c.convert(iter.Value())
		if err != nil {
			return nil, err
		}
		m.Set(iter.Key().String(), v)
	}
	return m, nil
}

func (c *converter) record(rv reflect.Value, key ptrKey) (any, error) {
	r := NewRecord(SchemaOf(rv.Type()))
	if key.p != 0 {
		c.seen[key] = r
	}
	for _, f := range structFields(rv.Type()) {
		v, err := c.convert(rv.Field(f.index))
		if err != nil {
			return nil, err
		}
		r.values[f.name] = v
	}
	return r, nil
}

func numberLeaf(n json.Number) (any, error) {
	if i, err := n.Int64(); err == nil {
		return int(i), nil
	}
	f, err := n.Float64()
	if err != nil {
		return nil, fmt.Errorf("%w: number %q", ErrNotTrackable, n)
	}
	return f, nil
}

// Clone returns a deep copy of v. Aliased containers inside v stay aliased
// in the copy.
func Clone(v any) any {
	return cloneWith(v, make(map[any]any))
}

func cloneWith(v any, seen map[any]any) any {
	if !IsContainer(v) {
		return v
	}
	if done, ok := seen[v]; ok {
		return done
	}
	switch x := v.(type) {
	case *Map:
		out := NewMap()
		seen[v] = out
		for k, item := range x.entries {
			out.entries[k] = cloneWith(item, seen)
		}
		return out
	case *List:
		out := &List{items: make([]any, len(x.items))}
		seen[v] = out
		for i, item := range x.items {
			out.items[i] = cloneWith(item, seen)
		}
		return out
	case *Set:
		out := NewSet()
		seen[v] = out
		for m := range x.members {
			out.members[m] = struct{}{}
		}
		return out
	case *Record:
		out := NewRecord(x.schema)
		seen[v] = out
		for k, item := range x.values {
			out.values[k] = cloneWith(item, seen)
		}
		return out
	}
	return v
}

// Assign replaces the contents of dst with those of src. Both must be
// containers of the same kind.
func Assign(dst, src any) error {
	switch d := dst.(type) {
	case *Map:
		s, ok := src.(*Map)
		if !ok {
			break
		}
		d.entries = make(map[string]any, len(s.entries))
		for k, v := range s.entries {
			d.entries[k] = v
		}
		return nil
	case *List:
		s, ok := src.(*List)
		if !ok {
			break
		}
		d.items = append([]any(nil), s.items...)
		return nil
	case *Set:
		s, ok := src.(*Set)
		if !ok {
			break
		}
		d.members = make(map[any]struct{}, len(s.members))
		for m := range s.members {
			d.members[m] = struct{}{}
		}
		return nil
	case *Record:
		s, ok := src.(*Record)
		if !ok {
			break
		}
		d.values = make(map[string]any, len(s.values))
		for k, v := range s.values {
			if !d.schema.Has(k) {
				return fmt.Errorf("%w: %s.%s", ErrUnknownField, d.schema.Name, k)
			}
			d.values[k] = v
		}
		return nil
	}
	return fmt.Errorf("%w: cannot assign %T to %T", ErrNotTrackable, src, dst)
}

// Plain converts v into ordinary Go values: map[string]any, []any and
// map[any]struct{}. Records become maps of their set fields.
func Plain(v any) any {
	return plainWith(v, false, make(map[any]any))
}

// Export is like Plain but renders sets as sorted lists, which every
// serialization format can carry.
func Export(v any) any {
	return plainWith(v, true, make(map[any]any))
}

func plainWith(v any, export bool, seen map[any]any) any {
	if !IsContainer(v) {
		return v
	}
	if done, ok := seen[v]; ok {
		return done
	}
	switch x := v.(type) {
	case *Map:
		out := make(map[string]any, len(x.entries))
		seen[v] = out
		for k, item := range x.entries {
			out[k] = plainWith(item, export, seen)
		}
		return out
	case *List:
		out := make([]any, len(x.items))
		for i, item := range x.items {
			out[i] = plainWith(item, export, seen)
		}
		return out
	case *Set:
		if export {
			return x.Members()
		}
		out := make(map[any]struct{}, len(x.members))
		for m := range x.members {
			out[m] = struct{}{}
		}
		return out
	case *Record:
		out := make(map[string]any, len(x.values))
		seen[v] = out
		for k, item := range x.values {
			out[k] = plainWith(item, export, seen)
		}
		return out
	}
	return v
}

// Encoded forms of sets and records. A map carrying exactly one of these
// keys is decoded as the tagged container.
const (
	setTag    = "$set"
	recordTag = "$record"
	fieldsTag = "$fields"
	valuesTag = "$values"
)

// Encode renders v into a JSON-compatible form that Decode reverses,
// including set and record kinds.
func Encode(v any) any {
	switch x := v.(type) {
	case *Map:
		out := make(map[string]any, len(x.entries))
		for k, item := range x.entries {
			out[k] = Encode(item)
		}
		return out
	case *List:
		out := make([]any, len(x.items))
		for i, item := range x.items {
			out[i] = Encode(item)
		}
		return out
	case *Set:
		return map[string]any{setTag: x.Members()}
	case *Record:
		values := make(map[string]any, len(x.values))
		for k, item := range x.values {
			values[k] = Encode(item)
		}
		return map[string]any{
			recordTag: x.schema.Name,
			fieldsTag: x.schema.Fields(),
			valuesTag: values,
		}
	}
	return v
}

// Decode reverses Encode on a value produced by a JSON decoder.
func Decode(v any) (any, error) {
	switch x := v.(type) {
	case map[string]any:
		if members, ok := x[setTag]; ok && len(x) == 1 {
			items, ok := members.([]any)
			if !ok {
				return nil, fmt.Errorf("%w: malformed set", ErrNotTrackable)
			}
			s := NewSet()
			for _, item := range items {
				m, err := Decode(item)
				if err != nil {
					return nil, err
				}
				if !IsLeaf(m) {
					return nil, fmt.Errorf("%w: set member %T", ErrNotTrackable, m)
				}
				s.Add(m)
			}
			return s, nil
		}
		if name, ok := x[recordTag].(string); ok && len(x) == 3 {
			return decodeRecord(name, x)
		}
		m := NewMap()
		for k, item := range x {
			d, err := Decode(item)
			if err != nil {
				return nil, err
			}
			m.Set(k, d)
		}
		return m, nil
	case []any:
		l := NewList()
		for _, item := range x {
			d, err := Decode(item)
			if err != nil {
				return nil, err
			}
			l.Append(d)
		}
		return l, nil
	case json.Number:
		return numberLeaf(x)
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1<<53 {
			return int(x), nil
		}
		return x, nil
	}
	return From(v)
}

func decodeRecord(name string, x map[string]any) (any, error) {
	rawFields, _ := x[fieldsTag].([]any)
	fields := make([]string, 0, len(rawFields))
	for _, f := range rawFields {
		s, ok := f.(string)
		if !ok {
			return nil, fmt.Errorf("%w: malformed record fields", ErrNotTrackable)
		}
		fields = append(fields, s)
	}
	r := NewRecord(NewSchema(name, fields...))
	values, _ := x[valuesTag].(map[string]any)
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		d, err := Decode(values[k])
		if err != nil {
			return nil, err
		}
		if err := r.Set(k, d); err != nil {
			return nil, err
		}
	}
	return r, nil
}
