package value

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
)

// Schema declares the fields a Record may carry.
type Schema struct {
	Name   string
	fields []string
	index  map[string]int
}

// NewSchema returns a schema with the given name and fields, in order.
func NewSchema(name string, fields ...string) *Schema {
	s := &Schema{Name: name, fields: make([]string, 0, len(fields)), index: make(map[string]int, len(fields))}
	for _, f := range fields {
		if _, dup := s.index[f]; dup {
			continue
		}
		s.index[f] = len(s.fields)
		s.fields = append(s.fields, f)
	}
	return s
}

// Fields returns the declared fields in declaration order.
func (s *Schema) Fields() []string {
	return append([]string(nil), s.fields...)
}

// Has reports whether field is declared.
func (s *Schema) Has(field string) bool {
	_, ok := s.index[field]
	return ok
}

var schemaCache sync.Map // reflect.Type -> *Schema

// SchemaOf derives a schema from a struct type. Exported fields are used;
// a json tag renames a field and "-" skips it.
func SchemaOf(t reflect.Type) *Schema {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if s, ok := schemaCache.Load(t); ok {
		return s.(*Schema)
	}
	var names []string
	for _, f := range structFields(t) {
		names = append(names, f.name)
	}
	s := NewSchema(t.Name(), names...)
	actual, _ := schemaCache.LoadOrStore(t, s)
	return actual.(*Schema)
}

type structField struct {
	name  string
	index int
}

func structFields(t reflect.Type) []structField {
	var out []structField
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name := f.Name
		if tag, ok := f.Tag.Lookup("json"); ok {
			tagName, _, _ := strings.Cut(tag, ",")
			if tagName == "-" {
				continue
			}
			if tagName != "" {
				name = tagName
			}
		}
		out = append(out, structField{name: name, index: i})
	}
	return out
}

// Record is a value with named fields constrained by a Schema. Fields
// prefixed with "_" are private metadata: they are stored but never
// tracked, diffed or persisted.
type Record struct {
	schema *Schema
	values map[string]any
	meta   map[string]any
}

// NewRecord returns a record with no fields set.
func NewRecord(schema *Schema) *Record {
	return &Record{schema: schema, values: make(map[string]any)}
}

// Schema returns the record's schema.
func (r *Record) Schema() *Schema {
	return r.schema
}

// Get returns the value of field.
func (r *Record) Get(field string) (any, bool) {
	if IsPrivateField(field) {
		v, ok := r.meta[field]
		return v, ok
	}
	v, ok := r.values[field]
	return v, ok
}

// Set assigns field.
func (r *Record) Set(field string, v any) error {
	if IsPrivateField(field) {
		if r.meta == nil {
			r.meta = make(map[string]any)
		}
		r.meta[field] = v
		return nil
	}
	if !r.schema.Has(field) {
		return fmt.Errorf("%w: %s.%s", ErrUnknownField, r.schema.Name, field)
	}
	r.values[field] = v
	return nil
}

// Delete unsets field and reports whether it was set.
func (r *Record) Delete(field string) bool {
	if IsPrivateField(field) {
		if _, ok := r.meta[field]; !ok {
			return false
		}
		delete(r.meta, field)
		return true
	}
	if _, ok := r.values[field]; !ok {
		return false
	}
	delete(r.values, field)
	return true
}

// Fields returns the fields that are currently set, in schema order.
func (r *Record) Fields() []string {
	out := make([]string, 0, len(r.values))
	for _, f := range r.schema.fields {
		if _, ok := r.values[f]; ok {
			out = append(out, f)
		}
	}
	return out
}

// Len returns the number of set fields.
func (r *Record) Len() int {
	return len(r.values)
}

// IsPrivateField reports whether a record field is metadata.
func IsPrivateField(field string) bool {
	return strings.HasPrefix(field, "_")
}

// RecordFromMap builds a record of schema from the entries of m. Entries
// the schema does not declare are rejected.
func RecordFromMap(schema *Schema, m *Map) (*Record, error) {
	r := NewRecord(schema)
	for _, k := range m.Keys() {
		v, _ := m.Get(k)
		if err := r.Set(k, v); err != nil {
			return nil, err
		}
	}
	return r, nil
}
