package value

// Child is one entry of a container: its key and its value. Index is used
// for lists, Name for maps and records.
type Child struct {
	Name    string
	Index   int
	IsIndex bool
	Value   any
}

// Children returns the entries of a container in a stable order. Leaves and
// sets have no children. Private record fields are skipped.
func Children(v any) []Child {
	switch x := v.(type) {
	case *Map:
		out := make([]Child, 0, len(x.entries))
		for _, k := range x.Keys() {
			out = append(out, Child{Name: k, Value: x.entries[k]})
		}
		return out
	case *List:
		out := make([]Child, 0, len(x.items))
		for i, item := range x.items {
			out = append(out, Child{Index: i, IsIndex: true, Value: item})
		}
		return out
	case *Record:
		out := make([]Child, 0, len(x.values))
		for _, f := range x.Fields() {
			out = append(out, Child{Name: f, Value: x.values[f]})
		}
		return out
	}
	return nil
}
