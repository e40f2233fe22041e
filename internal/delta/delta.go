// Package delta computes, applies and inverts structural differences
// between two values of the value model.
package delta

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bolasblack/syncx/internal/value"
)

// ErrPatch is returned when a delta cannot be applied to a value.
var ErrPatch = errors.New("cannot apply delta")

// Kind is the kind of a single difference.
type Kind int

const (
	// Add inserts a map entry, record field, list element or set member.
	Add Kind = iota + 1
	// Remove deletes a map entry, record field, list element or set member.
	Remove
	// Change replaces the value at a path.
	Change
)

func (k Kind) String() string {
	switch k {
	case Add:
		return "add"
	case Remove:
		return "remove"
	case Change:
		return "change"
	}
	return "unknown"
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "add":
		*k = Add
	case "remove":
		*k = Remove
	case "change":
		*k = Change
	default:
		return fmt.Errorf("unknown delta kind %q", text)
	}
	return nil
}

// Op is one difference.
//
// For Change, Path addresses the replaced value and Old/New hold both
// sides. For Add and Remove, Path addresses the container and Key the
// affected child; New (Add) or Old (Remove) holds the child value. Set
// members are added and removed with a zero Key.
type Op struct {
	Kind Kind
	Path Path
	Key  Key
	Old  any
	New  any
}

// Target returns the full path of the location the op touches.
func (o Op) Target() Path {
	if o.Kind == Change || o.Key.IsZero() {
		return o.Path
	}
	return o.Path.Child(o.Key)
}

func (o Op) String() string {
	switch o.Kind {
	case Change:
		return fmt.Sprintf("change %s: %v -> %v", displayPath(o.Path), value.Plain(o.Old), value.Plain(o.New))
	case Add:
		return fmt.Sprintf("add %s: %v", displayPath(o.Target()), value.Plain(o.New))
	case Remove:
		return fmt.Sprintf("remove %s: %v", displayPath(o.Target()), value.Plain(o.Old))
	}
	return "unknown op"
}

func displayPath(p Path) string {
	if len(p) == 0 {
		return "<root>"
	}
	return p.String()
}

type opJSON struct {
	Kind Kind `json:"kind"`
	Path Path `json:"path"`
	Key  *Key `json:"key,omitempty"`
	Old  any  `json:"old,omitempty"`
	New  any  `json:"new,omitempty"`
}

// MarshalJSON encodes the op with its values in tagged form.
func (o Op) MarshalJSON() ([]byte, error) {
	out := opJSON{Kind: o.Kind, Path: o.Path, Old: value.Encode(o.Old), New: value.Encode(o.New)}
	if out.Path == nil {
		out.Path = Path{}
	}
	if !o.Key.IsZero() {
		k := o.Key
		out.Key = &k
	}
	return json.Marshal(out)
}

// UnmarshalJSON reverses MarshalJSON.
func (o *Op) UnmarshalJSON(data []byte) error {
	var in opJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	oldValue, err := value.Decode(in.Old)
	if err != nil {
		return err
	}
	newValue, err := value.Decode(in.New)
	if err != nil {
		return err
	}
	*o = Op{Kind: in.Kind, Path: in.Path, Old: oldValue, New: newValue}
	if in.Key != nil {
		o.Key = *in.Key
	}
	return nil
}

// Delta is an ordered list of ops. Applying them in order transforms the
// source value into the target value.
type Delta []Op

// Invert returns the delta that undoes d.
func Invert(d Delta) Delta {
	out := make(Delta, len(d))
	for i, op := range d {
		inv := op
		switch op.Kind {
		case Add:
			inv.Kind = Remove
			inv.Old, inv.New = op.New, nil
		case Remove:
			inv.Kind = Add
			inv.Old, inv.New = nil, op.Old
		case Change:
			inv.Old, inv.New = op.New, op.Old
		}
		out[len(d)-1-i] = inv
	}
	return out
}

// Flatten concatenates deltas in order.
func Flatten(ds []Delta) Delta {
	var out Delta
	for _, d := range ds {
		out = append(out, d...)
	}
	return out
}

// Paths returns the target path of every op.
func (d Delta) Paths() []Path {
	out := make([]Path, len(d))
	for i, op := range d {
		out[i] = op.Target()
	}
	return out
}
