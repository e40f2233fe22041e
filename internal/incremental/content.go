package incremental

import (
	"encoding/json"
	"fmt"

	"github.com/bolasblack/syncx/internal/delta"
	"github.com/bolasblack/syncx/internal/value"
)

// SignedDelta is one entry of the unapplied queue.
type SignedDelta struct {
	Signature Signature   `json:"signature"`
	Writer    string      `json:"writer,omitempty"`
	Delta     delta.Delta `json:"delta"`
}

// Content is what a store holds: a base object, the queue of deltas not
// yet folded into it, and the signature of the newest delta.
type Content struct {
	Latest    *Signature
	Object    any
	Unapplied []SignedDelta
}

type contentJSON struct {
	Latest    *Signature    `json:"latest"`
	Object    any           `json:"object"`
	Unapplied []SignedDelta `json:"unapplied"`
}

// MarshalJSON encodes the base object in tagged form.
func (c Content) MarshalJSON() ([]byte, error) {
	unapplied := c.Unapplied
	if unapplied == nil {
		unapplied = []SignedDelta{}
	}
	return json.Marshal(contentJSON{Latest: c.Latest, Object: value.Encode(c.Object), Unapplied: unapplied})
}

// UnmarshalJSON reverses MarshalJSON.
func (c *Content) UnmarshalJSON(data []byte) error {
	var in contentJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	obj, err := value.Decode(in.Object)
	if err != nil {
		return fmt.Errorf("failed to decode stored object: %w", err)
	}
	*c = Content{Latest: in.Latest, Object: obj, Unapplied: in.Unapplied}
	return nil
}

// Clone returns a copy that can be modified without affecting c. Queued
// deltas are shared; they are never modified in place.
func (c *Content) Clone() *Content {
	out := &Content{Object: value.Clone(c.Object)}
	if c.Latest != nil {
		latest := *c.Latest
		out.Latest = &latest
	}
	out.Unapplied = append([]SignedDelta(nil), c.Unapplied...)
	return out
}

// Append queues sd and makes it the latest delta.
func (c *Content) Append(sd SignedDelta) {
	c.Unapplied = append(c.Unapplied, sd)
	latest := sd.Signature
	c.Latest = &latest
}

// Accumulated returns the base object with every queued delta applied.
func (c *Content) Accumulated() (any, error) {
	obj := value.Clone(c.Object)
	for _, sd := range c.Unapplied {
		var err error
		if obj, err = delta.Patch(sd.Delta, obj); err != nil {
			return nil, fmt.Errorf("failed to apply stored delta %s: %w", sd.Signature, err)
		}
	}
	return obj, nil
}

// Compact folds the queue into the base object. Latest is unchanged.
func (c *Content) Compact() error {
	obj, err := c.Accumulated()
	if err != nil {
		return err
	}
	c.Object = obj
	c.Unapplied = nil
	return nil
}

// indexOf returns the queue position of sig, or -1.
func (c *Content) indexOf(sig *Signature) int {
	if sig == nil {
		return -1
	}
	for i, sd := range c.Unapplied {
		if sd.Signature == *sig {
			return i
		}
	}
	return -1
}
