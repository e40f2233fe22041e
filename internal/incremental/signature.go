// Package incremental detects conflicting writes when several writers
// append deltas to one shared store.
//
// The store holds a base object followed by a queue of signed deltas that
// have not been folded into it yet. A writer that is behind the store may
// still append its delta if applying it and the deltas it missed in
// either order gives the same result.
package incremental

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/bolasblack/syncx/internal/delta"
	"github.com/bolasblack/syncx/internal/value"
)

// Signature identifies a delta in the store's sequence: Counter is its
// position, Hash the SHA-1 of its canonical JSON encoding.
type Signature struct {
	Counter int    `json:"counter"`
	Hash    string `json:"hash"`
}

func (s Signature) String() string {
	h := s.Hash
	if len(h) > 8 {
		h = h[:8]
	}
	return fmt.Sprintf("#%d:%s", s.Counter, h)
}

// SameSignature reports whether a and b identify the same delta. Two nil
// signatures are the same.
func SameSignature(a, b *Signature) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// Sign returns the signature of d following prev. The counter starts at 0
// when prev is nil.
func Sign(prev *Signature, d delta.Delta) (Signature, error) {
	h, err := Hash(d)
	if err != nil {
		return Signature{}, err
	}
	counter := 0
	if prev != nil {
		counter = prev.Counter + 1
	}
	return Signature{Counter: counter, Hash: h}, nil
}

// Hash returns the hex SHA-1 of the canonical JSON encoding of v. Map keys
// are sorted, so equal values hash equally.
func Hash(v any) (string, error) {
	data, err := canonicalJSON(v)
	if err != nil {
		return "", err
	}
	sum := sha1.Sum(data)
	return hex.EncodeToString(sum[:]), nil
}

func canonicalJSON(v any) ([]byte, error) {
	if _, ok := v.(delta.Delta); !ok {
		v = value.Encode(v)
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("failed to encode for hashing: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
