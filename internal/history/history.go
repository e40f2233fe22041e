// Package history keeps a bounded, linear undo/redo log of deltas.
package history

import (
	"slices"
	"sync"

	"github.com/bolasblack/syncx/internal/delta"
)

// Applier applies and reverts history entries against the tracked value.
type Applier interface {
	Apply(d delta.Delta) error
	Revert(d delta.Delta) error
}

// History is a linear log of deltas with a cursor. Entries before the
// cursor can be undone, entries at or after it can be redone. Adding an
// entry discards everything after the cursor.
type History struct {
	mu          sync.Mutex
	entries     []delta.Delta
	current     int
	capacity    int
	enabled     bool
	checkpoints []checkpoint
}

type checkpoint struct {
	entries []delta.Delta
	current int
}

// New returns a disabled history holding at most capacity entries. A
// non-positive capacity means unlimited.
func New(capacity int) *History {
	return &History{capacity: capacity}
}

// Enable starts recording entries.
func (h *History) Enable() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.enabled = true
}

// Disable stops recording entries. Existing entries are kept.
func (h *History) Disable() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.enabled = false
}

// Enabled reports whether entries are being recorded.
func (h *History) Enabled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.enabled
}

// Add records d at the cursor, discarding any redoable entries. The oldest
// entries are dropped once capacity is exceeded. Add is a no-op while the
// history is disabled.
func (h *History) Add(d delta.Delta) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.enabled {
		return
	}
	h.entries = append(h.entries[:h.current:h.current], d)
	if over := len(h.entries) - h.capacity; h.capacity > 0 && over > 0 {
		h.entries = slices.Clone(h.entries[over:])
	}
	h.current = len(h.entries)
}

// Undo reverts the entry before the cursor and moves the cursor back. It
// returns the new cursor. At the start of the history it does nothing.
// If the applier fails the cursor is left unchanged.
func (h *History) Undo(a Applier) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.current == 0 {
		return 0, nil
	}
	if err := a.Revert(h.entries[h.current-1]); err != nil {
		return h.current, err
	}
	h.current--
	return h.current, nil
}

// Redo re-applies the entry at the cursor and moves the cursor forward. It
// returns the new cursor. At the end of the history it does nothing.
func (h *History) Redo(a Applier) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.current == len(h.entries) {
		return h.current, nil
	}
	if err := a.Apply(h.entries[h.current]); err != nil {
		return h.current, err
	}
	h.current++
	return h.current, nil
}

// Entries returns a copy of the recorded entries, oldest first.
func (h *History) Entries() []delta.Delta {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.entries)
}

// Current returns the cursor position.
func (h *History) Current() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current
}

// Len returns the number of recorded entries.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

// Capacity returns the maximum number of entries, zero or less when
// unlimited.
func (h *History) Capacity() int {
	return h.capacity
}

// Begin saves a checkpoint that a later End can restore.
func (h *History) Begin() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checkpoints = append(h.checkpoints, checkpoint{entries: slices.Clone(h.entries), current: h.current})
}

// End drops the most recent checkpoint. With rollback set, the entries and
// cursor saved by the matching Begin are restored first. End without a
// checkpoint does nothing.
func (h *History) End(rollback bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.checkpoints) == 0 {
		return
	}
	cp := h.checkpoints[len(h.checkpoints)-1]
	h.checkpoints = h.checkpoints[:len(h.checkpoints)-1]
	if rollback {
		h.entries = cp.entries
		h.current = cp.current
	}
}
