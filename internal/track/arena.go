package track

import (
	"sync"

	"github.com/bolasblack/syncx/internal/delta"
	"github.com/bolasblack/syncx/internal/value"
)

// ref identifies a container through its arena slot. The generation
// guards against a freed slot being reused for another container.
type ref struct {
	slot int
	gen  uint32
}

type slot struct {
	value any
	path  delta.Path
	gen   uint32
	live  bool
}

// arena gives every container of a tree a stable slot. Slots are only
// freed by a full sweep, after which stale refs resolve to nothing.
type arena struct {
	mu    sync.RWMutex
	slots []slot
	free  []int
	index map[any]int
}

func newArena() *arena {
	return &arena{index: make(map[any]int)}
}

// register records v as discovered at p. It reports whether v was new or
// its recorded path changed.
func (a *arena) register(v any, p delta.Path) (ref, bool) {
	if i, ok := a.index[v]; ok {
		s := &a.slots[i]
		if s.path.Equal(p) {
			return ref{slot: i, gen: s.gen}, false
		}
		s.path = p
		return ref{slot: i, gen: s.gen}, true
	}

	var i int
	if n := len(a.free); n > 0 {
		i = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		i = len(a.slots)
		a.slots = append(a.slots, slot{})
	}
	s := &a.slots[i]
	s.value = v
	s.path = p
	s.live = true
	a.index[v] = i
	return ref{slot: i, gen: s.gen}, true
}

// lookup returns the ref of a registered container.
func (a *arena) lookup(v any) (ref, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	i, ok := a.index[v]
	if !ok {
		return ref{}, false
	}
	return ref{slot: i, gen: a.slots[i].gen}, true
}

// get resolves r to its container.
func (a *arena) get(r ref) (any, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if r.slot < 0 || r.slot >= len(a.slots) {
		return nil, false
	}
	s := a.slots[r.slot]
	if !s.live || s.gen != r.gen {
		return nil, false
	}
	return s.value, true
}

// pathOf returns the path r's container was last discovered at.
func (a *arena) pathOf(r ref) (delta.Path, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if r.slot < 0 || r.slot >= len(a.slots) {
		return nil, false
	}
	s := a.slots[r.slot]
	if !s.live || s.gen != r.gen {
		return nil, false
	}
	return append(delta.Path{}, s.path...), true
}

// sweep frees every slot not in reached.
func (a *arena) sweep(reached map[int]bool) int {
	freed := 0
	for i := range a.slots {
		s := &a.slots[i]
		if !s.live || reached[i] {
			continue
		}
		delete(a.index, s.value)
		s.value = nil
		s.path = nil
		s.live = false
		s.gen++
		a.free = append(a.free, i)
		freed++
	}
	return freed
}

// scan registers the container children of c found under p, descending
// into children that are new or moved. With all set every descendant is
// visited and recorded in reached.
func (a *arena) scan(c any, p delta.Path, all bool, visited map[any]bool, reached map[int]bool) {
	for _, ch := range value.Children(c) {
		if !value.IsContainer(ch.Value) {
			continue
		}
		k := delta.Name(ch.Name)
		if ch.IsIndex {
			k = delta.Index(ch.Index)
		}
		childPath := p.Child(k)
		r, changed := a.register(ch.Value, childPath)
		if reached != nil {
			reached[r.slot] = true
		}
		if visited[ch.Value] || !(changed || all) {
			continue
		}
		visited[ch.Value] = true
		a.scan(ch.Value, childPath, all, visited, reached)
	}
}

// rescan repairs the slots below c after a mutation of c at p.
func (a *arena) rescan(c any, p delta.Path) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.scan(c, p, false, map[any]bool{c: true}, nil)
}

// rescanAll re-registers the whole tree below root and frees the slots of
// containers no longer reachable from it. It returns the number of slots
// freed.
func (a *arena) rescanAll(root ref) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	rootValue := a.slots[root.slot].value
	reached := map[int]bool{root.slot: true}
	a.scan(rootValue, delta.Path{}, true, map[any]bool{rootValue: true}, reached)
	return a.sweep(reached)
}

// ensure returns the ref of v, registering it at p when it is unknown.
func (a *arena) ensure(v any, p delta.Path) ref {
	if r, ok := a.lookup(v); ok {
		return r
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	r, _ := a.register(v, p)
	return r
}

// registerRoot records the root container.
func (a *arena) registerRoot(v any) ref {
	a.mu.Lock()
	defer a.mu.Unlock()
	r, _ := a.register(v, delta.Path{})
	return r
}

// live returns the number of occupied slots.
func (a *arena) live() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.index)
}
