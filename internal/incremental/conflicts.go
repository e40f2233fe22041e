package incremental

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/bolasblack/syncx/internal/delta"
	"github.com/bolasblack/syncx/internal/value"
)

// ErrUnresolvableConflict is returned when a writer's delta does not
// commute with the deltas it has not seen.
var ErrUnresolvableConflict = errors.New("unresolvable conflict")

// ConflictInfo describes one location both sides changed.
type ConflictInfo struct {
	Path        string    `json:"path"`        // Dotted path from the root, "" for the root itself
	LocalState  string    `json:"localState"`  // "created", "deleted", "modified"
	RemoteState string    `json:"remoteState"` // "created", "deleted", "modified"
	DetectedAt  time.Time `json:"detectedAt"`

	Location delta.Path `json:"-"`
}

// ConflictError is returned by Writer.Put when its delta was rejected.
type ConflictError struct {
	Writer    string
	Conflicts []ConflictInfo
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%v: writer %s overlaps remote changes at %d location(s)", ErrUnresolvableConflict, e.Writer, len(e.Conflicts))
}

// Unwrap returns ErrUnresolvableConflict.
func (e *ConflictError) Unwrap() error {
	return ErrUnresolvableConflict
}

// OkToApply reports whether local, which turned the writer's copy into
// localObject, can be appended to content although the writer last saw
// lastKnown rather than the store's latest delta. Any failure while
// checking counts as a conflict.
func OkToApply(content *Content, lastKnown *Signature, local delta.Delta, localObject any) bool {
	ok, _, err := commutes(content, lastKnown, "", local, localObject)
	return err == nil && ok
}

// commutes applies local and the remote delta writer missed to the
// writer's pre-change object in both orders and compares the results. It
// also returns the remote delta.
func commutes(content *Content, lastKnown *Signature, writer string, local delta.Delta, localObject any) (bool, delta.Delta, error) {
	pre, err := delta.Revert(local, value.Clone(localObject))
	if err != nil {
		return false, nil, fmt.Errorf("failed to reconstruct pre-change object: %w", err)
	}

	remote, err := remoteDelta(content, lastKnown, writer, pre)
	if err != nil {
		return false, nil, err
	}

	_, ok := bothOrders(pre, local, remote)
	return ok, remote, nil
}

// Merge combines local and remote, two deltas made against pre. It
// returns the merged object when they commute, otherwise a *ConflictError
// naming writer.
func Merge(pre any, local, remote delta.Delta, writer string) (any, error) {
	merged, ok := bothOrders(pre, local, remote)
	if !ok {
		return nil, &ConflictError{Writer: writer, Conflicts: Conflicts(local, remote, time.Now())}
	}
	return merged, nil
}

// bothOrders applies local then remote and remote then local to copies of
// pre. It reports whether both orders succeed with equal results.
func bothOrders(pre any, local, remote delta.Delta) (any, bool) {
	localFirst, err := delta.Patch(local, value.Clone(pre))
	if err == nil {
		localFirst, err = delta.Patch(remote, localFirst)
	}
	if err != nil {
		return nil, false
	}

	remoteFirst, err := delta.Patch(remote, value.Clone(pre))
	if err == nil {
		remoteFirst, err = delta.Patch(local, remoteFirst)
	}
	if err != nil {
		return nil, false
	}

	if !value.Equal(localFirst, remoteFirst) {
		return nil, false
	}
	return localFirst, true
}

// remoteDelta returns the changes other writers made after lastKnown: the
// queue tail without writer's own deltas, which pre already reflects, when
// lastKnown is queued; otherwise the difference between pre and the
// store's accumulated object. An empty writer keeps the whole tail.
func remoteDelta(content *Content, lastKnown *Signature, writer string, pre any) (delta.Delta, error) {
	if i := content.indexOf(lastKnown); i >= 0 {
		tail := make([]delta.Delta, 0, len(content.Unapplied)-i-1)
		for _, sd := range content.Unapplied[i+1:] {
			if writer != "" && sd.Writer == writer {
				continue
			}
			tail = append(tail, sd.Delta)
		}
		return delta.Flatten(tail), nil
	}
	remoteObject, err := content.Accumulated()
	if err != nil {
		return nil, err
	}
	return delta.Diff(pre, remoteObject, nil), nil
}

// Conflicts lists the locations touched by both local and remote. A
// location conflicts with its ancestors and descendants.
func Conflicts(local, remote delta.Delta, now time.Time) []ConflictInfo {
	byPath := make(map[string]ConflictInfo)
	for _, l := range local {
		lp := l.Target()
		for _, r := range remote {
			rp := r.Target()
			if !lp.Overlaps(rp) {
				continue
			}
			p := lp
			if len(rp) > len(lp) {
				p = rp
			}
			key := p.String()
			if _, seen := byPath[key]; seen {
				continue
			}
			byPath[key] = ConflictInfo{
				Path:        key,
				Location:    clonePath(p),
				LocalState:  opState(l),
				RemoteState: opState(r),
				DetectedAt:  now,
			}
		}
	}

	infos := make([]ConflictInfo, 0, len(byPath))
	for _, info := range byPath {
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Path < infos[j].Path })
	return infos
}

func clonePath(p delta.Path) delta.Path {
	return append(delta.Path(nil), p...)
}

func opState(op delta.Op) string {
	switch op.Kind {
	case delta.Add:
		return "created"
	case delta.Remove:
		return "deleted"
	case delta.Change:
		return "modified"
	}
	return "unknown"
}
