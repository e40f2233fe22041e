package track

import (
	"errors"
	"fmt"
	"time"

	"github.com/bolasblack/syncx/internal/value"
)

var (
	// ErrNotTrackable is returned when a value cannot be tracked.
	ErrNotTrackable = value.ErrNotTrackable
	// ErrWrongKind is returned when a mutation does not apply to the
	// node's kind.
	ErrWrongKind = errors.New("operation does not apply to this kind")
	// ErrKeyNotFound is returned when a map key or record field is missing.
	ErrKeyNotFound = errors.New("key not found")
	// ErrIndexOutOfRange is returned for list indexes past either end.
	ErrIndexOutOfRange = errors.New("index out of range")
	// ErrMemberNotFound is returned when removing a missing set member.
	ErrMemberNotFound = errors.New("member not found")
	// ErrEmpty is returned when popping from an empty container.
	ErrEmpty = errors.New("container is empty")
	// ErrDetached is returned when a node's container is no longer part of
	// the tracked tree.
	ErrDetached = errors.New("node is detached from its tree")
	// ErrHistory is returned by undo and redo when history is not active.
	ErrHistory = errors.New("history is not active")
	// ErrNoTransaction is returned by End when the caller holds no frame.
	ErrNoTransaction = errors.New("no transaction in progress")
	// ErrLockingRaceCondition is returned when the manager lock could not
	// be acquired before the timeout.
	ErrLockingRaceCondition = errors.New("locking race condition")
	// ErrRollback can be returned from a transaction body to roll it back
	// without reporting an error.
	ErrRollback = errors.New("rollback requested")
)

// LockError reports a lock acquisition timeout.
type LockError struct {
	Manager string
	Timeout time.Duration
}

func (e *LockError) Error() string {
	return fmt.Sprintf("failed to acquire lock of %s within %s: %v", e.Manager, e.Timeout, ErrLockingRaceCondition)
}

// Unwrap returns ErrLockingRaceCondition.
func (e *LockError) Unwrap() error {
	return ErrLockingRaceCondition
}
