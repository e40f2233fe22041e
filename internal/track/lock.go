package track

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// DefaultLockTimeout bounds how long a mutation waits for the manager lock.
const DefaultLockTimeout = 5 * time.Second

// reentrantLock is a mutex that the same owner may acquire repeatedly.
// Waiting for it is bounded by a timeout.
type reentrantLock struct {
	sem     *semaphore.Weighted
	timeout time.Duration

	mu     sync.Mutex
	holder *owner
	depth  int
}

func newReentrantLock(timeout time.Duration) *reentrantLock {
	if timeout <= 0 {
		timeout = DefaultLockTimeout
	}
	return &reentrantLock{sem: semaphore.NewWeighted(1), timeout: timeout}
}

// acquire takes the lock for o. It fails with ErrLockingRaceCondition when
// another owner holds the lock past the timeout, or with the context error
// when ctx ends first.
func (l *reentrantLock) acquire(ctx context.Context, o *owner) error {
	l.mu.Lock()
	if l.holder == o {
		l.depth++
		l.mu.Unlock()
		return nil
	}
	l.mu.Unlock()

	waitCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	if err := l.sem.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrLockingRaceCondition
	}

	l.mu.Lock()
	l.holder = o
	l.depth = 1
	l.mu.Unlock()
	return nil
}

// release gives up one level of o's hold. It reports false if o does not
// hold the lock.
func (l *reentrantLock) release(o *owner) bool {
	l.mu.Lock()
	if l.holder != o {
		l.mu.Unlock()
		return false
	}
	l.depth--
	if l.depth > 0 {
		l.mu.Unlock()
		return true
	}
	l.holder = nil
	l.mu.Unlock()
	l.sem.Release(1)
	return true
}

// heldBy reports whether o holds the lock.
func (l *reentrantLock) heldBy(o *owner) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.holder == o
}
