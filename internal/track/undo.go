package track

import (
	"context"

	"github.com/bolasblack/syncx/internal/delta"
	"github.com/bolasblack/syncx/internal/history"
)

// Undo reverts the most recent history entry and returns the new history
// cursor.
func (m *Manager) Undo(ctx context.Context) (int, error) {
	return m.step(ctx, "undo", (*history.History).Undo)
}

// Redo re-applies the next history entry and returns the new history
// cursor.
func (m *Manager) Redo(ctx context.Context) (int, error) {
	return m.step(ctx, "redo", (*history.History).Redo)
}

func (m *Manager) step(ctx context.Context, direction string, fn func(*history.History, history.Applier) (int, error)) (int, error) {
	h := m.History()
	if h == nil || !h.Enabled() {
		return 0, ErrHistory
	}

	ctx, o := withOwner(ctx)
	if err := m.acquire(ctx, o); err != nil {
		return h.Current(), err
	}
	defer m.lock.release(o)

	pos, err := fn(h, &historyApplier{m: m, ctx: ctx})
	recordHistoryStep(direction)
	if err != nil {
		m.logger.Error("history step failed", "manager", m.name, "direction", direction, "error", err)
	}
	return pos, err
}

// historyApplier replays history entries on the manager's tree. It runs
// with the manager lock held.
type historyApplier struct {
	m   *Manager
	ctx context.Context
}

func (a *historyApplier) Apply(d delta.Delta) error {
	return a.m.replay(a.ctx, d)
}

func (a *historyApplier) Revert(d delta.Delta) error {
	return a.m.replay(a.ctx, delta.Invert(d))
}

// replay applies d with tracking suspended. Inside a transaction d joins
// the frame buffer so a rollback reverts it; otherwise it is persisted.
func (m *Manager) replay(ctx context.Context, d delta.Delta) error {
	m.suspended = true
	err := m.patchRoot(d)
	m.suspended = false
	m.arena.rescanAll(m.root)
	if err != nil {
		return err
	}

	if len(m.frames) > 0 {
		m.changes = append(m.changes, d)
		return nil
	}
	if _, syncer, _ := m.hooks(); syncer != nil {
		return m.persist(ctx, syncer, d)
	}
	return nil
}
