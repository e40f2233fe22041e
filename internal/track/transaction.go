package track

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/bolasblack/syncx/internal/delta"
)

var tracer = otel.Tracer("github.com/bolasblack/syncx/internal/track")

// Transaction runs fn as one unit of change. Mutations made through the
// context passed to fn are buffered; when fn returns nil the outermost
// transaction persists them as a single delta. When fn returns an error or
// panics every change made inside is reverted. Returning ErrRollback rolls
// back without reporting an error.
//
// Transactions nest: calling Transaction with the context given to fn
// re-enters the lock and opens an inner frame that can roll back on its
// own.
func (m *Manager) Transaction(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	ctx, span := tracer.Start(ctx, "syncx.transaction", trace.WithAttributes(attribute.String("manager", m.name)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	txCtx, err := m.Begin(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			if endErr := m.End(txCtx, true); endErr != nil {
				m.logger.Error("failed to roll back after panic", "manager", m.name, "error", endErr)
			}
			panic(r)
		}
	}()

	fnErr := fn(txCtx)
	endErr := m.End(txCtx, fnErr != nil)
	if errors.Is(fnErr, ErrRollback) {
		fnErr = nil
	}
	return errors.Join(fnErr, endErr)
}

// Begin acquires the lock and opens a transaction frame. The returned
// context must be used for every mutation of the transaction and passed to
// the matching End.
func (m *Manager) Begin(ctx context.Context) (context.Context, error) {
	ctx, o := withOwner(ctx)
	if err := m.acquire(ctx, o); err != nil {
		return ctx, err
	}
	m.frames = append(m.frames, len(m.changes))
	if h := m.History(); h != nil {
		h.Begin()
	}
	m.logger.Debug("transaction started", "manager", m.name, "depth", len(m.frames))
	return ctx, nil
}

// End closes the innermost frame opened with ctx, committing or rolling it
// back, and releases one level of the lock.
func (m *Manager) End(ctx context.Context, rollback bool) error {
	o := getOwner(ctx)
	if o == nil || !m.lock.heldBy(o) || len(m.frames) == 0 {
		return ErrNoTransaction
	}
	defer m.lock.release(o)

	start := m.frames[len(m.frames)-1]
	m.frames = m.frames[:len(m.frames)-1]

	var err error
	if rollback {
		err = m.rollbackTo(start)
		recordTransaction("rollback")
	} else {
		if len(m.frames) == 0 {
			combined := delta.Flatten(m.changes[start:])
			m.changes = m.changes[:start]
			if _, syncer, _ := m.hooks(); syncer != nil && len(combined) > 0 {
				err = m.persist(ctx, syncer, combined)
			}
		}
		recordTransaction("commit")
	}

	if h := m.History(); h != nil {
		h.End(rollback)
	}
	m.logger.Debug("transaction ended", "manager", m.name, "rollback", rollback, "depth", len(m.frames))
	return err
}

// rollbackTo reverts every buffered change from start onwards, newest
// first, without recording anything.
func (m *Manager) rollbackTo(start int) error {
	m.suspended = true
	defer func() { m.suspended = false }()

	var errs []error
	for i := len(m.changes) - 1; i >= start; i-- {
		if err := m.patchRoot(delta.Invert(m.changes[i])); err != nil {
			errs = append(errs, err)
		}
	}
	m.changes = m.changes[:start]
	m.arena.rescanAll(m.root)

	if err := errors.Join(errs...); err != nil {
		m.logger.Error("rollback incomplete", "manager", m.name, "error", err)
		return fmt.Errorf("failed to roll back: %w", err)
	}
	return nil
}
