// Package sync binds a project's snapshot file to a shared incremental
// store. It publishes local edits as deltas, pulls remote deltas into the
// file, and walks the user through conflicts.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/bolasblack/syncx/internal/backend"
	"github.com/bolasblack/syncx/internal/config"
	"github.com/bolasblack/syncx/internal/delta"
	"github.com/bolasblack/syncx/internal/incremental"
	"github.com/bolasblack/syncx/internal/serial"
	"github.com/bolasblack/syncx/internal/state"
	"github.com/bolasblack/syncx/internal/util"
	"github.com/bolasblack/syncx/internal/value"
)

// StoreName is the content name used inside keyed stores.
const StoreName = "default"

// Project is one working copy of the shared value: a snapshot file, the
// writer state recorded next to it, and the shared store.
type Project struct {
	Root   string
	Config config.Config

	env     *util.Env
	file    *backend.File
	store   incremental.Store
	state   *state.State
	created bool
	logger  *slog.Logger
	now     func() time.Time
	closeFn func() error

	// mu serializes exchanges with the store, which rewrite the file and
	// the writer state.
	mu sync.Mutex
}

// Option configures Open.
type Option func(*Project)

// WithStore uses store instead of the one named by the config.
func WithStore(store incremental.Store) Option {
	return func(p *Project) { p.store = store }
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Project) { p.logger = logger }
}

// WithClock sets the clock used to stamp conflict reports.
func WithClock(now func() time.Time) Option {
	return func(p *Project) { p.now = now }
}

// Open opens the project rooted at root. It loads or creates the writer
// state and opens the configured store. Close releases the store.
func Open(env *util.Env, root string, cfg config.Config, opts ...Option) (*Project, error) {
	p := &Project{
		Root:   root,
		Config: cfg,
		env:    env,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}

	ser, err := serial.ForName(string(cfg.Format))
	if err != nil {
		return nil, err
	}
	p.file = backend.NewFile(env.Fs, p.resolve(cfg.File),
		backend.WithSerializer(ser),
		backend.WithLogger(p.logger),
	)

	if p.store == nil {
		store, closeFn, err := openStore(env, p.resolve(cfg.Store.Path), cfg.Store.Kind, p.logger)
		if err != nil {
			return nil, err
		}
		p.store = store
		p.closeFn = closeFn
	}

	st, created, err := state.LoadOrCreate(env, root, p.snapshot())
	if err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("failed to load state: %w", err)
	}
	p.state = st
	p.created = created
	return p, nil
}

func openStore(env *util.Env, path string, kind config.StoreKind, logger *slog.Logger) (incremental.Store, func() error, error) {
	switch kind {
	case config.StoreFile, "":
		return incremental.NewFileStore(env.Fs, path), nil, nil
	case config.StoreBadger:
		db, err := incremental.OpenBadger(incremental.BadgerConfig{Path: path, SyncWrites: true, Logger: logger})
		if err != nil {
			return nil, nil, err
		}
		return incremental.NewBadgerStore(db, StoreName), db.Close, nil
	case config.StoreMemory:
		return incremental.NewMemoryStore(), nil, nil
	}
	return nil, nil, fmt.Errorf("unsupported store kind %q", kind)
}

// Close releases the store.
func (p *Project) Close() error {
	if p.closeFn == nil {
		return nil
	}
	err := p.closeFn()
	p.closeFn = nil
	return err
}

// File returns the snapshot file.
func (p *Project) File() *backend.File { return p.file }

// State returns the writer state.
func (p *Project) State() *state.State { return p.state }

// Created reports whether Open created a fresh writer state.
func (p *Project) Created() bool { return p.created }

// Writer returns a writer positioned where the saved state left off.
func (p *Project) Writer() *incremental.Writer {
	return incremental.NewWriter(p.store,
		incremental.WithWriterID(p.state.WriterID),
		incremental.WithLastKnown(p.state.Latest),
		incremental.WithWriterLogger(p.logger),
	)
}

// Status describes how the working copy relates to the shared store.
type Status struct {
	WriterID    string
	Latest      *incremental.Signature
	StoreLatest *incremental.Signature
	Queued      int
	Pending     delta.Delta
}

// Behind reports whether the store has deltas the writer has not seen.
func (s *Status) Behind() bool {
	return !incremental.SameSignature(s.Latest, s.StoreLatest)
}

// Status compares the snapshot file, the writer state and the store.
func (p *Project) Status(ctx context.Context) (*Status, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	c, err := p.store.Read(ctx)
	if err != nil {
		return nil, err
	}
	base, local, err := p.baseAndLocal(ctx)
	if err != nil {
		return nil, err
	}
	return &Status{
		WriterID:    p.state.WriterID,
		Latest:      p.state.Latest,
		StoreLatest: c.Latest,
		Queued:      len(c.Unapplied),
		Pending:     delta.Diff(base, local, nil),
	}, nil
}

// PushResult summarizes a Push.
type PushResult struct {
	Ops int
}

// Push publishes the edits made to the snapshot file since the last
// exchange with the store, then refreshes the file with the store's
// accumulated object. A rejected delta is recorded in the conflict cache
// and returned as a *incremental.ConflictError.
func (p *Project) Push(ctx context.Context) (*PushResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.push(ctx)
}

func (p *Project) push(ctx context.Context) (*PushResult, error) {
	base, local, err := p.baseAndLocal(ctx)
	if err != nil {
		return nil, err
	}
	d := delta.Diff(base, local, nil)
	if len(d) == 0 {
		return &PushResult{}, p.recordConflicts(nil)
	}

	if err := p.Writer().Put(ctx, d, local); err != nil {
		if errors.Is(err, incremental.ErrUnresolvableConflict) {
			if recErr := p.recordConflicts(err); recErr != nil {
				p.logger.Warn("failed to record conflicts", "error", recErr)
			}
		}
		return nil, err
	}
	p.logger.Debug("pushed local edits", "writer", p.state.WriterID, "ops", len(d))

	if _, err := p.refresh(ctx); err != nil {
		return nil, err
	}
	return &PushResult{Ops: len(d)}, p.recordConflicts(nil)
}

// PullResult summarizes a Pull.
type PullResult struct {
	Remote  int
	Pending int
}

// Pull brings remote deltas into the snapshot file. Unpublished local
// edits are kept when they commute with the remote ones; otherwise the
// file is left alone and a *incremental.ConflictError is returned.
func (p *Project) Pull(ctx context.Context) (*PullResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	c, err := p.store.Read(ctx)
	if err != nil {
		return nil, err
	}
	acc, err := c.Accumulated()
	if err != nil {
		return nil, err
	}
	base, local, err := p.baseAndLocal(ctx)
	if err != nil {
		return nil, err
	}

	remote := delta.Diff(base, acc, nil)
	pending := delta.Diff(base, local, nil)
	merged := acc
	if len(pending) > 0 {
		merged, err = incremental.Merge(base, pending, remote, p.state.WriterID)
		if err != nil {
			if recErr := p.recordConflicts(err); recErr != nil {
				p.logger.Warn("failed to record conflicts", "error", recErr)
			}
			return nil, err
		}
	}

	if !value.Equal(merged, local) {
		if err := p.file.Put(ctx, merged, remote); err != nil {
			return nil, err
		}
	}
	if err := p.advance(c.Latest, acc); err != nil {
		return nil, err
	}
	p.logger.Debug("pulled remote edits", "writer", p.state.WriterID, "remote", len(remote), "pending", len(pending))
	return &PullResult{Remote: len(remote), Pending: len(pending)}, p.recordConflicts(nil)
}

// Compact folds the store's queue into its base object.
func (p *Project) Compact(ctx context.Context) error {
	return p.Writer().Compact(ctx)
}

// Conflicts returns the conflicts of the last recorded exchange.
func (p *Project) Conflicts() ([]incremental.ConflictInfo, error) {
	cache, err := incremental.ReadCache(p.env.Fs, p.Root)
	if err != nil || cache == nil {
		return nil, err
	}
	return cache.Conflicts, nil
}

// refresh overwrites the snapshot file with the store's accumulated
// object and moves the writer state to the store's latest delta.
func (p *Project) refresh(ctx context.Context) (any, error) {
	c, err := p.store.Read(ctx)
	if err != nil {
		return nil, err
	}
	acc, err := c.Accumulated()
	if err != nil {
		return nil, err
	}
	if err := p.file.Put(ctx, acc, nil); err != nil {
		return nil, err
	}
	if err := p.advance(c.Latest, acc); err != nil {
		return nil, err
	}
	return acc, nil
}

func (p *Project) advance(latest *incremental.Signature, base any) error {
	if err := p.state.Advance(latest, base); err != nil {
		return err
	}
	return state.Save(p.env, p.Root, p.state)
}

func (p *Project) baseAndLocal(ctx context.Context) (any, any, error) {
	base, err := p.state.BaseValue()
	if err != nil {
		return nil, nil, err
	}
	local, err := p.file.Get(ctx)
	if err != nil {
		return nil, nil, err
	}
	return base, local, nil
}

func (p *Project) recordConflicts(err error) error {
	_, recErr := incremental.RecordConflicts(p.env.Fs, p.Root, err, p.now())
	return recErr
}

func (p *Project) snapshot() *state.ConfigSnapshot {
	return &state.ConfigSnapshot{
		StoreKind: string(p.Config.Store.Kind),
		StorePath: p.Config.Store.Path,
		File:      p.Config.File,
	}
}

func (p *Project) resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(p.Root, path)
}
