// Package syncx tracks changes to nested values.
//
// Tag wraps a value so that every change made through the returned Node
// produces a delta, which is handed to an observer, recorded for undo and
// redo, grouped into transactions and optionally persisted. Sync does the
// same and also keeps the value in a file.
package syncx

import (
	"context"
	"errors"

	"github.com/spf13/afero"

	"github.com/bolasblack/syncx/internal/backend"
	"github.com/bolasblack/syncx/internal/delta"
	"github.com/bolasblack/syncx/internal/incremental"
	"github.com/bolasblack/syncx/internal/serial"
	"github.com/bolasblack/syncx/internal/track"
	"github.com/bolasblack/syncx/internal/value"
)

type (
	// Node is a handle on a tracked container.
	Node = track.Node
	// Manager owns a tracked tree.
	Manager = track.Manager
	// ChangeDetails describes one change to a tracked tree.
	ChangeDetails = track.ChangeDetails
	// Option configures a tracked tree.
	Option = track.Option
	// Schema declares the fields of a record.
	Schema = value.Schema
	// Delta is a list of structural changes.
	Delta = delta.Delta
	// Path addresses a value inside a tree.
	Path = delta.Path
)

var (
	ErrNotTrackable         = track.ErrNotTrackable
	ErrLockingRaceCondition = track.ErrLockingRaceCondition
	ErrHistory              = track.ErrHistory
	ErrRollback             = track.ErrRollback
	ErrUnresolvableConflict = incremental.ErrUnresolvableConflict
	// ErrNotTagged is returned when a nil node is passed where a tracked
	// one is required.
	ErrNotTagged = errors.New("value is not tagged")
)

// Tree options.
var (
	WithName        = track.WithName
	WithLogger      = track.WithLogger
	WithObserver    = track.WithObserver
	WithLockTimeout = track.WithLockTimeout
	WithHistory     = track.WithHistory
	WithSyncer      = track.WithSyncer
)

// NewSchema declares a record type with the given fields.
func NewSchema(name string, fields ...string) *Schema {
	return value.NewSchema(name, fields...)
}

// Tag starts tracking v. When observer is not nil it is called after every
// change.
func Tag(v any, observer func(ChangeDetails), opts ...Option) (*Node, error) {
	if observer != nil {
		opts = append(opts, WithObserver(observer))
	}
	return track.Wrap(v, opts...)
}

// Untag returns a copy of the node's value as plain Go values.
func Untag(n *Node) any {
	if n == nil {
		return nil
	}
	return track.Unwrap(n)
}

// Manage returns the manager of n's tree.
func Manage(n *Node) (*Manager, error) {
	if n == nil {
		return nil, ErrNotTagged
	}
	return n.Manager(), nil
}

// Undo reverts the most recent recorded change of n's tree.
func Undo(ctx context.Context, n *Node) error {
	m, err := Manage(n)
	if err != nil {
		return err
	}
	_, err = m.Undo(ctx)
	return err
}

// Redo reapplies the most recently undone change of n's tree.
func Redo(ctx context.Context, n *Node) error {
	m, err := Manage(n)
	if err != nil {
		return err
	}
	_, err = m.Redo(ctx)
	return err
}

// Rollback returns ErrRollback. Returning it from a transaction body
// discards the transaction's changes without failing.
func Rollback() error {
	return ErrRollback
}

// Transaction runs fn as one atomic change of n's tree.
func Transaction(ctx context.Context, n *Node, fn func(ctx context.Context) error) error {
	m, err := Manage(n)
	if err != nil {
		return err
	}
	return m.Transaction(ctx, fn)
}

type syncConfig struct {
	fs         afero.Fs
	serializer serial.Serializer
	backend    backend.Backend
	tree       []Option
}

// SyncOption configures Sync.
type SyncOption func(*syncConfig)

// WithFs sets the filesystem of the default file backend. The default is
// the OS filesystem.
func WithFs(fs afero.Fs) SyncOption {
	return func(c *syncConfig) { c.fs = fs }
}

// WithSerializer overrides the format picked from the file name.
func WithSerializer(s serial.Serializer) SyncOption {
	return func(c *syncConfig) { c.serializer = s }
}

// WithBackend replaces the file backend.
func WithBackend(b backend.Backend) SyncOption {
	return func(c *syncConfig) { c.backend = b }
}

// WithTreeOptions passes options to Tag when v is not tracked yet.
func WithTreeOptions(opts ...Option) SyncOption {
	return func(c *syncConfig) { c.tree = append(c.tree, opts...) }
}

// Sync tracks v and keeps it in the file name. If the file already holds a
// value, the tree is loaded from it; otherwise the file is created from v.
// Every later change is written back, once per outermost transaction.
// v may be a Node returned by Tag.
func Sync(ctx context.Context, v any, name string, opts ...SyncOption) (*Node, error) {
	cfg := &syncConfig{fs: afero.NewOsFs()}
	for _, opt := range opts {
		opt(cfg)
	}

	n, ok := v.(*Node)
	if !ok {
		var err error
		if n, err = track.Wrap(v, cfg.tree...); err != nil {
			return nil, err
		}
	}

	b := cfg.backend
	if b == nil {
		var fileOpts []backend.FileOption
		if cfg.serializer != nil {
			fileOpts = append(fileOpts, backend.WithSerializer(cfg.serializer))
		}
		b = backend.NewFile(cfg.fs, name, fileOpts...)
	}

	m := n.Manager()
	existing, err := b.Get(ctx)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if err := m.Load(ctx, existing); err != nil {
			return nil, err
		}
	} else if err := b.Put(ctx, m.Root().Value(), nil); err != nil {
		return nil, err
	}

	m.SetSyncer(backend.NewSyncer(b))
	return n, nil
}

// PathKey returns the path key of a map entry or record field.
func PathKey(name string) delta.Key { return delta.Name(name) }

// PathIndex returns the path key of a list element.
func PathIndex(i int) delta.Key { return delta.Index(i) }
