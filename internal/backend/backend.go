// Package backend persists snapshots of tracked values.
package backend

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/spf13/afero"

	"github.com/bolasblack/syncx/internal/delta"
	"github.com/bolasblack/syncx/internal/serial"
	"github.com/bolasblack/syncx/internal/util"
)

// Backend stores one value. Get returns nil when nothing has been stored.
// Put may use hint, the delta that produced v, to write less; snapshot
// backends ignore it.
type Backend interface {
	Get(ctx context.Context) (any, error)
	Put(ctx context.Context, v any, hint delta.Delta) error
}

// File keeps a serialized snapshot in one file.
type File struct {
	fs         afero.Fs
	path       string
	serializer serial.Serializer
	logger     *slog.Logger

	mu sync.Mutex
}

// FileOption configures a File.
type FileOption func(*File)

// WithSerializer overrides the format picked from the file extension.
func WithSerializer(s serial.Serializer) FileOption {
	return func(f *File) { f.serializer = s }
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) FileOption {
	return func(f *File) { f.logger = logger }
}

// NewFile returns a backend for path on fs. The format follows the
// extension of path; a path without a known extension gets the
// serializer's extension appended.
func NewFile(fs afero.Fs, path string, opts ...FileOption) *File {
	s, known := serial.ForPath(path)
	f := &File{fs: fs, path: path, serializer: s, logger: slog.Default()}
	for _, opt := range opts {
		opt(f)
	}
	if !known {
		f.path = path + "." + f.serializer.Extension()
	}
	return f
}

// Path returns the snapshot file path.
func (f *File) Path() string { return f.path }

// Serializer returns the snapshot format.
func (f *File) Serializer() serial.Serializer { return f.serializer }

// Get reads and decodes the snapshot. A missing or empty file yields nil.
func (f *File) Get(ctx context.Context) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := afero.ReadFile(f.fs, f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", f.path, err)
	}
	v, err := f.serializer.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", f.path, err)
	}
	return v, nil
}

// Put replaces the snapshot with v.
func (f *File) Put(ctx context.Context, v any, hint delta.Delta) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := f.serializer.Marshal(v)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := util.WriteFileAtomic(f.fs, f.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", f.path, err)
	}
	f.logger.Debug("snapshot written", "path", f.path, "ops", len(hint))
	return nil
}

// Sync writes root. It lets a File persist a tracked tree directly.
func (f *File) Sync(ctx context.Context, root any, d delta.Delta) error {
	return f.Put(ctx, root, d)
}
