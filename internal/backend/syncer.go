package backend

import (
	"context"

	"github.com/bolasblack/syncx/internal/delta"
)

// Syncer adapts any Backend to a tracked tree's persistence hook.
type Syncer struct {
	Backend Backend
}

// NewSyncer returns a Syncer writing to b.
func NewSyncer(b Backend) *Syncer {
	return &Syncer{Backend: b}
}

// Sync stores the whole root; d is passed along as a hint.
func (s *Syncer) Sync(ctx context.Context, root any, d delta.Delta) error {
	return s.Backend.Put(ctx, root, d)
}
