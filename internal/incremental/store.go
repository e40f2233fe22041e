package incremental

import (
	"context"
	"sync"
)

// Store is shared storage for Content. Update must run fn and persist its
// result atomically with respect to other Update calls, and must persist
// nothing when fn fails.
type Store interface {
	Read(ctx context.Context) (*Content, error)
	Update(ctx context.Context, fn func(*Content) error) error
}

// MemoryStore keeps Content in process memory.
type MemoryStore struct {
	mu      sync.Mutex
	content *Content
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{content: &Content{}}
}

// NewMemoryStoreWith returns a store holding a copy of content.
func NewMemoryStoreWith(content *Content) *MemoryStore {
	return &MemoryStore{content: content.Clone()}
}

// Read returns a copy of the stored content.
func (s *MemoryStore) Read(ctx context.Context) (*Content, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.content.Clone(), nil
}

// Update runs fn on a copy and keeps the copy if fn succeeds.
func (s *MemoryStore) Update(ctx context.Context, fn func(*Content) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	work := s.content.Clone()
	if err := fn(work); err != nil {
		return err
	}
	s.content = work
	return nil
}
