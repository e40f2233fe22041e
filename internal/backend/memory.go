package backend

import (
	"context"
	"sync"

	"github.com/bolasblack/syncx/internal/delta"
	"github.com/bolasblack/syncx/internal/value"
)

// Memory keeps a copy of the last value put. Puts counts writes.
type Memory struct {
	mu    sync.Mutex
	v     any
	puts  int
	hints []delta.Delta
}

// NewMemory returns an empty Memory backend.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Get(ctx context.Context) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return value.Clone(m.v), nil
}

func (m *Memory) Put(ctx context.Context, v any, hint delta.Delta) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.v = value.Clone(v)
	m.puts++
	m.hints = append(m.hints, hint)
	return nil
}

// Puts returns how many times Put succeeded.
func (m *Memory) Puts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.puts
}

// Hints returns the deltas passed to Put, oldest first.
func (m *Memory) Hints() []delta.Delta {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]delta.Delta(nil), m.hints...)
}
