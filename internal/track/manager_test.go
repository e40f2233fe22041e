package track

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bolasblack/syncx/internal/delta"
	"github.com/bolasblack/syncx/internal/value"
)

// recordingSyncer stores every delta handed to it.
type recordingSyncer struct {
	mu     sync.Mutex
	deltas []delta.Delta
	fail   error
}

func (s *recordingSyncer) Sync(_ context.Context, _ any, d delta.Delta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.deltas = append(s.deltas, d)
	return nil
}

func (s *recordingSyncer) calls() []delta.Delta {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]delta.Delta(nil), s.deltas...)
}

func wrap(t *testing.T, v any, opts ...Option) *Node {
	t.Helper()
	n, err := Wrap(v, opts...)
	require.NoError(t, err)
	return n
}

func child(t *testing.T, n *Node, keys ...any) *Node {
	t.Helper()
	cur := n
	for _, k := range keys {
		var key delta.Key
		switch x := k.(type) {
		case string:
			key = delta.Name(x)
		case int:
			key = delta.Index(x)
		}
		next, err := cur.Child(key)
		require.NoError(t, err)
		cur = next
	}
	return cur
}

func TestWrap(t *testing.T) {
	t.Run("plain map", func(t *testing.T) {
		root := wrap(t, map[string]any{"a": 1})
		assert.Equal(t, value.KindMap, root.Kind())
		assert.Empty(t, root.Path())
		assert.False(t, root.Manager().KeywordRoot())
	})

	t.Run("leaf is rejected", func(t *testing.T) {
		_, err := Wrap(42)
		assert.ErrorIs(t, err, ErrNotTrackable)
	})

	t.Run("untrackable member is rejected", func(t *testing.T) {
		_, err := Wrap(map[string]any{"f": func() {}})
		assert.ErrorIs(t, err, ErrNotTrackable)
	})

	t.Run("schema starts an empty record", func(t *testing.T) {
		schema := value.NewSchema("Settings", "theme")
		root := wrap(t, schema)
		assert.Equal(t, value.KindRecord, root.Kind())
		assert.True(t, root.Manager().KeywordRoot())
		assert.Same(t, schema, root.Manager().Schema())
	})

	t.Run("struct type starts an empty record", func(t *testing.T) {
		type settings struct {
			Theme string `json:"theme"`
		}
		root := wrap(t, reflect.TypeOf(settings{}))
		assert.Equal(t, []string{"theme"}, root.Manager().Schema().Fields())
		assert.Equal(t, 0, root.Len())
	})
}

func TestPathFidelity(t *testing.T) {
	ctx := context.Background()

	t.Run("nested", func(t *testing.T) {
		var got []ChangeDetails
		root := wrap(t, map[string]any{"a": map[string]any{"b": []any{}}},
			WithObserver(func(cd ChangeDetails) { got = append(got, cd) }),
			WithHistory(0))

		b := child(t, root, "a", "b")
		require.NoError(t, b.Append(ctx, 1))

		require.Len(t, got, 1)
		assert.Equal(t, "append", got[0].Operation)
		assert.Equal(t, delta.Path{delta.Name("a"), delta.Name("b")}, got[0].Path)
		require.Len(t, got[0].Delta, 1)
		op := got[0].Delta[0]
		assert.Equal(t, delta.Add, op.Kind)
		assert.Equal(t, delta.Path{delta.Name("a"), delta.Name("b")}, op.Path)
		assert.Equal(t, delta.Index(0), op.Key)
		assert.Equal(t, 1, op.New)
	})

	t.Run("aliased container reports the path it was reached through", func(t *testing.T) {
		shared := value.NewList()
		var got []ChangeDetails
		root := wrap(t, map[string]any{"x": shared, "y": shared},
			WithObserver(func(cd ChangeDetails) { got = append(got, cd) }),
			WithHistory(0))

		y := child(t, root, "y")
		require.NoError(t, y.Append(ctx, "v"))

		require.Len(t, got, 1)
		assert.Equal(t, delta.Path{delta.Name("y")}, got[0].Delta[0].Path)

		x := child(t, root, "x")
		assert.Equal(t, 1, x.Len(), "both paths see the change")
		assert.Same(t, x.Value(), y.Value())
	})

	t.Run("moved container reports its new path", func(t *testing.T) {
		var got []ChangeDetails
		root := wrap(t, map[string]any{"old": map[string]any{}},
			WithObserver(func(cd ChangeDetails) { got = append(got, cd) }),
			WithHistory(0))

		old := child(t, root, "old")
		require.NoError(t, root.Set(ctx, "new", old))
		require.NoError(t, root.Delete(ctx, "old"))

		moved := child(t, root, "new")
		require.NoError(t, moved.Set(ctx, "k", 1))
		last := got[len(got)-1]
		assert.Equal(t, delta.Path{delta.Name("new")}, last.Delta[0].Path)
	})

	t.Run("held handle follows a move", func(t *testing.T) {
		var got []ChangeDetails
		root := wrap(t, map[string]any{"old": map[string]any{}},
			WithObserver(func(cd ChangeDetails) { got = append(got, cd) }),
			WithHistory(0))

		held := child(t, root, "old")
		require.NoError(t, root.Set(ctx, "new", held))
		require.NoError(t, root.Delete(ctx, "old"))
		require.NoError(t, held.Set(ctx, "k", 1))

		last := got[len(got)-1]
		assert.Equal(t, delta.Path{delta.Name("new")}, last.Path)
		assert.Equal(t, delta.Path{delta.Name("new")}, held.Path())
		assert.Equal(t, map[string]any{"new": map[string]any{"k": 1}}, Unwrap(root))
	})

	tests := []struct {
		name    string
		initial map[string]any
		held    int
		shift   func(l *Node) error
		edit    func(n *Node) error
		at      delta.Path
		edited  map[string]any
	}{
		{
			name:    "sibling inserted before a held element",
			initial: map[string]any{"l": []any{[]any{1}}},
			held:    0,
			shift:   func(l *Node) error { return l.Insert(ctx, 0, "x") },
			edit:    func(n *Node) error { return n.Append(ctx, 2) },
			at:      delta.Path{delta.Name("l"), delta.Index(1)},
			edited:  map[string]any{"l": []any{"x", []any{1, 2}}},
		},
		{
			name:    "sibling deleted before a held element",
			initial: map[string]any{"l": []any{map[string]any{}, map[string]any{"k": 1}}},
			held:    1,
			shift:   func(l *Node) error { return l.DeleteIndex(ctx, 0) },
			edit:    func(n *Node) error { return n.Set(ctx, "k", 2) },
			at:      delta.Path{delta.Name("l"), delta.Index(0)},
			edited:  map[string]any{"l": []any{map[string]any{"k": 2}}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []ChangeDetails
			syncer := &recordingSyncer{}
			root := wrap(t, tt.initial,
				WithObserver(func(cd ChangeDetails) { got = append(got, cd) }),
				WithSyncer(syncer),
				WithHistory(0))
			m := root.Manager()
			before := Unwrap(root)

			l := child(t, root, "l")
			held := child(t, root, "l", tt.held)
			require.NoError(t, tt.shift(l))
			require.NoError(t, tt.edit(held))

			last := got[len(got)-1]
			assert.Equal(t, tt.at, last.Path)
			assert.Equal(t, tt.at, held.Path())
			calls := syncer.calls()
			require.Len(t, calls, 2)
			for _, op := range calls[1] {
				assert.True(t, op.Target().HasPrefix(tt.at), "op %s outside %s", op, tt.at)
			}
			assert.Equal(t, tt.edited, Unwrap(root))

			for range 2 {
				_, err := m.Undo(ctx)
				require.NoError(t, err)
			}
			assert.Equal(t, before, Unwrap(root))
		})
	}
}

func TestDetachedNode(t *testing.T) {
	ctx := context.Background()
	syncer := &recordingSyncer{}
	root := wrap(t, map[string]any{"a": map[string]any{}}, WithSyncer(syncer), WithHistory(0))
	m := root.Manager()

	a := child(t, root, "a")
	require.NoError(t, root.Delete(ctx, "a"))

	err := a.Set(ctx, "x", 1)
	assert.ErrorIs(t, err, ErrDetached)
	assert.Len(t, syncer.calls(), 1, "only the delete is persisted")
	assert.Len(t, m.History().Entries(), 1)
	assert.Equal(t, map[string]any{}, Unwrap(root))

	_, err = m.Undo(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": map[string]any{}}, Unwrap(root))
}

func TestObserverWithoutConsumers(t *testing.T) {
	var calls int
	var last ChangeDetails
	root := wrap(t, map[string]any{}, WithObserver(func(cd ChangeDetails) {
		calls++
		last = cd
	}))

	require.NoError(t, root.Set(context.Background(), "a", 1))
	assert.Equal(t, 1, calls)
	assert.Nil(t, last.Delta, "no delta is computed when nothing consumes it")
	assert.Equal(t, []any{"a", 1}, last.Args)
}

func TestMapMutations(t *testing.T) {
	ctx := context.Background()
	root := wrap(t, map[string]any{"a": 1, "b": 2})

	require.NoError(t, root.Update(ctx, map[string]any{"c": 3, "a": 10}))
	v, _ := root.Get("a")
	assert.Equal(t, 10, v)

	popped, err := root.PopKey(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, 2, popped)

	_, err = root.PopKey(ctx, "b")
	assert.ErrorIs(t, err, ErrKeyNotFound)
	assert.ErrorIs(t, root.Delete(ctx, "missing"), ErrKeyNotFound)

	got, err := root.SetDefault(ctx, "a", 99)
	require.NoError(t, err)
	assert.Equal(t, 10, got)

	got, err = root.SetDefault(ctx, "d", map[string]any{})
	require.NoError(t, err)
	assert.IsType(t, &Node{}, got)

	key, item, err := root.PopItem(ctx)
	require.NoError(t, err)
	assert.Equal(t, "d", key)
	assert.Equal(t, map[string]any{}, item)

	require.NoError(t, root.Clear(ctx))
	assert.Equal(t, 0, root.Len())

	_, _, err = root.PopItem(ctx)
	assert.ErrorIs(t, err, ErrEmpty)

	assert.ErrorIs(t, root.Append(ctx, 1), ErrWrongKind)
}

func TestListMutations(t *testing.T) {
	ctx := context.Background()
	root := wrap(t, []any{1, 2, 3})

	require.NoError(t, root.SetIndex(ctx, 0, "x"))
	require.NoError(t, root.Insert(ctx, 1, "y"))
	require.NoError(t, root.Extend(ctx, 4, 5))
	assert.Equal(t, []any{"x", "y", 2, 3, 4, 5}, Unwrap(root))

	v, err := root.PopIndex(ctx, -1)
	require.NoError(t, err)
	assert.Equal(t, 5, v)

	require.NoError(t, root.RemoveValue(ctx, 2))
	assert.ErrorIs(t, root.RemoveValue(ctx, 42), ErrMemberNotFound)
	require.NoError(t, root.DeleteIndex(ctx, 0))
	require.NoError(t, root.Reverse(ctx))
	assert.Equal(t, []any{4, 3, "y"}, Unwrap(root))

	assert.ErrorIs(t, root.SetIndex(ctx, 10, 1), ErrIndexOutOfRange)
	assert.ErrorIs(t, root.DeleteIndex(ctx, -10), ErrIndexOutOfRange)
	assert.ErrorIs(t, root.Set(ctx, "k", 1), ErrWrongKind)
}

func TestSetMutations(t *testing.T) {
	ctx := context.Background()
	root := wrap(t, map[string]struct{}{"a": {}, "b": {}})

	require.NoError(t, root.Add(ctx, "c"))
	require.NoError(t, root.Discard(ctx, "missing"))
	assert.ErrorIs(t, root.RemoveMember(ctx, "missing"), ErrMemberNotFound)
	assert.ErrorIs(t, root.Add(ctx, []any{1}), ErrNotTrackable)

	require.NoError(t, root.Union(ctx, "d", "e"))
	require.NoError(t, root.Subtract(ctx, "e"))
	assert.Equal(t, []any{"a", "b", "c", "d"}, root.Members())

	require.NoError(t, root.Intersect(ctx, "a", "b", "z"))
	assert.Equal(t, []any{"a", "b"}, root.Members())

	require.NoError(t, root.SymmetricDifference(ctx, "b", "q"))
	assert.Equal(t, []any{"a", "q"}, root.Members())

	m, err := root.PopMember(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", m)
	assert.True(t, root.Has("q"))
}

func TestRecordMutations(t *testing.T) {
	ctx := context.Background()
	var calls int
	root := wrap(t, value.NewSchema("Server", "host", "port"),
		WithObserver(func(ChangeDetails) { calls++ }),
		WithHistory(0))

	require.NoError(t, root.SetField(ctx, "host", "localhost"))
	assert.ErrorIs(t, root.SetField(ctx, "nope", 1), value.ErrUnknownField)
	assert.Equal(t, 2, calls)

	require.NoError(t, root.SetField(ctx, "_conn", "opaque"))
	assert.Equal(t, 2, calls, "private fields bypass tracking")
	v, ok := root.Field("_conn")
	assert.True(t, ok)
	assert.Equal(t, "opaque", v)
	assert.Equal(t, 1, root.Manager().History().Len())
	assert.Equal(t, map[string]any{"host": "localhost"}, Unwrap(root))

	require.NoError(t, root.DeleteField(ctx, "host"))
	assert.ErrorIs(t, root.DeleteField(ctx, "host"), ErrKeyNotFound)
}

func TestSyncerReceivesEachMutation(t *testing.T) {
	ctx := context.Background()
	s := &recordingSyncer{}
	root := wrap(t, map[string]any{}, WithSyncer(s))

	require.NoError(t, root.Set(ctx, "a", 1))
	require.NoError(t, root.Set(ctx, "a", 1))
	require.NoError(t, root.Set(ctx, "b", 2))

	assert.Len(t, s.calls(), 2, "no-op mutations are not persisted")
}

func TestSyncerFailureIsReturned(t *testing.T) {
	boom := errors.New("disk full")
	root := wrap(t, map[string]any{}, WithSyncer(&recordingSyncer{fail: boom}))
	err := root.Set(context.Background(), "a", 1)
	assert.ErrorIs(t, err, boom)
}

func TestTransaction(t *testing.T) {
	ctx := context.Background()

	t.Run("commit persists one flattened delta", func(t *testing.T) {
		s := &recordingSyncer{}
		root := wrap(t, map[string]any{"a": 0}, WithSyncer(s))

		err := root.Manager().Transaction(ctx, func(ctx context.Context) error {
			require.NoError(t, root.Set(ctx, "a", 1))
			require.NoError(t, root.Set(ctx, "b", 2))
			assert.Empty(t, s.calls(), "nothing persisted before commit")
			return nil
		})
		require.NoError(t, err)

		calls := s.calls()
		require.Len(t, calls, 1)
		assert.Len(t, calls[0], 2)
		assert.Equal(t, map[string]any{"a": 1, "b": 2}, Unwrap(root))
	})

	t.Run("error rolls back without persisting", func(t *testing.T) {
		s := &recordingSyncer{}
		root := wrap(t, map[string]any{"a": 0, "l": []any{1}}, WithSyncer(s))
		before := Unwrap(root)
		boom := errors.New("boom")

		err := root.Manager().Transaction(ctx, func(ctx context.Context) error {
			require.NoError(t, root.Set(ctx, "a", 1))
			require.NoError(t, root.Delete(ctx, "l"))
			require.NoError(t, root.Set(ctx, "n", map[string]any{"x": 1}))
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, before, Unwrap(root))
		assert.Empty(t, s.calls())
	})

	t.Run("ErrRollback is swallowed", func(t *testing.T) {
		root := wrap(t, map[string]any{})
		err := root.Manager().Transaction(ctx, func(ctx context.Context) error {
			require.NoError(t, root.Set(ctx, "a", 1))
			return ErrRollback
		})
		assert.NoError(t, err)
		assert.Equal(t, 0, root.Len())
	})

	t.Run("panic rolls back and propagates", func(t *testing.T) {
		root := wrap(t, map[string]any{})
		assert.PanicsWithValue(t, "boom", func() {
			_ = root.Manager().Transaction(ctx, func(ctx context.Context) error {
				require.NoError(t, root.Set(ctx, "a", 1))
				panic("boom")
			})
		})
		assert.Equal(t, 0, root.Len())
		require.NoError(t, root.Set(ctx, "b", 1), "lock was released")
	})

	t.Run("nested rollback keeps the outer changes", func(t *testing.T) {
		s := &recordingSyncer{}
		root := wrap(t, map[string]any{}, WithSyncer(s))
		m := root.Manager()

		err := m.Transaction(ctx, func(ctx context.Context) error {
			require.NoError(t, root.Set(ctx, "outer", 1))
			inner := m.Transaction(ctx, func(ctx context.Context) error {
				require.NoError(t, root.Set(ctx, "inner", 1))
				return ErrRollback
			})
			require.NoError(t, inner)
			assert.Empty(t, s.calls(), "inner frames never persist")
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"outer": 1}, Unwrap(root))
		require.Len(t, s.calls(), 1)
	})

	t.Run("inner commit is undone by outer rollback", func(t *testing.T) {
		root := wrap(t, map[string]any{})
		m := root.Manager()

		_ = m.Transaction(ctx, func(ctx context.Context) error {
			require.NoError(t, m.Transaction(ctx, func(ctx context.Context) error {
				return root.Set(ctx, "inner", 1)
			}))
			return ErrRollback
		})
		assert.Equal(t, 0, root.Len())
	})

	t.Run("begin and end", func(t *testing.T) {
		root := wrap(t, map[string]any{})
		m := root.Manager()

		txCtx, err := m.Begin(ctx)
		require.NoError(t, err)
		require.NoError(t, root.Set(txCtx, "a", 1))
		require.NoError(t, m.End(txCtx, true))
		assert.Equal(t, 0, root.Len())

		assert.ErrorIs(t, m.End(txCtx, false), ErrNoTransaction)
		assert.ErrorIs(t, m.End(ctx, false), ErrNoTransaction)
	})
}

func TestLockTimeoutAcrossRoots(t *testing.T) {
	ctx := context.Background()
	a := wrap(t, map[string]any{}, WithName("a"), WithLockTimeout(100*time.Millisecond))
	b := wrap(t, map[string]any{}, WithName("b"), WithLockTimeout(100*time.Millisecond))

	var barrier sync.WaitGroup
	barrier.Add(2)
	errs := make([]error, 2)
	var done sync.WaitGroup
	done.Add(2)

	cross := func(i int, first, second *Node) {
		defer done.Done()
		errs[i] = first.Manager().Transaction(ctx, func(ctx context.Context) error {
			barrier.Done()
			barrier.Wait()
			return second.Set(ctx, "k", i)
		})
	}
	go cross(0, a, b)
	go cross(1, b, a)
	done.Wait()

	timedOut := 0
	for _, err := range errs {
		if errors.Is(err, ErrLockingRaceCondition) {
			timedOut++
			var lockErr *LockError
			assert.ErrorAs(t, err, &lockErr)
		}
	}
	assert.GreaterOrEqual(t, timedOut, 1)
}

func TestReentrantLockSameContext(t *testing.T) {
	ctx := context.Background()
	root := wrap(t, map[string]any{}, WithLockTimeout(50*time.Millisecond))
	m := root.Manager()

	err := m.Transaction(ctx, func(txCtx context.Context) error {
		if err := root.Set(txCtx, "ok", 1); err != nil {
			return err
		}
		return root.Set(ctx, "blocked", 1)
	})
	assert.ErrorIs(t, err, ErrLockingRaceCondition, "a different context is a different owner")
	assert.Equal(t, 0, root.Len())
}

func TestView(t *testing.T) {
	ctx := context.Background()
	root := wrap(t, map[string]any{"a": 1}, WithLockTimeout(50*time.Millisecond))
	m := root.Manager()

	err := m.View(ctx, func(viewCtx context.Context) error {
		v, ok := root.Get("a")
		assert.True(t, ok)
		assert.Equal(t, 1, v)
		return root.Set(viewCtx, "b", 2)
	})
	require.NoError(t, err)
	assert.Equal(t, 2, root.Len())

	err = m.Transaction(ctx, func(txCtx context.Context) error {
		return m.View(ctx, func(context.Context) error { return nil })
	})
	assert.ErrorIs(t, err, ErrLockingRaceCondition, "a view waits for other owners")

	sentinel := errors.New("stop")
	assert.ErrorIs(t, m.View(ctx, func(context.Context) error { return sentinel }), sentinel)
}

func TestContextCancelWhileWaiting(t *testing.T) {
	root := wrap(t, map[string]any{}, WithLockTimeout(time.Minute))
	m := root.Manager()

	txCtx, err := m.Begin(context.Background())
	require.NoError(t, err)
	defer func() { _ = m.End(txCtx, false) }()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = root.Set(ctx, "a", 1)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLoad(t *testing.T) {
	ctx := context.Background()

	t.Run("record root", func(t *testing.T) {
		root := wrap(t, value.NewSchema("Settings", "theme", "size"))
		require.NoError(t, root.Manager().Load(ctx, map[string]any{"theme": "dark"}))
		v, _ := root.Field("theme")
		assert.Equal(t, "dark", v)

		err := root.Manager().Load(ctx, map[string]any{"unknown": 1})
		assert.ErrorIs(t, err, value.ErrUnknownField)
	})

	t.Run("kind mismatch", func(t *testing.T) {
		root := wrap(t, map[string]any{})
		assert.ErrorIs(t, root.Manager().Load(ctx, []any{1}), ErrNotTrackable)
	})

	t.Run("nodes of loaded children work", func(t *testing.T) {
		root := wrap(t, map[string]any{}, WithHistory(0))
		require.NoError(t, root.Manager().Load(ctx, map[string]any{"l": []any{1}}))
		l := child(t, root, "l")
		require.NoError(t, l.Append(ctx, 2))
		assert.Equal(t, 1, root.Manager().History().Len())
	})
}
