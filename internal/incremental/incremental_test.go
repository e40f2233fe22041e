package incremental

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bolasblack/syncx/internal/delta"
	"github.com/bolasblack/syncx/internal/value"
)

func from(t *testing.T, v any) any {
	t.Helper()
	out, err := value.From(v)
	require.NoError(t, err)
	return out
}

func sign(t *testing.T, prev *Signature, d delta.Delta) Signature {
	t.Helper()
	sig, err := Sign(prev, d)
	require.NoError(t, err)
	return sig
}

func TestHash(t *testing.T) {
	h, err := Hash("foobar")
	require.NoError(t, err)
	assert.Equal(t, "5f6f3065208dde5f4624d7dfafc36a296a526590", h)

	a, err := Hash(from(t, map[string]any{"b": 1, "a": []any{1, 2}}))
	require.NoError(t, err)
	b, err := Hash(from(t, map[string]any{"a": []any{1, 2}, "b": 1}))
	require.NoError(t, err)
	assert.Equal(t, a, b, "key order must not matter")
}

func TestSign(t *testing.T) {
	d := delta.Diff(from(t, map[string]any{}), from(t, map[string]any{"a": 1}), nil)

	first := sign(t, nil, d)
	assert.Equal(t, 0, first.Counter)
	assert.Len(t, first.Hash, 40)

	next := sign(t, &Signature{Counter: 1, Hash: "aaa"}, d)
	assert.Equal(t, 2, next.Counter)
	assert.Equal(t, first.Hash, next.Hash)

	assert.True(t, SameSignature(nil, nil))
	assert.False(t, SameSignature(&first, nil))
	assert.True(t, SameSignature(&first, &Signature{Counter: 0, Hash: first.Hash}))
	assert.Equal(t, "#2:"+first.Hash[:8], next.String())
}

func TestOkToApplyNoUnappliedDeltas(t *testing.T) {
	tests := []struct {
		name   string
		remote map[string]any
		want   bool
	}{
		{name: "unrelated key", remote: map[string]any{"a": 1}, want: true},
		{name: "same key different value", remote: map[string]any{"b": 1}, want: false},
		{name: "same key same value", remote: map[string]any{"b": 2}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			baseline := from(t, map[string]any{})
			remote := from(t, tt.remote)
			latest := sign(t, nil, delta.Diff(baseline, remote, nil))
			content := &Content{Latest: &latest, Object: remote}

			localObject := from(t, map[string]any{"b": 2})
			local := delta.Diff(baseline, localObject, nil)

			assert.Equal(t, tt.want, OkToApply(content, nil, local, localObject))
		})
	}
}

func TestOkToApplyWithUnappliedDeltas(t *testing.T) {
	tests := []struct {
		name   string
		remote map[string]any
		want   bool
	}{
		{name: "unrelated key", remote: map[string]any{"a": 1, "b": 1}, want: true},
		{name: "same key different value", remote: map[string]any{"a": 1, "c": 2}, want: false},
		{name: "same key same value", remote: map[string]any{"a": 1, "c": 1}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			baseline := from(t, map[string]any{})
			shared := from(t, map[string]any{"a": 1})
			sharedDelta := delta.Diff(baseline, shared, nil)
			sharedSig := sign(t, nil, sharedDelta)

			divergingDelta := delta.Diff(shared, from(t, tt.remote), nil)
			divergingSig := sign(t, &sharedSig, divergingDelta)

			content := &Content{Object: baseline}
			content.Append(SignedDelta{Signature: sharedSig, Delta: sharedDelta})
			content.Append(SignedDelta{Signature: divergingSig, Delta: divergingDelta})

			localObject := from(t, map[string]any{"a": 1, "c": 1})
			local := delta.Diff(shared, localObject, nil)

			assert.Equal(t, tt.want, OkToApply(content, &sharedSig, local, localObject))
			// Without a known position the remote delta is recomputed by diffing.
			assert.Equal(t, tt.want, OkToApply(content, &Signature{Counter: 9, Hash: "unknown"}, local, localObject))
		})
	}
}

func TestOkToApplyUnrevertableLocal(t *testing.T) {
	local := delta.Delta{{Kind: delta.Add, Key: delta.Name("missing"), New: 1}}
	assert.False(t, OkToApply(&Content{Object: value.NewMap()}, nil, local, value.NewMap()))
}

func TestConflicts(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	local := delta.Delta{
		{Kind: delta.Change, Path: delta.Path{delta.Name("a"), delta.Name("x")}, Old: 1, New: 2},
		{Kind: delta.Add, Key: delta.Name("b"), New: 1},
		{Kind: delta.Add, Key: delta.Name("free"), New: 1},
	}
	remote := delta.Delta{
		{Kind: delta.Remove, Key: delta.Name("a"), Old: value.NewMap()},
		{Kind: delta.Add, Key: delta.Name("b"), New: 2},
	}

	got := Conflicts(local, remote, now)
	assert.Equal(t, []ConflictInfo{
		{Path: "a.x", Location: delta.Path{delta.Name("a"), delta.Name("x")}, LocalState: "modified", RemoteState: "deleted", DetectedAt: now},
		{Path: "b", Location: delta.Path{delta.Name("b")}, LocalState: "created", RemoteState: "created", DetectedAt: now},
	}, got)

	assert.Empty(t, Conflicts(local, nil, now))
}

func TestMerge(t *testing.T) {
	pre := from(t, map[string]any{"a": 1, "b": 1})

	tests := []struct {
		name    string
		local   map[string]any
		remote  map[string]any
		want    map[string]any
		wantErr bool
	}{
		{
			name:   "disjoint changes",
			local:  map[string]any{"a": 2, "b": 1},
			remote: map[string]any{"a": 1, "b": 3, "c": 4},
			want:   map[string]any{"a": 2, "b": 3, "c": 4},
		},
		{
			name:   "identical changes",
			local:  map[string]any{"a": 2, "b": 1},
			remote: map[string]any{"a": 2, "b": 1},
			want:   map[string]any{"a": 2, "b": 1},
		},
		{
			name:    "same key changed differently",
			local:   map[string]any{"a": 2, "b": 1},
			remote:  map[string]any{"a": 3, "b": 1},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			local := delta.Diff(pre, from(t, tt.local), nil)
			remote := delta.Diff(pre, from(t, tt.remote), nil)

			got, err := Merge(pre, local, remote, "w1")
			if tt.wantErr {
				var conflictErr *ConflictError
				require.ErrorAs(t, err, &conflictErr)
				assert.Equal(t, "w1", conflictErr.Writer)
				assert.NotEmpty(t, conflictErr.Conflicts)
				return
			}
			require.NoError(t, err)
			assert.True(t, value.Equal(from(t, tt.want), got))
			assert.True(t, value.Equal(from(t, map[string]any{"a": 1, "b": 1}), pre), "pre must not be modified")
		})
	}
}

func TestContent(t *testing.T) {
	t.Run("accumulate and compact", func(t *testing.T) {
		base := from(t, map[string]any{"a": 1})
		next := from(t, map[string]any{"a": 1, "tags": value.NewSet("x")})
		d := delta.Diff(base, next, nil)
		sig := sign(t, nil, d)

		c := &Content{Object: base}
		c.Append(SignedDelta{Signature: sig, Writer: "w1", Delta: d})
		assert.True(t, SameSignature(&sig, c.Latest))

		obj, err := c.Accumulated()
		require.NoError(t, err)
		assert.True(t, value.Equal(next, obj))
		assert.Equal(t, 1, base.(*value.Map).Len(), "base must not be modified")

		require.NoError(t, c.Compact())
		assert.Empty(t, c.Unapplied)
		assert.True(t, value.Equal(next, c.Object))
		assert.True(t, SameSignature(&sig, c.Latest))
	})

	t.Run("json keeps tagged values", func(t *testing.T) {
		base := from(t, map[string]any{"tags": value.NewSet("x", "y")})
		next := from(t, map[string]any{"tags": value.NewSet("y")})
		d := delta.Diff(base, next, nil)
		c := &Content{Object: base}
		c.Append(SignedDelta{Signature: sign(t, nil, d), Writer: "w1", Delta: d})

		data, err := json.Marshal(c)
		require.NoError(t, err)

		var decoded Content
		require.NoError(t, json.Unmarshal(data, &decoded))
		assert.True(t, value.Equal(base, decoded.Object))
		require.Len(t, decoded.Unapplied, 1)
		assert.Equal(t, "w1", decoded.Unapplied[0].Writer)

		obj, err := decoded.Accumulated()
		require.NoError(t, err)
		assert.True(t, value.Equal(next, obj))
	})

	t.Run("empty content encodes an empty queue", func(t *testing.T) {
		data, err := json.Marshal(&Content{})
		require.NoError(t, err)
		assert.JSONEq(t, `{"latest":null,"object":null,"unapplied":[]}`, string(data))
	})
}

func storeFactories() map[string]func(t *testing.T) Store {
	return map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store { return NewMemoryStore() },
		"file": func(t *testing.T) Store {
			return NewFileStore(afero.NewMemMapFs(), "/shared/content.json")
		},
		"file on os": func(t *testing.T) Store {
			return NewFileStore(afero.NewOsFs(), filepath.Join(t.TempDir(), "content.json"))
		},
		"badger": func(t *testing.T) Store {
			db, err := OpenBadger(BadgerConfig{InMemory: true})
			require.NoError(t, err)
			t.Cleanup(func() { _ = db.Close() })
			return NewBadgerStore(db, "test")
		},
	}
}

func TestStores(t *testing.T) {
	ctx := context.Background()
	for name, newStore := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)

			c, err := s.Read(ctx)
			require.NoError(t, err)
			assert.Nil(t, c.Latest)
			assert.Nil(t, c.Object)
			assert.Empty(t, c.Unapplied)

			obj := from(t, map[string]any{"a": 1})
			d := delta.Diff(nil, obj, nil)
			sig := sign(t, nil, d)
			require.NoError(t, s.Update(ctx, func(c *Content) error {
				c.Append(SignedDelta{Signature: sig, Writer: "w", Delta: d})
				return nil
			}))

			failure := errors.New("boom")
			err = s.Update(ctx, func(c *Content) error {
				c.Object = "should not persist"
				return failure
			})
			assert.ErrorIs(t, err, failure)

			c, err = s.Read(ctx)
			require.NoError(t, err)
			assert.True(t, SameSignature(&sig, c.Latest))
			assert.Nil(t, c.Object)
			acc, err := c.Accumulated()
			require.NoError(t, err)
			assert.True(t, value.Equal(obj, acc))

			cancelled, cancel := context.WithCancel(ctx)
			cancel()
			_, err = s.Read(cancelled)
			assert.ErrorIs(t, err, context.Canceled)
		})
	}
}

func TestFileStoreCorruptContent(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/c.json", []byte("{invalid"), 0o644))
	_, err := NewFileStore(fs, "/c.json").Read(context.Background())
	assert.Error(t, err)
}

func TestWriter(t *testing.T) {
	ctx := context.Background()

	t.Run("writers in sync append", func(t *testing.T) {
		store := NewMemoryStore()
		w := NewWriter(store, WithWriterID("w1"))
		assert.Equal(t, "w1", w.ID())

		initial, err := w.Initial(ctx)
		require.NoError(t, err)
		assert.Nil(t, initial)
		assert.Nil(t, w.LastKnown())

		obj := from(t, map[string]any{"a": 1})
		require.NoError(t, w.Put(ctx, delta.Diff(nil, obj, nil), obj))
		first := w.LastKnown()
		require.NotNil(t, first)
		assert.Equal(t, 0, first.Counter)

		next := value.Clone(obj)
		next.(*value.Map).Set("b", 2)
		require.NoError(t, w.Put(ctx, delta.Diff(obj, next, nil), next))
		assert.Equal(t, 1, w.LastKnown().Counter)

		c, err := store.Read(ctx)
		require.NoError(t, err)
		require.Len(t, c.Unapplied, 2)
		acc, err := c.Accumulated()
		require.NoError(t, err)
		assert.True(t, value.Equal(next, acc))
	})

	t.Run("empty delta is not stored", func(t *testing.T) {
		store := NewMemoryStore()
		w := NewWriter(store)
		assert.NotEmpty(t, w.ID())
		require.NoError(t, w.Put(ctx, nil, nil))
		c, err := store.Read(ctx)
		require.NoError(t, err)
		assert.Empty(t, c.Unapplied)
	})

	t.Run("behind writer merges commuting change", func(t *testing.T) {
		store := NewMemoryStoreWith(&Content{Object: from(t, map[string]any{"a": 1})})
		w1 := NewWriter(store, WithWriterID("w1"))
		w2 := NewWriter(store, WithWriterID("w2"))

		base1, err := w1.Initial(ctx)
		require.NoError(t, err)
		base2, err := w2.Initial(ctx)
		require.NoError(t, err)

		obj1 := value.Clone(base1)
		obj1.(*value.Map).Set("b", 1)
		require.NoError(t, w1.Put(ctx, delta.Diff(base1, obj1, nil), obj1))

		obj2 := value.Clone(base2)
		obj2.(*value.Map).Set("c", 1)
		require.NoError(t, w2.Put(ctx, delta.Diff(base2, obj2, nil), obj2))

		c, err := store.Read(ctx)
		require.NoError(t, err)
		acc, err := c.Accumulated()
		require.NoError(t, err)
		assert.True(t, value.Equal(from(t, map[string]any{"a": 1, "b": 1, "c": 1}), acc))
		assert.Nil(t, w2.LastKnown(), "w2 has not seen w1's change")
		assert.Equal(t, "w2", c.Unapplied[len(c.Unapplied)-1].Writer)
	})

	putAfterMerge := []struct {
		name   string
		queued bool
	}{
		{name: "store without queued deltas", queued: false},
		{name: "store with a queued delta both writers saw", queued: true},
	}
	for _, tt := range putAfterMerge {
		t.Run("merged writer still conflicts with unseen change: "+tt.name, func(t *testing.T) {
			start := from(t, map[string]any{"a": 0, "b": 0})
			store := NewMemoryStoreWith(&Content{Object: value.Clone(start)})
			if tt.queued {
				seed := NewWriter(store, WithWriterID("seed"))
				next := value.Clone(start)
				next.(*value.Map).Set("c", 0)
				require.NoError(t, seed.Put(ctx, delta.Diff(start, next, nil), next))
				start = next
			}
			a := NewWriter(store, WithWriterID("a"))
			b := NewWriter(store, WithWriterID("b"))
			_, err := a.Initial(ctx)
			require.NoError(t, err)
			_, err = b.Initial(ctx)
			require.NoError(t, err)

			set := func(w *Writer, obj any, key string, v int) any {
				next := value.Clone(obj)
				next.(*value.Map).Set(key, v)
				require.NoError(t, w.Put(ctx, delta.Diff(obj, next, nil), next))
				return next
			}
			set(b, start, "a", 5)
			objA := set(a, start, "b", 1)

			next := value.Clone(objA)
			next.(*value.Map).Set("a", 1)
			err = a.Put(ctx, delta.Diff(objA, next, nil), next)
			require.ErrorIs(t, err, ErrUnresolvableConflict)
			var conflictErr *ConflictError
			require.ErrorAs(t, err, &conflictErr)
			require.Len(t, conflictErr.Conflicts, 1)
			assert.Equal(t, "a", conflictErr.Conflicts[0].Path)

			c, err := store.Read(ctx)
			require.NoError(t, err)
			acc, err := c.Accumulated()
			require.NoError(t, err)
			want := value.Clone(start)
			want.(*value.Map).Set("a", 5)
			want.(*value.Map).Set("b", 1)
			assert.True(t, value.Equal(want, acc), "b's change survives: %v", value.Plain(acc))

			set(a, objA, "d", 1)
			c, err = store.Read(ctx)
			require.NoError(t, err)
			acc, err = c.Accumulated()
			require.NoError(t, err)
			got, _ := acc.(*value.Map).Get("a")
			assert.True(t, value.Equal(5, got), "a commuting put after the merge keeps b's change, got %v", got)
		})
	}

	t.Run("writer's own queued deltas are not remote changes", func(t *testing.T) {
		start := from(t, map[string]any{"l": []any{}})
		store := NewMemoryStore()
		seed := NewWriter(store, WithWriterID("a"))
		require.NoError(t, seed.Put(ctx, delta.Diff(nil, start, nil), start))

		a := NewWriter(store, WithWriterID("a"), WithLastKnown(seed.LastKnown()))
		b := NewWriter(store, WithWriterID("b"), WithLastKnown(seed.LastKnown()))

		other := value.Clone(start)
		other.(*value.Map).Set("x", 1)
		require.NoError(t, b.Put(ctx, delta.Diff(start, other, nil), other))

		obj := start
		for i := range 2 {
			next := value.Clone(obj)
			l, _ := next.(*value.Map).Get("l")
			l.(*value.List).Append(i)
			require.NoError(t, a.Put(ctx, delta.Diff(obj, next, nil), next), "append %d", i)
			obj = next
		}

		c, err := store.Read(ctx)
		require.NoError(t, err)
		acc, err := c.Accumulated()
		require.NoError(t, err)
		assert.True(t, value.Equal(from(t, map[string]any{"l": []any{0, 1}, "x": 1}), acc), "got %v", value.Plain(acc))
	})

	t.Run("behind writer with overlapping change is rejected", func(t *testing.T) {
		store := NewMemoryStoreWith(&Content{Object: from(t, map[string]any{"a": 1})})
		w1 := NewWriter(store, WithWriterID("w1"))
		w2 := NewWriter(store, WithWriterID("w2"))

		base1, err := w1.Initial(ctx)
		require.NoError(t, err)
		base2, err := w2.Initial(ctx)
		require.NoError(t, err)

		obj1 := value.Clone(base1)
		obj1.(*value.Map).Set("a", 2)
		require.NoError(t, w1.Put(ctx, delta.Diff(base1, obj1, nil), obj1))

		obj2 := value.Clone(base2)
		obj2.(*value.Map).Set("a", 3)
		known := w2.LastKnown()
		err = w2.Put(ctx, delta.Diff(base2, obj2, nil), obj2)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrUnresolvableConflict)

		var conflictErr *ConflictError
		require.ErrorAs(t, err, &conflictErr)
		assert.Equal(t, "w2", conflictErr.Writer)
		require.Len(t, conflictErr.Conflicts, 1)
		assert.Equal(t, "a", conflictErr.Conflicts[0].Path)
		assert.Equal(t, "modified", conflictErr.Conflicts[0].LocalState)
		assert.Equal(t, "modified", conflictErr.Conflicts[0].RemoteState)
		assert.True(t, SameSignature(known, w2.LastKnown()), "rejected put must not move the writer")

		c, err := store.Read(ctx)
		require.NoError(t, err)
		assert.Len(t, c.Unapplied, 1)
	})

	t.Run("resumed writer", func(t *testing.T) {
		store := NewMemoryStore()
		w1 := NewWriter(store, WithWriterID("w1"))
		obj := from(t, map[string]any{"a": 1})
		require.NoError(t, w1.Put(ctx, delta.Diff(nil, obj, nil), obj))

		w2 := NewWriter(store, WithWriterID("w1"), WithLastKnown(w1.LastKnown()))
		next := value.Clone(obj)
		next.(*value.Map).Set("a", 2)
		require.NoError(t, w2.Put(ctx, delta.Diff(obj, next, nil), next))
		assert.Equal(t, 1, w2.LastKnown().Counter)
	})

	t.Run("compact keeps accumulated object", func(t *testing.T) {
		store := NewFileStore(afero.NewMemMapFs(), "/c.json")
		w := NewWriter(store)
		obj := from(t, map[string]any{"a": []any{1, 2}})
		require.NoError(t, w.Put(ctx, delta.Diff(nil, obj, nil), obj))

		require.NoError(t, w.Compact(ctx))
		c, err := store.Read(ctx)
		require.NoError(t, err)
		assert.Empty(t, c.Unapplied)
		assert.True(t, value.Equal(obj, c.Object))
		assert.True(t, SameSignature(c.Latest, w.LastKnown()))

		next := value.Clone(obj)
		next.(*value.Map).Set("b", true)
		require.NoError(t, w.Sync(ctx, next, delta.Diff(obj, next, nil)))
	})
}

func TestMetricsSwitch(t *testing.T) {
	ctx := context.Background()
	t.Cleanup(func() { SetMetricsEnabled(true) })

	put := func() {
		store := NewMemoryStore()
		obj := from(t, map[string]any{"a": 1})
		require.NoError(t, NewWriter(store).Put(ctx, delta.Diff(nil, obj, nil), obj))
	}
	appended := putsTotal.WithLabelValues("appended")

	SetMetricsEnabled(false)
	before := testutil.ToFloat64(appended)
	put()
	assert.Equal(t, before, testutil.ToFloat64(appended))

	SetMetricsEnabled(true)
	put()
	assert.Equal(t, before+1, testutil.ToFloat64(appended))
}

func TestCache(t *testing.T) {
	fs := afero.NewMemMapFs()

	got, err := ReadCache(fs, "/project")
	require.NoError(t, err)
	assert.Nil(t, got)

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	conflictErr := &ConflictError{Writer: "w", Conflicts: []ConflictInfo{{Path: "a", LocalState: "modified", RemoteState: "deleted", DetectedAt: now}}}
	written, err := RecordConflicts(fs, "/project", conflictErr, now)
	require.NoError(t, err)
	assert.Len(t, written.Conflicts, 1)

	got, err = ReadCache(fs, "/project")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, now.Equal(got.UpdatedAt))
	assert.Equal(t, "a", got.Conflicts[0].Path)

	_, err = RecordConflicts(fs, "/project", nil, now)
	require.NoError(t, err)
	got, err = ReadCache(fs, "/project")
	require.NoError(t, err)
	assert.Empty(t, got.Conflicts)

	require.NoError(t, afero.WriteFile(fs, "/project/.syncx/conflicts-cache.json", []byte("{invalid"), 0o644))
	_, err = ReadCache(fs, "/project")
	assert.Error(t, err)
}
