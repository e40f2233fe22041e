// Package track intercepts mutations of a nested value, turns them into
// deltas and drives observers, transactions, undo history and
// persistence from them.
//
// Mutations are serialized by the manager lock. Plain reads through a
// Node are not: a goroutine reading while another one mutates races with
// it unless the read runs inside Manager.View or a transaction.
package track

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bolasblack/syncx/internal/delta"
	"github.com/bolasblack/syncx/internal/history"
	"github.com/bolasblack/syncx/internal/value"
)

// Syncer persists the tracked value after a change. root is the live root
// container, valid only for the duration of the call.
type Syncer interface {
	Sync(ctx context.Context, root any, d delta.Delta) error
}

// ChangeDetails describes one intercepted mutation.
type ChangeDetails struct {
	// Root is the root node of the tree.
	Root *Node
	// Location is the node the mutation was called on.
	Location *Node
	// Path is the path of Location.
	Path delta.Path
	// Delta is the change the mutation produced. It is nil when nothing
	// needed a delta.
	Delta delta.Delta
	// Operation names the mutating method.
	Operation string
	// Args are the method arguments.
	Args []any
}

// Option configures a Manager.
type Option func(*Manager)

// WithName names the manager in logs and errors.
func WithName(name string) Option {
	return func(m *Manager) { m.name = name }
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithObserver registers fn to be called synchronously after every
// mutation. fn must not mutate the tree.
func WithObserver(fn func(ChangeDetails)) Option {
	return func(m *Manager) { m.observer = fn }
}

// WithLockTimeout bounds how long a mutation waits for the lock.
func WithLockTimeout(d time.Duration) Option {
	return func(m *Manager) { m.lockTimeout = d }
}

// WithSyncer persists every committed change through s.
func WithSyncer(s Syncer) Option {
	return func(m *Manager) { m.syncer = s }
}

// WithHistory activates undo history with the given capacity.
func WithHistory(capacity int) Option {
	return func(m *Manager) {
		m.history = history.New(capacity)
		m.history.Enable()
	}
}

var managerSeq atomic.Uint64

// Manager owns a tracked tree. It serializes every mutation through a
// reentrant lock and fans the resulting deltas out to the transaction
// buffer, the history, the observer and the syncer.
type Manager struct {
	name        string
	logger      *slog.Logger
	lockTimeout time.Duration
	lock        *reentrantLock
	arena       *arena
	root        ref
	rootKind    value.Kind
	schema      *value.Schema
	keywordRoot bool

	cfgMu    sync.Mutex
	observer func(ChangeDetails)
	syncer   Syncer
	history  *history.History

	// Guarded by lock.
	frames    []int
	changes   []delta.Delta
	suspended bool
}

// Wrap starts tracking v and returns its root node. v may be a plain Go
// container, a value model container, a *value.Schema or the
// reflect.Type of a struct; the last two start from an empty record.
func Wrap(v any, opts ...Option) (*Node, error) {
	m := &Manager{
		name:   fmt.Sprintf("manager-%d", managerSeq.Add(1)),
		logger: slog.Default(),
		arena:  newArena(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.lock = newReentrantLock(m.lockTimeout)

	root, err := m.prepareRoot(v)
	if err != nil {
		return nil, err
	}
	m.rootKind, _ = value.KindOf(root)
	m.root = m.arena.registerRoot(root)
	m.arena.rescanAll(m.root)

	m.logger.Debug("tracking value", "manager", m.name, "kind", m.rootKind.String())
	return m.Root(), nil
}

func (m *Manager) prepareRoot(v any) (any, error) {
	switch x := v.(type) {
	case *value.Schema:
		m.schema = x
		m.keywordRoot = true
		return value.NewRecord(x), nil
	case reflect.Type:
		if x.Kind() != reflect.Struct {
			return nil, fmt.Errorf("%w: type %s", ErrNotTrackable, x)
		}
		m.schema = value.SchemaOf(x)
		m.keywordRoot = true
		return value.NewRecord(m.schema), nil
	}

	root, err := value.From(v)
	if err != nil {
		return nil, err
	}
	if !value.IsContainer(root) {
		return nil, fmt.Errorf("%w: %T is not a container", ErrNotTrackable, v)
	}
	if rec, ok := root.(*value.Record); ok {
		m.schema = rec.Schema()
		m.keywordRoot = true
	}
	return root, nil
}

// Name returns the manager's name.
func (m *Manager) Name() string { return m.name }

// Root returns the root node.
func (m *Manager) Root() *Node {
	return &Node{m: m, ref: m.root, path: delta.Path{}, kind: m.rootKind}
}

// KeywordRoot reports whether the root is a record that persisted content
// must be rebuilt into through Schema.
func (m *Manager) KeywordRoot() bool { return m.keywordRoot }

// Schema returns the root record's schema, or nil.
func (m *Manager) Schema() *value.Schema { return m.schema }

// SetSyncer replaces the syncer. A nil syncer disables persistence.
func (m *Manager) SetSyncer(s Syncer) {
	m.cfgMu.Lock()
	defer m.cfgMu.Unlock()
	m.syncer = s
}

// SetObserver replaces the observer.
func (m *Manager) SetObserver(fn func(ChangeDetails)) {
	m.cfgMu.Lock()
	defer m.cfgMu.Unlock()
	m.observer = fn
}

// EnableHistory activates undo history, creating it with capacity on first
// use. Later calls only re-enable it.
func (m *Manager) EnableHistory(capacity int) *history.History {
	m.cfgMu.Lock()
	defer m.cfgMu.Unlock()
	if m.history == nil {
		m.history = history.New(capacity)
	}
	m.history.Enable()
	return m.history
}

// History returns the history, or nil if it was never activated.
func (m *Manager) History() *history.History {
	m.cfgMu.Lock()
	defer m.cfgMu.Unlock()
	return m.history
}

func (m *Manager) hooks() (func(ChangeDetails), Syncer, *history.History) {
	m.cfgMu.Lock()
	defer m.cfgMu.Unlock()
	return m.observer, m.syncer, m.history
}

func (m *Manager) rootValue() any {
	v, _ := m.arena.get(m.root)
	return v
}

func (m *Manager) acquire(ctx context.Context, o *owner) error {
	err := m.lock.acquire(ctx, o)
	if errors.Is(err, ErrLockingRaceCondition) {
		recordLockTimeout()
		m.logger.Warn("lock acquisition timed out", "manager", m.name, "timeout", m.lock.timeout)
		return &LockError{Manager: m.name, Timeout: m.lock.timeout}
	}
	return err
}

// executeChange runs fn against the node's container under the lock and
// distributes the resulting delta.
func (m *Manager) executeChange(ctx context.Context, n *Node, op string, args []any, fn func(c any) (any, error)) (any, error) {
	ctx, o := withOwner(ctx)
	if err := m.acquire(ctx, o); err != nil {
		return nil, err
	}
	defer m.lock.release(o)

	c, err := n.container()
	if err != nil {
		return nil, err
	}
	at, err := m.locate(n, c)
	if err != nil {
		return nil, err
	}

	if m.suspended {
		res, opErr := fn(c)
		m.arena.rescan(c, at)
		return res, opErr
	}

	observer, syncer, hist := m.hooks()
	historyActive := hist != nil && hist.Enabled()
	needDelta := len(m.frames) > 0 || historyActive || syncer != nil

	var before any
	if needDelta {
		before = value.Clone(c)
	}
	res, opErr := fn(c)
	m.arena.rescan(c, at)
	recordMutation(op)

	var d delta.Delta
	if needDelta {
		start := time.Now()
		d = delta.Diff(before, c, at)
		recordDiff(time.Since(start))
	}
	m.logger.Debug("mutation", "manager", m.name, "op", op, "path", at.String(), "ops", len(d))

	if len(d) > 0 {
		if len(m.frames) > 0 {
			m.changes = append(m.changes, d)
		}
		if historyActive {
			hist.Add(d)
		}
	}

	if observer != nil {
		observer(ChangeDetails{
			Root:      m.Root(),
			Location:  n,
			Path:      append(delta.Path{}, at...),
			Delta:     d,
			Operation: op,
			Args:      args,
		})
	}

	if syncer != nil && len(m.frames) == 0 && len(d) > 0 {
		if err := m.persist(ctx, syncer, d); err != nil {
			return res, errors.Join(opErr, err)
		}
	}
	return res, opErr
}

// locate returns where c sits in the tree now. The node's own path wins
// while it still leads to c; otherwise the arena's record is used, after a
// full rescan if needed, and the node adopts it. A container no longer
// reachable from the root fails with ErrDetached.
func (m *Manager) locate(n *Node, c any) (delta.Path, error) {
	root := m.rootValue()
	held := n.Path()
	if holds(root, held, c) {
		return held, nil
	}
	if p, ok := m.arena.pathOf(n.ref); ok && holds(root, p, c) {
		n.setPath(p)
		return p, nil
	}
	if freed := m.arena.rescanAll(m.root); freed > 0 {
		m.logger.Debug("freed detached slots", "manager", m.name, "slots", freed)
	}
	if p, ok := m.arena.pathOf(n.ref); ok && holds(root, p, c) {
		n.setPath(p)
		return p, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrDetached, displayPath(held))
}

func holds(root any, p delta.Path, c any) bool {
	v, err := delta.Resolve(root, p)
	return err == nil && v == c
}

func (m *Manager) persist(ctx context.Context, s Syncer, d delta.Delta) error {
	if err := s.Sync(ctx, m.rootValue(), d); err != nil {
		recordPersistError()
		m.logger.Error("failed to persist change", "manager", m.name, "error", err)
		return fmt.Errorf("failed to persist change: %w", err)
	}
	return nil
}

// patchRoot applies d to the root container in place.
func (m *Manager) patchRoot(d delta.Delta) error {
	root := m.rootValue()
	out, err := delta.Patch(d, root)
	if err != nil {
		return err
	}
	if out != root {
		return value.Assign(root, out)
	}
	return nil
}

// Load replaces the contents of the root with v without recording a
// change. A record root is rebuilt from a map through its schema.
func (m *Manager) Load(ctx context.Context, v any) error {
	ctx, o := withOwner(ctx)
	if err := m.acquire(ctx, o); err != nil {
		return err
	}
	defer m.lock.release(o)

	src, err := value.From(v)
	if err != nil {
		return err
	}
	if mp, ok := src.(*value.Map); ok && m.keywordRoot {
		if src, err = value.RecordFromMap(m.schema, mp); err != nil {
			return err
		}
	}
	if err := value.Assign(m.rootValue(), src); err != nil {
		return err
	}
	m.arena.rescanAll(m.root)
	return nil
}

// View runs fn holding the manager lock, so that reads made by fn do not
// race with mutations from other goroutines. Mutations made by fn must use
// the context it is given.
func (m *Manager) View(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, o := withOwner(ctx)
	if err := m.acquire(ctx, o); err != nil {
		return err
	}
	defer m.lock.release(o)
	return fn(ctx)
}

// Unwrap returns a deep copy of the node's value as plain Go values.
func Unwrap(n *Node) any {
	c, err := n.container()
	if err != nil {
		return nil
	}
	return value.Plain(c)
}
