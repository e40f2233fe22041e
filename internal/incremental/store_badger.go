package incremental

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"
)

// maxConflictRetries bounds how often an update is retried after badger
// reports a conflicting concurrent transaction.
const maxConflictRetries = 8

// BadgerConfig configures OpenBadger.
type BadgerConfig struct {
	// Path is the database directory. Required unless InMemory is set.
	Path string
	// InMemory keeps the database in memory only.
	InMemory bool
	// SyncWrites fsyncs every commit.
	SyncWrites bool
	// Logger receives badger's internal logs. Nil disables them.
	Logger *slog.Logger
}

// badgerLogger adapts slog to badger's logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// OpenBadger opens a badger database for BadgerStore.
func OpenBadger(cfg BadgerConfig) (*badger.DB, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}

	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}
	return db, nil
}

// BadgerStore keeps Content under one key of a badger database. Badger's
// serializable transactions make Update atomic across goroutines sharing
// the database.
type BadgerStore struct {
	db  *badger.DB
	key []byte
}

// NewBadgerStore returns a store keeping the content named name in db.
func NewBadgerStore(db *badger.DB, name string) *BadgerStore {
	return &BadgerStore{db: db, key: []byte("syncx/content/" + name)}
}

// Read returns the stored content, or empty content if none was written.
func (s *BadgerStore) Read(ctx context.Context) (*Content, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var c *Content
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		c, err = s.get(txn)
		return err
	})
	return c, err
}

// Update runs fn inside a read-write transaction. Transactions that lose
// a race with a concurrent writer are retried with fresh content.
func (s *BadgerStore) Update(ctx context.Context, fn func(*Content) error) error {
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := s.db.Update(func(txn *badger.Txn) error {
			c, err := s.get(txn)
			if err != nil {
				return err
			}
			if err := fn(c); err != nil {
				return err
			}
			data, err := json.Marshal(c)
			if err != nil {
				return fmt.Errorf("failed to marshal store content: %w", err)
			}
			return txn.Set(s.key, data)
		})
		if errors.Is(err, badger.ErrConflict) && attempt < maxConflictRetries {
			continue
		}
		return err
	}
}

func (s *BadgerStore) get(txn *badger.Txn) (*Content, error) {
	item, err := txn.Get(s.key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return &Content{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read store: %w", err)
	}
	data, err := item.ValueCopy(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to read store: %w", err)
	}
	var c Content
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse store: %w", err)
	}
	return &c, nil
}
