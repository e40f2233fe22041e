package incremental

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/spf13/afero"

	"github.com/bolasblack/syncx/internal/util"
)

// FileStore keeps Content in a JSON file. Updates are serialized within
// the process by a mutex and across processes by an advisory lock on a
// sibling ".lock" file when running on the OS filesystem.
type FileStore struct {
	fs   afero.Fs
	path string
	mu   sync.Mutex
}

// NewFileStore returns a store backed by path on fs.
func NewFileStore(fs afero.Fs, path string) *FileStore {
	return &FileStore{fs: fs, path: path}
}

// Path returns the content file path.
func (s *FileStore) Path() string { return s.path }

// Read returns the stored content, or empty content if the file does not
// exist yet.
func (s *FileStore) Read(ctx context.Context) (*Content, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

// Update runs fn on the stored content under the lock and writes the
// result back atomically.
func (s *FileStore) Update(ctx context.Context, fn func(*Content) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := lockFile(s.fs, s.path+".lock")
	if err != nil {
		return fmt.Errorf("failed to lock store: %w", err)
	}
	defer unlock()

	c, err := s.read()
	if err != nil {
		return err
	}
	if err := fn(c); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal store content: %w", err)
	}
	if err := util.WriteFileAtomic(s.fs, s.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write store: %w", err)
	}
	return nil
}

func (s *FileStore) read() (*Content, error) {
	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Content{}, nil
		}
		return nil, fmt.Errorf("failed to read store: %w", err)
	}
	if len(data) == 0 {
		return &Content{}, nil
	}
	var c Content
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse store: %w", err)
	}
	return &c, nil
}
