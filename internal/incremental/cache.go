package incremental

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"github.com/bolasblack/syncx/internal/util"
)

// CacheFile is the conflict cache file name inside the state directory.
const CacheFile = "conflicts-cache.json"

// CacheData is the last conflict report of a project.
type CacheData struct {
	UpdatedAt time.Time      `json:"updatedAt"`
	Conflicts []ConflictInfo `json:"conflicts"`
}

// ReadCache returns the cached conflict report of the project, or nil
// when nothing has been recorded yet.
func ReadCache(fsys afero.Fs, projectRoot string) (*CacheData, error) {
	raw, err := afero.ReadFile(fsys, cacheFilePath(projectRoot))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read conflict cache: %w", err)
	}
	cache := &CacheData{}
	if err := json.Unmarshal(raw, cache); err != nil {
		return nil, fmt.Errorf("failed to parse conflict cache: %w", err)
	}
	return cache, nil
}

// WriteCache replaces the project's conflict report.
func WriteCache(fsys afero.Fs, projectRoot string, data *CacheData) error {
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode conflict cache: %w", err)
	}
	if err := util.WriteFileAtomic(fsys, cacheFilePath(projectRoot), raw, 0o644); err != nil {
		return fmt.Errorf("failed to write conflict cache: %w", err)
	}
	return nil
}

// RecordConflicts stores the conflicts of err in the cache. A nil or
// non-conflict error clears the cache.
func RecordConflicts(fsys afero.Fs, projectRoot string, err error, now time.Time) (*CacheData, error) {
	data := &CacheData{UpdatedAt: now, Conflicts: []ConflictInfo{}}
	var conflictErr *ConflictError
	if errors.As(err, &conflictErr) {
		data.Conflicts = conflictErr.Conflicts
	}
	if err := WriteCache(fsys, projectRoot, data); err != nil {
		return nil, err
	}
	return data, nil
}

func cacheFilePath(projectRoot string) string {
	return filepath.Join(projectRoot, util.StateDir, CacheFile)
}
