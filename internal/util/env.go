package util

import (
	"github.com/spf13/afero"
)

// Env contains environment dependencies that can be mocked for testing.
type Env struct {
	// Fs is the filesystem to use for file operations.
	Fs afero.Fs
}

// NewEnv creates an Env with the given filesystem.
func NewEnv(fs afero.Fs) *Env {
	return &Env{Fs: fs}
}

// NewOsEnv creates an Env backed by the OS filesystem.
func NewOsEnv() *Env {
	return &Env{Fs: afero.NewOsFs()}
}

// NewReadonlyOsEnv creates an Env with a read-only OS filesystem.
// Use this for commands that only read files (like show, conflicts).
// Write operations will fail with an error.
func NewReadonlyOsEnv() *Env {
	return &Env{Fs: afero.NewReadOnlyFs(afero.NewOsFs())}
}

// NewTestEnv creates an Env with an in-memory filesystem (for testing).
func NewTestEnv() *Env {
	return &Env{Fs: afero.NewMemMapFs()}
}
