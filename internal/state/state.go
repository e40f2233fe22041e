// Package state provides per-project writer state for syncx.
// It maintains a local state file (.syncx/state.json) that records the
// writer's identity and the last shared delta it has seen, so a writer
// keeps its place in the shared store across runs.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/bolasblack/syncx/internal/incremental"
	"github.com/bolasblack/syncx/internal/util"
	"github.com/bolasblack/syncx/internal/value"
)

const (
	// StateFilename is the name of the state file.
	StateFilename = "state.json"
	// CurrentVersion is the current state file version.
	CurrentVersion = "1"
)

// State represents the persistent writer state of a project.
type State struct {
	// Version is the state file format version.
	Version string `json:"version"`
	// WriterID is a unique UUID for this writer, survives directory moves.
	WriterID string `json:"writer_id"`
	// CreatedAt is when the state was first created.
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt is when the state was last saved.
	UpdatedAt time.Time `json:"updated_at"`
	// Latest is the signature of the last shared delta this writer has seen.
	Latest *incremental.Signature `json:"latest,omitempty"`
	// Base is the writer's copy of the shared object at Latest, in tagged
	// encoding. Local edits are diffed against it.
	Base json.RawMessage `json:"base,omitempty"`
	// Config stores the store settings the state was recorded against.
	Config *ConfigSnapshot `json:"config,omitempty"`
}

// ConfigSnapshot captures the settings that give Latest its meaning.
type ConfigSnapshot struct {
	StoreKind string `json:"store_kind"`
	StorePath string `json:"store_path"`
	File      string `json:"file"`
}

// StateFilePath returns the path to the state file for the given project directory.
func StateFilePath(projectDir string) string {
	return filepath.Join(projectDir, util.StateDir, StateFilename)
}

// StateDirPath returns the path to the state directory for the given project directory.
func StateDirPath(projectDir string) string {
	return filepath.Join(projectDir, util.StateDir)
}

// Load reads the state file from the given project directory.
// Returns nil and no error if the state file does not exist.
func Load(env *util.Env, projectDir string) (*State, error) {
	data, err := afero.ReadFile(env.Fs, StateFilePath(projectDir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to parse state file: %w", err)
	}
	return &state, nil
}

// Save writes the state file to the given project directory.
// Creates the .syncx directory if it does not exist.
func Save(env *util.Env, projectDir string, state *State) error {
	state.UpdatedAt = time.Now()
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	if err := util.WriteFileAtomic(env.Fs, StateFilePath(projectDir), data, 0o644); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	return nil
}

// LoadOrCreate loads the state file if it exists, or creates a new one.
// A state recorded against other store settings is reset: it keeps its
// writer ID but forgets its position in the store.
func LoadOrCreate(env *util.Env, projectDir string, snapshot *ConfigSnapshot) (*State, bool, error) {
	state, err := Load(env, projectDir)
	if err != nil {
		return nil, false, err
	}

	if state != nil {
		if drift := state.DetectConfigDrift(snapshot); drift != nil {
			state.Reset()
			state.Config = snapshot
			if err := Save(env, projectDir, state); err != nil {
				return nil, false, err
			}
		}
		return state, false, nil
	}

	state = &State{
		Version:   CurrentVersion,
		WriterID:  uuid.New().String(),
		CreatedAt: time.Now(),
		Config:    snapshot,
	}
	if err := Save(env, projectDir, state); err != nil {
		return nil, true, err
	}
	return state, true, nil
}

// Delete removes the state file (but not the .syncx directory).
func Delete(env *util.Env, projectDir string) error {
	err := env.Fs.Remove(StateFilePath(projectDir))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete state file: %w", err)
	}
	return nil
}

// BaseValue decodes Base. It returns nil when no base was recorded.
func (s *State) BaseValue() (any, error) {
	if len(s.Base) == 0 {
		return nil, nil
	}
	var raw any
	if err := json.Unmarshal(s.Base, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse base: %w", err)
	}
	return value.Decode(raw)
}

// Advance records that the writer has seen the store up to latest, where
// the shared object was base.
func (s *State) Advance(latest *incremental.Signature, base any) error {
	data, err := json.Marshal(value.Encode(base))
	if err != nil {
		return fmt.Errorf("failed to encode base: %w", err)
	}
	if latest != nil {
		sig := *latest
		latest = &sig
	}
	s.Latest = latest
	s.Base = data
	return nil
}

// Reset forgets the writer's position in the store.
func (s *State) Reset() {
	s.Latest = nil
	s.Base = nil
}

// ConfigDrift represents store setting changes between state and current config.
type ConfigDrift struct {
	Old *ConfigSnapshot
	New *ConfigSnapshot
}

// HasDrift returns true if the settings changed in ways that invalidate
// the recorded position.
func (d *ConfigDrift) HasDrift() bool {
	if d == nil || d.Old == nil || d.New == nil {
		return false
	}

	old, new := d.Old, d.New

	// Compile-time check: must match ConfigSnapshot fields exactly.
	type fields struct {
		StoreKind string
		StorePath string
		File      string
	}
	_ = fields(*old)

	// File: intentionally excluded, the snapshot file can move freely.
	return old.StoreKind != new.StoreKind || old.StorePath != new.StorePath
}

// DetectConfigDrift compares the state's config snapshot with the given one.
// Returns nil if no drift or if state has no config snapshot.
func (s *State) DetectConfigDrift(current *ConfigSnapshot) *ConfigDrift {
	if s.Config == nil {
		return nil
	}
	drift := &ConfigDrift{Old: s.Config, New: current}
	if drift.HasDrift() {
		return drift
	}
	return nil
}
