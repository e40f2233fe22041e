// Package config handles parsing and writing of syncx project files (.syncx.toml).
package config

import (
	"bytes"
	"fmt"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"
	toml "github.com/pelletier/go-toml/v2"

	"github.com/bolasblack/syncx/internal/util"
)

// Format names a snapshot file format.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// StoreKind selects where shared deltas are kept.
type StoreKind string

const (
	// StoreFile keeps the shared content in a JSON file guarded by a file lock.
	StoreFile StoreKind = "file"
	// StoreBadger keeps the shared content in an embedded badger database.
	StoreBadger StoreKind = "badger"
	// StoreMemory keeps the shared content in process memory (tests, dry runs).
	StoreMemory StoreKind = "memory"
)

// Defaults applied by LoadConfig.
const (
	DefaultLockTimeout     = 5 * time.Second
	DefaultFileStorePath   = util.StateDir + "/shared.json"
	DefaultBadgerStorePath = util.StateDir + "/badger"
)

// Duration is a time.Duration written as a Go duration string ("5s").
type Duration time.Duration

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	*d = Duration(parsed)
	return nil
}

// JSONSchema implements jsonschema.JSONSchemer.
func (Duration) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:        "string",
		Pattern:     `^([0-9]+(\.[0-9]+)?(ns|us|µs|ms|s|m|h))+$`,
		Description: "Go duration string (e.g. 500ms, 5s, 1m)",
	}
}

// History configures the undo/redo log.
type History struct {
	Enabled  bool `toml:"enabled,omitempty" json:"enabled,omitempty" jsonschema:"description=Record changes for undo and redo"`
	Capacity int  `toml:"capacity,omitempty" json:"capacity,omitempty" validate:"gte=0" jsonschema:"minimum=0,description=Maximum number of recorded changes (0 for unlimited)"`
}

// Store configures the shared multi-writer store.
type Store struct {
	Kind StoreKind `toml:"kind,omitempty" json:"kind,omitempty" validate:"omitempty,oneof=file badger memory" jsonschema:"enum=file,enum=badger,enum=memory,description=Shared store implementation"`
	Path string    `toml:"path,omitempty" json:"path,omitempty" jsonschema:"description=Store location relative to the project root"`
}

// Metrics configures Prometheus metric recording.
type Metrics struct {
	Enabled bool `toml:"enabled,omitempty" json:"enabled,omitempty" jsonschema:"description=Record Prometheus metrics"`
}

// Config represents a syncx project configuration (after processing).
type Config struct {
	File        string   `toml:"file" json:"file" validate:"required" jsonschema:"required,description=Snapshot file holding the synced value"`
	Format      Format   `toml:"format,omitempty" json:"format,omitempty" validate:"omitempty,oneof=json yaml toml" jsonschema:"enum=json,enum=yaml,enum=toml,description=Snapshot format (defaults to the file extension)"`
	LockTimeout Duration `toml:"lock_timeout,omitempty" json:"lock_timeout,omitempty" validate:"gte=0" jsonschema:"description=How long a change waits for the lock"`
	History     History  `toml:"history,omitempty" json:"history,omitempty" jsonschema:"description=Undo and redo"`
	Store       Store    `toml:"store,omitempty" json:"store,omitempty" jsonschema:"description=Shared store for multi-writer sync"`
	Metrics     Metrics  `toml:"metrics,omitempty" json:"metrics,omitempty" jsonschema:"description=Metrics recording"`
}

// SchemaConfig is the exported type for JSON schema generation.
// It represents what users can write in .syncx.toml files.
type SchemaConfig struct {
	Includes []string `toml:"includes,omitempty" json:"includes,omitempty" jsonschema:"description=Other config files to include and merge (supports glob patterns)"`
	Config
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		File:        "data.yaml",
		LockTimeout: Duration(DefaultLockTimeout),
		Store:       Store{Kind: StoreFile, Path: DefaultFileStorePath},
	}
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.Format == "" {
		switch ext := filepath.Ext(c.File); ext {
		case ".json":
			c.Format = FormatJSON
		case ".toml":
			c.Format = FormatTOML
		default:
			c.Format = FormatYAML
		}
	}
	if c.LockTimeout == 0 {
		c.LockTimeout = Duration(DefaultLockTimeout)
	}
	if c.Store.Kind == "" {
		c.Store.Kind = StoreFile
	}
	if c.Store.Path == "" {
		switch c.Store.Kind {
		case StoreFile:
			c.Store.Path = DefaultFileStorePath
		case StoreBadger:
			c.Store.Path = DefaultBadgerStorePath
		}
	}
}

// LockTimeoutDuration returns LockTimeout as a time.Duration.
func (c *Config) LockTimeoutDuration() time.Duration {
	return time.Duration(c.LockTimeout)
}

// LoadConfig reads and parses a configuration file from the given path.
// Supports includes directive for composable configuration.
// Applies defaults for missing fields and validates the result.
func LoadConfig(env *util.Env, path string) (Config, error) {
	cfg, err := LoadWithIncludes(env, path)
	if err != nil {
		return Config{}, err
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// SchemaComment is the TOML comment that references the JSON Schema for editor autocomplete.
const SchemaComment = "#:schema https://raw.githubusercontent.com/bolasblack/syncx/refs/heads/master/syncx-config.schema.json\n\n"

// SaveConfig writes the configuration to the given path with schema comment header.
func SaveConfig(env *util.Env, path string, cfg Config) error {
	var buf bytes.Buffer
	buf.WriteString(SchemaComment)
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return util.WriteFileAtomic(env.Fs, path, buf.Bytes(), 0o644)
}
