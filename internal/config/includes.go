package config

import (
	"fmt"
	"path/filepath"
	"sort"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/afero"

	"github.com/bolasblack/syncx/internal/util"
)

// rawConfig is the on-disk shape of a config file.
type rawConfig struct {
	Includes    []string  `toml:"includes,omitempty"`
	File        string    `toml:"file"`
	Format      Format    `toml:"format,omitempty"`
	LockTimeout *Duration `toml:"lock_timeout,omitempty"`
	History     *History  `toml:"history,omitempty"`
	Store       Store     `toml:"store,omitempty"`
	Metrics     *Metrics  `toml:"metrics,omitempty"`
}

// LoadWithIncludes loads config with includes support, without applying
// defaults. Includes are merged in the order they are listed and the
// including file is merged last.
func LoadWithIncludes(env *util.Env, path string) (Config, error) {
	return loadWithIncludes(env, path, make(map[string]bool))
}

func loadWithIncludes(env *util.Env, path string, visited map[string]bool) (Config, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to resolve path %s: %w", path, err)
	}
	if visited[absPath] {
		return Config{}, fmt.Errorf("circular include detected: %s", path)
	}
	visited[absPath] = true

	data, err := afero.ReadFile(env.Fs, path)
	if err != nil {
		return Config{}, err
	}

	var raw rawConfig
	if err := toml.Unmarshal(data, &raw); err != nil {
		return Config{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	baseDir := filepath.Dir(absPath)
	var merged Config
	for _, includePattern := range raw.Includes {
		resolvedPattern := includePattern
		if !filepath.IsAbs(includePattern) {
			resolvedPattern = filepath.Join(baseDir, includePattern)
		}

		matchedFiles, err := expandGlob(env.Fs, resolvedPattern)
		if err != nil {
			return Config{}, fmt.Errorf("failed to expand glob %s: %w", includePattern, err)
		}

		for _, includePath := range matchedFiles {
			included, err := loadWithIncludes(env, includePath, visited)
			if err != nil {
				return Config{}, fmt.Errorf("failed to load include %s: %w", includePath, err)
			}
			merged = mergeConfigs(merged, included)
		}
	}

	return mergeRaw(merged, raw), nil
}

// isGlobPattern checks if the pattern contains glob special characters.
func isGlobPattern(pattern string) bool {
	for _, c := range pattern {
		switch c {
		case '*', '?', '[':
			return true
		}
	}
	return false
}

// expandGlob expands a glob pattern and returns sorted matched files.
// Literal paths must exist; a glob matching nothing is fine.
func expandGlob(fs afero.Fs, pattern string) ([]string, error) {
	if !isGlobPattern(pattern) {
		if _, err := fs.Stat(pattern); err != nil {
			return nil, err
		}
		return []string{pattern}, nil
	}

	matches, err := afero.Glob(fs, pattern)
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}

// mergeConfigs merges overlay into base. Non-empty overlay fields win;
// booleans can only be switched on by an overlay.
func mergeConfigs(base, overlay Config) Config {
	result := base
	if overlay.File != "" {
		result.File = overlay.File
	}
	if overlay.Format != "" {
		result.Format = overlay.Format
	}
	if overlay.LockTimeout != 0 {
		result.LockTimeout = overlay.LockTimeout
	}
	if overlay.History.Enabled {
		result.History.Enabled = true
	}
	if overlay.History.Capacity != 0 {
		result.History.Capacity = overlay.History.Capacity
	}
	if overlay.Store.Kind != "" {
		result.Store.Kind = overlay.Store.Kind
	}
	if overlay.Store.Path != "" {
		result.Store.Path = overlay.Store.Path
	}
	if overlay.Metrics.Enabled {
		result.Metrics.Enabled = true
	}
	return result
}

// mergeRaw merges a parsed file on top of base. Unlike mergeConfigs, a
// table present in the file replaces the included one, so a file can
// switch a boolean back off.
func mergeRaw(base Config, raw rawConfig) Config {
	result := mergeConfigs(base, Config{File: raw.File, Format: raw.Format, Store: raw.Store})
	if raw.LockTimeout != nil {
		result.LockTimeout = *raw.LockTimeout
	}
	if raw.History != nil {
		result.History = *raw.History
	}
	if raw.Metrics != nil {
		result.Metrics = *raw.Metrics
	}
	return result
}
