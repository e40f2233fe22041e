// Package util provides helpers shared by the storage, state and CLI layers.
package util

// Project-level paths relative to the project root.
const (
	StateDir   = ".syncx"
	ConfigFile = ".syncx.toml"
)
