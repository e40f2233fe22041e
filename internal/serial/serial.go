// Package serial renders tracked values to and from file formats.
package serial

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/bolasblack/syncx/internal/value"
)

// Serializer converts between values and one file format. Unmarshal
// returns tracked-model values (see value.From); an empty document
// unmarshals to nil.
type Serializer interface {
	Extension() string
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte) (any, error)
}

// Format names accepted by ForName.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
	FormatTOML = "toml"
)

// JSON is the compact JSON format.
type JSON struct{}

func (JSON) Extension() string { return "json" }

func (JSON) Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(value.Export(v)); err != nil {
		return nil, fmt.Errorf("failed to encode json: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

func (JSON) Unmarshal(data []byte) (any, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode json: %w", err)
	}
	return value.From(out)
}

// YAML is block-style YAML with two-space indentation.
type YAML struct{}

func (YAML) Extension() string { return "yaml" }

func (YAML) Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(value.Export(v)); err != nil {
		return nil, fmt.Errorf("failed to encode yaml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode yaml: %w", err)
	}
	return buf.Bytes(), nil
}

func (YAML) Unmarshal(data []byte) (any, error) {
	var out any
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to decode yaml: %w", err)
	}
	return value.From(out)
}

// TOML requires a mapping at the root.
type TOML struct{}

func (TOML) Extension() string { return "toml" }

func (TOML) Marshal(v any) ([]byte, error) {
	plain := value.Export(v)
	if _, ok := plain.(map[string]any); !ok {
		return nil, fmt.Errorf("failed to encode toml: root must be a mapping, got %T", plain)
	}
	data, err := toml.Marshal(plain)
	if err != nil {
		return nil, fmt.Errorf("failed to encode toml: %w", err)
	}
	return data, nil
}

func (TOML) Unmarshal(data []byte) (any, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	var out map[string]any
	if err := toml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to decode toml: %w", err)
	}
	return value.From(out)
}

// ForName returns the serializer for a format name or file extension,
// without the leading dot. The empty name selects YAML.
func ForName(name string) (Serializer, error) {
	switch strings.ToLower(name) {
	case FormatJSON:
		return JSON{}, nil
	case FormatYAML, "yml", "":
		return YAML{}, nil
	case FormatTOML:
		return TOML{}, nil
	}
	return nil, fmt.Errorf("unsupported format %q", name)
}

// ForPath picks the serializer from the extension of path, falling back
// to YAML for unknown or missing extensions. It also reports whether the
// extension was recognized.
func ForPath(path string) (Serializer, bool) {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	s, err := ForName(ext)
	if err != nil || ext == "" {
		return YAML{}, false
	}
	return s, true
}
