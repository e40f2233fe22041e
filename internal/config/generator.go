// generator.go provides config templates for syncx init.

package config

import (
	"bytes"
	"fmt"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

// Template represents a configuration template type.
type Template string

const (
	// TemplateLocal tracks a single-writer snapshot file with undo history.
	TemplateLocal Template = "local"
	// TemplateShared publishes deltas to a shared store for several writers.
	TemplateShared Template = "shared"
)

// TemplateConfig holds a Config and its associated comment.
type TemplateConfig struct {
	Config       Config
	StoreComment string // Comment to insert before the [store] table
}

// GenerateConfig returns the TOML content for the given template, with
// file as the snapshot file.
func GenerateConfig(template Template, file string) (string, error) {
	tc := getTemplateConfig(template)
	if file != "" {
		tc.Config.File = file
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(tc.Config); err != nil {
		return "", fmt.Errorf("encode template: %w", err)
	}

	content := buf.String()
	if tc.StoreComment != "" {
		content = insertComment(content, "[store]", tc.StoreComment)
	}
	return SchemaComment + content, nil
}

func getTemplateConfig(template Template) TemplateConfig {
	switch template {
	case TemplateShared:
		return TemplateConfig{
			Config: Config{
				File:    "data.yaml",
				Store:   Store{Kind: StoreBadger, Path: DefaultBadgerStorePath},
				Metrics: Metrics{Enabled: true},
			},
			StoreComment: "every writer must point at the same store",
		}
	default:
		return TemplateConfig{
			Config: Config{
				File:    "data.yaml",
				History: History{Enabled: true, Capacity: 100},
			},
		}
	}
}

// insertComment inserts a comment line before the first line equal to header.
func insertComment(content, header, comment string) string {
	lines := strings.Split(content, "\n")
	result := make([]string, 0, len(lines)+1)
	inserted := false
	for _, line := range lines {
		if !inserted && strings.TrimSpace(line) == header {
			result = append(result, "# "+comment)
			inserted = true
		}
		result = append(result, line)
	}
	return strings.Join(result, "\n")
}
