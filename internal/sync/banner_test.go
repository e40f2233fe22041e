package sync

import (
	"bytes"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/bolasblack/syncx/internal/incremental"
)

func TestRenderBanner(t *testing.T) {
	now := time.Now()
	conflict := func(path, local, remote string) incremental.ConflictInfo {
		return incremental.ConflictInfo{Path: path, LocalState: local, RemoteState: remote, DetectedAt: now}
	}

	tests := []struct {
		name        string
		conflicts   []incremental.ConflictInfo
		contains    []string
		notContains []string
	}{
		{
			name:        "single conflict uses singular form",
			conflicts:   []incremental.ConflictInfo{conflict("server.port", "modified", "modified")},
			contains:    []string{"1 sync conflict need", "server.port", "modified on both sides"},
			notContains: []string{"conflicts"},
		},
		{
			name: "three conflicts all shown",
			conflicts: []incremental.ConflictInfo{
				conflict("a", "modified", "deleted"),
				conflict("b", "created", "modified"),
				conflict("c", "deleted", "created"),
			},
			contains:    []string{"3 sync conflicts", "a ", "b ", "c ", "modified locally, deleted remotely"},
			notContains: []string{"...and"},
		},
		{
			name: "overflow beyond three paths",
			conflicts: func() []incremental.ConflictInfo {
				var cs []incremental.ConflictInfo
				for i := 0; i < 10; i++ {
					cs = append(cs, conflict(fmt.Sprintf("items.%d", i), "modified", "modified"))
				}
				return cs
			}(),
			contains:    []string{"10 sync conflicts", "items.0", "items.2", "...and 7 more"},
			notContains: []string{"items.3", "items.9"},
		},
		{
			name:      "root path is named",
			conflicts: []incremental.ConflictInfo{conflict("", "modified", "modified")},
			contains:  []string{"(root)"},
		},
		{
			name:        "non-TTY output has no ANSI codes and names the resolve command",
			conflicts:   []incremental.ConflictInfo{conflict("x", "created", "created")},
			contains:    []string{"syncx resolve"},
			notContains: []string{"\033["},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			RenderBanner(tt.conflicts, &buf)
			out := buf.String()
			for _, s := range tt.contains {
				assert.Contains(t, out, s)
			}
			for _, s := range tt.notContains {
				assert.NotContains(t, out, s)
			}
		})
	}
}

func TestRenderBannerEmpty(t *testing.T) {
	var buf bytes.Buffer
	RenderBanner(nil, &buf)
	RenderBanner([]incremental.ConflictInfo{}, &buf)
	assert.Empty(t, buf.String())
}
