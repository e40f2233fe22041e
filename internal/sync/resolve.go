package sync

import (
	"fmt"

	"github.com/bolasblack/syncx/internal/delta"
	"github.com/bolasblack/syncx/internal/incremental"
	"github.com/bolasblack/syncx/internal/value"
)

// ResolveChoice represents the user's resolution choice.
type ResolveChoice string

const (
	ResolveChoiceLocal  ResolveChoice = "local"
	ResolveChoiceRemote ResolveChoice = "remote"
	ResolveChoiceSkip   ResolveChoice = "skip"
)

// ParseResolveChoice parses a choice name.
func ParseResolveChoice(s string) (ResolveChoice, error) {
	switch c := ResolveChoice(s); c {
	case ResolveChoiceLocal, ResolveChoiceRemote, ResolveChoiceSkip:
		return c, nil
	}
	return "", fmt.Errorf("invalid choice %q: must be local, remote or skip", s)
}

// applyChoices rebuilds the shared object from base. Remote operations are
// applied first, minus those touching a location resolved in favor of the
// local side; local operations follow, minus those touching a location
// resolved in favor of the remote side.
func applyChoices(base any, local, remote delta.Delta, conflicts []incremental.ConflictInfo, choices []ResolveChoice) (any, error) {
	var keepLocal, keepRemote []delta.Path
	for i, c := range conflicts {
		switch choices[i] {
		case ResolveChoiceLocal:
			keepLocal = append(keepLocal, c.Location)
		case ResolveChoiceRemote:
			keepRemote = append(keepRemote, c.Location)
		default:
			return nil, fmt.Errorf("conflict at %s is unresolved", DisplayPath(c.Path))
		}
	}

	out, err := delta.Patch(withoutOverlaps(remote, keepLocal), value.Clone(base))
	if err != nil {
		return nil, fmt.Errorf("failed to apply remote changes: %w", err)
	}
	out, err = delta.Patch(withoutOverlaps(local, keepRemote), out)
	if err != nil {
		return nil, fmt.Errorf("failed to apply local changes: %w", err)
	}
	return out, nil
}

// withoutOverlaps drops the operations of d whose target overlaps any of
// paths.
func withoutOverlaps(d delta.Delta, paths []delta.Path) delta.Delta {
	out := make(delta.Delta, 0, len(d))
	for _, op := range d {
		target := op.Target()
		overlaps := false
		for _, p := range paths {
			if target.Overlaps(p) {
				overlaps = true
				break
			}
		}
		if !overlaps {
			out = append(out, op)
		}
	}
	return out
}
