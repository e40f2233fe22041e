package sync

import (
	"context"
	"fmt"
	"io"

	"github.com/bolasblack/syncx/internal/delta"
	"github.com/bolasblack/syncx/internal/incremental"
)

// ResolvePromptFunc prompts the user for a resolution choice.
// Returns the choice or an error (e.g. user cancelled with Ctrl+C).
type ResolvePromptFunc func(conflict incremental.ConflictInfo, index, total int) (ResolveChoice, error)

// ResolveResult holds the summary of a resolution session.
type ResolveResult struct {
	Resolved int
	Skipped  int
	// Applied is set when the resolved object was published.
	Applied bool
}

// ResolveAllInteractive walks through the conflicts between the unpublished
// local edits and the store, prompting for each. When every conflict is
// resolved the combined object is written to the snapshot file and
// published. Skipping any conflict, or cancelling a prompt, leaves the file
// and the store untouched.
func (p *Project) ResolveAllInteractive(ctx context.Context, prompt ResolvePromptFunc, w io.Writer) (*ResolveResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	c, err := p.store.Read(ctx)
	if err != nil {
		return nil, err
	}
	acc, err := c.Accumulated()
	if err != nil {
		return nil, err
	}
	base, local, err := p.baseAndLocal(ctx)
	if err != nil {
		return nil, err
	}

	pending := delta.Diff(base, local, nil)
	remote := delta.Diff(base, acc, nil)
	conflicts := incremental.Conflicts(pending, remote, p.now())
	result := &ResolveResult{}
	if len(conflicts) == 0 {
		_, _ = fmt.Fprintln(w, "No conflicts.")
		return result, p.recordConflicts(nil)
	}

	total := len(conflicts)
	choices := make([]ResolveChoice, total)
	for i, conflict := range conflicts {
		_, _ = fmt.Fprintf(w, "[%d/%d] %s\n", i+1, total, DisplayPath(conflict.Path))
		_, _ = fmt.Fprintf(w, "  Local (this writer):  %s\n", conflict.LocalState)
		_, _ = fmt.Fprintf(w, "  Remote (store):       %s\n", conflict.RemoteState)

		choice, err := prompt(conflict, i, total)
		if err != nil {
			_, _ = fmt.Fprintf(w, "\nAborted. Nothing was written.\n")
			return result, nil
		}
		choices[i] = choice
		switch choice {
		case ResolveChoiceLocal:
			_, _ = fmt.Fprintln(w, "  Resolved: local overwrites remote")
			result.Resolved++
		case ResolveChoiceRemote:
			_, _ = fmt.Fprintln(w, "  Resolved: remote overwrites local")
			result.Resolved++
		default:
			result.Skipped++
		}
		_, _ = fmt.Fprintln(w)
	}

	if result.Skipped > 0 {
		_, _ = fmt.Fprintf(w, "Done: %d resolved, %d skipped. Nothing was written.\n", result.Resolved, result.Skipped)
		return result, nil
	}

	merged, err := applyChoices(base, pending, remote, conflicts, choices)
	if err != nil {
		return result, err
	}

	// The writer now stands on the store's latest delta with the resolved
	// object as its local copy, so the push appends without a conflict check.
	if err := p.file.Put(ctx, merged, nil); err != nil {
		return result, err
	}
	if err := p.advance(c.Latest, acc); err != nil {
		return result, err
	}
	if _, err := p.push(ctx); err != nil {
		return result, err
	}
	result.Applied = true

	_, _ = fmt.Fprintf(w, "Done: %d resolved, %d skipped.\n", result.Resolved, result.Skipped)
	return result, nil
}

// FixedChoice returns a prompt that answers every conflict with choice.
func FixedChoice(choice ResolveChoice) ResolvePromptFunc {
	return func(incremental.ConflictInfo, int, int) (ResolveChoice, error) {
		return choice, nil
	}
}
