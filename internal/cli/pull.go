package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bolasblack/syncx/internal/incremental"
	"github.com/bolasblack/syncx/internal/sync"
)

func newPullCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pull",
		Short: "Bring changes from the shared store into the tracked file",
		Long: `Bring the changes other writers published into the tracked file.
Unpublished local edits are kept unless they touch the same locations.`,
		Args: cobra.NoArgs,
		RunE: runPull,
	}
}

func runPull(cmd *cobra.Command, args []string) error {
	p, err := openProject(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = p.Close() }()

	res, err := p.Pull(cmd.Context())
	if err != nil {
		var conflictErr *incremental.ConflictError
		if errors.As(err, &conflictErr) {
			sync.RenderBanner(conflictErr.Conflicts, cmd.ErrOrStderr())
		}
		return err
	}

	w := cmd.OutOrStdout()
	if res.Remote == 0 {
		_, _ = fmt.Fprintln(w, "Already up to date.")
	} else {
		_, _ = fmt.Fprintf(w, "✓ Pulled %d change(s)\n", res.Remote)
	}
	if res.Pending > 0 {
		_, _ = fmt.Fprintf(w, "%d unpublished change(s) kept. Run 'syncx put' to publish them.\n", res.Pending)
	}
	return nil
}
