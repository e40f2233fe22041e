package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bolasblack/syncx/internal/incremental"
	"github.com/bolasblack/syncx/internal/sync"
)

func newPutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "put",
		Short: "Publish local edits to the shared store",
		Long: `Publish the edits made to the tracked file since the last put or pull.

If another writer changed the same locations in the meantime the edits are
rejected and the conflicts are listed. In a terminal you are then asked how
to resolve each one; otherwise run 'syncx resolve'.`,
		Args: cobra.NoArgs,
		RunE: runPut,
	}
	cmd.Flags().Bool("no-prompt", false, "Do not offer to resolve conflicts interactively")
	return cmd
}

func runPut(cmd *cobra.Command, args []string) error {
	p, err := openProject(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = p.Close() }()

	w := cmd.OutOrStdout()
	res, err := p.Push(cmd.Context())
	if err == nil {
		if res.Ops == 0 {
			_, _ = fmt.Fprintln(w, "Nothing to publish.")
		} else {
			_, _ = fmt.Fprintf(w, "✓ Published %d change(s)\n", res.Ops)
		}
		return nil
	}

	var conflictErr *incremental.ConflictError
	if !errors.As(err, &conflictErr) {
		return err
	}
	sync.RenderBanner(conflictErr.Conflicts, cmd.ErrOrStderr())

	noPrompt, _ := cmd.Flags().GetBool("no-prompt")
	if noPrompt || !isInteractive() {
		return err
	}
	_, _ = fmt.Fprintln(w)
	if _, err := p.ResolveAllInteractive(cmd.Context(), huhResolvePrompt, w); err != nil {
		return err
	}
	return nil
}
