package cli

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/bolasblack/syncx/internal/backend"
	"github.com/bolasblack/syncx/internal/incremental"
	"github.com/bolasblack/syncx/internal/sync"
)

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Publish edits as they are saved and pull remote changes periodically",
		Long: `Watch the tracked file. Every saved edit is published to the shared store,
and changes from other writers are pulled at a fixed interval. Conflicts are
reported and left for 'syncx resolve'. Stop with Ctrl+C.`,
		Args: cobra.NoArgs,
		RunE: runWatch,
	}
	cmd.Flags().Duration("interval", sync.PeriodicRefreshInterval, "How often to pull remote changes")
	cmd.Flags().Duration("debounce", backend.DefaultDebounce, "Quiet period after a file event before publishing")
	return cmd
}

func runWatch(cmd *cobra.Command, args []string) error {
	p, err := openProject(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = p.Close() }()

	ctx := cmd.Context()
	interval, _ := cmd.Flags().GetDuration("interval")
	debounce, _ := cmd.Flags().GetDuration("debounce")
	w := cmd.OutOrStdout()

	// Catch up before watching so the first event diffs against the store.
	if _, err := p.Pull(ctx); err != nil {
		reportExchangeError(cmd, err)
	}

	stop := p.StartPeriodicRefresh(ctx, interval)
	defer func() {
		sync.RenderBanner(stop(), cmd.ErrOrStderr())
	}()

	_, _ = fmt.Fprintf(w, "Watching %s (pull every %s)\n", p.File().Path(), interval)
	err = backend.Watch(ctx, p.File().Path(), backend.WatchOptions{Debounce: debounce, Logger: slog.Default()}, func() {
		res, err := p.Push(ctx)
		if err != nil {
			reportExchangeError(cmd, err)
			return
		}
		if res.Ops > 0 {
			_, _ = fmt.Fprintf(w, "✓ Published %d change(s)\n", res.Ops)
		}
	})
	return err
}

// reportExchangeError prints a conflict banner for conflicts and logs
// anything else; watch keeps running either way.
func reportExchangeError(cmd *cobra.Command, err error) {
	var conflictErr *incremental.ConflictError
	if errors.As(err, &conflictErr) {
		sync.RenderBanner(conflictErr.Conflicts, cmd.ErrOrStderr())
		return
	}
	slog.Error("sync failed", "error", err)
}
