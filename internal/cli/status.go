package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bolasblack/syncx/internal/incremental"
	"github.com/bolasblack/syncx/internal/sync"
)

// statusMaxOps is the maximum number of pending operations listed.
const statusMaxOps = 10

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show how the working copy relates to the shared store",
		Args:  cobra.NoArgs,
		RunE:  runStatus,
	}
}

func runStatus(cmd *cobra.Command, args []string) error {
	p, err := openProject(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = p.Close() }()

	st, err := p.Status(cmd.Context())
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(w, "Writer:  %s\n", st.WriterID)
	_, _ = fmt.Fprintf(w, "File:    %s\n", p.File().Path())
	_, _ = fmt.Fprintf(w, "Store:   %s (%d queued)\n", p.Config.Store.Kind, st.Queued)
	_, _ = fmt.Fprintf(w, "Seen:    %s\n", signatureOrNone(st.Latest))
	_, _ = fmt.Fprintf(w, "Latest:  %s\n", signatureOrNone(st.StoreLatest))
	_, _ = fmt.Fprintln(w)

	if st.Behind() {
		_, _ = fmt.Fprintln(w, "The store has changes this writer has not pulled. Run 'syncx pull'.")
	} else {
		_, _ = fmt.Fprintln(w, "Up to date with the store.")
	}

	if len(st.Pending) == 0 {
		_, _ = fmt.Fprintln(w, "No unpublished changes.")
	} else {
		_, _ = fmt.Fprintf(w, "%d unpublished change(s):\n", len(st.Pending))
		for i, op := range st.Pending {
			if i == statusMaxOps {
				_, _ = fmt.Fprintf(w, "  ...and %d more\n", len(st.Pending)-statusMaxOps)
				break
			}
			_, _ = fmt.Fprintf(w, "  %s\n", op)
		}
		_, _ = fmt.Fprintln(w, "Run 'syncx put' to publish them.")
	}

	conflicts, err := p.Conflicts()
	if err != nil {
		_, _ = fmt.Fprintf(w, "Warning: failed to read conflict cache: %v\n", err)
		return nil
	}
	sync.RenderBanner(conflicts, w)
	return nil
}

func signatureOrNone(sig *incremental.Signature) string {
	if sig == nil {
		return "(none)"
	}
	return sig.String()
}
