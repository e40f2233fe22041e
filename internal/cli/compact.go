package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCompactCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compact",
		Short: "Fold the shared store's delta queue into its base object",
		Long: `Fold the deltas queued in the shared store into its base object.

Writers that have not pulled since the last queued delta can no longer
replay the exact remote changes and fall back to comparing objects.`,
		Args: cobra.NoArgs,
		RunE: runCompact,
	}
}

func runCompact(cmd *cobra.Command, args []string) error {
	p, err := openProject(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = p.Close() }()

	st, err := p.Status(cmd.Context())
	if err != nil {
		return err
	}
	if err := p.Compact(cmd.Context()); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "✓ Compacted %d queued delta(s)\n", st.Queued)
	return nil
}
