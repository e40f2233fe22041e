package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bolasblack/syncx/internal/incremental"
	"github.com/bolasblack/syncx/internal/sync"
)

func newConflictsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "conflicts",
		Short: "List the conflicts found by the last put or pull",
		Args:  cobra.NoArgs,
		RunE:  runConflicts,
	}
	cmd.Flags().Bool("json", false, "Print the conflicts as JSON")
	return cmd
}

func runConflicts(cmd *cobra.Command, args []string) error {
	dir, err := projectDir(cmd)
	if err != nil {
		return err
	}
	cache, err := incremental.ReadCache(newReadonlyEnv().Fs, dir)
	if err != nil {
		return err
	}
	var conflicts []incremental.ConflictInfo
	if cache != nil {
		conflicts = cache.Conflicts
	}

	w := cmd.OutOrStdout()
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		if conflicts == nil {
			conflicts = []incremental.ConflictInfo{}
		}
		data, err := json.MarshalIndent(conflicts, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode conflicts: %w", err)
		}
		_, _ = fmt.Fprintln(w, string(data))
		return nil
	}

	if len(conflicts) == 0 {
		_, _ = fmt.Fprintln(w, "No sync conflicts.")
		return nil
	}
	_, _ = fmt.Fprintf(w, "%d sync conflicts found (as of %s):\n\n", len(conflicts), cache.UpdatedAt.Format("2006-01-02 15:04:05"))
	for _, c := range conflicts {
		_, _ = fmt.Fprintf(w, "  %-30s local: %-9s remote: %s\n", sync.DisplayPath(c.Path), c.LocalState, c.RemoteState)
	}
	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintln(w, "Run 'syncx resolve' to resolve.")
	return nil
}
