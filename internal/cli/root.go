// Package cli implements the syncx command-line interface.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

var (
	// Version, Commit, and Date are set at build time via ldflags
	Version = "dev"
	Commit  = ""
	Date    = ""
)

var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "syncx",
		Short: "syncx - Track, persist and share changes to structured data",
		Long: `syncx tracks changes to a structured data file (JSON, YAML or TOML).

Edits are recorded as deltas. Several writers can publish their deltas to a
shared store; edits that touch the same location are reported as conflicts
instead of being silently overwritten.`,
		Version:           Version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setupLogging,
	}

	cmd.SetVersionTemplate(fmt.Sprintf("syncx version %s\ncommit: %s\ndate: %s\n", Version, Commit, Date))
	cmd.PersistentFlags().StringP("dir", "C", "", "Project directory (defaults to the current directory)")

	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newShowCmd())
	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newDeleteCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newPutCmd())
	cmd.AddCommand(newPullCmd())
	cmd.AddCommand(newResolveCmd())
	cmd.AddCommand(newConflictsCmd())
	cmd.AddCommand(newCompactCmd())
	cmd.AddCommand(newWatchCmd())
	return cmd
}

// Execute runs the root command until it finishes or the process is
// interrupted.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GetRootCmd returns the root command for documentation generation.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

// setupLogging installs a text handler on stderr. SYNCX_DEBUG enables
// debug output.
func setupLogging(cmd *cobra.Command, args []string) error {
	level := slog.LevelWarn
	if os.Getenv("SYNCX_DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
	return nil
}
