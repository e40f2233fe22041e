package cli

import (
	"errors"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/bolasblack/syncx/internal/incremental"
	"github.com/bolasblack/syncx/internal/sync"
)

func newResolveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve conflicts between local edits and the shared store",
		Long: `Walk through the locations changed both locally and in the shared store and
choose which side wins for each. The result is written to the tracked file
and published. Skipping any conflict leaves everything untouched.`,
		Args: cobra.NoArgs,
		RunE: runResolve,
	}
	cmd.Flags().String("keep", "", "Resolve every conflict without prompting: local or remote")
	return cmd
}

func runResolve(cmd *cobra.Command, args []string) error {
	prompt := huhResolvePrompt
	if keep, _ := cmd.Flags().GetString("keep"); keep != "" {
		choice, err := sync.ParseResolveChoice(keep)
		if err != nil {
			return err
		}
		prompt = sync.FixedChoice(choice)
	} else if !isInteractive() {
		return errors.New("--keep is required when not running in a terminal")
	}

	p, err := openProject(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = p.Close() }()

	_, err = p.ResolveAllInteractive(cmd.Context(), prompt, cmd.OutOrStdout())
	return err
}

// huhResolvePrompt uses charmbracelet/huh for interactive conflict resolution.
func huhResolvePrompt(conflict incremental.ConflictInfo, index, total int) (sync.ResolveChoice, error) {
	var choice string
	err := huh.NewSelect[string]().
		Title("How to resolve?").
		Options(
			huh.NewOption("Local overwrites remote", string(sync.ResolveChoiceLocal)),
			huh.NewOption("Remote overwrites local", string(sync.ResolveChoiceRemote)),
			huh.NewOption("Skip", string(sync.ResolveChoiceSkip)),
		).
		Value(&choice).
		Run()
	if err != nil {
		return "", err
	}
	return sync.ResolveChoice(choice), nil
}
