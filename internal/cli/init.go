package cli

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/bolasblack/syncx/internal/config"
	"github.com/bolasblack/syncx/internal/util"
)

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize syncx configuration in the project directory",
		Long: `Initialize syncx by creating a .syncx.toml configuration file in the project directory.

Without --template the template is chosen interactively.`,
		Args: cobra.NoArgs,
		RunE: runInit,
	}
	cmd.Flags().String("template", "", "Template to use: local or shared")
	cmd.Flags().String("file", "", "Snapshot file to track (defaults to data.yaml)")
	return cmd
}

func runInit(cmd *cobra.Command, args []string) error {
	dir, err := projectDir(cmd)
	if err != nil {
		return err
	}
	env := newEnv()
	configPath := filepath.Join(dir, ConfigFilename)

	exists, err := util.Exists(env.Fs, configPath)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("configuration file already exists: %s", configPath)
	}

	selectedTemplate, _ := cmd.Flags().GetString("template")
	if selectedTemplate == "" {
		if !isInteractive() {
			return errors.New("--template is required when not running in a terminal")
		}
		err = huh.NewSelect[string]().
			Title("Select a template").
			Options(
				huh.NewOption("Local - single writer with undo history", string(config.TemplateLocal)),
				huh.NewOption("Shared - several writers publishing to a shared store", string(config.TemplateShared)),
			).
			Value(&selectedTemplate).
			Run()
		if err != nil {
			return fmt.Errorf("template selection cancelled: %w", err)
		}
	}

	template := config.Template(selectedTemplate)
	if template != config.TemplateLocal && template != config.TemplateShared {
		return fmt.Errorf("unknown template %q: must be local or shared", selectedTemplate)
	}

	file, _ := cmd.Flags().GetString("file")
	content, err := config.GenerateConfig(template, file)
	if err != nil {
		return fmt.Errorf("failed to generate configuration: %w", err)
	}

	if err := util.WriteFileAtomic(env.Fs, configPath, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write configuration: %w", err)
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "✓ Created %s\n", configPath)
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Edit this file to customize your settings.")
	return nil
}
