package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/bolasblack/syncx/internal/backend"
	"github.com/bolasblack/syncx/internal/delta"
	"github.com/bolasblack/syncx/internal/serial"
)

func newShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show [path]",
		Short: "Print the tracked value or a part of it",
		Long: `Print the tracked value, or the part of it at a dotted path such as
"servers.0.port". List elements are addressed by index.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runShow,
	}
	cmd.Flags().StringP("output", "o", "yaml", "Output format: json, yaml or toml")
	return cmd
}

func runShow(cmd *cobra.Command, args []string) error {
	dir, err := projectDir(cmd)
	if err != nil {
		return err
	}
	env := newReadonlyEnv()
	cfg, _, err := loadConfigFromDir(env, dir)
	if err != nil {
		return err
	}
	in, err := serial.ForName(string(cfg.Format))
	if err != nil {
		return err
	}
	outName, _ := cmd.Flags().GetString("output")
	out, err := serial.ForName(outName)
	if err != nil {
		return err
	}

	path := cfg.File
	if !filepath.IsAbs(path) {
		path = filepath.Join(dir, path)
	}
	v, err := backend.NewFile(env.Fs, path, backend.WithSerializer(in)).Get(cmd.Context())
	if err != nil {
		return err
	}

	if len(args) == 1 {
		p, err := parsePath(v, args[0])
		if err != nil {
			return err
		}
		if v, err = delta.Resolve(v, p); err != nil {
			return err
		}
	}

	data, err := out.Marshal(v)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprint(cmd.OutOrStdout(), string(data))
	if len(data) > 0 && data[len(data)-1] != '\n' {
		_, _ = fmt.Fprintln(cmd.OutOrStdout())
	}
	return nil
}
