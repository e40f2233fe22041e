package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/bolasblack/syncx"
	"github.com/bolasblack/syncx/internal/config"
	"github.com/bolasblack/syncx/internal/delta"
	"github.com/bolasblack/syncx/internal/incremental"
	"github.com/bolasblack/syncx/internal/serial"
	"github.com/bolasblack/syncx/internal/sync"
	"github.com/bolasblack/syncx/internal/track"
	"github.com/bolasblack/syncx/internal/util"
	"github.com/bolasblack/syncx/internal/value"
)

// ConfigFilename is the standard configuration file name.
const ConfigFilename = util.ConfigFile

// Common error messages for CLI commands.
const (
	ErrMsgConfigNotFound = "configuration not found: run 'syncx init' first"
)

var (
	// newEnv creates the filesystem environment of a command.
	newEnv = util.NewOsEnv
	// newReadonlyEnv creates the environment of commands that only read.
	newReadonlyEnv = util.NewReadonlyOsEnv
	// isInteractive reports whether prompts can be shown.
	isInteractive = func() bool { return term.IsTerminal(int(os.Stdin.Fd())) }
)

// getCwd returns the current working directory or an error.
func getCwd() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current directory: %w", err)
	}
	return cwd, nil
}

// projectDir returns the --dir flag as an absolute path, or the current
// working directory.
func projectDir(cmd *cobra.Command) (string, error) {
	dir, _ := cmd.Flags().GetString("dir")
	if dir == "" {
		return getCwd()
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", dir, err)
	}
	return abs, nil
}

// loadConfigFromDir loads configuration from the project directory.
// Returns the config and config path, or an error with user-friendly message.
func loadConfigFromDir(env *util.Env, dir string) (*config.Config, string, error) {
	configPath := filepath.Join(dir, ConfigFilename)
	cfg, err := config.LoadConfig(env, configPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, configPath, errors.New(ErrMsgConfigNotFound)
		}
		return nil, configPath, fmt.Errorf("failed to load config: %w", err)
	}
	track.SetMetricsEnabled(cfg.Metrics.Enabled)
	incremental.SetMetricsEnabled(cfg.Metrics.Enabled)
	return &cfg, configPath, nil
}

// openProject opens the shared-store view of the project. The caller
// closes it.
func openProject(cmd *cobra.Command) (*sync.Project, error) {
	dir, err := projectDir(cmd)
	if err != nil {
		return nil, err
	}
	env := newEnv()
	cfg, _, err := loadConfigFromDir(env, dir)
	if err != nil {
		return nil, err
	}
	return sync.Open(env, dir, *cfg, sync.WithLogger(slog.Default()))
}

// openTree loads the project's snapshot file as a tracked tree. Changes
// made through the tree are written back to the file.
func openTree(ctx context.Context, cmd *cobra.Command) (*syncx.Node, error) {
	dir, err := projectDir(cmd)
	if err != nil {
		return nil, err
	}
	env := newEnv()
	cfg, _, err := loadConfigFromDir(env, dir)
	if err != nil {
		return nil, err
	}
	ser, err := serial.ForName(string(cfg.Format))
	if err != nil {
		return nil, err
	}

	path := cfg.File
	if !filepath.IsAbs(path) {
		path = filepath.Join(dir, path)
	}
	return syncx.Sync(ctx, value.NewMap(), path,
		syncx.WithFs(env.Fs),
		syncx.WithSerializer(ser),
		syncx.WithTreeOptions(treeOptions(cfg)...),
	)
}

func treeOptions(cfg *config.Config) []syncx.Option {
	opts := []syncx.Option{
		syncx.WithName(cfg.File),
		syncx.WithLogger(slog.Default()),
		syncx.WithLockTimeout(cfg.LockTimeoutDuration()),
	}
	if cfg.History.Enabled {
		opts = append(opts, syncx.WithHistory(cfg.History.Capacity))
	}
	return opts
}

// parsePath turns a dotted path into keys. Segments addressing a list
// element become indexes; everything else is a name. Segments below a
// missing location are names.
func parsePath(root any, p string) (delta.Path, error) {
	if p == "" || p == "." {
		return nil, nil
	}
	var out delta.Path
	cur := root
	for _, seg := range strings.Split(p, ".") {
		var k delta.Key
		if _, isList := cur.(*value.List); isList {
			i, err := strconv.Atoi(seg)
			if err != nil {
				return nil, fmt.Errorf("%q is not a list index in %q", seg, p)
			}
			k = delta.Index(i)
		} else {
			k = delta.Name(seg)
		}
		out = append(out, k)
		if cur != nil {
			next, err := delta.Resolve(cur, delta.Path{k})
			if err != nil {
				next = nil
			}
			cur = next
		}
	}
	return out, nil
}

// parseValue reads a command-line value as YAML, so "1" is a number,
// "true" a boolean and "[a, b]" a list.
func parseValue(s string) (any, error) {
	if strings.TrimSpace(s) == "" {
		return s, nil
	}
	var v any
	if err := yaml.Unmarshal([]byte(s), &v); err != nil {
		return nil, fmt.Errorf("invalid value %q: %w", s, err)
	}
	return v, nil
}

// parent returns the node holding the last key of p, creating missing
// maps on the way when create is set.
func parent(ctx context.Context, root *syncx.Node, p delta.Path, create bool) (*syncx.Node, error) {
	cur := root
	for _, k := range p[:len(p)-1] {
		next, err := cur.Child(k)
		if err != nil {
			if !create || !errors.Is(err, track.ErrKeyNotFound) || cur.Kind() != value.KindMap {
				return nil, err
			}
			if err := cur.Set(ctx, k.Name(), value.NewMap()); err != nil {
				return nil, err
			}
			if next, err = cur.Child(k); err != nil {
				return nil, err
			}
		}
		cur = next
	}
	return cur, nil
}
