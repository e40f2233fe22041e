package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bolasblack/syncx"
	"github.com/bolasblack/syncx/internal/delta"
	"github.com/bolasblack/syncx/internal/value"
)

func newSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <path> <value>",
		Short: "Set the value at a dotted path",
		Long: `Set the value at a dotted path of the tracked file. The value is read as
YAML, so "8080" is a number, "true" a boolean and "[a, b]" a list. Missing
maps on the way are created. Index len of a list appends.`,
		Args: cobra.ExactArgs(2),
		RunE: runSet,
	}
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <path>",
		Short: "Delete the value at a dotted path",
		Args:  cobra.ExactArgs(1),
		RunE:  runDelete,
	}
}

func runSet(cmd *cobra.Command, args []string) error {
	v, err := parseValue(args[1])
	if err != nil {
		return err
	}
	return editAt(cmd, args[0], func(ctx context.Context, n *syncx.Node, k delta.Key) error {
		switch n.Kind() {
		case value.KindMap:
			return n.Set(ctx, k.Name(), v)
		case value.KindRecord:
			return n.SetField(ctx, k.Name(), v)
		case value.KindList:
			if k.Index() == n.Len() {
				return n.Append(ctx, v)
			}
			return n.SetIndex(ctx, k.Index(), v)
		}
		return fmt.Errorf("cannot set %s inside a %s", args[0], n.Kind())
	}, true)
}

func runDelete(cmd *cobra.Command, args []string) error {
	return editAt(cmd, args[0], func(ctx context.Context, n *syncx.Node, k delta.Key) error {
		switch n.Kind() {
		case value.KindMap:
			return n.Delete(ctx, k.Name())
		case value.KindRecord:
			return n.DeleteField(ctx, k.Name())
		case value.KindList:
			return n.DeleteIndex(ctx, k.Index())
		}
		return fmt.Errorf("cannot delete %s inside a %s", args[0], n.Kind())
	}, false)
}

// editAt runs edit on the node holding the last key of path, inside one
// transaction so the file is written once.
func editAt(cmd *cobra.Command, path string, edit func(ctx context.Context, n *syncx.Node, k delta.Key) error, create bool) error {
	ctx := cmd.Context()
	root, err := openTree(ctx, cmd)
	if err != nil {
		return err
	}
	p, err := parsePath(root.Value(), path)
	if err != nil {
		return err
	}
	if len(p) == 0 {
		return errors.New("a path is required")
	}

	var changes int
	root.Manager().SetObserver(func(cd syncx.ChangeDetails) {
		if len(cd.Delta) > 0 {
			changes++
		}
	})
	err = syncx.Transaction(ctx, root, func(ctx context.Context) error {
		n, err := parent(ctx, root, p, create)
		if err != nil {
			return err
		}
		return edit(ctx, n, p[len(p)-1])
	})
	if err != nil {
		return err
	}
	if changes == 0 {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No change.")
		return nil
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "✓ Updated %s\n", p)
	return nil
}
