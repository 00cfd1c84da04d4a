package commands

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/henderiw/nestedset/pkg/entry"
	"github.com/henderiw/nestedset/pkg/nestedset"
	"github.com/spf13/cobra"
)

// parentRef turns the --parent flag into a parent reference; empty means root.
func parentRef(parent string) *string {
	if parent == "" {
		return nil
	}
	return nestedset.Ref(parent)
}

func newCreateCommand(a *app) *cobra.Command {
	var id, parent, name, lbls string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a node as the last child of --parent, or as the last root",
		Args:  cobra.NoArgs,
	}
	cmd.RunE = a.run(func(cmd *cobra.Command, _ []string) error {
		e, err := entry.Parse(name, lbls)
		if err != nil {
			return err
		}
		if id == "" {
			id = uuid.NewString()
		}
		n, err := a.svc.CreateNode(cmd.Context(), id, parentRef(parent), e)
		if err != nil {
			return err
		}
		return renderNodes(cmd.OutOrStdout(), formatTable, []Node{n})
	})

	cmd.Flags().StringVar(&id, "id", "", "node id (default: a random UUID)")
	cmd.Flags().StringVar(&parent, "parent", "", "parent node id")
	cmd.Flags().StringVar(&name, "name", "", "node name")
	cmd.Flags().StringVar(&lbls, "labels", "", "comma separated key=value labels")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

func newDeleteCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a node together with its whole subtree",
		Args:  cobra.ExactArgs(1),
	}
	cmd.RunE = a.run(func(cmd *cobra.Command, args []string) error {
		if err := a.svc.DeleteNode(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
		return nil
	})
	return cmd
}

func newMoveCommand(a *app) *cobra.Command {
	var parent string

	cmd := &cobra.Command{
		Use:   "move ID",
		Short: "Move a node and its subtree below --parent, or make it a root",
		Args:  cobra.ExactArgs(1),
	}
	cmd.RunE = a.run(func(cmd *cobra.Command, args []string) error {
		n, err := a.svc.UpdateNode(cmd.Context(), args[0], parentRef(parent))
		if err != nil {
			return err
		}
		return renderNodes(cmd.OutOrStdout(), formatTable, []Node{n})
	})

	cmd.Flags().StringVar(&parent, "parent", "", "new parent node id (default: make it a root)")
	return cmd
}

func newSiblingMoveCommand(a *app, use, short string, dir nestedset.Direction) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use + " ID",
		Short: short,
		Args:  cobra.ExactArgs(1),
	}
	cmd.RunE = a.run(func(cmd *cobra.Command, args []string) error {
		n, err := a.svc.Move(cmd.Context(), args[0], dir)
		if err != nil {
			return err
		}
		return renderNodes(cmd.OutOrStdout(), formatTable, []Node{n})
	})
	return cmd
}

func newMoveUpCommand(a *app) *cobra.Command {
	return newSiblingMoveCommand(a, "move-up", "Swap a node with its previous sibling", nestedset.Up)
}

func newMoveDownCommand(a *app) *cobra.Command {
	return newSiblingMoveCommand(a, "move-down", "Swap a node with its next sibling", nestedset.Down)
}

func newRenameCommand(a *app) *cobra.Command {
	var name, lbls string

	cmd := &cobra.Command{
		Use:   "rename ID",
		Short: "Replace the name and labels of a node",
		Args:  cobra.ExactArgs(1),
	}
	cmd.RunE = a.run(func(cmd *cobra.Command, args []string) error {
		e, err := entry.Parse(name, lbls)
		if err != nil {
			return err
		}
		current, err := a.svc.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if current.Payload.Equal(e) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s unchanged\n", args[0])
			return nil
		}
		n, err := a.svc.UpdatePayload(cmd.Context(), args[0], e)
		if err != nil {
			return err
		}
		a.logger.Info("renamed node", "id", args[0], "from", current.Payload.String(), "to", e.String())
		return renderNodes(cmd.OutOrStdout(), formatTable, []Node{n})
	})

	cmd.Flags().StringVar(&name, "name", "", "new node name")
	cmd.Flags().StringVar(&lbls, "labels", "", "comma separated key=value labels")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newRebuildCommand(a *app) *cobra.Command {
	var root string

	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Renumber every interval from the parent links",
		Args:  cobra.NoArgs,
	}
	cmd.RunE = a.run(func(cmd *cobra.Command, _ []string) error {
		boundary, err := a.svc.Rebuild(cmd.Context(), parentRef(root))
		if err != nil {
			return err
		}
		if root == "" {
			fmt.Fprintf(cmd.OutOrStdout(), "rebuilt forest, next free left %d\n", boundary)
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "rebuilt subtree %s, right %d\n", root, boundary)
		return nil
	})

	cmd.Flags().StringVar(&root, "root", "", "only renumber the subtree below this node")
	return cmd
}
