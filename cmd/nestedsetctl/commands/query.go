package commands

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"k8s.io/apimachinery/pkg/labels"
)

func newValidateCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check every interval invariant of the stored forest",
		Args:  cobra.NoArgs,
	}
	cmd.RunE = a.run(func(cmd *cobra.Command, _ []string) error {
		if err := a.svc.Validate(cmd.Context()); err != nil {
			return err
		}
		all, err := a.svc.GetAll(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "forest is consistent: %s nodes\n", humanize.Comma(int64(len(all))))
		return nil
	})
	return cmd
}

func newGetCommand(a *app) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "get ID",
		Short: "Show one node",
		Args:  cobra.ExactArgs(1),
	}
	cmd.RunE = a.run(func(cmd *cobra.Command, args []string) error {
		n, err := a.svc.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return renderNodes(cmd.OutOrStdout(), output, []Node{n})
	})

	cmd.Flags().StringVarP(&output, "output", "o", formatTable, "output format: table, yaml or json")
	return cmd
}

func newListCommand(a *app) *cobra.Command {
	var output, selector string
	var roots, leaves bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List nodes in left order",
		Args:  cobra.NoArgs,
	}
	cmd.RunE = a.run(func(cmd *cobra.Command, _ []string) error {
		sel, err := labels.Parse(selector)
		if err != nil {
			return fmt.Errorf("selector %q: %w", selector, err)
		}
		if roots && leaves {
			return fmt.Errorf("--roots and --leaves are mutually exclusive")
		}

		var nodes []Node
		switch {
		case roots:
			nodes, err = a.svc.GetRoots(cmd.Context())
		case leaves:
			nodes, err = a.svc.GetLeaves(cmd.Context())
		default:
			nodes, err = a.svc.GetAll(cmd.Context())
		}
		if err != nil {
			return err
		}
		return renderNodes(cmd.OutOrStdout(), output, filterNodes(nodes, sel))
	})

	cmd.Flags().StringVarP(&output, "output", "o", formatTable, "output format: table, yaml or json")
	cmd.Flags().StringVarP(&selector, "selector", "l", "", "label selector, e.g. env=prod,tier!=db")
	cmd.Flags().BoolVar(&roots, "roots", false, "only list roots")
	cmd.Flags().BoolVar(&leaves, "leaves", false, "only list leaves")
	return cmd
}

func filterNodes(nodes []Node, sel labels.Selector) []Node {
	out := []Node{}
	for _, n := range nodes {
		if n.Payload.Matches(sel) {
			out = append(out, n)
		}
	}
	return out
}

func newTreeCommand(a *app) *cobra.Command {
	var output, root string

	cmd := &cobra.Command{
		Use:   "tree",
		Short: "Show the forest, or the subtree below --root, as a hierarchy",
		Args:  cobra.NoArgs,
	}
	cmd.RunE = a.run(func(cmd *cobra.Command, _ []string) error {
		roots, err := a.svc.Tree(cmd.Context(), parentRef(root))
		if err != nil {
			return err
		}
		return renderTree(cmd.OutOrStdout(), output, roots)
	})

	cmd.Flags().StringVarP(&output, "output", "o", formatText, "output format: text, yaml or json")
	cmd.Flags().StringVar(&root, "root", "", "only show the subtree below this node")
	return cmd
}

func newRelativesCommand(a *app, use, short string, find func(a *app, cmd *cobra.Command, n Node) ([]Node, error)) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   use + " ID",
		Short: short,
		Args:  cobra.ExactArgs(1),
	}
	cmd.RunE = a.run(func(cmd *cobra.Command, args []string) error {
		n, err := a.svc.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		nodes, err := find(a, cmd, n)
		if err != nil {
			return err
		}
		return renderNodes(cmd.OutOrStdout(), output, nodes)
	})

	cmd.Flags().StringVarP(&output, "output", "o", formatTable, "output format: table, yaml or json")
	return cmd
}

func newAncestorsCommand(a *app) *cobra.Command {
	return newRelativesCommand(a, "ancestors", "List the ancestors of a node, nearest first",
		func(a *app, cmd *cobra.Command, n Node) ([]Node, error) {
			return a.svc.GetAncestors(cmd.Context(), n)
		})
}

func newDescendantsCommand(a *app) *cobra.Command {
	return newRelativesCommand(a, "descendants", "List the descendants of a node in left order",
		func(a *app, cmd *cobra.Command, n Node) ([]Node, error) {
			return a.svc.GetDescendants(cmd.Context(), n)
		})
}

func newExportCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write every node as YAML records usable with --seed",
		Args:  cobra.NoArgs,
	}
	cmd.RunE = a.run(func(cmd *cobra.Command, _ []string) error {
		all, err := a.svc.GetAll(cmd.Context())
		if err != nil {
			return err
		}
		return writeRecords(cmd.OutOrStdout(), all)
	})
	return cmd
}
