package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/list"
	"github.com/jedib0t/go-pretty/v6/table"
	"gopkg.in/yaml.v3"
)

const (
	formatTable = "table"
	formatText  = "text"
	formatYAML  = "yaml"
	formatJSON  = "json"
)

// treeView is the structured output form of a tree.
type treeView struct {
	record   `yaml:",inline"`
	Children []treeView `yaml:"children,omitempty" json:"children,omitempty"`
}

func toTreeView(n TreeNode) treeView {
	v := treeView{record: toRecord(n.Node)}
	for _, c := range n.Children {
		v.Children = append(v.Children, toTreeView(c))
	}
	return v
}

func renderStructured(w io.Writer, format string, v any) error {
	switch format {
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func renderNodes(w io.Writer, format string, nodes []Node) error {
	if format != formatTable {
		records := make([]record, 0, len(nodes))
		for _, n := range nodes {
			records = append(records, toRecord(n))
		}
		return renderStructured(w, format, records)
	}

	tbl := table.NewWriter()
	tbl.SetOutputMirror(w)
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.DrawBorder = false
	tbl.Style().Options.SeparateColumns = false
	tbl.AppendHeader(table.Row{"ID", "NAME", "LEFT", "RIGHT", "PARENT", "LABELS"})
	for _, n := range nodes {
		r := toRecord(n)
		tbl.AppendRow(table.Row{r.ID, r.Name, r.Left, r.Right, r.Parent, r.Labels.String()})
	}
	tbl.AppendFooter(table.Row{fmt.Sprintf("Total: %s nodes", humanize.Comma(int64(len(nodes))))})
	tbl.Render()
	return nil
}

func renderTree(w io.Writer, format string, roots []TreeNode) error {
	if format != formatText {
		views := make([]treeView, 0, len(roots))
		for _, r := range roots {
			views = append(views, toTreeView(r))
		}
		return renderStructured(w, format, views)
	}

	l := list.NewWriter()
	l.SetStyle(list.StyleConnectedLight)
	for _, root := range roots {
		current := 0
		root.Walk(func(n TreeNode, depth int) bool {
			for ; current < depth; current++ {
				l.Indent()
			}
			for ; current > depth; current-- {
				l.UnIndent()
			}
			l.AppendItem(treeLabel(n))
			return true
		})
		for ; current > 0; current-- {
			l.UnIndent()
		}
	}
	if len(roots) > 0 {
		fmt.Fprintln(w, l.Render())
	}
	return nil
}

func treeLabel(n TreeNode) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s (%s) [%d,%d]", n.Payload.Name, n.ID, n.Left, n.Right)
	if len(n.Payload.Labels) > 0 {
		fmt.Fprintf(&sb, " {%s}", n.Payload.Labels.String())
	}
	return sb.String()
}
