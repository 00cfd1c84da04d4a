package commands

import (
	"errors"
	"fmt"
	"io"

	"github.com/henderiw/nestedset/pkg/entry"
	"gopkg.in/yaml.v3"
)

// record is the YAML form of a node used by --seed and export. An empty
// parent marks a root.
type record struct {
	ID          string `yaml:"id" json:"id"`
	Parent      string `yaml:"parent,omitempty" json:"parent,omitempty"`
	Left        int    `yaml:"left" json:"left"`
	Right       int    `yaml:"right" json:"right"`
	entry.Entry `yaml:",inline" json:",inline"`
}

func toRecord(n Node) record {
	r := record{ID: n.ID, Left: n.Left, Right: n.Right, Entry: n.Payload}
	if p, ok := n.Parent(); ok {
		r.Parent = p
	}
	return r
}

func (r record) node() Node {
	n := Node{ID: r.ID, Left: r.Left, Right: r.Right, Payload: r.Entry}
	if r.Parent != "" {
		p := r.Parent
		n.ParentID = &p
	}
	return n
}

func readRecords(rd io.Reader) ([]Node, error) {
	var records []record
	if err := yaml.NewDecoder(rd).Decode(&records); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, err
	}
	nodes := make([]Node, 0, len(records))
	for i, r := range records {
		if r.ID == "" {
			return nil, fmt.Errorf("record %d has no id", i)
		}
		nodes = append(nodes, r.node())
	}
	return nodes, nil
}

func writeRecords(w io.Writer, nodes []Node) error {
	records := make([]record, 0, len(nodes))
	for _, n := range nodes {
		records = append(records, toRecord(n))
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(records); err != nil {
		return err
	}
	return enc.Close()
}
