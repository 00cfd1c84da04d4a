// Package entry is the payload nestedsetctl stores on every node: a display
// name plus a set of labels that list and tree output can be filtered on.
package entry

import (
	"fmt"
	"maps"

	"k8s.io/apimachinery/pkg/labels"
)

type Entry struct {
	Name   string     `json:"name" yaml:"name"`
	Labels labels.Set `json:"labels,omitempty" yaml:"labels,omitempty"`
}

func New(name string, lbls labels.Set) Entry {
	return Entry{
		Name:   name,
		Labels: maps.Clone(lbls),
	}
}

// Parse builds an entry from a name and a comma separated k=v label list.
func Parse(name, lbls string) (Entry, error) {
	if name == "" {
		return Entry{}, fmt.Errorf("entry name is required")
	}
	set, err := labels.ConvertSelectorToLabelsMap(lbls)
	if err != nil {
		return Entry{}, fmt.Errorf("entry %s labels %q: %w", name, lbls, err)
	}
	if len(set) == 0 {
		set = nil
	}
	return New(name, set), nil
}

func (r Entry) String() string {
	return fmt.Sprintf("name: %s, labels: %s", r.Name, r.Labels.String())
}

func (r Entry) Equal(e2 Entry) bool {
	return r.Name == e2.Name && r.Labels.String() == e2.Labels.String()
}

func (r Entry) Matches(selector labels.Selector) bool {
	return selector.Matches(r.Labels)
}
