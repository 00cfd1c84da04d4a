package nestedset

import (
	"slices"
)

// Hierarchical is a response value that can return a copy of itself with the
// given children attached.
type Hierarchical[R any] interface {
	WithChildren(children []R) R
}

// Build turns a flat list of nodes into nested response values and returns the
// top level ones in input order. The input need not be sorted. A node whose
// parent is missing from the list becomes a top level node, so partial
// subtrees reconstruct cleanly. Children keep their relative input order.
// convert is called exactly once per node.
func Build[ID comparable, P any, R Hierarchical[R]](nodes []Node[ID, P], convert func(Node[ID, P]) R) []R {
	if len(nodes) == 0 {
		return []R{}
	}

	present := make(map[ID]struct{}, len(nodes))
	for _, n := range nodes {
		present[n.ID] = struct{}{}
	}

	responses := make(map[ID]R, len(nodes))
	childrenByParent := make(map[ID][]ID)
	for _, n := range nodes {
		responses[n.ID] = convert(n)
		if parentID, ok := n.Parent(); ok {
			if _, ok := present[parentID]; ok {
				childrenByParent[parentID] = append(childrenByParent[parentID], n.ID)
			}
		}
	}

	// children always start to the right of their parent, so walking by
	// descending left finalizes every child before its parent
	sorted := slices.Clone(nodes)
	slices.SortStableFunc(sorted, func(a, b Node[ID, P]) int { return b.Left - a.Left })
	for _, n := range sorted {
		childIDs := childrenByParent[n.ID]
		children := make([]R, 0, len(childIDs))
		for _, id := range childIDs {
			if child, ok := responses[id]; ok {
				children = append(children, child)
			}
		}
		responses[n.ID] = responses[n.ID].WithChildren(children)
	}

	roots := make([]R, 0)
	for _, n := range nodes {
		if parentID, ok := n.Parent(); ok {
			if _, ok := present[parentID]; ok {
				continue
			}
		}
		roots = append(roots, responses[n.ID])
	}
	return roots
}

// TreeNode is the default response value for Build: the node itself plus its
// children, in the order they appeared in the input.
type TreeNode[ID comparable, P any] struct {
	Node[ID, P] `json:",inline" yaml:",inline"`
	Children    []TreeNode[ID, P] `json:"children" yaml:"children"`
}

// NewTreeNode converts a node into a TreeNode without children.
func NewTreeNode[ID comparable, P any](n Node[ID, P]) TreeNode[ID, P] {
	return TreeNode[ID, P]{Node: n, Children: []TreeNode[ID, P]{}}
}

// WithChildren returns a copy of r holding children.
func (r TreeNode[ID, P]) WithChildren(children []TreeNode[ID, P]) TreeNode[ID, P] {
	if children == nil {
		children = []TreeNode[ID, P]{}
	}
	r.Children = children
	return r
}

// Walk visits r and its descendants depth first, pre-order.
// Returning false from fn stops the walk.
func (r TreeNode[ID, P]) Walk(fn func(n TreeNode[ID, P], depth int) bool) bool {
	return r.walk(fn, 0)
}

func (r TreeNode[ID, P]) walk(fn func(n TreeNode[ID, P], depth int) bool, depth int) bool {
	if !fn(r, depth) {
		return false
	}
	for _, c := range r.Children {
		if !c.walk(fn, depth+1) {
			return false
		}
	}
	return true
}

// Count returns the number of nodes in the tree rooted at r.
func (r TreeNode[ID, P]) Count() int {
	count := 0
	r.Walk(func(TreeNode[ID, P], int) bool {
		count++
		return true
	})
	return count
}
