// Package storeutil implements the nestedset.Reader query surface on top of a
// full scan of the stored nodes. Stores without ordered secondary indexes use
// it to answer range queries; it also serves as a reference when testing
// indexed stores.
package storeutil

import (
	"context"
	"slices"

	"github.com/henderiw/nestedset/pkg/nestedset"
)

// LoadFunc returns every stored node in the store's natural order.
type LoadFunc[ID comparable, P any] func(ctx context.Context) ([]nestedset.Node[ID, P], error)

// GetFunc returns a single node by id.
type GetFunc[ID comparable, P any] func(ctx context.Context, id ID) (nestedset.Node[ID, P], bool, error)

// Scanner answers nestedset.Reader queries by loading and filtering all nodes.
type Scanner[ID comparable, P any] struct {
	load LoadFunc[ID, P]
	get  GetFunc[ID, P]
}

var _ nestedset.Reader[string, struct{}] = Scanner[string, struct{}]{}

func NewScanner[ID comparable, P any](load LoadFunc[ID, P], get GetFunc[ID, P]) Scanner[ID, P] {
	return Scanner[ID, P]{load: load, get: get}
}

// FromNodes returns a Scanner over a fixed set of nodes.
func FromNodes[ID comparable, P any](nodes []nestedset.Node[ID, P]) Scanner[ID, P] {
	load := func(ctx context.Context) ([]nestedset.Node[ID, P], error) {
		out := make([]nestedset.Node[ID, P], 0, len(nodes))
		for _, n := range nodes {
			out = append(out, n.Clone())
		}
		return out, ctx.Err()
	}
	get := func(ctx context.Context, id ID) (nestedset.Node[ID, P], bool, error) {
		for _, n := range nodes {
			if n.ID == id {
				return n.Clone(), true, ctx.Err()
			}
		}
		return nestedset.Node[ID, P]{}, false, ctx.Err()
	}
	return NewScanner[ID, P](load, get)
}

// sorted loads all nodes ordered by left; equal lefts keep the natural order.
func (r Scanner[ID, P]) sorted(ctx context.Context) ([]nestedset.Node[ID, P], error) {
	nodes, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	SortByLeft(nodes)
	return nodes, nil
}

func (r Scanner[ID, P]) filter(ctx context.Context, keep func(n nestedset.Node[ID, P]) bool) ([]nestedset.Node[ID, P], error) {
	nodes, err := r.sorted(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]nestedset.Node[ID, P], 0)
	for _, n := range nodes {
		if keep(n) {
			out = append(out, n)
		}
	}
	return out, nil
}

func (r Scanner[ID, P]) firstOf(nodes []nestedset.Node[ID, P], err error) (nestedset.Node[ID, P], bool, error) {
	if err != nil || len(nodes) == 0 {
		return nestedset.Node[ID, P]{}, false, err
	}
	return nodes[0], true, nil
}

func (r Scanner[ID, P]) Get(ctx context.Context, id ID) (nestedset.Node[ID, P], bool, error) {
	return r.get(ctx, id)
}

func (r Scanner[ID, P]) FindAllOrderedByLeft(ctx context.Context) ([]nestedset.Node[ID, P], error) {
	return r.sorted(ctx)
}

func (r Scanner[ID, P]) FindRoots(ctx context.Context) ([]nestedset.Node[ID, P], error) {
	return r.filter(ctx, func(n nestedset.Node[ID, P]) bool { return n.ParentID == nil })
}

func (r Scanner[ID, P]) FindLeaves(ctx context.Context) ([]nestedset.Node[ID, P], error) {
	return r.filter(ctx, func(n nestedset.Node[ID, P]) bool { return n.IsLeaf() })
}

func (r Scanner[ID, P]) FindPrevSibling(ctx context.Context, parent *ID, left int) (nestedset.Node[ID, P], bool, error) {
	nodes, err := r.filter(ctx, func(n nestedset.Node[ID, P]) bool {
		return n.Right < left && nestedset.SameParent(n.ParentID, parent)
	})
	if err != nil || len(nodes) == 0 {
		return nestedset.Node[ID, P]{}, false, err
	}
	return nodes[len(nodes)-1], true, nil
}

func (r Scanner[ID, P]) FindNextSibling(ctx context.Context, parent *ID, right int) (nestedset.Node[ID, P], bool, error) {
	return r.firstOf(r.filter(ctx, func(n nestedset.Node[ID, P]) bool {
		return n.Left > right && nestedset.SameParent(n.ParentID, parent)
	}))
}

func (r Scanner[ID, P]) FindChildren(ctx context.Context, parent *ID) ([]nestedset.Node[ID, P], error) {
	return r.filter(ctx, func(n nestedset.Node[ID, P]) bool {
		return nestedset.SameParent(n.ParentID, parent)
	})
}

func (r Scanner[ID, P]) FindSiblings(ctx context.Context, parent *ID, self ID) ([]nestedset.Node[ID, P], error) {
	return r.filter(ctx, func(n nestedset.Node[ID, P]) bool {
		return n.ID != self && nestedset.SameParent(n.ParentID, parent)
	})
}

func (r Scanner[ID, P]) FindAncestors(ctx context.Context, left, right int) ([]nestedset.Node[ID, P], error) {
	nodes, err := r.filter(ctx, func(n nestedset.Node[ID, P]) bool {
		return n.Left < left && n.Right > right
	})
	if err != nil {
		return nil, err
	}
	slices.Reverse(nodes)
	return nodes, nil
}

func (r Scanner[ID, P]) FindDescendants(ctx context.Context, left, right int) ([]nestedset.Node[ID, P], error) {
	return r.filter(ctx, func(n nestedset.Node[ID, P]) bool {
		return n.Left > left && n.Right < right
	})
}

func (r Scanner[ID, P]) FindSubtree(ctx context.Context, left, right int) ([]nestedset.Node[ID, P], error) {
	return r.filter(ctx, func(n nestedset.Node[ID, P]) bool {
		return n.Left >= left && n.Right <= right
	})
}

func (r Scanner[ID, P]) FindContaining(ctx context.Context, left, right int) ([]nestedset.Node[ID, P], error) {
	return r.filter(ctx, func(n nestedset.Node[ID, P]) bool {
		return n.Left <= left && n.Right >= right
	})
}

func (r Scanner[ID, P]) FindExact(ctx context.Context, left, right int) ([]nestedset.Node[ID, P], error) {
	return r.filter(ctx, func(n nestedset.Node[ID, P]) bool {
		return n.Left == left && n.Right == right
	})
}

func (r Scanner[ID, P]) FindNodesToShift(ctx context.Context, right int) ([]nestedset.Node[ID, P], error) {
	return r.filter(ctx, func(n nestedset.Node[ID, P]) bool { return n.Right > right })
}

func (r Scanner[ID, P]) FindByLeft(ctx context.Context, left int) (nestedset.Node[ID, P], bool, error) {
	return r.firstOf(r.filter(ctx, func(n nestedset.Node[ID, P]) bool { return n.Left == left }))
}

func (r Scanner[ID, P]) FindByRight(ctx context.Context, right int) (nestedset.Node[ID, P], bool, error) {
	return r.firstOf(r.filter(ctx, func(n nestedset.Node[ID, P]) bool { return n.Right == right }))
}

func (r Scanner[ID, P]) FindByParent(ctx context.Context, parent ID) ([]nestedset.Node[ID, P], error) {
	return r.FindChildren(ctx, &parent)
}

func (r Scanner[ID, P]) FindByLeftBetween(ctx context.Context, left, right int) ([]nestedset.Node[ID, P], error) {
	return r.filter(ctx, func(n nestedset.Node[ID, P]) bool {
		return n.Left >= left && n.Left <= right
	})
}

// SortByLeft orders nodes by left in place; equal lefts keep their order.
func SortByLeft[ID comparable, P any](nodes []nestedset.Node[ID, P]) {
	slices.SortStableFunc(nodes, func(a, b nestedset.Node[ID, P]) int { return a.Left - b.Left })
}
