package nestedset

import (
	"context"
	"slices"
)

// rebuilder renumbers a forest, or one subtree of it, from parent pointers
// alone. Existing interval values are only used to order siblings.
type rebuilder[ID comparable, P any] struct {
	tx       Tx[ID, P]
	roots    []Node[ID, P]
	children map[ID][]Node[ID, P]
	seen     map[ID]struct{}
	saved    int
}

func newRebuilder[ID comparable, P any](tx Tx[ID, P], all []Node[ID, P]) *rebuilder[ID, P] {
	r := &rebuilder[ID, P]{
		tx:       tx,
		children: make(map[ID][]Node[ID, P], len(all)),
		seen:     make(map[ID]struct{}, len(all)),
	}
	for _, n := range all {
		if n.ParentID == nil {
			r.roots = append(r.roots, n)
			continue
		}
		r.children[*n.ParentID] = append(r.children[*n.ParentID], n)
	}
	// all is ordered by left already, the stable sort keeps the store's
	// iteration order for equal lefts
	byLeft := func(a, b Node[ID, P]) int { return a.Left - b.Left }
	slices.SortStableFunc(r.roots, byLeft)
	for id := range r.children {
		slices.SortStableFunc(r.children[id], byLeft)
	}
	return r
}

func (r *rebuilder[ID, P]) childrenOf(parent *ID) []Node[ID, P] {
	if parent == nil {
		return r.roots
	}
	return r.children[*parent]
}

// number assigns pre-order intervals to the children of parent starting after
// currentLeft and returns the closing value for parent. Every child is saved
// as soon as its own subtree is numbered.
func (r *rebuilder[ID, P]) number(ctx context.Context, parent *ID, currentLeft int) (int, error) {
	left := currentLeft
	for _, child := range r.childrenOf(parent) {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if _, ok := r.seen[child.ID]; ok {
			return 0, preconditionf("node %v is part of a parent cycle", child.ID)
		}
		r.seen[child.ID] = struct{}{}
		childLeft := left + 1
		right, err := r.number(ctx, Ref(child.ID), childLeft)
		if err != nil {
			return 0, err
		}
		child.Left = childLeft
		child.Right = right
		if err := r.tx.SaveAll(ctx, child); err != nil {
			return 0, err
		}
		r.saved++
		left = right
	}
	return left + 1, nil
}

// rebuildForest renumbers every node. Nodes that cannot be reached from a root,
// because their parent is missing or they sit on a parent cycle, make the
// rebuild fail.
func rebuildForest[ID comparable, P any](ctx context.Context, tx Tx[ID, P]) (int, int, error) {
	all, err := tx.FindAllOrderedByLeft(ctx)
	if err != nil {
		return 0, 0, err
	}
	r := newRebuilder(tx, all)
	boundary, err := r.number(ctx, nil, 0)
	if err != nil {
		return 0, r.saved, err
	}
	if r.saved != len(all) {
		return 0, r.saved, preconditionf("%d of %d nodes are not reachable from a root", len(all)-r.saved, len(all))
	}
	return boundary, r.saved, nil
}

// rebuildSubtree renumbers the descendants of root inside its current interval.
// The subtree must still fit the interval exactly, anything else would leave
// the rest of the forest inconsistent.
func rebuildSubtree[ID comparable, P any](ctx context.Context, tx Tx[ID, P], root Node[ID, P]) (int, int, error) {
	all, err := tx.FindAllOrderedByLeft(ctx)
	if err != nil {
		return 0, 0, err
	}
	r := newRebuilder(tx, all)
	r.seen[root.ID] = struct{}{}
	right, err := r.number(ctx, Ref(root.ID), root.Left)
	if err != nil {
		return 0, r.saved, err
	}
	if right != root.Right {
		return 0, r.saved, consistencyf("subtree of %v needs right %d but has %d, rebuild the whole forest", root.ID, right, root.Right)
	}
	return right, r.saved, nil
}
