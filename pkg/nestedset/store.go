package nestedset

import "context"

// Reader is the read-only query surface the engine needs from a store.
// Unless stated otherwise results are ordered by ascending Left.
type Reader[ID comparable, P any] interface {
	// Get returns the node with the given id.
	Get(ctx context.Context, id ID) (Node[ID, P], bool, error)
	FindAllOrderedByLeft(ctx context.Context) ([]Node[ID, P], error)
	FindRoots(ctx context.Context) ([]Node[ID, P], error)
	// FindLeaves returns nodes with right == left+1.
	FindLeaves(ctx context.Context) ([]Node[ID, P], error)
	// FindPrevSibling returns the node with the greatest left among the
	// children of parent whose right is smaller than left.
	FindPrevSibling(ctx context.Context, parent *ID, left int) (Node[ID, P], bool, error)
	// FindNextSibling returns the node with the smallest left among the
	// children of parent whose left is greater than right.
	FindNextSibling(ctx context.Context, parent *ID, right int) (Node[ID, P], bool, error)
	// FindChildren returns the direct children of parent, or the roots if parent is nil.
	FindChildren(ctx context.Context, parent *ID) ([]Node[ID, P], error)
	FindSiblings(ctx context.Context, parent *ID, self ID) ([]Node[ID, P], error)
	// FindAncestors returns nodes strictly enclosing [left,right], nearest first.
	FindAncestors(ctx context.Context, left, right int) ([]Node[ID, P], error)
	// FindDescendants returns nodes strictly inside [left,right].
	FindDescendants(ctx context.Context, left, right int) ([]Node[ID, P], error)
	// FindSubtree returns nodes inside [left,right], bounds included.
	FindSubtree(ctx context.Context, left, right int) ([]Node[ID, P], error)
	// FindContaining returns nodes with left <= left and right >= right.
	FindContaining(ctx context.Context, left, right int) ([]Node[ID, P], error)
	FindExact(ctx context.Context, left, right int) ([]Node[ID, P], error)
	// FindNodesToShift returns every node with a right value greater than right.
	FindNodesToShift(ctx context.Context, right int) ([]Node[ID, P], error)
	FindByLeft(ctx context.Context, left int) (Node[ID, P], bool, error)
	FindByRight(ctx context.Context, right int) (Node[ID, P], bool, error)
	FindByParent(ctx context.Context, parent ID) ([]Node[ID, P], error)
	FindByLeftBetween(ctx context.Context, left, right int) ([]Node[ID, P], error)
}

// Tx is one atomic unit of work. Writes are visible to later reads through
// the same Tx and become visible to others only when the unit commits.
type Tx[ID comparable, P any] interface {
	Reader[ID, P]
	// Lock takes an exclusive lock on the record and returns its current value.
	// It returns an error wrapping ErrConcurrencyConflict when the lock
	// cannot be acquired before ctx is done.
	Lock(ctx context.Context, id ID) (Node[ID, P], bool, error)
	// SaveAll inserts or replaces the given nodes.
	SaveAll(ctx context.Context, nodes ...Node[ID, P]) error
	DeleteAll(ctx context.Context, ids ...ID) error
}

// Store persists the nodes of one forest.
type Store[ID comparable, P any] interface {
	// View runs fn against a consistent read-only view.
	View(ctx context.Context, fn func(r Reader[ID, P]) error) error
	// Update runs fn in one unit of work. The unit commits when fn returns nil
	// and is rolled back otherwise.
	Update(ctx context.Context, fn func(tx Tx[ID, P]) error) error
}
