package nestedset

import (
	"context"
	"fmt"
)

// allocation is the interval reserved for a new node or a relocated subtree.
type allocation struct {
	left    int
	right   int
	shifted int
}

// allocate reserves width positions at the end of parent's interval, or after
// the last root when parent is nil, and returns the reserved interval.
// Nodes to the right of or enclosing the insertion point are shifted and
// saved through tx before allocate returns.
func allocate[ID comparable, P any](ctx context.Context, tx Tx[ID, P], parent *ID, width int) (allocation, error) {
	if width <= 0 || width%2 != 0 {
		return allocation{}, preconditionf("invalid subtree width %d", width)
	}
	if parent == nil {
		roots, err := tx.FindRoots(ctx)
		if err != nil {
			return allocation{}, err
		}
		maxRight := 0
		for _, n := range roots {
			if n.Right > maxRight {
				maxRight = n.Right
			}
		}
		return allocation{left: maxRight + 1, right: maxRight + width}, nil
	}

	// the lock serializes concurrent insertions below the same parent; the
	// interval has to be read after it is held
	p, ok, err := tx.Lock(ctx, *parent)
	if err != nil {
		return allocation{}, fmt.Errorf("lock parent %v: %w", *parent, err)
	}
	if !ok {
		return allocation{}, notFound("parent", *parent)
	}
	if p.Left >= p.Right {
		return allocation{}, preconditionf("parent %v has malformed interval [%d,%d]", p.ID, p.Left, p.Right)
	}

	at := p.Right
	candidates, err := tx.FindNodesToShift(ctx, at)
	if err != nil {
		return allocation{}, err
	}
	shifted := openGap(candidates, at, width)
	p.Right += width

	if err := tx.SaveAll(ctx, append([]Node[ID, P]{p}, shifted...)...); err != nil {
		return allocation{}, err
	}
	return allocation{left: at, right: at + width - 1, shifted: len(shifted) + 1}, nil
}

// openGap shifts the candidates so that width positions starting at at are
// free. Left and right are tested independently: a node enclosing the
// insertion point only grows on its right side.
func openGap[ID comparable, P any](candidates []Node[ID, P], at, width int) []Node[ID, P] {
	shifted := make([]Node[ID, P], 0, len(candidates))
	for _, n := range candidates {
		changed := false
		if n.Left >= at {
			n.Left += width
			changed = true
		}
		if n.Right >= at {
			n.Right += width
			changed = true
		}
		if changed {
			shifted = append(shifted, n)
		}
	}
	return shifted
}
