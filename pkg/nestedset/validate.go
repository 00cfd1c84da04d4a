package nestedset

import (
	"fmt"
	"slices"
	"sort"

	utilerrors "k8s.io/apimachinery/pkg/util/errors"
)

// maxReportedViolations bounds the size of a validation report.
const maxReportedViolations = 32

// Validate checks the interval invariants of a complete forest snapshot:
// well formed odd-width intervals, no shared boundary values, strict nesting,
// parents matching the immediately enclosing interval and widths matching
// the descendant count. All violations are returned in one aggregate wrapped
// with ErrConsistencyViolation.
func Validate[ID comparable, P any](nodes []Node[ID, P]) error {
	var errs []error
	report := func(format string, args ...any) bool {
		errs = append(errs, fmt.Errorf(format, args...))
		return len(errs) < maxReportedViolations
	}

	sorted := slices.Clone(nodes)
	slices.SortStableFunc(sorted, func(a, b Node[ID, P]) int { return a.Left - b.Left })

	ids := make(map[ID]struct{}, len(sorted))
	bounds := make(map[int]ID, 2*len(sorted))
	for _, n := range sorted {
		if _, ok := ids[n.ID]; ok {
			if !report("duplicate id %v", n.ID) {
				return wrapViolations(errs)
			}
		}
		ids[n.ID] = struct{}{}
		if n.Left >= n.Right {
			if !report("node %v: left %d is not smaller than right %d", n.ID, n.Left, n.Right) {
				return wrapViolations(errs)
			}
			continue
		}
		if (n.Right-n.Left)%2 == 0 {
			if !report("node %v: interval [%d,%d] has an even span", n.ID, n.Left, n.Right) {
				return wrapViolations(errs)
			}
		}
		for _, b := range []int{n.Left, n.Right} {
			if other, ok := bounds[b]; ok {
				if !report("node %v: boundary %d collides with node %v", n.ID, b, other) {
					return wrapViolations(errs)
				}
			}
			bounds[b] = n.ID
		}
	}
	if len(errs) > 0 {
		// nesting checks are meaningless on malformed intervals
		return wrapViolations(errs)
	}

	var stack []Node[ID, P]
	for i, n := range sorted {
		for len(stack) > 0 && stack[len(stack)-1].Right < n.Left {
			stack = stack[:len(stack)-1]
		}
		var enclosing *Node[ID, P]
		if len(stack) > 0 {
			enclosing = &stack[len(stack)-1]
			if enclosing.Right < n.Right {
				if !report("node %v [%d,%d] partially overlaps node %v [%d,%d]",
					n.ID, n.Left, n.Right, enclosing.ID, enclosing.Left, enclosing.Right) {
					return wrapViolations(errs)
				}
			}
		}
		switch {
		case enclosing == nil && n.ParentID != nil:
			if !report("node %v: parent is %v but no interval encloses it", n.ID, *n.ParentID) {
				return wrapViolations(errs)
			}
		case enclosing != nil && n.ParentID == nil:
			if !report("node %v: root is enclosed by node %v", n.ID, enclosing.ID) {
				return wrapViolations(errs)
			}
		case enclosing != nil && *n.ParentID != enclosing.ID:
			if !report("node %v: parent is %v but the enclosing interval belongs to %v", n.ID, *n.ParentID, enclosing.ID) {
				return wrapViolations(errs)
			}
		}

		// every node starting inside the interval is a descendant once
		// partial overlaps are ruled out
		end := sort.Search(len(sorted), func(j int) bool { return sorted[j].Left > n.Right })
		if descendants := end - i - 1; descendants != n.Descendants() {
			if !report("node %v: width %d encodes %d descendants, found %d", n.ID, n.Width(), n.Descendants(), descendants) {
				return wrapViolations(errs)
			}
		}
		stack = append(stack, n)
	}
	return wrapViolations(errs)
}

func wrapViolations(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrConsistencyViolation, utilerrors.NewAggregate(errs))
}
