package nestedset

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
)

func TestValidate(t *testing.T) {
	cases := map[string]struct {
		nodes       []testNode
		expectErr   bool
		errContains string
	}{
		"Empty": {},
		"Sample": {
			nodes: sample(),
		},
		"Unsorted": {
			nodes: forest(
				[4]any{"b", 4, 5, "r"},
				[4]any{"r", 1, 6, ""},
				[4]any{"a", 2, 3, "r"},
			),
		},
		"DuplicateID": {
			nodes: forest(
				[4]any{"a", 1, 2, ""},
				[4]any{"a", 3, 4, ""},
			),
			expectErr:   true,
			errContains: "duplicate id a",
		},
		"LeftNotSmallerThanRight": {
			nodes:       forest([4]any{"a", 2, 2, ""}),
			expectErr:   true,
			errContains: "left 2 is not smaller than right 2",
		},
		"EvenSpan": {
			nodes:       forest([4]any{"a", 1, 3, ""}),
			expectErr:   true,
			errContains: "even span",
		},
		"BoundaryCollision": {
			nodes: forest(
				[4]any{"a", 1, 2, ""},
				[4]any{"b", 2, 3, ""},
			),
			expectErr:   true,
			errContains: "boundary 2 collides",
		},
		"PartialOverlap": {
			nodes: forest(
				[4]any{"x", 1, 4, ""},
				[4]any{"y", 3, 6, ""},
			),
			expectErr:   true,
			errContains: "partially overlaps node x",
		},
		"ParentNotEnclosing": {
			nodes: forest(
				[4]any{"r", 1, 6, ""},
				[4]any{"a", 2, 5, "r"},
				[4]any{"a1", 3, 4, "r"},
			),
			expectErr:   true,
			errContains: "enclosing interval belongs to a",
		},
		"EnclosedRoot": {
			nodes: forest(
				[4]any{"r", 1, 4, ""},
				[4]any{"x", 2, 3, ""},
			),
			expectErr:   true,
			errContains: "root is enclosed by node r",
		},
		"DanglingParent": {
			nodes:       forest([4]any{"x", 1, 2, "gone"}),
			expectErr:   true,
			errContains: "no interval encloses it",
		},
		"WidthMismatch": {
			nodes: forest(
				[4]any{"r", 1, 12, ""},
				[4]any{"a", 2, 3, "r"},
			),
			expectErr:   true,
			errContains: "encodes 5 descendants, found 1",
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			err := Validate(tc.nodes)
			if !tc.expectErr {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrConsistencyViolation)
			assert.Contains(t, err.Error(), tc.errContains)
		})
	}
}

func TestValidateReportsAllViolations(t *testing.T) {
	nodes := forest(
		[4]any{"a", 2, 2, ""},
		[4]any{"b", 5, 7, ""},
	)
	err := Validate(nodes)
	assert.ErrorIs(t, err, ErrConsistencyViolation)

	var agg utilerrors.Aggregate
	assert.ErrorAs(t, err, &agg)
	assert.Len(t, agg.Errors(), 2)
}

func TestValidateCapsReport(t *testing.T) {
	var nodes []testNode
	for i := 0; i < 2*maxReportedViolations; i++ {
		nodes = append(nodes, testNode{ID: fmt.Sprintf("n%d", i), Left: 4 * i, Right: 4*i + 2})
	}
	err := Validate(nodes)

	var agg utilerrors.Aggregate
	assert.ErrorAs(t, err, &agg)
	assert.Len(t, agg.Errors(), maxReportedViolations)
}
