// Package storetest checks that a nestedset.Store implementation answers every
// query the engine relies on and honors the unit of work contract.
package storetest

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/henderiw/nestedset/pkg/nestedset"
	"github.com/henderiw/nestedset/pkg/store/storeutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Node = nestedset.Node[string, string]

// NewStoreFunc returns a fresh store holding the given nodes.
type NewStoreFunc func(t *testing.T, nodes ...Node) nestedset.Store[string, string]

// Forest returns the reference forest used by Run:
//
//	r1 [1,12]
//	  a [2,7]
//	    a1 [3,4]
//	    a2 [5,6]
//	  b [8,11]
//	    b1 [9,10]
//	r2 [13,16]
//	  c [14,15]
func Forest() []Node {
	p := nestedset.Ref[string]
	return []Node{
		{ID: "r1", Left: 1, Right: 12, Payload: "root one"},
		{ID: "a", Left: 2, Right: 7, ParentID: p("r1"), Payload: "a"},
		{ID: "a1", Left: 3, Right: 4, ParentID: p("a"), Payload: "a1"},
		{ID: "a2", Left: 5, Right: 6, ParentID: p("a"), Payload: "a2"},
		{ID: "b", Left: 8, Right: 11, ParentID: p("r1"), Payload: "b"},
		{ID: "b1", Left: 9, Right: 10, ParentID: p("b"), Payload: "b1"},
		{ID: "r2", Left: 13, Right: 16, Payload: "root two"},
		{ID: "c", Left: 14, Right: 15, ParentID: p("r2"), Payload: "c"},
	}
}

// Run executes the conformance suite against stores built by newStore.
func Run(t *testing.T, newStore NewStoreFunc) {
	t.Run("Queries", func(t *testing.T) { testQueries(t, newStore) })
	t.Run("ReadYourWrites", func(t *testing.T) { testReadYourWrites(t, newStore) })
	t.Run("Rollback", func(t *testing.T) { testRollback(t, newStore) })
	t.Run("Isolation", func(t *testing.T) { testIsolation(t, newStore) })
}

func ids(nodes []Node) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.ID)
	}
	return out
}

func testQueries(t *testing.T, newStore NewStoreFunc) {
	ctx := context.Background()
	forest := Forest()
	s := newStore(t, forest...)
	want := storeutil.FromNodes(forest)

	list := map[string]func(rd nestedset.Reader[string, string]) ([]Node, error){
		"FindAllOrderedByLeft": func(rd nestedset.Reader[string, string]) ([]Node, error) {
			return rd.FindAllOrderedByLeft(ctx)
		},
		"FindRoots":  func(rd nestedset.Reader[string, string]) ([]Node, error) { return rd.FindRoots(ctx) },
		"FindLeaves": func(rd nestedset.Reader[string, string]) ([]Node, error) { return rd.FindLeaves(ctx) },
		"FindChildren of r1": func(rd nestedset.Reader[string, string]) ([]Node, error) {
			return rd.FindChildren(ctx, nestedset.Ref("r1"))
		},
		"FindChildren of nil": func(rd nestedset.Reader[string, string]) ([]Node, error) {
			return rd.FindChildren(ctx, nil)
		},
		"FindByParent a": func(rd nestedset.Reader[string, string]) ([]Node, error) {
			return rd.FindByParent(ctx, "a")
		},
		"FindSiblings of a": func(rd nestedset.Reader[string, string]) ([]Node, error) {
			return rd.FindSiblings(ctx, nestedset.Ref("r1"), "a")
		},
		"FindSiblings of root": func(rd nestedset.Reader[string, string]) ([]Node, error) {
			return rd.FindSiblings(ctx, nil, "r2")
		},
		"FindAncestors of a2": func(rd nestedset.Reader[string, string]) ([]Node, error) {
			return rd.FindAncestors(ctx, 5, 6)
		},
		"FindAncestors of root": func(rd nestedset.Reader[string, string]) ([]Node, error) {
			return rd.FindAncestors(ctx, 13, 16)
		},
		"FindDescendants of r1": func(rd nestedset.Reader[string, string]) ([]Node, error) {
			return rd.FindDescendants(ctx, 1, 12)
		},
		"FindDescendants of leaf": func(rd nestedset.Reader[string, string]) ([]Node, error) {
			return rd.FindDescendants(ctx, 9, 10)
		},
		"FindSubtree of a": func(rd nestedset.Reader[string, string]) ([]Node, error) {
			return rd.FindSubtree(ctx, 2, 7)
		},
		"FindContaining b1": func(rd nestedset.Reader[string, string]) ([]Node, error) {
			return rd.FindContaining(ctx, 9, 10)
		},
		"FindExact b": func(rd nestedset.Reader[string, string]) ([]Node, error) {
			return rd.FindExact(ctx, 8, 11)
		},
		"FindNodesToShift 7": func(rd nestedset.Reader[string, string]) ([]Node, error) {
			return rd.FindNodesToShift(ctx, 7)
		},
		"FindByLeftBetween 3-9": func(rd nestedset.Reader[string, string]) ([]Node, error) {
			return rd.FindByLeftBetween(ctx, 3, 9)
		},
	}

	for name, query := range list {
		t.Run(name, func(t *testing.T) {
			expected, err := query(want)
			require.NoError(t, err)
			var got []Node
			err = s.View(ctx, func(rd nestedset.Reader[string, string]) error {
				var err error
				got, err = query(rd)
				return err
			})
			require.NoError(t, err)
			if diff := cmp.Diff(expected, got); diff != "" {
				t.Errorf("-want, +got:\n%s", diff)
			}
		})
	}

	single := map[string]struct {
		query  func(rd nestedset.Reader[string, string]) (Node, bool, error)
		wantID string
	}{
		"Get": {
			query:  func(rd nestedset.Reader[string, string]) (Node, bool, error) { return rd.Get(ctx, "b1") },
			wantID: "b1",
		},
		"Get missing": {
			query: func(rd nestedset.Reader[string, string]) (Node, bool, error) { return rd.Get(ctx, "zz") },
		},
		"FindPrevSibling of b": {
			query: func(rd nestedset.Reader[string, string]) (Node, bool, error) {
				return rd.FindPrevSibling(ctx, nestedset.Ref("r1"), 8)
			},
			wantID: "a",
		},
		"FindPrevSibling of first child": {
			query: func(rd nestedset.Reader[string, string]) (Node, bool, error) {
				return rd.FindPrevSibling(ctx, nestedset.Ref("a"), 3)
			},
		},
		"FindPrevSibling of root": {
			query: func(rd nestedset.Reader[string, string]) (Node, bool, error) {
				return rd.FindPrevSibling(ctx, nil, 13)
			},
			wantID: "r1",
		},
		"FindNextSibling of a1": {
			query: func(rd nestedset.Reader[string, string]) (Node, bool, error) {
				return rd.FindNextSibling(ctx, nestedset.Ref("a"), 4)
			},
			wantID: "a2",
		},
		"FindNextSibling of last child": {
			query: func(rd nestedset.Reader[string, string]) (Node, bool, error) {
				return rd.FindNextSibling(ctx, nestedset.Ref("r1"), 11)
			},
		},
		"FindByLeft": {
			query:  func(rd nestedset.Reader[string, string]) (Node, bool, error) { return rd.FindByLeft(ctx, 14) },
			wantID: "c",
		},
		"FindByRight": {
			query:  func(rd nestedset.Reader[string, string]) (Node, bool, error) { return rd.FindByRight(ctx, 11) },
			wantID: "b",
		},
		"FindByRight missing": {
			query: func(rd nestedset.Reader[string, string]) (Node, bool, error) { return rd.FindByRight(ctx, 99) },
		},
	}

	for name, tc := range single {
		t.Run(name, func(t *testing.T) {
			var got Node
			var found bool
			err := s.View(ctx, func(rd nestedset.Reader[string, string]) error {
				var err error
				got, found, err = tc.query(rd)
				return err
			})
			require.NoError(t, err)
			if tc.wantID == "" {
				assert.False(t, found)
				return
			}
			require.True(t, found)
			assert.Equal(t, tc.wantID, got.ID)
		})
	}
}

func testReadYourWrites(t *testing.T, newStore NewStoreFunc) {
	ctx := context.Background()
	s := newStore(t, Forest()...)

	err := s.Update(ctx, func(tx nestedset.Tx[string, string]) error {
		n, ok, err := tx.Lock(ctx, "c")
		require.NoError(t, err)
		require.True(t, ok)
		n.Payload = "changed"
		require.NoError(t, tx.SaveAll(ctx, n))
		require.NoError(t, tx.DeleteAll(ctx, "a1"))

		got, ok, err := tx.Get(ctx, "c")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "changed", got.Payload)

		_, ok, err = tx.Get(ctx, "a1")
		require.NoError(t, err)
		assert.False(t, ok)

		children, err := tx.FindByParent(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, []string{"a2"}, ids(children))
		return nil
	})
	require.NoError(t, err)

	err = s.View(ctx, func(rd nestedset.Reader[string, string]) error {
		all, err := rd.FindAllOrderedByLeft(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"r1", "a", "a2", "b", "b1", "r2", "c"}, ids(all))
		return nil
	})
	require.NoError(t, err)
}

func testRollback(t *testing.T, newStore NewStoreFunc) {
	ctx := context.Background()
	s := newStore(t, Forest()...)
	abort := errors.New("abort")

	err := s.Update(ctx, func(tx nestedset.Tx[string, string]) error {
		require.NoError(t, tx.DeleteAll(ctx, "r2", "c"))
		require.NoError(t, tx.SaveAll(ctx, Node{ID: "x", Left: 13, Right: 14}))
		return abort
	})
	assert.ErrorIs(t, err, abort)

	err = s.View(ctx, func(rd nestedset.Reader[string, string]) error {
		all, err := rd.FindAllOrderedByLeft(ctx)
		require.NoError(t, err)
		if diff := cmp.Diff(Forest(), all); diff != "" {
			t.Errorf("-want, +got:\n%s", diff)
		}
		return nil
	})
	require.NoError(t, err)
}

func testIsolation(t *testing.T, newStore NewStoreFunc) {
	ctx := context.Background()
	s := newStore(t, Forest()...)

	err := s.Update(ctx, func(tx nestedset.Tx[string, string]) error {
		require.NoError(t, tx.SaveAll(ctx, Node{ID: "x", Left: 17, Right: 18}))
		return s.View(ctx, func(rd nestedset.Reader[string, string]) error {
			_, ok, err := rd.Get(ctx, "x")
			require.NoError(t, err)
			assert.False(t, ok, "uncommitted write is visible outside its unit of work")
			return nil
		})
	})
	require.NoError(t, err)

	err = s.View(ctx, func(rd nestedset.Reader[string, string]) error {
		_, ok, err := rd.Get(ctx, "x")
		require.NoError(t, err)
		assert.True(t, ok)
		return nil
	})
	require.NoError(t, err)
}
