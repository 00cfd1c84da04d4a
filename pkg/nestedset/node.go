package nestedset

import "fmt"

// Node is one record of a nested-set forest.
// The engine owns Left, Right and ParentID; Payload is carried along untouched.
type Node[ID comparable, P any] struct {
	ID       ID
	Left     int
	Right    int
	ParentID *ID
	Payload  P
}

// Parent returns the parent id and whether the node has one.
func (r Node[ID, P]) Parent() (ID, bool) {
	if r.ParentID == nil {
		var id ID
		return id, false
	}
	return *r.ParentID, true
}

func (r Node[ID, P]) IsRoot() bool { return r.ParentID == nil }

func (r Node[ID, P]) IsLeaf() bool { return r.Right == r.Left+1 }

// Width is right - left + 1, twice the number of nodes in the subtree.
func (r Node[ID, P]) Width() int { return r.Right - r.Left + 1 }

// Descendants returns the number of descendants encoded by the interval.
func (r Node[ID, P]) Descendants() int { return r.Width()/2 - 1 }

// Contains reports whether other lies strictly inside the interval of r.
func (r Node[ID, P]) Contains(other Node[ID, P]) bool {
	return other.Left > r.Left && other.Right < r.Right
}

// Clone returns a copy that shares nothing mutable with r apart from the payload.
func (r Node[ID, P]) Clone() Node[ID, P] {
	c := r
	if r.ParentID != nil {
		c.ParentID = Ref(*r.ParentID)
	}
	return c
}

func (r Node[ID, P]) String() string {
	if r.ParentID == nil {
		return fmt.Sprintf("id: %v, left: %d, right: %d", r.ID, r.Left, r.Right)
	}
	return fmt.Sprintf("id: %v, left: %d, right: %d, parent: %v", r.ID, r.Left, r.Right, *r.ParentID)
}

// Ref returns a pointer to a copy of id, handy for ParentID fields.
func Ref[ID comparable](id ID) *ID {
	return &id
}

// SameParent compares two optional parent references by value.
// Two nil references match, so roots form one sibling group.
func SameParent[ID comparable](a, b *ID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func shift[ID comparable, P any](nodes []Node[ID, P], offset int) {
	for i := range nodes {
		nodes[i].Left += offset
		nodes[i].Right += offset
	}
}
