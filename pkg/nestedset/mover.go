package nestedset

// swapSubtrees computes the final intervals of two sibling subtrees that trade
// places and returns them as one batch. first is the subtree that currently
// comes first in left order, second the one right after it.
//
// The combined span [first.Left, second.Right] is preserved: the former second
// subtree starts where first started and the former first subtree ends where
// second ended. For adjacent siblings this is a shift by the other subtree's
// width; any gap between them stays in place.
func swapSubtrees[ID comparable, P any](first, second []Node[ID, P]) []Node[ID, P] {
	if len(first) == 0 || len(second) == 0 {
		return nil
	}
	firstRoot, secondRoot := first[0], second[0]

	toFront := secondRoot.Left - firstRoot.Left
	toBack := secondRoot.Right - firstRoot.Right

	out := make([]Node[ID, P], 0, len(first)+len(second))
	movedFirst := append([]Node[ID, P](nil), first...)
	shift(movedFirst, toBack)
	movedSecond := append([]Node[ID, P](nil), second...)
	shift(movedSecond, -toFront)
	out = append(out, movedSecond...)
	return append(out, movedFirst...)
}

// siblingSwap orders the subtrees of node and its sibling for swapSubtrees
// depending on the direction of the move.
func siblingSwap[ID comparable, P any](dir Direction, nodeTree, siblingTree []Node[ID, P]) []Node[ID, P] {
	if dir == Up {
		return swapSubtrees(siblingTree, nodeTree)
	}
	return swapSubtrees(nodeTree, siblingTree)
}
