package nestedset

// closeGap compacts the interval space after the subtree of removed, which is
// width wide, has been deleted. Both adjustments are derived from the original
// snapshot values so an ancestor is never shifted twice. Only changed nodes are
// returned; the snapshot is left untouched.
func closeGap[ID comparable, P any](removed Node[ID, P], width int, snapshot []Node[ID, P]) []Node[ID, P] {
	changed := make([]Node[ID, P], 0, len(snapshot))
	for _, n := range snapshot {
		switch {
		case n.Left >= removed.Left && n.Right <= removed.Right:
			// part of the removed subtree
			continue
		case n.Left > removed.Right:
			n.Left -= width
			n.Right -= width
			changed = append(changed, n)
		case n.Left < removed.Right && n.Right > removed.Right:
			n.Right -= width
			changed = append(changed, n)
		}
	}
	return changed
}
