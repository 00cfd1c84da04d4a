package nestedset

// Direction selects the neighbour a node is swapped with.
type Direction int

const (
	// Up swaps the node with its previous sibling.
	Up Direction = iota
	// Down swaps the node with its next sibling.
	Down
)

func (d Direction) String() string {
	switch d {
	case Up:
		return "up"
	case Down:
		return "down"
	default:
		return "unknown"
	}
}
