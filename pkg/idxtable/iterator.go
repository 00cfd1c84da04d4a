package idxtable

// Iterator walks a point in time copy of a table in sequence order.
type Iterator[K comparable, T any] struct {
	current int
	keys    []K
	table   map[K]row[T]
}

func (r *Iterator[K, T]) Value() T {
	return r.table[r.keys[r.current]].data
}

func (r *Iterator[K, T]) ID() K {
	return r.keys[r.current]
}

func (r *Iterator[K, T]) Next() bool {
	r.current++
	return r.current < len(r.keys)
}
