package idxtable

type Entry[K comparable, T any] interface {
	ID() K
	Data() T
}

type entry[K comparable, T any] struct {
	id   K
	data T
}

func (r entry[K, T]) ID() K   { return r.id }
func (r entry[K, T]) Data() T { return r.data }

func NewEntry[K comparable, T any](id K, d T) Entry[K, T] {
	return entry[K, T]{
		id:   id,
		data: d,
	}
}
