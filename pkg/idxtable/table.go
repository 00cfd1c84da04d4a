package idxtable

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Table is a concurrency safe table of records keyed by a comparable id.
// Every id gets a sequence number when it is first claimed; iteration follows
// that sequence, which gives the table a stable natural order.
type Table[K comparable, T any] interface {
	Get(id K) (T, error)
	Set(id K, d T)
	Release(id K) error

	Iterate() *Iterator[K, T]

	Count() int
}

func NewTable[K comparable, T any](initEntries ...Entry[K, T]) (Table[K, T], error) {
	r := &table[K, T]{
		m:     new(sync.RWMutex),
		table: map[K]row[T]{},
	}

	var errm error
	for _, e := range initEntries {
		if err := r.add(e.ID(), e.Data()); err != nil {
			errm = errors.Join(errm, err)
		}
	}

	return r, errm
}

type row[T any] struct {
	seq  uint64
	data T
}

type table[K comparable, T any] struct {
	m       *sync.RWMutex
	table   map[K]row[T]
	nextSeq uint64
}

func (r *table[K, T]) Get(id K) (T, error) {
	r.m.RLock()
	defer r.m.RUnlock()

	d, ok := r.table[id]
	if !ok {
		var zero T
		return zero, fmt.Errorf("no match found for: %v", id)
	}
	return d.data, nil
}

// Set claims the id when it is free and updates it otherwise.
func (r *table[K, T]) Set(id K, d T) {
	r.m.Lock()
	defer r.m.Unlock()

	if r.isFree(id) {
		// cannot fail, the id is free and we hold the lock
		_ = r.add(id, d)
		return
	}
	_ = r.update(id, d)
}

func (r *table[K, T]) Release(id K) error {
	r.m.Lock()
	defer r.m.Unlock()

	return r.delete(id)
}

func (r *table[K, T]) Iterate() *Iterator[K, T] {
	r.m.RLock()
	defer r.m.RUnlock()

	return r.iterate()
}

func (r *table[K, T]) iterate() *Iterator[K, T] {
	keys := make([]K, 0, len(r.table))
	values := make(map[K]row[T], len(r.table))
	for key, d := range r.table {
		keys = append(keys, key)
		values[key] = d
	}
	sort.Slice(keys, func(i int, j int) bool {
		return values[keys[i]].seq < values[keys[j]].seq
	})

	return &Iterator[K, T]{current: -1, keys: keys, table: values}
}

func (r *table[K, T]) Count() int {
	r.m.RLock()
	defer r.m.RUnlock()

	return len(r.table)
}

func (r *table[K, T]) isFree(id K) bool {
	_, ok := r.table[id]
	return !ok
}

func (r *table[K, T]) add(id K, d T) error {
	if !r.isFree(id) {
		return fmt.Errorf("entry %v already exists", id)
	}
	r.nextSeq++
	r.table[id] = row[T]{seq: r.nextSeq, data: d}
	return nil
}

func (r *table[K, T]) update(id K, d T) error {
	old, ok := r.table[id]
	if !ok {
		return fmt.Errorf("entry %v not found", id)
	}
	r.table[id] = row[T]{seq: old.seq, data: d}
	return nil
}

func (r *table[K, T]) delete(id K) error {
	delete(r.table, id)
	return nil
}
