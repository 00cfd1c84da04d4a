// Package memstore is an in-memory nestedset.Store.
//
// Records live in an idxtable keyed by node id; a B-tree ordered by left
// serves the range queries. A unit of work operates on a copy-on-write clone
// of the B-tree plus a private overlay of staged records, so nothing it does
// is visible to others until it commits. Units of work are serialized by a
// single writer gate: the whole interval space of a forest is one shared
// resource.
package memstore

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/btree"
	"github.com/henderiw/nestedset/pkg/idxtable"
	"github.com/henderiw/nestedset/pkg/nestedset"
)

// Config tunes a Store.
type Config struct {
	// Degree is the degree of the left-ordered B-tree index.
	Degree int
	// LockTimeout bounds the wait for the writer gate. Zero waits as long as
	// the context allows.
	LockTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Degree:      32,
		LockTimeout: 5 * time.Second,
	}
}

// item is the index key: left, then the record's sequence number so equal
// lefts in damaged data never collide and keep their insertion order.
type item[ID comparable] struct {
	left int
	seq  uint64
	id   ID
}

func lessItem[ID comparable](a, b item[ID]) bool {
	if a.left != b.left {
		return a.left < b.left
	}
	return a.seq < b.seq
}

type stored[ID comparable, P any] struct {
	node nestedset.Node[ID, P]
	seq  uint64
}

type Store[ID comparable, P any] struct {
	cfg  Config
	gate chan struct{}

	m       *sync.RWMutex
	records idxtable.Table[ID, stored[ID, P]]
	index   *btree.BTreeG[item[ID]]
	nextSeq uint64
}

var _ nestedset.Store[string, struct{}] = &Store[string, struct{}]{}

// New returns a store holding the given nodes as they are, without any
// validation, which makes it usable for repairing damaged data with Rebuild.
func New[ID comparable, P any](cfg Config, nodes ...nestedset.Node[ID, P]) (*Store[ID, P], error) {
	if cfg.Degree < 2 {
		cfg.Degree = DefaultConfig().Degree
	}
	r := &Store[ID, P]{
		cfg:   cfg,
		gate:  make(chan struct{}, 1),
		m:     new(sync.RWMutex),
		index: btree.NewG[item[ID]](cfg.Degree, lessItem[ID]),
	}

	entries := make([]idxtable.Entry[ID, stored[ID, P]], 0, len(nodes))
	for _, n := range nodes {
		r.nextSeq++
		entries = append(entries, idxtable.NewEntry(n.ID, stored[ID, P]{node: n.Clone(), seq: r.nextSeq}))
	}
	records, err := idxtable.NewTable(entries...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", nestedset.ErrPreconditionViolation, err)
	}
	r.records = records

	iter := records.Iterate()
	for iter.Next() {
		s := iter.Value()
		r.index.ReplaceOrInsert(item[ID]{left: s.node.Left, seq: s.seq, id: iter.ID()})
	}
	return r, nil
}

// Len returns the number of committed nodes.
func (r *Store[ID, P]) Len() int {
	return r.records.Count()
}

func (r *Store[ID, P]) View(ctx context.Context, fn func(rd nestedset.Reader[ID, P]) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.m.RLock()
	defer r.m.RUnlock()

	return fn(&snapshot[ID, P]{index: r.index, records: r.records})
}

func (r *Store[ID, P]) Update(ctx context.Context, fn func(tx nestedset.Tx[ID, P]) error) error {
	if err := r.acquire(ctx); err != nil {
		return err
	}
	defer r.release()

	// Clone hands the copy-on-write context to the clone; readers of the
	// committed index are unaffected but Clone itself must not race
	r.m.Lock()
	t := &tx[ID, P]{
		snapshot: &snapshot[ID, P]{
			index:   r.index.Clone(),
			records: r.records,
			staged:  map[ID]*stored[ID, P]{},
		},
		nextSeq: r.nextSeq,
	}
	r.m.Unlock()

	if err := fn(t); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	r.m.Lock()
	defer r.m.Unlock()
	for id, s := range t.staged {
		if s == nil {
			if err := r.records.Release(id); err != nil {
				return err
			}
			continue
		}
		r.records.Set(id, *s)
	}
	r.index = t.index
	r.nextSeq = t.nextSeq
	return nil
}

func (r *Store[ID, P]) acquire(ctx context.Context) error {
	if r.cfg.LockTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.LockTimeout)
		defer cancel()
	}
	select {
	case r.gate <- struct{}{}:
		return nil
	case <-ctx.Done():
		err := fmt.Errorf("acquire writer lock: %w", ctx.Err())
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nestedset.ConflictError(err)
		}
		return err
	}
}

func (r *Store[ID, P]) release() {
	<-r.gate
}

// tx is a unit of work. The writer gate is held for its whole lifetime, so
// Lock only has to hand out fresh values.
type tx[ID comparable, P any] struct {
	*snapshot[ID, P]
	nextSeq uint64
}

func (r *tx[ID, P]) Lock(ctx context.Context, id ID) (nestedset.Node[ID, P], bool, error) {
	if err := ctx.Err(); err != nil {
		return nestedset.Node[ID, P]{}, false, err
	}
	return r.Get(ctx, id)
}

func (r *tx[ID, P]) SaveAll(ctx context.Context, nodes ...nestedset.Node[ID, P]) error {
	for _, n := range nodes {
		seq := uint64(0)
		if old, ok := r.lookup(n.ID); ok {
			r.index.Delete(item[ID]{left: old.node.Left, seq: old.seq, id: n.ID})
			seq = old.seq
		} else {
			r.nextSeq++
			seq = r.nextSeq
		}
		r.index.ReplaceOrInsert(item[ID]{left: n.Left, seq: seq, id: n.ID})
		r.staged[n.ID] = &stored[ID, P]{node: n.Clone(), seq: seq}
	}
	return ctx.Err()
}

func (r *tx[ID, P]) DeleteAll(ctx context.Context, ids ...ID) error {
	for _, id := range ids {
		old, ok := r.lookup(id)
		if !ok {
			continue
		}
		r.index.Delete(item[ID]{left: old.node.Left, seq: old.seq, id: id})
		r.staged[id] = nil
	}
	return ctx.Err()
}

// snapshot answers the queries of nestedset.Reader from an index and the
// records table, with an optional overlay of staged records.
type snapshot[ID comparable, P any] struct {
	index   *btree.BTreeG[item[ID]]
	records idxtable.Table[ID, stored[ID, P]]
	// staged holds the writes of a unit of work; a nil value marks a delete
	staged map[ID]*stored[ID, P]
}

func (r *snapshot[ID, P]) lookup(id ID) (stored[ID, P], bool) {
	if s, ok := r.staged[id]; ok {
		if s == nil {
			return stored[ID, P]{}, false
		}
		return *s, true
	}
	s, err := r.records.Get(id)
	if err != nil {
		return stored[ID, P]{}, false
	}
	return s, true
}

func (r *snapshot[ID, P]) node(it item[ID]) nestedset.Node[ID, P] {
	s, _ := r.lookup(it.id)
	return s.node.Clone()
}

func lower[ID comparable](left int) item[ID] {
	return item[ID]{left: left}
}

func upper[ID comparable](left int) item[ID] {
	return item[ID]{left: left, seq: math.MaxUint64}
}

// collect walks the index with walk and keeps the nodes accepted by filter.
func (r *snapshot[ID, P]) collect(walk func(btree.ItemIteratorG[item[ID]]), filter func(n nestedset.Node[ID, P]) bool) []nestedset.Node[ID, P] {
	nodes := []nestedset.Node[ID, P]{}
	walk(func(it item[ID]) bool {
		n := r.node(it)
		if filter == nil || filter(n) {
			nodes = append(nodes, n)
		}
		return true
	})
	return nodes
}

// first walks the index with walk and returns the first node accepted by filter.
func (r *snapshot[ID, P]) first(walk func(btree.ItemIteratorG[item[ID]]), filter func(n nestedset.Node[ID, P]) bool) (nestedset.Node[ID, P], bool) {
	var found nestedset.Node[ID, P]
	var ok bool
	walk(func(it item[ID]) bool {
		n := r.node(it)
		if filter(n) {
			found, ok = n, true
			return false
		}
		return true
	})
	return found, ok
}

func (r *snapshot[ID, P]) ascendRange(from, to int) func(btree.ItemIteratorG[item[ID]]) {
	return func(fn btree.ItemIteratorG[item[ID]]) {
		r.index.AscendRange(lower[ID](from), lower[ID](to), fn)
	}
}

func (r *snapshot[ID, P]) Get(ctx context.Context, id ID) (nestedset.Node[ID, P], bool, error) {
	s, ok := r.lookup(id)
	if !ok {
		return nestedset.Node[ID, P]{}, false, ctx.Err()
	}
	return s.node.Clone(), true, ctx.Err()
}

func (r *snapshot[ID, P]) FindAllOrderedByLeft(ctx context.Context) ([]nestedset.Node[ID, P], error) {
	return r.collect(r.index.Ascend, nil), ctx.Err()
}

func (r *snapshot[ID, P]) FindRoots(ctx context.Context) ([]nestedset.Node[ID, P], error) {
	return r.collect(r.index.Ascend, func(n nestedset.Node[ID, P]) bool {
		return n.ParentID == nil
	}), ctx.Err()
}

func (r *snapshot[ID, P]) FindLeaves(ctx context.Context) ([]nestedset.Node[ID, P], error) {
	return r.collect(r.index.Ascend, func(n nestedset.Node[ID, P]) bool {
		return n.IsLeaf()
	}), ctx.Err()
}

func (r *snapshot[ID, P]) FindPrevSibling(ctx context.Context, parent *ID, left int) (nestedset.Node[ID, P], bool, error) {
	n, ok := r.first(func(fn btree.ItemIteratorG[item[ID]]) {
		r.index.DescendLessOrEqual(upper[ID](left-1), fn)
	}, func(n nestedset.Node[ID, P]) bool {
		return n.Right < left && nestedset.SameParent(n.ParentID, parent)
	})
	return n, ok, ctx.Err()
}

func (r *snapshot[ID, P]) FindNextSibling(ctx context.Context, parent *ID, right int) (nestedset.Node[ID, P], bool, error) {
	n, ok := r.first(func(fn btree.ItemIteratorG[item[ID]]) {
		r.index.AscendGreaterOrEqual(lower[ID](right+1), fn)
	}, func(n nestedset.Node[ID, P]) bool {
		return nestedset.SameParent(n.ParentID, parent)
	})
	return n, ok, ctx.Err()
}

func (r *snapshot[ID, P]) FindChildren(ctx context.Context, parent *ID) ([]nestedset.Node[ID, P], error) {
	isChild := func(n nestedset.Node[ID, P]) bool {
		return nestedset.SameParent(n.ParentID, parent)
	}
	if parent == nil {
		return r.collect(r.index.Ascend, isChild), ctx.Err()
	}
	p, ok := r.lookup(*parent)
	if !ok {
		return []nestedset.Node[ID, P]{}, ctx.Err()
	}
	return r.collect(r.ascendRange(p.node.Left+1, p.node.Right), isChild), ctx.Err()
}

func (r *snapshot[ID, P]) FindSiblings(ctx context.Context, parent *ID, self ID) ([]nestedset.Node[ID, P], error) {
	children, err := r.FindChildren(ctx, parent)
	if err != nil {
		return nil, err
	}
	siblings := make([]nestedset.Node[ID, P], 0, len(children))
	for _, n := range children {
		if n.ID != self {
			siblings = append(siblings, n)
		}
	}
	return siblings, nil
}

func (r *snapshot[ID, P]) FindAncestors(ctx context.Context, left, right int) ([]nestedset.Node[ID, P], error) {
	return r.collect(func(fn btree.ItemIteratorG[item[ID]]) {
		r.index.DescendLessOrEqual(upper[ID](left-1), fn)
	}, func(n nestedset.Node[ID, P]) bool {
		return n.Right > right
	}), ctx.Err()
}

func (r *snapshot[ID, P]) FindDescendants(ctx context.Context, left, right int) ([]nestedset.Node[ID, P], error) {
	return r.collect(r.ascendRange(left+1, right), func(n nestedset.Node[ID, P]) bool {
		return n.Right < right
	}), ctx.Err()
}

func (r *snapshot[ID, P]) FindSubtree(ctx context.Context, left, right int) ([]nestedset.Node[ID, P], error) {
	return r.collect(r.ascendRange(left, right+1), func(n nestedset.Node[ID, P]) bool {
		return n.Right <= right
	}), ctx.Err()
}

func (r *snapshot[ID, P]) FindContaining(ctx context.Context, left, right int) ([]nestedset.Node[ID, P], error) {
	return r.collect(func(fn btree.ItemIteratorG[item[ID]]) {
		r.index.AscendLessThan(lower[ID](left+1), fn)
	}, func(n nestedset.Node[ID, P]) bool {
		return n.Right >= right
	}), ctx.Err()
}

func (r *snapshot[ID, P]) FindExact(ctx context.Context, left, right int) ([]nestedset.Node[ID, P], error) {
	return r.collect(r.ascendRange(left, left+1), func(n nestedset.Node[ID, P]) bool {
		return n.Right == right
	}), ctx.Err()
}

func (r *snapshot[ID, P]) FindNodesToShift(ctx context.Context, right int) ([]nestedset.Node[ID, P], error) {
	return r.collect(r.index.Ascend, func(n nestedset.Node[ID, P]) bool {
		return n.Right > right
	}), ctx.Err()
}

func (r *snapshot[ID, P]) FindByLeft(ctx context.Context, left int) (nestedset.Node[ID, P], bool, error) {
	n, ok := r.first(r.ascendRange(left, left+1), func(nestedset.Node[ID, P]) bool { return true })
	return n, ok, ctx.Err()
}

func (r *snapshot[ID, P]) FindByRight(ctx context.Context, right int) (nestedset.Node[ID, P], bool, error) {
	n, ok := r.first(r.index.Ascend, func(n nestedset.Node[ID, P]) bool { return n.Right == right })
	return n, ok, ctx.Err()
}

func (r *snapshot[ID, P]) FindByParent(ctx context.Context, parent ID) ([]nestedset.Node[ID, P], error) {
	return r.FindChildren(ctx, &parent)
}

func (r *snapshot[ID, P]) FindByLeftBetween(ctx context.Context, left, right int) ([]nestedset.Node[ID, P], error) {
	return r.collect(r.ascendRange(left, right+1), nil), ctx.Err()
}
