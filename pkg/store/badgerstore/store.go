package badgerstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/henderiw/nestedset/pkg/nestedset"
	"github.com/henderiw/nestedset/pkg/store/storeutil"
)

type Store[ID comparable, P any] struct {
	db *badger.DB
}

var _ nestedset.Store[string, struct{}] = &Store[string, struct{}]{}

// Open opens the database described by cfg. Close releases it.
func Open[ID comparable, P any](cfg Config) (*Store[ID, P], error) {
	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}
	return &Store[ID, P]{db: db}, nil
}

// New wraps an already opened database. The caller keeps ownership of db.
func New[ID comparable, P any](db *badger.DB) *Store[ID, P] {
	return &Store[ID, P]{db: db}
}

func (r *Store[ID, P]) Close() error {
	return r.db.Close()
}

// Load writes nodes as they are, without any validation, replacing records
// with the same id. It is meant for seeding and for importing data that
// Rebuild will repair.
func (r *Store[ID, P]) Load(ctx context.Context, nodes ...nestedset.Node[ID, P]) error {
	return r.Update(ctx, func(tx nestedset.Tx[ID, P]) error {
		return tx.SaveAll(ctx, nodes...)
	})
}

func (r *Store[ID, P]) View(ctx context.Context, fn func(rd nestedset.Reader[ID, P]) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.db.View(func(txn *badger.Txn) error {
		return fn(newReader[ID, P](txn))
	})
}

func (r *Store[ID, P]) Update(ctx context.Context, fn func(tx nestedset.Tx[ID, P]) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := r.db.Update(func(txn *badger.Txn) error {
		if err := fn(&tx[ID, P]{reader: newReader[ID, P](txn)}); err != nil {
			return err
		}
		return ctx.Err()
	})
	if errors.Is(err, badger.ErrConflict) {
		return nestedset.ConflictError(err)
	}
	return err
}

// reader answers queries inside one badger transaction. In a read-write
// transaction the scans include the transaction's own pending writes.
type reader[ID comparable, P any] struct {
	storeutil.Scanner[ID, P]
	txn *badger.Txn
}

func newReader[ID comparable, P any](txn *badger.Txn) *reader[ID, P] {
	r := &reader[ID, P]{txn: txn}
	r.Scanner = storeutil.NewScanner[ID, P](r.loadAll, r.get)
	return r
}

func (r *reader[ID, P]) get(ctx context.Context, id ID) (nestedset.Node[ID, P], bool, error) {
	if err := ctx.Err(); err != nil {
		return nestedset.Node[ID, P]{}, false, err
	}
	key, err := nodeKey(id)
	if err != nil {
		return nestedset.Node[ID, P]{}, false, err
	}
	item, err := r.txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nestedset.Node[ID, P]{}, false, nil
	}
	if err != nil {
		return nestedset.Node[ID, P]{}, false, fmt.Errorf("get node %v: %w", id, err)
	}
	n, err := decode[ID, P](item)
	if err != nil {
		return nestedset.Node[ID, P]{}, false, err
	}
	return n, true, nil
}

// loadAll returns every node in key order.
func (r *reader[ID, P]) loadAll(ctx context.Context) ([]nestedset.Node[ID, P], error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = nodePrefix
	it := r.txn.NewIterator(opts)
	defer it.Close()

	nodes := []nestedset.Node[ID, P]{}
	for it.Seek(nodePrefix); it.ValidForPrefix(nodePrefix); it.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := decode[ID, P](it.Item())
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

func decode[ID comparable, P any](item *badger.Item) (nestedset.Node[ID, P], error) {
	var rec record[ID, P]
	err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &rec)
	})
	if err != nil {
		return nestedset.Node[ID, P]{}, fmt.Errorf("decode record %q: %w", item.Key(), err)
	}
	return nestedset.Node[ID, P]{
		ID:       rec.ID,
		Left:     rec.Left,
		Right:    rec.Right,
		ParentID: rec.ParentID,
		Payload:  rec.Payload,
	}, nil
}

type tx[ID comparable, P any] struct {
	*reader[ID, P]
}

// Lock reads the record through the transaction, which adds it to the read
// set: a concurrent commit touching it makes this transaction fail on commit.
func (r *tx[ID, P]) Lock(ctx context.Context, id ID) (nestedset.Node[ID, P], bool, error) {
	return r.get(ctx, id)
}

func (r *tx[ID, P]) SaveAll(ctx context.Context, nodes ...nestedset.Node[ID, P]) error {
	for _, n := range nodes {
		if err := ctx.Err(); err != nil {
			return err
		}
		key, err := nodeKey(n.ID)
		if err != nil {
			return err
		}
		val, err := json.Marshal(record[ID, P]{
			ID:       n.ID,
			Left:     n.Left,
			Right:    n.Right,
			ParentID: n.ParentID,
			Payload:  n.Payload,
		})
		if err != nil {
			return fmt.Errorf("encode node %v: %w", n.ID, err)
		}
		if err := r.txn.Set(key, val); err != nil {
			return fmt.Errorf("save node %v: %w", n.ID, err)
		}
	}
	return nil
}

func (r *tx[ID, P]) DeleteAll(ctx context.Context, ids ...ID) error {
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		key, err := nodeKey(id)
		if err != nil {
			return err
		}
		if err := r.txn.Delete(key); err != nil {
			return fmt.Errorf("delete node %v: %w", id, err)
		}
	}
	return nil
}
