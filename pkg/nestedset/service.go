// Package nestedset maintains a forest encoded as nested intervals.
//
// Every node carries a [Left, Right] interval. A node's interval strictly
// contains the intervals of all its descendants, so ancestor, descendant and
// subtree queries are plain range queries against the Store. Service keeps the
// encoding consistent while nodes are created, moved, deleted or renumbered;
// each of those runs as one unit of work against the Store.
package nestedset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/henderiw/nestedset"

// Config tunes a Service.
type Config struct {
	// LockTimeout bounds every record lock taken during a mutation.
	// Zero means the lock waits as long as the context allows.
	LockTimeout time.Duration
	// VerifyMutations validates the whole forest before every commit and
	// aborts the mutation with ErrConsistencyViolation when it is broken.
	VerifyMutations bool
	// Logger receives debug output for applied mutations and warnings for
	// failed ones. Nil disables logging.
	Logger *slog.Logger
}

// DefaultConfig returns the configuration used by New when none is given.
func DefaultConfig() Config {
	return Config{
		LockTimeout: 5 * time.Second,
	}
}

// Service is the engine callers use to query and mutate one forest.
// It is safe for concurrent use; consistency between concurrent mutations
// comes from the locks and transactions of the Store.
type Service[ID comparable, P any] struct {
	store  Store[ID, P]
	cfg    Config
	logger *slog.Logger
	tracer trace.Tracer
}

func New[ID comparable, P any](store Store[ID, P], cfg Config) *Service[ID, P] {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service[ID, P]{
		store:  store,
		cfg:    cfg,
		logger: logger,
		tracer: otel.Tracer(tracerName),
	}
}

// Get returns the current value of a node.
func (r *Service[ID, P]) Get(ctx context.Context, id ID) (Node[ID, P], error) {
	var n Node[ID, P]
	err := r.store.View(ctx, func(rd Reader[ID, P]) error {
		var ok bool
		var err error
		n, ok, err = rd.Get(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			return notFound("node", id)
		}
		return nil
	})
	return n, err
}

// GetAncestors returns the ancestors of node, nearest first.
func (r *Service[ID, P]) GetAncestors(ctx context.Context, node Node[ID, P]) ([]Node[ID, P], error) {
	return r.view(ctx, func(rd Reader[ID, P]) ([]Node[ID, P], error) {
		return rd.FindAncestors(ctx, node.Left, node.Right)
	})
}

// GetDescendants returns the descendants of node in left order.
func (r *Service[ID, P]) GetDescendants(ctx context.Context, node Node[ID, P]) ([]Node[ID, P], error) {
	return r.view(ctx, func(rd Reader[ID, P]) ([]Node[ID, P], error) {
		return rd.FindDescendants(ctx, node.Left, node.Right)
	})
}

// GetSubtree returns node and its descendants in left order.
func (r *Service[ID, P]) GetSubtree(ctx context.Context, node Node[ID, P]) ([]Node[ID, P], error) {
	return r.view(ctx, func(rd Reader[ID, P]) ([]Node[ID, P], error) {
		return rd.FindSubtree(ctx, node.Left, node.Right)
	})
}

// GetChildren returns the direct children of parent, the roots for nil.
func (r *Service[ID, P]) GetChildren(ctx context.Context, parent *ID) ([]Node[ID, P], error) {
	return r.view(ctx, func(rd Reader[ID, P]) ([]Node[ID, P], error) {
		return rd.FindChildren(ctx, parent)
	})
}

func (r *Service[ID, P]) GetRoots(ctx context.Context) ([]Node[ID, P], error) {
	return r.view(ctx, func(rd Reader[ID, P]) ([]Node[ID, P], error) {
		return rd.FindRoots(ctx)
	})
}

func (r *Service[ID, P]) GetLeaves(ctx context.Context) ([]Node[ID, P], error) {
	return r.view(ctx, func(rd Reader[ID, P]) ([]Node[ID, P], error) {
		return rd.FindLeaves(ctx)
	})
}

// GetAll returns every node in left order.
func (r *Service[ID, P]) GetAll(ctx context.Context) ([]Node[ID, P], error) {
	return r.view(ctx, func(rd Reader[ID, P]) ([]Node[ID, P], error) {
		return rd.FindAllOrderedByLeft(ctx)
	})
}

// Tree reconstructs the hierarchy below root, or the whole forest for nil.
func (r *Service[ID, P]) Tree(ctx context.Context, root *ID) ([]TreeNode[ID, P], error) {
	nodes, err := r.view(ctx, func(rd Reader[ID, P]) ([]Node[ID, P], error) {
		if root == nil {
			return rd.FindAllOrderedByLeft(ctx)
		}
		n, ok, err := rd.Get(ctx, *root)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, notFound("node", *root)
		}
		return rd.FindSubtree(ctx, n.Left, n.Right)
	})
	if err != nil {
		return nil, err
	}
	return Build(nodes, NewTreeNode[ID, P]), nil
}

// Validate checks every interval invariant of the stored forest.
func (r *Service[ID, P]) Validate(ctx context.Context) error {
	return r.store.View(ctx, func(rd Reader[ID, P]) error {
		all, err := rd.FindAllOrderedByLeft(ctx)
		if err != nil {
			return err
		}
		return Validate(all)
	})
}

// CreateNode places a new leaf as the last child of parent, or as the last
// root when parent is nil, and returns it with its interval assigned.
func (r *Service[ID, P]) CreateNode(ctx context.Context, id ID, parent *ID, payload P) (Node[ID, P], error) {
	var created Node[ID, P]
	err := r.mutate(ctx, "create", r.attrs(id, parent), func(ctx context.Context, tx Tx[ID, P]) (int, error) {
		if _, exists, err := tx.Get(ctx, id); err != nil {
			return 0, err
		} else if exists {
			return 0, preconditionf("node %v already exists", id)
		}
		gap, err := allocate(ctx, tx, parent, 2)
		if err != nil {
			return 0, err
		}
		created = Node[ID, P]{ID: id, Left: gap.left, Right: gap.right, Payload: payload}
		if parent != nil {
			created.ParentID = Ref(*parent)
		}
		if err := tx.SaveAll(ctx, created); err != nil {
			return 0, err
		}
		return gap.shifted + 1, nil
	})
	if err != nil {
		return Node[ID, P]{}, err
	}
	return created, nil
}

// UpdateNode moves the subtree of id below newParent, as its last child, or
// to the end of the forest when newParent is nil.
func (r *Service[ID, P]) UpdateNode(ctx context.Context, id ID, newParent *ID) (Node[ID, P], error) {
	var moved Node[ID, P]
	err := r.mutate(ctx, "update", r.attrs(id, newParent), func(ctx context.Context, tx Tx[ID, P]) (int, error) {
		node, err := lockNode(ctx, tx, id)
		if err != nil {
			return 0, err
		}
		if newParent != nil {
			if *newParent == id {
				return 0, preconditionf("node %v cannot become its own parent", id)
			}
			np, ok, err := tx.Get(ctx, *newParent)
			if err != nil {
				return 0, err
			}
			if !ok {
				return 0, notFound("parent", *newParent)
			}
			if node.Contains(np) {
				return 0, preconditionf("node %v cannot move under its own descendant %v", id, np.ID)
			}
		}

		subtree, err := tx.FindSubtree(ctx, node.Left, node.Right)
		if err != nil {
			return 0, err
		}
		ids := make([]ID, 0, len(subtree))
		for _, n := range subtree {
			ids = append(ids, n.ID)
		}
		if err := tx.DeleteAll(ctx, ids...); err != nil {
			return 0, err
		}

		rest, err := tx.FindAllOrderedByLeft(ctx)
		if err != nil {
			return 0, err
		}
		closed := closeGap(node, node.Width(), rest)
		if err := tx.SaveAll(ctx, closed...); err != nil {
			return 0, err
		}

		gap, err := allocate(ctx, tx, newParent, node.Width())
		if err != nil {
			return 0, err
		}
		shift(subtree, gap.left-node.Left)
		for i := range subtree {
			if subtree[i].ID != id {
				continue
			}
			subtree[i].ParentID = nil
			if newParent != nil {
				subtree[i].ParentID = Ref(*newParent)
			}
			moved = subtree[i]
		}
		if err := tx.SaveAll(ctx, subtree...); err != nil {
			return 0, err
		}
		return len(closed) + gap.shifted + len(subtree), nil
	})
	if err != nil {
		return Node[ID, P]{}, err
	}
	return moved, nil
}

// UpdatePayload replaces the payload of id. The structure is left alone.
func (r *Service[ID, P]) UpdatePayload(ctx context.Context, id ID, payload P) (Node[ID, P], error) {
	var updated Node[ID, P]
	err := r.mutate(ctx, "update_payload", r.attrs(id, nil), func(ctx context.Context, tx Tx[ID, P]) (int, error) {
		n, ok, err := tx.Lock(ctx, id)
		if err != nil {
			return 0, fmt.Errorf("lock node %v: %w", id, err)
		}
		if !ok {
			return 0, notFound("node", id)
		}
		n.Payload = payload
		if err := tx.SaveAll(ctx, n); err != nil {
			return 0, err
		}
		updated = n
		return 1, nil
	})
	if err != nil {
		return Node[ID, P]{}, err
	}
	return updated, nil
}

// DeleteNode removes id together with its descendants and closes the gap
// they leave behind.
func (r *Service[ID, P]) DeleteNode(ctx context.Context, id ID) error {
	return r.mutate(ctx, "delete", r.attrs(id, nil), func(ctx context.Context, tx Tx[ID, P]) (int, error) {
		node, err := lockNode(ctx, tx, id)
		if err != nil {
			return 0, err
		}
		subtree, err := tx.FindSubtree(ctx, node.Left, node.Right)
		if err != nil {
			return 0, err
		}
		ids := make([]ID, 0, len(subtree))
		for _, n := range subtree {
			ids = append(ids, n.ID)
		}
		if err := tx.DeleteAll(ctx, ids...); err != nil {
			return 0, err
		}

		rest, err := tx.FindAllOrderedByLeft(ctx)
		if err != nil {
			return 0, err
		}
		closed := closeGap(node, node.Width(), rest)
		if err := tx.SaveAll(ctx, closed...); err != nil {
			return 0, err
		}
		return len(ids) + len(closed), nil
	})
}

// MoveUp swaps id with its previous sibling. Without one the node is
// returned unchanged.
func (r *Service[ID, P]) MoveUp(ctx context.Context, id ID) (Node[ID, P], error) {
	return r.Move(ctx, id, Up)
}

// MoveDown swaps id with its next sibling. Without one the node is
// returned unchanged.
func (r *Service[ID, P]) MoveDown(ctx context.Context, id ID) (Node[ID, P], error) {
	return r.Move(ctx, id, Down)
}

// Move swaps the subtree of id with the adjacent sibling subtree in the given
// direction. Parentage never changes.
func (r *Service[ID, P]) Move(ctx context.Context, id ID, dir Direction) (Node[ID, P], error) {
	var moved Node[ID, P]
	op := "move_" + dir.String()
	err := r.mutate(ctx, op, r.attrs(id, nil), func(ctx context.Context, tx Tx[ID, P]) (int, error) {
		node, err := lockNode(ctx, tx, id)
		if err != nil {
			return 0, err
		}
		moved = node

		var sibling Node[ID, P]
		var found bool
		switch dir {
		case Up:
			sibling, found, err = tx.FindPrevSibling(ctx, node.ParentID, node.Left)
		case Down:
			sibling, found, err = tx.FindNextSibling(ctx, node.ParentID, node.Right)
		default:
			return 0, preconditionf("unknown direction %d", dir)
		}
		if err != nil || !found {
			return 0, err
		}

		nodeTree, err := tx.FindSubtree(ctx, node.Left, node.Right)
		if err != nil {
			return 0, err
		}
		siblingTree, err := tx.FindSubtree(ctx, sibling.Left, sibling.Right)
		if err != nil {
			return 0, err
		}
		batch := siblingSwap(dir, nodeTree, siblingTree)
		if err := tx.SaveAll(ctx, batch...); err != nil {
			return 0, err
		}
		for _, n := range batch {
			if n.ID == id {
				moved = n
			}
		}
		return len(batch), nil
	})
	if err != nil {
		return Node[ID, P]{}, err
	}
	return moved, nil
}

// Rebuild renumbers every interval from parent pointers. With a nil root the
// whole forest is renumbered from 1 and the value following the last right is
// returned; otherwise the descendants of root are renumbered inside root's
// interval and root's right is returned. Rebuild is a maintenance operation:
// it is the only operation that repairs ErrConsistencyViolation.
func (r *Service[ID, P]) Rebuild(ctx context.Context, root *ID) (int, error) {
	var boundary int
	var attrs []attribute.KeyValue
	if root != nil {
		attrs = append(attrs, attribute.String("nestedset.root", fmt.Sprint(*root)))
	}
	err := r.mutate(ctx, "rebuild", attrs, func(ctx context.Context, tx Tx[ID, P]) (int, error) {
		if root == nil {
			b, saved, err := rebuildForest(ctx, tx)
			boundary = b
			return saved, err
		}
		n, ok, err := tx.Get(ctx, *root)
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, notFound("node", *root)
		}
		b, saved, err := rebuildSubtree(ctx, tx, n)
		boundary = b
		return saved, err
	})
	if err != nil {
		return 0, err
	}
	return boundary, nil
}

// lockNode locks the parent of id, when it has one, and then id itself, and
// returns the freshly read node. The order is the same for every mutation.
func lockNode[ID comparable, P any](ctx context.Context, tx Tx[ID, P], id ID) (Node[ID, P], error) {
	n, ok, err := tx.Get(ctx, id)
	if err != nil {
		return Node[ID, P]{}, err
	}
	if !ok {
		return Node[ID, P]{}, notFound("node", id)
	}
	if parent, ok := n.Parent(); ok {
		if _, _, err := tx.Lock(ctx, parent); err != nil {
			return Node[ID, P]{}, fmt.Errorf("lock parent %v: %w", parent, err)
		}
	}
	n, ok, err = tx.Lock(ctx, id)
	if err != nil {
		return Node[ID, P]{}, fmt.Errorf("lock node %v: %w", id, err)
	}
	if !ok {
		return Node[ID, P]{}, notFound("node", id)
	}
	if n.Left >= n.Right {
		return Node[ID, P]{}, preconditionf("node %v has malformed interval [%d,%d]", id, n.Left, n.Right)
	}
	return n, nil
}

func (r *Service[ID, P]) view(ctx context.Context, fn func(rd Reader[ID, P]) ([]Node[ID, P], error)) ([]Node[ID, P], error) {
	var nodes []Node[ID, P]
	err := r.store.View(ctx, func(rd Reader[ID, P]) error {
		var err error
		nodes, err = fn(rd)
		return err
	})
	return nodes, err
}

// mutate runs fn in one unit of work and records a span, metrics and a log
// line for it. fn returns the number of nodes it wrote.
func (r *Service[ID, P]) mutate(ctx context.Context, op string, attrs []attribute.KeyValue, fn func(ctx context.Context, tx Tx[ID, P]) (int, error)) error {
	ctx, span := r.tracer.Start(ctx, "nestedset."+op, trace.WithAttributes(attrs...))
	defer span.End()

	start := time.Now()
	var written int
	err := r.store.Update(ctx, func(tx Tx[ID, P]) error {
		ttx := &timedTx[ID, P]{Tx: tx, timeout: r.cfg.LockTimeout}
		n, err := fn(ctx, ttx)
		if err != nil {
			return err
		}
		written = n
		if !r.cfg.VerifyMutations {
			return nil
		}
		all, err := tx.FindAllOrderedByLeft(ctx)
		if err != nil {
			return err
		}
		return Validate(all)
	})
	mutationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	mutationsTotal.WithLabelValues(op, resultLabel(err)).Inc()

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.logger.Warn("nested set mutation failed",
			slog.String("op", op),
			slog.Bool("retryable", IsRetryable(err)),
			slog.String("error", err.Error()))
		return fmt.Errorf("%s: %w", op, err)
	}
	shiftedNodes.WithLabelValues(op).Observe(float64(written))
	span.SetAttributes(attribute.Int("nestedset.written", written))
	r.logger.Debug("nested set mutation applied",
		slog.String("op", op),
		slog.Int("written", written),
		slog.Duration("duration", time.Since(start)))
	return nil
}

func (r *Service[ID, P]) attrs(id ID, parent *ID) []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.String("nestedset.id", fmt.Sprint(id))}
	if parent != nil {
		attrs = append(attrs, attribute.String("nestedset.parent", fmt.Sprint(*parent)))
	}
	return attrs
}

// timedTx bounds every Lock call of the wrapped Tx by a timeout and reports
// an expired lock wait as a concurrency conflict.
type timedTx[ID comparable, P any] struct {
	Tx[ID, P]
	timeout time.Duration
}

func (r *timedTx[ID, P]) Lock(ctx context.Context, id ID) (Node[ID, P], bool, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	n, ok, err := r.Tx.Lock(ctx, id)
	if err != nil && errors.Is(err, context.DeadlineExceeded) {
		return n, ok, ConflictError(err)
	}
	return n, ok, err
}
