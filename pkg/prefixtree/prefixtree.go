// Package prefixtree keeps IP prefixes in a containment hierarchy backed by a
// nested-set forest: every prefix is a child of the longest stored prefix that
// contains it.
package prefixtree

import (
	"context"
	"errors"
	"fmt"
	"net/netip"

	"github.com/hansthienpondt/nipam/pkg/table"
	"github.com/henderiw/nestedset/pkg/nestedset"
	"go4.org/netipx"
	"k8s.io/apimachinery/pkg/labels"
)

type PrefixTree interface {
	Get(ctx context.Context, prefix netip.Prefix) (table.Route, error)
	Insert(ctx context.Context, route table.Route) error
	Delete(ctx context.Context, prefix netip.Prefix) error
	Update(ctx context.Context, route table.Route) error

	Count(ctx context.Context) (int, error)
	Has(ctx context.Context, prefix netip.Prefix) (bool, error)

	Lookup(ctx context.Context, addr netip.Addr) (table.Route, error)
	Children(ctx context.Context, prefix netip.Prefix) (table.Routes, error)
	Parents(ctx context.Context, prefix netip.Prefix) (table.Routes, error)
	Free(ctx context.Context, prefix netip.Prefix) ([]netip.Prefix, error)

	GetAll(ctx context.Context) (table.Routes, error)
	GetByLabel(ctx context.Context, selector labels.Selector) (table.Routes, error)
}

type Node = nestedset.Node[netip.Prefix, table.Route]

func New(store nestedset.Store[netip.Prefix, table.Route], cfg nestedset.Config) PrefixTree {
	return &prefixTree{
		svc: nestedset.New(store, cfg),
	}
}

type prefixTree struct {
	svc *nestedset.Service[netip.Prefix, table.Route]
}

func (r *prefixTree) Get(ctx context.Context, prefix netip.Prefix) (table.Route, error) {
	n, err := r.svc.Get(ctx, prefix.Masked())
	if err != nil {
		return table.Route{}, err
	}
	return n.Payload, nil
}

// Has reports whether prefix is stored. Only a missing node counts as absent;
// store failures are returned.
func (r *prefixTree) Has(ctx context.Context, prefix netip.Prefix) (bool, error) {
	_, err := r.svc.Get(ctx, prefix.Masked())
	if errors.Is(err, nestedset.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Insert stores route below the longest prefix containing it. Stored prefixes
// that the new one contains move below it.
func (r *prefixTree) Insert(ctx context.Context, route table.Route) error {
	prefix, err := validatePrefix(route.Prefix())
	if err != nil {
		return err
	}
	exists, err := r.Has(ctx, prefix)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("insert failed prefix %s already exists", prefix)
	}
	parent, err := r.longestContaining(ctx, prefix)
	if err != nil {
		return err
	}
	if _, err := r.svc.CreateNode(ctx, prefix, parent, route); err != nil {
		return err
	}

	siblings, err := r.svc.GetChildren(ctx, parent)
	if err != nil {
		return err
	}
	for _, n := range siblings {
		if n.ID == prefix || !contains(prefix, n.ID) {
			continue
		}
		if _, err := r.svc.UpdateNode(ctx, n.ID, &prefix); err != nil {
			return fmt.Errorf("move %s below %s: %w", n.ID, prefix, err)
		}
	}
	return nil
}

// Update replaces the route stored for an existing prefix; the hierarchy does
// not change.
func (r *prefixTree) Update(ctx context.Context, route table.Route) error {
	prefix, err := validatePrefix(route.Prefix())
	if err != nil {
		return err
	}
	exists, err := r.Has(ctx, prefix)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("update failed prefix %s: %w", prefix, nestedset.ErrNotFound)
	}
	_, err = r.svc.UpdatePayload(ctx, prefix, route)
	return err
}

// Delete removes one prefix; its children move up to its parent.
func (r *prefixTree) Delete(ctx context.Context, prefix netip.Prefix) error {
	prefix = prefix.Masked()
	n, err := r.svc.Get(ctx, prefix)
	if err != nil {
		return err
	}
	children, err := r.svc.GetChildren(ctx, &prefix)
	if err != nil {
		return err
	}
	for _, c := range children {
		if _, err := r.svc.UpdateNode(ctx, c.ID, n.ParentID); err != nil {
			return fmt.Errorf("move %s out of %s: %w", c.ID, prefix, err)
		}
	}
	return r.svc.DeleteNode(ctx, prefix)
}

func (r *prefixTree) Count(ctx context.Context) (int, error) {
	all, err := r.svc.GetAll(ctx)
	if err != nil {
		return 0, err
	}
	return len(all), nil
}

// Lookup returns the longest stored prefix containing addr.
func (r *prefixTree) Lookup(ctx context.Context, addr netip.Addr) (table.Route, error) {
	var parent *netip.Prefix
	var found *Node
	for {
		children, err := r.svc.GetChildren(ctx, parent)
		if err != nil {
			return table.Route{}, err
		}
		var next *Node
		for i := range children {
			if children[i].ID.Contains(addr) {
				next = &children[i]
				break
			}
		}
		if next == nil {
			break
		}
		found = next
		parent = &next.ID
	}
	if found == nil {
		return table.Route{}, fmt.Errorf("no prefix contains %s: %w", addr, nestedset.ErrNotFound)
	}
	return found.Payload, nil
}

func (r *prefixTree) Children(ctx context.Context, prefix netip.Prefix) (table.Routes, error) {
	prefix = prefix.Masked()
	exists, err := r.Has(ctx, prefix)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("prefix %s: %w", prefix, nestedset.ErrNotFound)
	}
	children, err := r.svc.GetChildren(ctx, &prefix)
	if err != nil {
		return nil, err
	}
	return routes(children), nil
}

// Parents returns the prefixes containing prefix, longest first.
func (r *prefixTree) Parents(ctx context.Context, prefix netip.Prefix) (table.Routes, error) {
	n, err := r.svc.Get(ctx, prefix.Masked())
	if err != nil {
		return nil, err
	}
	ancestors, err := r.svc.GetAncestors(ctx, n)
	if err != nil {
		return nil, err
	}
	return routes(ancestors), nil
}

// Free returns the parts of prefix not covered by any of its children.
func (r *prefixTree) Free(ctx context.Context, prefix netip.Prefix) ([]netip.Prefix, error) {
	prefix = prefix.Masked()
	children, err := r.Children(ctx, prefix)
	if err != nil {
		return nil, err
	}
	var b netipx.IPSetBuilder
	b.AddPrefix(prefix)
	for _, c := range children {
		b.RemovePrefix(c.Prefix())
	}
	set, err := b.IPSet()
	if err != nil {
		return nil, err
	}
	return set.Prefixes(), nil
}

func (r *prefixTree) GetAll(ctx context.Context) (table.Routes, error) {
	all, err := r.svc.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	return routes(all), nil
}

func (r *prefixTree) GetByLabel(ctx context.Context, selector labels.Selector) (table.Routes, error) {
	all, err := r.svc.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	var matched table.Routes
	for _, n := range all {
		if selector.Matches(n.Payload.Labels()) {
			matched = append(matched, n.Payload)
		}
	}
	return matched, nil
}

// longestContaining returns the longest stored prefix strictly containing
// prefix, nil when there is none.
func (r *prefixTree) longestContaining(ctx context.Context, prefix netip.Prefix) (*netip.Prefix, error) {
	var parent *netip.Prefix
	for {
		children, err := r.svc.GetChildren(ctx, parent)
		if err != nil {
			return nil, err
		}
		var next *netip.Prefix
		for _, c := range children {
			if contains(c.ID, prefix) {
				next = nestedset.Ref(c.ID)
				break
			}
		}
		if next == nil {
			return parent, nil
		}
		parent = next
	}
}

func validatePrefix(prefix netip.Prefix) (netip.Prefix, error) {
	if !prefix.IsValid() {
		return netip.Prefix{}, fmt.Errorf("prefix %s is invalid", prefix)
	}
	return prefix.Masked(), nil
}

// contains reports whether outer strictly contains inner.
func contains(outer, inner netip.Prefix) bool {
	return outer.Bits() < inner.Bits() && outer.Contains(inner.Addr())
}

func routes(nodes []Node) table.Routes {
	out := make(table.Routes, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.Payload)
	}
	return out
}

// ParsePrefix parses s and returns the prefix with its host bits cleared.
func ParsePrefix(s string) (netip.Prefix, error) {
	p, err := netip.ParsePrefix(s)
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("prefix %s is invalid", s)
	}
	return p.Masked(), nil
}
