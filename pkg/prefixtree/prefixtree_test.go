package prefixtree

import (
	"context"
	"errors"
	"net/netip"
	"testing"

	"github.com/hansthienpondt/nipam/pkg/table"
	"github.com/henderiw/nestedset/pkg/nestedset"
	"github.com/henderiw/nestedset/pkg/store/memstore"
	"github.com/stretchr/testify/assert"
	"k8s.io/apimachinery/pkg/labels"
)

func newTestTree(t *testing.T, prefixes map[string]map[string]string, order []string) (PrefixTree, *nestedset.Service[netip.Prefix, table.Route]) {
	t.Helper()
	s, err := memstore.New[netip.Prefix, table.Route](memstore.DefaultConfig())
	assert.NoError(t, err)
	tree := New(s, nestedset.Config{VerifyMutations: true})
	for _, p := range order {
		err := tree.Insert(context.Background(), table.NewRoute(netip.MustParsePrefix(p), prefixes[p], nil))
		assert.NoError(t, err)
	}
	return tree, nestedset.New[netip.Prefix, table.Route](s, nestedset.DefaultConfig())
}

func prefixes(routes table.Routes) []string {
	out := []string{}
	for _, r := range routes {
		out = append(out, r.Prefix().String())
	}
	return out
}

var sampleLabels = map[string]map[string]string{
	"10.0.0.0/8":     {"env": "prod"},
	"10.1.0.0/16":    {"env": "prod", "site": "a"},
	"10.1.1.0/24":    {"env": "dev"},
	"10.1.2.0/24":    {"env": "prod"},
	"192.168.0.0/16": {},
}

// the /16 is inserted after its /24s so they have to move below it
var sampleOrder = []string{"10.0.0.0/8", "10.1.1.0/24", "10.1.2.0/24", "10.1.0.0/16", "192.168.0.0/16"}

func TestInsert(t *testing.T) {
	ctx := context.Background()
	tree, svc := newTestTree(t, sampleLabels, sampleOrder)
	assert.NoError(t, svc.Validate(ctx))

	cases := map[string]struct {
		prefix           string
		expectedChildren []string
		expectedParents  []string
	}{
		"Root": {
			prefix:           "10.0.0.0/8",
			expectedChildren: []string{"10.1.0.0/16"},
			expectedParents:  []string{},
		},
		"Reparented": {
			prefix:           "10.1.0.0/16",
			expectedChildren: []string{"10.1.1.0/24", "10.1.2.0/24"},
			expectedParents:  []string{"10.0.0.0/8"},
		},
		"Leaf": {
			prefix:           "10.1.2.0/24",
			expectedChildren: []string{},
			expectedParents:  []string{"10.1.0.0/16", "10.0.0.0/8"},
		},
		"OtherRoot": {
			prefix:           "192.168.0.0/16",
			expectedChildren: []string{},
			expectedParents:  []string{},
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			p := netip.MustParsePrefix(tc.prefix)
			children, err := tree.Children(ctx, p)
			assert.NoError(t, err)
			assert.Equal(t, tc.expectedChildren, prefixes(children))

			parents, err := tree.Parents(ctx, p)
			assert.NoError(t, err)
			assert.Equal(t, tc.expectedParents, prefixes(parents))
		})
	}

	count, err := tree.Count(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 5, count)
}

func TestInsertErrors(t *testing.T) {
	ctx := context.Background()
	tree, _ := newTestTree(t, sampleLabels, sampleOrder)

	err := tree.Insert(ctx, table.NewRoute(netip.MustParsePrefix("10.1.0.0/16"), nil, nil))
	assert.Error(t, err)

	// host bits are cleared before the prefix is stored
	err = tree.Insert(ctx, table.NewRoute(netip.MustParsePrefix("10.1.1.7/24"), nil, nil))
	assert.Error(t, err)

	err = tree.Insert(ctx, table.NewRoute(netip.Prefix{}, nil, nil))
	assert.Error(t, err)
}

func TestLookup(t *testing.T) {
	ctx := context.Background()
	tree, _ := newTestTree(t, sampleLabels, sampleOrder)

	cases := map[string]struct {
		addr      string
		expected  string
		expectErr bool
	}{
		"Deepest":   {addr: "10.1.2.5", expected: "10.1.2.0/24"},
		"Middle":    {addr: "10.1.200.1", expected: "10.1.0.0/16"},
		"Top":       {addr: "10.200.0.1", expected: "10.0.0.0/8"},
		"OtherRoot": {addr: "192.168.3.4", expected: "192.168.0.0/16"},
		"NoMatch":   {addr: "11.0.0.1", expectErr: true},
		"IPv6":      {addr: "2001:db8::1", expectErr: true},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			route, err := tree.Lookup(ctx, netip.MustParseAddr(tc.addr))
			if tc.expectErr {
				assert.ErrorIs(t, err, nestedset.ErrNotFound)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tc.expected, route.Prefix().String())
		})
	}
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	tree, svc := newTestTree(t, sampleLabels, sampleOrder)

	err := tree.Delete(ctx, netip.MustParsePrefix("10.1.0.0/16"))
	assert.NoError(t, err)
	assert.NoError(t, svc.Validate(ctx))

	children, err := tree.Children(ctx, netip.MustParsePrefix("10.0.0.0/8"))
	assert.NoError(t, err)
	assert.Equal(t, []string{"10.1.1.0/24", "10.1.2.0/24"}, prefixes(children))
	exists, err := tree.Has(ctx, netip.MustParsePrefix("10.1.0.0/16"))
	assert.NoError(t, err)
	assert.False(t, exists)

	err = tree.Delete(ctx, netip.MustParsePrefix("10.0.0.0/8"))
	assert.NoError(t, err)
	all, err := tree.GetAll(ctx)
	assert.NoError(t, err)
	// the orphaned /24s become the last roots
	assert.Equal(t, []string{"192.168.0.0/16", "10.1.1.0/24", "10.1.2.0/24"}, prefixes(all))

	err = tree.Delete(ctx, netip.MustParsePrefix("172.16.0.0/12"))
	assert.ErrorIs(t, err, nestedset.ErrNotFound)
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	tree, _ := newTestTree(t, sampleLabels, sampleOrder)

	p := netip.MustParsePrefix("10.1.1.0/24")
	err := tree.Update(ctx, table.NewRoute(p, map[string]string{"env": "prod"}, nil))
	assert.NoError(t, err)
	route, err := tree.Get(ctx, p)
	assert.NoError(t, err)
	assert.Equal(t, "prod", route.Labels()["env"])

	err = tree.Update(ctx, table.NewRoute(netip.MustParsePrefix("172.16.0.0/12"), nil, nil))
	assert.ErrorIs(t, err, nestedset.ErrNotFound)
}

func TestGetByLabel(t *testing.T) {
	ctx := context.Background()
	tree, _ := newTestTree(t, sampleLabels, sampleOrder)

	cases := map[string]struct {
		selector labels.Selector
		expected []string
	}{
		"Prod": {
			selector: labels.SelectorFromSet(labels.Set{"env": "prod"}),
			expected: []string{"10.0.0.0/8", "10.1.0.0/16", "10.1.2.0/24"},
		},
		"Site": {
			selector: labels.SelectorFromSet(labels.Set{"site": "a"}),
			expected: []string{"10.1.0.0/16"},
		},
		"Everything": {
			selector: labels.Everything(),
			expected: []string{"10.0.0.0/8", "10.1.0.0/16", "10.1.1.0/24", "10.1.2.0/24", "192.168.0.0/16"},
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			routes, err := tree.GetByLabel(ctx, tc.selector)
			assert.NoError(t, err)
			assert.Equal(t, tc.expected, prefixes(routes))
		})
	}
}

func TestFree(t *testing.T) {
	ctx := context.Background()
	tree, _ := newTestTree(t, sampleLabels, sampleOrder)

	free, err := tree.Free(ctx, netip.MustParsePrefix("10.1.0.0/16"))
	assert.NoError(t, err)
	got := []string{}
	for _, p := range free {
		got = append(got, p.String())
	}
	assert.Equal(t, []string{
		"10.1.0.0/24",
		"10.1.3.0/24",
		"10.1.4.0/22",
		"10.1.8.0/21",
		"10.1.16.0/20",
		"10.1.32.0/19",
		"10.1.64.0/18",
		"10.1.128.0/17",
	}, got)

	free, err = tree.Free(ctx, netip.MustParsePrefix("192.168.0.0/16"))
	assert.NoError(t, err)
	assert.Equal(t, []netip.Prefix{netip.MustParsePrefix("192.168.0.0/16")}, free)
}

func TestParsePrefix(t *testing.T) {
	p, err := ParsePrefix("10.1.1.7/24")
	assert.NoError(t, err)
	assert.Equal(t, "10.1.1.0/24", p.String())

	_, err = ParsePrefix("10.1.1.7")
	assert.Error(t, err)
}

var errUnavailable = errors.New("store unavailable")

// unavailableStore fails every read and counts the writes it is asked for.
type unavailableStore struct {
	*memstore.Store[netip.Prefix, table.Route]
	updates int
}

func (r *unavailableStore) View(ctx context.Context, fn func(rd nestedset.Reader[netip.Prefix, table.Route]) error) error {
	return errUnavailable
}

func (r *unavailableStore) Update(ctx context.Context, fn func(tx nestedset.Tx[netip.Prefix, table.Route]) error) error {
	r.updates++
	return r.Store.Update(ctx, fn)
}

func TestStoreFailureIsNotAbsence(t *testing.T) {
	ctx := context.Background()
	s, err := memstore.New[netip.Prefix, table.Route](memstore.DefaultConfig())
	assert.NoError(t, err)
	store := &unavailableStore{Store: s}
	tree := New(store, nestedset.DefaultConfig())
	p := netip.MustParsePrefix("10.0.0.0/8")

	cases := map[string]func() error{
		"Has": func() error {
			_, err := tree.Has(ctx, p)
			return err
		},
		"Insert": func() error {
			return tree.Insert(ctx, table.NewRoute(p, nil, nil))
		},
		"Update": func() error {
			return tree.Update(ctx, table.NewRoute(p, nil, nil))
		},
		"Children": func() error {
			_, err := tree.Children(ctx, p)
			return err
		},
	}
	for name, fn := range cases {
		t.Run(name, func(t *testing.T) {
			err := fn()
			assert.ErrorIs(t, err, errUnavailable)
			assert.NotErrorIs(t, err, nestedset.ErrNotFound)
		})
	}
	assert.Equal(t, 0, store.updates)
	assert.Equal(t, 0, s.Len())
}
