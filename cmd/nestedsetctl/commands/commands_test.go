package commands

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/henderiw/nestedset/pkg/entry"
	"github.com/henderiw/nestedset/pkg/nestedset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
	"k8s.io/apimachinery/pkg/labels"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func badgerConfig(t *testing.T) string {
	t.Helper()

	return writeFile(t, "config.yaml", "store:\n  backend: badger\n  path: "+filepath.Join(t.TempDir(), "db")+"\n  sync_writes: false\n")
}

// execute runs one nestedsetctl invocation and returns its standard output.
func execute(t *testing.T, cfgPath string, args ...string) (string, error) {
	t.Helper()

	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append([]string{"--config", cfgPath}, args...))
	err := cmd.ExecuteContext(context.Background())

	return out.String(), err
}

func mustExecute(t *testing.T, cfgPath string, args ...string) string {
	t.Helper()

	out, err := execute(t, cfgPath, args...)
	require.NoError(t, err, "nestedsetctl %s", strings.Join(args, " "))

	return out
}

func listRecords(t *testing.T, cfgPath string, args ...string) []record {
	t.Helper()

	out := mustExecute(t, cfgPath, append([]string{"list", "-o", "yaml"}, args...)...)
	var records []record
	require.NoError(t, yaml.Unmarshal([]byte(out), &records))

	return records
}

func TestCommandsOnBadger(t *testing.T) {
	cfg := badgerConfig(t)

	mustExecute(t, cfg, "create", "--id", "r", "--name", "root", "--labels", "env=prod")
	mustExecute(t, cfg, "create", "--id", "a", "--parent", "r", "--name", "alpha", "--labels", "env=dev")
	mustExecute(t, cfg, "create", "--id", "b", "--parent", "r", "--name", "beta", "--labels", "env=prod")

	expected := []record{
		{ID: "r", Left: 1, Right: 6, Entry: entry.New("root", labels.Set{"env": "prod"})},
		{ID: "a", Parent: "r", Left: 2, Right: 3, Entry: entry.New("alpha", labels.Set{"env": "dev"})},
		{ID: "b", Parent: "r", Left: 4, Right: 5, Entry: entry.New("beta", labels.Set{"env": "prod"})},
	}
	if diff := cmp.Diff(expected, listRecords(t, cfg)); diff != "" {
		t.Errorf("list -want +got:\n%s", diff)
	}

	t.Run("Selector", func(t *testing.T) {
		got := listRecords(t, cfg, "--selector", "env=prod")
		assert.Equal(t, []string{"r", "b"}, recordIDs(got))
	})

	t.Run("RootsAndLeaves", func(t *testing.T) {
		assert.Equal(t, []string{"r"}, recordIDs(listRecords(t, cfg, "--roots")))
		assert.Equal(t, []string{"a", "b"}, recordIDs(listRecords(t, cfg, "--leaves")))
	})

	t.Run("Tree", func(t *testing.T) {
		out := mustExecute(t, cfg, "tree")
		assert.Contains(t, out, "root (r) [1,6] {env=prod}")
		assert.Contains(t, out, "alpha (a) [2,3] {env=dev}")
		assert.Less(t, strings.Index(out, "alpha"), strings.Index(out, "beta"))

		var views []treeView
		require.NoError(t, yaml.Unmarshal([]byte(mustExecute(t, cfg, "tree", "--root", "r", "-o", "yaml")), &views))
		require.Len(t, views, 1)
		assert.Equal(t, "r", views[0].ID)
		assert.Len(t, views[0].Children, 2)
	})

	t.Run("Relatives", func(t *testing.T) {
		out := mustExecute(t, cfg, "ancestors", "a")
		assert.Contains(t, out, "root")
		assert.NotContains(t, out, "alpha")

		out = mustExecute(t, cfg, "descendants", "r", "-o", "json")
		assert.Contains(t, out, `"id": "a"`)
		assert.Contains(t, out, `"id": "b"`)
	})

	mustExecute(t, cfg, "move-down", "a")
	assert.Equal(t, []string{"r", "b", "a"}, recordIDs(listRecords(t, cfg)))
	mustExecute(t, cfg, "move-up", "a")
	assert.Equal(t, []string{"r", "a", "b"}, recordIDs(listRecords(t, cfg)))

	mustExecute(t, cfg, "move", "b")
	mustExecute(t, cfg, "rename", "b", "--name", "gamma")
	assert.Equal(t, "b unchanged\n", mustExecute(t, cfg, "rename", "b", "--name", "gamma"))
	got := listRecords(t, cfg, "--roots")
	require.Len(t, got, 2)
	assert.Equal(t, record{ID: "b", Left: 5, Right: 6, Entry: entry.New("gamma", nil)}, got[1])

	assert.Equal(t, "forest is consistent: 3 nodes\n", mustExecute(t, cfg, "validate"))

	mustExecute(t, cfg, "delete", "r")
	assert.Equal(t, []string{"b"}, recordIDs(listRecords(t, cfg)))
}

func TestCommandErrors(t *testing.T) {
	cfg := writeFile(t, "config.yaml", "")

	tests := map[string]struct {
		args     []string
		expected error
	}{
		"MissingName": {
			args: []string{"create", "--id", "x"},
		},
		"MissingParent": {
			args:     []string{"create", "--name", "x", "--parent", "nope"},
			expected: nestedset.ErrNotFound,
		},
		"BadLabels": {
			args: []string{"create", "--name", "x", "--labels", "env"},
		},
		"UnknownNode": {
			args:     []string{"get", "nope"},
			expected: nestedset.ErrNotFound,
		},
		"NoSibling": {
			args:     []string{"move-up", "nope"},
			expected: nestedset.ErrPreconditionViolation,
		},
		"RootsAndLeaves": {
			args: []string{"list", "--roots", "--leaves"},
		},
		"BadSelector": {
			args: []string{"list", "--selector", "env in prod"},
		},
		"BadSeed": {
			args: []string{"--seed", filepath.Join(t.TempDir(), "missing.yaml"), "list"},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := execute(t, cfg, tc.args...)
			require.Error(t, err)
			if tc.expected != nil {
				assert.ErrorIs(t, err, tc.expected)
			}
		})
	}
}

const damagedSeed = `- id: r
  left: 1
  right: 2
  name: root
- id: a
  parent: r
  left: 3
  right: 4
  name: alpha
- id: b
  parent: r
  left: 5
  right: 6
  name: beta
`

func TestSeedAndRebuild(t *testing.T) {
	seed := writeFile(t, "seed.yaml", damagedSeed)

	t.Run("Memory", func(t *testing.T) {
		cfg := writeFile(t, "config.yaml", "")

		_, err := execute(t, cfg, "--seed", seed, "validate")
		assert.ErrorIs(t, err, nestedset.ErrConsistencyViolation)

		out := mustExecute(t, cfg, "--seed", seed, "rebuild")
		assert.Equal(t, "rebuilt forest, next free left 7\n", out)

		// nothing survives the process with the memory backend
		assert.Equal(t, "forest is consistent: 0 nodes\n", mustExecute(t, cfg, "validate"))
	})

	t.Run("Badger", func(t *testing.T) {
		cfg := badgerConfig(t)

		_, err := execute(t, cfg, "--seed", seed, "validate")
		assert.ErrorIs(t, err, nestedset.ErrConsistencyViolation)

		// r's stored interval is too narrow for its children
		_, err = execute(t, cfg, "rebuild", "--root", "r")
		assert.ErrorIs(t, err, nestedset.ErrConsistencyViolation)

		assert.Equal(t, "rebuilt forest, next free left 7\n", mustExecute(t, cfg, "rebuild"))
		assert.Equal(t, "forest is consistent: 3 nodes\n", mustExecute(t, cfg, "validate"))

		nodes, err := readRecords(strings.NewReader(mustExecute(t, cfg, "export")))
		require.NoError(t, err)
		want := []Node{
			{ID: "r", Left: 1, Right: 6, Payload: entry.New("root", nil)},
			{ID: "a", Left: 2, Right: 3, ParentID: nestedset.Ref("r"), Payload: entry.New("alpha", nil)},
			{ID: "b", Left: 4, Right: 5, ParentID: nestedset.Ref("r"), Payload: entry.New("beta", nil)},
		}
		if diff := cmp.Diff(want, nodes); diff != "" {
			t.Errorf("export -want +got:\n%s", diff)
		}
	})
}

func TestReadRecords(t *testing.T) {
	nodes, err := readRecords(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, nodes)

	_, err = readRecords(strings.NewReader("- name: no id\n"))
	assert.Error(t, err)

	_, err = readRecords(strings.NewReader("not: a list\n"))
	assert.Error(t, err)
}

func TestRenderTreeText(t *testing.T) {
	roots := nestedset.Build([]Node{
		{ID: "r", Left: 1, Right: 4, Payload: entry.New("root", nil)},
		{ID: "a", Left: 2, Right: 3, ParentID: nestedset.Ref("r"), Payload: entry.New("alpha", labels.Set{"k": "v"})},
		{ID: "s", Left: 5, Right: 6, Payload: entry.New("second", nil)},
	}, nestedset.NewTreeNode[string, entry.Entry])

	var out bytes.Buffer
	require.NoError(t, renderTree(&out, formatText, roots))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "root (r) [1,4]")
	assert.Contains(t, lines[1], "alpha (a) [2,3] {k=v}")
	assert.Contains(t, lines[2], "second (s) [5,6]")

	out.Reset()
	require.NoError(t, renderTree(&out, formatText, nil))
	assert.Empty(t, out.String())

	assert.Error(t, renderTree(&out, "xml", roots))
}

func recordIDs(records []record) []string {
	ids := []string{}
	for _, r := range records {
		ids = append(ids, r.ID)
	}
	return ids
}
