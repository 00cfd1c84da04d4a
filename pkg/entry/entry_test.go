package entry

import (
	"testing"

	"github.com/tj/assert"
	"k8s.io/apimachinery/pkg/labels"
)

func TestParse(t *testing.T) {
	cases := map[string]struct {
		name      string
		labels    string
		expected  Entry
		expectErr bool
	}{
		"NoLabels": {
			name:     "a",
			expected: Entry{Name: "a"},
		},
		"Labels": {
			name:     "a",
			labels:   "env=prod,site=x",
			expected: Entry{Name: "a", Labels: labels.Set{"env": "prod", "site": "x"}},
		},
		"MissingName": {
			labels:    "env=prod",
			expectErr: true,
		},
		"BadLabels": {
			name:      "a",
			labels:    "env",
			expectErr: true,
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			e, err := Parse(tc.name, tc.labels)
			if tc.expectErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tc.expected, e)
		})
	}
}

func TestEntry(t *testing.T) {
	set := labels.Set{"env": "prod"}
	e := New("a", set)
	set["env"] = "dev"
	assert.Equal(t, "prod", e.Labels["env"])

	assert.Equal(t, "name: a, labels: env=prod", e.String())
	assert.True(t, e.Equal(New("a", labels.Set{"env": "prod"})))
	assert.False(t, e.Equal(New("a", nil)))
	assert.False(t, e.Equal(New("b", labels.Set{"env": "prod"})))

	selector, err := labels.Parse("env=prod")
	assert.NoError(t, err)
	assert.True(t, e.Matches(selector))
	assert.False(t, New("c", nil).Matches(selector))
	assert.True(t, New("c", nil).Matches(labels.Everything()))
}
