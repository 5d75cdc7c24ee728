package internal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewScope_CopiesParameters(t *testing.T) {
	params := map[string]any{"list": []any{1, 2}, "n": 1}
	root := NewScope(params)

	list, ok := root.Lookup("list")
	require.True(t, ok)
	list.([]any)[0] = "changed"
	assert.Equal(t, 1, params["list"].([]any)[0])
}

func TestScope_Child(t *testing.T) {
	root := NewScope(map[string]any{"n": 1})
	child := root.Child()
	child.Define("local", true)
	child.Assign("n", 5)
	child.Assign("fresh", "x")

	n, ok := root.Lookup("n")
	require.True(t, ok)
	assert.Equal(t, 5, n)
	assert.False(t, root.Has("local"))
	assert.False(t, root.Has("fresh"))
	assert.True(t, child.Has("fresh"))
}

func TestScope_Parent(t *testing.T) {
	root := NewScope(nil)
	child := root.Child()

	assert.Nil(t, root.Parent())
	assert.Same(t, root, child.Parent())
	assert.Same(t, root, child.Child().Parent().Parent())
}

func TestScope_Snapshot(t *testing.T) {
	root := NewScope(map[string]any{"n": 1, "outer": "o"})
	child := root.Child()
	child.Define("local", true)
	child.Define("n", "shadow")

	snap := child.Snapshot()
	assert.Equal(t, "shadow", snap["n"])
	assert.Equal(t, true, snap["local"])
	assert.Equal(t, "o", snap["outer"])

	n, _ := root.Lookup("n")
	assert.Equal(t, 1, n)
	assert.NotContains(t, root.Snapshot(), "local")
}
