package dag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chain builds 0 -> 1 -> 2 plus a side branch 0 -> 3, the shape of a fetch feeding
// both a predictor and a join.
func chain(t *testing.T) *Graph[int] {
	t.Helper()
	g := NewGraph[int]()
	for i := 0; i < 4; i++ {
		g.AddNode(i)
	}
	require.NoError(t, g.AddEdge(0, 1))
	require.NoError(t, g.AddEdge(1, 2))
	require.NoError(t, g.AddEdge(0, 3))
	return g
}

func TestGraphEdges(t *testing.T) {
	g := chain(t)
	assert.Equal(t, 4, g.Len())
	assert.Equal(t, 3, g.Edges())
	assert.Equal(t, []int{1, 3}, g.Children(0))
	assert.Equal(t, []int{1}, g.Parents(2))

	require.NoError(t, g.AddEdge(0, 1))
	assert.Equal(t, 3, g.Edges(), "duplicate edges are ignored")
}

func TestGraphAddEdgeErrors(t *testing.T) {
	g := NewGraph[string]()
	g.AddNode("a")

	tests := []struct {
		name          string
		parent, child string
		want          string
	}{
		{"missing child", "a", "z", "unknown node z"},
		{"missing parent", "z", "a", "unknown node z"},
		{"self loop", "a", "a", "node a depends on itself"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.EqualError(t, g.AddEdge(tt.parent, tt.child), tt.want)
		})
	}
}

func TestGraphLevels(t *testing.T) {
	levels, err := chain(t).Levels()
	require.NoError(t, err)
	assert.Equal(t, [][]int{{0}, {1, 3}, {2}}, levels)

	empty, err := NewGraph[int]().Levels()
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestGraphLevelsDeepestParent(t *testing.T) {
	// 2 depends on 0 directly and through 1, so it sits below 1.
	g := NewGraph[int]()
	for i := 0; i < 3; i++ {
		g.AddNode(i)
	}
	require.NoError(t, g.AddEdge(0, 2))
	require.NoError(t, g.AddEdge(0, 1))
	require.NoError(t, g.AddEdge(1, 2))

	levels, err := g.Levels()
	require.NoError(t, err)
	assert.Equal(t, [][]int{{0}, {1}, {2}}, levels)
}

func TestGraphCycle(t *testing.T) {
	g := chain(t)
	require.NoError(t, g.AddEdge(2, 0))

	_, err := g.Levels()
	assert.EqualError(t, err, "cycle detected among [0 1 2]")
	_, err = g.TopologicalSort()
	assert.Error(t, err)
}

func TestGraphTwoCycles(t *testing.T) {
	// 0 <-> 1 feeds 2, which sits on 2 <-> 3; 4 only hangs below 3.
	g := NewGraph[int]()
	for i := 0; i < 5; i++ {
		g.AddNode(i)
	}
	for _, e := range [][2]int{{0, 1}, {1, 0}, {1, 2}, {2, 3}, {3, 2}, {3, 4}} {
		require.NoError(t, g.AddEdge(e[0], e[1]))
	}

	_, err := g.Levels()
	assert.EqualError(t, err, "cycle detected among [0 1 2 3]")
}

func TestGraphTopologicalSort(t *testing.T) {
	order, err := chain(t).TopologicalSort()
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 3, 2}, order)
}

func TestGraphUpstream(t *testing.T) {
	g := chain(t)
	assert.Equal(t, []int{0, 1}, g.Upstream(2))
	assert.Empty(t, g.Upstream(0))
}
