package manager

import (
	"errors"
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGraph_TopoSortDeterministic(t *testing.T) {
	g, err := NewGraph("a", "b", "c", "d")
	require.NoError(t, err)
	require.NoError(t, g.AddEdge("c", "a"))
	require.NoError(t, g.AddEdge("b", "d"))
	require.NoError(t, g.AddEdge("a", "d"))
	require.NoError(t, g.AddEdge("a", "d"))

	order, err := g.TopoSort()
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c", "a", "d"}, order)
	assert.Equal(t, []string{"a", "b"}, g.Upstream("d"))
	assert.Equal(t, []string{"d"}, g.Sinks())
}

func TestGraph_Cycle(t *testing.T) {
	g, err := NewGraph("a", "b", "c", "d")
	require.NoError(t, err)
	require.NoError(t, g.AddEdge("d", "a"))
	require.NoError(t, g.AddEdge("a", "b"))
	require.NoError(t, g.AddEdge("b", "c"))
	require.NoError(t, g.AddEdge("c", "a"))

	_, err = g.TopoSort()
	var cycle *CycleError
	require.True(t, errors.As(err, &cycle))
	require.GreaterOrEqual(t, len(cycle.Path), 4)
	assert.Equal(t, cycle.Path[0], cycle.Path[len(cycle.Path)-1])
	assert.ElementsMatch(t, []string{"a", "b", "c"}, cycle.Path[:3])
	assert.Contains(t, err.Error(), "dependency cycle")
}

func TestGraph_Invalid(t *testing.T) {
	_, err := NewGraph("a", "a")
	assert.Error(t, err)

	g, err := NewGraph("a")
	require.NoError(t, err)
	assert.ErrorIs(t, g.AddEdge("a", "x"), ErrUnknownAgent)
	assert.ErrorIs(t, g.AddEdge("x", "a"), ErrUnknownAgent)
}

func TestProperty_TopoSortRespectsEdges(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("every edge points forward in the topological order", prop.ForAll(
		func(n int, mask []bool) bool {
			nodes := make([]string, n)
			for i := range nodes {
				nodes[i] = fmt.Sprintf("n%d", i)
			}
			g, err := NewGraph(nodes...)
			if err != nil {
				return false
			}
			// 边总是从声明靠后的节点指向靠前的节点，图一定无环
			type edge struct{ from, to string }
			var edges []edge
			k := 0
			for j := 0; j < n; j++ {
				for i := 0; i < j; i++ {
					if k < len(mask) && mask[k] {
						from, to := nodes[n-1-i], nodes[n-1-j]
						if err := g.AddEdge(from, to); err != nil {
							return false
						}
						edges = append(edges, edge{from, to})
					}
					k++
				}
			}
			order, err := g.TopoSort()
			if err != nil || len(order) != n {
				return false
			}
			pos := make(map[string]int, n)
			for i, name := range order {
				pos[name] = i
			}
			for _, e := range edges {
				if pos[e.from] >= pos[e.to] {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 8),
		gen.SliceOfN(28, gen.Bool()),
	))

	properties.TestingRun(t)
}
