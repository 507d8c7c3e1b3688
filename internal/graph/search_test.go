package graph

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// line graph: 1 -- 2 -- 3 -- 4, all region 1, unit weights.
func lineGraph() *Graph {
	g := New(1)
	for i := uint64(1); i <= 4; i++ {
		g.AddNode(&Node{NodeID: i, RegionID: 1, CoordX: i, CoordY: i * 10})
	}
	g.AddEdge(&Edge{EdgeID: 1, EndpointA: 1, EndpointB: 2, Weight: 1})
	g.AddEdge(&Edge{EdgeID: 2, EndpointA: 2, EndpointB: 3, Weight: 1})
	g.AddEdge(&Edge{EdgeID: 3, EndpointA: 3, EndpointB: 4, Weight: 1})
	return g
}

func TestFindWayLocalSimplePath(t *testing.T) {
	g := lineGraph()

	result, err := FindWayLocal(g, NodeInfo{NodeID: 1, RegionID: 1}, NodeInfo{NodeID: 4, RegionID: 1})
	require.NoError(t, err)
	require.NotNil(t, result.TargetReached)

	assert.Equal(t, uint64(3), result.TargetReached.Cost)
	ids := make([]uint64, len(result.TargetReached.Path))
	for i, p := range result.TargetReached.Path {
		ids[i] = p.NodeID
	}
	assert.Equal(t, []uint64{1, 2, 3, 4}, ids)
}

func TestFindWayLocalPicksCheaperPath(t *testing.T) {
	g := New(1)
	for _, id := range []uint64{1, 2, 3} {
		g.AddNode(&Node{NodeID: id, RegionID: 1})
	}
	// direct 1->3 costs 10, via 2 costs 1+1=2.
	g.AddEdge(&Edge{EdgeID: 1, EndpointA: 1, EndpointB: 3, Weight: 10})
	g.AddEdge(&Edge{EdgeID: 2, EndpointA: 1, EndpointB: 2, Weight: 1})
	g.AddEdge(&Edge{EdgeID: 3, EndpointA: 2, EndpointB: 3, Weight: 1})

	result, err := FindWayLocal(g, NodeInfo{NodeID: 1}, NodeInfo{NodeID: 3})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), result.TargetReached.Cost)
}

func TestFindWayLocalUnreachable(t *testing.T) {
	g := New(1)
	g.AddNode(&Node{NodeID: 1, RegionID: 1})
	g.AddNode(&Node{NodeID: 2, RegionID: 1})
	// no edges between them

	_, err := FindWayLocal(g, NodeInfo{NodeID: 1}, NodeInfo{NodeID: 2})
	assert.ErrorIs(t, err, ErrUnreachable)
}

func TestFindWayLocalStartNodeNotFound(t *testing.T) {
	g := New(1)
	g.AddNode(&Node{NodeID: 1, RegionID: 1})

	_, err := FindWayLocal(g, NodeInfo{NodeID: 99}, NodeInfo{NodeID: 1})
	assert.ErrorIs(t, err, ErrStartNodeNotFound)
}

func TestDijkstraTieBreaksFIFO(t *testing.T) {
	// 1 has two equal-cost neighbors 2 and 3, each reachable at cost 1.
	// The push order for 2 happens before 3 (insertion order of edges),
	// so on a cost tie the pop order must match push order. 2 and 3 are
	// stitched nodes owned by region 2, so the boundary list records them
	// in the exact order they are popped.
	g := New(1)
	g.AddNode(&Node{NodeID: 1, RegionID: 1})
	g.AddNode(&Node{NodeID: 2, RegionID: 2})
	g.AddNode(&Node{NodeID: 3, RegionID: 2})
	g.AddEdge(&Edge{EdgeID: 1, EndpointA: 1, EndpointB: 2, Weight: 1})
	g.AddEdge(&Edge{EdgeID: 2, EndpointA: 1, EndpointB: 3, Weight: 1})

	dist, _, _, boundary, err := dijkstra(g, 1, nil, true)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), dist[2])
	assert.Equal(t, uint64(1), dist[3])
	assert.Equal(t, []uint64{2, 3}, boundary)
}

func TestFindWayLocalTraversesThroughStitchedNode(t *testing.T) {
	// 1 -- 2 (region 2, stitched into g) -- 3, all in g.Nodes, but node 2 is
	// owned by region 2. A same-region path from 1 to 3 must still be found
	// by routing through it: FindWayLocal never stops at a region line.
	g := New(1)
	g.AddNode(&Node{NodeID: 1, RegionID: 1})
	g.AddNode(&Node{NodeID: 2, RegionID: 2})
	g.AddNode(&Node{NodeID: 3, RegionID: 1})
	g.AddEdge(&Edge{EdgeID: 1, EndpointA: 1, EndpointB: 2, Weight: 1})
	g.AddEdge(&Edge{EdgeID: 2, EndpointA: 2, EndpointB: 3, Weight: 1})

	result, err := FindWayLocal(g, NodeInfo{NodeID: 1, RegionID: 1}, NodeInfo{NodeID: 3, RegionID: 1})
	require.NoError(t, err)
	require.NotNil(t, result.TargetReached)
	assert.Equal(t, uint64(2), result.TargetReached.Cost)

	ids := make([]uint64, len(result.TargetReached.Path))
	for i, p := range result.TargetReached.Path {
		ids[i] = p.NodeID
	}
	assert.Equal(t, []uint64{1, 2, 3}, ids)
}

func TestFindWayBoundaryOrderingAscendingCost(t *testing.T) {
	// 1 -> 2 (cost 1) -> boundary node 100 (region 2), tagged for region 2
	// 1 -> 3 (cost 5) -> boundary node 200 (region 2), tagged for region 2
	// Expect possibility for 100 to appear before 200 (ascending cost).
	g := New(1)
	g.AddNode(&Node{NodeID: 1, RegionID: 1})
	g.AddNode(&Node{NodeID: 2, RegionID: 1})
	g.AddNode(&Node{NodeID: 3, RegionID: 1})

	bitsTo2 := NewRegionBits(4)
	bitsTo2.Set(2)

	g.AddEdge(&Edge{EdgeID: 1, EndpointA: 1, EndpointB: 2, Weight: 1, RegionBits: bitsTo2})
	g.AddEdge(&Edge{EdgeID: 2, EndpointA: 2, EndpointB: 100, Weight: 1, RegionBits: bitsTo2})
	g.AddEdge(&Edge{EdgeID: 3, EndpointA: 1, EndpointB: 3, Weight: 5, RegionBits: bitsTo2})
	g.AddEdge(&Edge{EdgeID: 4, EndpointA: 3, EndpointB: 200, Weight: 1, RegionBits: bitsTo2})

	results, err := FindWay(g, NodeInfo{NodeID: 1, RegionID: 1}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, uint64(100), results[0].Continue.Continuation.NodeID)
	assert.Equal(t, uint64(2), results[0].Continue.Cost)
	assert.Equal(t, uint64(200), results[1].Continue.Continuation.NodeID)
	assert.Equal(t, uint64(6), results[1].Continue.Cost)

	for _, r := range results {
		assert.False(t, r.Continue.Continuation.Known, "boundary nodes outside g.Nodes resolve to RegionUnknown")
	}
}

func TestFindWayNoVertexWithRegionBit(t *testing.T) {
	g := lineGraph()

	_, err := FindWay(g, NodeInfo{NodeID: 1, RegionID: 1}, 99)
	assert.ErrorIs(t, err, ErrNoVertexWithRegionBit)
}

func TestAddCostOverflow(t *testing.T) {
	_, err := addCost(math.MaxUint64, 1)
	assert.ErrorIs(t, err, ErrCostOverflow)
}

func TestAddCostNoOverflow(t *testing.T) {
	sum, err := addCost(10, 20)
	require.NoError(t, err)
	assert.Equal(t, uint64(30), sum)
}

func TestDijkstraBrokenAdjacencyInvariant(t *testing.T) {
	g := New(1)
	g.AddNode(&Node{NodeID: 1, RegionID: 1, Edges: []uint64{999}}) // edge 999 never added

	_, _, _, _, err := dijkstra(g, 1, nil, true)
	assert.True(t, errors.Is(err, ErrVertexNotFound))
}
