package graph

import (
	"container/heap"
	"math"
)

// PathResult is the outcome of a search. Exactly one of TargetReached or
// Continue is non-nil-shaped: FindWayLocal only ever produces the former;
// FindWay only ever produces the latter, one per boundary reached.
type PathResult struct {
	TargetReached *TargetReached
	Continue      *Continue
}

// TargetReached carries the full path and cost to a target found within
// the searching region.
type TargetReached struct {
	Path []PathPoint
	Cost uint64
}

// Continue is one possibility: a path reaching a boundary node from which
// the search must hop to another region to keep progressing toward the
// target region.
type Continue struct {
	Path         []PathPoint
	Cost         uint64
	Continuation Continuation
}

// Continuation names where a Continue possibility picks up: either at a
// node whose owning region is already known (RegionKnown) or one the
// searching region has only heard of across a boundary edge, with its
// region still to be resolved via the directory (RegionUnknown).
type Continuation struct {
	NodeID   uint64
	RegionID uint32 // valid only when Known is true
	Known    bool
}

// RegionKnown builds a Continuation whose owning region is already known.
func RegionKnown(nodeID uint64, regionID uint32) Continuation {
	return Continuation{NodeID: nodeID, RegionID: regionID, Known: true}
}

// RegionUnknown builds a Continuation whose owning region still needs
// resolving through the directory.
func RegionUnknown(nodeID uint64) Continuation {
	return Continuation{NodeID: nodeID, Known: false}
}

// heap entries carry a monotonically increasing sequence number as a
// secondary sort key, so that repeated equal-cost insertions never get
// reordered by container/heap's unstable Less — ties pop in FIFO order.
type searchItem struct {
	nodeID uint64
	cost   uint64
	seq    uint64
	index  int
}

type searchQueue []*searchItem

func (pq searchQueue) Len() int { return len(pq) }
func (pq searchQueue) Less(i, j int) bool {
	if pq[i].cost != pq[j].cost {
		return pq[i].cost < pq[j].cost
	}
	return pq[i].seq < pq[j].seq
}
func (pq searchQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index = i
	pq[j].index = j
}
func (pq *searchQueue) Push(x any) {
	item := x.(*searchItem)
	item.index = len(*pq)
	*pq = append(*pq, item)
}
func (pq *searchQueue) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*pq = old[:n-1]
	return item
}

// addCost adds b to a, surfacing ErrCostOverflow instead of wrapping.
func addCost(a, b uint64) (uint64, error) {
	sum := a + b
	if sum < a {
		return 0, ErrCostOverflow
	}
	return sum, nil
}

// dijkstra runs the shared search core over g starting at src, relaxing
// every edge incident to a popped node. filter, when non-nil, restricts
// relaxation to edges it approves — FindWay uses it to only follow edges
// tagged for the target region. stopAtRegionBoundary controls what happens
// when the popped node is owned by a region other than g's own: FindWay
// sets it so the search halts there and records a boundary possibility;
// FindWayLocal leaves it unset so the search keeps expanding through
// stitched nodes g happens to know about, the way a single region's own
// traversal never stops at a region line at all. Either way, a node
// entirely absent from g.Nodes is a dead end — there are no edges to
// relax from it. It returns the per-node least-known cost, the
// predecessor map used for path reconstruction, and (when
// stopAtRegionBoundary is set) the ordered sequence of boundary node ids
// discovered along the way.
func dijkstra(g *Graph, src uint64, filter func(e *Edge) bool, stopAtRegionBoundary bool) (dist map[uint64]uint64, prev map[uint64]uint64, visited map[uint64]bool, boundary []uint64, err error) {
	if _, ok := g.Nodes[src]; !ok {
		return nil, nil, nil, nil, ErrStartNodeNotFound
	}

	dist = make(map[uint64]uint64, len(g.Nodes))
	prev = make(map[uint64]uint64, len(g.Nodes))
	visited = make(map[uint64]bool, len(g.Nodes))
	dist[src] = 0

	var seq uint64
	pq := &searchQueue{}
	heap.Init(pq)
	heap.Push(pq, &searchItem{nodeID: src, cost: 0, seq: seq})

	for pq.Len() > 0 {
		item := heap.Pop(pq).(*searchItem)
		u := item.nodeID

		if visited[u] {
			continue
		}
		if known, ok := dist[u]; ok && item.cost > known {
			continue // stale entry
		}
		visited[u] = true

		node, ok := g.Nodes[u]
		if !ok {
			// Not present in g at all: no edges to relax from here.
			if stopAtRegionBoundary {
				boundary = append(boundary, u)
			}
			continue
		}
		if stopAtRegionBoundary && node.RegionID != g.RegionID {
			// Boundary node: a stitched node present here but owned
			// elsewhere. Recorded in the exact order the queue finalizes
			// it (ascending cost, FIFO ties) and never expanded further.
			boundary = append(boundary, u)
			continue
		}

		for _, edgeID := range node.Edges {
			edge, ok := g.Edges[edgeID]
			if !ok {
				return nil, nil, nil, nil, ErrVertexNotFound
			}
			if filter != nil && !filter(edge) {
				continue
			}
			to := edge.Other(u)
			alt, aerr := addCost(dist[u], edge.Weight)
			if aerr != nil {
				return nil, nil, nil, nil, aerr
			}
			known, have := dist[to]
			if !have || alt < known {
				dist[to] = alt
				prev[to] = u
				seq++
				heap.Push(pq, &searchItem{nodeID: to, cost: alt, seq: seq})
			}
		}
	}

	return dist, prev, visited, boundary, nil
}

// reconstruct walks prev from dst back to src, returning the path as
// PathPoints in source-to-dst order. g is used to resolve coordinates and
// region ids for nodes this graph knows about; nodes it doesn't know about
// (pure boundary stubs) carry only their id.
func reconstruct(g *Graph, prev map[uint64]uint64, src, dst uint64) []PathPoint {
	var ids []uint64
	for at := dst; ; {
		ids = append(ids, at)
		if at == src {
			break
		}
		p, ok := prev[at]
		if !ok {
			break
		}
		at = p
	}
	for i, j := 0, len(ids)-1; i < j; i, j = j, i {
		ids[i], ids[j] = ids[j], ids[i]
	}

	path := make([]PathPoint, 0, len(ids))
	for _, id := range ids {
		if n, ok := g.Nodes[id]; ok {
			path = append(path, PathPoint{NodeID: n.NodeID, RegionID: n.RegionID, CoordX: n.CoordX, CoordY: n.CoordY})
		} else {
			path = append(path, PathPoint{NodeID: id})
		}
	}
	return path
}

// FindWayLocal searches for target within g alone, expanding through any
// node g knows about regardless of which region owns it. target must
// belong to g's region; callers route to FindWay otherwise.
func FindWayLocal(g *Graph, source, target NodeInfo) (PathResult, error) {
	dist, prev, _, _, err := dijkstra(g, source.NodeID, nil, false)
	if err != nil {
		return PathResult{}, err
	}
	cost, ok := dist[target.NodeID]
	if !ok || math.IsInf(float64(cost), 1) {
		return PathResult{}, ErrUnreachable
	}
	path := reconstruct(g, prev, source.NodeID, target.NodeID)
	return PathResult{TargetReached: &TargetReached{Path: path, Cost: cost}}, nil
}

// FindWay searches g for every boundary crossing useful for reaching
// targetRegion, restricting relaxation to edges whose RegionBits marks
// targetRegion reachable. Each crossing the search pops yields one
// possibility, appended in ascending-cost (ties FIFO) order — the same
// order the underlying priority queue pops them in.
func FindWay(g *Graph, source NodeInfo, targetRegion uint32) ([]PathResult, error) {
	filter := func(e *Edge) bool { return e.RegionBits.Test(targetRegion) }
	dist, prev, _, boundary, err := dijkstra(g, source.NodeID, filter, true)
	if err != nil {
		return nil, err
	}
	if len(boundary) == 0 {
		return nil, ErrNoVertexWithRegionBit
	}

	results := make([]PathResult, 0, len(boundary))
	for _, nodeID := range boundary {
		cost := dist[nodeID]
		path := reconstruct(g, prev, source.NodeID, nodeID)
		var cont Continuation
		if n, ok := g.Nodes[nodeID]; ok {
			cont = RegionKnown(nodeID, n.RegionID)
		} else {
			cont = RegionUnknown(nodeID)
		}
		results = append(results, PathResult{Continue: &Continue{Path: path, Cost: cost, Continuation: cont}})
	}
	return results, nil
}
