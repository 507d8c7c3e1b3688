// Package graph implements per-region shortest-path search over a
// partitioned node/edge graph: a local Dijkstra search when the target is
// known to live in this region, and a boundary-extension search that
// enumerates cross-region continuations when it isn't.
package graph

import "fmt"

// RegionBits is a word-packed bitset over region ids, used to mark which
// edges are useful for reaching a given region without walking the whole
// graph to find out.
type RegionBits []uint64

// NewRegionBits returns a bitset large enough to hold region ids up to n-1.
func NewRegionBits(n uint32) RegionBits {
	return make(RegionBits, (n/64)+1)
}

// Set marks region r as reachable via the edge carrying this bitset,
// growing the underlying slice if r falls beyond its current capacity.
func (b *RegionBits) Set(r uint32) {
	word, bit := r/64, r%64
	if int(word) >= len(*b) {
		grown := make(RegionBits, word+1)
		copy(grown, *b)
		*b = grown
	}
	(*b)[word] |= 1 << bit
}

// Test reports whether region r is marked reachable.
func (b RegionBits) Test(r uint32) bool {
	word, bit := r/64, r%64
	if int(word) >= len(b) {
		return false
	}
	return b[word]&(1<<bit) != 0
}

// NodeInfo identifies a node within a specific region. It is the unit of
// addressing used by every external interface (requests, directory
// lookups, possibilities).
type NodeInfo struct {
	NodeID   uint64
	RegionID uint32
}

// PathPoint is one visited point carried in a reconstructed path. CoordX/
// CoordY are informational (client-side rendering); they play no role in
// cost computation.
type PathPoint struct {
	NodeID   uint64
	RegionID uint32
	CoordX   uint64
	CoordY   uint64
}

// Node is immutable after the owning Graph is loaded.
type Node struct {
	NodeID   uint64
	RegionID uint32
	CoordX   uint64
	CoordY   uint64
	Edges    []uint64 // edge ids incident to this node
}

// Edge is undirected and immutable after load. RegionBits is a precomputed
// routing hint: the search trusts it without re-deriving it.
type Edge struct {
	EdgeID     uint64
	EndpointA  uint64
	EndpointB  uint64
	Weight     uint64
	RegionBits RegionBits
}

// Other returns the endpoint of e that isn't from.
func (e *Edge) Other(from uint64) uint64 {
	if e.EndpointA == from {
		return e.EndpointB
	}
	return e.EndpointA
}

// Graph is one region's view of the network. Edges may reference endpoints
// outside Nodes — those are boundary edges, the whole reason FindWay exists.
type Graph struct {
	RegionID uint32
	Nodes    map[uint64]*Node
	Edges    map[uint64]*Edge
}

// New returns an empty graph for the given region, ready for nodes/edges to
// be added by a loader.
func New(regionID uint32) *Graph {
	return &Graph{
		RegionID: regionID,
		Nodes:    make(map[uint64]*Node),
		Edges:    make(map[uint64]*Edge),
	}
}

// AddNode inserts or replaces a node.
func (g *Graph) AddNode(n *Node) {
	g.Nodes[n.NodeID] = n
}

// AddEdge inserts or replaces an edge and wires it into both endpoints'
// adjacency lists that happen to live in this region.
func (g *Graph) AddEdge(e *Edge) {
	g.Edges[e.EdgeID] = e
	for _, id := range [2]uint64{e.EndpointA, e.EndpointB} {
		if n, ok := g.Nodes[id]; ok {
			n.Edges = append(n.Edges, e.EdgeID)
		}
	}
}

// node fetches a node, surfacing ErrVertexNotFound on the internal
// invariant break of an edge referencing an id this graph never indexed
// under its own adjacency list.
func (g *Graph) node(id uint64) (*Node, error) {
	n, ok := g.Nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: node %d", ErrVertexNotFound, id)
	}
	return n, nil
}
