package graph

import "errors"

var (
	// ErrStartNodeNotFound is returned when the search's source node isn't
	// present in this region's node set.
	ErrStartNodeNotFound = errors.New("graph: start node not found in region")

	// ErrVertexNotFound signals an internal invariant break: an edge id
	// referenced from a node's adjacency list has no entry in Edges.
	ErrVertexNotFound = errors.New("graph: vertex not found")

	// ErrUnreachable is returned by FindWayLocal when no path exists to the
	// target within this region.
	ErrUnreachable = errors.New("graph: target unreachable within region")

	// ErrNoVertexWithRegionBit is returned by FindWay when no edge reachable
	// from source carries the target region in its RegionBits, so the
	// search can never make progress toward it.
	ErrNoVertexWithRegionBit = errors.New("graph: no vertex with requested region bit")

	// ErrCostOverflow signals that an accumulated path cost would overflow
	// uint64. Treated as a fatal invariant violation, never a silent
	// wraparound.
	ErrCostOverflow = errors.New("graph: accumulated cost overflow")
)
