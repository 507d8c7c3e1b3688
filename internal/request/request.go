// Package request holds the wire-level PathRequest value object exchanged
// between group servers and clients, along with its two derivation
// operations. A request is immutable once built: every hop produces a
// fresh value via Update or UpdateWithoutRegion rather than mutating one in
// place, so a worker can safely hand the original off to a background send
// while building the next hop's value.
//
// This package does not deduplicate multiple completions of the same
// RequestID arriving from different cross-region continuations — by
// design, that's the client's responsibility. See DESIGN.md.
package request

import (
	"encoding/json"
	"fmt"

	"github.com/okdaichi/pathmesh/internal/graph"
)

// NodeInfo mirrors graph.NodeInfo but marshals to/from the wire's
// two-element array form [node, region], not an object, because external
// submitters depend on that exact shape.
type NodeInfo graph.NodeInfo

// MarshalJSON produces the [node_id, region_id] array form.
func (n NodeInfo) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]uint64{n.NodeID, uint64(n.RegionID)})
}

// UnmarshalJSON consumes the [node_id, region_id] array form.
func (n *NodeInfo) UnmarshalJSON(data []byte) error {
	var pair [2]uint64
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("request: decoding NodeInfo: %w", err)
	}
	n.NodeID = pair[0]
	n.RegionID = uint32(pair[1])
	return nil
}

// PathPoint is the wire form of graph.PathPoint. Field names are preserved
// verbatim from the original protocol.
type PathPoint struct {
	NodeID   uint64 `json:"id"`
	RegionID uint32 `json:"region_id"`
	CoordX   uint64 `json:"cord_x"`
	CoordY   uint64 `json:"cord_y"`
}

func fromGraphPoint(p graph.PathPoint) PathPoint {
	return PathPoint{NodeID: p.NodeID, RegionID: p.RegionID, CoordX: p.CoordX, CoordY: p.CoordY}
}

// PathRequest is the request/response object forwarded between group
// servers and back to the client. Path is a contiguous walk from Source to
// Last; Cost is the sum of the weights of the edges connecting consecutive
// points in Path; VisitedRegions is the set of regions already searched
// for this logical request, preventing forwarding loops.
type PathRequest struct {
	RequestID      uint64      `json:"request_id"`
	Source         NodeInfo    `json:"source"`
	Target         NodeInfo    `json:"target"`
	Last           uint64      `json:"last"`
	Path           []PathPoint `json:"path"`
	Cost           uint64      `json:"cost"`
	VisitedRegions []uint32    `json:"visited_regions"`
}

// GetLastNode returns the node id the path has most recently reached.
func (r PathRequest) GetLastNode() uint64 {
	return r.Last
}

// HasVisited reports whether region has already been searched for this
// request.
func (r PathRequest) HasVisited(region uint32) bool {
	for _, v := range r.VisitedRegions {
		if v == region {
			return true
		}
	}
	return false
}

// UpdateWithoutRegion derives the completed request once the target has
// been reached within the current region (the final reply) — no further
// region will be searched, so VisitedRegions is carried forward unchanged.
func (r PathRequest) UpdateWithoutRegion(pathSuffix []graph.PathPoint, newLast uint64, extraCost uint64) PathRequest {
	next := r
	next.Path = appendSuffix(r.Path, pathSuffix)
	next.Last = newLast
	next.Cost = r.Cost + extraCost
	next.VisitedRegions = append([]uint32(nil), r.VisitedRegions...)
	return next
}

// Update derives the next hop's request when the continuation's owning
// region (newRegion) is known, adding it to VisitedRegions (unless already
// present) so the federation never searches the same region twice for one
// logical request.
func (r PathRequest) Update(pathSuffix []graph.PathPoint, newLast uint64, extraCost uint64, newRegion uint32) PathRequest {
	next := r.UpdateWithoutRegion(pathSuffix, newLast, extraCost)
	if !next.HasVisited(newRegion) {
		next.VisitedRegions = append(next.VisitedRegions, newRegion)
	}
	return next
}

// appendSuffix builds the next hop's Path: the existing path plus the
// newly-discovered suffix, converted from the search's internal PathPoint
// type to the wire type.
func appendSuffix(existing []PathPoint, suffix []graph.PathPoint) []PathPoint {
	out := make([]PathPoint, 0, len(existing)+len(suffix))
	out = append(out, existing...)
	for _, p := range suffix {
		out = append(out, fromGraphPoint(p))
	}
	return out
}

// Seed builds the initial request a dispatcher hands to a worker: Last is
// always the source node id and Path always starts with the source point,
// so that Update/UpdateWithoutRegion's "append a suffix" logic never needs
// a "no prior last node" branch — the root cause of the known
// last-absent discard bug in the original implementation never arises
// here.
func Seed(requestID uint64, source, target graph.NodeInfo) PathRequest {
	return PathRequest{
		RequestID: requestID,
		Source:    NodeInfo(source),
		Target:    NodeInfo(target),
		Last:      source.NodeID,
		Path:      []PathPoint{{NodeID: source.NodeID, RegionID: source.RegionID}},
		Cost:      0,
	}
}
