// Package worker implements the group server's per-request execution
// unit: one goroutine per worker, each owning its own input channel and
// announcing itself idle on a shared "free" channel on creation and after
// every request, success or failure, unconditionally.
//
// Grounded on the ingest-goroutine pattern in this lineage's relay
// handler (one goroutine per unit of concurrent work, a done-channel style
// cleanup that always runs) generalized to the spec's worker lifecycle,
// with the "always re-announce idle" step strengthened from the original
// source's two separate send sites into a single deferred call.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/okdaichi/pathmesh/internal/graph"
	"github.com/okdaichi/pathmesh/internal/health"
	"github.com/okdaichi/pathmesh/internal/request"
	"github.com/okdaichi/pathmesh/internal/transport"
)

// RegionResolver is the subset of directory.Client a worker needs: looking
// up which region a continuation node belongs to, and which server owns a
// region. Expressed as an interface so tests can substitute a fake
// directory instead of a live Redis connection.
type RegionResolver interface {
	GetRegion(ctx context.Context, node uint64) (uint32, error)
	GetServerID(ctx context.Context, region uint32) (uint32, error)
}

// Deps bundles the collaborators a worker needs to serve a request. Graphs
// is shared, read-only, and never mutated once bootstrap finishes loading
// it — workers never hold a lock on it because nothing ever writes to it
// again. Metrics may be nil in tests.
type Deps struct {
	Graphs    map[uint32]*graph.Graph
	Directory RegionResolver
	Sender    transport.Sender
	Replier   transport.Replier
	Log       *slog.Logger
	Metrics   *health.Metrics
}

// Worker serves exactly one request at a time on In, and announces its id
// on Free when idle.
type Worker struct {
	ID   uint32
	In   chan request.PathRequest
	Free chan<- uint32
	deps Deps
}

// New builds a worker and announces it idle once, so a fresh pool is
// immediately visible to the dispatcher.
func New(id uint32, free chan<- uint32, deps Deps) *Worker {
	w := &Worker{ID: id, In: make(chan request.PathRequest, 1), Free: free, deps: deps}
	free <- id
	return w
}

// Run services requests from In until ctx is cancelled. Only this
// goroutine ever reads In, and it never exits early on a single request's
// failure — every error is logged and the request dropped.
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-w.In:
			w.serve(ctx, req)
		}
	}
}

// serve runs the algorithm from the spec: resolve which owned region
// req.Last currently sits in, search locally if the target is in that
// region, or extend toward the boundary and forward one request per
// possibility otherwise. The worker always re-announces itself idle,
// whatever the outcome.
func (w *Worker) serve(ctx context.Context, req request.PathRequest) {
	defer func() { w.Free <- w.ID }()

	log := w.deps.Log.With("request_id", req.RequestID, "worker_id", w.ID)

	g := w.ownedGraphFor(req.Last)
	if g == nil {
		log.Warn("dropping request: current node not in any owned region", "node_id", req.Last)
		w.dropped("unowned_node")
		return
	}

	source := graph.NodeInfo{NodeID: req.Last, RegionID: g.RegionID}
	target := graph.NodeInfo{NodeID: req.Target.NodeID, RegionID: req.Target.RegionID}

	// Mark this region visited before branching, so every possibility
	// forwarded below carries the full visited set including this hop.
	base := req.Update(nil, req.Last, 0, g.RegionID)

	start := time.Now()
	if target.RegionID == g.RegionID {
		w.serveLocal(ctx, log, g, base, source, target)
	} else {
		w.serveBoundary(ctx, log, g, base, source, target.RegionID)
	}
	if w.deps.Metrics != nil {
		w.deps.Metrics.SearchDuration.Observe(time.Since(start).Seconds())
	}
}

func (w *Worker) dropped(reason string) {
	if w.deps.Metrics != nil {
		w.deps.Metrics.RequestsDropped.WithLabelValues(reason).Inc()
	}
}

func (w *Worker) ownedGraphFor(nodeID uint64) *graph.Graph {
	for _, g := range w.deps.Graphs {
		if _, ok := g.Nodes[nodeID]; ok {
			return g
		}
	}
	return nil
}

func (w *Worker) serveLocal(ctx context.Context, log *slog.Logger, g *graph.Graph, base request.PathRequest, source, target graph.NodeInfo) {
	result, err := graph.FindWayLocal(g, source, target)
	if err != nil {
		if errors.Is(err, graph.ErrUnreachable) {
			log.Warn("target unreachable within region", "region_id", g.RegionID)
			w.dropped("unreachable")
			return
		}
		log.Error("local search failed", "error", err)
		w.dropped("search_error")
		return
	}

	reply := base.UpdateWithoutRegion(result.TargetReached.Path[1:], target.NodeID, result.TargetReached.Cost)
	if err := w.deps.Replier.Send(ctx, reply); err != nil {
		log.Error("failed to send reply", "error", err)
		return
	}
	if w.deps.Metrics != nil {
		w.deps.Metrics.RequestsServed.Inc()
	}
}

func (w *Worker) serveBoundary(ctx context.Context, log *slog.Logger, g *graph.Graph, base request.PathRequest, source graph.NodeInfo, targetRegion uint32) {
	possibilities, err := graph.FindWay(g, source, targetRegion)
	if err != nil {
		if errors.Is(err, graph.ErrNoVertexWithRegionBit) {
			log.Warn("no boundary edge toward target region", "target_region", targetRegion)
			w.dropped("no_region_bit")
			return
		}
		log.Error("boundary search failed", "error", err)
		w.dropped("search_error")
		return
	}

	for _, p := range possibilities {
		c := p.Continue
		region := c.Continuation.RegionID
		known := c.Continuation.Known
		if !known {
			resolved, err := w.deps.Directory.GetRegion(ctx, c.Continuation.NodeID)
			if err != nil {
				log.Warn("dropping possibility: could not resolve region for continuation node", "node_id", c.Continuation.NodeID, "error", err)
				continue
			}
			region = resolved
		}

		if base.HasVisited(region) {
			log.Debug("dropping possibility: region already visited", "region_id", region)
			continue
		}

		next := base.Update(c.Path[1:], c.Continuation.NodeID, c.Cost, region)

		serverID, err := w.deps.Directory.GetServerID(ctx, region)
		if err != nil {
			log.Warn("dropping possibility: no server owns region", "region_id", region, "error", err)
			w.dropped("no_owning_server")
			continue
		}
		if err := w.deps.Sender.SendRequest(ctx, serverID, next); err != nil {
			log.Error("failed to forward request", "server_id", serverID, "error", err)
			continue
		}
		if w.deps.Metrics != nil {
			w.deps.Metrics.RequestsForwarded.Inc()
		}
	}
}
