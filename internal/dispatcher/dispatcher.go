// Package dispatcher implements the group server's single dispatch loop:
// pull a free worker, pull the next request off the transport Listener,
// hand it off. Backpressure falls directly out of this sequencing — the
// dispatcher never holds more in-flight requests than there are workers,
// because it can't pull a new request until a worker id is available to
// receive it.
//
// Grounded on the registry-of-available-units pattern in this lineage's
// peer registry, turned from a push model (units register themselves in a
// map) into the spec's pull model (the dispatcher blocks on a channel of
// available worker ids).
package dispatcher

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/okdaichi/pathmesh/internal/request"
	"github.com/okdaichi/pathmesh/internal/transport"
)

// Dispatcher owns no state beyond its collaborators: the shared free
// channel, the set of worker input channels, and the transport Listener.
type Dispatcher struct {
	Listener transport.Listener
	Free     chan uint32
	Workers  map[uint32]chan<- request.PathRequest
	Log      *slog.Logger
}

// Run loops until ctx is cancelled. Per the spec's liveness invariants: a
// Listener error other than a protocol error returns the worker id to Free
// before looping again (no request is lost — the pulled request slot is
// never consumed); a protocol error is fatal and crashes the process,
// since the orchestrator is responsible for restarting it; a failed send
// to a worker's input channel means a worker goroutine has exited, which
// can never happen by design, so it is also fatal.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		var workerID uint32
		select {
		case <-ctx.Done():
			return
		case workerID = <-d.Free:
		}

		req, err := d.Listener.GetNewRequest(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			if errors.Is(err, transport.ErrProtocolError) {
				d.Log.Error("fatal transport protocol error, crashing for orchestrator restart", "error", err)
				os.Exit(1)
			}
			d.Log.Warn("listener error, worker returns to idle", "error", err)
			d.Free <- workerID
			continue
		}

		if len(req.Path) == 0 {
			// A fresh submission: seed Last and Path with the source so the
			// worker always starts from a populated request.
			req.Last = req.Source.NodeID
			req.Path = []request.PathPoint{{NodeID: req.Source.NodeID, RegionID: req.Source.RegionID}}
		}

		in, ok := d.Workers[workerID]
		if !ok {
			d.Log.Error("broken invariant: free channel produced unknown worker id, crashing", "worker_id", workerID)
			os.Exit(1)
		}

		select {
		case in <- req:
		default:
			d.Log.Error("broken invariant: worker input channel was not ready to receive, crashing", "worker_id", workerID)
			os.Exit(1)
		}
	}
}
