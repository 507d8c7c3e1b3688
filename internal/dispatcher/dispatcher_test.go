package dispatcher

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okdaichi/pathmesh/internal/graph"
	"github.com/okdaichi/pathmesh/internal/request"
)

type fakeListener struct {
	reqs []request.PathRequest
	errs []error
	i    int
}

func (f *fakeListener) GetNewRequest(ctx context.Context) (request.PathRequest, error) {
	if f.i >= len(f.reqs) && f.i >= len(f.errs) {
		<-ctx.Done()
		return request.PathRequest{}, ctx.Err()
	}
	idx := f.i
	f.i++
	if idx < len(f.errs) && f.errs[idx] != nil {
		return request.PathRequest{}, f.errs[idx]
	}
	return f.reqs[idx], nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDispatcherHandsRequestToCorrectWorker(t *testing.T) {
	listener := &fakeListener{reqs: []request.PathRequest{
		request.Seed(1, graph.NodeInfo{NodeID: 1, RegionID: 1}, graph.NodeInfo{NodeID: 2, RegionID: 1}),
	}}

	free := make(chan uint32, 1)
	free <- 5
	in := make(chan request.PathRequest, 1)

	d := &Dispatcher{
		Listener: listener,
		Free:     free,
		Workers:  map[uint32]chan<- request.PathRequest{5: in},
		Log:      testLogger(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	go d.Run(ctx)

	select {
	case <-in:
	case <-time.After(time.Second):
		t.Fatal("request was not handed to the worker's input channel")
	}
	cancel()
}

func TestDispatcherReturnsWorkerOnNonProtocolError(t *testing.T) {
	listener := &fakeListener{errs: []error{errors.New("transient decode error")}}

	free := make(chan uint32, 1)
	free <- 3

	d := &Dispatcher{
		Listener: listener,
		Free:     free,
		Workers:  map[uint32]chan<- request.PathRequest{3: make(chan request.PathRequest, 1)},
		Log:      testLogger(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	select {
	case id := <-free:
		assert.Equal(t, uint32(3), id)
	case <-time.After(time.Second):
		t.Fatal("worker id was not returned to Free after a non-protocol listener error")
	}
	cancel()
	<-done
}

func TestDispatcherStopsOnContextCancellation(t *testing.T) {
	listener := &fakeListener{}
	free := make(chan uint32, 1)
	free <- 1

	d := &Dispatcher{
		Listener: listener,
		Free:     free,
		Workers:  map[uint32]chan<- request.PathRequest{1: make(chan request.PathRequest, 1)},
		Log:      testLogger(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
	require.True(t, true)
}
