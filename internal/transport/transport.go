// Package transport defines the group server's message bus boundary:
// Listener receives incoming requests, Sender forwards a request to
// another server, Replier delivers a finished result back toward the
// client. Two concrete backends exist (transport/zmqtransport,
// transport/pubsubtransport); a server picks exactly one pair at startup
// and never mixes them, mirroring the teacher's own "Router chosen once at
// construction, never hot-swapped" discipline generalized from a single
// interface to three.
package transport

import (
	"context"
	"errors"
	"fmt"

	"github.com/okdaichi/pathmesh/internal/request"
)

// ErrProtocolError signals the underlying transport itself is broken (a
// socket error, a connection reset) rather than a malformed message. The
// dispatcher treats this as fatal and crashes the process, per the spec.
var ErrProtocolError = errors.New("transport: protocol error")

// ErrDeserialization signals a message was received intact but could not
// be decoded as a PathRequest. The offending message is dropped; the
// transport itself is healthy.
var ErrDeserialization = errors.New("transport: deserialization error")

// ErrNoRequest is returned when a listener's source closed without
// delivering a request (e.g. a pub/sub stream ending).
var ErrNoRequest = errors.New("transport: no request received")

// WrapProtocolError wraps err so errors.Is(err, ErrProtocolError) holds.
func WrapProtocolError(err error) error {
	return fmt.Errorf("%w: %v", ErrProtocolError, err)
}

// WrapDeserialization wraps err so errors.Is(err, ErrDeserialization) holds.
func WrapDeserialization(err error) error {
	return fmt.Errorf("%w: %v", ErrDeserialization, err)
}

// Listener receives new requests to be served. GetNewRequest blocks until a
// request arrives, ctx is cancelled, or the transport fails. Exactly one
// goroutine (the dispatcher) may call GetNewRequest at a time.
type Listener interface {
	GetNewRequest(ctx context.Context) (request.PathRequest, error)
}

// Replier delivers a finished PathRequest back toward the client that
// originated it (or the group server closest to the client on this hop).
type Replier interface {
	Send(ctx context.Context, reply request.PathRequest) error
}

// Sender forwards a request to another group server identified by
// targetServerID. Implementations decide whether delivery is
// best-effort (pub/sub) or acknowledged-and-retried (ZeroMQ REQ/REP).
type Sender interface {
	SendRequest(ctx context.Context, targetServerID uint32, req request.PathRequest) error
}
