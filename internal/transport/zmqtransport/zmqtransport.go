// Package zmqtransport implements the group server transport boundary over
// ZeroMQ: a PULL socket for client-submitted requests and a REP socket for
// peer forwards (both feeding the same Listener), a PUSH socket for
// replies, and REQ sockets (one per peer, held behind a mutex) for
// point-to-point forwarding that retries until it reads the literal "OK"
// ack.
//
// Grounded on the original implementation's zmq_connector module, adapted
// from Rust's async trait-object sockets to Go's net-style blocking calls:
// pebbe/zmq4 sockets are not safe for concurrent use, so each socket here
// is owned by exactly one goroutine (the listener's) or guarded by a
// mutex (the pusher and each REQ socket).
package zmqtransport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	zmq "github.com/pebbe/zmq4"

	"github.com/okdaichi/pathmesh/internal/request"
	"github.com/okdaichi/pathmesh/internal/transport"
)

// Listener multiplexes the two sources of incoming requests: client
// submissions arriving on a PULL socket bound to listenAddr, and
// server-to-server forwards arriving on a REP socket bound to
// forwardAddr — each forward is acked with the literal "OK" the instant it
// deserializes successfully, before the request is handed off for
// processing, matching the peer Sender's retry-until-"OK" contract. Both
// sockets are read by their own dedicated goroutine; GetNewRequest reads
// whichever produced a request first off a shared channel, so only one
// goroutine (the one each socket is bound in) ever touches it.
type Listener struct {
	pull    *zmq.Socket
	rep     *zmq.Socket
	out     chan listenerResult
	cancel  context.CancelFunc
}

type listenerResult struct {
	req request.PathRequest
	err error
}

// NewListener binds a PULL socket to listenAddr (client requests) and a
// REP socket to forwardAddr (server-to-server forwards), and starts their
// receive loops.
func NewListener(listenAddr, forwardAddr string) (*Listener, error) {
	pull, err := zmq.NewSocket(zmq.PULL)
	if err != nil {
		return nil, fmt.Errorf("zmqtransport: creating PULL socket: %w", err)
	}
	if err := pull.Bind(listenAddr); err != nil {
		pull.Close()
		return nil, fmt.Errorf("zmqtransport: binding PULL socket to %s: %w", listenAddr, err)
	}

	rep, err := zmq.NewSocket(zmq.REP)
	if err != nil {
		pull.Close()
		return nil, fmt.Errorf("zmqtransport: creating REP socket: %w", err)
	}
	if err := rep.Bind(forwardAddr); err != nil {
		pull.Close()
		rep.Close()
		return nil, fmt.Errorf("zmqtransport: binding REP socket to %s: %w", forwardAddr, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	l := &Listener{pull: pull, rep: rep, out: make(chan listenerResult), cancel: cancel}
	go l.runPull(ctx)
	go l.runRep(ctx)
	return l, nil
}

func (l *Listener) runPull(ctx context.Context) {
	for ctx.Err() == nil {
		raw, err := l.pull.RecvBytes(0)
		if err != nil {
			l.emit(ctx, listenerResult{err: transport.WrapProtocolError(err)})
			continue
		}
		var req request.PathRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			l.emit(ctx, listenerResult{err: transport.WrapDeserialization(err)})
			continue
		}
		l.emit(ctx, listenerResult{req: req})
	}
}

func (l *Listener) runRep(ctx context.Context) {
	for ctx.Err() == nil {
		raw, err := l.rep.RecvBytes(0)
		if err != nil {
			l.emit(ctx, listenerResult{err: transport.WrapProtocolError(err)})
			continue
		}
		var req request.PathRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			// Still must reply, or the peer retries forever against a REQ
			// socket we will never answer again.
			l.rep.SendBytes([]byte("MALFORMED"), 0)
			l.emit(ctx, listenerResult{err: transport.WrapDeserialization(err)})
			continue
		}
		if _, err := l.rep.SendBytes([]byte("OK"), 0); err != nil {
			l.emit(ctx, listenerResult{err: transport.WrapProtocolError(err)})
			continue
		}
		l.emit(ctx, listenerResult{req: req})
	}
}

func (l *Listener) emit(ctx context.Context, r listenerResult) {
	select {
	case l.out <- r:
	case <-ctx.Done():
	}
}

// GetNewRequest returns whichever of the PULL/REP sources produces next.
func (l *Listener) GetNewRequest(ctx context.Context) (request.PathRequest, error) {
	select {
	case r := <-l.out:
		return r.req, r.err
	case <-ctx.Done():
		return request.PathRequest{}, ctx.Err()
	}
}

// Close releases both underlying sockets and stops the receive goroutines.
func (l *Listener) Close() error {
	l.cancel()
	err1 := l.pull.Close()
	err2 := l.rep.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// Replier wraps a PUSH socket connected to addr, guarded by a mutex since
// zmq4 sockets are not goroutine-safe.
type Replier struct {
	mu  sync.Mutex
	sck *zmq.Socket
}

// NewReplier connects a PUSH socket to addr.
func NewReplier(addr string) (*Replier, error) {
	sck, err := zmq.NewSocket(zmq.PUSH)
	if err != nil {
		return nil, fmt.Errorf("zmqtransport: creating PUSH socket: %w", err)
	}
	if err := sck.Connect(addr); err != nil {
		sck.Close()
		return nil, fmt.Errorf("zmqtransport: connecting PUSH socket to %s: %w", addr, err)
	}
	return &Replier{sck: sck}, nil
}

// Send delivers reply over the PUSH socket.
func (r *Replier) Send(ctx context.Context, reply request.PathRequest) error {
	raw, err := json.Marshal(reply)
	if err != nil {
		return fmt.Errorf("zmqtransport: encoding reply: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.sck.SendBytes(raw, 0); err != nil {
		return transport.WrapProtocolError(err)
	}
	return nil
}

// Close releases the underlying socket.
func (r *Replier) Close() error {
	return r.sck.Close()
}

// Sender holds one REQ socket per peer server, connected lazily and kept
// for the process lifetime. Every SendRequest retries on the same socket,
// forever, until the peer's reply is exactly the literal ack payload "OK".
type Sender struct {
	mu    sync.Mutex
	peers map[uint32]*sync.Mutex
	socks map[uint32]*zmq.Socket
	addrs map[uint32]string
	log   *slog.Logger
}

// NewSender builds a Sender that will lazily connect a REQ socket to
// addrs[serverID] the first time that peer is addressed.
func NewSender(addrs map[uint32]string, log *slog.Logger) *Sender {
	return &Sender{
		peers: make(map[uint32]*sync.Mutex),
		socks: make(map[uint32]*zmq.Socket),
		addrs: addrs,
		log:   log,
	}
}

// AddPeer registers (or updates) the listen address of a peer server,
// used when the directory's address book changes.
func (s *Sender) AddPeer(serverID uint32, addr string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addrs[serverID] = addr
}

func (s *Sender) socketFor(targetServerID uint32) (*zmq.Socket, *sync.Mutex, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sck, ok := s.socks[targetServerID]; ok {
		return sck, s.peers[targetServerID], nil
	}
	addr, ok := s.addrs[targetServerID]
	if !ok {
		return nil, nil, fmt.Errorf("zmqtransport: no known address for server %d", targetServerID)
	}
	sck, err := zmq.NewSocket(zmq.REQ)
	if err != nil {
		return nil, nil, fmt.Errorf("zmqtransport: creating REQ socket: %w", err)
	}
	if err := sck.Connect(addr); err != nil {
		sck.Close()
		return nil, nil, fmt.Errorf("zmqtransport: connecting REQ socket to %s: %w", addr, err)
	}
	s.socks[targetServerID] = sck
	s.peers[targetServerID] = &sync.Mutex{}
	return sck, s.peers[targetServerID], nil
}

// SendRequest sends req to targetServerID, retrying forever on the same
// REQ socket until the peer's reply is the literal "OK".
func (s *Sender) SendRequest(ctx context.Context, targetServerID uint32, req request.PathRequest) error {
	sck, lock, err := s.socketFor(targetServerID)
	if err != nil {
		return transport.WrapProtocolError(err)
	}
	raw, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("zmqtransport: encoding request: %w", err)
	}

	lock.Lock()
	defer lock.Unlock()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, err := sck.SendBytes(raw, 0); err != nil {
			return transport.WrapProtocolError(err)
		}
		reply, err := sck.RecvBytes(0)
		if err != nil {
			return transport.WrapProtocolError(err)
		}
		if string(reply) == "OK" {
			return nil
		}
		s.log.Warn("zmqtransport: peer responded with unexpected message, retrying", "server_id", targetServerID, "reply", string(reply))
	}
}
