// Package pubsubtransport implements the group server transport boundary
// over Redis pub/sub, on a client built from the same Redis URL as the
// directory's (a separate client, not the directory's own connection):
// requests and forwards arrive
// by subscribing to node_{server_id}, replies publish to
// results_{request_id}, and forwards publish to node_{target_id}. There is
// no acknowledgement in this backend — delivery is best-effort, matching
// the original source's RedisNodeListener/RedisReplier/
// RedisConnectionsManager, which never wait for a reply.
package pubsubtransport

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/okdaichi/pathmesh/internal/request"
	"github.com/okdaichi/pathmesh/internal/transport"
)

// Listener subscribes to node_{serverID} and decodes each message as a
// PathRequest.
type Listener struct {
	pubsub *redis.PubSub
}

// NewListener subscribes rdb to the channel this server receives requests
// and forwards on.
func NewListener(ctx context.Context, rdb *redis.Client, serverID uint32) (*Listener, error) {
	pubsub := rdb.Subscribe(ctx, fmt.Sprintf("node_%d", serverID))
	if _, err := pubsub.Receive(ctx); err != nil {
		return nil, transport.WrapProtocolError(err)
	}
	return &Listener{pubsub: pubsub}, nil
}

// GetNewRequest blocks until a message arrives, ctx is cancelled, or the
// subscription closes.
func (l *Listener) GetNewRequest(ctx context.Context) (request.PathRequest, error) {
	select {
	case msg, ok := <-l.pubsub.Channel():
		if !ok {
			return request.PathRequest{}, transport.ErrNoRequest
		}
		var req request.PathRequest
		if err := json.Unmarshal([]byte(msg.Payload), &req); err != nil {
			return request.PathRequest{}, transport.WrapDeserialization(err)
		}
		return req, nil
	case <-ctx.Done():
		return request.PathRequest{}, ctx.Err()
	}
}

// Close ends the subscription.
func (l *Listener) Close() error {
	return l.pubsub.Close()
}

// Replier publishes finished results to results_{request_id}.
type Replier struct {
	rdb *redis.Client
}

// NewReplier wraps rdb for publishing replies.
func NewReplier(rdb *redis.Client) *Replier {
	return &Replier{rdb: rdb}
}

// Send publishes reply to results_{reply.RequestID}. Best-effort: no ack
// is awaited.
func (r *Replier) Send(ctx context.Context, reply request.PathRequest) error {
	data, err := json.Marshal(reply)
	if err != nil {
		return fmt.Errorf("pubsubtransport: encoding reply: %w", err)
	}
	channel := fmt.Sprintf("results_%d", reply.RequestID)
	if err := r.rdb.Publish(ctx, channel, data).Err(); err != nil {
		return transport.WrapProtocolError(err)
	}
	return nil
}

// Sender publishes forwards to node_{target_server_id}.
type Sender struct {
	rdb *redis.Client
}

// NewSender wraps rdb for publishing forwards.
func NewSender(rdb *redis.Client) *Sender {
	return &Sender{rdb: rdb}
}

// SendRequest publishes req to node_{targetServerID}. Best-effort: no ack
// is awaited, matching the original RedisConnectionsManager.
func (s *Sender) SendRequest(ctx context.Context, targetServerID uint32, req request.PathRequest) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("pubsubtransport: encoding request: %w", err)
	}
	channel := fmt.Sprintf("node_%d", targetServerID)
	if err := s.rdb.Publish(ctx, channel, data).Err(); err != nil {
		return transport.WrapProtocolError(err)
	}
	return nil
}
