package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/okdaichi/pathmesh/internal/graph"
)

// GetServerID resolves which server currently owns region.
func (c *Client) GetServerID(ctx context.Context, region uint32) (uint32, error) {
	var id uint32
	err := c.withPermit(ctx, func() error {
		v, err := c.rdb.Get(ctx, fmt.Sprintf(keyRegionServerFmt, region)).Result()
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("directory: region %d has no owning server", region)
		}
		if err != nil {
			return fmt.Errorf("directory: get region_server: %w", err)
		}
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return fmt.Errorf("directory: malformed region_server value: %w", err)
		}
		id = uint32(n)
		return nil
	})
	return id, err
}

// GetRegion resolves which region a node belongs to, consulting the
// node→region cache. The cache is incomplete by design — a miss is a
// normal outcome, not an error condition callers should treat as fatal.
func (c *Client) GetRegion(ctx context.Context, node uint64) (uint32, error) {
	var region uint32
	err := c.withPermit(ctx, func() error {
		v, err := c.rdb.Get(ctx, fmt.Sprintf(keyNodeRegionFmt, node)).Result()
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("directory: node %d not present in node_region cache", node)
		}
		if err != nil {
			return fmt.Errorf("directory: get node_region: %w", err)
		}
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return fmt.Errorf("directory: malformed node_region value: %w", err)
		}
		region = uint32(n)
		return nil
	})
	return region, err
}

// SetRegion publishes node_region for every node in g whose own RegionID is
// g.RegionID (stitched nodes owned by another region are skipped), and records g.RegionID as owned by this server at addr (the
// address peers should use to reach it for forwarding). It uses a
// delete-then-insert-if-absent protocol (SETNX, falling back to a Get to
// check for a benign re-publish of the same owner) for both the
// region_server key and every node_region key, so two servers racing to
// publish overlapping ownership never silently clobber one another — the
// loser observes ErrRegionConflict instead.
func (c *Client) SetRegion(ctx context.Context, serverID uint32, addr string, g *graph.Graph) error {
	return c.withPermit(ctx, func() error {
		key := fmt.Sprintf(keyRegionServerFmt, g.RegionID)

		ok, err := c.rdb.SetNX(ctx, key, serverID, 0).Result()
		if err != nil {
			return fmt.Errorf("directory: setnx region_server: %w", err)
		}
		if !ok {
			existing, err := c.rdb.Get(ctx, key).Result()
			if err != nil {
				return fmt.Errorf("directory: get existing region_server: %w", err)
			}
			if existing != strconv.FormatUint(uint64(serverID), 10) {
				return ErrRegionConflict
			}
		}

		nodeIDs := make([]uint64, 0, len(g.Nodes))
		cmds := make([]*redis.BoolCmd, 0, len(g.Nodes))
		pipe := c.rdb.Pipeline()
		for nodeID, n := range g.Nodes {
			if n.RegionID != g.RegionID {
				continue
			}
			nodeIDs = append(nodeIDs, nodeID)
			cmds = append(cmds, pipe.SetNX(ctx, fmt.Sprintf(keyNodeRegionFmt, nodeID), g.RegionID, 0))
		}
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("directory: publishing node_region entries: %w", err)
		}
		for i, cmd := range cmds {
			if cmd.Val() {
				continue
			}
			existing, err := c.rdb.Get(ctx, fmt.Sprintf(keyNodeRegionFmt, nodeIDs[i])).Result()
			if err != nil {
				return fmt.Errorf("directory: get existing node_region: %w", err)
			}
			if existing != strconv.FormatUint(uint64(g.RegionID), 10) {
				return ErrRegionConflict
			}
		}

		info, err := c.loadServerInfoLocked(ctx, serverID)
		if err != nil {
			return err
		}
		info.Addr = addr
		info.Regions = appendUnique(info.Regions, g.RegionID)
		return c.publishServerInfo(ctx, info)
	})
}

// GetServers returns every server currently known to the directory, read
// from the local address book populated by SubscribeServerUpdates.
func (c *Client) GetServers(ctx context.Context) (map[uint32]ServerInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[uint32]ServerInfo, len(c.servers))
	for id, info := range c.servers {
		out[id] = info
	}
	return out, nil
}

// SubscribeServerUpdates starts a background goroutine that subscribes to
// channelServerUpdates and keeps the address book current. The returned
// channel also forwards each update for callers that want to react live
// (e.g. transport layers warming a new connection). The goroutine exits
// when ctx is cancelled.
func (c *Client) SubscribeServerUpdates(ctx context.Context) (<-chan ServerInfo, error) {
	pubsub := c.rdb.Subscribe(ctx, channelServerUpdates)
	if _, err := pubsub.Receive(ctx); err != nil {
		return nil, fmt.Errorf("directory: subscribing to server_updates: %w", err)
	}

	out := make(chan ServerInfo, 16)
	go func() {
		defer pubsub.Close()
		defer close(out)
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var info ServerInfo
				if err := json.Unmarshal([]byte(msg.Payload), &info); err != nil {
					c.log.Warn("directory: dropping malformed server_updates payload", "error", err)
					continue
				}
				// The lock is taken only around this in-memory write, never
				// across the network receive above.
				c.mu.Lock()
				c.servers[info.ServerID] = info
				c.mu.Unlock()

				select {
				case out <- info:
				case <-ctx.Done():
					return
				default:
					// Slow consumer: the address book is already updated;
					// dropping the notification here costs nothing but a
					// live-reaction opportunity.
				}
			}
		}
	}()
	return out, nil
}

// loadServerInfoLocked fetches the current ServerInfo hash entry for
// server, defaulting to an empty record if absent. Caller must already
// hold a semaphore permit.
func (c *Client) loadServerInfoLocked(ctx context.Context, server uint32) (ServerInfo, error) {
	v, err := c.rdb.HGet(ctx, keyServerInfo, strconv.FormatUint(uint64(server), 10)).Result()
	if errors.Is(err, redis.Nil) {
		return ServerInfo{ServerID: server}, nil
	}
	if err != nil {
		return ServerInfo{}, fmt.Errorf("directory: hget server_info: %w", err)
	}
	var info ServerInfo
	if err := json.Unmarshal([]byte(v), &info); err != nil {
		return ServerInfo{}, fmt.Errorf("directory: decoding server_info entry: %w", err)
	}
	return info, nil
}

// publishServerInfo writes the hash entry and publishes the update.
// Caller must already hold a semaphore permit.
func (c *Client) publishServerInfo(ctx context.Context, info ServerInfo) error {
	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("directory: encoding server_info: %w", err)
	}
	if err := c.rdb.HSet(ctx, keyServerInfo, strconv.FormatUint(uint64(info.ServerID), 10), data).Err(); err != nil {
		return fmt.Errorf("directory: hset server_info: %w", err)
	}
	if err := c.rdb.Publish(ctx, channelServerUpdates, data).Err(); err != nil {
		return fmt.Errorf("directory: publish server_updates: %w", err)
	}
	return nil
}

func appendUnique(regions []uint32, region uint32) []uint32 {
	for _, r := range regions {
		if r == region {
			return regions
		}
	}
	return append(regions, region)
}
