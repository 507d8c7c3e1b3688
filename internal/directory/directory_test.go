package directory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendUniqueAddsNewRegion(t *testing.T) {
	got := appendUnique([]uint32{1, 2}, 3)
	assert.Equal(t, []uint32{1, 2, 3}, got)
}

func TestAppendUniqueSkipsDuplicate(t *testing.T) {
	got := appendUnique([]uint32{1, 2}, 2)
	assert.Equal(t, []uint32{1, 2}, got)
}

func TestAppendUniqueOnEmpty(t *testing.T) {
	got := appendUnique(nil, 5)
	assert.Equal(t, []uint32{5}, got)
}

// GetServers reads from the in-memory address book kept by
// SubscribeServerUpdates's background goroutine, never touching Redis
// directly — exercising it doesn't require a live connection.
func TestGetServersReadsAddressBookCopy(t *testing.T) {
	c := &Client{servers: map[uint32]ServerInfo{
		1: {ServerID: 1, Addr: "tcp://10.0.0.1:5555", Regions: []uint32{1, 2}},
	}}

	got, err := c.GetServers(context.Background())
	require.NoError(t, err)
	require.Contains(t, got, uint32(1))
	assert.Equal(t, "tcp://10.0.0.1:5555", got[1].Addr)

	// Mutating the returned map must not affect the client's own state.
	got[1] = ServerInfo{ServerID: 1, Addr: "mutated"}
	again, err := c.GetServers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tcp://10.0.0.1:5555", again[1].Addr)
}
