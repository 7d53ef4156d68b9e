package routing

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ruvnet/tokenfield/internal/config"
)

// buildSwarm wires n fully-introduced nodes over an in-process fabric and
// returns per-node delivery counters.
func buildSwarm(t *testing.T, n int, cfg config.RoutingConfig) ([]*Node, []*int32) {
	t.Helper()
	net := NewNetwork()

	ids := make([]PeerID, n)
	for i := range ids {
		ids[i] = PeerIDFromSeed(fmt.Sprintf("swarm-peer-%d", i))
	}

	nodes := make([]*Node, n)
	counters := make([]*int32, n)
	for i := range ids {
		node, err := NewNode(NodeOptions{
			Self:      ids[i],
			Config:    cfg,
			Transport: net.Transport(ids[i]),
			Logger:    zaptest.NewLogger(t),
		})
		require.NoError(t, err)

		counter := new(int32)
		node.OnDeliver(func(b *Broadcast) {
			atomic.AddInt32(counter, 1)
		})
		nodes[i] = node
		counters[i] = counter

		for j := range ids {
			if j != i {
				node.AddPeer(NewPeer(ids[j], ""))
			}
		}
	}

	if cfg.Topology == TopologySupernode {
		for _, node := range nodes {
			node.RecomputeSupernodes()
		}
	}
	return nodes, counters
}

func settle(t *testing.T, counters []*int32, origin int) {
	t.Helper()
	require.Eventually(t, func() bool {
		for i, c := range counters {
			if i == origin {
				continue
			}
			if atomic.LoadInt32(c) == 0 {
				return false
			}
		}
		return true
	}, 5*time.Second, 10*time.Millisecond, "broadcast did not reach every peer")

	// Let any stragglers arrive before asserting exact counts.
	time.Sleep(200 * time.Millisecond)
}

func TestGossip_FlatCoverageAndDedup(t *testing.T) {
	nodes, counters := buildSwarm(t, 10, config.RoutingConfig{
		Topology:        TopologyFlat,
		SeenSetCapacity: 1024,
		BroadcastTTL:    10,
	})

	_, err := nodes[0].Broadcast([]byte("hello"))
	require.NoError(t, err)

	settle(t, counters, 0)
	for i, c := range counters {
		if i == 0 {
			continue
		}
		assert.Equal(t, int32(1), atomic.LoadInt32(c), "peer %d", i)
	}
}

func TestGossip_StructuredCoverageExactlyOnce(t *testing.T) {
	nodes, counters := buildSwarm(t, 30, config.RoutingConfig{
		Topology:        TopologyStructured,
		K:               20,
		Alpha:           3,
		SeenSetCapacity: 4096,
		BroadcastTTL:    10,
	})

	_, err := nodes[0].Broadcast([]byte("payload"))
	require.NoError(t, err)

	settle(t, counters, 0)
	for i, c := range counters {
		if i == 0 {
			continue
		}
		// The seen set drops duplicates: every peer delivers exactly once.
		assert.Equal(t, int32(1), atomic.LoadInt32(c), "peer %d", i)
	}
}

func TestGossip_SupernodeCoverage(t *testing.T) {
	nodes, counters := buildSwarm(t, 24, config.RoutingConfig{
		Topology:             TopologySupernode,
		TargetSupernodeCount: 4,
		SeenSetCapacity:      4096,
		BroadcastTTL:         10,
	})

	supernodes := 0
	for _, node := range nodes {
		if node.Role() == RoleSupernode {
			supernodes++
		}
	}
	assert.Equal(t, 4, supernodes)

	// Originate from a leaf.
	leaf := -1
	for i, node := range nodes {
		if node.Role() == RoleLeaf {
			leaf = i
			break
		}
	}
	require.GreaterOrEqual(t, leaf, 0)

	_, err := nodes[leaf].Broadcast([]byte("up and out"))
	require.NoError(t, err)

	settle(t, counters, leaf)
	for i, c := range counters {
		if i == leaf {
			continue
		}
		assert.Equal(t, int32(1), atomic.LoadInt32(c), "peer %d", i)
	}
}

func TestGossip_TTLOneCoversFlatSwarm(t *testing.T) {
	nodes, counters := buildSwarm(t, 3, config.RoutingConfig{
		Topology:        TopologyFlat,
		SeenSetCapacity: 64,
		BroadcastTTL:    1,
	})

	// TTL 1: with the flat topology every peer is a direct neighbor, so the
	// origin's frames (ttl 1) reach everyone. Each receiver forwards once
	// more with ttl 0; those copies are dropped as duplicates, or delivered
	// and not forwarded when they arrive first, so every peer delivers once.
	_, err := nodes[0].Broadcast([]byte("short fuse"))
	require.NoError(t, err)

	settle(t, counters, 0)
	for i, c := range counters {
		if i == 0 {
			continue
		}
		assert.Equal(t, int32(1), atomic.LoadInt32(c))
	}
}

func TestDecodeBroadcast_Corrupt(t *testing.T) {
	_, err := DecodeBroadcast([]byte("junk"))
	require.Error(t, err)

	_, err = DecodeBroadcast([]byte(`{"id":"x","origin":"nothex","ttl":1,"hops":0}`))
	require.Error(t, err)

	_, err = DecodeBroadcast([]byte(`{"id":"x","origin":"` + NewPeerID().String() + `","ttl":-1,"hops":0}`))
	require.Error(t, err)
}

func TestSeen_DedupAndCapacity(t *testing.T) {
	seen, err := NewSeen(2)
	require.NoError(t, err)

	origin := NewPeerID().String()
	m1 := &Broadcast{ID: "1", Origin: origin}
	m2 := &Broadcast{ID: "2", Origin: origin}
	m3 := &Broadcast{ID: "3", Origin: origin}

	assert.True(t, seen.Mark(m1))
	assert.False(t, seen.Mark(m1))
	assert.True(t, seen.Mark(m2))
	assert.True(t, seen.Mark(m3))

	// Bounded capacity evicted the oldest entry.
	assert.False(t, seen.Contains(m1))
}
