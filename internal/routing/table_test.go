package routing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeerID_XORAndPrefix(t *testing.T) {
	a := PeerIDFromSeed("a")
	b := PeerIDFromSeed("b")

	assert.Equal(t, IDBytes*8, CommonPrefixLen(a, a))
	assert.Less(t, CommonPrefixLen(a, b), IDBytes*8)
	assert.True(t, a.XOR(a).IsZero())
	assert.Equal(t, a.XOR(b), b.XOR(a))
}

func TestPeerID_ParseRoundtrip(t *testing.T) {
	id := NewPeerID()
	parsed, err := ParsePeerID(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)

	_, err = ParsePeerID("zz")
	require.Error(t, err)
}

func TestTable_SelfNeverAdded(t *testing.T) {
	self := PeerIDFromSeed("self")
	table := NewTable(self, 20)
	assert.False(t, table.Add(NewPeer(self, "")))
	assert.Zero(t, table.Len())
}

func TestTable_AddAndClosest(t *testing.T) {
	self := PeerIDFromSeed("self")
	table := NewTable(self, 20)

	ids := make([]PeerID, 0, 50)
	for i := 0; i < 50; i++ {
		id := PeerIDFromSeed(string(rune('A' + i)))
		ids = append(ids, id)
		table.Add(NewPeer(id, ""))
	}
	require.Equal(t, 50, table.Len())

	target := ids[7]
	closest := table.Closest(target, 5)
	require.Len(t, closest, 5)
	assert.Equal(t, target, closest[0].ID)

	// Distances are non-decreasing.
	for i := 1; i < len(closest); i++ {
		prev := closest[i-1].ID.XOR(target)
		cur := closest[i].ID.XOR(target)
		assert.False(t, cur.Less(prev))
	}
}

func TestTable_FullBucketKeepsResponsivePeers(t *testing.T) {
	self := PeerIDFromSeed("self")
	table := NewTable(self, 2)

	// Find three ids landing in the same bucket.
	var same []PeerID
	idx := -1
	for i := 0; len(same) < 3 && i < 10000; i++ {
		id := PeerIDFromSeed("peer-" + string(rune(i)))
		b := CommonPrefixLen(self, id)
		if idx == -1 {
			idx = b
			same = append(same, id)
			continue
		}
		if b == idx {
			same = append(same, id)
		}
	}
	require.Len(t, same, 3)

	require.True(t, table.Add(NewPeer(same[0], "")))
	require.True(t, table.Add(NewPeer(same[1], "")))

	// Bucket is full and the least-recently-seen peer is healthy: drop the
	// newcomer.
	assert.False(t, table.Add(NewPeer(same[2], "")))

	// Once the oldest peer goes unreachable, the newcomer takes its slot.
	oldest, ok := table.Get(same[0])
	require.True(t, ok)
	for i := 0; i < 10; i++ {
		oldest.RecordFailure(3)
	}
	assert.True(t, table.Add(NewPeer(same[2], "")))
	_, ok = table.Get(same[0])
	assert.False(t, ok)
}

func TestPeer_FailureBackoffAndRecovery(t *testing.T) {
	p := NewPeer(NewPeerID(), "")

	for i := 0; i < 5; i++ {
		p.RecordFailure(5)
	}
	assert.False(t, p.Reachable(time.Now()))

	p.RecordSuccess(10 * time.Millisecond)
	assert.True(t, p.Reachable(time.Now()))
	assert.Zero(t, p.Failures())
	assert.Equal(t, 10*time.Millisecond, p.RTT())
}
