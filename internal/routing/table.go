package routing

import (
	"sort"
	"sync"
	"time"
)

// Table is the k-bucket routing table: buckets indexed by the shared-prefix
// length between the local id and each peer id, holding up to k entries
// ordered by recent responsiveness.
type Table struct {
	self PeerID
	k    int

	mu      sync.RWMutex
	buckets [IDBytes * 8][]*Peer
}

// NewTable creates a table for the local id.
func NewTable(self PeerID, k int) *Table {
	if k <= 0 {
		k = 20
	}
	return &Table{self: self, k: k}
}

// Self returns the local id.
func (t *Table) Self() PeerID { return t.self }

// Add inserts or refreshes a peer. A peer cannot be its own neighbor. Full
// buckets evict the least-recently-seen entry only if that peer is
// currently unreachable; otherwise the newcomer is dropped.
func (t *Table) Add(p *Peer) bool {
	if p.ID == t.self {
		return false
	}
	idx := bucketIndex(t.self, p.ID)

	t.mu.Lock()
	defer t.mu.Unlock()

	bucket := t.buckets[idx]
	for i, cur := range bucket {
		if cur.ID == p.ID {
			cur.Touch()
			// Move to the tail: most recently seen last.
			t.buckets[idx] = append(append(bucket[:i], bucket[i+1:]...), cur)
			return true
		}
	}

	if len(bucket) < t.k {
		t.buckets[idx] = append(bucket, p)
		return true
	}

	// The head is the least recently seen.
	if !bucket[0].Reachable(time.Now()) {
		t.buckets[idx] = append(bucket[1:], p)
		return true
	}
	return false
}

// Remove evicts a peer.
func (t *Table) Remove(id PeerID) {
	idx := bucketIndex(t.self, id)

	t.mu.Lock()
	defer t.mu.Unlock()
	bucket := t.buckets[idx]
	for i, cur := range bucket {
		if cur.ID == id {
			t.buckets[idx] = append(bucket[:i], bucket[i+1:]...)
			return
		}
	}
}

// Get returns a known peer.
func (t *Table) Get(id PeerID) (*Peer, bool) {
	idx := bucketIndex(t.self, id)

	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, cur := range t.buckets[idx] {
		if cur.ID == id {
			return cur, true
		}
	}
	return nil, false
}

// All returns every known peer.
func (t *Table) All() []*Peer {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Peer, 0)
	for _, bucket := range t.buckets {
		out = append(out, bucket...)
	}
	return out
}

// Len returns the number of known peers.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, bucket := range t.buckets {
		n += len(bucket)
	}
	return n
}

// Bucket returns the peers sharing the given prefix length with the local
// id.
func (t *Table) Bucket(idx int) []*Peer {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if idx < 0 || idx >= len(t.buckets) {
		return nil
	}
	out := make([]*Peer, len(t.buckets[idx]))
	copy(out, t.buckets[idx])
	return out
}

// Closest returns up to n reachable peers ordered by XOR distance to the
// target.
func (t *Table) Closest(target PeerID, n int) []*Peer {
	now := time.Now()
	peers := t.All()

	reachable := peers[:0]
	for _, p := range peers {
		if p.Reachable(now) {
			reachable = append(reachable, p)
		}
	}

	sort.Slice(reachable, func(i, j int) bool {
		return reachable[i].ID.XOR(target).Less(reachable[j].ID.XOR(target))
	})
	if n > 0 && len(reachable) > n {
		reachable = reachable[:n]
	}
	return reachable
}

func bucketIndex(self, id PeerID) int {
	cpl := CommonPrefixLen(self, id)
	if cpl >= IDBytes*8 {
		cpl = IDBytes*8 - 1
	}
	return cpl
}
