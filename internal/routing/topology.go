package routing

import (
	"sort"
)

// Topology names accepted in configuration.
const (
	TopologyFlat       = "flat"
	TopologyStructured = "structured"
	TopologySupernode  = "supernode"
)

// Topology selects the forwarding targets for a frame. The three variants
// share the broadcast contract; selection is by configuration.
type Topology interface {
	Name() string
	// Targets returns the peers to forward to. from is the sending peer, or
	// the local id when the node originates the frame.
	Targets(n *Node, msg *Broadcast, from PeerID) []*Peer
}

// flatTopology connects every peer to every other peer; broadcasting sends
// one copy per neighbor. Feasible only for small swarms.
type flatTopology struct{}

func (flatTopology) Name() string { return TopologyFlat }

func (flatTopology) Targets(n *Node, msg *Broadcast, from PeerID) []*Peer {
	origin, _ := ParsePeerID(msg.Origin)
	out := make([]*Peer, 0)
	for _, p := range n.table.All() {
		if p.ID == from || p.ID == origin {
			continue
		}
		out = append(out, p)
	}
	return out
}

// structuredTopology spreads over the k-bucket table: a frame received from
// a peer at prefix length L is forwarded to up to alpha peers in every
// bucket deeper than L, splitting responsibility for logarithmic spread.
type structuredTopology struct{}

func (structuredTopology) Name() string { return TopologyStructured }

func (structuredTopology) Targets(n *Node, msg *Broadcast, from PeerID) []*Peer {
	origin, _ := ParsePeerID(msg.Origin)

	low := -1
	if from != n.self {
		low = CommonPrefixLen(n.self, from)
	}

	alpha := n.cfg.Alpha
	if alpha <= 0 {
		alpha = 3
	}

	out := make([]*Peer, 0)
	for idx := low + 1; idx < IDBytes*8; idx++ {
		bucket := n.table.Bucket(idx)
		picked := 0
		for _, p := range bucket {
			if picked == alpha {
				break
			}
			if p.ID == from || p.ID == origin {
				continue
			}
			out = append(out, p)
			picked++
		}
	}
	return out
}

// supernodeTopology floods among the supernode mesh and fans out to leaves:
// supernodes forward to the other supernodes and their own leaves; leaves
// hand frames to their supernodes.
type supernodeTopology struct{}

func (supernodeTopology) Name() string { return TopologySupernode }

func (supernodeTopology) Targets(n *Node, msg *Broadcast, from PeerID) []*Peer {
	origin, _ := ParsePeerID(msg.Origin)
	fromSupernode := false
	if p, ok := n.table.Get(from); ok {
		fromSupernode = p.Role() == RoleSupernode
	}

	out := make([]*Peer, 0)
	if n.Role() == RoleSupernode {
		for _, p := range n.table.All() {
			if p.ID == from || p.ID == origin {
				continue
			}
			switch {
			case p.Role() == RoleSupernode:
				// Mesh flood; the seen set stops the echoes.
				out = append(out, p)
			case n.isOwnLeaf(p):
				out = append(out, p)
			}
		}
		return out
	}

	// Leaves forward only to their supernodes, and never bounce a frame
	// back into the mesh it came from.
	if fromSupernode {
		return nil
	}
	for _, p := range n.Supernodes() {
		if p.ID == from || p.ID == origin {
			continue
		}
		out = append(out, p)
	}
	return out
}

// newTopology resolves a configured topology name.
func newTopology(name string) Topology {
	switch name {
	case TopologyFlat:
		return flatTopology{}
	case TopologySupernode:
		return supernodeTopology{}
	default:
		return structuredTopology{}
	}
}

// RecomputeSupernodes promotes the lowest peer ids among known peers (the
// local peer included) until the target count is met. Every peer computes
// the same promotion set from the same membership view.
func (n *Node) RecomputeSupernodes() {
	target := n.cfg.TargetSupernodeCount
	if target <= 0 {
		target = 8
	}

	ids := []PeerID{n.self}
	peers := n.table.All()
	for _, p := range peers {
		ids = append(ids, p.ID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Less(ids[j]) })

	super := make(map[PeerID]bool, target)
	for i := 0; i < len(ids) && i < target; i++ {
		super[ids[i]] = true
	}

	n.mu.Lock()
	if super[n.self] {
		n.role = RoleSupernode
	} else {
		n.role = RoleLeaf
	}
	n.mu.Unlock()

	for _, p := range peers {
		if super[p.ID] {
			p.SetRole(RoleSupernode)
		} else {
			p.SetRole(RoleLeaf)
		}
	}
}

// Supernodes returns the leaf's supernode attachments: the closest
// supernodes by XOR distance, capped at three.
func (n *Node) Supernodes() []*Peer {
	super := make([]*Peer, 0)
	for _, p := range n.table.All() {
		if p.Role() == RoleSupernode {
			super = append(super, p)
		}
	}
	sort.Slice(super, func(i, j int) bool {
		return super[i].ID.XOR(n.self).Less(super[j].ID.XOR(n.self))
	})
	if len(super) > 3 {
		super = super[:3]
	}
	return super
}

// isOwnLeaf reports whether a leaf peer is attached to this supernode: the
// leaf's closest supernodes include us.
func (n *Node) isOwnLeaf(leaf *Peer) bool {
	if leaf.Role() == RoleSupernode {
		return false
	}
	type cand struct {
		id   PeerID
		dist PeerID
	}
	cands := []cand{{id: n.self, dist: n.self.XOR(leaf.ID)}}
	for _, p := range n.table.All() {
		if p.Role() == RoleSupernode {
			cands = append(cands, cand{id: p.ID, dist: p.ID.XOR(leaf.ID)})
		}
	}
	sort.Slice(cands, func(i, j int) bool { return cands[i].dist.Less(cands[j].dist) })

	// A leaf attaches to its three closest supernodes.
	for i := 0; i < len(cands) && i < 3; i++ {
		if cands[i].id == n.self {
			return true
		}
	}
	return false
}
