package chronicle

// SyncState is the cursor a peer holds for incremental sync with this
// document: a version vector of the highest clock seen per actor.
type SyncState map[string]uint64

// CloneSyncState copies a cursor.
func CloneSyncState(s SyncState) SyncState {
	out := make(SyncState, len(s))
	for a, c := range s {
		out[a] = c
	}
	return out
}

// SyncMessage returns a delta covering changes the remote peer has not yet
// seen given its cursor, and the updated cursor. A nil cursor means the peer
// has seen nothing. The delta is a pruned document blob; apply it with
// MergeBlob on the remote side.
func (d *Doc) SyncMessage(peer SyncState) ([]byte, SyncState, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if peer == nil {
		peer = SyncState{}
	}

	pruned, _ := d.root.prune(peer)
	if pruned == nil {
		pruned = newMap(stamp{})
	}

	vv := make(map[string]uint64, len(d.vv))
	next := CloneSyncState(peer)
	for a, c := range d.vv {
		vv[a] = c
		if next[a] < c {
			next[a] = c
		}
	}

	blob, err := encodeDoc(d.clock, d.counter, vv, pruned)
	if err != nil {
		return nil, nil, err
	}
	return blob, next, nil
}

// ApplyDelta merges a sync delta produced by a remote SyncMessage.
func (d *Doc) ApplyDelta(delta []byte) error {
	return d.MergeBlob(delta)
}

// SyncStateOf returns this document's own version vector, usable as the
// starting cursor a remote peer should advertise after a full snapshot.
func (d *Doc) SyncStateOf() SyncState {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(SyncState, len(d.vv))
	for a, c := range d.vv {
		out[a] = c
	}
	return out
}

// newerThan reports whether the stamp is unseen under the cursor.
func (s stamp) newerThan(vv SyncState) bool {
	return s.Clock > vv[s.Actor]
}

// prune returns the subtree restricted to writes unseen under vv, or nil if
// the peer already has everything here.
func (n *node) prune(vv SyncState) (*node, bool) {
	if n == nil {
		return nil, false
	}
	switch n.kind {
	case regNode:
		if n.stamp.newerThan(vv) {
			return n.clone(), true
		}
		return nil, false

	case counterNode:
		out := newCounter(n.stamp)
		any := false
		for a, e := range n.pos {
			if e.Clock > vv[a] {
				out.pos[a] = e
				any = true
			}
		}
		for a, e := range n.neg {
			if e.Clock > vv[a] {
				out.neg[a] = e
				any = true
			}
		}
		if !any {
			return nil, false
		}
		return out, true

	case mapNode:
		out := newMap(n.stamp)
		out.deleted = n.deleted
		any := n.stamp.newerThan(vv)
		for k, ch := range n.children {
			if pc, ok := ch.prune(vv); ok {
				out.children[k] = pc
				any = true
			}
		}
		if !any {
			return nil, false
		}
		return out, true

	case listNode:
		out := newList(n.stamp)
		any := false
		for _, e := range n.elems {
			include := false
			var child *node
			if e.node != nil && e.node.stamp.newerThan(vv) {
				child = e.node.clone()
				include = true
			} else if e.node != nil {
				if pc, ok := e.node.prune(vv); ok {
					child = pc
					include = true
				}
			}
			if e.dead && e.dstamp.newerThan(vv) {
				include = true
			}
			if include {
				if child == nil && e.node != nil {
					// Tombstone update without content change still needs
					// the element shell so the remote can locate it.
					child = e.node.clone()
				}
				out.elems = append(out.elems, &elem{id: e.id, left: e.left, node: child, dead: e.dead, dstamp: e.dstamp})
				any = true
			}
		}
		if !any {
			return nil, false
		}
		return out, true
	}
	return nil, false
}
