// Package chronicle implements the conflict-free replicated document that
// holds all simulation state. Scalar fields resolve concurrent assignments
// by last-writer-wins keyed by (lamport clock, actor id); maps resolve per
// key; lists are a sequence CRDT preserving concurrent insertion order;
// resource counters merge additively per actor.
package chronicle

import (
	"strconv"
	"strings"
	"sync"

	"github.com/ruvnet/tokenfield/internal/errors"
)

// Doc is a chronicle document. All access is serialized through its mutex;
// handler logic never observes concurrent mutation.
type Doc struct {
	mu      sync.Mutex
	actor   string
	clock   uint64
	counter uint64
	vv      map[string]uint64
	root    *node
}

// New creates an empty document owned by the given actor.
func New(actor string) *Doc {
	return &Doc{
		actor: actor,
		vv:    make(map[string]uint64),
		root:  newMap(stamp{}),
	}
}

// Load populates a fresh document from a binary blob. The loading peer keeps
// its own actor id.
func Load(actor string, blob []byte) (*Doc, error) {
	w, root, err := decodeDoc(blob)
	if err != nil {
		return nil, err
	}
	d := New(actor)
	d.clock = w.Clock
	d.counter = w.Counter
	for a, c := range w.VV {
		d.vv[a] = c
	}
	d.root = root
	return d, nil
}

// Actor returns the document's actor id.
func (d *Doc) Actor() string {
	return d.actor
}

// Clock returns the current lamport clock. Seeds for replayable shuffles are
// derived from it when an action carries none.
func (d *Doc) Clock() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.clock
}

// Save emits a binary representation sufficient to reconstruct state exactly,
// including the change metadata used for incremental sync. Saving equal
// states yields byte-equal blobs.
func (d *Doc) Save() ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return encodeDoc(d.clock, d.counter, d.vv, d.root)
}

// Merge folds another document into this one. Merge is commutative,
// associative and idempotent.
func (d *Doc) Merge(other *Doc) error {
	root, clock, counter, vv := other.snapshot()
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mergeLocked(root, clock, counter, vv)
	return nil
}

// MergeBlob merges a saved blob or sync delta into this document.
func (d *Doc) MergeBlob(blob []byte) error {
	w, root, err := decodeDoc(blob)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mergeLocked(root, w.Clock, w.Counter, w.VV)
	return nil
}

func (d *Doc) mergeLocked(root *node, clock, counter uint64, vv map[string]uint64) {
	d.root = d.root.merge(root)
	if clock > d.clock {
		d.clock = clock
	}
	if counter > d.counter {
		d.counter = counter
	}
	for a, c := range vv {
		if d.vv[a] < c {
			d.vv[a] = c
		}
	}
}

// snapshot returns a deep copy of the document state.
func (d *Doc) snapshot() (*node, uint64, uint64, map[string]uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	vv := make(map[string]uint64, len(d.vv))
	for a, c := range d.vv {
		vv[a] = c
	}
	return d.root.clone(), d.clock, d.counter, vv
}

// Fork returns an independent copy of the document for a new actor.
// Snapshots handed to read-only inspection use this.
func (d *Doc) Fork(actor string) *Doc {
	root, clock, counter, vv := d.snapshot()
	f := New(actor)
	f.clock = clock
	f.counter = counter
	f.vv = vv
	f.root = root
	return f
}

// Tx is a mutable view of the document inside a transaction.
type Tx struct {
	doc   *Doc
	stamp stamp
}

// Transaction executes fn with a mutable view. The changes commit as one
// observable batch (a single clock tick); if fn returns an error the
// document is restored to its pre-transaction state.
func (d *Doc) Transaction(fn func(*Tx) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	saved := d.root.clone()
	savedClock := d.clock
	savedCounter := d.counter

	d.clock++
	tx := &Tx{doc: d, stamp: stamp{Clock: d.clock, Actor: d.actor}}

	if err := fn(tx); err != nil {
		d.root = saved
		d.clock = savedClock
		d.counter = savedCounter
		return err
	}

	d.vv[d.actor] = d.clock
	return nil
}

// Get reads a value at a dotted path on the committed document.
func (d *Doc) Get(path string) (interface{}, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := navigate(d.root, splitPath(path))
	if n == nil || n.deleted {
		return nil, false
	}
	return n.materialize(), true
}

// Set writes a value at a dotted path in its own transaction.
func (d *Doc) Set(path string, value interface{}) error {
	return d.Transaction(func(tx *Tx) error {
		tx.Set(path, value)
		return nil
	})
}

func (d *Doc) nextElemID() elemID {
	d.counter++
	return elemID{Ctr: d.counter, Actor: d.actor}
}

// --- Tx operations ---

// Get reads a value at a dotted path.
func (tx *Tx) Get(path string) (interface{}, bool) {
	n := navigate(tx.doc.root, splitPath(path))
	if n == nil || n.deleted {
		return nil, false
	}
	return n.materialize(), true
}

// Has reports whether a live value exists at the path.
func (tx *Tx) Has(path string) bool {
	n := navigate(tx.doc.root, splitPath(path))
	return n != nil && !n.deleted
}

// Set assigns a value at a dotted path, creating intermediate maps.
func (tx *Tx) Set(path string, value interface{}) {
	segs := splitPath(path)
	parent := tx.ensureParents(segs)
	if parent == nil {
		return
	}
	key := segs[len(segs)-1]
	parent.children[key] = tx.buildNode(value)
}

// Delete removes the value at a path, leaving a tombstone.
func (tx *Tx) Delete(path string) {
	segs := splitPath(path)
	if len(segs) == 0 {
		return
	}
	parent := navigate(tx.doc.root, segs[:len(segs)-1])
	if parent == nil || parent.kind != mapNode {
		return
	}
	key := segs[len(segs)-1]
	if _, ok := parent.children[key]; !ok {
		return
	}
	tomb := newReg(nil, tx.stamp)
	tomb.deleted = true
	parent.children[key] = tomb
}

// ListLen returns the number of live elements of the list at path.
func (tx *Tx) ListLen(path string) int {
	n := navigate(tx.doc.root, splitPath(path))
	if n == nil || n.kind != listNode {
		return 0
	}
	return len(n.live())
}

// ListGet reads the i-th live element of the list at path.
func (tx *Tx) ListGet(path string, i int) (interface{}, bool) {
	n := navigate(tx.doc.root, splitPath(path))
	if n == nil || n.kind != listNode {
		return nil, false
	}
	live := n.live()
	if i < 0 || i >= len(live) {
		return nil, false
	}
	return n.elems[live[i]].node.materialize(), true
}

// ListValues materializes every live element of the list at path.
func (tx *Tx) ListValues(path string) []interface{} {
	n := navigate(tx.doc.root, splitPath(path))
	if n == nil || n.kind != listNode {
		return nil
	}
	out := make([]interface{}, 0, len(n.elems))
	for _, e := range n.elems {
		if !e.dead {
			out = append(out, e.node.materialize())
		}
	}
	return out
}

// ListAppend appends a value to the list at path, creating it if absent.
func (tx *Tx) ListAppend(path string, value interface{}) {
	n := tx.ensureList(path)
	if n == nil {
		return
	}
	left := zeroElemID
	if len(n.elems) > 0 {
		left = n.elems[len(n.elems)-1].id
	}
	n.elems = append(n.elems, &elem{id: tx.doc.nextElemID(), left: left, node: tx.buildNode(value)})
}

// ListInsert inserts a value before the i-th live element.
func (tx *Tx) ListInsert(path string, i int, value interface{}) {
	n := tx.ensureList(path)
	if n == nil {
		return
	}
	live := n.live()
	if i >= len(live) {
		tx.ListAppend(path, value)
		return
	}
	left := zeroElemID
	pos := 0
	if i > 0 {
		pos = live[i-1] + 1
		left = n.elems[live[i-1]].id
	}
	e := &elem{id: tx.doc.nextElemID(), left: left, node: tx.buildNode(value)}
	n.elems = append(n.elems, nil)
	copy(n.elems[pos+1:], n.elems[pos:])
	n.elems[pos] = e
}

// ListRemove tombstones the i-th live element and returns its value.
func (tx *Tx) ListRemove(path string, i int) (interface{}, bool) {
	n := navigate(tx.doc.root, splitPath(path))
	if n == nil || n.kind != listNode {
		return nil, false
	}
	live := n.live()
	if i < 0 || i >= len(live) {
		return nil, false
	}
	e := n.elems[live[i]]
	e.dead = true
	e.dstamp = tx.stamp
	return e.node.materialize(), true
}

// ListSet replaces the value of the i-th live element.
func (tx *Tx) ListSet(path string, i int, value interface{}) bool {
	n := navigate(tx.doc.root, splitPath(path))
	if n == nil || n.kind != listNode {
		return false
	}
	live := n.live()
	if i < 0 || i >= len(live) {
		return false
	}
	n.elems[live[i]].node = tx.buildNode(value)
	return true
}

// ListClear tombstones every live element.
func (tx *Tx) ListClear(path string) {
	n := navigate(tx.doc.root, splitPath(path))
	if n == nil || n.kind != listNode {
		return
	}
	for _, e := range n.elems {
		if !e.dead {
			e.dead = true
			e.dstamp = tx.stamp
		}
	}
}

// CounterAdd adds a (possibly negative) delta to the counter at path,
// creating it if absent. Concurrent additions merge additively.
func (tx *Tx) CounterAdd(path string, delta float64) {
	segs := splitPath(path)
	parent := tx.ensureParents(segs)
	if parent == nil {
		return
	}
	key := segs[len(segs)-1]
	n, ok := parent.children[key]
	if !ok || n.kind != counterNode || n.deleted {
		n = newCounter(tx.stamp)
		parent.children[key] = n
	}
	n.stamp = tx.stamp
	actor := tx.stamp.Actor
	if delta >= 0 {
		e := n.pos[actor]
		n.pos[actor] = counterEntry{Val: e.Val + delta, Clock: tx.stamp.Clock}
	} else {
		e := n.neg[actor]
		n.neg[actor] = counterEntry{Val: e.Val - delta, Clock: tx.stamp.Clock}
	}
}

// CounterValue reads the counter at path; absent counters read as zero.
func (tx *Tx) CounterValue(path string) float64 {
	n := navigate(tx.doc.root, splitPath(path))
	if n == nil || n.kind != counterNode || n.deleted {
		return 0
	}
	return n.counterValue()
}

// Keys returns the live child keys of the map at path in canonical order.
func (tx *Tx) Keys(path string) []string {
	var n *node
	if path == "" {
		n = tx.doc.root
	} else {
		n = navigate(tx.doc.root, splitPath(path))
	}
	if n == nil || n.kind != mapNode {
		return nil
	}
	keys := make([]string, 0, len(n.children))
	for _, k := range sortedKeys(n.children) {
		if !n.children[k].deleted {
			keys = append(keys, k)
		}
	}
	return keys
}

// Clock returns the transaction's lamport clock.
func (tx *Tx) Clock() uint64 {
	return tx.stamp.Clock
}

// Actor returns the dispatching actor id.
func (tx *Tx) Actor() string {
	return tx.stamp.Actor
}

// savepoint captures the mutable document state inside a transaction.
type savepoint struct {
	root    *node
	counter uint64
}

// Savepoint captures the current transaction state so a failed sub-action
// can be undone without aborting the whole transaction.
func (tx *Tx) Savepoint() interface{} {
	return &savepoint{root: tx.doc.root.clone(), counter: tx.doc.counter}
}

// Restore rolls the transaction back to a savepoint.
func (tx *Tx) Restore(sp interface{}) {
	s, ok := sp.(*savepoint)
	if !ok {
		return
	}
	tx.doc.root = s.root
	tx.doc.counter = s.counter
}

// --- helpers ---

func (tx *Tx) ensureParents(segs []string) *node {
	if len(segs) == 0 {
		return nil
	}
	n := tx.doc.root
	for _, seg := range segs[:len(segs)-1] {
		if n.kind != mapNode {
			return nil
		}
		child, ok := n.children[seg]
		if !ok || child.deleted || (child.kind != mapNode && child.kind != listNode) {
			child = newMap(tx.stamp)
			n.children[seg] = child
		}
		n = child
	}
	if n.kind != mapNode {
		return nil
	}
	return n
}

func (tx *Tx) ensureList(path string) *node {
	segs := splitPath(path)
	parent := tx.ensureParents(segs)
	if parent == nil {
		return nil
	}
	key := segs[len(segs)-1]
	n, ok := parent.children[key]
	if !ok || n.kind != listNode || n.deleted {
		n = newList(tx.stamp)
		parent.children[key] = n
	}
	return n
}

func (tx *Tx) buildNode(value interface{}) *node {
	switch v := normalize(value).(type) {
	case map[string]interface{}:
		n := newMap(tx.stamp)
		for k, cv := range v {
			n.children[k] = tx.buildNode(cv)
		}
		return n
	case []interface{}:
		n := newList(tx.stamp)
		for _, cv := range v {
			left := zeroElemID
			if len(n.elems) > 0 {
				left = n.elems[len(n.elems)-1].id
			}
			n.elems = append(n.elems, &elem{id: tx.doc.nextElemID(), left: left, node: tx.buildNode(cv)})
		}
		return n
	default:
		return newReg(v, tx.stamp)
	}
}

// normalize coerces values to the JSON type set so saved blobs stay
// canonical regardless of how callers construct them.
func normalize(v interface{}) interface{} {
	switch t := v.(type) {
	case nil, bool, string, float64, map[string]interface{}, []interface{}:
		return t
	case int:
		return float64(t)
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	case uint64:
		return float64(t)
	case float32:
		return float64(t)
	case []string:
		out := make([]interface{}, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	default:
		return t
	}
}

func splitPath(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, ".")
}

// navigate walks the tree; numeric segments index live list elements.
func navigate(n *node, segs []string) *node {
	for _, seg := range segs {
		if n == nil || n.deleted {
			return nil
		}
		switch n.kind {
		case mapNode:
			n = n.children[seg]
		case listNode:
			i, err := strconv.Atoi(seg)
			if err != nil {
				return nil
			}
			live := n.live()
			if i < 0 || i >= len(live) {
				return nil
			}
			n = n.elems[live[i]].node
		default:
			return nil
		}
	}
	return n
}

// Validate checks basic structural invariants and returns an
// InternalInvariantViolation on failure.
func (d *Doc) Validate() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.root == nil || d.root.kind != mapNode {
		return errors.New(errors.InternalInvariantViolation, "document root is not a map")
	}
	return nil
}
