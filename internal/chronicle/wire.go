package chronicle

import (
	"bytes"
	"encoding/json"

	"github.com/ruvnet/tokenfield/internal/errors"
)

// Blob framing. The body is canonical JSON: struct fields in declared order,
// map keys sorted by the encoder, so equal states produce equal bytes.
var blobMagic = []byte("TKFD")

const blobVersion = byte(1)

type wireCounterEntry struct {
	V float64 `json:"v"`
	C uint64  `json:"c"`
}

type wireElem struct {
	C  uint64    `json:"c"`
	A  string    `json:"a"`
	LC uint64    `json:"lc"`
	LA string    `json:"la"`
	D  bool      `json:"d,omitempty"`
	DC uint64    `json:"dc,omitempty"`
	DA string    `json:"da,omitempty"`
	N  *wireNode `json:"n,omitempty"`
}

type wireNode struct {
	T  string                      `json:"t"`
	C  uint64                      `json:"c"`
	A  string                      `json:"a"`
	X  bool                        `json:"x,omitempty"` // deleted
	V  interface{}                 `json:"v,omitempty"`
	K  map[string]*wireNode        `json:"k,omitempty"`
	E  []*wireElem                 `json:"e,omitempty"`
	P  map[string]wireCounterEntry `json:"p,omitempty"`
	Ng map[string]wireCounterEntry `json:"n,omitempty"`
}

type wireDoc struct {
	Clock   uint64            `json:"clock"`
	Counter uint64            `json:"counter"`
	VV      map[string]uint64 `json:"vv"`
	Root    *wireNode         `json:"root"`
}

func encodeNode(n *node) *wireNode {
	if n == nil {
		return nil
	}
	w := &wireNode{C: n.stamp.Clock, A: n.stamp.Actor, X: n.deleted}
	switch n.kind {
	case regNode:
		w.T = "r"
		w.V = n.value
	case mapNode:
		w.T = "m"
		if len(n.children) > 0 {
			w.K = make(map[string]*wireNode, len(n.children))
			for k, ch := range n.children {
				w.K[k] = encodeNode(ch)
			}
		}
	case listNode:
		w.T = "l"
		for _, e := range n.elems {
			we := &wireElem{
				C: e.id.Ctr, A: e.id.Actor,
				LC: e.left.Ctr, LA: e.left.Actor,
				D: e.dead, DC: e.dstamp.Clock, DA: e.dstamp.Actor,
				N: encodeNode(e.node),
			}
			w.E = append(w.E, we)
		}
	case counterNode:
		w.T = "c"
		if len(n.pos) > 0 {
			w.P = make(map[string]wireCounterEntry, len(n.pos))
			for a, e := range n.pos {
				w.P[a] = wireCounterEntry{V: e.Val, C: e.Clock}
			}
		}
		if len(n.neg) > 0 {
			w.Ng = make(map[string]wireCounterEntry, len(n.neg))
			for a, e := range n.neg {
				w.Ng[a] = wireCounterEntry{V: e.Val, C: e.Clock}
			}
		}
	}
	return w
}

func decodeNode(w *wireNode) (*node, error) {
	if w == nil {
		return nil, nil
	}
	s := stamp{Clock: w.C, Actor: w.A}
	switch w.T {
	case "r":
		n := newReg(w.V, s)
		n.deleted = w.X
		return n, nil
	case "m":
		n := newMap(s)
		n.deleted = w.X
		for k, cw := range w.K {
			ch, err := decodeNode(cw)
			if err != nil {
				return nil, err
			}
			n.children[k] = ch
		}
		return n, nil
	case "l":
		n := newList(s)
		for _, we := range w.E {
			child, err := decodeNode(we.N)
			if err != nil {
				return nil, err
			}
			n.elems = append(n.elems, &elem{
				id:     elemID{Ctr: we.C, Actor: we.A},
				left:   elemID{Ctr: we.LC, Actor: we.LA},
				node:   child,
				dead:   we.D,
				dstamp: stamp{Clock: we.DC, Actor: we.DA},
			})
		}
		return n, nil
	case "c":
		n := newCounter(s)
		for a, e := range w.P {
			n.pos[a] = counterEntry{Val: e.V, Clock: e.C}
		}
		for a, e := range w.Ng {
			n.neg[a] = counterEntry{Val: e.V, Clock: e.C}
		}
		return n, nil
	}
	return nil, errors.Newf(errors.CorruptDocument, "unknown node type %q", w.T)
}

func encodeDoc(clock, counter uint64, vv map[string]uint64, root *node) ([]byte, error) {
	body, err := json.Marshal(&wireDoc{Clock: clock, Counter: counter, VV: vv, Root: encodeNode(root)})
	if err != nil {
		return nil, errors.Wrap(err, errors.CorruptDocument, "failed to encode document")
	}
	out := make([]byte, 0, len(blobMagic)+1+len(body))
	out = append(out, blobMagic...)
	out = append(out, blobVersion)
	out = append(out, body...)
	return out, nil
}

func decodeDoc(blob []byte) (*wireDoc, *node, error) {
	if len(blob) < len(blobMagic)+1 || !bytes.Equal(blob[:len(blobMagic)], blobMagic) {
		return nil, nil, errors.New(errors.CorruptDocument, "bad magic")
	}
	if blob[len(blobMagic)] != blobVersion {
		return nil, nil, errors.Newf(errors.CorruptDocument, "unsupported format version %d", blob[len(blobMagic)])
	}
	var w wireDoc
	if err := json.Unmarshal(blob[len(blobMagic)+1:], &w); err != nil {
		return nil, nil, errors.Wrap(err, errors.CorruptDocument, "failed to decode document")
	}
	root, err := decodeNode(w.Root)
	if err != nil {
		return nil, nil, err
	}
	if root == nil {
		return nil, nil, errors.New(errors.CorruptDocument, "missing root")
	}
	if root.kind != mapNode {
		return nil, nil, errors.New(errors.CorruptDocument, "root must be a map")
	}
	return &w, root, nil
}
