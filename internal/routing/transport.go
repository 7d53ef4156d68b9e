package routing

import (
	"context"
	"sync"

	"github.com/ruvnet/tokenfield/internal/errors"
)

// Handler consumes raw inbound frames.
type Handler func(from PeerID, frame []byte)

// Transport moves frames between peers. Implementations: in-process
// channels, WebSocket and NATS.
type Transport interface {
	// Send delivers a frame to a peer; the context carries the send
	// deadline. Expired deadlines count as failures.
	Send(ctx context.Context, to PeerID, frame []byte) error
	// SetHandler installs the inbound frame handler.
	SetHandler(h Handler)
	// Close releases transport resources.
	Close() error
}

// Network is an in-process fabric connecting channel transports, used by
// tests and local simulations.
type Network struct {
	mu    sync.RWMutex
	nodes map[PeerID]*ChannelTransport
}

// NewNetwork creates an empty fabric.
func NewNetwork() *Network {
	return &Network{nodes: make(map[PeerID]*ChannelTransport)}
}

// Transport attaches a new endpoint for the given id.
func (n *Network) Transport(id PeerID) *ChannelTransport {
	n.mu.Lock()
	defer n.mu.Unlock()
	t := &ChannelTransport{net: n, id: id}
	n.nodes[id] = t
	return t
}

// Partition detaches an endpoint, simulating an unreachable peer.
func (n *Network) Partition(id PeerID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.nodes, id)
}

func (n *Network) lookup(id PeerID) (*ChannelTransport, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	t, ok := n.nodes[id]
	return t, ok
}

// ChannelTransport is the in-process Transport implementation.
type ChannelTransport struct {
	net *Network
	id  PeerID

	mu      sync.RWMutex
	handler Handler
	closed  bool
}

// Send delivers the frame to the target endpoint's handler.
func (t *ChannelTransport) Send(ctx context.Context, to PeerID, frame []byte) error {
	select {
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), errors.Timeout, "send deadline expired")
	default:
	}

	target, ok := t.net.lookup(to)
	if !ok {
		return errors.Newf(errors.Timeout, "peer %s unreachable", to)
	}

	target.mu.RLock()
	handler := target.handler
	closed := target.closed
	target.mu.RUnlock()

	if closed || handler == nil {
		return errors.Newf(errors.Timeout, "peer %s not accepting frames", to)
	}

	buf := make([]byte, len(frame))
	copy(buf, frame)
	go handler(t.id, buf)
	return nil
}

// SetHandler installs the inbound handler.
func (t *ChannelTransport) SetHandler(h Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handler = h
}

// Close detaches the endpoint from the fabric.
func (t *ChannelTransport) Close() error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	t.net.Partition(t.id)
	return nil
}
