package routing

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ruvnet/tokenfield/internal/config"
	"github.com/ruvnet/tokenfield/pkg/metrics"
)

// DeliverFunc consumes broadcasts delivered to the local peer.
type DeliverFunc func(*Broadcast)

// NodeOptions configures a gossip node.
type NodeOptions struct {
	Self      PeerID
	Config    config.RoutingConfig
	Transport Transport
	Logger    *zap.Logger
	Metrics   *metrics.Metrics
}

// Node is one gossip peer: routing table, topology, seen set and
// best-effort TTL-limited broadcast.
type Node struct {
	self      PeerID
	cfg       config.RoutingConfig
	table     *Table
	topo      Topology
	seen      *Seen
	transport Transport

	mu       sync.Mutex
	role     Role
	deliver  DeliverFunc
	limiters map[PeerID]*rate.Limiter

	clock uint64

	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewNode creates a gossip node and installs its frame handler on the
// transport.
func NewNode(opts NodeOptions) (*Node, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	seen, err := NewSeen(opts.Config.SeenSetCapacity)
	if err != nil {
		return nil, err
	}

	n := &Node{
		self:      opts.Self,
		cfg:       opts.Config,
		table:     NewTable(opts.Self, opts.Config.K),
		topo:      newTopology(opts.Config.Topology),
		seen:      seen,
		transport: opts.Transport,
		limiters:  make(map[PeerID]*rate.Limiter),
		logger:    opts.Logger,
		metrics:   opts.Metrics,
	}
	opts.Transport.SetHandler(n.handleFrame)
	return n, nil
}

// Self returns the local peer id.
func (n *Node) Self() PeerID { return n.self }

// Table returns the routing table.
func (n *Node) Table() *Table { return n.table }

// Topology returns the active topology name.
func (n *Node) Topology() string { return n.topo.Name() }

// Role returns the local role in the hierarchical topology.
func (n *Node) Role() Role {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.role
}

// OnDeliver installs the local delivery callback.
func (n *Node) OnDeliver(fn DeliverFunc) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.deliver = fn
}

// AddPeer registers a neighbor discovered via bootstrap or peer exchange.
func (n *Node) AddPeer(p *Peer) bool {
	return n.table.Add(p)
}

// Broadcast originates a frame and forwards it best-effort; the caller does
// not await per-peer acknowledgment. Returns the message id.
func (n *Node) Broadcast(payload []byte) (string, error) {
	ttl := n.cfg.BroadcastTTL
	if ttl <= 0 {
		ttl = 10
	}
	msg := &Broadcast{
		ID:      uuid.NewString(),
		Origin:  n.self.String(),
		TTL:     ttl,
		Hops:    0,
		Clock:   atomic.AddUint64(&n.clock, 1),
		Payload: payload,
	}
	n.seen.Mark(msg)
	n.forward(msg, n.self)
	return msg.ID, nil
}

// handleFrame processes an inbound frame: validate, dedupe, deliver
// locally, forward while TTL remains.
func (n *Node) handleFrame(from PeerID, raw []byte) {
	n.metrics.RecordMessageReceived()

	msg, err := DecodeBroadcast(raw)
	if err != nil {
		n.logger.Warn("dropping malformed frame",
			zap.String("from", from.String()),
			zap.Error(err))
		return
	}

	if p, ok := n.table.Get(from); ok {
		p.Touch()
	}

	if !n.seen.Mark(msg) {
		n.metrics.RecordMessageDeduped()
		return
	}

	n.mu.Lock()
	deliver := n.deliver
	n.mu.Unlock()
	if deliver != nil {
		deliver(msg)
	}

	// Zero-TTL frames are delivered locally but not forwarded.
	if msg.TTL <= 0 {
		return
	}

	fwd := *msg
	fwd.TTL--
	fwd.Hops++
	n.forward(&fwd, from)
}

// forward sends a frame to the topology's targets. Sends are rate-limited
// per peer, carry a deadline and count toward failure tracking; targets
// currently marked unreachable are skipped.
func (n *Node) forward(msg *Broadcast, from PeerID) {
	targets := n.topo.Targets(n, msg, from)
	if len(targets) == 0 {
		return
	}

	raw, err := msg.Encode()
	if err != nil {
		n.logger.Error("failed to encode frame", zap.Error(err))
		return
	}

	now := time.Now()
	for _, p := range targets {
		if !p.Reachable(now) {
			continue
		}
		if !n.limiter(p.ID).Allow() {
			continue
		}
		go n.send(p, raw)
	}
}

func (n *Node) send(p *Peer, raw []byte) {
	deadline := n.cfg.SendDeadline
	if deadline <= 0 {
		deadline = 2 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), deadline)
	defer cancel()

	start := time.Now()
	if err := n.transport.Send(ctx, p.ID, raw); err != nil {
		threshold := n.cfg.FailureThreshold
		if threshold <= 0 {
			threshold = 5
		}
		p.RecordFailure(threshold)
		n.metrics.RecordSendFailure()
		n.logger.Debug("send failed",
			zap.String("peer", p.ID.String()),
			zap.Int("failures", p.Failures()),
			zap.Error(err))
		return
	}
	p.RecordSuccess(time.Since(start))
	n.metrics.RecordMessageSent()
}

// limiter returns the per-peer send limiter: a burst-tolerant cap keeping
// one noisy peer from saturating the link.
func (n *Node) limiter(id PeerID) *rate.Limiter {
	n.mu.Lock()
	defer n.mu.Unlock()
	l, ok := n.limiters[id]
	if !ok {
		l = rate.NewLimiter(rate.Limit(500), 1000)
		n.limiters[id] = l
	}
	return l
}

// Close releases the node's transport.
func (n *Node) Close() error {
	return n.transport.Close()
}
