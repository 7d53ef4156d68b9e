package routing

import (
	"context"
	"sync"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/ruvnet/tokenfield/internal/errors"
)

const natsSubjectPrefix = "tokenfield.gossip."

// NATSTransport moves frames through a NATS broker: each peer subscribes to
// its own subject and publishes to the target's. Useful for broker-based
// deployments where peers cannot dial each other directly.
type NATSTransport struct {
	self   PeerID
	conn   *nats.Conn
	sub    *nats.Subscription
	logger *zap.Logger

	mu      sync.RWMutex
	handler Handler
}

// NewNATSTransport connects to the broker and subscribes to the local
// peer's subject.
func NewNATSTransport(self PeerID, url string, logger *zap.Logger) (*NATSTransport, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	conn, err := nats.Connect(url,
		nats.Name("tokenfield-"+self.String()[:8]),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, errors.Wrap(err, errors.Timeout, "failed to connect to NATS")
	}

	t := &NATSTransport{self: self, conn: conn, logger: logger}

	sub, err := conn.Subscribe(natsSubjectPrefix+self.String(), func(m *nats.Msg) {
		// Sender id travels in the reply field.
		from, err := ParsePeerID(m.Reply)
		if err != nil {
			t.logger.Warn("dropping frame with bad sender id", zap.String("reply", m.Reply))
			return
		}
		t.mu.RLock()
		handler := t.handler
		t.mu.RUnlock()
		if handler != nil {
			handler(from, m.Data)
		}
	})
	if err != nil {
		conn.Close()
		return nil, errors.Wrap(err, errors.Timeout, "failed to subscribe")
	}
	t.sub = sub
	return t, nil
}

// Send publishes the frame to the peer's subject.
func (t *NATSTransport) Send(ctx context.Context, to PeerID, frame []byte) error {
	select {
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), errors.Timeout, "send deadline expired")
	default:
	}
	msg := &nats.Msg{
		Subject: natsSubjectPrefix + to.String(),
		Reply:   t.self.String(),
		Data:    frame,
	}
	if err := t.conn.PublishMsg(msg); err != nil {
		return errors.Wrap(err, errors.Timeout, "NATS publish failed")
	}
	return nil
}

// SetHandler installs the inbound handler.
func (t *NATSTransport) SetHandler(h Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handler = h
}

// Close drains the subscription and closes the connection.
func (t *NATSTransport) Close() error {
	if t.sub != nil {
		_ = t.sub.Unsubscribe()
	}
	t.conn.Close()
	return nil
}
