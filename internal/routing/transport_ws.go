package routing

import (
	"context"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ruvnet/tokenfield/internal/errors"
)

// WebSocketTransport moves frames over persistent WebSocket connections.
// Each peer runs an HTTP endpoint at /gossip; outbound connections are
// dialed lazily and cached.
type WebSocketTransport struct {
	self   PeerID
	addr   string
	logger *zap.Logger

	mu      sync.RWMutex
	handler Handler
	conns   map[PeerID]*websocket.Conn
	addrs   map[PeerID]string

	upgrader websocket.Upgrader
	server   *http.Server
	wg       sync.WaitGroup
}

// NewWebSocketTransport creates a transport listening on addr.
func NewWebSocketTransport(self PeerID, addr string, logger *zap.Logger) *WebSocketTransport {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebSocketTransport{
		self:   self,
		addr:   addr,
		logger: logger,
		conns:  make(map[PeerID]*websocket.Conn),
		addrs:  make(map[PeerID]string),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Register maps a peer id to its dialable address.
func (t *WebSocketTransport) Register(id PeerID, addr string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.addrs[id] = addr
}

// Start begins accepting inbound connections.
func (t *WebSocketTransport) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/gossip", t.handleUpgrade)

	t.server = &http.Server{Addr: t.addr, Handler: mux}

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		if err := t.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			t.logger.Error("websocket listener failed", zap.Error(err))
		}
	}()
	return nil
}

func (t *WebSocketTransport) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	fromHex := r.URL.Query().Get("peer")
	from, err := ParsePeerID(fromHex)
	if err != nil {
		http.Error(w, "bad peer id", http.StatusBadRequest)
		return
	}

	conn, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		t.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	t.mu.Lock()
	t.conns[from] = conn
	t.mu.Unlock()

	t.wg.Add(1)
	go t.readLoop(from, conn)
}

func (t *WebSocketTransport) readLoop(from PeerID, conn *websocket.Conn) {
	defer t.wg.Done()
	defer func() {
		t.mu.Lock()
		if t.conns[from] == conn {
			delete(t.conns, from)
		}
		t.mu.Unlock()
		conn.Close()
	}()

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			return
		}
		t.mu.RLock()
		handler := t.handler
		t.mu.RUnlock()
		if handler != nil {
			handler(from, frame)
		}
	}
}

// Send writes a frame to the peer, dialing if no connection is cached.
func (t *WebSocketTransport) Send(ctx context.Context, to PeerID, frame []byte) error {
	conn, err := t.connTo(ctx, to)
	if err != nil {
		return err
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		t.mu.Lock()
		if t.conns[to] == conn {
			delete(t.conns, to)
		}
		t.mu.Unlock()
		conn.Close()
		return errors.Wrap(err, errors.Timeout, "websocket write failed")
	}
	return nil
}

func (t *WebSocketTransport) connTo(ctx context.Context, to PeerID) (*websocket.Conn, error) {
	t.mu.RLock()
	conn, ok := t.conns[to]
	addr := t.addrs[to]
	t.mu.RUnlock()
	if ok {
		return conn, nil
	}
	if addr == "" {
		return nil, errors.Newf(errors.Timeout, "no address for peer %s", to)
	}

	url := "ws://" + addr + "/gossip?peer=" + t.self.String()
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.Timeout, "websocket dial failed")
	}

	t.mu.Lock()
	t.conns[to] = conn
	t.mu.Unlock()

	t.wg.Add(1)
	go t.readLoop(to, conn)
	return conn, nil
}

// SetHandler installs the inbound handler.
func (t *WebSocketTransport) SetHandler(h Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handler = h
}

// Close shuts the listener and every connection.
func (t *WebSocketTransport) Close() error {
	if t.server != nil {
		_ = t.server.Close()
	}
	t.mu.Lock()
	for id, conn := range t.conns {
		conn.Close()
		delete(t.conns, id)
	}
	t.mu.Unlock()
	t.wg.Wait()
	return nil
}
