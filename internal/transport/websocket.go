package transport

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"chatrelay/pkg/interfaces"
)

// WebSocket is the primary transport: one persistent gorilla connection
// with a single writer goroutine, heartbeat monitoring, and bounded
// automatic reconnection after an established connection drops.
type WebSocket struct {
	cfg Config
	log *zap.Logger
	id  string

	ev      interfaces.TransportEvents
	evBound bool

	mu        sync.RWMutex
	conn      *websocket.Conn
	connected bool
	closed    bool

	writeCh   chan []byte
	closeOnce sync.Once
	done      chan struct{}
}

// NewWebSocket creates an unconnected WebSocket transport.
func NewWebSocket(cfg Config, log *zap.Logger) *WebSocket {
	cfg.norm()
	if log == nil {
		log = zap.NewNop()
	}
	return &WebSocket{
		cfg:     cfg,
		log:     log,
		id:      uuid.New().String(),
		writeCh: make(chan []byte, 64),
		done:    make(chan struct{}),
	}
}

// Bind registers the event callbacks. Must precede Connect.
func (t *WebSocket) Bind(ev interfaces.TransportEvents) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ev = ev
	t.evBound = true
}

// Connect performs the initial dial. A dial failure is surfaced through
// OnConnectError and returned; it is not retried. Only a connection that
// was established and later dropped enters the reconnect path.
func (t *WebSocket) Connect(ctx context.Context) error {
	t.mu.Lock()
	if !t.evBound {
		t.mu.Unlock()
		return interfaces.ErrEventsNotBound
	}
	if t.closed {
		t.mu.Unlock()
		return interfaces.ErrTransportClosed
	}
	if t.connected {
		t.mu.Unlock()
		return interfaces.ErrAlreadyConnected
	}
	t.mu.Unlock()

	endpoint, err := t.cfg.wsEndpoint()
	if err != nil {
		return err
	}

	conn, err := t.dial(ctx, endpoint)
	if err != nil {
		if t.ev.OnConnectError != nil {
			t.ev.OnConnectError(err)
		}
		return err
	}

	t.establish(conn)
	if t.ev.OnConnect != nil {
		t.ev.OnConnect()
	}
	return nil
}

func (t *WebSocket) dial(ctx context.Context, endpoint string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: t.cfg.HandshakeTimeout,
	}
	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	return conn, err
}

// establish installs a live connection and starts its read, write and
// heartbeat goroutines. The goroutines share a per-connection context so a
// reconnect cleanly replaces the previous set.
func (t *WebSocket) establish(conn *websocket.Conn) {
	connCtx, cancel := context.WithCancel(context.Background())

	t.mu.Lock()
	t.conn = conn
	t.connected = true
	t.mu.Unlock()

	go t.writeLoop(connCtx, conn)
	go t.pingLoop(connCtx, conn)
	go t.readLoop(conn, cancel)
}

// readLoop pumps inbound frames and owns connection teardown: when the
// read side fails, the connection is dropped and reconnection starts
// unless the transport was closed locally.
func (t *WebSocket) readLoop(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()

	_ = conn.SetReadDeadline(time.Now().Add(t.cfg.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(t.cfg.ReadTimeout))
	})

	var readErr error
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			readErr = err
			break
		}
		if messageType == websocket.TextMessage && t.ev.OnFrame != nil {
			t.ev.OnFrame(data)
		}
	}

	t.mu.Lock()
	wasClosed := t.closed
	t.connected = false
	t.conn = nil
	t.mu.Unlock()

	_ = conn.Close()

	if wasClosed {
		return
	}

	// A close frame from the peer means the server ended the connection;
	// anything else is a local or network fault.
	serverInitiated := websocket.IsCloseError(readErr,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseServiceRestart)

	t.log.Warn("connection dropped",
		zap.String("transport", t.id),
		zap.Bool("server_initiated", serverInitiated),
		zap.Error(readErr))

	if t.ev.OnDisconnect != nil {
		t.ev.OnDisconnect(serverInitiated)
	}

	// Reconnect proactively even when the server initiated the disconnect,
	// rather than waiting for the consumer to act.
	go t.reconnectLoop()
}

// reconnectLoop re-dials with a fixed inter-attempt delay up to the
// configured budget. Exhausting the budget leaves the transport
// disconnected; the consumer sees that through the connectivity state.
func (t *WebSocket) reconnectLoop() {
	endpoint, err := t.cfg.wsEndpoint()
	if err != nil {
		return
	}

	for attempt := 1; attempt <= t.cfg.ReconnectAttempts; attempt++ {
		select {
		case <-t.done:
			return
		case <-time.After(t.cfg.ReconnectDelay):
		}

		t.mu.RLock()
		closed := t.closed
		t.mu.RUnlock()
		if closed {
			return
		}

		conn, err := t.dial(context.Background(), endpoint)
		if err != nil {
			t.log.Warn("reconnect attempt failed",
				zap.String("transport", t.id),
				zap.Int("attempt", attempt),
				zap.Error(err))
			if t.ev.OnReconnectError != nil {
				t.ev.OnReconnectError(err)
			}
			continue
		}

		t.establish(conn)
		t.log.Info("reconnected",
			zap.String("transport", t.id),
			zap.Int("attempt", attempt))
		if t.ev.OnReconnect != nil {
			t.ev.OnReconnect()
		}
		return
	}

	t.log.Error("reconnect budget exhausted",
		zap.String("transport", t.id),
		zap.Int("attempts", t.cfg.ReconnectAttempts))
}

// writeLoop serializes all data writes onto the connection.
func (t *WebSocket) writeLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		select {
		case data := <-t.writeCh:
			if err := conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteTimeout)); err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				t.log.Warn("write failed", zap.String("transport", t.id), zap.Error(err))
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// pingLoop keeps the connection's read deadline honest on the server side.
func (t *WebSocket) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(t.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			deadline := time.Now().Add(t.cfg.WriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, []byte{}, deadline); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// Send enqueues one frame for the writer goroutine.
func (t *WebSocket) Send(data []byte) error {
	t.mu.RLock()
	connected := t.connected && !t.closed
	t.mu.RUnlock()

	if !connected {
		return interfaces.ErrTransportClosed
	}

	select {
	case t.writeCh <- data:
		return nil
	case <-time.After(t.cfg.WriteTimeout):
		return interfaces.ErrWriteTimeout
	case <-t.done:
		return interfaces.ErrTransportClosed
	}
}

// Connected reports current connectivity.
func (t *WebSocket) Connected() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.connected && !t.closed
}

// Close tears the transport down exactly once. No events fire after Close.
func (t *WebSocket) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.mu.Lock()
		t.closed = true
		conn := t.conn
		t.conn = nil
		t.connected = false
		t.mu.Unlock()

		close(t.done)

		if conn != nil {
			deadline := time.Now().Add(time.Second)
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
			err = conn.Close()
		}
	})
	return err
}
