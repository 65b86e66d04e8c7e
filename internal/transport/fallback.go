package transport

import (
	"context"
	"errors"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"chatrelay/pkg/interfaces"
)

// Fallback tries the bidirectional WebSocket transport first and falls
// back to HTTP long-polling when the gateway refuses the upgrade. Any
// other WebSocket failure is reported as-is: a gateway that is down should
// not be probed twice.
type Fallback struct {
	ws   *WebSocket
	poll *Polling
	log  *zap.Logger

	ev interfaces.TransportEvents

	mu     sync.RWMutex
	active interfaces.Transport
}

// NewAuto creates a transport with automatic WebSocket-to-polling fallback.
func NewAuto(cfg Config, log *zap.Logger) *Fallback {
	if log == nil {
		log = zap.NewNop()
	}
	return &Fallback{
		ws:   NewWebSocket(cfg, log),
		poll: NewPolling(cfg, log),
		log:  log,
	}
}

// Bind registers the event callbacks for whichever transport ends up active.
func (t *Fallback) Bind(ev interfaces.TransportEvents) {
	t.ev = ev
	t.ws.Bind(ev)
}

// Connect attempts the WebSocket upgrade, then long-polling if the gateway
// does not speak WebSocket at all.
func (t *Fallback) Connect(ctx context.Context) error {
	err := t.ws.Connect(ctx)
	if err == nil {
		t.mu.Lock()
		t.active = t.ws
		t.mu.Unlock()
		return nil
	}

	if !errors.Is(err, websocket.ErrBadHandshake) {
		return err
	}

	t.log.Info("websocket upgrade unavailable, falling back to long-polling",
		zap.Error(err))

	t.poll.Bind(t.ev)
	if err := t.poll.Connect(ctx); err != nil {
		return err
	}

	t.mu.Lock()
	t.active = t.poll
	t.mu.Unlock()
	return nil
}

// Send forwards to the active transport.
func (t *Fallback) Send(data []byte) error {
	t.mu.RLock()
	active := t.active
	t.mu.RUnlock()

	if active == nil {
		return interfaces.ErrTransportClosed
	}
	return active.Send(data)
}

// Connected reports connectivity of the active transport.
func (t *Fallback) Connected() bool {
	t.mu.RLock()
	active := t.active
	t.mu.RUnlock()

	return active != nil && active.Connected()
}

// Close closes both underlying transports.
func (t *Fallback) Close() error {
	wsErr := t.ws.Close()
	pollErr := t.poll.Close()
	if wsErr != nil {
		return wsErr
	}
	return pollErr
}
