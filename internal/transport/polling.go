package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"chatrelay/pkg/interfaces"
)

// Long-poll endpoints on the gateway.
const (
	pollConnectPath = "/poll/connect"
	pollEventsPath  = "/poll/events"
	pollEmitPath    = "/poll/emit"
)

// Polling is the request/poll fallback transport, used when the gateway
// does not accept a WebSocket upgrade. Outbound frames are POSTed; inbound
// frames arrive in batches from a long-poll GET loop. The connection is
// identified by a client-generated id so the gateway can keep a per-client
// delivery queue.
type Polling struct {
	cfg    Config
	log    *zap.Logger
	cid    string
	client *http.Client

	ev      interfaces.TransportEvents
	evBound bool

	mu        sync.RWMutex
	connected bool
	closed    bool

	closeOnce sync.Once
	done      chan struct{}
}

// NewPolling creates an unconnected long-poll transport.
func NewPolling(cfg Config, log *zap.Logger) *Polling {
	cfg.norm()
	if log == nil {
		log = zap.NewNop()
	}
	return &Polling{
		cfg: cfg,
		log: log,
		cid: uuid.New().String(),
		client: &http.Client{
			// Poll requests are held open by the gateway; leave room beyond
			// the hold window before the client gives up.
			Timeout: 40 * time.Second,
		},
		done: make(chan struct{}),
	}
}

// Bind registers the event callbacks. Must precede Connect.
func (t *Polling) Bind(ev interfaces.TransportEvents) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ev = ev
	t.evBound = true
}

// Connect registers this client with the gateway and starts the poll loop.
func (t *Polling) Connect(ctx context.Context) error {
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

	if err := t.register(ctx); err != nil {
		if t.ev.OnConnectError != nil {
			t.ev.OnConnectError(err)
		}
		return err
	}

	t.mu.Lock()
	t.connected = true
	t.mu.Unlock()

	go t.pollLoop()

	if t.ev.OnConnect != nil {
		t.ev.OnConnect()
	}
	return nil
}

func (t *Polling) register(ctx context.Context) error {
	endpoint, err := t.cfg.pollEndpoint(pollConnectPath, t.cid)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return err
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("poll connect rejected: %s", resp.Status)
	}
	return nil
}

// pollLoop fetches inbound frame batches until the transport closes or the
// gateway becomes unreachable, then enters the reconnect path.
func (t *Polling) pollLoop() {
	endpoint, err := t.cfg.pollEndpoint(pollEventsPath, t.cid)
	if err != nil {
		return
	}

	for {
		select {
		case <-t.done:
			return
		default:
		}

		frames, err := t.fetchBatch(endpoint)
		if err != nil {
			t.mu.Lock()
			wasClosed := t.closed
			t.connected = false
			t.mu.Unlock()

			if wasClosed {
				return
			}

			t.log.Warn("poll loop dropped", zap.String("cid", t.cid), zap.Error(err))
			if t.ev.OnDisconnect != nil {
				t.ev.OnDisconnect(false)
			}
			t.reconnectLoop()
			return
		}

		for _, frame := range frames {
			if t.ev.OnFrame != nil {
				t.ev.OnFrame(frame)
			}
		}
	}
}

func (t *Polling) fetchBatch(endpoint string) ([]json.RawMessage, error) {
	resp, err := t.client.Get(endpoint)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("poll rejected: %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var frames []json.RawMessage
	if err := json.Unmarshal(body, &frames); err != nil {
		return nil, fmt.Errorf("malformed poll batch: %w", err)
	}
	return frames, nil
}

// reconnectLoop re-registers with a fixed inter-attempt delay up to the
// configured budget.
func (t *Polling) reconnectLoop() {
	for attempt := 1; attempt <= t.cfg.ReconnectAttempts; attempt++ {
		select {
		case <-t.done:
			return
		case <-time.After(t.cfg.ReconnectDelay):
		}

		err := t.register(context.Background())
		if err != nil {
			t.log.Warn("poll reconnect attempt failed",
				zap.String("cid", t.cid),
				zap.Int("attempt", attempt),
				zap.Error(err))
			if t.ev.OnReconnectError != nil {
				t.ev.OnReconnectError(err)
			}
			continue
		}

		t.mu.Lock()
		t.connected = true
		t.mu.Unlock()

		go t.pollLoop()

		if t.ev.OnReconnect != nil {
			t.ev.OnReconnect()
		}
		return
	}

	t.log.Error("poll reconnect budget exhausted", zap.String("cid", t.cid))
}

// Send POSTs one frame to the gateway.
func (t *Polling) Send(data []byte) error {
	t.mu.RLock()
	connected := t.connected && !t.closed
	t.mu.RUnlock()

	if !connected {
		return interfaces.ErrTransportClosed
	}

	endpoint, err := t.cfg.pollEndpoint(pollEmitPath, t.cid)
	if err != nil {
		return err
	}

	resp, err := t.client.Post(endpoint, "application/json", bytes.NewReader(data))
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("emit rejected: %s", resp.Status)
	}
	return nil
}

// Connected reports current connectivity.
func (t *Polling) Connected() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.connected && !t.closed
}

// Close stops polling. No events fire after Close.
func (t *Polling) Close() error {
	t.closeOnce.Do(func() {
		t.mu.Lock()
		t.closed = true
		t.connected = false
		t.mu.Unlock()
		close(t.done)
	})
	return nil
}
