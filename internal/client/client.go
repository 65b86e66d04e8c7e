package client

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"chatrelay/internal/protocol"
	"chatrelay/internal/roster"
	"chatrelay/internal/stream"
	"chatrelay/pkg/interfaces"
	"chatrelay/pkg/types"
)

// endedNotice is the body of the synthetic system message appended to the
// visible log when the active session ends without a closing note.
const endedNotice = "This conversation has ended."

// recordTimeout bounds each archive write issued from the dispatch path.
const recordTimeout = 3 * time.Second

// Options configures a Client.
type Options struct {
	// Credential is the opaque bearer token for the gateway. Start fails
	// fast when it is empty.
	Credential string
	// Recorder, when set, archives observed traffic. Optional.
	Recorder interfaces.Recorder
	// OnNotification receives side-channel alerts for messages belonging
	// to non-active sessions. Invoked from the dispatch goroutine; must
	// not block. Optional.
	OnNotification func(types.Notification)
	// JoinTimeout is the soft window after which a stuck log fetch stops
	// showing as loading. Zero selects the default.
	JoinTimeout time.Duration
	// Logger defaults to a no-op logger.
	Logger *zap.Logger
}

// Client is the realtime messaging client: it owns one transport handle,
// the session roster, and the active-session message stream, and exposes
// their combined state as read-only snapshots. All failure paths resolve
// through the snapshot's error string; no method panics.
type Client struct {
	id         string
	credential string
	transport  interfaces.Transport
	recorder   interfaces.Recorder
	notify     func(types.Notification)
	log        *zap.Logger

	roster *roster.Roster
	stream *stream.Stream

	mu        sync.RWMutex
	connected bool
	lastErr   string
	started   bool

	closeOnce sync.Once
}

// New creates a client around an injected transport handle. The transport
// is owned by the client from this point on: Close tears it down.
func New(transport interfaces.Transport, opts Options) *Client {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return &Client{
		id:         uuid.New().String(),
		credential: opts.Credential,
		transport:  transport,
		recorder:   opts.Recorder,
		notify:     opts.OnNotification,
		log:        log,
		roster:     roster.New(),
		stream:     stream.New(opts.JoinTimeout),
	}
}

// Start connects to the gateway. Without a credential it records an error
// state and makes no connection attempt. A second Start on the same client
// is a no-op, so effect-style double invocation cannot open two
// connections.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = true

	if c.credential == "" {
		c.lastErr = types.ErrMissingCredential.Error()
		c.mu.Unlock()
		return types.ErrMissingCredential
	}

	if c.transport == nil {
		c.lastErr = "chat transport unavailable"
		c.mu.Unlock()
		return interfaces.ErrTransportClosed
	}
	c.mu.Unlock()

	c.transport.Bind(interfaces.TransportEvents{
		OnConnect:        c.onConnect,
		OnDisconnect:     c.onDisconnect,
		OnConnectError:   c.onConnectError,
		OnReconnect:      c.onReconnect,
		OnReconnectError: c.onReconnectError,
		OnFrame:          c.onFrame,
	})

	if err := c.transport.Connect(ctx); err != nil {
		// Error state was already set by the connect-error callback; keep
		// the distinct message when the transport never got that far.
		c.mu.Lock()
		if c.lastErr == "" {
			c.lastErr = err.Error()
		}
		c.mu.Unlock()
		return err
	}
	return nil
}

// Close releases the transport and all timers. Safe to call exactly once
// per mount semantics; repeated calls are no-ops.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.stream.Stop()
		if c.transport != nil {
			err = c.transport.Close()
		}
	})
	return err
}

// ---- connection lifecycle ----

func (c *Client) onConnect() {
	c.mu.Lock()
	c.connected = true
	c.lastErr = ""
	c.mu.Unlock()

	c.log.Info("connected to chat gateway", zap.String("client", c.id))
	c.FetchSessions()
}

func (c *Client) onDisconnect(serverInitiated bool) {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()

	c.log.Warn("disconnected from chat gateway",
		zap.String("client", c.id),
		zap.Bool("server_initiated", serverInitiated))
}

func (c *Client) onConnectError(err error) {
	c.setState(false, "connection error: "+err.Error())
}

func (c *Client) onReconnect() {
	c.mu.Lock()
	c.connected = true
	c.lastErr = ""
	c.mu.Unlock()

	c.log.Info("reconnected to chat gateway", zap.String("client", c.id))

	// The roster may have drifted while offline; pull a fresh snapshot.
	// The active session is intentionally not re-joined: the marker
	// persists locally and the operator re-syncs it explicitly.
	c.FetchSessions()
}

func (c *Client) onReconnectError(err error) {
	c.setState(false, "reconnect error: "+err.Error())
}

func (c *Client) setState(connected bool, errMsg string) {
	c.mu.Lock()
	c.connected = connected
	c.lastErr = errMsg
	c.mu.Unlock()
}

func (c *Client) setErr(errMsg string) {
	c.mu.Lock()
	c.lastErr = errMsg
	c.mu.Unlock()
}

// ---- operations ----

// FetchSessions requests the full session roster. Calling while
// disconnected is a silent no-op so transient faults during reconnect
// windows do not surface as operator errors.
func (c *Client) FetchSessions() {
	if !c.Connected() {
		c.log.Debug("fetch sessions skipped while disconnected", zap.String("client", c.id))
		return
	}

	frame, err := protocol.EncodeGetAllSessions()
	if err != nil {
		c.setErr(err.Error())
		return
	}

	c.roster.BeginFetch()
	if err := c.transport.Send(frame); err != nil {
		c.roster.AbortFetch()
		c.setErr("failed to request sessions: " + err.Error())
	}
}

// JoinSession switches the active session and requests its full log. The
// buffer is cleared and the active marker moved before the request is
// sent, so events racing with the fetch classify against the new session.
// Re-joining the current session is idempotent; joining while disconnected
// is a silent no-op.
func (c *Client) JoinSession(sessionID int) {
	if !types.IsValidSessionID(sessionID) {
		c.setErr(types.ErrInvalidSessionID.Error())
		return
	}

	if !c.Connected() {
		c.log.Debug("join skipped while disconnected",
			zap.String("client", c.id), zap.Int("session", sessionID))
		return
	}

	if !c.stream.Begin(sessionID) {
		return
	}

	frame, err := protocol.EncodeGetMessages(sessionID)
	if err != nil {
		c.setErr(err.Error())
		return
	}

	if err := c.transport.Send(frame); err != nil {
		// The soft timeout clears the loading state the request can no
		// longer satisfy.
		c.setErr("failed to request messages: " + err.Error())
	}
}

// SendMessage dispatches one reply for a session. All precondition
// failures are silent toward the network: they set the error state and
// emit nothing. The sent message is not appended locally; it returns via
// the live-append path so message ordering has a single source of truth.
func (c *Client) SendMessage(sessionID int, text string) {
	body := types.NormalizeBody(text)
	if body == "" {
		c.setErr(types.ErrEmptyMessage.Error())
		return
	}

	if !c.Connected() {
		c.setErr(types.ErrNotConnected.Error())
		return
	}

	if session, ok := c.roster.Lookup(sessionID); ok && session.Closed() {
		c.setErr(types.ErrSessionClosed.Error())
		return
	}

	frame, err := protocol.EncodeReply(sessionID, body)
	if err != nil {
		c.setErr(err.Error())
		return
	}

	if err := c.transport.Send(frame); err != nil {
		c.setErr("failed to send message: " + err.Error())
	}
}

// ---- state access ----

// Snapshot is the read-only view the UI layer renders from.
type Snapshot struct {
	Connected       bool
	Err             string
	Sessions        []types.Session
	Messages        []types.Message
	ActiveSessionID int
	LoadingSessions bool
	LoadingMessages bool
}

// Snapshot returns a consistent copy of the client's observable state.
func (c *Client) Snapshot() Snapshot {
	c.mu.RLock()
	connected := c.connected
	lastErr := c.lastErr
	c.mu.RUnlock()

	return Snapshot{
		Connected:       connected,
		Err:             lastErr,
		Sessions:        c.roster.Sessions(),
		Messages:        c.stream.Messages(),
		ActiveSessionID: c.stream.ActiveID(),
		LoadingSessions: c.roster.Loading(),
		LoadingMessages: c.stream.Loading(),
	}
}

// Connected reports current gateway connectivity.
func (c *Client) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Err returns the last error message, empty when healthy.
func (c *Client) Err() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}
