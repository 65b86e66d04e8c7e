package interfaces

import "context"

// TransportEvents are the lifecycle and data callbacks a transport raises.
// Handlers are invoked from the transport's own goroutines; nil handlers
// are skipped.
type TransportEvents struct {
	// OnConnect fires when the initial connection is established.
	OnConnect func()
	// OnDisconnect fires when an established connection drops.
	// serverInitiated is true when the peer closed the connection rather
	// than the local side.
	OnDisconnect func(serverInitiated bool)
	// OnConnectError fires when an initial connection attempt fails.
	OnConnectError func(err error)
	// OnReconnect fires when a dropped connection is re-established.
	OnReconnect func()
	// OnReconnectError fires for each failed reconnection attempt.
	OnReconnectError func(err error)
	// OnFrame delivers one raw inbound frame. The slice is owned by the
	// receiver after the call returns.
	OnFrame func(data []byte)
}

// Transport is a persistent bidirectional connection to the chat gateway.
// A transport handle is constructor-injected into the client and owned by
// it for the client's lifetime; there is no process-wide shared instance.
type Transport interface {
	// Bind registers the event callbacks. Must be called before Connect.
	Bind(ev TransportEvents)

	// Connect performs the initial connection attempt. A failed attempt is
	// reported through OnConnectError and retried in the background up to
	// the transport's bounded retry budget; Connect returns an error only
	// when the transport itself is unusable (bad address, already closed).
	Connect(ctx context.Context) error

	// Send transmits one encoded frame. Returns ErrTransportClosed when no
	// connection is established.
	Send(data []byte) error

	// Connected reports whether a connection is currently established.
	Connected() bool

	// Close tears the transport down and releases all goroutines. Safe to
	// call more than once; only the first call has effect.
	Close() error
}
