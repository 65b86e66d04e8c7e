package gatewaytest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"chatrelay/internal/protocol"
	"chatrelay/pkg/types"
)

// Gateway is an in-process chat gateway speaking the server side of the
// wire protocol, for exercising the client against real transports. It
// serves WebSocket upgrades on /ws and the long-poll fallback endpoints,
// authenticates by token query parameter, and lets tests inject push
// events and fault conditions.
type Gateway struct {
	token     string
	wsEnabled bool
	server    *httptest.Server
	upgrader  websocket.Upgrader

	mu          sync.Mutex
	sessions    []types.Session
	messages    map[int][]types.Message
	nextMsgID   int
	wsClients   map[string]*wsClient
	pollClients map[string]chan []byte
	closed      bool
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
}

// Option adjusts gateway behavior.
type Option func(*Gateway)

// WithoutWebSocket refuses the /ws upgrade so clients exercise the
// long-poll fallback.
func WithoutWebSocket() Option {
	return func(g *Gateway) { g.wsEnabled = false }
}

// New starts a gateway accepting the given token.
func New(token string, opts ...Option) *Gateway {
	g := &Gateway{
		token:       token,
		wsEnabled:   true,
		messages:    make(map[int][]types.Message),
		nextMsgID:   1,
		wsClients:   make(map[string]*wsClient),
		pollClients: make(map[string]chan []byte),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(g)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", g.handleWS)
	mux.HandleFunc("/poll/connect", g.handlePollConnect)
	mux.HandleFunc("/poll/events", g.handlePollEvents)
	mux.HandleFunc("/poll/emit", g.handlePollEmit)

	g.server = httptest.NewServer(mux)
	return g
}

// URL returns the gateway base address.
func (g *Gateway) URL() string {
	return g.server.URL
}

// Close stops the gateway and drops every connection.
func (g *Gateway) Close() {
	g.mu.Lock()
	g.closed = true
	clients := make([]*wsClient, 0, len(g.wsClients))
	for _, c := range g.wsClients {
		clients = append(clients, c)
	}
	g.mu.Unlock()

	for _, c := range clients {
		_ = c.conn.Close()
	}
	g.server.Close()
}

// ---- test controls ----

// SeedSession installs a roster entry without pushing an event.
func (g *Gateway) SeedSession(session types.Session) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sessions = append([]types.Session{session}, g.sessions...)
}

// SeedMessage installs a stored message without pushing an event.
func (g *Gateway) SeedMessage(message types.Message) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if message.ID == 0 {
		message.ID = g.nextMsgID
	}
	if message.ID >= g.nextMsgID {
		g.nextMsgID = message.ID + 1
	}
	g.messages[message.SessionID] = append(g.messages[message.SessionID], message)
}

// PushNewSession stores the session and broadcasts a new_session event.
func (g *Gateway) PushNewSession(session types.Session) {
	g.mu.Lock()
	replaced := false
	for i := range g.sessions {
		if g.sessions[i].ID == session.ID {
			g.sessions[i] = session
			replaced = true
			break
		}
	}
	if !replaced {
		g.sessions = append([]types.Session{session}, g.sessions...)
	}
	g.mu.Unlock()

	g.broadcast(mustEncode(protocol.EventNewSession, session))
}

// PushNewMessage stores the message and broadcasts a new_message event.
func (g *Gateway) PushNewMessage(message types.Message) {
	g.mu.Lock()
	if message.ID == 0 {
		message.ID = g.nextMsgID
	}
	if message.ID >= g.nextMsgID {
		g.nextMsgID = message.ID + 1
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now()
	}
	g.messages[message.SessionID] = append(g.messages[message.SessionID], message)
	g.mu.Unlock()

	g.broadcast(mustEncode(protocol.EventNewMessage, message))
}

// EndSession marks the session closed and broadcasts session_ended.
func (g *Gateway) EndSession(sessionID int, note string) {
	g.mu.Lock()
	for i := range g.sessions {
		if g.sessions[i].ID == sessionID {
			g.sessions[i].Status = types.SessionClosed
			break
		}
	}
	g.mu.Unlock()

	g.broadcast(mustEncode(protocol.EventSessionEnded, protocol.SessionEndedPayload{
		SessionID: sessionID,
		Message:   note,
	}))
}

// PushSessionError broadcasts a non-fatal protocol error.
func (g *Gateway) PushSessionError(message string) {
	g.broadcast(mustEncode(protocol.EventSessionError, protocol.SessionErrorPayload{
		Message: message,
	}))
}

// DropConnections closes every WebSocket with a going-away frame,
// simulating a server-initiated disconnect.
func (g *Gateway) DropConnections() {
	g.mu.Lock()
	clients := make([]*wsClient, 0, len(g.wsClients))
	for _, c := range g.wsClients {
		clients = append(clients, c)
	}
	g.mu.Unlock()

	for _, c := range clients {
		deadline := time.Now().Add(time.Second)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"), deadline)
		_ = c.conn.Close()
	}
}

// StoredMessages returns the gateway's stored log for one session.
func (g *Gateway) StoredMessages(sessionID int) []types.Message {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]types.Message, len(g.messages[sessionID]))
	copy(out, g.messages[sessionID])
	return out
}

// ConnectionCount reports currently attached clients on both transports.
func (g *Gateway) ConnectionCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.wsClients) + len(g.pollClients)
}

// ---- frame handling, shared by both transports ----

// handleFrame processes one client-to-server frame; reply goes to the
// sending client, new_message echoes broadcast to everyone.
func (g *Gateway) handleFrame(data []byte, sendToCaller func([]byte)) {
	var env protocol.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return
	}

	switch env.Event {
	case protocol.EventGetAllSessions:
		g.mu.Lock()
		sessions := make([]types.Session, len(g.sessions))
		copy(sessions, g.sessions)
		g.mu.Unlock()
		sendToCaller(mustEncode(protocol.EventAllSessions, sessions))

	case protocol.EventGetMessages:
		var payload protocol.GetMessagesPayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return
		}
		g.mu.Lock()
		log := make([]types.Message, len(g.messages[payload.SessionID]))
		copy(log, g.messages[payload.SessionID])
		g.mu.Unlock()
		sendToCaller(mustEncode(protocol.EventMessages, log))

	case protocol.EventReplyMessage:
		var payload protocol.ReplyPayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return
		}
		g.mu.Lock()
		message := types.Message{
			ID:        g.nextMsgID,
			SessionID: payload.SessionID,
			Sender:    types.SenderAdmin,
			Body:      payload.Message,
			Status:    types.DeliverySent,
			CreatedAt: time.Now(),
		}
		g.nextMsgID++
		g.messages[payload.SessionID] = append(g.messages[payload.SessionID], message)
		g.mu.Unlock()
		g.broadcast(mustEncode(protocol.EventNewMessage, message))

	default:
		sendToCaller(mustEncode(protocol.EventSessionError, protocol.SessionErrorPayload{
			Message: "unsupported event " + string(env.Event),
		}))
	}
}

// broadcast fans one frame out to every attached client.
func (g *Gateway) broadcast(data []byte) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, c := range g.wsClients {
		select {
		case c.send <- data:
		default:
		}
	}
	for _, queue := range g.pollClients {
		select {
		case queue <- data:
		default:
		}
	}
}

func mustEncode(kind protocol.EventKind, payload any) []byte {
	data, err := json.Marshal(payload)
	if err != nil {
		panic(err)
	}
	frame, err := json.Marshal(protocol.Envelope{Event: kind, Data: data})
	if err != nil {
		panic(err)
	}
	return frame
}
