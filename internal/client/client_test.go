package client

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"chatrelay/internal/protocol"
	"chatrelay/pkg/interfaces"
	"chatrelay/pkg/types"
)

// fakeTransport is an in-memory transport for driving the client from
// tests: it records outbound frames and lets tests fire lifecycle events
// and inbound frames directly.
type fakeTransport struct {
	mu        sync.Mutex
	ev        interfaces.TransportEvents
	connected bool
	sent      [][]byte

	failConnect error
	failSend    error
	connects    int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{}
}

func (f *fakeTransport) Bind(ev interfaces.TransportEvents) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ev = ev
}

func (f *fakeTransport) Connect(ctx context.Context) error {
	f.mu.Lock()
	f.connects++
	fail := f.failConnect
	ev := f.ev
	f.mu.Unlock()

	if fail != nil {
		if ev.OnConnectError != nil {
			ev.OnConnectError(fail)
		}
		return fail
	}

	f.mu.Lock()
	f.connected = true
	f.mu.Unlock()

	if ev.OnConnect != nil {
		ev.OnConnect()
	}
	return nil
}

func (f *fakeTransport) Send(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failSend != nil {
		return f.failSend
	}
	if !f.connected {
		return interfaces.ErrTransportClosed
	}
	f.sent = append(f.sent, data)
	return nil
}

func (f *fakeTransport) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	return nil
}

// dropConnection simulates the connection dropping out from under the
// client.
func (f *fakeTransport) dropConnection(serverInitiated bool) {
	f.mu.Lock()
	f.connected = false
	ev := f.ev
	f.mu.Unlock()

	if ev.OnDisconnect != nil {
		ev.OnDisconnect(serverInitiated)
	}
}

// reconnect simulates a successful automatic reconnection.
func (f *fakeTransport) reconnect() {
	f.mu.Lock()
	f.connected = true
	ev := f.ev
	f.mu.Unlock()

	if ev.OnReconnect != nil {
		ev.OnReconnect()
	}
}

// push delivers one inbound frame as if read off the wire.
func (f *fakeTransport) push(t *testing.T, kind protocol.EventKind, payload any) {
	t.Helper()

	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	frame, err := json.Marshal(protocol.Envelope{Event: kind, Data: data})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}

	f.mu.Lock()
	ev := f.ev
	f.mu.Unlock()
	ev.OnFrame(frame)
}

// sentKinds decodes the event kind of every recorded outbound frame.
func (f *fakeTransport) sentKinds(t *testing.T) []protocol.EventKind {
	t.Helper()

	f.mu.Lock()
	defer f.mu.Unlock()

	kinds := make([]protocol.EventKind, 0, len(f.sent))
	for _, data := range f.sent {
		var env protocol.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			t.Fatalf("unmarshal sent frame: %v", err)
		}
		kinds = append(kinds, env.Event)
	}
	return kinds
}

func countKind(kinds []protocol.EventKind, kind protocol.EventKind) int {
	n := 0
	for _, k := range kinds {
		if k == kind {
			n++
		}
	}
	return n
}

func startedClient(t *testing.T, opts Options) (*Client, *fakeTransport) {
	t.Helper()

	ft := newFakeTransport()
	if opts.Credential == "" {
		opts.Credential = "token"
	}
	c := New(ft, opts)
	t.Cleanup(func() { _ = c.Close() })

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	return c, ft
}

func TestStartWithoutCredential(t *testing.T) {
	ft := newFakeTransport()
	c := New(ft, Options{})

	err := c.Start(context.Background())
	if !errors.Is(err, types.ErrMissingCredential) {
		t.Fatalf("expected ErrMissingCredential, got %v", err)
	}

	if c.Err() == "" {
		t.Error("expected persistent error state")
	}
	if ft.connects != 0 {
		t.Error("expected no connection attempt without a credential")
	}
}

func TestStartIsIdempotent(t *testing.T) {
	c, ft := startedClient(t, Options{})

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("second start errored: %v", err)
	}
	if ft.connects != 1 {
		t.Errorf("expected exactly one connection attempt, got %d", ft.connects)
	}
}

func TestStartRecordsConnectError(t *testing.T) {
	ft := newFakeTransport()
	ft.failConnect = errors.New("gateway unreachable")
	c := New(ft, Options{Credential: "token"})

	if err := c.Start(context.Background()); err == nil {
		t.Fatal("expected start to return the connect error")
	}
	if c.Err() == "" {
		t.Error("expected error state set by connect failure")
	}
	if c.Connected() {
		t.Error("expected disconnected state")
	}
}

func TestAutoFetchOnConnect(t *testing.T) {
	c, ft := startedClient(t, Options{})

	kinds := ft.sentKinds(t)
	if countKind(kinds, protocol.EventGetAllSessions) != 1 {
		t.Fatalf("expected exactly one roster fetch on connect, got %v", kinds)
	}
	if !c.Snapshot().LoadingSessions {
		t.Error("expected roster loading while fetch is in flight")
	}

	ft.push(t, protocol.EventAllSessions, []types.Session{
		{ID: 1, Name: "Alice", Status: types.SessionOpen},
	})

	snap := c.Snapshot()
	if snap.LoadingSessions {
		t.Error("expected roster loading cleared")
	}
	if len(snap.Sessions) != 1 || snap.Sessions[0].Name != "Alice" {
		t.Errorf("unexpected roster: %+v", snap.Sessions)
	}
}

func TestFetchSessionsWhileDisconnectedIsSilent(t *testing.T) {
	c, ft := startedClient(t, Options{})
	ft.dropConnection(false)
	before := len(ft.sentKinds(t))

	c.FetchSessions()

	if got := len(ft.sentKinds(t)); got != before {
		t.Error("expected no network emission while disconnected")
	}
	// Silent no-op: transient faults during reconnect windows are not
	// operator errors.
	if c.Err() != "" {
		t.Errorf("expected no error state, got %q", c.Err())
	}
}

func TestJoinSessionFlow(t *testing.T) {
	c, ft := startedClient(t, Options{})

	c.JoinSession(1)

	kinds := ft.sentKinds(t)
	if countKind(kinds, protocol.EventGetMessages) != 1 {
		t.Fatalf("expected one log request, got %v", kinds)
	}
	snap := c.Snapshot()
	if !snap.LoadingMessages || len(snap.Messages) != 0 || snap.ActiveSessionID != 1 {
		t.Errorf("unexpected state after join: %+v", snap)
	}

	ft.push(t, protocol.EventMessages, []types.Message{
		{ID: 1, SessionID: 1, Sender: types.SenderCustomer, Body: "hello"},
		{ID: 2, SessionID: 1, Sender: types.SenderAdmin, Body: "hi"},
		{ID: 3, SessionID: 1, Sender: types.SenderCustomer, Body: "thanks"},
	})

	snap = c.Snapshot()
	if snap.LoadingMessages {
		t.Error("expected loading cleared by the log response")
	}
	if len(snap.Messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(snap.Messages))
	}
}

func TestJoinSessionIdempotentAndNoSecondRequest(t *testing.T) {
	c, ft := startedClient(t, Options{})

	c.JoinSession(1)
	ft.push(t, protocol.EventMessages, []types.Message{
		{ID: 1, SessionID: 1, Sender: types.SenderCustomer, Body: "hello"},
	})

	c.JoinSession(1)

	if countKind(ft.sentKinds(t), protocol.EventGetMessages) != 1 {
		t.Error("expected no second log request for an idempotent re-join")
	}
	if got := len(c.Snapshot().Messages); got != 1 {
		t.Errorf("expected populated buffer preserved, got %d", got)
	}
}

func TestStaleLogResponseDoesNotMutateBuffer(t *testing.T) {
	c, ft := startedClient(t, Options{})

	c.JoinSession(1)
	c.JoinSession(2)

	ft.push(t, protocol.EventMessages, []types.Message{
		{ID: 1, SessionID: 1, Sender: types.SenderCustomer, Body: "stale"},
	})

	snap := c.Snapshot()
	if len(snap.Messages) != 0 {
		t.Errorf("expected stale response discarded, buffer=%+v", snap.Messages)
	}
	if snap.LoadingMessages {
		t.Error("expected loading cleared even for a discarded response")
	}
}

func TestLiveAppendForActiveSession(t *testing.T) {
	c, ft := startedClient(t, Options{})

	c.JoinSession(1)
	ft.push(t, protocol.EventMessages, []types.Message{
		{ID: 1, SessionID: 1, Sender: types.SenderCustomer, Body: "hello"},
	})
	ft.push(t, protocol.EventNewMessage, types.Message{
		ID: 2, SessionID: 1, Sender: types.SenderCustomer, Body: "hi",
	})

	snap := c.Snapshot()
	if len(snap.Messages) != 2 || snap.Messages[1].Body != "hi" {
		t.Errorf("expected live append at the end, got %+v", snap.Messages)
	}
}

func TestSendMessageValidation(t *testing.T) {
	c, ft := startedClient(t, Options{})
	baseline := len(ft.sentKinds(t))

	// Whitespace-only body: rejected before dispatch.
	c.SendMessage(1, "   ")
	if got := len(ft.sentKinds(t)); got != baseline {
		t.Error("expected zero network emissions for an empty message")
	}
	if c.Err() == "" {
		t.Error("expected error state for an empty message")
	}

	// Disconnected: rejected before dispatch.
	ft.dropConnection(false)
	c.SendMessage(1, "text")
	if got := len(ft.sentKinds(t)); got != baseline {
		t.Error("expected zero network emissions while disconnected")
	}
	if c.Err() == "" {
		t.Error("expected error state for a send while disconnected")
	}
}

func TestSendMessageToClosedSession(t *testing.T) {
	c, ft := startedClient(t, Options{})
	ft.push(t, protocol.EventAllSessions, []types.Session{
		{ID: 1, Name: "Alice", Status: types.SessionClosed},
	})
	baseline := len(ft.sentKinds(t))

	c.SendMessage(1, "hello?")

	if got := len(ft.sentKinds(t)); got != baseline {
		t.Error("expected no emission toward a closed session")
	}
	if c.Err() == "" {
		t.Error("expected error state for a closed session")
	}
}

func TestSendMessageTrimsAndDoesNotAppendLocally(t *testing.T) {
	c, ft := startedClient(t, Options{})
	c.JoinSession(1)
	ft.push(t, protocol.EventMessages, []types.Message{})

	c.SendMessage(1, "  on our way  ")

	f := ft.sent[len(ft.sent)-1]
	var env protocol.Envelope
	if err := json.Unmarshal(f, &env); err != nil {
		t.Fatalf("unmarshal sent frame: %v", err)
	}
	if env.Event != protocol.EventReplyMessage {
		t.Fatalf("expected reply frame, got %s", env.Event)
	}
	var payload protocol.ReplyPayload
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.Message != "on our way" {
		t.Errorf("expected trimmed body, got %q", payload.Message)
	}

	// The echo arrives via live append; nothing is appended optimistically.
	if got := len(c.Snapshot().Messages); got != 0 {
		t.Errorf("expected no optimistic append, got %d messages", got)
	}
}

func TestNotificationForNonActiveSession(t *testing.T) {
	var mu sync.Mutex
	var notifications []types.Notification

	c, ft := startedClient(t, Options{
		OnNotification: func(n types.Notification) {
			mu.Lock()
			defer mu.Unlock()
			notifications = append(notifications, n)
		},
	})

	ft.push(t, protocol.EventAllSessions, []types.Session{
		{ID: 1, Name: "Alice", Status: types.SessionOpen},
		{ID: 2, Name: "Bob", Status: types.SessionOpen},
	})
	c.JoinSession(1)
	ft.push(t, protocol.EventMessages, []types.Message{
		{ID: 1, SessionID: 1, Sender: types.SenderCustomer, Body: "hello"},
	})

	ft.push(t, protocol.EventNewMessage, types.Message{
		ID: 2, SessionID: 2, Sender: types.SenderCustomer, Body: "anyone there?",
	})

	snap := c.Snapshot()
	if got := len(snap.Messages); got != 1 {
		t.Errorf("expected visible buffer untouched, got %d messages", got)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(notifications) != 1 {
		t.Fatalf("expected exactly one notification, got %d", len(notifications))
	}
	n := notifications[0]
	if n.SessionID != 2 || n.GuestName != "Bob" || n.Body != "anyone there?" {
		t.Errorf("unexpected notification: %+v", n)
	}
}

func TestNotificationDroppedForUnknownSession(t *testing.T) {
	var mu sync.Mutex
	count := 0

	c, ft := startedClient(t, Options{
		OnNotification: func(types.Notification) {
			mu.Lock()
			defer mu.Unlock()
			count++
		},
	})

	c.JoinSession(1)
	ft.push(t, protocol.EventMessages, []types.Message{})

	// Session 99 is not in the roster yet; a malformed alert is worse
	// than none.
	ft.push(t, protocol.EventNewMessage, types.Message{
		ID: 1, SessionID: 99, Sender: types.SenderCustomer, Body: "early",
	})

	if got := len(c.Snapshot().Messages); got != 0 {
		t.Errorf("expected visible buffer untouched, got %d messages", got)
	}

	mu.Lock()
	defer mu.Unlock()
	if count != 0 {
		t.Errorf("expected notification dropped, got %d", count)
	}
}

func TestSessionEndedForActiveSession(t *testing.T) {
	c, ft := startedClient(t, Options{})
	ft.push(t, protocol.EventAllSessions, []types.Session{
		{ID: 1, Name: "Alice", Status: types.SessionOpen},
	})
	c.JoinSession(1)
	ft.push(t, protocol.EventMessages, []types.Message{
		{ID: 1, SessionID: 1, Sender: types.SenderCustomer, Body: "bye"},
	})

	ft.push(t, protocol.EventSessionEnded, protocol.SessionEndedPayload{
		SessionID: 1, Message: "guest left the chat",
	})

	snap := c.Snapshot()
	if snap.Sessions[0].Status != types.SessionClosed {
		t.Errorf("expected roster entry closed, got %s", snap.Sessions[0].Status)
	}
	if got := len(snap.Messages); got != 2 {
		t.Fatalf("expected exactly one synthetic notice appended, got %d messages", got)
	}
	notice := snap.Messages[1]
	if notice.Sender != types.SenderSystem || notice.Body != "guest left the chat" {
		t.Errorf("unexpected notice: %+v", notice)
	}
}

func TestSessionEndedForInactiveSession(t *testing.T) {
	c, ft := startedClient(t, Options{})
	ft.push(t, protocol.EventAllSessions, []types.Session{
		{ID: 1, Name: "Alice", Status: types.SessionOpen},
		{ID: 2, Name: "Bob", Status: types.SessionOpen},
	})
	c.JoinSession(1)
	ft.push(t, protocol.EventMessages, []types.Message{})

	ft.push(t, protocol.EventSessionEnded, protocol.SessionEndedPayload{SessionID: 2})

	snap := c.Snapshot()
	if got := len(snap.Messages); got != 0 {
		t.Errorf("expected no notice outside the active session, got %d", got)
	}
	if snap.Sessions[1].Status != types.SessionClosed {
		t.Errorf("expected roster entry closed, got %s", snap.Sessions[1].Status)
	}
}

func TestNewSessionUpsert(t *testing.T) {
	c, ft := startedClient(t, Options{})
	ft.push(t, protocol.EventAllSessions, []types.Session{
		{ID: 1, Name: "Alice", Status: types.SessionOpen},
	})

	ft.push(t, protocol.EventNewSession, types.Session{
		ID: 2, Name: "Bob", Status: types.SessionOpen,
	})

	snap := c.Snapshot()
	if len(snap.Sessions) != 2 || snap.Sessions[0].ID != 2 {
		t.Errorf("expected new session prepended, got %+v", snap.Sessions)
	}
}

func TestSessionErrorSetsErrorState(t *testing.T) {
	c, ft := startedClient(t, Options{})

	ft.push(t, protocol.EventSessionError, protocol.SessionErrorPayload{
		Message: "rate limited",
	})

	if c.Err() != "rate limited" {
		t.Errorf("expected protocol error surfaced, got %q", c.Err())
	}
	// Non-fatal: the connection stays up.
	if !c.Connected() {
		t.Error("expected connection to survive a protocol error")
	}
}

func TestReconnectClearsErrorAndRefreshesRoster(t *testing.T) {
	c, ft := startedClient(t, Options{})

	ft.dropConnection(true)
	if c.Connected() {
		t.Fatal("expected disconnected state")
	}

	ft.reconnect()

	if !c.Connected() {
		t.Error("expected connected state after reconnect")
	}
	if c.Err() != "" {
		t.Errorf("expected error cleared on reconnect, got %q", c.Err())
	}
	if countKind(ft.sentKinds(t), protocol.EventGetAllSessions) != 2 {
		t.Error("expected a fresh roster pull after reconnect")
	}

	// The active session is not re-joined automatically.
	if countKind(ft.sentKinds(t), protocol.EventGetMessages) != 0 {
		t.Error("expected no automatic re-join after reconnect")
	}
}

func TestUndecodableFrameIsDropped(t *testing.T) {
	c, ft := startedClient(t, Options{})

	ft.mu.Lock()
	ev := ft.ev
	ft.mu.Unlock()
	ev.OnFrame([]byte("not a frame"))

	if c.Err() != "" {
		t.Errorf("expected undecodable frame to be dropped silently, got %q", c.Err())
	}
}

func TestJoinTimeoutClearsLoading(t *testing.T) {
	c, _ := startedClient(t, Options{JoinTimeout: 50 * time.Millisecond})

	// No log response ever arrives.
	c.JoinSession(1)
	time.Sleep(150 * time.Millisecond)

	if c.Snapshot().LoadingMessages {
		t.Error("expected soft timeout to clear the loading flag")
	}
}
