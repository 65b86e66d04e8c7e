package protocol

import (
	"encoding/json"
)

// EventKind names one frame type on the gateway wire. The set is closed:
// adding a kind means extending the constants below, Valid, and the decode
// switch together.
type EventKind string

// Client-to-gateway events.
const (
	EventGetAllSessions EventKind = "get_all_sessions"
	EventGetMessages    EventKind = "get_messages"
	EventReplyMessage   EventKind = "reply_message"
)

// Gateway-to-client events.
const (
	EventAllSessions  EventKind = "all_sessions"
	EventMessages     EventKind = "messages"
	EventNewMessage   EventKind = "new_message"
	EventNewSession   EventKind = "new_session"
	EventSessionEnded EventKind = "session_ended"
	EventSessionError EventKind = "session_error"
)

// Valid reports whether k is a known event kind in either direction.
func (k EventKind) Valid() bool {
	switch k {
	case EventGetAllSessions, EventGetMessages, EventReplyMessage,
		EventAllSessions, EventMessages, EventNewMessage,
		EventNewSession, EventSessionEnded, EventSessionError:
		return true
	}
	return false
}

// Envelope is the JSON frame carried over the transport.
type Envelope struct {
	Event EventKind       `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// GetMessagesPayload requests the full log for one session and implicitly
// joins it.
type GetMessagesPayload struct {
	SessionID int `json:"sessionId"`
}

// ReplyPayload carries one outbound admin message.
type ReplyPayload struct {
	SessionID int    `json:"sessionId"`
	Message   string `json:"message"`
}

// SessionEndedPayload announces a lifecycle transition for one session.
type SessionEndedPayload struct {
	SessionID int    `json:"sessionId"`
	Message   string `json:"message"`
}

// SessionErrorPayload is a non-fatal protocol error from the gateway.
type SessionErrorPayload struct {
	Message string `json:"message"`
}
