package types

import (
	"time"
)

// SessionStatus is the lifecycle state of a conversation session.
type SessionStatus string

const (
	SessionOpen   SessionStatus = "OPEN"
	SessionClosed SessionStatus = "CLOSED"
)

// Sender identifies who authored a message.
type Sender string

const (
	SenderCustomer Sender = "customer"
	SenderAdmin    Sender = "admin"
	// SenderSystem marks locally synthesized notices, such as the in-context
	// message appended when the active session ends. System messages never
	// come from the wire log.
	SenderSystem Sender = "system"
)

// DeliveryStatus is display-only state for admin-authored messages.
type DeliveryStatus string

const (
	DeliverySent      DeliveryStatus = "sent"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryRead      DeliveryStatus = "read"
)

// Session represents one guest-to-support conversation thread.
// Identity is the server-assigned integer id; a session is never removed
// from the roster within a connection's lifetime, it only transitions
// OPEN -> CLOSED.
type Session struct {
	ID         int           `json:"sessionId"`
	Name       string        `json:"guestName"`
	Status     SessionStatus `json:"status"`
	SessionKey string        `json:"sessionKey,omitempty"`
	CustomerID int           `json:"customerId,omitempty"`
	CreatedAt  time.Time     `json:"createdAt"`
	UpdatedAt  time.Time     `json:"updatedAt,omitzero"`
}

// Closed reports whether the session no longer accepts outbound sends.
func (s *Session) Closed() bool {
	return s.Status == SessionClosed
}

// Message is one chat utterance. IDs are unique within a session and
// assumed globally unique; the client never deduplicates by content.
type Message struct {
	ID        int            `json:"id"`
	SessionID int            `json:"sessionId"`
	Sender    Sender         `json:"sender"`
	SenderID  *int           `json:"senderId,omitempty"`
	Body      string         `json:"message"`
	Status    DeliveryStatus `json:"status,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// Notification is the passive side-channel alert raised when a message
// arrives for a session that is not currently active. The guest name is
// resolved from the roster snapshot at arrival time.
type Notification struct {
	SessionID int    `json:"sessionId"`
	GuestName string `json:"guestName"`
	Body      string `json:"message"`
}
