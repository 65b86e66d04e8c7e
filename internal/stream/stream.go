package stream

import (
	"sync"
	"time"

	"chatrelay/pkg/types"
)

// DefaultJoinTimeout is the soft fallback that clears a stuck loading flag
// when a log response never arrives. It is not a retry.
const DefaultJoinTimeout = 5 * time.Second

// Stream owns the ordered message log of whichever single session is
// currently active. The buffer is a transient view: switching the active
// session resets it before any response arrives, and every incoming event
// is classified against the marker's current value, never against a value
// captured earlier.
type Stream struct {
	mu       sync.Mutex
	activeID int // 0 means no session joined yet
	messages []types.Message
	loading  bool

	joinTimeout time.Duration
	timer       *time.Timer
	joinSeq     uint64 // invalidates a stale soft-timeout firing
}

// New creates a stream with the given soft-timeout window. A non-positive
// timeout falls back to DefaultJoinTimeout.
func New(joinTimeout time.Duration) *Stream {
	if joinTimeout <= 0 {
		joinTimeout = DefaultJoinTimeout
	}
	return &Stream{joinTimeout: joinTimeout}
}

// Begin switches the active session to sessionID ahead of the log request.
// The buffer is cleared and the loading flag raised synchronously, so no
// frame from the previous session can ever be rendered while the fetch is
// in flight. Re-joining the already-active session is a no-op and returns
// false: the caller must not issue a new log request.
func (s *Stream) Begin(sessionID int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sessionID == s.activeID {
		return false
	}

	s.activeID = sessionID
	s.messages = nil
	s.loading = true
	s.armTimerLocked()
	return true
}

// armTimerLocked restarts the soft-timeout timer for the current join.
// The sequence guard keeps a timer from an earlier join from clearing the
// loading flag of a later one.
func (s *Stream) armTimerLocked() {
	s.joinSeq++
	seq := s.joinSeq

	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.joinTimeout, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.joinSeq == seq {
			s.loading = false
		}
	})
}

// ApplyLog installs a full-log response. The buffer is replaced only when
// the response still belongs to the active session; a stale response for a
// session the operator has since left is discarded. The loading flag is
// cleared either way so a discarded response cannot leave the view spinning.
func (s *Stream) ApplyLog(sessionID int, messages []types.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.loading = false
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.joinSeq++

	if sessionID != s.activeID {
		return false
	}

	s.messages = make([]types.Message, len(messages))
	copy(s.messages, messages)
	return true
}

// Append adds a live-pushed message when it belongs to the active session,
// preserving arrival order. Messages for other sessions are rejected and
// must be routed to the notification side-channel instead.
func (s *Stream) Append(message types.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if message.SessionID != s.activeID {
		return false
	}

	s.messages = append(s.messages, message)
	return true
}

// AppendSystemNotice synthesizes an in-context system message when the
// active session ends. The notice never came from the wire log; it exists
// so the operator sees the transition inside the conversation view.
func (s *Stream) AppendSystemNotice(sessionID int, body string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sessionID != s.activeID {
		return false
	}

	s.messages = append(s.messages, types.Message{
		SessionID: sessionID,
		Sender:    types.SenderSystem,
		Body:      body,
		CreatedAt: time.Now(),
	})
	return true
}

// ActiveID returns the current active-session marker.
func (s *Stream) ActiveID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID
}

// Messages returns a copy of the visible buffer.
func (s *Stream) Messages() []types.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]types.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Loading reports whether a log request is in flight.
func (s *Stream) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Stop releases the soft-timeout timer.
func (s *Stream) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.joinSeq++
}
