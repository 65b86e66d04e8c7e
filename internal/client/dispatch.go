package client

import (
	"context"

	"go.uber.org/zap"

	"chatrelay/internal/protocol"
	"chatrelay/pkg/types"
)

// onFrame decodes and routes one inbound frame. Routing always consults
// the current active-session marker, never a value captured when the
// handler was registered.
func (c *Client) onFrame(data []byte) {
	in, err := protocol.Decode(data)
	if err != nil {
		c.log.Warn("dropping undecodable frame", zap.String("client", c.id), zap.Error(err))
		return
	}

	switch in.Kind {
	case protocol.EventAllSessions:
		c.handleAllSessions(in.Sessions)
	case protocol.EventMessages:
		c.handleMessages(in.Messages)
	case protocol.EventNewMessage:
		c.handleNewMessage(*in.Message)
	case protocol.EventNewSession:
		c.handleNewSession(*in.Session)
	case protocol.EventSessionEnded:
		c.handleSessionEnded(in.Ended.SessionID, in.Ended.Message)
	case protocol.EventSessionError:
		c.setErr(in.Error.Message)
	default:
		// Decode rejects client-bound and unknown kinds already; this arm
		// exists so a new inbound kind cannot be silently swallowed.
		c.log.Warn("unhandled frame kind", zap.String("kind", string(in.Kind)))
	}
}

// handleAllSessions installs a full roster snapshot, replacing the list
// wholesale so entries closed elsewhere are dropped.
func (c *Client) handleAllSessions(sessions []types.Session) {
	c.roster.ReplaceAll(sessions)
	c.log.Debug("roster replaced",
		zap.String("client", c.id),
		zap.Int("sessions", len(sessions)))
}

// handleMessages installs a full-log response. The owning session id is
// carried by the entries themselves; an empty log can only be classified
// as the active session's.
func (c *Client) handleMessages(messages []types.Message) {
	sessionID := c.stream.ActiveID()
	if len(messages) > 0 {
		sessionID = messages[0].SessionID
	}

	if !c.stream.ApplyLog(sessionID, messages) {
		c.log.Debug("discarded stale log response",
			zap.String("client", c.id),
			zap.Int("session", sessionID))
	}
}

// handleNewMessage appends a live message to the visible log when it
// belongs to the active session; otherwise it raises a passive
// notification resolved against the roster snapshot.
func (c *Client) handleNewMessage(message types.Message) {
	c.record(func(ctx context.Context) error {
		return c.recorder.RecordMessage(ctx, &message)
	})

	if c.stream.Append(message) {
		return
	}

	session, ok := c.roster.Lookup(message.SessionID)
	if !ok {
		// Roster race: the session is not known yet. A malformed alert is
		// worse than none.
		c.log.Debug("dropping notification for unknown session",
			zap.String("client", c.id),
			zap.Int("session", message.SessionID))
		return
	}

	if c.notify != nil {
		c.notify(types.Notification{
			SessionID: message.SessionID,
			GuestName: session.Name,
			Body:      message.Body,
		})
	}
}

// handleNewSession upserts the roster entry pushed by the gateway.
func (c *Client) handleNewSession(session types.Session) {
	c.roster.Upsert(session)
	c.record(func(ctx context.Context) error {
		return c.recorder.RecordSession(ctx, &session)
	})
}

// handleSessionEnded flips the roster entry to CLOSED in place and, when
// the ended session is the active one, appends an in-context system
// notice to the visible log.
func (c *Client) handleSessionEnded(sessionID int, note string) {
	c.roster.MarkEnded(sessionID)

	if note == "" {
		note = endedNotice
	}
	c.stream.AppendSystemNotice(sessionID, note)

	c.record(func(ctx context.Context) error {
		return c.recorder.RecordSessionEnded(ctx, sessionID, note)
	})
}

// record runs one archive write with a bounded context. Archive faults are
// logged, never surfaced: recording is a side concern and must not disturb
// dispatch.
func (c *Client) record(op func(ctx context.Context) error) {
	if c.recorder == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	if err := op(ctx); err != nil {
		c.log.Warn("archive write failed", zap.String("client", c.id), zap.Error(err))
	}
}
