package protocol

import (
	"encoding/json"
	"fmt"

	"chatrelay/pkg/types"
)

// Inbound is the decoded form of one gateway-to-client frame. Exactly one
// payload field is set, selected by Kind.
type Inbound struct {
	Kind EventKind

	Sessions []types.Session      // EventAllSessions
	Messages []types.Message      // EventMessages
	Message  *types.Message       // EventNewMessage
	Session  *types.Session       // EventNewSession
	Ended    *SessionEndedPayload // EventSessionEnded
	Error    *SessionErrorPayload // EventSessionError
}

// Decode parses one raw frame from the gateway. Unknown or client-bound
// event kinds are rejected so that every inbound frame is handled by an
// exhaustive switch downstream.
func Decode(data []byte) (*Inbound, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	in := &Inbound{Kind: env.Event}
	switch env.Event {
	case EventAllSessions:
		if err := json.Unmarshal(env.Data, &in.Sessions); err != nil {
			return nil, fmt.Errorf("%w: all_sessions: %v", ErrMalformedFrame, err)
		}
	case EventMessages:
		if err := json.Unmarshal(env.Data, &in.Messages); err != nil {
			return nil, fmt.Errorf("%w: messages: %v", ErrMalformedFrame, err)
		}
	case EventNewMessage:
		in.Message = &types.Message{}
		if err := json.Unmarshal(env.Data, in.Message); err != nil {
			return nil, fmt.Errorf("%w: new_message: %v", ErrMalformedFrame, err)
		}
	case EventNewSession:
		in.Session = &types.Session{}
		if err := json.Unmarshal(env.Data, in.Session); err != nil {
			return nil, fmt.Errorf("%w: new_session: %v", ErrMalformedFrame, err)
		}
	case EventSessionEnded:
		in.Ended = &SessionEndedPayload{}
		if err := json.Unmarshal(env.Data, in.Ended); err != nil {
			return nil, fmt.Errorf("%w: session_ended: %v", ErrMalformedFrame, err)
		}
	case EventSessionError:
		in.Error = &SessionErrorPayload{}
		if err := json.Unmarshal(env.Data, in.Error); err != nil {
			return nil, fmt.Errorf("%w: session_error: %v", ErrMalformedFrame, err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}
	return in, nil
}

// encode wraps a payload into an envelope frame.
func encode(kind EventKind, payload any) ([]byte, error) {
	env := Envelope{Event: kind}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", kind, err)
		}
		env.Data = data
	}
	return json.Marshal(env)
}

// EncodeGetAllSessions builds the full-roster request frame.
func EncodeGetAllSessions() ([]byte, error) {
	return encode(EventGetAllSessions, nil)
}

// EncodeGetMessages builds the full-log request frame for one session.
func EncodeGetMessages(sessionID int) ([]byte, error) {
	return encode(EventGetMessages, GetMessagesPayload{SessionID: sessionID})
}

// EncodeReply builds the outbound message frame.
func EncodeReply(sessionID int, body string) ([]byte, error) {
	return encode(EventReplyMessage, ReplyPayload{SessionID: sessionID, Message: body})
}
