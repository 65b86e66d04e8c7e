package protocol

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"chatrelay/pkg/types"
)

func frame(t *testing.T, kind EventKind, payload any) []byte {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	out, err := json.Marshal(Envelope{Event: kind, Data: data})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return out
}

func TestDecodeAllSessions(t *testing.T) {
	sessions := []types.Session{
		{ID: 2, Name: "Bob", Status: types.SessionOpen, CreatedAt: time.Now()},
		{ID: 1, Name: "Alice", Status: types.SessionClosed, CreatedAt: time.Now()},
	}

	in, err := Decode(frame(t, EventAllSessions, sessions))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	if in.Kind != EventAllSessions {
		t.Errorf("expected kind %s, got %s", EventAllSessions, in.Kind)
	}
	if len(in.Sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(in.Sessions))
	}
	if in.Sessions[0].ID != 2 || in.Sessions[1].Status != types.SessionClosed {
		t.Errorf("session fields not preserved: %+v", in.Sessions)
	}
}

func TestDecodeMessages(t *testing.T) {
	messages := []types.Message{
		{ID: 10, SessionID: 1, Sender: types.SenderCustomer, Body: "hello"},
		{ID: 11, SessionID: 1, Sender: types.SenderAdmin, Body: "hi", Status: types.DeliveryRead},
	}

	in, err := Decode(frame(t, EventMessages, messages))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	if len(in.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(in.Messages))
	}
	if in.Messages[1].Status != types.DeliveryRead {
		t.Errorf("delivery status not preserved: %+v", in.Messages[1])
	}
}

func TestDecodeNewMessage(t *testing.T) {
	in, err := Decode(frame(t, EventNewMessage, types.Message{
		ID: 5, SessionID: 3, Sender: types.SenderCustomer, Body: "ping",
	}))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	if in.Message == nil || in.Message.SessionID != 3 || in.Message.Body != "ping" {
		t.Errorf("unexpected message: %+v", in.Message)
	}
}

func TestDecodeNewSession(t *testing.T) {
	in, err := Decode(frame(t, EventNewSession, types.Session{
		ID: 7, Name: "Carol", Status: types.SessionOpen, CustomerID: 42,
	}))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	if in.Session == nil || in.Session.ID != 7 || in.Session.CustomerID != 42 {
		t.Errorf("unexpected session: %+v", in.Session)
	}
}

func TestDecodeSessionEnded(t *testing.T) {
	in, err := Decode(frame(t, EventSessionEnded, SessionEndedPayload{
		SessionID: 9, Message: "guest left",
	}))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	if in.Ended == nil || in.Ended.SessionID != 9 || in.Ended.Message != "guest left" {
		t.Errorf("unexpected payload: %+v", in.Ended)
	}
}

func TestDecodeSessionError(t *testing.T) {
	in, err := Decode(frame(t, EventSessionError, SessionErrorPayload{Message: "bad request"}))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	if in.Error == nil || in.Error.Message != "bad request" {
		t.Errorf("unexpected payload: %+v", in.Error)
	}
}

func TestDecodeRejectsUnknownEvent(t *testing.T) {
	_, err := Decode([]byte(`{"event":"made_up","data":{}}`))
	if !errors.Is(err, ErrUnknownEvent) {
		t.Errorf("expected ErrUnknownEvent, got %v", err)
	}
}

func TestDecodeRejectsClientBoundKinds(t *testing.T) {
	// Inbound decoding must not accept frames that only flow client to
	// gateway.
	_, err := Decode(frame(t, EventReplyMessage, ReplyPayload{SessionID: 1, Message: "x"}))
	if !errors.Is(err, ErrUnknownEvent) {
		t.Errorf("expected ErrUnknownEvent, got %v", err)
	}
}

func TestDecodeMalformedFrame(t *testing.T) {
	_, err := Decode([]byte(`not json`))
	if !errors.Is(err, ErrMalformedFrame) {
		t.Errorf("expected ErrMalformedFrame, got %v", err)
	}

	_, err = Decode([]byte(`{"event":"new_message","data":[1,2]}`))
	if !errors.Is(err, ErrMalformedFrame) {
		t.Errorf("expected ErrMalformedFrame for wrong payload shape, got %v", err)
	}
}

func TestEncodeRequests(t *testing.T) {
	data, err := EncodeGetMessages(12)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if env.Event != EventGetMessages {
		t.Errorf("expected %s, got %s", EventGetMessages, env.Event)
	}

	var payload GetMessagesPayload
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.SessionID != 12 {
		t.Errorf("expected session 12, got %d", payload.SessionID)
	}

	data, err = EncodeReply(3, "on our way")
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	var reply ReplyPayload
	if err := json.Unmarshal(env.Data, &reply); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if reply.SessionID != 3 || reply.Message != "on our way" {
		t.Errorf("unexpected reply payload: %+v", reply)
	}
}

func TestEventKindValid(t *testing.T) {
	valid := []EventKind{
		EventGetAllSessions, EventGetMessages, EventReplyMessage,
		EventAllSessions, EventMessages, EventNewMessage,
		EventNewSession, EventSessionEnded, EventSessionError,
	}
	for _, kind := range valid {
		if !kind.Valid() {
			t.Errorf("expected %s to be valid", kind)
		}
	}

	if EventKind("nope").Valid() {
		t.Error("expected unknown kind to be invalid")
	}
}
