package interfaces

import (
	"context"

	"chatrelay/pkg/types"
)

// Recorder archives conversation traffic as it is observed on the wire.
// The archive is a side recorder for operator history only: the client's
// visible message buffer stays transient and is never rebuilt from it.
type Recorder interface {
	// RecordSession upserts a roster entry by session id.
	RecordSession(ctx context.Context, session *types.Session) error

	// RecordMessage stores one received message. Redelivered ids are ignored.
	RecordMessage(ctx context.Context, message *types.Message) error

	// RecordSessionEnded marks a session closed and stores the server's
	// closing note.
	RecordSessionEnded(ctx context.Context, sessionID int, note string) error

	// Close flushes pending writes and releases the store.
	Close() error
}
