package archive

import (
	"errors"

	"chatrelay/pkg/interfaces"
)

// Archive errors
var (
	// ErrArchiveClosed is the contract sentinel for writes and reads
	// against a closed recorder.
	ErrArchiveClosed = interfaces.ErrRecorderClosed

	ErrNilRecord          = errors.New("record cannot be nil")
	ErrSessionNotArchived = errors.New("session not archived")
)
