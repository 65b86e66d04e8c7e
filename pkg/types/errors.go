package types

import "errors"

// Validation errors shared across components. All client-side validation
// failures resolve through the client's error state, never through panics.
var (
	ErrMissingCredential = errors.New("no auth credential available")
	ErrInvalidSessionID  = errors.New("session id must be a positive integer")
	ErrEmptyMessage      = errors.New("message is empty")
	ErrSessionClosed     = errors.New("session is closed and accepts no replies")
	ErrNotConnected      = errors.New("not connected to chat gateway")
)
