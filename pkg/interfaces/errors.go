package interfaces

import "errors"

// Transport-related errors
var (
	ErrTransportClosed  = errors.New("transport closed")
	ErrAlreadyConnected = errors.New("transport already connected")
	ErrWriteTimeout     = errors.New("write timeout")
	ErrEventsNotBound   = errors.New("transport events must be bound before connect")
)

// Recorder-related errors
var (
	ErrRecorderClosed = errors.New("recorder closed")
)
