package protocol

import "errors"

// Frame decoding errors
var (
	ErrMalformedFrame = errors.New("malformed frame")
	ErrUnknownEvent   = errors.New("unknown event kind")
)
