package types

import "strings"

// IsValidSessionID reports whether id can identify a server-assigned session.
func IsValidSessionID(id int) bool {
	return id > 0
}

// NormalizeBody trims surrounding whitespace from an outbound message body.
// An all-whitespace body normalizes to the empty string and must be rejected
// before dispatch.
func NormalizeBody(body string) string {
	return strings.TrimSpace(body)
}

// ValidStatus reports whether s is a known session lifecycle state.
func ValidStatus(s SessionStatus) bool {
	return s == SessionOpen || s == SessionClosed
}
