package roster

import (
	"sync"

	"chatrelay/pkg/types"
)

// Roster maintains the full list of sessions known to the client. The list
// is replaced wholesale by full-roster responses and patched in place by
// push events; entries are never removed within a connection's lifetime.
type Roster struct {
	mu       sync.RWMutex
	sessions []types.Session
	loading  bool
}

// New creates an empty roster.
func New() *Roster {
	return &Roster{}
}

// BeginFetch marks a full-roster request in flight.
func (r *Roster) BeginFetch() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loading = true
}

// AbortFetch clears the in-flight marker without touching the list. Used
// when a roster request could not be dispatched.
func (r *Roster) AbortFetch() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loading = false
}

// ReplaceAll installs a fresh full-roster snapshot, dropping every stale
// entry, and clears the loading flag.
func (r *Roster) ReplaceAll(sessions []types.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions = make([]types.Session, len(sessions))
	copy(r.sessions, sessions)
	r.loading = false
}

// Upsert applies a "new session" push event. A known id is replaced in
// place, preserving the relative order of the other entries; an unseen id
// is prepended so the newest session surfaces first.
func (r *Roster) Upsert(session types.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.sessions {
		if r.sessions[i].ID == session.ID {
			r.sessions[i] = session
			return
		}
	}

	r.sessions = append([]types.Session{session}, r.sessions...)
}

// MarkEnded applies a "session ended" push event: the entry's status flips
// to CLOSED in place, the entry is not removed. Returns false when the id
// is not in the roster.
func (r *Roster) MarkEnded(sessionID int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.sessions {
		if r.sessions[i].ID == sessionID {
			r.sessions[i].Status = types.SessionClosed
			return true
		}
	}
	return false
}

// Lookup returns the roster entry for sessionID, if present.
func (r *Roster) Lookup(sessionID int) (types.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for i := range r.sessions {
		if r.sessions[i].ID == sessionID {
			return r.sessions[i], true
		}
	}
	return types.Session{}, false
}

// Sessions returns a copy of the current roster snapshot.
func (r *Roster) Sessions() []types.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]types.Session, len(r.sessions))
	copy(out, r.sessions)
	return out
}

// Loading reports whether a full-roster request is in flight.
func (r *Roster) Loading() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loading
}

// Len returns the number of known sessions.
func (r *Roster) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
