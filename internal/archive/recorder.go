package archive

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"chatrelay/pkg/types"
)

// SQLiteRecorder archives conversation traffic into a local SQLite file.
// All writes funnel through a single writer goroutine; SQLite handles
// concurrent reads but contended writers poorly.
type SQLiteRecorder struct {
	db  *sql.DB
	log *zap.Logger

	writeCh  chan writeOperation
	shutdown chan struct{}
	wg       sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// writeOperation is one queued write and its completion channel.
type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// NewSQLiteRecorder opens (or creates) the archive at path and bootstraps
// the schema.
func NewSQLiteRecorder(path string, log *zap.Logger) (*SQLiteRecorder, error) {
	if path == "" {
		return nil, fmt.Errorf("archive path cannot be empty")
	}
	if log == nil {
		log = zap.NewNop()
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}

	if err := bootstrapSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to bootstrap archive schema: %w", err)
	}

	if err := validateSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("archive schema invalid: %w", err)
	}

	r := &SQLiteRecorder{
		db:       db,
		log:      log,
		writeCh:  make(chan writeOperation, 100),
		shutdown: make(chan struct{}),
	}

	r.wg.Add(1)
	go r.writeLoop()

	return r, nil
}

// writeLoop processes all write operations in a single goroutine.
func (r *SQLiteRecorder) writeLoop() {
	defer r.wg.Done()

	for {
		select {
		case op := <-r.writeCh:
			op.result <- op.operation(r.db)
		case <-r.shutdown:
			// Drain whatever is already queued before exiting.
			for {
				select {
				case op := <-r.writeCh:
					op.result <- op.operation(r.db)
				default:
					return
				}
			}
		}
	}
}

// executeWrite queues one write and waits for completion or context
// cancellation.
func (r *SQLiteRecorder) executeWrite(ctx context.Context, operation func(*sql.DB) error) error {
	r.mu.RLock()
	closed := r.closed
	r.mu.RUnlock()
	if closed {
		return ErrArchiveClosed
	}

	op := writeOperation{
		operation: operation,
		result:    make(chan error, 1),
	}

	select {
	case r.writeCh <- op:
	case <-ctx.Done():
		return ctx.Err()
	case <-r.shutdown:
		return ErrArchiveClosed
	}

	select {
	case err := <-op.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RecordSession upserts one roster entry by session id.
func (r *SQLiteRecorder) RecordSession(ctx context.Context, session *types.Session) error {
	if session == nil {
		return ErrNilRecord
	}

	s := *session
	return r.executeWrite(ctx, func(db *sql.DB) error {
		_, err := db.Exec(`
			INSERT INTO sessions (id, guest_name, status, session_key, customer_id, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				guest_name = excluded.guest_name,
				status     = excluded.status,
				updated_at = excluded.updated_at`,
			s.ID, s.Name, string(s.Status), s.SessionKey, s.CustomerID,
			s.CreatedAt, time.Now())
		return err
	})
}

// RecordMessage stores one received message. A redelivered id is ignored
// so reconnect replays cannot duplicate archive rows.
func (r *SQLiteRecorder) RecordMessage(ctx context.Context, message *types.Message) error {
	if message == nil {
		return ErrNilRecord
	}

	m := *message
	return r.executeWrite(ctx, func(db *sql.DB) error {
		var senderID any
		if m.SenderID != nil {
			senderID = *m.SenderID
		}
		_, err := db.Exec(`
			INSERT OR IGNORE INTO messages (id, session_id, sender, sender_id, body, delivery_status, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			m.ID, m.SessionID, string(m.Sender), senderID, m.Body,
			string(m.Status), m.CreatedAt)
		return err
	})
}

// RecordSessionEnded marks the session closed and stores the closing note.
// An unseen session id still gets a stub row so the transition is not lost.
func (r *SQLiteRecorder) RecordSessionEnded(ctx context.Context, sessionID int, note string) error {
	return r.executeWrite(ctx, func(db *sql.DB) error {
		now := time.Now()
		result, err := db.Exec(`
			UPDATE sessions SET status = ?, ended_note = ?, updated_at = ? WHERE id = ?`,
			string(types.SessionClosed), note, now, sessionID)
		if err != nil {
			return err
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			_, err = db.Exec(`
				INSERT INTO sessions (id, guest_name, status, ended_note, created_at, updated_at)
				VALUES (?, '', ?, ?, ?, ?)`,
				sessionID, string(types.SessionClosed), note, now, now)
		}
		return err
	})
}

// Transcript returns the archived messages of one session in insertion
// order.
func (r *SQLiteRecorder) Transcript(ctx context.Context, sessionID int) ([]types.Message, error) {
	r.mu.RLock()
	closed := r.closed
	r.mu.RUnlock()
	if closed {
		return nil, ErrArchiveClosed
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, session_id, sender, sender_id, body, delivery_status, created_at
		FROM messages WHERE session_id = ? ORDER BY rowid`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query transcript: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var messages []types.Message
	for rows.Next() {
		var m types.Message
		var sender, status string
		var senderID sql.NullInt64
		if err := rows.Scan(&m.ID, &m.SessionID, &sender, &senderID, &m.Body, &status, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.Sender = types.Sender(sender)
		m.Status = types.DeliveryStatus(status)
		if senderID.Valid {
			id := int(senderID.Int64)
			m.SenderID = &id
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// Session returns one archived roster entry and its closing note.
func (r *SQLiteRecorder) Session(ctx context.Context, sessionID int) (*types.Session, string, error) {
	r.mu.RLock()
	closed := r.closed
	r.mu.RUnlock()
	if closed {
		return nil, "", ErrArchiveClosed
	}

	var s types.Session
	var status, note string
	err := r.db.QueryRowContext(ctx, `
		SELECT id, guest_name, status, COALESCE(ended_note, ''), created_at
		FROM sessions WHERE id = ?`, sessionID).
		Scan(&s.ID, &s.Name, &status, &note, &s.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, "", ErrSessionNotArchived
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to query session: %w", err)
	}

	s.Status = types.SessionStatus(status)
	return &s, note, nil
}

// Close flushes queued writes and closes the store. Safe to call once.
func (r *SQLiteRecorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	close(r.shutdown)
	r.wg.Wait()

	return r.db.Close()
}
