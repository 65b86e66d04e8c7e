package archive

import (
	"database/sql"
	"fmt"
)

// bootstrapSchema creates the archive tables when missing.
func bootstrapSchema(db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id          INTEGER PRIMARY KEY,
			guest_name  TEXT NOT NULL,
			status      TEXT NOT NULL,
			session_key TEXT,
			customer_id INTEGER,
			ended_note  TEXT,
			created_at  DATETIME NOT NULL,
			updated_at  DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id              INTEGER PRIMARY KEY,
			session_id      INTEGER NOT NULL,
			sender          TEXT NOT NULL,
			sender_id       INTEGER,
			body            TEXT NOT NULL,
			delivery_status TEXT,
			created_at      DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id)`,
	}

	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("schema statement failed: %w", err)
		}
	}
	return nil
}

// validateSchema verifies the tables the recorder depends on exist.
func validateSchema(db *sql.DB) error {
	required := map[string]string{
		"sessions": "roster archive",
		"messages": "message archive",
	}

	for table, description := range required {
		exists, err := tableExists(db, table)
		if err != nil {
			return fmt.Errorf("error checking table %s (%s): %w", table, description, err)
		}
		if !exists {
			return fmt.Errorf("required table %s (%s) does not exist", table, description)
		}
	}
	return nil
}

func tableExists(db *sql.DB, name string) (bool, error) {
	var count int
	err := db.QueryRow(`
		SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
