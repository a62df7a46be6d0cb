// Package archive keeps a write-only SQLite transcript of completed turns.
// Live sessions never load from it; it exists for offline review.
package archive

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"TutorChat/internal/session"
)

// Entry is one archived message row
type Entry struct {
	Role      string
	Content   string
	Timestamp time.Time
}

// Archive writes turns to a SQLite database
type Archive struct {
	db      *sql.DB
	backend string
}

// Open opens (or creates) the archive database at path
func Open(path, backend string) (*Archive, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	createSessionsTable := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		start_time DATETIME,
		backend TEXT
	);`

	createMessagesTable := `
	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT,
		role TEXT,
		content TEXT,
		timestamp DATETIME,
		FOREIGN KEY(session_id) REFERENCES sessions(id)
	);`

	if _, err := db.Exec(createSessionsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create sessions table: %w", err)
	}

	if _, err := db.Exec(createMessagesTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create messages table: %w", err)
	}

	return &Archive{db: db, backend: backend}, nil
}

// Record appends a completed turn as a user row followed by an assistant row
func (a *Archive) Record(ctx context.Context, sess *session.Session, turn session.Turn) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		"INSERT OR IGNORE INTO sessions (id, start_time, backend) VALUES (?, ?, ?)",
		sess.ID, sess.CreatedAt, a.backend,
	)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	for _, row := range []Entry{
		{Role: "user", Content: turn.Human, Timestamp: turn.CreatedAt},
		{Role: "assistant", Content: turn.AI, Timestamp: turn.CreatedAt},
	} {
		_, err = tx.ExecContext(ctx,
			"INSERT INTO messages (session_id, role, content, timestamp) VALUES (?, ?, ?, ?)",
			sess.ID, row.Role, row.Content, row.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("failed to save message: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Transcript returns the archived rows of one session in insertion order
func (a *Archive) Transcript(ctx context.Context, sessionID string) ([]Entry, error) {
	rows, err := a.db.QueryContext(ctx,
		"SELECT role, content, timestamp FROM messages WHERE session_id = ? ORDER BY id",
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Role, &e.Content, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close closes the underlying database
func (a *Archive) Close() error {
	return a.db.Close()
}
