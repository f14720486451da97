package store

import (
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// DB wraps the SQLite connection holding the usage ledger. Each path is an
// isolated instance; pass ":memory:" for a non-persistent store in tests.
type DB struct {
	conn *sql.DB
}

// NewDB opens (creating if necessary) the ledger database at dbPath and
// applies the embedded schema.
func NewDB(dbPath string) (*DB, error) {
	if !strings.Contains(dbPath, ":memory:") {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Every pooled connection to ":memory:" gets its own empty database, so
	// pin in-memory stores to a single connection.
	if strings.Contains(dbPath, ":memory:") {
		conn.SetMaxOpenConns(1)
	}

	// Append path and report path can be open concurrently.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		if closeErr := conn.Close(); closeErr != nil {
			return nil, fmt.Errorf("enabling WAL mode: %v; closing database: %w", err, closeErr)
		}
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := conn.Exec(schemaSQL); err != nil {
		if closeErr := conn.Close(); closeErr != nil {
			return nil, fmt.Errorf("executing schema: %v; closing database: %w", err, closeErr)
		}
		return nil, fmt.Errorf("executing schema: %w", err)
	}

	return &DB{conn: conn}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// InsertSession registers a new server session.
func (db *DB) InsertSession(id, serverName string) error {
	_, err := db.conn.Exec(`INSERT INTO sessions (id, server_name) VALUES (?, ?)`, id, serverName)
	if err != nil {
		return fmt.Errorf("inserting session: %w", err)
	}
	return nil
}

// HasSessions reports whether any sessions exist in the database.
func (db *DB) HasSessions() (bool, error) {
	var count int
	if err := db.conn.QueryRow(`SELECT COUNT(*) FROM sessions`).Scan(&count); err != nil {
		return false, fmt.Errorf("checking sessions: %w", err)
	}
	return count > 0, nil
}

// GetSessionID returns the most recently started session id, or "" when the
// store is empty.
func (db *DB) GetSessionID() (string, error) {
	var id string
	err := db.conn.QueryRow(`SELECT id FROM sessions ORDER BY started_at DESC, rowid DESC LIMIT 1`).Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("querying session id: %w", err)
	}
	return id, nil
}

// GetSessionIDs returns every session id, newest first.
func (db *DB) GetSessionIDs() (ids []string, err error) {
	rows, err := db.conn.Query(`SELECT id FROM sessions ORDER BY started_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("closing session rows: %w", closeErr)
		}
	}()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning session id: %w", err)
		}
		ids = append(ids, id)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("iterating sessions: %w", rowsErr)
	}
	return ids, nil
}
