package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/yourname/llmgate/internal/assert"
	"github.com/yourname/llmgate/internal/ledger"
)

const recordColumns = `id, session_id, seq, timestamp, model, prompt_tokens,
	completion_tokens, cached_tokens, reasoning_tokens, cost, project,
	username, success, prev_hash, hash`

// InsertRecord appends one usage record. The (session_id, seq) uniqueness
// constraint rejects duplicate appends from a confused writer.
func (db *DB) InsertRecord(rec *ledger.UsageRecord) error {
	if err := assert.NotNil(rec, "record"); err != nil {
		return err
	}
	if err := assert.Check(rec.ID != "", "record id must not be empty"); err != nil {
		return err
	}
	if err := assert.Check(rec.SessionID != "", "session id must not be empty"); err != nil {
		return err
	}
	if err := assert.Check(rec.Hash != "", "record hash must not be empty"); err != nil {
		return err
	}

	query := `
		INSERT INTO usage_records (` + recordColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	res, err := db.conn.Exec(query,
		rec.ID, rec.SessionID, rec.Seq, rec.Timestamp.Format(time.RFC3339Nano),
		rec.Model, rec.PromptTokens, rec.CompletionTokens, rec.CachedTokens,
		rec.ReasoningTokens, rec.Cost, rec.Project, rec.Username,
		boolToInt(rec.Success), rec.PrevHash, rec.Hash,
	)
	if err != nil {
		return fmt.Errorf("inserting record: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil || rows != 1 {
		return fmt.Errorf("failed to insert record: rows affected = %d", rows)
	}
	return nil
}

// GetLastRecord returns the highest sequence number and hash for a session.
// A session with no records yet returns (0, "", nil).
func (db *DB) GetLastRecord(sessionID string) (seq uint64, hash string, err error) {
	if err := assert.Check(sessionID != "", "session id must not be empty"); err != nil {
		return 0, "", err
	}

	query := `SELECT seq, hash FROM usage_records WHERE session_id = ? ORDER BY seq DESC LIMIT 1`
	err = db.conn.QueryRow(query, sessionID).Scan(&seq, &hash)
	if err == sql.ErrNoRows {
		return 0, "", nil
	}
	if err != nil {
		return 0, "", fmt.Errorf("querying last record: %w", err)
	}
	return seq, hash, nil
}

// GetAllRecords returns every record of a session in append order.
func (db *DB) GetAllRecords(sessionID string) ([]ledger.UsageRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM usage_records WHERE session_id = ? ORDER BY seq ASC`
	return db.queryRecords(query, sessionID)
}

// GetRecentRecords returns the newest records of a session, most recent first.
func (db *DB) GetRecentRecords(sessionID string, limit int) ([]ledger.UsageRecord, error) {
	if err := assert.Check(limit > 0, "limit must be positive"); err != nil {
		return nil, err
	}
	query := `SELECT ` + recordColumns + ` FROM usage_records WHERE session_id = ? ORDER BY seq DESC LIMIT ?`
	return db.queryRecords(query, sessionID, limit)
}

func (db *DB) queryRecords(query string, args ...interface{}) (records []ledger.UsageRecord, err error) {
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("closing record rows: %w", closeErr)
		}
	}()

	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("iterating records: %w", rowsErr)
	}
	return records, nil
}

func scanRecord(rows *sql.Rows) (*ledger.UsageRecord, error) {
	var rec ledger.UsageRecord
	var timestamp string
	var success int

	err := rows.Scan(
		&rec.ID, &rec.SessionID, &rec.Seq, &timestamp, &rec.Model,
		&rec.PromptTokens, &rec.CompletionTokens, &rec.CachedTokens,
		&rec.ReasoningTokens, &rec.Cost, &rec.Project, &rec.Username,
		&success, &rec.PrevHash, &rec.Hash,
	)
	if err != nil {
		return nil, fmt.Errorf("scanning record: %w", err)
	}

	t, err := time.Parse(time.RFC3339Nano, timestamp)
	if err != nil {
		return nil, fmt.Errorf("parsing timestamp: %w", err)
	}
	rec.Timestamp = t
	rec.Success = success != 0
	return &rec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
