package store

import (
	"fmt"

	"github.com/yourname/llmgate/internal/assert"
	"github.com/yourname/llmgate/internal/ledger"
)

// GetSessionStats aggregates token and cost totals for one session.
func (db *DB) GetSessionStats(sessionID string) (*ledger.SessionStats, error) {
	if err := assert.Check(sessionID != "", "session id must not be empty"); err != nil {
		return nil, err
	}

	stats := &ledger.SessionStats{SessionID: sessionID}
	err := db.conn.QueryRow(`
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN success = 0 THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(prompt_tokens), 0),
		       COALESCE(SUM(completion_tokens), 0),
		       COALESCE(SUM(cost), 0)
		FROM usage_records WHERE session_id = ?`, sessionID).Scan(
		&stats.TotalRecords, &stats.FailedRecords,
		&stats.PromptTokens, &stats.CompletionTokens, &stats.TotalCost,
	)
	if err != nil {
		return nil, fmt.Errorf("querying session stats: %w", err)
	}
	return stats, nil
}

// GetGlobalStats aggregates usage across every session in the store.
func (db *DB) GetGlobalStats() (*ledger.GlobalStats, error) {
	stats := &ledger.GlobalStats{}

	if err := db.conn.QueryRow(`SELECT COUNT(*) FROM sessions`).Scan(&stats.TotalSessions); err != nil {
		return nil, fmt.Errorf("counting sessions: %w", err)
	}

	err := db.conn.QueryRow(`
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN success = 0 THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(cost), 0)
		FROM usage_records`).Scan(&stats.TotalRecords, &stats.FailedRecords, &stats.TotalCost)
	if err != nil {
		return nil, fmt.Errorf("querying global stats: %w", err)
	}
	return stats, nil
}
