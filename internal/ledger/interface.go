package ledger

// SessionStats aggregates usage for one server session.
type SessionStats struct {
	SessionID        string  `json:"session_id"`
	TotalRecords     uint64  `json:"total_records"`
	FailedRecords    uint64  `json:"failed_records"`
	PromptTokens     int64   `json:"prompt_tokens"`
	CompletionTokens int64   `json:"completion_tokens"`
	TotalCost        float64 `json:"total_cost"`
}

// GlobalStats aggregates usage across every session in the store.
type GlobalStats struct {
	TotalSessions int     `json:"total_sessions"`
	TotalRecords  uint64  `json:"total_records"`
	FailedRecords uint64  `json:"failed_records"`
	TotalCost     float64 `json:"total_cost"`
}

// RecordRepository is the storage interface for the usage ledger. Keeps the
// writer decoupled from SQLite so tests can inject failing or in-memory
// stores.
type RecordRepository interface {
	// Writer
	InsertRecord(rec *UsageRecord) error
	InsertSession(id, serverName string) error

	// Reader
	GetLastRecord(sessionID string) (seq uint64, hash string, err error)
	GetAllRecords(sessionID string) ([]UsageRecord, error)
	GetRecentRecords(sessionID string, limit int) ([]UsageRecord, error)

	// Meta
	HasSessions() (bool, error)
	GetSessionID() (string, error)
	GetSessionIDs() ([]string, error)

	// Stats
	GetSessionStats(sessionID string) (*SessionStats, error)
	GetGlobalStats() (*GlobalStats, error)

	// Lifecycle
	Close() error
}
