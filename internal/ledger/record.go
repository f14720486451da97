package ledger

import "time"

// UsageRecord is one row of LLM usage bookkeeping. Created once per call
// attempt (successful or failed), append-only, never mutated after the
// writer has sealed it into the hash chain.
type UsageRecord struct {
	ID               string    `json:"id"`
	SessionID        string    `json:"session_id"`
	Seq              uint64    `json:"seq"`
	Timestamp        time.Time `json:"timestamp"`
	Model            string    `json:"model"`
	PromptTokens     int64     `json:"prompt_tokens"`
	CompletionTokens int64     `json:"completion_tokens"`
	CachedTokens     int64     `json:"cached_tokens"`
	ReasoningTokens  int64     `json:"reasoning_tokens"`
	Cost             float64   `json:"cost"`
	Project          string    `json:"project,omitempty"`
	Username         string    `json:"username,omitempty"`
	Success          bool      `json:"success"`
	PrevHash         string    `json:"prev_hash"`
	Hash             string    `json:"hash"`
}
