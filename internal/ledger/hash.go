package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/ucarion/jcs"
	"github.com/yourname/llmgate/internal/assert"
)

// GenesisHash anchors the first record of every session.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// RecordHash computes the tamper-evident hash of a usage record, chained to
// the previous record's hash. Uses RFC 8785 (JSON Canonicalization Scheme)
// so the digest is identical regardless of field ordering or platform.
func RecordHash(prevHash string, rec *UsageRecord) (string, error) {
	if err := assert.Check(prevHash != "", "prev_hash must be non-empty"); err != nil {
		return "", err
	}
	if err := assert.NotNil(rec, "record"); err != nil {
		return "", err
	}

	payload := map[string]interface{}{
		"id":                rec.ID,
		"session_id":        rec.SessionID,
		"seq":               rec.Seq,
		"timestamp":         rec.Timestamp.Format(time.RFC3339Nano),
		"model":             rec.Model,
		"prompt_tokens":     rec.PromptTokens,
		"completion_tokens": rec.CompletionTokens,
		"cached_tokens":     rec.CachedTokens,
		"reasoning_tokens":  rec.ReasoningTokens,
		"cost":              rec.Cost,
		"project":           rec.Project,
		"username":          rec.Username,
		"success":           rec.Success,
	}

	// Round-trip through encoding/json first so numeric types normalize the
	// same way they would after a database read.
	jsonBytes, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	var normalized interface{}
	if err := json.Unmarshal(jsonBytes, &normalized); err != nil {
		return "", err
	}

	canonical, err := jcs.Format(normalized)
	if err != nil {
		return "", err
	}

	hasher := sha256.New()
	hasher.Write([]byte(prevHash))
	hasher.Write([]byte(canonical))
	return hex.EncodeToString(hasher.Sum(nil)), nil
}
