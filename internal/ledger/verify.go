package ledger

import "fmt"

// VerificationResult reports the outcome of a chain verification pass.
type VerificationResult struct {
	Valid        bool
	TotalRecords int
	ErrorMessage string
	FailedAtSeq  uint64
}

// VerifyChain recomputes the hash chain for every record of a session and
// checks linkage, sequence density, and per-record digests.
func VerifyChain(db RecordRepository, sessionID string) (*VerificationResult, error) {
	result := &VerificationResult{Valid: true}

	records, err := db.GetAllRecords(sessionID)
	if err != nil {
		return nil, fmt.Errorf("loading records: %w", err)
	}
	result.TotalRecords = len(records)

	prevHash := GenesisHash
	for i := range records {
		rec := &records[i]

		if rec.Seq != uint64(i) {
			result.Valid = false
			result.ErrorMessage = fmt.Sprintf("sequence gap: expected %d, got %d", i, rec.Seq)
			result.FailedAtSeq = rec.Seq
			return result, nil
		}
		if rec.PrevHash != prevHash {
			result.Valid = false
			result.ErrorMessage = fmt.Sprintf("chain broken at seq %d: prev_hash mismatch", rec.Seq)
			result.FailedAtSeq = rec.Seq
			return result, nil
		}

		computed, err := RecordHash(rec.PrevHash, rec)
		if err != nil {
			return nil, fmt.Errorf("recomputing hash at seq %d: %w", rec.Seq, err)
		}
		if computed != rec.Hash {
			result.Valid = false
			result.ErrorMessage = fmt.Sprintf("record tampered at seq %d: hash mismatch", rec.Seq)
			result.FailedAtSeq = rec.Seq
			return result, nil
		}
		prevHash = rec.Hash
	}

	return result, nil
}
