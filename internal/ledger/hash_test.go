package ledger

import (
	"strings"
	"testing"
	"time"
)

func sampleRecord() *UsageRecord {
	return &UsageRecord{
		ID:               "rec-1",
		SessionID:        "sess-1",
		Seq:              0,
		Timestamp:        time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Model:            "openai/gpt-4o-mini",
		PromptTokens:     120,
		CompletionTokens: 45,
		CachedTokens:     10,
		ReasoningTokens:  0,
		Cost:             0.00042,
		Project:          "demo",
		Username:         "alice",
		Success:          true,
	}
}

// TestRecordHash_Deterministic verifies the same record always hashes to the
// same digest.
func TestRecordHash_Deterministic(t *testing.T) {
	rec := sampleRecord()

	h1, err := RecordHash(GenesisHash, rec)
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	h2, err := RecordHash(GenesisHash, rec)
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}

	if h1 != h2 {
		t.Errorf("hash not deterministic: %s vs %s", h1, h2)
	}
	if len(h1) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(h1))
	}
	if h1 != strings.ToLower(h1) {
		t.Errorf("expected lowercase hex, got %s", h1)
	}
}

// TestRecordHash_FieldSensitivity confirms every chained field participates
// in the digest.
func TestRecordHash_FieldSensitivity(t *testing.T) {
	base, err := RecordHash(GenesisHash, sampleRecord())
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}

	mutations := []struct {
		name   string
		mutate func(r *UsageRecord)
	}{
		{"model", func(r *UsageRecord) { r.Model = "other/model" }},
		{"prompt tokens", func(r *UsageRecord) { r.PromptTokens++ }},
		{"completion tokens", func(r *UsageRecord) { r.CompletionTokens++ }},
		{"cost", func(r *UsageRecord) { r.Cost += 0.001 }},
		{"success flag", func(r *UsageRecord) { r.Success = false }},
		{"seq", func(r *UsageRecord) { r.Seq++ }},
		{"timestamp", func(r *UsageRecord) { r.Timestamp = r.Timestamp.Add(time.Second) }},
		{"username", func(r *UsageRecord) { r.Username = "bob" }},
	}

	for _, tt := range mutations {
		t.Run(tt.name, func(t *testing.T) {
			rec := sampleRecord()
			tt.mutate(rec)
			got, err := RecordHash(GenesisHash, rec)
			if err != nil {
				t.Fatalf("hash failed: %v", err)
			}
			if got == base {
				t.Errorf("mutating %s did not change the digest", tt.name)
			}
		})
	}
}

// TestRecordHash_PrevHashChained verifies the digest depends on the previous
// link, not just the record content.
func TestRecordHash_PrevHashChained(t *testing.T) {
	rec := sampleRecord()

	h1, err := RecordHash(GenesisHash, rec)
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	h2, err := RecordHash(h1, rec)
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	if h1 == h2 {
		t.Error("digest should change when prev_hash changes")
	}
}

// TestRecordHash_Preconditions checks the guard clauses.
func TestRecordHash_Preconditions(t *testing.T) {
	if _, err := RecordHash("", sampleRecord()); err == nil {
		t.Error("expected error for empty prev_hash")
	}
	if _, err := RecordHash(GenesisHash, nil); err == nil {
		t.Error("expected error for nil record")
	}
}

// TestRecordHash_IgnoresHashFields confirms the stored hash fields are not
// part of the digest input, so verification can recompute them.
func TestRecordHash_IgnoresHashFields(t *testing.T) {
	rec := sampleRecord()
	h1, err := RecordHash(GenesisHash, rec)
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}

	rec.Hash = "deadbeef"
	rec.PrevHash = "cafebabe"
	h2, err := RecordHash(GenesisHash, rec)
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	if h1 != h2 {
		t.Error("digest must not depend on the record's own Hash/PrevHash fields")
	}
}
