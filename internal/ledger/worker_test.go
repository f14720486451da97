package ledger

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// memRepo is an in-memory RecordRepository for exercising the writer without
// SQLite.
type memRepo struct {
	mu              sync.Mutex
	sessions        map[string]string
	records         []UsageRecord
	failWith        error
	failHasSessions error
	closed          bool
}

func newMemRepo() *memRepo {
	return &memRepo{sessions: make(map[string]string)}
}

func (m *memRepo) InsertRecord(rec *UsageRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	m.records = append(m.records, *rec)
	return nil
}

func (m *memRepo) InsertSession(id, serverName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[id] = serverName
	return nil
}

func (m *memRepo) GetLastRecord(sessionID string) (uint64, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.records) - 1; i >= 0; i-- {
		if m.records[i].SessionID == sessionID {
			return m.records[i].Seq, m.records[i].Hash, nil
		}
	}
	return 0, "", nil
}

func (m *memRepo) GetAllRecords(sessionID string) ([]UsageRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []UsageRecord
	for _, rec := range m.records {
		if rec.SessionID == sessionID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *memRepo) GetRecentRecords(sessionID string, limit int) ([]UsageRecord, error) {
	all, err := m.GetAllRecords(sessionID)
	if err != nil {
		return nil, err
	}
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all, nil
}

func (m *memRepo) HasSessions() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failHasSessions != nil {
		return false, m.failHasSessions
	}
	return len(m.sessions) > 0, nil
}

func (m *memRepo) GetSessionID() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id := range m.sessions {
		return id, nil
	}
	return "", errors.New("no sessions")
}

func (m *memRepo) GetSessionIDs() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	return ids, nil
}

func (m *memRepo) GetSessionStats(sessionID string) (*SessionStats, error) {
	all, err := m.GetAllRecords(sessionID)
	if err != nil {
		return nil, err
	}
	stats := &SessionStats{SessionID: sessionID}
	for _, rec := range all {
		stats.TotalRecords++
		if !rec.Success {
			stats.FailedRecords++
		}
		stats.PromptTokens += rec.PromptTokens
		stats.CompletionTokens += rec.CompletionTokens
		stats.TotalCost += rec.Cost
	}
	return stats, nil
}

func (m *memRepo) GetGlobalStats() (*GlobalStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := &GlobalStats{TotalSessions: len(m.sessions)}
	for _, rec := range m.records {
		stats.TotalRecords++
		if !rec.Success {
			stats.FailedRecords++
		}
		stats.TotalCost += rec.Cost
	}
	return stats, nil
}

func (m *memRepo) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *memRepo) recordCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

func startedWorker(t *testing.T, repo RecordRepository, bufferSize int) *Worker {
	t.Helper()
	w, err := NewWorker(bufferSize, repo)
	if err != nil {
		t.Fatalf("creating worker: %v", err)
	}
	if err := w.Start("test-server"); err != nil {
		t.Fatalf("starting worker: %v", err)
	}
	return w
}

// TestNewWorker_Preconditions checks the constructor guard clauses.
func TestNewWorker_Preconditions(t *testing.T) {
	if _, err := NewWorker(0, newMemRepo()); err == nil {
		t.Error("expected error for zero buffer size")
	}
	if _, err := NewWorker(-5, newMemRepo()); err == nil {
		t.Error("expected error for negative buffer size")
	}
	if _, err := NewWorker(8, nil); err == nil {
		t.Error("expected error for nil repository")
	}
}

// TestWorker_StartOnStoreWithHistory verifies a new run on a store holding
// earlier sessions gets a fresh session anchored at the genesis hash.
func TestWorker_StartOnStoreWithHistory(t *testing.T) {
	repo := newMemRepo()
	repo.sessions["earlier-run"] = "old-server"

	w := startedWorker(t, repo, 16)
	defer w.Shutdown(2 * time.Second)

	if w.SessionID() == "" || w.SessionID() == "earlier-run" {
		t.Fatalf("expected a fresh session id, got %q", w.SessionID())
	}

	w.Submit(&UsageRecord{Model: "a/b", Success: true})
	if err := w.Flush(2 * time.Second); err != nil {
		t.Fatalf("flush failed: %v", err)
	}

	records, err := repo.GetAllRecords(w.SessionID())
	if err != nil {
		t.Fatalf("reading records: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].PrevHash != GenesisHash {
		t.Errorf("new session must anchor at genesis, got %q", records[0].PrevHash)
	}
}

// TestWorker_StartFailsOnUnreadableStore verifies the history check surfaces
// a broken store at startup instead of after the first append.
func TestWorker_StartFailsOnUnreadableStore(t *testing.T) {
	repo := newMemRepo()
	repo.failHasSessions = errors.New("database disk image is malformed")

	w, err := NewWorker(8, repo)
	if err != nil {
		t.Fatalf("creating worker: %v", err)
	}
	if err := w.Start("test-server"); err == nil {
		t.Error("expected start to fail when the store cannot be read")
	}
}

// TestWorker_AppendOrder submits a batch and verifies records land in
// submission order with dense sequence numbers and a valid chain.
func TestWorker_AppendOrder(t *testing.T) {
	repo := newMemRepo()
	w := startedWorker(t, repo, 64)
	defer w.Shutdown(2 * time.Second)

	const n = 20
	for i := 0; i < n; i++ {
		w.Submit(&UsageRecord{
			Model:            "openai/gpt-4o-mini",
			PromptTokens:     int64(i),
			CompletionTokens: int64(i * 2),
			Success:          true,
		})
	}
	if err := w.Flush(2 * time.Second); err != nil {
		t.Fatalf("flush failed: %v", err)
	}

	records, err := repo.GetAllRecords(w.SessionID())
	if err != nil {
		t.Fatalf("reading records: %v", err)
	}
	if len(records) != n {
		t.Fatalf("expected %d records, got %d", n, len(records))
	}

	prevHash := GenesisHash
	for i, rec := range records {
		if rec.Seq != uint64(i) {
			t.Errorf("record %d: expected seq %d, got %d", i, i, rec.Seq)
		}
		if rec.PromptTokens != int64(i) {
			t.Errorf("record %d out of submission order: prompt_tokens=%d", i, rec.PromptTokens)
		}
		if rec.PrevHash != prevHash {
			t.Errorf("record %d: chain broken", i)
		}
		if rec.ID == "" {
			t.Errorf("record %d: missing id", i)
		}
		if rec.Timestamp.IsZero() {
			t.Errorf("record %d: missing timestamp", i)
		}
		prevHash = rec.Hash
	}

	appended, dropped := w.Stats()
	if appended != n || dropped != 0 {
		t.Errorf("expected %d appended, 0 dropped; got %d, %d", n, appended, dropped)
	}
}

// TestWorker_StoreFailureDropsWithoutError verifies a failing store never
// propagates an error to the submitter and does not advance the chain.
func TestWorker_StoreFailureDropsWithoutError(t *testing.T) {
	repo := newMemRepo()
	w := startedWorker(t, repo, 16)
	defer w.Shutdown(2 * time.Second)

	w.Submit(&UsageRecord{Model: "a/b", Success: true})
	if err := w.Flush(2 * time.Second); err != nil {
		t.Fatalf("flush failed: %v", err)
	}

	repo.mu.Lock()
	repo.failWith = fmt.Errorf("disk full")
	repo.mu.Unlock()

	w.Submit(&UsageRecord{Model: "a/b", Success: true})
	w.Submit(&UsageRecord{Model: "a/b", Success: true})
	if err := w.Flush(2 * time.Second); err != nil {
		t.Fatalf("flush failed: %v", err)
	}

	repo.mu.Lock()
	repo.failWith = nil
	repo.mu.Unlock()

	w.Submit(&UsageRecord{Model: "a/b", Success: true})
	if err := w.Flush(2 * time.Second); err != nil {
		t.Fatalf("flush failed: %v", err)
	}

	appended, dropped := w.Stats()
	if appended != 2 {
		t.Errorf("expected 2 appended, got %d", appended)
	}
	if dropped != 2 {
		t.Errorf("expected 2 dropped, got %d", dropped)
	}

	// The record written after the failures must still link to the last
	// durable record.
	records, err := repo.GetAllRecords(w.SessionID())
	if err != nil {
		t.Fatalf("reading records: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 stored records, got %d", len(records))
	}
	if records[1].Seq != 1 {
		t.Errorf("expected dense seq after drop, got %d", records[1].Seq)
	}
	if records[1].PrevHash != records[0].Hash {
		t.Error("chain must skip dropped records, not reference them")
	}
}

// TestWorker_BackpressureDrops fills the queue past capacity and confirms
// overflow is counted as dropped rather than blocking.
func TestWorker_BackpressureDrops(t *testing.T) {
	repo := newMemRepo()
	w, err := NewWorker(4, repo)
	if err != nil {
		t.Fatalf("creating worker: %v", err)
	}
	// Not started: nothing drains the queue, so pushes past capacity must
	// drop immediately.
	w.sessionID = "manual"
	for i := 0; i < 10; i++ {
		w.Submit(&UsageRecord{Model: "a/b"})
	}

	_, dropped := w.Stats()
	if dropped != 6 {
		t.Errorf("expected 6 dropped, got %d", dropped)
	}
	depth, capacity := w.QueueDepth()
	if depth != 4 || capacity != 4 {
		t.Errorf("expected full queue 4/4, got %d/%d", depth, capacity)
	}
}

// TestWorker_SubmitAfterShutdownDrops verifies submissions after shutdown
// are rejected silently.
func TestWorker_SubmitAfterShutdownDrops(t *testing.T) {
	repo := newMemRepo()
	w := startedWorker(t, repo, 16)

	if err := w.Shutdown(2 * time.Second); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}
	if !repo.closed {
		t.Error("shutdown must close the store")
	}

	w.Submit(&UsageRecord{Model: "a/b"})
	_, dropped := w.Stats()
	if dropped != 1 {
		t.Errorf("expected 1 dropped after shutdown, got %d", dropped)
	}
}

// TestWorker_ShutdownDrainsQueue confirms records still queued at shutdown
// get a best-effort append before the store closes.
func TestWorker_ShutdownDrainsQueue(t *testing.T) {
	repo := newMemRepo()
	w := startedWorker(t, repo, 64)

	const n = 10
	for i := 0; i < n; i++ {
		w.Submit(&UsageRecord{Model: "a/b", Success: true})
	}
	if err := w.Shutdown(2 * time.Second); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}

	if got := repo.recordCount(); got != n {
		t.Errorf("expected %d records after shutdown drain, got %d", n, got)
	}
}
