package ledger

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/yourname/llmgate/internal/assert"
	"github.com/yourname/llmgate/internal/logging"
	"github.com/yourname/llmgate/internal/ring"
)

const (
	maxDrainRecords  = 1 << 20
	maxShutdownTicks = 1 << 12
	maxFlushTicks    = 1 << 12
)

// Worker is the append pipeline of the usage ledger. Handlers hand completed
// records to Submit, which never blocks beyond a mutex push; a single
// background goroutine seals each record into the hash chain and writes it.
// A full buffer or a failing store drops the record with a logged warning:
// bookkeeping failures must never block or fail the call that produced them.
type Worker struct {
	buf       *ring.Buffer[*UsageRecord]
	signal    chan struct{}
	quit      chan struct{}
	db        RecordRepository
	sessionID string

	// Chain state, touched only by the writer goroutine (and by the final
	// drain after it has stopped).
	seq      uint64
	lastHash string

	closing      atomic.Bool
	submitted    atomic.Uint64
	appended     atomic.Uint64
	dropped      atomic.Uint64
	wg           sync.WaitGroup
	shutdownOnce sync.Once
}

// NewWorker creates a ledger writer over db with the given queue capacity.
// The worker must be started with Start and stopped with Shutdown.
func NewWorker(bufferSize int, db RecordRepository) (*Worker, error) {
	if err := assert.Check(bufferSize > 0, "buffer size must be positive"); err != nil {
		return nil, err
	}
	if err := assert.NotNil(db, "record repository"); err != nil {
		return nil, err
	}

	buf, err := ring.New[*UsageRecord](bufferSize)
	if err != nil {
		return nil, err
	}
	return &Worker{
		buf:    buf,
		signal: make(chan struct{}, 1),
		quit:   make(chan struct{}),
		db:     db,
	}, nil
}

// Start registers a fresh session and launches the writer goroutine. Every
// process run gets its own session id; the hash chain anchors at the genesis
// hash for each session.
func (w *Worker) Start(serverName string) error {
	if err := assert.NotNil(w.db, "record repository"); err != nil {
		return err
	}

	prior, err := w.db.HasSessions()
	if err != nil {
		return fmt.Errorf("checking ledger history: %w", err)
	}

	w.sessionID = uuid.New().String()
	if err := w.db.InsertSession(w.sessionID, serverName); err != nil {
		return fmt.Errorf("registering session: %w", err)
	}
	w.lastHash = GenesisHash
	w.seq = 0
	w.closing.Store(false)
	if !prior {
		logging.Info("ledger_store_initialized", logging.Fields{Component: "ledger", SessionID: w.sessionID})
	}
	logging.Info("ledger_session_started", logging.Fields{Component: "ledger", SessionID: w.sessionID})

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.processRecords()
	}()
	return nil
}

// SessionID returns the id grouping this run's records.
func (w *Worker) SessionID() string {
	return w.sessionID
}

// Submit queues a record for appending. Non-blocking: on shutdown or
// backpressure the record is dropped and counted, never propagated as an
// error to the caller.
func (w *Worker) Submit(rec *UsageRecord) {
	if err := assert.NotNil(rec, "record"); err != nil {
		return
	}
	if w.closing.Load() {
		w.dropped.Add(1)
		logging.Warn("record_dropped_shutdown", logging.Fields{Component: "ledger", RecordID: rec.ID})
		return
	}

	if err := w.buf.Push(rec); err != nil {
		w.dropped.Add(1)
		logging.Warn("record_dropped_backpressure", logging.Fields{Component: "ledger", RecordID: rec.ID, Error: err.Error()})
		return
	}
	w.submitted.Add(1)

	select {
	case w.signal <- struct{}{}:
	default:
		// Writer already signaled.
	}
}

// Stats returns the number of records appended and dropped so far.
func (w *Worker) Stats() (appended, dropped uint64) {
	return w.appended.Load(), w.dropped.Load()
}

// QueueDepth returns the current queue depth and capacity.
func (w *Worker) QueueDepth() (int, int) {
	return w.buf.Len(), w.buf.Cap()
}

func (w *Worker) processRecords() {
	for {
		select {
		case <-w.quit:
			return
		case <-w.signal:
			w.drainOnce()
		}
	}
}

func (w *Worker) drainOnce() {
	for i := 0; i < maxDrainRecords; i++ {
		rec, err := w.buf.Pop()
		if err != nil {
			return
		}
		w.appendRecord(rec)
	}
}

// appendRecord seals one record into the chain and persists it. A store
// failure drops the record without advancing the chain, so a later append
// still links to the last durable record.
func (w *Worker) appendRecord(rec *UsageRecord) {
	rec.SessionID = w.sessionID
	rec.Seq = w.seq
	rec.PrevHash = w.lastHash
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	hash, err := RecordHash(rec.PrevHash, rec)
	if err != nil {
		w.dropped.Add(1)
		logging.Warn("record_hash_failed", logging.Fields{Component: "ledger", RecordID: rec.ID, Error: err.Error()})
		return
	}
	rec.Hash = hash

	if err := w.db.InsertRecord(rec); err != nil {
		w.dropped.Add(1)
		logging.Warn("record_append_failed", logging.Fields{Component: "ledger", RecordID: rec.ID, Error: err.Error()})
		return
	}

	w.seq++
	w.lastHash = hash
	w.appended.Add(1)
}

// Flush blocks until every submitted record has been appended or dropped.
// Intended for tests and shutdown paths, not the serve loop.
func (w *Worker) Flush(timeout time.Duration) error {
	if err := assert.Check(timeout > 0, "timeout must be positive"); err != nil {
		return err
	}

	step := timeout / maxFlushTicks
	if step == 0 {
		step = time.Millisecond
	}
	ticker := time.NewTicker(step)
	defer ticker.Stop()

	for i := 0; i < maxFlushTicks; i++ {
		if w.submitted.Load() == w.appended.Load()+w.dropped.Load() && w.buf.IsEmpty() {
			return nil
		}
		<-ticker.C
	}
	return fmt.Errorf("ledger flush exceeded timeout")
}

// Close drains pending records and closes the store. Safe to call once at
// process shutdown.
func (w *Worker) Close() error {
	return w.Shutdown(5 * time.Second)
}

// Shutdown stops the writer goroutine, drains whatever remains in the queue,
// and closes the underlying store. In-flight handler calls that already
// submitted get their best-effort append before the store closes.
func (w *Worker) Shutdown(timeout time.Duration) error {
	if err := assert.Check(timeout > 0, "timeout must be positive"); err != nil {
		return err
	}

	w.closing.Store(true)
	w.shutdownOnce.Do(func() {
		close(w.quit)
	})

	if err := w.waitForStop(timeout); err != nil {
		logging.Warn("ledger_shutdown_wait_timeout", logging.Fields{Component: "ledger", Error: err.Error()})
	}

	// Final drain on the shutdown goroutine; the writer has stopped.
	if depth, _ := w.QueueDepth(); depth > 0 {
		logging.Warn("ledger_shutdown_pending_records", logging.Fields{Component: "ledger", SessionID: w.sessionID, Count: depth})
	}
	w.drainOnce()

	return w.db.Close()
}

func (w *Worker) waitForStop(timeout time.Duration) error {
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	step := timeout / maxShutdownTicks
	if step == 0 {
		step = time.Millisecond
	}
	ticker := time.NewTicker(step)
	defer ticker.Stop()

	for i := 0; i < maxShutdownTicks; i++ {
		select {
		case <-done:
			return nil
		case <-ticker.C:
		}
	}
	return fmt.Errorf("ledger writer shutdown exceeded timeout")
}
