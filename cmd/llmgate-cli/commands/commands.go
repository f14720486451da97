package commands

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/yourname/llmgate/internal/config"
	"github.com/yourname/llmgate/internal/ledger"
	"github.com/yourname/llmgate/internal/ledger/store"
)

func openStore() *store.DB {
	path := os.Getenv("LLMGATE_DB")
	if path == "" {
		path = config.DefaultDBPath
	}
	db, err := store.NewDB(path)
	if err != nil {
		log.Fatalf("Opening ledger: %v", err)
	}
	return db
}

// resolveSession returns the explicitly requested session id or the latest
// one in the store.
func resolveSession(db *store.DB, arg string) string {
	if arg != "" {
		return arg
	}
	id, err := db.GetSessionID()
	if err != nil {
		log.Fatalf("Resolving session: %v", err)
	}
	if id == "" {
		fmt.Println("No sessions recorded yet.")
		os.Exit(0)
	}
	return id
}

func argAt(i int) string {
	if len(os.Args) > i {
		return os.Args[i]
	}
	return ""
}

// StatsCommand prints token and cost totals for one session plus the
// store-wide aggregate.
func StatsCommand() {
	db := openStore()
	defer db.Close()

	sessionID := resolveSession(db, argAt(2))
	stats, err := db.GetSessionStats(sessionID)
	if err != nil {
		log.Fatalf("Session stats: %v", err)
	}
	global, err := db.GetGlobalStats()
	if err != nil {
		log.Fatalf("Global stats: %v", err)
	}

	fmt.Printf("Session %s\n", stats.SessionID)
	fmt.Printf("  Records:           %d (%d failed)\n", stats.TotalRecords, stats.FailedRecords)
	fmt.Printf("  Prompt tokens:     %d\n", stats.PromptTokens)
	fmt.Printf("  Completion tokens: %d\n", stats.CompletionTokens)
	fmt.Printf("  Total cost:        %.6f\n", stats.TotalCost)
	fmt.Println()
	fmt.Printf("All sessions: %d sessions, %d records (%d failed), cost %.6f\n",
		global.TotalSessions, global.TotalRecords, global.FailedRecords, global.TotalCost)
}

// RecordsCommand prints the most recent usage records of the latest session.
func RecordsCommand() {
	db := openStore()
	defer db.Close()

	limit := 10
	if arg := argAt(2); arg != "" {
		n, err := strconv.Atoi(arg)
		if err != nil || n <= 0 {
			log.Fatalf("Invalid record count: %s", arg)
		}
		limit = n
	}

	sessionID := resolveSession(db, "")
	records, err := db.GetRecentRecords(sessionID, limit)
	if err != nil {
		log.Fatalf("Loading records: %v", err)
	}
	if len(records) == 0 {
		fmt.Println("No records in the latest session.")
		return
	}

	for _, rec := range records {
		status := "ok"
		if !rec.Success {
			status = "failed"
		}
		fmt.Printf("[%s] seq=%d %-6s %s prompt=%d completion=%d cost=%.6f\n",
			rec.Timestamp.Format("2006-01-02 15:04:05"), rec.Seq, status,
			rec.Model, rec.PromptTokens, rec.CompletionTokens, rec.Cost)
	}
}

// SessionsCommand lists recorded sessions, newest first.
func SessionsCommand() {
	db := openStore()
	defer db.Close()

	ids, err := db.GetSessionIDs()
	if err != nil {
		log.Fatalf("Loading sessions: %v", err)
	}
	if len(ids) == 0 {
		fmt.Println("No sessions recorded yet.")
		return
	}
	for _, id := range ids {
		stats, err := db.GetSessionStats(id)
		if err != nil {
			log.Fatalf("Session stats: %v", err)
		}
		fmt.Printf("%s  records=%d failed=%d cost=%.6f\n",
			id, stats.TotalRecords, stats.FailedRecords, stats.TotalCost)
	}
}

// VerifyCommand recomputes the hash chain for a session and reports the
// first break, if any.
func VerifyCommand() {
	db := openStore()
	defer db.Close()

	sessionID := resolveSession(db, argAt(2))
	result, err := ledger.VerifyChain(db, sessionID)
	if err != nil {
		log.Fatalf("Verification error: %v", err)
	}

	if result.Valid {
		fmt.Printf("[OK] Chain valid: %d records verified for session %s\n", result.TotalRecords, sessionID)
		if seq, hash, err := db.GetLastRecord(sessionID); err == nil && hash != "" {
			fmt.Printf("Chain head: seq=%d hash=%s\n", seq, hash)
		}
		return
	}
	fmt.Printf("[FAIL] %s (seq %d)\n", result.ErrorMessage, result.FailedAtSeq)
	os.Exit(1)
}
