package logging

import (
	"encoding/json"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/yourname/llmgate/internal/assert"
)

const (
	levelDebug = iota
	levelInfo
	levelWarn
	levelError
	levelCritical
)

// Fields captures structured context for JSON log entries.
// Include RequestID for correlation with the JSON-RPC exchange that
// produced the entry.
type Fields struct {
	RequestID string `json:"request_id,omitempty"`
	Tool      string `json:"tool,omitempty"`
	Model     string `json:"model,omitempty"`
	RecordID  string `json:"record_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Component string `json:"component,omitempty"`
	Count     int    `json:"count,omitempty"`
	Error     string `json:"error,omitempty"`
}

type entry struct {
	Timestamp string `json:"ts"`
	Level     string `json:"level"`
	Message   string `json:"msg"`
	Fields
}

var (
	levelOnce sync.Once
	minLevel  = levelInfo

	redactMu sync.RWMutex
	redactor func(string) string

	// Diagnostics must never reach stdout: that stream carries protocol
	// frames only.
	sink = log.New(os.Stderr, "", 0)
)

// SetLevel overrides the minimum log level, taking precedence over
// LLMGATE_LOG_LEVEL. Call at startup before serving; unknown names are
// ignored.
func SetLevel(name string) {
	levelOnce.Do(func() {})
	if n, ok := parseLevel(name); ok {
		minLevel = n
	}
}

// SetRedactor installs a scrubbing function applied to every message and
// error field before it is written. Call once at startup, before serving.
func SetRedactor(fn func(string) string) {
	redactMu.Lock()
	redactor = fn
	redactMu.Unlock()
}

func scrub(s string) string {
	redactMu.RLock()
	fn := redactor
	redactMu.RUnlock()
	if fn == nil {
		return s
	}
	return fn(s)
}

// Debug logs a debug-level message with structured fields in JSON format.
// Respects the LLMGATE_LOG_LEVEL environment variable.
func Debug(msg string, fields Fields) {
	logWithLevel("debug", msg, fields)
}

// Info logs an info-level message with structured fields in JSON format.
// Default log level if LLMGATE_LOG_LEVEL is unset.
func Info(msg string, fields Fields) {
	logWithLevel("info", msg, fields)
}

// Warn logs a warning-level message with structured fields in JSON format.
// Use for recoverable errors, including swallowed ledger failures.
func Warn(msg string, fields Fields) {
	logWithLevel("warn", msg, fields)
}

// Error logs an error-level message with structured fields in JSON format.
func Error(msg string, fields Fields) {
	logWithLevel("error", msg, fields)
}

// Critical logs a critical-level message with structured fields in JSON format.
// Use for fatal conditions such as an unrecoverable transport failure.
func Critical(msg string, fields Fields) {
	logWithLevel("critical", msg, fields)
}

func logWithLevel(level, msg string, fields Fields) {
	if err := assert.Check(msg != "", "log message must not be empty"); err != nil {
		return
	}
	if err := assert.Check(len(msg) <= 2048, "log message too large: %d", len(msg)); err != nil {
		return
	}
	if !shouldLog(level) {
		return
	}

	// Every string member is scrubbed, not just the message: caller content
	// (tool names, request ids, model overrides) lands in these fields.
	fields.RequestID = scrub(fields.RequestID)
	fields.Tool = scrub(fields.Tool)
	fields.Model = scrub(fields.Model)
	fields.RecordID = scrub(fields.RecordID)
	fields.SessionID = scrub(fields.SessionID)
	fields.Error = scrub(fields.Error)
	out := entry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     level,
		Message:   scrub(msg),
		Fields:    fields,
	}
	payload, err := json.Marshal(out)
	if err != nil {
		sink.Printf("{\"level\":\"error\",\"msg\":\"log_marshal_failed\",\"error\":%q}", err.Error())
		return
	}
	sink.Print(string(payload))
}

func shouldLog(level string) bool {
	levelOnce.Do(func() {
		if n, ok := parseLevel(os.Getenv("LLMGATE_LOG_LEVEL")); ok {
			minLevel = n
		}
	})

	n, ok := parseLevel(level)
	if !ok {
		n = levelInfo
	}
	return n >= minLevel
}

func parseLevel(name string) (int, bool) {
	switch strings.ToLower(name) {
	case "debug":
		return levelDebug, true
	case "info":
		return levelInfo, true
	case "warn", "warning":
		return levelWarn, true
	case "error":
		return levelError, true
	case "critical":
		return levelCritical, true
	default:
		return 0, false
	}
}
