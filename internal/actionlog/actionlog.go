// Package actionlog appends one structured entry per mutation to a
// rotating JSONL sink, backing the action_log_* configuration keys
// (spec §6). It is deliberately separate from the entity JSONL streams:
// losing it never affects correctness, only the audit trail.
package actionlog

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Entry is a single append-only mutation record, grounded on the
// reference's internal/audit.Entry shape (generic Kind + common fields +
// an Extra bag for everything else).
type Entry struct {
	Kind      string         `json:"kind"`
	EntityID  string         `json:"entity_id,omitempty"`
	Actor     string         `json:"actor,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	Extra     map[string]any `json:"extra,omitempty"`
}

// Logger appends Entry records to a lumberjack-rotated file.
type Logger struct {
	mu      sync.Mutex
	sink    *lumberjack.Logger
	enabled bool
}

// Config mirrors the recognized action_log_* configuration keys (spec §6).
type Config struct {
	Enabled     bool
	Sanitize    bool
	Path        string
	MaxEntries  int
	MaxAgeDays  int
}

// New constructs a Logger from Config. When Enabled is false, Append is a
// no-op so callers don't need to branch on configuration at every call
// site.
func New(cfg Config) *Logger {
	if !cfg.Enabled || cfg.Path == "" {
		return &Logger{enabled: false}
	}
	return &Logger{
		enabled: true,
		sink: &lumberjack.Logger{
			Filename: cfg.Path,
			MaxAge:   cfg.MaxAgeDays,
			MaxBackups: 3,
			Compress:   true,
		},
	}
}

// Append writes one entry. Sanitize (from action_log_sanitize) strips the
// Extra bag, which may carry free-form descriptions, before writing.
func (l *Logger) Append(e Entry, sanitize bool) error {
	if l == nil || !l.enabled {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if sanitize {
		e.Extra = nil
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("actionlog: marshal entry: %w", err)
	}
	data = append(data, '\n')
	if _, err := l.sink.Write(data); err != nil {
		return fmt.Errorf("actionlog: write entry: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying sink.
func (l *Logger) Close() error {
	if l == nil || !l.enabled {
		return nil
	}
	return l.sink.Close()
}
