package domain

import (
	"sync"
	"time"
)

// LogLevel classifies a job log entry.
type LogLevel string

const (
	LogInfo    LogLevel = "info"
	LogWarning LogLevel = "warning"
	LogError   LogLevel = "error"
	LogSuccess LogLevel = "success"
)

// LogEntry is a monitoring note attached to a job.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     LogLevel  `json:"level"`
	Message   string    `json:"message"`
	JobID     string    `json:"job_id"`
}

// DefaultLogCapacity is the per-job entry limit.
const DefaultLogCapacity = 50

// LogBuffer is a fixed-capacity ring of log entries; the oldest entry is
// overwritten once full. Safe for concurrent use.
type LogBuffer struct {
	mu      sync.Mutex
	entries []LogEntry
	next    int
	full    bool
}

// NewLogBuffer creates a buffer holding at most capacity entries.
func NewLogBuffer(capacity int) *LogBuffer {
	if capacity <= 0 {
		capacity = DefaultLogCapacity
	}
	return &LogBuffer{entries: make([]LogEntry, capacity)}
}

// Append adds an entry, evicting the oldest when full.
func (b *LogBuffer) Append(e LogEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries[b.next] = e
	b.next = (b.next + 1) % len(b.entries)
	if b.next == 0 {
		b.full = true
	}
}

// Len returns the number of stored entries.
func (b *LogBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.full {
		return len(b.entries)
	}
	return b.next
}

// Entries returns stored entries oldest first.
func (b *LogBuffer) Entries() []LogEntry {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.full {
		return append([]LogEntry(nil), b.entries[:b.next]...)
	}
	out := make([]LogEntry, 0, len(b.entries))
	out = append(out, b.entries[b.next:]...)
	return append(out, b.entries[:b.next]...)
}
