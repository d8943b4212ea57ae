// Package oplog keeps the bounded in-app diagnostic log shown by the
// delivery panel.
package oplog

import (
	"sync"
	"time"
)

// DefaultCapacity is the number of entries kept when New is given zero.
const DefaultCapacity = 50

// Type classifies an entry.
type Type string

// Entry types.
const (
	Info    Type = "info"
	Success Type = "success"
	Warning Type = "warning"
	Error   Type = "error"
)

// Entry is one log line.
type Entry struct {
	Message   string    `json:"message"`
	Type      Type      `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// Log is an append-only ring of the most recent entries. It is safe for
// concurrent use.
type Log struct {
	mu       sync.Mutex
	entries  []Entry
	capacity int
	now      func() time.Time
}

// Option configures a Log.
type Option func(*Log)

// WithClock replaces time.Now for timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Log) { l.now = now }
}

// New creates a log holding at most capacity entries.
func New(capacity int, opts ...Option) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	l := &Log{
		entries:  make([]Entry, 0, capacity),
		capacity: capacity,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Add appends an entry, evicting the oldest one when the log is full.
// Unknown types are stored as Info.
func (l *Log) Add(message string, typ Type) Entry {
	switch typ {
	case Info, Success, Warning, Error:
	default:
		typ = Info
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	e := Entry{Message: message, Type: typ, Timestamp: l.now()}
	if len(l.entries) == l.capacity {
		copy(l.entries, l.entries[1:])
		l.entries = l.entries[:len(l.entries)-1]
	}
	l.entries = append(l.entries, e)
	return e
}

// Entries returns a copy of the entries, oldest first.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of entries held.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Capacity returns the maximum number of entries.
func (l *Log) Capacity() int { return l.capacity }

// Clear removes every entry.
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = l.entries[:0]
}
