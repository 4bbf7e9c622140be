package transcript

import (
	"context"
	"sync"
	"time"
)

// ClearPrompt is the question asked before wiping a non-empty log.
const ClearPrompt = "Clear all transcript entries?"

// Entry is one finalized utterance. Entries are never mutated after Append.
type Entry struct {
	ID           int64
	Text         string
	OriginalText string
	Confidence   float64
	Speaker      string
	Timestamp    time.Time
}

// ConfidenceLevel buckets confidence for display: high >= 0.9, medium >= 0.7.
func (e Entry) ConfidenceLevel() string {
	switch {
	case e.Confidence >= 0.9:
		return "high"
	case e.Confidence >= 0.7:
		return "medium"
	default:
		return "low"
	}
}

// Confirmer asks the user a yes/no question.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) (bool, error)
}

// ConfirmFunc adapts a function to the Confirmer interface.
type ConfirmFunc func(context.Context, string) (bool, error)

func (f ConfirmFunc) Confirm(ctx context.Context, prompt string) (bool, error) {
	return f(ctx, prompt)
}

// Log is the ordered transcript for one owner process.
type Log struct {
	mu      sync.RWMutex
	entries []Entry
	lastID  int64
	now     func() time.Time
}

// NewLog returns an empty log.
func NewLog() *Log {
	return &Log{now: time.Now}
}

// NextID returns a millisecond-based id strictly greater than any issued before.
func (l *Log) NextID() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	id := l.now().UnixMilli()
	if id <= l.lastID {
		id = l.lastID + 1
	}
	l.lastID = id
	return id
}

// Append adds entry at the end of the log. A zero ID is assigned here.
func (l *Log) Append(entry Entry) Entry {
	if entry.ID == 0 {
		entry.ID = l.NextID()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if entry.ID > l.lastID {
		l.lastID = entry.ID
	}
	l.entries = append(l.entries, entry)
	return entry
}

// Clear removes all entries after confirmation. An empty log is left alone
// without prompting. It reports whether entries were removed.
func (l *Log) Clear(ctx context.Context, confirm Confirmer) (bool, error) {
	if l.Count() == 0 {
		return false, nil
	}
	if confirm != nil {
		ok, err := confirm.Confirm(ctx, ClearPrompt)
		if err != nil || !ok {
			return false, err
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
	return true, nil
}

// All returns a copy of the entries in append order.
func (l *Log) All() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Count returns the number of entries.
func (l *Log) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Last returns the most recent entry.
func (l *Log) Last() (Entry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.entries) == 0 {
		return Entry{}, false
	}
	return l.entries[len(l.entries)-1], true
}
