// Package obslog retains the most recent log entries in a bounded
// in-memory ring, via a logrus hook, so they can be inspected for
// diagnostics without an attached log-watching process.
package obslog

import (
	"container/ring"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const defaultCapacity = 200

// Entry is one captured log line.
type Entry struct {
	Time    time.Time
	Level   logrus.Level
	Message string
}

// RingHook is a logrus.Hook that retains the most recent entries, oldest
// overwritten first, for later inspection without a log-watching process.
type RingHook struct {
	mu  sync.Mutex
	buf *ring.Ring
}

// NewRingHook allocates a hook retaining up to capacity entries. capacity
// <= 0 uses defaultCapacity.
func NewRingHook(capacity int) *RingHook {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &RingHook{buf: ring.New(capacity)}
}

// Levels reports that this hook fires for every log level.
func (h *RingHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

// Fire appends entry to the ring.
func (h *RingHook) Fire(entry *logrus.Entry) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.buf.Value = Entry{Time: entry.Time, Level: entry.Level, Message: entry.Message}
	h.buf = h.buf.Next()
	return nil
}

// Recent returns the retained entries in chronological order (oldest
// first). Unfilled slots are omitted.
func (h *RingHook) Recent() []Entry {
	h.mu.Lock()
	defer h.mu.Unlock()

	entries := make([]Entry, 0, h.buf.Len())
	h.buf.Do(func(v interface{}) {
		if v != nil {
			entries = append(entries, v.(Entry))
		}
	})
	return entries
}
