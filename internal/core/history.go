package core

import "sync"

// DefaultHistoryRetention bounds how many entries the in-memory log keeps.
const DefaultHistoryRetention = 100

// History is the append-only log of finished runs, kept in completion order.
type History struct {
	mu        sync.RWMutex
	entries   []HistoryEntry
	retention int
}

// NewHistory creates a log that keeps at most retention entries in memory.
func NewHistory(retention int) *History {
	if retention <= 0 {
		retention = DefaultHistoryRetention
	}
	return &History{retention: retention}
}

// Record appends an entry. Safe for concurrent use.
func (h *History) Record(entry HistoryEntry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, entry)
	if overflow := len(h.entries) - h.retention; overflow > 0 {
		h.entries = append([]HistoryEntry(nil), h.entries[overflow:]...)
	}
}

// Seed prepends previously persisted entries, oldest first. Used once at startup.
func (h *History) Seed(entries []HistoryEntry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	merged := make([]HistoryEntry, 0, len(entries)+len(h.entries))
	merged = append(merged, entries...)
	merged = append(merged, h.entries...)
	if overflow := len(merged) - h.retention; overflow > 0 {
		merged = merged[overflow:]
	}
	h.entries = merged
}

// Tail returns the last n entries in chronological order.
func (h *History) Tail(n int) []HistoryEntry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if n <= 0 || len(h.entries) == 0 {
		return []HistoryEntry{}
	}
	if n > len(h.entries) {
		n = len(h.entries)
	}
	out := make([]HistoryEntry, n)
	copy(out, h.entries[len(h.entries)-n:])
	return out
}

// Latest returns the newest entry recorded for name.
func (h *History) Latest(name string) (HistoryEntry, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for i := len(h.entries) - 1; i >= 0; i-- {
		if h.entries[i].Name == name {
			return h.entries[i], true
		}
	}
	return HistoryEntry{}, false
}

func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}
