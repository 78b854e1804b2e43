// Package history keeps a bounded in-memory log of scrape runs.
package history

import (
	"sync"
	"time"

	"github.com/use-agent/scrapepal/models"
)

// DefaultMaxEntries is used when New is given a non-positive capacity.
const DefaultMaxEntries = 500

// Store is an append-only ring of history entries. When full, the oldest
// entry is dropped. It is safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	entries []models.HistoryEntry
	start   int
	max     int
	now     func() time.Time
}

// New creates a Store holding at most maxEntries rows.
func New(maxEntries int) *Store {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Store{
		entries: make([]models.HistoryEntry, 0, maxEntries),
		max:     maxEntries,
		now:     time.Now,
	}
}

// Record flattens r into a history row and appends it.
func (s *Store) Record(r *models.ScrapeResult) {
	if r == nil {
		return
	}
	s.Append(r.HistoryEntry(s.now().UTC()))
}

// Append adds an entry, evicting the oldest when at capacity.
func (s *Store) Append(e models.HistoryEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.entries) < s.max {
		s.entries = append(s.entries, e)
		return
	}
	s.entries[s.start] = e
	s.start = (s.start + 1) % s.max
}

// List returns the entries oldest first.
func (s *Store) List() []models.HistoryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.HistoryEntry, 0, len(s.entries))
	out = append(out, s.entries[s.start:]...)
	out = append(out, s.entries[:s.start]...)
	return out
}

// Len returns the number of stored entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Stats summarises the stored entries.
func (s *Store) Stats() models.HistoryStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := models.HistoryStats{
		Total:    len(s.entries),
		ByMethod: map[string]int{},
	}
	for _, e := range s.entries {
		if e.Status == "success" {
			st.Succeeded++
		} else {
			st.Failed++
		}
		if e.Method != "" {
			st.ByMethod[e.Method]++
		}
	}
	return st
}
