// Gridfleet - Fleet Operations Live Data Synchronization
// Copyright 2026 Gridfleet Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gridfleet/gridfleet

package writeback

import (
	"sync"
	"time"

	"github.com/gridfleet/gridfleet/internal/models"
)

// History is a bounded in-memory ring of sync attempts. When full, the
// oldest entry is evicted. All methods are safe for concurrent use.
type History struct {
	mu      sync.Mutex
	entries []models.HistoryEntry
	start   int
	count   int
}

// NewHistory builds a ring holding at most capacity entries.
func NewHistory(capacity int) *History {
	if capacity < 1 {
		capacity = 1000
	}
	return &History{entries: make([]models.HistoryEntry, capacity)}
}

// Append records an entry, evicting the oldest when the ring is full.
func (h *History) Append(entry models.HistoryEntry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.count < len(h.entries) {
		h.entries[(h.start+h.count)%len(h.entries)] = entry
		h.count++
		return
	}
	h.entries[h.start] = entry
	h.start = (h.start + 1) % len(h.entries)
}

// Len reports the number of retained entries.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

// Entries returns retained entries oldest first.
func (h *History) Entries() []models.HistoryEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]models.HistoryEntry, 0, h.count)
	for i := 0; i < h.count; i++ {
		out = append(out, h.entries[(h.start+i)%len(h.entries)])
	}
	return out
}

// LastSuccess returns the timestamp of the most recent successful
// entry, or the zero time when none exists.
func (h *History) LastSuccess() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	var last time.Time
	for i := 0; i < h.count; i++ {
		e := h.entries[(h.start+i)%len(h.entries)]
		if e.Result.Success && e.CreatedAt.After(last) {
			last = e.CreatedAt
		}
	}
	return last
}

// FailuresSince counts failed entries recorded after the cutoff.
func (h *History) FailuresSince(cutoff time.Time) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for i := 0; i < h.count; i++ {
		e := h.entries[(h.start+i)%len(h.entries)]
		if !e.Result.Success && e.CreatedAt.After(cutoff) {
			n++
		}
	}
	return n
}

// RecentSuccesses returns up to limit successful entries recorded
// after the cutoff, most recent first.
func (h *History) RecentSuccesses(cutoff time.Time, limit int) []models.HistoryEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []models.HistoryEntry
	// Walk newest to oldest so the limit keeps the most recent.
	for i := h.count - 1; i >= 0; i-- {
		e := h.entries[(h.start+i)%len(h.entries)]
		if e.Result.Success && e.CreatedAt.After(cutoff) {
			out = append(out, e)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out
}
