// Gridfleet - Fleet Operations Live Data Synchronization
// Copyright 2026 Gridfleet Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gridfleet/gridfleet

package writeback

import (
	"fmt"
	"testing"
	"time"

	"github.com/gridfleet/gridfleet/internal/models"
)

func entryAt(id string, success bool, at time.Time) models.HistoryEntry {
	return models.HistoryEntry{
		ID:        id,
		Result:    models.SyncResult{Success: success, Attempts: 1},
		CreatedAt: at,
	}
}

func TestHistoryEvictsOldestAtCapacity(t *testing.T) {
	h := NewHistory(1000)
	base := time.Now()
	for i := 0; i < 1200; i++ {
		h.Append(entryAt(fmt.Sprintf("op-%d", i), true, base.Add(time.Duration(i)*time.Millisecond)))
	}
	if h.Len() != 1000 {
		t.Fatalf("Len() = %d, want 1000", h.Len())
	}
	entries := h.Entries()
	if entries[0].ID != "op-200" {
		t.Errorf("oldest = %s, want op-200", entries[0].ID)
	}
	if entries[len(entries)-1].ID != "op-1199" {
		t.Errorf("newest = %s, want op-1199", entries[len(entries)-1].ID)
	}
}

func TestHistoryLastSuccessIgnoresFailures(t *testing.T) {
	h := NewHistory(10)
	base := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	h.Append(entryAt("a", true, base))
	h.Append(entryAt("b", false, base.Add(time.Hour)))
	if got := h.LastSuccess(); !got.Equal(base) {
		t.Errorf("LastSuccess() = %s, want %s", got, base)
	}
}

func TestHistoryFailuresSince(t *testing.T) {
	h := NewHistory(10)
	now := time.Now()
	h.Append(entryAt("old", false, now.Add(-48*time.Hour)))
	h.Append(entryAt("recent", false, now.Add(-time.Hour)))
	h.Append(entryAt("ok", true, now))
	if got := h.FailuresSince(now.Add(-24 * time.Hour)); got != 1 {
		t.Errorf("FailuresSince() = %d, want 1", got)
	}
}

func TestHistoryRecentSuccessesNewestFirstWithLimit(t *testing.T) {
	h := NewHistory(10)
	now := time.Now()
	for i := 0; i < 5; i++ {
		h.Append(entryAt(fmt.Sprintf("s-%d", i), true, now.Add(time.Duration(i)*time.Minute)))
	}
	got := h.RecentSuccesses(now.Add(-time.Hour), 3)
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[0].ID != "s-4" || got[2].ID != "s-2" {
		t.Errorf("order = %s..%s, want s-4..s-2", got[0].ID, got[2].ID)
	}
}
