// Gridfleet - Fleet Operations Live Data Synchronization
// Copyright 2026 Gridfleet Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gridfleet/gridfleet

package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gridfleet/gridfleet/internal/backend"
	"github.com/gridfleet/gridfleet/internal/models"
	"github.com/gridfleet/gridfleet/internal/writeback"
)

// stubEngine lets tests script reprocess results and submissions.
type stubEngine struct {
	history      *writeback.History
	reprocess    models.ReprocessReport
	reprocessErr error
	submitted    []models.Operation
	submitOK     bool
}

func (e *stubEngine) Submit(_ context.Context, op models.Operation) models.SyncResult {
	e.submitted = append(e.submitted, op)
	return models.SyncResult{Success: e.submitOK, Attempts: 1}
}

func (e *stubEngine) Reprocess(context.Context) (models.ReprocessReport, error) {
	return e.reprocess, e.reprocessErr
}

func (e *stubEngine) History() *writeback.History {
	return e.history
}

func tables(kind models.ResourceKind) (string, error) {
	if kind == models.ResourceVehicle {
		return "vehicles", nil
	}
	return "", errors.New("unknown kind")
}

func successEntry(id, resourceID string, action models.SyncAction, at time.Time) models.HistoryEntry {
	return models.HistoryEntry{
		ID: id,
		Operation: models.Operation{
			ID:         id,
			Resource:   models.ResourceVehicle,
			ResourceID: resourceID,
			Action:     action,
			Payload:    map[string]any{"plate": "ABC1D23", "model": "Sprinter"},
		},
		Result:    models.SyncResult{Success: true, Attempts: 1},
		CreatedAt: at,
	}
}

func TestRunFoldsReprocessCounts(t *testing.T) {
	engine := &stubEngine{
		history:   writeback.NewHistory(10),
		reprocess: models.ReprocessReport{Processed: 3, Succeeded: 2, Failed: 1},
	}
	s := NewSweep(engine, backend.NewMemoryClient(), tables, 24*time.Hour, 100)

	report := s.Run(context.Background())
	if report.Checked != 3 || report.Fixed != 2 || report.Errors != 1 {
		t.Errorf("report = %+v, want reprocess counts folded in", report)
	}
}

func TestRunSpotCheckConsistentRow(t *testing.T) {
	client := backend.NewMemoryClient()
	client.Seed("vehicles", "v1", backend.Row{"plate": "ABC1D23"})
	engine := &stubEngine{history: writeback.NewHistory(10)}
	engine.history.Append(successEntry("op-1", "v1", models.ActionUpdate, time.Now()))

	s := NewSweep(engine, client, tables, 24*time.Hour, 100)
	report := s.Run(context.Background())
	if report.Checked != 1 || report.Inconsistencies != 0 {
		t.Errorf("report = %+v, want one clean check", report)
	}
}

func TestRunResubmitsMissingCreate(t *testing.T) {
	client := backend.NewMemoryClient() // vehicle v1 absent
	engine := &stubEngine{history: writeback.NewHistory(10), submitOK: true}
	engine.history.Append(successEntry("op-1", "v1", models.ActionCreate, time.Now()))

	s := NewSweep(engine, client, tables, 24*time.Hour, 100)
	report := s.Run(context.Background())
	if report.Inconsistencies != 1 {
		t.Errorf("inconsistencies = %d, want 1", report.Inconsistencies)
	}
	if report.Fixed != 1 {
		t.Errorf("fixed = %d, want 1", report.Fixed)
	}
	if len(engine.submitted) != 1 || engine.submitted[0].ID != "op-1" {
		t.Errorf("submitted = %+v, want original operation resubmitted", engine.submitted)
	}
}

func TestRunMissingUpdateFlaggedNotRepaired(t *testing.T) {
	client := backend.NewMemoryClient()
	engine := &stubEngine{history: writeback.NewHistory(10), submitOK: true}
	engine.history.Append(successEntry("op-1", "v1", models.ActionUpdate, time.Now()))

	s := NewSweep(engine, client, tables, 24*time.Hour, 100)
	report := s.Run(context.Background())
	if report.Inconsistencies != 1 || report.Fixed != 0 {
		t.Errorf("report = %+v, want flagged without repair", report)
	}
	if len(engine.submitted) != 0 {
		t.Errorf("submitted = %+v, want none", engine.submitted)
	}
}

func TestRunBackendErrorFlaggedWithoutRepair(t *testing.T) {
	client := backend.NewMemoryClient()
	client.FailWith = errors.New("backend unreachable")
	engine := &stubEngine{history: writeback.NewHistory(10), submitOK: true}
	engine.history.Append(successEntry("op-1", "v1", models.ActionCreate, time.Now()))

	s := NewSweep(engine, client, tables, 24*time.Hour, 100)
	report := s.Run(context.Background())
	if report.Inconsistencies != 1 {
		t.Errorf("inconsistencies = %d, want 1", report.Inconsistencies)
	}
	if len(engine.submitted) != 0 {
		t.Errorf("submitted = %+v, want no repair on ambiguous error", engine.submitted)
	}
}

func TestRunSkipsDeletesAndOldEntries(t *testing.T) {
	client := backend.NewMemoryClient()
	engine := &stubEngine{history: writeback.NewHistory(10)}
	engine.history.Append(successEntry("op-del", "v1", models.ActionDelete, time.Now()))
	engine.history.Append(successEntry("op-old", "v2", models.ActionCreate, time.Now().Add(-48*time.Hour)))

	s := NewSweep(engine, client, tables, 24*time.Hour, 100)
	report := s.Run(context.Background())
	if report.Checked != 0 {
		t.Errorf("checked = %d, want 0 (delete skipped, old entry outside window)", report.Checked)
	}
}

func TestRunOneBadRecordDoesNotAbortSweep(t *testing.T) {
	client := backend.NewMemoryClient()
	client.Seed("vehicles", "v2", backend.Row{"plate": "OK"})
	engine := &stubEngine{history: writeback.NewHistory(10)}
	// Unknown kind forces a resolver error for the first record.
	bad := successEntry("op-bad", "x1", models.ActionUpdate, time.Now())
	bad.Operation.Resource = models.ResourceKind("mystery")
	engine.history.Append(bad)
	engine.history.Append(successEntry("op-good", "v2", models.ActionUpdate, time.Now().Add(time.Second)))

	s := NewSweep(engine, client, tables, 24*time.Hour, 100)
	report := s.Run(context.Background())
	if report.Errors != 1 {
		t.Errorf("errors = %d, want 1 for the bad record", report.Errors)
	}
	if report.Checked != 1 {
		t.Errorf("checked = %d, want the good record still checked", report.Checked)
	}
}

// countingEngine counts Reprocess calls so periodic scheduling can be
// observed.
type countingEngine struct {
	stubEngine
	mu    sync.Mutex
	calls int
}

func (e *countingEngine) Reprocess(ctx context.Context) (models.ReprocessReport, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	return e.stubEngine.Reprocess(ctx)
}

func (e *countingEngine) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

func TestStartPeriodicRunsImmediatelyAndStops(t *testing.T) {
	engine := &countingEngine{stubEngine: stubEngine{history: writeback.NewHistory(10)}}
	s := NewSweep(engine, backend.NewMemoryClient(), tables, 24*time.Hour, 100)

	stop := s.StartPeriodic(context.Background(), time.Hour)

	// The immediate run happens before the first tick.
	deadline := time.Now().Add(time.Second)
	for engine.callCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if engine.callCount() != 1 {
		t.Errorf("sweeps = %d, want exactly the immediate run", engine.callCount())
	}

	stop()
	after := engine.callCount()
	time.Sleep(50 * time.Millisecond)
	if engine.callCount() != after {
		t.Error("sweep ran after stop")
	}
}
