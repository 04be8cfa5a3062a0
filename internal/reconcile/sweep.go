// Gridfleet - Fleet Operations Live Data Synchronization
// Copyright 2026 Gridfleet Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gridfleet/gridfleet

// Package reconcile detects and repairs drift between locally recorded
// successful writes and backend ground truth. A sweep reprocesses the
// failure queue, then spot-checks recent successful history entries
// against the backend.
package reconcile

import (
	"context"
	"errors"
	"time"

	"github.com/gridfleet/gridfleet/internal/backend"
	"github.com/gridfleet/gridfleet/internal/logging"
	"github.com/gridfleet/gridfleet/internal/metrics"
	"github.com/gridfleet/gridfleet/internal/models"
	"github.com/gridfleet/gridfleet/internal/writeback"
)

// Engine is the write-back surface the sweep needs. *writeback.Engine
// satisfies it.
type Engine interface {
	Submit(ctx context.Context, op models.Operation) models.SyncResult
	Reprocess(ctx context.Context) (models.ReprocessReport, error)
	History() *writeback.History
}

// TableResolver maps a resource kind to its backend table. The sweep
// needs it to re-fetch rows for spot checks.
type TableResolver func(kind models.ResourceKind) (string, error)

// Sweep runs reconciliation passes. Construct with NewSweep.
type Sweep struct {
	engine    Engine
	client    backend.Client
	tables    TableResolver
	window    time.Duration
	spotLimit int
}

// NewSweep wires a sweep. window bounds how far back spot checks look;
// spotLimit caps how many successful entries are re-fetched per run.
func NewSweep(engine Engine, client backend.Client, tables TableResolver, window time.Duration, spotLimit int) *Sweep {
	if window <= 0 {
		window = 24 * time.Hour
	}
	if spotLimit <= 0 {
		spotLimit = 100
	}
	return &Sweep{
		engine:    engine,
		client:    client,
		tables:    tables,
		window:    window,
		spotLimit: spotLimit,
	}
}

// Run executes one full sweep. It never returns an error for
// individual record problems; those are folded into the report. Only a
// cancelled context aborts early.
func (s *Sweep) Run(ctx context.Context) models.SweepReport {
	var report models.SweepReport

	// Phase 1: drain the failure queue through the normal write path.
	reprocessed, err := s.engine.Reprocess(ctx)
	if err != nil {
		logging.Error().Err(err).Msg("reconcile: reprocessing failure queue")
		report.Errors++
	} else {
		report.Checked += reprocessed.Processed
		report.Fixed += reprocessed.Succeeded
		report.Errors += reprocessed.Failed
	}

	// Phase 2: spot-check recent successful writes against the backend.
	cutoff := time.Now().Add(-s.window)
	for _, entry := range s.engine.History().RecentSuccesses(cutoff, s.spotLimit) {
		if ctx.Err() != nil {
			break
		}
		s.checkEntry(ctx, entry, &report)
	}

	metrics.ReconcileRuns.Inc()
	logging.Info().
		Int("checked", report.Checked).
		Int("inconsistencies", report.Inconsistencies).
		Int("fixed", report.Fixed).
		Int("errors", report.Errors).
		Msg("reconciliation sweep finished")
	return report
}

// checkEntry verifies one recorded success still holds on the backend.
// Any panic or error is absorbed into the report; one bad record must
// not abort the sweep over the remaining ones.
func (s *Sweep) checkEntry(ctx context.Context, entry models.HistoryEntry, report *models.SweepReport) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error().Str("operation_id", entry.ID).Any("panic", r).Msg("reconcile: record check panicked")
			report.Errors++
		}
	}()

	op := entry.Operation
	// Deletes leave nothing to re-fetch; creates without a returned id
	// cannot be checked either.
	resourceID := op.ResourceID
	if op.Action == models.ActionDelete || resourceID == "" {
		return
	}

	table, err := s.tables(op.Resource)
	if err != nil {
		report.Errors++
		return
	}

	report.Checked++
	_, err = s.client.QueryOne(ctx, table, resourceID)
	switch {
	case err == nil:
		return
	case errors.Is(err, backend.ErrNotFound):
		report.Inconsistencies++
		metrics.ReconcileInconsistencies.Inc()
		if op.Action != models.ActionCreate {
			// An updated row vanished; flag for operators, no
			// automatic repair.
			logging.Warn().
				Str("operation_id", op.ID).
				Str("table", table).
				Str("resource_id", resourceID).
				Msg("reconcile: previously updated row missing from backend")
			return
		}
		logging.Warn().
			Str("operation_id", op.ID).
			Str("table", table).
			Str("resource_id", resourceID).
			Msg("reconcile: created row missing, resubmitting")
		if result := s.engine.Submit(ctx, op); result.Success {
			report.Fixed++
		} else {
			report.Errors++
		}
	default:
		// Transport or permission trouble: flagged, not repaired.
		report.Inconsistencies++
		metrics.ReconcileInconsistencies.Inc()
		logging.Warn().
			Str("operation_id", op.ID).
			Err(err).
			Msg("reconcile: spot check failed")
	}
}

// StartPeriodic runs one immediate sweep, then one per interval until
// the returned stop function is called.
func (s *Sweep) StartPeriodic(ctx context.Context, interval time.Duration) (stop func()) {
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(runCtx)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				s.Run(runCtx)
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}
