// Gridfleet - Fleet Operations Live Data Synchronization
// Copyright 2026 Gridfleet Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gridfleet/gridfleet

// Package writeback applies logical fleet mutations to the backend with
// validation, bounded retry, a durable failure queue and a bounded sync
// history. It is the single write path for everything the admin surface
// edits: vehicles, drivers, routes, maintenance and the rest.
package writeback

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gridfleet/gridfleet/internal/backend"
	"github.com/gridfleet/gridfleet/internal/logging"
	"github.com/gridfleet/gridfleet/internal/metrics"
	"github.com/gridfleet/gridfleet/internal/models"
	"github.com/gridfleet/gridfleet/internal/retry"
)

const (
	// engineMaxAttempts is this engine's own ceiling. It is deliberately
	// independent from the generic retry executor's default of 3.
	engineMaxAttempts = 5
	engineInitialWait = time.Second
)

// Engine is the write-back sync engine. Construct with NewEngine; all
// methods are safe for concurrent use.
type Engine struct {
	client  backend.Client
	store   FailureStore
	history *History

	// sleep is swapped in tests so the backoff schedule does not slow
	// the suite down.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewEngine wires the engine to its backend, failure queue and history
// ring.
func NewEngine(client backend.Client, store FailureStore, history *History) *Engine {
	return &Engine{
		client:  client,
		store:   store,
		history: history,
		sleep:   sleepCtx,
	}
}

// Submit applies one logical mutation. The returned result always
// carries the attempt count; Submit itself only errors on internal
// bookkeeping failures, never on backend rejection (that is the
// result's job).
func (e *Engine) Submit(ctx context.Context, op models.Operation) models.SyncResult {
	op.EnsureID()
	log := logging.With().
		Str("operation_id", op.ID).
		Str("resource", string(op.Resource)).
		Str("action", string(op.Action)).
		Logger()

	// Validation runs before any backend call and is never retried.
	if err := validatePayload(op.Resource, backend.Row(op.Payload)); err != nil {
		metrics.SyncOperations.WithLabelValues("invalid").Inc()
		log.Warn().Err(err).Msg("rejecting invalid operation")
		result := failureResult(1, err)
		e.record(op, result)
		return result
	}

	table, err := tableFor(op.Resource)
	if err != nil {
		metrics.SyncOperations.WithLabelValues("invalid").Inc()
		log.Warn().Err(err).Msg("rejecting operation for unknown resource kind")
		result := failureResult(1, err)
		e.record(op, result)
		return result
	}

	payload := mapPayload(op.Resource, backend.Row(op.Payload))

	var lastErr error
	for attempt := 1; attempt <= engineMaxAttempts; attempt++ {
		lastErr = e.execute(ctx, table, op, payload)
		if lastErr == nil {
			now := time.Now()
			result := models.SyncResult{Success: true, Attempts: attempt, SyncedAt: &now}
			metrics.SyncOperations.WithLabelValues("success").Inc()
			if attempt > 1 {
				log.Info().Int("attempts", attempt).Msg("sync succeeded after retry")
			} else {
				log.Debug().Msg("sync succeeded")
			}
			e.record(op, result)
			// Success clears any stale failure record for this id.
			if err := e.store.Delete(op.ID); err != nil {
				log.Error().Err(err).Msg("clearing failure record")
			}
			e.updateQueueGauge()
			return result
		}

		if permanent(lastErr) {
			log.Warn().Err(lastErr).Int("attempt", attempt).Msg("permanent backend error, not retrying")
			result := failureResult(attempt, lastErr)
			e.recordExhausted(op, result)
			return result
		}
		if attempt == engineMaxAttempts {
			break
		}

		delay := retry.Backoff(attempt, engineInitialWait, 0, 2)
		metrics.SyncRetries.Inc()
		log.Debug().
			Int("attempt", attempt).
			Dur("delay", delay).
			Err(lastErr).
			Msg("sync attempt failed, backing off")
		if err := e.sleep(ctx, delay); err != nil {
			result := failureResult(attempt, fmt.Errorf("aborted while backing off: %w", err))
			e.recordExhausted(op, result)
			return result
		}
	}

	log.Error().Err(lastErr).Int("attempts", engineMaxAttempts).Msg("sync exhausted retry budget")
	result := failureResult(engineMaxAttempts, lastErr)
	e.recordExhausted(op, result)
	return result
}

// execute performs the single backend call for an operation.
func (e *Engine) execute(ctx context.Context, table string, op models.Operation, payload backend.Row) error {
	switch op.Action {
	case models.ActionCreate:
		_, err := e.client.Insert(ctx, table, payload)
		return err
	case models.ActionUpdate:
		if op.ResourceID == "" {
			return errPermanent{errors.New("ID do recurso é obrigatório para atualização")}
		}
		_, err := e.client.Update(ctx, table, op.ResourceID, payload)
		return err
	case models.ActionDelete:
		if op.ResourceID == "" {
			return errPermanent{errors.New("ID do recurso é obrigatório para deleção")}
		}
		return e.client.Delete(ctx, table, op.ResourceID)
	default:
		return errPermanent{fmt.Errorf("ação desconhecida: %s", op.Action)}
	}
}

// Reprocess resubmits every queued failure through the normal path.
// Entries that succeed are removed from the queue by Submit itself.
func (e *Engine) Reprocess(ctx context.Context) (models.ReprocessReport, error) {
	records, err := e.store.List()
	if err != nil {
		return models.ReprocessReport{}, err
	}
	var report models.ReprocessReport
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Processed++
		result := e.Submit(ctx, rec.Operation)
		if result.Success {
			report.Succeeded++
		} else {
			report.Failed++
		}
	}
	logging.Info().
		Int("processed", report.Processed).
		Int("succeeded", report.Succeeded).
		Int("failed", report.Failed).
		Msg("failure queue reprocessed")
	return report, nil
}

// Status reports the caller-facing health summary.
func (e *Engine) Status() (models.SyncStatus, error) {
	failedCount, err := e.store.Len()
	if err != nil {
		return models.SyncStatus{}, err
	}
	status := models.SyncStatus{
		TotalHistory:   e.history.Len(),
		FailedCount:    failedCount,
		RecentFailures: e.history.FailuresSince(time.Now().Add(-24 * time.Hour)),
	}
	if last := e.history.LastSuccess(); !last.IsZero() {
		status.LastSyncAt = &last
	}
	return status, nil
}

// History exposes the bounded sync history.
func (e *Engine) History() *History {
	return e.history
}

// FailedOperations lists the current failure queue.
func (e *Engine) FailedOperations() ([]models.FailedSync, error) {
	return e.store.List()
}

// ClearFailed drops one failure record by operation id.
func (e *Engine) ClearFailed(operationID string) error {
	if err := e.store.Delete(operationID); err != nil {
		return err
	}
	e.updateQueueGauge()
	return nil
}

func (e *Engine) record(op models.Operation, result models.SyncResult) {
	now := time.Now()
	e.history.Append(models.HistoryEntry{
		ID:            op.ID,
		Operation:     op,
		Result:        result,
		CreatedAt:     now,
		RetryCount:    result.Attempts,
		LastAttemptAt: now,
	})
	if !result.Success {
		metrics.SyncOperations.WithLabelValues("failed").Inc()
	}
}

// recordExhausted appends the failure to history and persists it to
// the failure queue for later reprocessing.
func (e *Engine) recordExhausted(op models.Operation, result models.SyncResult) {
	e.record(op, result)
	rec := models.FailedSync{
		Operation:  op,
		Result:     result,
		CreatedAt:  time.Now(),
		RetryCount: result.Attempts,
	}
	if err := e.store.Put(rec); err != nil {
		logging.Error().Str("operation_id", op.ID).Err(err).Msg("persisting failure record")
	}
	e.updateQueueGauge()
}

func (e *Engine) updateQueueGauge() {
	if n, err := e.store.Len(); err == nil {
		metrics.FailedQueueSize.Set(float64(n))
	}
}

func failureResult(attempts int, err error) models.SyncResult {
	syncErr := &models.SyncError{
		Code:      http.StatusInternalServerError,
		Message:   err.Error(),
		Timestamp: time.Now(),
	}
	var reqErr *backend.RequestError
	if errors.As(err, &reqErr) {
		syncErr.Code = reqErr.Status
		syncErr.Body = reqErr.Body
	}
	return models.SyncResult{Success: false, Attempts: attempts, Error: syncErr}
}

// errPermanent marks errors that must never be retried.
type errPermanent struct{ error }

func (e errPermanent) Unwrap() error { return e.error }

// permanent classifies backend failures. Constraint violations and
// missing rows will not heal with repetition; timeouts and 5xx might.
func permanent(err error) bool {
	var p errPermanent
	if errors.As(err, &p) {
		return true
	}
	if errors.Is(err, backend.ErrNotFound) {
		return true
	}
	var reqErr *backend.RequestError
	if errors.As(err, &reqErr) {
		switch reqErr.Status {
		case http.StatusRequestTimeout, http.StatusTooManyRequests:
			return false
		default:
			return reqErr.Status >= 400 && reqErr.Status < 500
		}
	}
	return false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
