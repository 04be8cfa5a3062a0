// Gridfleet - Fleet Operations Live Data Synchronization
// Copyright 2026 Gridfleet Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gridfleet/gridfleet

package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SyncAction is the mutation verb of a retryable operation.
type SyncAction string

const (
	ActionCreate SyncAction = "create"
	ActionUpdate SyncAction = "update"
	ActionDelete SyncAction = "delete"
)

// ResourceKind is the closed set of resources the write-back engine
// accepts. Each kind carries its own validator, mapper and target table.
type ResourceKind string

const (
	ResourceVehicle     ResourceKind = "vehicle"
	ResourceDriver      ResourceKind = "driver"
	ResourceRoute       ResourceKind = "route"
	ResourceMaintenance ResourceKind = "maintenance"
	ResourceChecklist   ResourceKind = "checklist"
	ResourceDocument    ResourceKind = "document"
	ResourceOperator    ResourceKind = "operator"
	ResourceCompany     ResourceKind = "company"
	ResourceInvoice     ResourceKind = "invoice"
	ResourceSchedule    ResourceKind = "schedule"
	ResourceAssistance  ResourceKind = "assistance"
)

// Operation is a single logical write against the backend. ID is stable
// across retries and reprocessing so failure-queue entries can be cleared
// by identity.
type Operation struct {
	ID         string         `json:"id"`
	Resource   ResourceKind   `json:"resource_kind"`
	ResourceID string         `json:"resource_id,omitempty"`
	Action     SyncAction     `json:"action"`
	Payload    map[string]any `json:"payload"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// EnsureID assigns a stable identifier when the caller did not provide
// one. The shape mirrors the ids operator tooling already matches on.
func (o *Operation) EnsureID() {
	if o.ID != "" {
		return
	}
	ref := o.ResourceID
	if ref == "" {
		ref = uuid.New().String()[:8]
	}
	o.ID = fmt.Sprintf("%s-%s-%d", o.Resource, ref, time.Now().UnixMilli())
}

// SyncError captures the last failure of a synchronization attempt.
type SyncError struct {
	Code      int       `json:"code"`
	Message   string    `json:"message"`
	Body      string    `json:"body,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// SyncResult is attached to every operation outcome.
type SyncResult struct {
	Success  bool       `json:"success"`
	Attempts int        `json:"attempts"`
	SyncedAt *time.Time `json:"synced_at,omitempty"`
	Error    *SyncError `json:"error,omitempty"`
}

// HistoryEntry records one finished synchronization attempt. Entries are
// append-only and never mutated after creation.
type HistoryEntry struct {
	ID            string     `json:"id"`
	Operation     Operation  `json:"operation"`
	Result        SyncResult `json:"result"`
	CreatedAt     time.Time  `json:"created_at"`
	RetryCount    int        `json:"retry_count"`
	LastAttemptAt time.Time  `json:"last_attempt_at"`
}

// FailedSync is a durable record of an operation that exhausted its retry
// budget. It is removed when a later attempt with the same operation id
// succeeds or when explicitly cleared.
type FailedSync struct {
	Operation  Operation  `json:"operation"`
	Result     SyncResult `json:"result"`
	CreatedAt  time.Time  `json:"created_at"`
	RetryCount int        `json:"retry_count"`
}

// ReprocessReport summarizes one pass over the failure queue.
type ReprocessReport struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// SyncStatus is the caller-facing health summary of the write-back path.
type SyncStatus struct {
	TotalHistory   int        `json:"total_history"`
	FailedCount    int        `json:"failed_count"`
	LastSyncAt     *time.Time `json:"last_sync_at,omitempty"`
	RecentFailures int        `json:"recent_failures"`
}

// SweepReport summarizes one reconciliation sweep.
type SweepReport struct {
	Checked         int `json:"checked"`
	Inconsistencies int `json:"inconsistencies"`
	Fixed           int `json:"fixed"`
	Errors          int `json:"errors"`
}
