// Gridfleet - Fleet Operations Live Data Synchronization
// Copyright 2026 Gridfleet Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gridfleet/gridfleet

// Package metrics defines the Prometheus instruments the sync core
// exposes on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LiveUpdatesReceived counts updates arriving from push channels
	// and the polling fallback, labeled by source channel.
	LiveUpdatesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gridfleet",
		Subsystem: "live",
		Name:      "updates_received_total",
		Help:      "Live updates received, by channel.",
	}, []string{"channel"})

	// LiveUpdatesDropped counts malformed or unroutable updates that
	// were discarded.
	LiveUpdatesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gridfleet",
		Subsystem: "live",
		Name:      "updates_dropped_total",
		Help:      "Live updates dropped, by reason.",
	}, []string{"reason"})

	// LiveBatchesDispatched counts debounced batches flushed to
	// subscribers.
	LiveBatchesDispatched = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gridfleet",
		Subsystem: "live",
		Name:      "batches_dispatched_total",
		Help:      "Debounced position batches dispatched to subscribers.",
	})

	// LiveBatchSize observes how many positions each flushed batch
	// carried.
	LiveBatchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "gridfleet",
		Subsystem: "live",
		Name:      "batch_size",
		Help:      "Positions per dispatched batch.",
		Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250},
	})

	// TripCacheLookups counts trip cache hits and misses.
	TripCacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gridfleet",
		Subsystem: "live",
		Name:      "trip_cache_lookups_total",
		Help:      "Trip cache lookups, by result (hit, miss, error).",
	}, []string{"result"})

	// SyncOperations counts write-back submissions by final outcome.
	SyncOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gridfleet",
		Subsystem: "sync",
		Name:      "operations_total",
		Help:      "Write-back operations, by outcome (success, failed, invalid).",
	}, []string{"outcome"})

	// SyncRetries counts retry attempts inside the write-back loop.
	SyncRetries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gridfleet",
		Subsystem: "sync",
		Name:      "retries_total",
		Help:      "Write-back retry attempts.",
	})

	// FailedQueueSize tracks entries currently in the durable failure
	// queue.
	FailedQueueSize = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "gridfleet",
		Subsystem: "sync",
		Name:      "failed_queue_size",
		Help:      "Operations awaiting reprocessing in the failure queue.",
	})

	// ReconcileRuns counts completed reconciliation sweeps.
	ReconcileRuns = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gridfleet",
		Subsystem: "reconcile",
		Name:      "runs_total",
		Help:      "Completed reconciliation sweeps.",
	})

	// ReconcileInconsistencies counts records a sweep found divergent.
	ReconcileInconsistencies = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gridfleet",
		Subsystem: "reconcile",
		Name:      "inconsistencies_total",
		Help:      "Divergent records found by reconciliation sweeps.",
	})

	// WebsocketClients tracks currently connected websocket clients.
	WebsocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "gridfleet",
		Subsystem: "ws",
		Name:      "clients",
		Help:      "Connected websocket clients.",
	})
)
