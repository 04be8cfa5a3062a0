// Gridfleet - Fleet Operations Live Data Synchronization
// Copyright 2026 Gridfleet Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gridfleet/gridfleet

package services

import (
	"context"
	"time"

	"github.com/gridfleet/gridfleet/internal/models"
)

// Sweeper matches *reconcile.Sweep's single-run surface.
type Sweeper interface {
	Run(ctx context.Context) models.SweepReport
}

// ReconcileService runs a sweep immediately on start and then once per
// interval until shutdown. Supervision gives the periodic loop crash
// recovery for free: a panic escaping a sweep restarts the schedule.
type ReconcileService struct {
	sweep    Sweeper
	interval time.Duration
}

// NewReconcileService wraps a sweep with its run interval.
func NewReconcileService(sweep Sweeper, interval time.Duration) *ReconcileService {
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	return &ReconcileService{sweep: sweep, interval: interval}
}

// Serve implements suture.Service.
func (s *ReconcileService) Serve(ctx context.Context) error {
	s.sweep.Run(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.sweep.Run(ctx)
		}
	}
}

// String implements fmt.Stringer for supervisor logging.
func (s *ReconcileService) String() string {
	return "reconcile-sweep"
}
