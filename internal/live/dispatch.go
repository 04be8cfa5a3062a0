// Gridfleet - Fleet Operations Live Data Synchronization
// Copyright 2026 Gridfleet Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gridfleet/gridfleet

package live

import (
	"context"
	"time"

	"github.com/gridfleet/gridfleet/internal/logging"
	"github.com/gridfleet/gridfleet/internal/metrics"
	"github.com/gridfleet/gridfleet/internal/models"
)

// dispatcher batches envelopes behind a debounce window. Every enqueue
// re-arms the timer; when the window elapses with no new envelope the
// whole batch is flushed in arrival order. No dedupe is applied.
type dispatcher struct {
	in     chan models.Envelope
	window time.Duration
	flush  func([]models.Envelope)
}

func newDispatcher(window time.Duration, flush func([]models.Envelope)) *dispatcher {
	if window <= 0 {
		window = 300 * time.Millisecond
	}
	return &dispatcher{
		in:     make(chan models.Envelope, 1024),
		window: window,
		flush:  flush,
	}
}

// enqueue hands an envelope to the dispatcher. When the buffer is full
// the envelope is dropped rather than blocking the event path.
func (d *dispatcher) enqueue(env models.Envelope) {
	select {
	case d.in <- env:
	default:
		metrics.LiveUpdatesDropped.WithLabelValues("dispatch_backpressure").Inc()
		logging.Warn().Str("kind", string(env.Kind)).Msg("dispatch buffer full, dropping update")
	}
}

// run owns the debounce loop until ctx is cancelled. Unflushed
// envelopes at cancellation are discarded.
func (d *dispatcher) run(ctx context.Context) {
	var queue []models.Envelope
	timer := time.NewTimer(d.window)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case env := <-d.in:
			queue = append(queue, env)
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(d.window)
		case <-timer.C:
			if len(queue) == 0 {
				continue
			}
			batch := queue
			queue = nil
			metrics.LiveBatchesDispatched.Inc()
			metrics.LiveBatchSize.Observe(float64(len(batch)))
			d.flush(batch)
		}
	}
}
