// Gridfleet - Fleet Operations Live Data Synchronization
// Copyright 2026 Gridfleet Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gridfleet/gridfleet

package live

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gridfleet/gridfleet/internal/models"
)

// batchCollector records flushed batches for assertions.
type batchCollector struct {
	mu      sync.Mutex
	batches [][]models.Envelope
}

func (c *batchCollector) flush(batch []models.Envelope) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batches = append(c.batches, batch)
}

func (c *batchCollector) snapshot() [][]models.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]models.Envelope, len(c.batches))
	copy(out, c.batches)
	return out
}

func tripEnvelope(id string) models.Envelope {
	return models.NewTripEnvelope(models.TripUpdate{TripID: id, Status: models.TripInProgress})
}

func TestDispatcherBatchesWithinWindow(t *testing.T) {
	collector := &batchCollector{}
	d := newDispatcher(60*time.Millisecond, collector.flush)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.run(ctx)

	// Five enqueues in quick succession, all inside one quiet period.
	for i := 0; i < 5; i++ {
		d.enqueue(tripEnvelope(string(rune('a' + i))))
	}

	deadline := time.After(time.Second)
	for {
		if batches := collector.snapshot(); len(batches) > 0 {
			if len(batches) != 1 {
				t.Fatalf("batches = %d, want 1", len(batches))
			}
			if len(batches[0]) != 5 {
				t.Fatalf("batch size = %d, want 5", len(batches[0]))
			}
			for i, env := range batches[0] {
				if env.Trip.TripID != string(rune('a'+i)) {
					t.Errorf("batch[%d] = %s, want arrival order", i, env.Trip.TripID)
				}
			}
			return
		}
		select {
		case <-deadline:
			t.Fatal("no batch flushed within a second")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestDispatcherSeparateWindowsSeparateBatches(t *testing.T) {
	collector := &batchCollector{}
	d := newDispatcher(30*time.Millisecond, collector.flush)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.run(ctx)

	d.enqueue(tripEnvelope("first"))
	time.Sleep(100 * time.Millisecond)
	d.enqueue(tripEnvelope("second"))
	time.Sleep(100 * time.Millisecond)

	batches := collector.snapshot()
	if len(batches) != 2 {
		t.Fatalf("batches = %d, want 2", len(batches))
	}
	if batches[0][0].Trip.TripID != "first" || batches[1][0].Trip.TripID != "second" {
		t.Errorf("batch contents = %v", batches)
	}
}

func TestDispatcherDiscardUnflushedOnCancel(t *testing.T) {
	collector := &batchCollector{}
	d := newDispatcher(time.Hour, collector.flush)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.run(ctx)
		close(done)
	}()

	d.enqueue(tripEnvelope("pending"))
	time.Sleep(20 * time.Millisecond)
	cancel()
	<-done

	if batches := collector.snapshot(); len(batches) != 0 {
		t.Errorf("batches = %v, want none after cancel", batches)
	}
}
