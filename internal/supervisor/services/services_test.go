// Gridfleet - Fleet Operations Live Data Synchronization
// Copyright 2026 Gridfleet Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gridfleet/gridfleet

package services

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/gridfleet/gridfleet/internal/models"
)

type mockRunner struct {
	runCount atomic.Int32
	err      error
}

func (m *mockRunner) Run(ctx context.Context) error {
	m.runCount.Add(1)
	if m.err != nil {
		return m.err
	}
	<-ctx.Done()
	return ctx.Err()
}

type mockPipeline struct {
	connects    atomic.Int32
	disconnects atomic.Int32
	connectErr  error
}

func (m *mockPipeline) Connect(context.Context) error {
	m.connects.Add(1)
	return m.connectErr
}

func (m *mockPipeline) Disconnect() {
	m.disconnects.Add(1)
}

type mockSweeper struct {
	runs atomic.Int32
}

func (m *mockSweeper) Run(context.Context) models.SweepReport {
	m.runs.Add(1)
	return models.SweepReport{}
}

func TestHubServiceDelegatesRun(t *testing.T) {
	runner := &mockRunner{}
	svc := NewHubService(runner)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve returned %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after cancel")
	}
	if runner.runCount.Load() != 1 {
		t.Errorf("run count = %d, want 1", runner.runCount.Load())
	}
	if svc.String() != "websocket-hub" {
		t.Errorf("String() = %q", svc.String())
	}
}

func TestLiveServiceConnectsAndDisconnects(t *testing.T) {
	pipeline := &mockPipeline{}
	svc := NewLiveService(pipeline)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	// Give Serve a moment to connect before tearing down.
	deadline := time.Now().Add(time.Second)
	for pipeline.connects.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after cancel")
	}
	if pipeline.connects.Load() != 1 || pipeline.disconnects.Load() != 1 {
		t.Errorf("connects = %d, disconnects = %d, want 1 and 1",
			pipeline.connects.Load(), pipeline.disconnects.Load())
	}
}

func TestLiveServiceReturnsConnectError(t *testing.T) {
	pipeline := &mockPipeline{connectErr: errors.New("no channels")}
	svc := NewLiveService(pipeline)

	if err := svc.Serve(context.Background()); err == nil {
		t.Fatal("Serve should surface connect failure")
	}
	if pipeline.disconnects.Load() != 0 {
		t.Error("Disconnect should not run when Connect fails")
	}
}

func TestReconcileServiceRunsImmediatelyAndPeriodically(t *testing.T) {
	sweeper := &mockSweeper{}
	svc := NewReconcileService(sweeper, 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	deadline := time.Now().Add(time.Second)
	for sweeper.runs.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	if got := sweeper.runs.Load(); got < 3 {
		t.Errorf("sweep runs = %d, want at least 3 (immediate plus ticks)", got)
	}
}

func TestHTTPServiceTreatsServerClosedAsShutdown(t *testing.T) {
	runner := &mockRunner{err: http.ErrServerClosed}
	svc := NewHTTPService(runner)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := svc.Serve(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Serve returned %v, want context.Canceled", err)
	}
}

func TestServicesUnderSupervisor(t *testing.T) {
	runner := &mockRunner{}
	sup := suture.New("services-test", suture.Spec{
		FailureThreshold: 5,
		FailureBackoff:   10 * time.Millisecond,
	})
	sup.Add(NewHubService(runner))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := sup.ServeBackground(ctx)

	deadline := time.Now().Add(time.Second)
	for runner.runCount.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()
	<-errCh

	if runner.runCount.Load() == 0 {
		t.Fatal("supervised service never started")
	}
}
