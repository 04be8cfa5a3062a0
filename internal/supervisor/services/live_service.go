// Gridfleet - Fleet Operations Live Data Synchronization
// Copyright 2026 Gridfleet Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gridfleet/gridfleet

package services

import (
	"context"
	"fmt"
)

// LivePipeline matches *live.Pipeline's connect/disconnect lifecycle.
type LivePipeline interface {
	Connect(ctx context.Context) error
	Disconnect()
}

// LiveService supervises the live update pipeline. A restart after a
// crash re-subscribes every channel and rebuilds the trip cache from
// scratch, which is exactly the recovery the pipeline wants.
type LiveService struct {
	pipeline LivePipeline
}

// NewLiveService wraps a pipeline for supervision.
func NewLiveService(pipeline LivePipeline) *LiveService {
	return &LiveService{pipeline: pipeline}
}

// Serve implements suture.Service: connect, hold until shutdown, then
// disconnect and wait for the pipeline's workers to drain.
func (s *LiveService) Serve(ctx context.Context) error {
	if err := s.pipeline.Connect(ctx); err != nil {
		return fmt.Errorf("connecting live pipeline: %w", err)
	}
	<-ctx.Done()
	s.pipeline.Disconnect()
	return ctx.Err()
}

// String implements fmt.Stringer for supervisor logging.
func (s *LiveService) String() string {
	return "live-pipeline"
}
