// Gridfleet - Fleet Operations Live Data Synchronization
// Copyright 2026 Gridfleet Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gridfleet/gridfleet

// Package services adapts Gridfleet's long-running components to
// suture's Serve pattern.
package services

import (
	"context"
)

// ContextRunner matches components whose whole lifecycle is a single
// Run(ctx) call, like *websocket.Hub.
type ContextRunner interface {
	Run(ctx context.Context) error
}

// HubService supervises the websocket hub.
type HubService struct {
	hub ContextRunner
}

// NewHubService wraps a hub for supervision.
func NewHubService(hub ContextRunner) *HubService {
	return &HubService{hub: hub}
}

// Serve implements suture.Service by delegating to the hub's run loop,
// which drains registration and broadcast traffic until ctx ends and
// closes all clients on the way out.
func (s *HubService) Serve(ctx context.Context) error {
	return s.hub.Run(ctx)
}

// String implements fmt.Stringer for supervisor logging.
func (s *HubService) String() string {
	return "websocket-hub"
}
