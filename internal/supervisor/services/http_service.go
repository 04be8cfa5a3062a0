// Gridfleet - Fleet Operations Live Data Synchronization
// Copyright 2026 Gridfleet Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gridfleet/gridfleet

package services

import (
	"context"
	"errors"
	"net/http"
)

// HTTPServer matches *api.Server's run-until-cancelled lifecycle.
type HTTPServer interface {
	Run(ctx context.Context) error
}

// HTTPService supervises the ops HTTP server.
type HTTPService struct {
	server HTTPServer
}

// NewHTTPService wraps a server for supervision.
func NewHTTPService(server HTTPServer) *HTTPService {
	return &HTTPService{server: server}
}

// Serve implements suture.Service. http.ErrServerClosed is the normal
// shutdown signal and is not treated as a failure.
func (s *HTTPService) Serve(ctx context.Context) error {
	err := s.server.Run(ctx)
	if errors.Is(err, http.ErrServerClosed) {
		return ctx.Err()
	}
	return err
}

// String implements fmt.Stringer for supervisor logging.
func (s *HTTPService) String() string {
	return "http-server"
}
