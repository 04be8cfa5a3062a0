// Gridfleet - Fleet Operations Live Data Synchronization
// Copyright 2026 Gridfleet Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gridfleet/gridfleet

// Package api exposes the ops surface: sync status and controls,
// reconciliation triggers, health, metrics and the dashboard
// websocket.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gridfleet/gridfleet/internal/config"
	"github.com/gridfleet/gridfleet/internal/live"
	"github.com/gridfleet/gridfleet/internal/logging"
	"github.com/gridfleet/gridfleet/internal/models"
	"github.com/gridfleet/gridfleet/internal/reconcile"
	"github.com/gridfleet/gridfleet/internal/websocket"
	"github.com/gridfleet/gridfleet/internal/writeback"
)

// Server is the ops HTTP server.
type Server struct {
	cfg      config.ServerConfig
	engine   *writeback.Engine
	sweep    *reconcile.Sweep
	pipeline *live.Pipeline
	hub      *websocket.Hub
}

// NewServer wires the ops server to its collaborators. Any of sweep,
// pipeline or hub may be nil; the matching routes then report not
// found or degraded data.
func NewServer(cfg config.ServerConfig, engine *writeback.Engine, sweep *reconcile.Sweep, pipeline *live.Pipeline, hub *websocket.Hub) *Server {
	return &Server{
		cfg:      cfg,
		engine:   engine,
		sweep:    sweep,
		pipeline: pipeline,
		hub:      hub,
	}
}

// Router assembles the chi route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	if s.cfg.RateLimitReqs > 0 {
		r.Use(httprate.LimitByIP(s.cfg.RateLimitReqs, s.cfg.RateLimitWindow))
	}

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/sync", func(r chi.Router) {
			r.Get("/status", s.handleSyncStatus)
			r.Get("/history", s.handleSyncHistory)
			r.Get("/failed", s.handleSyncFailed)
			r.Delete("/failed/{operationID}", s.handleClearFailed)
			r.Post("/reprocess", s.handleReprocess)
			r.Post("/operations", s.handleSubmit)
		})
		r.Post("/reconcile/run", s.handleReconcileRun)
	})

	if s.hub != nil {
		r.Get("/ws", func(w http.ResponseWriter, req *http.Request) {
			websocket.ServeWS(s.hub, w, req)
		})
	}
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:      s.Router(),
		ReadTimeout:  s.cfg.Timeout,
		WriteTimeout: s.cfg.Timeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", srv.Addr).Msg("ops server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return ctx.Err()
	}
}

type healthResponse struct {
	Status        string `json:"status"`
	LiveConnected bool   `json:"live_connected"`
	CachedTrips   int    `json:"cached_trips"`
	WSClients     int    `json:"ws_clients"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{Status: "ok"}
	if s.pipeline != nil {
		resp.LiveConnected = s.pipeline.Connected()
		resp.CachedTrips = s.pipeline.CachedTrips()
	}
	if s.hub != nil {
		resp.WSClients = s.hub.ClientCount()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSyncStatus(w http.ResponseWriter, _ *http.Request) {
	status, err := s.engine.Status()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleSyncHistory(w http.ResponseWriter, _ *http.Request) {
	entries := s.engine.History().Entries()
	writeJSON(w, http.StatusOK, map[string]any{
		"total":   len(entries),
		"entries": entries,
	})
}

func (s *Server) handleSyncFailed(w http.ResponseWriter, _ *http.Request) {
	records, err := s.engine.FailedOperations()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total":   len(records),
		"records": records,
	})
}

func (s *Server) handleClearFailed(w http.ResponseWriter, r *http.Request) {
	operationID := chi.URLParam(r, "operationID")
	if operationID == "" {
		writeError(w, http.StatusBadRequest, errors.New("operation id required"))
		return
	}
	if err := s.engine.ClearFailed(operationID); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReprocess(w http.ResponseWriter, r *http.Request) {
	report, err := s.engine.Reprocess(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var op models.Operation
	if err := json.NewDecoder(r.Body).Decode(&op); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decoding operation: %w", err))
		return
	}
	if op.Resource == "" || op.Action == "" {
		writeError(w, http.StatusBadRequest, errors.New("resource_kind and action are required"))
		return
	}
	result := s.engine.Submit(r.Context(), op)
	status := http.StatusOK
	if !result.Success {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, result)
}

func (s *Server) handleReconcileRun(w http.ResponseWriter, r *http.Request) {
	if s.sweep == nil {
		writeError(w, http.StatusNotFound, errors.New("reconciliation not configured"))
		return
	}
	report := s.sweep.Run(r.Context())
	if s.hub != nil {
		s.hub.Broadcast(websocket.MessageTypeReconcileReport, report)
	}
	writeJSON(w, http.StatusOK, report)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error().Err(err).Msg("encoding response")
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
