// Gridfleet - Fleet Operations Live Data Synchronization
// Copyright 2026 Gridfleet Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gridfleet/gridfleet

// Package main is the Gridfleet server entry point.
//
// Gridfleet keeps fleet dashboards live and consistent against an
// authoritative backend store. It fans in position, trip and alert
// change events (NATS push channels with a polling fallback), batches
// them behind a debounce window, and broadcasts normalized updates to
// websocket clients. Outbound writes go through a validating write-back
// engine with a durable failure queue, periodically reconciled against
// backend ground truth.
//
// # Startup order
//
//  1. Configuration (koanf: defaults, YAML file, environment)
//  2. Logging (zerolog)
//  3. Backend REST client
//  4. Failure queue (badger) and write-back engine
//  5. NATS transport (embedded JetStream server when configured)
//  6. Live pipeline and websocket hub
//  7. Supervisor tree: sync, live and API layers
//
// # Shutdown
//
// SIGINT/SIGTERM cancels the root context. The supervisor tree stops
// every service with a bounded timeout, then the NATS server and the
// failure queue are closed.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/gridfleet/gridfleet/internal/api"
	"github.com/gridfleet/gridfleet/internal/backend"
	"github.com/gridfleet/gridfleet/internal/config"
	"github.com/gridfleet/gridfleet/internal/live"
	"github.com/gridfleet/gridfleet/internal/logging"
	"github.com/gridfleet/gridfleet/internal/messaging"
	"github.com/gridfleet/gridfleet/internal/models"
	"github.com/gridfleet/gridfleet/internal/reconcile"
	"github.com/gridfleet/gridfleet/internal/supervisor"
	"github.com/gridfleet/gridfleet/internal/supervisor/services"
	ws "github.com/gridfleet/gridfleet/internal/websocket"
	"github.com/gridfleet/gridfleet/internal/writeback"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("loading configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	logging.Info().
		Str("backend_url", cfg.Backend.URL).
		Bool("nats", cfg.NATS.Enabled).
		Bool("polling", cfg.Live.EnablePolling).
		Msg("starting gridfleet")

	if cfg.Backend.URL == "" {
		logging.Fatal().Msg("backend.url is required")
	}
	client := backend.NewRESTClient(cfg.Backend.URL, cfg.Backend.APIKey, cfg.Backend.Timeout)

	store, err := writeback.OpenBadgerStore(cfg.Sync.DataDir)
	if err != nil {
		logging.Fatal().Err(err).Str("dir", cfg.Sync.DataDir).Msg("opening failure queue")
	}
	defer func() {
		if err := store.Close(); err != nil {
			logging.Error().Err(err).Msg("closing failure queue")
		}
	}()

	engine := writeback.NewEngine(client, store, writeback.NewHistory(cfg.Sync.HistorySize))
	sweep := reconcile.NewSweep(engine, client, writeback.TableFor, cfg.Reconcile.RecentWindow, cfg.Reconcile.SpotCheckLimit)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// NATS transport. With the embedded server the subscriber connects
	// to the in-process listener; without NATS the pipeline runs on the
	// polling fallback alone, fed by a no-op in-process pub/sub.
	var subscriber message.Subscriber
	switch {
	case cfg.NATS.Enabled:
		if cfg.NATS.EmbeddedServer {
			ns, err := messaging.NewEmbeddedServer(cfg.NATS)
			if err != nil {
				logging.Fatal().Err(err).Msg("starting embedded nats server")
			}
			defer func() {
				if err := ns.Shutdown(context.Background()); err != nil {
					logging.Error().Err(err).Msg("stopping embedded nats server")
				}
			}()
			cfg.NATS.URL = ns.ClientURL()
			logging.Info().Str("url", cfg.NATS.URL).Msg("embedded nats server ready")
		}
		subscriber, err = messaging.NewSubscriber(cfg.NATS)
		if err != nil {
			logging.Fatal().Err(err).Msg("creating nats subscriber")
		}
		defer func() {
			if err := subscriber.Close(); err != nil {
				logging.Error().Err(err).Msg("closing nats subscriber")
			}
		}()
	default:
		subscriber = gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	}

	hub := ws.NewHub()
	pipeline := live.NewPipeline(subscriber, client, cfg.Live, live.Callbacks{
		OnBatch: func(batch []models.Envelope) {
			positions := make([]*models.PositionUpdate, 0, len(batch))
			for _, env := range batch {
				switch env.Kind {
				case models.UpdateKindPosition:
					positions = append(positions, env.Position)
				case models.UpdateKindTrip:
					hub.Broadcast(ws.MessageTypeTripUpdate, env.Trip)
				case models.UpdateKindAlert:
					hub.Broadcast(ws.MessageTypeAlert, env.Alert)
				}
			}
			if len(positions) > 0 {
				hub.Broadcast(ws.MessageTypePositionBatch, positions)
			}
		},
		OnError: func(err error) {
			logging.Debug().Err(err).Msg("live event dropped")
		},
	})

	server := api.NewServer(cfg.Server, engine, sweep, pipeline, hub)

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddSyncService(services.NewReconcileService(sweep, cfg.Reconcile.Interval))
	tree.AddLiveService(services.NewHubService(hub))
	tree.AddLiveService(services.NewLiveService(pipeline))
	tree.AddAPIService(services.NewHTTPService(server))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("shutdown signal received")
		cancel()
	}()

	logging.Info().Msg("starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("supervisor tree error")
		}
	}
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("service failed to stop within timeout")
	}

	logging.Info().Msg("gridfleet stopped")
}
