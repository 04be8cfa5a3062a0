// Gridfleet - Fleet Operations Live Data Synchronization
// Copyright 2026 Gridfleet Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gridfleet/gridfleet

// Package live converts backend push events and polling results into
// normalized update envelopes, batched behind a debounce window and
// delivered to subscriber callbacks. A transient backend error never
// takes the pipeline down; at worst an individual event is dropped.
package live

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/gridfleet/gridfleet/internal/backend"
	"github.com/gridfleet/gridfleet/internal/config"
	"github.com/gridfleet/gridfleet/internal/logging"
	"github.com/gridfleet/gridfleet/internal/metrics"
	"github.com/gridfleet/gridfleet/internal/models"
)

// Callbacks are invoked from the dispatcher goroutine, one batch at a
// time. Nil callbacks are skipped.
type Callbacks struct {
	// OnUpdate receives every envelope.
	OnUpdate func(models.Envelope)
	// OnBatch receives each debounce flush whole, in arrival order,
	// before the per-envelope callbacks run.
	OnBatch func([]models.Envelope)
	// OnVehicleUpdate receives position envelopes only.
	OnVehicleUpdate func(models.PositionUpdate)
	// OnAlertUpdate receives alert envelopes only.
	OnAlertUpdate func(models.AlertUpdate)

	OnConnected    func()
	OnDisconnected func()
	// OnError reports event-level decode failures. Channel degradation
	// is logged, not surfaced here.
	OnError func(error)
}

// Pipeline is the live update fan-in. Construct with NewPipeline, then
// Connect/Disconnect. Safe for concurrent use.
type Pipeline struct {
	subscriber message.Subscriber
	client     backend.Client
	cfg        config.LiveConfig
	callbacks  Callbacks

	cache *tripCache
	disp  *dispatcher

	mu        sync.Mutex
	connected bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewPipeline wires the pipeline. The subscriber is owned by the
// caller; Disconnect stops consuming but does not close it.
func NewPipeline(subscriber message.Subscriber, client backend.Client, cfg config.LiveConfig, callbacks Callbacks) *Pipeline {
	p := &Pipeline{
		subscriber: subscriber,
		client:     client,
		cfg:        cfg,
		callbacks:  callbacks,
		cache:      newTripCache(client, cfg.TripLookupRate, cfg.TripLookupBurst),
	}
	p.disp = newDispatcher(cfg.DebounceWindow, p.deliver)
	return p
}

// Connect subscribes to every push channel and starts the polling
// fallback. A failed channel subscription degrades to polling rather
// than failing Connect; only losing every channel with polling
// disabled is an error.
func (p *Pipeline) Connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.connected {
		return nil
	}

	runCtx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.disp.run(runCtx)
	}()

	subscribed := 0
	for _, topic := range Topics {
		ch, err := p.subscriber.Subscribe(runCtx, topic)
		if err != nil {
			logging.Warn().Str("topic", topic).Err(err).Msg("channel unavailable, relying on polling")
			continue
		}
		subscribed++
		p.wg.Add(1)
		go func(topic string, ch <-chan *message.Message) {
			defer p.wg.Done()
			p.consume(runCtx, topic, ch)
		}(topic, ch)
	}

	if subscribed == 0 && !p.cfg.EnablePolling {
		cancel()
		p.wg.Wait()
		p.cancel = nil
		return errors.New("live: no push channel available and polling disabled")
	}

	if p.cfg.EnablePolling {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.pollLoop(runCtx)
		}()
	}

	p.connected = true
	logging.Info().
		Int("channels", subscribed).
		Bool("polling", p.cfg.EnablePolling).
		Msg("live pipeline connected")
	if p.callbacks.OnConnected != nil {
		p.callbacks.OnConnected()
	}
	return nil
}

// Disconnect stops all consumers and timers, discards unflushed
// envelopes and clears the trip cache. Teardown is best effort.
func (p *Pipeline) Disconnect() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.connected {
		return
	}
	p.cancel()
	p.wg.Wait()
	p.cancel = nil
	p.cache.Clear()
	p.connected = false
	logging.Info().Msg("live pipeline disconnected")
	if p.callbacks.OnDisconnected != nil {
		p.callbacks.OnDisconnected()
	}
}

// Connected reports the pipeline's logical state. It stays true even
// when every push channel has degraded and only polling feeds updates.
func (p *Pipeline) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// CachedTrips reports the trip cache size, for status surfaces.
func (p *Pipeline) CachedTrips() int {
	return p.cache.Len()
}

func (p *Pipeline) consume(ctx context.Context, topic string, ch <-chan *message.Message) {
	for msg := range ch {
		guard("consume", func() { p.handleMessage(ctx, topic, msg.Payload) })
		// Per-event errors are already handled; an unacked message
		// would only stall the channel.
		msg.Ack()
	}
}

// guard runs fn with a recover so a panic while processing one event is
// logged and counted as a drop instead of killing the goroutine.
func guard(stage string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			metrics.LiveUpdatesDropped.WithLabelValues("panic").Inc()
			logging.Error().Str("stage", stage).Interface("panic", r).Msg("recovered panic in live pipeline")
		}
	}()
	fn()
}

func (p *Pipeline) handleMessage(ctx context.Context, topic string, payload []byte) {
	metrics.LiveUpdatesReceived.WithLabelValues(topic).Inc()
	row, err := decodeChange(payload)
	if err != nil {
		metrics.LiveUpdatesDropped.WithLabelValues("malformed").Inc()
		logging.Warn().Str("topic", topic).Err(err).Msg("dropping malformed push event")
		if p.callbacks.OnError != nil {
			p.callbacks.OnError(err)
		}
		return
	}

	switch topic {
	case TopicPositions:
		p.handlePosition(ctx, row, false)
	case TopicTrips:
		trip := tripFromRow(row)
		p.cache.Put(trip)
		p.disp.enqueue(models.NewTripEnvelope(tripUpdateFrom(trip)))
	case TopicIncidents:
		p.disp.enqueue(models.NewAlertEnvelope(incidentAlertFrom(row)))
	case TopicAssistance:
		p.disp.enqueue(models.NewAlertEnvelope(assistanceAlertFrom(row)))
	default:
		metrics.LiveUpdatesDropped.WithLabelValues("unknown_topic").Inc()
		logging.Warn().Str("topic", topic).Msg("dropping event from unknown topic")
	}
}

// handlePosition resolves the owning trip and enqueues the normalized
// position. Unresolvable events are dropped at warn level, never
// surfaced as pipeline errors. requireInProgress is set on the polling
// path, which must not replay positions of finished trips.
func (p *Pipeline) handlePosition(ctx context.Context, row backend.Row, requireInProgress bool) {
	if !hasCoordinates(row) {
		metrics.LiveUpdatesDropped.WithLabelValues("missing_coordinates").Inc()
		logging.Warn().Str("trip_id", row.String("trip_id")).Msg("dropping position without coordinates")
		return
	}
	tripID := row.String("trip_id")
	if tripID == "" {
		metrics.LiveUpdatesDropped.WithLabelValues("missing_trip").Inc()
		logging.Warn().Msg("dropping position without trip id")
		return
	}

	trip, err := p.cache.Resolve(ctx, tripID)
	if err != nil {
		metrics.LiveUpdatesDropped.WithLabelValues("trip_unresolved").Inc()
		logging.Warn().Str("trip_id", tripID).Err(err).Msg("dropping position, trip lookup failed")
		return
	}
	if requireInProgress && trip.Status != models.TripInProgress {
		return
	}

	p.disp.enqueue(models.NewPositionEnvelope(positionFrom(row, trip)))
}

// pollLoop periodically queries recent positions so updates keep
// flowing when push channels degrade. It feeds the same normalization
// path as push events, so consumers may see duplicates.
func (p *Pipeline) pollLoop(ctx context.Context) {
	interval := p.cfg.PollingInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.pollPositions(ctx)
		}
	}
}

func (p *Pipeline) pollPositions(ctx context.Context) {
	lookback := p.cfg.PollLookback
	if lookback <= 0 {
		lookback = 5 * time.Minute
	}
	limit := p.cfg.PollLimit
	if limit <= 0 {
		limit = 100
	}

	rows, err := p.client.Query(ctx, "driver_positions", backend.QueryOptions{
		Filters:    []backend.Filter{backend.Gte("timestamp", backend.FormatTime(time.Now().Add(-lookback)))},
		OrderBy:    "timestamp",
		Descending: true,
		Limit:      limit,
	})
	if err != nil {
		// A failed poll round is logged and skipped, never fatal.
		logging.Warn().Err(err).Msg("position polling round failed")
		return
	}
	for _, row := range rows {
		metrics.LiveUpdatesReceived.WithLabelValues("poll").Inc()
		guard("poll", func() { p.handlePosition(ctx, row, true) })
	}
}

// deliver is the dispatcher flush callback. Each callback runs behind
// guard, so one panicking subscriber drops its envelope without
// aborting the rest of the batch or the dispatcher.
func (p *Pipeline) deliver(batch []models.Envelope) {
	if p.callbacks.OnBatch != nil {
		guard("batch", func() { p.callbacks.OnBatch(batch) })
	}
	for _, env := range batch {
		guard("update", func() {
			if p.callbacks.OnUpdate != nil {
				p.callbacks.OnUpdate(env)
			}
			switch env.Kind {
			case models.UpdateKindPosition:
				if p.callbacks.OnVehicleUpdate != nil {
					p.callbacks.OnVehicleUpdate(*env.Position)
				}
			case models.UpdateKindAlert:
				if p.callbacks.OnAlertUpdate != nil {
					p.callbacks.OnAlertUpdate(*env.Alert)
				}
			}
		})
	}
}
