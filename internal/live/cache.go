// Gridfleet - Fleet Operations Live Data Synchronization
// Copyright 2026 Gridfleet Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gridfleet/gridfleet

package live

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/gridfleet/gridfleet/internal/backend"
	"github.com/gridfleet/gridfleet/internal/logging"
	"github.com/gridfleet/gridfleet/internal/metrics"
	"github.com/gridfleet/gridfleet/internal/models"
)

// errLookupThrottled marks trip lookups rejected by the rate limiter
// before reaching the backend.
var errLookupThrottled = errors.New("trip lookup throttled")

// tripCache resolves trip ids to trip entities. Push trip events write
// through; position events read through, with a fetch-on-miss that is
// rate limited and guarded by a circuit breaker so a backend outage
// cannot turn every position event into a slow query.
type tripCache struct {
	client backend.Client

	mu    sync.RWMutex
	trips map[string]models.Trip

	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[models.Trip]
}

func newTripCache(client backend.Client, lookupRate float64, lookupBurst int) *tripCache {
	if lookupRate <= 0 {
		lookupRate = 20
	}
	if lookupBurst < 1 {
		lookupBurst = int(lookupRate) * 2
	}
	breaker := gobreaker.NewCircuitBreaker[models.Trip](gobreaker.Settings{
		Name:        "trip-lookup",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state change")
		},
	})
	return &tripCache{
		client:  client,
		trips:   make(map[string]models.Trip),
		limiter: rate.NewLimiter(rate.Limit(lookupRate), lookupBurst),
		breaker: breaker,
	}
}

// Put writes a trip through unconditionally.
func (c *tripCache) Put(trip models.Trip) {
	if trip.ID == "" {
		return
	}
	c.mu.Lock()
	c.trips[trip.ID] = trip
	c.mu.Unlock()
}

// Resolve returns the trip for an id, fetching from the backend on a
// cache miss.
func (c *tripCache) Resolve(ctx context.Context, tripID string) (models.Trip, error) {
	c.mu.RLock()
	trip, ok := c.trips[tripID]
	c.mu.RUnlock()
	if ok {
		metrics.TripCacheLookups.WithLabelValues("hit").Inc()
		return trip, nil
	}
	metrics.TripCacheLookups.WithLabelValues("miss").Inc()

	if !c.limiter.Allow() {
		metrics.TripCacheLookups.WithLabelValues("error").Inc()
		return models.Trip{}, errLookupThrottled
	}

	trip, err := c.breaker.Execute(func() (models.Trip, error) {
		row, err := c.client.QueryOne(ctx, "trips", tripID)
		if err != nil {
			return models.Trip{}, err
		}
		return tripFromRow(row), nil
	})
	if err != nil {
		metrics.TripCacheLookups.WithLabelValues("error").Inc()
		return models.Trip{}, fmt.Errorf("resolving trip %s: %w", tripID, err)
	}
	if trip.ID != "" {
		c.Put(trip)
	}
	return trip, nil
}

// Clear drops every entry. Called on disconnect only.
func (c *tripCache) Clear() {
	c.mu.Lock()
	c.trips = make(map[string]models.Trip)
	c.mu.Unlock()
}

// Len reports the number of cached trips.
func (c *tripCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.trips)
}
