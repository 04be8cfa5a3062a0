// Gridfleet - Fleet Operations Live Data Synchronization
// Copyright 2026 Gridfleet Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gridfleet/gridfleet

// Package playback replays a recorded position series against wall
// clock time, at a configurable speed multiplier, emitting positions
// through a callback exactly as the live map would receive them.
package playback

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/gridfleet/gridfleet/internal/backend"
	"github.com/gridfleet/gridfleet/internal/logging"
	"github.com/gridfleet/gridfleet/internal/models"
)

// State is the playback lifecycle state.
type State string

const (
	StateIdle    State = "idle"
	StatePlaying State = "playing"
	StatePaused  State = "paused"
	StateStopped State = "stopped"
)

// defaultFrameInterval approximates a 60 Hz display refresh.
const defaultFrameInterval = 16 * time.Millisecond

// Callbacks are invoked from the animation goroutine. Nil callbacks
// are skipped.
type Callbacks struct {
	OnPositionUpdate func(models.HistoricalPosition)
	OnPlay           func()
	OnPause          func()
	OnComplete       func()
}

// Scope selects which position series to load.
type Scope struct {
	VehicleID string
	RouteID   string
	CompanyID string
	From      time.Time
	To        time.Time

	// IntervalMinutes downsamples the series: per vehicle, at most one
	// sample per interval. Zero keeps every sample.
	IntervalMinutes int
}

// Player replays one loaded dataset at a time. Construct with
// NewPlayer; all methods are safe for concurrent use.
type Player struct {
	client    backend.Client
	callbacks Callbacks

	mu            sync.Mutex
	state         State
	positions     []models.HistoricalPosition
	currentIndex  int
	speed         float64
	startTime     time.Time
	pausedAccum   time.Duration
	pauseStarted  time.Time
	sessionCancel context.CancelFunc
	wg            sync.WaitGroup

	// now and frameInterval are swapped in tests for deterministic
	// simulated-time playback.
	now           func() time.Time
	frameInterval time.Duration
}

// NewPlayer builds an idle player.
func NewPlayer(client backend.Client, callbacks Callbacks) *Player {
	return &Player{
		client:        client,
		callbacks:     callbacks,
		state:         StateIdle,
		speed:         1,
		now:           time.Now,
		frameInterval: defaultFrameInterval,
	}
}

// Load fetches the position series for a scope, sorts it ascending by
// timestamp and makes it the active dataset. Any running playback is
// stopped; currentIndex resets to 0.
func (p *Player) Load(ctx context.Context, scope Scope) (int, error) {
	filters := []backend.Filter{}
	if !scope.From.IsZero() {
		filters = append(filters, backend.Gte("timestamp", backend.FormatTime(scope.From)))
	}
	if !scope.To.IsZero() {
		filters = append(filters, backend.Filter{Column: "timestamp", Op: "lte", Value: backend.FormatTime(scope.To)})
	}
	if scope.VehicleID != "" {
		filters = append(filters, backend.Eq("vehicle_id", scope.VehicleID))
	}
	if scope.RouteID != "" {
		filters = append(filters, backend.Eq("route_id", scope.RouteID))
	}
	if scope.CompanyID != "" {
		filters = append(filters, backend.Eq("company_id", scope.CompanyID))
	}

	rows, err := p.client.Query(ctx, "driver_positions", backend.QueryOptions{Filters: filters})
	if err != nil {
		return 0, err
	}

	positions := make([]models.HistoricalPosition, 0, len(rows))
	for _, row := range rows {
		positions = append(positions, positionFromRow(row))
	}
	sort.Slice(positions, func(i, j int) bool {
		return positions[i].Timestamp.Before(positions[j].Timestamp)
	})
	if scope.IntervalMinutes > 0 {
		positions = downsample(positions, time.Duration(scope.IntervalMinutes)*time.Minute)
	}

	p.stopSession()
	p.mu.Lock()
	p.positions = positions
	p.currentIndex = 0
	p.state = StateIdle
	p.pausedAccum = 0
	p.mu.Unlock()

	logging.Debug().Int("positions", len(positions)).Msg("playback dataset loaded")
	return len(positions), nil
}

// LoadPositions installs an already-fetched series, for callers that
// assemble datasets themselves.
func (p *Player) LoadPositions(positions []models.HistoricalPosition) {
	sorted := make([]models.HistoricalPosition, len(positions))
	copy(sorted, positions)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	p.stopSession()
	p.mu.Lock()
	p.positions = sorted
	p.currentIndex = 0
	p.state = StateIdle
	p.pausedAccum = 0
	p.mu.Unlock()
}

// Play starts or resumes playback. With an empty dataset it warns and
// does nothing.
func (p *Player) Play() {
	p.mu.Lock()
	if len(p.positions) == 0 {
		p.mu.Unlock()
		logging.Warn().Msg("playback requested with empty dataset")
		return
	}
	if p.state == StatePlaying {
		p.mu.Unlock()
		return
	}

	now := p.now()
	if p.state == StatePaused {
		// Fold the pause into the accumulator so elapsed time
		// continues where it left off.
		p.pausedAccum += now.Sub(p.pauseStarted)
	} else {
		p.startTime = now
		p.pausedAccum = 0
		if p.currentIndex >= len(p.positions) {
			p.currentIndex = 0
		}
	}
	p.state = StatePlaying

	ctx, cancel := context.WithCancel(context.Background())
	p.sessionCancel = cancel
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer cancel()
		p.animate(ctx)
	}()
	p.mu.Unlock()

	if p.callbacks.OnPlay != nil {
		p.callbacks.OnPlay()
	}
}

// Pause freezes playback without resetting the position.
func (p *Player) Pause() {
	p.mu.Lock()
	if p.state != StatePlaying {
		p.mu.Unlock()
		return
	}
	p.state = StatePaused
	p.pauseStarted = p.now()
	cancel := p.sessionCancel
	p.sessionCancel = nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	p.wg.Wait()
	if p.callbacks.OnPause != nil {
		p.callbacks.OnPause()
	}
}

// Stop halts playback and rewinds to the start. Unlike natural
// completion it does not invoke OnComplete.
func (p *Player) Stop() {
	p.stopSession()
	p.mu.Lock()
	p.currentIndex = 0
	p.pausedAccum = 0
	p.startTime = time.Time{}
	p.state = StateStopped
	p.mu.Unlock()
}

// SetSpeed changes the playback multiplier (nominal 1, 2 or 4).
func (p *Player) SetSpeed(multiplier float64) {
	if multiplier <= 0 {
		return
	}
	p.mu.Lock()
	p.speed = multiplier
	p.mu.Unlock()
}

// SeekTo repositions playback to the sample nearest the target
// timestamp. Valid in any state; while playing, the position at the
// new index is emitted immediately.
func (p *Player) SeekTo(target time.Time) {
	p.mu.Lock()
	if len(p.positions) == 0 {
		p.mu.Unlock()
		return
	}
	idx := p.nearestIndex(target)
	p.currentIndex = idx

	var emit *models.HistoricalPosition
	if p.state == StatePlaying {
		pos := p.positions[idx]
		emit = &pos
		// Rebase the clock so the loop continues from the new index.
		offset := pos.Timestamp.Sub(p.positions[0].Timestamp)
		p.startTime = p.now().Add(-time.Duration(float64(offset) / p.speed))
		p.pausedAccum = 0
	}
	p.mu.Unlock()

	if emit != nil && p.callbacks.OnPositionUpdate != nil {
		p.callbacks.OnPositionUpdate(*emit)
	}
}

// Progress reports currentIndex / len, in [0, 1]. It reaches 1 only
// when playback has run off the end of the dataset.
func (p *Player) Progress() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.positions) == 0 {
		return 0
	}
	return float64(p.currentIndex) / float64(len(p.positions))
}

// State reports the lifecycle state.
func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// TimeRange reports the dataset's first and last timestamps.
func (p *Player) TimeRange() (time.Time, time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.positions) == 0 {
		return time.Time{}, time.Time{}
	}
	return p.positions[0].Timestamp, p.positions[len(p.positions)-1].Timestamp
}

// animate is the playback loop: one tick per frame, at most one
// position advanced per tick so motion stays smooth.
func (p *Player) animate(ctx context.Context) {
	ticker := time.NewTicker(p.frameInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			emit, done := p.step()
			if emit != nil && p.callbacks.OnPositionUpdate != nil {
				p.callbacks.OnPositionUpdate(*emit)
			}
			if done {
				if p.callbacks.OnComplete != nil {
					p.callbacks.OnComplete()
				}
				return
			}
		}
	}
}

// step advances at most one position. It returns the position to emit
// (if any) and whether playback naturally completed on this tick.
func (p *Player) step() (*models.HistoricalPosition, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StatePlaying {
		return nil, false
	}
	if p.currentIndex >= len(p.positions) {
		p.state = StateStopped
		p.sessionCancel = nil
		return nil, true
	}

	elapsed := p.now().Sub(p.startTime) - p.pausedAccum
	target := p.positions[0].Timestamp.Add(time.Duration(float64(elapsed) * p.speed))
	pos := p.positions[p.currentIndex]
	if pos.Timestamp.After(target) {
		return nil, false
	}

	p.currentIndex++
	if p.currentIndex >= len(p.positions) {
		p.state = StateStopped
		p.sessionCancel = nil
		return &pos, true
	}
	return &pos, false
}

// nearestIndex finds the sample closest in time to target. Caller
// holds p.mu.
func (p *Player) nearestIndex(target time.Time) int {
	idx := sort.Search(len(p.positions), func(i int) bool {
		return !p.positions[i].Timestamp.Before(target)
	})
	if idx == 0 {
		return 0
	}
	if idx == len(p.positions) {
		return len(p.positions) - 1
	}
	before := target.Sub(p.positions[idx-1].Timestamp)
	after := p.positions[idx].Timestamp.Sub(target)
	if before <= after {
		return idx - 1
	}
	return idx
}

func (p *Player) stopSession() {
	p.mu.Lock()
	cancel := p.sessionCancel
	p.sessionCancel = nil
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	p.wg.Wait()
}

func positionFromRow(row backend.Row) models.HistoricalPosition {
	ts := time.Now()
	if s := row.String("timestamp"); s != "" {
		if parsed, err := time.Parse(time.RFC3339, s); err == nil {
			ts = parsed
		}
	}
	return models.HistoricalPosition{
		PositionID:     row.String("id"),
		TripID:         row.String("trip_id"),
		VehicleID:      row.String("vehicle_id"),
		DriverID:       row.String("driver_id"),
		RouteID:        row.String("route_id"),
		Lat:            floatOr(row, "latitude"),
		Lng:            floatOr(row, "longitude"),
		Speed:          row.Float("speed"),
		Heading:        row.Float("heading"),
		Timestamp:      ts,
		PassengerCount: int(floatOr(row, "passenger_count")),
	}
}

// downsample keeps, per vehicle, the first sample of each interval.
// The input must already be sorted ascending by timestamp.
func downsample(positions []models.HistoricalPosition, interval time.Duration) []models.HistoricalPosition {
	kept := positions[:0:0]
	lastKept := make(map[string]time.Time)
	for _, pos := range positions {
		if last, ok := lastKept[pos.VehicleID]; ok && pos.Timestamp.Sub(last) < interval {
			continue
		}
		lastKept[pos.VehicleID] = pos.Timestamp
		kept = append(kept, pos)
	}
	return kept
}

func floatOr(row backend.Row, col string) float64 {
	if f := row.Float(col); f != nil {
		return *f
	}
	return 0
}
