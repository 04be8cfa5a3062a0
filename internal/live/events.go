// Gridfleet - Fleet Operations Live Data Synchronization
// Copyright 2026 Gridfleet Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gridfleet/gridfleet

package live

import (
	"fmt"
	"time"

	json "github.com/goccy/go-json"

	"github.com/gridfleet/gridfleet/internal/backend"
)

// Push channel topics, one per domain. Publishers emit a change event
// per inserted or updated row; incident and assistance topics are
// filtered at the source to open/active records.
const (
	TopicPositions  = "fleet.positions"
	TopicTrips      = "fleet.trips"
	TopicIncidents  = "fleet.incidents"
	TopicAssistance = "fleet.assistance"
)

// Topics lists every channel the pipeline subscribes to.
var Topics = []string{TopicPositions, TopicTrips, TopicIncidents, TopicAssistance}

// changeEvent is the wire shape of a push message: the row as it now
// exists.
type changeEvent struct {
	New backend.Row `json:"new"`
}

// decodeChange extracts the row from a raw push message payload.
func decodeChange(payload []byte) (backend.Row, error) {
	var ev changeEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, fmt.Errorf("decoding change event: %w", err)
	}
	if ev.New == nil {
		return nil, fmt.Errorf("change event without new row")
	}
	return ev.New, nil
}

// parseTimestamp reads an RFC 3339 timestamp column, falling back to
// the current time when absent or unparseable.
func parseTimestamp(row backend.Row, col string) time.Time {
	s := row.String(col)
	if s == "" {
		return time.Now()
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Now()
	}
	return t
}

// parseTimestampPtr is parseTimestamp without the fallback, for
// optional columns.
func parseTimestampPtr(row backend.Row, col string) *time.Time {
	s := row.String(col)
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	return &t
}
