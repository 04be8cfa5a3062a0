// Gridfleet - Fleet Operations Live Data Synchronization
// Copyright 2026 Gridfleet Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gridfleet/gridfleet

// Package models defines the entity model shared by the live update
// pipeline, the write-back engine, the reconciliation sweep and the
// playback engine.
package models

import "time"

// UpdateKind discriminates the envelope union.
type UpdateKind string

const (
	UpdateKindPosition UpdateKind = "position"
	UpdateKindTrip     UpdateKind = "trip"
	UpdateKindAlert    UpdateKind = "alert"
)

// MovementState is derived from speed at normalization time.
// Only Moving and StoppedShort are currently emitted; the richer states
// need dwell-duration signals this layer does not receive.
type MovementState string

const (
	MovementMoving       MovementState = "moving"
	MovementStoppedShort MovementState = "stopped_short"
	MovementStoppedLong  MovementState = "stopped_long"
	MovementGarage       MovementState = "garage"
)

// movingSpeedThreshold approximates walking pace in m/s.
const movingSpeedThreshold = 0.83

// DeriveMovementState maps a speed reading to a movement state.
func DeriveMovementState(speed *float64) MovementState {
	if speed != nil && *speed > movingSpeedThreshold {
		return MovementMoving
	}
	return MovementStoppedShort
}

// TripStatus is the lifecycle state of a trip.
type TripStatus string

const (
	TripScheduled  TripStatus = "scheduled"
	TripInProgress TripStatus = "inProgress"
	TripCompleted  TripStatus = "completed"
	TripCancelled  TripStatus = "cancelled"
)

// AlertKind distinguishes the two alert sources.
type AlertKind string

const (
	AlertIncident   AlertKind = "incident"
	AlertAssistance AlertKind = "assistance"
)

// AlertSeverity orders alerts for consumers.
type AlertSeverity string

const (
	SeverityLow      AlertSeverity = "low"
	SeverityMedium   AlertSeverity = "medium"
	SeverityHigh     AlertSeverity = "high"
	SeverityCritical AlertSeverity = "critical"
)

// PositionUpdate is a normalized vehicle position event. It carries every
// identifier a consumer needs to route it without further lookups.
type PositionUpdate struct {
	VehicleID      string        `json:"vehicle_id"`
	TripID         string        `json:"trip_id"`
	DriverID       string        `json:"driver_id"`
	RouteID        string        `json:"route_id"`
	Lat            float64       `json:"lat"`
	Lng            float64       `json:"lng"`
	Speed          *float64      `json:"speed,omitempty"`
	Heading        *float64      `json:"heading,omitempty"`
	Timestamp      time.Time     `json:"timestamp"`
	MovementState  MovementState `json:"movement_state"`
	PassengerCount int           `json:"passenger_count"`
}

// TripUpdate is a normalized trip lifecycle event.
type TripUpdate struct {
	TripID      string     `json:"trip_id"`
	RouteID     string     `json:"route_id"`
	VehicleID   string     `json:"vehicle_id"`
	DriverID    string     `json:"driver_id"`
	Status      TripStatus `json:"status"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// AlertUpdate is a normalized alert from either the incident or the
// assistance-request channel.
type AlertUpdate struct {
	AlertID     string        `json:"alert_id"`
	Kind        AlertKind     `json:"alert_kind"`
	CompanyID   string        `json:"company_id"`
	RouteID     string        `json:"route_id,omitempty"`
	VehicleID   string        `json:"vehicle_id,omitempty"`
	Severity    AlertSeverity `json:"severity"`
	Lat         *float64      `json:"lat,omitempty"`
	Lng         *float64      `json:"lng,omitempty"`
	Description string        `json:"description"`
	CreatedAt   time.Time     `json:"created_at"`
}

// Envelope is the tagged union delivered to pipeline subscribers.
// Exactly one of Position, Trip or Alert is non-nil, matching Kind.
type Envelope struct {
	Kind     UpdateKind      `json:"kind"`
	Position *PositionUpdate `json:"position,omitempty"`
	Trip     *TripUpdate     `json:"trip,omitempty"`
	Alert    *AlertUpdate    `json:"alert,omitempty"`
}

// NewPositionEnvelope wraps a position update.
func NewPositionEnvelope(p PositionUpdate) Envelope {
	return Envelope{Kind: UpdateKindPosition, Position: &p}
}

// NewTripEnvelope wraps a trip update.
func NewTripEnvelope(t TripUpdate) Envelope {
	return Envelope{Kind: UpdateKindTrip, Trip: &t}
}

// NewAlertEnvelope wraps an alert update.
func NewAlertEnvelope(a AlertUpdate) Envelope {
	return Envelope{Kind: UpdateKindAlert, Alert: &a}
}

// Trip is the entity cache entry owned by the live update pipeline.
// Written through on every trip push event, fetched on miss when a
// position references an unseen trip, and cleared only on disconnect.
type Trip struct {
	ID          string     `json:"id"`
	VehicleID   string     `json:"vehicle_id"`
	RouteID     string     `json:"route_id"`
	DriverID    string     `json:"driver_id"`
	Status      TripStatus `json:"status"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// HistoricalPosition is one sample of a bulk-loaded position series.
// Immutable once loaded; the playback engine sorts series ascending by
// Timestamp.
type HistoricalPosition struct {
	PositionID     string    `json:"position_id"`
	TripID         string    `json:"trip_id"`
	VehicleID      string    `json:"vehicle_id"`
	DriverID       string    `json:"driver_id"`
	RouteID        string    `json:"route_id"`
	Lat            float64   `json:"lat"`
	Lng            float64   `json:"lng"`
	Speed          *float64  `json:"speed,omitempty"`
	Heading        *float64  `json:"heading,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
	PassengerCount int       `json:"passenger_count"`
}
