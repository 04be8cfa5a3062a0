// Gridfleet - Fleet Operations Live Data Synchronization
// Copyright 2026 Gridfleet Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gridfleet/gridfleet

package live

import (
	"strconv"

	"github.com/gridfleet/gridfleet/internal/backend"
	"github.com/gridfleet/gridfleet/internal/models"
)

// tripFromRow builds a cache entry from a trips row.
func tripFromRow(row backend.Row) models.Trip {
	return models.Trip{
		ID:          row.String("id"),
		VehicleID:   row.String("vehicle_id"),
		RouteID:     row.String("route_id"),
		DriverID:    row.String("driver_id"),
		Status:      models.TripStatus(row.String("status")),
		StartedAt:   parseTimestampPtr(row, "started_at"),
		CompletedAt: parseTimestampPtr(row, "completed_at"),
	}
}

// tripUpdateFrom converts a cache entry into the envelope payload.
func tripUpdateFrom(trip models.Trip) models.TripUpdate {
	return models.TripUpdate{
		TripID:      trip.ID,
		RouteID:     trip.RouteID,
		VehicleID:   trip.VehicleID,
		DriverID:    trip.DriverID,
		Status:      trip.Status,
		StartedAt:   trip.StartedAt,
		CompletedAt: trip.CompletedAt,
	}
}

// positionFrom combines a raw position row with its resolved trip.
// Passenger counts are not carried by the position feed yet, so the
// field is always zero here.
func positionFrom(row backend.Row, trip models.Trip) models.PositionUpdate {
	speed := row.Float("speed")
	driverID := trip.DriverID
	if driverID == "" {
		driverID = row.String("driver_id")
	}
	return models.PositionUpdate{
		VehicleID:      trip.VehicleID,
		TripID:         row.String("trip_id"),
		DriverID:       driverID,
		RouteID:        trip.RouteID,
		Lat:            floatOrZero(row, "latitude"),
		Lng:            floatOrZero(row, "longitude"),
		Speed:          speed,
		Heading:        row.Float("heading"),
		Timestamp:      parseTimestamp(row, "timestamp"),
		MovementState:  models.DeriveMovementState(speed),
		PassengerCount: 0,
	}
}

// incidentAlertFrom normalizes an incidents row. Incidents carry no
// coordinates.
func incidentAlertFrom(row backend.Row) models.AlertUpdate {
	severity := models.AlertSeverity(row.String("severity"))
	switch severity {
	case models.SeverityLow, models.SeverityMedium, models.SeverityHigh, models.SeverityCritical:
	default:
		severity = models.SeverityMedium
	}
	return models.AlertUpdate{
		AlertID:     row.String("id"),
		Kind:        models.AlertIncident,
		CompanyID:   row.String("company_id"),
		RouteID:     row.String("route_id"),
		VehicleID:   row.String("vehicle_id"),
		Severity:    severity,
		Description: row.String("description"),
		CreatedAt:   parseTimestamp(row, "created_at"),
	}
}

// assistanceAlertFrom normalizes an assistance request row. The source
// table nests coordinates as strings inside a payload column; absence
// is tolerated.
func assistanceAlertFrom(row backend.Row) models.AlertUpdate {
	var severity models.AlertSeverity
	switch row.String("priority") {
	case "urgente":
		severity = models.SeverityCritical
	case "alta":
		severity = models.SeverityHigh
	default:
		severity = models.SeverityMedium
	}

	description := row.String("notes")
	if description == "" {
		description = "Solicitação de socorro"
	}

	var lat, lng *float64
	if payload, ok := row["payload"].(map[string]any); ok {
		lat = parseCoord(payload["latitude"])
		lng = parseCoord(payload["longitude"])
	}

	return models.AlertUpdate{
		AlertID:     row.String("id"),
		Kind:        models.AlertAssistance,
		CompanyID:   row.String("company_id"),
		RouteID:     row.String("route_id"),
		Severity:    severity,
		Lat:         lat,
		Lng:         lng,
		Description: description,
		CreatedAt:   parseTimestamp(row, "created_at"),
	}
}

// parseCoord reads a coordinate that may arrive as a string or a
// number, returning nil when absent or unparseable.
func parseCoord(v any) *float64 {
	switch t := v.(type) {
	case float64:
		return &t
	case string:
		if t == "" {
			return nil
		}
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return nil
		}
		return &f
	default:
		return nil
	}
}

func floatOrZero(row backend.Row, col string) float64 {
	if f := row.Float(col); f != nil {
		return *f
	}
	return 0
}

// hasCoordinates reports whether a position row carries both
// coordinates.
func hasCoordinates(row backend.Row) bool {
	return row.Float("latitude") != nil && row.Float("longitude") != nil
}
