// Gridfleet - Fleet Operations Live Data Synchronization
// Copyright 2026 Gridfleet Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gridfleet/gridfleet

package writeback

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gridfleet/gridfleet/internal/backend"
	"github.com/gridfleet/gridfleet/internal/models"
)

// ErrUnknownResource marks operations naming a resource kind with no
// backend table.
var ErrUnknownResource = errors.New("tipo de recurso desconhecido")

// kindTables maps each resource kind to its backend table. Drivers and
// operators share the users table; the role column separates them.
var kindTables = map[models.ResourceKind]string{
	models.ResourceVehicle:     "vehicles",
	models.ResourceDriver:      "users",
	models.ResourceRoute:       "routes",
	models.ResourceMaintenance: "gf_vehicle_maintenance",
	models.ResourceChecklist:   "gf_vehicle_checklists",
	models.ResourceDocument:    "gf_driver_documents",
	models.ResourceOperator:    "users",
	models.ResourceCompany:     "companies",
	models.ResourceInvoice:     "gf_invoices",
	models.ResourceSchedule:    "gf_report_schedules",
	models.ResourceAssistance:  "gf_assistance_requests",
}

// TableFor resolves the backend table for a kind. The reconciliation
// sweep uses it to re-fetch rows it spot-checks.
func TableFor(kind models.ResourceKind) (string, error) {
	return tableFor(kind)
}

// tableFor resolves the backend table for a kind.
func tableFor(kind models.ResourceKind) (string, error) {
	table, ok := kindTables[kind]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownResource, kind)
	}
	return table, nil
}

// mapPayload normalizes a payload for submission: numeric fields
// arriving as strings become numbers, active flags default to true,
// bare dates become timestamps. Runs after validation; the input row
// is not mutated.
func mapPayload(kind models.ResourceKind, data backend.Row) backend.Row {
	mapped := make(backend.Row, len(data))
	for k, v := range data {
		mapped[k] = v
	}

	switch kind {
	case models.ResourceVehicle:
		coerceInt(mapped, "year")
		coerceInt(mapped, "capacity")
		coerceActiveFlag(mapped)
	case models.ResourceDriver:
		if s, _ := mapped["role"].(string); s == "" {
			mapped["role"] = "driver"
		}
		coerceActiveFlag(mapped)
	case models.ResourceRoute:
		coerceActiveFlag(mapped)
	case models.ResourceMaintenance:
		coerceTimestamp(mapped, "due_at")
	case models.ResourceChecklist:
		coerceTimestamp(mapped, "filled_at")
	}
	return mapped
}

func coerceInt(row backend.Row, field string) {
	s, ok := row[field].(string)
	if !ok {
		return
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		row[field] = nil
		return
	}
	row[field] = n
}

// coerceActiveFlag forces is_active to a boolean, defaulting to true
// for anything that is not explicitly false.
func coerceActiveFlag(row backend.Row) {
	if _, isBool := row["is_active"].(bool); isBool {
		return
	}
	row["is_active"] = row["is_active"] != false
}

// coerceTimestamp upgrades a bare date (no time component) to a full
// RFC 3339 timestamp at midnight UTC.
func coerceTimestamp(row backend.Row, field string) {
	s, ok := row[field].(string)
	if !ok || s == "" || strings.Contains(s, "T") {
		return
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return
	}
	row[field] = t.UTC().Format(time.RFC3339)
}
