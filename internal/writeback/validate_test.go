// Gridfleet - Fleet Operations Live Data Synchronization
// Copyright 2026 Gridfleet Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gridfleet/gridfleet

package writeback

import (
	"strings"
	"testing"

	"github.com/gridfleet/gridfleet/internal/backend"
	"github.com/gridfleet/gridfleet/internal/models"
)

func TestValidatePayload(t *testing.T) {
	tests := []struct {
		name     string
		kind     models.ResourceKind
		data     backend.Row
		wantErrs []string
	}{
		{
			name: "valid vehicle",
			kind: models.ResourceVehicle,
			data: backend.Row{"plate": "ABC1D23", "model": "Sprinter 415", "capacity": 20.0},
		},
		{
			name:     "vehicle missing plate and model",
			kind:     models.ResourceVehicle,
			data:     backend.Row{},
			wantErrs: []string{"Placa é obrigatória", "Modelo é obrigatório"},
		},
		{
			name:     "vehicle zero capacity",
			kind:     models.ResourceVehicle,
			data:     backend.Row{"plate": "ABC1D23", "model": "Sprinter", "capacity": 0.0},
			wantErrs: []string{"Capacidade deve ser maior que zero"},
		},
		{
			name:     "vehicle stringly zero capacity",
			kind:     models.ResourceVehicle,
			data:     backend.Row{"plate": "ABC1D23", "model": "Sprinter", "capacity": "0"},
			wantErrs: []string{"Capacidade deve ser maior que zero"},
		},
		{
			name:     "vehicle stringly negative capacity",
			kind:     models.ResourceVehicle,
			data:     backend.Row{"plate": "ABC1D23", "model": "Sprinter", "capacity": "-3"},
			wantErrs: []string{"Capacidade deve ser maior que zero"},
		},
		{
			name:     "vehicle non-numeric capacity",
			kind:     models.ResourceVehicle,
			data:     backend.Row{"plate": "ABC1D23", "model": "Sprinter", "capacity": "vinte"},
			wantErrs: []string{"Capacidade deve ser maior que zero"},
		},
		{
			name: "vehicle stringly positive capacity",
			kind: models.ResourceVehicle,
			data: backend.Row{"plate": "ABC1D23", "model": "Sprinter", "capacity": "20"},
		},
		{
			name: "driver valid email",
			kind: models.ResourceDriver,
			data: backend.Row{"name": "Ana Souza", "email": "ana@frota.example"},
		},
		{
			name:     "driver bad email",
			kind:     models.ResourceDriver,
			data:     backend.Row{"name": "Ana Souza", "email": "not-an-email"},
			wantErrs: []string{"Email inválido"},
		},
		{
			name:     "driver missing everything",
			kind:     models.ResourceDriver,
			data:     backend.Row{},
			wantErrs: []string{"Nome é obrigatório", "Email é obrigatório"},
		},
		{
			name:     "schedule missing cron",
			kind:     models.ResourceSchedule,
			data:     backend.Row{"company_id": "c1", "report_key": "daily-usage"},
			wantErrs: []string{"Expressão cron é obrigatória"},
		},
		{
			name: "invoice has no rules",
			kind: models.ResourceInvoice,
			data: backend.Row{},
		},
		{
			name:     "assistance requires status",
			kind:     models.ResourceAssistance,
			data:     backend.Row{"description": "pneu furado"},
			wantErrs: []string{"Status é obrigatório"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validatePayload(tt.kind, tt.data)
			if len(tt.wantErrs) == 0 {
				if err != nil {
					t.Fatalf("validatePayload() = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("validatePayload() = nil, want %v", tt.wantErrs)
			}
			var vErr *ValidationError
			ok := false
			if e, isVE := err.(*ValidationError); isVE {
				vErr, ok = e, true
			}
			if !ok {
				t.Fatalf("error type = %T, want *ValidationError", err)
			}
			if len(vErr.Errors) != len(tt.wantErrs) {
				t.Fatalf("errors = %v, want %v", vErr.Errors, tt.wantErrs)
			}
			for i, want := range tt.wantErrs {
				if vErr.Errors[i] != want {
					t.Errorf("errors[%d] = %q, want %q", i, vErr.Errors[i], want)
				}
			}
			if !strings.HasPrefix(err.Error(), "Validação falhou: ") {
				t.Errorf("Error() = %q, want prefix", err.Error())
			}
		})
	}
}

func TestMapPayload(t *testing.T) {
	t.Run("vehicle coercions", func(t *testing.T) {
		in := backend.Row{"plate": "ABC1D23", "model": "Sprinter", "year": "2024", "capacity": "20"}
		out := mapPayload(models.ResourceVehicle, in)
		if out["year"] != 2024 {
			t.Errorf("year = %v (%T), want 2024", out["year"], out["year"])
		}
		if out["capacity"] != 20 {
			t.Errorf("capacity = %v, want 20", out["capacity"])
		}
		if out["is_active"] != true {
			t.Errorf("is_active = %v, want true default", out["is_active"])
		}
		// Input row untouched.
		if _, ok := in["is_active"]; ok {
			t.Error("mapPayload mutated input row")
		}
	})

	t.Run("explicit false active flag kept", func(t *testing.T) {
		out := mapPayload(models.ResourceVehicle, backend.Row{"plate": "A", "model": "B", "is_active": false})
		if out["is_active"] != false {
			t.Errorf("is_active = %v, want false", out["is_active"])
		}
	})

	t.Run("driver role default", func(t *testing.T) {
		out := mapPayload(models.ResourceDriver, backend.Row{"name": "Ana", "email": "a@b.c"})
		if out["role"] != "driver" {
			t.Errorf("role = %v, want driver", out["role"])
		}
		out = mapPayload(models.ResourceDriver, backend.Row{"role": "operator"})
		if out["role"] != "operator" {
			t.Errorf("role = %v, want operator preserved", out["role"])
		}
	})

	t.Run("maintenance bare date becomes timestamp", func(t *testing.T) {
		out := mapPayload(models.ResourceMaintenance, backend.Row{"vehicle_id": "v1", "type": "oil", "due_at": "2026-09-01"})
		if out["due_at"] != "2026-09-01T00:00:00Z" {
			t.Errorf("due_at = %v", out["due_at"])
		}
		out = mapPayload(models.ResourceMaintenance, backend.Row{"due_at": "2026-09-01T08:30:00Z"})
		if out["due_at"] != "2026-09-01T08:30:00Z" {
			t.Errorf("due_at with time = %v, want unchanged", out["due_at"])
		}
	})
}

func TestTableFor(t *testing.T) {
	if table, err := tableFor(models.ResourceDriver); err != nil || table != "users" {
		t.Errorf("tableFor(driver) = %q, %v; want users", table, err)
	}
	if table, err := tableFor(models.ResourceOperator); err != nil || table != "users" {
		t.Errorf("tableFor(operator) = %q, %v; want users", table, err)
	}
	if _, err := tableFor(models.ResourceKind("banana")); err == nil {
		t.Error("tableFor(unknown) = nil error")
	}
}
