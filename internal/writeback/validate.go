// Gridfleet - Fleet Operations Live Data Synchronization
// Copyright 2026 Gridfleet Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gridfleet/gridfleet

package writeback

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/gridfleet/gridfleet/internal/backend"
	"github.com/gridfleet/gridfleet/internal/models"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
	})
	return validate
}

// fieldRule is one required-field or format check for a resource kind.
// Rules run in declaration order so error messages are deterministic.
// Operator-facing messages are in Portuguese, matching the fleet
// product's locale.
type fieldRule struct {
	field   string
	tag     string
	message string
}

// kindRules pins each resource kind to its checks. Kinds absent from
// the map (invoice) have no payload constraints.
var kindRules = map[models.ResourceKind][]fieldRule{
	models.ResourceVehicle: {
		{"plate", "required", "Placa é obrigatória"},
		{"model", "required", "Modelo é obrigatório"},
		{"capacity", "gt=0", "Capacidade deve ser maior que zero"},
	},
	models.ResourceDriver: {
		{"name", "required", "Nome é obrigatório"},
		{"email", "required", "Email é obrigatório"},
		{"email", "omitempty,email", "Email inválido"},
	},
	models.ResourceRoute: {
		{"name", "required", "Nome da rota é obrigatório"},
		{"company_id", "required", "ID da empresa é obrigatório"},
	},
	models.ResourceMaintenance: {
		{"vehicle_id", "required", "ID do veículo é obrigatório"},
		{"type", "required", "Tipo de manutenção é obrigatório"},
	},
	models.ResourceChecklist: {
		{"vehicle_id", "required", "ID do veículo é obrigatório"},
		{"driver_id", "required", "ID do motorista é obrigatório"},
	},
	models.ResourceDocument: {
		{"driver_id", "required", "ID do motorista é obrigatório"},
		{"type", "required", "Tipo de documento é obrigatório"},
	},
	models.ResourceOperator: {
		{"email", "required", "Email é obrigatório"},
		{"email", "omitempty,email", "Email inválido"},
	},
	models.ResourceCompany: {
		{"name", "required", "Nome da empresa é obrigatório"},
	},
	models.ResourceAssistance: {
		{"status", "required", "Status é obrigatório"},
	},
	models.ResourceSchedule: {
		{"company_id", "required", "ID da empresa é obrigatório"},
		{"report_key", "required", "Chave do relatório é obrigatória"},
		{"cron", "required", "Expressão cron é obrigatória"},
	},
}

// ValidationError carries the full list of failed checks for a payload.
type ValidationError struct {
	Kind   models.ResourceKind
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("Validação falhou: %s", strings.Join(e.Errors, ", "))
}

// validatePayload runs the kind's rules against the payload. A nil
// return means the payload is acceptable for submission.
func validatePayload(kind models.ResourceKind, data backend.Row) error {
	rules, ok := kindRules[kind]
	if !ok {
		return nil
	}
	v := getValidator()
	var errs []string
	for _, r := range rules {
		val := data[r.field]
		if emptyValue(val) {
			// Mirror validator's required semantics for the untyped
			// values a JSON payload carries.
			if strings.HasPrefix(r.tag, "required") {
				errs = append(errs, r.message)
			}
			continue
		}
		if numericTag(r.tag) {
			n, ok := numericValue(val)
			if !ok {
				errs = append(errs, r.message)
				continue
			}
			val = n
		}
		if err := v.Var(val, r.tag); err != nil {
			errs = append(errs, r.message)
		}
	}
	if len(errs) > 0 {
		return &ValidationError{Kind: kind, Errors: errs}
	}
	return nil
}

// numericTag reports whether the rule compares magnitudes. Validator
// applies such tags to a string as a length check, so stringly payload
// values are coerced to numbers first.
func numericTag(tag string) bool {
	for _, p := range []string{"gt=", "gte=", "lt=", "lte="} {
		if strings.HasPrefix(tag, p) {
			return true
		}
	}
	return false
}

func numericValue(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

func emptyValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	default:
		return false
	}
}
