// Gridfleet - Fleet Operations Live Data Synchronization
// Copyright 2026 Gridfleet Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gridfleet/gridfleet

package backend

import (
	"context"
	"sort"
	"strconv"
	"sync"
)

// MemoryClient is an in-memory Client used by tests and offline
// development. It applies the same filter dialect the REST client
// sends, so query behavior matches.
type MemoryClient struct {
	mu     sync.Mutex
	tables map[string]map[string]Row

	// FailWith, when set, makes every call return that error. Tests
	// use it to simulate store outages.
	FailWith error
}

// NewMemoryClient returns an empty in-memory store.
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{tables: make(map[string]map[string]Row)}
}

// Seed places a row directly into a table, bypassing error injection.
func (m *MemoryClient) Seed(table, id string, row Row) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tables[table] == nil {
		m.tables[table] = make(map[string]Row)
	}
	cp := make(Row, len(row)+1)
	for k, v := range row {
		cp[k] = v
	}
	cp["id"] = id
	m.tables[table][id] = cp
}

// Query implements Client.
func (m *MemoryClient) Query(_ context.Context, table string, opts QueryOptions) ([]Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return nil, m.FailWith
	}
	var rows []Row
	for _, row := range m.tables[table] {
		if matchesAll(row, opts.Filters) {
			rows = append(rows, row)
		}
	}
	if opts.OrderBy != "" {
		col, desc := opts.OrderBy, opts.Descending
		sort.Slice(rows, func(i, j int) bool {
			less := compareValues(rows[i][col], rows[j][col]) < 0
			if desc {
				return !less
			}
			return less
		})
	}
	if opts.Limit > 0 && len(rows) > opts.Limit {
		rows = rows[:opts.Limit]
	}
	return rows, nil
}

// QueryOne implements Client.
func (m *MemoryClient) QueryOne(_ context.Context, table, id string) (Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return nil, m.FailWith
	}
	row, ok := m.tables[table][id]
	if !ok {
		return nil, ErrNotFound
	}
	return row, nil
}

// Insert implements Client.
func (m *MemoryClient) Insert(_ context.Context, table string, row Row) (Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return nil, m.FailWith
	}
	if m.tables[table] == nil {
		m.tables[table] = make(map[string]Row)
	}
	id, _ := row["id"].(string)
	if id == "" {
		id = "mem-" + strconv.Itoa(len(m.tables[table])+1)
		cp := make(Row, len(row)+1)
		for k, v := range row {
			cp[k] = v
		}
		cp["id"] = id
		row = cp
	}
	m.tables[table][id] = row
	return row, nil
}

// Update implements Client.
func (m *MemoryClient) Update(_ context.Context, table, id string, row Row) (Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return nil, m.FailWith
	}
	existing, ok := m.tables[table][id]
	if !ok {
		return nil, ErrNotFound
	}
	for k, v := range row {
		existing[k] = v
	}
	return existing, nil
}

// Delete implements Client.
func (m *MemoryClient) Delete(_ context.Context, table, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return m.FailWith
	}
	if _, ok := m.tables[table][id]; !ok {
		return ErrNotFound
	}
	delete(m.tables[table], id)
	return nil
}

// Count reports the number of rows in a table.
func (m *MemoryClient) Count(table string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tables[table])
}

func matchesAll(row Row, filters []Filter) bool {
	for _, f := range filters {
		if !matches(row, f) {
			return false
		}
	}
	return true
}

func matches(row Row, f Filter) bool {
	val := row[f.Column]
	switch f.Op {
	case "eq":
		return stringify(val) == f.Value
	case "neq":
		return stringify(val) != f.Value
	case "gt":
		return compareValues(val, f.Value) > 0
	case "gte":
		return compareValues(val, f.Value) >= 0
	case "lt":
		return compareValues(val, f.Value) < 0
	case "lte":
		return compareValues(val, f.Value) <= 0
	default:
		return false
	}
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case nil:
		return ""
	default:
		return ""
	}
}

func compareValues(a, b any) int {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	as, bs := stringify(a), stringify(b)
	switch {
	case as < bs:
		return -1
	case as > bs:
		return 1
	default:
		return 0
	}
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
