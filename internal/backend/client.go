// Gridfleet - Fleet Operations Live Data Synchronization
// Copyright 2026 Gridfleet Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gridfleet/gridfleet

// Package backend talks to the authoritative fleet store over its REST
// interface. The sync core treats the store as a black box: rows in,
// rows out, plus a not-found sentinel the callers branch on.
package backend

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
// Callers distinguish it from transport failures: a missing record is
// a reconcilable state, a failed request is not.
var ErrNotFound = errors.New("backend: record not found")

// Row is a single record as the store returns it. Column types follow
// JSON decoding: strings, float64, bool, nil, nested maps/slices.
type Row map[string]any

// String returns the named column as a string, or "" when absent or
// not a string.
func (r Row) String(col string) string {
	s, _ := r[col].(string)
	return s
}

// Float returns the named column as a float64 pointer, nil when the
// column is absent or null.
func (r Row) Float(col string) *float64 {
	f, ok := r[col].(float64)
	if !ok {
		return nil
	}
	return &f
}

// Filter restricts a query to rows matching column <op> value.
// Supported ops mirror the store's REST dialect: eq, neq, gt, gte,
// lt, lte, in.
type Filter struct {
	Column string
	Op     string
	Value  string
}

// Eq is shorthand for an equality filter.
func Eq(column, value string) Filter {
	return Filter{Column: column, Op: "eq", Value: value}
}

// Gte is shorthand for a greater-or-equal filter.
func Gte(column, value string) Filter {
	return Filter{Column: column, Op: "gte", Value: value}
}

// QueryOptions shape a Query call.
type QueryOptions struct {
	Filters []Filter
	// OrderBy sorts results by a column; Descending flips direction.
	OrderBy    string
	Descending bool
	Limit      int
}

// Client is the store access surface the sync core depends on. The
// production implementation is RESTClient; tests substitute an
// in-memory fake.
type Client interface {
	// Query returns all rows in table matching opts.
	Query(ctx context.Context, table string, opts QueryOptions) ([]Row, error)
	// QueryOne returns the single row with the given primary key, or
	// ErrNotFound.
	QueryOne(ctx context.Context, table, id string) (Row, error)
	// Insert creates a row and returns the stored representation.
	Insert(ctx context.Context, table string, row Row) (Row, error)
	// Update patches the row with the given primary key.
	Update(ctx context.Context, table, id string, row Row) (Row, error)
	// Delete removes the row with the given primary key.
	Delete(ctx context.Context, table, id string) error
}

// FormatTime renders t the way the store's timestamp filters expect.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// RequestError carries the HTTP status and response body of a failed
// store call so the write-back engine can record structured failures.
type RequestError struct {
	Status int
	Body   string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("backend: request failed with status %d: %s", e.Status, e.Body)
}
