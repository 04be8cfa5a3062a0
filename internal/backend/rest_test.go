// Gridfleet - Fleet Operations Live Data Synchronization
// Copyright 2026 Gridfleet Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gridfleet/gridfleet

package backend

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestQueryBuildsFilterParams(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		if r.Header.Get("apikey") != "test-key" {
			t.Errorf("apikey header = %q", r.Header.Get("apikey"))
		}
		w.Write([]byte(`[{"id":"v1","plate":"ABC1234"}]`))
	}))
	defer srv.Close()

	c := NewRESTClient(srv.URL, "test-key", 5*time.Second)
	rows, err := c.Query(context.Background(), "vehicles", QueryOptions{
		Filters:    []Filter{Eq("status", "active")},
		OrderBy:    "created_at",
		Descending: true,
		Limit:      10,
	})
	if err != nil {
		t.Fatalf("Query() error: %v", err)
	}
	if len(rows) != 1 || rows[0].String("plate") != "ABC1234" {
		t.Errorf("rows = %v", rows)
	}
	for _, want := range []string{"status=eq.active", "order=created_at.desc", "limit=10"} {
		if !strings.Contains(gotQuery, want) {
			t.Errorf("query %q missing %q", gotQuery, want)
		}
	}
}

func TestQueryOneNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := NewRESTClient(srv.URL, "k", time.Second)
	_, err := c.QueryOne(context.Background(), "trips", "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("QueryOne() error = %v, want ErrNotFound", err)
	}
}

func TestInsertReturnsRepresentation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if got := r.Header.Get("Prefer"); got != "return=representation" {
			t.Errorf("Prefer = %q", got)
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`[{"id":"new-1","plate":"XYZ9876"}]`))
	}))
	defer srv.Close()

	c := NewRESTClient(srv.URL, "k", time.Second)
	row, err := c.Insert(context.Background(), "vehicles", Row{"plate": "XYZ9876"})
	if err != nil {
		t.Fatalf("Insert() error: %v", err)
	}
	if row.String("id") != "new-1" {
		t.Errorf("id = %q, want new-1", row.String("id"))
	}
}

func TestErrorStatusProducesRequestError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`duplicate key`))
	}))
	defer srv.Close()

	c := NewRESTClient(srv.URL, "k", time.Second)
	_, err := c.Insert(context.Background(), "vehicles", Row{"plate": "DUP0001"})
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("error = %v, want *RequestError", err)
	}
	if reqErr.Status != http.StatusConflict {
		t.Errorf("status = %d, want 409", reqErr.Status)
	}
	if reqErr.Body != "duplicate key" {
		t.Errorf("body = %q", reqErr.Body)
	}
}

func TestDeleteNotFoundStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewRESTClient(srv.URL, "k", time.Second)
	err := c.Delete(context.Background(), "vehicles", "ghost")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete() error = %v, want ErrNotFound", err)
	}
}
