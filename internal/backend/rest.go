// Gridfleet - Fleet Operations Live Data Synchronization
// Copyright 2026 Gridfleet Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gridfleet/gridfleet

package backend

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	json "github.com/goccy/go-json"

	"github.com/gridfleet/gridfleet/internal/logging"
)

// RESTClient implements Client against the store's REST endpoint.
type RESTClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewRESTClient builds a client for the given base URL. The API key is
// sent on every request; timeout bounds each call end to end.
func NewRESTClient(baseURL, apiKey string, timeout time.Duration) *RESTClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &RESTClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

// Query implements Client.
func (c *RESTClient) Query(ctx context.Context, table string, opts QueryOptions) ([]Row, error) {
	params := url.Values{}
	params.Set("select", "*")
	for _, f := range opts.Filters {
		params.Set(f.Column, f.Op+"."+f.Value)
	}
	if opts.OrderBy != "" {
		dir := "asc"
		if opts.Descending {
			dir = "desc"
		}
		params.Set("order", opts.OrderBy+"."+dir)
	}
	if opts.Limit > 0 {
		params.Set("limit", strconv.Itoa(opts.Limit))
	}

	body, err := c.do(ctx, http.MethodGet, c.tableURL(table)+"?"+params.Encode(), nil, nil)
	if err != nil {
		return nil, err
	}
	var rows []Row
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("backend: decoding %s rows: %w", table, err)
	}
	return rows, nil
}

// QueryOne implements Client.
func (c *RESTClient) QueryOne(ctx context.Context, table, id string) (Row, error) {
	params := url.Values{}
	params.Set("select", "*")
	params.Set("id", "eq."+id)
	params.Set("limit", "1")

	body, err := c.do(ctx, http.MethodGet, c.tableURL(table)+"?"+params.Encode(), nil, nil)
	if err != nil {
		return nil, err
	}
	var rows []Row
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("backend: decoding %s row: %w", table, err)
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return rows[0], nil
}

// Insert implements Client.
func (c *RESTClient) Insert(ctx context.Context, table string, row Row) (Row, error) {
	payload, err := json.Marshal(row)
	if err != nil {
		return nil, fmt.Errorf("backend: encoding %s insert: %w", table, err)
	}
	headers := map[string]string{"Prefer": "return=representation"}
	body, err := c.do(ctx, http.MethodPost, c.tableURL(table), payload, headers)
	if err != nil {
		return nil, err
	}
	return firstRow(table, body)
}

// Update implements Client.
func (c *RESTClient) Update(ctx context.Context, table, id string, row Row) (Row, error) {
	payload, err := json.Marshal(row)
	if err != nil {
		return nil, fmt.Errorf("backend: encoding %s update: %w", table, err)
	}
	headers := map[string]string{"Prefer": "return=representation"}
	u := c.tableURL(table) + "?id=eq." + url.QueryEscape(id)
	body, err := c.do(ctx, http.MethodPatch, u, payload, headers)
	if err != nil {
		return nil, err
	}
	rows, err := decodeRows(table, body)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return rows[0], nil
}

// Delete implements Client.
func (c *RESTClient) Delete(ctx context.Context, table, id string) error {
	u := c.tableURL(table) + "?id=eq." + url.QueryEscape(id)
	_, err := c.do(ctx, http.MethodDelete, u, nil, nil)
	return err
}

func (c *RESTClient) tableURL(table string) string {
	return c.baseURL + "/rest/v1/" + table
}

func (c *RESTClient) do(ctx context.Context, method, rawURL string, payload []byte, headers map[string]string) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("backend: building request: %w", err)
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("backend: %s %s: %w", method, rawURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("backend: reading response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		logging.Debug().
			Str("method", method).
			Int("status", resp.StatusCode).
			Msg("backend request failed")
		return nil, &RequestError{Status: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

func decodeRows(table string, body []byte) ([]Row, error) {
	var rows []Row
	if len(body) == 0 {
		return nil, nil
	}
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("backend: decoding %s response: %w", table, err)
	}
	return rows, nil
}

func firstRow(table string, body []byte) (Row, error) {
	rows, err := decodeRows(table, body)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("backend: empty response for %s insert", table)
	}
	return rows[0], nil
}
