// Gridfleet - Fleet Operations Live Data Synchronization
// Copyright 2026 Gridfleet Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gridfleet/gridfleet

// Package retry provides a generic bounded-retry executor with
// exponential backoff. Callers wrap any fallible operation; the
// executor decides retryability, spaces out attempts, and reports the
// final error once the budget is exhausted.
package retry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gridfleet/gridfleet/internal/logging"
)

// Options control a Do call. The zero value is not useful; start from
// DefaultOptions and override.
type Options struct {
	// MaxRetries is the number of attempts after the first. MaxRetries
	// of 3 means up to 4 calls total.
	MaxRetries int
	// InitialDelay spaces the first retry; each subsequent delay is
	// multiplied by Multiplier and capped at MaxDelay.
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64

	// RetryableErrors, when non-empty, restricts retries to errors
	// matching one of the listed signatures. Matching is a
	// case-insensitive substring check against the error message and,
	// when the error implements Code() string, against that code. Any
	// other error fails immediately. Empty means every error is
	// retryable.
	RetryableErrors []string

	// OnRetry, when set, is invoked before each retry sleep with the
	// attempt number that just failed (1-based) and its error.
	OnRetry func(attempt int, err error)

	// sleep is swapped in tests to avoid real delays.
	sleep func(ctx context.Context, d time.Duration) error
}

// DefaultOptions match the executor's standard budget: three retries
// starting at one second and doubling, never waiting over ten seconds.
func DefaultOptions() Options {
	return Options{
		MaxRetries:   3,
		InitialDelay: time.Second,
		MaxDelay:     10 * time.Second,
		Multiplier:   2,
	}
}

// Result reports how a Do call ended: whether it succeeded, how many
// attempts were made, and the last error when it did not.
type Result struct {
	Success  bool
	Attempts int
	Err      error
}

// Do runs op until it succeeds, exhausts the retry budget, hits a
// non-retryable error, or ctx is done. Result.Err carries the last
// attempt's error wrapped with the attempt count.
func Do(ctx context.Context, name string, opts Options, op func(ctx context.Context) error) Result {
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.Multiplier <= 0 {
		opts.Multiplier = 2
	}
	if opts.InitialDelay <= 0 {
		opts.InitialDelay = time.Second
	}
	sleep := opts.sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	var lastErr error
	attempts := opts.MaxRetries + 1
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Result{Attempts: attempt - 1, Err: fmt.Errorf("retry %s: %w", name, err)}
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return Result{Success: true, Attempts: attempt}
		}

		if !retryable(lastErr, opts.RetryableErrors) {
			return Result{Attempts: attempt, Err: fmt.Errorf("retry %s: non-retryable after attempt %d: %w", name, attempt, lastErr)}
		}
		if attempt == attempts {
			break
		}

		delay := Backoff(attempt, opts.InitialDelay, opts.MaxDelay, opts.Multiplier)
		logging.Debug().
			Str("operation", name).
			Int("attempt", attempt).
			Dur("delay", delay).
			Err(lastErr).
			Msg("retrying after failure")
		if opts.OnRetry != nil {
			opts.OnRetry(attempt, lastErr)
		}
		if err := sleep(ctx, delay); err != nil {
			return Result{Attempts: attempt, Err: fmt.Errorf("retry %s: %w", name, err)}
		}
	}
	return Result{Attempts: attempts, Err: fmt.Errorf("retry %s: exhausted %d attempts: %w", name, attempts, lastErr)}
}

// Backoff returns the delay before the retry following the given
// attempt (1-based): initial * multiplier^(attempt-1), capped at max.
func Backoff(attempt int, initial, max time.Duration, multiplier float64) time.Duration {
	d := float64(initial)
	for i := 1; i < attempt; i++ {
		d *= multiplier
		if max > 0 && d >= float64(max) {
			return max
		}
	}
	if max > 0 && d > float64(max) {
		return max
	}
	return time.Duration(d)
}

type coder interface {
	Code() string
}

func retryable(err error, patterns []string) bool {
	if len(patterns) == 0 {
		return true
	}
	msg := strings.ToLower(err.Error())
	var code string
	var c coder
	if errors.As(err, &c) {
		code = strings.ToLower(c.Code())
	}
	for _, p := range patterns {
		p = strings.ToLower(p)
		if strings.Contains(msg, p) {
			return true
		}
		if code != "" && strings.Contains(code, p) {
			return true
		}
	}
	return false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
