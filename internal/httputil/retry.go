// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package httputil provides the bounded retry helpers shared by the catalog
// adapters and the embedding provider.
package httputil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/HiNala/bio-hack-sub000/internal/apperr"
	"github.com/HiNala/bio-hack-sub000/internal/logger"
)

// RetryBaseDelay is the first backoff delay; it doubles each attempt. Tests
// override it to avoid real sleeps.
var RetryBaseDelay = 1 * time.Second

// MaxRetryDelay caps a single backoff wait, including Retry-After hints.
var MaxRetryDelay = 30 * time.Second

// DefaultMaxAttempts is used when a caller passes 0.
const DefaultMaxAttempts = 3

// Backoff returns the wait before retry number attempt (0-based):
// RetryBaseDelay * 2^attempt, capped at MaxRetryDelay.
func Backoff(attempt int) time.Duration {
	d := RetryBaseDelay
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= MaxRetryDelay {
			return MaxRetryDelay
		}
	}
	if d > MaxRetryDelay {
		return MaxRetryDelay
	}
	return d
}

// DoWithRetry executes an HTTP request, retrying HTTP 429, HTTP 5xx, and
// transport errors with exponential backoff for at most maxAttempts calls in
// total (DefaultMaxAttempts when maxAttempts is 0). A Retry-After header on a
// 429 replaces the computed delay, capped at MaxRetryDelay.
//
// After exhausting attempts the last response is returned as-is so the caller
// can map its status with StatusError. If the context is cancelled during a
// backoff wait the function returns ctx.Err().
func DoWithRetry(ctx context.Context, client *http.Client, req *http.Request, maxAttempts int) (*http.Response, error) {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	log := logger.FromContext(ctx)

	for attempt := 0; ; attempt++ {
		resp, err := client.Do(req.Clone(ctx))
		last := attempt+1 >= maxAttempts

		var wait time.Duration
		switch {
		case err != nil:
			if ctx.Err() != nil || last {
				return nil, err
			}
			wait = Backoff(attempt)
			log.Warn("request failed, retrying",
				zap.String("url", req.URL.Redacted()),
				zap.Int("attempt", attempt+1),
				zap.Duration("backoff", wait),
				zap.Error(err))

		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			if last {
				return resp, nil
			}
			wait = Backoff(attempt)
			if hint := ParseRetryAfter(resp.Header.Get("Retry-After")); hint > 0 {
				wait = min(hint, MaxRetryDelay)
			}
			// Drain and close the body before retrying.
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			log.Warn("retryable status, retrying",
				zap.String("url", req.URL.Redacted()),
				zap.Int("status", resp.StatusCode),
				zap.Int("attempt", attempt+1),
				zap.Duration("backoff", wait))

		default:
			return resp, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
}

// Retry calls fn until it succeeds, returns a non-retryable error (see
// apperr.Retryable), or maxAttempts calls have been made. A RateLimitError's
// retry-after hint replaces the computed backoff.
func Retry(ctx context.Context, maxAttempts int, fn func(ctx context.Context) error) error {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	log := logger.FromContext(ctx)

	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if !apperr.Retryable(err) || attempt+1 >= maxAttempts {
			break
		}

		wait := Backoff(attempt)
		if hint, ok := apperr.RetryAfter(err); ok {
			wait = min(hint, MaxRetryDelay)
		}
		log.Warn("operation failed, retrying",
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", maxAttempts),
			zap.Duration("backoff", wait),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return errors.Join(err, ctx.Err())
		case <-time.After(wait):
		}
	}
	return err
}

// ParseRetryAfter reads a Retry-After header given in seconds or as an HTTP
// date. It returns 0 when the header is absent or unparseable.
func ParseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// StatusError maps a non-200 response to an apperr kind: 429 becomes a
// RateLimitError carrying the Retry-After hint, anything else an
// ExternalAPIError. The body is not consumed.
func StatusError(service string, resp *http.Response) error {
	if resp.StatusCode == http.StatusTooManyRequests {
		return &apperr.RateLimitError{
			Service:    service,
			RetryAfter: ParseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}
	return apperr.External(service, resp.StatusCode, fmt.Errorf("%s returned HTTP %d", service, resp.StatusCode))
}
