// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package apperr defines the error kinds shared by the ingestion pipeline and
// the search path. Each kind is a concrete type that also matches a sentinel
// under errors.Is, so callers can branch on the kind without type switches.
package apperr

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// Sentinels matched by the concrete error types below.
var (
	ErrValidation    = errors.New("validation error")
	ErrExternalAPI   = errors.New("external API error")
	ErrRateLimited   = errors.New("rate limit exceeded")
	ErrConfiguration = errors.New("configuration error")
	ErrDatabase      = errors.New("database error")
)

// ValidationError reports malformed input. It is raised before any stage runs.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid input: " + e.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// Is matches ErrValidation.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Validation returns a *ValidationError for field.
func Validation(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// ExternalAPIError reports a failed call to a catalog, the embedding
// provider, or another remote service.
type ExternalAPIError struct {
	Service    string
	StatusCode int
	Err        error
}

func (e *ExternalAPIError) Error() string {
	var b strings.Builder
	b.WriteString("external service error: ")
	b.WriteString(e.Service)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (HTTP %d)", e.StatusCode)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ExternalAPIError) Unwrap() error { return e.Err }

// Is matches ErrExternalAPI.
func (e *ExternalAPIError) Is(target error) bool { return target == ErrExternalAPI }

// External wraps err as an *ExternalAPIError for service.
func External(service string, status int, err error) error {
	return &ExternalAPIError{Service: service, StatusCode: status, Err: err}
}

// RateLimitError is an ExternalAPIError carrying the provider's retry-after hint.
type RateLimitError struct {
	Service    string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limit exceeded for %s (retry after %s)", e.Service, e.RetryAfter)
	}
	return "rate limit exceeded for " + e.Service
}

// Is matches both ErrRateLimited and ErrExternalAPI.
func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited || target == ErrExternalAPI
}

// ConfigurationError reports a missing credential or unusable setting. Jobs
// fail fast on it before any stage runs.
type ConfigurationError struct {
	Service string
	Message string
}

func (e *ConfigurationError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "not configured"
	}
	return e.Service + " " + msg
}

// Is matches ErrConfiguration.
func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// DatabaseError reports a failed storage operation.
type DatabaseError struct {
	Op  string
	Err error
}

func (e *DatabaseError) Error() string {
	if e.Err == nil {
		return "database operation failed: " + e.Op
	}
	return fmt.Sprintf("database operation failed: %s: %v", e.Op, e.Err)
}

func (e *DatabaseError) Unwrap() error { return e.Err }

// Is matches ErrDatabase.
func (e *DatabaseError) Is(target error) bool { return target == ErrDatabase }

// Database wraps err as a *DatabaseError, or returns nil for a nil err.
func Database(op string, err error) error {
	if err == nil {
		return nil
	}
	return &DatabaseError{Op: op, Err: err}
}

// Retryable reports whether err is worth another attempt: external API
// failures other than client errors, rate limits, and network timeouts.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	var ext *ExternalAPIError
	if errors.As(err, &ext) {
		return ext.StatusCode == 0 || ext.StatusCode >= 500 || ext.StatusCode == 408
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}

// RetryAfter returns the hint carried by a RateLimitError in err's chain.
func RetryAfter(err error) (time.Duration, bool) {
	var rl *RateLimitError
	if errors.As(err, &rl) && rl.RetryAfter > 0 {
		return rl.RetryAfter, true
	}
	return 0, false
}
