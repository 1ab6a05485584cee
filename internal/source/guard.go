// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package source

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/HiNala/bio-hack-sub000/internal/apperr"
	"github.com/HiNala/bio-hack-sub000/internal/logger"
)

// Breaker settings for catalog adapters.
const (
	breakerTripAfter = 3
	breakerTimeout   = 30 * time.Second
)

// Guard wraps an Adapter with a rate limiter and a circuit breaker. After
// breakerTripAfter consecutive failures the breaker opens and searches fail
// immediately until breakerTimeout elapses.
type Guard struct {
	next    Adapter
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

// NewGuard wraps next. A nil limiter disables rate limiting.
func NewGuard(next Adapter, limiter *rate.Limiter, log *zap.Logger) *Guard {
	log = logger.OrNop(log)
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        next.Name(),
		MaxRequests: 1,
		Timeout:     breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerTripAfter
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("source circuit breaker state change",
				zap.String("source", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
		// Bad input and cancellations say nothing about the catalog's health.
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, apperr.ErrValidation) ||
				errors.Is(err, context.Canceled)
		},
	})
	return &Guard{next: next, limiter: limiter, breaker: cb}
}

// Name returns the wrapped adapter's name.
func (g *Guard) Name() string { return g.next.Name() }

// State reports the breaker state.
func (g *Guard) State() gobreaker.State { return g.breaker.State() }

// Search waits for the limiter, then runs the wrapped search through the breaker.
func (g *Guard) Search(ctx context.Context, q Query) (Result, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return Result{}, err
		}
	}

	out, err := g.breaker.Execute(func() (interface{}, error) {
		return g.next.Search(ctx, q)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return Result{}, apperr.External(g.Name(), 0, err)
		}
		return Result{}, err
	}
	return out.(Result), nil
}
