// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package source

import (
	"context"
	"testing"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/HiNala/bio-hack-sub000/internal/apperr"
	"github.com/HiNala/bio-hack-sub000/pkg/types"
)

func TestGuardTripsAfterConsecutiveFailures(t *testing.T) {
	inner := &fakeAdapter{name: "openalex", err: apperr.External("openalex", 502, nil)}
	g := NewGuard(inner, nil, zap.NewNop())

	for i := 0; i < breakerTripAfter; i++ {
		_, err := g.Search(context.Background(), Query{Text: "q"})
		require.ErrorIs(t, err, apperr.ErrExternalAPI)
	}
	assert.Equal(t, gobreaker.StateOpen, g.State())

	_, err := g.Search(context.Background(), Query{Text: "q"})
	assert.ErrorIs(t, err, apperr.ErrExternalAPI)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Len(t, inner.calls, breakerTripAfter, "open breaker does not reach the adapter")
}

func TestGuardIgnoresValidationErrors(t *testing.T) {
	inner := &fakeAdapter{name: "openalex", err: apperr.Validation("query", "empty")}
	g := NewGuard(inner, nil, zap.NewNop())

	for i := 0; i < breakerTripAfter+2; i++ {
		_, err := g.Search(context.Background(), Query{Text: "q"})
		require.ErrorIs(t, err, apperr.ErrValidation)
	}
	assert.Equal(t, gobreaker.StateClosed, g.State())
}

func TestGuardPassesResults(t *testing.T) {
	inner := &fakeAdapter{name: "semantic_scholar", byQuery: map[string][]types.UnifiedPaper{
		"q": {paper("semantic_scholar", "S1")},
	}}
	g := NewGuard(inner, rate.NewLimiter(rate.Inf, 1), zap.NewNop())

	res, err := g.Search(context.Background(), Query{Text: "q"})
	require.NoError(t, err)
	assert.Len(t, res.Papers, 1)
	assert.Equal(t, "semantic_scholar", g.Name())
}

func TestGuardLimiterHonorsContext(t *testing.T) {
	inner := &fakeAdapter{name: "openalex"}
	lim := rate.NewLimiter(rate.Limit(0.001), 1)
	require.True(t, lim.Allow())
	g := NewGuard(inner, lim, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := g.Search(ctx, Query{Text: "q"})
	assert.Error(t, err)
	assert.Empty(t, inner.calls)
}
