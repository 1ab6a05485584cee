// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package source queries literature catalogs and normalizes their hits into
// types.UnifiedPaper records. Each catalog is an Adapter; FetchAll fans a set
// of sub-queries out to every adapter concurrently and isolates per-adapter
// failures so one outage never sinks the whole fetch.
package source

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/HiNala/bio-hack-sub000/pkg/types"
)

// Adapter searches a single literature catalog. Implementations drop hits
// without a usable abstract before returning.
type Adapter interface {
	Name() string
	Search(ctx context.Context, q Query) (Result, error)
}

// Query holds the parameters of one catalog search. Zero years mean no bound.
type Query struct {
	Text     string
	YearFrom int
	YearTo   int
	Limit    int
}

// Result is one adapter response after normalization.
type Result struct {
	Papers []types.UnifiedPaper
	// Total is the catalog's reported match count, before the limit.
	Total int
}

// NewAdapters builds the enabled catalog adapters from cfg, each wrapped in a
// Guard with its own circuit breaker and rate limiter.
func NewAdapters(cfg types.SourcesConfig, log *zap.Logger) ([]Adapter, error) {
	client := &http.Client{Timeout: cfg.Timeout}
	norm := Normalizer{MinAbstractChars: cfg.MinAbstractChars}

	adapters := make([]Adapter, 0, len(cfg.Enabled))
	for _, name := range cfg.Enabled {
		var a Adapter
		switch name {
		case types.SourceOpenAlex:
			a = &OpenAlexAdapter{
				Client:      client,
				Email:       cfg.OpenAlexEmail,
				UserAgent:   cfg.UserAgent,
				MaxAttempts: cfg.MaxAttempts,
				Normalizer:  norm,
			}
		case types.SourceSemanticScholar:
			a = &SemanticScholarAdapter{
				Client:      client,
				APIKey:      cfg.SemanticScholarAPIKey,
				UserAgent:   cfg.UserAgent,
				MaxAttempts: cfg.MaxAttempts,
				Normalizer:  norm,
			}
		default:
			return nil, fmt.Errorf("unknown source %q", name)
		}
		limiter := rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
		adapters = append(adapters, NewGuard(a, limiter, log))
	}
	return adapters, nil
}

// Filter returns the adapters whose names are in names, preserving order.
// An empty names list returns all adapters.
func Filter(adapters []Adapter, names []string) []Adapter {
	if len(names) == 0 {
		return adapters
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	var out []Adapter
	for _, a := range adapters {
		if want[a.Name()] {
			out = append(out, a)
		}
	}
	return out
}
