// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package source

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/HiNala/bio-hack-sub000/internal/logger"
	"github.com/HiNala/bio-hack-sub000/internal/metrics"
	"github.com/HiNala/bio-hack-sub000/pkg/types"
)

// FetchRequest describes one multi-query fan-out.
type FetchRequest struct {
	Queries  []string
	YearFrom int
	YearTo   int
	// Limit is the per-query cap applied by each adapter.
	Limit int
}

// FetchOutput aggregates the hits of every adapter. Papers keep adapter
// order (the order of the adapters slice) and then query order, so the
// output is deterministic for a given set of responses.
type FetchOutput struct {
	Papers []types.UnifiedPaper
	// Found counts normalized hits per adapter name.
	Found map[string]int
	// Errors holds the last failure per adapter that had at least one.
	Errors map[string]error
	// Failed lists adapters where every query failed.
	Failed []string

	attempted int
}

// AllFailed reports whether every adapter failed every query.
func (o FetchOutput) AllFailed() bool {
	return o.attempted > 0 && len(o.Failed) == o.attempted
}

// Err joins the adapter failures, or returns nil.
func (o FetchOutput) Err() error {
	if len(o.Errors) == 0 {
		return nil
	}
	errs := make([]error, 0, len(o.Errors))
	for _, name := range slices.Sorted(maps.Keys(o.Errors)) {
		errs = append(errs, fmt.Errorf("%s: %w", name, o.Errors[name]))
	}
	return errors.Join(errs...)
}

// FetchCallback is invoked after each adapter query completes. Calls are
// serialized.
type FetchCallback func(adapter, query string, found int, err error)

// FetchAll runs every query against every adapter. Adapters run
// concurrently; queries within one adapter run in order so the adapter's
// rate limiter sees a steady stream. A failing adapter never affects the
// others.
func FetchAll(ctx context.Context, adapters []Adapter, req FetchRequest, cb FetchCallback) FetchOutput {
	log := logger.FromContext(ctx)

	type adapterResult struct {
		papers []types.UnifiedPaper
		failed int
		err    error
	}
	results := make([]adapterResult, len(adapters))

	var mu sync.Mutex
	p := pool.New().WithMaxGoroutines(max(len(adapters), 1))
	for i, a := range adapters {
		p.Go(func() {
			var r adapterResult
			for _, text := range req.Queries {
				if ctx.Err() != nil {
					r.failed++
					r.err = ctx.Err()
					continue
				}
				res, err := a.Search(ctx, Query{
					Text:     text,
					YearFrom: req.YearFrom,
					YearTo:   req.YearTo,
					Limit:    req.Limit,
				})
				if err != nil {
					r.failed++
					r.err = err
					metrics.SourceFetchesTotal.WithLabelValues(a.Name(), "error").Inc()
					log.Warn("source search failed",
						zap.String("source", a.Name()),
						zap.String("query", text),
						zap.Error(err))
				} else {
					r.papers = append(r.papers, res.Papers...)
					metrics.SourceFetchesTotal.WithLabelValues(a.Name(), "success").Inc()
					metrics.SourcePapersTotal.WithLabelValues(a.Name()).Add(float64(len(res.Papers)))
					log.Debug("source search complete",
						zap.String("source", a.Name()),
						zap.String("query", text),
						zap.Int("papers", len(res.Papers)),
						zap.Int("total", res.Total))
				}
				if cb != nil {
					mu.Lock()
					cb(a.Name(), text, len(res.Papers), err)
					mu.Unlock()
				}
			}
			results[i] = r
		})
	}
	p.Wait()

	out := FetchOutput{
		Found:     make(map[string]int, len(adapters)),
		Errors:    make(map[string]error),
		attempted: len(adapters),
	}
	for i, a := range adapters {
		r := results[i]
		out.Papers = append(out.Papers, r.papers...)
		out.Found[a.Name()] += len(r.papers)
		if r.err != nil {
			out.Errors[a.Name()] = r.err
		}
		if len(req.Queries) > 0 && r.failed == len(req.Queries) {
			out.Failed = append(out.Failed, a.Name())
		}
	}
	if len(req.Queries) == 0 {
		out.attempted = 0
	}
	return out
}
