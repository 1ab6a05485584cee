// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/HiNala/bio-hack-sub000/internal/activity"
	"github.com/HiNala/bio-hack-sub000/internal/dedup"
	"github.com/HiNala/bio-hack-sub000/internal/query"
	"github.com/HiNala/bio-hack-sub000/internal/source"
	"github.com/HiNala/bio-hack-sub000/internal/store"
	"github.com/HiNala/bio-hack-sub000/pkg/types"
)

// parse derives the search strings. Years given on the request win over
// years found in the question.
func (r *run) parse(req types.IngestRequest) error {
	parsed := query.Parse(req.Query, r.o.now())

	r.queries = parsed.Queries
	if len(r.queries) == 0 {
		r.queries = []string{strings.TrimSpace(req.Query)}
	}
	r.yearFrom, r.yearTo = parsed.YearFrom, parsed.YearTo
	if req.YearFrom > 0 {
		r.yearFrom = req.YearFrom
	}
	if req.YearTo > 0 {
		r.yearTo = req.YearTo
	}
	if r.yearFrom > 0 && r.yearTo > 0 && r.yearFrom > r.yearTo {
		// A parsed window can only conflict with one explicit bound; drop the
		// parsed side.
		if req.YearFrom > 0 {
			r.yearTo = 0
		} else {
			r.yearFrom = 0
		}
	}

	r.job.ParsedQueries = r.queries
	r.job.Progress.Stage(types.JobParsing).Detail = fmt.Sprintf("%d search queries", len(r.queries))
	r.log.Debug("query parsed",
		zap.Strings("queries", r.queries),
		zap.Int("year_from", r.yearFrom),
		zap.Int("year_to", r.yearTo))
	return nil
}

// fetch runs every selected adapter concurrently. It fails only when every
// adapter failed every query.
func (r *run) fetch(ctx context.Context, req types.IngestRequest) (source.FetchOutput, error) {
	adapters := source.Filter(r.o.adapters, req.Sources)
	limit := req.MaxPerSource
	if limit <= 0 {
		limit = r.o.opts.MaxPerSource
	}

	out := source.FetchAll(ctx, adapters, source.FetchRequest{
		Queries:  r.queries,
		YearFrom: r.yearFrom,
		YearTo:   r.yearTo,
		Limit:    limit,
	}, func(adapter, q string, found int, err error) {
		e := activity.Event{
			Type:          activity.Fetching,
			Message:       fmt.Sprintf("Found %d papers in %s", found, adapter),
			APICall:       adapter,
			ArticlesFound: activity.Int(found),
			Detail:        q,
		}
		if err != nil {
			e.Message = fmt.Sprintf("%s search failed", adapter)
			e.Detail = err.Error()
		}
		r.publish(e)
	})

	papers := &r.job.Progress.Papers
	papers.OpenAlexFound = out.Found[types.SourceOpenAlex]
	papers.SemanticScholarFound = out.Found[types.SourceSemanticScholar]

	if ctx.Err() != nil {
		return out, ctx.Err()
	}
	if out.AllFailed() {
		return out, fmt.Errorf("every source failed: %w", out.Err())
	}
	if len(out.Errors) > 0 {
		var parts []string
		for _, name := range slices.Sorted(maps.Keys(out.Errors)) {
			parts = append(parts, fmt.Sprintf("%s: %v", name, out.Errors[name]))
		}
		r.job.Progress.Stage(types.JobFetching).Detail = strings.Join(parts, "; ")
	}
	return out, nil
}

// storePapers deduplicates the fetched records and inserts the new ones.
// In-batch merges, records whose DOI is already stored, and records another
// job inserted first all count as duplicates.
func (r *run) storePapers(ctx context.Context, fetched source.FetchOutput) error {
	res := dedup.Deduplicate(fetched.Papers)

	existing, err := r.o.store.ExistingDOIs(ctx)
	if err != nil {
		return fmt.Errorf("loading stored DOIs: %w", err)
	}
	fresh, known := dedup.FilterExisting(res.Papers, existing)

	stored, err := r.o.store.InsertPapers(ctx, r.job.ID, fresh)
	if err != nil {
		return fmt.Errorf("storing papers: %w", err)
	}
	r.storedCount = len(stored)

	papers := &r.job.Progress.Papers
	papers.DuplicatesRemoved = res.DuplicatesRemoved + known + (len(fresh) - len(stored))
	papers.UniquePapers = res.UniqueCount
	papers.PapersStored = len(stored)

	r.log.Info("papers stored",
		zap.Int("fetched", res.OriginalCount),
		zap.Int("merged", res.DuplicatesRemoved),
		zap.Int("already_stored", known),
		zap.Int("stored", len(stored)))
	r.publish(activity.Event{
		Type:          activity.Processing,
		Message:       fmt.Sprintf("Stored %d new papers", len(stored)),
		Detail:        fmt.Sprintf("%d duplicates removed", papers.DuplicatesRemoved),
		ArticlesFound: activity.Int(len(stored)),
	})
	return nil
}

// chunk splits this job's unchunked papers. A paper that cannot be chunked
// is logged and skipped; the stage fails only if every paper failed.
func (r *run) chunk(ctx context.Context) error {
	papers, err := r.o.store.UnchunkedPapers(ctx, store.ForJob(r.job.ID))
	if err != nil {
		return fmt.Errorf("loading papers: %w", err)
	}

	var (
		created, chunked, failed int
		lastErr                  error
	)
	for i, p := range papers {
		if err := ctx.Err(); err != nil {
			return err
		}
		chunks := r.o.chunker.ChunkPaper(p.Title, p.Abstract)
		if len(chunks) == 0 {
			failed++
			lastErr = fmt.Errorf("paper %s has no text", p.ID)
			r.log.Warn("paper produced no chunks", zap.String("paper_id", p.ID))
			continue
		}
		if _, err := r.o.store.ReplaceChunks(ctx, p.ID, chunks); err != nil {
			failed++
			lastErr = err
			r.log.Warn("storing chunks failed", zap.String("paper_id", p.ID), zap.Error(err))
			continue
		}
		created += len(chunks)
		chunked++

		if (i+1)%10 == 0 || i == len(papers)-1 {
			r.publish(activity.Event{
				Type:     activity.Processing,
				Message:  fmt.Sprintf("Chunked %d of %d papers", i+1, len(papers)),
				Progress: activity.Float(round(float64(i+1)/float64(len(papers))*100, 1)),
			})
		}
	}
	if failed > 0 && chunked == 0 {
		return fmt.Errorf("no paper could be chunked: %w", lastErr)
	}

	cp := &r.job.Progress.Chunks
	cp.TotalCreated += created
	if denom := r.chunkDenominator(chunked); denom > 0 {
		cp.AveragePerPaper = round(float64(cp.TotalCreated)/float64(denom), 2)
	}
	if failed > 0 {
		r.job.Progress.Stage(types.JobChunking).Detail = fmt.Sprintf("%d papers could not be chunked", failed)
	}
	r.log.Info("papers chunked", zap.Int("papers", chunked), zap.Int("chunks", created), zap.Int("failed", failed))
	return nil
}

// chunkDenominator is the number of papers the chunk total is spread over:
// the papers stored by this run, or on resume the papers chunked now plus
// those counted before.
func (r *run) chunkDenominator(chunkedNow int) int {
	if r.storedCount > 0 {
		return r.storedCount
	}
	return max(r.job.Progress.Papers.PapersStored, chunkedNow)
}

// embed embeds this job's pending chunks, persisting progress after each
// batch. Batch failures are absorbed by the embedder; only storage errors
// and cancellation fail the stage. Passages embedded by an earlier attempt
// stay counted.
func (r *run) embed(ctx context.Context) error {
	base := r.job.Progress.Embeddings.Completed
	stats, err := r.o.embedder.EmbedPending(ctx, store.ForJob(r.job.ID), func(done, total int) {
		r.setEmbeddings(base+done, base+total)
		if err := r.o.store.UpdateJob(ctx, r.job); err != nil {
			r.log.Warn("persisting embedding progress failed", zap.Error(err))
		}
		r.publish(activity.Event{
			Type:     activity.Embedding,
			Message:  fmt.Sprintf("Embedded %d of %d passages", base+done, base+total),
			Progress: activity.Float(r.job.Progress.Embeddings.Percent),
		})
	})
	if err != nil {
		return err
	}
	r.setEmbeddings(base+stats.Embedded, base+stats.Total)
	if stats.FailedBatches > 0 {
		r.job.Progress.Stage(types.JobEmbedding).Detail =
			fmt.Sprintf("%d batches failed; resume the job to retry them", stats.FailedBatches)
	}
	if stats.Total > 0 && stats.Embedded == 0 {
		return errors.New("every embedding batch failed")
	}
	return nil
}

func (r *run) setEmbeddings(done, total int) {
	e := &r.job.Progress.Embeddings
	e.Completed, e.Total, e.Percent = done, total, 0
	if total > 0 {
		e.Percent = round(float64(done)/float64(total)*100, 1)
	}
}
