// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package embed

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/HiNala/bio-hack-sub000/internal/apperr"
	"github.com/HiNala/bio-hack-sub000/internal/chunk"
	"github.com/HiNala/bio-hack-sub000/internal/httputil"
	"github.com/HiNala/bio-hack-sub000/internal/logger"
	"github.com/HiNala/bio-hack-sub000/internal/store"
	"github.com/HiNala/bio-hack-sub000/pkg/types"
)

// ChunkStore is the storage the embedding stage reads from and writes to.
type ChunkStore interface {
	PendingChunks(ctx context.Context, scope store.Scope) ([]types.Chunk, error)
	SaveEmbeddings(ctx context.Context, ids []string, vectors [][]float32) error
	MarkEmbedded(ctx context.Context, scope store.Scope) (int, error)
}

// Mirror receives the ids of chunks whose embeddings were just stored, so an
// external vector index can copy them.
type Mirror interface {
	Mirror(ctx context.Context, chunkIDs []string) error
}

// ProgressFunc is called after each batch with the number of chunks
// embedded so far and the total pending at the start.
type ProgressFunc func(embedded, total int)

// Stats summarises one EmbedPending run.
type Stats struct {
	Total          int
	Embedded       int
	FailedBatches  int
	PapersEmbedded int
}

// Options tunes a Service. Zero values take the defaults of
// types.Config.ApplyDefaults.
type Options struct {
	BatchSize      int
	MaxInputTokens int
	BatchTimeout   time.Duration
	MaxAttempts    int
}

// Service runs the embedding stage and embeds search queries.
type Service struct {
	provider Provider
	store    ChunkStore
	tok      chunk.Tokenizer
	cache    *QueryCache
	mirror   Mirror
	opts     Options
	log      *zap.Logger
}

// NewService creates a Service. cache and mirror may be nil.
func NewService(p Provider, st ChunkStore, tok chunk.Tokenizer, cache *QueryCache, mirror Mirror, opts Options, log *zap.Logger) *Service {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.MaxInputTokens <= 0 {
		opts.MaxInputTokens = 8191
	}
	if opts.BatchTimeout <= 0 {
		opts.BatchTimeout = 60 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = httputil.DefaultMaxAttempts
	}
	return &Service{
		provider: p,
		store:    st,
		tok:      tok,
		cache:    cache,
		mirror:   mirror,
		opts:     opts,
		log:      logger.OrNop(log),
	}
}

// Model returns the provider's model name.
func (s *Service) Model() string { return s.provider.Model() }

// EmbedPending embeds every chunk in scope that has no vector yet. Batches
// run sequentially; a batch that still fails after retries is logged and
// skipped. Papers whose chunks are then all embedded are flagged. Only a
// storage failure or a cancelled context is returned as an error.
func (s *Service) EmbedPending(ctx context.Context, scope store.Scope, progress ProgressFunc) (Stats, error) {
	pending, err := s.store.PendingChunks(ctx, scope)
	if err != nil {
		return Stats{}, fmt.Errorf("loading pending chunks: %w", err)
	}
	st := Stats{Total: len(pending)}
	s.log.Info("embedding chunks", zap.Int("pending", st.Total), zap.Int("batch_size", s.opts.BatchSize))

	for start := 0; start < len(pending); start += s.opts.BatchSize {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		batch := pending[start:min(start+s.opts.BatchSize, len(pending))]

		ids := make([]string, len(batch))
		texts := make([]string, len(batch))
		for i, c := range batch {
			ids[i] = c.ID
			texts[i] = s.truncate(c.Text)
		}

		vecs, err := s.embed(ctx, texts)
		if err != nil {
			if ctx.Err() != nil {
				return st, ctx.Err()
			}
			st.FailedBatches++
			s.log.Warn("embedding batch failed, skipping",
				zap.Int("batch_start", start),
				zap.Int("batch_size", len(batch)),
				zap.Error(err))
			continue
		}

		if err := s.store.SaveEmbeddings(ctx, ids, vecs); err != nil {
			return st, fmt.Errorf("storing embeddings: %w", err)
		}
		st.Embedded += len(batch)

		if s.mirror != nil {
			if err := s.mirror.Mirror(ctx, ids); err != nil {
				s.log.Warn("mirroring embeddings to index failed", zap.Error(err))
			}
		}
		if progress != nil {
			progress(st.Embedded, st.Total)
		}
	}

	n, err := s.store.MarkEmbedded(ctx, scope)
	if err != nil {
		return st, fmt.Errorf("marking papers embedded: %w", err)
	}
	st.PapersEmbedded = n
	s.log.Info("embedding finished",
		zap.Int("embedded", st.Embedded),
		zap.Int("total", st.Total),
		zap.Int("failed_batches", st.FailedBatches),
		zap.Int("papers_embedded", n))
	return st, nil
}

// EmbedQuery embeds a single search query, consulting the query cache
// first when one is configured.
func (s *Service) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if s.cache != nil {
		if v, ok := s.cache.Get(ctx, text); ok {
			return v, nil
		}
	}
	vecs, err := s.embed(ctx, []string{s.truncate(text)})
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.Put(ctx, text, vecs[0])
	}
	return vecs[0], nil
}

// embed calls the provider with bounded retry and a per-call timeout, and
// checks the shape of the answer.
func (s *Service) embed(ctx context.Context, texts []string) ([][]float32, error) {
	var vecs [][]float32
	err := httputil.Retry(ctx, s.opts.MaxAttempts, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, s.opts.BatchTimeout)
		defer cancel()
		var err error
		vecs, err = s.provider.EmbedBatch(callCtx, texts)
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(texts) {
		return nil, apperr.External(serviceName, 0, fmt.Errorf("got %d vectors for %d inputs", len(vecs), len(texts)))
	}
	want := s.provider.Dimensions()
	for i, v := range vecs {
		if len(v) != want {
			return nil, apperr.External(serviceName, 0, fmt.Errorf("vector %d has dimension %d, want %d", i, len(v), want))
		}
	}
	return vecs, nil
}

func (s *Service) truncate(text string) string {
	if s.tok == nil || s.tok.Count(text) <= s.opts.MaxInputTokens {
		return text
	}
	return s.tok.Truncate(text, s.opts.MaxInputTokens)
}
