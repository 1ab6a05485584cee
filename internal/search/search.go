// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package search answers semantic queries over the embedded corpus: it
// embeds the query, pulls an oversampled candidate set from the vector
// index, joins paper metadata, and ranks by similarity adjusted for
// citations and recency.
package search

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/HiNala/bio-hack-sub000/internal/apperr"
	"github.com/HiNala/bio-hack-sub000/internal/index"
	"github.com/HiNala/bio-hack-sub000/internal/logger"
	"github.com/HiNala/bio-hack-sub000/internal/store"
	"github.com/HiNala/bio-hack-sub000/pkg/types"
)

// MaxTopK bounds SearchRequest.TopK.
const MaxTopK = 100

// DefaultOversample is the candidate multiplier applied to TopK before
// paper-level deduplication.
const DefaultOversample = 3

// QueryEmbedder turns query text into a vector in the corpus' space.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// PassageStore joins chunk ids with chunk text and paper metadata.
type PassageStore interface {
	Passages(ctx context.Context, chunkIDs []string) (map[string]store.Passage, error)
}

// Searcher runs semantic queries.
type Searcher struct {
	embedder   QueryEmbedder
	index      index.Index
	store      PassageStore
	oversample int
	log        *zap.Logger
}

// NewSearcher returns a Searcher. An oversample below 1 uses
// DefaultOversample.
func NewSearcher(e QueryEmbedder, idx index.Index, st PassageStore, oversample int, log *zap.Logger) *Searcher {
	if oversample < 1 {
		oversample = DefaultOversample
	}
	return &Searcher{
		embedder:   e,
		index:      idx,
		store:      st,
		oversample: oversample,
		log:        logger.OrNop(log),
	}
}

// Validate rejects malformed requests before any external call is made.
func Validate(req types.SearchRequest) error {
	if strings.TrimSpace(req.Query) == "" {
		return apperr.Validation("query", "must not be empty")
	}
	if req.TopK < 1 || req.TopK > MaxTopK {
		return apperr.Validation("top_k", "must be between 1 and %d, got %d", MaxTopK, req.TopK)
	}
	if req.YearFrom < 0 || req.YearTo < 0 {
		return apperr.Validation("year", "must not be negative")
	}
	if req.YearFrom > 0 && req.YearTo > 0 && req.YearFrom > req.YearTo {
		return apperr.Validation("year", "year_from %d is after year_to %d", req.YearFrom, req.YearTo)
	}
	if req.MinCitations < 0 {
		return apperr.Validation("min_citations", "must not be negative")
	}
	return nil
}

// Search returns up to req.TopK passages ordered by final score.
func (s *Searcher) Search(ctx context.Context, req types.SearchRequest) ([]types.SearchResult, error) {
	if err := Validate(req); err != nil {
		return nil, err
	}

	vec, err := s.embedder.EmbedQuery(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	hits, err := s.index.Query(ctx, vec, req.TopK*s.oversample, index.Filter{
		YearFrom:     req.YearFrom,
		YearTo:       req.YearTo,
		MinCitations: req.MinCitations,
	})
	if err != nil {
		return nil, fmt.Errorf("querying index: %w", err)
	}
	if len(hits) == 0 {
		return nil, nil
	}

	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.ChunkID
	}
	passages, err := s.store.Passages(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("loading passages: %w", err)
	}

	candidates := make([]types.SearchResult, 0, len(hits))
	for _, h := range hits {
		p, ok := passages[h.ChunkID]
		if !ok {
			// The external index can lag behind the store.
			s.log.Debug("index hit without stored chunk", zap.String("chunk_id", h.ChunkID))
			continue
		}
		candidates = append(candidates, result(p, 1-h.Distance))
	}

	results := Rank(candidates, req.TopK, req.DedupePapers)
	s.log.Debug("search complete",
		zap.String("query", req.Query),
		zap.Int("hits", len(hits)),
		zap.Int("results", len(results)))
	return results, nil
}

func result(p store.Passage, similarity float64) types.SearchResult {
	return types.SearchResult{
		ChunkID:         p.Chunk.ID,
		PaperID:         p.Paper.ID,
		Text:            p.Chunk.Text,
		Section:         p.Chunk.Section,
		ChunkIndex:      p.Chunk.ChunkIndex,
		Title:           p.Paper.Title,
		Authors:         p.Paper.Authors,
		Year:            p.Paper.Year,
		Venue:           p.Paper.Venue,
		DOI:             p.Paper.DOI,
		CitationCount:   p.Paper.CitationCount,
		LandingURL:      p.Paper.LandingURL,
		SimilarityScore: similarity,
		FinalScore:      FinalScore(similarity, p.Paper.CitationCount, p.Paper.Year),
	}
}
