// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"math"
	"slices"
	"strings"

	"github.com/HiNala/bio-hack-sub000/pkg/types"
)

// CitationBoost is 1 + 0.1·ln(citations+1). Negative counts are treated as
// zero.
func CitationBoost(citations int) float64 {
	if citations < 0 {
		citations = 0
	}
	return 1 + 0.1*math.Log(float64(citations)+1)
}

// RecencyFactor favours recent work; an unknown year (0) gets the lowest
// factor.
func RecencyFactor(year int) float64 {
	switch {
	case year >= 2020:
		return 1.0
	case year >= 2015:
		return 0.95
	case year >= 2010:
		return 0.9
	default:
		return 0.85
	}
}

// FinalScore combines similarity with the citation and recency adjustments.
func FinalScore(similarity float64, citations, year int) float64 {
	return similarity * CitationBoost(citations) * RecencyFactor(year)
}

// Rank orders candidates by final score and keeps the first k. With
// dedupePapers only each paper's highest-similarity chunk competes, so the
// remaining slots are filled by the next distinct papers.
func Rank(candidates []types.SearchResult, k int, dedupePapers bool) []types.SearchResult {
	out := slices.Clone(candidates)
	if dedupePapers {
		out = bestPerPaper(out)
	}
	slices.SortFunc(out, compareResults)
	if k >= 0 && len(out) > k {
		out = out[:k]
	}
	return out
}

// compareResults sorts by final score, then similarity, then chunk id.
func compareResults(a, b types.SearchResult) int {
	if a.FinalScore != b.FinalScore {
		if a.FinalScore > b.FinalScore {
			return -1
		}
		return 1
	}
	if a.SimilarityScore != b.SimilarityScore {
		if a.SimilarityScore > b.SimilarityScore {
			return -1
		}
		return 1
	}
	return strings.Compare(a.ChunkID, b.ChunkID)
}

func bestPerPaper(results []types.SearchResult) []types.SearchResult {
	best := make(map[string]int, len(results))
	var out []types.SearchResult
	for _, r := range results {
		i, ok := best[r.PaperID]
		if !ok {
			best[r.PaperID] = len(out)
			out = append(out, r)
			continue
		}
		cur := out[i]
		if r.SimilarityScore > cur.SimilarityScore ||
			(r.SimilarityScore == cur.SimilarityScore && r.ChunkID < cur.ChunkID) {
			out[i] = r
		}
	}
	return out
}
