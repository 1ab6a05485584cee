// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HiNala/bio-hack-sub000/internal/apperr"
	"github.com/HiNala/bio-hack-sub000/internal/index"
	"github.com/HiNala/bio-hack-sub000/internal/store"
	"github.com/HiNala/bio-hack-sub000/pkg/types"
)

type fakeEmbedder struct {
	err   error
	calls int
}

func (f *fakeEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []float32{1, 0}, nil
}

type fakeIndex struct {
	hits   []index.Hit
	err    error
	k      int
	filter index.Filter
}

func (f *fakeIndex) Upsert(context.Context, []index.Vector) error { return nil }

func (f *fakeIndex) Query(_ context.Context, _ []float32, k int, flt index.Filter) ([]index.Hit, error) {
	f.k, f.filter = k, flt
	if f.err != nil {
		return nil, f.err
	}
	if len(f.hits) > k {
		return f.hits[:k], nil
	}
	return f.hits, nil
}

type fakePassages map[string]store.Passage

func (f fakePassages) Passages(_ context.Context, ids []string) (map[string]store.Passage, error) {
	out := map[string]store.Passage{}
	for _, id := range ids {
		if p, ok := f[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func passage(chunkID, paperID string, year, citations int) store.Passage {
	return store.Passage{
		Chunk: types.Chunk{ID: chunkID, PaperID: paperID, Text: "text of " + chunkID},
		Paper: types.Paper{ID: paperID, Title: "Paper " + paperID, Year: year, CitationCount: citations},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		req  types.SearchRequest
		ok   bool
	}{
		{"valid", types.SearchRequest{Query: "crispr", TopK: 10}, true},
		{"empty query", types.SearchRequest{Query: "  ", TopK: 10}, false},
		{"zero k", types.SearchRequest{Query: "q", TopK: 0}, false},
		{"k too large", types.SearchRequest{Query: "q", TopK: 101}, false},
		{"k at max", types.SearchRequest{Query: "q", TopK: 100}, true},
		{"inverted years", types.SearchRequest{Query: "q", TopK: 5, YearFrom: 2022, YearTo: 2020}, false},
		{"open range", types.SearchRequest{Query: "q", TopK: 5, YearTo: 2020}, true},
		{"negative citations", types.SearchRequest{Query: "q", TopK: 5, MinCitations: -1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.req)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, apperr.ErrValidation)
			}
		})
	}
}

func TestRecencyFactor(t *testing.T) {
	tests := []struct {
		year int
		want float64
	}{
		{2024, 1.0}, {2020, 1.0}, {2019, 0.95}, {2015, 0.95},
		{2014, 0.9}, {2010, 0.9}, {2009, 0.85}, {0, 0.85},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.year), func(t *testing.T) {
			assert.Equal(t, tt.want, RecencyFactor(tt.year))
		})
	}
}

func TestFinalScoreExample(t *testing.T) {
	cited := FinalScore(0.9, 100, 2021)
	old := FinalScore(0.9, 0, 2005)
	assert.Greater(t, cited, old)
	assert.InDelta(t, 0.9*(1+0.1*4.61512), cited, 1e-4)
	assert.InDelta(t, 0.9*0.85, old, 1e-9)
}

func TestFinalScoreMonotoneInSimilarity(t *testing.T) {
	for _, c := range []int{0, 1, 50, 10000} {
		for _, y := range []int{0, 2005, 2012, 2017, 2023} {
			prev := FinalScore(0, c, y)
			for s := 0.05; s <= 1.0; s += 0.05 {
				cur := FinalScore(s, c, y)
				assert.Greater(t, cur, prev, "citations=%d year=%d sim=%.2f", c, y, s)
				prev = cur
			}
		}
	}
}

func TestRankOrdersAndTruncates(t *testing.T) {
	in := []types.SearchResult{
		{ChunkID: "b", FinalScore: 0.5, SimilarityScore: 0.5},
		{ChunkID: "a", FinalScore: 0.5, SimilarityScore: 0.5},
		{ChunkID: "c", FinalScore: 0.5, SimilarityScore: 0.6},
		{ChunkID: "d", FinalScore: 0.9, SimilarityScore: 0.2},
	}
	got := Rank(in, 3, false)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"d", "c", "a"}, chunkIDs(got))
	assert.Equal(t, "b", in[0].ChunkID, "input is not reordered")
}

func TestSearchDedupePapersBackfills(t *testing.T) {
	// Paper p1 owns three of the five nearest chunks.
	hits := []index.Hit{
		{ChunkID: "c1", Distance: 0.05},
		{ChunkID: "c2", Distance: 0.06},
		{ChunkID: "c3", Distance: 0.07},
		{ChunkID: "c4", Distance: 0.10},
		{ChunkID: "c5", Distance: 0.12},
		{ChunkID: "c6", Distance: 0.20},
		{ChunkID: "c7", Distance: 0.25},
		{ChunkID: "c8", Distance: 0.30},
	}
	ps := fakePassages{
		"c1": passage("c1", "p1", 2022, 10),
		"c2": passage("c2", "p1", 2022, 10),
		"c3": passage("c3", "p1", 2022, 10),
		"c4": passage("c4", "p2", 2022, 10),
		"c5": passage("c5", "p3", 2022, 10),
		"c6": passage("c6", "p4", 2022, 10),
		"c7": passage("c7", "p5", 2022, 10),
		"c8": passage("c8", "p6", 2022, 10),
	}
	idx := &fakeIndex{hits: hits}
	s := NewSearcher(&fakeEmbedder{}, idx, ps, 0, nil)

	raw, err := s.Search(context.Background(), types.SearchRequest{Query: "q", TopK: 5})
	require.NoError(t, err)
	assert.Equal(t, []string{"c1", "c2", "c3", "c4", "c5"}, chunkIDs(raw))

	deduped, err := s.Search(context.Background(), types.SearchRequest{Query: "q", TopK: 5, DedupePapers: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"c1", "c4", "c5", "c6", "c7"}, chunkIDs(deduped))
	assert.Equal(t, 15, idx.k, "candidates are oversampled")

	seen := map[string]bool{}
	for _, r := range deduped {
		assert.False(t, seen[r.PaperID], "paper %s returned twice", r.PaperID)
		seen[r.PaperID] = true
	}
}

func TestSearchRanksByCitationsAndRecency(t *testing.T) {
	idx := &fakeIndex{hits: []index.Hit{
		{ChunkID: "old", Distance: 0.1},
		{ChunkID: "new", Distance: 0.1},
	}}
	ps := fakePassages{
		"old": passage("old", "p-old", 2005, 0),
		"new": passage("new", "p-new", 2021, 100),
	}
	s := NewSearcher(&fakeEmbedder{}, idx, ps, 3, nil)

	got, err := s.Search(context.Background(), types.SearchRequest{Query: "q", TopK: 2, YearFrom: 2000, MinCitations: 0})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "new", got[0].ChunkID)
	assert.InDelta(t, 0.9, got[0].SimilarityScore, 1e-9)
	assert.Greater(t, got[0].FinalScore, got[1].FinalScore)
	assert.Equal(t, "Paper p-new", got[0].Title)
	assert.Equal(t, index.Filter{YearFrom: 2000}, idx.filter)
}

func TestSearchSkipsHitsMissingFromStore(t *testing.T) {
	idx := &fakeIndex{hits: []index.Hit{{ChunkID: "gone", Distance: 0}, {ChunkID: "c1", Distance: 0.2}}}
	s := NewSearcher(&fakeEmbedder{}, idx, fakePassages{"c1": passage("c1", "p1", 2020, 1)}, 1, nil)

	got, err := s.Search(context.Background(), types.SearchRequest{Query: "q", TopK: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"c1"}, chunkIDs(got))
}

func TestSearchErrors(t *testing.T) {
	e := &fakeEmbedder{}
	s := NewSearcher(e, &fakeIndex{}, fakePassages{}, 1, nil)
	_, err := s.Search(context.Background(), types.SearchRequest{Query: "", TopK: 5})
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Zero(t, e.calls, "invalid requests never reach the embedder")

	s = NewSearcher(&fakeEmbedder{err: apperr.External("embeddings", 500, errors.New("down"))}, &fakeIndex{}, fakePassages{}, 1, nil)
	_, err = s.Search(context.Background(), types.SearchRequest{Query: "q", TopK: 5})
	assert.ErrorIs(t, err, apperr.ErrExternalAPI)

	boom := errors.New("index down")
	s = NewSearcher(&fakeEmbedder{}, &fakeIndex{err: boom}, fakePassages{}, 1, nil)
	_, err = s.Search(context.Background(), types.SearchRequest{Query: "q", TopK: 5})
	assert.ErrorIs(t, err, boom)
}

func TestSearchEmptyIndex(t *testing.T) {
	s := NewSearcher(&fakeEmbedder{}, &fakeIndex{}, fakePassages{}, 1, nil)
	got, err := s.Search(context.Background(), types.SearchRequest{Query: "q", TopK: 5})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFormatTable(t *testing.T) {
	var buf bytes.Buffer
	FormatTable(nil, &buf)
	assert.Equal(t, "No results found.\n", buf.String())

	buf.Reset()
	FormatTable([]types.SearchResult{{
		ChunkID:         "c1",
		Title:           "Base editing of the human genome",
		Authors:         []string{"Anzalone", "Liu"},
		Year:            2019,
		CitationCount:   42,
		Text:            "Base editors\nenable precise changes.",
		SimilarityScore: 0.8,
		FinalScore:      0.9,
	}}, &buf)
	out := buf.String()
	assert.Contains(t, out, "Base editing of the human genome")
	assert.Contains(t, out, "Anzalone et al.")
	assert.Contains(t, out, "2019")
	assert.Contains(t, out, "Base editors enable precise changes.")
	assert.Contains(t, out, "1 results")
}

func TestFormatJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, FormatJSON(nil, &buf))
	assert.Equal(t, "[]\n", buf.String())

	buf.Reset()
	require.NoError(t, FormatJSON([]types.SearchResult{{ChunkID: "c1", FinalScore: 0.5}}, &buf))
	var got []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "c1", got[0]["chunk_id"])
	assert.Equal(t, 0.5, got[0]["final_score"])
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "éééé...", truncate("éééééééééé", 7))
}

func chunkIDs(rs []types.SearchResult) []string {
	ids := make([]string, len(rs))
	for i, r := range rs {
		ids[i] = r.ChunkID
	}
	return ids
}
