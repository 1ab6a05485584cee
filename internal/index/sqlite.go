// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package index

import (
	"container/heap"
	"context"
	"slices"

	"github.com/HiNala/bio-hack-sub000/internal/store"
)

// EmbeddingScanner streams stored embeddings.
type EmbeddingScanner interface {
	ScanEmbeddings(ctx context.Context, f store.EmbeddingFilter, fn func(store.EmbeddedChunk) error) error
}

// SQLite answers queries with an exact scan over the store's embeddings.
type SQLite struct {
	store EmbeddingScanner
}

// NewSQLite returns an exact index over st.
func NewSQLite(st EmbeddingScanner) *SQLite {
	return &SQLite{store: st}
}

// Upsert is a no-op: the embedding stage already wrote the vectors to the
// store this index reads from.
func (s *SQLite) Upsert(context.Context, []Vector) error { return nil }

// Query returns the k nearest chunks passing f, closest first. Ties are
// broken by chunk id.
func (s *SQLite) Query(ctx context.Context, vector []float32, k int, f Filter) ([]Hit, error) {
	if k <= 0 {
		return nil, nil
	}
	h := &hitHeap{}
	err := s.store.ScanEmbeddings(ctx, store.EmbeddingFilter{
		YearFrom:     f.YearFrom,
		YearTo:       f.YearTo,
		MinCitations: f.MinCitations,
	}, func(ec store.EmbeddedChunk) error {
		hit := Hit{ChunkID: ec.ChunkID, Distance: CosineDistance(vector, ec.Embedding)}
		if h.Len() < k {
			heap.Push(h, hit)
		} else if closer(hit, (*h)[0]) {
			(*h)[0] = hit
			heap.Fix(h, 0)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	hits := []Hit(*h)
	slices.SortFunc(hits, func(a, b Hit) int {
		switch {
		case closer(a, b):
			return -1
		case closer(b, a):
			return 1
		}
		return 0
	})
	return hits, nil
}

func closer(a, b Hit) bool {
	if a.Distance != b.Distance {
		return a.Distance < b.Distance
	}
	return a.ChunkID < b.ChunkID
}

// hitHeap is a max-heap on distance holding the best k hits seen so far.
type hitHeap []Hit

func (h hitHeap) Len() int           { return len(h) }
func (h hitHeap) Less(i, j int) bool { return closer(h[j], h[i]) }
func (h hitHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *hitHeap) Push(x any)        { *h = append(*h, x.(Hit)) }
func (h *hitHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
