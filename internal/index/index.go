// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package index answers cosine nearest-neighbour queries over chunk
// embeddings. SQLite scans the store exactly; Redis queries a RediSearch
// HNSW index that the embedding stage keeps in sync.
package index

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/HiNala/bio-hack-sub000/internal/store"
	"github.com/HiNala/bio-hack-sub000/pkg/types"
)

// Vector is one indexed chunk embedding with the metadata used by filters.
type Vector struct {
	ChunkID   string
	PaperID   string
	Year      int
	Citations int
	Embedding []float32
}

// Filter restricts a query by paper metadata. Zero fields do not filter; a
// paper with an unknown year never passes a year bound.
type Filter struct {
	YearFrom     int
	YearTo       int
	MinCitations int
}

// Hit is one nearest neighbour. Distance is the cosine distance in [0, 2].
type Hit struct {
	ChunkID  string
	Distance float64
}

// Index is a cosine kNN index over chunk embeddings.
type Index interface {
	Upsert(ctx context.Context, vectors []Vector) error
	Query(ctx context.Context, vector []float32, k int, f Filter) ([]Hit, error)
}

// New builds the index selected by cfg.Backend. The returned close function
// releases backend connections.
func New(ctx context.Context, cfg types.IndexConfig, st *store.Store, dims int, log *zap.Logger) (Index, func(), error) {
	switch cfg.Backend {
	case types.IndexSQLite, "":
		return NewSQLite(st), func() {}, nil
	case types.IndexRedis:
		r, err := NewRedis(cfg, dims, log)
		if err != nil {
			return nil, nil, err
		}
		if err := r.EnsureIndex(ctx); err != nil {
			r.Close()
			return nil, nil, err
		}
		return r, r.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown index backend %q", cfg.Backend)
	}
}

// CosineDistance returns 1 - cos(a, b). Mismatched lengths or a zero vector
// give 1, the distance of orthogonal vectors.
func CosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 1
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}
