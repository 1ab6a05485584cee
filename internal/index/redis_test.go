// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package index

import (
	"context"
	"slices"
	"testing"

	"github.com/redis/rueidis"
	"github.com/redis/rueidis/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/HiNala/bio-hack-sub000/internal/apperr"
	"github.com/HiNala/bio-hack-sub000/internal/store"
	"github.com/HiNala/bio-hack-sub000/pkg/types"
)

func testRedis(t *testing.T) (*Redis, *mock.Client) {
	t.Helper()
	c := mock.NewClient(gomock.NewController(t))
	cfg := types.IndexConfig{RedisIndex: "test_idx", HNSWM: 16, HNSWEFConstruction: 200}
	return newRedis(c, cfg, 3, nil), c
}

func TestEnsureIndexCreates(t *testing.T) {
	r, c := testRedis(t)
	var got []string
	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			got = cmd
			return cmd[0] == "FT.CREATE"
		})).
		Return(mock.Result(mock.RedisString("OK")))

	require.NoError(t, r.EnsureIndex(context.Background()))
	assert.Equal(t, []string{
		"FT.CREATE", "test_idx", "ON", "HASH", "PREFIX", "1", "chunk:",
		"SCHEMA",
		"paper_id", "TAG",
		"year", "NUMERIC",
		"citations", "NUMERIC",
		"embedding", "VECTOR", "HNSW", "10",
		"TYPE", "FLOAT32", "DIM", "3", "DISTANCE_METRIC", "COSINE",
		"M", "16", "EF_CONSTRUCTION", "200",
	}, got)
}

func TestEnsureIndexAlreadyExists(t *testing.T) {
	r, c := testRedis(t)
	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool { return cmd[0] == "FT.CREATE" })).
		Return(mock.Result(mock.RedisError("Index already exists")))

	assert.NoError(t, r.EnsureIndex(context.Background()))
}

func TestEnsureIndexError(t *testing.T) {
	r, c := testRedis(t)
	c.EXPECT().
		Do(gomock.Any(), gomock.Any()).
		Return(mock.ErrorResult(context.DeadlineExceeded))

	err := r.EnsureIndex(context.Background())
	assert.ErrorIs(t, err, apperr.ErrExternalAPI)
}

func TestEnsureIndexRequiresDimensions(t *testing.T) {
	r := newRedis(nil, types.IndexConfig{}, 0, nil)
	assert.ErrorIs(t, r.EnsureIndex(context.Background()), apperr.ErrValidation)
}

func TestRedisUpsert(t *testing.T) {
	r, c := testRedis(t)
	c.EXPECT().
		DoMulti(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, cmds ...rueidis.Completed) []rueidis.RedisResult {
			first := cmds[0].Commands()
			assert.Equal(t, "HSET", first[0])
			assert.Equal(t, "chunk:c1", first[1])
			assert.Equal(t, "p1", first[slices.Index(first, "paper_id")+1])
			assert.Equal(t, "2021", first[slices.Index(first, "year")+1])
			assert.Equal(t, string(store.EncodeVector([]float32{1, 0, 0})), first[slices.Index(first, "embedding")+1])
			return []rueidis.RedisResult{
				mock.Result(mock.RedisInt64(4)),
				mock.Result(mock.RedisInt64(4)),
			}
		})

	err := r.Upsert(context.Background(), []Vector{
		{ChunkID: "c1", PaperID: "p1", Year: 2021, Citations: 5, Embedding: []float32{1, 0, 0}},
		{ChunkID: "c2", PaperID: "p1", Year: 2021, Citations: 5, Embedding: []float32{0, 1, 0}},
	})
	require.NoError(t, err)
}

func TestRedisUpsertError(t *testing.T) {
	r, c := testRedis(t)
	c.EXPECT().
		DoMulti(gomock.Any(), gomock.Any()).
		Return([]rueidis.RedisResult{mock.ErrorResult(context.DeadlineExceeded)})

	err := r.Upsert(context.Background(), []Vector{{ChunkID: "c1", Embedding: []float32{1, 0, 0}}})
	assert.ErrorIs(t, err, apperr.ErrExternalAPI)
}

func TestRedisUpsertEmpty(t *testing.T) {
	r := newRedis(nil, types.IndexConfig{}, 3, nil)
	assert.NoError(t, r.Upsert(context.Background(), nil))
}

func TestRedisQuery(t *testing.T) {
	r, c := testRedis(t)
	var got []string
	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			got = cmd
			return cmd[0] == "FT.SEARCH"
		})).
		Return(mock.Result(mock.RedisArray(
			mock.RedisInt64(2),
			mock.RedisString("chunk:c7"),
			mock.RedisArray(mock.RedisString("dist"), mock.RedisString("0.125")),
			mock.RedisString("chunk:c2"),
			mock.RedisArray(mock.RedisString("dist"), mock.RedisString("0.5")),
		)))

	hits, err := r.Query(context.Background(), []float32{1, 0, 0}, 5, Filter{YearFrom: 2018, MinCitations: 3})
	require.NoError(t, err)
	assert.Equal(t, []Hit{{ChunkID: "c7", Distance: 0.125}, {ChunkID: "c2", Distance: 0.5}}, hits)

	require.GreaterOrEqual(t, len(got), 3)
	assert.Equal(t, "test_idx", got[1])
	assert.Equal(t, "(@year:[2018 +inf] @citations:[3 +inf])=>[KNN 5 @embedding $BLOB AS dist]", got[2])
	assert.Contains(t, got, "DIALECT")
	assert.Equal(t, "dist", got[slices.Index(got, "SORTBY")+1])
}

func TestRedisQueryNoResults(t *testing.T) {
	r, c := testRedis(t)
	c.EXPECT().
		Do(gomock.Any(), gomock.Any()).
		Return(mock.Result(mock.RedisArray(mock.RedisInt64(0))))

	hits, err := r.Query(context.Background(), []float32{1, 0, 0}, 5, Filter{})
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestRedisQueryError(t *testing.T) {
	r, c := testRedis(t)
	c.EXPECT().
		Do(gomock.Any(), gomock.Any()).
		Return(mock.Result(mock.RedisError("Unknown Index name")))

	_, err := r.Query(context.Background(), []float32{1, 0, 0}, 5, Filter{})
	assert.ErrorIs(t, err, apperr.ErrExternalAPI)
}

func TestBuildFilter(t *testing.T) {
	tests := []struct {
		name string
		f    Filter
		want string
	}{
		{"none", Filter{}, "*"},
		{"from", Filter{YearFrom: 2020}, "(@year:[2020 +inf])"},
		{"to excludes unknown", Filter{YearTo: 2015}, "(@year:[1 2015])"},
		{"range", Filter{YearFrom: 2010, YearTo: 2015}, "(@year:[2010 2015])"},
		{"citations", Filter{MinCitations: 7}, "(@citations:[7 +inf])"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, buildFilter(tt.f))
		})
	}
}

func TestNewRedisRequiresAddrs(t *testing.T) {
	_, err := NewRedis(types.IndexConfig{Backend: types.IndexRedis}, 3, nil)
	assert.ErrorIs(t, err, apperr.ErrValidation)
}
