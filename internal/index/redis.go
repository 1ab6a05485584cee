// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package index

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/rueidis"
	"go.uber.org/zap"

	"github.com/HiNala/bio-hack-sub000/internal/apperr"
	"github.com/HiNala/bio-hack-sub000/internal/logger"
	"github.com/HiNala/bio-hack-sub000/internal/store"
	"github.com/HiNala/bio-hack-sub000/pkg/types"
)

const (
	redisService = "redis"
	keyPrefix    = "chunk:"
	distField    = "dist"
)

// Redis is an Index backed by a RediSearch HNSW vector index over hashes
// keyed chunk:<id>.
type Redis struct {
	client rueidis.Client
	name   string
	dims   int
	m      int
	ef     int
	log    *zap.Logger
}

// NewRedis connects to the servers in cfg.RedisAddrs.
func NewRedis(cfg types.IndexConfig, dims int, log *zap.Logger) (*Redis, error) {
	if len(cfg.RedisAddrs) == 0 {
		return nil, apperr.Validation("index.redis_addrs", "required for the redis backend")
	}
	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  cfg.RedisAddrs,
		Password:     cfg.RedisPassword,
		DisableCache: true,
		AlwaysRESP2:  true, // FT.SEARCH replies are parsed in RESP2 array form
	})
	if err != nil {
		return nil, apperr.External(redisService, 0, fmt.Errorf("creating client: %w", err))
	}
	return newRedis(client, cfg, dims, log), nil
}

func newRedis(client rueidis.Client, cfg types.IndexConfig, dims int, log *zap.Logger) *Redis {
	name := cfg.RedisIndex
	if name == "" {
		name = "chunks_idx"
	}
	return &Redis{
		client: client,
		name:   name,
		dims:   dims,
		m:      cfg.HNSWM,
		ef:     cfg.HNSWEFConstruction,
		log:    logger.OrNop(log),
	}
}

// Close shuts down the client.
func (r *Redis) Close() {
	r.client.Close()
}

// EnsureIndex creates the search index unless it already exists.
func (r *Redis) EnsureIndex(ctx context.Context) error {
	if r.dims <= 0 {
		return apperr.Validation("embedding.dimensions", "must be positive, got %d", r.dims)
	}
	cmd := r.client.B().Arbitrary("FT.CREATE").Args(r.createArgs()...).Build()
	if err := r.client.Do(ctx, cmd).Error(); err != nil {
		if isRedisErr(err, "index already exists") {
			return nil
		}
		return apperr.External(redisService, 0, fmt.Errorf("creating index %s: %w", r.name, err))
	}
	r.log.Info("created vector index", zap.String("index", r.name), zap.Int("dims", r.dims))
	return nil
}

func (r *Redis) createArgs() []string {
	attrs := []string{
		"TYPE", "FLOAT32",
		"DIM", strconv.Itoa(r.dims),
		"DISTANCE_METRIC", "COSINE",
	}
	if r.m > 0 {
		attrs = append(attrs, "M", strconv.Itoa(r.m))
	}
	if r.ef > 0 {
		attrs = append(attrs, "EF_CONSTRUCTION", strconv.Itoa(r.ef))
	}

	args := []string{
		r.name, "ON", "HASH", "PREFIX", "1", keyPrefix,
		"SCHEMA",
		"paper_id", "TAG",
		"year", "NUMERIC",
		"citations", "NUMERIC",
		"embedding", "VECTOR", "HNSW", strconv.Itoa(len(attrs)),
	}
	return append(args, attrs...)
}

// Upsert writes one hash per vector in a single round trip.
func (r *Redis) Upsert(ctx context.Context, vectors []Vector) error {
	if len(vectors) == 0 {
		return nil
	}
	cmds := make(rueidis.Commands, len(vectors))
	for i, v := range vectors {
		cmds[i] = r.client.B().Hset().Key(keyPrefix+v.ChunkID).FieldValue().
			FieldValue("paper_id", v.PaperID).
			FieldValue("year", strconv.Itoa(v.Year)).
			FieldValue("citations", strconv.Itoa(v.Citations)).
			FieldValue("embedding", vectorToBytes(v.Embedding)).
			Build()
	}
	for i, res := range r.client.DoMulti(ctx, cmds...) {
		if err := res.Error(); err != nil {
			return apperr.External(redisService, 0, fmt.Errorf("storing %s: %w", vectors[i].ChunkID, err))
		}
	}
	return nil
}

// Query runs a filtered KNN search, closest first.
func (r *Redis) Query(ctx context.Context, vector []float32, k int, f Filter) ([]Hit, error) {
	if k <= 0 {
		return nil, nil
	}
	query := fmt.Sprintf("%s=>[KNN %d @embedding $BLOB AS %s]", buildFilter(f), k, distField)
	cmd := r.client.B().Arbitrary("FT.SEARCH").Args(
		r.name, query,
		"PARAMS", "2", "BLOB", vectorToBytes(vector),
		"SORTBY", distField,
		"RETURN", "1", distField,
		"LIMIT", "0", strconv.Itoa(k),
		"DIALECT", "2",
	).Build()

	raw, err := r.client.Do(ctx, cmd).ToArray()
	if err != nil {
		return nil, apperr.External(redisService, 0, fmt.Errorf("searching %s: %w", r.name, err))
	}
	return parseHits(raw)
}

// buildFilter renders f as a RediSearch pre-filter. Unknown years are
// stored as 0 and excluded by any year bound.
func buildFilter(f Filter) string {
	var parts []string
	if f.YearFrom > 0 || f.YearTo > 0 {
		lo, hi := "1", "+inf"
		if f.YearFrom > 0 {
			lo = strconv.Itoa(f.YearFrom)
		}
		if f.YearTo > 0 {
			hi = strconv.Itoa(f.YearTo)
		}
		parts = append(parts, fmt.Sprintf("@year:[%s %s]", lo, hi))
	}
	if f.MinCitations > 0 {
		parts = append(parts, fmt.Sprintf("@citations:[%d +inf]", f.MinCitations))
	}
	if len(parts) == 0 {
		return "*"
	}
	return "(" + strings.Join(parts, " ") + ")"
}

// parseHits reads [total, key1, [field, value, ...], key2, ...].
func parseHits(raw []rueidis.RedisMessage) ([]Hit, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	if _, err := raw[0].AsInt64(); err != nil {
		return nil, apperr.External(redisService, 0, fmt.Errorf("parsing total: %w", err))
	}

	var hits []Hit
	for i := 1; i+1 < len(raw); i += 2 {
		key, err := raw[i].ToString()
		if err != nil {
			continue
		}
		fields, err := raw[i+1].ToArray()
		if err != nil {
			continue
		}
		hit := Hit{ChunkID: strings.TrimPrefix(key, keyPrefix), Distance: 1}
		for j := 0; j+1 < len(fields); j += 2 {
			name, _ := fields[j].ToString()
			if name != distField {
				continue
			}
			v, _ := fields[j+1].ToString()
			if d, err := strconv.ParseFloat(v, 64); err == nil {
				hit.Distance = d
			}
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

func isRedisErr(err error, substr string) bool {
	re, ok := rueidis.IsRedisErr(err)
	if !ok {
		return false
	}
	return strings.Contains(strings.ToLower(re.Error()), substr)
}

func vectorToBytes(v []float32) string {
	return string(store.EncodeVector(v))
}
