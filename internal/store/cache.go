// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// QueryEmbedding returns the cached vector stored under key.
func (s *Store) QueryEmbedding(ctx context.Context, key string) ([]float32, bool, error) {
	var blob []byte
	err := s.withRetry(ctx, "get query embedding", func() error {
		err := s.db.QueryRowContext(ctx, `SELECT embedding FROM query_embeddings WHERE key = ?`, key).Scan(&blob)
		if errors.Is(err, sql.ErrNoRows) {
			blob = nil
			return nil
		}
		return err
	})
	if err != nil || blob == nil {
		return nil, false, err
	}
	v, err := DecodeVector(blob)
	if err != nil {
		return nil, false, fmt.Errorf("query embedding %s: %w", key, err)
	}
	return v, true, nil
}

// PutQueryEmbedding stores vec under key, replacing any previous entry.
func (s *Store) PutQueryEmbedding(ctx context.Context, key, model string, vec []float32) error {
	return s.withRetry(ctx, "put query embedding", func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO query_embeddings (key, model, embedding, created_at) VALUES (?, ?, ?, ?)
			 ON CONFLICT(key) DO UPDATE SET model = excluded.model, embedding = excluded.embedding,
				created_at = excluded.created_at`,
			key, model, EncodeVector(vec), formatTime(time.Now()))
		return err
	})
}
