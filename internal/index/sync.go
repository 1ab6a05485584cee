// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package index

import (
	"context"
	"errors"

	"github.com/HiNala/bio-hack-sub000/internal/store"
)

// Syncer copies stored embeddings into an index. It is the embedding
// stage's mirror for external indexes.
type Syncer struct {
	store     EmbeddingScanner
	index     Index
	batchSize int
}

// NewSyncer returns a Syncer writing batches of up to 500 vectors.
func NewSyncer(st EmbeddingScanner, idx Index) *Syncer {
	return &Syncer{store: st, index: idx, batchSize: 500}
}

// Mirror copies the embeddings of the given chunks.
func (s *Syncer) Mirror(ctx context.Context, chunkIDs []string) error {
	if len(chunkIDs) == 0 {
		return nil
	}
	_, err := s.sync(ctx, store.EmbeddingFilter{ChunkIDs: chunkIDs})
	return err
}

// SyncAll copies every stored embedding and returns how many were written.
func (s *Syncer) SyncAll(ctx context.Context) (int, error) {
	return s.sync(ctx, store.EmbeddingFilter{})
}

var errStop = errors.New("stop")

func (s *Syncer) sync(ctx context.Context, f store.EmbeddingFilter) (int, error) {
	var (
		batch   []Vector
		written int
		upsErr  error
	)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := s.index.Upsert(ctx, batch); err != nil {
			return err
		}
		written += len(batch)
		batch = batch[:0]
		return nil
	}

	err := s.store.ScanEmbeddings(ctx, f, func(ec store.EmbeddedChunk) error {
		batch = append(batch, Vector{
			ChunkID:   ec.ChunkID,
			PaperID:   ec.PaperID,
			Year:      ec.Year,
			Citations: ec.Citations,
			Embedding: ec.Embedding,
		})
		if len(batch) >= s.batchSize {
			if upsErr = flush(); upsErr != nil {
				return errStop
			}
		}
		return nil
	})
	if upsErr != nil {
		return written, upsErr
	}
	if err != nil {
		return written, err
	}
	return written, flush()
}
