// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/HiNala/bio-hack-sub000/internal/activity"
	"github.com/HiNala/bio-hack-sub000/internal/chunk"
	"github.com/HiNala/bio-hack-sub000/internal/embed"
	"github.com/HiNala/bio-hack-sub000/internal/index"
	"github.com/HiNala/bio-hack-sub000/internal/pipeline"
	"github.com/HiNala/bio-hack-sub000/internal/search"
	"github.com/HiNala/bio-hack-sub000/internal/source"
	"github.com/HiNala/bio-hack-sub000/internal/store"
	"github.com/HiNala/bio-hack-sub000/pkg/types"
)

// engine holds the wired components behind the ingest, search, and index
// commands.
type engine struct {
	store    *store.Store
	hub      *activity.Hub
	orch     *pipeline.Orchestrator
	embedder *embed.Service
	searcher *search.Searcher
	index    index.Index

	// syncer is set only when an external index mirrors the store.
	syncer *index.Syncer

	closers []func()
}

// newEngine opens the store and builds every component from c. Close
// releases them in reverse order.
func newEngine(ctx context.Context, c types.Config, log *zap.Logger) (_ *engine, err error) {
	e := &engine{}
	defer func() {
		if err != nil {
			e.Close()
		}
	}()

	st, err := store.New(c.Store, log)
	if err != nil {
		return nil, err
	}
	e.store = st
	e.closers = append(e.closers, func() { _ = st.Close() })

	tok, err := chunk.NewTikToken(c.Chunking.Encoding)
	if err != nil {
		return nil, err
	}
	chunker, err := chunk.New(tok, c.Chunking)
	if err != nil {
		return nil, err
	}

	provider, err := embed.NewOpenAI(c.Embedding, c.Embedding.BatchTimeout, log)
	if err != nil {
		return nil, err
	}

	idx, closeIdx, err := index.New(ctx, c.Index, st, c.Embedding.Dimensions, log)
	if err != nil {
		return nil, err
	}
	e.index = idx
	e.closers = append(e.closers, closeIdx)

	var mirror embed.Mirror
	if c.Index.Backend == types.IndexRedis {
		e.syncer = index.NewSyncer(st, idx)
		mirror = e.syncer
	}

	cache := embed.NewQueryCache(st, provider.Model(), log)
	e.embedder = embed.NewService(embed.NewInstrumented(provider), st, tok, cache, mirror, embed.Options{
		BatchSize:      c.Embedding.BatchSize,
		MaxInputTokens: c.Embedding.MaxInputTokens,
		BatchTimeout:   c.Embedding.BatchTimeout,
		MaxAttempts:    c.Embedding.MaxAttempts,
	}, log)

	adapters, err := source.NewAdapters(c.Sources, log)
	if err != nil {
		return nil, err
	}

	e.hub = activity.NewHub(log)
	e.orch = pipeline.New(st, adapters, chunker, e.embedder, e.hub, pipeline.Options{
		MaxPerSource: c.Sources.MaxPerSource,
	}, log)
	e.searcher = search.NewSearcher(e.embedder, idx, st, c.Index.Oversample, log)
	return e, nil
}

// Close releases the engine's resources.
func (e *engine) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
	e.closers = nil
}

// openStore opens only the database, for commands that never call a
// provider.
func openStore(c types.Config, log *zap.Logger) (*store.Store, error) {
	st, err := store.New(c.Store, log)
	if err != nil {
		return nil, fmt.Errorf("opening store %s: %w", c.Store.Path, err)
	}
	return st, nil
}
