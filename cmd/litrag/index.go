// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/HiNala/bio-hack-sub000/internal/index"
	"github.com/HiNala/bio-hack-sub000/pkg/types"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Manage the vector index",
}

var indexSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Copy every stored embedding into the Redis index",
	Long: `Sync creates the Redis search index if needed and writes every stored
chunk embedding into it. Ingest mirrors new embeddings automatically; sync is
for a fresh or flushed Redis instance. It requires index.backend=redis.`,
	Args: cobra.NoArgs,
	RunE: runIndexSync,
}

func init() {
	indexCmd.AddCommand(indexSyncCmd)
	rootCmd.AddCommand(indexCmd)
}

func runIndexSync(cmd *cobra.Command, args []string) error {
	if cfg.Index.Backend != types.IndexRedis {
		return fmt.Errorf("index sync requires index.backend=redis (current: %s)", cfg.Index.Backend)
	}

	st, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := cmd.Context()
	idx, closeIdx, err := index.New(ctx, cfg.Index, st, cfg.Embedding.Dimensions, log)
	if err != nil {
		return err
	}
	defer closeIdx()

	n, err := index.NewSyncer(st, idx).SyncAll(ctx)
	if err != nil {
		return fmt.Errorf("synced %d embeddings before failing: %w", n, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Synced %d embeddings into %s\n", n, cfg.Index.RedisIndex)
	return nil
}
