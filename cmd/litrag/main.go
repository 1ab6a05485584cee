// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the litrag CLI: ingest academic papers
// from open catalogs into a local store and search them by meaning.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/HiNala/bio-hack-sub000/internal/logger"
	"github.com/HiNala/bio-hack-sub000/internal/metrics"
	"github.com/HiNala/bio-hack-sub000/internal/secrets"
	"github.com/HiNala/bio-hack-sub000/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

// Populated by setup before any subcommand runs.
var (
	cfg        types.Config
	log        *zap.Logger
	metricsSrv *http.Server
)

// rootCmd is the base command for the litrag CLI.
var rootCmd = &cobra.Command{
	Use:   "litrag",
	Short: "Ingest academic literature and search it by meaning",
	Long: `litrag turns a research question into a searchable corpus. ingest queries
OpenAlex and Semantic Scholar, deduplicates the hits, splits abstracts into
passages, and embeds them. search ranks stored passages by semantic
similarity, citation count, and recency.

Jobs are persisted in a local SQLite database; an interrupted job can be
resumed with "litrag job resume".`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		teardown()
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file (default: ./litrag.yaml or ~/.config/litrag/litrag.yaml)")
	rootCmd.PersistentFlags().String("secrets-dir", ".secrets", "directory of secret files (openai-api-key, semantic-scholar-api-key, ...)")
	rootCmd.PersistentFlags().String("metrics-addr", "", "serve Prometheus metrics on this address while the command runs (e.g. :9090)")
	rootCmd.PersistentFlags().String("db", "", "SQLite database path (overrides store.path)")
}

// setup loads .env, config, and secrets, then builds the logger and the
// optional metrics endpoint.
func setup(cmd *cobra.Command, args []string) error {
	// A missing .env is normal.
	_ = godotenv.Load()

	cfgFile, _ := cmd.Flags().GetString("config")
	c, used, err := loadConfig(viper.GetViper(), cfgFile)
	if err != nil {
		return err
	}

	secretsDir, _ := cmd.Flags().GetString("secrets-dir")
	s, err := secrets.Load(secretsDir, nil)
	if err != nil {
		return err
	}
	applied := secrets.Apply(&c, s)

	if db, _ := cmd.Flags().GetString("db"); db != "" {
		c.Store.Path = db
	}
	c.ApplyDefaults()
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	l, err := logger.New(c.Log.Env, c.Log.Level)
	if err != nil {
		return err
	}
	cfg, log = c, l
	if used != "" {
		log.Debug("using config file", zap.String("path", used))
	}
	if len(applied) > 0 {
		log.Debug("loaded secrets", zap.Strings("keys", applied))
	}

	metrics.Register()
	if addr, _ := cmd.Flags().GetString("metrics-addr"); addr != "" {
		metricsSrv = serveMetrics(addr, log)
	}
	return nil
}

func teardown() {
	if metricsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(ctx)
	}
	if log != nil {
		_ = log.Sync()
	}
}

// serveMetrics starts an HTTP server exposing /metrics for Prometheus scrape.
func serveMetrics(addr string, log *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("metrics server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server error", zap.Error(err))
		}
	}()

	return srv
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
