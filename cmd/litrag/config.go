// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/HiNala/bio-hack-sub000/pkg/types"
)

const (
	appName   = "litrag"
	envPrefix = "LITRAG"
)

// configKeys lists every setting that can come from the environment. Viper
// only consults the environment for keys it knows about, so each one is
// bound explicitly; LITRAG_EMBEDDING_API_KEY sets embedding.api_key.
var configKeys = []string{
	"sources.timeout",
	"sources.user_agent",
	"sources.max_attempts",
	"sources.enabled",
	"sources.max_per_source",
	"sources.openalex_email",
	"sources.semantic_scholar_api_key",
	"sources.requests_per_second",
	"sources.min_abstract_chars",

	"chunking.target_tokens",
	"chunking.overlap_tokens",
	"chunking.min_tokens",
	"chunking.encoding",

	"embedding.api_key",
	"embedding.base_url",
	"embedding.model",
	"embedding.dimensions",
	"embedding.batch_size",
	"embedding.max_input_tokens",
	"embedding.batch_timeout",
	"embedding.max_attempts",

	"index.backend",
	"index.oversample",
	"index.redis_addrs",
	"index.redis_password",
	"index.redis_index",
	"index.hnsw_m",
	"index.hnsw_ef_construction",

	"store.path",
	"pipeline.workers",
	"log.env",
	"log.level",
}

// loadConfig reads cfgFile, or litrag.yaml from the working directory or
// ~/.config/litrag, overlays LITRAG_* environment variables, and decodes the
// result. A missing config file is not an error. It returns the path of the
// file used, if any. Defaults are applied by the caller.
func loadConfig(v *viper.Viper, cfgFile string) (types.Config, string, error) {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName(appName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", appName))
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range configKeys {
		if err := v.BindEnv(key); err != nil {
			return types.Config{}, "", fmt.Errorf("binding %s: %w", key, err)
		}
	}

	used := ""
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return types.Config{}, "", fmt.Errorf("reading config: %w", err)
		}
	} else {
		used = v.ConfigFileUsed()
	}

	var c types.Config
	if err := v.Unmarshal(&c); err != nil {
		return types.Config{}, "", fmt.Errorf("decoding config: %w", err)
	}
	return c, used, nil
}
