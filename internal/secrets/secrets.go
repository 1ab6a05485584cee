// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package secrets loads API keys and credentials from a directory of plain-text files.
// Each file in the directory represents one secret: the filename is the key name and the
// file contents (trimmed) are the value.
//
// Recognised key files: openai-api-key, semantic-scholar-api-key, openalex-email, redis-password.
package secrets

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/HiNala/bio-hack-sub000/internal/logger"
	"github.com/HiNala/bio-hack-sub000/pkg/types"
)

// Key file names understood by Apply.
const (
	OpenAIAPIKey          = "openai-api-key"
	SemanticScholarAPIKey = "semantic-scholar-api-key"
	OpenAlexEmail         = "openalex-email"
	RedisPassword         = "redis-password"
)

// Load reads all files in dir and returns a map of filename to trimmed contents.
// A missing directory or missing files are not errors; Load returns an empty map.
// Unreadable files are logged as warnings and skipped.
func Load(dir string, log *zap.Logger) (map[string]string, error) {
	log = logger.OrNop(log)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("reading secrets directory %s: %w", dir, err)
	}

	secrets := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			log.Warn("could not read secret", zap.String("name", name), zap.Error(err))
			continue
		}

		value := strings.TrimSpace(string(data))
		if value != "" {
			secrets[name] = value
		}
	}

	return secrets, nil
}

// Apply copies recognised secrets into cfg. Values already set by the config
// file or environment win. It returns the names of the secrets it used.
func Apply(cfg *types.Config, secrets map[string]string) []string {
	targets := map[string]*string{
		OpenAIAPIKey:          &cfg.Embedding.APIKey,
		SemanticScholarAPIKey: &cfg.Sources.SemanticScholarAPIKey,
		OpenAlexEmail:         &cfg.Sources.OpenAlexEmail,
		RedisPassword:         &cfg.Index.RedisPassword,
	}

	var used []string
	for name, dst := range targets {
		v, ok := secrets[name]
		if !ok || *dst != "" {
			continue
		}
		*dst = v
		used = append(used, name)
	}
	sort.Strings(used)
	return used
}
