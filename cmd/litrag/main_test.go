// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HiNala/bio-hack-sub000/internal/activity"
	"github.com/HiNala/bio-hack-sub000/pkg/types"
)

const testConfig = `
sources:
  enabled: [openalex]
  max_per_source: 25
  timeout: 10s
embedding:
  model: text-embedding-3-large
  dimensions: 3072
  batch_timeout: 30s
index:
  backend: redis
  redis_addrs: ["localhost:6379"]
store:
  path: /tmp/papers.db
`

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "litrag.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testConfig), 0o644))

	c, used, err := loadConfig(viper.New(), path)
	require.NoError(t, err)
	assert.Equal(t, path, used)
	assert.Equal(t, []string{"openalex"}, c.Sources.Enabled)
	assert.Equal(t, 25, c.Sources.MaxPerSource)
	assert.Equal(t, 10*time.Second, c.Sources.Timeout)
	assert.Equal(t, "text-embedding-3-large", c.Embedding.Model)
	assert.Equal(t, 3072, c.Embedding.Dimensions)
	assert.Equal(t, 30*time.Second, c.Embedding.BatchTimeout)
	assert.Equal(t, types.IndexRedis, c.Index.Backend)
	assert.Equal(t, []string{"localhost:6379"}, c.Index.RedisAddrs)
	assert.Equal(t, "/tmp/papers.db", c.Store.Path)

	c.ApplyDefaults()
	require.NoError(t, c.Validate())
	assert.Equal(t, 500, c.Chunking.TargetTokens)
}

func TestLoadConfigEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "litrag.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testConfig), 0o644))
	t.Setenv("LITRAG_EMBEDDING_API_KEY", "sk-env")
	t.Setenv("LITRAG_STORE_PATH", "/data/env.db")
	t.Setenv("LITRAG_PIPELINE_WORKERS", "8")

	c, _, err := loadConfig(viper.New(), path)
	require.NoError(t, err)
	assert.Equal(t, "sk-env", c.Embedding.APIKey)
	assert.Equal(t, "/data/env.db", c.Store.Path)
	assert.Equal(t, 8, c.Pipeline.Workers)
	assert.Equal(t, "text-embedding-3-large", c.Embedding.Model)
}

func TestLoadConfigMissingExplicitFile(t *testing.T) {
	_, _, err := loadConfig(viper.New(), filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config")
}

func TestCollectQuestions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "questions.txt")
	require.NoError(t, os.WriteFile(path, []byte("# batch\nCRISPR off-target effects\n\n  gut microbiome and depression  \n"), 0o644))

	got, err := collectQuestions([]string{"protein folding since 2020", "  "}, path)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"protein folding since 2020",
		"CRISPR off-target effects",
		"gut microbiome and depression",
	}, got)

	_, err = collectQuestions(nil, filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}

func TestFormatEvent(t *testing.T) {
	tests := []struct {
		name    string
		event   activity.Event
		showJob bool
		want    string
	}{
		{
			name:  "idle prints nothing",
			event: activity.Event{Type: activity.Idle, Message: "Ready"},
		},
		{
			name:  "message only",
			event: activity.Event{Type: activity.Searching, Message: "Querying catalogs"},
			want:  "searching    Querying catalogs",
		},
		{
			name:    "job prefix progress and detail",
			event:   activity.Event{Type: activity.Embedding, Message: "Embedded 5 of 10 passages", Progress: activity.Float(50), Detail: "batch 1", JobID: "0123456789abcdef"},
			showJob: true,
			want:    "[01234567] embedding    Embedded 5 of 10 passages (50.0%): batch 1",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatEvent(tt.event, tt.showJob))
		})
	}
}

func TestPrintJob(t *testing.T) {
	job := &types.IngestJob{
		ID:            "job-1",
		Status:        types.JobFailed,
		OriginalQuery: "sleep and memory",
		ParsedQueries: []string{"sleep memory", "sleep memory consolidation"},
		Progress:      types.NewProgress(),
		FailedStage:   types.JobEmbedding,
		ErrorMessage:  "every embedding batch failed",
	}
	ms := int64(1500)
	job.Progress.Stage(types.JobParsing).Status = types.StageCompleted
	job.Progress.Stage(types.JobParsing).DurationMs = &ms
	job.Progress.Papers.PapersStored = 12
	job.Progress.Chunks = types.ChunkProgress{TotalCreated: 30, AveragePerPaper: 2.5}

	var buf bytes.Buffer
	printJob(&buf, job)
	out := buf.String()

	assert.Contains(t, out, "Job job-1: failed")
	assert.Contains(t, out, "Queries:  sleep memory | sleep memory consolidation")
	assert.Contains(t, out, "parsing    completed        1.5s")
	assert.Contains(t, out, "12 stored")
	assert.Contains(t, out, "30 created, 2.50 per paper")
	assert.Contains(t, out, "Failed in embedding: every embedding batch failed")
}

func TestPrintJobTable(t *testing.T) {
	var buf bytes.Buffer
	printJobTable(&buf, nil)
	assert.Equal(t, "No jobs.\n", buf.String())

	buf.Reset()
	printJobTable(&buf, []*types.IngestJob{{
		ID:            "job-2",
		Status:        types.JobCompleted,
		OriginalQuery: "a question",
		Progress:      types.NewProgress(),
		CreatedAt:     time.Now(),
	}})
	assert.Contains(t, buf.String(), "ID")
	assert.Contains(t, buf.String(), "job-2")
	assert.Contains(t, buf.String(), "a question")
}

func TestTruncateQuestion(t *testing.T) {
	assert.Equal(t, "short", truncateQuestion("short", 10))
	assert.Equal(t, "abcdefg...", truncateQuestion("abcdefghijklmnop", 10))
}
