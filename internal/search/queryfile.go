// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"fmt"
	"os"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/HiNala/bio-hack-sub000/pkg/types"
)

// QueryFile is a saved search: the request and the ranked passages it
// returned. It lets a researcher revisit results without re-embedding the
// query or touching the index.
type QueryFile struct {
	Request types.SearchRequest  `yaml:"request"`
	Results []types.SearchResult `yaml:"results"`
	Summary QuerySummary         `yaml:"summary"`
}

// QuerySummary stores result statistics and a timestamp.
type QuerySummary struct {
	Total     int       `yaml:"total"`
	Papers    int       `yaml:"papers"`
	Timestamp time.Time `yaml:"timestamp"`
}

// NewQueryFile builds the saved form of one search.
func NewQueryFile(req types.SearchRequest, results []types.SearchResult, now time.Time) QueryFile {
	papers := make(map[string]bool, len(results))
	for _, r := range results {
		papers[r.PaperID] = true
	}
	return QueryFile{
		Request: req,
		Results: results,
		Summary: QuerySummary{
			Total:     len(results),
			Papers:    len(papers),
			Timestamp: now.UTC(),
		},
	}
}

// WriteQueryFile saves qf to path as YAML.
func WriteQueryFile(path string, qf QueryFile) error {
	data, err := yaml.Marshal(&qf)
	if err != nil {
		return fmt.Errorf("marshaling query file: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadQueryFile loads a previously saved query file from disk.
func ReadQueryFile(path string) (*QueryFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading query file: %w", err)
	}
	var qf QueryFile
	if err := yaml.Unmarshal(data, &qf); err != nil {
		return nil, fmt.Errorf("parsing query file: %w", err)
	}
	return &qf, nil
}
