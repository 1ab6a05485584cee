// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"go.yaml.in/yaml/v3"
)

// Export formats.
const (
	FormatYAML = "yaml"
	FormatJSON = "json"
	// FormatCSL is a CSL-YAML bibliography of the papers.
	FormatCSL = "csl"
)

// ExportEntry holds a stored paper with its chunk counts for export.
type ExportEntry struct {
	ID             string   `json:"id" yaml:"id"`
	Source         string   `json:"source" yaml:"source"`
	ExternalID     string   `json:"external_id" yaml:"external_id"`
	DOI            string   `json:"doi,omitempty" yaml:"doi,omitempty"`
	Title          string   `json:"title" yaml:"title"`
	Authors        []string `json:"authors" yaml:"authors"`
	Year           int      `json:"year,omitempty" yaml:"year,omitempty"`
	Venue          string   `json:"venue,omitempty" yaml:"venue,omitempty"`
	CitationCount  int      `json:"citation_count" yaml:"citation_count"`
	LandingURL     string   `json:"landing_url,omitempty" yaml:"landing_url,omitempty"`
	IngestJobID    string   `json:"ingest_job_id,omitempty" yaml:"ingest_job_id,omitempty"`
	Chunks         int      `json:"chunks" yaml:"chunks"`
	EmbeddedChunks int      `json:"embedded_chunks" yaml:"embedded_chunks"`
}

// Export writes the papers in scope to w as YAML, JSON, or a CSL-YAML
// bibliography.
func (s *Store) Export(ctx context.Context, w io.Writer, format string, scope Scope) error {
	if format == FormatCSL {
		return s.exportCSL(ctx, w, scope)
	}

	entries, err := s.exportEntries(ctx, scope)
	if err != nil {
		return err
	}

	var data []byte
	switch format {
	case FormatYAML, "":
		data, err = yaml.Marshal(entries)
		if err != nil {
			return fmt.Errorf("marshaling YAML: %w", err)
		}
	case FormatJSON:
		data, err = json.MarshalIndent(entries, "", "  ")
		if err != nil {
			return fmt.Errorf("marshaling JSON: %w", err)
		}
		data = append(data, '\n')
	default:
		return fmt.Errorf("unknown export format %q: use yaml, json, or csl", format)
	}
	_, err = w.Write(data)
	return err
}

func (s *Store) exportEntries(ctx context.Context, scope Scope) ([]ExportEntry, error) {
	papers, err := s.Papers(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("querying for export: %w", err)
	}
	counts, err := s.ChunkCounts(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("counting chunks for export: %w", err)
	}

	entries := make([]ExportEntry, len(papers))
	for i, p := range papers {
		entries[i] = ExportEntry{
			ID:             p.ID,
			Source:         p.Source,
			ExternalID:     p.ExternalID,
			DOI:            p.DOI,
			Title:          p.Title,
			Authors:        p.Authors,
			Year:           p.Year,
			Venue:          p.Venue,
			CitationCount:  p.CitationCount,
			LandingURL:     p.LandingURL,
			IngestJobID:    p.IngestJobID,
			Chunks:         counts[p.ID].Total,
			EmbeddedChunks: counts[p.ID].Embedded,
		}
	}
	return entries, nil
}

func (s *Store) exportCSL(ctx context.Context, w io.Writer, scope Scope) error {
	papers, err := s.Papers(ctx, scope)
	if err != nil {
		return fmt.Errorf("querying for export: %w", err)
	}
	items := make([]CSLItem, len(papers))
	for i, p := range papers {
		items[i] = toCSLItem(p)
	}
	enc := yaml.NewEncoder(w)
	defer enc.Close()
	return enc.Encode(items)
}
