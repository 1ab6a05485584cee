// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines the records shared across the ingestion pipeline:
// catalog hits (UnifiedPaper), stored papers and chunks, ingest jobs with
// their progress document, search requests and results, and configuration.
package types

// SearchRequest is the semantic search contract.
type SearchRequest struct {
	Query        string `json:"query" yaml:"query"`
	TopK         int    `json:"top_k" yaml:"top_k"`
	YearFrom     int    `json:"year_from,omitempty" yaml:"year_from,omitempty"`
	YearTo       int    `json:"year_to,omitempty" yaml:"year_to,omitempty"`
	MinCitations int    `json:"min_citations,omitempty" yaml:"min_citations,omitempty"`

	// DedupePapers keeps only the best chunk per paper.
	DedupePapers bool `json:"dedupe_papers" yaml:"dedupe_papers"`
}

// SearchResult is one ranked passage. It is built fresh per query and never
// persisted.
type SearchResult struct {
	ChunkID    string `json:"chunk_id" yaml:"chunk_id"`
	PaperID    string `json:"paper_id" yaml:"paper_id"`
	Text       string `json:"text" yaml:"text"`
	Section    string `json:"section,omitempty" yaml:"section,omitempty"`
	ChunkIndex int    `json:"chunk_index" yaml:"chunk_index"`

	Title         string   `json:"title" yaml:"title"`
	Authors       []string `json:"authors" yaml:"authors"`
	Year          int      `json:"year,omitempty" yaml:"year,omitempty"`
	Venue         string   `json:"venue,omitempty" yaml:"venue,omitempty"`
	DOI           string   `json:"doi,omitempty" yaml:"doi,omitempty"`
	CitationCount int      `json:"citation_count" yaml:"citation_count"`
	LandingURL    string   `json:"landing_url,omitempty" yaml:"landing_url,omitempty"`

	// SimilarityScore is 1 - cosine distance between query and chunk.
	SimilarityScore float64 `json:"similarity_score" yaml:"similarity_score"`

	// FinalScore is SimilarityScore adjusted by citation boost and recency.
	FinalScore float64 `json:"final_score" yaml:"final_score"`
}
