// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// Catalog names used as UnifiedPaper.Source and as the sources table key.
const (
	SourceOpenAlex        = "openalex"
	SourceSemanticScholar = "semantic_scholar"
)

// UnifiedPaper is the source-agnostic record a catalog adapter produces for
// one search hit. Optional fields use their zero value when absent: an empty
// DOI or Abstract, and Year 0 for an unknown year.
type UnifiedPaper struct {
	// Source is the catalog name (e.g. "openalex", "semantic_scholar").
	Source string `json:"source" yaml:"source"`

	// ExternalID is the catalog's own identifier for the work.
	ExternalID string `json:"external_id" yaml:"external_id"`

	DOI      string   `json:"doi,omitempty" yaml:"doi,omitempty"`
	Title    string   `json:"title" yaml:"title"`
	Abstract string   `json:"abstract,omitempty" yaml:"abstract,omitempty"`
	Authors  []string `json:"authors" yaml:"authors"`
	Year     int      `json:"year,omitempty" yaml:"year,omitempty"`
	Venue    string   `json:"venue,omitempty" yaml:"venue,omitempty"`

	Topics        []string `json:"topics,omitempty" yaml:"topics,omitempty"`
	FieldsOfStudy []string `json:"fields_of_study,omitempty" yaml:"fields_of_study,omitempty"`
	CitationCount int      `json:"citation_count" yaml:"citation_count"`

	PDFURL     string `json:"pdf_url,omitempty" yaml:"pdf_url,omitempty"`
	LandingURL string `json:"landing_url,omitempty" yaml:"landing_url,omitempty"`
}

// Key returns the per-catalog identity "source:externalID".
func (p UnifiedPaper) Key() string {
	return p.Source + ":" + p.ExternalID
}

// FirstAuthor returns the first listed author or "".
func (p UnifiedPaper) FirstAuthor() string {
	if len(p.Authors) == 0 {
		return ""
	}
	return p.Authors[0]
}

// Paper is the durable, deduplicated record. It is unique on
// (SourceID, ExternalID); DOI is not unique in storage.
type Paper struct {
	ID          string `json:"id" yaml:"id"`
	SourceID    string `json:"source_id" yaml:"source_id"`
	Source      string `json:"source" yaml:"source"`
	IngestJobID string `json:"ingest_job_id,omitempty" yaml:"ingest_job_id,omitempty"`
	ExternalID  string `json:"external_id" yaml:"external_id"`

	DOI           string   `json:"doi,omitempty" yaml:"doi,omitempty"`
	Title         string   `json:"title" yaml:"title"`
	Abstract      string   `json:"abstract,omitempty" yaml:"abstract,omitempty"`
	Authors       []string `json:"authors" yaml:"authors"`
	Year          int      `json:"year,omitempty" yaml:"year,omitempty"`
	Venue         string   `json:"venue,omitempty" yaml:"venue,omitempty"`
	Topics        []string `json:"topics,omitempty" yaml:"topics,omitempty"`
	FieldsOfStudy []string `json:"fields_of_study,omitempty" yaml:"fields_of_study,omitempty"`
	CitationCount int      `json:"citation_count" yaml:"citation_count"`
	PDFURL        string   `json:"pdf_url,omitempty" yaml:"pdf_url,omitempty"`
	LandingURL    string   `json:"landing_url,omitempty" yaml:"landing_url,omitempty"`

	// IsChunked and IsEmbedded are set by the chunking and embedding stages.
	IsChunked  bool `json:"is_chunked" yaml:"is_chunked"`
	IsEmbedded bool `json:"is_embedded" yaml:"is_embedded"`

	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

// Chunk is a token-bounded passage of a paper's text, the unit of embedding
// and retrieval.
type Chunk struct {
	ID         string `json:"id" yaml:"id"`
	PaperID    string `json:"paper_id" yaml:"paper_id"`
	Text       string `json:"text" yaml:"text"`
	ChunkIndex int    `json:"chunk_index" yaml:"chunk_index"`

	// Section is a detected label such as "methods" or "results", or "".
	Section    string `json:"section,omitempty" yaml:"section,omitempty"`
	TokenCount int    `json:"token_count" yaml:"token_count"`
	CharCount  int    `json:"char_count" yaml:"char_count"`

	// OverlapChars is the length of the prefix of Text copied from the end of
	// the previous chunk. Zero for the first chunk of a paper.
	OverlapChars int `json:"overlap_chars" yaml:"overlap_chars"`

	// Embedding is nil until the embedding stage has processed the chunk.
	Embedding []float32 `json:"-" yaml:"-"`

	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// HasOverlap reports whether the chunk starts with context copied from its
// predecessor.
func (c Chunk) HasOverlap() bool {
	return c.OverlapChars > 0
}

// Body returns the chunk text without its overlap prefix.
func (c Chunk) Body() string {
	if c.OverlapChars <= 0 || c.OverlapChars > len(c.Text) {
		return c.Text
	}
	body := c.Text[c.OverlapChars:]
	if len(body) > 0 && body[0] == ' ' {
		body = body[1:]
	}
	return body
}
