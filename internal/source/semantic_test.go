// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package source

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HiNala/bio-hack-sub000/internal/apperr"
)

const sampleSemanticJSON = `{
  "total": 3,
  "offset": 0,
  "data": [
    {
      "paperId": "649def34f8be52c8b66281af98ae884c09aef38b",
      "externalIds": {"DOI": "10.1038/S41586-020-0001-1"},
      "title": "CRISPR base editing in primary human T cells",
      "abstract": "We report efficient base editing in primary human T cells with minimal off-target activity.",
      "authors": [{"authorId": "1", "name": "J. Smith"}],
      "year": 2021,
      "venue": "Nature",
      "url": "https://www.semanticscholar.org/paper/649def",
      "citationCount": 398,
      "fieldsOfStudy": ["Biology", "Medicine"],
      "s2FieldsOfStudy": [{"category": "Biology", "source": "external"}],
      "openAccessPdf": {"url": "https://example.org/s2.pdf"}
    },
    {
      "paperId": "abc",
      "title": "No abstract here",
      "abstract": null,
      "year": 2020
    },
    {
      "paperId": "short",
      "title": "Too short",
      "abstract": "Tiny.",
      "year": 2020
    }
  ]
}`

func TestBuildYearRange(t *testing.T) {
	tests := []struct {
		from, to int
		want     string
	}{
		{0, 0, ""},
		{2020, 2023, "2020-2023"},
		{2020, 0, "2020-"},
		{0, 2019, "-2019"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, buildYearRange(tt.from, tt.to))
	}
}

func TestSemanticScholarAdapterSearch(t *testing.T) {
	var gotKey, gotYear, gotLimit string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-api-key")
		gotYear = r.URL.Query().Get("year")
		gotLimit = r.URL.Query().Get("limit")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, sampleSemanticJSON)
	}))
	defer ts.Close()

	old := semanticAPIBase
	semanticAPIBase = ts.URL
	defer func() { semanticAPIBase = old }()

	a := &SemanticScholarAdapter{Client: ts.Client(), APIKey: "s2-key", MaxAttempts: 1}
	res, err := a.Search(context.Background(), Query{Text: "base editing", YearFrom: 2020, YearTo: 2023, Limit: 250})
	require.NoError(t, err)

	assert.Equal(t, "s2-key", gotKey)
	assert.Equal(t, "2020-2023", gotYear)
	assert.Equal(t, "100", gotLimit)

	assert.Equal(t, 3, res.Total)
	require.Len(t, res.Papers, 1)
	p := res.Papers[0]
	assert.Equal(t, "semantic_scholar", p.Source)
	assert.Equal(t, "649def34f8be52c8b66281af98ae884c09aef38b", p.ExternalID)
	assert.Equal(t, "10.1038/S41586-020-0001-1", p.DOI)
	assert.Equal(t, []string{"J. Smith"}, p.Authors)
	assert.Equal(t, []string{"Biology", "Medicine"}, p.FieldsOfStudy)
	assert.Equal(t, []string{"Biology"}, p.Topics)
	assert.Equal(t, "https://example.org/s2.pdf", p.PDFURL)
	assert.Equal(t, 398, p.CitationCount)
}

func TestSemanticScholarAdapterServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	old := semanticAPIBase
	semanticAPIBase = ts.URL
	defer func() { semanticAPIBase = old }()

	a := &SemanticScholarAdapter{Client: ts.Client(), MaxAttempts: 1}
	_, err := a.Search(context.Background(), Query{Text: "x"})
	require.ErrorIs(t, err, apperr.ErrExternalAPI)
	assert.True(t, apperr.Retryable(err))
}
