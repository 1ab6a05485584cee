// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HiNala/bio-hack-sub000/internal/apperr"
)

// --- reconstructAbstract ---

func TestReconstructAbstract(t *testing.T) {
	tests := []struct {
		name  string
		index map[string][]int
		want  string
	}{
		{"empty map", map[string][]int{}, ""},
		{"nil map", nil, ""},
		{"single word", map[string][]int{"hello": {0}}, "hello"},
		{
			name: "repeated word",
			index: map[string][]int{
				"the": {0, 4},
				"cat": {1},
				"sat": {2},
				"on":  {3},
				"mat": {5},
			},
			want: "the cat sat on the mat",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := reconstructAbstract(tt.index)
			if got != tt.want {
				t.Errorf("reconstructAbstract() = %q, want %q", got, tt.want)
			}
		})
	}
}

// --- buildOpenAlexFilter ---

func TestBuildOpenAlexFilter(t *testing.T) {
	assert.Equal(t, "has_abstract:true", buildOpenAlexFilter(0, 0))
	assert.Equal(t, "has_abstract:true,publication_year:>2019", buildOpenAlexFilter(2020, 0))
	assert.Equal(t, "has_abstract:true,publication_year:<2024", buildOpenAlexFilter(0, 2023))
	assert.Equal(t, "has_abstract:true,publication_year:>2017,publication_year:<2021", buildOpenAlexFilter(2018, 2020))
}

// --- Mock OpenAlex server ---

const sampleOpenAlexJSON = `{
  "meta": {"count": 2, "per_page": 20, "page": 1},
  "results": [
    {
      "id": "https://openalex.org/W2741809807",
      "title": "CRISPR base editing in primary human T cells",
      "doi": "https://doi.org/10.1038/s41586-020-0001-1",
      "publication_year": 2021,
      "cited_by_count": 412,
      "authorships": [
        {"author": {"id": "A1", "display_name": "Jane Smith"}},
        {"author": {"id": "A2", "display_name": "Wei Chen"}}
      ],
      "abstract_inverted_index": {
        "We": [0], "report": [1], "efficient": [2], "base": [3], "editing": [4],
        "in": [5], "primary": [6], "human": [7], "T": [8], "cells": [9],
        "with": [10], "minimal": [11], "off-target": [12], "activity.": [13]
      },
      "open_access": {"is_oa": true, "oa_url": "https://example.org/paper.pdf"},
      "primary_location": {
        "landing_page_url": "https://www.nature.com/articles/x",
        "source": {"id": "S1", "display_name": "Nature"}
      },
      "topics": [{"id": "T1", "display_name": "Genome editing"}],
      "concepts": [
        {"display_name": "Biology", "level": 0},
        {"display_name": "Guide RNA", "level": 3}
      ]
    },
    {
      "id": "https://openalex.org/W3210812345",
      "title": "A paper without abstract",
      "doi": "",
      "publication_year": 2018,
      "authorships": [],
      "abstract_inverted_index": {},
      "open_access": {"is_oa": false, "oa_url": ""}
    }
  ]
}`

func openAlexTestServer(t *testing.T, statusCode int, body string, check func(url.Values)) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			check(r.URL.Query())
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)
		fmt.Fprint(w, body)
	}))
	old := openAlexSearchBase
	openAlexSearchBase = ts.URL
	t.Cleanup(func() {
		openAlexSearchBase = old
		ts.Close()
	})
	return ts
}

func TestOpenAlexAdapterSearch(t *testing.T) {
	var got url.Values
	ts := openAlexTestServer(t, http.StatusOK, sampleOpenAlexJSON, func(v url.Values) { got = v })

	a := &OpenAlexAdapter{Client: ts.Client(), Email: "lab@example.org", MaxAttempts: 1}
	res, err := a.Search(context.Background(), Query{Text: "crispr base editing", YearFrom: 2020, Limit: 500})
	require.NoError(t, err)

	assert.Equal(t, "crispr base editing", got.Get("search"))
	assert.Equal(t, "has_abstract:true,publication_year:>2019", got.Get("filter"))
	assert.Equal(t, "200", got.Get("per_page"), "per_page is capped")
	assert.Equal(t, "lab@example.org", got.Get("mailto"))

	assert.Equal(t, 2, res.Total)
	require.Len(t, res.Papers, 1, "record without abstract is dropped")

	p := res.Papers[0]
	assert.Equal(t, "openalex", p.Source)
	assert.Equal(t, "W2741809807", p.ExternalID)
	assert.Equal(t, "10.1038/s41586-020-0001-1", p.DOI)
	assert.Equal(t, []string{"Jane Smith", "Wei Chen"}, p.Authors)
	assert.Equal(t, 2021, p.Year)
	assert.Equal(t, 412, p.CitationCount)
	assert.Equal(t, "Nature", p.Venue)
	assert.Equal(t, "https://example.org/paper.pdf", p.PDFURL)
	assert.Equal(t, "https://www.nature.com/articles/x", p.LandingURL)
	assert.Equal(t, []string{"Genome editing"}, p.Topics)
	assert.Equal(t, []string{"Biology"}, p.FieldsOfStudy)
	assert.Contains(t, p.Abstract, "efficient base editing in primary human T cells")
}

func TestOpenAlexAdapterEmptyQuery(t *testing.T) {
	a := &OpenAlexAdapter{Client: http.DefaultClient}
	_, err := a.Search(context.Background(), Query{Text: "   "})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestOpenAlexAdapterHTTPError(t *testing.T) {
	ts := openAlexTestServer(t, http.StatusBadRequest, `{"error":"bad filter"}`, nil)

	a := &OpenAlexAdapter{Client: ts.Client(), MaxAttempts: 1}
	_, err := a.Search(context.Background(), Query{Text: "x"})
	require.Error(t, err)

	var ext *apperr.ExternalAPIError
	require.True(t, errors.As(err, &ext))
	assert.Equal(t, "openalex", ext.Service)
	assert.Equal(t, http.StatusBadRequest, ext.StatusCode)
}

func TestOpenAlexAdapterRateLimited(t *testing.T) {
	ts := openAlexTestServer(t, http.StatusTooManyRequests, `{}`, nil)

	a := &OpenAlexAdapter{Client: ts.Client(), MaxAttempts: 1}
	_, err := a.Search(context.Background(), Query{Text: "x"})
	assert.ErrorIs(t, err, apperr.ErrRateLimited)
}

func TestOpenAlexAdapterMalformedJSON(t *testing.T) {
	ts := openAlexTestServer(t, http.StatusOK, `{not json`, nil)

	a := &OpenAlexAdapter{Client: ts.Client(), MaxAttempts: 1}
	_, err := a.Search(context.Background(), Query{Text: "x"})
	assert.ErrorIs(t, err, apperr.ErrExternalAPI)
}
