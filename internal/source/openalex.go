// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/HiNala/bio-hack-sub000/internal/apperr"
	"github.com/HiNala/bio-hack-sub000/internal/httputil"
	"github.com/HiNala/bio-hack-sub000/pkg/types"
)

// openAlexSearchBase is the OpenAlex Works search endpoint. Declared as a
// var so tests can substitute an httptest server.
var openAlexSearchBase = "https://api.openalex.org/works"

const openAlexMaxPerPage = 200

// OpenAlexAdapter queries the OpenAlex Works API.
type OpenAlexAdapter struct {
	Client *http.Client
	// Email is sent as mailto parameter for polite pool access.
	Email       string
	UserAgent   string
	MaxAttempts int
	Normalizer  Normalizer
}

// Name returns the adapter identifier.
func (a *OpenAlexAdapter) Name() string { return types.SourceOpenAlex }

// Search queries OpenAlex for works with abstracts matching q.
func (a *OpenAlexAdapter) Search(ctx context.Context, q Query) (Result, error) {
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return Result{}, apperr.Validation("query", "empty OpenAlex query")
	}

	perPage := q.Limit
	if perPage <= 0 {
		perPage = 50
	}
	if perPage > openAlexMaxPerPage {
		perPage = openAlexMaxPerPage
	}

	params := url.Values{
		"search":   {text},
		"filter":   {buildOpenAlexFilter(q.YearFrom, q.YearTo)},
		"per_page": {strconv.Itoa(perPage)},
		"page":     {"1"},
	}
	if a.Email != "" {
		params.Set("mailto", a.Email)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, openAlexSearchBase+"?"+params.Encode(), nil)
	if err != nil {
		return Result{}, fmt.Errorf("creating request: %w", err)
	}
	if a.UserAgent != "" {
		ua := a.UserAgent
		if a.Email != "" {
			ua += " (mailto:" + a.Email + ")"
		}
		req.Header.Set("User-Agent", ua)
	}

	resp, err := httputil.DoWithRetry(ctx, a.Client, req, a.MaxAttempts)
	if err != nil {
		return Result{}, apperr.External(a.Name(), 0, fmt.Errorf("OpenAlex API request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{}, httputil.StatusError(a.Name(), resp)
	}

	var oar openAlexResponse
	if err := json.NewDecoder(resp.Body).Decode(&oar); err != nil {
		return Result{}, apperr.External(a.Name(), resp.StatusCode, fmt.Errorf("parsing OpenAlex response: %w", err))
	}

	out := Result{Total: oar.Meta.Count}
	for _, work := range oar.Results {
		p, ok := a.Normalizer.Normalize(work.toUnified())
		if !ok {
			continue
		}
		out.Papers = append(out.Papers, p)
	}
	return out, nil
}

// buildOpenAlexFilter always requires an abstract and adds the year window.
func buildOpenAlexFilter(yearFrom, yearTo int) string {
	filters := []string{"has_abstract:true"}
	if yearFrom > 0 {
		filters = append(filters, fmt.Sprintf("publication_year:>%d", yearFrom-1))
	}
	if yearTo > 0 {
		filters = append(filters, fmt.Sprintf("publication_year:<%d", yearTo+1))
	}
	return strings.Join(filters, ",")
}

func (w openAlexWork) toUnified() types.UnifiedPaper {
	title := w.Title
	if title == "" {
		title = w.DisplayName
	}

	p := types.UnifiedPaper{
		Source:        types.SourceOpenAlex,
		ExternalID:    strings.TrimPrefix(w.ID, "https://openalex.org/"),
		DOI:           strings.TrimPrefix(w.DOI, "https://doi.org/"),
		Title:         title,
		Abstract:      reconstructAbstract(w.AbstractInvertedIndex),
		Year:          w.PublicationYear,
		CitationCount: w.CitedByCount,
		PDFURL:        w.OpenAccess.OAURL,
	}

	for _, authorship := range w.Authorships {
		if authorship.Author.DisplayName != "" {
			p.Authors = append(p.Authors, authorship.Author.DisplayName)
		}
	}

	if loc := w.PrimaryLocation; loc != nil {
		if loc.Source != nil {
			p.Venue = loc.Source.DisplayName
		}
		p.LandingURL = loc.LandingPageURL
		if p.PDFURL == "" {
			p.PDFURL = loc.PDFURL
		}
	}
	if p.LandingURL == "" {
		if p.DOI != "" {
			p.LandingURL = "https://doi.org/" + p.DOI
		} else {
			p.LandingURL = w.ID
		}
	}

	for _, t := range w.Topics {
		p.Topics = append(p.Topics, t.DisplayName)
	}
	for _, c := range w.Concepts {
		if c.Level <= 1 {
			p.FieldsOfStudy = append(p.FieldsOfStudy, c.DisplayName)
		}
	}
	return p
}

// reconstructAbstract converts OpenAlex's abstract_inverted_index back to
// plain text. The inverted index maps each word to a list of positions
// where that word appears.
func reconstructAbstract(invertedIndex map[string][]int) string {
	if len(invertedIndex) == 0 {
		return ""
	}

	type posWord struct {
		pos  int
		word string
	}
	var pairs []posWord
	for word, positions := range invertedIndex {
		for _, pos := range positions {
			pairs = append(pairs, posWord{pos: pos, word: word})
		}
	}

	sort.Slice(pairs, func(i, j int) bool {
		return pairs[i].pos < pairs[j].pos
	})

	words := make([]string, len(pairs))
	for i, p := range pairs {
		words[i] = p.word
	}
	return strings.Join(words, " ")
}

// OpenAlex API JSON structures.
type openAlexResponse struct {
	Meta    openAlexMeta   `json:"meta"`
	Results []openAlexWork `json:"results"`
}

type openAlexMeta struct {
	Count   int `json:"count"`
	PerPage int `json:"per_page"`
	Page    int `json:"page"`
}

type openAlexWork struct {
	ID                    string               `json:"id"`
	Title                 string               `json:"title"`
	DisplayName           string               `json:"display_name"`
	DOI                   string               `json:"doi"`
	PublicationYear       int                  `json:"publication_year"`
	CitedByCount          int                  `json:"cited_by_count"`
	Authorships           []openAlexAuthorship `json:"authorships"`
	AbstractInvertedIndex map[string][]int     `json:"abstract_inverted_index"`
	OpenAccess            openAlexOpenAccess   `json:"open_access"`
	PrimaryLocation       *openAlexLocation    `json:"primary_location"`
	Topics                []openAlexNamed      `json:"topics"`
	Concepts              []openAlexConcept    `json:"concepts"`
}

type openAlexAuthorship struct {
	Author openAlexAuthor `json:"author"`
}

type openAlexAuthor struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

type openAlexOpenAccess struct {
	IsOA  bool   `json:"is_oa"`
	OAURL string `json:"oa_url"`
}

type openAlexLocation struct {
	LandingPageURL string         `json:"landing_page_url"`
	PDFURL         string         `json:"pdf_url"`
	Source         *openAlexNamed `json:"source"`
}

type openAlexNamed struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

type openAlexConcept struct {
	DisplayName string `json:"display_name"`
	Level       int    `json:"level"`
}
