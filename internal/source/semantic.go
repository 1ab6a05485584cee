// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/HiNala/bio-hack-sub000/internal/apperr"
	"github.com/HiNala/bio-hack-sub000/internal/httputil"
	"github.com/HiNala/bio-hack-sub000/pkg/types"
)

// semanticAPIBase is the Semantic Scholar paper search endpoint. Declared
// as a var so tests can substitute an httptest server.
var semanticAPIBase = "https://api.semanticscholar.org/graph/v1/paper/search"

const (
	semanticFields = "paperId,externalIds,title,abstract,authors,year,venue,fieldsOfStudy,s2FieldsOfStudy,citationCount,openAccessPdf,url"
	semanticMaxLimit = 100
)

// SemanticScholarAdapter queries the Semantic Scholar Graph API.
type SemanticScholarAdapter struct {
	Client      *http.Client
	APIKey      string
	UserAgent   string
	MaxAttempts int
	Normalizer  Normalizer
}

// Name returns the adapter identifier.
func (a *SemanticScholarAdapter) Name() string { return types.SourceSemanticScholar }

// Search queries Semantic Scholar and returns papers that carry an abstract.
func (a *SemanticScholarAdapter) Search(ctx context.Context, q Query) (Result, error) {
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return Result{}, apperr.Validation("query", "empty Semantic Scholar query")
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > semanticMaxLimit {
		limit = semanticMaxLimit
	}

	params := url.Values{
		"query":  {text},
		"limit":  {strconv.Itoa(limit)},
		"fields": {semanticFields},
	}
	if yr := buildYearRange(q.YearFrom, q.YearTo); yr != "" {
		params.Set("year", yr)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, semanticAPIBase+"?"+params.Encode(), nil)
	if err != nil {
		return Result{}, fmt.Errorf("creating request: %w", err)
	}
	if a.UserAgent != "" {
		req.Header.Set("User-Agent", a.UserAgent)
	}
	if a.APIKey != "" {
		req.Header.Set("x-api-key", a.APIKey)
	}

	resp, err := httputil.DoWithRetry(ctx, a.Client, req, a.MaxAttempts)
	if err != nil {
		return Result{}, apperr.External(a.Name(), 0, fmt.Errorf("Semantic Scholar API request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{}, httputil.StatusError(a.Name(), resp)
	}

	var sr semanticResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return Result{}, apperr.External(a.Name(), resp.StatusCode, fmt.Errorf("parsing Semantic Scholar response: %w", err))
	}

	out := Result{Total: sr.Total}
	for _, paper := range sr.Data {
		p, ok := a.Normalizer.Normalize(paper.toUnified())
		if !ok {
			continue
		}
		out.Papers = append(out.Papers, p)
	}
	return out, nil
}

// buildYearRange returns a Semantic Scholar year filter string (e.g. "2020-2023").
func buildYearRange(from, to int) string {
	switch {
	case from > 0 && to > 0:
		return fmt.Sprintf("%d-%d", from, to)
	case from > 0:
		return fmt.Sprintf("%d-", from)
	case to > 0:
		return fmt.Sprintf("-%d", to)
	default:
		return ""
	}
}

func (sp semanticPaper) toUnified() types.UnifiedPaper {
	p := types.UnifiedPaper{
		Source:        types.SourceSemanticScholar,
		ExternalID:    sp.PaperID,
		DOI:           sp.ExternalIDs.DOI,
		Title:         sp.Title,
		Abstract:      sp.Abstract,
		Year:          sp.Year,
		Venue:         sp.Venue,
		CitationCount: sp.CitationCount,
		LandingURL:    sp.URL,
		FieldsOfStudy: sp.FieldsOfStudy,
	}
	for _, au := range sp.Authors {
		p.Authors = append(p.Authors, au.Name)
	}
	for _, f := range sp.S2FieldsOfStudy {
		p.Topics = append(p.Topics, f.Category)
	}
	if sp.OpenAccessPDF != nil {
		p.PDFURL = sp.OpenAccessPDF.URL
	}
	return p
}

// Semantic Scholar API JSON structures.
type semanticResponse struct {
	Total  int             `json:"total"`
	Offset int             `json:"offset"`
	Data   []semanticPaper `json:"data"`
}

type semanticPaper struct {
	PaperID         string              `json:"paperId"`
	Title           string              `json:"title"`
	Abstract        string              `json:"abstract"`
	Year            int                 `json:"year"`
	Venue           string              `json:"venue"`
	URL             string              `json:"url"`
	CitationCount   int                 `json:"citationCount"`
	FieldsOfStudy   []string            `json:"fieldsOfStudy"`
	S2FieldsOfStudy []semanticField     `json:"s2FieldsOfStudy"`
	Authors         []semanticAuthor    `json:"authors"`
	ExternalIDs     semanticExternalIDs `json:"externalIds"`
	OpenAccessPDF   *semanticPDF        `json:"openAccessPdf"`
}

type semanticAuthor struct {
	AuthorID string `json:"authorId"`
	Name     string `json:"name"`
}

type semanticExternalIDs struct {
	DOI   string `json:"DOI"`
	ArXiv string `json:"ArXiv"`
}

type semanticField struct {
	Category string `json:"category"`
	Source   string `json:"source"`
}

type semanticPDF struct {
	URL string `json:"url"`
}
