// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package source

import (
	"regexp"
	"strings"

	"github.com/HiNala/bio-hack-sub000/pkg/types"
)

// defaultMinAbstractChars is used when Normalizer.MinAbstractChars is zero.
const defaultMinAbstractChars = 50

var markupTag = regexp.MustCompile(`<[^>]+>`)

// Normalizer turns raw adapter output into the canonical UnifiedPaper shape.
// Every adapter runs its hits through Normalize so downstream stages never
// branch on catalog-specific quirks.
type Normalizer struct {
	// MinAbstractChars rejects records whose abstract is shorter.
	MinAbstractChars int
}

// Normalize cleans p and reports whether it is retrievable. Records without
// a title or a usable abstract are rejected.
func (n Normalizer) Normalize(p types.UnifiedPaper) (types.UnifiedPaper, bool) {
	minChars := n.MinAbstractChars
	if minChars <= 0 {
		minChars = defaultMinAbstractChars
	}

	p.Source = strings.TrimSpace(p.Source)
	p.ExternalID = strings.TrimSpace(p.ExternalID)
	p.Title = cleanText(p.Title)
	p.Abstract = cleanText(p.Abstract)
	p.Venue = cleanText(p.Venue)
	p.DOI = strings.TrimSpace(p.DOI)
	p.PDFURL = strings.TrimSpace(p.PDFURL)
	p.LandingURL = strings.TrimSpace(p.LandingURL)

	if p.Source == "" || p.ExternalID == "" || p.Title == "" {
		return p, false
	}
	if len(p.Abstract) < minChars {
		return p, false
	}

	p.Authors = cleanList(p.Authors)
	p.Topics = cleanList(p.Topics)
	p.FieldsOfStudy = cleanList(p.FieldsOfStudy)
	if p.CitationCount < 0 {
		p.CitationCount = 0
	}
	if p.Year < 0 {
		p.Year = 0
	}
	return p, true
}

// cleanText strips markup tags (JATS in some abstracts) and collapses whitespace.
func cleanText(s string) string {
	if strings.ContainsRune(s, '<') {
		s = markupTag.ReplaceAllString(s, " ")
	}
	return strings.Join(strings.Fields(s), " ")
}

// cleanList trims entries, drops empty ones, and removes repeats while
// keeping first-occurrence order.
func cleanList(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = cleanText(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
