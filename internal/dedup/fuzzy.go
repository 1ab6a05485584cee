// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package dedup

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/hbollon/go-edlib"
)

var nonWord = regexp.MustCompile(`[^\p{L}\p{N}_\s]`)

// NormalizeDOI lowercases and trims doi and strips resolver prefixes.
// It returns "" when nothing remains.
func NormalizeDOI(doi string) string {
	doi = strings.ToLower(strings.TrimSpace(doi))
	for _, prefix := range []string{"https://doi.org/", "http://doi.org/", "doi:"} {
		doi = strings.TrimPrefix(doi, prefix)
	}
	return strings.TrimSpace(doi)
}

// NormalizeTitle lowercases title, turns punctuation into spaces, and
// collapses whitespace.
func NormalizeTitle(title string) string {
	title = nonWord.ReplaceAllString(strings.ToLower(title), " ")
	return strings.Join(strings.Fields(title), " ")
}

// Ratio is the normalized Indel similarity of a and b on a 0..100 scale:
// 2·LCS / (|a|+|b|) · 100, with lengths counted in runes.
func Ratio(a, b string) float64 {
	total := utf8.RuneCountInString(a) + utf8.RuneCountInString(b)
	if total == 0 {
		return 100
	}
	return float64(2*edlib.LCS(a, b)) / float64(total) * 100
}

// lastName returns the family name of a display name: the part before a
// comma ("Smith, Jane") or else the last word ("Jane Smith").
func lastName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if before, _, ok := strings.Cut(name, ","); ok {
		return strings.TrimSpace(before)
	}
	parts := strings.Fields(name)
	if len(parts) == 0 {
		return ""
	}
	return parts[len(parts)-1]
}

// firstAuthorsMatch reports whether the first authors are plausibly the
// same person. Records that cannot be compared count as a match.
func firstAuthorsMatch(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return true
	}
	la, lb := lastName(a[0]), lastName(b[0])
	if la == "" || lb == "" || la == lb {
		return true
	}
	return Ratio(la, lb) >= AuthorMatchThreshold
}
