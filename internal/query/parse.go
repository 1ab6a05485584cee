// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package query turns a free-form research question into catalog search
// strings and an optional publication-year window.
package query

import (
	"regexp"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"
)

// MaxQueries caps the number of derived search strings.
const MaxQueries = 5

// Parsed is the structured form of a research question.
type Parsed struct {
	Raw       string   `json:"rawQuery" yaml:"raw_query"`
	Primary   []string `json:"primaryTerms" yaml:"primary_terms"`
	Secondary []string `json:"expandedTerms" yaml:"expanded_terms"`
	Excluded  []string `json:"excludedTerms,omitempty" yaml:"excluded_terms,omitempty"`
	Queries   []string `json:"searchQueries" yaml:"search_queries"`
	// Zero means no bound.
	YearFrom int `json:"yearFrom,omitempty" yaml:"year_from,omitempty"`
	YearTo   int `json:"yearTo,omitempty" yaml:"year_to,omitempty"`
}

var (
	reSince   = regexp.MustCompile(`since\s+(\d{4})`)
	reAfter   = regexp.MustCompile(`after\s+(\d{4})`)
	reBefore  = regexp.MustCompile(`before\s+(\d{4})`)
	reSpan    = regexp.MustCompile(`(\d{4})\s*(?:-|–|to)\s*(\d{4})`)
	reDecade  = regexp.MustCompile(`in\s+the\s+(\d{4})s`)
	reRecent  = regexp.MustCompile(`\b(?:recent|latest|new|current)\b`)
	reLastN   = regexp.MustCompile(`last\s+(\d+)\s+years?`)
	rePost    = regexp.MustCompile(`post[- ]?(\d{4})`)
	reToken   = regexp.MustCompile(`[a-zA-Z][a-zA-Z0-9-]*`)
	exclusion = []*regexp.Regexp{
		regexp.MustCompile(`instead\s+of\s+(.+?)(?:\.|,|$|\s+(?:and|but|with)\b)`),
		regexp.MustCompile(`\bnot\s+(.+?)(?:\.|,|$|\s+(?:and|but|with)\b)`),
		regexp.MustCompile(`rather\s+than\s+(.+?)(?:\.|,|$|\s+(?:and|but|with)\b)`),
		regexp.MustCompile(`excluding\s+(.+?)(?:\.|,|$|\s+(?:and|but|with)\b)`),
	}
	removals = []*regexp.Regexp{
		regexp.MustCompile(`(?i)since\s+\d{4}`),
		regexp.MustCompile(`(?i)after\s+\d{4}`),
		regexp.MustCompile(`(?i)before\s+\d{4}`),
		regexp.MustCompile(`(?i)\d{4}\s*(?:-|–|to)\s*\d{4}`),
		regexp.MustCompile(`(?i)in\s+the\s+\d{4}s`),
		regexp.MustCompile(`(?i)\b(?:recent|latest|new|current)\b`),
		regexp.MustCompile(`(?i)last\s+\d+\s+years?`),
		regexp.MustCompile(`(?i)post[- ]?\d{4}`),
		regexp.MustCompile(`(?i)instead\s+of\s+.+?(?:\.|,|$)`),
		regexp.MustCompile(`(?i)\bnot\s+.+?(?:\.|,|$)`),
		regexp.MustCompile(`(?i)rather\s+than\s+.+?(?:\.|,|$)`),
		regexp.MustCompile(`(?i)excluding\s+.+?(?:\.|,|$)`),
	}
)

// Parse derives search strings and a year window from raw. now anchors
// relative phrases such as "recent" and "last 5 years".
func Parse(raw string, now time.Time) Parsed {
	cleaned := preprocess(raw)
	p := Parsed{Raw: raw}
	p.YearFrom, p.YearTo = temporal(strings.ToLower(cleaned), now.Year())
	p.Excluded = excluded(strings.ToLower(cleaned))

	p.Primary, p.Secondary = concepts(removePatterns(cleaned))
	p.Queries = searchQueries(p.Primary, p.Secondary, p.Excluded, raw)
	return p
}

func preprocess(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	r := strings.NewReplacer("'m", " am", "'re", " are", "'s", " is", "'ve", " have")
	return r.Replace(s)
}

// temporal applies the year phrases in a fixed order; later phrases
// override earlier ones.
func temporal(s string, currentYear int) (from, to int) {
	atoi := func(v string) int {
		n, _ := strconv.Atoi(v)
		return n
	}
	if m := reSince.FindStringSubmatch(s); m != nil {
		from = atoi(m[1])
	}
	if m := reAfter.FindStringSubmatch(s); m != nil {
		from = atoi(m[1]) + 1
	}
	if m := reBefore.FindStringSubmatch(s); m != nil {
		to = atoi(m[1]) - 1
	}
	if m := reSpan.FindStringSubmatch(s); m != nil {
		from, to = atoi(m[1]), atoi(m[2])
	}
	if m := reDecade.FindStringSubmatch(s); m != nil {
		from = atoi(m[1])
		to = from + 9
	}
	if reRecent.MatchString(s) {
		from = currentYear - 3
	}
	if m := reLastN.FindStringSubmatch(s); m != nil {
		from = currentYear - atoi(m[1])
	}
	if m := rePost.FindStringSubmatch(s); m != nil {
		from = atoi(m[1])
	}
	return from, to
}

func excluded(s string) []string {
	var out []string
	for _, re := range exclusion {
		if m := re.FindStringSubmatch(s); m != nil {
			if v := strings.TrimSpace(m[1]); v != "" {
				out = append(out, v)
			}
		}
	}
	return out
}

func removePatterns(s string) string {
	for _, re := range removals {
		s = re.ReplaceAllString(s, " ")
	}
	return strings.Join(strings.Fields(s), " ")
}

// concepts extracts up to five primary (domain-looking) and five secondary
// terms from s.
func concepts(s string) (primary, secondary []string) {
	lower := strings.ToLower(s)
	for _, re := range scientificPatterns {
		for _, m := range re.FindAllString(lower, -1) {
			m = strings.TrimSpace(m)
			if m != "" && !slices.Contains(primary, m) {
				primary = append(primary, m)
			}
		}
	}

	var tokens []string
	for _, tok := range reToken.FindAllString(s, -1) {
		tok = strings.ToLower(tok)
		if !stopwords[tok] {
			tokens = append(tokens, tok)
		}
	}

	for i, tok := range tokens {
		if len(tok) > 2 && !slices.Contains(primary, tok) && !slices.Contains(secondary, tok) {
			secondary = append(secondary, tok)
		}
		if i+1 < len(tokens) {
			bigram := tok + " " + tokens[i+1]
			if !slices.Contains(primary, bigram) && !slices.Contains(secondary, bigram) {
				if isScientific(bigram) {
					primary = append(primary, bigram)
				} else {
					secondary = append(secondary, bigram)
				}
			}
		}
		if i+2 < len(tokens) {
			trigram := tok + " " + tokens[i+1] + " " + tokens[i+2]
			if isScientific(trigram) && !slices.Contains(primary, trigram) {
				primary = append(primary, trigram)
			}
		}
	}

	primary = prioritize(primary)
	if len(primary) > 5 {
		primary = primary[:5]
	}
	var rest []string
	for _, c := range secondary {
		if !slices.Contains(primary, c) {
			rest = append(rest, c)
		}
		if len(rest) == 5 {
			break
		}
	}
	return primary, rest
}

func isScientific(term string) bool {
	for _, re := range scientificPatterns {
		if re.MatchString(term) {
			return true
		}
	}
	for _, kw := range scientificKeywords {
		if strings.Contains(term, kw) {
			return true
		}
	}
	return false
}

// prioritize orders longer and domain-looking terms first. The sort is
// stable so equal scores keep discovery order.
func prioritize(terms []string) []string {
	score := func(t string) int {
		s := len(strings.Fields(t)) * 2
		if isScientific(t) {
			s += 5
		}
		return s
	}
	out := slices.Clone(terms)
	sort.SliceStable(out, func(i, j int) bool { return score(out[i]) > score(out[j]) })
	return out
}

func searchQueries(primary, secondary, excl []string, raw string) []string {
	var qs []string
	add := func(q string) {
		if q != "" && !slices.Contains(qs, q) {
			qs = append(qs, q)
		}
	}

	if len(primary) > 0 {
		add(strings.Join(primary[:min(2, len(primary))], " "))
		if len(secondary) > 0 {
			add(primary[0] + " " + secondary[0])
		}
		for _, c := range primary[:min(2, len(primary))] {
			if syn := synonymsFor(c); len(syn) > 0 {
				add(strings.Replace(primary[0], c, syn[0], 1))
			}
		}
		add(primary[0])
		if len(primary) > 1 {
			add(strings.Join(primary[:min(3, len(primary))], " "))
		}
	}

	if len(qs) == 0 {
		var words []string
		for _, w := range strings.Fields(strings.ToLower(raw)) {
			if !stopwords[w] {
				words = append(words, w)
			}
		}
		fallback := strings.Join(words, " ")
		if len(fallback) > 100 {
			fallback = strings.TrimSpace(fallback[:100])
		}
		add(fallback)
	}

	if len(excl) > 0 && len(qs) > 0 {
		var kept []string
		for _, q := range qs {
			lq := strings.ToLower(q)
			drop := false
			for _, e := range excl {
				if strings.Contains(lq, strings.ToLower(e)) {
					drop = true
					break
				}
			}
			if !drop {
				kept = append(kept, q)
			}
		}
		if len(kept) == 0 {
			kept = qs[:1]
		}
		qs = kept
	}

	seen := make(map[string]bool)
	var out []string
	for _, q := range qs {
		words := strings.Fields(strings.ToLower(q))
		if len(words) == 0 {
			continue
		}
		sort.Strings(words)
		key := strings.Join(words, " ")
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, q)
		if len(out) == MaxQueries {
			break
		}
	}
	return out
}

func synonymsFor(term string) []string {
	t := strings.ToLower(term)
	if s, ok := synonyms[t]; ok {
		return s
	}
	for _, k := range synonymKeys {
		if strings.Contains(t, k) || strings.Contains(k, t) {
			return synonyms[k]
		}
	}
	return nil
}
